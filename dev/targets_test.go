//go:build targ

package main

import (
	"path/filepath"
	"testing"

	. "github.com/onsi/gomega" //nolint:revive
	"github.com/toejough/targ/file"
)

func TestClassifyChanges(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		changes file.ChangeSet
		want    changeKind
	}{
		"build output only": {
			changes: file.ChangeSet{Modified: []string{"coverage.out", "bin/stubgen"}},
			want:    changeNone,
		},
		"scratch stubs": {
			changes: file.ChangeSet{Added: []string{filepath.Join(scratchRoot(), "mathlib", "tmp", "stubfunctions.c")}},
			want:    changeNone,
		},
		"c runtime": {
			changes: file.ChangeSet{Modified: []string{"internal/codegen/runtime/stub.c"}},
			want:    changeRuntime,
		},
		"go beats runtime": {
			changes: file.ChangeSet{
				Modified: []string{"internal/codegen/runtime/stub.h"},
				Removed:  []string{"internal/core/stub.go"},
			},
			want: changeGo,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			g := NewWithT(t)

			g.Expect(classifyChanges(tt.changes)).To(Equal(tt.want))
		})
	}
}

func TestParseCoverageSortsAndSkipsPlatformCode(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	out := "github.com/toejough/natstub/internal/core/stub.go:60:\tNewStubbedModule\t92.3%\n" +
		"github.com/toejough/natstub/internal/native/dl_unix.go:20:\tload\t0.0%\n" +
		"github.com/toejough/natstub/internal/core/hash.go:10:\tCombine\t75.0%\n" +
		"total:\t(statements)\t88.1%"

	funcs, err := parseCoverage(out)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(funcs).To(HaveLen(2))
	g.Expect(funcs[0].percent).To(Equal(75.0))
	g.Expect(funcs[1].line).To(ContainSubstring("NewStubbedModule"))

	_, err = parseCoverage("total:\t(statements)\t88.1%")
	g.Expect(err).To(HaveOccurred())
}

func TestSampleStubRendersEveryReturnShape(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	g.Expect(sampleStub.Functions).To(ContainElement(HaveField("ReturnType", "const int")))
	g.Expect(sampleStub.Functions).To(ContainElement(HaveField("Void", true)))
}
