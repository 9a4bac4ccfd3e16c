//go:build mutation

package dev

import (
	"testing"

	"github.com/gtramontina/ooze"
)

func TestMutation(t *testing.T) {
	ooze.Release(
		t,
		ooze.WithTestCommand("go test -buildvcs=false ./..."),
		ooze.Parallel(),
		ooze.IgnoreSourceFiles("^dev/.*|^stubgen/main.go|.*_test.go|.*/dl_.*\\.go"),
		ooze.WithMinimumThreshold(0.80),
		ooze.WithRepositoryRoot(".."),
		ooze.ForceColors(),
	)
}
