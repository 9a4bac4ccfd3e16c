// Package run implements the stubgen tool in a testable way.
package run

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/alexflint/go-arg"
	"github.com/fatih/color"
	"go.uber.org/zap"

	"github.com/toejough/natstub/internal/bindgen"
	"github.com/toejough/natstub/internal/codegen"
	"github.com/toejough/natstub/internal/core"
	"github.com/toejough/natstub/internal/header"
	"github.com/toejough/natstub/internal/manifest"
	"github.com/toejough/natstub/internal/native"
)

// Interfaces - Public

// FileSystem interface for mocking.
type FileSystem interface {
	MkdirAll(path string, perm os.FileMode) error
	ReadFile(name string) ([]byte, error)
	WriteFile(name string, data []byte, perm os.FileMode) error
}

// Functions - Public

// Run executes stubgen. args includes the program name, getEnv supplies the environment, fileSys does the
// file I/O of generate and bindings, and out receives user facing output.
func Run(args []string, getEnv func(string) string, fileSys FileSystem, out io.Writer) error {
	parsed, parser, err := parseArgs(args)
	if errors.Is(err, arg.ErrHelp) {
		parser.WriteHelp(out)

		return nil
	}

	if err != nil {
		return err
	}

	if parsed.Verbose {
		logger, err := zap.NewDevelopment()
		if err == nil {
			core.SetLogger(logger)
			defer core.SetLogger(zap.NewNop())
		}
	}

	switch {
	case parsed.Generate != nil:
		return generate(parsed.Generate, getEnv, fileSys, out)
	case parsed.Build != nil:
		return build(parsed.Build, getEnv, fileSys, out)
	case parsed.Bindings != nil:
		return bindings(parsed.Bindings, fileSys, out)
	case parsed.Inspect != nil:
		return inspect(parsed.Inspect, out)
	}

	parser.WriteUsage(out)

	return errNoCommand
}

// Structs - Private

type bindingsCmd struct {
	interfaceArgs

	Package string `arg:"--package,required" help:"package clause of the generated file"`
	Out     string `arg:"--out,required"     help:"generated Go file"`
}

type buildCmd struct {
	interfaceArgs
	optionArgs
}

// cliArgs defines the command-line arguments for stubgen.
type cliArgs struct {
	Verbose  bool         `arg:"-v,--verbose"         help:"log every compiler invocation"`
	Generate *generateCmd `arg:"subcommand:generate"  help:"write stub sources without compiling them"`
	Build    *buildCmd    `arg:"subcommand:build"     help:"compile and load the base stub"`
	Bindings *bindingsCmd `arg:"subcommand:bindings"  help:"write typed Go bindings for an interface"`
	Inspect  *inspectCmd  `arg:"subcommand:inspect"   help:"print the manifest of a built module"`
}

type generateCmd struct {
	interfaceArgs
	optionArgs

	Out string `arg:"--out,required" help:"directory receiving the sources"`
}

type inspectCmd struct {
	Dir string `arg:"positional,required" help:"binary directory of a built module"`
}

type interfaceArgs struct {
	Header   string   `arg:"--header,required"  help:"C header declaring the interface"`
	Name     string   `arg:"--name,required"    help:"module name, without a file extension"`
	Binary   string   `arg:"--binary"           help:"keep only functions this library exports"`
	Decorate []string `arg:"--decorate,separate" help:"macro to strip from declarations (repeatable)"`
}

type optionArgs struct {
	Config string `arg:"--config" help:"TOML compiler options"`
}

// Functions - Private

func bindings(cmd *bindingsCmd, fileSys FileSystem, out io.Writer) error {
	iface, err := loadInterface(cmd.interfaceArgs, fileSys)
	if err != nil {
		return err
	}

	src, err := bindgen.Generate(iface, bindgen.Config{Package: cmd.Package, Module: cmd.Name})
	if err != nil {
		return err
	}

	err = fileSys.WriteFile(cmd.Out, []byte(src), codegen.FilePerm)
	if err != nil {
		return fmt.Errorf("error writing %s: %w", cmd.Out, err)
	}

	_, _ = fmt.Fprintf(out, "%s written successfully.\n", cmd.Out)

	return nil
}

func build(cmd *buildCmd, getEnv func(string) string, fileSys FileSystem, out io.Writer) error {
	iface, err := loadInterface(cmd.interfaceArgs, fileSys)
	if err != nil {
		return err
	}

	opts, err := loadOptions(cmd.Name, cmd.optionArgs, getEnv)
	if err != nil {
		return err
	}

	m, err := core.NewStubbedModule(context.Background(), cmd.Name, iface, core.WithCompilerOptions(opts))
	if err != nil {
		return err
	}

	_, _ = color.New(color.FgGreen).Fprintf(out, "built %s\n", m.ModulePath())
	_, _ = fmt.Fprintf(out, "manifest %s\n", filepath.Join(opts.BinaryPath, manifest.FileName))

	return nil
}

func generate(cmd *generateCmd, getEnv func(string) string, fileSys FileSystem, out io.Writer) error {
	err := core.ValidateModuleName(cmd.Name)
	if err != nil {
		return err
	}

	iface, err := loadInterface(cmd.interfaceArgs, fileSys)
	if err != nil {
		return err
	}

	opts, err := loadOptions(cmd.Name, cmd.optionArgs, getEnv)
	if err != nil {
		return err
	}

	err = fileSys.MkdirAll(cmd.Out, dirPerm)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", cmd.Out, err)
	}

	files := map[string][]byte{
		codegen.StubSourceName: []byte(core.StubSource(iface, opts, filepath.Join(cmd.Out, codegen.StubSourceName))),
	}

	for _, name := range codegen.RuntimeFiles() {
		data, err := codegen.RuntimeFile(name)
		if err != nil {
			return err
		}

		if name == codegen.RuntimeSourceName && opts.StubFile != "" {
			data, err = fileSys.ReadFile(opts.StubFile)
			if err != nil {
				return fmt.Errorf("failed to read stub file: %w", err)
			}
		}

		files[name] = data
	}

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}

	sort.Strings(names)

	for _, name := range names {
		path := filepath.Join(cmd.Out, name)

		err = fileSys.WriteFile(path, files[name], codegen.FilePerm)
		if err != nil {
			return fmt.Errorf("error writing %s: %w", path, err)
		}

		_, _ = fmt.Fprintf(out, "%s written successfully.\n", path)
	}

	return nil
}

func inspect(cmd *inspectCmd, out io.Writer) error {
	m, err := manifest.Read(cmd.Dir)
	if err != nil {
		return err
	}

	title := color.New(color.Bold)
	label := color.New(color.FgCyan)

	_, _ = title.Fprintf(out, "%s\n", m.Module)
	_, _ = label.Fprint(out, "header:   ")
	_, _ = fmt.Fprintln(out, m.Header)
	_, _ = label.Fprint(out, "compiler: ")
	_, _ = fmt.Fprintf(out, "%s %s\n", m.Compiler, m.Flags)
	_, _ = label.Fprint(out, "stub:     ")
	_, _ = fmt.Fprintf(out, "%s (%d functions)\n", m.Stub.Path, len(m.Stub.Functions))

	for _, fn := range m.Stub.Functions {
		_, _ = fmt.Fprintf(out, "  %s\n", fn)
	}

	for _, impl := range m.Implementations {
		_, _ = label.Fprint(out, "impl:     ")
		_, _ = fmt.Fprintf(out, "%s %s", shortHash(impl.Hash), impl.Path)

		if impl.DefinedAt != "" {
			_, _ = fmt.Fprintf(out, " from %s", impl.DefinedAt)
		}

		_, _ = fmt.Fprintln(out)

		for _, fn := range impl.Functions {
			_, _ = fmt.Fprintf(out, "  %s\n", fn)
		}
	}

	return nil
}

func loadInterface(a interfaceArgs, fileSys FileSystem) (*core.NativeInterface, error) {
	data, err := fileSys.ReadFile(a.Header)
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	fns, err := header.Parse(string(data), header.Options{Decorations: a.Decorate})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", a.Header, err)
	}

	if a.Binary != "" {
		exported, err := native.ExportedFunctions(a.Binary)
		if err != nil {
			return nil, err
		}

		fns = header.KeepExported(fns, exported)
	}

	return core.NewNativeInterface(a.Header, fns)
}

func loadOptions(name string, a optionArgs, getEnv func(string) string) (core.CompilerOptions, error) {
	opts := core.DefaultOptions(name, getEnv)
	if a.Config == "" {
		return opts, nil
	}

	return core.LoadOptions(a.Config, opts)
}

// parseArgs parses command-line arguments into cliArgs.
func parseArgs(args []string) (cliArgs, *arg.Parser, error) {
	var parsed cliArgs

	parser, err := arg.NewParser(arg.Config{Program: "stubgen"}, &parsed)
	if err != nil {
		return cliArgs{}, nil, fmt.Errorf("failed to create argument parser: %w", err)
	}

	var cmdArgs []string
	if len(args) > 1 {
		cmdArgs = args[1:]
	}

	err = parser.Parse(cmdArgs)
	if errors.Is(err, arg.ErrHelp) {
		return cliArgs{}, parser, err
	}

	if err != nil {
		return cliArgs{}, parser, fmt.Errorf("failed to parse arguments: %w", err)
	}

	return parsed, parser, nil
}

func shortHash(hash string) string {
	const shown = 16

	if len(hash) > shown {
		return hash[:shown]
	}

	return hash
}

// unexported constants.
const (
	dirPerm = 0o755
)

// unexported variables.
var (
	errNoCommand = errors.New("no command given")
)
