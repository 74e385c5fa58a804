// Command malic is the M* compiler driver: source file in, NASM assembly
// out. It wires together a cobra root command (run()/newRootCmd() split
// for testability, debug-dump flags) around the single pipeline
// lexer -> parser -> sema -> irbuild -> emit -> dataflow -> regalloc ->
// mach -> x86.Printer.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/mstar-lang/malic/internal/log"
	"github.com/mstar-lang/malic/pkg/cfg"
	"github.com/mstar-lang/malic/pkg/config"
	"github.com/mstar-lang/malic/pkg/dataflow"
	"github.com/mstar-lang/malic/pkg/diag"
	"github.com/mstar-lang/malic/pkg/emit"
	"github.com/mstar-lang/malic/pkg/irbuild"
	"github.com/mstar-lang/malic/pkg/lexer"
	"github.com/mstar-lang/malic/pkg/mach"
	"github.com/mstar-lang/malic/pkg/parser"
	"github.com/mstar-lang/malic/pkg/regalloc"
	"github.com/mstar-lang/malic/pkg/sema"
	"github.com/mstar-lang/malic/pkg/x86"
	"github.com/spf13/cobra"
)

func main() {
	os.Exit(run())
}

func run() int {
	rootCmd := newRootCmd(os.Stdout, os.Stderr)
	rootCmd.SetArgs(normalizeFlags(os.Args[1:]))
	if err := rootCmd.Execute(); err != nil {
		return 1
	}
	return 0
}

// singleDashFlags lists the flags this CLI spells with one dash (`-in`,
// `-out`, `-help`, `-verbose`); pflag otherwise treats a single dash as a
// shorthand cluster, so these are rewritten to double-dash before Execute
// sees them.
var singleDashFlags = []string{"in", "out", "help", "verbose"}

func normalizeFlags(args []string) []string {
	out := make([]string, len(args))
	for i, arg := range args {
		out[i] = arg
		for _, name := range singleDashFlags {
			if arg == "-"+name {
				out[i] = "--" + name
				break
			}
		}
	}
	return out
}

var (
	inPath      string
	outPath     string
	printIns    bool
	printRemove bool
	verbose     bool
)

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:                "malic",
		Short:              "malic compiles M* source to x86-64 NASM assembly",
		SilenceUsage:       true,
		SilenceErrors:      true,
		FParseErrWhitelist: cobra.FParseErrWhitelist{UnknownFlags: true},
		RunE: func(cmd *cobra.Command, args []string) error {
			if inPath == "" || outPath == "" {
				return cmd.Help()
			}
			return compile(errOut)
		},
	}
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)
	rootCmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(out, "usage: malic -in <path> -out <path> [--print-ins] [--print-remove] [-verbose]")
	})

	rootCmd.Flags().StringVar(&inPath, "in", "", "source file (required)")
	rootCmd.Flags().StringVar(&outPath, "out", "", "NASM output path (required)")
	rootCmd.Flags().BoolVar(&printIns, "print-ins", false, "dump abstract instructions to stderr before register allocation")
	rootCmd.Flags().BoolVar(&printRemove, "print-remove", false, "report output-irrelevant elimination decisions")
	rootCmd.Flags().BoolVar(&verbose, "verbose", false, "route phase-tagged debug logging to stderr")
	return rootCmd
}

// compile runs the whole pipeline once and writes the result to outPath.
// Errors are reported to errOut and surfaced as a non-nil error so run()
// translates them into a non-zero exit code.
func compile(errOut io.Writer) error {
	log.Init(verbose)
	defer log.Sync()

	src, err := os.ReadFile(inPath)
	if err != nil {
		fmt.Fprintf(errOut, "malic: %v\n", err)
		return err
	}

	l := lexer.New(string(src))
	p := parser.New(l)
	ast := p.ParseProgram()
	if perr := p.Errors(); perr != nil {
		reportDiagnostics(errOut, perr)
		return perr
	}

	res, err := sema.Check(ast)
	if err != nil {
		reportDiagnostics(errOut, err)
		return err
	}

	prog, err := irbuild.Build(res)
	if err != nil {
		fmt.Fprintf(errOut, "malic: %v\n", err)
		return err
	}

	xprog := emit.Select(prog)

	opts := config.Default()
	opts.InPath, opts.OutPath = inPath, outPath
	opts.PrintIns, opts.PrintRemove, opts.Verbose = printIns, printRemove, verbose

	dump := x86.NewPrinter(errOut)
	for _, fn := range xprog.Functions {
		if opts.PrintIns {
			dump.PrintFunc(fn)
		}

		if err := dataflow.CheckDefinedBeforeUse(cfg.Build(fn)); err != nil {
			fmt.Fprintf(errOut, "malic: %v\n", err)
			return err
		}

		var onRemove func(x86.Instruction)
		if opts.PrintRemove {
			onRemove = func(ins x86.Instruction) {
				fmt.Fprintf(errOut, "malic: %s: removed dead %T\n", fn.Name, ins)
			}
		}
		dataflow.OptimizeReporting(fn, onRemove)

		info := regalloc.Allocate(fn, opts)
		mach.Build(fn, info)
	}

	out, err := os.Create(outPath)
	if err != nil {
		fmt.Fprintf(errOut, "malic: %v\n", err)
		return err
	}
	defer out.Close()

	x86.NewPrinter(out).PrintProgram(xprog)
	return nil
}

// reportDiagnostics writes every accumulated SemanticError on its own
// line; a single diagnostic and a batch report the same
// way since diag.Errors splits a multierr-joined error back apart.
func reportDiagnostics(errOut io.Writer, err error) {
	for _, e := range diag.Errors(err) {
		fmt.Fprintf(errOut, "malic: %s\n", e)
	}
}
