// Nacho CLI - translate foreign binaries and run them on the tiered engine
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/chazu/nacho/engine"
	"github.com/chazu/nacho/manifest"
	"github.com/chazu/nacho/pkg/decode"
	"github.com/chazu/nacho/pkg/ir"
	"github.com/chazu/nacho/pkg/lift"
	"github.com/chazu/nacho/pkg/wasm"

	_ "github.com/tliron/commonlog/simple"
)

func main() {
	archName := flag.String("arch", "", "Guest architecture: x64, a64, managed (default from nacho.toml)")
	entryStr := flag.String("entry", "0", "Entry address (decimal or 0x hex)")
	baseStr := flag.String("base", "0", "Load address of the binary (decimal or 0x hex)")
	output := flag.String("o", "", "Compile the entry block and write the module to this file")
	dumpIR := flag.String("dump-ir", "", "Dump lifted IR: 'text' or 'cbor'")
	runSteps := flag.Int("run", 0, "Dispatch up to N units starting at the entry address")
	showStats := flag.Bool("stats", false, "Print engine statistics after running")
	verbose := flag.Bool("v", false, "Verbose output")
	veryVerbose := flag.Bool("vv", false, "Debug output")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: nacho [options] <binary>\n\n")
		fmt.Fprintf(os.Stderr, "Translates the given binary and optionally runs it on the tiered engine.\n")
		fmt.Fprintf(os.Stderr, "Configuration is read from the nearest nacho.toml; flags override it.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  nacho -arch x64 -dump-ir text prog.bin      # Show the lifted IR\n")
		fmt.Fprintf(os.Stderr, "  nacho -arch managed -o prog.wasm prog.mbc   # Compile the entry block\n")
		fmt.Fprintf(os.Stderr, "  nacho -arch a64 -entry 0x1000 -run 500 -stats prog.bin\n")
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := manifest.FindAndLoad(".")
	if err != nil {
		fatalf("%v", err)
	}

	verbosity := cfg.Log.Verbosity
	if *verbose {
		verbosity = 1
	}
	if *veryVerbose {
		verbosity = 2
	}
	commonlog.Configure(verbosity, nil)

	if *archName == "" {
		*archName = cfg.Translate.Arch
	}
	decode.MaxBlockInstructions = cfg.Translate.MaxBlockLen
	arch, err := decode.ParseArch(*archName)
	if err != nil {
		fatalf("%v", err)
	}

	entry, err := parseAddr(*entryStr)
	if err != nil {
		fatalf("bad -entry: %v", err)
	}
	base, err := parseAddr(*baseStr)
	if err != nil {
		fatalf("bad -base: %v", err)
	}

	binary, err := os.ReadFile(flag.Arg(0))
	if err != nil {
		fatalf("%v", err)
	}

	fn, err := lift.LiftAt(binary, arch, base, entry)
	if err != nil {
		fatalf("lift: %v", err)
	}

	if *dumpIR != "" {
		if err := dump(fn, *dumpIR); err != nil {
			fatalf("%v", err)
		}
	}

	if *output != "" {
		code, err := wasm.Compile(fn.EntryInstructions())
		if err != nil {
			fatalf("compile: %v", err)
		}
		if err := os.WriteFile(*output, code, 0644); err != nil {
			fatalf("%v", err)
		}
		if *verbose {
			fmt.Printf("Wrote %s (%d bytes, %d blocks lifted)\n", *output, len(code), fn.BlockCount())
		}
	}

	if *runSteps > 0 {
		if err := run(binary, arch, base, entry, *runSteps, cfg, *showStats); err != nil {
			fatalf("%v", err)
		}
	}
}

// dump writes the lifted function to stdout in the requested format.
func dump(fn *ir.Function, format string) error {
	switch format {
	case "text":
		fmt.Print(fn.Disassemble())
		return nil
	case "cbor":
		data, err := ir.MarshalFunction(fn)
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(data)
		return err
	default:
		return fmt.Errorf("unknown -dump-ir format %q (want text or cbor)", format)
	}
}

// run drives the dispatch loop until control leaves the binary or the
// step budget runs out.
func run(binary []byte, arch decode.Arch, base, entry uint64, steps int, cfg *manifest.Manifest, showStats bool) error {
	econfig := engine.Config{
		BaselineThreshold: cfg.Engine.BaselineThreshold,
		OptimizeThreshold: cfg.Engine.OptimizeThreshold,
		QueueDepth:        cfg.Engine.QueueDepth,
	}
	if !cfg.Engine.JIT {
		// Thresholds no address can reach keep everything interpreted.
		econfig.BaselineThreshold = ^uint64(0) - 1
		econfig.OptimizeThreshold = ^uint64(0)
	}

	eng, err := engine.New(binary, arch, base, econfig,
		engine.WithDiagnostic(func(v int64) { fmt.Println(v) }))
	if err != nil {
		return err
	}
	defer eng.Stop()

	addr := entry
	for i := 0; i < steps && addr != 0; i++ {
		addr = eng.Dispatch(addr)
	}

	if showStats {
		printStats(eng.StatsSnapshot())
	}
	return nil
}

func printStats(s engine.Stats) {
	fmt.Fprintf(os.Stderr, "dispatches:        %d\n", s.Dispatches)
	fmt.Fprintf(os.Stderr, "  interpreted:     %d\n", s.Interpreted)
	fmt.Fprintf(os.Stderr, "  compiled runs:   %d\n", s.CompiledRuns)
	fmt.Fprintf(os.Stderr, "modules compiled:  %d\n", s.ModulesCompiled)
	fmt.Fprintf(os.Stderr, "compile failures:  %d\n", s.CompileFailures)
	fmt.Fprintf(os.Stderr, "assumptions blown: %d\n", s.AssumptionsBlown)
	fmt.Fprintf(os.Stderr, "cached modules:    %d\n", s.CachedModules)
}

// parseAddr accepts decimal or 0x-prefixed hex.
func parseAddr(s string) (uint64, error) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return strconv.ParseUint(s[2:], 16, 64)
	}
	return strconv.ParseUint(s, 10, 64)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
