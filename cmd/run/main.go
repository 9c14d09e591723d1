package main

import (
	"context"
	stderrors "errors"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-sandbox/coderegion"
	"github.com/wippyai/wasm-sandbox/engine"
	"github.com/wippyai/wasm-sandbox/signals"
	"github.com/wippyai/wasm-sandbox/trap"
)

func main() {
	var (
		wasmFile    = flag.String("wasm", "", "Path to core wasm module")
		funcName    = flag.String("func", "", "Export to call (optional)")
		args        = flag.String("args", "", "Arguments (comma-separated)")
		timeout     = flag.Duration("timeout", 0, "Interrupt the call after this long (0 = no limit)")
		fuel        = flag.Int64("fuel", 0, "Fuel for native calls (0 = unlimited)")
		list        = flag.Bool("list", false, "List exported functions and exit")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
		verbose     = flag.Bool("v", false, "Verbose logging")
	)
	flag.Parse()

	if *wasmFile == "" {
		fmt.Fprintln(os.Stderr, "Usage: run -wasm <file.wasm> [-func name] [-args 1,2] [-timeout 5s]")
		fmt.Fprintln(os.Stderr, "       run -wasm <file.wasm> -list")
		fmt.Fprintln(os.Stderr, "       run -wasm <file.wasm> -i  (interactive mode)")
		os.Exit(1)
	}

	log := zap.NewNop()
	if *verbose {
		l, err := zap.NewDevelopment()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		log = l
		defer func() { _ = log.Sync() }()
		engine.SetLogger(log)
		signals.SetLogger(log)
		coderegion.SetLogger(log)
	}
	cfg := engine.Config{Logger: log, DefaultFuel: *fuel}

	if *interactive {
		if err := runInteractive(*wasmFile, cfg, *timeout); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(*wasmFile, *funcName, *args, *timeout, *list, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		var t *trap.Trap
		if stderrors.As(err, &t) && len(t.Backtrace) > 0 {
			fmt.Fprint(os.Stderr, t.FormatBacktrace())
		}
		os.Exit(2)
	}
}

func run(wasmFile, funcName, argStr string, timeout time.Duration, listOnly bool, cfg engine.Config) error {
	ctx := context.Background()

	data, err := os.ReadFile(wasmFile)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	e, err := engine.New(cfg)
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}
	defer e.Close(ctx)

	mod, err := e.LoadWasm(ctx, data)
	if err != nil {
		return fmt.Errorf("load: %w", err)
	}
	defer mod.Close(ctx)

	exports := mod.Exports()
	fmt.Printf("Module: %s\n", wasmFile)
	fmt.Printf("\nExported functions:\n")
	for _, ex := range exports {
		fmt.Printf("  %s\n", signature(ex.Name, ex.Params, ex.Results))
	}

	if listOnly {
		return nil
	}

	if funcName == "" {
		if len(exports) == 0 {
			return fmt.Errorf("module has no exported functions")
		}
		funcName = exports[0].Name
	}

	result, err := callExport(ctx, e, mod, funcName, splitArgs(argStr), timeout)
	if err != nil {
		return err
	}
	fmt.Printf("\nCalling %s...\n", funcName)
	fmt.Printf("Result: %s\n", result)
	return nil
}

// callExport runs one export and formats its results.
func callExport(ctx context.Context, e *engine.Engine, mod *engine.Module, name string, args []string, timeout time.Duration) (string, error) {
	fn, err := mod.Export(name)
	if err != nil {
		return "", err
	}
	var info engine.ExportInfo
	for _, ex := range mod.Exports() {
		if ex.Name == name {
			info = ex
		}
	}
	stack, err := encodeArgs(args, info.Params, fn.StackSize())
	if err != nil {
		return "", err
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := e.Call(ctx, fn, stack); err != nil {
		return "", err
	}
	return decodeResults(stack, info.Results), nil
}
