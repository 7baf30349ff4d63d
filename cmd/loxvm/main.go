package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/funvibe/loxvm/internal/config"
	"github.com/funvibe/loxvm/internal/history"
	"github.com/funvibe/loxvm/internal/repl"
	"github.com/funvibe/loxvm/internal/server"
	"github.com/funvibe/loxvm/internal/vm"
)

const usage = `Usage: loxvm [script]

  loxvm                     start the interactive prompt
  loxvm <file.lox>          run a script
  loxvm -c <file.lox>       compile a script to <file>.loxc
  loxvm -r <file.loxc>      run a compiled image
  loxvm --serve [addr]      serve the Eval gRPC service

Flags (any position):
  --trace                   print the stack and instruction before each step
  --disassemble             print each compiled chunk
  --config <path>           use this loxvm.yaml instead of searching for one
`

// host holds the process-wide state shared by the commands.
type host struct {
	cfg    *config.Config
	logger *logrus.Logger
	ctx    context.Context
	args   []string

	// traceOut receives the execution trace, kept apart from print output
	traceOut io.Writer
}

func main() {
	// Catch panics and show user-friendly error
	defer func() {
		if r := recover(); r != nil {
			if os.Getenv("DEBUG") == "1" {
				panic(r)
			}
			fmt.Fprintf(os.Stderr, "Internal error: %v\n", r)
			fmt.Fprintln(os.Stderr, "This is a bug. Please report it.")
			os.Exit(config.ExitRuntimeError)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}

func run(ctx context.Context, argv []string) int {
	args, configPath, flags, err := splitFlags(argv)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprint(os.Stderr, usage)
		return config.ExitUsage
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %s\n", err)
		return config.ExitUsage
	}
	cfg.ApplyEnv(os.Getenv)
	if flags.trace {
		cfg.Trace = true
	}
	if flags.disassemble {
		cfg.Disassemble = true
	}

	h := &host{
		cfg:    cfg,
		logger: newLogger(cfg),
		ctx:    ctx,
		args:   args,

		traceOut: os.Stderr,
	}
	if configPath != "" {
		h.logger.WithField("path", configPath).Debug("loaded config")
	}

	if code, ok := h.handleHelp(); ok {
		return code
	}
	if code, ok := h.handleCompile(); ok {
		return code
	}
	if code, ok := h.handleRunCompiled(); ok {
		return code
	}
	if code, ok := h.handleServe(); ok {
		return code
	}

	switch len(args) {
	case 0:
		return h.runREPL()
	case 1:
		return h.runFile(args[0])
	default:
		fmt.Fprint(os.Stderr, usage)
		return config.ExitUsage
	}
}

type hostFlags struct {
	trace       bool
	disassemble bool
}

// splitFlags removes the host-wide flags from argv, wherever they appear.
func splitFlags(argv []string) ([]string, string, hostFlags, error) {
	var (
		rest       []string
		configPath string
		flags      hostFlags
	)
	for i := 0; i < len(argv); i++ {
		switch arg := argv[i]; {
		case arg == "--trace" || arg == "-trace":
			flags.trace = true
		case arg == "--disassemble" || arg == "-disassemble":
			flags.disassemble = true
		case arg == "--config" || arg == "-config":
			if i+1 >= len(argv) {
				return nil, "", flags, fmt.Errorf("%s requires a path", arg)
			}
			i++
			configPath = argv[i]
		case strings.HasPrefix(arg, "--config="):
			configPath = strings.TrimPrefix(arg, "--config=")
		default:
			rest = append(rest, arg)
		}
	}
	return rest, configPath, flags, nil
}

// loadConfig reads the explicit path, or the nearest loxvm.yaml above the
// working directory, or falls back to the defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	found, err := config.Find(".")
	if err != nil {
		return nil, err
	}
	if found == "" {
		return config.Default(), nil
	}
	return config.Load(found)
}

func newLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	logger.SetLevel(cfg.Level())
	return logger
}

// newMachine creates a VM wired to the process streams and configured
// debug output.
func (h *host) newMachine() *vm.VM {
	machine := vm.New()
	machine.SetLogger(h.logger)
	machine.SetContext(h.ctx)
	if h.cfg.Trace {
		machine.SetTrace(h.traceOut)
	}
	if h.cfg.Disassemble {
		machine.SetDisassembly(os.Stdout)
	}
	return machine
}

func (h *host) handleHelp() (int, bool) {
	if len(h.args) == 0 {
		return 0, false
	}
	switch h.args[0] {
	case "-h", "-help", "--help":
		fmt.Print(usage)
		return config.ExitOK, true
	}
	return 0, false
}

// handleCompile compiles a source file to a bytecode image (.loxc file)
func (h *host) handleCompile() (int, bool) {
	if len(h.args) == 0 || (h.args[0] != "-c" && h.args[0] != "--compile") {
		return 0, false
	}
	if len(h.args) != 2 {
		fmt.Fprint(os.Stderr, usage)
		return config.ExitUsage, true
	}
	sourcePath := h.args[1]

	source, err := os.ReadFile(sourcePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Could not open file %q.\n", sourcePath)
		return config.ExitIOError, true
	}

	compiler := vm.NewCompiler()
	compiler.SetDiagnostics(os.Stderr)
	compiler.SetLogger(h.logger.WithField("file", sourcePath))
	if h.cfg.Disassemble {
		compiler.SetDisassembly(os.Stdout)
	}
	chunk, err := compiler.Compile(string(source))
	if err != nil {
		return config.ExitCompileError, true
	}

	data, err := vm.MarshalImage(chunk, sourcePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Serialization error: %s\n", err)
		return config.ExitRuntimeError, true
	}

	outputPath := strings.TrimSuffix(sourcePath, filepath.Ext(sourcePath)) + config.BytecodeExt
	if err := os.WriteFile(outputPath, data, 0644); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing bytecode file: %s\n", err)
		return config.ExitIOError, true
	}

	fmt.Printf("Compiled %s -> %s\n", sourcePath, outputPath)
	fmt.Printf("Bytecode size: %d bytes\n", len(data))
	return config.ExitOK, true
}

// handleRunCompiled runs a pre-compiled .loxc bytecode image
func (h *host) handleRunCompiled() (int, bool) {
	if len(h.args) == 0 || (h.args[0] != "-r" && h.args[0] != "--run") {
		return 0, false
	}
	if len(h.args) != 2 {
		fmt.Fprint(os.Stderr, usage)
		return config.ExitUsage, true
	}
	imagePath := h.args[1]

	data, err := os.ReadFile(imagePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Could not open file %q.\n", imagePath)
		return config.ExitIOError, true
	}

	img, err := vm.UnmarshalImage(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid bytecode image %s: %s\n", imagePath, err)
		return config.ExitCompileError, true
	}

	machine := h.newMachine()
	if h.cfg.Disassemble {
		name := img.SourceFile
		if name == "" {
			name = imagePath
		}
		fmt.Print(vm.Disassemble(img.Chunk, name))
	}
	if result, _ := machine.Run(img.Chunk); result != vm.InterpretOK {
		return config.ExitRuntimeError, true
	}
	return config.ExitOK, true
}

// handleServe starts the Eval gRPC service and blocks until interrupted
func (h *host) handleServe() (int, bool) {
	if len(h.args) == 0 || (h.args[0] != "-s" && h.args[0] != "--serve") {
		return 0, false
	}
	if len(h.args) > 2 {
		fmt.Fprint(os.Stderr, usage)
		return config.ExitUsage, true
	}
	addr := h.cfg.Server.Addr
	if len(h.args) == 2 {
		addr = h.args[1]
	}

	schema, err := server.LoadSchema()
	if err != nil {
		h.logger.WithError(err).Error("failed to load service schema")
		return config.ExitRuntimeError, true
	}
	srv := server.New(schema, h.logger)
	srv.SetTrace(h.cfg.Trace)

	if err := server.ListenAndServe(h.ctx, addr, srv); err != nil {
		h.logger.WithError(err).WithField("addr", addr).Error("eval server failed")
		return config.ExitIOError, true
	}
	h.logger.WithField("sessions", srv.SessionCount()).Info("eval server stopped")
	return config.ExitOK, true
}

func (h *host) runFile(path string) int {
	source, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Could not open file %q.\n", path)
		return config.ExitIOError
	}

	machine := h.newMachine()
	switch result, _ := machine.Interpret(string(source)); result {
	case vm.InterpretCompileError:
		return config.ExitCompileError
	case vm.InterpretRuntimeError:
		return config.ExitRuntimeError
	}
	return config.ExitOK
}

func (h *host) runREPL() int {
	machine := h.newMachine()
	// The prompt handles its own interrupts; cancellation only ends the loop.
	machine.SetContext(nil)

	opts := repl.Options{
		HistoryLimit: h.cfg.History.Limit,
		Log:          h.logger.WithField("session", machine.ID()),
	}
	if h.cfg.History.Path != "" {
		store, err := history.Open(h.ctx, h.cfg.History.Path)
		if err != nil {
			h.logger.WithError(err).Warn("history disabled")
		} else {
			defer store.Close()
			opts.History = store
		}
	}

	if err := repl.Run(h.ctx, machine, opts); err != nil && h.ctx.Err() == nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		return config.ExitIOError
	}
	return config.ExitOK
}
