package vm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var errStackUnderflow = errors.New("stack underflow")

// InitialStackSize is the operand stack capacity reserved up front
const InitialStackSize = 256

// checkInterval is how many instructions run between cancellation checks
const checkInterval = 1000

// InterpretResult is the outcome of one Interpret or Run call
type InterpretResult int

const (
	InterpretOK InterpretResult = iota
	InterpretCompileError
	InterpretRuntimeError
)

func (r InterpretResult) String() string {
	switch r {
	case InterpretOK:
		return "ok"
	case InterpretCompileError:
		return "compile_error"
	case InterpretRuntimeError:
		return "runtime_error"
	default:
		return "unknown"
	}
}

// VM is the virtual machine that executes bytecode. It is single-threaded:
// callers sharing a VM across goroutines must serialize access.
type VM struct {
	chunk *Chunk
	ip    int // Index of the next instruction to execute

	stack []Value

	// Globals persist across Interpret calls, so a REPL session sees
	// variables defined on earlier lines.
	globals *Globals

	// Context for cancellation, checked every checkInterval instructions
	ctx context.Context

	out         io.Writer // print output (defaults to os.Stdout)
	errOut      io.Writer // compile and runtime diagnostics (defaults to os.Stderr)
	trace       io.Writer // per-instruction trace, nil when disabled
	disassembly io.Writer // chunk listing after each compile, nil when disabled

	id  string
	log *logrus.Entry
}

// New creates a VM with an empty global table
func New() *VM {
	id := uuid.NewString()
	return &VM{
		stack:   make([]Value, 0, InitialStackSize),
		globals: NewGlobals(),
		out:     os.Stdout,
		errOut:  os.Stderr,
		id:      id,
		log:     logrus.StandardLogger().WithField("session", id),
	}
}

// SetOutput sets the writer for print statements
func (vm *VM) SetOutput(w io.Writer) {
	vm.out = w
}

// SetErrorOutput sets the writer for compile and runtime diagnostics
func (vm *VM) SetErrorOutput(w io.Writer) {
	vm.errOut = w
}

// SetTrace enables the execution trace; nil disables it
func (vm *VM) SetTrace(w io.Writer) {
	vm.trace = w
}

// SetDisassembly enables printing each compiled chunk; nil disables it
func (vm *VM) SetDisassembly(w io.Writer) {
	vm.disassembly = w
}

// SetContext sets the context for cancellation; nil disables the check
func (vm *VM) SetContext(ctx context.Context) {
	vm.ctx = ctx
}

// SetLogger sets the logger used for operational messages
func (vm *VM) SetLogger(logger *logrus.Logger) {
	vm.log = logger.WithField("session", vm.id)
}

// ID returns the session identifier used in log entries
func (vm *VM) ID() string {
	return vm.id
}

// Globals returns the global table
func (vm *VM) Globals() *Globals {
	return vm.globals
}

// StackDepth returns the number of values on the operand stack
func (vm *VM) StackDepth() int {
	return len(vm.stack)
}

// Interpret compiles source and runs it
func (vm *VM) Interpret(source string) (InterpretResult, error) {
	compiler := NewCompiler()
	compiler.SetDiagnostics(vm.errOut)
	compiler.SetDisassembly(vm.disassembly)
	compiler.SetLogger(vm.log)

	chunk, err := compiler.Compile(source)
	if err != nil {
		return InterpretCompileError, err
	}

	return vm.Run(chunk)
}

// Run executes an already compiled chunk. Runtime errors are reported to
// the error output and returned as *RuntimeError.
func (vm *VM) Run(chunk *Chunk) (result InterpretResult, err error) {
	// Every statement leaves the stack balanced, so leftovers can only come
	// from a malformed chunk. Locals of the next chunk must start at slot 0.
	if len(vm.stack) > 0 {
		vm.log.WithField("values", len(vm.stack)).Warn("discarding residual stack values")
		vm.stack = vm.stack[:0]
	}

	vm.chunk = chunk
	vm.ip = 0

	vm.log.WithFields(logrus.Fields{
		"instructions": chunk.Len(),
		"constants":    len(chunk.Constants),
	}).Debug("running chunk")

	defer func() {
		if r := recover(); r != nil {
			if r != errStackUnderflow {
				panic(r)
			}
			err = vm.runtimeError("Stack underflow.")
			fmt.Fprintln(vm.errOut, err.Error())
			result = InterpretRuntimeError
		}
	}()

	if err := vm.run(); err != nil {
		fmt.Fprintln(vm.errOut, err.Error())
		return InterpretRuntimeError, err
	}
	return InterpretOK, nil
}

// Stack operations
func (vm *VM) push(v Value) {
	vm.stack = append(vm.stack, v)
}

func (vm *VM) pop() Value {
	if len(vm.stack) == 0 {
		panic(errStackUnderflow)
	}
	v := vm.stack[len(vm.stack)-1]
	vm.stack = vm.stack[:len(vm.stack)-1]
	return v
}

func (vm *VM) peek(distance int) Value {
	idx := len(vm.stack) - 1 - distance
	if idx < 0 {
		panic(errStackUnderflow)
	}
	return vm.stack[idx]
}

// runtimeError builds the error for the instruction being executed and
// clears the stack. The returned error keeps a copy of the stack as it was.
func (vm *VM) runtimeError(format string, args ...interface{}) *RuntimeError {
	err := &RuntimeError{
		Message: fmt.Sprintf(format, args...),
		Line:    vm.chunk.Line(vm.ip - 1),
		Stack:   append([]Value(nil), vm.stack...),
	}

	vm.stack = vm.stack[:0]
	return err
}

func (vm *VM) traceInstruction() {
	fmt.Fprintln(vm.trace, FormatStack(vm.stack))
	if vm.ip < len(vm.chunk.Code) {
		fmt.Fprintln(vm.trace, DisassembleInstruction(vm.chunk, vm.ip))
	}
}
