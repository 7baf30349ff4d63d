// Package loxvm is the embedding API: it lets Go programs run scripts,
// exchange global variables with them and execute compiled images.
package loxvm

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/funvibe/loxvm/internal/vm"
)

// VM wraps the underlying VM and provides a high-level embedding API.
// Like the VM it wraps, it must not be used from several goroutines at once.
type VM struct {
	machine    *vm.VM
	marshaller *Marshaller
	diag       bytes.Buffer
}

// New creates a new VM instance. Script output goes to os.Stdout.
func New() *VM {
	v := &VM{
		machine:    vm.New(),
		marshaller: NewMarshaller(),
	}
	v.machine.SetErrorOutput(&v.diag)
	return v
}

// SetOutput redirects the output of print statements.
func (v *VM) SetOutput(w io.Writer) {
	v.machine.SetOutput(w)
}

// Set defines a global variable, replacing any previous value.
func (v *VM) Set(name string, val interface{}) error {
	value, err := v.marshaller.ToValue(val)
	if err != nil {
		return fmt.Errorf("set %s: %w", name, err)
	}
	v.machine.Globals().Define(name, value)
	return nil
}

// Get retrieves a global variable from the VM.
func (v *VM) Get(name string) (interface{}, error) {
	value, ok := v.machine.Globals().Get(name)
	if !ok {
		return nil, fmt.Errorf("undefined variable '%s'", name)
	}
	return v.marshaller.FromValue(value, nil)
}

// GetInto retrieves a global variable and stores it into ptr.
func (v *VM) GetInto(name string, ptr interface{}) error {
	value, ok := v.machine.Globals().Get(name)
	if !ok {
		return fmt.Errorf("undefined variable '%s'", name)
	}
	if err := v.marshaller.Unmarshal(value, ptr); err != nil {
		return fmt.Errorf("get %s: %w", name, err)
	}
	return nil
}

// Globals returns a copy of every global variable as Go values.
func (v *VM) Globals() map[string]interface{} {
	result := make(map[string]interface{}, v.machine.Globals().Len())
	v.machine.Globals().Snapshot().Range(func(name string, value vm.Value) bool {
		result[name], _ = v.marshaller.FromValue(value, nil)
		return true
	})
	return result
}

// Names returns the global variable names, sorted.
func (v *VM) Names() []string {
	return v.machine.Globals().Snapshot().Keys()
}

// Eval compiles and executes source. Globals persist between calls.
// Compile failures are reported as one aggregated error; CompileErrors
// splits it. Runtime failures are a *RuntimeError.
func (v *VM) Eval(source string) error {
	v.diag.Reset()
	_, err := v.machine.Interpret(source)
	return err
}

// Compile compiles source into a bytecode image without running it.
func Compile(source, name string) ([]byte, error) {
	chunk, err := vm.Compile(source)
	if err != nil {
		return nil, err
	}
	return vm.MarshalImage(chunk, name)
}

// RunImage executes a bytecode image produced by Compile.
func (v *VM) RunImage(data []byte) error {
	img, err := vm.UnmarshalImage(data)
	if err != nil {
		return err
	}
	v.diag.Reset()
	_, err = v.machine.Run(img.Chunk)
	return err
}

// LoadFile reads and executes a script file.
func (v *VM) LoadFile(path string) error {
	source, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("could not open file %q: %w", path, err)
	}
	return v.Eval(string(source))
}

// CompileError is one compiler diagnostic.
type CompileError = vm.CompileError

// RuntimeError is the error returned when a script fails at run time.
type RuntimeError = vm.RuntimeError

// CompileErrors splits an error returned by Eval or Compile into its
// individual diagnostics.
func CompileErrors(err error) []*CompileError {
	return vm.CompileErrors(err)
}

// Diagnostics returns what the last Eval or RunImage reported, formatted the
// way the command line prints it.
func (v *VM) Diagnostics() string {
	return v.diag.String()
}
