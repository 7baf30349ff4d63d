package vm

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// Bytecode image errors
var (
	ErrBadMagic           = errors.New("not a bytecode image")
	ErrUnsupportedVersion = errors.New("unsupported bytecode image version")
	ErrInvalidChunk       = errors.New("invalid chunk")
)

// CompileError is one diagnostic reported by the compiler.
type CompileError struct {
	Line    int
	Where   string // " at 'x'", " at end", or empty for scanner errors
	Message string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("[line %d] Error%s: %s", e.Line, e.Where, e.Message)
}

// RuntimeError aborts execution of the current chunk.
type RuntimeError struct {
	Message string
	Line    int

	// Stack is the operand stack at the moment of failure, bottom first.
	Stack []Value

	// Cause is the context error when execution was interrupted.
	Cause error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("%s\n[line %d] in script", e.Message, e.Line)
}

func (e *RuntimeError) Unwrap() error {
	return e.Cause
}

// CompileErrors unwraps the individual diagnostics from an error returned by
// Compile or Interpret.
func CompileErrors(err error) []*CompileError {
	var out []*CompileError
	var merr *multierror.Error
	if errors.As(err, &merr) {
		for _, e := range merr.WrappedErrors() {
			var ce *CompileError
			if errors.As(e, &ce) {
				out = append(out, ce)
			}
		}
		return out
	}
	var ce *CompileError
	if errors.As(err, &ce) {
		out = append(out, ce)
	}
	return out
}
