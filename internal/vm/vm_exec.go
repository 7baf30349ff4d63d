package vm

import "fmt"

// run is the fetch-decode-dispatch loop. It returns nil on OP_RETURN.
func (vm *VM) run() error {
	// Instruction counter for periodic context checks
	opsSinceCheck := 0

	for {
		opsSinceCheck++
		if opsSinceCheck >= checkInterval {
			opsSinceCheck = 0
			if vm.ctx != nil {
				select {
				case <-vm.ctx.Done():
					err := vm.runtimeError("Execution interrupted.")
					err.Cause = vm.ctx.Err()
					return err
				default:
				}
			}
		}

		if vm.trace != nil {
			vm.traceInstruction()
		}

		if vm.ip >= len(vm.chunk.Code) {
			return vm.runtimeError("Unexpected end of bytecode.")
		}
		ins := vm.chunk.Code[vm.ip]
		vm.ip++

		switch ins.Op {
		case OP_RETURN:
			return nil

		case OP_CONSTANT:
			vm.push(vm.chunk.Constants[ins.Operand])

		case OP_NIL:
			vm.push(NilVal())

		case OP_TRUE:
			vm.push(BoolVal(true))

		case OP_FALSE:
			vm.push(BoolVal(false))

		case OP_POP:
			vm.pop()

		case OP_GET_LOCAL:
			slot := int(ins.Operand)
			if slot >= len(vm.stack) {
				return vm.runtimeError("Invalid local slot %d.", slot)
			}
			vm.push(vm.stack[slot])

		case OP_SET_LOCAL:
			slot := int(ins.Operand)
			if slot >= len(vm.stack) {
				return vm.runtimeError("Invalid local slot %d.", slot)
			}
			// Assignment is an expression; the value stays on the stack.
			vm.stack[slot] = vm.peek(0)

		case OP_GET_GLOBAL:
			name := vm.readName(ins)
			value, ok := vm.globals.Get(name)
			if !ok {
				return vm.runtimeError("Undefined variable '%s'.", name)
			}
			vm.push(value)

		case OP_DEFINE_GLOBAL:
			vm.globals.Define(vm.readName(ins), vm.peek(0))
			vm.pop()

		case OP_SET_GLOBAL:
			name := vm.readName(ins)
			if !vm.globals.Set(name, vm.peek(0)) {
				return vm.runtimeError("Undefined variable '%s'.", name)
			}

		case OP_EQUAL:
			b := vm.pop()
			a := vm.pop()
			vm.push(BoolVal(a.Equals(b)))

		case OP_GREATER, OP_LESS, OP_SUBTRACT, OP_MULTIPLY, OP_DIVIDE:
			if err := vm.binaryOp(ins.Op); err != nil {
				return err
			}

		case OP_ADD:
			if err := vm.addOp(); err != nil {
				return err
			}

		case OP_NOT:
			vm.push(BoolVal(vm.pop().IsFalsey()))

		case OP_NEGATE:
			if !vm.peek(0).IsNumber() {
				return vm.runtimeError("Operand must be a number.")
			}
			vm.push(NumberVal(-vm.pop().AsNumber()))

		case OP_PRINT:
			fmt.Fprintln(vm.out, vm.pop().Inspect())

		case OP_JUMP:
			vm.ip += int(ins.Operand)

		case OP_JUMP_IF_FALSE:
			// The condition stays on the stack; the statement pops it.
			if vm.peek(0).IsFalsey() {
				vm.ip += int(ins.Operand)
			}

		case OP_LOOP:
			vm.ip -= int(ins.Operand)

		default:
			return vm.runtimeError("Unknown opcode %d.", ins.Op)
		}
	}
}

// readName returns the global name an instruction's operand refers to
func (vm *VM) readName(ins Instruction) string {
	return vm.chunk.Constants[ins.Operand].AsString()
}
