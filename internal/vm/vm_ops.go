package vm

// binaryOp executes a numeric binary operator. Operands are checked before
// anything is popped.
func (vm *VM) binaryOp(op Opcode) error {
	if !vm.peek(0).IsNumber() || !vm.peek(1).IsNumber() {
		return vm.runtimeError("Operands must be numbers.")
	}

	b := vm.pop().AsNumber()
	a := vm.pop().AsNumber()

	switch op {
	case OP_GREATER:
		vm.push(BoolVal(a > b))
	case OP_LESS:
		vm.push(BoolVal(a < b))
	case OP_SUBTRACT:
		vm.push(NumberVal(a - b))
	case OP_MULTIPLY:
		vm.push(NumberVal(a * b))
	case OP_DIVIDE:
		// IEEE 754: division by zero yields an infinity or NaN
		vm.push(NumberVal(a / b))
	}
	return nil
}

// addOp adds two numbers or concatenates two strings. Mixed operands are
// an error.
func (vm *VM) addOp() error {
	b, a := vm.peek(0), vm.peek(1)

	switch {
	case a.IsNumber() && b.IsNumber():
		vm.pop()
		vm.pop()
		vm.push(NumberVal(a.AsNumber() + b.AsNumber()))
	case a.IsString() && b.IsString():
		vm.pop()
		vm.pop()
		vm.push(StringVal(a.AsString() + b.AsString()))
	default:
		return vm.runtimeError("Operands must be two numbers or two strings.")
	}
	return nil
}
