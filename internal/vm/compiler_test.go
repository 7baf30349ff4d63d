package vm

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
)

func compileExpectErrors(t *testing.T, input string) []*CompileError {
	t.Helper()
	chunk, err := Compile(input)
	if err == nil {
		t.Fatalf("expected compile error for %q", input)
	}
	if chunk != nil {
		t.Errorf("expected nil chunk on compile error for %q", input)
	}
	return CompileErrors(err)
}

func TestCompileErrorMessages(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"print 1", "[line 1] Error at end: Expect ';' after value."},
		{"print;", "[line 1] Error at ';': Expect expression."},
		{"1 + 2", "[line 1] Error at end: Expect ';' after expression."},
		{"(1 + 2;", "[line 1] Error at ';': Expect ')' after expression."},
		{"1 = 2;", "[line 1] Error at '=': Invalid assignment target."},
		{"var a; var b; a + b = 3;", "[line 1] Error at '=': Invalid assignment target."},
		{"var 1 = 2;", "[line 1] Error at '1': Expect variable name."},
		{"var a = 1", "[line 1] Error at end: Expect ';' after variable declaration."},
		{"{ var a = 1;", "[line 1] Error at end: Expect '}' after block."},
		{"{ var a = a; }", "[line 1] Error at 'a': Can't read local variable in its own initializer."},
		{"{ var a = 1; var a = 2; }", "[line 1] Error at 'a': Already a variable with this name in this scope."},
		{"if true print 1;", "[line 1] Error at 'true': Expect '(' after 'if'."},
		{"if (true print 1;", "[line 1] Error at 'print': Expect ')' after condition."},
		{"while 1", "[line 1] Error at '1': Expect '(' after 'while'."},
		{"for var i = 0;", "[line 1] Error at 'var': Expect '(' after 'for'."},
		{"for (var i = 0; i < 1 i = i + 1) {}", "[line 1] Error at 'i': Expect ';' after loop condition."},
		{"for (;; 1 {}", "[line 1] Error at '{': Expect ')' after for clauses."},
		{"print @;", "[line 1] Error: Unexpected character."},
		{`print "abc;`, "[line 1] Error: Unterminated string."},
		{"print 1;\nprint 2", "[line 2] Error at end: Expect ';' after value."},
	}

	for _, tt := range tests {
		errs := compileExpectErrors(t, tt.input)
		if len(errs) == 0 {
			t.Errorf("no diagnostics for %q", tt.input)
			continue
		}
		if got := errs[0].Error(); got != tt.expected {
			t.Errorf("input %q:\ngot:  %s\nwant: %s", tt.input, got, tt.expected)
		}
	}
}

func TestCompileErrorsReportedToDiagnostics(t *testing.T) {
	var diag bytes.Buffer
	compiler := NewCompiler()
	compiler.SetDiagnostics(&diag)

	if _, err := compiler.Compile("print;\nvar = 1;"); err == nil {
		t.Fatal("expected compile error")
	}

	want := "[line 1] Error at ';': Expect expression.\n" +
		"[line 2] Error at '=': Expect variable name.\n"
	if got := diag.String(); got != want {
		t.Errorf("diagnostics:\ngot:\n%s\nwant:\n%s", got, want)
	}
}

func TestPanicModeReportsOncePerStatement(t *testing.T) {
	tests := []struct {
		input string
		count int
	}{
		{"print 1 +;", 1},
		{"print @ @ @;", 1},
		{"print ; print ;", 2},
		{"var = 1; var = 2;", 2},
		{"1 +; var x = 1; print x", 2},
		{"{ print ; } print ;", 2},
	}

	for _, tt := range tests {
		errs := compileExpectErrors(t, tt.input)
		if len(errs) != tt.count {
			t.Errorf("input %q: got %d errors, want %d: %v", tt.input, len(errs), tt.count, errs)
		}
	}
}

func TestCompileErrorAggregate(t *testing.T) {
	_, err := Compile("print;\nprint;")
	if err == nil {
		t.Fatal("expected compile error")
	}
	want := "[line 1] Error at ';': Expect expression.\n[line 2] Error at ';': Expect expression."
	if err.Error() != want {
		t.Errorf("aggregate message:\ngot:\n%s\nwant:\n%s", err.Error(), want)
	}
}

func TestConstantPoolLimit(t *testing.T) {
	program := func(n int) string {
		var sb strings.Builder
		for i := 0; i < n; i++ {
			fmt.Fprintf(&sb, "print %d;\n", i)
		}
		return sb.String()
	}

	if _, err := Compile(program(MaxConstants)); err != nil {
		t.Fatalf("%d constants should compile: %v", MaxConstants, err)
	}

	errs := compileExpectErrors(t, program(MaxConstants+1))
	if len(errs) != 1 {
		t.Fatalf("expected 1 error, got %d", len(errs))
	}
	want := fmt.Sprintf("[line %d] Error at '%d': Too many constants in one chunk.", MaxConstants+1, MaxConstants)
	if errs[0].Error() != want {
		t.Errorf("got %s, want %s", errs[0].Error(), want)
	}
}

func TestGlobalNamesAreInterned(t *testing.T) {
	chunk, err := Compile("var a = 1; a = a + a; print a;")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	names := 0
	for _, c := range chunk.Constants {
		if c.IsString() && c.AsString() == "a" {
			names++
		}
	}
	if names != 1 {
		t.Errorf("name 'a' stored %d times in constants %v", names, chunk.Constants)
	}
}

func TestLocalSlotLimit(t *testing.T) {
	block := func(n int) string {
		var sb strings.Builder
		sb.WriteString("{\n")
		for i := 0; i < n; i++ {
			fmt.Fprintf(&sb, "var a%d;\n", i)
		}
		sb.WriteString("}\n")
		return sb.String()
	}

	if _, err := Compile(block(MaxLocals)); err != nil {
		t.Fatalf("%d locals should compile: %v", MaxLocals, err)
	}

	errs := compileExpectErrors(t, block(MaxLocals+1))
	if len(errs) != 1 {
		t.Fatalf("expected 1 error, got %d", len(errs))
	}
	if errs[0].Message != "Too many local variables in function." {
		t.Errorf("unexpected message: %s", errs[0].Error())
	}
	if want := fmt.Sprintf(" at 'a%d'", MaxLocals); errs[0].Where != want {
		t.Errorf("where: got %q, want %q", errs[0].Where, want)
	}
}

func TestJumpDistanceLimits(t *testing.T) {
	body := strings.Repeat("nil;", 33000)

	tests := []struct {
		input   string
		message string
	}{
		{"if (true) {" + body + "}", "Too much code to jump over."},
		{"while (true) {" + body + "}", "Loop body too large."},
		{"for (;;) {" + body + "}", "Loop body too large."},
	}

	for _, tt := range tests {
		errs := compileExpectErrors(t, tt.input)
		if len(errs) != 1 {
			t.Errorf("expected 1 error, got %d", len(errs))
			continue
		}
		if errs[0].Message != tt.message {
			t.Errorf("got %q, want %q", errs[0].Message, tt.message)
		}
	}
}

func TestJumpJustWithinLimit(t *testing.T) {
	// then-branch: POP + body + JUMP must fit in 0xffff.
	chunk, err := Compile("if (true) {" + strings.Repeat("nil;", 32000) + "}")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if err := chunk.Validate(); err != nil {
		t.Errorf("compiled chunk failed validation: %v", err)
	}
}

func TestCompiledChunksAlwaysValidate(t *testing.T) {
	programs := []string{
		"print 1 + 2 * 3;",
		"var a = 1; { var b = a; b = b + 1; print b; }",
		"for (var i = 0; i < 3; i = i + 1) { if (i == 1) print i; else print -i; }",
		"var s = \"x\"; while (s != \"xxx\") s = s + \"x\"; print s;",
		"print nil or false and true;",
	}

	for _, p := range programs {
		chunk, err := Compile(p)
		if err != nil {
			t.Fatalf("compile %q: %v", p, err)
		}
		if err := chunk.Validate(); err != nil {
			t.Errorf("validate %q: %v", p, err)
		}
		if chunk.Lines.Len() != chunk.Len() {
			t.Errorf("%q: line map covers %d of %d instructions", p, chunk.Lines.Len(), chunk.Len())
		}
		if last := chunk.Code[chunk.Len()-1].Op; last != OP_RETURN {
			t.Errorf("%q: last instruction is %s", p, last)
		}
	}
}

func TestComparisonLowering(t *testing.T) {
	tests := []struct {
		input    string
		expected []Opcode
	}{
		{"1 != 2;", []Opcode{OP_CONSTANT, OP_CONSTANT, OP_EQUAL, OP_NOT, OP_POP, OP_RETURN}},
		{"1 >= 2;", []Opcode{OP_CONSTANT, OP_CONSTANT, OP_LESS, OP_NOT, OP_POP, OP_RETURN}},
		{"1 <= 2;", []Opcode{OP_CONSTANT, OP_CONSTANT, OP_GREATER, OP_NOT, OP_POP, OP_RETURN}},
		{"-1;", []Opcode{OP_CONSTANT, OP_NEGATE, OP_POP, OP_RETURN}},
	}

	for _, tt := range tests {
		chunk, err := Compile(tt.input)
		if err != nil {
			t.Fatalf("compile %q: %v", tt.input, err)
		}
		if len(chunk.Code) != len(tt.expected) {
			t.Fatalf("%q: got %d instructions, want %d", tt.input, len(chunk.Code), len(tt.expected))
		}
		for i, op := range tt.expected {
			if chunk.Code[i].Op != op {
				t.Errorf("%q instruction %d: got %s, want %s", tt.input, i, chunk.Code[i].Op, op)
			}
		}
	}
}

func TestBlockPopsItsLocals(t *testing.T) {
	chunk, err := Compile("{ var a = 1; var b = 2; }")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	expected := []Opcode{OP_CONSTANT, OP_CONSTANT, OP_POP, OP_POP, OP_RETURN}
	if len(chunk.Code) != len(expected) {
		t.Fatalf("got %d instructions, want %d", len(chunk.Code), len(expected))
	}
	for i, op := range expected {
		if chunk.Code[i].Op != op {
			t.Errorf("instruction %d: got %s, want %s", i, chunk.Code[i].Op, op)
		}
	}
}

func TestCompilerReuse(t *testing.T) {
	compiler := NewCompiler()
	if _, err := compiler.Compile("print;"); err == nil {
		t.Fatal("expected compile error")
	}
	chunk, err := compiler.Compile("{ var a = 1; print a; }")
	if err != nil {
		t.Fatalf("second compile should start clean: %v", err)
	}
	if chunk.Code[1].Op != OP_GET_LOCAL || chunk.Code[1].Operand != 0 {
		t.Errorf("local slot not reset: %s %d", chunk.Code[1].Op, chunk.Code[1].Operand)
	}
}
