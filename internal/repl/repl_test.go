package repl

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/funvibe/loxvm/internal/history"
	"github.com/funvibe/loxvm/internal/vm"
)

func runREPL(t *testing.T, input string, opts Options) (string, string) {
	t.Helper()
	var out, errOut bytes.Buffer
	opts.In = strings.NewReader(input)
	opts.Out = &out
	opts.Err = &errOut

	if err := Run(context.Background(), vm.New(), opts); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	return out.String(), errOut.String()
}

func TestREPL_GlobalsPersistBetweenLines(t *testing.T) {
	out, errOut := runREPL(t, "var a = 1;\na = a + 1;\nprint a;\n", Options{})

	if want := "> > > 2\n> \n"; out != want {
		t.Errorf("output: got %q, want %q", out, want)
	}
	if errOut != "" {
		t.Errorf("unexpected diagnostics: %q", errOut)
	}
}

func TestREPL_ErrorsDoNotStopTheLoop(t *testing.T) {
	input := "print;\nprint missing;\nprint \"still here\";\n"
	out, errOut := runREPL(t, input, Options{})

	if !strings.Contains(out, "still here\n") {
		t.Errorf("loop stopped after an error: %q", out)
	}
	wantErr := "[line 1] Error at ';': Expect expression.\n" +
		"Undefined variable 'missing'.\n[line 1] in script\n"
	if errOut != wantErr {
		t.Errorf("diagnostics:\ngot:\n%s\nwant:\n%s", errOut, wantErr)
	}
}

func TestREPL_Commands(t *testing.T) {
	input := "var b = \"two\";\nvar a = 1;\n:globals\n:quit\nprint \"unreached\";\n"
	out, _ := runREPL(t, input, Options{})

	if !strings.Contains(out, "a = 1\nb = two\n") {
		t.Errorf(":globals output missing or unsorted: %q", out)
	}
	if strings.Contains(out, "unreached") {
		t.Error("input after :quit was executed")
	}
}

func TestREPL_BlankLinesIgnored(t *testing.T) {
	out, errOut := runREPL(t, "\n   \nprint 3;\n", Options{})
	if out != "> > > 3\n> \n" {
		t.Errorf("output: got %q", out)
	}
	if errOut != "" {
		t.Errorf("diagnostics: %q", errOut)
	}
}

func TestREPL_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	err := Run(ctx, vm.New(), Options{In: strings.NewReader("print 1;\n"), Out: &out, Err: &out})
	if err != context.Canceled {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if out.Len() != 0 {
		t.Errorf("nothing should run, got %q", out.String())
	}
}

func TestREPL_RecordsHistory(t *testing.T) {
	ctx := context.Background()
	store, err := history.Open(ctx, filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("history.Open failed: %v", err)
	}
	defer store.Close()

	machine := vm.New()
	var out bytes.Buffer
	opts := Options{
		In:           strings.NewReader("var x = 1;\n\n:globals\nprint x;\n"),
		Out:          &out,
		Err:          &out,
		History:      store,
		HistoryLimit: 10,
	}
	if err := Run(ctx, machine, opts); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	lines, err := store.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	want := []string{"var x = 1;", "print x;"}
	if len(lines) != len(want) {
		t.Fatalf("history = %v, want %v", lines, want)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("history[%d] = %q, want %q", i, lines[i], want[i])
		}
	}
	if n, _ := store.Count(ctx, machine.ID()); n != 2 {
		t.Errorf("entries for session %s = %d, want 2", machine.ID(), n)
	}
}

func TestPrintGlobals_Empty(t *testing.T) {
	var out bytes.Buffer
	PrintGlobals(&out, vm.NewGlobals())
	if out.Len() != 0 {
		t.Errorf("got %q", out.String())
	}
}

func TestREPL_LogsHistorySource(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.db")
	store, err := history.Open(ctx, path)
	if err != nil {
		t.Fatalf("history.Open failed: %v", err)
	}
	defer store.Close()
	if err := store.Append(ctx, "earlier", "print 1;"); err != nil {
		t.Fatal(err)
	}

	var logs bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&logs)
	logger.SetLevel(logrus.DebugLevel)

	runREPL(t, "", Options{History: store, HistoryLimit: 10, Log: logrus.NewEntry(logger)})

	got := logs.String()
	if !strings.Contains(got, "history loaded") || !strings.Contains(got, path) || !strings.Contains(got, "entries=1") {
		t.Errorf("history log line missing path or count:\n%s", got)
	}
}
