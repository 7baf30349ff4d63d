// Package repl implements the interactive read-eval-print loop on top of a
// single VM, so globals defined on one line stay visible on the next.
package repl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/peterh/liner"
	"github.com/sirupsen/logrus"

	"github.com/funvibe/loxvm/internal/config"
	"github.com/funvibe/loxvm/internal/history"
	"github.com/funvibe/loxvm/internal/vm"
)

// Options configures one REPL run. Zero values fall back to the process's
// standard streams and no persistent history.
type Options struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer

	// History, when set, receives every non-blank input line and seeds
	// the line editor with the HistoryLimit most recent ones.
	History      *history.Store
	HistoryLimit int

	Log *logrus.Entry
}

// lineReader is the source of input lines: liner on a terminal, a plain
// scanner otherwise.
type lineReader interface {
	ReadLine(prompt string) (string, error)
	AppendHistory(line string)
	Close() error
}

// Run reads lines until EOF, :quit, or ctx is cancelled, interpreting each
// one on machine. Compile and runtime errors are reported and the loop
// continues.
func Run(ctx context.Context, machine *vm.VM, opts Options) error {
	if opts.In == nil {
		opts.In = os.Stdin
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Err == nil {
		opts.Err = os.Stderr
	}
	if opts.Log == nil {
		opts.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	log := opts.Log.WithField("session", machine.ID())

	machine.SetOutput(opts.Out)
	machine.SetErrorOutput(opts.Err)

	var reader lineReader
	if f, ok := opts.In.(*os.File); ok && IsTerminal(f) {
		reader = newLinerReader()
	} else {
		reader = newScanReader(opts.In, opts.Out)
	}
	defer reader.Close()

	if opts.History != nil {
		hlog := log.WithField("history", opts.History.Path())
		lines, err := opts.History.Recent(ctx, opts.HistoryLimit)
		if err != nil {
			hlog.WithError(err).Warn("could not load history")
		} else {
			hlog.WithField("entries", len(lines)).Debug("history loaded")
		}
		for _, line := range lines {
			reader.AppendHistory(line)
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		line, err := reader.ReadLine(config.Prompt)
		if errors.Is(err, io.EOF) {
			fmt.Fprintln(opts.Out)
			return nil
		}
		if errors.Is(err, liner.ErrPromptAborted) {
			continue
		}
		if err != nil {
			return fmt.Errorf("reading input: %w", err)
		}

		switch strings.TrimSpace(line) {
		case "":
			continue
		case config.QuitCommand:
			return nil
		case config.GlobalsCommand:
			PrintGlobals(opts.Out, machine.Globals())
			continue
		}

		reader.AppendHistory(line)
		if opts.History != nil {
			if err := opts.History.Append(ctx, machine.ID(), line); err != nil {
				log.WithError(err).Warn("could not save history entry")
			}
		}

		// Diagnostics have already been written to opts.Err.
		result, _ := machine.Interpret(line)
		if result != vm.InterpretOK {
			log.WithField("result", result).Debug("line failed")
		}
	}
}

// PrintGlobals lists the globals in name order, one "name = value" per line.
func PrintGlobals(w io.Writer, globals *vm.Globals) {
	snap := globals.Snapshot()
	for _, name := range snap.Keys() {
		v, _ := snap.Get(name)
		fmt.Fprintf(w, "%s = %s\n", name, v.Inspect())
	}
}

// IsTerminal reports whether f is an interactive terminal.
func IsTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

type linerReader struct {
	state *liner.State
}

func newLinerReader() *linerReader {
	state := liner.NewLiner()
	state.SetCtrlCAborts(true)
	return &linerReader{state: state}
}

func (r *linerReader) ReadLine(prompt string) (string, error) {
	return r.state.Prompt(prompt)
}

func (r *linerReader) AppendHistory(line string) {
	r.state.AppendHistory(line)
}

func (r *linerReader) Close() error {
	return r.state.Close()
}

// scanReader reads piped input. The prompt is still written so transcripts
// look like an interactive session.
type scanReader struct {
	scanner *bufio.Scanner
	out     io.Writer
}

func newScanReader(in io.Reader, out io.Writer) *scanReader {
	return &scanReader{scanner: bufio.NewScanner(in), out: out}
}

func (r *scanReader) ReadLine(prompt string) (string, error) {
	fmt.Fprint(r.out, prompt)
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return r.scanner.Text(), nil
}

func (r *scanReader) AppendHistory(string) {}

func (r *scanReader) Close() error { return nil }
