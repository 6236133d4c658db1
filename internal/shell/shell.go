// Package shell is an interactive query shell over a sensorlog store.
//
// On a terminal it runs a go-prompt REPL with completion of commands and
// table names. Otherwise it reads one command per line, which makes it
// usable from scripts and pipes.
package shell

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	prompt "github.com/c-bata/go-prompt"
	"golang.org/x/term"

	"github.com/xtxerr/sensorlog/internal/errors"
	"github.com/xtxerr/sensorlog/internal/logging"
	"github.com/xtxerr/sensorlog/internal/report"
	"github.com/xtxerr/sensorlog/internal/schema"
	"github.com/xtxerr/sensorlog/internal/store"
)

var log = logging.Component("shell")

// errExit ends the session.
var errExit = errors.New("exit")

// Querier is the part of store.Reader the shell uses.
type Querier interface {
	Tables(ctx context.Context) ([]string, error)
	Columns(ctx context.Context, table string) ([]store.Column, error)
	AllRows(ctx context.Context, table string) ([]store.Row, error)
	MostRecent(ctx context.Context, table string, count int) ([]store.Row, error)
	RangeByTime(ctx context.Context, table string, start, end int64, columns []string) ([]store.Row, error)
}

// Shell executes query commands against a store.
type Shell struct {
	q      Querier
	out    io.Writer
	window time.Duration
	now    func() time.Time
}

// New creates a shell writing results to out. window is the default span
// of the summary command.
func New(q Querier, out io.Writer, window time.Duration) *Shell {
	return &Shell{
		q:      q,
		out:    out,
		window: window,
		now:    time.Now,
	}
}

type command struct {
	name  string
	usage string
	help  string
	run   func(s *Shell, ctx context.Context, args []string) error
}

// commands is filled in init: several commands refer back to it.
var commands []command

func init() {
	commands = []command{
		{"tables", "tables", "list tables", (*Shell).tables},
		{"columns", "columns <table>", "list the columns of a table", (*Shell).columns},
		{"all", "all <table>", "print every row in insertion order", (*Shell).all},
		{"recent", "recent <table> <n>", "print the n newest rows", (*Shell).recent},
		{"range", "range <table> <start> <end> [col,...]", "print rows strictly between start and end", (*Shell).rangeRows},
		{"summary", "summary <table> [window]", "summarize channels over a window", (*Shell).summary},
		{"help", "help", "show this help", (*Shell).help},
		{"exit", "exit", "leave the shell", func(*Shell, context.Context, []string) error { return errExit }},
	}
}

func lookup(name string) (command, bool) {
	if name == "quit" {
		name = "exit"
	}
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

// Execute runs one command line. Blank lines and lines starting with #
// are ignored.
func (s *Shell) Execute(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
		return nil
	}

	cmd, ok := lookup(strings.ToLower(fields[0]))
	if !ok {
		return fmt.Errorf("unknown command %q (try help)", fields[0])
	}
	return cmd.run(s, ctx, fields[1:])
}

// Run reads commands from in until exit or end of input. When in is the
// process's terminal, an interactive prompt is used.
func (s *Shell) Run(ctx context.Context, in *os.File) error {
	if term.IsTerminal(int(in.Fd())) {
		return s.runPrompt(ctx)
	}
	return s.RunLines(ctx, in)
}

// RunLines executes one command per line of in. A failing command is
// reported and the next line is read.
func (s *Shell) RunLines(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := s.Execute(ctx, scanner.Text()); err != nil {
			if err == errExit {
				return nil
			}
			fmt.Fprintf(s.out, "error: %v\n", err)
		}
	}
	return scanner.Err()
}

func (s *Shell) runPrompt(ctx context.Context) error {
	done := false
	executor := func(line string) {
		err := s.Execute(ctx, line)
		switch {
		case err == errExit:
			done = true
		case err != nil:
			fmt.Fprintf(s.out, "error: %v\n", err)
		}
	}

	p := prompt.New(executor, s.completer(ctx),
		prompt.OptionPrefix("sensorlog> "),
		prompt.OptionTitle("sensorlog"),
		prompt.OptionSetExitCheckerOnInput(func(string, bool) bool { return done || ctx.Err() != nil }),
	)
	p.Run()

	log.Debug("shell closed")
	return nil
}

func (s *Shell) completer(ctx context.Context) prompt.Completer {
	return func(d prompt.Document) []prompt.Suggest {
		before := strings.Fields(d.TextBeforeCursor())
		word := d.GetWordBeforeCursor()

		// First word: command names.
		if len(before) == 0 || (len(before) == 1 && word != "") {
			out := make([]prompt.Suggest, 0, len(commands))
			for _, c := range commands {
				out = append(out, prompt.Suggest{Text: c.name, Description: c.help})
			}
			return prompt.FilterHasPrefix(out, word, true)
		}

		// Second word: table names.
		if len(before) == 1 || (len(before) == 2 && word != "") {
			tables, err := s.q.Tables(ctx)
			if err != nil {
				return nil
			}
			out := make([]prompt.Suggest, len(tables))
			for i, t := range tables {
				out[i] = prompt.Suggest{Text: t}
			}
			return prompt.FilterHasPrefix(out, word, true)
		}
		return nil
	}
}

// =============================================================================
// Commands
// =============================================================================

func (s *Shell) help(context.Context, []string) error {
	for _, c := range commands {
		fmt.Fprintf(s.out, "  %-40s %s\n", c.usage, c.help)
	}
	return nil
}

func (s *Shell) tables(ctx context.Context, _ []string) error {
	names, err := s.q.Tables(ctx)
	if err != nil {
		return err
	}
	for _, n := range names {
		fmt.Fprintln(s.out, n)
	}
	return nil
}

func (s *Shell) columns(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usage("columns")
	}
	cols, err := s.q.Columns(ctx, s.table(args[0]))
	if err != nil {
		return err
	}
	for _, c := range cols {
		fmt.Fprintf(s.out, "%s\t%s\n", c.Name, c.Type)
	}
	return nil
}

func (s *Shell) all(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usage("all")
	}
	table := s.table(args[0])
	names, err := s.columnNames(ctx, table)
	if err != nil {
		return err
	}
	rows, err := s.q.AllRows(ctx, table)
	if err != nil {
		return err
	}
	return report.RenderRows(s.out, names, rows)
}

func (s *Shell) recent(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return usage("recent")
	}
	n, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("count %q: %w", args[1], errors.ErrInvalidCount)
	}
	table := s.table(args[0])
	names, err := s.columnNames(ctx, table)
	if err != nil {
		return err
	}
	rows, err := s.q.MostRecent(ctx, table, n)
	if err != nil {
		return err
	}
	return report.RenderRows(s.out, names, rows)
}

func (s *Shell) rangeRows(ctx context.Context, args []string) error {
	if len(args) < 3 || len(args) > 4 {
		return usage("range")
	}
	table := s.table(args[0])
	start, err := ParseTime(args[1])
	if err != nil {
		return err
	}
	end, err := ParseTime(args[2])
	if err != nil {
		return err
	}

	var names []string
	if len(args) == 4 {
		names = strings.Split(args[3], ",")
	} else if names, err = s.columnNames(ctx, table); err != nil {
		return err
	}

	rows, err := s.q.RangeByTime(ctx, table, start, end, names)
	if err != nil {
		return err
	}
	return report.RenderRows(s.out, names, rows)
}

func (s *Shell) summary(ctx context.Context, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return usage("summary")
	}
	window := s.window
	if len(args) == 2 {
		d, err := time.ParseDuration(args[1])
		if err != nil {
			return fmt.Errorf("window %q: %w", args[1], err)
		}
		window = d
	}

	table := s.table(args[0])
	names, err := s.columnNames(ctx, table)
	if err != nil {
		return err
	}
	rep, err := report.Build(ctx, s.q, table, names[0], names[1:], window, s.now())
	if err != nil {
		return err
	}
	return report.RenderSummary(s.out, rep)
}

// table maps the DAILY alias to today's table.
func (s *Shell) table(name string) string {
	return schema.Resolve(name, s.now())
}

func (s *Shell) columnNames(ctx context.Context, table string) ([]string, error) {
	cols, err := s.q.Columns(ctx, table)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return names, nil
}

func usage(name string) error {
	c, _ := lookup(name)
	return fmt.Errorf("usage: %s", c.usage)
}

// ParseTime accepts unix seconds or an RFC 3339 timestamp.
func ParseTime(s string) (int64, error) {
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil {
		return ts, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return 0, fmt.Errorf("time %q: want unix seconds or RFC 3339: %w", s, errors.ErrInvalidRange)
	}
	return t.Unix(), nil
}
