// Package consoleio implements the line-oriented operator console every
// server binary exposes on stdin, per spec.md §6: help, exit, dlog,
// dlog_file, dlog_std, plus whatever server-specific commands the owning
// binary registers (update_firmware, rlua on the crafting server).
package consoleio

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
)

var errExit = errors.New("consoleio: exit")

// CommandFunc handles one console command's argument list.
type CommandFunc func(args []string) error

// Console reads commands from in, one per line, and writes prompts and
// command output to out. It owns the process's log output: RegisterSubsystem
// hands back a *slog.Logger per named subsystem, all funneled through the
// same switchable writer dlog_file/dlog_std control.
type Console struct {
	in     *bufio.Reader
	out    io.Writer
	prompt bool
	writer *switchWriter
	levels map[string]*slog.LevelVar

	extra map[string]CommandFunc
	order []string
}

// New builds a Console over in/out and the root "" subsystem logger, which
// every binary uses for its top-level messages. When in is an interactive
// terminal (checked with isatty, not just "is this *os.File"), Run prints a
// "> " prompt before each read; piped input runs silently.
func New(in io.Reader, out io.Writer) (*Console, *slog.Logger) {
	c := &Console{
		in:     bufio.NewReader(in),
		out:    out,
		prompt: interactive(in),
		writer: newSwitchWriter(),
		levels: make(map[string]*slog.LevelVar),
		extra:  make(map[string]CommandFunc),
	}
	rootLogger, _ := c.RegisterSubsystem("")
	return c, rootLogger
}

// interactive reports whether in is a terminal go-isatty recognizes, so Run
// knows whether to print a prompt.
func interactive(in io.Reader) bool {
	f, ok := in.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// RegisterSubsystem creates (or returns the existing) named logger, backed
// by its own level and the console's shared, redirectable writer. name ""
// is the root subsystem built by New.
func (c *Console) RegisterSubsystem(name string) (*slog.Logger, *slog.LevelVar) {
	if lv, ok := c.levels[name]; ok {
		return c.loggerFor(name, lv), lv
	}
	lv := &slog.LevelVar{}
	lv.Set(slog.LevelInfo)
	c.levels[name] = lv
	return c.loggerFor(name, lv), lv
}

func (c *Console) loggerFor(name string, lv *slog.LevelVar) *slog.Logger {
	h := slog.NewTextHandler(c.writer, &slog.HandlerOptions{Level: lv})
	log := slog.New(h)
	if name != "" {
		log = log.With("subsystem", name)
	}
	return log
}

// Register adds a server-specific command (update_firmware, rlua, ...).
func (c *Console) Register(name string, fn CommandFunc) {
	if _, ok := c.extra[name]; !ok {
		c.order = append(c.order, name)
	}
	c.extra[name] = fn
}

// Run reads and dispatches commands until exit, EOF, or ctx cancellation.
func (c *Console) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if c.prompt {
			fmt.Fprint(c.out, "> ")
		}
		line, err := c.in.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("consoleio: reading command: %w", err)
		}
		if err := c.dispatch(strings.TrimSpace(line)); err != nil {
			if errors.Is(err, errExit) {
				return nil
			}
			fmt.Fprintln(c.out, "error:", err)
		}
	}
}

func (c *Console) dispatch(line string) error {
	if line == "" {
		return nil
	}
	fields := strings.Fields(line)
	name, args := fields[0], fields[1:]
	switch name {
	case "help":
		c.printHelp()
		return nil
	case "exit":
		return errExit
	case "dlog":
		return c.cmdDlog(args)
	case "dlog_file":
		return c.cmdDlogFile(args)
	case "dlog_std":
		return c.cmdDlogStd(args)
	}
	if fn, ok := c.extra[name]; ok {
		return fn(args)
	}
	fmt.Fprintf(c.out, "unknown command %q (try help)\n", name)
	return nil
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.out, "help                    show this message")
	fmt.Fprintln(c.out, "exit                    stop the server")
	fmt.Fprintln(c.out, "dlog [subsys] 0|1       toggle debug logging, optionally for one subsystem")
	fmt.Fprintln(c.out, "dlog_file <path>        also write logs to path")
	fmt.Fprintln(c.out, "dlog_std 0|1            toggle stderr logging")
	names := append([]string(nil), c.order...)
	sort.Strings(names)
	for _, n := range names {
		fmt.Fprintln(c.out, n)
	}
}

// cmdDlog handles "dlog 0|1" (root subsystem) and "dlog <subsys> 0|1".
func (c *Console) cmdDlog(args []string) error {
	subsys, flag := "", ""
	switch len(args) {
	case 1:
		flag = args[0]
	case 2:
		subsys, flag = args[0], args[1]
	default:
		return fmt.Errorf("usage: dlog [subsys] 0|1")
	}
	lv, ok := c.levels[subsys]
	if !ok {
		return fmt.Errorf("unknown subsystem %q", subsys)
	}
	on, err := strconv.ParseBool(flag)
	if err != nil {
		return fmt.Errorf("dlog: expected 0 or 1, got %q", flag)
	}
	if on {
		lv.Set(slog.LevelDebug)
	} else {
		lv.Set(slog.LevelInfo)
	}
	return nil
}

func (c *Console) cmdDlogFile(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: dlog_file <path>")
	}
	return c.writer.setFile(args[0])
}

func (c *Console) cmdDlogStd(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: dlog_std 0|1")
	}
	on, err := strconv.ParseBool(args[0])
	if err != nil {
		return fmt.Errorf("dlog_std: expected 0 or 1, got %q", args[0])
	}
	c.writer.setStd(on)
	return nil
}

// switchWriter fans log output out to stderr and, optionally, a file -
// both independently togglable at runtime by the console commands above.
type switchWriter struct {
	mu    sync.Mutex
	toStd bool
	file  *os.File
}

func newSwitchWriter() *switchWriter {
	return &switchWriter{toStd: true}
}

func (w *switchWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.toStd {
		_, _ = os.Stderr.Write(p)
	}
	if w.file != nil {
		_, _ = w.file.Write(p)
	}
	return len(p), nil
}

func (w *switchWriter) setStd(on bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.toStd = on
}

func (w *switchWriter) setFile(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("consoleio: opening log file: %w", err)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file != nil {
		_ = w.file.Close()
	}
	w.file = f
	return nil
}
