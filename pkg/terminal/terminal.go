package terminal

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"

	"github.com/derekparker/trie"
	"github.com/go-delve/liner"
	colorable "github.com/mattn/go-colorable"
	isatty "github.com/mattn/go-isatty"

	"github.com/go-delve/pyexc/pkg/config"
	"github.com/go-delve/pyexc/pkg/logflags"
	"github.com/go-delve/pyexc/pkg/proc"
	"github.com/go-delve/pyexc/pkg/pyexc"
	"github.com/go-delve/pyexc/pkg/pyobj"
	"github.com/go-delve/pyexc/pkg/terminal/starbind"
)

const (
	historyFile                 string = ".pyexc_history"
	terminalHighlightEscapeCode string = "\033[%2dm"
	terminalResetEscapeCode     string = "\033[0m"

	ansiRed = 31
)

// Term represents the terminal running pyexc.
type Term struct {
	target      *proc.Target
	insp        *pyobj.Inspector
	conf        *config.Config
	prompt      string
	line        *liner.State
	cmds        *Commands
	dumb        bool
	stdout      *transcriptWriter
	stderr      io.Writer
	starlarkEnv *starbind.Env
	InitFile    string

	// MaxTracebackDepth and DetectCycles override the configuration file
	// when set from the command line.
	MaxTracebackDepth *int
	DetectCycles      bool

	cancelMu  sync.Mutex
	cmdCancel context.CancelFunc
}

// New returns a new Term inspecting target.
func New(target *proc.Target, conf *config.Config) *Term {
	if conf == nil {
		conf = &config.Config{}
	}
	cmds := DebugCommands()
	if conf.Aliases != nil {
		cmds.Merge(conf.Aliases)
	}

	dumb := strings.ToLower(os.Getenv("TERM")) == "dumb"
	var w, errw io.Writer = os.Stdout, os.Stderr
	if !dumb {
		w, errw = getColorableWriter()
	}

	t := &Term{
		target: target,
		insp:   pyobj.NewInspector(target, pyexc.NewRegistry()),
		conf:   conf,
		prompt: "(pyexc) ",
		cmds:   cmds,
		dumb:   dumb,
		stdout: &transcriptWriter{w: w},
		stderr: errw,
	}
	t.starlarkEnv = starbind.New(starlarkContext{t}, t.stdout)
	return t
}

func getColorableWriter() (stdout, stderr io.Writer) {
	if isatty.IsTerminal(os.Stdout.Fd()) {
		stdout = colorable.NewColorableStdout()
	} else {
		stdout = colorable.NewNonColorable(os.Stdout)
	}
	if isatty.IsTerminal(os.Stderr.Fd()) {
		stderr = colorable.NewColorableStderr()
	} else {
		stderr = colorable.NewNonColorable(os.Stderr)
	}
	return stdout, stderr
}

// Close returns the terminal to its previous mode and releases the target.
func (t *Term) Close() {
	if t.line != nil {
		t.line.Close()
	}
	t.stdout.CloseTranscript()
	if t.target != nil {
		t.target.Close()
	}
}

// Exec runs a single command. The command is told whether it was typed by
// a user.
func (t *Term) Exec(cmdstr string, fromTTY bool) error {
	return t.cmds.CallWithContext(cmdstr, t, callContext{ctx: context.Background(), fromTTY: fromTTY})
}

// commandContext returns the context for a command started from the
// prompt. It is cancelled on SIGINT.
func (t *Term) commandContext() (context.Context, func()) {
	ctx, cancel := context.WithCancel(context.Background())
	t.cancelMu.Lock()
	t.cmdCancel = cancel
	t.cancelMu.Unlock()
	return ctx, func() {
		t.cancelMu.Lock()
		t.cmdCancel = nil
		t.cancelMu.Unlock()
		cancel()
	}
}

func (t *Term) sigintGuard(ch <-chan os.Signal) {
	for range ch {
		t.cancelMu.Lock()
		cancel := t.cmdCancel
		t.cancelMu.Unlock()
		t.starlarkEnv.Cancel()
		if cancel != nil {
			fmt.Fprintln(t.stdout, "received SIGINT, stopping command")
			cancel()
		}
	}
}

// Run begins running pyexc in the terminal.
func (t *Term) Run() (int, error) {
	defer t.Close()

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT)
	defer signal.Stop(ch)
	go t.sigintGuard(ch)

	t.line = liner.NewLiner()
	t.line.SetCtrlCAborts(true)
	t.line.SetCompleter(t.complete)

	fullHistoryFile, err := config.GetConfigFilePath(historyFile)
	if err != nil {
		fmt.Fprintf(t.stderr, "Unable to load history file: %v.", err)
	}
	if f, err := os.Open(fullHistoryFile); err == nil {
		t.line.ReadHistory(f)
		f.Close()
	}

	fmt.Fprintln(t.stdout, "Type 'help' for list of commands.")

	if t.InitFile != "" {
		if err := t.sourceFile(t.InitFile); err != nil {
			if _, ok := err.(ExitRequestError); ok {
				return t.handleExit()
			}
			fmt.Fprintf(t.stderr, "Error executing init file: %s\n", err)
		}
	}

	for {
		cmdstr, err := t.promptForInput()
		if err != nil {
			if err == io.EOF {
				fmt.Fprintln(t.stdout, "exit")
				return t.handleExit()
			}
			if err == liner.ErrPromptAborted {
				continue
			}
			return 1, fmt.Errorf("prompt for input failed: %v", err)
		}

		if t.runCommand(cmdstr) {
			return t.handleExit()
		}
	}
}

// runCommand runs a command typed at the prompt and prints its failure.
// It returns true if the command asked to exit.
func (t *Term) runCommand(cmdstr string) bool {
	ctx, done := t.commandContext()
	err := t.cmds.CallWithContext(cmdstr, t, callContext{ctx: ctx, fromTTY: true})
	done()
	t.stdout.Flush()
	if err != nil {
		if _, ok := err.(ExitRequestError); ok {
			return true
		}
		t.printError(err)
	}
	return false
}

// complete completes the command name at the start of line, or the
// argument of commands that take a command name.
func (t *Term) complete(line string) []string {
	tr := trie.New()
	word := line
	if i := strings.Index(line, " "); i >= 0 {
		word = strings.TrimLeft(line[i+1:], " ")
		for _, name := range t.cmds.completions(line[:i]) {
			tr.Add(name, nil)
		}
	} else {
		for _, cmd := range t.cmds.cmds {
			for _, alias := range cmd.aliases {
				tr.Add(alias, nil)
			}
		}
	}
	c := tr.PrefixSearch(strings.ToLower(word))
	sort.Strings(c)
	prefix := line[:len(line)-len(word)]
	for i := range c {
		c[i] = prefix + c[i]
	}
	logflags.TerminalLogger().Debugf("completions for %q: %v", line, c)
	return c
}

func (t *Term) printError(err error) {
	msg := fmt.Sprintf("Command failed: %s", err)
	if !t.dumb {
		msg = fmt.Sprintf(terminalHighlightEscapeCode, ansiRed) + msg + terminalResetEscapeCode
	}
	fmt.Fprintln(t.stderr, msg)
}

func (t *Term) promptForInput() (string, error) {
	l, err := t.line.Prompt(t.prompt)
	if err != nil {
		return "", err
	}

	l = strings.TrimSuffix(l, "\n")
	if l != "" {
		t.line.AppendHistory(l)
	}
	t.stdout.Echo(t.prompt + l + "\n")

	return l, nil
}

// sourceFile runs path as a Starlark script if its extension is .star and
// as a list of commands otherwise.
func (t *Term) sourceFile(path string) error {
	if filepath.Ext(path) == ".star" {
		_, err := t.starlarkEnv.Execute(path, nil, "main", nil)
		return err
	}
	return t.cmds.executeFile(t, path)
}

func (t *Term) handleExit() (int, error) {
	fullHistoryFile, err := config.GetConfigFilePath(historyFile)
	if err != nil {
		fmt.Fprintln(t.stderr, "Error saving history file:", err)
		return 0, nil
	}
	f, err := os.OpenFile(fullHistoryFile, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		fmt.Fprintln(t.stderr, "Error saving history file:", err)
		return 0, nil
	}
	defer f.Close()
	if _, err := t.line.WriteHistory(f); err != nil {
		fmt.Fprintln(t.stderr, "readline history error:", err)
	}
	return 0, nil
}

// excConfig returns the traceback configuration from the configuration
// file and the command line.
func (t *Term) excConfig() pyexc.Config {
	var cfg pyexc.Config
	if t.conf.MaxOutputLen != nil {
		cfg.MaxOutputLen = *t.conf.MaxOutputLen
	}
	if t.conf.MaxTracebackDepth != nil {
		cfg.MaxDepth = *t.conf.MaxTracebackDepth
	}
	if t.MaxTracebackDepth != nil {
		cfg.MaxDepth = *t.MaxTracebackDepth
	}
	cfg.DetectCycles = t.conf.DetectTracebackCycles || t.DetectCycles
	return cfg
}
