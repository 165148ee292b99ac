package terminal

import (
	"bytes"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-delve/pyexc/pkg/config"
	"github.com/go-delve/pyexc/pkg/pyobj/fakepy"
)

type FakeTerminal struct {
	*Term
	t      testing.TB
	im     *fakepy.Image
	frames []uint64
}

// newFakeTerminal returns a terminal inspecting an image where a
// ValueError('boom') is being handled with a two frame traceback.
func newFakeTerminal(t testing.TB, conf *config.Config) *FakeTerminal {
	im := fakepy.New(fakepy.Options{})
	code0 := im.Code("/app/main.py", "main", 10, nil, "x")
	f0 := im.Frame(0, code0, 0, im.Int(1))
	code1 := im.Code("/app/util.py", "check", 20, nil)
	f1 := im.Frame(f0, code1, 0)
	tb := im.Traceback(f0, im.Traceback(f1, 0))
	valueError := im.TypeObject("exceptions.ValueError")
	im.SetExcInfo(valueError, im.Exception(valueError, im.Str("boom")), tb)

	term := New(im.Target(), conf)
	term.dumb = true
	term.stderr = ioutil.Discard
	return &FakeTerminal{Term: term, t: t, im: im, frames: []uint64{f0, f1}}
}

func (ft *FakeTerminal) Exec(cmdstr string) (string, error) {
	var buf bytes.Buffer
	w := ft.Term.stdout.w
	ft.Term.stdout.w = &buf
	defer func() { ft.Term.stdout.w = w }()
	err := ft.Term.Exec(cmdstr, false)
	return buf.String(), err
}

func (ft *FakeTerminal) MustExec(cmdstr string) string {
	outstr, err := ft.Exec(cmdstr)
	if err != nil {
		ft.t.Errorf("output of %q: %q", cmdstr, outstr)
		ft.t.Fatalf("Error executing <%s>: %v", cmdstr, err)
	}
	return outstr
}

func (ft *FakeTerminal) traceback() string {
	return fmt.Sprintf("Traceback (most recent call last):\n"+
		"  Frame %#x, for file /app/main.py, line 10, in main (x=1)\n"+
		"  Frame %#x, for file /app/util.py, line 20, in check ()\n"+
		"ValueError('boom')\n", ft.frames[0], ft.frames[1])
}

func TestPyExcPrint(t *testing.T) {
	ft := newFakeTerminal(t, nil)
	if got := ft.MustExec("py-exc-print"); got != ft.traceback() {
		t.Errorf("got:\n%s\nwant:\n%s", got, ft.traceback())
	}
	if got := ft.MustExec("py-exc-print ignored arguments"); got != ft.traceback() {
		t.Errorf("arguments changed the output:\n%s", got)
	}
	var buf bytes.Buffer
	ft.Term.stdout.w = &buf
	if err := ft.Term.Exec("py-exc-print", true); err != nil || buf.String() != ft.traceback() {
		t.Errorf("interactive invocation: %q, %v", buf.String(), err)
	}
}

func TestPyExcPrintConfig(t *testing.T) {
	maxlen := 30
	ft := newFakeTerminal(t, &config.Config{MaxOutputLen: &maxlen})
	lines := strings.Split(ft.MustExec("py-exc-print"), "\n")
	for _, line := range lines[1:3] {
		if len(line) != 2+maxlen {
			t.Errorf("frame line not truncated: %q", line)
		}
	}

	depth := 1
	ft = newFakeTerminal(t, nil)
	ft.MaxTracebackDepth = &depth
	out := ft.MustExec("py-exc-print")
	if !strings.Contains(out, "<traceback limited to 1 frames>") || strings.Contains(out, "util.py") {
		t.Errorf("depth limit not applied:\n%s", out)
	}

	ft = newFakeTerminal(t, &config.Config{ThreadStateSymbol: "_PyThreadState_Missing"})
	if _, err := ft.Exec("py-exc-print"); err == nil || !strings.Contains(err.Error(), "_PyThreadState_Missing") {
		t.Errorf("expected missing symbol error, got %v", err)
	}
}

func TestCommandFailure(t *testing.T) {
	ft := newFakeTerminal(t, &config.Config{ThreadStateSymbol: "_PyThreadState_Missing"})
	var errbuf bytes.Buffer
	ft.Term.stderr = &errbuf
	ft.Term.stdout.w = ioutil.Discard
	if ft.runCommand("py-exc-print") {
		t.Fatalf("failed command asked to exit")
	}
	if !strings.HasPrefix(errbuf.String(), "Command failed: ") {
		t.Errorf("unexpected error output %q", errbuf.String())
	}
	errbuf.Reset()
	if ft.runCommand("nonexistent") || errbuf.String() != "Command failed: command not available\n" {
		t.Errorf("unexpected error output %q", errbuf.String())
	}
	if !ft.runCommand("exit") {
		t.Errorf("exit did not ask to exit")
	}
}

func TestHelp(t *testing.T) {
	ft := newFakeTerminal(t, nil)
	out := ft.MustExec("help")
	for _, want := range []string{"Viewing the call stack:", "py-exc-print", "Other commands:", "exit (alias: quit | q)"} {
		if !strings.Contains(out, want) {
			t.Errorf("%q missing from help:\n%s", want, out)
		}
	}
	if out := ft.MustExec("help py-exc-print"); !strings.HasPrefix(out, "Prints the traceback of the exception being handled.") {
		t.Errorf("help py-exc-print: %q", out)
	}
	if _, err := ft.Exec("help nonexistent"); err != errNoCmd {
		t.Errorf("help of unknown command: %v", err)
	}
	if _, err := ft.Exec("help a b"); err == nil {
		t.Errorf("expected error for two arguments")
	}
}

func TestAliases(t *testing.T) {
	ft := newFakeTerminal(t, &config.Config{Aliases: map[string][]string{"py-exc-print": {"pe"}}})
	if got := ft.MustExec("pe"); got != ft.traceback() {
		t.Errorf("alias output:\n%s", got)
	}

	ft.MustExec("config alias py-exc-print exc")
	if got := ft.MustExec("exc"); got != ft.traceback() {
		t.Errorf("alias output:\n%s", got)
	}
	ft.MustExec("config alias exc")
	if _, err := ft.Exec("exc"); err != errNoCmd {
		t.Errorf("removed alias still works: %v", err)
	}
	if got := ft.MustExec("pe"); got != ft.traceback() {
		t.Errorf("alias from the configuration file lost:\n%s", got)
	}
}

func TestConfigCommand(t *testing.T) {
	ft := newFakeTerminal(t, nil)
	ft.MustExec("config max-traceback-depth 1")
	ft.MustExec("config detect-traceback-cycles true")
	if out := ft.MustExec("config -list"); !strings.Contains(out, "max-traceback-depth     1") {
		t.Errorf("config -list:\n%s", out)
	}
	if out := ft.MustExec("py-exc-print"); !strings.Contains(out, "<traceback limited to 1 frames>") {
		t.Errorf("configuration not applied:\n%s", out)
	}
	if _, err := ft.Exec("config nonexistent 1"); err == nil {
		t.Errorf("expected error for unknown parameter")
	}
}

func TestComplete(t *testing.T) {
	ft := newFakeTerminal(t, nil)
	for _, tc := range []struct {
		line string
		want []string
	}{
		{"py", []string{"py-exc-print"}},
		{"q", []string{"q", "quit"}},
		{"help py", []string{"help py-exc-print"}},
		{"help  e", []string{"help  exit"}},
		{"py-exc-print a", nil},
		{"zz", nil},
	} {
		got := ft.complete(tc.line)
		if fmt.Sprint(got) != fmt.Sprint(tc.want) {
			t.Errorf("complete(%q) = %q, want %q", tc.line, got, tc.want)
		}
	}
}

func TestSource(t *testing.T) {
	dir, err := ioutil.TempDir("", "pyexc-source")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	cmdfile := filepath.Join(dir, "init")
	if err := ioutil.WriteFile(cmdfile, []byte("# comment\n\npy-exc-print\nnonexistent\n"), 0600); err != nil {
		t.Fatal(err)
	}
	ft := newFakeTerminal(t, nil)
	out := ft.MustExec("source " + cmdfile)
	if !strings.HasPrefix(out, ft.traceback()) || !strings.Contains(out, cmdfile+":4: command not available") {
		t.Errorf("source output:\n%s", out)
	}

	script := filepath.Join(dir, "script.star")
	src := `
def command_frames(args):
    "Prints the functions of the traceback."
    for f in exc_info()["frames"]:
        print(f["function"], f["line"])

def main():
    pyexc_command("frames")
    print(exc_info()["value"])
`
	if err := ioutil.WriteFile(script, []byte(src), 0600); err != nil {
		t.Fatal(err)
	}
	if got, want := ft.MustExec("source "+script), "main 10\ncheck 20\nValueError('boom')\n"; got != want {
		t.Errorf("script output %q, want %q", got, want)
	}
	if got := ft.MustExec("help frames"); got != "Prints the functions of the traceback.\n" {
		t.Errorf("help of script command: %q", got)
	}

	if _, err := ft.Exec("source"); err == nil {
		t.Errorf("expected error without arguments")
	}
}

func TestTranscript(t *testing.T) {
	dir, err := ioutil.TempDir("", "pyexc-transcript")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "out.txt")

	ft := newFakeTerminal(t, nil)
	ft.MustExec("transcript -x " + path)
	if out := ft.MustExec("py-exc-print"); out != "" {
		t.Errorf("output not suppressed: %q", out)
	}
	ft.MustExec("transcript -off")
	buf, err := ioutil.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(buf) != ft.traceback() {
		t.Errorf("transcript:\n%s", buf)
	}
	if _, err := ft.Exec("transcript"); err == nil {
		t.Errorf("expected error without a path")
	}
}

func TestWriteMarkdown(t *testing.T) {
	var buf bytes.Buffer
	DebugCommands().WriteMarkdown(&buf)
	out := buf.String()
	if !strings.Contains(out, "[py-exc-print](#py-exc-print) | Prints the traceback of the exception being handled.") {
		t.Errorf("command table missing:\n%s", out)
	}
	if !strings.Contains(out, "Aliases: quit q") {
		t.Errorf("aliases missing:\n%s", out)
	}
}
