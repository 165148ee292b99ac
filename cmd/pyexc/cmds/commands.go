package cmds

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/go-delve/pyexc/cmd/pyexc/cmds/helphelpers"
	"github.com/go-delve/pyexc/pkg/config"
	"github.com/go-delve/pyexc/pkg/logflags"
	"github.com/go-delve/pyexc/pkg/proc/core"
	"github.com/go-delve/pyexc/pkg/terminal"
	"github.com/go-delve/pyexc/pkg/version"
)

var (
	// log is whether to log debug statements.
	log bool
	// logOutput is a comma separated list of components that should produce debug output.
	logOutput string
	// logDest is the file path or file descriptor where logs should go.
	logDest string
	// initFile is the path to initialization file.
	initFile string
	// maxTracebackDepth limits the number of frames py-exc-print prints.
	maxTracebackDepth int
	// detectCycles stops py-exc-print at a repeated traceback node.
	detectCycles bool

	rootCommand *cobra.Command

	conf *config.Config
)

const pyexcCommandLongDesc = `pyexc prints the exception a CPython 2.7 interpreter was handling when
its core dump was taken.

It opens a Linux ELF core file together with the interpreter executable, which
must carry DWARF debug information either embedded or in a separate debug file
found through its build ID (see debug-info-directories in the configuration
file), and offers a terminal with the py-exc-print command. The command finds
the exception being handled by the thread that held the global interpreter
lock and prints its traceback the way traceback.print_exc() does.

Pass flags to the terminal commands through the configuration file
$HOME/.pyexc/config.yml.`

// New returns an initialized command tree.
func New(docCall bool) *cobra.Command {
	// Config setup and load.
	if docCall {
		conf = &config.Config{}
	} else {
		conf = config.LoadConfig()
	}

	// Main pyexc root command.
	rootCommand = &cobra.Command{
		Use:   "pyexc",
		Short: "pyexc prints the Python exception recorded in a core dump.",
		Long:  pyexcCommandLongDesc,
	}

	rootCommand.PersistentFlags().BoolVarP(&log, "log", "", false, "Enable logging.")
	rootCommand.PersistentFlags().StringVarP(&logOutput, "log-output", "", "", `Comma separated list of components that should produce debug output (see 'pyexc help log')`)
	rootCommand.PersistentFlags().StringVarP(&logDest, "log-dest", "", "", "Writes logs to the specified file or file descriptor (see 'pyexc help log').")
	rootCommand.PersistentFlags().StringVar(&initFile, "init", "", "Init file, executed by the terminal before the prompt. Files ending in .star are run as starlark scripts.")
	rootCommand.PersistentFlags().IntVar(&maxTracebackDepth, "max-traceback-depth", 0, "Stop printing a traceback after this many frames, 0 uses the configuration file.")
	rootCommand.PersistentFlags().BoolVar(&detectCycles, "detect-cycles", false, "Stop printing a traceback at the first repeated node.")

	// 'core' subcommand.
	coreCommand := &cobra.Command{
		Use:   "core <executable> <core>",
		Short: "Examine a core dump.",
		Long: `Examine a core dump.

The core command will open the specified core file and the associated
executable and start a terminal to examine the exception the interpreter
was handling when the core dump was taken.

Currently supports linux core files.`,
		PersistentPreRunE: checkCoreArgs,
		Run:               coreCmd,
	}
	rootCommand.AddCommand(coreCommand)

	// 'print' subcommand.
	printCommand := &cobra.Command{
		Use:   "print <executable> <core>",
		Short: "Print the exception recorded in a core dump and exit.",
		Long: `Print the exception recorded in a core dump and exit.

The print command opens the core file like the core command does, runs
py-exc-print once and exits with a non zero status if it fails.`,
		PersistentPreRunE: checkCoreArgs,
		Run:               printCmd,
	}
	rootCommand.AddCommand(printCommand)

	// 'version' subcommand.
	versionCommand := &cobra.Command{
		Use:   "version",
		Short: "Prints version.",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "pyexc\n%s\n", version.PyExcVersion)
			if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\n", version.BuildInfo())
			}
		},
	}
	versionCommand.Flags().BoolP("verbose", "v", false, "print verbose version info")
	rootCommand.AddCommand(versionCommand)

	rootCommand.AddCommand(&cobra.Command{
		Use:   "log",
		Short: "Help about logging flags.",
		Long: `Logging can be enabled by specifying the --log flag and using the
--log-output flag to select which components should produce logs.

The argument of --log-output must be a comma separated list of component
names selected from this list:


	core		Log core file loading
	pyobj		Log reads of interpreter objects
	pyexc		Log the traceback walk
	terminal	Log terminal commands and completion

Additionally --log-dest can be used to specify where the logs should be
written.
If the argument is a number it will be interpreted as a file descriptor,
otherwise as a file path.
`,
	})

	var buf bytes.Buffer
	terminal.DebugCommands().WriteMarkdown(&buf)
	rootCommand.AddCommand(&cobra.Command{
		Use:   "commands",
		Short: "Help about the terminal commands.",
		Long:  buf.String(),
	})

	rootCommand.DisableAutoGenTag = true

	defaultHelp := rootCommand.HelpFunc()
	rootCommand.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		helphelpers.Prepare(cmd)
		defaultHelp(cmd, args)
	})

	return rootCommand
}

func checkCoreArgs(cmd *cobra.Command, args []string) error {
	if len(args) != 2 {
		return errors.New("you must provide an executable and a core file")
	}
	return nil
}

func coreCmd(cmd *cobra.Command, args []string) {
	os.Exit(execute(args[0], args[1], conf, false))
}

func printCmd(cmd *cobra.Command, args []string) {
	os.Exit(execute(args[0], args[1], conf, true))
}

func execute(exePath, corePath string, conf *config.Config, printOnly bool) int {
	if err := logflags.Setup(log, logOutput, logDest); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	defer logflags.Close()

	target, err := core.OpenCore(corePath, exePath, conf.DebugInfoDirectories)
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not open core file: %v\n", err)
		return 1
	}

	term := terminal.New(target, conf)
	term.InitFile = initFile
	if maxTracebackDepth > 0 {
		term.MaxTracebackDepth = &maxTracebackDepth
	}
	term.DetectCycles = detectCycles

	if printOnly {
		defer term.Close()
		if err := term.Exec("py-exc-print", false); err != nil {
			fmt.Fprintf(os.Stderr, "Command failed: %s\n", err)
			return 1
		}
		return 0
	}

	status, err := term.Run()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	return status
}
