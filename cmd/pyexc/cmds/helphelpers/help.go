package helphelpers

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Prepare hides the flags of the root command that do not apply to cmd,
// so that its usage only lists what it accepts. The flags stay persistent
// on the root command so that
//
//	pyexc --log version
//
// still parses.
//
// Prepare is a destructive command, cmd can not be reused after it has been
// called.
func Prepare(cmd *cobra.Command) {
	switch cmd.Name() {
	case "help", "version", "log", "commands":
		hideInheritedFlags(cmd)
	case "print":
		hideFlag(cmd, "init")
	case "pyexc", "core":
		// All flags apply
	}
}

func hideInheritedFlags(cmd *cobra.Command) {
	cmd.InheritedFlags().VisitAll(func(flag *pflag.Flag) {
		flag.Hidden = true
	})
}

func hideFlag(cmd *cobra.Command, name string) {
	if cmd == nil {
		return
	}
	flag := cmd.Flags().Lookup(name)
	if flag == nil {
		flag = cmd.PersistentFlags().Lookup(name)
	}
	if flag != nil {
		flag.Hidden = true
		return
	}
	hideFlag(cmd.Parent(), name)
}
