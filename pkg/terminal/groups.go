package terminal

type commandGroup uint8

const (
	otherCmds commandGroup = iota
	stackCmds
)

type commandGroupDescription struct {
	description string
	group       commandGroup
}

var commandGroupDescriptions = []commandGroupDescription{
	{"Viewing the call stack", stackCmds},
	{"Other commands", otherCmds},
}
