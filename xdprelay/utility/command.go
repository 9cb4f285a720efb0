// xdprelay/utility/command.go
package utility

import (
	"fmt"
	"strings"
)

// Opcode is an operator command typed into the TUI.
type Opcode int

const (
	OpStats    Opcode = iota + 1 // print consumer and program counters
	OpReset                      // zero the consumer counters
	OpDump                       // hex dump the reference snapshot
	OpNIC                        // show interface drop counters
	OpShutdown                   // stop the consumer and exit
	OpHelp
)

type Command struct {
	Op Opcode
}

var opcodes = map[string]Opcode{
	"stats":    OpStats,
	"reset":    OpReset,
	"dump":     OpDump,
	"nic":      OpNIC,
	"shutdown": OpShutdown,
	"quit":     OpShutdown,
	"help":     OpHelp,
}

// Help lists the accepted commands.
const Help = "commands: stats | reset | dump | nic | shutdown (quit) | help"

func ParseCommand(input string) (*Command, error) {
	parts := strings.Fields(strings.TrimSpace(input))
	if len(parts) != 1 {
		return nil, fmt.Errorf("invalid command %q", input)
	}
	op, ok := opcodes[strings.ToLower(parts[0])]
	if !ok {
		return nil, fmt.Errorf("unknown op %q", parts[0])
	}
	return &Command{Op: op}, nil
}
