package compute

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidSyntax is returned when a query has invalid syntax.
	ErrInvalidSyntax = errors.New("invalid syntax")

	// ErrUnknownCommand is returned for a command word outside the protocol.
	ErrUnknownCommand = errors.New("unknown command")
)

// CommandType represents the type of a store command.
type CommandType string

const (
	// String commands
	CommandGET     CommandType = "get"
	CommandSET     CommandType = "set"
	CommandGETSET  CommandType = "getset"
	CommandEXISTS  CommandType = "exists"
	CommandDEL     CommandType = "del"
	CommandEXPIRE  CommandType = "expire"
	CommandPERSIST CommandType = "persist"

	// List commands
	CommandRPUSH  CommandType = "rpush"
	CommandLPOP   CommandType = "lpop"
	CommandBLPOP  CommandType = "blpop"
	CommandLRANGE CommandType = "lrange"
	CommandLLEN   CommandType = "llen"

	// Hash commands
	CommandHSET    CommandType = "hset"
	CommandHDEL    CommandType = "hdel"
	CommandHGETALL CommandType = "hgetall"
	CommandHEXISTS CommandType = "hexists"
	CommandHLEN    CommandType = "hlen"

	// Server commands
	CommandTIME    CommandType = "time"
	CommandMULTI   CommandType = "multi"
	CommandEXEC    CommandType = "exec"
	CommandDISCARD CommandType = "discard"
	CommandAUTH    CommandType = "auth"
)

// String converts CommandType into string.
func (cmd CommandType) String() string {
	return string(cmd)
}

// arity - argument count bounds per command; max -1 means unbounded.
type arity struct {
	min, max int
}

var commandArity = map[CommandType]arity{
	CommandGET:     {1, 1},
	CommandSET:     {2, 2},
	CommandGETSET:  {2, 2},
	CommandEXISTS:  {1, 1},
	CommandDEL:     {1, -1},
	CommandEXPIRE:  {2, 2},
	CommandPERSIST: {1, 1},
	CommandRPUSH:   {2, -1},
	CommandLPOP:    {1, 1},
	CommandBLPOP:   {2, 2},
	CommandLRANGE:  {1, 1},
	CommandLLEN:    {1, 1},
	CommandHSET:    {3, 3},
	CommandHDEL:    {2, -1},
	CommandHGETALL: {1, 1},
	CommandHEXISTS: {2, 2},
	CommandHLEN:    {1, 1},
	CommandTIME:    {0, 0},
	CommandMULTI:   {0, 0},
	CommandEXEC:    {0, 0},
	CommandDISCARD: {0, 0},
	CommandAUTH:    {2, 2},
}

// Command represents a parsed store command with its arguments.
type Command struct {
	Type CommandType
	Args []string
}

// NewCommand creates a new instance of Command and validates its arity.
func NewCommand(commandType CommandType, args []string) (*Command, error) {
	bounds, ok := commandArity[commandType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, commandType)
	}

	if len(args) < bounds.min || (bounds.max >= 0 && len(args) > bounds.max) {
		return nil, fmt.Errorf("%w: wrong number of arguments for '%s'",
			ErrInvalidSyntax, commandType)
	}

	return &Command{Type: commandType, Args: args}, nil
}
