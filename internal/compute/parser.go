package compute

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/preisanalytics/redis-semaphore/pkg/logger"
)

// Parser - parses queries into commands.
type Parser struct{}

// NewParser creates and returns a new instance of Parser.
func NewParser() *Parser {
	return &Parser{}
}

// Parse converts the query string into a Command or returns an error for
// invalid syntax. The command word is case-insensitive.
func (p *Parser) Parse(query string) (*Command, error) {
	tokens := strings.Fields(query)
	if len(tokens) == 0 {
		return nil, fmt.Errorf("%w: query cannot be empty", ErrInvalidSyntax)
	}

	logger.Debug("parsed tokens", zap.Strings("tokens", tokens))

	commandType := CommandType(strings.ToLower(tokens[0]))
	args := tokens[1:]

	return NewCommand(commandType, args)
}
