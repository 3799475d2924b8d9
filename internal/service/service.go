package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/preisanalytics/redis-semaphore/internal/compute"
	"github.com/preisanalytics/redis-semaphore/pkg/store"
)

var (
	ErrAuthenticationFailed   = errors.New("authentication failed")
	ErrAuthenticationRequired = errors.New("authentication required")
	ErrNestedMulti            = errors.New("multi calls can not be nested")
	ErrNoOpenMulti            = errors.New("no open transaction")
	ErrNotInMulti             = errors.New("command is not allowed inside a transaction")
)

// Parser parses raw queries into executable commands.
type Parser interface {
	Parse(query string) (*compute.Command, error)
}

// Service dispatches parsed store commands onto a backing Store and keeps
// the wire protocol's framing rules in one place.
type Service struct {
	parser Parser
	store  store.Store

	rootUser string
	rootHash []byte // bcrypt hash; empty disables authentication
}

// New creates a Service. A non-empty password enables AUTH enforcement for
// every other command.
func New(parser Parser, st store.Store, username, password string) (*Service, error) {
	s := &Service{
		parser:   parser,
		store:    st,
		rootUser: username,
	}

	if password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash root password: %w", err)
		}
		s.rootHash = hash
	}

	return s, nil
}

// HandleQuery executes one query within a connection session and returns
// the wrapped wire response.
func (s *Service) HandleQuery(ctx context.Context, sess *Session, query string) string {
	cmd, err := s.parser.Parse(query)
	if err != nil {
		return WrapError(err)
	}

	if cmd.Type == compute.CommandAUTH {
		return s.auth(sess, cmd.Args)
	}

	if len(s.rootHash) != 0 && !sess.Authenticated {
		return WrapError(ErrAuthenticationRequired)
	}

	switch cmd.Type {
	case compute.CommandMULTI:
		if sess.inMulti {
			return WrapError(ErrNestedMulti)
		}
		sess.beginMulti()
		return WrapOK("")
	case compute.CommandEXEC:
		if !sess.inMulti {
			return WrapError(ErrNoOpenMulti)
		}
		return s.exec(ctx, sess.endMulti())
	case compute.CommandDISCARD:
		if !sess.inMulti {
			return WrapError(ErrNoOpenMulti)
		}
		sess.endMulti()
		return WrapOK("")
	}

	if sess.inMulti {
		if !queueable(cmd.Type) {
			return WrapError(fmt.Errorf("%w: %s", ErrNotInMulti, cmd.Type))
		}
		sess.queued = append(sess.queued, cmd)
		return WrapOK("queued")
	}

	return s.execute(ctx, cmd)
}

func (s *Service) auth(sess *Session, args []string) string {
	if len(s.rootHash) == 0 {
		sess.Authenticated = true
		return WrapOK("")
	}

	if args[0] != s.rootUser ||
		bcrypt.CompareHashAndPassword(s.rootHash, []byte(args[1])) != nil {
		return WrapError(ErrAuthenticationFailed)
	}

	sess.Authenticated = true
	return WrapOK("")
}

// queueable - commands allowed inside a transaction: mutations plus the two
// reads the transaction interface answers at commit.
func queueable(t compute.CommandType) bool {
	switch t {
	case compute.CommandSET, compute.CommandDEL, compute.CommandEXPIRE,
		compute.CommandPERSIST, compute.CommandRPUSH, compute.CommandHSET,
		compute.CommandHDEL, compute.CommandLRANGE, compute.CommandHGETALL:
		return true
	}

	return false
}

// exec commits a queued batch atomically. The reply carries one wrapped
// line per queued command, in queue order.
func (s *Service) exec(ctx context.Context, queued []*compute.Command) string {
	if len(queued) == 0 {
		return WrapOK("")
	}

	type deferred struct {
		strs *store.StringsResult
		m    *store.MapResult
	}
	results := make([]deferred, len(queued))

	err := s.store.Tx(ctx, func(tx store.Tx) error {
		for i, cmd := range queued {
			switch cmd.Type {
			case compute.CommandSET:
				tx.Set(cmd.Args[0], cmd.Args[1])
			case compute.CommandDEL:
				tx.Del(cmd.Args...)
			case compute.CommandEXPIRE:
				ttl, err := parseSeconds(cmd.Args[1])
				if err != nil {
					return err
				}
				tx.Expire(cmd.Args[0], ttl)
			case compute.CommandPERSIST:
				tx.Persist(cmd.Args[0])
			case compute.CommandRPUSH:
				tx.RPush(cmd.Args[0], cmd.Args[1:]...)
			case compute.CommandHSET:
				tx.HSet(cmd.Args[0], cmd.Args[1], cmd.Args[2])
			case compute.CommandHDEL:
				tx.HDel(cmd.Args[0], cmd.Args[1:]...)
			case compute.CommandLRANGE:
				results[i].strs = tx.LRange(cmd.Args[0])
			case compute.CommandHGETALL:
				results[i].m = tx.HGetAll(cmd.Args[0])
			}
		}
		return nil
	})
	if err != nil {
		return WrapError(err)
	}

	lines := make([]string, len(queued))
	for i := range queued {
		switch {
		case results[i].strs != nil:
			lines[i] = WrapOK(strings.Join(results[i].strs.Val(), " "))
		case results[i].m != nil:
			lines[i] = WrapOK(flattenPairs(results[i].m.Val()))
		default:
			lines[i] = WrapOK("")
		}
	}

	return strings.Join(lines, "\n")
}

func (s *Service) execute(ctx context.Context, cmd *compute.Command) string {
	switch cmd.Type {
	case compute.CommandGET:
		val, err := s.store.Get(ctx, cmd.Args[0])
		if err != nil {
			return WrapError(err)
		}
		return WrapOK(val)
	case compute.CommandSET:
		if err := s.store.Set(ctx, cmd.Args[0], cmd.Args[1]); err != nil {
			return WrapError(err)
		}
		return WrapOK("")
	case compute.CommandGETSET:
		prev, existed, err := s.store.GetSet(ctx, cmd.Args[0], cmd.Args[1])
		if err != nil {
			return WrapError(err)
		}
		if !existed {
			return WrapOK(NilMarker)
		}
		return WrapOK(prev)
	case compute.CommandEXISTS:
		ok, err := s.store.Exists(ctx, cmd.Args[0])
		if err != nil {
			return WrapError(err)
		}
		return WrapOK(formatBool(ok))
	case compute.CommandDEL:
		if err := s.store.Del(ctx, cmd.Args...); err != nil {
			return WrapError(err)
		}
		return WrapOK("")
	case compute.CommandEXPIRE:
		ttl, err := parseSeconds(cmd.Args[1])
		if err != nil {
			return WrapError(err)
		}
		if err := s.store.Expire(ctx, cmd.Args[0], ttl); err != nil {
			return WrapError(err)
		}
		return WrapOK("")
	case compute.CommandPERSIST:
		if err := s.store.Persist(ctx, cmd.Args[0]); err != nil {
			return WrapError(err)
		}
		return WrapOK("")
	case compute.CommandRPUSH:
		if err := s.store.RPush(ctx, cmd.Args[0], cmd.Args[1:]...); err != nil {
			return WrapError(err)
		}
		return WrapOK("")
	case compute.CommandLPOP:
		val, ok, err := s.store.LPop(ctx, cmd.Args[0])
		if err != nil {
			return WrapError(err)
		}
		if !ok {
			return WrapOK(NilMarker)
		}
		return WrapOK(val)
	case compute.CommandBLPOP:
		timeout, err := parseSeconds(cmd.Args[1])
		if err != nil {
			return WrapError(err)
		}
		val, ok, err := s.store.BLPop(ctx, cmd.Args[0], timeout)
		if err != nil {
			return WrapError(err)
		}
		if !ok {
			return WrapOK(NilMarker)
		}
		return WrapOK(val)
	case compute.CommandLRANGE:
		vals, err := s.store.LRange(ctx, cmd.Args[0])
		if err != nil {
			return WrapError(err)
		}
		return WrapOK(strings.Join(vals, " "))
	case compute.CommandLLEN:
		n, err := s.store.LLen(ctx, cmd.Args[0])
		if err != nil {
			return WrapError(err)
		}
		return WrapOK(strconv.FormatInt(n, 10))
	case compute.CommandHSET:
		if err := s.store.HSet(ctx, cmd.Args[0], cmd.Args[1], cmd.Args[2]); err != nil {
			return WrapError(err)
		}
		return WrapOK("")
	case compute.CommandHDEL:
		if err := s.store.HDel(ctx, cmd.Args[0], cmd.Args[1:]...); err != nil {
			return WrapError(err)
		}
		return WrapOK("")
	case compute.CommandHGETALL:
		vals, err := s.store.HGetAll(ctx, cmd.Args[0])
		if err != nil {
			return WrapError(err)
		}
		return WrapOK(flattenPairs(vals))
	case compute.CommandHEXISTS:
		ok, err := s.store.HExists(ctx, cmd.Args[0], cmd.Args[1])
		if err != nil {
			return WrapError(err)
		}
		return WrapOK(formatBool(ok))
	case compute.CommandHLEN:
		n, err := s.store.HLen(ctx, cmd.Args[0])
		if err != nil {
			return WrapError(err)
		}
		return WrapOK(strconv.FormatInt(n, 10))
	case compute.CommandTIME:
		now, err := s.store.Time(ctx)
		if err != nil {
			return WrapError(err)
		}
		return WrapOK(formatUnix(now))
	}

	return WrapError(fmt.Errorf("%w: %s", compute.ErrUnknownCommand, cmd.Type))
}

// flattenPairs lays hash fields out as "field value field value ...".
// Map order is not stable, which the protocol permits.
func flattenPairs(m map[string]string) string {
	parts := make([]string, 0, len(m)*2)
	for f, v := range m {
		parts = append(parts, f, v)
	}
	return strings.Join(parts, " ")
}

func formatBool(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// formatUnix serializes a time as fractional unix seconds.
func formatUnix(t time.Time) string {
	return strconv.FormatFloat(float64(t.UnixNano())/1e9, 'f', 6, 64)
}

// parseSeconds reads a possibly fractional seconds value into a Duration.
func parseSeconds(raw string) (time.Duration, error) {
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad seconds value %q", compute.ErrInvalidSyntax, raw)
	}
	if f < 0 {
		return 0, fmt.Errorf("%w: negative seconds value %q", compute.ErrInvalidSyntax, raw)
	}

	return time.Duration(f * float64(time.Second)), nil
}
