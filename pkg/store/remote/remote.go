package remote

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/preisanalytics/redis-semaphore/pkg/store"
)

const nilMarker = "(nil)"

// ErrProtocol is returned when the server reply does not follow the wire
// protocol.
var ErrProtocol = errors.New("protocol violation")

// Conn is the transport the remote store talks through; satisfied by
// pkg/client/tcp.Client.
type Conn interface {
	Send(request []byte) ([]byte, error)
	SendWait(request []byte, wait time.Duration) ([]byte, error)
	Close() error
}

// Store implements the store capability contract over a line-protocol
// connection to a store daemon. A connection carries one request at a
// time, so commands are serialized; a handle doing long blocking pops
// should get a dedicated Store over its own connection.
type Store struct {
	mu   sync.Mutex
	conn Conn
}

// New wraps an established connection into a Store.
func New(conn Conn) *Store {
	return &Store{conn: conn}
}

// Auth authenticates the connection against the daemon's root credentials.
func (s *Store) Auth(username, password string) error {
	_, err := s.do("auth", username, password)
	return err
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// do - sends one command and unwraps the single-line reply.
func (s *Store) do(args ...string) (string, error) {
	return s.doWait(0, args...)
}

func (s *Store) doWait(wait time.Duration, args ...string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.roundTrip(wait, args...)
}

// roundTrip - one exchange on an already-locked connection.
func (s *Store) roundTrip(wait time.Duration, args ...string) (string, error) {
	reply, err := s.conn.SendWait([]byte(strings.Join(args, " ")), wait)
	if err != nil {
		return "", err
	}

	return unwrap(string(reply))
}

// unwrap strips the [ok]/[error] framing and maps well-known error texts
// back onto the package sentinels.
func unwrap(reply string) (string, error) {
	reply = strings.TrimRight(reply, "\r\n")
	if body, ok := strings.CutPrefix(reply, "[ok]"); ok {
		return strings.TrimSpace(body), nil
	}

	if body, ok := strings.CutPrefix(reply, "[error]"); ok {
		body = strings.TrimSpace(body)
		switch {
		case strings.Contains(body, store.ErrKeyNotFound.Error()):
			return "", store.ErrKeyNotFound
		case strings.Contains(body, store.ErrWrongType.Error()):
			return "", store.ErrWrongType
		}
		return "", errors.New(body)
	}

	return "", fmt.Errorf("%w: unparseable reply %q", ErrProtocol, reply)
}

// formatSeconds serializes a duration as the protocol's fractional seconds.
func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return s.do("get", key)
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.do("set", key, value)
	return err
}

func (s *Store) GetSet(ctx context.Context, key, value string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	body, err := s.do("getset", key, value)
	if err != nil {
		return "", false, err
	}
	if body == nilMarker {
		return "", false, nil
	}

	return body, true, nil
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	body, err := s.do("exists", key)
	if err != nil {
		return false, err
	}

	return body == "1", nil
}

func (s *Store) Del(ctx context.Context, keys ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.do(append([]string{"del"}, keys...)...)
	return err
}

func (s *Store) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.do("expire", key, formatSeconds(ttl))
	return err
}

func (s *Store) Persist(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.do("persist", key)
	return err
}

func (s *Store) RPush(ctx context.Context, key string, values ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.do(append([]string{"rpush", key}, values...)...)
	return err
}

func (s *Store) LPop(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	body, err := s.do("lpop", key)
	if err != nil {
		return "", false, err
	}
	if body == nilMarker {
		return "", false, nil
	}

	return body, true, nil
}

// BLPop blocks server-side; the connection deadline is stretched to cover
// the wait. Cancelling ctx does not interrupt an in-flight wait, it is
// honored between commands only.
func (s *Store) BLPop(ctx context.Context, key string, timeout time.Duration) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	body, err := s.doWait(timeout, "blpop", key, formatSeconds(timeout))
	if err != nil {
		return "", false, err
	}
	if body == nilMarker {
		return "", false, nil
	}

	return body, true, nil
}

func (s *Store) LRange(ctx context.Context, key string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	body, err := s.do("lrange", key)
	if err != nil {
		return nil, err
	}

	return strings.Fields(body), nil
}

func (s *Store) LLen(ctx context.Context, key string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	body, err := s.do("llen", key)
	if err != nil {
		return 0, err
	}

	return strconv.ParseInt(body, 10, 64)
}

func (s *Store) HSet(ctx context.Context, key, field, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.do("hset", key, field, value)
	return err
}

func (s *Store) HDel(ctx context.Context, key string, fields ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.do(append([]string{"hdel", key}, fields...)...)
	return err
}

func (s *Store) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	body, err := s.do("hgetall", key)
	if err != nil {
		return nil, err
	}

	return parsePairs(body)
}

func parsePairs(body string) (map[string]string, error) {
	parts := strings.Fields(body)
	if len(parts)%2 != 0 {
		return nil, fmt.Errorf("%w: odd field-value list %q", ErrProtocol, body)
	}

	out := make(map[string]string, len(parts)/2)
	for i := 0; i < len(parts); i += 2 {
		out[parts[i]] = parts[i+1]
	}

	return out, nil
}

func (s *Store) HExists(ctx context.Context, key, field string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	body, err := s.do("hexists", key, field)
	if err != nil {
		return false, err
	}

	return body == "1", nil
}

func (s *Store) HLen(ctx context.Context, key string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	body, err := s.do("hlen", key)
	if err != nil {
		return 0, err
	}

	return strconv.ParseInt(body, 10, 64)
}

func (s *Store) Time(ctx context.Context) (time.Time, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, err
	}

	body, err := s.do("time")
	if err != nil {
		return time.Time{}, err
	}

	f, err := strconv.ParseFloat(body, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: bad time reply %q", ErrProtocol, body)
	}

	return time.Unix(0, int64(f*1e9)), nil
}
