// Package redis stores login sessions in Redis.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/xenking/coffee-shop/internal/domain/auth"
)

const sessionKeyFormat = "session:%s"

var _ auth.SessionStore = (*SessionStore)(nil)

// SessionStore implements auth.SessionStore. Sessions expire through the
// key TTL.
type SessionStore struct {
	rdb *redis.Client
}

// ClientOptions builds connection options from a plain host:port address or
// a redis:// / rediss:// URL carrying credentials and a DB index. A non-empty
// addr takes precedence over rawURL.
func ClientOptions(rawURL, addr string) (*redis.Options, error) {
	if addr != "" {
		return &redis.Options{Addr: addr}, nil
	}
	if rawURL == "" {
		return nil, errors.New("redis address or URL is required")
	}
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis URL")
	}
	return opts, nil
}

// NewClient creates a client for opts with short I/O timeouts.
func NewClient(opts *redis.Options) *redis.Client {
	opts.ReadTimeout = 2 * time.Second
	opts.WriteTimeout = 2 * time.Second
	return redis.NewClient(opts)
}

func NewSessionStore(rdb *redis.Client) *SessionStore {
	return &SessionStore{rdb: rdb}
}

// Create stores a under a fresh random session id.
func (s *SessionStore) Create(ctx context.Context, a auth.Actor, ttl time.Duration) (string, error) {
	id := uuid.NewString()
	if err := s.rdb.Set(ctx, sessionKey(id), encodeActor(a), ttl).Err(); err != nil {
		return "", errors.Wrap(err, "store session")
	}
	return id, nil
}

func (s *SessionStore) Lookup(ctx context.Context, id string) (auth.Actor, error) {
	raw, err := s.rdb.Get(ctx, sessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return auth.Guest(), auth.ErrSessionNotFound
		}
		return auth.Guest(), errors.Wrap(err, "get session")
	}
	a, err := decodeActor(raw)
	if err != nil {
		return auth.Guest(), errors.Wrapf(err, "decode session %q", id)
	}
	return a, nil
}

// Delete removes the session. Deleting an unknown id is not an error.
func (s *SessionStore) Delete(ctx context.Context, id string) error {
	if err := s.rdb.Del(ctx, sessionKey(id)).Err(); err != nil {
		return errors.Wrap(err, "delete session")
	}
	return nil
}

func sessionKey(id string) string {
	return fmt.Sprintf(sessionKeyFormat, id)
}

func encodeActor(a auth.Actor) []byte {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("kind", func(e *jx.Encoder) { e.Str(a.Kind.String()) })
		e.Field("id", func(e *jx.Encoder) { e.Str(a.ID) })
	})
	return e.Bytes()
}

func decodeActor(raw []byte) (auth.Actor, error) {
	var a auth.Actor
	err := jx.DecodeBytes(raw).Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "kind":
			v, err := d.Str()
			if err != nil {
				return err
			}
			a.Kind = auth.ParseKind(v)
		case "id":
			v, err := d.Str()
			if err != nil {
				return err
			}
			a.ID = v
		default:
			return d.Skip()
		}
		return nil
	})
	if err != nil {
		return auth.Guest(), err
	}
	if a.IsGuest() {
		return auth.Guest(), errors.New("session without identity")
	}
	return a, nil
}
