package repository

import (
	"context"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/anythought/internal/kvstore"
	"github.com/iliyamo/anythought/internal/model"
	"github.com/iliyamo/anythought/internal/tracing"
	"github.com/iliyamo/anythought/internal/utils"
)

const (
	sessionKeyPrefix = "session:"
	indexKeyPrefix   = "user_sessions:"

	// delAllAttempts bounds DelAll retries when logins race with it.
	delAllAttempts = 16
)

func sessionKey(id string) string { return sessionKeyPrefix + id }
func indexKey(userID string) string { return indexKeyPrefix + userID }

// refreshScript extends an existing session and keeps the owner's index
// alive at least as long.  It returns the owner's id, or nil when the
// session does not exist or has no owner, in which case nothing is written.
//
// KEYS[1] session key
// ARGV[1] new expiry (unix ms), ARGV[2] now (unix ms), ARGV[3] index key prefix
var refreshScript = redis.NewScript(`
	local uid = redis.call('HGET', KEYS[1], 'user_id')
	if not uid then
		return false
	end
	redis.call('HSET', KEYS[1], 'expires_at', ARGV[1])
	redis.call('PEXPIREAT', KEYS[1], ARGV[1])

	local idx = ARGV[3] .. uid
	local pttl = redis.call('PTTL', idx)
	if pttl >= 0 and pttl < tonumber(ARGV[1]) - tonumber(ARGV[2]) then
		redis.call('PEXPIREAT', idx, ARGV[1])
	end
	return uid
`)

// SessionStore keeps sessions in Redis.  A session lives in a hash at
// session:{id} that expires with the session; user_sessions:{userId} is
// the set of the user's session ids.  Every write touching both keys is a
// single MULTI/EXEC or script.
type SessionStore struct {
	kv  *kvstore.Client
	ttl time.Duration
	now func() time.Time
}

func NewSessionStore(kv *kvstore.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{kv: kv, ttl: ttl, now: time.Now}
}

// WithClock replaces the store's clock.
func (s *SessionStore) WithClock(now func() time.Time) *SessionStore {
	s.now = now
	return s
}

// TTL is the lifetime a session gets on create and refresh.
func (s *SessionStore) TTL() time.Duration { return s.ttl }

func (s *SessionStore) expiry() time.Time {
	return s.now().Add(s.ttl).UTC().Truncate(time.Millisecond)
}

// Create stores a session for token.  The token itself is not stored.
func (s *SessionStore) Create(ctx context.Context, token, userID string) (sess model.Session, err error) {
	ctx, span := tracing.Start(ctx, "SessionStore.Create")
	defer func() { tracing.End(span, err) }()

	sess = model.Session{ID: utils.SessionID(token), UserID: userID, ExpiresAt: s.expiry()}
	key, idx := sessionKey(sess.ID), indexKey(userID)
	err = s.kv.Execute(ctx, func(r *redis.Client) error {
		_, err := r.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.HSet(ctx, key, "id", sess.ID, "user_id", userID, "expires_at", sess.ExpiresAt.UnixMilli())
			p.PExpireAt(ctx, key, sess.ExpiresAt)
			p.SAdd(ctx, idx, sess.ID)
			p.PExpireAt(ctx, idx, sess.ExpiresAt)
			return nil
		})
		return err
	})
	if err != nil {
		return model.Session{}, errors.Wrap(err, "create session")
	}
	return sess, nil
}

// Get loads the session for token.  A hash with no fields is the same as
// no session.
func (s *SessionStore) Get(ctx context.Context, token string) (sess model.Session, err error) {
	ctx, span := tracing.Start(ctx, "SessionStore.Get")
	defer func() { tracing.End(span, err) }()

	id := utils.SessionID(token)
	var fields map[string]string
	err = s.kv.Execute(ctx, func(r *redis.Client) error {
		var err error
		fields, err = r.HGetAll(ctx, sessionKey(id)).Result()
		return err
	})
	if err != nil {
		return model.Session{}, errors.Wrap(err, "get session")
	}
	if len(fields) == 0 {
		return model.Session{}, ErrSessionNotFound
	}
	return parseSession(id, fields)
}

// Refresh pushes the expiry of session id to now + TTL.
func (s *SessionStore) Refresh(ctx context.Context, id string) (sess model.Session, err error) {
	ctx, span := tracing.Start(ctx, "SessionStore.Refresh")
	defer func() { tracing.End(span, err) }()

	exp := s.expiry()
	var userID string
	err = s.kv.Execute(ctx, func(r *redis.Client) error {
		var err error
		userID, err = refreshScript.Run(ctx, r, []string{sessionKey(id)},
			exp.UnixMilli(), s.now().UnixMilli(), indexKeyPrefix).Text()
		return err
	})
	if errors.Is(err, redis.Nil) {
		return model.Session{}, ErrSessionNotFound
	}
	if err != nil {
		return model.Session{}, errors.Wrap(err, "refresh session")
	}
	return model.Session{ID: id, UserID: userID, ExpiresAt: exp}, nil
}

// Del removes the session for token from the store and from the user's
// index in one transaction.
func (s *SessionStore) Del(ctx context.Context, userID, token string) (err error) {
	ctx, span := tracing.Start(ctx, "SessionStore.Del")
	defer func() { tracing.End(span, err) }()

	id := utils.SessionID(token)
	var deleted *redis.IntCmd
	err = s.kv.Execute(ctx, func(r *redis.Client) error {
		_, err := r.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.SRem(ctx, indexKey(userID), id)
			deleted = p.Del(ctx, sessionKey(id))
			return nil
		})
		return err
	})
	if err != nil {
		return errors.Wrap(err, "delete session")
	}
	if deleted.Val() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// DelAll removes every session of userID together with the index and
// returns how many sessions were listed.  The index is watched, so a
// session created while DelAll runs is deleted as well rather than left
// behind.
func (s *SessionStore) DelAll(ctx context.Context, userID string) (n int, err error) {
	ctx, span := tracing.Start(ctx, "SessionStore.DelAll")
	defer func() { tracing.End(span, err) }()

	idx := indexKey(userID)
	err = s.kv.Execute(ctx, func(r *redis.Client) error {
		txf := func(tx *redis.Tx) error {
			ids, err := tx.SMembers(ctx, idx).Result()
			if err != nil {
				return err
			}
			keys := make([]string, 0, len(ids)+1)
			for _, id := range ids {
				keys = append(keys, sessionKey(id))
			}
			keys = append(keys, idx)
			if _, err := tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
				p.Del(ctx, keys...)
				return nil
			}); err != nil {
				return err
			}
			n = len(ids)
			return nil
		}
		for i := 0; i < delAllAttempts; i++ {
			err := r.Watch(ctx, txf, idx)
			if !errors.Is(err, redis.TxFailedErr) {
				return err
			}
		}
		return errors.Errorf("index of user %s kept changing", userID)
	})
	if err != nil {
		return 0, errors.Wrap(err, "delete all sessions")
	}
	return n, nil
}

func parseSession(id string, fields map[string]string) (model.Session, error) {
	ms, err := strconv.ParseInt(fields["expires_at"], 10, 64)
	if err != nil {
		return model.Session{}, errors.Wrapf(err, "session %s: bad expires_at", id)
	}
	return model.Session{
		ID:        id,
		UserID:    fields["user_id"],
		ExpiresAt: time.UnixMilli(ms).UTC(),
	}, nil
}
