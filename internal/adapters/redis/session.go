package redisad

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"breadcast/internal/domain"
)

// hash fields mirror the keys the web client kept in local storage
const (
	fieldLoggedIn     = "isLoggedIn"
	fieldUserName     = "userName"
	fieldNickname     = "nickname"
	fieldAccessToken  = "accessToken"
	fieldRefreshToken = "refreshToken"
)

// SessionStore keeps sessions in Redis hashes with a sliding TTL.
type SessionStore struct {
	c   *redis.Client
	ttl time.Duration
}

func NewSessionStore(c *redis.Client, ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SessionStore{c: c, ttl: ttl}
}

func sessionKey(sid string) string { return "bc:session:" + sid }

// Load returns the zero Session for unknown ids.
func (s *SessionStore) Load(ctx context.Context, sid string) (domain.Session, error) {
	if sid == "" {
		return domain.Session{}, nil
	}
	m, err := s.c.HGetAll(ctx, sessionKey(sid)).Result()
	if err != nil {
		return domain.Session{}, err
	}
	if len(m) == 0 {
		return domain.Session{}, nil
	}
	// the session stays usable when the sliding refresh fails
	if err := s.c.Expire(ctx, sessionKey(sid), s.ttl).Err(); err != nil {
		log.Warn().Err(err).Msg("refresh session ttl failed")
	}
	return domain.Session{
		LoggedIn:     m[fieldLoggedIn] == "true",
		UserName:     m[fieldUserName],
		Nickname:     m[fieldNickname],
		AccessToken:  m[fieldAccessToken],
		RefreshToken: m[fieldRefreshToken],
	}, nil
}

func (s *SessionStore) Save(ctx context.Context, sid string, sess domain.Session) error {
	loggedIn := "false"
	if sess.LoggedIn {
		loggedIn = "true"
	}
	key := sessionKey(sid)
	_, err := s.c.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, key)
		p.HSet(ctx, key,
			fieldLoggedIn, loggedIn,
			fieldUserName, sess.UserName,
			fieldNickname, sess.Nickname,
			fieldAccessToken, sess.AccessToken,
			fieldRefreshToken, sess.RefreshToken,
		)
		p.Expire(ctx, key, s.ttl)
		return nil
	})
	return err
}

func (s *SessionStore) Clear(ctx context.Context, sid string) error {
	return s.c.Del(ctx, sessionKey(sid)).Err()
}
