package session

import (
	"strconv"
	"sync"

	"github.com/golang-jwt/jwt"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/npezzotti/chatsync/internal/types"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrNoCredential = errors.New("no stored credential")
)

var idClaims = []string{"id", "user-id", "userId", "sub"}

// Decode reads the identity out of the token's payload segment. The signature is
// not checked: the server issued the token and remains the one verifying it.
func Decode(tokenString string) (types.Identity, error) {
	claims := jwt.MapClaims{}
	if _, _, err := new(jwt.Parser).ParseUnverified(tokenString, claims); err != nil {
		return types.Identity{}, errors.Wrap(ErrInvalidToken, err.Error())
	}

	id, ok := userIdFromClaims(claims)
	if !ok || id <= 0 {
		return types.Identity{}, errors.Wrap(ErrInvalidToken, "missing user id claim")
	}

	u := types.User{Id: id}
	u.Username, _ = claims["username"].(string)
	u.AvatarUrl, _ = claims["avatarUrl"].(string)
	u.About, _ = claims["about"].(string)
	if status, ok := claims["status"].(string); ok && types.Status(status).Valid() {
		u.Status = types.Status(status)
	}

	return types.Identity{User: u, Token: tokenString}, nil
}

func userIdFromClaims(claims jwt.MapClaims) (int64, bool) {
	for _, key := range idClaims {
		switch v := claims[key].(type) {
		case float64:
			return int64(v), true
		case string:
			if id, err := strconv.ParseInt(v, 10, 64); err == nil {
				return id, true
			}
		}
	}
	return 0, false
}

// Session owns the credential and the identity decoded from it. It is read from
// the REST client goroutines as well as the engine loop.
type Session struct {
	mu       sync.RWMutex
	store    TokenStore
	identity *types.Identity
	log      zerolog.Logger
}

func New(store TokenStore, logger zerolog.Logger) *Session {
	return &Session{
		store: store,
		log:   logger.With().Str("component", "session").Logger(),
	}
}

// Authenticate decodes token, persists it and makes it the current identity. A
// token that cannot be decoded tears the session down.
func (s *Session) Authenticate(token string) (types.Identity, error) {
	ident, err := Decode(token)
	if err != nil {
		s.log.Warn().Err(err).Msg("rejecting credential, forcing logout")
		if lerr := s.Logout(); lerr != nil {
			s.log.Error().Err(lerr).Msg("logout after invalid token")
		}
		return types.Identity{}, err
	}

	if err := s.store.Save(token); err != nil {
		return types.Identity{}, errors.Wrap(err, "save credential")
	}

	s.mu.Lock()
	s.identity = &ident
	s.mu.Unlock()

	s.log.Info().Int64("user_id", ident.Id).Str("username", ident.Username).Msg("authenticated")
	return ident, nil
}

// Restore authenticates with the credential persisted by a previous run.
func (s *Session) Restore() (types.Identity, error) {
	token, ok, err := s.store.Load()
	if err != nil {
		return types.Identity{}, errors.Wrap(err, "load credential")
	}
	if !ok {
		return types.Identity{}, ErrNoCredential
	}
	return s.Authenticate(token)
}

// Replace swaps in a freshly issued token, e.g. after a profile update. changed
// reports whether the token belongs to a different user than before.
func (s *Session) Replace(token string) (ident types.Identity, changed bool, err error) {
	prev, hadPrev := s.Identity()
	ident, err = s.Authenticate(token)
	if err != nil {
		return types.Identity{}, false, err
	}
	return ident, !hadPrev || prev.Id != ident.Id, nil
}

func (s *Session) Identity() (types.Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.identity == nil {
		return types.Identity{}, false
	}
	return *s.identity, true
}

func (s *Session) Authenticated() bool {
	_, ok := s.Identity()
	return ok
}

// Token returns the bearer credential for outgoing requests.
func (s *Session) Token() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.identity == nil {
		return "", false
	}
	return s.identity.Token, true
}

// UpdateProfile merges profile fields into the identity. It reports false when
// the profile is not the local user's.
func (s *Session) UpdateProfile(p types.User) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.identity == nil || s.identity.Id != p.Id {
		return false
	}
	s.identity.User = s.identity.User.Merge(p)
	return true
}

func (s *Session) SetStatus(userId int64, status types.Status) bool {
	return s.UpdateProfile(types.User{Id: userId, Status: status})
}

// Logout clears the identity and the persisted credential.
func (s *Session) Logout() error {
	s.mu.Lock()
	had := s.identity != nil
	s.identity = nil
	s.mu.Unlock()

	if had {
		s.log.Info().Msg("logged out")
	}
	return errors.Wrap(s.store.Clear(), "clear credential")
}
