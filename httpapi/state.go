package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/MrEthical07/goAccount/internal"
	"github.com/gorilla/sessions"
)

const stateTokenValue = "state"

// stateStore keeps the per-browser state-checker token in a signed cookie.
type stateStore struct {
	store *sessions.CookieStore
	name  string
}

func newStateStore(name string, hashKey []byte, secure bool, ttl time.Duration) (*stateStore, error) {
	if len(hashKey) < 32 {
		return nil, errors.New("state cookie key must be at least 32 bytes")
	}
	store := sessions.NewCookieStore(hashKey)
	store.Options = &sessions.Options{
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	}
	store.MaxAge(int(ttl.Seconds()))
	return &stateStore{store: store, name: name}, nil
}

// ensure returns the browser's state-checker token, issuing one on first use.
// A cookie that fails verification is replaced.
func (s *stateStore) ensure(w http.ResponseWriter, r *http.Request) (string, error) {
	sess, err := s.store.Get(r, s.name)
	if err != nil || sess == nil {
		sess = sessions.NewSession(s.store, s.name)
		opts := *s.store.Options
		sess.Options = &opts
		sess.IsNew = true
	}

	if token, ok := sess.Values[stateTokenValue].(string); ok && token != "" {
		return token, nil
	}

	token, err := internal.NewStateToken()
	if err != nil {
		return "", err
	}
	sess.Values[stateTokenValue] = token
	if err := sess.Save(r, w); err != nil {
		return "", err
	}
	return token, nil
}
