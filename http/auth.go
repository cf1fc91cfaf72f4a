package http

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"golang.org/x/net/websocket"
)

const (
	ErrTypeUnauthorized = "unauthorized"
)

func tokenFromRequest(r *http.Request) string {
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return token
	}
	return r.URL.Query().Get("token")
}

func verifyToken(r *http.Request, apiKey string) error {
	if apiKey == "" {
		return nil
	}

	if subtle.ConstantTimeCompare([]byte(tokenFromRequest(r)), []byte(apiKey)) != 1 {
		return errors.New("invalid api key").
			WithType(ErrTypeUnauthorized).
			WithTag("remote_addr", r.RemoteAddr).
			WithTag("path", r.URL.Path)
	}
	return nil
}

// VerifyAPIKey returns a websocket handshake that rejects connections without
// the given api key. An empty key accepts every connection.
func VerifyAPIKey(apiKey string) func(*websocket.Config, *http.Request) error {
	return func(c *websocket.Config, r *http.Request) error {
		if err := verifyToken(r, apiKey); err != nil {
			logs.Warn(err)
			return err
		}
		return nil
	}
}

// VerifyAPIKeyHandler responds 401 to requests without the given api key. An
// empty key accepts every request.
func VerifyAPIKeyHandler(apiKey string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := verifyToken(r, apiKey); err != nil {
			logs.Warn(err)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	}
}
