package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	sessionHeader       = "X-Session-Id"
	sessionCookieKey    = "board_session"
	sessionCookieMaxAge = 365 * 24 * time.Hour
	maxSessionIdLen     = 128
)

func (s *BoardApp) errorHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				var panicError error
				switch e := err.(type) {
				case error:
					panicError = e
				default:
					panicError = fmt.Errorf("%v", e)
				}
				s.log.Printf("panic: %v", panicError)
				errResp := NewInternalServerError(panicError)
				w.Header().Set("Connection", "close")
				s.writeJson(w, errResp.StatusCode, errResp)
				return
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// sessionMiddleware attaches the caller's anonymous session id to the
// request context. The id comes from the X-Session-Id header or the
// session cookie; a new one is issued when neither is present. Ids are
// not authenticated and grant nothing beyond attribution.
func (s *BoardApp) sessionMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionId := strings.TrimSpace(r.Header.Get(sessionHeader))
		if sessionId == "" {
			if c, err := r.Cookie(sessionCookieKey); err == nil {
				sessionId = c.Value
			}
		}

		if len(sessionId) > maxSessionIdLen {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		if sessionId == "" {
			sessionId = uuid.NewString()
			http.SetCookie(w, createSessionCookie(sessionId))
		}

		next(w, r.WithContext(WithSessionId(r.Context(), sessionId)))
	}
}

func createSessionCookie(sessionId string) *http.Cookie {
	return &http.Cookie{
		Name:     sessionCookieKey,
		Value:    sessionId,
		Path:     "/",
		Expires:  time.Now().Add(sessionCookieMaxAge),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

func (s *BoardApp) serviceMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tokenString, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || tokenString == "" {
			errResp := NewUnauthorizedError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		if err := verifyServiceToken(s.signingKey, tokenString); err != nil {
			s.log.Printf("rejected service token: %v", err)
			errResp := NewUnauthorizedError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, private")

		next(w, r)
	}
}
