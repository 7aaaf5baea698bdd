package httpapi

import (
	"net/http"

	logauth "github.com/origbo/logware-auth"
)

// authedHandler is a handler that runs only for an authenticated account.
type authedHandler func(w http.ResponseWriter, r *http.Request, actor *logauth.AccountInfo)

// requireAuth resolves the bearer token to an account before running next.
// A missing, expired, revoked-by-password-change, or otherwise invalid
// token is a 401 with the uniform envelope.
func (h *Handler) requireAuth(next authedHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenValue := bearerToken(r)
		if tokenValue == "" {
			writeFail(w, http.StatusUnauthorized, "authentication required")
			return
		}

		actor, err := h.engine.Authenticate(r.Context(), tokenValue)
		if err != nil {
			writeEngineError(w, err)
			return
		}

		next(w, r, actor)
	})
}
