package auth

import (
	"net/http"
	"strings"

	"github.com/pawhub/pawhub/internal/platform/httpx"
	"github.com/pawhub/pawhub/internal/shared"
)

// RequireAccessToken rejects requests without a valid bearer access token
// and stores the token subject in the request context.
func RequireAccessToken(service *Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				w.Header().Set("WWW-Authenticate", `Bearer`)
				httpx.RespondError(w, ErrInvalidAccessToken)
				return
			}
			userID, err := service.AuthenticateAccessToken(token)
			if err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
				httpx.RespondError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(shared.ContextWithUserID(r.Context(), userID)))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
