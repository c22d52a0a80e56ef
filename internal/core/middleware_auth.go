package core

import (
	"net/http"
	"strings"

	"freshtrack/internal/security"
	"freshtrack/internal/types"
)

// CallbackAuthMiddleware authenticates provider delivery-status callbacks
// against the shared callback token. The token arrives as a bearer
// credential; comparison is constant-time via digest equality.
//
// tokenDigest is the SHA-256 digest of the configured token, derived once
// at startup with security.HashCallbackToken.
func CallbackAuthMiddleware(tokenDigest string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented := bearerToken(r)
			if presented == "" {
				Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing,
					"missing callback credentials", nil))
				return
			}
			if err := security.VerifyCallbackToken(presented, tokenDigest); err != nil {
				Error(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// bearerToken extracts the credential from an "Authorization: Bearer" header.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return header[len(prefix):]
}
