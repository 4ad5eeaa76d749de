package middleware

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/pager/server/internal/auth"
)

type contextKey string

const verdictKey contextKey = "auth_verdict"

// authFailureBody is the response for any failed payload authentication
type authFailureBody struct {
	Message string `json:"message"`
	Failed  bool   `json:"failed"`
}

func respondAuthFailure(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(authFailureBody{
		Message: "Page must be properly authenticated",
		Failed:  true,
	})
}

// PayloadAuth authenticates the signed payload carried in the request body
// and attaches the verdict to the request context
func PayloadAuth(verifier *auth.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var payload auth.Payload
			if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
				respondAuthFailure(w)
				return
			}

			verdict := verifier.Verify(r.Context(), payload)
			if verdict.Failed {
				respondAuthFailure(w)
				return
			}

			ctx := context.WithValue(r.Context(), verdictKey, verdict)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// HeaderAuth authenticates the signed payload carried JSON-encoded in the
// "authentication" header; used where the body is reserved for file content
func HeaderAuth(verifier *auth.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var payload auth.Payload
			if err := json.Unmarshal([]byte(r.Header.Get("authentication")), &payload); err != nil {
				respondAuthFailure(w)
				return
			}

			verdict := verifier.Verify(r.Context(), payload)
			if verdict.Failed {
				respondAuthFailure(w)
				return
			}

			ctx := context.WithValue(r.Context(), verdictKey, verdict)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetVerdict returns the authentication verdict attached by PayloadAuth or
// HeaderAuth
func GetVerdict(ctx context.Context) (auth.Verdict, bool) {
	verdict, ok := ctx.Value(verdictKey).(auth.Verdict)
	return verdict, ok
}
