package auth

import (
	"encoding/json"
	"net/http"
	"strings"
)

// Middleware creates HTTP middleware that validates bearer tokens and
// attaches the actor to the request context.
type Middleware struct {
	validator *Validator
}

// NewMiddleware creates a new authentication middleware.
func NewMiddleware(validator *Validator) *Middleware {
	return &Middleware{validator: validator}
}

// Authenticate rejects requests without a valid bearer token and attaches
// the resolved Actor to the context otherwise.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := ExtractToken(r)
		if token == "" {
			writeJSONError(w, http.StatusUnauthorized, "authentication required")
			return
		}

		actor, err := m.validator.ValidateToken(token)
		if err != nil {
			message := "invalid token"
			switch err {
			case ErrExpiredToken:
				message = "token has expired"
			case ErrInvalidIssuer:
				message = "invalid token issuer"
			case ErrInvalidAudience:
				message = "invalid token audience"
			}
			writeJSONError(w, http.StatusUnauthorized, message)
			return
		}

		next.ServeHTTP(w, r.WithContext(ContextWithActor(r.Context(), actor)))
	})
}

// ExtractToken pulls the bearer token from the Authorization header.
func ExtractToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func writeJSONError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
