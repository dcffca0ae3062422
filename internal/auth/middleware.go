package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

type contextKey string

const (
	claimsKey   contextKey = "auth_claims"
	subjectKey  contextKey = "auth_subject"
	purchaseKey contextKey = "auth_purchase"
)

// PurchaseTokenHeader carries the buyer's purchase token.
const PurchaseTokenHeader = "X-Purchase-Token"

// PurchaseTokenQuery is the query parameter RequireStreamToken also reads.
const PurchaseTokenQuery = "token"

// ClaimsFromContext extracts JWT claims from request context.
func ClaimsFromContext(ctx context.Context) *Claims {
	claims, _ := ctx.Value(claimsKey).(*Claims)
	return claims
}

// SubjectFromContext extracts the subject ID string from request context.
func SubjectFromContext(ctx context.Context) string {
	sub, _ := ctx.Value(subjectKey).(string)
	return sub
}

// PurchaseFromContext returns the purchase ID proven by the request's token.
func PurchaseFromContext(ctx context.Context) string {
	id, _ := ctx.Value(purchaseKey).(string)
	return id
}

// AuthenticateAdmin returns middleware that validates admin JWT tokens.
func AuthenticateAdmin(jwtMgr *JWTManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := extractAndValidate(r, jwtMgr, RealmAdmin)
			if err != nil {
				writeAuthError(w, http.StatusUnauthorized, "UNAUTHORIZED", err.Error())
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey, claims)
			ctx = context.WithValue(ctx, subjectKey, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAdmin attaches admin claims when a valid bearer token is present
// and passes the request through untouched otherwise.
func OptionalAdmin(jwtMgr *JWTManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") == "" {
				next.ServeHTTP(w, r)
				return
			}
			claims, err := extractAndValidate(r, jwtMgr, RealmAdmin)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			ctx := context.WithValue(r.Context(), claimsKey, claims)
			ctx = context.WithValue(ctx, subjectKey, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole returns middleware that checks the admin role.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	roleSet := make(map[string]bool, len(roles))
	for _, r := range roles {
		roleSet[r] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFromContext(r.Context())
			if claims == nil {
				writeAuthError(w, http.StatusUnauthorized, "UNAUTHORIZED", "no auth context")
				return
			}
			if !roleSet[claims.Role] {
				writeAuthError(w, http.StatusForbidden, "FORBIDDEN", "insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequirePurchaseToken returns middleware that accepts either an admin JWT
// or a purchase token matching the {id} URL parameter. idParam extracts that
// parameter so the package stays router-agnostic.
func RequirePurchaseToken(tokens *PurchaseTokenManager, jwtMgr *JWTManager, idParam func(*http.Request) string) func(http.Handler) http.Handler {
	return purchaseTokenMiddleware(tokens, jwtMgr, idParam, false)
}

// RequireStreamToken is RequirePurchaseToken for WebSocket upgrades. Browsers
// cannot set headers on a WebSocket handshake, so the purchase token may also
// arrive as the PurchaseTokenQuery parameter.
func RequireStreamToken(tokens *PurchaseTokenManager, jwtMgr *JWTManager, idParam func(*http.Request) string) func(http.Handler) http.Handler {
	return purchaseTokenMiddleware(tokens, jwtMgr, idParam, true)
}

func purchaseTokenMiddleware(tokens *PurchaseTokenManager, jwtMgr *JWTManager, idParam func(*http.Request) string, allowQuery bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if claims, err := extractAndValidate(r, jwtMgr, RealmAdmin); err == nil {
				ctx := context.WithValue(r.Context(), claimsKey, claims)
				ctx = context.WithValue(ctx, subjectKey, claims.Subject)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			raw := r.Header.Get(PurchaseTokenHeader)
			if raw == "" && allowQuery {
				raw = r.URL.Query().Get(PurchaseTokenQuery)
			}
			if raw == "" {
				writeAuthError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing "+PurchaseTokenHeader+" header")
				return
			}
			tok, err := tokens.Verify(raw)
			if err != nil {
				writeAuthError(w, http.StatusUnauthorized, "UNAUTHORIZED", err.Error())
				return
			}
			if tok.PurchaseID != idParam(r) {
				writeAuthError(w, http.StatusForbidden, "FORBIDDEN", "token does not match purchase")
				return
			}

			ctx := context.WithValue(r.Context(), purchaseKey, tok.PurchaseID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeAuthError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"code":%q,"message":%q}`, code, msg)
}

func extractAndValidate(r *http.Request, jwtMgr *JWTManager, realm Realm) (*Claims, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return nil, fmt.Errorf("missing Authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return nil, fmt.Errorf("invalid Authorization format")
	}

	return jwtMgr.ValidateTokenForRealm(parts[1], realm)
}
