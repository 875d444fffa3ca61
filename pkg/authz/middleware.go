package authz

import (
	"net/http"

	"github.com/platinummonkey/carehub/pkg/httputil"
)

// NotAuthorizedMessage is the only detail returned for a denied request.
const NotAuthorizedMessage = "not authorized"

// RequireRole rejects requests whose caller does not hold role. Callers
// without a subject get 401; everyone else who is denied gets 403 with a
// generic body that does not name the missing role.
func RequireRole(gate *Gate, role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if gate.identity == nil {
				httputil.WriteErrorMessage(w, http.StatusForbidden, NotAuthorizedMessage)
				return
			}

			subjectID, ok := gate.identity.CurrentSubject(r.Context())
			if !ok {
				httputil.WriteErrorMessage(w, http.StatusUnauthorized, "authentication required")
				return
			}

			if !gate.IsAuthorized(r.Context(), subjectID, role) {
				httputil.WriteErrorMessage(w, http.StatusForbidden, NotAuthorizedMessage)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
