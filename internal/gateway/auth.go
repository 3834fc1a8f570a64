package gateway

import (
	"net/http"

	"github.com/pquerna/otp/totp"
)

// authHeader carries the one-time code for mutating endpoints.
const authHeader = "X-Auth-Code"

// checkTOTP validates the request's one-time code against the shared
// secret. An empty secret disables mutating endpoints entirely.
func checkTOTP(r *http.Request, secret string) bool {
	if secret == "" {
		return false
	}
	code := r.Header.Get(authHeader)
	if code == "" {
		code = r.URL.Query().Get("code")
	}
	if code == "" {
		return false
	}
	return totp.Validate(code, secret)
}
