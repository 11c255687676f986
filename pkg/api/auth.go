package api

import (
	echo "github.com/labstack/echo/v5"
)

// identityHeaders are the trusted headers the authenticating proxy in front
// of smokestack sets, in precedence order. The service never verifies
// credentials itself; it records whichever identity the proxy asserts.
var identityHeaders = []string{
	"X-Forwarded-User",
	"X-Forwarded-Email",
	"X-Remote-User",
}

// extractAuthor resolves the acting user for a request. Requests that carry
// no identity header (direct automation inside the trust boundary) act as
// the shared "api-client" user.
func extractAuthor(c *echo.Context) string {
	for _, h := range identityHeaders {
		if v := c.Request().Header.Get(h); v != "" {
			return v
		}
	}
	return "api-client"
}
