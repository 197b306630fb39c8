package middleware

import (
	"github.com/gin-gonic/gin"
)

// ClientIPHeaders are consulted in order when the direct peer is a trusted
// proxy. X-Forwarded-For is walked right to left and its first untrusted hop
// wins.
var ClientIPHeaders = []string{
	"X-Forwarded-For",
	"X-Real-IP",
	"CF-Connecting-IP",
	"X-Client-IP",
}

// ConfigureClientIP makes the engine honor forwarding headers only when the
// request arrives from one of trustedProxies (IPs or CIDRs). With no trusted
// proxies the socket address is always used.
func ConfigureClientIP(engine *gin.Engine, trustedProxies []string) error {
	engine.ForwardedByClientIP = true
	engine.RemoteIPHeaders = ClientIPHeaders
	return engine.SetTrustedProxies(trustedProxies)
}

// ClientIP returns the caller's address for logging, rate limiting and audit.
// Loopback spellings are normalized to 127.0.0.1.
func ClientIP(c *gin.Context) string {
	return normalizeIP(c.ClientIP())
}

func normalizeIP(ip string) string {
	switch ip {
	case "", "::1", "localhost", "unknown", "::ffff:127.0.0.1":
		return "127.0.0.1"
	}
	return ip
}
