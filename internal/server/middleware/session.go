package middleware

import (
	"net/http"
	"strings"
)

// SessionHeader carries the caller's session id.
const SessionHeader = "X-Session-ID"

// DefaultSession is used when a request names no session.
const DefaultSession = "default"

// SessionID resolves the caller's session: the X-Session-ID header, then the
// session query parameter, then DefaultSession. The REST handlers and the
// WebSocket upgrade share it so both resolve the same ledger.
func SessionID(r *http.Request) string {
	if s := strings.TrimSpace(r.Header.Get(SessionHeader)); s != "" {
		return s
	}
	if s := strings.TrimSpace(r.URL.Query().Get("session")); s != "" {
		return s
	}
	return DefaultSession
}
