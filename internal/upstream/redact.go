package upstream

import (
	"net/url"
	"strings"
)

// secretParams are query keys whose values must never reach an error
// message, a log line, or the sync_error column.
var secretParams = []string{
	"access_token",
	"appsecret_proof",
	"client_secret",
	"fb_exchange_token",
	"refresh_token",
	"code",
	"developer_token",
}

// RedactURL masks credential-bearing query values in raw.  Input that does
// not parse is dropped to its path so nothing leaks through a bad URL.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		if i := strings.IndexByte(raw, '?'); i >= 0 {
			return raw[:i] + "?REDACTED"
		}
		return raw
	}
	u.User = nil
	if u.RawQuery == "" {
		return u.String()
	}
	q := u.Query()
	for _, k := range secretParams {
		if q.Has(k) {
			q.Set(k, "REDACTED")
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}
