package requestinfo

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientIPPrefersForwardedFor(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.1:5555"
	r.Header.Set("X-Forwarded-For", "garbage, 203.0.113.9, 10.0.0.2")
	if got := clientIP(r).String(); got != "203.0.113.9" {
		t.Fatalf("clientIP = %s", got)
	}

	r.Header.Del("X-Forwarded-For")
	r.Header.Set("X-Real-Ip", "198.51.100.4")
	if got := clientIP(r).String(); got != "198.51.100.4" {
		t.Fatalf("clientIP = %s", got)
	}

	r.Header.Del("X-Real-Ip")
	if got := clientIP(r).String(); got != "10.0.0.1" {
		t.Fatalf("clientIP = %s", got)
	}
}

func TestEnrichAttachesInfo(t *testing.T) {
	var got *Info
	h := Enrich(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = FromContext(r.Context())
	}))

	r := httptest.NewRequest(http.MethodPost, "/api/sync", nil)
	r.RemoteAddr = "192.0.2.7:1234"
	r.Header.Set("User-Agent",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36")
	h.ServeHTTP(httptest.NewRecorder(), r)

	if got == nil {
		t.Fatal("Info missing from context")
	}
	if got.IPString() != "192.0.2.7" {
		t.Errorf("IP = %s", got.IPString())
	}
	if got.UA.Browser != "Chrome" {
		t.Errorf("Browser = %q", got.UA.Browser)
	}
	if got.CountryISO != "" {
		t.Errorf("country without GeoLite2 DB = %q", got.CountryISO)
	}
	if s := got.UA.Summary(); s == "" {
		t.Error("empty UA summary")
	}
}

func TestFromContextWithoutMiddleware(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	if FromContext(r.Context()) != nil {
		t.Fatal("expected nil Info")
	}
	var i *Info
	if i.IPString() != "" {
		t.Fatal("nil Info must render empty IP")
	}
}
