package http_test

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkghttp "github.com/BradenHooton/otpflow/pkg/http"
)

func TestExtractClientIP(t *testing.T) {
	proxies := []string{"10.0.0.0/8", "172.16.0.0/12", "2001:db8::/32"}

	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		xRealIP    string
		config     *pkghttp.IPConfig
		want       string
	}{
		{
			name:       "direct connection ignores spoofed headers",
			remoteAddr: "203.0.113.10:54321",
			xff:        "1.2.3.4, 5.6.7.8",
			xRealIP:    "192.168.1.1",
			config:     pkghttp.NewIPConfig(proxies),
			want:       "203.0.113.10",
		},
		{
			name:       "trusted proxy uses first forwarded address",
			remoteAddr: "10.0.0.5:54321",
			xff:        "203.0.113.42, 10.0.0.5",
			config:     pkghttp.NewIPConfig(proxies),
			want:       "203.0.113.42",
		},
		{
			name:       "trusted proxy skips invalid forwarded entries",
			remoteAddr: "10.0.0.5:54321",
			xff:        "not-an-ip, 198.51.100.7",
			config:     pkghttp.NewIPConfig(proxies),
			want:       "198.51.100.7",
		},
		{
			name:       "trusted proxy falls back to X-Real-IP",
			remoteAddr: "172.16.4.4:1234",
			xRealIP:    "198.51.100.9",
			config:     pkghttp.NewIPConfig(proxies),
			want:       "198.51.100.9",
		},
		{
			name:       "ipv6 trusted proxy",
			remoteAddr: "[2001:db8::1]:443",
			xff:        "2001:db8:cafe::17",
			config:     pkghttp.NewIPConfig(proxies),
			want:       "2001:db8:cafe::17",
		},
		{
			name:       "nil config defaults to remote address",
			remoteAddr: "10.0.0.5:54321",
			xff:        "1.2.3.4",
			want:       "10.0.0.5",
		},
		{
			name:       "invalid CIDR trusts nothing",
			remoteAddr: "10.0.0.5:54321",
			xff:        "1.2.3.4",
			config:     pkghttp.NewIPConfig([]string{"not-a-cidr"}),
			want:       "10.0.0.5",
		},
		{
			name:       "literal config without constructor",
			remoteAddr: "10.0.0.5:54321",
			xff:        "1.2.3.4",
			config:     &pkghttp.IPConfig{TrustedProxies: []string{"10.0.0.0/8"}},
			want:       "1.2.3.4",
		},
		{
			name:       "remote address without port",
			remoteAddr: "203.0.113.10",
			config:     pkghttp.NewIPConfig(nil),
			want:       "203.0.113.10",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/auth/signup", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xRealIP != "" {
				req.Header.Set("X-Real-IP", tt.xRealIP)
			}

			assert.Equal(t, tt.want, pkghttp.ExtractClientIP(req, tt.config))
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	type body struct {
		Email string `json:"email"`
	}

	t.Run("valid", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/", strings.NewReader(`{"email":"a@b.com"}`))
		var dst body
		require.NoError(t, pkghttp.DecodeJSON(httptest.NewRecorder(), req, &dst))
		assert.Equal(t, "a@b.com", dst.Email)
	})

	t.Run("unknown field", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/", strings.NewReader(`{"email":"a@b.com","admin":true}`))
		var dst body
		assert.Error(t, pkghttp.DecodeJSON(httptest.NewRecorder(), req, &dst))
	})

	t.Run("trailing data", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/", strings.NewReader(`{"email":"a@b.com"}{}`))
		var dst body
		assert.ErrorContains(t, pkghttp.DecodeJSON(httptest.NewRecorder(), req, &dst), "single JSON object")
	})

	t.Run("malformed", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/", strings.NewReader(`{"email":`))
		var dst body
		assert.ErrorContains(t, pkghttp.DecodeJSON(httptest.NewRecorder(), req, &dst), "invalid request body")
	})

	t.Run("too large", func(t *testing.T) {
		payload := `{"email":"` + strings.Repeat("a", pkghttp.MaxBodyBytes) + `"}`
		req := httptest.NewRequest("POST", "/", strings.NewReader(payload))
		var dst body
		assert.ErrorContains(t, pkghttp.DecodeJSON(httptest.NewRecorder(), req, &dst), "exceeds")
	})
}
