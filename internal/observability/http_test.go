package observability

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClientMetaFromRequest(t *testing.T) {
	r := httptest.NewRequest("GET", "/ws/directory", nil)
	r.Header.Set("X-Device-Id", "device-7")
	r.Header.Set("X-Request-Id", "req-7")
	r.RemoteAddr = "10.0.0.5:52100"

	meta := ClientMetaFromRequest(r)
	assert.Equal(t, "device-7", meta.DeviceID)
	assert.Equal(t, "req-7", meta.RequestID)
	assert.Equal(t, "10.0.0.5", meta.IP)
}

func TestClientMetaPrefersForwardedFor(t *testing.T) {
	r := httptest.NewRequest("GET", "/ws/directory", nil)
	r.Header.Set("X-Forwarded-For", " 203.0.113.9 , 10.0.0.5")
	r.RemoteAddr = "10.0.0.5:52100"

	meta := ClientMetaFromRequest(r)
	assert.Equal(t, "203.0.113.9", meta.IP)
}

func TestClientMetaFallsBackToRemoteAddr(t *testing.T) {
	r := httptest.NewRequest("GET", "/ws/directory", nil)
	r.RemoteAddr = "not-host-port"

	meta := ClientMetaFromRequest(r)
	assert.Equal(t, "not-host-port", meta.IP)
}
