package httpclient

import (
	"net/http"
	"testing"
	"time"
)

func TestNewOutbound_Timeout(t *testing.T) {
	c := NewOutbound(5 * time.Second)
	if c.Timeout != 5*time.Second {
		t.Fatalf("timeout=%v", c.Timeout)
	}
	if tr, ok := c.Transport.(*http.Transport); !ok || tr.ResponseHeaderTimeout != 5*time.Second {
		t.Fatalf("transport not configured: %#v", c.Transport)
	}
	if d := NewOutbound(0).Timeout; d != 30*time.Second {
		t.Fatalf("default timeout=%v", d)
	}
}
