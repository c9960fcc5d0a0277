package httpclient

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"petsched/internal/platform/metrics"
)

func TestNew_RecordsUpstreamRequests(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/fail" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(Options{Name: "test-upstream"}, zerolog.Nop())
	if c.Timeout != DefaultTimeout {
		t.Fatalf("timeout = %v, want default", c.Timeout)
	}

	for _, path := range []string{"/ok", "/fail"} {
		resp, err := c.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("get %s: %v", path, err)
		}
		resp.Body.Close()
	}

	if n := testutil.CollectAndCount(metrics.UpstreamRequestDuration, "petsched_upstream_request_duration_seconds"); n < 2 {
		t.Fatalf("expected ok and 502 series, got %d", n)
	}
}

func TestNew_TransportError(t *testing.T) {
	c := New(Options{Name: "down", Timeout: 200 * time.Millisecond}, zerolog.Nop())
	if _, err := c.Get("http://127.0.0.1:1/"); err == nil {
		t.Fatal("expected connection error")
	}
}
