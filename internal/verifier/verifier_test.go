package verifier

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/broken-link-analyzer/internal/linkcheck"
)

func newSite(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var heads atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			heads.Add(1)
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/moved", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ok", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/head-rejected", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &heads
}

func link(i int, u string) linkcheck.ResolvedLink {
	return linkcheck.ResolvedLink{Index: i, URL: u, Classification: linkcheck.Internal, Kind: linkcheck.KindHyperlink}
}

func TestVerifyAllOutcomes(t *testing.T) {
	t.Parallel()

	srv, heads := newSite(t)
	v := New(Config{Timeout: 200 * time.Millisecond, Concurrency: 3}, nil)
	links := []linkcheck.ResolvedLink{
		link(0, srv.URL+"/ok"),
		link(1, srv.URL+"/missing"),
		link(2, srv.URL+"/moved"),
		link(3, srv.URL+"/slow"),
		{Index: 4, URL: "%zz", Invalid: true, Reason: "bad escape", Classification: linkcheck.Internal},
		link(5, "http://127.0.0.1:1/refused"),
	}

	var mu sync.Mutex
	var observed int
	got := v.VerifyAll(context.Background(), links, srv.URL+"/", func(linkcheck.CheckedLink) {
		mu.Lock()
		observed++
		mu.Unlock()
	})

	require.Len(t, got, len(links))
	require.Equal(t, len(links), observed)
	for i, c := range got {
		require.Equal(t, links[i].URL, c.URL)
		require.Equal(t, srv.URL+"/", c.SourceURL)
	}

	require.Equal(t, http.StatusOK, got[0].StatusCode)
	require.False(t, got[0].Broken())
	require.Empty(t, got[0].ErrorType)

	require.Equal(t, http.StatusNotFound, got[1].StatusCode)
	require.Equal(t, "Not Found", got[1].ErrorType)
	require.True(t, got[1].Broken())

	require.Equal(t, http.StatusOK, got[2].StatusCode, "redirects are followed")

	require.Zero(t, got[3].StatusCode)
	require.Equal(t, linkcheck.ErrorTypeTimeout, got[3].ErrorType)
	require.NotEmpty(t, got[3].ErrorDetail)

	require.Zero(t, got[4].StatusCode)
	require.Equal(t, linkcheck.ErrorTypeInvalid, got[4].ErrorType)
	require.Equal(t, "bad escape", got[4].ErrorDetail)

	require.Zero(t, got[5].StatusCode)
	require.Equal(t, linkcheck.ErrorTypeInvalid, got[5].ErrorType)

	require.Equal(t, int32(2), heads.Load(), "HEAD for /ok and the redirected /moved")
}

func TestVerifyAllEmpty(t *testing.T) {
	t.Parallel()

	v := New(Config{}, nil)
	called := false
	got := v.VerifyAll(context.Background(), nil, "https://example.com/", func(linkcheck.CheckedLink) { called = true })
	require.Empty(t, got)
	require.False(t, called)
}

func TestVerifyAllCancelled(t *testing.T) {
	t.Parallel()

	srv, _ := newSite(t)
	v := New(Config{Timeout: 5 * time.Second, Concurrency: 2}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	start := time.Now()
	got := v.VerifyAll(ctx, []linkcheck.ResolvedLink{
		link(0, srv.URL+"/slow"),
		link(1, srv.URL+"/slow?x=1"),
	}, srv.URL, nil)
	require.Less(t, time.Since(start), time.Second)
	for _, c := range got {
		require.Equal(t, linkcheck.ErrorTypeCancelled, c.ErrorType)
		require.Zero(t, c.StatusCode)
	}
}

func TestVerifyGetFallback(t *testing.T) {
	t.Parallel()

	srv, _ := newSite(t)
	links := []linkcheck.ResolvedLink{link(0, srv.URL+"/head-rejected")}

	plain := New(Config{}, nil).VerifyAll(context.Background(), links, srv.URL, nil)
	require.Equal(t, http.StatusMethodNotAllowed, plain[0].StatusCode)
	require.Equal(t, "Method Not Allowed", plain[0].ErrorType)

	fallback := New(Config{GetFallback: true}, nil).VerifyAll(context.Background(), links, srv.URL, nil)
	require.Equal(t, http.StatusOK, fallback[0].StatusCode)
}

func TestVerifyRetriesTransientStatus(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)

	v := New(Config{MaxRetries: 2, BackoffInitial: time.Millisecond, BackoffMax: 5 * time.Millisecond}, nil)
	got := v.VerifyAll(context.Background(), []linkcheck.ResolvedLink{link(0, srv.URL)}, srv.URL, nil)
	require.Equal(t, http.StatusNoContent, got[0].StatusCode)
	require.Equal(t, int32(3), calls.Load())
}

func TestVerifyNoRetryByDefault(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	got := New(Config{}, nil).VerifyAll(context.Background(), []linkcheck.ResolvedLink{link(0, srv.URL)}, srv.URL, nil)
	require.Equal(t, http.StatusServiceUnavailable, got[0].StatusCode)
	require.Equal(t, "Service Unavailable", got[0].ErrorType)
	require.Equal(t, int32(1), calls.Load())
}

func TestVerifyBlocksPrivateNetworks(t *testing.T) {
	t.Parallel()

	srv, heads := newSite(t)
	v := New(Config{BlockPrivateNetworks: true}, nil)
	got := v.VerifyAll(context.Background(), []linkcheck.ResolvedLink{link(0, srv.URL+"/ok")}, srv.URL, nil)
	require.Zero(t, got[0].StatusCode)
	require.Equal(t, linkcheck.ErrorTypeInvalid, got[0].ErrorType)
	require.Contains(t, got[0].ErrorDetail, "not allowed")
	require.Zero(t, heads.Load())
}

func TestIsBlockedIP(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"127.0.0.1", "10.1.2.3", "192.168.0.1", "::1", "::ffff:127.0.0.1", "100.64.0.1", "169.254.1.1"} {
		require.Truef(t, isBlockedIP(netip.MustParseAddr(raw)), raw)
	}
	for _, raw := range []string{"8.8.8.8", "2606:4700:4700::1111"} {
		require.Falsef(t, isBlockedIP(netip.MustParseAddr(raw)), raw)
	}
}

func TestRetryPolicyBackoffBounds(t *testing.T) {
	t.Parallel()

	p := newRetryPolicy(3, 100*time.Millisecond, 400*time.Millisecond)
	for attempt := 0; attempt < 6; attempt++ {
		d := p.backoff(attempt)
		require.GreaterOrEqual(t, d, time.Duration(0))
		require.LessOrEqual(t, d, 400*time.Millisecond)
	}
	require.False(t, p.shouldRetry(context.Canceled, 0, 0))
	require.False(t, p.shouldRetry(nil, http.StatusNotFound, 0))
	require.True(t, p.shouldRetry(nil, http.StatusBadGateway, 2))
	require.False(t, p.shouldRetry(nil, http.StatusBadGateway, 3))
}
