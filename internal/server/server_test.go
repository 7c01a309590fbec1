package server

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/desertthunder/tempo/internal/shared"
)

// freePort asks the kernel for an unused loopback port.
func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to find free port: %v", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func newTestRouter(sink func(Result), delay time.Duration) *BasicRouter {
	handler := NewCallbackHandler(sink, delay, shared.NewLogger(io.Discard))
	router := NewBasicRouter()
	router.Handler(handler)
	return router
}

func TestCallbackHandler(t *testing.T) {
	t.Run("Success Redirect", func(t *testing.T) {
		results := make(chan Result, 1)
		router := newTestRouter(func(r Result) { results <- r }, 0)

		req := httptest.NewRequest(http.MethodGet, "/callback?code=abc123&state=xyz", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", w.Code)
		}

		if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
			t.Errorf("expected html content type, got %s", ct)
		}

		if !strings.Contains(w.Body.String(), "Authorization Successful") {
			t.Error("expected success page body")
		}

		select {
		case res := <-results:
			if res.Code != "abc123" || res.State != "xyz" || res.ErrCode != "" {
				t.Errorf("unexpected result %+v", res)
			}
		case <-time.After(time.Second):
			t.Fatal("hand-off never fired")
		}
	})

	t.Run("Handoff Fires After Response", func(t *testing.T) {
		served := make(chan struct{})
		results := make(chan Result, 1)
		router := newTestRouter(func(r Result) {
			<-served // the page must be written before the hand-off runs
			results <- r
		}, 50*time.Millisecond)

		req := httptest.NewRequest(http.MethodGet, "/callback?code=abc&state=s", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		close(served)

		select {
		case <-results:
		case <-time.After(time.Second):
			t.Fatal("delayed hand-off never fired")
		}
	})

	t.Run("Provider Error Redirect", func(t *testing.T) {
		results := make(chan Result, 1)
		router := newTestRouter(func(r Result) { results <- r }, time.Hour)

		req := httptest.NewRequest(http.MethodGet, "/callback?error=access_denied&state=xyz", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", w.Code)
		}

		if !strings.Contains(w.Body.String(), "access_denied") {
			t.Error("expected error code in page body")
		}

		// Error hand-offs skip the paint delay
		select {
		case res := <-results:
			if res.ErrCode != "access_denied" {
				t.Errorf("unexpected result %+v", res)
			}
		case <-time.After(time.Second):
			t.Fatal("error hand-off never fired")
		}
	})

	t.Run("Error Code Is HTML Escaped", func(t *testing.T) {
		router := newTestRouter(func(Result) {}, 0)

		req := httptest.NewRequest(http.MethodGet, "/callback?error=%3Cscript%3Ealert(1)%3C%2Fscript%3E", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		body := w.Body.String()
		if strings.Contains(body, "<script>") {
			t.Error("raw script tag leaked into result page")
		}
		if !strings.Contains(body, "&lt;script&gt;") {
			t.Error("expected escaped error code in page body")
		}
	})

	t.Run("Neither Code Nor Error", func(t *testing.T) {
		fired := atomic.Bool{}
		router := newTestRouter(func(Result) { fired.Store(true) }, 0)

		req := httptest.NewRequest(http.MethodGet, "/callback?state=xyz", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", w.Code)
		}

		time.Sleep(20 * time.Millisecond)
		if fired.Load() {
			t.Error("malformed callback should not hand off")
		}
	})

	t.Run("Second Callback Rejected", func(t *testing.T) {
		count := atomic.Int32{}
		router := newTestRouter(func(Result) { count.Add(1) }, 0)

		first := httptest.NewRecorder()
		router.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/callback?code=one&state=s", nil))

		second := httptest.NewRecorder()
		router.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/callback?code=two&state=s", nil))

		if second.Code != http.StatusBadRequest {
			t.Errorf("expected status 400 for replayed callback, got %d", second.Code)
		}

		time.Sleep(20 * time.Millisecond)
		if got := count.Load(); got != 1 {
			t.Errorf("expected exactly one hand-off, got %d", got)
		}
	})

	t.Run("Unknown Path Is Not Found", func(t *testing.T) {
		router := newTestRouter(func(Result) {}, 0)

		req := httptest.NewRequest(http.MethodGet, "/anything-else", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", w.Code)
		}

		if body := strings.TrimSpace(w.Body.String()); body != "Not Found" {
			t.Errorf("expected plain Not Found body, got %q", body)
		}
	})
}

func TestListener(t *testing.T) {
	logger := shared.NewLogger(io.Discard)

	t.Run("Serves And Stops", func(t *testing.T) {
		port := freePort(t)
		router := newTestRouter(func(Result) {}, 0)
		listener := NewListener("127.0.0.1", port, router, logger)

		if err := listener.Start(); err != nil {
			t.Fatalf("failed to start listener: %v", err)
		}

		resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/nope", port))
		if err != nil {
			t.Fatalf("failed to reach listener: %v", err)
		}
		resp.Body.Close()

		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("expected 404 from unknown path, got %d", resp.StatusCode)
		}

		if err := listener.Stop(t.Context()); err != nil {
			t.Fatalf("failed to stop listener: %v", err)
		}

		// Port must be free again once stopped
		ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
		if err != nil {
			t.Fatalf("port not released after stop: %v", err)
		}
		ln.Close()
	})

	t.Run("Port In Use Is Distinct", func(t *testing.T) {
		port := freePort(t)

		holder, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
		if err != nil {
			t.Fatalf("failed to occupy port: %v", err)
		}
		defer holder.Close()

		listener := NewListener("127.0.0.1", port, newTestRouter(func(Result) {}, 0), logger)
		err = listener.Start()

		if err == nil {
			listener.Stop(t.Context())
			t.Fatal("expected bind failure on occupied port")
		}

		if !errors.Is(err, shared.ErrPortInUse) {
			t.Errorf("expected ErrPortInUse, got %v", err)
		}
	})

	t.Run("Stop Is Idempotent", func(t *testing.T) {
		port := freePort(t)
		listener := NewListener("127.0.0.1", port, newTestRouter(func(Result) {}, 0), logger)

		if err := listener.Start(); err != nil {
			t.Fatalf("failed to start listener: %v", err)
		}

		for range 3 {
			if err := listener.Stop(t.Context()); err != nil {
				t.Errorf("stop should be a no-op, got %v", err)
			}
		}
	})

	t.Run("Stop Before Start Is A No-Op", func(t *testing.T) {
		listener := NewListener("127.0.0.1", freePort(t), newTestRouter(func(Result) {}, 0), logger)
		if err := listener.Stop(t.Context()); err != nil {
			t.Errorf("stopping a never-started listener should be a no-op, got %v", err)
		}
	})
}
