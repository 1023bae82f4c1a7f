package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bsvalues/PACS-DataBridge/internal/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRequestID(t *testing.T) {
	serve := func(header string) *httptest.ResponseRecorder {
		router := gin.New()
		router.Use(RequestID())
		router.GET("/test", func(c *gin.Context) {
			c.String(200, GetRequestID(c))
		})
		req := httptest.NewRequest("GET", "/test", nil)
		if header != "" {
			req.Header.Set(RequestIDHeader, header)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	t.Run("generates new request ID", func(t *testing.T) {
		w := serve("")
		headerID := w.Header().Get(RequestIDHeader)
		if headerID == "" {
			t.Fatal("Expected X-Request-ID header to be set")
		}
		if w.Body.String() != headerID {
			t.Errorf("Expected body to contain request ID %s, got %s", headerID, w.Body.String())
		}
	})

	t.Run("uses existing request ID from header", func(t *testing.T) {
		w := serve("upstream-123")
		if w.Body.String() != "upstream-123" {
			t.Errorf("Expected upstream request ID, got %s", w.Body.String())
		}
	})

	t.Run("replaces malformed upstream IDs", func(t *testing.T) {
		for _, bad := range []string{"has space", strings.Repeat("a", 200)} {
			w := serve(bad)
			if w.Body.String() == bad {
				t.Errorf("Expected %q to be replaced", bad)
			}
			if len(w.Body.String()) != 36 {
				t.Errorf("Expected a generated UUID, got %q", w.Body.String())
			}
		}
	})

	t.Run("GetRequestID returns empty string if not set", func(t *testing.T) {
		if id := GetRequestID(&gin.Context{}); id != "" {
			t.Errorf("Expected empty string, got %s", id)
		}
	})
}

func TestCORS(t *testing.T) {
	allowedOrigins := []string{"http://localhost:3000", "http://localhost:3001"}

	request := func(origins []string, method, origin string) *httptest.ResponseRecorder {
		router := gin.New()
		router.Use(CORS(origins))
		router.Handle(method, "/test", func(c *gin.Context) {
			c.String(200, "OK")
		})
		req := httptest.NewRequest(method, "/test", nil)
		req.Header.Set("Origin", origin)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	t.Run("allows request from allowed origin", func(t *testing.T) {
		w := request(allowedOrigins, "GET", "http://localhost:3000")
		if w.Code != 200 {
			t.Errorf("Expected status 200, got %d", w.Code)
		}
		if w.Header().Get("Access-Control-Allow-Origin") != "http://localhost:3000" {
			t.Error("Expected Access-Control-Allow-Origin header to be set")
		}
		if w.Header().Get("Access-Control-Allow-Credentials") != "true" {
			t.Error("Expected Access-Control-Allow-Credentials header to be set")
		}
	})

	t.Run("does not set CORS headers for disallowed origin", func(t *testing.T) {
		w := request(allowedOrigins, "GET", "http://evil.com")
		if w.Header().Get("Access-Control-Allow-Origin") != "" {
			t.Error("Expected no CORS headers for disallowed origin")
		}
	})

	t.Run("handles OPTIONS preflight", func(t *testing.T) {
		if w := request(allowedOrigins, "OPTIONS", "http://localhost:3000"); w.Code != 204 {
			t.Errorf("Expected status 204 for OPTIONS, got %d", w.Code)
		}
		if w := request(allowedOrigins, "OPTIONS", "http://evil.com"); w.Code != 403 {
			t.Errorf("Expected status 403 for disallowed OPTIONS, got %d", w.Code)
		}
	})

	t.Run("wildcard allows any origin without credentials", func(t *testing.T) {
		w := request([]string{"*"}, "GET", "http://anywhere.example")
		if w.Header().Get("Access-Control-Allow-Origin") != "*" {
			t.Errorf("Expected wildcard origin, got %q", w.Header().Get("Access-Control-Allow-Origin"))
		}
		if w.Header().Get("Access-Control-Allow-Credentials") != "" {
			t.Error("Expected no credentials header for wildcard origin")
		}
	})
}

type observation struct {
	method, route string
	status        int
}

type recordingObserver struct {
	mu   sync.Mutex
	seen []observation
}

func (r *recordingObserver) RequestServed(method, route string, status int, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, observation{method, route, status})
}

func TestLogger(t *testing.T) {
	t.Run("stores request logger and observes route", func(t *testing.T) {
		obs := &recordingObserver{}
		router := gin.New()
		router.Use(RequestID())
		router.Use(Logger(logger.Nop(), obs))
		router.GET("/imports/:id", func(c *gin.Context) {
			if GetLogger(c) == nil {
				t.Error("Expected logger to be in context")
			}
			c.String(200, "OK")
		})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", "/imports/42?verbose=1", nil))
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/nope", nil))

		if w.Code != 200 {
			t.Errorf("Expected status 200, got %d", w.Code)
		}
		want := []observation{
			{"GET", "/imports/:id", 200},
			{"GET", "unmatched", 404},
		}
		if len(obs.seen) != len(want) {
			t.Fatalf("Expected %d observations, got %d", len(want), len(obs.seen))
		}
		for i := range want {
			if obs.seen[i] != want[i] {
				t.Errorf("observation %d: expected %+v, got %+v", i, want[i], obs.seen[i])
			}
		}
	})

	t.Run("nil observer is allowed", func(t *testing.T) {
		router := gin.New()
		router.Use(Logger(logger.Nop(), nil))
		router.GET("/health", func(c *gin.Context) { c.Status(200) })

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
		if w.Code != 200 {
			t.Errorf("Expected status 200, got %d", w.Code)
		}
	})

	t.Run("GetLogger returns nil if not set", func(t *testing.T) {
		if GetLogger(&gin.Context{}) != nil {
			t.Error("Expected nil logger")
		}
	})
}

func TestRecovery(t *testing.T) {
	t.Run("recovers from panic and returns 500", func(t *testing.T) {
		router := gin.New()
		router.Use(RequestID())
		router.Use(Recovery(logger.Nop()))
		router.GET("/panic", func(c *gin.Context) {
			panic("test panic")
		})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", "/panic", nil))

		if w.Code != 500 {
			t.Errorf("Expected status 500 after panic, got %d", w.Code)
		}
		body := w.Body.String()
		if !strings.Contains(body, "INTERNAL_SERVER_ERROR") {
			t.Error("Expected error response to contain INTERNAL_SERVER_ERROR")
		}
		if !strings.Contains(body, w.Header().Get(RequestIDHeader)) {
			t.Error("Expected error response to contain the request ID")
		}
	})

	t.Run("re-raises ErrAbortHandler", func(t *testing.T) {
		router := gin.New()
		router.Use(Recovery(logger.Nop()))
		router.GET("/abort", func(c *gin.Context) {
			panic(http.ErrAbortHandler)
		})

		defer func() {
			if rec := recover(); rec != http.ErrAbortHandler {
				t.Errorf("Expected ErrAbortHandler to propagate, got %v", rec)
			}
		}()
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/abort", nil))
		t.Error("Expected ServeHTTP to panic")
	})

	t.Run("does not interfere with normal requests", func(t *testing.T) {
		router := gin.New()
		router.Use(Recovery(logger.Nop()))
		router.GET("/normal", func(c *gin.Context) {
			c.String(200, "OK")
		})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", "/normal", nil))
		if w.Code != 200 || w.Body.String() != "OK" {
			t.Errorf("Expected 200 OK, got %d %s", w.Code, w.Body.String())
		}
	})
}

func TestMiddlewareStack(t *testing.T) {
	log := logger.Nop()

	router := gin.New()
	router.Use(RequestID())
	router.Use(Logger(log, nil))
	router.Use(Recovery(log))
	router.Use(CORS([]string{"http://localhost:3000"}))
	router.GET("/test", func(c *gin.Context) {
		if GetRequestID(c) == "" {
			t.Error("Expected request ID from RequestID middleware")
		}
		if GetLogger(c) == nil {
			t.Error("Expected logger from Logger middleware")
		}
		c.String(200, "OK")
	})

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != 200 {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	if w.Header().Get(RequestIDHeader) == "" {
		t.Error("Expected X-Request-ID header")
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "http://localhost:3000" {
		t.Error("Expected CORS headers")
	}
}
