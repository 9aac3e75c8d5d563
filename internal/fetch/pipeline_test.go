package fetch

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/crawlcore/internal/models"
)

func newTestPipeline(t *testing.T, server *httptest.Server, cfg models.CrawlConfig) *Pipeline {
	t.Helper()
	fetcher := NewHTTPFetcher()
	robots := NewRobotsGate(server.Client(), cfg.UserAgent)
	hosts := NewHostLimiter(cfg.EffectiveDelay(), cfg.EffectivePerHostCap())
	retry := NewRetryPolicy(cfg.MaxRetries)
	return New(fetcher, robots, hosts, retry, cfg, nil)
}

func baseConfig() models.CrawlConfig {
	cfg := models.DefaultCrawlConfig([]string{"https://example.test"})
	cfg.DelaySeconds = 0
	cfg.TimeoutSeconds = 5
	cfg.MaxRetries = 2
	return cfg
}

func TestConditionalGetReturnsNotModified(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/page", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == `"etag-1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"etag-1"`)
		w.Write([]byte("hello"))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	cfg := baseConfig()
	cfg.RespectRobots = false
	p := newTestPipeline(t, server, cfg)

	out := p.Fetch(t.Context(), server.URL+"/page", 0, `"etag-1"`, "")
	assert.True(t, out.NotModified)
	require.Nil(t, out.Failure)
}

func TestRobotsDenialRecordedNotFatal(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("User-agent: *\nDisallow: /private\n"))
	})
	mux.HandleFunc("/private/page", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("should not be reached"))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	cfg := baseConfig()
	cfg.RespectRobots = true
	p := newTestPipeline(t, server, cfg)

	out := p.Fetch(t.Context(), server.URL+"/private/page", 0, "", "")
	require.NotNil(t, out.Failure)
	assert.Equal(t, "robots_denied", out.Failure.Reason)
}

func TestRetryAfterHonouredOn429(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	attempts := 0
	mux.HandleFunc("/z", func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte("ok"))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	cfg := baseConfig()
	cfg.RespectRobots = false
	p := newTestPipeline(t, server, cfg)

	start := time.Now()
	out := p.Fetch(t.Context(), server.URL+"/z", 0, "", "")
	elapsed := time.Since(start)

	require.Nil(t, out.Failure)
	require.NotNil(t, out.Response)
	assert.Equal(t, 2, attempts)
	assert.GreaterOrEqual(t, elapsed, time.Second)
}

func TestTooLargeBodyAborted(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/big", func(w http.ResponseWriter, r *http.Request) {
		w.Write(make([]byte, 1024))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	cfg := baseConfig()
	cfg.RespectRobots = false
	cfg.MaxFileBytes = 100
	p := newTestPipeline(t, server, cfg)

	out := p.Fetch(t.Context(), server.URL+"/big", 0, "", "")
	require.NotNil(t, out.Failure)
}
