package fetch

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
)

// RobotsGate fetches and caches robots.txt per host and decides whether a
// URL is allowed to be fetched.
type RobotsGate struct {
	client    *http.Client
	userAgent string

	mu    sync.Mutex
	byHost map[string]*robotstxt.RobotsData
}

// NewRobotsGate constructs a RobotsGate using client for robots.txt
// fetches.
func NewRobotsGate(client *http.Client, userAgent string) *RobotsGate {
	return &RobotsGate{
		client:    client,
		userAgent: userAgent,
		byHost:    make(map[string]*robotstxt.RobotsData),
	}
}

// Allowed reports whether urlStr may be fetched under the host's
// robots.txt. On any fetch/parse failure it fails open (allowed), matching
// the common crawler convention of treating a missing or broken
// robots.txt as "no restrictions".
func (g *RobotsGate) Allowed(ctx context.Context, urlStr string) bool {
	u, err := url.Parse(urlStr)
	if err != nil {
		return true
	}

	data := g.dataFor(ctx, u)
	if data == nil {
		return true
	}
	group := data.FindGroup(g.userAgent)
	return group.Test(u.Path)
}

func (g *RobotsGate) dataFor(ctx context.Context, u *url.URL) *robotstxt.RobotsData {
	host := u.Scheme + "://" + u.Host

	g.mu.Lock()
	if data, ok := g.byHost[host]; ok {
		g.mu.Unlock()
		return data
	}
	g.mu.Unlock()

	data := g.fetch(ctx, host)

	g.mu.Lock()
	g.byHost[host] = data
	g.mu.Unlock()
	return data
}

func (g *RobotsGate) fetch(ctx context.Context, host string) *robotstxt.RobotsData {
	reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, host+"/robots.txt", nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", g.userAgent)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// 404/redirect-exhausted/etc. is treated as "no restrictions".
		return nil
	}

	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		return nil
	}
	return data
}
