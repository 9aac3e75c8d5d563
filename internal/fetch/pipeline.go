package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/crawlcore/internal/interfaces"
	"github.com/ternarybob/crawlcore/internal/models"
)

const maxRedirects = 5

// Outcome is what Pipeline.Fetch returns for one URL: either a successful
// response, a "not modified" short-circuit, or a classified failure.
type Outcome struct {
	Response    *interfaces.FetchResponse
	NotModified bool
	Failure     *models.FailureRecord
}

// Pipeline is the concrete fetch pipeline: it owns per-host rate
// limiting, robots.txt compliance, the redirect loop, and retry
// orchestration around a Fetcher implementation.
type Pipeline struct {
	fetcher interfaces.Fetcher
	robots  *RobotsGate
	hosts   *HostLimiter
	sem     *Semaphore
	retry   *RetryPolicy
	config  models.CrawlConfig
	logger  arbor.ILogger
}

// New builds a Pipeline bound to one crawl's config.
func New(fetcher interfaces.Fetcher, robots *RobotsGate, hosts *HostLimiter, retry *RetryPolicy, config models.CrawlConfig, logger arbor.ILogger) *Pipeline {
	return &Pipeline{
		fetcher: fetcher,
		robots:  robots,
		hosts:   hosts,
		sem:     NewSemaphore(config.ConcurrentRequests),
		retry:   retry,
		config:  config,
		logger:  logger,
	}
}

// Fetch performs the full per-URL procedure: robots check,
// per-host politeness wait, conditional headers, retrying 5xx/408/429, and
// following up to maxRedirects hops. Each redirect target is re-checked
// against the same host/robots rules as the original URL and counts once
// against depth, so a chain can't cross origin or exceed MaxDepth.
func (p *Pipeline) Fetch(ctx context.Context, urlStr string, depth int, ifNoneMatch, ifModifiedSince string) Outcome {
	if err := p.sem.Acquire(ctx); err != nil {
		return Outcome{Failure: &models.FailureRecord{URL: urlStr, Reason: "cancelled", FailedAt: time.Now()}}
	}
	defer p.sem.Release()

	originHost := hostOf(urlStr)
	current := urlStr
	for hop := 0; hop <= maxRedirects; hop++ {
		if p.config.RespectRobots && !p.robots.Allowed(ctx, current) {
			return Outcome{Failure: &models.FailureRecord{
				URL: urlStr, Reason: "robots_denied", FailedAt: time.Now(),
			}}
		}

		if err := p.hosts.AcquireHost(ctx, current); err != nil {
			return Outcome{Failure: &models.FailureRecord{URL: urlStr, Reason: "cancelled", FailedAt: time.Now()}}
		}
		if err := p.hosts.Wait(ctx, current); err != nil {
			p.hosts.ReleaseHost(current)
			return Outcome{Failure: &models.FailureRecord{URL: urlStr, Reason: "cancelled", FailedAt: time.Now()}}
		}

		req := interfaces.FetchRequest{
			URL:             current,
			Timeout:         time.Duration(p.config.TimeoutSeconds) * time.Second,
			MaxRedirects:    maxRedirects,
			MaxBodyBytes:    p.config.MaxFileBytes,
			UserAgent:       p.config.UserAgent,
			IfNoneMatch:     ifNoneMatch,
			IfModifiedSince: ifModifiedSince,
		}

		attempt := p.retry.ExecuteWithRetry(ctx, p.logger, func() Attempt {
			resp, err := p.fetcher.FetchURL(ctx, req)
			a := Attempt{Err: err, Response: resp}
			if resp != nil {
				a.StatusCode = resp.StatusCode
				if ra, ok := ParseRetryAfter(resp.Header.Get("Retry-After")); ok {
					a.RetryAfter = ra
				}
			}
			return a
		})
		p.hosts.ReleaseHost(current)

		resp := attempt.Response
		if resp == nil {
			reason := "network_error"
			switch {
			case errors.Is(attempt.Err, models.ErrTooLarge):
				reason = "too_large"
			case attempt.StatusCode >= 400 && attempt.StatusCode < 500:
				reason = "client_error"
			}
			return Outcome{Failure: &models.FailureRecord{
				URL: urlStr, Reason: reason, StatusCode: attempt.StatusCode,
				Attempts: p.retry.MaxAttempts, FailedAt: time.Now(),
			}}
		}

		switch {
		case resp.NotModified:
			return Outcome{NotModified: true, Response: resp}
		case resp.StatusCode >= 300 && resp.StatusCode < 400:
			next, err := resolveRedirect(current, resp.FinalURL)
			if err != nil {
				return Outcome{Failure: &models.FailureRecord{
					URL: urlStr, Reason: "too_many_redirects", FailedAt: time.Now(),
				}}
			}
			if hostOf(next) != originHost {
				return Outcome{Failure: &models.FailureRecord{
					URL: urlStr, Reason: "redirect_host_denied", FailedAt: time.Now(),
				}}
			}
			if p.config.MaxDepth > 0 && depth+hop+1 > p.config.MaxDepth {
				return Outcome{Failure: &models.FailureRecord{
					URL: urlStr, Reason: "max_depth_exceeded", FailedAt: time.Now(),
				}}
			}
			current = next
			continue
		case resp.StatusCode >= 400 && resp.StatusCode < 500:
			return Outcome{Failure: &models.FailureRecord{
				URL: urlStr, Reason: "client_error", StatusCode: resp.StatusCode, FailedAt: time.Now(),
			}}
		case resp.StatusCode >= 500:
			return Outcome{Failure: &models.FailureRecord{
				URL: urlStr, Reason: "server_error", StatusCode: resp.StatusCode,
				Attempts: p.retry.MaxAttempts, FailedAt: time.Now(),
			}}
		default:
			resp.URL = urlStr
			return Outcome{Response: resp}
		}
	}

	return Outcome{Failure: &models.FailureRecord{
		URL: urlStr, Reason: "too_many_redirects", FailedAt: time.Now(),
	}}
}

func resolveRedirect(current, location string) (string, error) {
	if location == "" {
		return "", fmt.Errorf("redirect with empty Location")
	}
	base, err := url.Parse(current)
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(location)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(ref).String(), nil
}
