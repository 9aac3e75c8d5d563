package fetch

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/andybalholm/brotli"

	"github.com/ternarybob/crawlcore/internal/interfaces"
	"github.com/ternarybob/crawlcore/internal/models"
)

// HTTPFetcher is the default Fetcher: plain net/http with conditional GET
// and brotli/gzip body decoding. It returns 3xx responses as-is; the
// capped redirect loop lives in Pipeline.
// It performs exactly one attempt per call; retry orchestration lives in
// Pipeline.
type HTTPFetcher struct {
	client *http.Client
}

var _ interfaces.Fetcher = (*HTTPFetcher)(nil)

// NewHTTPFetcher builds an HTTPFetcher. The underlying client never follows
// redirects itself (CheckRedirect always stops) because the pipeline must
// apply host/allow rules and the depth counter to each hop itself.
func NewHTTPFetcher() *HTTPFetcher {
	return &HTTPFetcher{
		client: &http.Client{
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

func (f *HTTPFetcher) CanRenderJavaScript() bool    { return false }
func (f *HTTPFetcher) SupportsConditionalGET() bool { return true }

// FetchURL performs the conditional-GET-through-response-read sequence for
// a single hop: it does not
// itself follow redirects (Pipeline.Fetch owns the redirect loop so it can
// re-apply host/allow/depth rules per hop).
func (f *HTTPFetcher) FetchURL(ctx context.Context, req interfaces.FetchRequest) (*interfaces.FetchResponse, error) {
	start := time.Now()

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, models.NewError(models.KindNetworkError, "", err)
	}
	if req.UserAgent != "" {
		httpReq.Header.Set("User-Agent", req.UserAgent)
	}
	httpReq.Header.Set("Accept-Encoding", "gzip, br")
	if req.IfNoneMatch != "" {
		httpReq.Header.Set("If-None-Match", req.IfNoneMatch)
	}
	if req.IfModifiedSince != "" {
		httpReq.Header.Set("If-Modified-Since", req.IfModifiedSince)
	}

	resp, err := f.client.Do(httpReq)
	if err != nil {
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			return nil, models.NewError(models.KindNetworkError, "timeout", err)
		}
		return nil, models.NewError(models.KindNetworkError, "", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		return &interfaces.FetchResponse{
			URL:         req.URL,
			FinalURL:    req.URL,
			StatusCode:  resp.StatusCode,
			Header:      resp.Header,
			NotModified: true,
			Duration:    time.Since(start),
		}, nil
	}

	if resp.StatusCode >= 300 && resp.StatusCode < 400 {
		return &interfaces.FetchResponse{
			URL:        req.URL,
			FinalURL:   resp.Header.Get("Location"),
			StatusCode: resp.StatusCode,
			Header:     resp.Header,
			Duration:   time.Since(start),
		}, nil
	}

	body, err := readLimitedBody(resp, req.MaxBodyBytes)
	if err != nil {
		if errors.Is(err, errBodyTooLarge) {
			return nil, models.ErrTooLarge
		}
		return nil, models.NewError(models.KindNetworkError, "", err)
	}

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return &interfaces.FetchResponse{
				URL:        req.URL,
				FinalURL:   req.URL,
				StatusCode: resp.StatusCode,
				Header:     resp.Header,
				Body:       body,
				Duration:   time.Since(start),
			}, models.NewError(models.KindProtocolError, "client_error",
				fmt.Errorf("status %d", resp.StatusCode))
	}
	if resp.StatusCode >= 500 {
		return &interfaces.FetchResponse{
				URL:        req.URL,
				FinalURL:   req.URL,
				StatusCode: resp.StatusCode,
				Header:     resp.Header,
				Body:       body,
				Duration:   time.Since(start),
			}, models.NewError(models.KindNetworkError, "server_error",
				fmt.Errorf("status %d", resp.StatusCode))
	}

	return &interfaces.FetchResponse{
		URL:        req.URL,
		FinalURL:   req.URL,
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
		Duration:   time.Since(start),
	}, nil
}

var errBodyTooLarge = errors.New("response body exceeds max_file_bytes")

// readLimitedBody decodes Content-Encoding (gzip/br) and enforces
// maxBytes, aborting the read (not just truncating) when exceeded.
func readLimitedBody(resp *http.Response, maxBytes int64) ([]byte, error) {
	var reader io.Reader = resp.Body

	switch resp.Header.Get("Content-Encoding") {
	case "gzip":
		gr, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		defer gr.Close()
		reader = gr
	case "br":
		reader = brotli.NewReader(resp.Body)
	}

	if maxBytes > 0 {
		limited := io.LimitReader(reader, maxBytes+1)
		data, err := io.ReadAll(limited)
		if err != nil {
			return nil, err
		}
		if int64(len(data)) > maxBytes {
			return nil, errBodyTooLarge
		}
		return data, nil
	}
	return io.ReadAll(reader)
}

// ParseRetryAfter parses an RFC 7231 Retry-After header (seconds or
// HTTP-date) into a duration.
func ParseRetryAfter(header string) (time.Duration, bool) {
	if header == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(header); err == nil {
		return time.Duration(secs) * time.Second, true
	}
	if t, err := http.ParseTime(header); err == nil {
		d := time.Until(t)
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}
