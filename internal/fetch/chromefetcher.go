package fetch

import (
	"context"
	"net/http"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/ternarybob/crawlcore/internal/interfaces"
	"github.com/ternarybob/crawlcore/internal/models"
)

// ChromeFetcher is the optional JS-rendering Fetcher: it drives a headless
// Chrome instance via chromedp so pages whose content is assembled
// client-side still yield a complete DOM to the content processor. It does
// not support conditional GET (Chrome's navigation API doesn't surface
// 304s distinctly from a normal 200). Nothing selects it automatically:
// CrawlConfig.Strategy does not choose the fetcher, and a crawl uses
// ChromeFetcher only when it is set as Runtime.Fetcher.
type ChromeFetcher struct {
	allocatorCtx context.Context
	cancel       context.CancelFunc
}

var _ interfaces.Fetcher = (*ChromeFetcher)(nil)

// NewChromeFetcher starts one shared headless-Chrome allocator. Callers
// must call Close when the fetcher is no longer needed.
func NewChromeFetcher() *ChromeFetcher {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
	)
	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)
	return &ChromeFetcher{allocatorCtx: allocCtx, cancel: cancel}
}

// Close releases the shared allocator and its child browser process.
func (f *ChromeFetcher) Close() { f.cancel() }

func (f *ChromeFetcher) CanRenderJavaScript() bool    { return true }
func (f *ChromeFetcher) SupportsConditionalGET() bool { return false }

// FetchURL navigates to req.URL in a fresh tab, waits for the document to
// settle, and returns the rendered HTML as the body.
func (f *ChromeFetcher) FetchURL(ctx context.Context, req interfaces.FetchRequest) (*interfaces.FetchResponse, error) {
	start := time.Now()

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	tabCtx, tabCancel := chromedp.NewContext(f.allocatorCtx)
	defer tabCancel()
	tabCtx, timeoutCancel := context.WithTimeout(tabCtx, timeout)
	defer timeoutCancel()

	var html string
	var statusCode int64 = 200

	listenCtx, listenCancel := context.WithCancel(tabCtx)
	defer listenCancel()
	chromedp.ListenTarget(listenCtx, func(ev interface{}) {
		if resp, ok := ev.(*network.EventResponseReceived); ok && resp.Response.URL == req.URL {
			statusCode = resp.Response.Status
		}
	})

	err := chromedp.Run(tabCtx,
		chromedp.Navigate(req.URL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		if ctx.Err() != nil {
			return nil, models.NewError(models.KindNetworkError, "timeout", err)
		}
		return nil, models.NewError(models.KindNetworkError, "", err)
	}

	body := []byte(html)
	if req.MaxBodyBytes > 0 && int64(len(body)) > req.MaxBodyBytes {
		return nil, models.ErrTooLarge
	}

	return &interfaces.FetchResponse{
		URL:        req.URL,
		FinalURL:   req.URL,
		StatusCode: int(statusCode),
		Header:     http.Header{"Content-Type": []string{"text/html"}},
		Body:       body,
		Duration:   time.Since(start),
	}, nil
}
