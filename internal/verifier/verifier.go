// Package verifier checks link reachability with lightweight HEAD requests
// over a bounded worker pool.
package verifier

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/broken-link-analyzer/internal/linkcheck"
	"github.com/JakeFAU/broken-link-analyzer/internal/policy/ratelimit"
)

const maxRedirects = 10

var errTooManyRedirects = errors.New("too many redirects")

// Config controls link verification.
type Config struct {
	Timeout              time.Duration
	Concurrency          int
	MaxRetries           int
	BackoffInitial       time.Duration
	BackoffMax           time.Duration
	RatePerHost          float64
	Burst                int
	BlockPrivateNetworks bool
	GetFallback          bool
	UserAgent            string
}

// Verifier implements linkcheck.LinkVerifier.
type Verifier struct {
	cfg    Config
	client *http.Client
	retry  retryPolicy
	logger *zap.Logger
}

// New builds a Verifier with its own HTTP client.
func New(cfg Config, logger *zap.Logger) *Verifier {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxConnsPerHost = cfg.Concurrency
	transport.MaxIdleConnsPerHost = cfg.Concurrency
	if cfg.BlockPrivateNetworks {
		transport.DialContext = safeDialer().DialContext
	}
	return &Verifier{
		cfg: cfg,
		client: &http.Client{
			Transport:     transport,
			CheckRedirect: redirectPolicy,
		},
		retry:  newRetryPolicy(cfg.MaxRetries, cfg.BackoffInitial, cfg.BackoffMax),
		logger: logger.Named("verifier"),
	}
}

func redirectPolicy(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return fmt.Errorf("%w: stopped after %d", errTooManyRedirects, maxRedirects)
	}
	if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
		return fmt.Errorf("redirect to %q scheme blocked", req.URL.Scheme)
	}
	return nil
}

type indexed struct {
	idx  int
	link linkcheck.CheckedLink
}

// VerifyAll checks every link and returns results in input order. Workers
// only perform requests; observe runs on the calling goroutine.
func (v *Verifier) VerifyAll(
	ctx context.Context,
	links []linkcheck.ResolvedLink,
	sourceURL string,
	observe func(linkcheck.CheckedLink),
) []linkcheck.CheckedLink {
	out := make([]linkcheck.CheckedLink, len(links))
	if len(links) == 0 {
		return out
	}

	limiter := ratelimit.New(ratelimit.Config{RPS: v.cfg.RatePerHost, Burst: v.cfg.Burst})
	jobs := make(chan int, len(links))
	results := make(chan indexed, len(links))

	var wg sync.WaitGroup
	for range min(len(links), v.cfg.Concurrency) {
		wg.Go(func() {
			for i := range jobs {
				results <- indexed{idx: i, link: v.check(ctx, limiter, links[i], sourceURL)}
			}
		})
	}
	for i := range links {
		jobs <- i
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	for r := range results {
		out[r.idx] = r.link
		if observe != nil {
			observe(r.link)
		}
	}
	v.logger.Debug("verification finished",
		zap.Int("links", len(links)),
		zap.Int("hosts", limiter.Hosts()))
	return out
}

func (v *Verifier) check(
	ctx context.Context,
	limiter *ratelimit.Limiter,
	link linkcheck.ResolvedLink,
	sourceURL string,
) linkcheck.CheckedLink {
	result := linkcheck.CheckedLink{
		URL:            link.URL,
		Classification: link.Classification,
		AnchorText:     link.AnchorText,
		Kind:           link.Kind,
		SourceURL:      sourceURL,
	}
	if link.Invalid {
		result.ErrorType = linkcheck.ErrorTypeInvalid
		result.ErrorDetail = link.Reason
		return result
	}

	start := time.Now()
	var (
		status int
		err    error
	)
	for attempt := 0; ; attempt++ {
		if err = limiter.Wait(ctx, link.URL); err != nil {
			break
		}
		status, err = v.probe(ctx, link.URL)
		if !v.retry.shouldRetry(err, status, attempt) {
			break
		}
		wait := v.retry.backoff(attempt)
		v.logger.Debug("retrying link check",
			zap.String("url", link.URL),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", wait),
		)
		select {
		case <-ctx.Done():
		case <-time.After(wait):
		}
	}
	result.LatencyMs = time.Since(start).Milliseconds()
	result.StatusCode = status

	switch {
	case err != nil:
		result.StatusCode = 0
		result.ErrorType = classifyError(ctx, err)
		result.ErrorDetail = err.Error()
	case result.Broken():
		result.ErrorType = statusText(status)
	}
	return result
}

// probe issues HEAD, falling back to GET when the server rejects HEAD and the
// fallback is enabled.
func (v *Verifier) probe(ctx context.Context, target string) (int, error) {
	status, err := v.do(ctx, http.MethodHead, target)
	if err == nil && v.cfg.GetFallback &&
		(status == http.StatusMethodNotAllowed || status == http.StatusNotImplemented) {
		return v.do(ctx, http.MethodGet, target)
	}
	return status, err
}

func (v *Verifier) do(ctx context.Context, method, target string) (int, error) {
	reqCtx, cancel := context.WithTimeout(ctx, v.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, target, nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	if v.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", v.cfg.UserAgent)
	}
	resp, err := v.client.Do(req)
	if err != nil {
		return 0, err
	}
	// GET bodies are never read.
	_ = resp.Body.Close()
	return resp.StatusCode, nil
}

func classifyError(ctx context.Context, err error) string {
	if ctx.Err() != nil && errors.Is(ctx.Err(), context.Canceled) {
		return linkcheck.ErrorTypeCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return linkcheck.ErrorTypeTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return linkcheck.ErrorTypeTimeout
	}
	return linkcheck.ErrorTypeInvalid
}

func statusText(code int) string {
	if text := http.StatusText(code); text != "" {
		return text
	}
	return fmt.Sprintf("HTTP %d", code)
}
