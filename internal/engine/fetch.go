package engine

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"github.com/albapepper/matchpipe/internal/adapter"
)

// fetchHTML implements the fetching policy of §4.B.5: per-request jitter
// sleep, status-code-driven retry/cooldown, user-agent re-pick each
// attempt. Grounded on bdl/client.go's get() (rate-limited GET, drain
// body, status check) generalized from a fixed token bucket to the
// per-adapter RateLimitPolicy.
func (e *Engine) fetchHTML(ctx context.Context, a *adapter.Adapter, url string) (string, error) {
	if e.browser != nil {
		if err := e.limiterFor(a).Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limit wait for %s: %w", url, err)
		}
		waitSel := a.Parsing.RenderWaitSelector
		if waitSel == "" {
			waitSel = "table"
		}
		return e.browser.RenderedHTML(ctx, url, waitSel, 30*time.Second)
	}

	body, err := e.fetch(ctx, a, url)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func (e *Engine) fetchJSON(ctx context.Context, a *adapter.Adapter, url string) ([]byte, error) {
	return e.fetch(ctx, a, url)
}

func (e *Engine) fetch(ctx context.Context, a *adapter.Adapter, url string) ([]byte, error) {
	policy := a.RateLimit
	attempt := 0

	for {
		if err := e.limiterFor(a).Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait for %s: %w", url, err)
		}
		jitterSleep(ctx, 0, policy.RequestDelayMax-policy.RequestDelayMin)

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("create request for %s: %w", url, err)
		}
		req.Header.Set("User-Agent", pickUserAgent(a.UserAgents))

		resp, err := e.httpClient.Do(req)
		if err != nil {
			if attempt >= policy.MaxRetries {
				return nil, fmt.Errorf("transport error fetching %s, retries exhausted: %w", url, err)
			}
			sleepCtx(ctx, retryDelayFor(policy, attempt))
			attempt++
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return nil, fmt.Errorf("read response body for %s: %w", url, readErr)
		}

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return body, nil

		case resp.StatusCode == http.StatusNotFound:
			// 404 is terminal — never retried (§4.B.5).
			return nil, fmt.Errorf("%s: not found (404)", url)

		case resp.StatusCode == http.StatusTooManyRequests:
			if attempt >= policy.MaxRetries {
				return nil, fmt.Errorf("%s: rate limited (429), retries exhausted", url)
			}
			sleepCtx(ctx, policy.CooldownOn429)
			attempt++
			continue

		case resp.StatusCode >= 500:
			if attempt >= policy.MaxRetries {
				return nil, fmt.Errorf("%s: server error (%d), retries exhausted", url, resp.StatusCode)
			}
			sleepCtx(ctx, policy.CooldownOn500)
			attempt++
			continue

		default:
			return nil, fmt.Errorf("%s: unexpected status %d", url, resp.StatusCode)
		}
	}
}

func retryDelayFor(policy adapter.RateLimitPolicy, attempt int) time.Duration {
	if attempt < len(policy.RetryDelays) {
		return policy.RetryDelays[attempt]
	}
	if len(policy.RetryDelays) > 0 {
		return policy.RetryDelays[len(policy.RetryDelays)-1]
	}
	return time.Second
}

func pickUserAgent(agents []string) string {
	if len(agents) == 0 {
		return "matchpipe-ingest/1.0"
	}
	return agents[rand.Intn(len(agents))]
}

// jitterSleep blocks for a random duration in [min, max), honoring ctx
// cancellation (§4.B.5, §5 "every ... blocking point carries a timeout").
func jitterSleep(ctx context.Context, min, max time.Duration) {
	d := min
	if max > min {
		d = min + time.Duration(rand.Int63n(int64(max-min)))
	}
	sleepCtx(ctx, d)
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
