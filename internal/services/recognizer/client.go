package recognizer

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultHTTPTimeout    = 60 * time.Second
	defaultRetryAttempts  = 4
	defaultRetryBaseDelay = 1 * time.Second
	defaultRetryMaxDelay  = 15 * time.Second
)

// Config captures the runtime settings required to talk to the service.
type Config struct {
	BaseURL        string
	APIKey         string
	QualityPreset  string
	SportHint      string
	TimeoutSeconds int
}

// Detection is one recognized subject in a photo.
type Detection struct {
	// RaceNumber is empty when the subject carries no readable number.
	RaceNumber string   `json:"race_number"`
	Tokens     []string `json:"tokens"`
	Category   string   `json:"category"`
	Team       string   `json:"team"`
	Confidence float64  `json:"confidence"`
}

// Usage reports the service-side cost of one request.
type Usage struct {
	Tokens int     `json:"tokens"`
	Cost   float64 `json:"cost"`
}

// Result is the full recognition outcome for one image. An empty Detections
// slice is a valid result, not an error.
type Result struct {
	Detections []Detection `json:"detections"`
	Usage      Usage       `json:"usage"`
}

// BestDetection returns the highest-confidence detection carrying a race
// number, or false when none qualifies.
func (r Result) BestDetection() (Detection, bool) {
	best := Detection{Confidence: -1}
	for _, det := range r.Detections {
		if strings.TrimSpace(det.RaceNumber) == "" {
			continue
		}
		if det.Confidence > best.Confidence {
			best = det
		}
	}
	if best.Confidence < 0 {
		return Detection{}, false
	}
	return best, true
}

type httpStatusError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("recognize request: http %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

// Client talks to the recognition service.
type Client struct {
	cfg        Config
	httpClient *http.Client

	retryMaxAttempts int
	retryBaseDelay   time.Duration
	retryMaxDelay    time.Duration
	sleeper          func(time.Duration)
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithRetryMaxAttempts overrides the default retry count.
func WithRetryMaxAttempts(attempts int) Option {
	return func(c *Client) {
		c.retryMaxAttempts = attempts
	}
}

// WithRetryBackoff overrides the retry backoff delays.
func WithRetryBackoff(baseDelay, maxDelay time.Duration) Option {
	return func(c *Client) {
		c.retryBaseDelay = baseDelay
		c.retryMaxDelay = maxDelay
	}
}

// WithSleeper overrides how retry sleeps are performed (useful for tests).
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(c *Client) {
		c.sleeper = sleeper
	}
}

// NewClient constructs a recognition client using the supplied configuration.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		cfg: Config{
			BaseURL:        strings.TrimSpace(cfg.BaseURL),
			APIKey:         strings.TrimSpace(cfg.APIKey),
			QualityPreset:  strings.TrimSpace(cfg.QualityPreset),
			SportHint:      strings.TrimSpace(cfg.SportHint),
			TimeoutSeconds: cfg.TimeoutSeconds,
		},
		httpClient:       &http.Client{Timeout: timeout},
		retryMaxAttempts: defaultRetryAttempts,
		retryBaseDelay:   defaultRetryBaseDelay,
		retryMaxDelay:    defaultRetryMaxDelay,
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: timeout}
	}
	return client
}

type recognizeRequest struct {
	Image         string `json:"image"`
	QualityPreset string `json:"quality_preset,omitempty"`
	SportHint     string `json:"sport_hint,omitempty"`
}

// RecognizeFile reads the image at path and submits it for recognition.
func (c *Client) RecognizeFile(ctx context.Context, path string) (Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Result{}, fmt.Errorf("recognize: read image: %w", err)
	}
	return c.Recognize(ctx, data)
}

// Recognize submits one image payload with bounded retry. Transient failures
// (network errors, timeouts, 429, 5xx) are retried with exponential backoff,
// honoring Retry-After when the service provides one.
func (c *Client) Recognize(ctx context.Context, image []byte) (Result, error) {
	if strings.TrimSpace(c.cfg.BaseURL) == "" {
		return Result{}, errors.New("recognize: base url required")
	}
	if len(image) == 0 {
		return Result{}, errors.New("recognize: empty image payload")
	}

	payload := recognizeRequest{
		Image:         base64.StdEncoding.EncodeToString(image),
		QualityPreset: c.cfg.QualityPreset,
		SportHint:     c.cfg.SportHint,
	}

	attempts := c.retryAttempts()
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := c.sendOnce(ctx, payload)
		if err == nil {
			return result, nil
		}

		delay, retry := c.retryDelay(ctx, err, attempt, attempts)
		if !retry {
			return Result{}, err
		}
		if sleepErr := c.sleep(ctx, delay); sleepErr != nil {
			return Result{}, sleepErr
		}
		lastErr = err
	}

	if lastErr == nil {
		lastErr = errors.New("unknown retry failure")
	}
	return Result{}, fmt.Errorf("recognize: failed after %d attempts: %w", attempts, lastErr)
}

// HealthCheck verifies the endpoint is reachable and credentials are accepted.
func (c *Client) HealthCheck(ctx context.Context) error {
	if strings.TrimSpace(c.cfg.BaseURL) == "" {
		return errors.New("recognize health: base url required")
	}
	endpoint, err := url.JoinPath(c.cfg.BaseURL, "health")
	if err != nil {
		return fmt.Errorf("recognize health: build url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("recognize health: new request: %w", err)
	}
	c.setHeaders(req)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("recognize health: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("recognize health: http %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) sendOnce(ctx context.Context, payload recognizeRequest) (Result, error) {
	var result Result
	endpoint, err := url.JoinPath(c.cfg.BaseURL, "recognize")
	if err != nil {
		return result, fmt.Errorf("recognize request: build url: %w", err)
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return result, fmt.Errorf("recognize request: encode body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return result, fmt.Errorf("recognize request: new request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return result, fmt.Errorf("recognize request: http error (timeout=%s): %w", c.timeoutDuration(), err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return result, fmt.Errorf("recognize request: read body: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		retryAfter, _ := parseRetryAfter(resp.Header.Get("Retry-After"))
		return result, &httpStatusError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
			RetryAfter: retryAfter,
		}
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return result, fmt.Errorf("recognize request: decode response: %w", err)
	}
	clampConfidences(&result)
	return result, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
}

func clampConfidences(result *Result) {
	for i := range result.Detections {
		if result.Detections[i].Confidence < 0 {
			result.Detections[i].Confidence = 0
		}
		if result.Detections[i].Confidence > 1 {
			result.Detections[i].Confidence = 1
		}
	}
}

func (c *Client) timeoutDuration() time.Duration {
	if c == nil || c.httpClient == nil || c.httpClient.Timeout <= 0 {
		return defaultHTTPTimeout
	}
	return c.httpClient.Timeout
}

func (c *Client) retryAttempts() int {
	if c == nil || c.retryMaxAttempts <= 0 {
		return 1
	}
	return c.retryMaxAttempts
}

func (c *Client) retryDelay(ctx context.Context, err error, attempt, maxAttempts int) (time.Duration, bool) {
	if attempt >= maxAttempts || err == nil || ctx == nil || ctx.Err() != nil {
		return 0, false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return 0, false
	}

	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode == http.StatusRequestTimeout,
			statusErr.StatusCode == http.StatusTooManyRequests,
			statusErr.StatusCode >= http.StatusInternalServerError:
			if statusErr.RetryAfter > 0 {
				return c.capDelay(statusErr.RetryAfter), true
			}
			return c.backoffDelay(attempt), true
		default:
			return 0, false
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return c.backoffDelay(attempt), true
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		// Connection resets and refused connections surface here; retry them.
		return c.backoffDelay(attempt), true
	}

	return 0, false
}

func (c *Client) backoffDelay(attempt int) time.Duration {
	base := c.retryBaseDelay
	if base <= 0 {
		base = defaultRetryBaseDelay
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
	}
	return c.capDelay(delay)
}

func (c *Client) capDelay(delay time.Duration) time.Duration {
	maxDelay := c.retryMaxDelay
	if maxDelay <= 0 {
		maxDelay = defaultRetryMaxDelay
	}
	if delay > maxDelay {
		return maxDelay
	}
	return delay
}

func (c *Client) sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	if c.sleeper != nil {
		c.sleeper(delay)
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func parseRetryAfter(value string) (time.Duration, bool) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(trimmed); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second, true
	}
	if at, err := http.ParseTime(trimmed); err == nil {
		if until := time.Until(at); until > 0 {
			return until, true
		}
	}
	return 0, false
}
