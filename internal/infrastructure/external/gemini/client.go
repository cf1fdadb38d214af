package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/garyjia/invoice-vision/internal/application/port"
	"github.com/garyjia/invoice-vision/internal/domain/entity"
	"github.com/garyjia/invoice-vision/internal/infrastructure/document"
	"github.com/garyjia/invoice-vision/internal/invoice"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com"
	DefaultModel   = "gemini-1.5-flash"

	modelsPrefix   = "models/"
	maxDetailBytes = 300
)

// DefaultAPIVersions lists the newer API surface first
var DefaultAPIVersions = []string{"v1beta", "v1"}

// Config holds vision client configuration
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	APIVersions []string
	// Timeout bounds each HTTP attempt
	Timeout time.Duration
	// MaxRetries is the number of extra tries per combination on transient failures
	MaxRetries      int
	RetryBackoff    time.Duration
	Temperature     float32
	MaxOutputTokens int
	Prompt          string
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if len(c.APIVersions) == 0 {
		c.APIVersions = DefaultAPIVersions
	}
	if c.Timeout <= 0 {
		c.Timeout = 25 * time.Second
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = time.Second
	}
	if c.MaxOutputTokens <= 0 {
		c.MaxOutputTokens = 1024
	}
	if c.Prompt == "" {
		c.Prompt = invoice.DefaultExtractionPrompt
	}
	return c
}

// Target is one (API version, model path) combination of the fallback chain
type Target struct {
	Version   string
	ModelPath string
}

// Chain returns the ordered fallback combinations for model: every version in
// order, each with the bare model name before the models/-prefixed one.
func Chain(versions []string, model string) []Target {
	bare := strings.TrimPrefix(strings.TrimSpace(model), modelsPrefix)
	targets := make([]Target, 0, len(versions)*2)
	for _, v := range versions {
		targets = append(targets,
			Target{Version: v, ModelPath: bare},
			Target{Version: v, ModelPath: modelsPrefix + bare},
		)
	}
	return targets
}

// Client calls the Gemini generateContent endpoint with a fallback chain
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a vision client. Proxy environment settings are ignored.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil

	return &Client{
		cfg:        cfg.withDefaults(),
		httpClient: &http.Client{Transport: transport},
		logger:     logger,
	}
}

// Recognize sends one image through the fallback chain and returns the mapped
// fields of the first combination that yields recoverable JSON.
func (c *Client) Recognize(ctx context.Context, req port.VisionRequest) (*port.Recognition, error) {
	apiKey := req.APIKey
	if apiKey == "" {
		apiKey = c.cfg.APIKey
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, entity.ErrMissingAPIKey
	}

	model := req.Model
	if model == "" {
		model = c.cfg.Model
	}

	image, err := document.Preprocess(req.Image)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(c.buildRequest(image))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	recErr := &RecognitionError{}
	for _, target := range Chain(c.cfg.APIVersions, model) {
		if err := ctx.Err(); err != nil {
			recErr.Cause = err
			return nil, recErr
		}

		text, failure := c.call(ctx, target, body, apiKey)
		if failure == nil {
			obj, ok := invoice.ExtractJSON(text)
			if ok {
				c.logger.Info("Invoice recognized",
					zap.String("file_name", req.FileName),
					zap.String("version", target.Version),
					zap.String("model_path", target.ModelPath),
					zap.Int("failed_attempts", len(recErr.Attempts)))
				return &port.Recognition{
					Fields:  invoice.MapFields(obj),
					Version: target.Version,
					Model:   target.ModelPath,
					Trail:   recErr.Trail(),
				}, nil
			}
			failure = &Attempt{Kind: KindJSONRecovery, Detail: truncate(text)}
		}

		failure.Version = target.Version
		failure.ModelPath = target.ModelPath
		recErr.Attempts = append(recErr.Attempts, *failure)

		c.logger.Warn("Vision attempt failed",
			zap.String("file_name", req.FileName),
			zap.String("attempt", failure.String()))

		if failure.Kind == KindUnauthorized {
			break
		}
		if err := ctx.Err(); err != nil {
			recErr.Cause = err
			break
		}
	}

	return nil, recErr
}

func (c *Client) buildRequest(image []byte) generateRequest {
	return generateRequest{
		Contents: []content{{
			Role: "user",
			Parts: []part{
				{Text: c.cfg.Prompt},
				{InlineData: &inlineData{
					MimeType: "image/jpeg",
					Data:     base64.StdEncoding.EncodeToString(image),
				}},
			},
		}},
		GenerationConfig: generationConfig{
			Temperature:     c.cfg.Temperature,
			MaxOutputTokens: c.cfg.MaxOutputTokens,
		},
	}
}

// call performs one combination, retrying transient failures with exponential backoff
func (c *Client) call(ctx context.Context, target Target, body []byte, apiKey string) (string, *Attempt) {
	var last *Attempt
	for try := 0; try <= c.cfg.MaxRetries; try++ {
		if try > 0 {
			backoff := c.cfg.RetryBackoff * time.Duration(1<<uint(try-1))
			c.logger.Info("Retrying vision request",
				zap.String("version", target.Version),
				zap.String("model_path", target.ModelPath),
				zap.Int("retry", try),
				zap.Duration("backoff", backoff),
				zap.String("reason", last.String()))

			select {
			case <-ctx.Done():
				return "", last
			case <-time.After(backoff):
			}
		}

		text, failure, transient := c.post(ctx, target, body, apiKey)
		if failure == nil {
			return text, nil
		}
		last = failure
		if !transient {
			return "", failure
		}
	}
	return "", last
}

// post issues a single HTTP request. transient reports whether a retry may help.
func (c *Client) post(ctx context.Context, target Target, body []byte, apiKey string) (string, *Attempt, bool) {
	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	endpoint := c.endpoint(target)
	requestID := uuid.NewString()

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost,
		endpoint+"?key="+url.QueryEscape(apiKey), bytes.NewReader(body))
	if err != nil {
		return "", &Attempt{Kind: KindTransport, Detail: err.Error()}, false
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Request-Id", requestID)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		// the URL carries the key, keep it out of the detail
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return "", &Attempt{Kind: KindTransport, Detail: err.Error()}, isTransientTransport(ctx)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &Attempt{Kind: KindTransport, Detail: fmt.Sprintf("read body: %v", err)}, true
	}

	c.logger.Debug("Vision response",
		zap.String("request_id", requestID),
		zap.String("endpoint", endpoint),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode != http.StatusOK {
		attempt := &Attempt{Kind: KindHTTPStatus, Status: resp.StatusCode, Detail: truncate(string(raw))}
		if isUnauthorized(resp.StatusCode, raw) {
			attempt.Kind = KindUnauthorized
			return "", attempt, false
		}
		return "", attempt, isTransientStatus(resp.StatusCode)
	}

	var parsed generateResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", &Attempt{Kind: KindNoCandidates, Status: resp.StatusCode, Detail: "undecodable body: " + truncate(string(raw))}, false
	}
	text, ok := parsed.text()
	if !ok {
		return "", &Attempt{Kind: KindNoCandidates, Status: resp.StatusCode, Detail: "response has no candidate text"}, false
	}
	return text, nil, false
}

func (c *Client) endpoint(target Target) string {
	return fmt.Sprintf("%s/%s/%s:generateContent", c.cfg.BaseURL, target.Version, target.ModelPath)
}

func isTransientStatus(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// isTransientTransport treats timeouts and connection errors as retryable unless
// the caller's own context is done.
func isTransientTransport(ctx context.Context) bool {
	return ctx.Err() == nil
}

func isUnauthorized(status int, body []byte) bool {
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return true
	}
	if status == http.StatusBadRequest {
		s := string(body)
		return strings.Contains(s, "API_KEY_INVALID") || strings.Contains(s, "API key not valid")
	}
	return false
}

func truncate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxDetailBytes {
		return s
	}
	cut := maxDetailBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

var _ port.VisionRecognizer = (*Client)(nil)
