// Package membership is the HTTP client for the hosted membership provider
// that course access plans live in. The API itself is tiny: grant a plan to a
// member. What matters here is error classification, because the fulfillment
// path retries transient failures and must not retry permanent ones.
package membership

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cooklab/api/internal/config"
)

var (
	// ErrPlanRejected is returned when the provider rejects the grant with a
	// client error. Not retryable.
	ErrPlanRejected = errors.New("membership provider rejected the plan grant")
)

// TransientError wraps provider failures that are worth retrying: network
// errors, rate limits, and 5xx responses.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string   { return e.Err.Error() }
func (e *TransientError) Unwrap() error   { return e.Err }
func (e *TransientError) Temporary() bool { return true }

// PermanentError wraps rejections that retrying cannot fix: validation
// failures, bad credentials, unknown plans. The retry helper fails fast on
// the Temporary signal instead of burning its attempt budget.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string   { return e.Err.Error() }
func (e *PermanentError) Unwrap() error   { return e.Err }
func (e *PermanentError) Temporary() bool { return false }

// Client talks to the membership provider's REST API.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *slog.Logger
}

// NewClient creates a membership client from config.
func NewClient(cfg config.MembershipConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

type grantRequest struct {
	Email  string `json:"email"`
	PlanID string `json:"plan_id"`
}

// GrantPlan grants a plan to the member identified by email.
//
// The call is idempotent from the caller's perspective: a 409 from the
// provider means the member already holds the plan, which is treated as
// success so redelivered payment webhooks are a no-op.
func (c *Client) GrantPlan(ctx context.Context, email, planID string) error {
	payload, err := json.Marshal(grantRequest{Email: email, PlanID: planID})
	if err != nil {
		return fmt.Errorf("marshal grant request: %w", err)
	}

	url := c.baseURL + "/v1/members/plans"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build grant request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return &TransientError{Err: fmt.Errorf("calling membership provider: %w", err)}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		c.logger.Info("plan granted",
			slog.String("plan_id", planID),
			slog.Int("status", resp.StatusCode),
		)
		return nil

	case resp.StatusCode == http.StatusConflict:
		// Already granted.
		c.logger.Info("plan already granted", slog.String("plan_id", planID))
		return nil

	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return &TransientError{Err: fmt.Errorf("membership provider returned %d: %s", resp.StatusCode, truncate(body))}

	default:
		return &PermanentError{Err: fmt.Errorf("%w: status %d: %s", ErrPlanRejected, resp.StatusCode, truncate(body))}
	}
}

func truncate(b []byte) string {
	const max = 256
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
