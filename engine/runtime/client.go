package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/captep/studio/engine/compiler"
	"github.com/captep/studio/engine/core"
	"github.com/captep/studio/pkg/config"
	"github.com/captep/studio/pkg/logger"
	"github.com/go-resty/resty/v2"
	"github.com/sethvargo/go-retry"
)

const (
	defaultTimeout  = 30 * time.Second
	defaultBackoff  = 200 * time.Millisecond
	maxBackoffTotal = 10 * time.Second
)

var ErrCancelUnsupported = errors.New("runtime cancel endpoint is not configured")

type Config struct {
	AgentURL   string
	TaskURL    string
	ConfigURL  string
	CancelURL  string
	Timeout    time.Duration
	MaxRetries uint64
	// BackoffBase is the first retry delay; later ones grow exponentially.
	BackoffBase time.Duration
	// BreakerOpenFor is how long dispatches fail fast once the breaker trips.
	// Zero disables the breaker.
	BreakerOpenFor time.Duration
}

func FromAppConfig(cfg *config.RuntimeConfig) *Config {
	return &Config{
		AgentURL:       cfg.AgentURL,
		TaskURL:        cfg.TaskURL,
		ConfigURL:      cfg.ConfigURL,
		CancelURL:      cfg.CancelURL,
		Timeout:        cfg.Timeout,
		MaxRetries:     cfg.MaxRetries,
		BreakerOpenFor: cfg.BreakerOpenFor,
	}
}

// StatusError is a non-2xx answer from the runtime.
type StatusError struct {
	Endpoint string
	Status   int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("runtime %s answered %d: %s", e.Endpoint, e.Status, e.Body)
}

// Client hands compiled workflows to the agent runtime.
type Client struct {
	http   *resty.Client
	config *Config
}

func NewClient(cfg *Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	return &Client{http: client, config: cfg}
}

// Dispatch posts the agent map, the task map and the execution config, in
// that order. The runtime builds the crew from the config once the other two
// are registered.
func (c *Client) Dispatch(ctx context.Context, artifacts *compiler.Artifacts) error {
	docs := []struct {
		name string
		url  string
		body any
	}{
		{"agents", c.config.AgentURL, artifacts.Agents},
		{"tasks", c.config.TaskURL, artifacts.Tasks},
		{"config", c.config.ConfigURL, artifacts.Config},
	}
	for _, d := range docs {
		if err := c.post(ctx, d.name, d.url, d.body); err != nil {
			return err
		}
	}
	logger.FromContext(ctx).Info("Workflow dispatched to runtime", "workflow_id", artifacts.Config.WorkflowID)
	return nil
}

// Cancel asks the runtime to stop the running crew of a workflow.
func (c *Client) Cancel(ctx context.Context, workflowID core.ID) error {
	if c.config.CancelURL == "" {
		return ErrCancelUnsupported
	}
	return c.post(ctx, "cancel", c.config.CancelURL, map[string]string{"workflow_id": workflowID.String()})
}

func (c *Client) post(ctx context.Context, name, url string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode %s document: %w", name, err)
	}
	log := logger.FromContext(ctx).With("endpoint", name)
	attempt := 0
	err = retry.Do(ctx, c.backoff(), func(ctx context.Context) error {
		attempt++
		resp, err := c.http.R().SetContext(ctx).SetBody(payload).Post(url)
		if err != nil {
			log.Warn("Runtime request failed", "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		if !resp.IsError() {
			return nil
		}
		statusErr := &StatusError{Endpoint: name, Status: resp.StatusCode(), Body: resp.String()}
		if resp.StatusCode() >= http.StatusInternalServerError {
			log.Warn("Runtime answered with a server error", "attempt", attempt, "status", resp.StatusCode())
			return retry.RetryableError(statusErr)
		}
		return statusErr
	})
	if err != nil {
		return fmt.Errorf("posting %s to runtime: %w", name, err)
	}
	return nil
}

func (c *Client) backoff() retry.Backoff {
	base := c.config.BackoffBase
	if base <= 0 {
		base = defaultBackoff
	}
	b := retry.NewExponential(base)
	b = retry.WithMaxDuration(maxBackoffTotal, b)
	return retry.WithMaxRetries(c.config.MaxRetries, b)
}
