package upstream

import (
	"context"
	"fmt"
	"time"
)

// unhealthyThreshold is the number of consecutive retryable failures after
// which the upstream is reported unhealthy.
const unhealthyThreshold = 3

// Health is a point-in-time view of upstream health.
type Health struct {
	// IsHealthy is false after unhealthyThreshold consecutive failures
	IsHealthy bool

	// ConsecutiveFailures counts retryable failures since the last success
	ConsecutiveFailures int

	// LastError describes the most recent failure
	LastError string

	// LastCheck is when health was last updated
	LastCheck time.Time

	// LastSuccess is the time of the most recent successful attempt
	LastSuccess time.Time

	// TotalAttempts counts every attempt
	TotalAttempts int64

	// FailedAttempts counts non-success attempts
	FailedAttempts int64
}

// IsHealthy returns the current health status.
func (c *Client) IsHealthy() bool {
	c.healthMu.RLock()
	defer c.healthMu.RUnlock()
	return c.health.IsHealthy
}

// Health returns detailed health information.
func (c *Client) Health() Health {
	c.healthMu.RLock()
	defer c.healthMu.RUnlock()
	return c.health
}

// HealthCheck returns an error when the upstream is considered unhealthy.
// It does not call the endpoint; health is derived from recent attempts.
func (c *Client) HealthCheck(ctx context.Context) error {
	h := c.Health()
	if h.IsHealthy {
		return nil
	}
	return fmt.Errorf("%d consecutive failed attempts, last: %s", h.ConsecutiveFailures, h.LastError)
}

// record updates health after an attempt.
func (c *Client) record(o Outcome) {
	c.healthMu.Lock()
	defer c.healthMu.Unlock()

	now := time.Now()
	c.health.LastCheck = now
	c.health.TotalAttempts++

	if o.OK() {
		if !c.health.IsHealthy {
			c.logger.Info("upstream marked healthy",
				"previous_failures", c.health.ConsecutiveFailures,
			)
		}
		c.health.IsHealthy = true
		c.health.ConsecutiveFailures = 0
		c.health.LastError = ""
		c.health.LastSuccess = now
		return
	}

	c.health.FailedAttempts++
	// A terminal answer is usually about the request, not the upstream.
	if !o.Retryable() {
		return
	}
	c.health.ConsecutiveFailures++
	c.health.LastError = o.Reason

	if c.health.ConsecutiveFailures >= unhealthyThreshold && c.health.IsHealthy {
		c.health.IsHealthy = false
		c.logger.Warn("upstream marked unhealthy",
			"consecutive_failures", c.health.ConsecutiveFailures,
			"outcome", o.Kind.String(),
			"reason", o.Reason,
		)
	}
}
