// Package health runs periodic reachability probes against the
// gateway's upstream dependencies (policy decision point and secret
// broker) and exposes the latest status for the readiness endpoint.
package health

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Config holds health check configuration.
type Config struct {
	CheckInterval time.Duration
	ProbeTimeout  time.Duration
	FailThreshold int
}

// Target is one upstream dependency to probe.
type Target struct {
	Name string
	URL  string
}

// Status is the latest probe verdict for one target.
type Status struct {
	Name      string    `json:"name"`
	Healthy   bool      `json:"healthy"`
	FailCount int       `json:"fail_count"`
	CheckedAt time.Time `json:"checked_at"`
}

// MetricsRecordFunc is an optional callback for recording probe results.
type MetricsRecordFunc func(target string, success bool)

// Checker runs periodic upstream probes.
type Checker struct {
	targets    []Target
	httpClient *http.Client
	cfg        Config
	logger     *zap.Logger
	onMetrics  MetricsRecordFunc

	mu       sync.Mutex
	statuses map[string]Status
}

// New creates a Checker for the given targets.
func New(targets []Target, cfg Config, logger *zap.Logger) *Checker {
	if cfg.CheckInterval == 0 {
		cfg.CheckInterval = 30 * time.Second
	}
	if cfg.ProbeTimeout == 0 {
		cfg.ProbeTimeout = 5 * time.Second
	}
	if cfg.FailThreshold == 0 {
		cfg.FailThreshold = 3
	}

	statuses := make(map[string]Status, len(targets))
	for _, t := range targets {
		statuses[t.Name] = Status{Name: t.Name, Healthy: true}
	}

	return &Checker{
		targets:    targets,
		httpClient: &http.Client{Timeout: cfg.ProbeTimeout},
		cfg:        cfg,
		logger:     logger,
		statuses:   statuses,
	}
}

// SetMetricsRecord configures the metrics recording callback.
func (c *Checker) SetMetricsRecord(fn MetricsRecordFunc) {
	c.onMetrics = fn
}

// Start runs the probe loop until ctx is cancelled.
func (c *Checker) Start(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.CheckAll(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// CheckAll probes every target once.
func (c *Checker) CheckAll(ctx context.Context) {
	var wg sync.WaitGroup
	for _, t := range c.targets {
		wg.Add(1)
		go func(target Target) {
			defer wg.Done()

			success := c.probe(ctx, target.URL)
			if c.onMetrics != nil {
				c.onMetrics(target.Name, success)
			}

			c.mu.Lock()
			st := c.statuses[target.Name]
			wasHealthy := st.Healthy
			if success {
				st.FailCount = 0
				st.Healthy = true
			} else {
				st.FailCount++
				if st.FailCount >= c.cfg.FailThreshold {
					st.Healthy = false
				}
			}
			st.CheckedAt = time.Now().UTC()
			c.statuses[target.Name] = st
			c.mu.Unlock()

			if wasHealthy && !st.Healthy {
				c.logger.Warn("upstream degraded",
					zap.String("target", target.Name),
					zap.Int("fail_count", st.FailCount),
				)
			} else if !wasHealthy && st.Healthy {
				c.logger.Info("upstream recovered", zap.String("target", target.Name))
			}
		}(t)
	}
	wg.Wait()
}

// Snapshot returns a copy of the latest statuses, plus true when every
// target is healthy.
func (c *Checker) Snapshot() ([]Status, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Status, 0, len(c.targets))
	allHealthy := true
	for _, t := range c.targets {
		st := c.statuses[t.Name]
		out = append(out, st)
		if !st.Healthy {
			allHealthy = false
		}
	}
	return out, allHealthy
}

// probe attempts HEAD then GET, accepting any response from the server
// as reachability. Policy engines commonly reject HEAD, so a 4xx still
// counts; only transport errors fail the probe.
func (c *Checker) probe(ctx context.Context, url string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err == nil {
		resp.Body.Close()
		if resp.StatusCode < 500 {
			return true
		}
	}

	req, err = http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	resp, err = c.httpClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode < 500
}
