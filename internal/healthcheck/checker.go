package healthcheck

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// A backing dependency the service cannot run without degradation:
// postgres, redis.
type Dependency struct {
	Name string
	Ping func(ctx context.Context) error
}

// Periodically pings the backing stores so /health answers from recent
// observations instead of blocking on a probe per request.
type Checker struct {
	mu           sync.RWMutex
	dependencies []Dependency
	status       map[string]*Status
	interval     time.Duration
	timeout      time.Duration
	maxFailures  int
	stopChan     chan struct{}
	running      bool
}

type Config struct {
	Dependencies []Dependency
	Interval     time.Duration // How often to check (default: 10s)
	Timeout      time.Duration // Ping timeout (default: 5s)
	MaxFailures  int           // Failures before marking unhealthy (default: 3)
}

func NewChecker(cfg *Config) *Checker {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}

	checker := &Checker{
		dependencies: cfg.Dependencies,
		status:       make(map[string]*Status),
		interval:     cfg.Interval,
		timeout:      cfg.Timeout,
		maxFailures:  cfg.MaxFailures,
		stopChan:     make(chan struct{}),
	}

	// Assume healthy until a probe says otherwise
	for _, dep := range cfg.Dependencies {
		checker.status[dep.Name] = &Status{
			Name:      dep.Name,
			IsHealthy: true,
			LastCheck: time.Now(),
		}
	}

	return checker
}

// Begins periodic checks
func (c *Checker) Start() {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return
	}
	c.running = true
	c.mu.Unlock()

	c.checkAll()

	go func() {
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				c.checkAll()
			case <-c.stopChan:
				return
			}
		}
	}()
}

// Stops the checker
func (c *Checker) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		close(c.stopChan)
		c.running = false
	}
}

func (c *Checker) checkAll() {
	var wg sync.WaitGroup

	for _, dep := range c.dependencies {
		wg.Add(1)
		go func(d Dependency) {
			defer wg.Done()
			c.checkDependency(d)
		}(dep)
	}

	wg.Wait()
}

func (c *Checker) checkDependency(dep Dependency) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	if err := dep.Ping(ctx); err != nil {
		c.recordFailure(dep.Name, err)
		return
	}

	c.recordSuccess(dep.Name)
}

func (c *Checker) recordSuccess(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	status := c.status[name]
	status.LastCheck = time.Now()
	status.LastSuccess = time.Now()
	status.FailureCount = 0

	if !status.IsHealthy {
		log.Info().Str("dependency", name).Msg("dependency recovered")
		status.IsHealthy = true
	}
}

func (c *Checker) recordFailure(name string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	status := c.status[name]
	status.LastCheck = time.Now()
	status.LastFailure = time.Now()
	status.FailureCount++

	if status.IsHealthy && status.FailureCount >= c.maxFailures {
		log.Error().Err(err).Str("dependency", name).Int("failures", status.FailureCount).
			Msg("dependency marked unhealthy")
		status.IsHealthy = false
	}
}

// Returns the health status of every dependency
func (c *Checker) GetAllStatus() map[string]*Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	statusMap := make(map[string]*Status)
	for name, status := range c.status {
		statusCopy := *status
		statusMap[name] = &statusCopy
	}

	return statusMap
}

// Returns the overall health
func (c *Checker) OverallHealth() HealthStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	healthy := 0
	for _, status := range c.status {
		if status.IsHealthy {
			healthy++
		}
	}

	if healthy == 0 && len(c.status) > 0 {
		return Unhealthy
	}
	if healthy < len(c.status) {
		return Degraded
	}

	return Healthy
}
