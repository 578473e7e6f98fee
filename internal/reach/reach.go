// Package reach checks whether resolved devices answer ICMP echo.
package reach

import (
	"context"
	"runtime"
	"sync"
	"time"

	probing "github.com/prometheus-community/pro-bing"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/muurk/dantescan/internal/logging"
)

// Defaults for a Checker.
const (
	DefaultCount       = 2
	DefaultTimeout     = 2 * time.Second
	DefaultConcurrency = 8
)

// Result is the outcome of pinging one address.
type Result struct {
	IP    string        `json:"ip"`
	Alive bool          `json:"alive"`
	RTT   time.Duration `json:"rtt"`
	Err   error         `json:"-"`
}

// PingFunc pings ip and reports the result. It must honour ctx.
type PingFunc func(ctx context.Context, ip string, count int, timeout time.Duration) Result

// Checker pings sets of addresses with bounded concurrency.
type Checker struct {
	Count       int
	Timeout     time.Duration
	Concurrency int

	logger *zap.Logger
	ping   PingFunc
}

// NewChecker returns a Checker that uses ICMP through pro-bing.
func NewChecker(logger *zap.Logger) *Checker {
	if logger == nil {
		logger = logging.Named("reach")
	}
	c := &Checker{
		Count:       DefaultCount,
		Timeout:     DefaultTimeout,
		Concurrency: DefaultConcurrency,
		logger:      logger,
	}
	c.ping = c.icmp
	return c
}

// Check pings each address once. Empty and unresolved addresses are
// reported as not alive without sending anything.
func (c *Checker) Check(ctx context.Context, ips []string) map[string]Result {
	results := make(map[string]Result, len(ips))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(c.Concurrency, 1))
	for _, ip := range ips {
		mu.Lock()
		_, seen := results[ip]
		if !seen {
			results[ip] = Result{IP: ip}
		}
		mu.Unlock()
		if seen || ip == "" || ip == "0.0.0.0" {
			continue
		}

		g.Go(func() error {
			r := c.ping(gctx, ip, c.Count, c.Timeout)
			mu.Lock()
			results[ip] = r
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (c *Checker) icmp(ctx context.Context, ip string, count int, timeout time.Duration) Result {
	pinger, err := probing.NewPinger(ip)
	if err != nil {
		c.logger.Debug("failed to create pinger", zap.String("ip", ip), zap.Error(err))
		return Result{IP: ip, Err: err}
	}

	pinger.Count = count
	pinger.Timeout = timeout
	// Unprivileged UDP ping is unavailable on Windows
	pinger.SetPrivileged(runtime.GOOS == "windows")

	done := make(chan error, 1)
	go func() {
		done <- pinger.Run()
	}()

	select {
	case err = <-done:
	case <-ctx.Done():
		pinger.Stop()
		<-done
		return Result{IP: ip, Err: ctx.Err()}
	}
	if err != nil {
		c.logger.Debug("ping failed", zap.String("ip", ip), zap.Error(err))
		return Result{IP: ip, Err: err}
	}

	stats := pinger.Statistics()
	return Result{IP: ip, Alive: stats.PacketsRecv > 0, RTT: stats.AvgRtt}
}
