// Package health probes the game server over RCON and tracks whether it is
// reachable.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/energizer-project/palrcon/internal/events"
	"github.com/energizer-project/palrcon/internal/protocol"
	"github.com/energizer-project/palrcon/internal/util"
)

// Prober sends the info command. server.Manager implements it.
type Prober interface {
	Info(ctx context.Context) (*protocol.Response, *protocol.ServerInfo, error)
}

// Options configures a Monitor.
type Options struct {
	Interval         time.Duration
	FailureThreshold int
	// Timeout bounds a single probe. Zero means none.
	Timeout time.Duration
	// DiskPath is checked for free space on every probe when set.
	DiskPath string
}

// Status is the result of the latest probe.
type Status struct {
	State               events.HealthStatus `json:"state"`
	Connected           bool                `json:"connected"`
	Latency             time.Duration       `json:"latency_ns"`
	Version             string              `json:"version,omitempty"`
	ServerName          string              `json:"server_name,omitempty"`
	ConsecutiveFailures int                 `json:"consecutive_failures"`
	LastCheck           time.Time           `json:"last_check"`
	LastSuccess         time.Time           `json:"last_success"`
	LastError           string              `json:"last_error,omitempty"`
	Disk                *util.DiskUsage     `json:"disk,omitempty"`
}

// Monitor probes the server periodically. A failed probe makes the status
// degraded; FailureThreshold consecutive failures make it unhealthy.
type Monitor struct {
	prober Prober
	bus    *events.Bus
	opts   Options
	logger zerolog.Logger

	mu     sync.RWMutex
	status Status
}

// NewMonitor creates a Monitor. bus may be nil.
func NewMonitor(prober Prober, bus *events.Bus, opts Options) *Monitor {
	if opts.FailureThreshold < 1 {
		opts.FailureThreshold = 1
	}
	return &Monitor{
		prober: prober,
		bus:    bus,
		opts:   opts,
		logger: util.ComponentLogger("health"),
		status: Status{State: events.HealthUnknown},
	}
}

// Run probes immediately and then every Interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	if m.opts.Interval <= 0 {
		m.logger.Info().Msg("health monitor disabled")
		return nil
	}

	ticker := time.NewTicker(m.opts.Interval)
	defer ticker.Stop()

	m.logger.Info().Dur("interval", m.opts.Interval).Msg("health monitor started")
	m.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			m.logger.Info().Msg("health monitor stopped")
			return nil
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}

// Check runs one probe and returns the new status.
func (m *Monitor) Check(ctx context.Context) Status {
	probeCtx := ctx
	if m.opts.Timeout > 0 {
		var cancel context.CancelFunc
		probeCtx, cancel = context.WithTimeout(ctx, m.opts.Timeout)
		defer cancel()
	}

	start := time.Now()
	resp, info, err := m.prober.Info(probeCtx)
	latency := time.Since(start)

	var disk *util.DiskUsage
	if m.opts.DiskPath != "" {
		disk = m.checkDisk()
	}

	m.mu.Lock()
	prev := m.status.State
	s := m.status
	s.LastCheck = start
	s.Disk = disk

	switch {
	case resp != nil:
		// The server answered; an unrecognized info line is not an outage.
		s.Connected = true
		s.Latency = latency
		s.ConsecutiveFailures = 0
		s.LastSuccess = start
		s.LastError = ""
		s.State = events.HealthHealthy
		if info != nil {
			s.Version = info.Version
			s.ServerName = info.Name
		} else if err != nil {
			m.logger.Warn().Err(err).Msg("unrecognized info reply")
		}
	default:
		s.Connected = false
		s.ConsecutiveFailures++
		s.LastError = err.Error()
		s.State = events.HealthDegraded
		if s.ConsecutiveFailures >= m.opts.FailureThreshold {
			s.State = events.HealthUnhealthy
		}
	}
	m.status = s
	m.mu.Unlock()

	if s.State != prev {
		m.logger.Info().
			Str("previous", string(prev)).
			Str("current", string(s.State)).
			Int("failures", s.ConsecutiveFailures).
			Str("error", s.LastError).
			Msg("health changed")
		if m.bus != nil {
			m.bus.Emit(context.WithoutCancel(ctx), events.New(events.EventHealthChanged, "health",
				events.HealthChangedPayload{
					Previous: prev,
					Current:  s.State,
					Version:  s.Version,
					Error:    s.LastError,
				}))
		}
	} else {
		m.logger.Debug().
			Str("state", string(s.State)).
			Dur("latency", latency).
			Msg("health probe")
	}
	return s
}

// Status returns the latest probe result.
func (m *Monitor) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

func (m *Monitor) checkDisk() *util.DiskUsage {
	usage, err := util.GetDiskUsage(m.opts.DiskPath)
	if err != nil {
		m.logger.Debug().Err(err).Str("path", m.opts.DiskPath).Msg("disk usage check failed")
		return nil
	}
	if usage.UsedPercent >= 90 {
		m.logger.Warn().
			Float64("used_percent", usage.UsedPercent).
			Uint64("free_gb", usage.Free).
			Str("path", m.opts.DiskPath).
			Msg("disk nearly full")
	}
	return usage
}
