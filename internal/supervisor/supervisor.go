// Package supervisor runs the inactivity sweep: on a fixed cadence it
// demotes ACTIVO sessions whose last activity is older than the timeout and
// announces each demotion to every live session.
package supervisor

import (
	"context"
	"log/slog"
	"time"

	"parley/internal/registry"
	"parley/pkg/protocol"
)

// Defaults applied when New is given non-positive durations.
const (
	defaultInterval = 5 * time.Second
	defaultTimeout  = 60 * time.Second
)

// Recorder appends lifecycle events to the advisory journal. Implementations
// must not block; the sweep never waits on the journal.
type Recorder interface {
	Record(kind, user, detail string)
}

// Supervisor owns the demotion loop. It reads and mutates sessions through
// the registry only; it never closes transports, an idle session stays
// connected.
type Supervisor struct {
	registry *registry.Registry
	journal  Recorder
	logger   *slog.Logger
	interval time.Duration
	timeout  time.Duration
}

// New builds a supervisor sweeping every interval and demoting sessions idle
// longer than timeout. journal may be nil to run without the lifecycle
// journal.
func New(reg *registry.Registry, journal Recorder, logger *slog.Logger, interval, timeout time.Duration) *Supervisor {
	if interval <= 0 {
		interval = defaultInterval
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Supervisor{
		registry: reg,
		journal:  journal,
		logger:   logger,
		interval: interval,
		timeout:  timeout,
	}
}

// Run blocks, sweeping on every tick until ctx is cancelled. Each tick reads
// the clock once so all sessions in a sweep are judged against the same
// instant.
func (s *Supervisor) Run(ctx context.Context) {
	s.logger.Info("inactivity supervisor started", "interval", s.interval, "timeout", s.timeout)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("inactivity supervisor stopped")
			return
		case <-ticker.C:
			s.sweep(time.Now())
		}
	}
}

// sweep demotes every qualifying session as of now. Each demotion fans out
// its own status_update frame, demoted session included, so clients track
// presence without polling.
func (s *Supervisor) sweep(now time.Time) {
	for _, sess := range s.registry.Sessions() {
		if !sess.DemoteIfIdle(now, s.timeout) {
			continue
		}
		s.logger.Info("session demoted for inactivity", "user", sess.Name, "remote", sess.RemoteAddr)
		s.record("status", sess.Name, protocol.StatusInactive)
		s.fanOut(&protocol.Response{
			Type:    protocol.KindStatusUpdate,
			Sender:  protocol.SenderServer,
			Content: protocol.StatusChange{User: sess.Name, Status: protocol.StatusInactive},
		})
	}
}

// fanOut encodes resp once and sends it to every live session. Sends iterate
// a snapshot outside the registry lock and are best-effort.
func (s *Supervisor) fanOut(resp *protocol.Response) {
	frame, err := protocol.Encode(resp, time.Now())
	if err != nil {
		s.logger.Error("encode failed", "kind", resp.Type, "error", err)
		return
	}
	for _, sess := range s.registry.Sessions() {
		if err := sess.Conn.Send(frame); err != nil {
			s.logger.Debug("fan-out send failed", "to", sess.Name, "error", err)
		}
	}
}

func (s *Supervisor) record(kind, user, detail string) {
	if s.journal == nil {
		return
	}
	s.journal.Record(kind, user, detail)
}
