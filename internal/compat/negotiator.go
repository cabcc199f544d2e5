package compat

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Prober performs the read-only health probe. present is false when the
// service answered but reported no version.
type Prober interface {
	ProbeVersion(ctx context.Context) (version string, present bool, err error)
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context) (string, bool, error)

// ProbeVersion calls f.
func (f ProberFunc) ProbeVersion(ctx context.Context) (string, bool, error) {
	return f(ctx)
}

// Negotiator probes the remote service and caches the verdict while the
// service stays reachable. A new Negotiator starts Unchecked.
type Negotiator struct {
	prober Prober
	logger *zap.Logger
	now    func() time.Time

	mu      sync.Mutex
	set     Set
	verdict Verdict

	group singleflight.Group
}

// Option configures a Negotiator.
type Option func(*Negotiator)

// WithLogger sets the logger. The default discards output.
func WithLogger(l *zap.Logger) Option {
	return func(n *Negotiator) {
		if l != nil {
			n.logger = l
		}
	}
}

// NewNegotiator creates a negotiator over the given compatibility set.
func NewNegotiator(prober Prober, set Set, opts ...Option) *Negotiator {
	n := &Negotiator{
		prober:  prober,
		logger:  zap.NewNop(),
		now:     time.Now,
		set:     set,
		verdict: Verdict{State: Unchecked, Message: "compatibility not checked"},
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Verdict returns the cached verdict without probing.
func (n *Negotiator) Verdict() Verdict {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.verdict
}

// Set returns the current compatibility set.
func (n *Negotiator) Set() Set {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.set
}

// SetVersions replaces the compatibility set and drops the cached verdict so
// the next Ensure re-probes against the new list.
func (n *Negotiator) SetVersions(versions []string) {
	set := NewSet(versions...)
	n.mu.Lock()
	n.set = set
	n.verdict = Verdict{State: Unchecked, Message: "compatibility set changed"}
	n.mu.Unlock()
	n.logger.Info("Compatibility set updated", zap.Strings("versions", set.Versions()))
}

// Reset forgets the cached verdict so the next Ensure probes again. The
// client calls it when a request fails in transit.
func (n *Negotiator) Reset() {
	n.mu.Lock()
	n.verdict = Verdict{State: Unchecked, Message: "compatibility not checked"}
	n.mu.Unlock()
}

// Ensure returns the cached verdict if the service was reached, otherwise it
// runs a check. An Unavailable verdict is never reused, so a service that
// recovers is picked up by the next caller. Callers gating a mutating call
// use this.
func (n *Negotiator) Ensure(ctx context.Context) Verdict {
	if v := n.Verdict(); v.Reachable() {
		return v
	}
	return n.Check(ctx)
}

// Check always probes the service and overwrites the cached verdict.
// Concurrent calls share one probe. If the probe is abandoned because ctx was
// cancelled, the cache returns to Unchecked and the returned verdict says so.
func (n *Negotiator) Check(ctx context.Context) Verdict {
	// A waiter can receive an abandoned result from a leader whose context was
	// cancelled; its own context is still live, so it probes again once.
	for attempt := 0; attempt < 2; attempt++ {
		v := n.checkShared(ctx)
		if v.State != Unchecked || ctx.Err() != nil {
			return v
		}
	}
	return n.Verdict()
}

func (n *Negotiator) checkShared(ctx context.Context) Verdict {
	ch := n.group.DoChan("health", func() (interface{}, error) {
		return n.probe(ctx), nil
	})
	select {
	case res := <-ch:
		return res.Val.(Verdict)
	case <-ctx.Done():
		return abandoned(ctx.Err())
	}
}

func (n *Negotiator) probe(ctx context.Context) Verdict {
	n.mu.Lock()
	if n.verdict.State == Unchecked {
		n.verdict.State = Checking
		n.verdict.Message = "compatibility check in progress"
	}
	n.mu.Unlock()

	version, present, err := n.prober.ProbeVersion(ctx)

	if err != nil && ctx.Err() != nil {
		v := abandoned(ctx.Err())
		n.store(v)
		n.logger.Debug("Compatibility check abandoned", zap.Error(ctx.Err()))
		return v
	}

	n.mu.Lock()
	set := n.set
	n.mu.Unlock()

	v := classify(version, present, err, set)
	v.CheckedAt = n.now()
	n.store(v)

	switch v.State {
	case Unavailable:
		n.logger.Error("CloudManager unavailable", zap.String("message", v.Message), zap.Error(err))
	case IncompatibleWarning:
		n.logger.Warn("CloudManager version not in compatibility list",
			zap.String("version", v.Version), zap.Strings("compatible", set.Versions()))
	default:
		n.logger.Info("CloudManager compatibility verified", zap.String("version", v.Version), zap.String("message", v.Message))
	}
	return v
}

func (n *Negotiator) store(v Verdict) {
	n.mu.Lock()
	n.verdict = v
	n.mu.Unlock()
}

func abandoned(cause error) Verdict {
	return Verdict{State: Unchecked, Message: fmt.Sprintf("compatibility check abandoned: %v", cause)}
}

// classify maps a probe outcome onto a verdict.
func classify(version string, present bool, err error, set Set) Verdict {
	if err != nil {
		return Verdict{
			State:   Unavailable,
			Message: fmt.Sprintf("CloudManager unreachable: %v", err),
			Err:     err,
		}
	}
	version = strings.TrimSpace(version)
	if !present || version == "" {
		return Verdict{
			State:      Compatible,
			Success:    true,
			Compatible: true,
			Message:    "CloudManager reported no version; assuming compatible",
		}
	}
	if set.Contains(version) {
		return Verdict{
			State:      Compatible,
			Success:    true,
			Compatible: true,
			Version:    version,
			Message:    fmt.Sprintf("CloudManager version %s is compatible", version),
		}
	}
	return Verdict{
		State:   IncompatibleWarning,
		Success: true,
		Version: version,
		Warning: true,
		Message: fmt.Sprintf("CloudManager version %s is not in the compatibility list %v; continuing",
			version, set.Versions()),
	}
}
