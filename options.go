package gossipmesh

import (
	"time"

	"go.uber.org/zap"

	"github.com/nodegossip/gossipmesh/internal"
)

const (
	// DefaultTTL is the TTL new locally-originated messages get when the
	// caller does not specify one.
	DefaultTTL = 30 * time.Second

	// DefaultMaxDegree bounds neighbor count for BuildGraph when the
	// caller does not specify one.
	DefaultMaxDegree = 6

	// DefaultConvictionThreshold is the phi value above which a peer
	// connection is considered down.
	DefaultConvictionThreshold = 8.0
)

// Options carries everything about a Mesh that is not part of the
// required Config property bag (§6), following the teacher's split
// between a required Config and an Options overlay of WithXxx knobs.
type Options struct {
	// DefaultTTL is used by Broadcast/SolicitWait/SolicitDirect when the
	// caller does not pass an explicit TTL.
	DefaultTTL time.Duration

	// MaxDegree bounds neighbor count in BuildGraph.
	MaxDegree int

	// UIDRegime selects tiny (simulation) or normal (production) UID
	// allocation.
	UIDRegime internal.Regime

	// Events observes admission and connection lifecycle events; nil
	// disables observation.
	Events internal.EventHook

	// ConvictionThreshold is the phi value above which PeerStatus reports
	// a peer connection as down.
	ConvictionThreshold float64

	Logger *zap.Logger
}

// Option mutates Options during Create.
type Option func(*Options)

// WithDefaultTTL overrides DefaultTTL.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(o *Options) { o.DefaultTTL = ttl }
}

// WithMaxDegree overrides MaxDegree.
func WithMaxDegree(degree int) Option {
	return func(o *Options) { o.MaxDegree = degree }
}

// WithUIDRegime overrides the initial UID allocation regime.
func WithUIDRegime(regime internal.Regime) Option {
	return func(o *Options) { o.UIDRegime = regime }
}

// WithEvents registers an admission/connection event observer.
func WithEvents(events internal.EventHook) Option {
	return func(o *Options) { o.Events = events }
}

// WithConvictionThreshold overrides the phi value above which a peer
// connection is considered down.
func WithConvictionThreshold(threshold float64) Option {
	return func(o *Options) { o.ConvictionThreshold = threshold }
}

// WithLogger overrides the default development logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *Options) { o.Logger = logger }
}

func defaultOptions() *Options {
	l, _ := zap.NewDevelopment()
	return &Options{
		DefaultTTL:          DefaultTTL,
		MaxDegree:           DefaultMaxDegree,
		UIDRegime:           internal.RegimeNormal,
		Events:              internal.NoopEventHook{},
		ConvictionThreshold: DefaultConvictionThreshold,
		Logger:              l,
	}
}
