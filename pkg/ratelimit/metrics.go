package ratelimit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Decisions counts admission results: "allowed", "denied" (limit hit,
	// lockout created), "locked" (denied by an existing lockout) and
	// "global" (denied by the middleware's global bucket)
	Decisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "learnia_ratelimit_decisions_total",
			Help: "Total number of rate limit decisions by result",
		},
		[]string{"result"},
	)

	// Lockouts counts lockouts created
	Lockouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "learnia_ratelimit_lockouts_total",
			Help: "Total number of identifier lockouts",
		},
	)

	// TrackedIdentifiers is the number of identifiers with a window in memory
	TrackedIdentifiers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "learnia_ratelimit_tracked_identifiers",
			Help: "Number of identifiers currently tracked by the rate limiter",
		},
	)
)

const (
	resultAllowed = "allowed"
	resultDenied  = "denied"
	resultLocked  = "locked"
	resultGlobal  = "global"
)
