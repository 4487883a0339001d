package health

import (
	"context"
	"time"

	"github.com/operator-framework/api/pkg/operators/v1alpha1"
	"github.com/sirupsen/logrus"
	"k8s.io/apimachinery/pkg/util/sets"
	utilclock "k8s.io/utils/clock"

	"github.com/ajaggapa/deploy-brew-operator/pkg/metrics"
)

const (
	// DefaultMonitorTimeout bounds a whole monitoring session.
	DefaultMonitorTimeout = 150 * time.Second

	defaultPollInterval = 5 * time.Second
	defaultCooldown     = 10 * time.Second
)

// monitorPhase names a state of the subscription health loop.
type monitorPhase string

const (
	phasePolling     monitorPhase = "Polling"
	phaseDiagnosing  monitorPhase = "Diagnosing"
	phaseRemediating monitorPhase = "Remediating"
	phaseCooldown    monitorPhase = "Cooldown"
	phaseResolved    monitorPhase = "Resolved"
	phaseTimedOut    monitorPhase = "TimedOut"
)

// monitorState is the per-session loop state. It is a value owned by a single monitoring
// session and threaded through the loop, never shared or global.
type monitorState struct {
	deadline   time.Time
	attempt    int
	phase      monitorPhase
	lastStatus v1alpha1.SubscriptionStatus

	// remediated records catalogs already deleted this session so a stale failure
	// condition on a later poll cannot trigger a second round of deletions.
	remediated sets.Set[string]
}

// Result reports the outcome of a monitoring session.
type Result struct {
	// Resolved is true when the subscription resolved to a CSV before the deadline.
	Resolved bool

	// CSVName is the CSV the subscription resolved to, when Resolved is true.
	CSVName string

	// Attempts is the number of poll iterations performed.
	Attempts int

	// RemediatedCatalogs names the unhealthy catalog sources deleted during the session.
	RemediatedCatalogs []string

	// LastStatus is the last observed subscription status, kept for diagnostics.
	LastStatus v1alpha1.SubscriptionStatus
}

// Monitor drives the subscription health loop: poll the subscription, evaluate its
// conditions, remediate unhealthy catalog sources blocking resolution, and report whether
// the subscription resolved to a CSV. All recoverable failures are absorbed inside the loop;
// only the overall deadline ends a session unsuccessfully.
type Monitor struct {
	logger       *logrus.Entry
	reader       ClusterReader
	remediator   *Remediator
	clock        utilclock.Clock
	pollInterval time.Duration
	cooldown     time.Duration
}

// MonitorOption configures a Monitor.
type MonitorOption func(*Monitor)

// WithClock swaps the monitor's clock, letting tests simulate elapsed time.
func WithClock(clock utilclock.Clock) MonitorOption {
	return func(m *Monitor) {
		m.clock = clock
	}
}

// WithPollInterval overrides the pause between polls.
func WithPollInterval(interval time.Duration) MonitorOption {
	return func(m *Monitor) {
		m.pollInterval = interval
	}
}

// WithCooldown overrides the pause taken after a successful remediation.
func WithCooldown(cooldown time.Duration) MonitorOption {
	return func(m *Monitor) {
		m.cooldown = cooldown
	}
}

// NewMonitor returns a Monitor with real-clock defaults.
func NewMonitor(logger *logrus.Entry, reader ClusterReader, remediator *Remediator, options ...MonitorOption) *Monitor {
	m := &Monitor{
		logger:       logger,
		reader:       reader,
		remediator:   remediator,
		clock:        utilclock.RealClock{},
		pollInterval: defaultPollInterval,
		cooldown:     defaultCooldown,
	}
	for _, option := range options {
		option(m)
	}
	return m
}

// MonitorSubscriptionHealth polls the named subscription until it resolves to a CSV or the
// timeout elapses. The deadline is re-checked at the top of every iteration, so the session
// ends as soon as it is observed to have passed regardless of how long the prior iteration
// took. Every iteration either makes a state transition or sleeps.
func (m *Monitor) MonitorSubscriptionHealth(ctx context.Context, namespace, name string, timeout time.Duration) Result {
	state := monitorState{
		deadline:   m.clock.Now().Add(timeout),
		phase:      phasePolling,
		remediated: sets.New[string](),
	}
	logger := m.logger.WithFields(logrus.Fields{
		"subscription": name,
		"namespace":    namespace,
	})
	logger.WithField("timeout", timeout).Info("monitoring subscription health")

	for {
		if !m.clock.Now().Before(state.deadline) {
			state.phase = phaseTimedOut
			logger.WithField("attempts", state.attempt).Warn("subscription did not resolve before deadline")
			metrics.EmitResolutionOutcome(metrics.Failed)
			return m.result(&state, false, "")
		}

		state.attempt++
		metrics.EmitHealthPoll()

		status, err := m.reader.GetSubscriptionStatus(ctx, namespace, name)
		if err != nil {
			// Transient read failure; the next poll re-observes.
			logger.WithError(err).Debug("subscription status unreadable")
			m.clock.Sleep(m.pollInterval)
			continue
		}
		state.lastStatus = status
		signals := Evaluate(status)

		progress := logger.WithFields(logrus.Fields{
			"state":     state.phase,
			"attempt":   state.attempt,
			"remaining": state.deadline.Sub(m.clock.Now()).Round(time.Second),
		})

		switch {
		case signals.CurrentCSV != "":
			state.phase = phaseResolved
			progress.WithField("csv", signals.CurrentCSV).Info("subscription resolved")
			metrics.EmitResolutionOutcome(metrics.Succeeded)
			return m.result(&state, true, signals.CurrentCSV)

		case signals.ResolutionFailed:
			state.phase = phaseDiagnosing
			progress.WithFields(logrus.Fields{
				"state":   state.phase,
				"message": signals.ResolutionMessage,
			}).Info("resolution failed, diagnosing catalog sources")

			state.phase = phaseRemediating
			remediated := m.remediator.Remediate(ctx, signals.ResolutionMessage, state.remediated)
			progress = progress.WithField("state", state.phase)
			if len(remediated) > 0 {
				// Remediation may change the whole resolution landscape, so cool down
				// and restart the loop from scratch rather than resuming.
				state.remediated.Insert(remediated...)
				state.phase = phaseCooldown
				progress.WithField("catalogs", remediated).Info("removed unhealthy catalog sources, cooling down")
				m.clock.Sleep(m.cooldown)
			} else {
				// Nothing actionable in the message; the failure may clear on its own.
				m.clock.Sleep(m.pollInterval)
			}
			state.phase = phasePolling

		default:
			if signals.BundleUnpacking {
				progress.Info("bundle still unpacking")
			} else if signals.CatalogUnhealthy {
				progress.Info("catalog sources reported unhealthy, waiting for resolution signal")
			} else {
				progress.Debug("no resolution signal yet")
			}
			m.clock.Sleep(m.pollInterval)
		}
	}
}

func (m *Monitor) result(state *monitorState, resolved bool, csvName string) Result {
	return Result{
		Resolved:           resolved,
		CSVName:            csvName,
		Attempts:           state.attempt,
		RemediatedCatalogs: sets.List(state.remediated),
		LastStatus:         state.lastStatus,
	}
}
