package health

import (
	"context"
	"time"

	"github.com/operator-framework/api/pkg/operators/v1alpha1"
	"github.com/sirupsen/logrus"
	utilclock "k8s.io/utils/clock"

	"github.com/ajaggapa/deploy-brew-operator/pkg/metrics"
)

const defaultWaitInterval = 2 * time.Second

// TerminalWaiter blocks until a CSV reaches the Succeeded phase or a timeout elapses. It is
// deliberately lenient: API read errors are treated as "not yet terminal" and retried, so a
// transient read failure never aborts an otherwise-succeeding install.
type TerminalWaiter struct {
	logger   *logrus.Entry
	reader   ClusterReader
	clock    utilclock.Clock
	interval time.Duration
}

// NewTerminalWaiter returns a TerminalWaiter polling at the default interval.
func NewTerminalWaiter(logger *logrus.Entry, reader ClusterReader, clock utilclock.Clock) *TerminalWaiter {
	return &TerminalWaiter{
		logger:   logger,
		reader:   reader,
		clock:    clock,
		interval: defaultWaitInterval,
	}
}

// WaitForCSVSucceeded waits for the named CSV to reach phase Succeeded. It returns false only
// when the timeout elapses first.
func (w *TerminalWaiter) WaitForCSVSucceeded(ctx context.Context, namespace, name string, timeout time.Duration) bool {
	deadline := w.clock.Now().Add(timeout)
	logger := w.logger.WithFields(logrus.Fields{"csv": name, "namespace": namespace})

	for {
		phase, err := w.reader.GetCSVPhase(ctx, namespace, name)
		switch {
		case err != nil:
			logger.WithError(err).Debug("csv not readable yet")
		case phase == v1alpha1.CSVPhaseSucceeded:
			logger.Info("csv reached succeeded phase")
			metrics.EmitCSVWaitOutcome(metrics.Succeeded)
			return true
		default:
			logger.WithField("phase", phase).Debug("csv not terminal yet")
		}

		if !w.clock.Now().Before(deadline) {
			logger.Warn("csv did not reach succeeded phase before deadline")
			metrics.EmitCSVWaitOutcome(metrics.Failed)
			return false
		}
		w.clock.Sleep(w.interval)
	}
}

// WaitForAnyCSVSucceeded is the last resort when the target CSV name could not be determined:
// it succeeds as soon as any CSV in the namespace reaches phase Succeeded, returning its name.
func (w *TerminalWaiter) WaitForAnyCSVSucceeded(ctx context.Context, namespace string, timeout time.Duration) (string, bool) {
	deadline := w.clock.Now().Add(timeout)
	logger := w.logger.WithField("namespace", namespace)

	for {
		names, err := w.reader.ListCSVNames(ctx, namespace)
		if err != nil {
			logger.WithError(err).Debug("csv listing not readable yet")
		}
		for _, name := range names {
			phase, err := w.reader.GetCSVPhase(ctx, namespace, name)
			if err == nil && phase == v1alpha1.CSVPhaseSucceeded {
				logger.WithField("csv", name).Info("csv reached succeeded phase")
				metrics.EmitCSVWaitOutcome(metrics.Succeeded)
				return name, true
			}
		}

		if !w.clock.Now().Before(deadline) {
			logger.Warn("no csv reached succeeded phase before deadline")
			metrics.EmitCSVWaitOutcome(metrics.Failed)
			return "", false
		}
		w.clock.Sleep(w.interval)
	}
}
