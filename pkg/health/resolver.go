package health

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"k8s.io/apimachinery/pkg/util/sets"
	utilclock "k8s.io/utils/clock"
)

const (
	defaultDetectionWindow   = 60 * time.Second
	defaultDetectionInterval = 2 * time.Second
)

// CSVResolver determines the name of the CSV a subscription resolved to. It prefers the
// subscription's own reported CurrentCSV, which is authoritative once present, and falls
// back to diffing the namespace's CSV names against a pre-subscription baseline within a
// bounded detection window.
type CSVResolver struct {
	logger   *logrus.Entry
	reader   ClusterReader
	clock    utilclock.Clock
	window   time.Duration
	interval time.Duration
}

// NewCSVResolver returns a CSVResolver with the default detection window.
func NewCSVResolver(logger *logrus.Entry, reader ClusterReader, clock utilclock.Clock) *CSVResolver {
	return &CSVResolver{
		logger:   logger,
		reader:   reader,
		clock:    clock,
		window:   defaultDetectionWindow,
		interval: defaultDetectionInterval,
	}
}

// Resolve returns the CSV name for the subscription, or the empty string if no name could be
// determined within the detection window. baseline is the set of CSV names present in the
// namespace before the subscription was created; the first live name absent from the baseline,
// in listing order, is taken as the subscription's CSV. When several new names appear at once
// the first one encountered wins.
func (r *CSVResolver) Resolve(ctx context.Context, namespace, subscription string, baseline sets.Set[string]) string {
	deadline := r.clock.Now().Add(r.window)

	for {
		status, err := r.reader.GetSubscriptionStatus(ctx, namespace, subscription)
		if err == nil && status.CurrentCSV != "" {
			return status.CurrentCSV
		}
		if err != nil {
			r.logger.WithError(err).Debug("subscription unreadable, retrying")
		}

		names, err := r.reader.ListCSVNames(ctx, namespace)
		if err != nil {
			r.logger.WithError(err).Debug("csv listing unreadable, retrying")
		} else {
			for _, name := range names {
				if !baseline.Has(name) {
					r.logger.WithField("csv", name).Info("detected new csv for subscription")
					return name
				}
			}
		}

		if !r.clock.Now().Before(deadline) {
			r.logger.WithField("subscription", subscription).Warn("could not determine csv within detection window")
			return ""
		}
		r.clock.Sleep(r.interval)
	}
}
