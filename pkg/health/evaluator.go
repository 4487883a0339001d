package health

import (
	"github.com/operator-framework/api/pkg/operators/v1alpha1"
	corev1 "k8s.io/api/core/v1"
)

// Signals holds the discrete state extracted from a subscription's status.
// Each field is independent; absence of a condition leaves its signal false.
type Signals struct {
	// ResolutionFailed is true when the resolver reported it could not satisfy the
	// subscription's constraints. ResolutionMessage carries the resolver's free-text
	// explanation when set.
	ResolutionFailed  bool
	ResolutionMessage string

	// CatalogUnhealthy is true when at least one catalog source relevant to resolution
	// is reported unhealthy.
	CatalogUnhealthy bool

	// BundleUnpacking is true while the resolved bundle is still being unpacked.
	BundleUnpacking bool

	// CurrentCSV is the CSV the subscription resolved to, when known.
	CurrentCSV string
}

// Evaluate extracts Signals from a subscription status snapshot. Conditions are treated as a
// full replacement snapshot: a missing or malformed condition list simply yields no signal.
// Evaluate never fails and performs no I/O.
func Evaluate(status v1alpha1.SubscriptionStatus) Signals {
	signals := Signals{CurrentCSV: status.CurrentCSV}

	for _, cond := range status.Conditions {
		if cond.Status != corev1.ConditionTrue {
			continue
		}

		switch cond.Type {
		case v1alpha1.SubscriptionResolutionFailed:
			signals.ResolutionFailed = true
			signals.ResolutionMessage = cond.Message
		case v1alpha1.SubscriptionCatalogSourcesUnhealthy:
			signals.CatalogUnhealthy = true
		case v1alpha1.SubscriptionBundleUnpacking:
			signals.BundleUnpacking = true
		}
	}

	return signals
}
