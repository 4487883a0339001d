package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/operator-framework/api/pkg/operators/v1alpha1"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	clocktesting "k8s.io/utils/clock/testing"
)

func newTestMonitor(reader *fakeReader, clock *clocktesting.FakeClock) *Monitor {
	remediator := NewRemediator(testLogger(), reader, "openshift-marketplace", "catalog-mine")
	return NewMonitor(testLogger(), reader, remediator, WithClock(clock))
}

func TestMonitorResolvedOnFirstPoll(t *testing.T) {
	reader := &fakeReader{
		statusFn: func(call int) (v1alpha1.SubscriptionStatus, error) {
			return v1alpha1.SubscriptionStatus{CurrentCSV: "op.v1.0.0"}, nil
		},
	}
	start := time.Now()
	clock := clocktesting.NewFakeClock(start)
	monitor := newTestMonitor(reader, clock)

	result := monitor.MonitorSubscriptionHealth(context.Background(), "operators", "op", DefaultMonitorTimeout)

	require.True(t, result.Resolved)
	require.Equal(t, "op.v1.0.0", result.CSVName)
	require.Equal(t, 1, result.Attempts)
	require.Empty(t, reader.deleted)
	require.True(t, clock.Now().Equal(start))
}

func TestMonitorRemediatesBlockingCatalog(t *testing.T) {
	message := "constraints not satisfiable: openshift-marketplace/bad-cat, openshift-marketplace/catalog-mine"
	reader := &fakeReader{
		statusFn: func(call int) (v1alpha1.SubscriptionStatus, error) {
			if call <= 3 {
				return v1alpha1.SubscriptionStatus{
					Conditions: []v1alpha1.SubscriptionCondition{failedCondition(message)},
				}, nil
			}
			return v1alpha1.SubscriptionStatus{CurrentCSV: "op.v1.0.0"}, nil
		},
	}
	clock := clocktesting.NewFakeClock(time.Now())
	monitor := newTestMonitor(reader, clock)

	result := monitor.MonitorSubscriptionHealth(context.Background(), "operators", "op", DefaultMonitorTimeout)

	require.True(t, result.Resolved)
	require.Equal(t, "op.v1.0.0", result.CSVName)
	require.Equal(t, 4, result.Attempts)
	// The stale failure condition on polls two and three must not trigger more deletions.
	require.Equal(t, []string{"bad-cat"}, reader.deleted)
	require.Equal(t, []string{"bad-cat"}, result.RemediatedCatalogs)
}

func TestMonitorHealthyCatalogNeverRemediated(t *testing.T) {
	message := "constraints not satisfiable: openshift-marketplace/fine-cat"
	reader := &fakeReader{
		statusFn: func(call int) (v1alpha1.SubscriptionStatus, error) {
			if call == 1 {
				return v1alpha1.SubscriptionStatus{
					Conditions: []v1alpha1.SubscriptionCondition{failedCondition(message)},
				}, nil
			}
			return v1alpha1.SubscriptionStatus{CurrentCSV: "op.v1.0.0"}, nil
		},
		podsFn: func(namespace, catalogName string) ([]corev1.Pod, error) {
			return []corev1.Pod{readyPod("fine-cat-pod")}, nil
		},
	}
	clock := clocktesting.NewFakeClock(time.Now())
	monitor := newTestMonitor(reader, clock)

	result := monitor.MonitorSubscriptionHealth(context.Background(), "operators", "op", DefaultMonitorTimeout)

	require.True(t, result.Resolved)
	require.Empty(t, reader.deleted)
}

func TestMonitorTimesOutExactlyAtDeadline(t *testing.T) {
	reader := &fakeReader{
		statusFn: func(call int) (v1alpha1.SubscriptionStatus, error) {
			return v1alpha1.SubscriptionStatus{
				Conditions: []v1alpha1.SubscriptionCondition{
					{Type: v1alpha1.SubscriptionBundleUnpacking, Status: corev1.ConditionTrue},
				},
			}, nil
		},
	}
	start := time.Now()
	clock := clocktesting.NewFakeClock(start)
	monitor := newTestMonitor(reader, clock)

	result := monitor.MonitorSubscriptionHealth(context.Background(), "operators", "op", 30*time.Second)

	require.False(t, result.Resolved)
	require.Empty(t, result.CSVName)
	require.Equal(t, 6, result.Attempts)
	require.Empty(t, reader.deleted)
	// The loop ends at the first deadline check at or after expiry, never later.
	require.True(t, clock.Now().Equal(start.Add(30*time.Second)))
	// The last observed status is kept for diagnostics.
	require.Len(t, result.LastStatus.Conditions, 1)
}

func TestMonitorAbsorbsTransientReadErrors(t *testing.T) {
	reader := &fakeReader{
		statusFn: func(call int) (v1alpha1.SubscriptionStatus, error) {
			if call == 1 {
				return v1alpha1.SubscriptionStatus{}, errors.New("connection refused")
			}
			return v1alpha1.SubscriptionStatus{CurrentCSV: "op.v1.0.0"}, nil
		},
	}
	clock := clocktesting.NewFakeClock(time.Now())
	monitor := newTestMonitor(reader, clock)

	result := monitor.MonitorSubscriptionHealth(context.Background(), "operators", "op", DefaultMonitorTimeout)

	require.True(t, result.Resolved)
	require.Equal(t, 2, result.Attempts)
}

func TestMonitorUnactionableFailureKeepsPolling(t *testing.T) {
	reader := &fakeReader{
		statusFn: func(call int) (v1alpha1.SubscriptionStatus, error) {
			if call <= 2 {
				return v1alpha1.SubscriptionStatus{
					Conditions: []v1alpha1.SubscriptionCondition{failedCondition("transient timing issue")},
				}, nil
			}
			return v1alpha1.SubscriptionStatus{CurrentCSV: "op.v1.0.0"}, nil
		},
	}
	clock := clocktesting.NewFakeClock(time.Now())
	monitor := newTestMonitor(reader, clock)

	result := monitor.MonitorSubscriptionHealth(context.Background(), "operators", "op", DefaultMonitorTimeout)

	require.True(t, result.Resolved)
	require.Equal(t, 3, result.Attempts)
	require.Empty(t, reader.deleted)
}
