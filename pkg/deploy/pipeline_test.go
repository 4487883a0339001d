package deploy

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/operator-framework/api/pkg/operators/v1alpha1"
	olmfake "github.com/operator-framework/operator-lifecycle-manager/pkg/api/client/clientset/versioned/fake"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	k8sfake "k8s.io/client-go/kubernetes/fake"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/ajaggapa/deploy-brew-operator/pkg/health"
)

func readyRegistryPod(catalogName string) *corev1.Pod {
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      catalogName + "-abcde",
			Namespace: DefaultMarketplaceNamespace,
			Labels:    map[string]string{health.CatalogSourceLabelKey: catalogName},
		},
		Status: corev1.PodStatus{
			Phase: corev1.PodRunning,
			Conditions: []corev1.PodCondition{
				{Type: corev1.PodReady, Status: corev1.ConditionTrue},
			},
		},
	}
}

func TestRunDryRun(t *testing.T) {
	config := testConfig()
	config.DryRun = true

	kubeClient := k8sfake.NewSimpleClientset()
	crClient := olmfake.NewSimpleClientset()
	var out bytes.Buffer
	pipeline := NewPipeline(deployTestLogger(), config, kubeClient, crClient, WithOutput(&out))

	require.NoError(t, pipeline.Run(context.Background()))
	require.Contains(t, out.String(), "kind: Subscription")
	require.Contains(t, out.String(), "kind: CatalogSource")

	// Dry run renders only; nothing reaches the cluster.
	_, err := kubeClient.CoreV1().Namespaces().Get(context.Background(), "operators", metav1.GetOptions{})
	require.Error(t, err)
}

func TestRunValidatesFirst(t *testing.T) {
	config := testConfig()
	config.Package = ""

	pipeline := NewPipeline(deployTestLogger(), config, k8sfake.NewSimpleClientset(), olmfake.NewSimpleClientset())
	require.EqualError(t, pipeline.Run(context.Background()), "operator package name is required")
}

func TestRunAbortsOnMirrorFailure(t *testing.T) {
	config := testConfig()
	config.MirrorMapping = "mapping.txt"

	runner := &fakeRunner{err: errors.New("exit status 1")}
	kubeClient := k8sfake.NewSimpleClientset()
	pipeline := NewPipeline(deployTestLogger(), config, kubeClient, olmfake.NewSimpleClientset(), WithMirrorRunner(runner))

	require.Error(t, pipeline.Run(context.Background()))

	// The mirror step failed before any cluster resource was touched.
	_, err := kubeClient.CoreV1().Namespaces().Get(context.Background(), "operators", metav1.GetOptions{})
	require.Error(t, err)
}

func TestRunInstallsAndVerifies(t *testing.T) {
	config := testConfig()
	config.MirrorMapping = "mapping.txt"

	// The subscription already resolved and its CSV already succeeded, so verification
	// completes on the first poll of each stage.
	crObjs := []runtime.Object{
		&v1alpha1.Subscription{
			ObjectMeta: metav1.ObjectMeta{Name: "op", Namespace: "operators"},
			Status:     v1alpha1.SubscriptionStatus{CurrentCSV: "op.v1.0.0"},
		},
		&v1alpha1.ClusterServiceVersion{
			ObjectMeta: metav1.ObjectMeta{Name: "op.v1.0.0", Namespace: "operators"},
			Status:     v1alpha1.ClusterServiceVersionStatus{Phase: v1alpha1.CSVPhaseSucceeded},
		},
	}
	kubeClient := k8sfake.NewSimpleClientset(readyRegistryPod("catalog-mine"))
	crClient := olmfake.NewSimpleClientset(crObjs...)

	runner := &fakeRunner{}
	start := time.Now()
	clock := clocktesting.NewFakeClock(start)
	pipeline := NewPipeline(deployTestLogger(), config, kubeClient, crClient,
		WithClock(clock), WithMirrorRunner(runner))

	require.NoError(t, pipeline.Run(context.Background()))

	require.Equal(t, [][]string{{"oc", "image", "mirror", "-f", "mapping.txt"}}, runner.commands)

	_, err := kubeClient.CoreV1().Namespaces().Get(context.Background(), "operators", metav1.GetOptions{})
	require.NoError(t, err)

	ogs, err := crClient.OperatorsV1().OperatorGroups("operators").List(context.Background(), metav1.ListOptions{})
	require.NoError(t, err)
	require.Len(t, ogs.Items, 1)

	_, err = crClient.OperatorsV1alpha1().CatalogSources(DefaultMarketplaceNamespace).Get(context.Background(), "catalog-mine", metav1.GetOptions{})
	require.NoError(t, err)

	// Everything was already converged; no stage had to sleep.
	require.True(t, clock.Now().Equal(start))
}

func TestRunVerificationFailure(t *testing.T) {
	tests := []struct {
		description  string
		strictVerify bool
		wantErr      bool
	}{
		{description: "Strict/Fatal", strictVerify: true, wantErr: true},
		{description: "Default/WarnAndContinue", strictVerify: false, wantErr: false},
	}

	for _, tt := range tests {
		t.Run(tt.description, func(t *testing.T) {
			config := testConfig()
			config.StrictVerify = tt.strictVerify

			// Nothing in the cluster ever converges; every wait runs to its deadline.
			pipeline := NewPipeline(deployTestLogger(), config,
				k8sfake.NewSimpleClientset(), olmfake.NewSimpleClientset(),
				WithClock(clocktesting.NewFakeClock(time.Now())))

			err := pipeline.Run(context.Background())
			if tt.wantErr {
				require.EqualError(t, err, "operator op did not reach a successful install state")
			} else {
				require.NoError(t, err)
			}
		})
	}
}
