package health

import (
	"context"
	"time"

	"github.com/operator-framework/api/pkg/operators/v1alpha1"
	"github.com/operator-framework/operator-lifecycle-manager/pkg/api/client/clientset/versioned"
	k8serrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/labels"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/client-go/kubernetes"
)

// CatalogSourceLabelKey is the label the registry reconciler stamps on a CatalogSource's
// backing pods.
const CatalogSourceLabelKey = "olm.catalogSource"

// ClusterReader is the read surface (plus catalog deletion) the health loop needs from the
// cluster. Reads are tolerant: absence of a resource is reported as empty state, not an error,
// so a single missing object never aborts a poll.
type ClusterReader interface {
	// GetSubscriptionStatus returns the status of the named subscription, or an empty
	// status if the subscription does not exist.
	GetSubscriptionStatus(ctx context.Context, namespace, name string) (v1alpha1.SubscriptionStatus, error)

	// ListCatalogPods returns the registry pods backing the named catalog source.
	ListCatalogPods(ctx context.Context, namespace, catalogName string) ([]corev1.Pod, error)

	// DeleteCatalogSource deletes the named catalog source, bounded by timeout.
	// Deleting an absent catalog source is not an error.
	DeleteCatalogSource(ctx context.Context, namespace, name string, timeout time.Duration) error

	// ListCSVNames returns the names of all CSVs in the namespace, in listing order.
	ListCSVNames(ctx context.Context, namespace string) ([]string, error)

	// GetCSVPhase returns the lifecycle phase of the named CSV.
	GetCSVPhase(ctx context.Context, namespace, name string) (v1alpha1.ClusterServiceVersionPhase, error)

	// ListCatalogSources returns all catalog sources in the namespace.
	ListCatalogSources(ctx context.Context, namespace string) ([]v1alpha1.CatalogSource, error)
}

type clusterReader struct {
	kubeClient kubernetes.Interface
	crClient   versioned.Interface
}

// NewClusterReader returns a ClusterReader backed by the given clientsets.
func NewClusterReader(kubeClient kubernetes.Interface, crClient versioned.Interface) ClusterReader {
	return &clusterReader{
		kubeClient: kubeClient,
		crClient:   crClient,
	}
}

func (r *clusterReader) GetSubscriptionStatus(ctx context.Context, namespace, name string) (v1alpha1.SubscriptionStatus, error) {
	sub, err := r.crClient.OperatorsV1alpha1().Subscriptions(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		if k8serrors.IsNotFound(err) {
			return v1alpha1.SubscriptionStatus{}, nil
		}
		return v1alpha1.SubscriptionStatus{}, err
	}
	return sub.Status, nil
}

func (r *clusterReader) ListCatalogPods(ctx context.Context, namespace, catalogName string) ([]corev1.Pod, error) {
	selector := labels.SelectorFromSet(labels.Set{CatalogSourceLabelKey: catalogName})
	pods, err := r.kubeClient.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{LabelSelector: selector.String()})
	if err != nil {
		return nil, err
	}
	return pods.Items, nil
}

func (r *clusterReader) DeleteCatalogSource(ctx context.Context, namespace, name string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := r.crClient.OperatorsV1alpha1().CatalogSources(namespace).Delete(ctx, name, metav1.DeleteOptions{})
	if k8serrors.IsNotFound(err) {
		return nil
	}
	return err
}

func (r *clusterReader) ListCSVNames(ctx context.Context, namespace string) ([]string, error) {
	csvs, err := r.crClient.OperatorsV1alpha1().ClusterServiceVersions(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(csvs.Items))
	for _, csv := range csvs.Items {
		names = append(names, csv.GetName())
	}
	return names, nil
}

func (r *clusterReader) GetCSVPhase(ctx context.Context, namespace, name string) (v1alpha1.ClusterServiceVersionPhase, error) {
	csv, err := r.crClient.OperatorsV1alpha1().ClusterServiceVersions(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return "", err
	}
	return csv.Status.Phase, nil
}

func (r *clusterReader) ListCatalogSources(ctx context.Context, namespace string) ([]v1alpha1.CatalogSource, error) {
	catalogs, err := r.crClient.OperatorsV1alpha1().CatalogSources(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, err
	}
	return catalogs.Items, nil
}
