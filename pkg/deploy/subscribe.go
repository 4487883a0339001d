package deploy

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	corev1 "k8s.io/api/core/v1"
	k8serrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

const catalogReadyTimeout = 60 * time.Second

// ensureNamespace creates the target namespace if it does not exist yet.
func (p *Pipeline) ensureNamespace(ctx context.Context) error {
	_, err := p.kubeClient.CoreV1().Namespaces().Get(ctx, p.config.Namespace, metav1.GetOptions{})
	if err == nil {
		return nil
	}
	if !k8serrors.IsNotFound(err) {
		return errors.Wrapf(err, "error reading namespace %s", p.config.Namespace)
	}

	p.logger.WithField("namespace", p.config.Namespace).Info("creating namespace")
	_, err = p.kubeClient.CoreV1().Namespaces().Create(ctx, p.config.TargetNamespace(), metav1.CreateOptions{})
	if k8serrors.IsAlreadyExists(err) {
		return nil
	}
	return errors.Wrapf(err, "error creating namespace %s", p.config.Namespace)
}

// ensureOperatorGroup creates an operator group in the target namespace unless one already
// exists. OLM tolerates exactly one operator group per namespace, so any existing group is
// reused as-is.
func (p *Pipeline) ensureOperatorGroup(ctx context.Context) error {
	existing, err := p.crClient.OperatorsV1().OperatorGroups(p.config.Namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return errors.Wrapf(err, "error listing operatorgroups in %s", p.config.Namespace)
	}
	if len(existing.Items) > 0 {
		p.logger.WithField("operatorgroup", existing.Items[0].GetName()).Info("reusing existing operatorgroup")
		return nil
	}

	og := p.config.OperatorGroupManifest()
	p.logger.WithField("operatorgroup", og.GetName()).Info("creating operatorgroup")
	_, err = p.crClient.OperatorsV1().OperatorGroups(p.config.Namespace).Create(ctx, og, metav1.CreateOptions{})
	if k8serrors.IsAlreadyExists(err) {
		return nil
	}
	return errors.Wrapf(err, "error creating operatorgroup %s", og.GetName())
}

// ensureCatalogSource creates the catalog source serving the index image if absent.
func (p *Pipeline) ensureCatalogSource(ctx context.Context) error {
	_, err := p.crClient.OperatorsV1alpha1().CatalogSources(p.config.MarketplaceNamespace).Get(ctx, p.config.CatalogSource, metav1.GetOptions{})
	if err == nil {
		p.logger.WithField("catalogsource", p.config.CatalogSource).Info("reusing existing catalogsource")
		return nil
	}
	if !k8serrors.IsNotFound(err) {
		return errors.Wrapf(err, "error reading catalogsource %s", p.config.CatalogSource)
	}

	catalog := p.config.CatalogSourceManifest()
	p.logger.WithFields(logrus.Fields{
		"catalogsource": catalog.GetName(),
		"image":         catalog.Spec.Image,
	}).Info("creating catalogsource")
	_, err = p.crClient.OperatorsV1alpha1().CatalogSources(p.config.MarketplaceNamespace).Create(ctx, catalog, metav1.CreateOptions{})
	if k8serrors.IsAlreadyExists(err) {
		return nil
	}
	return errors.Wrapf(err, "error creating catalogsource %s", catalog.GetName())
}

// waitForCatalogReady polls the catalog source's registry pods until one is Running and
// ready. Failure here is not fatal: resolution may still converge, and the health monitor
// remediates unhealthy catalogs on its own.
func (p *Pipeline) waitForCatalogReady(ctx context.Context) bool {
	deadline := p.clock.Now().Add(catalogReadyTimeout)
	logger := p.logger.WithField("catalogsource", p.config.CatalogSource)

	for {
		pods, err := p.reader.ListCatalogPods(ctx, p.config.MarketplaceNamespace, p.config.CatalogSource)
		if err != nil {
			logger.WithError(err).Debug("registry pods not listable yet")
		}
		for i := range pods {
			if pods[i].Status.Phase == corev1.PodRunning && registryPodReady(&pods[i]) {
				logger.Info("catalogsource registry pod is ready")
				return true
			}
		}

		if !p.clock.Now().Before(deadline) {
			logger.Warn("catalogsource registry pod not ready before deadline, continuing anyway")
			return false
		}
		p.clock.Sleep(2 * time.Second)
	}
}

func registryPodReady(pod *corev1.Pod) bool {
	for _, cond := range pod.Status.Conditions {
		if cond.Type == corev1.PodReady {
			return cond.Status == corev1.ConditionTrue
		}
	}
	return false
}

// createSubscription creates the subscription; an existing subscription with the same name
// is reused.
func (p *Pipeline) createSubscription(ctx context.Context) error {
	sub := p.config.SubscriptionManifest()
	p.logger.WithFields(logrus.Fields{
		"subscription": sub.GetName(),
		"package":      p.config.Package,
		"channel":      p.config.Channel,
	}).Info("creating subscription")

	_, err := p.crClient.OperatorsV1alpha1().Subscriptions(p.config.Namespace).Create(ctx, sub, metav1.CreateOptions{})
	if k8serrors.IsAlreadyExists(err) {
		p.logger.WithField("subscription", sub.GetName()).Info("reusing existing subscription")
		return nil
	}
	return errors.Wrapf(err, "error creating subscription %s", sub.GetName())
}
