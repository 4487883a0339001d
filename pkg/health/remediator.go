package health

import (
	"context"
	"regexp"
	"time"

	"github.com/sirupsen/logrus"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/ajaggapa/deploy-brew-operator/pkg/metrics"
)

const defaultDeleteTimeout = 30 * time.Second

// CatalogRef identifies a catalog source by namespace and name.
type CatalogRef struct {
	Namespace string
	Name      string
}

// CatalogRefExtractor scrapes catalog source references out of a resolver failure message.
// Extractors fail open: a message in an unrecognized format yields no refs, never an error.
type CatalogRefExtractor func(message string) []CatalogRef

// NewMarketplaceRefExtractor returns an extractor that matches `<namespace>/<name>` tokens
// for the given marketplace namespace. Results are deduplicated in order of first appearance.
func NewMarketplaceRefExtractor(namespace string) CatalogRefExtractor {
	pattern := regexp.MustCompile(regexp.QuoteMeta(namespace) + `/([a-zA-Z0-9](?:[a-zA-Z0-9.-]*[a-zA-Z0-9])?)`)

	return func(message string) []CatalogRef {
		var refs []CatalogRef
		seen := sets.New[string]()
		for _, match := range pattern.FindAllStringSubmatch(message, -1) {
			name := match[1]
			if seen.Has(name) {
				continue
			}
			seen.Insert(name)
			refs = append(refs, CatalogRef{Namespace: namespace, Name: name})
		}
		return refs
	}
}

// Remediator removes catalog sources that are unhealthy and blocking resolution. Catalog
// sources share a marketplace namespace, so one broken catalog can block resolution of an
// unrelated subscription. Remediation is conservative: the subscription's own catalog is
// never touched, and only catalogs positively classified as unhealthy are deleted.
type Remediator struct {
	logger        *logrus.Entry
	reader        ClusterReader
	extract       CatalogRefExtractor
	selfCatalog   string
	deleteTimeout time.Duration
}

// NewRemediator returns a Remediator for the given marketplace namespace. selfCatalog names
// the subscription's own catalog source, which is excluded from remediation.
func NewRemediator(logger *logrus.Entry, reader ClusterReader, marketplaceNamespace, selfCatalog string) *Remediator {
	return &Remediator{
		logger:        logger,
		reader:        reader,
		extract:       NewMarketplaceRefExtractor(marketplaceNamespace),
		selfCatalog:   selfCatalog,
		deleteTimeout: defaultDeleteTimeout,
	}
}

// WithExtractor swaps the failure-message extractor, for when upstream message formatting
// changes shape.
func (r *Remediator) WithExtractor(extract CatalogRefExtractor) *Remediator {
	r.extract = extract
	return r
}

// Remediate scrapes catalog references from a resolution failure message and deletes every
// referenced catalog source, other than the subscription's own and those in exclude, whose
// backing pods show it cannot serve. It returns the names of the catalogs it deleted.
// Deletion failures are logged and skipped; the next poll re-observes and may retry.
func (r *Remediator) Remediate(ctx context.Context, message string, exclude sets.Set[string]) []string {
	candidates := r.candidates(message, exclude)
	if len(candidates) == 0 {
		// Fail open on message format drift, but leave a trace: silence here is a known
		// monitoring gap.
		r.logger.WithField("message", message).Debug("no actionable catalog references in resolution failure")
		return nil
	}

	var remediated []string
	for _, ref := range candidates {
		logger := r.logger.WithFields(logrus.Fields{
			"catalogsource": ref.Name,
			"namespace":     ref.Namespace,
		})

		unhealthy, err := r.unhealthy(ctx, ref)
		if err != nil {
			logger.WithError(err).Warn("could not determine catalog health, skipping")
			continue
		}
		if !unhealthy {
			logger.Debug("catalog is healthy, leaving it alone")
			continue
		}

		if err := r.reader.DeleteCatalogSource(ctx, ref.Namespace, ref.Name, r.deleteTimeout); err != nil {
			logger.WithError(err).Warn("failed to delete unhealthy catalogsource")
			metrics.EmitCatalogRemediation(metrics.Failed)
			continue
		}

		logger.Info("deleted unhealthy catalogsource blocking resolution")
		metrics.EmitCatalogRemediation(metrics.Succeeded)
		remediated = append(remediated, ref.Name)
	}

	return remediated
}

// candidates extracts catalog refs from the message, dropping the subscription's own catalog
// and any explicitly excluded names.
func (r *Remediator) candidates(message string, exclude sets.Set[string]) []CatalogRef {
	var out []CatalogRef
	for _, ref := range r.extract(message) {
		if ref.Name == r.selfCatalog || exclude.Has(ref.Name) {
			continue
		}
		out = append(out, ref)
	}
	return out
}

// unhealthy classifies a catalog source by the phases of its backing pods: no pods at all,
// or any pod that is not both Running and ready, marks it unhealthy.
func (r *Remediator) unhealthy(ctx context.Context, ref CatalogRef) (bool, error) {
	pods, err := r.reader.ListCatalogPods(ctx, ref.Namespace, ref.Name)
	if err != nil {
		return false, err
	}

	if len(pods) == 0 {
		return true, nil
	}
	for i := range pods {
		pod := &pods[i]
		if pod.Status.Phase != corev1.PodRunning || !podReady(pod) {
			return true, nil
		}
	}
	return false, nil
}

// podReady returns true if the given Pod has a ready status condition.
func podReady(pod *corev1.Pod) bool {
	for _, cond := range pod.Status.Conditions {
		if cond.Type == corev1.PodReady {
			return cond.Status == corev1.ConditionTrue
		}
	}
	return false
}
