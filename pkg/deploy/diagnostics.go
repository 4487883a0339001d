package deploy

import (
	"context"

	"github.com/operator-framework/api/pkg/operators/v1alpha1"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ajaggapa/deploy-brew-operator/pkg/health"
)

// dumpDiagnostics logs the subscription status, the marketplace's catalog sources, and the
// namespace's CSVs so a failed install can be debugged by hand. Partial gathers are logged
// as-is; diagnostics never fail the pipeline.
func (p *Pipeline) dumpDiagnostics(ctx context.Context, result health.Result) {
	var (
		status   v1alpha1.SubscriptionStatus
		catalogs []v1alpha1.CatalogSource
		csvs     []string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		status, err = p.reader.GetSubscriptionStatus(gctx, p.config.Namespace, p.config.SubscriptionName())
		return err
	})
	g.Go(func() error {
		var err error
		catalogs, err = p.reader.ListCatalogSources(gctx, p.config.MarketplaceNamespace)
		return err
	})
	g.Go(func() error {
		var err error
		csvs, err = p.reader.ListCSVNames(gctx, p.config.Namespace)
		return err
	})
	if err := g.Wait(); err != nil {
		p.logger.WithError(err).Warn("could not gather full diagnostics")
		status = result.LastStatus
	}

	p.logger.WithFields(logrus.Fields{
		"currentCSV":   status.CurrentCSV,
		"installedCSV": status.InstalledCSV,
		"state":        status.State,
		"csvs":         csvs,
		"remediated":   result.RemediatedCatalogs,
	}).Warn("install diagnostics")

	for _, cond := range status.Conditions {
		p.logger.WithFields(logrus.Fields{
			"type":    cond.Type,
			"status":  cond.Status,
			"reason":  cond.Reason,
			"message": cond.Message,
		}).Warn("subscription condition")
	}

	for i := range catalogs {
		catalog := &catalogs[i]
		p.logger.WithFields(logrus.Fields{
			"catalogsource": catalog.GetName(),
			"sourceType":    catalog.Spec.SourceType,
			"image":         catalog.Spec.Image,
		}).Warn("catalogsource present")
	}
}
