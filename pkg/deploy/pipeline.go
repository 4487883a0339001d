package deploy

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/operator-framework/operator-lifecycle-manager/pkg/api/client/clientset/versioned"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/client-go/kubernetes"
	utilclock "k8s.io/utils/clock"

	"github.com/ajaggapa/deploy-brew-operator/pkg/health"
)

// Pipeline executes the install steps in order: optional image mirror, namespace, operator
// group, catalog source, subscription, then verification of subscription health and CSV
// convergence. Primary-step failures abort; verification failures warn and continue unless
// StrictVerify is set.
type Pipeline struct {
	logger     *logrus.Entry
	config     *Config
	kubeClient kubernetes.Interface
	crClient   versioned.Interface
	reader     health.ClusterReader
	clock      utilclock.Clock
	mirrorer   *ImageMirrorer
	out        io.Writer
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithClock swaps the pipeline's clock, letting tests simulate elapsed time.
func WithClock(clock utilclock.Clock) PipelineOption {
	return func(p *Pipeline) {
		p.clock = clock
	}
}

// WithMirrorRunner swaps the command runner used for the image mirror step.
func WithMirrorRunner(runner CommandRunner) PipelineOption {
	return func(p *Pipeline) {
		p.mirrorer.runner = runner
	}
}

// WithOutput redirects dry-run manifest output.
func WithOutput(out io.Writer) PipelineOption {
	return func(p *Pipeline) {
		p.out = out
	}
}

// NewPipeline returns a Pipeline bound to the given clientsets.
func NewPipeline(logger *logrus.Entry, config *Config, kubeClient kubernetes.Interface, crClient versioned.Interface, options ...PipelineOption) *Pipeline {
	p := &Pipeline{
		logger:     logger,
		config:     config,
		kubeClient: kubeClient,
		crClient:   crClient,
		reader:     health.NewClusterReader(kubeClient, crClient),
		clock:      utilclock.RealClock{},
		mirrorer:   NewImageMirrorer(logger),
		out:        os.Stdout,
	}
	for _, option := range options {
		option(p)
	}
	return p
}

// Run executes the pipeline. On DryRun it only emits the install manifests.
func (p *Pipeline) Run(ctx context.Context) error {
	if err := p.config.Validate(); err != nil {
		return err
	}

	if p.config.DryRun {
		manifests, err := p.config.RenderManifests()
		if err != nil {
			return err
		}
		_, err = p.out.Write(manifests)
		return err
	}

	if p.config.MirrorMapping != "" {
		if err := p.mirrorer.Mirror(ctx, p.config.MirrorMapping); err != nil {
			return err
		}
	}

	if err := p.ensureNamespace(ctx); err != nil {
		return err
	}
	if err := p.ensureOperatorGroup(ctx); err != nil {
		return err
	}
	if err := p.ensureCatalogSource(ctx); err != nil {
		return err
	}
	p.waitForCatalogReady(ctx)

	// Snapshot CSV names before the subscription exists so a new CSV can be found by diff
	// if the subscription never reports one directly.
	baselineNames, err := p.reader.ListCSVNames(ctx, p.config.Namespace)
	if err != nil {
		p.logger.WithError(err).Warn("could not snapshot pre-subscription csvs")
	}
	baseline := sets.New(baselineNames...)

	if err := p.createSubscription(ctx); err != nil {
		return err
	}

	return p.Verify(ctx, baseline)
}

// Verify runs the subscription health monitor and waits for the installed CSV to reach its
// terminal success phase. It returns an error only when StrictVerify escalates a
// verification failure; otherwise failures are reported as warnings with full diagnostics.
func (p *Pipeline) Verify(ctx context.Context, baseline sets.Set[string]) error {
	remediator := health.NewRemediator(p.logger, p.reader, p.config.MarketplaceNamespace, p.config.CatalogSource)
	monitor := health.NewMonitor(p.logger, p.reader, remediator, health.WithClock(p.clock))

	result := monitor.MonitorSubscriptionHealth(ctx, p.config.Namespace, p.config.SubscriptionName(), p.config.MonitorTimeout)

	csvName := result.CSVName
	if !result.Resolved {
		p.dumpDiagnostics(ctx, result)

		// Last chance to pin down the CSV before degrading to the any-csv wait.
		resolver := health.NewCSVResolver(p.logger, p.reader, p.clock)
		csvName = resolver.Resolve(ctx, p.config.Namespace, p.config.SubscriptionName(), baseline)
		if csvName == "" {
			p.logger.Warn("subscription did not resolve, waiting for any csv to succeed")
		}
	}

	waiter := health.NewTerminalWaiter(p.logger, p.reader, p.clock)
	var succeeded bool
	if csvName != "" {
		succeeded = waiter.WaitForCSVSucceeded(ctx, p.config.Namespace, csvName, p.config.CSVTimeout)
	} else {
		csvName, succeeded = waiter.WaitForAnyCSVSucceeded(ctx, p.config.Namespace, p.config.CSVTimeout)
	}

	if !succeeded {
		p.dumpDiagnostics(ctx, result)
		msg := fmt.Sprintf("operator %s did not reach a successful install state", p.config.Package)
		if p.config.StrictVerify {
			return errors.New(msg)
		}
		p.logger.Warn(msg)
		return nil
	}

	p.logger.WithFields(logrus.Fields{
		"csv":      csvName,
		"attempts": result.Attempts,
	}).Info("operator installed successfully")
	return nil
}
