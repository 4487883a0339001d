package deploy

import (
	"time"

	"github.com/pkg/errors"

	"github.com/ajaggapa/deploy-brew-operator/pkg/health"
)

const (
	// DefaultMarketplaceNamespace is where catalog sources are published on OpenShift.
	DefaultMarketplaceNamespace = "openshift-marketplace"

	// DefaultCSVTimeout bounds the wait for the installed CSV to reach phase Succeeded.
	DefaultCSVTimeout = 5 * time.Minute
)

// Config carries everything the deploy pipeline needs to install the operator and verify
// that its subscription converges. The index image is an input: building and pushing it is
// a precondition satisfied before this tool runs.
type Config struct {
	// Package is the operator package name to subscribe to.
	Package string

	// Channel is the subscription channel. Optional; the catalog default applies when empty.
	Channel string

	// StartingCSV pins the first CSV to install. Optional.
	StartingCSV string

	// Namespace is where the operator group and subscription are created.
	Namespace string

	// MarketplaceNamespace is where catalog sources live.
	MarketplaceNamespace string

	// CatalogSource names the catalog source serving the package. It is created from
	// IndexImage when absent, and is excluded from catalog remediation.
	CatalogSource string

	// IndexImage is the pre-built index image backing the catalog source.
	IndexImage string

	// MirrorMapping is an optional path to a prepared `oc image mirror` mapping file.
	// Computing the mapping is a precondition, not this tool's job.
	MirrorMapping string

	// DryRun emits the install manifests as YAML instead of applying anything.
	DryRun bool

	// StrictVerify escalates verification failures from warnings to a fatal result.
	StrictVerify bool

	// MonitorTimeout bounds the subscription health monitoring session.
	MonitorTimeout time.Duration

	// CSVTimeout bounds the wait for the CSV to reach its terminal success phase.
	CSVTimeout time.Duration

	// Kubeconfig is the path to the kubeconfig to use. Empty means in-cluster or the
	// ambient default.
	Kubeconfig string
}

// NewConfig returns a Config with defaults filled in.
func NewConfig() *Config {
	return &Config{
		MarketplaceNamespace: DefaultMarketplaceNamespace,
		MonitorTimeout:       health.DefaultMonitorTimeout,
		CSVTimeout:           DefaultCSVTimeout,
	}
}

// Validate returns an error describing the first missing required field.
func (c *Config) Validate() error {
	switch {
	case c.Package == "":
		return errors.New("operator package name is required")
	case c.Namespace == "":
		return errors.New("target namespace is required")
	case c.CatalogSource == "":
		return errors.New("catalog source name is required")
	case c.IndexImage == "":
		return errors.New("index image is required")
	case c.MarketplaceNamespace == "":
		return errors.New("marketplace namespace is required")
	case c.MonitorTimeout <= 0:
		return errors.New("monitor timeout must be positive")
	case c.CSVTimeout <= 0:
		return errors.New("csv timeout must be positive")
	}
	return nil
}

// SubscriptionName is the name the pipeline gives the subscription it creates.
func (c *Config) SubscriptionName() string {
	return c.Package
}
