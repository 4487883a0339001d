package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/operator-framework/operator-lifecycle-manager/pkg/api/client/clientset/versioned"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/ajaggapa/deploy-brew-operator/pkg/deploy"
	"github.com/ajaggapa/deploy-brew-operator/pkg/lib/signals"
	"github.com/ajaggapa/deploy-brew-operator/pkg/metrics"
	"github.com/ajaggapa/deploy-brew-operator/pkg/version"
)

var (
	kubeconfig  string
	debug       bool
	metricsAddr string
	showVersion bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	config := deploy.NewConfig()

	cmd := &cobra.Command{
		Use:          "deploy-brew-operator",
		Short:        "Install an operator through an OLM subscription and verify it converges",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if showVersion {
				fmt.Print(version.String())
				os.Exit(0)
			}
			if debug {
				logrus.SetLevel(logrus.DebugLevel)
			}
			metrics.RegisterDeploy()
			if metricsAddr != "" {
				go serveMetrics(metricsAddr)
			}
		},
	}

	cmd.PersistentFlags().StringVar(&kubeconfig, "kubeconfig", "", "path to the kubeconfig to use")
	cmd.PersistentFlags().BoolVar(&debug, "debug", false, "use debug log level")
	cmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "address to serve prometheus metrics on, empty to disable")
	cmd.PersistentFlags().BoolVar(&showVersion, "version", false, "displays the tool version")

	cmd.PersistentFlags().StringVar(&config.Package, "package", "", "operator package name to install")
	cmd.PersistentFlags().StringVar(&config.Namespace, "namespace", "", "namespace to install the operator into")
	cmd.PersistentFlags().StringVar(&config.MarketplaceNamespace, "marketplace-namespace", config.MarketplaceNamespace, "namespace holding catalog sources")
	cmd.PersistentFlags().StringVar(&config.CatalogSource, "catalog-source", "", "name of the catalog source serving the package")
	cmd.PersistentFlags().BoolVar(&config.StrictVerify, "strict-verify", false, "treat verification failures as fatal")
	cmd.PersistentFlags().DurationVar(&config.MonitorTimeout, "monitor-timeout", config.MonitorTimeout, "overall timeout for subscription health monitoring")
	cmd.PersistentFlags().DurationVar(&config.CSVTimeout, "csv-timeout", config.CSVTimeout, "timeout for the csv to reach the succeeded phase")

	cmd.AddCommand(newDeployCmd(config))
	cmd.AddCommand(newVerifyCmd(config))

	return cmd
}

func newDeployCmd(config *deploy.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Mirror images, create the catalog source and subscription, and verify the install",
		RunE: func(cmd *cobra.Command, args []string) error {
			config.Kubeconfig = kubeconfig

			if config.DryRun {
				pipeline := deploy.NewPipeline(newLogger(), config, nil, nil)
				return pipeline.Run(signals.Context())
			}

			kubeClient, crClient, err := newClients()
			if err != nil {
				return err
			}
			pipeline := deploy.NewPipeline(newLogger(), config, kubeClient, crClient)
			return pipeline.Run(signals.Context())
		},
	}

	cmd.Flags().StringVar(&config.Channel, "channel", "", "subscription channel, empty for the catalog default")
	cmd.Flags().StringVar(&config.StartingCSV, "starting-csv", "", "csv to start the install from")
	cmd.Flags().StringVar(&config.IndexImage, "index-image", "", "pre-built index image backing the catalog source")
	cmd.Flags().StringVar(&config.MirrorMapping, "mirror-mapping", "", "path to a prepared oc image mirror mapping file")
	cmd.Flags().BoolVar(&config.DryRun, "dry-run", false, "emit install manifests instead of applying them")

	return cmd
}

func newVerifyCmd(config *deploy.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Verify an existing subscription converges to a running operator",
		RunE: func(cmd *cobra.Command, args []string) error {
			config.Kubeconfig = kubeconfig
			if config.Package == "" || config.Namespace == "" || config.CatalogSource == "" {
				return fmt.Errorf("--package, --namespace, and --catalog-source are required")
			}

			kubeClient, crClient, err := newClients()
			if err != nil {
				return err
			}
			pipeline := deploy.NewPipeline(newLogger(), config, kubeClient, crClient)
			return pipeline.Verify(signals.Context(), sets.New[string]())
		},
	}
}

func newLogger() *logrus.Entry {
	return logrus.NewEntry(logrus.StandardLogger())
}

func newClients() (kubernetes.Interface, versioned.Interface, error) {
	restConfig, err := clientcmd.BuildConfigFromFlags("", kubeconfig)
	if err != nil {
		return nil, nil, err
	}

	kubeClient, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, nil, err
	}
	crClient, err := versioned.NewForConfig(restConfig)
	if err != nil {
		return nil, nil, err
	}
	return kubeClient, crClient, nil
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		logrus.WithError(err).Warn("metrics server stopped")
	}
}
