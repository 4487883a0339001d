package deploy

import (
	"bytes"

	"github.com/ghodss/yaml"
	operatorsv1 "github.com/operator-framework/api/pkg/operators/v1"
	"github.com/operator-framework/api/pkg/operators/v1alpha1"
	"github.com/pkg/errors"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// TargetNamespace returns the namespace object the operator is installed into.
func (c *Config) TargetNamespace() *corev1.Namespace {
	return &corev1.Namespace{
		TypeMeta: metav1.TypeMeta{
			Kind:       "Namespace",
			APIVersion: corev1.SchemeGroupVersion.String(),
		},
		ObjectMeta: metav1.ObjectMeta{
			Name: c.Namespace,
		},
	}
}

// CatalogSourceManifest returns the grpc catalog source serving the index image.
func (c *Config) CatalogSourceManifest() *v1alpha1.CatalogSource {
	return &v1alpha1.CatalogSource{
		TypeMeta: metav1.TypeMeta{
			Kind:       v1alpha1.CatalogSourceKind,
			APIVersion: v1alpha1.SchemeGroupVersion.String(),
		},
		ObjectMeta: metav1.ObjectMeta{
			Name:      c.CatalogSource,
			Namespace: c.MarketplaceNamespace,
		},
		Spec: v1alpha1.CatalogSourceSpec{
			SourceType:  v1alpha1.SourceTypeGrpc,
			Image:       c.IndexImage,
			DisplayName: c.CatalogSource,
			Publisher:   "deploy-brew-operator",
		},
	}
}

// OperatorGroupManifest returns an operator group targeting the install namespace.
func (c *Config) OperatorGroupManifest() *operatorsv1.OperatorGroup {
	return &operatorsv1.OperatorGroup{
		TypeMeta: metav1.TypeMeta{
			Kind:       operatorsv1.OperatorGroupKind,
			APIVersion: operatorsv1.GroupVersion.String(),
		},
		ObjectMeta: metav1.ObjectMeta{
			Name:      c.Package,
			Namespace: c.Namespace,
		},
		Spec: operatorsv1.OperatorGroupSpec{
			TargetNamespaces: []string{c.Namespace},
		},
	}
}

// SubscriptionManifest returns the subscription installing the operator package.
func (c *Config) SubscriptionManifest() *v1alpha1.Subscription {
	return &v1alpha1.Subscription{
		TypeMeta: metav1.TypeMeta{
			Kind:       v1alpha1.SubscriptionKind,
			APIVersion: v1alpha1.SchemeGroupVersion.String(),
		},
		ObjectMeta: metav1.ObjectMeta{
			Name:      c.SubscriptionName(),
			Namespace: c.Namespace,
		},
		Spec: &v1alpha1.SubscriptionSpec{
			CatalogSource:          c.CatalogSource,
			CatalogSourceNamespace: c.MarketplaceNamespace,
			Package:                c.Package,
			Channel:                c.Channel,
			StartingCSV:            c.StartingCSV,
			InstallPlanApproval:    v1alpha1.ApprovalAutomatic,
		},
	}
}

// RenderManifests emits the install manifests as a multi-document YAML stream, in apply
// order: namespace, catalog source, operator group, subscription.
func (c *Config) RenderManifests() ([]byte, error) {
	manifests := []interface{}{
		c.TargetNamespace(),
		c.CatalogSourceManifest(),
		c.OperatorGroupManifest(),
		c.SubscriptionManifest(),
	}

	var buf bytes.Buffer
	for i, manifest := range manifests {
		if i > 0 {
			buf.WriteString("---\n")
		}
		out, err := yaml.Marshal(manifest)
		if err != nil {
			return nil, errors.Wrap(err, "error marshaling manifest")
		}
		buf.Write(out)
	}
	return buf.Bytes(), nil
}
