// Package resources holds the object naming, labelling and ownership rules
// shared by the DNS verification and service discovery managers.
package resources

import (
	"fmt"
	"maps"

	"github.com/cockroachdb/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/utils/ptr"

	"github.com/lexfrei/headless-service-controller/api/v1alpha1"
)

// Well-known label keys.
const (
	LabelName          = "app.kubernetes.io/name"
	LabelInstance      = "app.kubernetes.io/instance"
	LabelDiscoveryType = "discovery-type"
)

// Values of the app.kubernetes.io/name label for produced objects.
const (
	AppService   = "headless-service"
	AppDiscovery = "headless-service-discovery"
	AppDNS       = "headless-service-dns"
	AppDNSTest   = "dns-test"
)

// ErrValidation marks errors caused by an invalid HeadlessService spec.
// Operations returning it have made no API calls.
var ErrValidation = errors.New("invalid headless service configuration")

// NewValidationError returns a validation error with the given message.
//
//nolint:wrapcheck // errors.Mark preserves the new error
func NewValidationError(msg string) error {
	return errors.Mark(errors.New(msg), ErrValidation)
}

// NewValidationErrorf returns a formatted validation error.
//
//nolint:wrapcheck // errors.Mark preserves the new error
func NewValidationErrorf(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrValidation)
}

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// ServiceFQDN returns <name>.<namespace>.svc.<clusterDomain>.
func ServiceFQDN(name, namespace, clusterDomain string) string {
	return fmt.Sprintf("%s.%s.svc.%s", name, namespace, clusterDomain)
}

// PodFQDN returns <pod>.<name>.<namespace>.svc.<clusterDomain>.
func PodFQDN(pod, name, namespace, clusterDomain string) string {
	return pod + "." + ServiceFQDN(name, namespace, clusterDomain)
}

// DNSConfigMapName is the name of the DNS parameters ConfigMap.
func DNSConfigMapName(service string) string {
	return service + "-dns-config"
}

// DNSTestPodName is the name of the DNS test pod.
func DNSTestPodName(service string) string {
	return service + "-dns-test"
}

// DiscoveryConfigMapName is the name of the ConfigMap for a discovery type.
func DiscoveryConfigMapName(service string, discoveryType v1alpha1.DiscoveryType) string {
	return fmt.Sprintf("%s-%s-discovery", service, discoveryType)
}

// DiscoveryPodName is the name of the discovery sidecar pod for a discovery type.
func DiscoveryPodName(service string, discoveryType v1alpha1.DiscoveryType) string {
	return fmt.Sprintf("%s-discovery-%s", service, discoveryType)
}

// DiscoveryLabels are carried by every discovery ConfigMap and Pod.
// Cleanup selects on exactly this pair.
func DiscoveryLabels(service string) map[string]string {
	return map[string]string{
		LabelName:     AppDiscovery,
		LabelInstance: service,
	}
}

// DiscoveryPodLabels extends DiscoveryLabels with the discovery type.
func DiscoveryPodLabels(service string, discoveryType v1alpha1.DiscoveryType) map[string]string {
	labels := DiscoveryLabels(service)
	labels[LabelDiscoveryType] = string(discoveryType)

	return labels
}

// ServiceLabels returns the labels of the backing Service: the user's labels
// on hs plus the name and instance labels, which always win.
func ServiceLabels(hs *v1alpha1.HeadlessService) map[string]string {
	labels := make(map[string]string, len(hs.Labels)+2)
	maps.Copy(labels, hs.Labels)
	labels[LabelName] = AppService
	labels[LabelInstance] = hs.Name

	return labels
}

// DNSConfigLabels are carried by the DNS parameters ConfigMap.
func DNSConfigLabels(service string) map[string]string {
	return map[string]string{
		LabelName:     AppDNS,
		LabelInstance: service,
	}
}

// DNSTestLabels are carried by the DNS test pod.
func DNSTestLabels(service string) map[string]string {
	return map[string]string{
		LabelName:     AppDNSTest,
		LabelInstance: service,
	}
}

// OwnerReference builds a controller reference to hs.
// The API version comes from the registered group version so objects read
// back without TypeMeta still produce a valid reference.
func OwnerReference(hs *v1alpha1.HeadlessService) metav1.OwnerReference {
	return metav1.OwnerReference{
		APIVersion:         v1alpha1.GroupVersion.String(),
		Kind:               v1alpha1.Kind,
		Name:               hs.Name,
		UID:                hs.UID,
		Controller:         ptr.To(true),
		BlockOwnerDeletion: ptr.To(true),
	}
}

// ObjectMeta returns metadata for an object owned by hs in its namespace.
func ObjectMeta(name string, hs *v1alpha1.HeadlessService, labels map[string]string) metav1.ObjectMeta {
	return metav1.ObjectMeta{
		Name:            name,
		Namespace:       hs.Namespace,
		Labels:          labels,
		OwnerReferences: []metav1.OwnerReference{OwnerReference(hs)},
	}
}
