// Package discovery provisions the discovery sidecar of a HeadlessService:
// a ConfigMap holding the strategy parameters and a long-running pod that
// polls according to the chosen strategy.
package discovery

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/multierr"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/resource"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/apimachinery/pkg/util/validation"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/lexfrei/headless-service-controller/api/v1alpha1"
	"github.com/lexfrei/headless-service-controller/internal/kubeutil"
	"github.com/lexfrei/headless-service-controller/internal/logging"
	"github.com/lexfrei/headless-service-controller/internal/metrics"
	"github.com/lexfrei/headless-service-controller/internal/resources"
)

const (
	// DefaultImage runs the polling scripts.
	DefaultImage = "alpine:3.18"

	// ConfigMountPath is where the strategy ConfigMap is mounted.
	ConfigMountPath = "/etc/discovery"

	containerName = "service-discovery"
	volumeName    = "discovery-config"
	component     = "discovery"
)

// Option configures a Manager.
type Option func(*Manager)

// WithImage overrides DefaultImage.
func WithImage(image string) Option {
	return func(m *Manager) {
		if image != "" {
			m.image = image
		}
	}
}

// Manager configures and tears down discovery sidecars.
// It holds no per-service state and is safe for concurrent use.
type Manager struct {
	client  client.Client
	metrics metrics.Collector
	image   string
}

// NewManager creates a new discovery Manager.
func NewManager(c client.Client, metricsCollector metrics.Collector, opts ...Option) *Manager {
	m := &Manager{
		client:  c,
		metrics: metricsCollector,
		image:   DefaultImage,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Configure runs the Configure*Discovery operation matching hs.Spec.ServiceDiscovery.Type.
func (m *Manager) Configure(ctx context.Context, hs *v1alpha1.HeadlessService) error {
	if err := m.ValidateServiceDiscoveryConfiguration(hs); err != nil {
		m.metrics.RecordValidationError(ctx, component)

		return err
	}

	switch hs.Spec.ServiceDiscovery.Type {
	case v1alpha1.DiscoveryTypeDNS:
		return m.ConfigureDNSDiscovery(ctx, hs)
	case v1alpha1.DiscoveryTypeAPI:
		return m.ConfigureAPIDiscovery(ctx, hs)
	default:
		return m.ConfigureCustomDiscovery(ctx, hs)
	}
}

// ConfigureDNSDiscovery writes {service}-dns-discovery and starts the
// {service}-discovery-dns pod, which polls the service FQDN with nslookup.
func (m *Manager) ConfigureDNSDiscovery(ctx context.Context, hs *v1alpha1.HeadlessService) error {
	return m.configure(ctx, hs, v1alpha1.DiscoveryTypeDNS)
}

// ConfigureAPIDiscovery writes {service}-api-discovery and starts the
// {service}-discovery-api pod, which polls the Endpoints API.
func (m *Manager) ConfigureAPIDiscovery(ctx context.Context, hs *v1alpha1.HeadlessService) error {
	return m.configure(ctx, hs, v1alpha1.DiscoveryTypeAPI)
}

// ConfigureCustomDiscovery writes {service}-custom-discovery and starts the
// {service}-discovery-custom pod, which polls the custom endpoint.
func (m *Manager) ConfigureCustomDiscovery(ctx context.Context, hs *v1alpha1.HeadlessService) error {
	return m.configure(ctx, hs, v1alpha1.DiscoveryTypeCustom)
}

func (m *Manager) configure(
	ctx context.Context,
	hs *v1alpha1.HeadlessService,
	discoveryType v1alpha1.DiscoveryType,
) error {
	if err := m.validateFor(hs, discoveryType); err != nil {
		m.metrics.RecordValidationError(ctx, component)

		return err
	}

	strategy := NewStrategy(hs, discoveryType)

	configMap := &corev1.ConfigMap{
		ObjectMeta: resources.ObjectMeta(
			resources.DiscoveryConfigMapName(hs.Name, discoveryType), hs, resources.DiscoveryLabels(hs.Name)),
		Data: strategy.ConfigData(),
	}

	err := kubeutil.CreateOrUpdateConfigMap(ctx, m.client, m.metrics, configMap)
	if err != nil {
		m.metrics.RecordDiscoveryConfigured(ctx, string(discoveryType), metrics.StatusError)

		return errors.Wrapf(err, "failed to write %s discovery configmap", discoveryType)
	}

	err = m.createServiceDiscoveryPod(ctx, hs, discoveryType)
	if err != nil {
		status := metrics.StatusError
		if apierrors.IsAlreadyExists(err) {
			status = metrics.StatusExists
		}

		m.metrics.RecordDiscoveryConfigured(ctx, string(discoveryType), status)

		return errors.Wrap(err, "failed to create service discovery pod")
	}

	m.metrics.RecordDiscoveryConfigured(ctx, string(discoveryType), metrics.StatusSuccess)
	logging.FromContext(ctx).Info("configured service discovery",
		"component", component,
		"service", hs.Name,
		"namespace", hs.Namespace,
		"type", discoveryType,
	)

	return nil
}

// validateFor validates hs.Spec and, for the custom variant, requires an
// endpoint even when hs.Spec names another type.
func (m *Manager) validateFor(hs *v1alpha1.HeadlessService, discoveryType v1alpha1.DiscoveryType) error {
	if err := m.ValidateServiceDiscoveryConfiguration(hs); err != nil {
		return err
	}

	if discoveryType == v1alpha1.DiscoveryTypeCustom && hs.Spec.ServiceDiscovery.CustomEndpoint == "" {
		return resources.NewValidationError("custom endpoint is required for custom service discovery")
	}

	return nil
}

// createServiceDiscoveryPod creates {service}-discovery-{type}. An existing
// pod is returned as an AlreadyExists error; callers decide whether that
// means the sidecar is already running.
func (m *Manager) createServiceDiscoveryPod(
	ctx context.Context,
	hs *v1alpha1.HeadlessService,
	discoveryType v1alpha1.DiscoveryType,
) error {
	pod := &corev1.Pod{
		ObjectMeta: resources.ObjectMeta(
			resources.DiscoveryPodName(hs.Name, discoveryType), hs,
			resources.DiscoveryPodLabels(hs.Name, discoveryType)),
		Spec: corev1.PodSpec{
			Containers: []corev1.Container{
				{
					Name:    containerName,
					Image:   m.image,
					Command: []string{"/bin/sh"},
					Args:    []string{"-c", m.getDiscoveryScript(discoveryType, hs)},
					Env: []corev1.EnvVar{
						{
							Name: "SERVICE_NAME",
							ValueFrom: &corev1.EnvVarSource{
								FieldRef: &corev1.ObjectFieldSelector{
									FieldPath: "metadata.labels['" + resources.LabelInstance + "']",
								},
							},
						},
						{
							Name: "NAMESPACE",
							ValueFrom: &corev1.EnvVarSource{
								FieldRef: &corev1.ObjectFieldSelector{
									FieldPath: "metadata.namespace",
								},
							},
						},
					},
					VolumeMounts: []corev1.VolumeMount{
						{
							Name:      volumeName,
							MountPath: ConfigMountPath,
							ReadOnly:  true,
						},
					},
					Resources: corev1.ResourceRequirements{
						Requests: corev1.ResourceList{
							corev1.ResourceCPU:    resource.MustParse("10m"),
							corev1.ResourceMemory: resource.MustParse("32Mi"),
						},
						Limits: corev1.ResourceList{
							corev1.ResourceCPU:    resource.MustParse("100m"),
							corev1.ResourceMemory: resource.MustParse("128Mi"),
						},
					},
				},
			},
			Volumes: []corev1.Volume{
				{
					Name: volumeName,
					VolumeSource: corev1.VolumeSource{
						ConfigMap: &corev1.ConfigMapVolumeSource{
							LocalObjectReference: corev1.LocalObjectReference{
								Name: resources.DiscoveryConfigMapName(hs.Name, discoveryType),
							},
						},
					},
				},
			},
			RestartPolicy: corev1.RestartPolicyAlways,
		},
	}

	start := time.Now()
	err := m.client.Create(ctx, pod)
	metrics.ObserveAPICall(ctx, m.metrics, "create", "pods", start, err)

	if err != nil {
		return errors.Wrapf(err, "failed to create pod %s", pod.Name)
	}

	return nil
}

// getDiscoveryScript returns the polling script of the discoveryType variant.
func (m *Manager) getDiscoveryScript(discoveryType v1alpha1.DiscoveryType, hs *v1alpha1.HeadlessService) string {
	return NewStrategy(hs, discoveryType).RenderPollingScript()
}

// Cleanup deletes every discovery pod and ConfigMap of hs. Delete failures
// are logged and counted without stopping the remaining deletions; only
// failures to list are returned.
func (m *Manager) Cleanup(ctx context.Context, hs *v1alpha1.HeadlessService) error {
	logger := logging.FromContext(ctx).With("component", component,
		"headlessservice", types.NamespacedName{Namespace: hs.Namespace, Name: hs.Name})

	opts := []client.ListOption{
		client.InNamespace(hs.Namespace),
		client.MatchingLabels(resources.DiscoveryLabels(hs.Name)),
	}

	var errs error

	pods := &corev1.PodList{}

	start := time.Now()
	err := m.client.List(ctx, pods, opts...)
	metrics.ObserveAPICall(ctx, m.metrics, "list", "pods", start, err)

	if err != nil {
		errs = multierr.Append(errs, errors.Wrap(err, "failed to list discovery pods"))
	} else {
		for i := range pods.Items {
			m.deleteBestEffort(ctx, logger, &pods.Items[i], "pods")
		}
	}

	configMaps := &corev1.ConfigMapList{}

	start = time.Now()
	err = m.client.List(ctx, configMaps, opts...)
	metrics.ObserveAPICall(ctx, m.metrics, "list", "configmaps", start, err)

	if err != nil {
		errs = multierr.Append(errs, errors.Wrap(err, "failed to list discovery configmaps"))
	} else {
		for i := range configMaps.Items {
			m.deleteBestEffort(ctx, logger, &configMaps.Items[i], "configmaps")
		}
	}

	if errs == nil {
		logger.Info("cleaned up service discovery resources",
			"pods", len(pods.Items), "configmaps", len(configMaps.Items))
	}

	return errs
}

func (m *Manager) deleteBestEffort(
	ctx context.Context,
	logger *slog.Logger,
	obj client.Object,
	resourceName string,
) {
	start := time.Now()
	err := m.client.Delete(ctx, obj)
	metrics.ObserveAPICallIgnoreNotFound(ctx, m.metrics, "delete", resourceName, start, err)

	if err == nil || apierrors.IsNotFound(err) {
		return
	}

	m.metrics.RecordCleanupFailure(ctx, resourceName)
	logger.Error("failed to delete discovery object",
		"resource", resourceName, "name", obj.GetName(), "error", err)
}

// ValidateServiceDiscoveryConfiguration rejects a missing block, an empty or
// unsupported type, a custom type without endpoint, a negative refresh
// interval and custom config keys that are not valid ConfigMap keys.
func (m *Manager) ValidateServiceDiscoveryConfiguration(hs *v1alpha1.HeadlessService) error {
	sd := hs.Spec.ServiceDiscovery

	switch {
	case sd == nil:
		return resources.NewValidationError("service discovery configuration is required")
	case sd.Type == "":
		return resources.NewValidationError("service discovery type is required")
	case !sd.Type.IsValid():
		return resources.NewValidationErrorf("invalid service discovery type: %s", sd.Type)
	case sd.Type == v1alpha1.DiscoveryTypeCustom && sd.CustomEndpoint == "":
		return resources.NewValidationError("custom endpoint is required for custom service discovery")
	case sd.RefreshInterval < 0:
		return resources.NewValidationErrorf("refresh interval must be non-negative, got %d", sd.RefreshInterval)
	}

	for key := range sd.Config {
		if msgs := validation.IsConfigMapKey(CustomKeyPrefix + key); len(msgs) > 0 {
			return resources.NewValidationErrorf("invalid custom config key %q: %s", key, strings.Join(msgs, "; "))
		}
	}

	return nil
}

// GetSelectorMatchedPodIPs returns the IPs of pods matched by the service
// selector. It reflects the selector, not what the sidecar observed.
func (m *Manager) GetSelectorMatchedPodIPs(ctx context.Context, hs *v1alpha1.HeadlessService) ([]string, error) {
	pods := &corev1.PodList{}

	start := time.Now()
	err := m.client.List(ctx, pods,
		client.InNamespace(hs.Namespace),
		client.MatchingLabels(hs.Spec.Selector),
	)
	metrics.ObserveAPICall(ctx, m.metrics, "list", "pods", start, err)

	if err != nil {
		return nil, errors.Wrap(err, "failed to list selected pods")
	}

	ips := []string{}

	for i := range pods.Items {
		if ip := pods.Items[i].Status.PodIP; ip != "" {
			ips = append(ips, ip)
		}
	}

	return ips, nil
}

// GetDiscoveredEndpoints returns the IPs of selector-matched pods.
//
// Deprecated: use GetSelectorMatchedPodIPs.
func (m *Manager) GetDiscoveredEndpoints(ctx context.Context, hs *v1alpha1.HeadlessService) ([]string, error) {
	return m.GetSelectorMatchedPodIPs(ctx, hs)
}
