// Package dnsverify verifies that headless Services and their pods resolve
// through a chosen DNS server, and manages the DNS ConfigMap and test pod.
package dnsverify

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/lexfrei/headless-service-controller/api/v1alpha1"
	"github.com/lexfrei/headless-service-controller/internal/dnsprobe"
	"github.com/lexfrei/headless-service-controller/internal/kubeutil"
	"github.com/lexfrei/headless-service-controller/internal/logging"
	"github.com/lexfrei/headless-service-controller/internal/metrics"
	"github.com/lexfrei/headless-service-controller/internal/resources"
)

const (
	// DefaultDNSServer is queried when hs.Spec.DNS names no DNS server.
	DefaultDNSServer = "8.8.8.8"

	// DefaultTestPodImage is the image of the DNS test pod.
	DefaultTestPodImage = "busybox:1.35"

	// RunIDAnnotation correlates a DNS test pod with the reconcile that created it.
	RunIDAnnotation = "headless.k8s.lex.la/run-id"

	testContainerName = "dns-test"
	component         = "dnsverify"
)

// ConfigMap data keys.
const (
	KeyServiceDNS    = "service-dns"
	KeyClusterDomain = "cluster-domain"
	KeyDNSServer     = "dns-server"
	KeyTTL           = "ttl"
)

// Option configures a Manager.
type Option func(*Manager)

// WithDefaultDNSServer overrides DefaultDNSServer.
func WithDefaultDNSServer(server string) Option {
	return func(m *Manager) {
		if server != "" {
			m.defaultDNSServer = server
		}
	}
}

// WithTestPodImage overrides DefaultTestPodImage.
func WithTestPodImage(image string) Option {
	return func(m *Manager) {
		if image != "" {
			m.testPodImage = image
		}
	}
}

// Manager runs DNS verification for HeadlessService resources.
// It holds no per-service state and is safe for concurrent use.
type Manager struct {
	client   client.Client
	resolver dnsprobe.Resolver
	metrics  metrics.Collector

	defaultDNSServer string
	testPodImage     string
}

// NewManager creates a new DNS verification Manager.
func NewManager(
	c client.Client,
	resolver dnsprobe.Resolver,
	metricsCollector metrics.Collector,
	opts ...Option,
) *Manager {
	m := &Manager{
		client:           c,
		resolver:         resolver,
		metrics:          metricsCollector,
		defaultDNSServer: DefaultDNSServer,
		testPodImage:     DefaultTestPodImage,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// TestDNSResolution resolves the service FQDN and, when it resolves, each
// selected pod's FQDN. A failed lookup is reported in the result with a nil
// error. Only an invalid DNS block is returned as an error.
func (m *Manager) TestDNSResolution(
	ctx context.Context,
	hs *v1alpha1.HeadlessService,
) (*v1alpha1.DNSTestResult, error) {
	if err := m.ValidateDNSConfiguration(hs); err != nil {
		m.metrics.RecordValidationError(ctx, component)

		return nil, err
	}

	logger := logging.FromContext(ctx).With("component", component,
		"headlessservice", types.NamespacedName{Namespace: hs.Namespace, Name: hs.Name})

	serviceDNS := resources.ServiceFQDN(hs.Name, hs.Namespace, hs.Spec.DNS.ClusterDomain)
	dnsServer := hs.Spec.DNS.DNSServerOr(m.defaultDNSServer)

	resolvedIPs, err := m.resolveDNS(ctx, serviceDNS, dnsServer, metrics.TargetService)
	if err != nil {
		logger.Info("service DNS did not resolve", "fqdn", serviceDNS, "server", dnsServer, "error", err)

		return &v1alpha1.DNSTestResult{
			ServiceDNS:   serviceDNS,
			ResolvedIPs:  []string{},
			Success:      false,
			ErrorMessage: err.Error(),
		}, nil
	}

	podRecords, err := m.testIndividualPodDNS(ctx, hs, dnsServer, logger)
	if err != nil {
		logger.Error("failed to test individual pod DNS", "error", err)
	}

	m.metrics.RecordResolvedPods(ctx, hs.Namespace, hs.Name, len(podRecords))

	return &v1alpha1.DNSTestResult{
		ServiceDNS:       serviceDNS,
		ResolvedIPs:      resolvedIPs,
		IndividualPodDNS: podRecords,
		Success:          true,
	}, nil
}

func (m *Manager) resolveDNS(ctx context.Context, hostname, dnsServer, target string) ([]string, error) {
	start := time.Now()

	ips, err := m.resolver.Resolve(ctx, hostname, dnsServer)
	if err != nil {
		m.metrics.RecordDNSProbe(ctx, target, metrics.StatusError, time.Since(start))

		return nil, errors.Wrapf(err, "failed to resolve %s", hostname)
	}

	m.metrics.RecordDNSProbe(ctx, target, metrics.StatusSuccess, time.Since(start))

	return ips, nil
}

// testIndividualPodDNS resolves every selected pod independently. Pods that
// do not resolve are omitted.
func (m *Manager) testIndividualPodDNS(
	ctx context.Context,
	hs *v1alpha1.HeadlessService,
	dnsServer string,
	logger *slog.Logger,
) ([]v1alpha1.PodDNSRecord, error) {
	pods := &corev1.PodList{}

	start := time.Now()
	err := m.client.List(ctx, pods,
		client.InNamespace(hs.Namespace),
		client.MatchingLabels(hs.Spec.Selector),
	)
	metrics.ObserveAPICall(ctx, m.metrics, "list", "pods", start, err)

	if err != nil {
		return nil, errors.Wrap(err, "failed to list pods")
	}

	var records []v1alpha1.PodDNSRecord

	for i := range pods.Items {
		pod := &pods.Items[i]
		podDNS := resources.PodFQDN(pod.Name, hs.Name, hs.Namespace, hs.Spec.DNS.ClusterDomain)

		ips, err := m.resolveDNS(ctx, podDNS, dnsServer, metrics.TargetPod)
		if err != nil || len(ips) == 0 {
			logger.Debug("pod DNS did not resolve", "pod", pod.Name, "fqdn", podDNS, "error", err)

			continue
		}

		records = append(records, v1alpha1.PodDNSRecord{
			PodName: pod.Name,
			PodIP:   pod.Status.PodIP,
			DNSName: podDNS,
		})
	}

	return records, nil
}

// ConfigureDNSConfigMap writes the DNS parameters of hs to {service}-dns-config,
// overwriting the data of an existing ConfigMap.
func (m *Manager) ConfigureDNSConfigMap(ctx context.Context, hs *v1alpha1.HeadlessService) error {
	if err := m.ValidateDNSConfiguration(hs); err != nil {
		m.metrics.RecordValidationError(ctx, component)

		return err
	}

	dnsSpec := hs.Spec.DNS

	configMap := &corev1.ConfigMap{
		ObjectMeta: resources.ObjectMeta(resources.DNSConfigMapName(hs.Name), hs, resources.DNSConfigLabels(hs.Name)),
		Data: map[string]string{
			KeyServiceDNS:    resources.ServiceFQDN(hs.Name, hs.Namespace, dnsSpec.ClusterDomain),
			KeyClusterDomain: dnsSpec.ClusterDomain,
			KeyDNSServer:     dnsSpec.DNSServerOr(m.defaultDNSServer),
			KeyTTL:           strconv.FormatInt(int64(dnsSpec.TTL), 10),
		},
	}

	return kubeutil.CreateOrUpdateConfigMap(ctx, m.client, m.metrics, configMap)
}

// ValidateDNSConfiguration rejects a missing DNS block, an empty cluster
// domain and a negative TTL.
func (m *Manager) ValidateDNSConfiguration(hs *v1alpha1.HeadlessService) error {
	switch {
	case hs.Spec.DNS == nil:
		return resources.NewValidationError("DNS configuration is required")
	case hs.Spec.DNS.ClusterDomain == "":
		return resources.NewValidationError("cluster domain is required")
	case hs.Spec.DNS.TTL < 0:
		return resources.NewValidationErrorf("TTL must be non-negative, got %d", hs.Spec.DNS.TTL)
	}

	return nil
}

// GetServiceEndpoints returns every address of the Endpoints object named
// after the service. A service without subsets yields an empty list.
func (m *Manager) GetServiceEndpoints(ctx context.Context, hs *v1alpha1.HeadlessService) ([]string, error) {
	//nolint:staticcheck // Endpoints is what the discovery sidecars poll
	endpoints := &corev1.Endpoints{}

	start := time.Now()
	err := m.client.Get(ctx, types.NamespacedName{Namespace: hs.Namespace, Name: hs.Name}, endpoints)
	metrics.ObserveAPICall(ctx, m.metrics, "get", "endpoints", start, err)

	if err != nil {
		return nil, errors.Wrapf(err, "failed to get endpoints %s/%s", hs.Namespace, hs.Name)
	}

	ips := []string{}

	for _, subset := range endpoints.Subsets {
		for _, address := range subset.Addresses {
			ips = append(ips, address.IP)
		}
	}

	return ips, nil
}

// CreateDNSTestPod creates the {service}-dns-test pod. An existing pod is
// reported as an AlreadyExists error.
func (m *Manager) CreateDNSTestPod(ctx context.Context, hs *v1alpha1.HeadlessService) error {
	meta := resources.ObjectMeta(resources.DNSTestPodName(hs.Name), hs, resources.DNSTestLabels(hs.Name))
	meta.Annotations = map[string]string{RunIDAnnotation: uuid.NewString()}

	pod := &corev1.Pod{
		ObjectMeta: meta,
		Spec: corev1.PodSpec{
			Containers: []corev1.Container{
				{
					Name:    testContainerName,
					Image:   m.testPodImage,
					Command: []string{"sleep", "3600"},
				},
			},
			RestartPolicy: corev1.RestartPolicyNever,
		},
	}

	start := time.Now()
	err := m.client.Create(ctx, pod)
	metrics.ObserveAPICall(ctx, m.metrics, "create", "pods", start, err)

	if err != nil {
		return errors.Wrapf(err, "failed to create DNS test pod %s", pod.Name)
	}

	return nil
}

// CleanupDNSTestPod deletes the DNS test pod. A missing pod is not an error.
func (m *Manager) CleanupDNSTestPod(ctx context.Context, hs *v1alpha1.HeadlessService) error {
	pod := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      resources.DNSTestPodName(hs.Name),
			Namespace: hs.Namespace,
		},
	}

	start := time.Now()
	err := m.client.Delete(ctx, pod)
	metrics.ObserveAPICallIgnoreNotFound(ctx, m.metrics, "delete", "pods", start, err)

	if err != nil && !apierrors.IsNotFound(err) {
		return errors.Wrapf(err, "failed to delete DNS test pod %s", pod.Name)
	}

	return nil
}
