package dnsverify_test

import (
	"context"
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"
	"sigs.k8s.io/controller-runtime/pkg/client/interceptor"

	"github.com/lexfrei/headless-service-controller/api/v1alpha1"
	"github.com/lexfrei/headless-service-controller/internal/dnsprobe"
	"github.com/lexfrei/headless-service-controller/internal/dnsverify"
	"github.com/lexfrei/headless-service-controller/internal/metrics"
	"github.com/lexfrei/headless-service-controller/internal/resources"
)

var errListFailed = errors.New("list failed")

// fakeResolver answers from a fixed table and records every query.
type fakeResolver struct {
	mu      sync.Mutex
	answers map[string][]string
	queries []query
}

type query struct {
	host   string
	server string
}

func newFakeResolver(answers map[string][]string) *fakeResolver {
	return &fakeResolver{answers: answers}
}

func (r *fakeResolver) Resolve(_ context.Context, hostname, server string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.queries = append(r.queries, query{host: hostname, server: server})

	ips, ok := r.answers[hostname]
	if !ok {
		return nil, &dnsprobe.ResolutionError{Host: hostname, Server: server, Err: dnsprobe.ErrNonExistentDomain}
	}

	return ips, nil
}

func (r *fakeResolver) calls() []query {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]query(nil), r.queries...)
}

func setupScheme(t *testing.T) *runtime.Scheme {
	t.Helper()

	scheme := runtime.NewScheme()
	require.NoError(t, clientgoscheme.AddToScheme(scheme))
	require.NoError(t, v1alpha1.AddToScheme(scheme))

	return scheme
}

func newHeadlessService() *v1alpha1.HeadlessService {
	return &v1alpha1.HeadlessService{
		ObjectMeta: metav1.ObjectMeta{
			Name:      "web",
			Namespace: "prod",
			UID:       types.UID("hs-uid"),
		},
		Spec: v1alpha1.HeadlessServiceSpec{
			Selector: map[string]string{"app": "web"},
			DNS: &v1alpha1.DNSSpec{
				ClusterDomain: "cluster.local",
				TTL:           30,
			},
		},
	}
}

func newPod(name, namespace, ip string, labels map[string]string) *corev1.Pod {
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: namespace,
			Labels:    labels,
		},
		Status: corev1.PodStatus{PodIP: ip},
	}
}

func webPods() []client.Object {
	return []client.Object{
		newPod("web-0", "prod", "10.0.0.1", map[string]string{"app": "web"}),
		newPod("web-1", "prod", "10.0.0.2", map[string]string{"app": "web"}),
		newPod("api-0", "prod", "10.0.0.9", map[string]string{"app": "api"}),
		newPod("web-0", "staging", "10.1.0.1", map[string]string{"app": "web"}),
	}
}

func TestTestDNSResolution_AllResolve(t *testing.T) {
	t.Parallel()

	fakeClient := fake.NewClientBuilder().WithScheme(setupScheme(t)).WithObjects(webPods()...).Build()
	resolver := newFakeResolver(map[string][]string{
		"web.prod.svc.cluster.local":       {"10.0.0.1", "10.0.0.2"},
		"web-0.web.prod.svc.cluster.local": {"10.0.0.1"},
		"web-1.web.prod.svc.cluster.local": {"10.0.0.2"},
	})
	manager := dnsverify.NewManager(fakeClient, resolver, metrics.NewNoopCollector())

	result, err := manager.TestDNSResolution(context.Background(), newHeadlessService())
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.True(t, result.Success)
	assert.Empty(t, result.ErrorMessage)
	assert.Equal(t, "web.prod.svc.cluster.local", result.ServiceDNS)
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, result.ResolvedIPs)
	require.Len(t, result.IndividualPodDNS, 2)
	assert.ElementsMatch(t, []v1alpha1.PodDNSRecord{
		{PodName: "web-0", PodIP: "10.0.0.1", DNSName: "web-0.web.prod.svc.cluster.local"},
		{PodName: "web-1", PodIP: "10.0.0.2", DNSName: "web-1.web.prod.svc.cluster.local"},
	}, result.IndividualPodDNS)

	for _, q := range resolver.calls() {
		assert.Equal(t, dnsverify.DefaultDNSServer, q.server)
	}
}

func TestTestDNSResolution_ServiceFailure(t *testing.T) {
	t.Parallel()

	fakeClient := fake.NewClientBuilder().WithScheme(setupScheme(t)).WithObjects(webPods()...).Build()
	resolver := newFakeResolver(map[string][]string{})
	manager := dnsverify.NewManager(fakeClient, resolver, metrics.NewNoopCollector())

	result, err := manager.TestDNSResolution(context.Background(), newHeadlessService())
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.False(t, result.Success)
	assert.NotEmpty(t, result.ErrorMessage)
	assert.Equal(t, "web.prod.svc.cluster.local", result.ServiceDNS)
	assert.NotNil(t, result.ResolvedIPs)
	assert.Empty(t, result.ResolvedIPs)
	assert.Empty(t, result.IndividualPodDNS)

	assert.Len(t, resolver.calls(), 1, "pods must not be probed when the service does not resolve")
}

func TestTestDNSResolution_PodMissOmitted(t *testing.T) {
	t.Parallel()

	fakeClient := fake.NewClientBuilder().WithScheme(setupScheme(t)).WithObjects(webPods()...).Build()
	resolver := newFakeResolver(map[string][]string{
		"web.prod.svc.cluster.local":       {"10.0.0.1"},
		"web-0.web.prod.svc.cluster.local": {"10.0.0.1"},
	})
	manager := dnsverify.NewManager(fakeClient, resolver, metrics.NewNoopCollector())

	result, err := manager.TestDNSResolution(context.Background(), newHeadlessService())
	require.NoError(t, err)

	assert.True(t, result.Success)
	require.Len(t, result.IndividualPodDNS, 1)
	assert.Equal(t, "web-0", result.IndividualPodDNS[0].PodName)
}

func TestTestDNSResolution_DNSServer(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		spec     string
		opts     []dnsverify.Option
		expected string
	}{
		{name: "package default", expected: "8.8.8.8"},
		{name: "manager default", opts: []dnsverify.Option{dnsverify.WithDefaultDNSServer("1.1.1.1")}, expected: "1.1.1.1"},
		{name: "spec wins", spec: "10.96.0.10", opts: []dnsverify.Option{dnsverify.WithDefaultDNSServer("1.1.1.1")}, expected: "10.96.0.10"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			fakeClient := fake.NewClientBuilder().WithScheme(setupScheme(t)).Build()
			resolver := newFakeResolver(map[string][]string{"web.prod.svc.cluster.local": {"10.0.0.1"}})
			manager := dnsverify.NewManager(fakeClient, resolver, metrics.NewNoopCollector(), tt.opts...)

			hs := newHeadlessService()
			hs.Spec.DNS.DNSServer = tt.spec

			_, err := manager.TestDNSResolution(context.Background(), hs)
			require.NoError(t, err)

			calls := resolver.calls()
			require.NotEmpty(t, calls)
			assert.Equal(t, tt.expected, calls[0].server)
		})
	}
}

func TestTestDNSResolution_InvalidDNS(t *testing.T) {
	t.Parallel()

	fakeClient := fake.NewClientBuilder().WithScheme(setupScheme(t)).Build()
	resolver := newFakeResolver(nil)
	manager := dnsverify.NewManager(fakeClient, resolver, metrics.NewNoopCollector())

	hs := newHeadlessService()
	hs.Spec.DNS = nil

	result, err := manager.TestDNSResolution(context.Background(), hs)
	require.Error(t, err)
	assert.True(t, resources.IsValidation(err))
	assert.Nil(t, result)
	assert.Empty(t, resolver.calls())
}

func TestTestDNSResolution_PodListFailure(t *testing.T) {
	t.Parallel()

	fakeClient := fake.NewClientBuilder().
		WithScheme(setupScheme(t)).
		WithObjects(webPods()...).
		WithInterceptorFuncs(interceptor.Funcs{
			List: func(_ context.Context, _ client.WithWatch, _ client.ObjectList, _ ...client.ListOption) error {
				return errListFailed
			},
		}).
		Build()
	resolver := newFakeResolver(map[string][]string{
		"web.prod.svc.cluster.local": {"10.0.0.1"},
	})
	manager := dnsverify.NewManager(fakeClient, resolver, metrics.NewNoopCollector())

	result, err := manager.TestDNSResolution(context.Background(), newHeadlessService())
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Empty(t, result.IndividualPodDNS)
}

func TestValidateDNSConfiguration(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		dns     *v1alpha1.DNSSpec
		wantErr string
	}{
		{name: "valid", dns: &v1alpha1.DNSSpec{ClusterDomain: "cluster.local", TTL: 30}},
		{name: "zero ttl", dns: &v1alpha1.DNSSpec{ClusterDomain: "cluster.local"}},
		{name: "missing block", dns: nil, wantErr: "DNS configuration is required"},
		{name: "empty cluster domain", dns: &v1alpha1.DNSSpec{TTL: 30}, wantErr: "cluster domain is required"},
		{name: "negative ttl", dns: &v1alpha1.DNSSpec{ClusterDomain: "cluster.local", TTL: -1}, wantErr: "TTL must be non-negative"},
	}

	manager := dnsverify.NewManager(nil, nil, metrics.NewNoopCollector())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			hs := newHeadlessService()
			hs.Spec.DNS = tt.dns

			err := manager.ValidateDNSConfiguration(hs)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.True(t, resources.IsValidation(err))
		})
	}
}

func TestConfigureDNSConfigMap_CreateThenUpdate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fakeClient := fake.NewClientBuilder().WithScheme(setupScheme(t)).Build()
	manager := dnsverify.NewManager(fakeClient, nil, metrics.NewNoopCollector())

	hs := newHeadlessService()
	require.NoError(t, manager.ConfigureDNSConfigMap(ctx, hs))

	configMap := &corev1.ConfigMap{}
	require.NoError(t, fakeClient.Get(ctx, types.NamespacedName{Namespace: "prod", Name: "web-dns-config"}, configMap))

	assert.Equal(t, map[string]string{
		"service-dns":    "web.prod.svc.cluster.local",
		"cluster-domain": "cluster.local",
		"dns-server":     "8.8.8.8",
		"ttl":            "30",
	}, configMap.Data)
	assert.Equal(t, "headless-service-dns", configMap.Labels[resources.LabelName])
	assert.Equal(t, "web", configMap.Labels[resources.LabelInstance])
	require.Len(t, configMap.OwnerReferences, 1)
	assert.Equal(t, "HeadlessService", configMap.OwnerReferences[0].Kind)
	assert.Equal(t, types.UID("hs-uid"), configMap.OwnerReferences[0].UID)

	hs.Spec.DNS.TTL = 60
	hs.Spec.DNS.DNSServer = "10.96.0.10"
	require.NoError(t, manager.ConfigureDNSConfigMap(ctx, hs))

	list := &corev1.ConfigMapList{}
	require.NoError(t, fakeClient.List(ctx, list, client.InNamespace("prod")))
	require.Len(t, list.Items, 1)
	assert.Equal(t, "60", list.Items[0].Data["ttl"])
	assert.Equal(t, "10.96.0.10", list.Items[0].Data["dns-server"])
}

func TestConfigureDNSConfigMap_Invalid(t *testing.T) {
	t.Parallel()

	var calls int

	fakeClient := fake.NewClientBuilder().
		WithScheme(setupScheme(t)).
		WithInterceptorFuncs(interceptor.Funcs{
			Create: func(ctx context.Context, c client.WithWatch, obj client.Object, opts ...client.CreateOption) error {
				calls++
				return c.Create(ctx, obj, opts...)
			},
		}).
		Build()
	manager := dnsverify.NewManager(fakeClient, nil, metrics.NewNoopCollector())

	hs := newHeadlessService()
	hs.Spec.DNS.ClusterDomain = ""

	err := manager.ConfigureDNSConfigMap(context.Background(), hs)
	require.Error(t, err)
	assert.True(t, resources.IsValidation(err))
	assert.Zero(t, calls)
}

func TestConfigureDNSConfigMap_CreateError(t *testing.T) {
	t.Parallel()

	fakeClient := fake.NewClientBuilder().
		WithScheme(setupScheme(t)).
		WithInterceptorFuncs(interceptor.Funcs{
			Create: func(_ context.Context, _ client.WithWatch, _ client.Object, _ ...client.CreateOption) error {
				return apierrors.NewForbidden(corev1.Resource("configmaps"), "web-dns-config", errListFailed)
			},
		}).
		Build()
	manager := dnsverify.NewManager(fakeClient, nil, metrics.NewNoopCollector())

	err := manager.ConfigureDNSConfigMap(context.Background(), newHeadlessService())
	require.Error(t, err)
	assert.True(t, apierrors.IsForbidden(err))
}

func TestGetServiceEndpoints(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		objects   []client.Object
		expected  []string
		expectErr bool
	}{
		{
			name: "flattens subsets",
			objects: []client.Object{
				&corev1.Endpoints{ //nolint:staticcheck // legacy Endpoints API
					ObjectMeta: metav1.ObjectMeta{Name: "web", Namespace: "prod"},
					Subsets: []corev1.EndpointSubset{ //nolint:staticcheck // legacy Endpoints API
						{Addresses: []corev1.EndpointAddress{{IP: "10.0.0.1"}, {IP: "10.0.0.2"}}},
						{Addresses: []corev1.EndpointAddress{{IP: "10.0.0.3"}}},
					},
				},
			},
			expected: []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"},
		},
		{
			name: "no subsets",
			objects: []client.Object{
				&corev1.Endpoints{ //nolint:staticcheck // legacy Endpoints API
					ObjectMeta: metav1.ObjectMeta{Name: "web", Namespace: "prod"},
				},
			},
			expected: []string{},
		},
		{
			name:      "missing endpoints",
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			fakeClient := fake.NewClientBuilder().WithScheme(setupScheme(t)).WithObjects(tt.objects...).Build()
			manager := dnsverify.NewManager(fakeClient, nil, metrics.NewNoopCollector())

			ips, err := manager.GetServiceEndpoints(context.Background(), newHeadlessService())

			if tt.expectErr {
				require.Error(t, err)
				assert.True(t, apierrors.IsNotFound(err))
				return
			}

			require.NoError(t, err)
			require.NotNil(t, ips)
			assert.Equal(t, tt.expected, ips)
		})
	}
}

func TestCreateDNSTestPod(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fakeClient := fake.NewClientBuilder().WithScheme(setupScheme(t)).Build()
	manager := dnsverify.NewManager(fakeClient, nil, metrics.NewNoopCollector())
	hs := newHeadlessService()

	require.NoError(t, manager.CreateDNSTestPod(ctx, hs))

	pod := &corev1.Pod{}
	require.NoError(t, fakeClient.Get(ctx, types.NamespacedName{Namespace: "prod", Name: "web-dns-test"}, pod))

	require.Len(t, pod.Spec.Containers, 1)
	assert.Equal(t, "dns-test", pod.Spec.Containers[0].Name)
	assert.Equal(t, "busybox:1.35", pod.Spec.Containers[0].Image)
	assert.Equal(t, []string{"sleep", "3600"}, pod.Spec.Containers[0].Command)
	assert.Equal(t, corev1.RestartPolicyNever, pod.Spec.RestartPolicy)
	assert.Equal(t, "dns-test", pod.Labels[resources.LabelName])
	assert.Equal(t, "web", pod.Labels[resources.LabelInstance])
	require.Len(t, pod.OwnerReferences, 1)

	_, err := uuid.Parse(pod.Annotations[dnsverify.RunIDAnnotation])
	require.NoError(t, err)

	err = manager.CreateDNSTestPod(ctx, hs)
	require.Error(t, err)
	assert.True(t, apierrors.IsAlreadyExists(err))
}

func TestCreateDNSTestPod_CustomImage(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fakeClient := fake.NewClientBuilder().WithScheme(setupScheme(t)).Build()
	manager := dnsverify.NewManager(fakeClient, nil, metrics.NewNoopCollector(),
		dnsverify.WithTestPodImage("registry.local/busybox:1.36"))

	require.NoError(t, manager.CreateDNSTestPod(ctx, newHeadlessService()))

	pod := &corev1.Pod{}
	require.NoError(t, fakeClient.Get(ctx, types.NamespacedName{Namespace: "prod", Name: "web-dns-test"}, pod))
	assert.Equal(t, "registry.local/busybox:1.36", pod.Spec.Containers[0].Image)
}

func TestCleanupDNSTestPod(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	existing := newPod("web-dns-test", "prod", "", resources.DNSTestLabels("web"))
	fakeClient := fake.NewClientBuilder().WithScheme(setupScheme(t)).WithObjects(existing).Build()
	manager := dnsverify.NewManager(fakeClient, nil, metrics.NewNoopCollector())
	hs := newHeadlessService()

	require.NoError(t, manager.CleanupDNSTestPod(ctx, hs))

	err := fakeClient.Get(ctx, types.NamespacedName{Namespace: "prod", Name: "web-dns-test"}, &corev1.Pod{})
	assert.True(t, apierrors.IsNotFound(err))

	require.NoError(t, manager.CleanupDNSTestPod(ctx, hs), "a missing pod is not an error")
}

func TestCleanupDNSTestPod_MissingPodIsNotAnAPIError(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	fakeClient := fake.NewClientBuilder().WithScheme(setupScheme(t)).Build()
	manager := dnsverify.NewManager(fakeClient, nil, metrics.NewCollector(reg))

	require.NoError(t, manager.CleanupDNSTestPod(context.Background(), newHeadlessService()))

	errorSeries, err := testutil.GatherAndCount(reg, "hsc_kubernetes_api_errors_total")
	require.NoError(t, err)
	assert.Zero(t, errorSeries)

	callSeries, err := testutil.GatherAndCount(reg, "hsc_kubernetes_api_calls_total")
	require.NoError(t, err)
	assert.Equal(t, 1, callSeries)
}
