package config_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"
	"sigs.k8s.io/controller-runtime/pkg/client/interceptor"

	"github.com/lexfrei/headless-service-controller/api/v1alpha1"
	"github.com/lexfrei/headless-service-controller/internal/config"
	"github.com/lexfrei/headless-service-controller/internal/metrics"
)

const (
	testNamespace     = "hsc-system"
	testConfigMapName = "headless-service-defaults"
)

func operatorDefaults() config.Defaults {
	return config.Defaults{
		ClusterDomain:   "cluster.local",
		DNSServer:       "8.8.8.8",
		TTL:             30,
		DiscoveryType:   v1alpha1.DiscoveryTypeDNS,
		RefreshInterval: 30,
		ConfigMapName:   testConfigMapName,
	}
}

func newHeadlessService(spec v1alpha1.HeadlessServiceSpec) *v1alpha1.HeadlessService {
	return &v1alpha1.HeadlessService{
		ObjectMeta: metav1.ObjectMeta{Name: "web", Namespace: "prod"},
		Spec:       spec,
	}
}

func defaultsConfigMap(data map[string]string) *corev1.ConfigMap {
	return &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{Name: testConfigMapName, Namespace: testNamespace},
		Data:       data,
	}
}

func TestResolve_AppliesOperatorDefaults(t *testing.T) {
	t.Parallel()

	resolver := config.NewResolver(setupFakeClient(), testNamespace, operatorDefaults(), metrics.NewNoopCollector())

	hs := newHeadlessService(v1alpha1.HeadlessServiceSpec{Selector: map[string]string{"app": "web"}})

	resolved, err := resolver.Resolve(context.Background(), hs)
	require.NoError(t, err)

	require.NotNil(t, resolved.Spec.DNS)
	assert.Equal(t, "cluster.local", resolved.Spec.DNS.ClusterDomain)
	assert.Equal(t, "8.8.8.8", resolved.Spec.DNS.DNSServer)
	assert.Equal(t, int32(30), resolved.Spec.DNS.TTL)

	require.NotNil(t, resolved.Spec.ServiceDiscovery)
	assert.Equal(t, v1alpha1.DiscoveryTypeDNS, resolved.Spec.ServiceDiscovery.Type)
	assert.Equal(t, int32(30), resolved.Spec.ServiceDiscovery.RefreshInterval)

	assert.Nil(t, hs.Spec.DNS, "input must not be modified")
	assert.Nil(t, hs.Spec.ServiceDiscovery, "input must not be modified")
}

func TestResolve_KeepsExplicitValues(t *testing.T) {
	t.Parallel()

	resolver := config.NewResolver(setupFakeClient(), testNamespace, operatorDefaults(), metrics.NewNoopCollector())

	hs := newHeadlessService(v1alpha1.HeadlessServiceSpec{
		Selector: map[string]string{"app": "web"},
		DNS:      &v1alpha1.DNSSpec{ClusterDomain: "example.org", DNSServer: "10.96.0.10", TTL: 0},
		ServiceDiscovery: &v1alpha1.ServiceDiscoverySpec{
			Type:            v1alpha1.DiscoveryTypeCustom,
			RefreshInterval: 0,
			CustomEndpoint:  "http://registry.local/web",
		},
	})

	resolved, err := resolver.Resolve(context.Background(), hs)
	require.NoError(t, err)

	assert.Equal(t, "example.org", resolved.Spec.DNS.ClusterDomain)
	assert.Equal(t, "10.96.0.10", resolved.Spec.DNS.DNSServer)
	assert.Equal(t, int32(0), resolved.Spec.DNS.TTL)
	assert.Equal(t, v1alpha1.DiscoveryTypeCustom, resolved.Spec.ServiceDiscovery.Type)
	assert.Equal(t, int32(0), resolved.Spec.ServiceDiscovery.RefreshInterval)
}

func TestResolve_FillsEmptyClusterDomain(t *testing.T) {
	t.Parallel()

	resolver := config.NewResolver(setupFakeClient(), testNamespace, operatorDefaults(), metrics.NewNoopCollector())

	hs := newHeadlessService(v1alpha1.HeadlessServiceSpec{
		Selector: map[string]string{"app": "web"},
		DNS:      &v1alpha1.DNSSpec{TTL: 10},
	})

	resolved, err := resolver.Resolve(context.Background(), hs)
	require.NoError(t, err)

	assert.Equal(t, "cluster.local", resolved.Spec.DNS.ClusterDomain)
	assert.Equal(t, "8.8.8.8", resolved.Spec.DNS.DNSServer)
	assert.Equal(t, int32(10), resolved.Spec.DNS.TTL)
	assert.Empty(t, hs.Spec.DNS.ClusterDomain)
}

func TestEffectiveDefaults_ConfigMapOverrides(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		data     map[string]string
		expected config.Defaults
	}{
		{
			name:     "no keys",
			data:     map[string]string{},
			expected: operatorDefaults(),
		},
		{
			name: "all keys",
			data: map[string]string{
				config.KeyClusterDomain:   "corp.internal",
				config.KeyDNSServer:       "10.96.0.10",
				config.KeyTTL:             "60",
				config.KeyDiscoveryType:   "api",
				config.KeyRefreshInterval: "15",
			},
			expected: config.Defaults{
				ClusterDomain:   "corp.internal",
				DNSServer:       "10.96.0.10",
				TTL:             60,
				DiscoveryType:   v1alpha1.DiscoveryTypeAPI,
				RefreshInterval: 15,
				ConfigMapName:   testConfigMapName,
			},
		},
		{
			name: "empty values are ignored",
			data: map[string]string{
				config.KeyClusterDomain: "",
				config.KeyTTL:           "",
			},
			expected: operatorDefaults(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			resolver := config.NewResolver(
				setupFakeClient(defaultsConfigMap(tt.data)),
				testNamespace,
				operatorDefaults(),
				metrics.NewNoopCollector(),
			)

			got, err := resolver.EffectiveDefaults(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestEffectiveDefaults_InvalidValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data map[string]string
	}{
		{name: "ttl not a number", data: map[string]string{config.KeyTTL: "thirty"}},
		{name: "negative ttl", data: map[string]string{config.KeyTTL: "-5"}},
		{name: "refresh interval overflow", data: map[string]string{config.KeyRefreshInterval: "99999999999"}},
		{name: "unknown discovery type", data: map[string]string{config.KeyDiscoveryType: "bogus"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			resolver := config.NewResolver(
				setupFakeClient(defaultsConfigMap(tt.data)),
				testNamespace,
				operatorDefaults(),
				metrics.NewNoopCollector(),
			)

			_, err := resolver.EffectiveDefaults(context.Background())
			require.Error(t, err)
			assert.Contains(t, err.Error(), "defaults configmap")

			_, err = resolver.Resolve(context.Background(), newHeadlessService(v1alpha1.HeadlessServiceSpec{}))
			require.Error(t, err)
		})
	}
}

func TestEffectiveDefaults_MissingConfigMap(t *testing.T) {
	t.Parallel()

	resolver := config.NewResolver(setupFakeClient(), testNamespace, operatorDefaults(), metrics.NewNoopCollector())

	got, err := resolver.EffectiveDefaults(context.Background())
	require.NoError(t, err)
	assert.Equal(t, operatorDefaults(), got)
}

func TestEffectiveDefaults_ConfigMapDisabled(t *testing.T) {
	t.Parallel()

	var gets int

	fakeClient := fake.NewClientBuilder().
		WithScheme(newScheme()).
		WithInterceptorFuncs(interceptor.Funcs{
			Get: func(
				ctx context.Context, c client.WithWatch, key client.ObjectKey, obj client.Object, opts ...client.GetOption,
			) error {
				gets++

				return c.Get(ctx, key, obj, opts...)
			},
		}).
		Build()

	defaults := operatorDefaults()
	defaults.ConfigMapName = ""

	resolver := config.NewResolver(fakeClient, testNamespace, defaults, metrics.NewNoopCollector())

	got, err := resolver.EffectiveDefaults(context.Background())
	require.NoError(t, err)
	assert.Equal(t, defaults, got)
	assert.Zero(t, gets)
	assert.Empty(t, resolver.ConfigMapName())
}

func TestEffectiveDefaults_GetError(t *testing.T) {
	t.Parallel()

	fakeClient := fake.NewClientBuilder().
		WithScheme(newScheme()).
		WithInterceptorFuncs(interceptor.Funcs{
			Get: func(
				_ context.Context, _ client.WithWatch, key client.ObjectKey, _ client.Object, _ ...client.GetOption,
			) error {
				return apierrors.NewForbidden(schema.GroupResource{Resource: "configmaps"}, key.Name, nil)
			},
		}).
		Build()

	resolver := config.NewResolver(fakeClient, testNamespace, operatorDefaults(), metrics.NewNoopCollector())

	_, err := resolver.EffectiveDefaults(context.Background())
	require.Error(t, err)
	assert.True(t, apierrors.IsForbidden(err))
	assert.Contains(t, err.Error(), "hsc-system/headless-service-defaults")
}

func TestResolver_Accessors(t *testing.T) {
	t.Parallel()

	resolver := config.NewResolver(setupFakeClient(), testNamespace, operatorDefaults(), metrics.NewNoopCollector())

	assert.Equal(t, testNamespace, resolver.Namespace())
	assert.Equal(t, testConfigMapName, resolver.ConfigMapName())
}

func newScheme() *runtime.Scheme {
	scheme := runtime.NewScheme()
	utilruntime.Must(clientgoscheme.AddToScheme(scheme))
	utilruntime.Must(v1alpha1.AddToScheme(scheme))

	return scheme
}

func setupFakeClient(objs ...client.Object) client.Client {
	return fake.NewClientBuilder().
		WithScheme(newScheme()).
		WithObjects(objs...).
		Build()
}
