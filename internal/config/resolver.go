// Package config resolves the effective HeadlessService configuration from
// operator defaults and an optional defaults ConfigMap.
package config

import (
	"context"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/lexfrei/headless-service-controller/api/v1alpha1"
	"github.com/lexfrei/headless-service-controller/internal/metrics"
)

// Keys read from the defaults ConfigMap.
const (
	KeyClusterDomain   = "cluster-domain"
	KeyDNSServer       = "dns-server"
	KeyTTL             = "ttl"
	KeyDiscoveryType   = "discovery-type"
	KeyRefreshInterval = "refresh-interval"
)

// Defaults are the values applied to fields a HeadlessService leaves unset.
type Defaults struct {
	// DNS settings
	ClusterDomain string
	DNSServer     string
	TTL           int32

	// Discovery settings
	DiscoveryType   v1alpha1.DiscoveryType
	RefreshInterval int32

	// ConfigMapName names an optional ConfigMap in the controller namespace
	// whose keys override the values above.
	ConfigMapName string
}

// Resolver applies Defaults to HeadlessService resources.
type Resolver struct {
	client    client.Client
	namespace string
	defaults  Defaults
	metrics   metrics.Collector
}

// NewResolver creates a new config Resolver.
func NewResolver(
	c client.Client,
	namespace string,
	defaults Defaults,
	metricsCollector metrics.Collector,
) *Resolver {
	return &Resolver{
		client:    c,
		namespace: namespace,
		defaults:  defaults,
		metrics:   metricsCollector,
	}
}

// Namespace is where the defaults ConfigMap is read from.
func (r *Resolver) Namespace() string {
	return r.namespace
}

// ConfigMapName is the name of the defaults ConfigMap, or "" when disabled.
func (r *Resolver) ConfigMapName() string {
	return r.defaults.ConfigMapName
}

// Resolve returns a copy of hs with defaults applied. hs is not modified.
func (r *Resolver) Resolve(ctx context.Context, hs *v1alpha1.HeadlessService) (*v1alpha1.HeadlessService, error) {
	defaults, err := r.EffectiveDefaults(ctx)
	if err != nil {
		return nil, err
	}

	resolved := hs.DeepCopy()
	spec := &resolved.Spec

	if spec.DNS == nil {
		spec.DNS = &v1alpha1.DNSSpec{TTL: defaults.TTL}
	}

	if spec.DNS.ClusterDomain == "" {
		spec.DNS.ClusterDomain = defaults.ClusterDomain
	}

	if spec.DNS.DNSServer == "" {
		spec.DNS.DNSServer = defaults.DNSServer
	}

	if spec.ServiceDiscovery == nil {
		spec.ServiceDiscovery = &v1alpha1.ServiceDiscoverySpec{
			Type:            defaults.DiscoveryType,
			RefreshInterval: defaults.RefreshInterval,
		}
	}

	return resolved, nil
}

// EffectiveDefaults returns the operator defaults overridden by the defaults
// ConfigMap. A missing ConfigMap is not an error.
//
//nolint:wrapcheck // errors.Newf creates new errors
func (r *Resolver) EffectiveDefaults(ctx context.Context) (Defaults, error) {
	defaults := r.defaults
	if defaults.ConfigMapName == "" {
		return defaults, nil
	}

	configMap := &corev1.ConfigMap{}

	start := time.Now()
	err := r.client.Get(ctx, types.NamespacedName{Namespace: r.namespace, Name: defaults.ConfigMapName}, configMap)
	metrics.ObserveAPICallIgnoreNotFound(ctx, r.metrics, "get", "configmaps", start, err)

	if apierrors.IsNotFound(err) {
		return defaults, nil
	}

	if err != nil {
		return Defaults{}, errors.Wrapf(err, "failed to get defaults configmap %s/%s", r.namespace, defaults.ConfigMapName)
	}

	data := configMap.Data

	if v, ok := data[KeyClusterDomain]; ok && v != "" {
		defaults.ClusterDomain = v
	}

	if v, ok := data[KeyDNSServer]; ok && v != "" {
		defaults.DNSServer = v
	}

	if v, ok := data[KeyDiscoveryType]; ok && v != "" {
		discoveryType := v1alpha1.DiscoveryType(v)
		if !discoveryType.IsValid() {
			return Defaults{}, errors.Newf("defaults configmap: invalid %s %q", KeyDiscoveryType, v)
		}

		defaults.DiscoveryType = discoveryType
	}

	if defaults.TTL, err = parseInt32(data, KeyTTL, defaults.TTL); err != nil {
		return Defaults{}, err
	}

	if defaults.RefreshInterval, err = parseInt32(data, KeyRefreshInterval, defaults.RefreshInterval); err != nil {
		return Defaults{}, err
	}

	return defaults, nil
}

func parseInt32(data map[string]string, key string, fallback int32) (int32, error) {
	raw, ok := data[key]
	if !ok || raw == "" {
		return fallback, nil
	}

	value, err := strconv.ParseInt(raw, 10, 32)
	if err != nil {
		return 0, errors.Wrapf(err, "defaults configmap: invalid %s %q", key, raw)
	}

	if value < 0 {
		return 0, errors.Newf("defaults configmap: %s must be non-negative, got %d", key, value)
	}

	return int32(value), nil
}
