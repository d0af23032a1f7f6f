package controller

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/healthz"
	"sigs.k8s.io/controller-runtime/pkg/log"
	ctrlmetrics "sigs.k8s.io/controller-runtime/pkg/metrics"
	"sigs.k8s.io/controller-runtime/pkg/metrics/server"

	"github.com/lexfrei/headless-service-controller/api/v1alpha1"
	"github.com/lexfrei/headless-service-controller/internal/config"
	"github.com/lexfrei/headless-service-controller/internal/discovery"
	"github.com/lexfrei/headless-service-controller/internal/dnsprobe"
	"github.com/lexfrei/headless-service-controller/internal/dnsverify"
	"github.com/lexfrei/headless-service-controller/internal/metrics"
)

// Config holds all configuration options for the controller manager.
// Values are typically populated from CLI flags or environment variables.
type Config struct {
	// ClusterDomain is the default cluster DNS suffix. Defaults to "cluster.local".
	ClusterDomain string

	// DefaultDNSServer is queried when a HeadlessService names no DNS server.
	DefaultDNSServer string

	// DefaultTTL is applied when a HeadlessService has no DNS block.
	DefaultTTL int32

	// DefaultRefreshInterval is applied when a HeadlessService has no
	// service discovery block.
	DefaultRefreshInterval int32

	// DiscoveryImage is the image of discovery sidecar pods.
	DiscoveryImage string

	// DNSTestImage is the image of DNS test pods.
	DNSTestImage string

	// DNSProbeTimeout bounds each DNS query.
	DNSProbeTimeout time.Duration

	// Namespace holds the defaults ConfigMap.
	Namespace string

	// DefaultsConfigMap names the optional ConfigMap overriding the defaults
	// above. Empty disables it.
	DefaultsConfigMap string

	// MetricsAddr is the address for the Prometheus metrics endpoint.
	MetricsAddr string

	// HealthAddr is the address for health and readiness probe endpoints.
	HealthAddr string

	// LeaderElect enables leader election for high availability.
	// Required when running multiple replicas.
	LeaderElect bool

	// LeaderElectNS is the namespace for the leader election lease.
	LeaderElectNS string

	// LeaderElectName is the name of the leader election lease.
	LeaderElectName string
}

// Defaults returns the operator-level defaults carried by cfg.
func (cfg *Config) Defaults() config.Defaults {
	return config.Defaults{
		ClusterDomain:   cfg.ClusterDomain,
		DNSServer:       cfg.DefaultDNSServer,
		TTL:             cfg.DefaultTTL,
		DiscoveryType:   v1alpha1.DiscoveryTypeDNS,
		RefreshInterval: cfg.DefaultRefreshInterval,
		ConfigMapName:   cfg.DefaultsConfigMap,
	}
}

// Run initializes and starts the controller manager with the provided configuration.
// It blocks until the context is cancelled or an error occurs.
//
// The function performs the following steps:
//  1. Initializes controller-runtime manager with metrics and health endpoints
//  2. Registers the HeadlessService scheme and the Prometheus collector
//  3. Wires the DNS probe client, DNS verification and discovery managers
//  4. Sets up the HeadlessService reconciler
//  5. Starts the manager and blocks until shutdown
//
//nolint:funlen,noinlineerr // controller setup requires multiple steps
func Run(ctx context.Context, cfg *Config) error {
	logger := log.FromContext(ctx).WithName("manager")
	logger.Info("initializing controller manager")

	mgrOptions := ctrl.Options{
		Metrics: server.Options{
			BindAddress: cfg.MetricsAddr,
		},
		HealthProbeBindAddress: cfg.HealthAddr,
	}

	if cfg.LeaderElect {
		mgrOptions.LeaderElection = true
		mgrOptions.LeaderElectionID = cfg.LeaderElectName
		mgrOptions.LeaderElectionNamespace = cfg.LeaderElectNS

		logger.Info("leader election enabled",
			"id", cfg.LeaderElectName,
			"namespace", cfg.LeaderElectNS,
		)
	}

	mgr, err := ctrl.NewManager(ctrl.GetConfigOrDie(), mgrOptions)
	if err != nil {
		return errors.Wrap(err, "failed to create manager")
	}

	if err := v1alpha1.AddToScheme(mgr.GetScheme()); err != nil {
		return errors.Wrap(err, "failed to add headless service scheme")
	}

	collector := metrics.NewCollector(ctrlmetrics.Registry)

	dnsManager := dnsverify.NewManager(
		mgr.GetClient(),
		dnsprobe.NewClient(dnsprobe.WithTimeout(cfg.DNSProbeTimeout)),
		collector,
		dnsverify.WithDefaultDNSServer(cfg.DefaultDNSServer),
		dnsverify.WithTestPodImage(cfg.DNSTestImage),
	)

	discoveryManager := discovery.NewManager(
		mgr.GetClient(),
		collector,
		discovery.WithImage(cfg.DiscoveryImage),
	)

	reconciler := &HeadlessServiceReconciler{
		Client:    mgr.GetClient(),
		Scheme:    mgr.GetScheme(),
		Defaults:  config.NewResolver(mgr.GetClient(), cfg.Namespace, cfg.Defaults(), collector),
		DNS:       dnsManager,
		Discovery: discoveryManager,
		Metrics:   collector,
	}

	mapper := &DefaultsMapper{
		Client:    mgr.GetClient(),
		Namespace: cfg.Namespace,
		Name:      cfg.DefaultsConfigMap,
	}

	if err := reconciler.SetupWithManager(mgr, mapper); err != nil {
		return errors.Wrap(err, "failed to setup headlessservice controller")
	}

	if err := mgr.AddHealthzCheck("healthz", healthz.Ping); err != nil {
		return errors.Wrap(err, "failed to set up health check")
	}

	if err := mgr.AddReadyzCheck("readyz", healthz.Ping); err != nil {
		return errors.Wrap(err, "failed to set up ready check")
	}

	logger.Info("starting manager")

	if err := mgr.Start(ctx); err != nil {
		return errors.Wrap(err, "failed to start manager")
	}

	return nil
}
