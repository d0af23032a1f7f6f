package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	ctrl "sigs.k8s.io/controller-runtime"

	"github.com/lexfrei/headless-service-controller/internal/controller"
	"github.com/lexfrei/headless-service-controller/internal/discovery"
	"github.com/lexfrei/headless-service-controller/internal/dnsprobe"
	"github.com/lexfrei/headless-service-controller/internal/dnsverify"
)

//nolint:gochecknoglobals // set by SetVersion from main
var (
	version = "development"
	gitsha  = "development"
)

func SetVersion(ver, sha string) {
	version = ver
	gitsha = sha
}

//nolint:gochecknoglobals // cobra command pattern
var rootCmd = &cobra.Command{
	Use:   "headless-service-controller",
	Short: "Kubernetes controller for verified headless Services",
	Long: `A Kubernetes controller that manages HeadlessService resources.
It creates the backing headless Service, verifies that the service and its
pods resolve through the configured DNS server, and runs a discovery sidecar
that polls endpoints with the dns, api or custom strategy.`,
	RunE:          runController,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "json", "Log format (json, text)")

	rootCmd.Flags().String("cluster-domain", discovery.DefaultClusterDomain, "Kubernetes cluster domain")
	rootCmd.Flags().String("default-dns-server", dnsverify.DefaultDNSServer, "DNS server queried when a HeadlessService names none")
	rootCmd.Flags().Int32("default-ttl", 30, "TTL in seconds for HeadlessServices without a DNS block")
	rootCmd.Flags().Int32("default-refresh-interval", 30, "Discovery refresh interval in seconds for HeadlessServices without a discovery block")
	rootCmd.Flags().String("discovery-image", discovery.DefaultImage, "Image of discovery sidecar pods")
	rootCmd.Flags().String("dns-test-image", dnsverify.DefaultTestPodImage, "Image of DNS test pods")
	rootCmd.Flags().Duration("dns-probe-timeout", dnsprobe.DefaultTimeout, "Timeout of a single DNS query")
	rootCmd.Flags().String("controller-namespace", "default", "Namespace holding the defaults ConfigMap")
	rootCmd.Flags().String("defaults-configmap", "headless-service-defaults", "Name of the defaults ConfigMap (empty disables it)")
	rootCmd.Flags().String("metrics-addr", ":8080", "Address for metrics endpoint")
	rootCmd.Flags().String("health-addr", ":8081", "Address for health probe endpoint")

	// Leader election flags
	rootCmd.Flags().Bool("leader-elect", false, "Enable leader election for high availability")
	rootCmd.Flags().String("leader-election-namespace", "", "Namespace for leader election lease (defaults to controller namespace)")
	rootCmd.Flags().String("leader-election-name", "headless-service-controller-leader", "Name of the leader election lease")

	_ = viper.BindPFlags(rootCmd.Flags())
	_ = viper.BindPFlags(rootCmd.PersistentFlags())
}

func initConfig() {
	viper.SetEnvPrefix("HSC")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("cluster-domain", discovery.DefaultClusterDomain)
	viper.SetDefault("default-dns-server", dnsverify.DefaultDNSServer)
	viper.SetDefault("default-ttl", 30)
	viper.SetDefault("default-refresh-interval", 30)
	viper.SetDefault("discovery-image", discovery.DefaultImage)
	viper.SetDefault("dns-test-image", dnsverify.DefaultTestPodImage)
	viper.SetDefault("dns-probe-timeout", dnsprobe.DefaultTimeout)
	viper.SetDefault("controller-namespace", "default")
	viper.SetDefault("defaults-configmap", "headless-service-defaults")
	viper.SetDefault("metrics-addr", ":8080")
	viper.SetDefault("health-addr", ":8081")
	viper.SetDefault("log-level", "info")
	viper.SetDefault("log-format", "json")
	viper.SetDefault("leader-elect", false)
	viper.SetDefault("leader-election-name", "headless-service-controller-leader")
}

func Execute() error {
	return errors.Wrap(rootCmd.Execute(), "command execution failed")
}

func setupLogger() *slog.Logger {
	level := slog.LevelInfo

	switch viper.GetString("log-level") {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if viper.GetString("log-format") == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

// loadConfig builds the controller configuration from viper.
func loadConfig() (*controller.Config, error) {
	cfg := &controller.Config{
		ClusterDomain:          viper.GetString("cluster-domain"),
		DefaultDNSServer:       viper.GetString("default-dns-server"),
		DefaultTTL:             viper.GetInt32("default-ttl"),
		DefaultRefreshInterval: viper.GetInt32("default-refresh-interval"),
		DiscoveryImage:         viper.GetString("discovery-image"),
		DNSTestImage:           viper.GetString("dns-test-image"),
		DNSProbeTimeout:        viper.GetDuration("dns-probe-timeout"),
		Namespace:              viper.GetString("controller-namespace"),
		DefaultsConfigMap:      viper.GetString("defaults-configmap"),
		MetricsAddr:            viper.GetString("metrics-addr"),
		HealthAddr:             viper.GetString("health-addr"),

		LeaderElect:     viper.GetBool("leader-elect"),
		LeaderElectNS:   viper.GetString("leader-election-namespace"),
		LeaderElectName: viper.GetString("leader-election-name"),
	}

	switch {
	case cfg.ClusterDomain == "":
		return nil, errors.New("cluster-domain must not be empty")
	case cfg.DefaultTTL < 0:
		return nil, errors.Newf("default-ttl must be non-negative, got %d", cfg.DefaultTTL)
	case cfg.DefaultRefreshInterval < 0:
		return nil, errors.Newf("default-refresh-interval must be non-negative, got %d", cfg.DefaultRefreshInterval)
	case cfg.DNSProbeTimeout <= 0:
		return nil, errors.Newf("dns-probe-timeout must be positive, got %s", cfg.DNSProbeTimeout)
	}

	if cfg.LeaderElectNS == "" {
		cfg.LeaderElectNS = cfg.Namespace
	}

	return cfg, nil
}

//nolint:noinlineerr // inline error handling is fine here
func runController(_ *cobra.Command, _ []string) error {
	logger := setupLogger()
	slog.SetDefault(logger)

	ctrl.SetLogger(logr.FromSlogHandler(logger.Handler()))

	logger.Info("starting headless-service-controller",
		"version", version,
		"gitsha", gitsha,
	)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := controller.Run(ctx, cfg); err != nil {
		return errors.Wrap(err, "failed to run controller")
	}

	return nil
}
