package controller

import (
	"context"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/apimachinery/pkg/util/intstr"
	"k8s.io/client-go/util/retry"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/builder"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"
	"sigs.k8s.io/controller-runtime/pkg/handler"
	"sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/predicate"

	"github.com/lexfrei/headless-service-controller/api/v1alpha1"
	"github.com/lexfrei/headless-service-controller/internal/config"
	"github.com/lexfrei/headless-service-controller/internal/discovery"
	"github.com/lexfrei/headless-service-controller/internal/dnsverify"
	"github.com/lexfrei/headless-service-controller/internal/metrics"
	"github.com/lexfrei/headless-service-controller/internal/resources"
)

const (
	// CleanupFinalizer guards removal of discovery and DNS test objects.
	CleanupFinalizer = "headless.k8s.lex.la/cleanup"

	// DNSTestPodAnnotation set to "true" keeps a DNS test pod running next to the service.
	DNSTestPodAnnotation = "headless.k8s.lex.la/dns-test-pod"

	// ConditionTypeDNSResolved reports the latest DNS verification result.
	ConditionTypeDNSResolved = "DNSResolved"

	// ConditionTypeDiscoveryConfigured reports whether the discovery sidecar is in place.
	ConditionTypeDiscoveryConfigured = "DiscoveryConfigured"

	// resyncPeriod re-runs DNS verification even when nothing changed.
	resyncPeriod = 2 * time.Minute

	// maxConditionMessageLength is the maximum length for condition messages.
	maxConditionMessageLength = 256
)

// Condition reasons.
const (
	ReasonResolved             = "Resolved"
	ReasonResolutionFailed     = "ResolutionFailed"
	ReasonConfigured           = "Configured"
	ReasonConfigurationFailed  = "ConfigurationFailed"
	ReasonInvalidConfiguration = "InvalidConfiguration"
)

// HeadlessServiceReconciler reconciles HeadlessService resources into a
// headless Service, a DNS ConfigMap, an optional DNS test pod and a
// discovery sidecar, and reports DNS verification results in status.
type HeadlessServiceReconciler struct {
	client.Client

	Scheme    *runtime.Scheme
	Defaults  *config.Resolver
	DNS       *dnsverify.Manager
	Discovery *discovery.Manager
	Metrics   metrics.Collector
}

// observation is what a reconcile pass learned about the service.
type observation struct {
	dns          *v1alpha1.DNSTestResult
	endpoints    []string
	discoveryErr error
	invalidErr   error
}

//nolint:noinlineerr // controller reconcile logic
func (r *HeadlessServiceReconciler) Reconcile(ctx context.Context, req ctrl.Request) (result ctrl.Result, retErr error) {
	logger := log.FromContext(ctx)
	start := time.Now()

	defer func() {
		status := metrics.StatusSuccess
		if retErr != nil {
			status = metrics.StatusError
			r.Metrics.RecordReconcileError(ctx, metrics.ClassifyError(retErr))
		}

		r.Metrics.RecordReconcileDuration(ctx, status, time.Since(start))
	}()

	var hs v1alpha1.HeadlessService

	if err := r.Get(ctx, req.NamespacedName, &hs); err != nil {
		if apierrors.IsNotFound(err) {
			return ctrl.Result{}, nil
		}

		return ctrl.Result{}, errors.Wrap(err, "failed to get HeadlessService")
	}

	if !hs.DeletionTimestamp.IsZero() {
		return r.handleDeletion(ctx, &hs)
	}

	if !controllerutil.ContainsFinalizer(&hs, CleanupFinalizer) {
		controllerutil.AddFinalizer(&hs, CleanupFinalizer)

		if err := r.Update(ctx, &hs); err != nil {
			return ctrl.Result{}, errors.Wrap(err, "failed to add finalizer")
		}
	}

	logger.Info("reconciling HeadlessService", "name", hs.Name, "namespace", hs.Namespace)

	resolved, err := r.Defaults.Resolve(ctx, &hs)
	if err != nil {
		return ctrl.Result{}, errors.Wrap(err, "failed to resolve defaults")
	}

	if err := r.validate(resolved); err != nil {
		logger.Info("invalid HeadlessService", "reason", err.Error())
		r.Metrics.RecordReconcileError(ctx, metrics.ClassifyError(err))

		if statusErr := r.updateStatus(ctx, req.NamespacedName, &observation{invalidErr: err}); statusErr != nil {
			return ctrl.Result{}, errors.Wrap(statusErr, "failed to update HeadlessService status")
		}

		return ctrl.Result{}, nil
	}

	if err := r.ensureService(ctx, &hs, resolved); err != nil {
		return ctrl.Result{}, errors.Wrap(err, "failed to reconcile headless Service")
	}

	if err := r.DNS.ConfigureDNSConfigMap(ctx, resolved); err != nil {
		return ctrl.Result{}, errors.Wrap(err, "failed to configure DNS ConfigMap")
	}

	obs, err := r.observe(ctx, resolved)
	if err != nil {
		return ctrl.Result{}, err
	}

	if err := r.ensureDNSTestPod(ctx, resolved); err != nil {
		return ctrl.Result{}, errors.Wrap(err, "failed to reconcile DNS test pod")
	}

	obs.discoveryErr = r.configureDiscovery(ctx, &hs, resolved)

	if err := r.updateStatus(ctx, req.NamespacedName, obs); err != nil {
		return ctrl.Result{}, errors.Wrap(err, "failed to update HeadlessService status")
	}

	if obs.discoveryErr != nil {
		return ctrl.Result{}, errors.Wrap(obs.discoveryErr, "failed to configure service discovery")
	}

	return ctrl.Result{RequeueAfter: resyncPeriod}, nil
}

func (r *HeadlessServiceReconciler) handleDeletion(
	ctx context.Context,
	hs *v1alpha1.HeadlessService,
) (ctrl.Result, error) {
	logger := log.FromContext(ctx)

	if !controllerutil.ContainsFinalizer(hs, CleanupFinalizer) {
		return ctrl.Result{}, nil
	}

	logger.Info("cleaning up HeadlessService", "name", hs.Name, "namespace", hs.Namespace)

	if err := r.Discovery.Cleanup(ctx, hs); err != nil {
		return ctrl.Result{}, errors.Wrap(err, "failed to clean up service discovery")
	}

	if err := r.DNS.CleanupDNSTestPod(ctx, hs); err != nil {
		return ctrl.Result{}, errors.Wrap(err, "failed to clean up DNS test pod")
	}

	controllerutil.RemoveFinalizer(hs, CleanupFinalizer)

	if err := r.Update(ctx, hs); err != nil {
		return ctrl.Result{}, errors.Wrap(err, "failed to remove finalizer")
	}

	return ctrl.Result{}, nil
}

func (r *HeadlessServiceReconciler) validate(hs *v1alpha1.HeadlessService) error {
	if len(hs.Spec.Selector) == 0 {
		return resources.NewValidationError("selector must not be empty")
	}

	if err := r.DNS.ValidateDNSConfiguration(hs); err != nil {
		return err
	}

	return r.Discovery.ValidateServiceDiscoveryConfiguration(hs)
}

// ensureService creates or updates the headless Service named after hs.
// owner carries the UID and is used for the controller reference.
func (r *HeadlessServiceReconciler) ensureService(
	ctx context.Context,
	owner, hs *v1alpha1.HeadlessService,
) error {
	svc := &corev1.Service{
		ObjectMeta: metav1.ObjectMeta{Name: hs.Name, Namespace: hs.Namespace},
	}

	start := time.Now()
	op, err := controllerutil.CreateOrUpdate(ctx, r.Client, svc, func() error {
		svc.Labels = resources.ServiceLabels(hs)
		svc.Spec.ClusterIP = corev1.ClusterIPNone
		svc.Spec.Selector = hs.Spec.Selector
		svc.Spec.Ports = convertServicePorts(hs.Spec.Ports)

		return controllerutil.SetControllerReference(owner, svc, r.Scheme)
	})
	metrics.ObserveAPICall(ctx, r.Metrics, "create_or_update", "services", start, err)

	if err != nil {
		return errors.Wrapf(err, "failed to create or update service %s/%s", hs.Namespace, hs.Name)
	}

	if op != controllerutil.OperationResultNone {
		log.FromContext(ctx).Info("headless Service reconciled", "name", svc.Name, "operation", op)
	}

	return nil
}

// observe runs DNS verification and reads the published endpoints.
func (r *HeadlessServiceReconciler) observe(
	ctx context.Context,
	hs *v1alpha1.HeadlessService,
) (*observation, error) {
	dnsResult, err := r.DNS.TestDNSResolution(ctx, hs)
	if err != nil {
		return nil, errors.Wrap(err, "failed to test DNS resolution")
	}

	endpoints, err := r.DNS.GetServiceEndpoints(ctx, hs)
	if err != nil {
		if !apierrors.IsNotFound(err) {
			return nil, errors.Wrap(err, "failed to get service endpoints")
		}

		endpoints = []string{}
	}

	return &observation{dns: dnsResult, endpoints: endpoints}, nil
}

func (r *HeadlessServiceReconciler) ensureDNSTestPod(ctx context.Context, hs *v1alpha1.HeadlessService) error {
	if hs.Annotations[DNSTestPodAnnotation] != "true" {
		//nolint:wrapcheck // manager wraps its own errors
		return r.DNS.CleanupDNSTestPod(ctx, hs)
	}

	err := r.DNS.CreateDNSTestPod(ctx, hs)
	if err != nil && !apierrors.IsAlreadyExists(err) {
		//nolint:wrapcheck // manager wraps its own errors
		return err
	}

	return nil
}

// configureDiscovery treats an existing discovery pod as already running.
// The sidecar only gets a DNS server the user set; otherwise it keeps the
// pod's own resolver, which is the one that serves cluster names.
func (r *HeadlessServiceReconciler) configureDiscovery(
	ctx context.Context,
	hs, resolved *v1alpha1.HeadlessService,
) error {
	sidecarView := resolved.DeepCopy()
	sidecarView.Spec.DNS.DNSServer = hs.Spec.DNS.DNSServerOr("")

	err := r.Discovery.Configure(ctx, sidecarView)
	if err != nil && !apierrors.IsAlreadyExists(err) {
		//nolint:wrapcheck // manager wraps its own errors
		return err
	}

	return nil
}

func (r *HeadlessServiceReconciler) updateStatus(
	ctx context.Context,
	key types.NamespacedName,
	obs *observation,
) error {
	//nolint:wrapcheck // retry wrapper handles errors internally
	return retry.RetryOnConflict(retry.DefaultRetry, func() error {
		var fresh v1alpha1.HeadlessService
		if err := r.Get(ctx, key, &fresh); err != nil {
			return errors.Wrap(err, "failed to get fresh HeadlessService")
		}

		applyObservation(&fresh, obs)

		if err := r.Status().Update(ctx, &fresh); err != nil {
			return errors.Wrap(err, "failed to update HeadlessService status")
		}

		return nil
	})
}

// applyObservation writes phase, readiness, message and conditions onto hs.
func applyObservation(hs *v1alpha1.HeadlessService, obs *observation) {
	now := metav1.Now()
	status := &hs.Status
	status.ObservedGeneration = hs.Generation

	if obs.invalidErr != nil {
		msg := truncateMessage(obs.invalidErr.Error())

		status.Phase = v1alpha1.PhaseFailed
		status.Ready = false
		status.Message = msg

		for _, conditionType := range []string{ConditionTypeDNSResolved, ConditionTypeDiscoveryConfigured} {
			meta.SetStatusCondition(&status.Conditions, metav1.Condition{
				Type:               conditionType,
				Status:             metav1.ConditionFalse,
				ObservedGeneration: hs.Generation,
				LastTransitionTime: now,
				Reason:             ReasonInvalidConfiguration,
				Message:            msg,
			})
		}

		return
	}

	status.DNS = obs.dns
	status.Endpoints = obs.endpoints

	meta.SetStatusCondition(&status.Conditions, dnsCondition(obs.dns, hs.Generation, now))
	meta.SetStatusCondition(&status.Conditions, discoveryCondition(hs, obs.discoveryErr, now))

	switch {
	case len(obs.endpoints) == 0:
		status.Phase = v1alpha1.PhasePending
		status.Ready = false
		status.Message = "No endpoints available"
	case obs.dns != nil && !obs.dns.Success:
		status.Phase = v1alpha1.PhaseFailed
		status.Ready = false
		status.Message = truncateMessage("DNS resolution failed: " + obs.dns.ErrorMessage)
	case obs.discoveryErr != nil:
		status.Phase = v1alpha1.PhaseFailed
		status.Ready = false
		status.Message = truncateMessage("Service discovery not configured: " + obs.discoveryErr.Error())
	default:
		status.Phase = v1alpha1.PhaseRunning
		status.Ready = true
		status.Message = fmt.Sprintf("HeadlessService is running with %d endpoints", len(obs.endpoints))
	}
}

func dnsCondition(result *v1alpha1.DNSTestResult, generation int64, now metav1.Time) metav1.Condition {
	if result != nil && result.Success {
		return metav1.Condition{
			Type:               ConditionTypeDNSResolved,
			Status:             metav1.ConditionTrue,
			ObservedGeneration: generation,
			LastTransitionTime: now,
			Reason:             ReasonResolved,
			Message: fmt.Sprintf("%s resolved to %d addresses, %d pod records",
				result.ServiceDNS, len(result.ResolvedIPs), len(result.IndividualPodDNS)),
		}
	}

	msg := "DNS resolution was not attempted"
	if result != nil {
		msg = truncateMessage(result.ServiceDNS + ": " + result.ErrorMessage)
	}

	return metav1.Condition{
		Type:               ConditionTypeDNSResolved,
		Status:             metav1.ConditionFalse,
		ObservedGeneration: generation,
		LastTransitionTime: now,
		Reason:             ReasonResolutionFailed,
		Message:            msg,
	}
}

func discoveryCondition(hs *v1alpha1.HeadlessService, err error, now metav1.Time) metav1.Condition {
	if err == nil {
		return metav1.Condition{
			Type:               ConditionTypeDiscoveryConfigured,
			Status:             metav1.ConditionTrue,
			ObservedGeneration: hs.Generation,
			LastTransitionTime: now,
			Reason:             ReasonConfigured,
			Message:            fmt.Sprintf("%s discovery sidecar configured", hs.Spec.DiscoveryType()),
		}
	}

	return metav1.Condition{
		Type:               ConditionTypeDiscoveryConfigured,
		Status:             metav1.ConditionFalse,
		ObservedGeneration: hs.Generation,
		LastTransitionTime: now,
		Reason:             ReasonConfigurationFailed,
		Message:            truncateMessage(err.Error()),
	}
}

func truncateMessage(msg string) string {
	if len(msg) > maxConditionMessageLength {
		return msg[:maxConditionMessageLength-3] + "..."
	}

	return msg
}

// convertServicePorts maps spec ports to Service ports. An unset target port
// defaults to the service port and an unset protocol to TCP.
func convertServicePorts(ports []v1alpha1.ServicePort) []corev1.ServicePort {
	if len(ports) == 0 {
		return nil
	}

	servicePorts := make([]corev1.ServicePort, 0, len(ports))

	for _, port := range ports {
		targetPort := port.TargetPort
		if targetPort.Type == intstr.Int && targetPort.IntVal == 0 {
			targetPort = intstr.FromInt32(port.Port)
		}

		protocol := corev1.Protocol(port.Protocol)
		if protocol == "" {
			protocol = corev1.ProtocolTCP
		}

		servicePorts = append(servicePorts, corev1.ServicePort{
			Name:       port.Name,
			Port:       port.Port,
			TargetPort: targetPort,
			Protocol:   protocol,
		})
	}

	return servicePorts
}

// SetupWithManager sets up the controller with the Manager.
func (r *HeadlessServiceReconciler) SetupWithManager(mgr ctrl.Manager, mapper *DefaultsMapper) error {
	//nolint:wrapcheck // controller-runtime builder pattern
	return ctrl.NewControllerManagedBy(mgr).
		For(&v1alpha1.HeadlessService{}, builder.WithPredicates(predicate.Or(
			predicate.GenerationChangedPredicate{},
			predicate.AnnotationChangedPredicate{},
		))).
		Owns(&corev1.Service{}).
		Watches(
			&corev1.ConfigMap{},
			handler.EnqueueRequestsFromMapFunc(mapper.MapConfigMapToRequests),
		).
		Watches(
			//nolint:staticcheck // Endpoints is what status reports
			&corev1.Endpoints{},
			handler.EnqueueRequestsFromMapFunc(MapEndpointsToRequest),
		).
		Complete(r)
}
