package metrics

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	apierrors "k8s.io/apimachinery/pkg/api/errors"

	"github.com/lexfrei/headless-service-controller/internal/dnsprobe"
	"github.com/lexfrei/headless-service-controller/internal/resources"
)

// Error type constants for metrics labels.
const (
	ErrorTypeValidation  = "validation"
	ErrorTypeDNS         = "dns"
	ErrorTypeConflict    = "conflict"
	ErrorTypeNotFound    = "not_found"
	ErrorTypeAuth        = "auth"
	ErrorTypeRateLimit   = "rate_limit"
	ErrorTypeServerError = "server_error"
	ErrorTypeClientError = "client_error"
	ErrorTypeTimeout     = "timeout"
	ErrorTypeNetwork     = "network"
	ErrorTypeUnknown     = "unknown"
)

// ClassifyError classifies an error from a manager or the Kubernetes API for metrics labeling.
// Returns an empty string for nil errors.
func ClassifyError(err error) string {
	if err == nil {
		return ""
	}

	if resources.IsValidation(err) {
		return ErrorTypeValidation
	}

	if errors.Is(err, dnsprobe.ErrResolution) {
		return ErrorTypeDNS
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTypeTimeout
	}

	switch {
	case apierrors.IsAlreadyExists(err) || apierrors.IsConflict(err):
		return ErrorTypeConflict
	case apierrors.IsNotFound(err):
		return ErrorTypeNotFound
	}

	// Typed status errors from the API server
	var status apierrors.APIStatus
	if errors.As(err, &status) {
		return classifyByStatusCode(int(status.Status().Code))
	}

	// Fallback for transport errors based on error message
	return classifyByErrorMessage(err.Error())
}

func classifyByStatusCode(statusCode int) string {
	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return ErrorTypeAuth
	case statusCode == http.StatusTooManyRequests:
		return ErrorTypeRateLimit
	case statusCode == http.StatusGatewayTimeout:
		return ErrorTypeTimeout
	case statusCode >= http.StatusInternalServerError && statusCode < 600:
		return ErrorTypeServerError
	case statusCode >= http.StatusBadRequest && statusCode < http.StatusInternalServerError:
		return ErrorTypeClientError
	default:
		return ErrorTypeUnknown
	}
}

func classifyByErrorMessage(errStr string) string {
	errLower := strings.ToLower(errStr)

	switch {
	case strings.Contains(errLower, "timeout") || strings.Contains(errLower, "deadline"):
		return ErrorTypeTimeout
	case strings.Contains(errLower, "connection refused") || strings.Contains(errLower, "no such host"):
		return ErrorTypeNetwork
	default:
		return ErrorTypeUnknown
	}
}

// ObserveAPICall records a Kubernetes API call that started at start and
// returned err, classifying the error when there is one.
func ObserveAPICall(ctx context.Context, c Collector, verb, resource string, start time.Time, err error) {
	if err != nil {
		c.RecordAPICall(ctx, verb, resource, StatusError, time.Since(start))
		c.RecordAPIError(ctx, verb, ClassifyError(err))

		return
	}

	c.RecordAPICall(ctx, verb, resource, StatusSuccess, time.Since(start))
}

// ObserveAPICallIgnoreNotFound is ObserveAPICall with NotFound recorded as
// success, for gets of optional objects and deletes of objects that may be gone.
func ObserveAPICallIgnoreNotFound(ctx context.Context, c Collector, verb, resource string, start time.Time, err error) {
	if apierrors.IsNotFound(err) {
		err = nil
	}

	ObserveAPICall(ctx, c, verb, resource, start, err)
}
