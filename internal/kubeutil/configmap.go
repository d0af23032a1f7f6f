// Package kubeutil holds Kubernetes object write helpers shared by the managers.
package kubeutil

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/lexfrei/headless-service-controller/internal/metrics"
)

// CreateOrUpdateConfigMap creates desired. When the ConfigMap already exists
// its data is overwritten and desired labels are merged into it. Conflicts on
// the update are returned to the caller.
func CreateOrUpdateConfigMap(
	ctx context.Context,
	c client.Client,
	collector metrics.Collector,
	desired *corev1.ConfigMap,
) error {
	start := time.Now()
	err := c.Create(ctx, desired)
	metrics.ObserveAPICall(ctx, collector, "create", "configmaps", start, err)

	if err == nil {
		return nil
	}

	if !apierrors.IsAlreadyExists(err) {
		return errors.Wrapf(err, "failed to create configmap %s", desired.Name)
	}

	existing := &corev1.ConfigMap{}

	start = time.Now()
	err = c.Get(ctx, client.ObjectKeyFromObject(desired), existing)
	metrics.ObserveAPICall(ctx, collector, "get", "configmaps", start, err)

	if err != nil {
		return errors.Wrapf(err, "failed to get configmap %s", desired.Name)
	}

	existing.Data = desired.Data
	if existing.Labels == nil {
		existing.Labels = map[string]string{}
	}

	for k, v := range desired.Labels {
		existing.Labels[k] = v
	}

	start = time.Now()
	err = c.Update(ctx, existing)
	metrics.ObserveAPICall(ctx, collector, "update", "configmaps", start, err)

	if err != nil {
		return errors.Wrapf(err, "failed to update configmap %s", desired.Name)
	}

	return nil
}
