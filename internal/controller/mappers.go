package controller

import (
	"context"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/reconcile"

	"github.com/lexfrei/headless-service-controller/api/v1alpha1"
)

// DefaultsMapper enqueues every HeadlessService when the defaults ConfigMap changes.
type DefaultsMapper struct {
	Client    client.Client
	Namespace string
	Name      string
}

// MapConfigMapToRequests maps a ConfigMap event to requests for all
// HeadlessServices, or to nothing when it is not the defaults ConfigMap.
func (m *DefaultsMapper) MapConfigMapToRequests(ctx context.Context, obj client.Object) []reconcile.Request {
	configMap, ok := obj.(*corev1.ConfigMap)
	if !ok {
		return nil
	}

	if m.Name == "" || configMap.Name != m.Name || configMap.Namespace != m.Namespace {
		return nil
	}

	var list v1alpha1.HeadlessServiceList

	err := m.Client.List(ctx, &list)
	if err != nil {
		log.FromContext(ctx).Error(err, "failed to list HeadlessServices for defaults change")

		return nil
	}

	requests := make([]reconcile.Request, 0, len(list.Items))

	for i := range list.Items {
		requests = append(requests, reconcile.Request{
			NamespacedName: types.NamespacedName{
				Name:      list.Items[i].Name,
				Namespace: list.Items[i].Namespace,
			},
		})
	}

	return requests
}

// MapEndpointsToRequest enqueues the HeadlessService sharing the Endpoints' name.
func MapEndpointsToRequest(_ context.Context, obj client.Object) []reconcile.Request {
	//nolint:staticcheck // Endpoints is what status reports
	if _, ok := obj.(*corev1.Endpoints); !ok {
		return nil
	}

	return []reconcile.Request{
		{NamespacedName: types.NamespacedName{Name: obj.GetName(), Namespace: obj.GetNamespace()}},
	}
}
