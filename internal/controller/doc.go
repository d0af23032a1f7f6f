// Package controller implements the Kubernetes controller for HeadlessService resources.
//
// HeadlessServiceReconciler turns each HeadlessService into:
//
//   - a headless Service (ClusterIP None) with the same name and selector
//   - a {name}-dns-config ConfigMap describing the expected DNS records
//   - a {name}-{type}-discovery ConfigMap and a {name}-discovery-{type} sidecar
//     pod that polls endpoints with the configured strategy (dns, api, custom)
//   - optionally a {name}-dns-test pod, when the headless.k8s.lex.la/dns-test-pod
//     annotation is "true"
//
// Every pass resolves the service FQDN and each selected pod's FQDN against
// the configured DNS server and writes the result, the published endpoints
// and the DNSResolved and DiscoveryConfigured conditions to status. Passes
// repeat every two minutes.
//
// # Configuration
//
// Defaults for omitted DNS and discovery settings come from CLI flags or
// environment variables (HSC_* prefix) and may be overridden at runtime by
// the headless-service-defaults ConfigMap in the controller namespace.
//
// # Leader Election
//
// When running multiple replicas for high availability, enable leader election
// via --leader-elect flag to ensure only one controller actively reconciles
// resources at a time.
package controller
