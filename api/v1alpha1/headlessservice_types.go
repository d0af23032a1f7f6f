package v1alpha1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"
)

// DiscoveryType selects the strategy a discovery sidecar uses to observe endpoints.
// +kubebuilder:validation:Enum=dns;api;custom
type DiscoveryType string

const (
	// DiscoveryTypeDNS polls the service FQDN with nslookup.
	DiscoveryTypeDNS DiscoveryType = "dns"

	// DiscoveryTypeAPI polls the Endpoints API with the pod service account.
	DiscoveryTypeAPI DiscoveryType = "api"

	// DiscoveryTypeCustom polls a user-supplied HTTP endpoint.
	DiscoveryTypeCustom DiscoveryType = "custom"
)

// Kind is the kind name of the HeadlessService resource.
const Kind = "HeadlessService"

// DiscoveryTypes lists every supported discovery type.
func DiscoveryTypes() []DiscoveryType {
	return []DiscoveryType{DiscoveryTypeDNS, DiscoveryTypeAPI, DiscoveryTypeCustom}
}

// IsValid reports whether the type is one of the supported discovery types.
func (t DiscoveryType) IsValid() bool {
	switch t {
	case DiscoveryTypeDNS, DiscoveryTypeAPI, DiscoveryTypeCustom:
		return true
	default:
		return false
	}
}

// ServicePort describes a port exposed by the backing headless Service.
type ServicePort struct {
	// Name of the port.
	// +optional
	Name string `json:"name,omitempty"`

	// Port exposed by the Service.
	// +kubebuilder:validation:Minimum=1
	// +kubebuilder:validation:Maximum=65535
	Port int32 `json:"port"`

	// TargetPort on the selected pods. Defaults to Port.
	// +optional
	TargetPort intstr.IntOrString `json:"targetPort,omitempty"`

	// Protocol of the port.
	// +optional
	// +kubebuilder:validation:Enum=TCP;UDP;SCTP
	Protocol string `json:"protocol,omitempty"`
}

// DNSSpec configures DNS verification for a headless service.
type DNSSpec struct {
	// ClusterDomain is the cluster DNS suffix, usually "cluster.local".
	// +optional
	ClusterDomain string `json:"clusterDomain,omitempty"`

	// DNSServer is the resolver queried directly on port 53.
	// +optional
	DNSServer string `json:"dnsServer,omitempty"`

	// TTL is the record TTL in seconds published to the DNS ConfigMap.
	// +optional
	// +kubebuilder:validation:Minimum=0
	TTL int32 `json:"ttl,omitempty"`
}

// ServiceDiscoverySpec configures the discovery sidecar for a headless service.
type ServiceDiscoverySpec struct {
	// Type is the discovery strategy.
	// +kubebuilder:validation:Required
	Type DiscoveryType `json:"type"`

	// RefreshInterval is the polling period in seconds.
	// +optional
	// +kubebuilder:validation:Minimum=0
	RefreshInterval int32 `json:"refreshInterval,omitempty"`

	// CustomEndpoint is the URL polled by the custom strategy.
	// Required when Type is "custom".
	// +optional
	CustomEndpoint string `json:"customEndpoint,omitempty"`

	// Config holds arbitrary keys handed to the custom strategy.
	// Each key is published as "custom-<key>".
	// +optional
	Config map[string]string `json:"config,omitempty"`
}

// HeadlessServiceSpec defines the desired state of HeadlessService.
type HeadlessServiceSpec struct {
	// Selector matches the pods backing the service.
	// +kubebuilder:validation:Required
	Selector map[string]string `json:"selector"`

	// Ports exposed by the backing headless Service.
	// +optional
	Ports []ServicePort `json:"ports,omitempty"`

	// DNS configures DNS verification.
	// +optional
	DNS *DNSSpec `json:"dns,omitempty"`

	// ServiceDiscovery configures the discovery sidecar.
	// +optional
	ServiceDiscovery *ServiceDiscoverySpec `json:"serviceDiscovery,omitempty"`
}

// PodDNSRecord is a pod whose per-pod FQDN resolved.
type PodDNSRecord struct {
	PodName string `json:"podName,omitempty"`
	PodIP   string `json:"podIP,omitempty"`
	DNSName string `json:"dnsName,omitempty"`
}

// DNSTestResult is the outcome of a DNS verification run.
type DNSTestResult struct {
	ServiceDNS       string         `json:"serviceDNS,omitempty"`
	ResolvedIPs      []string       `json:"resolvedIPs,omitempty"`
	IndividualPodDNS []PodDNSRecord `json:"individualPodDNS,omitempty"`
	Success          bool           `json:"success,omitempty"`
	ErrorMessage     string         `json:"errorMessage,omitempty"`
}

// Phase values reported in HeadlessServiceStatus.
const (
	PhasePending = "Pending"
	PhaseRunning = "Running"
	PhaseFailed  = "Failed"
)

// HeadlessServiceStatus defines the observed state of HeadlessService.
type HeadlessServiceStatus struct {
	// +optional
	Phase string `json:"phase,omitempty"`

	// +optional
	Ready bool `json:"ready,omitempty"`

	// Endpoints are the addresses currently published for the service.
	// +optional
	Endpoints []string `json:"endpoints,omitempty"`

	// DNS is the latest DNS verification result.
	// +optional
	DNS *DNSTestResult `json:"dns,omitempty"`

	// +optional
	Message string `json:"message,omitempty"`

	// +optional
	ObservedGeneration int64 `json:"observedGeneration,omitempty"`

	// +optional
	// +listType=map
	// +listMapKey=type
	Conditions []metav1.Condition `json:"conditions,omitempty"`
}

// +kubebuilder:object:root=true
// +kubebuilder:subresource:status
// +kubebuilder:resource:scope=Namespaced,shortName=hsvc
// +kubebuilder:printcolumn:name="Phase",type=string,JSONPath=`.status.phase`
// +kubebuilder:printcolumn:name="Ready",type=boolean,JSONPath=`.status.ready`
// +kubebuilder:printcolumn:name="Discovery",type=string,JSONPath=`.spec.serviceDiscovery.type`
// +kubebuilder:printcolumn:name="Age",type=date,JSONPath=`.metadata.creationTimestamp`

// HeadlessService is the Schema for the headlessservices API.
type HeadlessService struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   HeadlessServiceSpec   `json:"spec,omitempty"`
	Status HeadlessServiceStatus `json:"status,omitempty"`
}

// +kubebuilder:object:root=true

// HeadlessServiceList contains a list of HeadlessService.
type HeadlessServiceList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []HeadlessService `json:"items"`
}

func init() {
	SchemeBuilder.Register(&HeadlessService{}, &HeadlessServiceList{})
}

// ClusterDomain returns the configured cluster domain, or "" when DNS is unset.
func (s *HeadlessServiceSpec) ClusterDomain() string {
	if s.DNS == nil {
		return ""
	}
	return s.DNS.ClusterDomain
}

// DNSServerOr returns the configured DNS server, falling back to def.
func (d *DNSSpec) DNSServerOr(def string) string {
	if d == nil || d.DNSServer == "" {
		return def
	}
	return d.DNSServer
}

// DiscoveryType returns the configured discovery type, or "" when discovery is unset.
func (s *HeadlessServiceSpec) DiscoveryType() DiscoveryType {
	if s.ServiceDiscovery == nil {
		return ""
	}
	return s.ServiceDiscovery.Type
}
