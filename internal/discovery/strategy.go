package discovery

import (
	"maps"
	"strconv"

	"github.com/lexfrei/headless-service-controller/api/v1alpha1"
	"github.com/lexfrei/headless-service-controller/internal/resources"
)

// DefaultClusterDomain is used when the DNS block carries no cluster domain.
const DefaultClusterDomain = "cluster.local"

// ConfigMap data keys read by the polling scripts.
const (
	KeyDiscoveryType   = "discovery-type"
	KeyServiceName     = "service-name"
	KeyNamespace       = "namespace"
	KeyRefreshInterval = "refresh-interval"
	KeyDNSServer       = "dns-server"
	KeyClusterDomain   = "cluster-domain"
	KeyAPIEndpoint     = "api-endpoint"
	KeyCustomEndpoint  = "custom-endpoint"

	// CustomKeyPrefix prefixes every user-supplied custom configuration key.
	CustomKeyPrefix = "custom-"
)

// Strategy is one discovery variant. Its configuration is typed and only
// flattened to ConfigMap data by ConfigData.
type Strategy interface {
	Type() v1alpha1.DiscoveryType
	ConfigData() map[string]string
	RenderPollingScript() string
}

// NewStrategy builds the variant for discoveryType from hs.Spec.
// An unsupported type yields a variant whose script reports the error.
func NewStrategy(hs *v1alpha1.HeadlessService, discoveryType v1alpha1.DiscoveryType) Strategy {
	base := common{
		serviceName: hs.Name,
		namespace:   hs.Namespace,
	}

	sd := hs.Spec.ServiceDiscovery
	if sd != nil {
		base.refreshInterval = sd.RefreshInterval
	}

	clusterDomain := hs.Spec.ClusterDomain()
	if clusterDomain == "" {
		clusterDomain = DefaultClusterDomain
	}

	switch discoveryType {
	case v1alpha1.DiscoveryTypeDNS:
		return &dnsStrategy{
			common:        base,
			dnsServer:     hs.Spec.DNS.DNSServerOr(""),
			clusterDomain: clusterDomain,
		}
	case v1alpha1.DiscoveryTypeAPI:
		return &apiStrategy{
			common:      base,
			apiEndpoint: APIEndpoint(hs.Name, hs.Namespace, clusterDomain),
		}
	case v1alpha1.DiscoveryTypeCustom:
		s := &customStrategy{common: base}
		if sd != nil {
			s.endpoint = sd.CustomEndpoint
			s.config = maps.Clone(sd.Config)
		}

		return s
	default:
		return &unknownStrategy{common: base, discoveryType: discoveryType}
	}
}

// APIEndpoint is the in-cluster Endpoints URL polled by the api strategy.
func APIEndpoint(name, namespace, clusterDomain string) string {
	return "https://kubernetes.default.svc." + clusterDomain +
		"/api/v1/namespaces/" + namespace + "/endpoints/" + name
}

type common struct {
	serviceName     string
	namespace       string
	refreshInterval int32
}

func (c common) data(discoveryType v1alpha1.DiscoveryType) map[string]string {
	return map[string]string{
		KeyDiscoveryType:   string(discoveryType),
		KeyServiceName:     c.serviceName,
		KeyNamespace:       c.namespace,
		KeyRefreshInterval: strconv.FormatInt(int64(c.refreshInterval), 10),
	}
}

type dnsStrategy struct {
	common

	dnsServer     string
	clusterDomain string
}

func (s *dnsStrategy) Type() v1alpha1.DiscoveryType { return v1alpha1.DiscoveryTypeDNS }

func (s *dnsStrategy) ConfigData() map[string]string {
	data := s.data(v1alpha1.DiscoveryTypeDNS)
	data[KeyDNSServer] = s.dnsServer
	data[KeyClusterDomain] = s.clusterDomain

	return data
}

func (s *dnsStrategy) RenderPollingScript() string { return dnsPollingScript }

// FQDN is the name the dns script looks up.
func (s *dnsStrategy) FQDN() string {
	return resources.ServiceFQDN(s.serviceName, s.namespace, s.clusterDomain)
}

type apiStrategy struct {
	common

	apiEndpoint string
}

func (s *apiStrategy) Type() v1alpha1.DiscoveryType { return v1alpha1.DiscoveryTypeAPI }

func (s *apiStrategy) ConfigData() map[string]string {
	data := s.data(v1alpha1.DiscoveryTypeAPI)
	data[KeyAPIEndpoint] = s.apiEndpoint

	return data
}

func (s *apiStrategy) RenderPollingScript() string { return apiPollingScript }

type customStrategy struct {
	common

	endpoint string
	config   map[string]string
}

func (s *customStrategy) Type() v1alpha1.DiscoveryType { return v1alpha1.DiscoveryTypeCustom }

// ConfigData publishes every user key as custom-<key>. Fixed keys are
// written last so a colliding user key cannot replace them.
func (s *customStrategy) ConfigData() map[string]string {
	data := make(map[string]string, len(s.config)+5)

	for key, value := range s.config {
		data[CustomKeyPrefix+key] = value
	}

	maps.Copy(data, s.data(v1alpha1.DiscoveryTypeCustom))
	data[KeyCustomEndpoint] = s.endpoint

	return data
}

func (s *customStrategy) RenderPollingScript() string { return customPollingScript }

type unknownStrategy struct {
	common

	discoveryType v1alpha1.DiscoveryType
}

func (s *unknownStrategy) Type() v1alpha1.DiscoveryType { return s.discoveryType }

func (s *unknownStrategy) ConfigData() map[string]string {
	return s.data(s.discoveryType)
}

func (s *unknownStrategy) RenderPollingScript() string { return unknownPollingScript }
