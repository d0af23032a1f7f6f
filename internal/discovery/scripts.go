package discovery

// Polling scripts run by the discovery sidecar. Each reads its parameters
// from the ConfigMap mounted at /etc/discovery. A refresh interval that is
// not a positive integer falls back to 30 seconds.

const dnsPollingScript = `
REFRESH_INTERVAL=$(cat /etc/discovery/refresh-interval)
SERVICE_NAME=$(cat /etc/discovery/service-name)
NAMESPACE=$(cat /etc/discovery/namespace)
CLUSTER_DOMAIN=$(cat /etc/discovery/cluster-domain)
DNS_SERVER=$(cat /etc/discovery/dns-server 2>/dev/null)
[ "$REFRESH_INTERVAL" -gt 0 ] 2>/dev/null || REFRESH_INTERVAL=30

while true; do
	echo "Performing DNS discovery for $SERVICE_NAME..."
	nslookup "$SERVICE_NAME.$NAMESPACE.svc.$CLUSTER_DOMAIN" $DNS_SERVER
	sleep "$REFRESH_INTERVAL"
done
`

const apiPollingScript = `
apk add --no-cache curl jq
REFRESH_INTERVAL=$(cat /etc/discovery/refresh-interval)
API_ENDPOINT=$(cat /etc/discovery/api-endpoint)
SA_DIR=/var/run/secrets/kubernetes.io/serviceaccount
[ "$REFRESH_INTERVAL" -gt 0 ] 2>/dev/null || REFRESH_INTERVAL=30

while true; do
	echo "Performing API discovery..."
	curl -s --cacert "$SA_DIR/ca.crt" \
		-H "Authorization: Bearer $(cat $SA_DIR/token)" \
		"$API_ENDPOINT" | jq -r '.subsets[]?.addresses[]?.ip'
	sleep "$REFRESH_INTERVAL"
done
`

const customPollingScript = `
apk add --no-cache curl jq
REFRESH_INTERVAL=$(cat /etc/discovery/refresh-interval)
CUSTOM_ENDPOINT=$(cat /etc/discovery/custom-endpoint)
[ "$REFRESH_INTERVAL" -gt 0 ] 2>/dev/null || REFRESH_INTERVAL=30

while true; do
	echo "Performing custom discovery..."
	curl -s "$CUSTOM_ENDPOINT"
	sleep "$REFRESH_INTERVAL"
done
`

const unknownPollingScript = `echo "Unknown discovery type: $(cat /etc/discovery/discovery-type)" >&2 && sleep 3600`
