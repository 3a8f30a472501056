package membership

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/couchbase/cluster-ready/utils/netutils"
)

// EndpointMap maps a security protocol (or listener name) onto the endpoint a
// member accepts connections with it on.
type EndpointMap map[string]netutils.Endpoint

type memberMetadataJson struct {
	Endpoints                   []string          `json:"endpoints"`
	ListenerSecurityProtocolMap map[string]string `json:"listener_security_protocol_map,omitempty"`
	Host                        string            `json:"host,omitempty"`
	Port                        int               `json:"port,omitempty"`
}

// ParseEndpointMap decodes the metadata a member registers itself with.  Each
// entry of `endpoints` has the form `protocol://host:port`.  Named listeners
// are additionally indexed by the security protocol they map onto.
func ParseEndpointMap(metadata []byte) (EndpointMap, error) {
	var parsed memberMetadataJson
	err := json.Unmarshal(metadata, &parsed)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidMetadata, err)
	}

	endpoints := make(EndpointMap)
	for _, entry := range parsed.Endpoints {
		protocol, hostPort, ok := strings.Cut(entry, "://")
		if !ok || protocol == "" {
			return nil, fmt.Errorf("%w: malformed endpoint %q", ErrInvalidMetadata, entry)
		}

		endpoint, err := netutils.ParseEndpoint(hostPort, 0)
		if err != nil {
			return nil, fmt.Errorf("%w: endpoint %q: %s", ErrInvalidMetadata, entry, err)
		}

		// a repeated protocol replaces the earlier entry
		endpoints[strings.ToUpper(protocol)] = endpoint
	}

	// listener names are indexed by their security protocol after all of the
	// explicitly named protocols so that an exact match always wins
	listeners := make([]string, 0, len(parsed.ListenerSecurityProtocolMap))
	for listener := range parsed.ListenerSecurityProtocolMap {
		listeners = append(listeners, listener)
	}
	sort.Strings(listeners)

	for _, listener := range listeners {
		endpoint, ok := endpoints[strings.ToUpper(listener)]
		if !ok {
			continue
		}

		securityProtocol := strings.ToUpper(parsed.ListenerSecurityProtocolMap[listener])
		if _, ok := endpoints[securityProtocol]; !ok {
			endpoints[securityProtocol] = endpoint
		}
	}

	// registrations from very old brokers only carry a plaintext host and port
	if len(parsed.Endpoints) == 0 && parsed.Host != "" && parsed.Port > 0 {
		endpoints["PLAINTEXT"] = netutils.Endpoint{Host: parsed.Host, Port: parsed.Port}
	}

	return endpoints, nil
}

// Lookup finds the endpoint for a security protocol, ignoring case.
func (m EndpointMap) Lookup(protocol string) (netutils.Endpoint, bool) {
	endpoint, ok := m[strings.ToUpper(protocol)]
	return endpoint, ok
}

// Protocols returns the sorted list of protocols in the map.
func (m EndpointMap) Protocols() []string {
	protocols := make([]string, 0, len(m))
	for protocol := range m {
		protocols = append(protocols, protocol)
	}
	sort.Strings(protocols)
	return protocols
}
