package netutils

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

var (
	ErrEmptyHost         = errors.New("endpoint host must not be empty")
	ErrInvalidPort       = errors.New("endpoint port is invalid")
	ErrNoEndpoints       = errors.New("no endpoints were specified")
	ErrMalformedEndpoint = errors.New("endpoint is malformed")
)

// Endpoint is a single host/port pair.  Endpoints are values and are never
// modified after parsing.
type Endpoint struct {
	Host string
	Port int
}

func (e Endpoint) String() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// Validate checks an endpoint which was built rather than parsed, for example
// one decoded from a broker's metadata response.
func (e Endpoint) Validate() error {
	if e.Host == "" {
		return ErrEmptyHost
	}
	if e.Port <= 0 || e.Port > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPort, e.Port)
	}
	return nil
}

// ParseEndpoint parses `host`, `host:port` or `[v6addr]:port`.  If no port is
// included, defaultPort is used.  A defaultPort of 0 makes the port mandatory.
func ParseEndpoint(s string, defaultPort int) (Endpoint, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Endpoint{}, ErrEmptyHost
	}

	host := s
	portStr := ""

	if strings.HasPrefix(s, "[") || strings.Count(s, ":") == 1 {
		splitHost, splitPort, err := net.SplitHostPort(s)
		if err != nil {
			// a bracketed address with no port is still valid
			if strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]") {
				splitHost = strings.Trim(s, "[]")
				splitPort = ""
			} else {
				return Endpoint{}, fmt.Errorf("%w: %s: %s", ErrMalformedEndpoint, s, err)
			}
		}

		host = splitHost
		portStr = splitPort
	}

	if host == "" {
		return Endpoint{}, fmt.Errorf("%w: %s", ErrEmptyHost, s)
	}

	port := defaultPort
	if portStr != "" {
		parsedPort, err := strconv.Atoi(portStr)
		if err != nil {
			return Endpoint{}, fmt.Errorf("%w: %s", ErrInvalidPort, s)
		}

		port = parsedPort
	}

	if port <= 0 || port > 65535 {
		return Endpoint{}, fmt.Errorf("%w: %s", ErrInvalidPort, s)
	}

	return Endpoint{
		Host: host,
		Port: port,
	}, nil
}

// ParseEndpointList parses a comma separated list of endpoints, preserving the
// order they were listed in.  Empty entries are skipped.
func ParseEndpointList(s string, defaultPort int) ([]Endpoint, error) {
	var endpoints []Endpoint
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}

		endpoint, err := ParseEndpoint(part, defaultPort)
		if err != nil {
			return nil, err
		}

		endpoints = append(endpoints, endpoint)
	}

	if len(endpoints) == 0 {
		return nil, ErrNoEndpoints
	}

	return endpoints, nil
}

// JoinEndpoints formats a list of endpoints back into connection string form.
func JoinEndpoints(endpoints []Endpoint) string {
	parts := make([]string, len(endpoints))
	for i, endpoint := range endpoints {
		parts[i] = endpoint.String()
	}

	return strings.Join(parts, ",")
}
