package coordination

import (
	"fmt"
	"path"
	"strings"

	"github.com/couchbase/cluster-ready/utils/netutils"
)

// DefaultPort is used for servers in a connect string which omit a port.
const DefaultPort = 2181

// ConnectString is a parsed ensemble connect string of the form
// `host1:2181,host2:2181/optional/chroot`.
type ConnectString struct {
	Servers []netutils.Endpoint
	Chroot  string
}

func ParseConnectString(s string) (ConnectString, error) {
	s = strings.TrimSpace(s)

	hosts := s
	chroot := ""
	if idx := strings.Index(s, "/"); idx >= 0 {
		hosts = s[:idx]
		chroot = path.Clean(s[idx:])
		if chroot == "/" {
			chroot = ""
		}
	}

	servers, err := netutils.ParseEndpointList(hosts, DefaultPort)
	if err != nil {
		return ConnectString{}, fmt.Errorf("invalid connect string %q: %w", s, err)
	}

	return ConnectString{
		Servers: servers,
		Chroot:  chroot,
	}, nil
}

// ServerAddresses returns the servers in host:port form.
func (c ConnectString) ServerAddresses() []string {
	addrs := make([]string, len(c.Servers))
	for i, server := range c.Servers {
		addrs[i] = server.String()
	}
	return addrs
}

// Path resolves p against the chroot of the connect string.
func (c ConnectString) Path(p string) string {
	if c.Chroot == "" {
		return p
	}

	return path.Join(c.Chroot, p)
}

func (c ConnectString) String() string {
	return netutils.JoinEndpoints(c.Servers) + c.Chroot
}
