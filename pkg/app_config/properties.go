package app_config

import (
	"strings"

	"github.com/magiconair/properties"
	"github.com/pkg/errors"
)

// LoadClientProperties reads a java style properties file of client settings
// (bootstrap.servers=..., security.protocol=..., and so on).  Keys are
// returned lower cased with surrounding whitespace removed from values.
// ${...} references are left as written since jaas configs may contain them.
func LoadClientProperties(path string) (map[string]string, error) {
	loader := properties.Loader{
		Encoding:         properties.UTF8,
		DisableExpansion: true,
	}

	p, err := loader.LoadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read client config %s", path)
	}

	props := make(map[string]string, p.Len())
	for key, value := range p.Map() {
		props[strings.ToLower(strings.TrimSpace(key))] = strings.TrimSpace(value)
	}

	return props, nil
}
