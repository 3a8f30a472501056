// Package jaas extracts login module options from JAAS style configuration,
// as used by the ZooKeeper `Client` section and the Kafka `sasl.jaas.config`
// client property.
package jaas

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
)

var (
	ErrSectionNotFound = errors.New("jaas section not found")
	ErrNoCredentials   = errors.New("jaas entry has no username/password")
)

var sectionPattern = regexp.MustCompile(`(?s)([A-Za-z0-9_\-]+)\s*\{(.*?)\}\s*;`)
var optionPattern = regexp.MustCompile(`([A-Za-z0-9_.\-]+)\s*=\s*"((?:[^"\\]|\\.)*)"|([A-Za-z0-9_.\-]+)\s*=\s*([^\s;"]+)`)

// Entry is a single login module entry.
type Entry struct {
	LoginModule string
	Options     map[string]string
}

func (e *Entry) Credentials() (string, string, error) {
	username := e.Options["username"]
	password := e.Options["password"]
	if username == "" {
		return "", "", ErrNoCredentials
	}

	return username, password, nil
}

// ParseEntry parses a single login module entry of the form
// `module.Name required key="value" key2="value2";`.
func ParseEntry(s string) (*Entry, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, ";")

	fields := strings.Fields(s)
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty jaas entry")
	}

	entry := &Entry{
		LoginModule: fields[0],
		Options:     make(map[string]string),
	}

	for _, match := range optionPattern.FindAllStringSubmatch(s, -1) {
		if match[1] != "" {
			entry.Options[match[1]] = strings.ReplaceAll(match[2], `\"`, `"`)
		} else {
			entry.Options[match[3]] = match[4]
		}
	}

	return entry, nil
}

// ParseSections parses a JAAS configuration file body into its named sections.
func ParseSections(s string) (map[string]*Entry, error) {
	sections := make(map[string]*Entry)
	for _, match := range sectionPattern.FindAllStringSubmatch(s, -1) {
		entry, err := ParseEntry(match[2])
		if err != nil {
			return nil, fmt.Errorf("failed to parse jaas section %s: %w", match[1], err)
		}

		sections[match[1]] = entry
	}

	return sections, nil
}

// LoadSection reads a JAAS configuration file and returns the named section.
func LoadSection(path string, section string) (*Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read jaas config: %w", err)
	}

	sections, err := ParseSections(string(data))
	if err != nil {
		return nil, err
	}

	entry, ok := sections[section]
	if !ok {
		return nil, fmt.Errorf("%w: %s in %s", ErrSectionNotFound, section, path)
	}

	return entry, nil
}
