// Package portmap computes the deterministic service-name to port
// assignment for one services root.
package portmap

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/toolhost/toolhost/internal/errortypes"
)

// Assignment is the computed name-to-port mapping for one discoverable
// set. It is a pure function of that set: built once per start,
// identical across restarts given the same directories, never
// persisted. Adding an alphabetically earlier service shifts every
// later port.
type Assignment struct {
	basePort int
	ports    map[string]int
	names    []string
}

// Discover lists the discoverable service names under root:
// subdirectories in ascending order, excluding hidden and internal
// (underscore-prefixed) ones.
func Discover(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, errortypes.ConfigError(err, "cannot read services root").
			WithField("root", root)
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// New builds the assignment for the discoverable set under root,
// giving the alphabetically first service basePort and each later one
// the next consecutive port, no gaps.
func New(root string, basePort int) (*Assignment, error) {
	names, err := Discover(root)
	if err != nil {
		return nil, err
	}
	return FromNames(names, basePort), nil
}

// FromNames builds an assignment directly from an already-discovered
// name set. Names are sorted; duplicates collapse.
func FromNames(names []string, basePort int) *Assignment {
	sorted := make([]string, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		if !seen[n] {
			seen[n] = true
			sorted = append(sorted, n)
		}
	}
	sort.Strings(sorted)

	ports := make(map[string]int, len(sorted))
	for i, name := range sorted {
		ports[name] = basePort + i
	}

	return &Assignment{basePort: basePort, ports: ports, names: sorted}
}

// Port returns the port assigned to service. A name outside the
// discoverable set is a configuration error, raised before any network
// resource is touched.
func (a *Assignment) Port(service string) (int, error) {
	port, ok := a.ports[service]
	if !ok {
		return 0, errortypes.ConfigError(
			fmt.Errorf("service %q is not in the discoverable set %v", service, a.names),
			"unknown service").
			WithField("service", service)
	}
	return port, nil
}

// Services returns the discoverable names in assignment order.
func (a *Assignment) Services() []string {
	return append([]string{}, a.names...)
}
