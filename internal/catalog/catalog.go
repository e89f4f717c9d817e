// Package catalog builds the tool catalog for one service by joining
// its handler map with its JSON-Schema tool document.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/toolhost/toolhost/internal/errortypes"
)

// ToolSpec is one catalog entry: the externally visible tool shape
// plus the handler reference it dispatches to.
type ToolSpec struct {
	Name        string
	Description string

	// InputSchema is the tool's JSON Schema, carried verbatim from the
	// schema document's "parameters" field (renamed to the wire name).
	InputSchema json.RawMessage

	// HandlerRef is the dotted handler path from the service's handler
	// map, e.g. "clock.get_time".
	HandlerRef string

	// Fields holds the full renamed descriptor, preserving keys the
	// core does not interpret.
	Fields map[string]json.RawMessage
}

// Catalog is the full set of tools known to one server instance.
// Built once per process start; immutable afterwards. Document order
// is preserved in Specs; Lookup is by name.
type Catalog struct {
	specs []ToolSpec
	index map[string]int
}

// Specs returns the catalog entries in schema-document order.
func (c *Catalog) Specs() []ToolSpec {
	return c.specs
}

// Lookup returns the spec for name, reporting whether it exists.
func (c *Catalog) Lookup(name string) (ToolSpec, bool) {
	i, ok := c.index[name]
	if !ok {
		return ToolSpec{}, false
	}
	return c.specs[i], true
}

// Len returns the number of tools in the catalog.
func (c *Catalog) Len() int {
	return len(c.specs)
}

// regenerateHint tells the operator how to rebuild a broken or missing
// schema document.
func regenerateHint(service string) string {
	return fmt.Sprintf("regenerate it with `toolhost schema-gen %s`", service)
}

// Load joins the service's handler map (tool name to dotted handler
// ref) with the schema document at schemaPath. Every failure here is a
// load-time configuration error, raised before any port is reaped or
// bound; a tool present in one source but not the other is never a
// call-time surprise.
func Load(service string, handlers map[string]string, schemaPath string) (*Catalog, error) {
	if len(handlers) == 0 {
		return nil, errortypes.ConfigError(
			fmt.Errorf("service %q registered no handler map", service),
			"missing handler map").
			WithField("service", service)
	}

	data, err := os.ReadFile(schemaPath)
	if err != nil {
		return nil, errortypes.ConfigError(
			fmt.Errorf("cannot read schema document %s: %w; %s", schemaPath, err, regenerateHint(service)),
			"missing schema document").
			WithField("service", service).
			WithField("path", schemaPath)
	}

	var descriptors []map[string]json.RawMessage
	if err := json.Unmarshal(data, &descriptors); err != nil {
		return nil, errortypes.ConfigError(
			fmt.Errorf("schema document %s is not a JSON array of tool descriptors: %w; %s",
				schemaPath, err, regenerateHint(service)),
			"malformed schema document").
			WithField("service", service).
			WithField("path", schemaPath)
	}

	cat := &Catalog{index: make(map[string]int, len(descriptors))}
	for i, descriptor := range descriptors {
		spec, err := specFromDescriptor(service, i, descriptor)
		if err != nil {
			return nil, err
		}

		ref, ok := handlers[spec.Name]
		if !ok {
			return nil, errortypes.ConfigError(
				fmt.Errorf("tool %q appears in the schema document but has no handler registered", spec.Name),
				"tool without handler").
				WithField("service", service).
				WithField("tool", spec.Name)
		}
		spec.HandlerRef = ref

		if _, dup := cat.index[spec.Name]; dup {
			return nil, errortypes.ConfigError(
				fmt.Errorf("tool %q appears more than once in the schema document", spec.Name),
				"duplicate tool").
				WithField("service", service).
				WithField("tool", spec.Name)
		}
		cat.index[spec.Name] = len(cat.specs)
		cat.specs = append(cat.specs, spec)
	}

	// The join must hold in both directions.
	for name := range handlers {
		if _, ok := cat.index[name]; !ok {
			return nil, errortypes.ConfigError(
				fmt.Errorf("tool %q has a handler but no entry in the schema document; %s",
					name, regenerateHint(service)),
				"handler without schema").
				WithField("service", service).
				WithField("tool", name)
		}
	}

	return cat, nil
}

// specFromDescriptor validates one schema-document entry and renames
// its "parameters" key to the wire name "inputSchema", preserving all
// other keys.
func specFromDescriptor(service string, position int, descriptor map[string]json.RawMessage) (ToolSpec, error) {
	var spec ToolSpec

	rawName, ok := descriptor["name"]
	if !ok {
		return spec, errortypes.ConfigError(
			fmt.Errorf("descriptor at position %d has no \"name\" field; %s", position, regenerateHint(service)),
			"malformed tool descriptor").
			WithField("service", service)
	}
	if err := json.Unmarshal(rawName, &spec.Name); err != nil {
		return spec, errortypes.ConfigError(
			fmt.Errorf("descriptor at position %d has a non-string name: %w", position, err),
			"malformed tool descriptor").
			WithField("service", service)
	}

	params, ok := descriptor["parameters"]
	if !ok {
		return spec, errortypes.ConfigError(
			fmt.Errorf("tool %q has no \"parameters\" field in the schema document; %s",
				spec.Name, regenerateHint(service)),
			"tool without parameters").
			WithField("service", service).
			WithField("tool", spec.Name)
	}
	spec.InputSchema = params

	if rawDesc, ok := descriptor["description"]; ok {
		// Tolerate a missing description, not a malformed one.
		if err := json.Unmarshal(rawDesc, &spec.Description); err != nil {
			return spec, errortypes.ConfigError(
				fmt.Errorf("tool %q has a non-string description: %w", spec.Name, err),
				"malformed tool descriptor").
				WithField("service", service).
				WithField("tool", spec.Name)
		}
	}

	spec.Fields = make(map[string]json.RawMessage, len(descriptor))
	for k, v := range descriptor {
		if k == "parameters" {
			k = "inputSchema"
		}
		spec.Fields[k] = v
	}

	return spec, nil
}
