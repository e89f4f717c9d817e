package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/toolhost/toolhost/internal/errortypes"
	"github.com/toolhost/toolhost/internal/handler"
	"github.com/toolhost/toolhost/internal/logger"
)

// skeletonDescriptor is one emitted tool entry. The operator fills in
// the description and parameter properties by hand.
type skeletonDescriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

var emptyObjectSchema = json.RawMessage(`{"type": "object", "properties": {}}`)

func runSchemaGen(service string, appLogger *logger.Logger) error {
	cfg, err := loadConfig()
	if err != nil {
		return errortypes.ConfigError(err, "failed to load configuration")
	}

	registry, err := handler.LookupService(service)
	if err != nil {
		return err
	}

	handlerMap := registry.HandlerMap()
	if len(handlerMap) == 0 {
		return errortypes.ConfigError(
			fmt.Errorf("service %q registered no tools", service),
			"nothing to generate")
	}

	names := make([]string, 0, len(handlerMap))
	for name := range handlerMap {
		names = append(names, name)
	}
	sort.Strings(names)

	descriptors := make([]skeletonDescriptor, len(names))
	for i, name := range names {
		descriptors[i] = skeletonDescriptor{
			Name:       name,
			Parameters: emptyObjectSchema,
		}
	}

	encoded, err := json.MarshalIndent(descriptors, "", "  ")
	if err != nil {
		return errortypes.InternalError(err, "cannot encode schema document")
	}

	out := cfg.SchemaPath(service)
	if _, err := os.Stat(out); err == nil {
		return errortypes.ConfigError(
			fmt.Errorf("schema document %s already exists, remove it first", out),
			"refusing to overwrite")
	}
	if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
		return errortypes.ConfigError(err, "cannot create service directory")
	}
	if err := os.WriteFile(out, append(encoded, '\n'), 0644); err != nil {
		return errortypes.ConfigError(err, "cannot write schema document")
	}

	appLogger.Info("wrote skeleton schema document for %s: %s", service, out)
	return nil
}
