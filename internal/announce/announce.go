// Package announce publishes a service's endpoint into the shared
// client-config document.
package announce

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/toolhost/toolhost/internal/errortypes"
)

// Namespace is the container key client endpoints live under inside
// the document. Other top-level keys belong to other software and are
// never touched.
const Namespace = "mcpServers"

// Mode selects what Publish does with the computed entry.
type Mode string

const (
	// ModeMergeWrite reads the existing document, upserts this
	// service's entry, and writes the document back.
	ModeMergeWrite Mode = "merge-write"

	// ModePrint emits the would-be entry to the operator without
	// touching any file.
	ModePrint Mode = "print"
)

// Publisher merges service endpoints into one client-config file.
type Publisher struct {
	path   string
	logger *slog.Logger

	// Out receives ModePrint output; defaults to stdout.
	Out io.Writer
}

// New creates a Publisher for the document at path.
func New(path string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{path: path, logger: logger, Out: os.Stdout}
}

// Publish records that service is reachable at endpoint. Merge-write
// is strictly read-merge-write: unrelated entries under the namespace
// and unrelated top-level keys survive. An absent or corrupt document
// is treated as empty, since a corrupt document cannot be trusted.
func (p *Publisher) Publish(service, endpoint string, mode Mode) error {
	switch mode {
	case ModePrint:
		entry := map[string]map[string]map[string]string{
			Namespace: {service: {"url": endpoint}},
		}
		encoded, err := json.MarshalIndent(entry, "", "  ")
		if err != nil {
			return errortypes.InternalError(err, "cannot encode client config entry")
		}
		fmt.Fprintf(p.Out, "Add this to your client config (%s):\n%s\n", p.path, encoded)
		return nil

	case ModeMergeWrite:
		return p.mergeWrite(service, endpoint)

	default:
		return errortypes.ConfigError(
			fmt.Errorf("unknown publish mode %q", mode), "invalid publish mode")
	}
}

func (p *Publisher) mergeWrite(service, endpoint string) error {
	document := make(map[string]any)

	data, err := os.ReadFile(p.path)
	switch {
	case err == nil:
		if unmarshalErr := json.Unmarshal(data, &document); unmarshalErr != nil {
			p.logger.Warn("client config document is corrupt, starting fresh",
				"path", p.path, "error", unmarshalErr)
			document = make(map[string]any)
		}
	case os.IsNotExist(err):
		// First publication creates the document.
	default:
		return errortypes.ConfigError(err, "cannot read client config document").
			WithField("path", p.path)
	}

	servers, ok := document[Namespace].(map[string]any)
	if !ok {
		servers = make(map[string]any)
	}
	servers[service] = map[string]any{"url": endpoint}
	document[Namespace] = servers

	encoded, err := json.MarshalIndent(document, "", "  ")
	if err != nil {
		return errortypes.InternalError(err, "cannot encode client config document")
	}
	if err := os.WriteFile(p.path, append(encoded, '\n'), 0644); err != nil {
		return errortypes.ConfigError(err, "cannot write client config document").
			WithField("path", p.path)
	}

	p.logger.Info("published service endpoint",
		"service", service, "url", endpoint, "path", p.path)
	return nil
}
