package handler

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/toolhost/toolhost/internal/errortypes"
)

// Registry is the compiled map of dotted handler references to
// handlers for one service. It is built once at boot and read-only
// afterwards; Resolve never mutates it, so a failed resolution cannot
// corrupt later calls.
type Registry struct {
	service  string
	handlers map[string]Handler
	toolRefs map[string]string
}

// NewRegistry creates an empty registry for the named service.
func NewRegistry(service string) *Registry {
	return &Registry{
		service:  service,
		handlers: make(map[string]Handler),
		toolRefs: make(map[string]string),
	}
}

// Service returns the name of the service this registry belongs to.
func (r *Registry) Service() string {
	return r.service
}

// Register adds a handler under ref. A bare name (no dot) is
// qualified with the service name. Registering panics on a duplicate
// ref, in line with registration happening at boot, not per call.
func (r *Registry) Register(ref string, h Handler) *Registry {
	if !strings.Contains(ref, ".") {
		ref = r.service + "." + ref
	}
	if _, dup := r.handlers[ref]; dup {
		panic(fmt.Sprintf("handler: duplicate registration of %q", ref))
	}
	r.handlers[ref] = h
	return r
}

// Tool binds a tool name to a handler ref and registers the handler in
// one step; the accumulated tool map becomes the service's handler map
// for catalog loading.
func (r *Registry) Tool(name, ref string, h Handler) *Registry {
	r.Register(ref, h)
	if !strings.Contains(ref, ".") {
		ref = r.service + "." + ref
	}
	r.toolRefs[name] = ref
	return r
}

// HandlerMap returns the tool-name to handler-ref map accumulated by
// Tool registrations.
func (r *Registry) HandlerMap() map[string]string {
	m := make(map[string]string, len(r.toolRefs))
	for k, v := range r.toolRefs {
		m[k] = v
	}
	return m
}

// Refs returns every registered handler ref, sorted.
func (r *Registry) Refs() []string {
	refs := make([]string, 0, len(r.handlers))
	for ref := range r.handlers {
		refs = append(refs, ref)
	}
	sort.Strings(refs)
	return refs
}

// Resolve turns a dotted handler ref into a handler. The primary
// strategy is an exact lookup of the fully qualified ref. If that
// fails for any reason, the fallback looks up just the final path
// segment within the service's own namespace. Note the fallback can
// match a same-named handler the ref never meant; it is kept for
// compatibility with existing handler maps.
func (r *Registry) Resolve(ref string) (Handler, error) {
	if h, ok := r.handlers[ref]; ok {
		return h, nil
	}

	leaf := ref
	if i := strings.LastIndex(ref, "."); i >= 0 {
		leaf = ref[i+1:]
	}
	if h, ok := r.handlers[r.service+"."+leaf]; ok && leaf != "" {
		return h, nil
	}

	return nil, errortypes.ResolutionError(
		fmt.Errorf("handler %q is not registered for service %q (also tried %q)",
			ref, r.service, r.service+"."+leaf),
		"handler resolution failed").
		WithField("ref", ref).
		WithField("service", r.service)
}

// The package-level service index lets compiled-in service packages
// self-register from init, the way database/sql drivers do. The
// facade prefers an explicitly passed registry; the CLI looks services
// up here.
var (
	servicesMu sync.RWMutex
	services   = make(map[string]*Registry)
)

// RegisterService adds a service registry to the package index.
// Duplicate service names panic.
func RegisterService(r *Registry) {
	servicesMu.Lock()
	defer servicesMu.Unlock()
	if _, dup := services[r.service]; dup {
		panic(fmt.Sprintf("handler: duplicate service registration of %q", r.service))
	}
	services[r.service] = r
}

// LookupService returns the registry a service package registered, or
// an error naming the known services.
func LookupService(service string) (*Registry, error) {
	servicesMu.RLock()
	defer servicesMu.RUnlock()
	r, ok := services[service]
	if !ok {
		known := make([]string, 0, len(services))
		for name := range services {
			known = append(known, name)
		}
		sort.Strings(known)
		return nil, errortypes.ConfigError(
			fmt.Errorf("no compiled-in service %q; known services: %v", service, known),
			"unknown service")
	}
	return r, nil
}
