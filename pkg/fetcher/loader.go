package fetcher

import (
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/morezero/apiview-dispatcher/pkg/apiview"
)

// ErrModuleNotFound is returned by a Loader when nothing is registered at a path.
var ErrModuleNotFound = errors.New("module not found")

// Factory constructs a fresh handler instance. It is the only export type
// the fetcher knows how to instantiate.
type Factory func() interface{}

// Loader returns the export registered at a logical handler path.
// Errors that do not wrap ErrModuleNotFound mean the export exists but could
// not be loaded; the fetcher logs them.
type Loader interface {
	Load(path string) (interface{}, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(path string) (interface{}, error)

// Load implements Loader.
func (f LoaderFunc) Load(p string) (interface{}, error) {
	return f(p)
}

// Registry is a static Loader populated at startup.
type Registry struct {
	mu      sync.RWMutex
	exports map[string]interface{}
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{exports: make(map[string]interface{})}
}

// Register stores an export at a logical path, replacing any previous one.
// Exports are normally Factory values; anything else fails instantiation
// when dispatched.
func (r *Registry) Register(p string, export interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exports[cleanPath(p)] = export
}

// Handle registers a factory for (entity, action, method) under the
// generation folder and the given prefix.
func (r *Registry) Handle(gen Generation, prefix, entity, action, method string, factory Factory) {
	r.Register(HandlerPath(prefix, gen, entity, action, method), factory)
}

// RegisterView registers a typed api-view handler constructor.
func RegisterView[T any, PT interface {
	*T
	apiview.Viewer
}](r *Registry, prefix, entity, action, method string) {
	r.Handle(APIView, prefix, entity, action, method, func() interface{} {
		return PT(new(T))
	})
}

// RegisterAPI registers a legacy handler constructor.
func RegisterAPI[T any](r *Registry, prefix, entity, action, method string, newFn func() T) {
	r.Handle(API, prefix, entity, action, method, func() interface{} {
		return newFn()
	})
}

// Load implements Loader.
func (r *Registry) Load(p string) (interface{}, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	export, ok := r.exports[cleanPath(p)]
	if !ok {
		return nil, fmt.Errorf("%w: '%s'", ErrModuleNotFound, p)
	}
	return export, nil
}

// Paths returns the registered paths in sorted order.
func (r *Registry) Paths() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.exports))
	for p := range r.exports {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Key identifies a handler within a generation.
type Key struct {
	Entity string `json:"entity"`
	Action string `json:"action"`
	Method string `json:"method"`
}

// Keys returns the keys registered for gen under prefix, in path order.
func (r *Registry) Keys(prefix string, gen Generation) []Key {
	base := HandlerPath(prefix, gen, "", "", "") + "/"
	var keys []Key
	for _, p := range r.Paths() {
		if !strings.HasPrefix(p, base) {
			continue
		}
		parts := strings.Split(strings.TrimPrefix(p, base), "/")
		if len(parts) != 3 {
			continue
		}
		keys = append(keys, Key{Entity: parts[0], Action: parts[1], Method: parts[2]})
	}
	return keys
}

// ValidSegment reports whether s can be used as one segment of a handler key.
// Separators and dot segments are rejected so a key never resolves outside
// its prefix and generation folder.
func ValidSegment(s string) bool {
	return s != "" && s != "." && s != ".." && !strings.ContainsAny(s, "/\\\x00")
}

// HandlerPath builds the logical path [prefix/]folder/entity/action/method.
func HandlerPath(prefix string, gen Generation, entity, action, method string) string {
	return cleanPath(path.Join(prefix, gen.folder, entity, action, method))
}

func cleanPath(p string) string {
	return strings.TrimPrefix(path.Clean("/"+p), "/")
}
