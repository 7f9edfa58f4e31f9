// Package fetcher resolves (entity, action, method) keys to fresh handler
// instances and checks them against the handler contract.
package fetcher

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"reflect"

	"github.com/morezero/apiview-dispatcher/pkg/apiview"
)

const logPrefix = "fetcher:fetcher"

// PrefixEnv is the environment variable holding the optional path prefix.
const PrefixEnv = "MS_PATH"

// EnvPrefix reads PrefixEnv. It is the default prefix source and is consulted
// on every resolution.
func EnvPrefix() string {
	return os.Getenv(PrefixEnv)
}

// Fetcher resolves handlers through a Loader.
type Fetcher struct {
	loader Loader
	prefix func() string
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithPrefix replaces the prefix source.
func WithPrefix(prefix func() string) Option {
	return func(f *Fetcher) {
		if prefix != nil {
			f.prefix = prefix
		}
	}
}

// New creates a Fetcher reading exports from loader.
func New(loader Loader, opts ...Option) *Fetcher {
	f := &Fetcher{loader: loader, prefix: EnvPrefix}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Prefix returns the prefix in effect right now.
func (f *Fetcher) Prefix() string {
	return f.prefix()
}

// Path returns the logical path a key resolves to right now.
func (f *Fetcher) Path(gen Generation, entity, action, method string) string {
	return HandlerPath(f.prefix(), gen, entity, action, method)
}

// Fetch loads, instantiates and checks the handler for the key. Every call
// returns a new instance. Errors are *apiview.APIViewError.
func (f *Fetcher) Fetch(gen Generation, entity, action, method string) (interface{}, error) {
	filePath := f.Path(gen, entity, action, method)

	for _, segment := range []string{entity, action, method} {
		if !ValidSegment(segment) {
			return nil, apiview.NewError(gen.notFound, "Invalid %s Controller '%s'", gen.label(), filePath)
		}
	}

	export, err := f.loader.Load(filePath)
	if err != nil {
		if !errors.Is(err, ErrModuleNotFound) {
			slog.Error(fmt.Sprintf("%s - Module %s: %v", logPrefix, filePath, err))
		}
		export = nil
	}
	if export == nil {
		return nil, apiview.NewError(gen.notFound, "Invalid %s Controller '%s'", gen.label(), filePath)
	}

	instance, err := instantiate(export)
	if err != nil {
		slog.Debug(fmt.Sprintf("%s - instantiate %s: %v", logPrefix, filePath, err))
		return nil, apiview.NewError(gen.invalidExport, "%s Controller '%s' is not a api class", gen.label(), filePath)
	}

	name := typeName(instance)

	if gen.requireView {
		if _, ok := instance.(apiview.Viewer); !ok {
			return nil, apiview.NewError(apiview.InvalidAPIViewInheritance, "API '%s' does not inherit from 'APIView'", name)
		}
	}

	if !gen.hasProcess(instance) {
		return nil, apiview.NewError(apiview.ProcessMethodNotFound, "API '%s' Method 'process' not found", name)
	}

	return instance, nil
}

func instantiate(export interface{}) (instance interface{}, err error) {
	var factory Factory
	switch fn := export.(type) {
	case Factory:
		factory = fn
	case func() interface{}:
		factory = fn
	default:
		return nil, fmt.Errorf("export of type %T is not a factory", export)
	}
	if factory == nil {
		return nil, errors.New("nil factory")
	}

	defer func() {
		if r := recover(); r != nil {
			instance = nil
			err = fmt.Errorf("factory panicked: %v", r)
		}
	}()

	instance = factory()
	if isNil(instance) {
		return nil, errors.New("factory returned nil")
	}
	return instance, nil
}

func isNil(v interface{}) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Func, reflect.Interface, reflect.Chan:
		return rv.IsNil()
	}
	return false
}

func typeName(v interface{}) string {
	t := reflect.TypeOf(v)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

func (g Generation) label() string {
	if g.requireView {
		return "API View"
	}
	return "API"
}
