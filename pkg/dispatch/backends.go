package dispatch

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/conduit-lang/opmeta/pkg/opmeta"
	"github.com/conduit-lang/opmeta/pkg/resolve"
)

// Invoker calls a backend function with resolved arguments
type Invoker func(ctx context.Context, args resolve.Args) (any, error)

// Factory handles a raw operation. It receives the request untouched by
// argument resolution.
type Factory func(ctx context.Context, r *http.Request) (any, error)

// Backends maps binding locators to the functions that serve them.
// Invokers are keyed by "importPath#fn", factories by name.
type Backends struct {
	mu        sync.RWMutex
	invokers  map[string]Invoker
	factories map[string]Factory
}

// NewBackends creates an empty backend table
func NewBackends() *Backends {
	return &Backends{
		invokers:  make(map[string]Invoker),
		factories: make(map[string]Factory),
	}
}

// Register adds an invoker for importPath#fn
func (b *Backends) Register(importPath, fn string, invoker Invoker) *Backends {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.invokers[importPath+"#"+fn] = invoker
	return b
}

// RegisterFactory adds a raw factory
func (b *Backends) RegisterFactory(name string, factory Factory) *Backends {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.factories[name] = factory
	return b
}

// Invoker returns the invoker serving binding
func (b *Backends) Invoker(binding *opmeta.ServiceBinding) (Invoker, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	fn, ok := b.invokers[binding.Locator()]
	return fn, ok
}

// Factory returns the factory serving a raw binding
func (b *Backends) Factory(binding *opmeta.ServiceBinding) (Factory, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	fn, ok := b.factories[binding.Factory]
	return fn, ok
}

// Locators lists every registered locator and factory name, sorted
func (b *Backends) Locators() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.invokers)+len(b.factories))
	for k := range b.invokers {
		out = append(out, k)
	}
	for k := range b.factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (b *Backends) check(binding *opmeta.ServiceBinding) error {
	if binding.Raw {
		if _, ok := b.Factory(binding); !ok {
			return fmt.Errorf("no factory registered for %q", binding.Factory)
		}
		return nil
	}
	if _, ok := b.Invoker(binding); !ok {
		return fmt.Errorf("no backend registered for %q", binding.Locator())
	}
	return nil
}
