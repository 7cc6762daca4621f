package engine

import (
	"fmt"
	"sync"

	"github.com/petrijr/stepflow/pkg/api"
)

// handlerRegistry is the static step-name-to-handler mapping, resolved
// once at startup. Unknown names fail fast with InvalidStepError before
// any step executes.
type handlerRegistry struct {
	mu     sync.RWMutex
	byName map[string]api.HandlerFunc
}

func newHandlerRegistry() *handlerRegistry {
	return &handlerRegistry{
		byName: make(map[string]api.HandlerFunc),
	}
}

func (r *handlerRegistry) Register(name string, fn api.HandlerFunc) error {
	if name == "" {
		return fmt.Errorf("handler name is required")
	}
	if fn == nil {
		return fmt.Errorf("handler %q is nil", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[name]; exists {
		return fmt.Errorf("handler %q already registered", name)
	}

	r.byName[name] = fn
	return nil
}

func (r *handlerRegistry) Resolve(name string) (api.HandlerFunc, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fn, ok := r.byName[name]
	if !ok {
		return nil, &api.InvalidStepError{Step: name}
	}
	return fn, nil
}
