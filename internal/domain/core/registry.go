package core

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/ngoclaw/goosecore/internal/domain/entity"
)

// Registry holds a map CoreType -> Core and an atomically-swapped active
// pointer (§3, §4.F). The default-registered core MUST be Freeform.
type Registry struct {
	mu         sync.RWMutex
	cores      map[entity.CoreType]Core
	activeType entity.CoreType
	logger     *zap.Logger
}

// NewRegistry creates an empty Registry. Register the Freeform core before
// first use (Register makes it the active core) — CoreRegistry's
// default-registered invariant is enforced by the wiring layer, not by the
// zero value.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		cores:  make(map[entity.CoreType]Core),
		logger: logger,
	}
}

// Register adds (or replaces) the implementation for a CoreType. If no
// active core is set yet and t == Freeform, it becomes active.
func (r *Registry) Register(t entity.CoreType, c Core) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.cores[t] = c
	if r.activeType == "" && t == entity.CoreFreeform {
		r.activeType = entity.CoreFreeform
	}
}

// ListCores reports every CoreType and whether an implementation is registered.
func (r *Registry) ListCores() []entity.CoreListing {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]entity.CoreListing, 0, len(entity.AllCoreTypes()))
	for _, t := range entity.AllCoreTypes() {
		_, ok := r.cores[t]
		out = append(out, entity.CoreListing{Type: t, Registered: ok})
	}
	return out
}

// ActiveCoreType returns the currently active CoreType.
func (r *Registry) ActiveCoreType() entity.CoreType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.activeType
}

// ActiveCore returns the currently active Core implementation, or nil if
// none is registered yet.
func (r *Registry) ActiveCore() Core {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cores[r.activeType]
}

// SwitchCore atomically swaps the active pointer. In-flight executions
// against the previous core complete normally (they hold their own Core
// reference, obtained before the swap via ActiveCore); only subsequent
// ActiveCore() calls observe the new value. Returns an error only if t is
// not registered.
func (r *Registry) SwitchCore(t entity.CoreType) (Core, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.cores[t]
	if !ok {
		return nil, fmt.Errorf("core type %q is not registered", t)
	}
	r.activeType = t
	if r.logger != nil {
		r.logger.Info("core switched", zap.String("core_type", string(t)))
	}
	return c, nil
}
