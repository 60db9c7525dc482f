// Package enhance is the runtime side of managed classes: the registry that
// enhanced classes announce themselves to when they initialize, and the
// class path environments that load them.
package enhance

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/conduit-lang/ormeta/internal/meta"
)

// ErrNotRegistered is returned when asking about a class that never
// registered.
var ErrNotRegistered = errors.New("class not registered")

// Registration is what an enhanced class declares about itself when it
// initializes.
type Registration struct {
	Class *meta.Class
	// PersistentSuperclass is the nearest enhanced superclass, if any.
	PersistentSuperclass *meta.Class
	Alias                string
	// ObjectIDClass is the application identity class, nil for abstract
	// types and datastore identity.
	ObjectIDClass *meta.Class
}

// Registry records class registrations and fans them out to listeners. It
// implements meta.ClassRegistry.
type Registry struct {
	mu        sync.RWMutex
	regs      map[*meta.Class]Registration
	order     []*meta.Class
	listeners []meta.RegisterClassListener
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		regs: make(map[*meta.Class]Registration),
	}
}

// Register records reg and notifies every listener. Listeners are called
// without the registry lock held.
func (r *Registry) Register(reg Registration) error {
	if reg.Class == nil {
		return errors.New("registration has no class")
	}

	r.mu.Lock()
	if _, exists := r.regs[reg.Class]; exists {
		r.mu.Unlock()
		return fmt.Errorf("class %s is already registered", reg.Class)
	}
	r.regs[reg.Class] = reg
	r.order = append(r.order, reg.Class)
	listeners := append([]meta.RegisterClassListener(nil), r.listeners...)
	r.mu.Unlock()

	for _, l := range listeners {
		l.Register(reg.Class)
	}
	return nil
}

// AddListener adds l and replays every registration made so far to it.
func (r *Registry) AddListener(l meta.RegisterClassListener) {
	if l == nil {
		return
	}
	r.mu.Lock()
	r.listeners = append(r.listeners, l)
	replay := append([]*meta.Class(nil), r.order...)
	r.mu.Unlock()

	for _, cls := range replay {
		l.Register(cls)
	}
}

// RemoveListener removes l and reports whether it was registered.
func (r *Registry) RemoveListener(l meta.RegisterClassListener) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, existing := range r.listeners {
		if existing == l {
			r.listeners = append(r.listeners[:i:i], r.listeners[i+1:]...)
			return true
		}
	}
	return false
}

// Registration returns what cls registered.
func (r *Registry) Registration(cls *meta.Class) (Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.regs[cls]
	return reg, ok
}

func (r *Registry) IsRegistered(cls *meta.Class) bool {
	_, ok := r.Registration(cls)
	return ok
}

func (r *Registry) PersistentSuperclass(cls *meta.Class) *meta.Class {
	reg, _ := r.Registration(cls)
	return reg.PersistentSuperclass
}

func (r *Registry) TypeAlias(cls *meta.Class) string {
	reg, _ := r.Registration(cls)
	return reg.Alias
}

func (r *Registry) ObjectIDClass(cls *meta.Class) (*meta.Class, error) {
	reg, ok := r.Registration(cls)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotRegistered, cls)
	}
	return reg.ObjectIDClass, nil
}

// Classes returns every registered class sorted by name. Classes of the
// same name from different class paths keep registration order.
func (r *Registry) Classes() []*meta.Class {
	r.mu.RLock()
	classes := append([]*meta.Class(nil), r.order...)
	r.mu.RUnlock()

	sort.SliceStable(classes, func(i, j int) bool { return classes[i].Name < classes[j].Name })
	return classes
}
