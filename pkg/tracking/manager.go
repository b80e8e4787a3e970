package tracking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
)

// MethodInfo describes a registered method.
type MethodInfo struct {
	Name     string   `json:"name"`
	Actions  []Action `json:"actions"`
	Selected bool     `json:"selected"`
}

// Manager holds the registered methods and the selected one.
// Selecting a method closes the previous one first, so at most one
// capture loop runs per Manager.
type Manager struct {
	logger *slog.Logger

	mu       sync.Mutex
	methods  map[string]Method
	order    []string
	selected Method

	// OnChange is called after a selection or action, outside the lock.
	OnChange func(Status)
}

// NewManager creates an empty manager.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		logger:  logger.With("component", "tracking"),
		methods: make(map[string]Method),
	}
}

// Register adds a method. The first registered method is selected.
func (mg *Manager) Register(m Method) error {
	mg.mu.Lock()
	defer mg.mu.Unlock()

	name := m.Name()
	if _, ok := mg.methods[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateMethod, name)
	}
	mg.methods[name] = m
	mg.order = append(mg.order, name)

	if mg.selected == nil {
		mg.selected = m
	}
	mg.logger.Debug("method registered", "method", name, "actions", m.AvailableActions())
	return nil
}

// Methods lists the registered methods in registration order.
func (mg *Manager) Methods() []MethodInfo {
	mg.mu.Lock()
	defer mg.mu.Unlock()

	infos := make([]MethodInfo, 0, len(mg.order))
	for _, name := range mg.order {
		m := mg.methods[name]
		infos = append(infos, MethodInfo{
			Name:     name,
			Actions:  m.AvailableActions(),
			Selected: m == mg.selected,
		})
	}
	return infos
}

// Select makes the named method current. The previously selected method
// is closed, and its stream joined, before Select returns.
func (mg *Manager) Select(name string) error {
	mg.mu.Lock()
	m, ok := mg.methods[name]
	if !ok {
		mg.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownMethod, name)
	}

	prev := mg.selected
	if prev != nil && prev != m {
		if err := prev.Close(); err != nil {
			mg.logger.Warn("close failed", "method", prev.Name(), "error", err)
		}
	}
	mg.selected = m
	mg.mu.Unlock()

	mg.logger.Info("method selected", "method", name)
	mg.notify(m)
	return nil
}

// Selected returns the current method, or nil.
func (mg *Manager) Selected() Method {
	mg.mu.Lock()
	defer mg.mu.Unlock()
	return mg.selected
}

// Invoke runs action on the selected method.
func (mg *Manager) Invoke(ctx context.Context, action Action) error {
	mg.mu.Lock()
	m := mg.selected
	if m == nil {
		mg.mu.Unlock()
		return ErrNoMethodSelected
	}
	if !slices.Contains(m.AvailableActions(), action) {
		mg.mu.Unlock()
		return fmt.Errorf("%w: %q on %s", ErrUnknownAction, action, m.Name())
	}

	mg.logger.Info("action", "method", m.Name(), "action", action)
	err := m.Invoke(ctx, action)
	mg.mu.Unlock()

	mg.notify(m)
	return err
}

// Status returns the selected method's status.
func (mg *Manager) Status() (Status, error) {
	m := mg.Selected()
	if m == nil {
		return Status{}, ErrNoMethodSelected
	}
	return m.Status(), nil
}

// Close closes every registered method.
func (mg *Manager) Close() error {
	mg.mu.Lock()
	defer mg.mu.Unlock()

	var errs []error
	for _, name := range mg.order {
		if err := mg.methods[name].Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

func (mg *Manager) notify(m Method) {
	if mg.OnChange != nil {
		mg.OnChange(m.Status())
	}
}
