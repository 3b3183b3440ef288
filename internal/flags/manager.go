package flags

import (
	"errors"
	"fmt"
)

var (
	// ErrSystemNotFound reports a reference to an unregistered flag system.
	ErrSystemNotFound = errors.New("no such flag system")

	// ErrColumnExists reports a duplicate flag column registration.
	ErrColumnExists = errors.New("flag column already registered")

	// ErrColumnNotFound reports a reference to an unregistered flag column.
	ErrColumnNotFound = errors.New("no such flag column")
)

// Column binds a mask column to a base data column under one flag system.
type Column struct {
	Name   string
	Base   string
	System *Registry
}

// AddFlag returns a copy of masks with the named flag set on every row for
// which cond is true. A nil cond flags every row.
func (c Column) AddFlag(masks []Mask, name string, cond func(i int) bool) ([]Mask, error) {
	bit, err := c.System.Bit(name)
	if err != nil {
		return nil, err
	}
	out := append([]Mask(nil), masks...)
	for i := range out {
		if cond == nil || cond(i) {
			out[i] |= bit
		}
	}
	return out, nil
}

// RemoveFlag returns a copy of masks with the named flag cleared on every row
// for which cond is true. A nil cond clears every row.
func (c Column) RemoveFlag(masks []Mask, name string, cond func(i int) bool) ([]Mask, error) {
	bit, err := c.System.Bit(name)
	if err != nil {
		return nil, err
	}
	out := append([]Mask(nil), masks...)
	for i := range out {
		if cond == nil || cond(i) {
			out[i] &^= bit
		}
	}
	return out, nil
}

// Manager is the registry of flag systems and flag columns for one series.
// Like Registry, it is configured once and read-only afterwards.
type Manager struct {
	systems map[string]*Registry
	columns map[string]Column
}

// NewManager returns an empty flag manager.
func NewManager() *Manager {
	return &Manager{systems: map[string]*Registry{}, columns: map[string]Column{}}
}

// RegisterSystem adds a flag system under its own name.
func (m *Manager) RegisterSystem(reg *Registry) error {
	if _, exists := m.systems[reg.Name()]; exists {
		return fmt.Errorf("%w: duplicate flag system %q", ErrNameCollision, reg.Name())
	}
	m.systems[reg.Name()] = reg
	return nil
}

// System returns a registered flag system.
func (m *Manager) System(name string) (*Registry, error) {
	reg, ok := m.systems[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSystemNotFound, name)
	}
	return reg, nil
}

// RegisterColumn marks a mask column as a flag column for the given base data
// column, governed by the named flag system.
func (m *Manager) RegisterColumn(name, base, systemName string) error {
	if existing, ok := m.columns[name]; ok {
		return fmt.Errorf("%w: %q (base %q)", ErrColumnExists, name, existing.Base)
	}
	reg, err := m.System(systemName)
	if err != nil {
		return err
	}
	m.columns[name] = Column{Name: name, Base: base, System: reg}
	return nil
}

// Column looks up a registered flag column.
func (m *Manager) Column(name string) (Column, error) {
	col, ok := m.columns[name]
	if !ok {
		return Column{}, fmt.Errorf("%w: %q", ErrColumnNotFound, name)
	}
	return col, nil
}
