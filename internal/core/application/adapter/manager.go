package adapter

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var (
	ErrAdapterNotFound      = errors.New("adapter not found")
	ErrAdapterAlreadyExists = errors.New("adapter already exists")
)

// Manager holds the adapters of all the wallet accounts, by account id.
type Manager struct {
	lock     sync.RWMutex
	adapters map[string]*Adapter
	log      log.FieldLogger
}

// NewManager ...
func NewManager(logger log.FieldLogger) *Manager {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Manager{
		adapters: make(map[string]*Adapter),
		log:      logger,
	}
}

// Add takes ownership of the given adapter.
func (m *Manager) Add(a *Adapter) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	if _, ok := m.adapters[a.ID()]; ok {
		return fmt.Errorf("%w: %s", ErrAdapterAlreadyExists, a.ID())
	}
	m.adapters[a.ID()] = a
	return nil
}

// Get ...
func (m *Manager) Get(id string) (*Adapter, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()

	a, ok := m.adapters[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAdapterNotFound, id)
	}
	return a, nil
}

// List returns the adapters sorted by account id.
func (m *Manager) List() []*Adapter {
	m.lock.RLock()
	defer m.lock.RUnlock()

	list := make([]*Adapter, 0, len(m.adapters))
	for _, a := range m.adapters {
		list = append(list, a)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].ID() < list[j].ID()
	})
	return list
}

// Remove stops and closes the adapter with the given id, its chain cache
// is kept.
func (m *Manager) Remove(id string) error {
	m.lock.Lock()
	a, ok := m.adapters[id]
	delete(m.adapters, id)
	m.lock.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrAdapterNotFound, id)
	}
	return a.Close()
}

// Delete removes the adapter with the given id and deletes its chain
// cache.
func (m *Manager) Delete(id string) error {
	m.lock.Lock()
	a, ok := m.adapters[id]
	delete(m.adapters, id)
	m.lock.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrAdapterNotFound, id)
	}
	return a.Destroy()
}

// StartAll starts every adapter and returns the first error, if any.
func (m *Manager) StartAll() error {
	g := new(errgroup.Group)
	for _, a := range m.List() {
		a := a
		g.Go(func() error {
			if err := a.Start(); err != nil {
				return fmt.Errorf("failed to start account %s: %w", a.ID(), err)
			}
			return nil
		})
	}
	return g.Wait()
}

// StopAll stops every adapter and waits for all of them.
func (m *Manager) StopAll() {
	g := new(errgroup.Group)
	for _, a := range m.List() {
		a := a
		g.Go(func() error {
			a.Stop()
			return nil
		})
	}
	//nolint
	g.Wait()
}

// Close stops and closes all adapters.
func (m *Manager) Close() error {
	m.StopAll()

	m.lock.Lock()
	defer m.lock.Unlock()

	var firstErr error
	for id, a := range m.adapters {
		if err := a.Close(); err != nil {
			m.log.WithError(err).Warnf("failed to close account %s", id)
			if firstErr == nil {
				firstErr = err
			}
		}
		delete(m.adapters, id)
	}
	return firstErr
}
