package relaystate

import (
	"context"
	"sync"

	"smart-building-backend/internal/model"
)

// Memory is an in-process Store. It backs tests and single-node
// deployments that have no external real-time database. Subscription
// delivery is synchronous and in-order, mirroring the loop-back
// behaviour of the real store.
type Memory struct {
	mu     sync.Mutex
	values map[string]int
	subs   map[string]map[int]func(int)
	nextID int
}

// NewMemory creates an empty in-process store. Absent relay keys read
// as 0 and an absent manual-mode flag reads as false.
func NewMemory() *Memory {
	return &Memory{
		values: make(map[string]int),
		subs:   make(map[string]map[int]func(int)),
	}
}

func (m *Memory) write(key string, v int) {
	m.mu.Lock()
	m.values[key] = v
	var fns []func(int)
	for _, fn := range m.subs[key] {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	// Deliver outside the lock so a callback may read or write the store.
	for _, fn := range fns {
		fn(v)
	}
}

func (m *Memory) read(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.values[key]
}

func (m *Memory) subscribe(key string, fn func(int)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subs[key] == nil {
		m.subs[key] = make(map[int]func(int))
	}
	id := m.nextID
	m.nextID++
	m.subs[key][id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs[key], id)
	}
}

func (m *Memory) SetRelay(_ context.Context, id model.RelayID, value int) error {
	if err := validRelayValue(value); err != nil {
		return err
	}
	m.write(RelayKey(id), value)
	return nil
}

func (m *Memory) Relay(_ context.Context, id model.RelayID) (int, error) {
	return m.read(RelayKey(id)), nil
}

func (m *Memory) SetSOS(_ context.Context, value int) error {
	if err := validRelayValue(value); err != nil {
		return err
	}
	m.write(KeySOS, value)
	return nil
}

func (m *Memory) SOS(_ context.Context) (int, error) {
	return m.read(KeySOS), nil
}

func (m *Memory) SetManualMode(_ context.Context, on bool) error {
	v := 0
	if on {
		v = 1
	}
	m.write(KeyManualMode, v)
	return nil
}

func (m *Memory) ManualMode(_ context.Context) (bool, error) {
	return m.read(KeyManualMode) == 1, nil
}

func (m *Memory) SubscribeRelay(id model.RelayID, fn func(int)) func() {
	return m.subscribe(RelayKey(id), fn)
}

func (m *Memory) SubscribeManualMode(fn func(bool)) func() {
	return m.subscribe(KeyManualMode, func(v int) { fn(v == 1) })
}

func (m *Memory) Close() error { return nil }
