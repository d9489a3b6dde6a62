// Package relaystate is the access layer for the shared real-time
// relay-control store. The store holds the authoritative relay values
// plus the manual-mode flag under relayControl/*; every write is
// unconditional last-write-wins at the key level, and a local write
// loops back through any subscription on the same key.
package relaystate

import (
	"context"
	"fmt"

	"smart-building-backend/internal/model"
)

// Store paths, relative to the database root.
const (
	keyPrefix     = "relayControl/"
	KeySOS        = keyPrefix + "sos"
	KeyManualMode = keyPrefix + "manualMode"
)

// RelayKey returns the store path for a relay value.
func RelayKey(id model.RelayID) string {
	return keyPrefix + string(id)
}

// Store is the shared key-value state store for relay control. There are
// no transactions: concurrent writers race and the last write wins.
// Subscription callbacks are invoked for every observed change of the
// key, including writes issued through this same Store instance.
type Store interface {
	SetRelay(ctx context.Context, id model.RelayID, value int) error
	Relay(ctx context.Context, id model.RelayID) (int, error)

	SetSOS(ctx context.Context, value int) error
	SOS(ctx context.Context) (int, error)

	SetManualMode(ctx context.Context, on bool) error
	ManualMode(ctx context.Context) (bool, error)

	SubscribeRelay(id model.RelayID, fn func(value int)) (unsubscribe func())
	SubscribeManualMode(fn func(on bool)) (unsubscribe func())

	Close() error
}

func validRelayValue(v int) error {
	if v != 0 && v != 1 {
		return fmt.Errorf("relay value must be 0 or 1, got %d", v)
	}
	return nil
}
