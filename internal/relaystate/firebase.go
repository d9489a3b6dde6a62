package relaystate

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	firebase "firebase.google.com/go"
	"firebase.google.com/go/db"
	"google.golang.org/api/option"

	"smart-building-backend/config"
	"smart-building-backend/internal/model"
)

// Firebase is a Store backed by the Firebase Realtime Database. The admin
// SDK offers no change listener, so subscriptions are served by a polling
// goroutine; local writes are additionally looped back to subscribers
// synchronously so in-process consumers observe their own writes without
// waiting for a poll cycle.
type Firebase struct {
	client *db.Client
	poll   time.Duration
	cancel context.CancelFunc

	mu     sync.Mutex
	last   map[string]int
	known  map[string]bool
	subs   map[string]map[int]func(int)
	nextID int
}

// NewFirebase connects to the configured Realtime Database and starts the
// subscription poller.
func NewFirebase(ctx context.Context, cfg config.RelayStoreConfig) (*Firebase, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{DatabaseURL: cfg.DatabaseURL}, opts...)
	if err != nil {
		return nil, fmt.Errorf("firebase app init: %w", err)
	}
	client, err := app.Database(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase database client: %w", err)
	}

	pollCtx, cancel := context.WithCancel(context.Background())
	f := &Firebase{
		client: client,
		poll:   cfg.PollInterval,
		cancel: cancel,
		last:   make(map[string]int),
		known:  make(map[string]bool),
		subs:   make(map[string]map[int]func(int)),
	}
	go f.run(pollCtx)
	return f, nil
}

func (f *Firebase) run(ctx context.Context) {
	ticker := time.NewTicker(f.poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.pollOnce(ctx)
		}
	}
}

func (f *Firebase) pollOnce(ctx context.Context) {
	f.mu.Lock()
	keys := make([]string, 0, len(f.subs))
	for key, entries := range f.subs {
		if len(entries) > 0 {
			keys = append(keys, key)
		}
	}
	f.mu.Unlock()

	for _, key := range keys {
		var (
			v   int
			ok  bool
			err error
		)
		// manualMode is stored as a boolean, the relay keys as 0/1.
		if key == KeyManualMode {
			var on bool
			on, ok, err = f.getBool(ctx, key)
			if on {
				v = 1
			}
		} else {
			v, ok, err = f.get(ctx, key)
		}
		if err != nil {
			log.Printf("relaystate: poll of %s failed: %v", key, err)
			continue
		}
		if !ok {
			continue
		}
		f.observe(key, v)
	}
}

// observe records a value and notifies subscribers if it changed.
func (f *Firebase) observe(key string, v int) {
	f.mu.Lock()
	if f.known[key] && f.last[key] == v {
		f.mu.Unlock()
		return
	}
	f.last[key] = v
	f.known[key] = true
	var fns []func(int)
	for _, fn := range f.subs[key] {
		fns = append(fns, fn)
	}
	f.mu.Unlock()

	for _, fn := range fns {
		fn(v)
	}
}

func (f *Firebase) get(ctx context.Context, key string) (int, bool, error) {
	var v *int
	if err := f.client.NewRef(key).Get(ctx, &v); err != nil {
		return 0, false, err
	}
	if v == nil {
		return 0, false, nil
	}
	return *v, true, nil
}

func (f *Firebase) getBool(ctx context.Context, key string) (bool, bool, error) {
	var v *bool
	if err := f.client.NewRef(key).Get(ctx, &v); err != nil {
		return false, false, err
	}
	if v == nil {
		return false, false, nil
	}
	return *v, true, nil
}

func (f *Firebase) set(ctx context.Context, key string, v int) error {
	if err := f.client.NewRef(key).Set(ctx, v); err != nil {
		return err
	}
	f.observe(key, v)
	return nil
}

func (f *Firebase) subscribe(key string, fn func(int)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subs[key] == nil {
		f.subs[key] = make(map[int]func(int))
	}
	id := f.nextID
	f.nextID++
	f.subs[key][id] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.subs[key], id)
	}
}

func (f *Firebase) SetRelay(ctx context.Context, id model.RelayID, value int) error {
	if err := validRelayValue(value); err != nil {
		return err
	}
	return f.set(ctx, RelayKey(id), value)
}

func (f *Firebase) Relay(ctx context.Context, id model.RelayID) (int, error) {
	v, _, err := f.get(ctx, RelayKey(id))
	return v, err
}

func (f *Firebase) SetSOS(ctx context.Context, value int) error {
	if err := validRelayValue(value); err != nil {
		return err
	}
	return f.set(ctx, KeySOS, value)
}

func (f *Firebase) SOS(ctx context.Context) (int, error) {
	v, _, err := f.get(ctx, KeySOS)
	return v, err
}

func (f *Firebase) SetManualMode(ctx context.Context, on bool) error {
	if err := f.client.NewRef(KeyManualMode).Set(ctx, on); err != nil {
		return err
	}
	v := 0
	if on {
		v = 1
	}
	f.observe(KeyManualMode, v)
	return nil
}

func (f *Firebase) ManualMode(ctx context.Context) (bool, error) {
	on, _, err := f.getBool(ctx, KeyManualMode)
	return on, err
}

func (f *Firebase) SubscribeRelay(id model.RelayID, fn func(int)) func() {
	return f.subscribe(RelayKey(id), fn)
}

func (f *Firebase) SubscribeManualMode(fn func(bool)) func() {
	return f.subscribe(KeyManualMode, func(v int) { fn(v == 1) })
}

func (f *Firebase) Close() error {
	f.cancel()
	return nil
}
