package pool

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/mcp"
	"github.com/effective-security/mcpbridge/pkg/metricskey"
	"github.com/effective-security/xlog"
	"golang.org/x/sync/singleflight"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpbridge", "pool")

const (
	// DefaultIdleTimeout is how long an unused connection survives.
	DefaultIdleTimeout = 5 * time.Minute
	// DefaultSweepInterval is how often the eviction sweep runs.
	DefaultSweepInterval = time.Minute
)

// ErrConnect wraps transport/connect failures. The pool performs no internal
// retry; callers own the retry/backoff policy.
var ErrConnect = errors.New("failed to connect to server")

// Key identifies one pooled connection: at most one live entry exists per
// (server, principal) pair at any time.
type Key struct {
	ServerID    string
	PrincipalID string
}

func (k Key) String() string {
	return k.ServerID + "/" + k.PrincipalID
}

type entry struct {
	client             mcp.IClient
	lastUsed           time.Time
	isConnected        bool
	connectionAttempts int
}

// Pool owns connection entries and their eviction. It is an injectable
// service with an explicit lifecycle; construct one per process (or per
// test) and Shutdown it when done.
type Pool struct {
	dialer        Dialer
	idleTimeout   time.Duration
	sweepInterval time.Duration
	clientOpts    []mcp.ClientOption

	mu      sync.RWMutex
	entries map[Key]*entry

	group singleflight.Group

	stopSweep    chan struct{}
	sweepStopped chan struct{}
	shutdownOnce sync.Once
}

// Option customizes a Pool.
type Option func(*Pool)

// WithDialer overrides how clients are constructed; used by tests.
func WithDialer(dialer Dialer) Option {
	return func(p *Pool) {
		p.dialer = dialer
	}
}

// WithIdleTimeout sets how long an unused connection survives.
func WithIdleTimeout(d time.Duration) Option {
	return func(p *Pool) {
		p.idleTimeout = d
	}
}

// WithSweepInterval sets the eviction sweep cadence.
func WithSweepInterval(d time.Duration) Option {
	return func(p *Pool) {
		p.sweepInterval = d
	}
}

// WithClientOptions passes options through to every dialed client.
func WithClientOptions(opts ...mcp.ClientOption) Option {
	return func(p *Pool) {
		p.clientOpts = opts
	}
}

// New creates a Pool and starts its eviction sweeper.
func New(opts ...Option) *Pool {
	p := &Pool{
		dialer:        DialServer,
		idleTimeout:   DefaultIdleTimeout,
		sweepInterval: DefaultSweepInterval,
		entries:       make(map[Key]*entry),
		stopSweep:     make(chan struct{}),
		sweepStopped:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}

	go p.sweepLoop()
	return p
}

// Acquire returns the live client for (desc, principal), dialing one if
// needed. Concurrent first acquisitions of the same key share one in-flight
// dial; unrelated keys never block each other. On failure the error wraps
// ErrConnect and nothing is inserted.
func (p *Pool) Acquire(ctx context.Context, desc *Descriptor, principalID, credential string) (mcp.IClient, error) {
	key := Key{ServerID: desc.ID, PrincipalID: principalID}

	// Fast path: a healthy entry only needs its lastUsed refreshed.
	if client := p.touch(key); client != nil {
		metricskey.StatsConnectionsReused.IncrCounter(1, desc.Name)
		return client, nil
	}

	started := time.Now()
	v, err, _ := p.group.Do(key.String(), func() (any, error) {
		// Re-check under the flight: a concurrent caller may have won.
		if client := p.touch(key); client != nil {
			return client, nil
		}

		// A stale, disconnected entry is discarded before redialing.
		p.mu.Lock()
		if e, ok := p.entries[key]; ok && !e.isConnected {
			delete(p.entries, key)
			go closeQuietly(e.client, key)
		}
		p.mu.Unlock()

		client, err := p.dialer(ctx, desc, credential, p.clientOpts...)
		if err != nil {
			metricskey.StatsConnectionsFailed.IncrCounter(1, desc.Name)
			return nil, errors.WithMessagef(ErrConnect, "server %q: %v", desc.Name, err)
		}

		p.mu.Lock()
		p.entries[key] = &entry{
			client:             client,
			lastUsed:           time.Now(),
			isConnected:        true,
			connectionAttempts: 1,
		}
		p.mu.Unlock()

		metricskey.StatsConnectionsOpened.IncrCounter(1, desc.Name)
		metricskey.PerfConnect.MeasureSince(started, desc.Name)
		logger.ContextKV(ctx, xlog.INFO,
			"status", "connected",
			"server", desc.Name,
			"principal", principalID,
		)
		return client, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(mcp.IClient), nil
}

// touch refreshes lastUsed and returns the client when a connected entry
// exists for key, nil otherwise.
func (p *Pool) touch(key Key) mcp.IClient {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.entries[key]; ok && e.isConnected {
		e.lastUsed = time.Now()
		return e.client
	}
	return nil
}

// Invalidate flags the entry as disconnected so the next Acquire redials.
// Callers use it after transport-level call failures.
func (p *Pool) Invalidate(desc *Descriptor, principalID string) {
	key := Key{ServerID: desc.ID, PrincipalID: principalID}
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.entries[key]; ok {
		e.isConnected = false
	}
}

// Release closes and removes the entry for (desc, principal). Close errors
// are logged and swallowed; the entry is removed regardless.
func (p *Pool) Release(ctx context.Context, desc *Descriptor, principalID string) {
	key := Key{ServerID: desc.ID, PrincipalID: principalID}

	p.mu.Lock()
	e, ok := p.entries[key]
	delete(p.entries, key)
	p.mu.Unlock()

	if !ok {
		return
	}
	closeQuietly(e.client, key)
	logger.ContextKV(ctx, xlog.DEBUG,
		"status", "disconnected",
		"server", desc.Name,
		"principal", principalID,
	)
}

// Len returns the number of live entries.
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.entries)
}

// Shutdown stops the eviction sweeper, closes every live entry concurrently,
// waits for all attempts to settle, and clears the pool. It is idempotent.
func (p *Pool) Shutdown(ctx context.Context) {
	p.shutdownOnce.Do(func() {
		close(p.stopSweep)
		<-p.sweepStopped

		p.mu.Lock()
		entries := p.entries
		p.entries = make(map[Key]*entry)
		p.mu.Unlock()

		var wg sync.WaitGroup
		for key, e := range entries {
			wg.Add(1)
			go func(key Key, e *entry) {
				defer wg.Done()
				closeQuietly(e.client, key)
			}(key, e)
		}
		wg.Wait()

		logger.ContextKV(ctx, xlog.INFO,
			"status", "shutdown",
			"closed", len(entries),
		)
	})
}

func (p *Pool) sweepLoop() {
	defer close(p.sweepStopped)
	ticker := time.NewTicker(p.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopSweep:
			return
		case <-ticker.C:
			p.sweep()
		}
	}
}

// sweep evicts entries idle beyond the timeout. It runs only on the sweeper
// goroutine, so it never overlaps itself.
func (p *Pool) sweep() {
	cutoff := time.Now().Add(-p.idleTimeout)

	p.mu.Lock()
	var expired []Key
	var clients []mcp.IClient
	for key, e := range p.entries {
		if e.lastUsed.Before(cutoff) {
			expired = append(expired, key)
			clients = append(clients, e.client)
			delete(p.entries, key)
		}
	}
	p.mu.Unlock()

	for i, key := range expired {
		closeQuietly(clients[i], key)
		metricskey.StatsConnectionsEvicted.IncrCounter(1, key.ServerID)
		logger.KV(xlog.INFO,
			"status", "evicted_idle",
			"server", key.ServerID,
			"principal", key.PrincipalID,
		)
	}
}

func closeQuietly(client mcp.IClient, key Key) {
	if client == nil {
		return
	}
	if err := client.Close(); err != nil {
		logger.KV(xlog.WARNING,
			"reason", "close_failed",
			"server", key.ServerID,
			"err", err.Error(),
		)
	}
}
