package lsp

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"typelens/internal/config"
	lenserrors "typelens/internal/errors"
)

// Defaults for zero values in config.LspSupervisorConfig.
const (
	DefaultMaxServers     = 4
	DefaultQueueSize      = 64
	DefaultQueueWait      = 200 * time.Millisecond
	DefaultRequestTimeout = 30 * time.Second

	healthInterval = 30 * time.Second
	idleTimeout    = 15 * time.Minute
)

// spawnFunc starts the server for a key.
type spawnFunc func(key string, server config.LspServerCfg) (*Server, error)

// Pool runs at most one language server per key, starting them on first
// use and restarting them when they fail.
type Pool struct {
	cfg    *config.Config
	logger *slog.Logger

	mu       sync.RWMutex
	servers  map[string]*Server
	restarts map[string]*restartState

	queuesMu sync.Mutex
	queues   map[string]*requestQueue

	// references paces textDocument/references, issued once per annotation.
	references *rate.Limiter

	maxServers int
	queueSize  int
	queueWait  time.Duration
	timeout    time.Duration

	spawn spawnFunc

	done     chan struct{}
	doneOnce sync.Once
	wg       sync.WaitGroup
}

// NewPool creates a pool for the servers in cfg.Backend.Lsp.
func NewPool(cfg *config.Config, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	limits := cfg.LspSupervisor

	p := &Pool{
		cfg:        cfg,
		logger:     logger,
		servers:    make(map[string]*Server),
		restarts:   make(map[string]*restartState),
		queues:     make(map[string]*requestQueue),
		references: rate.NewLimiter(rate.Inf, 1),
		maxServers: orDefault(limits.MaxTotalProcesses, DefaultMaxServers),
		queueSize:  orDefault(limits.QueueSizePerLanguage, DefaultQueueSize),
		queueWait:  DefaultQueueWait,
		timeout:    DefaultRequestTimeout,
		done:       make(chan struct{}),
	}
	if limits.MaxQueueWaitMs > 0 {
		p.queueWait = time.Duration(limits.MaxQueueWaitMs) * time.Millisecond
	}
	if limits.RequestTimeoutMs > 0 {
		p.timeout = time.Duration(limits.RequestTimeoutMs) * time.Millisecond
	}
	if limits.ReferencesPerSecond > 0 {
		p.references = rate.NewLimiter(rate.Limit(limits.ReferencesPerSecond), max(limits.ReferencesBurst, 1))
	}
	p.spawn = func(key string, server config.LspServerCfg) (*Server, error) {
		return spawnServer(key, cfg.RepoRoot, server.Command, server.Args, p.timeout, logger)
	}

	p.wg.Add(1)
	go p.supervise()
	return p
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// Enabled reports whether language servers may be used at all.
func (p *Pool) Enabled() bool {
	return p.cfg.Backend.Lsp.Enabled
}

// Configured reports whether a server command exists for key.
func (p *Pool) Configured(key string) bool {
	_, ok := p.cfg.Backend.Lsp.Servers[key]
	return ok
}

// Server returns the running server for key, or nil.
func (p *Pool) Server(key string) *Server {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.servers[key]
}

// Ready reports whether the server for key accepts queries.
func (p *Pool) Ready(key string) bool {
	srv := p.Server(key)
	return srv != nil && srv.Ready()
}

// Len returns the number of running servers.
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.servers)
}

// Start launches and initializes the server for key unless a ready one is
// already running. At capacity the least recently used server is evicted.
func (p *Pool) Start(key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if srv, ok := p.servers[key]; ok {
		if srv.Ready() {
			return nil
		}
		delete(p.servers, key)
		go srv.stop()
	}

	server, ok := p.cfg.Backend.Lsp.Servers[key]
	if !ok {
		return lenserrors.NewLensError(lenserrors.BackendUnavailable,
			fmt.Sprintf("no language server configured for %s", key), nil, nil)
	}

	if len(p.servers) >= p.maxServers {
		if victim := p.leastRecentlyUsedLocked(); victim != "" {
			p.logger.Info("Evicting language server to make room", "server", victim, "for", key)
			p.removeLocked(victim)
		}
	}

	srv, err := p.spawn(key, server)
	if err != nil {
		return lenserrors.Wrap(lenserrors.BackendUnavailable, err, "start %s", server.Command)
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	if err := srv.initialize(ctx); err != nil {
		srv.stop()
		return lenserrors.Wrap(lenserrors.BackendUnavailable, err, "initialize %s", server.Command)
	}

	p.servers[key] = srv
	p.queue(key)
	p.logger.Info("Spawned language server", "server", key, "command", server.Command)
	return nil
}

// queue returns the request queue for key, starting its worker on first use.
func (p *Pool) queue(key string) *requestQueue {
	p.queuesMu.Lock()
	defer p.queuesMu.Unlock()

	q, ok := p.queues[key]
	if !ok {
		q = newRequestQueue(key, p.queueSize, p.queueWait)
		p.queues[key] = q
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			q.serve(p.done, func(c *call) reply { return p.run(key, c) })
		}()
	}
	return q
}

func (p *Pool) queueLen(key string) int {
	p.queuesMu.Lock()
	q, ok := p.queues[key]
	p.queuesMu.Unlock()
	if !ok {
		return 0
	}
	return q.len()
}

// Saturated reports whether queries for key should be shed rather than
// queued.
func (p *Pool) Saturated(key string) bool {
	p.queuesMu.Lock()
	q, ok := p.queues[key]
	p.queuesMu.Unlock()
	return ok && q.saturated()
}

// drain fails every call queued for key.
func (p *Pool) drain(key string, reason string) {
	p.queuesMu.Lock()
	q, ok := p.queues[key]
	p.queuesMu.Unlock()
	if !ok {
		return
	}
	err := lenserrors.NewLensError(lenserrors.BackendUnavailable, reason, nil, nil)
	if n := q.fail(err); n > 0 {
		p.logger.Info("Failed queued queries", "server", key, "count", n, "reason", reason)
	}
}

// leastRecentlyUsedLocked picks the healthy server that answered longest
// ago, or any server when none qualifies.
func (p *Pool) leastRecentlyUsedLocked() string {
	var (
		victim string
		oldest time.Time
	)
	for key, srv := range p.servers {
		last := srv.LastResponse()
		if last.IsZero() || !srv.Ready() {
			continue
		}
		if victim == "" || last.Before(oldest) {
			victim, oldest = key, last
		}
	}
	if victim == "" {
		for key := range p.servers {
			return key
		}
	}
	return victim
}

// removeLocked forgets the server for key and stops it in the background.
func (p *Pool) removeLocked(key string) {
	srv, ok := p.servers[key]
	if !ok {
		return
	}
	delete(p.servers, key)
	go p.drain(key, "language server evicted")
	go srv.stop()
}

// EvictIdle stops servers that have not answered within timeout and returns
// how many were stopped.
func (p *Pool) EvictIdle(timeout time.Duration) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	evicted := 0
	for key, srv := range p.servers {
		last := srv.LastResponse()
		if last.IsZero() || now.Sub(last) <= timeout {
			continue
		}
		p.logger.Info("Evicting idle language server", "server", key, "idle", now.Sub(last).Round(time.Second).String())
		p.removeLocked(key)
		evicted++
	}
	return evicted
}

// supervise periodically restarts failed servers and evicts idle ones.
func (p *Pool) supervise() {
	defer p.wg.Done()

	ticker := time.NewTicker(healthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.checkAll()
			p.EvictIdle(idleTimeout)
		case <-p.done:
			return
		}
	}
}

func (p *Pool) checkAll() {
	p.mu.RLock()
	keys := make([]string, 0, len(p.servers))
	for key := range p.servers {
		keys = append(keys, key)
	}
	p.mu.RUnlock()

	for _, key := range keys {
		if !p.healthy(key) {
			p.recover(key)
		}
	}
}

// healthy reports whether the server for key is alive and not failing.
func (p *Pool) healthy(key string) bool {
	srv := p.Server(key)
	if srv == nil {
		return false
	}
	if code, exited := srv.processExited(); exited {
		p.logger.Warn("Language server exited", "server", key, "exitCode", code)
		srv.setState(StateDead)
		return false
	}

	switch srv.State() {
	case StateDead:
		return false
	case StateReady:
	default:
		return true
	}

	if n := srv.Failures(); n >= maxFailures {
		p.logger.Warn("Language server keeps failing", "server", key, "failures", n)
		srv.setState(StateUnhealthy)
		return false
	}
	p.restartState(key).reset()
	return true
}

func (p *Pool) restartState(key string) *restartState {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.restarts[key]
	if !ok {
		r = newRestartState()
		p.restarts[key] = r
	}
	return r
}

// recover replaces a failed server, honoring the restart backoff.
func (p *Pool) recover(key string) {
	p.drain(key, "language server restarting")
	if err := p.restart(key); err != nil {
		p.logger.Error("Could not restart language server", "server", key, "error", err.Error())
	}
}

func (p *Pool) restart(key string) error {
	r := p.restartState(key)

	p.mu.Lock()
	now := time.Now()
	if wait, ok := r.allowed(now); !ok {
		p.mu.Unlock()
		return lenserrors.NewLensError(lenserrors.BackendUnavailable,
			fmt.Sprintf("%s server restart backing off for %s", key, wait.Round(time.Millisecond)), nil, nil)
	}
	delay := r.record(now)
	attempts := r.attempts
	srv := p.servers[key]
	delete(p.servers, key)
	p.mu.Unlock()

	if srv != nil {
		srv.stop()
	}
	p.logger.Info("Restarting language server", "server", key, "attempt", attempts, "nextDelay", delay.String())
	return p.Start(key)
}

// HealthCheck reports whether the server for key is running and healthy.
func (p *Pool) HealthCheck(key string) error {
	if p.Server(key) == nil {
		return lenserrors.NewLensError(lenserrors.BackendUnavailable,
			fmt.Sprintf("no language server running for %s", key), nil, nil)
	}
	if !p.healthy(key) {
		return lenserrors.NewLensError(lenserrors.BackendUnavailable,
			fmt.Sprintf("language server for %s is unhealthy", key),
			nil, lenserrors.GetSuggestedFixes(lenserrors.BackendUnavailable))
	}
	return nil
}

// Shutdown stops every server and the pool's workers.
func (p *Pool) Shutdown() error {
	p.doneOnce.Do(func() { close(p.done) })

	p.mu.Lock()
	servers := p.servers
	p.servers = make(map[string]*Server)
	p.mu.Unlock()

	for key, srv := range servers {
		p.logger.Info("Stopping language server", "server", key)
		srv.stop()
	}

	p.wg.Wait()
	return nil
}

// Stats summarizes the running servers.
type Stats struct {
	Running int                    `json:"running"`
	Limit   int                    `json:"limit"`
	Servers map[string]ServerStats `json:"servers"`
}

// ServerStats describes one running server.
type ServerStats struct {
	State        ServerState `json:"state"`
	Restarts     int         `json:"restarts"`
	Failures     int         `json:"failures"`
	LastResponse time.Time   `json:"lastResponse"`
	Queued       int         `json:"queued"`
}

// Stats returns a snapshot of the running servers.
func (p *Pool) Stats() Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	stats := Stats{
		Running: len(p.servers),
		Limit:   p.maxServers,
		Servers: make(map[string]ServerStats, len(p.servers)),
	}
	for key, srv := range p.servers {
		st := ServerStats{
			State:        srv.State(),
			Failures:     srv.Failures(),
			LastResponse: srv.LastResponse(),
			Queued:       p.queueLen(key),
		}
		if r, ok := p.restarts[key]; ok {
			st.Restarts = r.attempts
		}
		stats.Servers[key] = st
	}
	return stats
}
