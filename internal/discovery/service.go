// Package discovery finds miners on the local network
package discovery

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robgonnella/hashwatch/internal/exception"
	"github.com/robgonnella/hashwatch/internal/logger"
	"github.com/robgonnella/hashwatch/internal/miner"
	"golang.org/x/sync/semaphore"
)

type scan struct {
	id     string
	cancel context.CancelFunc
	done   chan struct{}
}

// Engine runs discovery scans. Each scan has its own concurrency bound,
// independent of polling, and a hard overall timeout.
type Engine struct {
	log      logger.Logger
	probers  []Prober
	sweeper  Sweeper
	defaults Request
	mu       sync.Mutex
	scans    map[string]*scan
}

// NewEngine returns a new Engine. Probers are tried in the order given;
// sweeper may be nil.
func NewEngine(probers []Prober, sweeper Sweeper, defaults Request) *Engine {
	def := DefaultRequest()

	if defaults.Concurrency <= 0 {
		defaults.Concurrency = def.Concurrency
	}

	if defaults.ProbeTimeout <= 0 {
		defaults.ProbeTimeout = def.ProbeTimeout
	}

	if defaults.ScanTimeout <= 0 {
		defaults.ScanTimeout = def.ScanTimeout
	}

	return &Engine{
		log:      logger.New().Component("discovery"),
		probers:  probers,
		sweeper:  sweeper,
		defaults: defaults,
		scans:    map[string]*scan{},
	}
}

// Start begins a scan and streams results on the returned channel, which
// is closed when the scan finishes, is stopped, or times out
func (e *Engine) Start(ctx context.Context, req Request) (string, <-chan Result, error) {
	req = e.fill(req)

	hosts, err := ExpandTargets(req.Targets)

	if err != nil {
		return "", nil, err
	}

	if len(hosts) == 0 {
		return "", nil, errors.New("no scan targets")
	}

	scanCtx, cancel := context.WithTimeout(ctx, req.ScanTimeout)

	s := &scan{
		id:     uuid.New().String(),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	results := make(chan Result, req.Concurrency)

	e.mu.Lock()
	e.scans[s.id] = s
	e.mu.Unlock()

	e.log.Info().
		Str("scanID", s.id).
		Int("hosts", len(hosts)).
		Int("concurrency", req.Concurrency).
		Dur("probeTimeout", req.ProbeTimeout).
		Dur("scanTimeout", req.ScanTimeout).
		Msg("starting network scan")

	go e.run(scanCtx, s, req, hosts, results)

	return s.id, results, nil
}

// Stop cancels a running scan. Probes in flight finish or time out; no new
// probes start.
func (e *Engine) Stop(scanID string) error {
	e.mu.Lock()
	s, ok := e.scans[scanID]
	e.mu.Unlock()

	if !ok {
		return exception.ErrScanNotFound
	}

	s.cancel()

	return nil
}

// Wait blocks until the scan has fully shut down
func (e *Engine) Wait(scanID string) {
	e.mu.Lock()
	s, ok := e.scans[scanID]
	e.mu.Unlock()

	if ok {
		<-s.done
	}
}

// Active returns ids of running scans
func (e *Engine) Active() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	ids := make([]string, 0, len(e.scans))

	for id := range e.scans {
		ids = append(ids, id)
	}

	return ids
}

func (e *Engine) fill(req Request) Request {
	if req.Concurrency <= 0 {
		req.Concurrency = e.defaults.Concurrency
	}

	if req.ProbeTimeout <= 0 {
		req.ProbeTimeout = e.defaults.ProbeTimeout
	}

	if req.ScanTimeout <= 0 {
		req.ScanTimeout = e.defaults.ScanTimeout
	}

	if len(req.Targets) == 0 {
		req.Targets = e.defaults.Targets
	}

	return req
}

func (e *Engine) run(ctx context.Context, s *scan, req Request, hosts []string, results chan<- Result) {
	start := time.Now()

	var found, unresponsive, probed atomic.Int64

	defer func() {
		s.cancel()

		e.mu.Lock()
		delete(e.scans, s.id)
		e.mu.Unlock()

		close(results)
		close(s.done)
	}()

	emit := func(r Result) {
		r.ScanID = s.id

		switch r.Status {
		case StatusFound:
			found.Add(1)
		case StatusUnresponsive:
			unresponsive.Add(1)
		}

		select {
		case results <- r:
		case <-ctx.Done():
		}
	}

	if e.sweeper != nil {
		hosts = e.sweep(ctx, hosts, emit)
	}

	sem := semaphore.NewWeighted(int64(req.Concurrency))
	wg := sync.WaitGroup{}

	for _, host := range hosts {
		// cancellation takes effect between probes
		if ctx.Err() != nil {
			break
		}

		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}

		probed.Add(1)
		wg.Add(1)

		go func(host string) {
			defer wg.Done()
			defer sem.Release(1)

			r := probeHost(ctx, e.probers, host, req.ProbeTimeout)

			// probes cut short by stop or scan timeout are not reported
			if ctx.Err() != nil {
				return
			}

			emit(r)
		}(host)
	}

	wg.Wait()

	evt := e.log.Info()

	if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
		evt = e.log.Warn().Err(err)
	}

	evt.
		Str("scanID", s.id).
		Int64("probed", probed.Load()).
		Int("skipped", len(hosts)-int(probed.Load())).
		Int64("found", found.Load()).
		Int64("unresponsive", unresponsive.Load()).
		Dur("elapsed", time.Since(start)).
		Msg("network scan finished")
}

// sweep streams hosts the sweeper reports down and returns the rest. A
// failed sweep falls back to probing every host.
func (e *Engine) sweep(ctx context.Context, hosts []string, emit func(Result)) []string {
	up, err := e.sweeper.Sweep(ctx, hosts)

	if err != nil {
		e.log.Warn().Err(err).Msg("ping sweep failed, probing every host")
		return hosts
	}

	alive := map[string]bool{}

	for _, h := range up {
		alive[h] = true
	}

	remaining := []string{}

	for _, h := range hosts {
		if alive[h] {
			remaining = append(remaining, h)
			continue
		}

		emit(unreachableResult(h))
	}

	return remaining
}

func unreachableResult(host string) Result {
	return Result{
		Address: host,
		Status:  StatusUnresponsive,
		Kind:    miner.KindUnknown,
		Reason:  miner.ScanHostUnreachable,
		Err: &miner.ScanError{
			Reason: miner.ScanHostUnreachable,
			Host:   host,
			Err:    errors.New("host is down"),
		},
	}
}
