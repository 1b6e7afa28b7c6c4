package discovery

import (
	"context"
	"errors"
	"time"

	"github.com/robgonnella/hashwatch/internal/adapter"
	"github.com/robgonnella/hashwatch/internal/miner"
)

var errNoResponse = errors.New("no response")

// probeHost runs every prober against host in priority order until one
// recognizes it. Probers on a port whose connection already failed are
// skipped.
func probeHost(ctx context.Context, probers []Prober, host string, timeout time.Duration) Result {
	r := Result{
		Address: host,
		Status:  StatusUnresponsive,
		Kind:    miner.KindUnknown,
	}

	start := time.Now()
	deadPorts := map[int]bool{}
	answered := false
	timedOut := true
	var lastErr error

	for _, p := range probers {
		if ctx.Err() != nil {
			break
		}

		port := p.Kind().DefaultPort()

		if deadPorts[port] {
			continue
		}

		probeCtx, cancel := context.WithTimeout(ctx, timeout)
		begin := time.Now()
		identity, err := callProbe(probeCtx, p, host)
		expired := errors.Is(probeCtx.Err(), context.DeadlineExceeded)
		cancel()

		if err == nil {
			r.Status = StatusFound
			r.Kind = p.Kind()
			r.Port = port
			r.Latency = time.Since(begin)
			r.Identity = identity

			if identity != nil && identity.Port != 0 {
				r.Port = identity.Port
			}

			return r
		}

		if unreachable(err) || expired {
			deadPorts[port] = true
			lastErr = err

			if !isTimeout(err) && !expired {
				timedOut = false
			}

			continue
		}

		if !answered {
			answered = true
			r.Latency = time.Since(begin)
		}
	}

	if answered {
		r.Status = StatusUnknown
		return r
	}

	if lastErr == nil {
		lastErr = errNoResponse
		timedOut = false
	}

	reason := miner.ScanHostUnreachable

	if timedOut {
		reason = miner.ScanProbeTimeout
	}

	r.Latency = time.Since(start)
	r.Reason = reason
	r.Err = &miner.ScanError{Reason: reason, Host: host, Err: lastErr}

	return r
}

type probeResult struct {
	identity *adapter.Identity
	err      error
}

// callProbe abandons a probe that outlives ctx
func callProbe(ctx context.Context, p Prober, host string) (*adapter.Identity, error) {
	result := make(chan probeResult, 1)

	go func() {
		identity, err := p.Probe(ctx, host)
		result <- probeResult{identity: identity, err: err}
	}()

	select {
	case r := <-result:
		return r.identity, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func unreachable(err error) bool {
	var connErr *miner.ConnectError
	var fetchErr *miner.FetchError

	if errors.As(err, &connErr) {
		return true
	}

	return errors.As(err, &fetchErr) && fetchErr.Reason == miner.FetchTimeout
}

func isTimeout(err error) bool {
	var connErr *miner.ConnectError
	var fetchErr *miner.FetchError

	if errors.As(err, &connErr) {
		return connErr.Reason == miner.ConnectTimeout
	}

	if errors.As(err, &fetchErr) {
		return fetchErr.Reason == miner.FetchTimeout
	}

	return errors.Is(err, context.DeadlineExceeded)
}
