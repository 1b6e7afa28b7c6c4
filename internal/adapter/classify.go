package adapter

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"syscall"

	"github.com/robgonnella/hashwatch/internal/miner"
)

// ClassifyConnect translates a raw transport error raised while reaching
// address into a miner.ConnectError. Errors already in the taxonomy are
// returned unchanged.
func ClassifyConnect(address string, err error) error {
	if err == nil || isTaxonomy(err) {
		return err
	}

	var dnsErr *net.DNSError

	switch {
	case isTimeout(err):
		return &miner.ConnectError{Reason: miner.ConnectTimeout, Address: address, Err: err}
	case errors.As(err, &dnsErr):
		return &miner.ConnectError{Reason: miner.ConnectDNS, Address: address, Err: err}
	default:
		return &miner.ConnectError{Reason: miner.ConnectRefused, Address: address, Err: err}
	}
}

// ClassifyFetch translates an error raised mid-request. Timeouts become
// FetchError{timeout}; losing the connection altogether is reported as a
// ConnectError since the device is no longer reachable.
func ClassifyFetch(address string, err error) error {
	if err == nil || isTaxonomy(err) {
		return err
	}

	if isTimeout(err) {
		return miner.NewFetchError(miner.FetchTimeout, "", err)
	}

	var dnsErr *net.DNSError
	var opErr *net.OpError

	if errors.As(err, &dnsErr) || errors.As(err, &opErr) || errors.Is(err, syscall.ECONNREFUSED) {
		return ClassifyConnect(address, err)
	}

	return miner.NewFetchError(miner.FetchMalformed, "", err)
}

// ClassifyStatus maps a non-2xx HTTP status to a FetchError
func ClassifyStatus(code int, body string) error {
	err := fmt.Errorf("unexpected status %d: %s", code, body)

	if code == http.StatusUnauthorized || code == http.StatusForbidden {
		return miner.NewFetchError(miner.FetchUnauthorized, "", err)
	}

	return miner.NewFetchError(miner.FetchMalformed, "", err)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error

	return errors.As(err, &netErr) && netErr.Timeout()
}

func isTaxonomy(err error) bool {
	var connErr *miner.ConnectError
	var fetchErr *miner.FetchError
	var settingsErr *miner.SettingsError

	return errors.As(err, &connErr) || errors.As(err, &fetchErr) || errors.As(err, &settingsErr)
}
