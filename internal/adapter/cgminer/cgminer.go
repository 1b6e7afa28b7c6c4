// Package cgminer implements the socket API adapter for devices running
// CGMiner, BMMiner, BOSminer and other firmware speaking the same protocol.
package cgminer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robgonnella/hashwatch/internal/adapter"
	"github.com/robgonnella/hashwatch/internal/miner"
)

// summary keys mapped onto canonical snapshot fields
var summaryKeys = map[string]bool{
	"MHS 5s":   true,
	"MHS av":   true,
	"GHS 5s":   true,
	"GHS av":   true,
	"Accepted": true,
	"Rejected": true,
	"Elapsed":  true,
}

// Adapter is the CGMiner implementation of adapter.Adapter
type Adapter struct {
	timeout time.Duration
}

// Option configures an Adapter
type Option func(*Adapter)

// WithTimeout sets the per command socket timeout
func WithTimeout(timeout time.Duration) Option {
	return func(a *Adapter) {
		a.timeout = timeout
	}
}

// New returns a new CGMiner adapter
func New(opts ...Option) *Adapter {
	a := &Adapter{
		timeout: 5 * time.Second,
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

type handle struct {
	conf   miner.Config
	client *Client
}

func (h *handle) Device() miner.Config {
	return h.conf
}

// Kind implements adapter.Adapter
func (a *Adapter) Kind() miner.Kind {
	return miner.KindCGMiner
}

// Connect issues a version command to prove the socket answers
func (a *Adapter) Connect(ctx context.Context, conf miner.Config) (adapter.Handle, error) {
	h := &handle{
		conf:   conf,
		client: NewClient(conf.Endpoint(), a.timeout),
	}

	if _, err := h.client.Command(ctx, "version", ""); err != nil {
		return nil, err
	}

	return h, nil
}

// FetchStatus combines summary (required) with stats (best effort)
func (a *Adapter) FetchStatus(ctx context.Context, h adapter.Handle) (miner.Snapshot, error) {
	hd, err := a.own(h)

	if err != nil {
		return miner.Snapshot{}, err
	}

	resp, err := hd.client.Command(ctx, "summary", "")

	if err != nil {
		return miner.Snapshot{}, err
	}

	if resp.AccessDenied() {
		return miner.Snapshot{}, miner.NewFetchError(miner.FetchUnauthorized, "summary", errors.New(resp.Status[0].Msg))
	}

	if !resp.OK() {
		return miner.Snapshot{}, miner.NewFetchError(miner.FetchMalformed, "STATUS", errors.New(resp.Status[0].Msg))
	}

	entries := resp.Section("SUMMARY")

	if len(entries) == 0 {
		return miner.Snapshot{}, miner.NewFetchError(
			miner.FetchMalformed,
			"SUMMARY",
			errors.New("reply has no SUMMARY section"),
		)
	}

	summary := entries[0]

	hashrate, ok := summaryHashrate(summary)

	if !ok {
		return miner.Snapshot{}, miner.NewFetchError(
			miner.FetchMalformed,
			"MHS 5s",
			errors.New("summary has no hashrate"),
		)
	}

	snap := miner.Snapshot{
		DeviceID:  hd.conf.ID,
		Kind:      miner.KindCGMiner,
		Timestamp: time.Now(),
		Hashrate:  miner.Float(hashrate),
	}

	if v, ok := Number(summary["Accepted"]); ok {
		snap.Accepted = miner.Uint(uint64(v))
	}

	if v, ok := Number(summary["Rejected"]); ok {
		snap.Rejected = miner.Uint(uint64(v))
	}

	if v, ok := Number(summary["Elapsed"]); ok {
		snap.UptimeSeconds = miner.Int64(int64(v))
	}

	extra := map[string]any{}

	for k, v := range summary {
		if summaryKeys[k] {
			continue
		}
		if scalar(v) {
			extra[k] = v
		}
	}

	// a stats failure degrades the snapshot, never the poll
	if stats, err := hd.client.Command(ctx, "stats", ""); err == nil && stats.OK() {
		applyStats(&snap, stats.Section("STATS"))
	}

	if len(extra) > 0 {
		snap.Extra = extra
	}

	return snap, nil
}

// ApplySettings adds and switches to a new pool. Tuning is not exposed by
// the protocol.
func (a *Adapter) ApplySettings(ctx context.Context, h adapter.Handle, settings miner.Settings) (miner.Ack, error) {
	hd, err := a.own(h)

	if err != nil {
		return miner.Ack{}, err
	}

	if param := unsupportedTuning(settings.Tuning); param != "" {
		return miner.Ack{}, miner.NewSettingsError(
			miner.SettingsUnsupported,
			param,
			errors.New("cgminer api has no tuning commands"),
		)
	}

	applied := []string{}

	if p := settings.Pool; p != nil && !p.IsZero() {
		if p.URL == "" {
			return miner.Ack{}, miner.NewSettingsError(
				miner.SettingsRejected,
				"pool.url",
				errors.New("pool url is required"),
			)
		}

		url := p.URL

		if p.Port != 0 {
			url = fmt.Sprintf("%s:%d", strings.TrimSuffix(url, "/"), p.Port)
		}

		if err := a.privileged(ctx, hd, "addpool", strings.Join([]string{url, p.User, p.Password}, ",")); err != nil {
			return miner.Ack{}, err
		}

		pools, err := hd.client.Command(ctx, "pools", "")

		if err != nil {
			return miner.Ack{}, err
		}

		id, ok := lastPoolID(pools.Section("POOLS"))

		if !ok {
			return miner.Ack{}, miner.NewSettingsError(
				miner.SettingsRejected,
				"pool.url",
				errors.New("added pool not listed"),
			)
		}

		if err := a.privileged(ctx, hd, "switchpool", strconv.Itoa(id)); err != nil {
			return miner.Ack{}, err
		}

		applied = append(applied, "pool.url")

		if p.Port != 0 {
			applied = append(applied, "pool.port")
		}
		if p.User != "" {
			applied = append(applied, "pool.user")
		}
		if p.Password != "" {
			applied = append(applied, "pool.password")
		}
	}

	if settings.Restart {
		if err := a.privileged(ctx, hd, "restart", ""); err != nil {
			return miner.Ack{}, err
		}
		applied = append(applied, "restart")
	}

	return miner.Ack{
		DeviceID: hd.conf.ID,
		Applied:  applied,
		At:       time.Now(),
	}, nil
}

// Close implements adapter.Adapter. Every command dials its own socket so
// there is nothing to release.
func (a *Adapter) Close(h adapter.Handle) error {
	_, err := a.own(h)
	return err
}

// Probe fingerprints a host through the version command on port 4028
func (a *Adapter) Probe(ctx context.Context, host string) (*adapter.Identity, error) {
	conf := miner.Config{Address: host, Kind: miner.KindCGMiner}
	client := NewClient(conf.Endpoint(), a.timeout)

	resp, err := client.Command(ctx, "version", "")

	if err != nil {
		return nil, err
	}

	versions := resp.Section("VERSION")

	if len(versions) == 0 {
		return nil, miner.NewFetchError(miner.FetchMalformed, "VERSION", errors.New("reply has no VERSION section"))
	}

	v := versions[0]
	id := &adapter.Identity{
		Port:  miner.KindCGMiner.DefaultPort(),
		Extra: map[string]string{},
	}

	for key, val := range v {
		s := fmt.Sprint(val)

		switch key {
		case "Type":
			id.Model = s
		case "CGMiner", "BMMiner", "BOSminer", "LUXminer", "Miner":
			id.Firmware = key
			id.Version = s
		default:
			id.Extra[key] = s
		}
	}

	if id.Firmware == "" {
		id.Firmware = "cgminer"
	}

	return id, nil
}

func (a *Adapter) own(h adapter.Handle) (*handle, error) {
	hd, ok := h.(*handle)

	if !ok || hd == nil {
		return nil, fmt.Errorf("cgminer: foreign handle %T", h)
	}

	return hd, nil
}

func (a *Adapter) privileged(ctx context.Context, h *handle, cmd, param string) error {
	resp, err := h.client.Command(ctx, cmd, param)

	if err != nil {
		return err
	}

	if !resp.OK() {
		msg := "command failed"

		if len(resp.Status) > 0 {
			msg = resp.Status[0].Msg
		}

		return miner.NewSettingsError(miner.SettingsRejected, cmd, errors.New(msg))
	}

	return nil
}

// summaryHashrate returns H/s, preferring the 5s window over the average.
// Newer firmware reports GH/s, older MH/s.
func summaryHashrate(summary map[string]any) (float64, bool) {
	candidates := []struct {
		key   string
		scale float64
	}{
		{"GHS 5s", 1e9},
		{"MHS 5s", 1e6},
		{"GHS av", 1e9},
		{"MHS av", 1e6},
	}

	for _, c := range candidates {
		if v, ok := Number(summary[c.key]); ok {
			return v * c.scale, true
		}
	}

	return 0, false
}

// applyStats folds temperature and fan readings from the stats reply into
// the snapshot. Antminer style firmware numbers them temp1..tempN and
// fan1..fanN, chip temps as temp2_1..
func applyStats(snap *miner.Snapshot, stats []map[string]any) {
	temps := map[string]float64{}
	maxRPM := 0.0

	for _, entry := range stats {
		for k, v := range entry {
			n, ok := Number(v)

			if !ok || n <= 0 {
				continue
			}

			lk := strings.ToLower(k)

			switch {
			case strings.HasPrefix(lk, "temp") && !strings.Contains(lk, "_num") && !strings.HasPrefix(lk, "temp_"):
				temps[lk] = n
			case strings.HasPrefix(lk, "fan") && !strings.Contains(lk, "num") && !strings.Contains(lk, "pwm"):
				if n > maxRPM {
					maxRPM = n
				}
			case lk == "fan_pwm" || lk == "fan pwm":
				snap.FanPercent = miner.Float(n)
			}
		}
	}

	if len(temps) > 0 {
		snap.Temperatures = temps
	}

	if maxRPM > 0 {
		snap.FanRPM = miner.Float(maxRPM)
	}
}

func lastPoolID(pools []map[string]any) (int, bool) {
	id := -1

	for _, p := range pools {
		if v, ok := Number(p["POOL"]); ok && int(v) > id {
			id = int(v)
		}
	}

	return id, id >= 0
}

func unsupportedTuning(t miner.Tuning) string {
	switch {
	case t.FanSpeed != nil:
		return "fanSpeed"
	case t.Frequency != nil:
		return "frequency"
	case t.PowerLimit != nil:
		return "powerLimit"
	default:
		return ""
	}
}

// Number coerces the loosely typed values firmware emits (numbers, numeric
// strings, json.Number) into a float
func Number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func scalar(v any) bool {
	switch v.(type) {
	case string, float64, bool:
		return true
	default:
		return false
	}
}

// Ensure Adapter implements adapter.Adapter
var _ adapter.Adapter = (*Adapter)(nil)
