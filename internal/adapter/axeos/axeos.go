// Package axeos implements the HTTP JSON API adapter for AxeOS based solo
// miners (Bitaxe, NerdQaxe and friends).
package axeos

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/robgonnella/hashwatch/internal/adapter"
	"github.com/robgonnella/hashwatch/internal/miner"
)

const (
	infoPath    = "/api/system/info"
	systemPath  = "/api/system"
	restartPath = "/api/system/restart"

	// hashRate is reported in GH/s
	ghs = 1e9

	maxBody = 1 << 20
)

// canonical payload keys, everything else ends up in the extra bag
var canonicalKeys = map[string]bool{
	"hashRate":       true,
	"temp":           true,
	"vrTemp":         true,
	"fanspeed":       true,
	"fanrpm":         true,
	"sharesAccepted": true,
	"sharesRejected": true,
	"uptimeSeconds":  true,
}

// systemInfo is the subset of /api/system/info hashwatch understands.
// Pointers stay nil when the firmware omits a field.
type systemInfo struct {
	HashRate       *float64 `json:"hashRate"`
	Temp           *float64 `json:"temp"`
	VRTemp         *float64 `json:"vrTemp"`
	FanSpeed       *float64 `json:"fanspeed"`
	FanRPM         *float64 `json:"fanrpm"`
	SharesAccepted *uint64  `json:"sharesAccepted"`
	SharesRejected *uint64  `json:"sharesRejected"`
	UptimeSeconds  *int64   `json:"uptimeSeconds"`
	ASICModel      string   `json:"ASICModel"`
	Version        string   `json:"version"`
	Hostname       string   `json:"hostname"`
	MACAddr        string   `json:"macAddr"`
}

// Adapter is the AxeOS implementation of adapter.Adapter
type Adapter struct {
	httpClient *http.Client
}

// Option configures an Adapter
type Option func(*Adapter)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(a *Adapter) {
		a.httpClient = client
	}
}

// WithTimeout sets the HTTP client timeout
func WithTimeout(timeout time.Duration) Option {
	return func(a *Adapter) {
		a.httpClient.Timeout = timeout
	}
}

// New returns a new AxeOS adapter
func New(opts ...Option) *Adapter {
	a := &Adapter{
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

type handle struct {
	conf    miner.Config
	baseURL string
}

func (h *handle) Device() miner.Config {
	return h.conf
}

// Kind implements adapter.Adapter
func (a *Adapter) Kind() miner.Kind {
	return miner.KindAxeOS
}

// Connect verifies the device answers its info endpoint
func (a *Adapter) Connect(ctx context.Context, conf miner.Config) (adapter.Handle, error) {
	h := &handle{
		conf:    conf,
		baseURL: "http://" + conf.Endpoint(),
	}

	if _, _, err := a.systemInfo(ctx, h); err != nil {
		return nil, err
	}

	return h, nil
}

// FetchStatus reads /api/system/info and maps it to a snapshot
func (a *Adapter) FetchStatus(ctx context.Context, h adapter.Handle) (miner.Snapshot, error) {
	hd, err := a.own(h)

	if err != nil {
		return miner.Snapshot{}, err
	}

	info, raw, err := a.systemInfo(ctx, hd)

	if err != nil {
		return miner.Snapshot{}, err
	}

	if info.HashRate == nil {
		return miner.Snapshot{}, miner.NewFetchError(
			miner.FetchMalformed,
			"hashRate",
			errors.New("payload has no hashRate"),
		)
	}

	snap := miner.Snapshot{
		DeviceID:      hd.conf.ID,
		Kind:          miner.KindAxeOS,
		Timestamp:     time.Now(),
		Hashrate:      miner.Float(*info.HashRate * ghs),
		FanPercent:    info.FanSpeed,
		FanRPM:        info.FanRPM,
		Accepted:      info.SharesAccepted,
		Rejected:      info.SharesRejected,
		UptimeSeconds: info.UptimeSeconds,
		Extra:         extra(raw),
	}

	temps := map[string]float64{}

	if info.Temp != nil {
		temps["asic"] = *info.Temp
	}

	if info.VRTemp != nil {
		temps["vr"] = *info.VRTemp
	}

	if len(temps) > 0 {
		snap.Temperatures = temps
	}

	return snap, nil
}

// ApplySettings PATCHes /api/system with the provided keys only
func (a *Adapter) ApplySettings(ctx context.Context, h adapter.Handle, settings miner.Settings) (miner.Ack, error) {
	hd, err := a.own(h)

	if err != nil {
		return miner.Ack{}, err
	}

	if settings.Tuning.PowerLimit != nil {
		return miner.Ack{}, miner.NewSettingsError(
			miner.SettingsUnsupported,
			"powerLimit",
			errors.New("axeos has no power limit setting"),
		)
	}

	body := map[string]any{}
	applied := []string{}

	if p := settings.Pool; p != nil {
		if p.URL != "" {
			body["stratumURL"] = p.URL
			applied = append(applied, "pool.url")
		}
		if p.Port != 0 {
			body["stratumPort"] = p.Port
			applied = append(applied, "pool.port")
		}
		if p.User != "" {
			body["stratumUser"] = p.User
			applied = append(applied, "pool.user")
		}
		if p.Password != "" {
			body["stratumPassword"] = p.Password
			applied = append(applied, "pool.password")
		}
	}

	if v := settings.Tuning.FanSpeed; v != nil {
		body["autofanspeed"] = 0
		body["fanspeed"] = *v
		applied = append(applied, "tuning.fanSpeed")
	}

	if v := settings.Tuning.Frequency; v != nil {
		body["frequency"] = *v
		applied = append(applied, "tuning.frequency")
	}

	if len(body) > 0 {
		if err := a.send(ctx, hd, http.MethodPatch, systemPath, body); err != nil {
			return miner.Ack{}, err
		}
	}

	if settings.Restart {
		if err := a.send(ctx, hd, http.MethodPost, restartPath, nil); err != nil {
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

// Close implements adapter.Adapter. HTTP sessions hold nothing open.
func (a *Adapter) Close(h adapter.Handle) error {
	_, err := a.own(h)
	return err
}

// Probe fingerprints AxeOS by its info endpoint on port 80
func (a *Adapter) Probe(ctx context.Context, host string) (*adapter.Identity, error) {
	conf := miner.Config{Address: host, Kind: miner.KindAxeOS}
	h := &handle{conf: conf, baseURL: "http://" + conf.Endpoint()}

	info, _, err := a.systemInfo(ctx, h)

	if err != nil {
		return nil, err
	}

	if info.ASICModel == "" && info.HashRate == nil {
		return nil, miner.NewFetchError(
			miner.FetchMalformed,
			"ASICModel",
			errors.New("not an axeos device"),
		)
	}

	return &adapter.Identity{
		Model:    info.ASICModel,
		Firmware: "AxeOS",
		Version:  info.Version,
		Hostname: info.Hostname,
		MAC:      info.MACAddr,
		Port:     miner.KindAxeOS.DefaultPort(),
	}, nil
}

func (a *Adapter) own(h adapter.Handle) (*handle, error) {
	hd, ok := h.(*handle)

	if !ok || hd == nil {
		return nil, fmt.Errorf("axeos: foreign handle %T", h)
	}

	return hd, nil
}

func (a *Adapter) systemInfo(ctx context.Context, h *handle) (*systemInfo, map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.baseURL+infoPath, nil)

	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-cache")
	a.authorize(req, h.conf)

	resp, err := a.httpClient.Do(req)

	if err != nil {
		return nil, nil, adapter.ClassifyConnect(h.conf.Endpoint(), err)
	}

	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))

	if err != nil {
		return nil, nil, adapter.ClassifyFetch(h.conf.Endpoint(), err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, nil, adapter.ClassifyStatus(resp.StatusCode, string(body))
	}

	info := &systemInfo{}

	if err := json.Unmarshal(body, info); err != nil {
		return nil, nil, miner.NewFetchError(miner.FetchMalformed, "", fmt.Errorf("failed to parse response: %w", err))
	}

	raw := map[string]any{}

	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, nil, miner.NewFetchError(miner.FetchMalformed, "", fmt.Errorf("failed to parse response: %w", err))
	}

	return info, raw, nil
}

func (a *Adapter) send(ctx context.Context, h *handle, method, path string, body any) error {
	var reader io.Reader

	if body != nil {
		data, err := json.Marshal(body)

		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}

		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, h.baseURL+path, reader)

	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	a.authorize(req, h.conf)

	resp, err := a.httpClient.Do(req)

	if err != nil {
		return adapter.ClassifyConnect(h.conf.Endpoint(), err)
	}

	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxBody))

	return miner.NewSettingsError(
		miner.SettingsRejected,
		strings.TrimPrefix(path, "/api/"),
		fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(respBody)),
	)
}

func (a *Adapter) authorize(req *http.Request, conf miner.Config) {
	if conf.Username != "" {
		req.SetBasicAuth(conf.Username, conf.Password)
	}
}

// extra keeps the scalar, non-canonical fields of the payload
func extra(raw map[string]any) map[string]any {
	bag := map[string]any{}

	for k, v := range raw {
		if canonicalKeys[k] {
			continue
		}

		switch v.(type) {
		case string, float64, bool:
			bag[k] = v
		}
	}

	if len(bag) == 0 {
		return nil
	}

	return bag
}

// Ensure Adapter implements adapter.Adapter
var _ adapter.Adapter = (*Adapter)(nil)
