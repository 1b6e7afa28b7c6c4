// Package webui implements the scraping adapter for devices that only expose
// an HTML status page.
package webui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/robgonnella/hashwatch/internal/adapter"
	"github.com/robgonnella/hashwatch/internal/miner"
)

const maxBody = 2 << 20

// Selectors locates each metric on the status page
type Selectors struct {
	Path        string `json:"path" yaml:"path"`
	Hashrate    string `json:"hashrate" yaml:"hashrate"`
	Temperature string `json:"temperature" yaml:"temperature"`
	Fan         string `json:"fan" yaml:"fan"`
	Accepted    string `json:"accepted" yaml:"accepted"`
	Rejected    string `json:"rejected" yaml:"rejected"`
	Uptime      string `json:"uptime" yaml:"uptime"`
}

// DefaultSelectors returns the selectors used when none are configured
func DefaultSelectors() Selectors {
	return Selectors{
		Path:        "/",
		Hashrate:    "#hashrate",
		Temperature: "#temperature",
		Fan:         "#fan",
		Accepted:    "#accepted",
		Rejected:    "#rejected",
		Uptime:      "#uptime",
	}
}

// Adapter is the scraping implementation of adapter.Adapter
type Adapter struct {
	httpClient *http.Client
	selectors  Selectors
}

// Option configures an Adapter
type Option func(*Adapter)

// WithTimeout sets the HTTP client timeout
func WithTimeout(timeout time.Duration) Option {
	return func(a *Adapter) {
		a.httpClient.Timeout = timeout
	}
}

// WithSelectors overrides the default selectors. Empty fields keep their
// defaults.
func WithSelectors(s Selectors) Option {
	return func(a *Adapter) {
		fields := []struct {
			value  string
			target *string
		}{
			{s.Path, &a.selectors.Path},
			{s.Hashrate, &a.selectors.Hashrate},
			{s.Temperature, &a.selectors.Temperature},
			{s.Fan, &a.selectors.Fan},
			{s.Accepted, &a.selectors.Accepted},
			{s.Rejected, &a.selectors.Rejected},
			{s.Uptime, &a.selectors.Uptime},
		}

		for _, f := range fields {
			if f.value != "" {
				*f.target = f.value
			}
		}
	}
}

// New returns a new scraping adapter
func New(opts ...Option) *Adapter {
	a := &Adapter{
		httpClient: &http.Client{Timeout: 5 * time.Second},
		selectors:  DefaultSelectors(),
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

type handle struct {
	conf miner.Config
	url  string
}

func (h *handle) Device() miner.Config {
	return h.conf
}

// Kind implements adapter.Adapter
func (a *Adapter) Kind() miner.Kind {
	return miner.KindWebUI
}

// Connect loads the status page once
func (a *Adapter) Connect(ctx context.Context, conf miner.Config) (adapter.Handle, error) {
	h := &handle{
		conf: conf,
		url:  "http://" + conf.Endpoint() + a.selectors.Path,
	}

	if _, err := a.page(ctx, h); err != nil {
		return nil, err
	}

	return h, nil
}

// FetchStatus scrapes the status page into a snapshot
func (a *Adapter) FetchStatus(ctx context.Context, h adapter.Handle) (miner.Snapshot, error) {
	hd, err := a.own(h)

	if err != nil {
		return miner.Snapshot{}, err
	}

	doc, err := a.page(ctx, hd)

	if err != nil {
		return miner.Snapshot{}, err
	}

	return a.extract(doc, hd.conf.ID)
}

func (a *Adapter) extract(doc *goquery.Document, id string) (miner.Snapshot, error) {
	text, found := selectText(doc, a.selectors.Hashrate)

	if !found {
		return miner.Snapshot{}, drift(a.selectors.Hashrate, errors.New("selector matched nothing"))
	}

	hashrate, err := ParseHashrate(text)

	if err != nil {
		return miner.Snapshot{}, drift(a.selectors.Hashrate, err)
	}

	snap := miner.Snapshot{
		DeviceID:  id,
		Kind:      miner.KindWebUI,
		Timestamp: time.Now(),
		Hashrate:  miner.Float(hashrate),
	}

	if text, ok := selectText(doc, a.selectors.Temperature); ok {
		v, err := ParseNumber(text)

		if err != nil {
			return miner.Snapshot{}, drift(a.selectors.Temperature, err)
		}

		snap.Temperatures = map[string]float64{"board": v}
	}

	if text, ok := selectText(doc, a.selectors.Fan); ok {
		v, err := ParseNumber(text)

		if err != nil {
			return miner.Snapshot{}, drift(a.selectors.Fan, err)
		}

		if strings.Contains(strings.ToLower(text), "rpm") {
			snap.FanRPM = miner.Float(v)
		} else {
			snap.FanPercent = miner.Float(v)
		}
	}

	for _, c := range []struct {
		selector string
		target   **uint64
	}{
		{a.selectors.Accepted, &snap.Accepted},
		{a.selectors.Rejected, &snap.Rejected},
	} {
		text, ok := selectText(doc, c.selector)

		if !ok {
			continue
		}

		v, err := ParseNumber(text)

		if err != nil || v < 0 {
			return miner.Snapshot{}, drift(c.selector, fmt.Errorf("invalid share count %q", text))
		}

		*c.target = miner.Uint(uint64(v))
	}

	if text, ok := selectText(doc, a.selectors.Uptime); ok {
		v, err := ParseUptime(text)

		if err != nil {
			return miner.Snapshot{}, drift(a.selectors.Uptime, err)
		}

		snap.UptimeSeconds = miner.Int64(v)
	}

	// anything the page tags as a metric lands in the extra bag
	extra := map[string]any{}

	doc.Find("[data-metric]").Each(func(_ int, s *goquery.Selection) {
		name, _ := s.Attr("data-metric")
		value := strings.TrimSpace(s.Text())

		if name == "" || value == "" {
			return
		}

		if n, err := ParseNumber(value); err == nil && numberPattern.FindString(value) == value {
			extra[name] = n
			return
		}

		extra[name] = value
	})

	if len(extra) > 0 {
		snap.Extra = extra
	}

	return snap, nil
}

// ApplySettings implements adapter.Adapter. Scraped devices are read-only.
func (a *Adapter) ApplySettings(ctx context.Context, h adapter.Handle, settings miner.Settings) (miner.Ack, error) {
	if _, err := a.own(h); err != nil {
		return miner.Ack{}, err
	}

	return miner.Ack{}, miner.NewSettingsError(
		miner.SettingsUnsupported,
		"",
		errors.New("web ui devices are read-only"),
	)
}

// Close implements adapter.Adapter
func (a *Adapter) Close(h adapter.Handle) error {
	_, err := a.own(h)
	return err
}

// Probe recognizes a page carrying the hashrate selector
func (a *Adapter) Probe(ctx context.Context, host string) (*adapter.Identity, error) {
	conf := miner.Config{Address: host, Kind: miner.KindWebUI}
	h := &handle{conf: conf, url: "http://" + conf.Endpoint() + a.selectors.Path}

	doc, err := a.page(ctx, h)

	if err != nil {
		return nil, err
	}

	if _, found := selectText(doc, a.selectors.Hashrate); !found {
		return nil, drift(a.selectors.Hashrate, errors.New("not a recognized status page"))
	}

	return &adapter.Identity{
		Model:    strings.TrimSpace(doc.Find("title").First().Text()),
		Firmware: "webui",
		Port:     miner.KindWebUI.DefaultPort(),
	}, nil
}

func (a *Adapter) own(h adapter.Handle) (*handle, error) {
	hd, ok := h.(*handle)

	if !ok || hd == nil {
		return nil, fmt.Errorf("webui: foreign handle %T", h)
	}

	return hd, nil
}

func (a *Adapter) page(ctx context.Context, h *handle) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)

	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "text/html")

	if h.conf.Username != "" {
		req.SetBasicAuth(h.conf.Username, h.conf.Password)
	}

	resp, err := a.httpClient.Do(req)

	if err != nil {
		return nil, adapter.ClassifyConnect(h.conf.Endpoint(), err)
	}

	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, adapter.ClassifyStatus(resp.StatusCode, string(body))
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxBody))

	if err != nil {
		return nil, adapter.ClassifyFetch(h.conf.Endpoint(), err)
	}

	return doc, nil
}

func selectText(doc *goquery.Document, selector string) (string, bool) {
	if selector == "" {
		return "", false
	}

	sel := doc.Find(selector).First()

	if sel.Length() == 0 {
		return "", false
	}

	// inputs and meters carry their reading in an attribute
	if v, ok := sel.Attr("value"); ok {
		return strings.TrimSpace(v), true
	}

	return strings.TrimSpace(sel.Text()), true
}

func drift(selector string, err error) error {
	return miner.NewFetchError(miner.FetchSchemaDrift, selector, err)
}

// Ensure Adapter implements adapter.Adapter
var _ adapter.Adapter = (*Adapter)(nil)
