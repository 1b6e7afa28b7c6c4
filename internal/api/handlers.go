package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/robgonnella/hashwatch/internal/discovery"
	"github.com/robgonnella/hashwatch/internal/miner"
	"github.com/robgonnella/hashwatch/internal/util"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 1000
)

// minerBody is the writable part of a miner config. Poll interval is a
// duration string such as "30s".
type minerBody struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	Kind         miner.Kind       `json:"kind"`
	Address      string           `json:"address"`
	Port         int              `json:"port"`
	Username     string           `json:"username"`
	Password     string           `json:"password"`
	Pool         miner.PoolConfig `json:"pool"`
	Tuning       miner.Tuning     `json:"tuning"`
	PollInterval string           `json:"pollInterval"`
}

func (b minerBody) config() (miner.Config, error) {
	conf := miner.Config{
		ID:       b.ID,
		Name:     b.Name,
		Kind:     b.Kind,
		Address:  b.Address,
		Port:     b.Port,
		Username: b.Username,
		Password: b.Password,
		Pool:     b.Pool,
		Tuning:   b.Tuning,
	}

	if b.PollInterval != "" {
		d, err := time.ParseDuration(b.PollInterval)

		if err != nil {
			return miner.Config{}, badParameter("invalid pollInterval: " + err.Error())
		}

		conf.PollInterval = d
	}

	return conf, nil
}

// minerView is a miner config as served to clients. Device and pool
// passwords are never sent back.
type minerView struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Kind         miner.Kind   `json:"kind"`
	Address      string       `json:"address"`
	Port         int          `json:"port"`
	Username     string       `json:"username,omitempty"`
	Pool         poolView     `json:"pool"`
	Tuning       miner.Tuning `json:"tuning"`
	PollInterval string       `json:"pollInterval,omitempty"`
	Revision     uint64       `json:"revision"`
}

type poolView struct {
	URL  string `json:"url"`
	Port int    `json:"port"`
	User string `json:"user"`
}

func viewOf(conf miner.Config) minerView {
	v := minerView{
		ID:       conf.ID,
		Name:     conf.Name,
		Kind:     conf.Kind,
		Address:  conf.Address,
		Port:     conf.Port,
		Username: conf.Username,
		Pool: poolView{
			URL:  conf.Pool.URL,
			Port: conf.Pool.Port,
			User: conf.Pool.User,
		},
		Tuning:   conf.Tuning,
		Revision: conf.Revision,
	}

	if conf.PollInterval > 0 {
		v.PollInterval = conf.PollInterval.String()
	}

	return v
}

// scanBody starts a discovery scan. Timeouts are duration strings.
type scanBody struct {
	Targets      []string `json:"targets"`
	Concurrency  int      `json:"concurrency"`
	ProbeTimeout string   `json:"probeTimeout"`
	ScanTimeout  string   `json:"scanTimeout"`
}

func (b scanBody) request() (discovery.Request, error) {
	req := discovery.Request{
		Targets:     b.Targets,
		Concurrency: b.Concurrency,
	}

	var err error

	if b.ProbeTimeout != "" {
		if req.ProbeTimeout, err = time.ParseDuration(b.ProbeTimeout); err != nil {
			return req, badParameter("invalid probeTimeout: " + err.Error())
		}
	}

	if b.ScanTimeout != "" {
		if req.ScanTimeout, err = time.ParseDuration(b.ScanTimeout); err != nil {
			return req, badParameter("invalid scanTimeout: " + err.Error())
		}
	}

	return req, nil
}

func limitParam(c echo.Context) (int, error) {
	raw := c.QueryParam("limit")

	if raw == "" {
		return defaultHistoryLimit, nil
	}

	limit, err := strconv.Atoi(raw)

	if err != nil || limit < 1 {
		return 0, badParameter("limit must be a positive integer")
	}

	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	return limit, nil
}

func (s *Server) listMiners(c echo.Context) error {
	return c.JSON(http.StatusOK, util.SliceMap(s.service.ListMiners(), viewOf))
}

func (s *Server) addMiner(c echo.Context) error {
	var body minerBody

	if err := c.Bind(&body); err != nil {
		return badParameter("invalid request body")
	}

	conf, err := body.config()

	if err != nil {
		return err
	}

	added, err := s.service.AddMiner(conf)

	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, viewOf(added))
}

func (s *Server) getMiner(c echo.Context) error {
	conf, err := s.service.GetMiner(c.Param("id"))

	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, viewOf(conf))
}

func (s *Server) updateMiner(c echo.Context) error {
	var body minerBody

	if err := c.Bind(&body); err != nil {
		return badParameter("invalid request body")
	}

	conf, err := body.config()

	if err != nil {
		return err
	}

	// the path decides which miner is updated
	conf.ID = c.Param("id")

	// passwords are never served, so a client echoing a fetched config
	// back leaves them empty: keep the stored ones
	if current, err := s.service.GetMiner(conf.ID); err == nil {
		if conf.Password == "" {
			conf.Password = current.Password
		}

		if conf.Pool.Password == "" {
			conf.Pool.Password = current.Pool.Password
		}
	}

	updated, err := s.service.UpdateMiner(conf)

	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, viewOf(updated))
}

func (s *Server) removeMiner(c echo.Context) error {
	if err := s.service.RemoveMiner(c.Param("id")); err != nil {
		return err
	}

	return c.NoContent(http.StatusNoContent)
}

func (s *Server) minerState(c echo.Context) error {
	cs, err := s.service.State(c.Param("id"))

	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, cs)
}

func (s *Server) applySettings(c echo.Context) error {
	var settings miner.Settings

	if err := c.Bind(&settings); err != nil {
		return badParameter("invalid request body")
	}

	ack, err := s.service.ApplySettings(c.Request().Context(), c.Param("id"), settings)

	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, ack)
}

func (s *Server) snapshots(c echo.Context) error {
	limit, err := limitParam(c)

	if err != nil {
		return err
	}

	snaps, err := s.service.RecentSnapshots(c.Param("id"), limit)

	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, snaps)
}

func (s *Server) connectionEvents(c echo.Context) error {
	limit, err := limitParam(c)

	if err != nil {
		return err
	}

	events, err := s.service.ConnectionEvents(c.Param("id"), limit)

	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, events)
}

func (s *Server) stopScan(c echo.Context) error {
	if err := s.service.StopScan(c.Param("id")); err != nil {
		return err
	}

	return c.NoContent(http.StatusAccepted)
}
