package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/robgonnella/hashwatch/internal/discovery"
	"github.com/robgonnella/hashwatch/internal/exception"
)

// ScanIDHeader carries the id of a scan started with POST /v1/scans
const ScanIDHeader = "X-Scan-ID"

// scanMessage is a discovery result on the wire
type scanMessage struct {
	discovery.Result
	Error string `json:"error,omitempty"`
}

func openStream(c echo.Context) *echo.Response {
	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set(echo.HeaderCacheControl, "no-cache")
	res.Header().Set(echo.HeaderConnection, "keep-alive")
	return res
}

func writeEvent(res *echo.Response, name string, data any) error {
	payload, err := json.Marshal(data)

	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(res, "event: %s\ndata: %s\n\n", name, payload); err != nil {
		return err
	}

	res.Flush()

	return nil
}

// events streams every live-update message until the client goes away
func (s *Server) events(c echo.Context) error {
	id, events := s.service.Subscribe(s.buffer)
	defer s.service.Unsubscribe(id)

	res := openStream(c)
	res.WriteHeader(http.StatusOK)
	res.Flush()

	ctx := c.Request().Context()

	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-events:
			if !ok {
				return nil
			}

			if err := writeEvent(res, string(evt.Type), evt); err != nil {
				s.log.Debug().Err(err).Msg("event stream closed")
				return nil
			}
		}
	}
}

// startScan runs a scan for the lifetime of the request and streams each
// result. A client disconnect stops the scan.
func (s *Server) startScan(c echo.Context) error {
	var body scanBody

	if err := c.Bind(&body); err != nil {
		return badParameter("invalid request body")
	}

	req, err := body.request()

	if err != nil {
		return err
	}

	scanID, results, err := s.service.Scan(c.Request().Context(), req)

	if err != nil {
		return badParameter(err.Error())
	}

	res := openStream(c)
	res.Header().Set(ScanIDHeader, scanID)
	res.WriteHeader(http.StatusOK)
	res.Flush()

	found := 0
	failed := false

	for r := range results {
		// drain so the scan's workers can exit
		if failed {
			continue
		}

		msg := scanMessage{Result: r}

		if r.Err != nil {
			msg.Error = r.Err.Error()
		}

		if r.Status == discovery.StatusFound {
			found++
		}

		if err := writeEvent(res, "result", msg); err != nil {
			failed = true

			s.log.Debug().Err(err).Str("scanId", scanID).Msg("scan stream closed, stopping scan")

			if err := s.service.StopScan(scanID); err != nil && !errors.Is(err, exception.ErrScanNotFound) {
				s.log.Warn().Err(err).Str("scanId", scanID).Msg("failed to stop scan")
			}
		}
	}

	if failed {
		return nil
	}

	return writeEvent(res, "done", map[string]any{
		"scanId": scanID,
		"found":  found,
	})
}
