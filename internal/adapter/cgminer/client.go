package cgminer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/robgonnella/hashwatch/internal/adapter"
	"github.com/robgonnella/hashwatch/internal/miner"
)

// maxResponse caps how much a single reply may grow to
const maxResponse = 1 << 20

// Status is one entry of the STATUS array every reply carries
type Status struct {
	Status      string `json:"STATUS"`
	When        int64  `json:"When"`
	Code        int    `json:"Code"`
	Msg         string `json:"Msg"`
	Description string `json:"Description"`
}

// Response is a decoded API reply. Sections holds every top level array
// other than STATUS keyed by name (SUMMARY, STATS, POOLS, VERSION...).
type Response struct {
	Status   []Status
	Sections map[string][]map[string]any
}

// Section returns the named section or nil
func (r *Response) Section(name string) []map[string]any {
	return r.Sections[name]
}

// OK reports whether the reply carries a success status
func (r *Response) OK() bool {
	if len(r.Status) == 0 {
		return false
	}

	s := r.Status[0].Status

	return s == "S" || s == "I"
}

// AccessDenied reports a privileged command refused by the api-allow list
func (r *Response) AccessDenied() bool {
	if len(r.Status) == 0 {
		return false
	}

	return r.Status[0].Code == 45 || strings.Contains(strings.ToLower(r.Status[0].Msg), "access denied")
}

// Client sends single commands to a CGMiner API socket. The API closes the
// connection after every reply so each command dials anew.
type Client struct {
	address string
	timeout time.Duration
	dialer  *net.Dialer
}

// NewClient returns a client for host:port
func NewClient(address string, timeout time.Duration) *Client {
	return &Client{
		address: address,
		timeout: timeout,
		dialer:  &net.Dialer{Timeout: timeout},
	}
}

// Address returns host:port the client talks to
func (c *Client) Address() string {
	return c.address
}

// Command sends cmd with an optional parameter and decodes the reply
func (c *Client) Command(ctx context.Context, cmd, param string) (*Response, error) {
	conn, err := c.dialer.DialContext(ctx, "tcp", c.address)

	if err != nil {
		return nil, adapter.ClassifyConnect(c.address, err)
	}

	defer conn.Close()

	// unblock reads and writes as soon as the caller gives up
	stop := context.AfterFunc(ctx, func() {
		conn.SetDeadline(time.Now())
	})

	defer stop()

	deadline := time.Now().Add(c.timeout)

	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	if err := conn.SetDeadline(deadline); err != nil {
		return nil, adapter.ClassifyConnect(c.address, err)
	}

	req := map[string]string{"command": cmd}

	if param != "" {
		req["parameter"] = param
	}

	payload, err := json.Marshal(req)

	if err != nil {
		return nil, fmt.Errorf("failed to marshal command: %w", err)
	}

	if _, err := conn.Write(payload); err != nil {
		return nil, adapter.ClassifyFetch(c.address, contextErr(ctx, err))
	}

	raw, err := readReply(conn)

	if err != nil {
		return nil, adapter.ClassifyFetch(c.address, contextErr(ctx, err))
	}

	return Decode(raw)
}

// readReply reads until the NUL terminator or EOF. The protocol has no
// length prefix so the reply is accumulated across partial reads.
func readReply(r io.Reader) ([]byte, error) {
	data := make([]byte, 0, 4096)
	buf := make([]byte, 4096)

	for {
		n, err := r.Read(buf)

		if n > 0 {
			data = append(data, buf[:n]...)

			if idx := bytes.IndexByte(data, 0); idx >= 0 {
				return data[:idx], nil
			}

			if len(data) > maxResponse {
				return nil, miner.NewFetchError(
					miner.FetchMalformed,
					"",
					fmt.Errorf("reply exceeds %d bytes", maxResponse),
				)
			}
		}

		if errors.Is(err, io.EOF) {
			if len(data) == 0 {
				return nil, miner.NewFetchError(miner.FetchMalformed, "", errors.New("empty reply"))
			}

			return data, nil
		}

		if err != nil {
			return nil, err
		}
	}
}

// Decode parses a raw reply, repairing the "}{" sequences some firmware
// emits between objects of the same array
func Decode(raw []byte) (*Response, error) {
	raw = bytes.TrimSpace(bytes.TrimRight(raw, "\x00"))
	raw = bytes.ReplaceAll(raw, []byte("}{"), []byte("},{"))

	top := map[string]json.RawMessage{}

	if err := json.Unmarshal(raw, &top); err != nil {
		return nil, miner.NewFetchError(miner.FetchMalformed, "", fmt.Errorf("failed to parse reply: %w", err))
	}

	resp := &Response{
		Sections: map[string][]map[string]any{},
	}

	for name, section := range top {
		if name == "STATUS" {
			if err := json.Unmarshal(section, &resp.Status); err != nil {
				return nil, miner.NewFetchError(miner.FetchMalformed, "STATUS", err)
			}
			continue
		}

		entries := []map[string]any{}

		// "id" and similar scalars are ignored
		if err := json.Unmarshal(section, &entries); err != nil {
			continue
		}

		resp.Sections[name] = entries
	}

	if len(resp.Status) == 0 {
		return nil, miner.NewFetchError(miner.FetchMalformed, "STATUS", errors.New("reply has no STATUS"))
	}

	return resp, nil
}

func contextErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	return err
}
