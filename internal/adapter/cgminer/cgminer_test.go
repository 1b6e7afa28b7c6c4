package cgminer_test

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/robgonnella/hashwatch/internal/adapter/cgminer"
	"github.com/robgonnella/hashwatch/internal/miner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	versionReply = `{"STATUS":[{"STATUS":"S","When":1,"Code":22,"Msg":"CGMiner versions"}],"VERSION":[{"CGMiner":"4.11.1","API":"3.7","Type":"Antminer S9"}],"id":1}`
	summaryReply = `{"STATUS":[{"STATUS":"S","Code":11,"Msg":"Summary"}],"SUMMARY":[{"Elapsed":7200,"MHS 5s":13500000.5,"MHS av":13400000,"Accepted":900,"Rejected":"4","Hardware Errors":12}],"id":1}`
	// repeated objects without a separating comma
	statsReply = `{"STATUS":[{"STATUS":"S","Code":70,"Msg":"CGMiner stats"}],"STATS":[{"CGMiner":"4.11.1"}{"temp1":62,"temp2":64,"temp_num":2,"fan1":5400,"fan2":5520,"fan_num":2}],"id":1}`
)

type fakeMiner struct {
	mu       sync.Mutex
	ln       net.Listener
	replies  map[string]string
	commands []map[string]string
}

func newFakeMiner(t *testing.T, replies map[string]string) *fakeMiner {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	f := &fakeMiner{ln: ln, replies: replies}

	go f.serve()

	t.Cleanup(func() { ln.Close() })

	return f
}

func (f *fakeMiner) serve() {
	for {
		conn, err := f.ln.Accept()

		if err != nil {
			return
		}

		go func(c net.Conn) {
			defer c.Close()

			req := map[string]string{}

			if err := json.NewDecoder(c).Decode(&req); err != nil {
				return
			}

			f.mu.Lock()
			f.commands = append(f.commands, req)
			reply, ok := f.replies[req["command"]]
			f.mu.Unlock()

			if !ok {
				reply = `{"STATUS":[{"STATUS":"E","Code":14,"Msg":"Invalid command"}],"id":1}`
			}

			// split the reply across writes to exercise accumulation
			half := len(reply) / 2
			c.Write([]byte(reply[:half]))
			time.Sleep(5 * time.Millisecond)
			c.Write([]byte(reply[half:]))
			c.Write([]byte{0})
		}(conn)
	}
}

func (f *fakeMiner) sent() []map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]string{}, f.commands...)
}

func (f *fakeMiner) config(t *testing.T) miner.Config {
	host, portStr, err := net.SplitHostPort(f.ln.Addr().String())
	require.NoError(t, err)

	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	return miner.Config{
		ID:      "s9-1",
		Kind:    miner.KindCGMiner,
		Address: host,
		Port:    port,
	}
}

func TestDecode(t *testing.T) {
	t.Run("repairs concatenated objects", func(st *testing.T) {
		resp, err := cgminer.Decode([]byte(statsReply + "\x00"))
		require.NoError(st, err)

		assert.True(st, resp.OK())
		assert.Len(st, resp.Section("STATS"), 2)
	})

	t.Run("rejects garbage", func(st *testing.T) {
		_, err := cgminer.Decode([]byte("not json"))

		var fetchErr *miner.FetchError
		require.True(st, errors.As(err, &fetchErr))
		assert.Equal(st, miner.FetchMalformed, fetchErr.Reason)
	})

	t.Run("requires a status section", func(st *testing.T) {
		_, err := cgminer.Decode([]byte(`{"SUMMARY":[]}`))
		assert.Error(st, err)
	})
}

func TestNumber(t *testing.T) {
	v, ok := cgminer.Number("12.5")
	assert.True(t, ok)
	assert.Equal(t, 12.5, v)

	v, ok = cgminer.Number(7.0)
	assert.True(t, ok)
	assert.Equal(t, 7.0, v)

	_, ok = cgminer.Number("n/a")
	assert.False(t, ok)

	_, ok = cgminer.Number(nil)
	assert.False(t, ok)
}

func TestCGMinerAdapter(t *testing.T) {
	t.Run("builds a snapshot from summary and stats", func(st *testing.T) {
		f := newFakeMiner(st, map[string]string{
			"version": versionReply,
			"summary": summaryReply,
			"stats":   statsReply,
		})

		a := cgminer.New()

		h, err := a.Connect(context.Background(), f.config(st))
		require.NoError(st, err)
		defer a.Close(h)

		snap, err := a.FetchStatus(context.Background(), h)
		require.NoError(st, err)

		assert.Equal(st, "s9-1", snap.DeviceID)
		assert.InDelta(st, 13500000.5e6, *snap.Hashrate, 1)
		assert.Equal(st, uint64(900), *snap.Accepted)
		assert.Equal(st, uint64(4), *snap.Rejected)
		assert.Equal(st, int64(7200), *snap.UptimeSeconds)
		assert.Equal(st, 62.0, snap.Temperatures["temp1"])
		assert.Equal(st, 64.0, snap.Temperatures["temp2"])
		assert.NotContains(st, snap.Temperatures, "temp_num")
		assert.Equal(st, 5520.0, *snap.FanRPM)
		assert.Equal(st, 12.0, snap.Extra["Hardware Errors"])
	})

	t.Run("stats failure still yields a snapshot", func(st *testing.T) {
		f := newFakeMiner(st, map[string]string{
			"version": versionReply,
			"summary": summaryReply,
		})

		a := cgminer.New()

		h, err := a.Connect(context.Background(), f.config(st))
		require.NoError(st, err)

		snap, err := a.FetchStatus(context.Background(), h)
		require.NoError(st, err)

		assert.NotNil(st, snap.Hashrate)
		assert.Nil(st, snap.Temperatures)
		assert.Nil(st, snap.FanRPM)
	})

	t.Run("summary without hashrate is malformed", func(st *testing.T) {
		f := newFakeMiner(st, map[string]string{
			"version": versionReply,
			"summary": `{"STATUS":[{"STATUS":"S"}],"SUMMARY":[{"Elapsed":1}]}`,
		})

		a := cgminer.New()

		h, err := a.Connect(context.Background(), f.config(st))
		require.NoError(st, err)

		_, err = a.FetchStatus(context.Background(), h)

		var fetchErr *miner.FetchError
		require.True(st, errors.As(err, &fetchErr))
		assert.Equal(st, miner.FetchMalformed, fetchErr.Reason)
	})

	t.Run("closed port is refused", func(st *testing.T) {
		f := newFakeMiner(st, nil)
		conf := f.config(st)
		f.ln.Close()

		_, err := cgminer.New().Connect(context.Background(), conf)

		var connErr *miner.ConnectError
		require.True(st, errors.As(err, &connErr))
		assert.Equal(st, miner.ConnectRefused, connErr.Reason)
	})

	t.Run("silent socket times out", func(st *testing.T) {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(st, err)
		defer ln.Close()

		go func() {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			defer conn.Close()
			time.Sleep(time.Second)
		}()

		host, portStr, _ := net.SplitHostPort(ln.Addr().String())
		port, _ := strconv.Atoi(portStr)

		a := cgminer.New(cgminer.WithTimeout(50 * time.Millisecond))

		_, err = a.Connect(context.Background(), miner.Config{
			Kind:    miner.KindCGMiner,
			Address: host,
			Port:    port,
		})

		var fetchErr *miner.FetchError
		require.True(st, errors.As(err, &fetchErr))
		assert.Equal(st, miner.FetchTimeout, fetchErr.Reason)
	})

	t.Run("switches to an added pool", func(st *testing.T) {
		ok := `{"STATUS":[{"STATUS":"S","Code":55,"Msg":"ok"}],"id":1}`

		f := newFakeMiner(st, map[string]string{
			"version":    versionReply,
			"addpool":    ok,
			"switchpool": ok,
			"pools":      `{"STATUS":[{"STATUS":"S"}],"POOLS":[{"POOL":0,"URL":"stratum+tcp://old:3333"},{"POOL":1,"URL":"stratum+tcp://new:3333"}]}`,
		})

		a := cgminer.New()

		h, err := a.Connect(context.Background(), f.config(st))
		require.NoError(st, err)

		ack, err := a.ApplySettings(context.Background(), h, miner.Settings{
			Pool: &miner.PoolConfig{URL: "stratum+tcp://new", Port: 3333, User: "worker"},
		})

		require.NoError(st, err)
		assert.Equal(st, []string{"pool.url", "pool.port", "pool.user"}, ack.Applied)

		sent := f.sent()
		require.Len(st, sent, 4)
		assert.Equal(st, "addpool", sent[1]["command"])
		assert.Equal(st, "stratum+tcp://new:3333,worker,", sent[1]["parameter"])
		assert.Equal(st, "switchpool", sent[3]["command"])
		assert.Equal(st, "1", sent[3]["parameter"])
	})

	t.Run("tuning is unsupported", func(st *testing.T) {
		f := newFakeMiner(st, map[string]string{"version": versionReply})

		a := cgminer.New()

		h, err := a.Connect(context.Background(), f.config(st))
		require.NoError(st, err)

		_, err = a.ApplySettings(context.Background(), h, miner.Settings{
			Tuning: miner.Tuning{FanSpeed: miner.Int(50)},
		})

		var settingsErr *miner.SettingsError
		require.True(st, errors.As(err, &settingsErr))
		assert.Equal(st, miner.SettingsUnsupported, settingsErr.Reason)
		assert.Equal(st, "fanSpeed", settingsErr.Param)
	})

	t.Run("refused privileged command is rejected", func(st *testing.T) {
		f := newFakeMiner(st, map[string]string{
			"version": versionReply,
			"restart": `{"STATUS":[{"STATUS":"E","Code":45,"Msg":"Access denied to 'restart' command"}]}`,
		})

		a := cgminer.New()

		h, err := a.Connect(context.Background(), f.config(st))
		require.NoError(st, err)

		_, err = a.ApplySettings(context.Background(), h, miner.Settings{Restart: true})

		var settingsErr *miner.SettingsError
		require.True(st, errors.As(err, &settingsErr))
		assert.Equal(st, miner.SettingsRejected, settingsErr.Reason)
	})
}
