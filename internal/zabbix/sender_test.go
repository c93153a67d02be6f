package zabbix

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrame(t *testing.T) {
	body := []byte(`{"request":"sender data"}`)
	framed := frame(body)

	assert.Equal(t, []byte("ZBXD\x01"), framed[:5])
	assert.Equal(t, uint64(len(body)), binary.LittleEndian.Uint64(framed[5:13]))
	assert.Equal(t, body, framed[13:])
}

func TestParseInfo(t *testing.T) {
	result := parseInfo("processed: 7; failed: 2; total: 9; seconds spent: 0.000070", 9)
	assert.Equal(t, 7, result.Processed)
	assert.Equal(t, 2, result.Failed)

	// unparseable info assumes full success
	result = parseInfo("something else", 3)
	assert.Equal(t, 3, result.Processed)
	assert.Equal(t, 0, result.Failed)
}

func TestDryRunSender(t *testing.T) {
	result, err := DryRunSender{}.Send([]Metric{NewMetric("h", "k", "v")})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Processed)
	assert.Equal(t, 0, result.Failed)
}

func TestTrapperSenderEmptyBatch(t *testing.T) {
	sender := NewTrapperSender("localhost:1")
	result, err := sender.Send(nil)
	require.NoError(t, err)
	assert.Equal(t, Response{}, result)
}

// TestTrapperSenderRoundTrip runs a minimal trapper endpoint on the
// loopback interface and checks framing in both directions.
func TestTrapperSenderRoundTrip(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	serverErr := make(chan error, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			serverErr <- err
			return
		}
		defer conn.Close()

		body, err := readFrame(conn)
		if err != nil {
			serverErr <- err
			return
		}
		var req trapperRequest
		if err := json.Unmarshal(body, &req); err != nil {
			serverErr <- err
			return
		}
		if len(req.Data) != 2 || req.Request != "sender data" {
			serverErr <- fmt.Errorf("unexpected request %q with %d items", req.Request, len(req.Data))
			return
		}

		reply, _ := json.Marshal(trapperResponse{
			Response: "success",
			Info:     "processed: 2; failed: 0; total: 2; seconds spent: 0.000042",
		})
		_, err = conn.Write(frame(reply))
		serverErr <- err
	}()

	sender := NewTrapperSender(ln.Addr().String())
	result, err := sender.Send([]Metric{
		NewMetric("k8s-test", "check_kubernetesd[get,nodes,w1,ready]", "True"),
		NewMetric("k8s-test", "check_kubernetesd[get,nodes,w1,pressure]", "False"),
	})
	require.NoError(t, err)
	require.NoError(t, <-serverErr)
	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, 0, result.Failed)
}

func TestTrapperSenderConnectFailure(t *testing.T) {
	sender := NewTrapperSender("127.0.0.1:1")
	result, err := sender.Send([]Metric{NewMetric("h", "k", "v")})
	assert.Error(t, err)
	assert.Equal(t, 1, result.Failed)
}
