package zabbix

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

// Metric is a single trapper item: one value for one key on one host.
type Metric struct {
	Host  string `json:"host"`
	Key   string `json:"key"`
	Value string `json:"value"`
}

func NewMetric(host, key, value string) Metric {
	return Metric{Host: host, Key: key, Value: value}
}

// Response summarises a sender exchange. Failed > 0 is logged by the
// caller but never clears dirty flags for the unsent records.
type Response struct {
	Processed int
	Failed    int
}

// Sender pushes metric batches to a Zabbix server or proxy.
type Sender interface {
	Send(metrics []Metric) (Response, error)
}

// DryRunSender swallows all traffic and reports zero processed items.
type DryRunSender struct{}

func (DryRunSender) Send(metrics []Metric) (Response, error) {
	return Response{}, nil
}

// TrapperSender speaks the sender protocol: a ZBXD\x01 header followed
// by a little-endian length and a JSON body, answered the same way.
type TrapperSender struct {
	ServerAddr string
	Timeout    time.Duration
}

func NewTrapperSender(serverAddr string) *TrapperSender {
	return &TrapperSender{
		ServerAddr: serverAddr,
		Timeout:    10 * time.Second,
	}
}

type trapperRequest struct {
	Request string   `json:"request"`
	Data    []Metric `json:"data"`
}

type trapperResponse struct {
	Response string `json:"response"`
	Info     string `json:"info"`
}

var trapperInfoRe = regexp.MustCompile(`processed: (\d+); failed: (\d+)`)

func (s *TrapperSender) Send(metrics []Metric) (Response, error) {
	if len(metrics) == 0 {
		return Response{}, nil
	}

	body, err := json.Marshal(trapperRequest{Request: "sender data", Data: metrics})
	if err != nil {
		return Response{Failed: len(metrics)}, fmt.Errorf("marshal sender request: %w", err)
	}

	conn, err := net.DialTimeout("tcp", s.ServerAddr, s.Timeout)
	if err != nil {
		return Response{Failed: len(metrics)}, fmt.Errorf("connect to zabbix %s: %w", s.ServerAddr, err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(s.Timeout))

	if _, err := conn.Write(frame(body)); err != nil {
		return Response{Failed: len(metrics)}, fmt.Errorf("write to zabbix: %w", err)
	}

	reply, err := readFrame(conn)
	if err != nil {
		return Response{Failed: len(metrics)}, fmt.Errorf("read zabbix response: %w", err)
	}

	var resp trapperResponse
	if err := json.Unmarshal(reply, &resp); err != nil {
		return Response{Failed: len(metrics)}, fmt.Errorf("decode zabbix response: %w", err)
	}
	if resp.Response != "success" {
		return Response{Failed: len(metrics)}, fmt.Errorf("zabbix rejected batch: %s", resp.Info)
	}

	result := parseInfo(resp.Info, len(metrics))
	logrus.Debugf("zabbix sender: %d processed, %d failed", result.Processed, result.Failed)
	return result, nil
}

func frame(body []byte) []byte {
	buf := make([]byte, 0, 13+len(body))
	buf = append(buf, 'Z', 'B', 'X', 'D', 0x01)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(len(body)))
	return append(buf, body...)
}

func readFrame(conn net.Conn) ([]byte, error) {
	header := make([]byte, 13)
	if _, err := ioReadFull(conn, header); err != nil {
		return nil, err
	}
	if string(header[:4]) != "ZBXD" {
		return nil, fmt.Errorf("unexpected protocol header %q", header[:4])
	}
	length := binary.LittleEndian.Uint64(header[5:])
	if length > 16*1024*1024 {
		return nil, fmt.Errorf("response too large: %d bytes", length)
	}
	body := make([]byte, length)
	if _, err := ioReadFull(conn, body); err != nil {
		return nil, err
	}
	return body, nil
}

func ioReadFull(conn net.Conn, buf []byte) (int, error) {
	read := 0
	for read < len(buf) {
		n, err := conn.Read(buf[read:])
		read += n
		if err != nil {
			return read, err
		}
	}
	return read, nil
}

func parseInfo(info string, total int) Response {
	m := trapperInfoRe.FindStringSubmatch(info)
	if m == nil {
		return Response{Processed: total}
	}
	processed, _ := strconv.Atoi(m[1])
	failed, _ := strconv.Atoi(m[2])
	return Response{Processed: processed, Failed: failed}
}
