package mqtt

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"
	"time"

	natiu "github.com/soypat/natiu-mqtt"
)

func TestSplitHostPort(t *testing.T) {
	tests := []struct {
		addr       string
		host, port string
		wantErr    bool
	}{
		{"10.0.0.9:1883", "10.0.0.9", "1883", false},
		{"broker.local:8883", "broker.local", "8883", false},
		{"::1:1883", "::1", "1883", false},
		{"10.0.0.9", "", "", true},
		{":1883", "", "", true},
		{"10.0.0.9:", "", "", true},
	}
	for _, tt := range tests {
		host, port, err := SplitHostPort(tt.addr)
		if (err != nil) != tt.wantErr {
			t.Errorf("SplitHostPort(%q) error = %v, wantErr %v", tt.addr, err, tt.wantErr)
			continue
		}
		if host != tt.host || port != tt.port {
			t.Errorf("SplitHostPort(%q) = %q, %q, want %q, %q", tt.addr, host, port, tt.host, tt.port)
		}
	}
}

func TestParsePort(t *testing.T) {
	tests := map[string]uint16{
		"1883":   1883,
		"65535":  65535,
		"65536":  0,
		"999999": 0,
		"18a3":   0,
		"-1":     0,
		"":       0,
	}
	for in, want := range tests {
		if got := ParsePort(in); got != want {
			t.Errorf("ParsePort(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestReadPayload(t *testing.T) {
	buf := make([]byte, 5)

	n, truncated, err := readPayload(strings.NewReader("hi"), buf)
	if err != nil || n != 2 || truncated {
		t.Errorf("short payload: n=%d truncated=%v err=%v", n, truncated, err)
	}

	n, truncated, err = readPayload(strings.NewReader("hello"), buf)
	if err != nil || n != 5 || truncated {
		t.Errorf("exact payload: n=%d truncated=%v err=%v", n, truncated, err)
	}

	n, truncated, err = readPayload(strings.NewReader("hello world"), buf)
	if err != nil || n != 5 || !truncated {
		t.Errorf("long payload: n=%d truncated=%v err=%v", n, truncated, err)
	}
	if string(buf[:n]) != "hello" {
		t.Errorf("long payload kept %q, want %q", buf[:n], "hello")
	}

	errRead := errors.New("link down")
	_, _, err = readPayload(iotest.ErrReader(errRead), buf)
	if !errors.Is(err, errRead) {
		t.Errorf("Expected reader error, got %v", err)
	}
}

type delivery struct {
	topic, payload string
	retained       bool
}

func TestDispatch(t *testing.T) {
	c := &Client{Topic: "personal/ucfnaps/led/#", PayloadBufSize: 8}
	c.setDefaults()

	var got []delivery
	handle := func(topic, payload []byte, retained bool) {
		got = append(got, delivery{string(topic), string(payload), retained})
	}

	if err := c.dispatch(handle, []byte("other/topic"), false, strings.NewReader("nope")); err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("Expected non-matching topic to be ignored, got %v", got)
	}

	if err := c.dispatch(handle, []byte("personal/ucfnaps/led/text"), true, strings.NewReader("Hello")); err != nil {
		t.Fatal(err)
	}
	if err := c.dispatch(handle, []byte("personal/ucfnaps/led"), false, bytes.NewReader([]byte("much too long"))); err != nil {
		t.Fatal(err)
	}

	want := []delivery{
		{"personal/ucfnaps/led/text", "Hello", true},
		{"personal/ucfnaps/led", "much too", false},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d deliveries, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("delivery %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestDispatchReadError(t *testing.T) {
	c := &Client{Topic: "a/#"}
	c.setDefaults()
	called := false
	err := c.dispatch(func([]byte, []byte, bool) { called = true }, []byte("a/b"), false, iotest.ErrReader(errors.New("boom")))
	if err == nil || called {
		t.Errorf("Expected read error and no delivery, got err=%v called=%v", err, called)
	}
}

func TestBackoff(t *testing.T) {
	tests := map[int]time.Duration{
		1:  2 * time.Second,
		5:  10 * time.Second,
		15: 30 * time.Second,
		50: 30 * time.Second,
	}
	for n, want := range tests {
		if got := backoff(n); got != want {
			t.Errorf("backoff(%d) = %v, want %v", n, got, want)
		}
	}
}

func TestConnectAndSubscribeRejectsBadConfig(t *testing.T) {
	c := &Client{}
	if err := c.ConnectAndSubscribe(nil, "10.0.0.9:1883", nil); err == nil {
		t.Error("Expected an error for an empty topic filter")
	}
	c = &Client{Topic: "a/#"}
	if err := c.ConnectAndSubscribe(nil, "10.0.0.9", nil); err == nil {
		t.Error("Expected an error for a missing port")
	}
	c = &Client{Topic: "a/#"}
	if err := c.ConnectAndSubscribe(nil, "10.0.0.9:70000", nil); err == nil {
		t.Error("Expected an error for an invalid port")
	}
	c = &Client{Topic: "a/#", QoS: natiu.QoS1}
	if err := c.ConnectAndSubscribe(nil, "10.0.0.9:1883", nil); err == nil {
		t.Error("Expected an error for a QoS 1 subscription")
	}
}

// brokerConn is a scripted broker: reads return the queued packets and
// writes from the client are discarded.
type brokerConn struct {
	rx bytes.Buffer
}

func (b *brokerConn) Read(p []byte) (int, error)  { return b.rx.Read(p) }
func (b *brokerConn) Write(p []byte) (int, error) { return len(p), nil }
func (b *brokerConn) Close() error                { return nil }

type writeCloser struct{ io.Writer }

func (writeCloser) Close() error { return nil }

// queuePublish appends a QoS 0 PUBLISH packet to the broker's output.
func (b *brokerConn) queuePublish(t *testing.T, topic string, payload []byte) {
	t.Helper()
	var tx natiu.Tx
	tx.SetTxTransport(writeCloser{&b.rx})
	flags, err := natiu.NewPublishFlags(natiu.QoS0, false, false)
	if err != nil {
		t.Fatal(err)
	}
	hdr, err := natiu.NewHeader(natiu.PacketPublish, flags, 0)
	if err != nil {
		t.Fatal(err)
	}
	err = tx.WritePublishPayload(hdr, natiu.VariablesPublish{TopicName: []byte(topic)}, payload)
	if err != nil {
		t.Fatal(err)
	}
}

// connectedSession returns a natiu client that has completed CONNECT over
// conn and hands every PUBLISH to c.dispatch.
func connectedSession(t *testing.T, c *Client, conn *brokerConn, handle Handler) *natiu.Client {
	t.Helper()
	var tx natiu.Tx
	tx.SetTxTransport(writeCloser{&conn.rx})
	if err := tx.WriteConnack(natiu.VariablesConnack{ReturnCode: natiu.ReturnCodeConnAccepted}); err != nil {
		t.Fatal(err)
	}

	session := natiu.NewClient(natiu.ClientConfig{
		Decoder: natiu.DecoderNoAlloc{UserBuffer: make([]byte, 1024)},
		OnPub: func(h natiu.Header, vp natiu.VariablesPublish, r io.Reader) error {
			return c.dispatch(handle, vp.TopicName, h.Flags().Retain(), r)
		},
	})
	var varconn natiu.VariablesConnect
	varconn.SetDefaultMQTT([]byte("test-client"))
	if err := session.StartConnect(conn, &varconn); err != nil {
		t.Fatal(err)
	}
	if err := session.HandleNext(); err != nil {
		t.Fatal(err)
	}
	if !session.IsConnected() {
		t.Fatal("Expected CONNACK to connect the session")
	}
	return session
}

func TestSessionSurvivesUnreadPayloads(t *testing.T) {
	c := &Client{Topic: "personal/ucfnaps/led/#", PayloadBufSize: 16}
	c.setDefaults()
	conn := &brokerConn{}

	var got []string
	handle := func(topic, payload []byte, retained bool) {
		got = append(got, string(payload))
	}
	session := connectedSession(t, c, conn, handle)

	long := bytes.Repeat([]byte("x"), 600)
	conn.queuePublish(t, "personal/ucfnaps/led/text", long)
	conn.queuePublish(t, "other/topic", []byte("not for us"))
	conn.queuePublish(t, "personal/ucfnaps/led/text", []byte("after"))

	for i := 0; i < 3; i++ {
		if err := session.HandleNext(); err != nil {
			t.Fatalf("publish %d: HandleNext: %v", i, err)
		}
		if !session.IsConnected() {
			t.Fatalf("publish %d: session dropped: %v", i, session.Err())
		}
	}

	want := []string{strings.Repeat("x", 16), "after"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("got payloads %q, want %q", got, want)
	}
}
