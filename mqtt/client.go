// Package mqtt subscribes to a single MQTT topic filter over the lneto TCP/IP
// stack and hands every matching PUBLISH to a callback.
//
// The session is established with a clean session flag, so the subscription
// is renewed after every reconnect.
package mqtt

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/netip"
	"time"

	"github.com/soypat/lneto/tcp"
	"github.com/soypat/lneto/x/xnet"
	mqtt "github.com/soypat/natiu-mqtt"
	"github.com/ucl-casa-ce/Galactic-Unicorn-MQTT-Scroller/lcd"
)

// ErrConnect is returned when the broker session cannot be established.
// The caller is expected to reset the device.
var ErrConnect = errors.New("mqtt: connect failed")

// pollTime is how often the retrying stack checks for progress.
const pollTime = 5 * time.Millisecond

// Handler receives a message. topic and payload are only valid for the
// duration of the call.
type Handler func(topic, payload []byte, retained bool)

type Client struct {
	ID           string
	Timeout      time.Duration
	TCPBufSize   int
	Logger       *slog.Logger
	KeepAlive    time.Duration // Interval between pings while idle.
	PollInterval time.Duration // Interval between reads of the socket.
	Username     string        // MQTT broker username (optional)
	Password     string        // MQTT broker password (optional, requires Username)

	Topic string        // Topic filter, may contain + and # wildcards.
	QoS   mqtt.QoSLevel // Requested QoS for the subscription. Must be QoS0.

	// MaxReconnects is the number of consecutive failed reconnects tolerated
	// after a session was established. The first connect is never retried.
	MaxReconnects int
	// PayloadBufSize bounds the payload handed to the Handler. Longer
	// payloads are truncated.
	PayloadBufSize int
	// Status receives connection progress for a status display. May be nil.
	Status chan<- lcd.Message

	payload []byte
}

func (c *Client) setDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	if c.TCPBufSize <= 0 {
		c.TCPBufSize = 2030 // MTU - ethhdr - iphdr - tcphdr
	}
	if c.KeepAlive <= 0 {
		c.KeepAlive = 30 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 100 * time.Millisecond
	}
	if c.MaxReconnects <= 0 {
		c.MaxReconnects = 10
	}
	if c.PayloadBufSize <= 0 {
		c.PayloadBufSize = 512
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	c.payload = make([]byte, c.PayloadBufSize)
}

// ConnectAndSubscribe connects to the broker at addr, subscribes to c.Topic
// and delivers messages to handle. It only returns on a fatal connect
// failure, with an error wrapping ErrConnect.
// The stack is provided from main.go where WiFi/DHCP are set up.
func (c *Client) ConnectAndSubscribe(stack *xnet.StackAsync, addr string, handle Handler) error {
	if c.Topic == "" {
		return errors.New("mqtt: empty topic filter")
	}
	if c.QoS != mqtt.QoS0 {
		// Inbound QoS 1/2 messages are never acknowledged, so the broker would
		// stop delivering once its in-flight window is full.
		return errors.New("mqtt: only QoS 0 subscriptions are supported")
	}
	c.setDefaults()
	c.Logger.Info("mqtt:address", slog.String("addr", addr), slog.String("topic", c.Topic))

	host, portStr, err := SplitHostPort(addr)
	if err != nil {
		return errors.New("parsing host:port from " + addr + ": " + err.Error())
	}
	port := ParsePort(portStr)
	if port == 0 {
		return errors.New("invalid port in " + addr)
	}

	brokerIP, err := c.resolve(stack, host)
	if err != nil {
		return errors.Join(ErrConnect, err)
	}
	serverAddr := netip.AddrPortFrom(brokerIP, port)

	cfg := mqtt.ClientConfig{
		Decoder: mqtt.DecoderNoAlloc{UserBuffer: make([]byte, 4096)},
		OnPub: func(pubHead mqtt.Header, varPub mqtt.VariablesPublish, r io.Reader) error {
			return c.dispatch(handle, varPub.TopicName, pubHead.Flags().Retain(), r)
		},
	}
	var varconn mqtt.VariablesConnect
	varconn.SetDefaultMQTT([]byte(c.ID))
	varconn.CleanSession = true

	// Set authentication credentials if provided
	if c.Username != "" {
		varconn.Username = []byte(c.Username)
		if c.Password != "" {
			varconn.Password = []byte(c.Password)
		}
	}

	mqttClient := mqtt.NewClient(cfg)

	var conn tcp.Conn
	err = conn.Configure(tcp.ConnConfig{
		RxBuf:             make([]byte, c.TCPBufSize),
		TxBuf:             make([]byte, c.TCPBufSize),
		TxPacketQueueSize: 3,
	})
	if err != nil {
		return errors.New("tcp configure:" + err.Error())
	}

	closeConn := func(reason string) {
		c.Logger.Error("tcpconn:closing", slog.String("reason", reason))
		conn.Close()
		for i := 0; i < 50 && !conn.State().IsClosed(); i++ {
			time.Sleep(100 * time.Millisecond)
		}
		conn.Abort()
	}

	established := false
	failures := 0
	for {
		err = c.connect(stack, &conn, mqttClient, &varconn, serverAddr)
		if err != nil {
			failures++
			c.Logger.Error("mqtt:connect-failed",
				slog.String("reason", err.Error()),
				slog.Int("failures", failures),
			)
			lcd.Send(c.Status, "Connect Failed", err.Error())
			closeConn("connect failed")
			if !established || failures > c.MaxReconnects {
				return errors.Join(ErrConnect, err)
			}
			time.Sleep(backoff(failures))
			continue
		}
		established = true
		failures = 0

		lcd.Send(c.Status, "MQTT Connected", c.Topic)
		c.serve(mqttClient, &conn)

		c.Logger.Error("mqtt:disconnected", slog.Any("reason", mqttClient.Err()))
		lcd.Send(c.Status, "Disconnected", "Reconnecting...")
		closeConn("disconnected")
	}
}

// resolve parses host as an IP address or looks it up via DNS.
func (c *Client) resolve(stack *xnet.StackAsync, host string) (netip.Addr, error) {
	if addr, err := netip.ParseAddr(host); err == nil {
		return addr, nil
	}
	rstack := stack.StackRetrying(pollTime)
	c.Logger.Info("dns:resolving", slog.String("host", host))
	addrs, err := rstack.DoLookupIP(host, 5*time.Second, 3)
	if err != nil {
		return netip.Addr{}, errors.New("dns lookup for " + host + ": " + err.Error())
	}
	if len(addrs) == 0 {
		return netip.Addr{}, errors.New("dns lookup for " + host + ": no addresses returned")
	}
	c.Logger.Info("dns:resolved", slog.String("ip", addrs[0].String()))
	return addrs[0], nil
}

// connect dials the broker, performs the MQTT handshake and subscribes.
func (c *Client) connect(
	stack *xnet.StackAsync,
	conn *tcp.Conn,
	mqttClient *mqtt.Client,
	varconn *mqtt.VariablesConnect,
	serverAddr netip.AddrPort,
) error {
	rstack := stack.StackRetrying(pollTime)
	// Use stack's PRNG for random port
	localPort := uint16(stack.Prand32()>>17) + 1024
	c.Logger.Info("socket:dialing", slog.Uint64("localPort", uint64(localPort)))
	lcd.Send(c.Status, "Connecting...", "TCP handshake")
	err := rstack.DoDialTCP(conn, localPort, serverAddr, 10*time.Second, 3)
	if err != nil {
		return errors.New("dial " + serverAddr.String() + ": " + err.Error())
	}
	c.Logger.Info("tcp:connected", slog.String("state", conn.State().String()))

	lcd.Send(c.Status, "MQTT Connect", "Authenticating")
	conn.SetDeadline(time.Now().Add(c.Timeout))
	err = mqttClient.StartConnect(conn, varconn)
	if err != nil {
		return errors.New("start connect: " + err.Error())
	}
	retries := 50
	for retries > 0 && !mqttClient.IsConnected() {
		time.Sleep(100 * time.Millisecond)
		err = mqttClient.HandleNext()
		if err != nil {
			c.Logger.Error("mqtt:handle-next-failed", slog.String("err", err.Error()))
		}
		retries--
	}
	if !mqttClient.IsConnected() {
		reason := "timed out"
		if err := mqttClient.Err(); err != nil {
			reason = err.Error()
		}
		return errors.New("connect: " + reason)
	}

	// Clean session: the broker forgot our subscription, ask again.
	ctx, cancel := context.WithTimeout(context.Background(), c.Timeout)
	defer cancel()
	conn.SetDeadline(time.Now().Add(c.Timeout))
	err = mqttClient.Subscribe(ctx, mqtt.VariablesSubscribe{
		PacketIdentifier: uint16(stack.Prand32()) | 1,
		TopicFilters: []mqtt.SubscribeRequest{
			{TopicFilter: []byte(c.Topic), QoS: c.QoS},
		},
	})
	if err != nil {
		mqttClient.Disconnect(errors.New("subscribe failed"))
		return errors.New("subscribe " + c.Topic + ": " + err.Error())
	}
	c.Logger.Info("mqtt:subscribed", slog.String("topic", c.Topic))
	return nil
}

// serve reads packets until the session drops. Inbound PUBLISH packets reach
// the Handler from inside HandleNext.
func (c *Client) serve(mqttClient *mqtt.Client, conn *tcp.Conn) {
	keepAlive := time.NewTicker(c.KeepAlive)
	defer keepAlive.Stop()
	poll := time.NewTicker(c.PollInterval)
	defer poll.Stop()

	for mqttClient.IsConnected() {
		select {
		case <-keepAlive.C:
			conn.SetDeadline(time.Now().Add(c.Timeout))
			if err := mqttClient.StartPing(); err != nil {
				c.Logger.Error("mqtt:ping-failed", slog.String("err", err.Error()))
			}
		case <-poll.C:
			conn.SetDeadline(time.Now().Add(c.PollInterval))
			if err := mqttClient.HandleNext(); err != nil {
				// Usually the read deadline expiring with nothing to read.
				c.Logger.Debug("mqtt:handle-next", slog.String("err", err.Error()))
			}
		}
	}
}

// dispatch copies the payload into the client's buffer and calls handle if
// the topic matches the subscription.
func (c *Client) dispatch(handle Handler, topic []byte, retained bool, r io.Reader) error {
	if !MatchTopic(c.Topic, string(topic)) {
		c.Logger.Warn("mqtt:unexpected-topic", slog.String("topic", string(topic)))
		// The session drops unless the whole payload is consumed.
		_, err := io.Copy(io.Discard, r)
		return err
	}
	n, truncated, err := readPayload(r, c.payload)
	if err != nil {
		c.Logger.Error("mqtt:read-payload-failed", slog.String("err", err.Error()))
		return err
	}
	if truncated {
		c.Logger.Warn("mqtt:payload-truncated", slog.Int("kept", n))
	}
	handle(topic, c.payload[:n], retained)
	return nil
}

// readPayload fills buf from r and discards the rest, so r is always read to
// the end. truncated is set when bytes were discarded.
func readPayload(r io.Reader, buf []byte) (n int, truncated bool, err error) {
	n, err = io.ReadFull(r, buf)
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return n, false, nil
	}
	if err != nil {
		return n, false, err
	}
	rest, err := io.Copy(io.Discard, r)
	return n, rest > 0, err
}

// backoff returns the pause before reconnect attempt n, capped at 30s.
func backoff(n int) time.Duration {
	d := time.Duration(n) * 2 * time.Second
	return min(d, 30*time.Second)
}

// SplitHostPort splits a host:port string into separate host and port components.
// Returns an error if the format is invalid.
func SplitHostPort(addr string) (host, port string, err error) {
	// Find the last colon to support IPv6 addresses
	colonIdx := -1
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			colonIdx = i
			break
		}
	}

	if colonIdx == -1 {
		return "", "", errors.New("missing port in address")
	}

	host = addr[:colonIdx]
	port = addr[colonIdx+1:]

	if host == "" {
		return "", "", errors.New("empty host")
	}
	if port == "" {
		return "", "", errors.New("empty port")
	}

	return host, port, nil
}

// ParsePort converts a port string to uint16.
// Returns 0 if parsing fails or the value overflows.
func ParsePort(portStr string) uint16 {
	var port uint32
	for i := 0; i < len(portStr); i++ {
		if portStr[i] < '0' || portStr[i] > '9' {
			return 0
		}
		port = port*10 + uint32(portStr[i]-'0')
		if port > 65535 {
			return 0
		}
	}
	return uint16(port)
}
