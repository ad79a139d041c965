// Package cyw43439 brings up the Pico W radio and an lneto network stack on
// top of it.
//
// Connect joins the network and Serve pumps packets between the chip and the
// stack. Anything that needs sockets (DNS, TCP, MQTT) goes through
// LnetoStack once DHCP has completed.
package cyw43439

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"net/netip"
	"time"

	"github.com/soypat/cyw43439"
	"github.com/soypat/lneto/x/xnet"
)

const mtu = cyw43439.MTU

// Set with -ldflags "-X github.com/ucl-casa-ce/Galactic-Unicorn-MQTT-Scroller/cyw43439.ssid=..."
var (
	ssid string
	pass string
)

// SSID returns the WiFi SSID set via linker flags.
func SSID() string { return ssid }

// Password returns the WiFi password set via linker flags.
func Password() string { return pass }

// Config configures the radio and the network stack.
type Config struct {
	// Hostname is sent in DHCP requests. Required.
	Hostname string
	// MaxTCPConns is the number of TCP connections the stack can hold.
	MaxTCPConns int
	// JoinRetry is the pause between failed join attempts. Defaults to 5s.
	JoinRetry time.Duration
	// OnLink is told when the radio joins or loses the network. May be nil.
	OnLink func(up bool)
	Logger *slog.Logger
	// RandSeed is mixed into the stack's PRNG seed.
	RandSeed int64
}

// Stack is a joined radio plus the lneto stack bound to it.
type Stack struct {
	s       xnet.StackAsync
	dev     *cyw43439.Device
	log     *slog.Logger
	onLink  func(up bool)
	sendbuf []byte
}

// Connect initializes the chip and joins ssid, retrying until it succeeds.
// An empty pass joins an open network.
func Connect(ssid, pass string, cfg Config) (*Stack, error) {
	if cfg.Hostname == "" {
		return nil, errors.New("cyw43439: empty hostname")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.OnLink == nil {
		cfg.OnLink = func(bool) {}
	}
	if cfg.JoinRetry <= 0 {
		cfg.JoinRetry = 5 * time.Second
	}
	if cfg.MaxTCPConns < 1 {
		cfg.MaxTCPConns = 1
	}
	logger := cfg.Logger

	start := time.Now()
	dev := cyw43439.NewPicoWDevice()
	dev.SetLogger(logger)
	if err := dev.Init(cyw43439.DefaultWifiConfig()); err != nil {
		return nil, errors.New("wifi init: " + err.Error())
	}
	logger.Info("wifi:init", slog.Duration("took", time.Since(start)))

	cfg.OnLink(false)
	for attempt := 1; ; attempt++ {
		logger.Info("wifi:joining",
			slog.String("ssid", ssid),
			slog.Bool("open", pass == ""),
			slog.Int("attempt", attempt),
		)
		err := dev.JoinWPA2(ssid, pass)
		if err == nil {
			break
		}
		logger.Error("wifi:join-failed", slog.String("err", err.Error()))
		time.Sleep(cfg.JoinRetry)
	}

	mac, err := dev.HardwareAddr6()
	if err != nil {
		return nil, errors.New("wifi hardware address: " + err.Error())
	}
	logger.Info("wifi:joined", slog.String("mac", net.HardwareAddr(mac[:]).String()))
	cfg.OnLink(true)

	stack := &Stack{
		dev:     dev,
		log:     logger,
		onLink:  cfg.OnLink,
		sendbuf: make([]byte, mtu),
	}
	err = stack.s.Reset(xnet.StackConfig{
		Hostname:        cfg.Hostname,
		MaxTCPConns:     cfg.MaxTCPConns,
		RandSeed:        time.Since(start).Nanoseconds() ^ cfg.RandSeed,
		HardwareAddress: mac,
		MTU:             mtu,
	})
	if err != nil {
		return nil, errors.New("stack reset: " + err.Error())
	}
	dev.RecvEthHandle(func(pkt []byte) error {
		return stack.s.Demux(pkt, 0)
	})
	return stack, nil
}

// SetupDHCP requests an IPv4 address. If DHCP does not complete and
// fallback is a valid address, fallback is assigned statically instead.
func (s *Stack) SetupDHCP(fallback netip.Addr) (netip.Addr, error) {
	req := netip.AddrFrom4([4]byte{})
	if fallback.IsValid() {
		if !fallback.Is4() {
			return netip.Addr{}, errors.New("dhcp: only IPv4 supported")
		}
		req = fallback
	}

	rstack := s.s.StackRetrying(50 * time.Millisecond)
	s.log.Info("dhcp:starting")
	results, err := rstack.DoDHCPv4(req.As4(), 3*time.Second, 3)
	if err != nil {
		if fallback.IsValid() && !fallback.IsUnspecified() {
			s.log.Warn("dhcp:static-fallback", slog.String("ip", fallback.String()))
			s.s.SetIPAddr(fallback)
			return fallback, nil
		}
		return netip.Addr{}, errors.New("dhcp: " + err.Error())
	}
	if err = s.s.AssimilateDHCPResults(results); err != nil {
		return netip.Addr{}, errors.New("dhcp assimilate: " + err.Error())
	}
	gatewayHW, err := rstack.DoResolveHardwareAddress6(results.Router, 500*time.Millisecond, 4)
	if err != nil {
		return netip.Addr{}, errors.New("resolve gateway: " + err.Error())
	}
	s.s.SetGateway6(gatewayHW)

	s.log.Info("dhcp:complete",
		slog.String("ip", results.AssignedAddr.String()),
		slog.String("router", results.Router.String()),
		slog.Uint64("lease_sec", uint64(results.TLease)),
	)
	return results.AssignedAddr, nil
}

// RecvAndSend polls the chip for one inbound frame and sends at most one
// outbound frame.
func (s *Stack) RecvAndSend() (sent, recv int, err error) {
	gotPacket, errRecv := s.dev.PollOne()
	if gotPacket {
		recv = 1
	}
	sent, err = s.s.Encapsulate(s.sendbuf, -1, 0)
	if err != nil {
		return 0, recv, errors.New("encapsulate: " + err.Error())
	}
	if sent > 0 {
		if err = s.dev.SendEth(s.sendbuf[:sent]); err != nil {
			return sent, recv, errors.New("send: " + err.Error())
		}
	}
	if errRecv != nil {
		return sent, recv, errors.New("poll: " + errRecv.Error())
	}
	return sent, recv, nil
}

// Serve pumps packets forever, sleeping idle whenever there is no traffic.
// After linkLossAfter consecutive failures the link is reported down, and
// up again on the next success. Run it in its own goroutine.
func (s *Stack) Serve(idle time.Duration, linkLossAfter int) {
	failures := 0
	for {
		sent, recv, err := s.RecvAndSend()
		switch {
		case err != nil:
			failures++
			s.log.Debug("wifi:pump", slog.String("err", err.Error()), slog.Int("failures", failures))
			if failures == linkLossAfter {
				s.log.Error("wifi:link-down", slog.Int("failures", failures))
				s.onLink(false)
			}
		case failures >= linkLossAfter && linkLossAfter > 0:
			failures = 0
			s.log.Info("wifi:link-up")
			s.onLink(true)
		default:
			failures = 0
		}
		if sent == 0 && recv == 0 {
			time.Sleep(idle)
		}
	}
}

// LnetoStack returns the underlying stack for DNS lookups and TCP dials.
func (s *Stack) LnetoStack() *xnet.StackAsync {
	return &s.s
}

// Addr returns the current IP address.
func (s *Stack) Addr() netip.Addr {
	return s.s.Addr()
}
