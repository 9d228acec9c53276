package core

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"io"
	"net"
	"runtime"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/sirupsen/logrus"
)

// discoveryWireMessage is the UDP advert payload: DEFLATE-compressed
// UTF-8 JSON carrying host/port/public_key/username.
type discoveryWireMessage struct {
	Host      string `json:"host"`
	Port      int    `json:"port"`
	PublicKey string `json:"public_key"`
	Username  string `json:"username"`
}

// Discovery runs two cooperating long-running tasks over one shared UDP
// socket: a listener that accumulates a deduplicated peer set, and a
// broadcaster that periodically adverts the local identity. The socket is
// owned once here rather than reacquired by each side.
type Discovery struct {
	conn          *net.UDPConn
	broadcastAddr *net.UDPAddr
	self          Peer
	registry      *PeerRegistry
	interval      time.Duration
	logger        *logrus.Logger

	OnDiscovered func(Peer)
}

// NewDiscovery binds the shared UDP socket. On POSIX, binds to
// ("", broadcastPort); elsewhere binds to (localHost, broadcastPort).
func NewDiscovery(self Peer, registry *PeerRegistry, broadcastPort int, interval time.Duration, lg *logrus.Logger) (*Discovery, error) {
	if lg == nil {
		lg = logrus.StandardLogger()
	}
	bindHost := ""
	if runtime.GOOS == "windows" {
		bindHost = self.Host
	}
	laddr := &net.UDPAddr{IP: net.ParseIP(bindHost), Port: broadcastPort}
	if bindHost == "" {
		laddr = &net.UDPAddr{Port: broadcastPort}
	}
	conn, err := net.ListenUDP("udp4", laddr)
	if err != nil {
		return nil, NewError(KindSocketError, err)
	}
	return &Discovery{
		conn:          conn,
		broadcastAddr: &net.UDPAddr{IP: net.IPv4bcast, Port: broadcastPort},
		self:          self,
		registry:      registry,
		interval:      interval,
		logger:        lg,
	}, nil
}

// Run starts the listener and broadcaster goroutines and blocks until ctx
// is cancelled, at which point the shared socket is closed.
func (d *Discovery) Run(ctx context.Context) {
	go d.listen(ctx)
	go d.broadcastLoop(ctx)
	<-ctx.Done()
	_ = d.conn.Close()
}

// listen receives adverts of up to 4096 bytes, DEFLATE-decodes, JSON-
// decodes into the wire struct, builds the peer tuple and inserts it into
// the registry unless it is self.
func (d *Discovery) listen(ctx context.Context) {
	buf := make([]byte, 4096)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		n, addr, err := d.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			d.logger.WithField("kind", KindSocketError).Warnf("discovery read: %v", err)
			continue
		}
		msg, err := decodeAdvert(buf[:n])
		if err != nil {
			d.logger.WithField("kind", KindDecodeError).Warnf("discovery decode: %v", err)
			continue
		}
		pubKey, err := hex.DecodeString(msg.PublicKey)
		if err != nil {
			d.logger.WithField("kind", KindDecodeError).Warnf("discovery decode pubkey: %v", err)
			continue
		}
		peer := Peer{
			Host:         addr.IP.String(),
			Port:         msg.Port,
			Username:     msg.Username,
			AgreementKey: pubKey,
		}
		if d.registry.Add(peer) && d.OnDiscovered != nil {
			d.OnDiscovered(peer)
		}
	}
}

// broadcastLoop sends the local identity advert every interval.
func (d *Discovery) broadcastLoop(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.advertiseOnce(); err != nil {
				d.logger.WithField("kind", KindSocketError).Warnf("discovery advert: %v", err)
			}
		}
	}
}

func (d *Discovery) advertiseOnce() error {
	msg := discoveryWireMessage{
		Host:      d.self.Host,
		Port:      d.self.Port,
		PublicKey: hex.EncodeToString(d.self.AgreementKey),
		Username:  d.self.Username,
	}
	payload, err := encodeAdvert(msg)
	if err != nil {
		return err
	}
	_, err = d.conn.WriteTo(payload, d.broadcastAddr)
	return err
}

func encodeAdvert(msg discoveryWireMessage) ([]byte, error) {
	raw, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(raw); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeAdvert(compressed []byte) (discoveryWireMessage, error) {
	var out discoveryWireMessage
	r := flate.NewReader(bytes.NewReader(compressed))
	defer r.Close()
	raw, err := io.ReadAll(r)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, err
	}
	return out, nil
}
