// Copyright 2025 Gridpoint SCADA
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package bacnet

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gridpoint-scada/drivers/bacnet/bacnet/internal/transport"
)

// Client is a BACnet/IP client. It owns one UDP socket, a transaction
// manager for confirmed services, a device registry fed by I-Am, and the
// COV subscription table.
type Client struct {
	opts      clientOptions
	transport *transport.UDPTransport
	tx        *txManager
	metrics   *Metrics
	logger    *slog.Logger

	connected atomic.Bool

	devicesMu sync.RWMutex
	devices   map[uint32]*DeviceInfo

	subsMu        sync.RWMutex
	subs          map[uint32]*covSubscription
	nextProcessID atomic.Uint32

	receiverCancel context.CancelFunc
	receiverDone   chan struct{}
}

// NewClient creates a client with the given options. The socket is not
// opened until Connect.
func NewClient(opts ...Option) (*Client, error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(&options)
	}

	c := &Client{
		opts:    options,
		metrics: &Metrics{},
		logger:  options.logger,
		devices: make(map[uint32]*DeviceInfo),
		subs:    make(map[uint32]*covSubscription),
	}
	c.transport = transport.NewUDP(options.localAddress)
	c.tx = newTxManager(options.timeout, options.retries, c.metrics, c.logger, c.sendFrame)
	return c, nil
}

// Connect binds the UDP socket and starts the receive loop. A bind conflict
// on the requested port falls back to an ephemeral port inside the
// transport; if no port can be bound, ErrTransportUnavailable is returned.
func (c *Client) Connect(ctx context.Context) error {
	if c.connected.Load() {
		return ErrAlreadyConnected
	}

	if err := c.transport.Open(); err != nil {
		return fmt.Errorf("%w: %v", ErrTransportUnavailable, err)
	}
	c.connected.Store(true)

	recvCtx, cancel := context.WithCancel(context.Background())
	c.receiverCancel = cancel
	c.receiverDone = make(chan struct{})
	go c.receiver(recvCtx)

	c.logger.Info("bacnet client connected", "local", c.transport.LocalAddr().String())

	if c.opts.bbmdAddress != "" {
		if err := c.registerForeignDevice(ctx); err != nil {
			c.logger.Warn("foreign device registration failed",
				"bbmd", c.opts.bbmdAddress, "err", err)
		}
	}

	return nil
}

// Close cancels every live COV subscription best-effort, stops the receive
// loop, and closes the socket.
func (c *Client) Close() error {
	if !c.connected.Load() {
		return nil
	}

	c.unsubscribeAll()
	c.connected.Store(false)

	if c.receiverCancel != nil {
		c.receiverCancel()
	}
	err := c.transport.Close()
	if c.receiverDone != nil {
		<-c.receiverDone
	}

	c.logger.Info("bacnet client closed")
	return err
}

// Metrics returns the client's instrumentation.
func (c *Client) Metrics() *Metrics {
	return c.metrics
}

// LocalAddr returns the bound local address, or nil before Connect.
func (c *Client) LocalAddr() *net.UDPAddr {
	return c.transport.LocalAddr()
}

// sendFrame transmits a ready BVLC frame. It is the txManager's send hook.
func (c *Client) sendFrame(ctx context.Context, frame []byte, dest *net.UDPAddr) error {
	if !c.connected.Load() {
		return ErrNotConnected
	}
	return c.transport.Send(ctx, frame, dest)
}

// sendUnconfirmed transmits an unconfirmed service request to a unicast
// destination.
func (c *Client) sendUnconfirmed(ctx context.Context, dest *net.UDPAddr, service UnconfirmedServiceChoice, payload []byte) error {
	apdu := EncodeUnconfirmedRequest(service, payload)
	return c.sendFrame(ctx, packFrame(apdu, false), dest)
}

// broadcastUnconfirmed transmits an unconfirmed service request as a local
// broadcast.
func (c *Client) broadcastUnconfirmed(ctx context.Context, service UnconfirmedServiceChoice, payload []byte) error {
	if !c.connected.Load() {
		return ErrNotConnected
	}
	apdu := EncodeUnconfirmedRequest(service, payload)
	return c.transport.Broadcast(ctx, packBroadcastFrame(apdu), DefaultPort)
}

// registerForeignDevice registers with the configured BBMD so broadcasts
// reach this client across subnets.
func (c *Client) registerForeignDevice(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp4",
		fmt.Sprintf("%s:%d", c.opts.bbmdAddress, c.opts.bbmdPort))
	if err != nil {
		return fmt.Errorf("resolve bbmd: %w", err)
	}
	ttl := uint16(c.opts.bbmdTTL / time.Second)
	frame := EncodeRegisterForeignDevice(ttl)
	if err := c.sendFrame(ctx, frame, addr); err != nil {
		return err
	}
	c.logger.Info("registered as foreign device", "bbmd", addr.String(), "ttl_s", ttl)
	return nil
}

// receiver is the socket read loop. Malformed datagrams are counted and
// dropped; they never surface to callers.
func (c *Client) receiver(ctx context.Context) {
	defer close(c.receiverDone)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		data, from, err := c.transport.Receive(500 * time.Millisecond)
		if err != nil {
			if c.transport.IsClosed() {
				return
			}
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			c.logger.Debug("receive error", "err", err)
			continue
		}

		c.handlePacket(data, from)
	}
}

// handlePacket decodes one datagram and routes the APDU.
func (c *Client) handlePacket(data []byte, from *net.UDPAddr) {
	_, npduOffset, err := DecodeBVLC(data)
	if err != nil {
		c.metrics.DecodeErrors.Inc()
		c.logger.Debug("dropping datagram", "from", from.String(), "err", err)
		return
	}

	_, apduOffset, err := DecodeNPDU(data[npduOffset:])
	if err != nil {
		c.metrics.DecodeErrors.Inc()
		c.logger.Debug("dropping datagram", "from", from.String(), "err", err)
		return
	}

	apdu, err := DecodeAPDU(data[npduOffset+apduOffset:])
	if err != nil {
		c.metrics.DecodeErrors.Inc()
		c.logger.Debug("dropping datagram", "from", from.String(), "err", err)
		return
	}

	switch apdu.Type {
	case PDUTypeUnconfirmedRequest:
		c.handleUnconfirmed(apdu, from)

	case PDUTypeConfirmedRequest:
		// Devices send confirmed COV notifications as confirmed requests;
		// acknowledge before dispatching so the device stops retrying.
		if ConfirmedServiceChoice(apdu.Service) == ServiceConfirmedCOVNotification {
			ack := EncodeSimpleAck(apdu.InvokeID, ServiceConfirmedCOVNotification)
			if err := c.sendFrame(context.Background(), packFrame(ack, false), from); err != nil {
				c.logger.Debug("send simple ack failed", "from", from.String(), "err", err)
			}
			c.handleCOVNotification(apdu.Payload, from)
			return
		}
		c.logger.Debug("unsupported confirmed request",
			"from", from.String(), "service", apdu.Service)

	case PDUTypeSimpleAck, PDUTypeComplexAck, PDUTypeError, PDUTypeReject, PDUTypeAbort:
		if !c.tx.deliver(apdu, from) {
			c.logger.Debug("unmatched response",
				"invoke_id", apdu.InvokeID, "from", from.String(),
				"type", fmt.Sprintf("0x%02x", uint8(apdu.Type)))
		}

	case PDUTypeSegmentAck:
		// Client requests are never segmented; a stray segment ack is noise.
		c.logger.Debug("unexpected segment ack", "from", from.String())
	}
}

func (c *Client) handleUnconfirmed(apdu *APDU, from *net.UDPAddr) {
	switch UnconfirmedServiceChoice(apdu.Service) {
	case ServiceIAm:
		c.handleIAm(apdu.Payload, from)
	case ServiceUnconfirmedCOVNotification:
		c.handleCOVNotification(apdu.Payload, from)
	default:
		c.logger.Debug("ignoring unconfirmed service",
			"service", UnconfirmedServiceChoice(apdu.Service).String(), "from", from.String())
	}
}

// handleIAm decodes an I-Am and updates the device registry. A device heard
// from two addresses keeps the most recent one.
func (c *Client) handleIAm(payload []byte, from *net.UDPAddr) {
	oidVal, n, err := DecodeApplicationValue(payload)
	if err != nil {
		c.metrics.DecodeErrors.Inc()
		return
	}
	oid, ok := oidVal.(ObjectIdentifier)
	if !ok || oid.Type != ObjectTypeDevice {
		return
	}
	rest := payload[n:]

	maxAPDUVal, n, err := DecodeApplicationValue(rest)
	if err != nil {
		c.metrics.DecodeErrors.Inc()
		return
	}
	maxAPDU, _ := maxAPDUVal.(uint32)
	rest = rest[n:]

	segVal, n, err := DecodeApplicationValue(rest)
	if err != nil {
		c.metrics.DecodeErrors.Inc()
		return
	}
	segmentation, _ := segVal.(uint32)
	rest = rest[n:]

	vendorVal, _, err := DecodeApplicationValue(rest)
	if err != nil {
		c.metrics.DecodeErrors.Inc()
		return
	}
	vendor, _ := vendorVal.(uint32)

	info := &DeviceInfo{
		ObjectID:      oid,
		Address:       addressFromUDP(from),
		MaxAPDULength: uint16(maxAPDU),
		Segmentation:  Segmentation(segmentation),
		VendorID:      uint16(vendor),
	}

	c.devicesMu.Lock()
	_, known := c.devices[oid.Instance]
	c.devices[oid.Instance] = info
	c.devicesMu.Unlock()

	c.metrics.IAmsReceived.Inc()
	if !known {
		c.metrics.DevicesDiscovered.Inc()
	}
	c.logger.Debug("i-am received",
		"device", oid.Instance, "from", from.String(), "vendor", vendor)
}

// RegisterDevice seeds the registry with a device at a known address,
// bypassing discovery.
func (c *Client) RegisterDevice(deviceID uint32, hostport string) error {
	addr, err := net.ResolveUDPAddr("udp4", hostport)
	if err != nil {
		return fmt.Errorf("resolve device address: %w", err)
	}
	c.devicesMu.Lock()
	c.devices[deviceID] = &DeviceInfo{
		ObjectID:      NewObjectIdentifier(ObjectTypeDevice, deviceID),
		Address:       addressFromUDP(addr),
		MaxAPDULength: MaxAPDULength,
		Segmentation:  SegmentationNone,
	}
	c.devicesMu.Unlock()
	return nil
}

// Device returns the registry entry for a device id.
func (c *Client) Device(deviceID uint32) (*DeviceInfo, bool) {
	c.devicesMu.RLock()
	defer c.devicesMu.RUnlock()
	info, ok := c.devices[deviceID]
	return info, ok
}

// Devices returns a snapshot of the device registry.
func (c *Client) Devices() []*DeviceInfo {
	c.devicesMu.RLock()
	defer c.devicesMu.RUnlock()
	out := make([]*DeviceInfo, 0, len(c.devices))
	for _, info := range c.devices {
		out = append(out, info)
	}
	return out
}

// resolveDevice maps a device id to its UDP address.
func (c *Client) resolveDevice(deviceID uint32) (*net.UDPAddr, error) {
	c.devicesMu.RLock()
	info, ok := c.devices[deviceID]
	c.devicesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: device %d", ErrDeviceNotFound, deviceID)
	}
	return udpFromAddress(info.Address), nil
}

// addressFromUDP converts a UDP address to the registry's address form:
// 4 IP octets followed by a big-endian port.
func addressFromUDP(addr *net.UDPAddr) Address {
	ip := addr.IP.To4()
	if ip == nil {
		ip = addr.IP
	}
	raw := make([]byte, 0, len(ip)+2)
	raw = append(raw, ip...)
	raw = append(raw, byte(addr.Port>>8), byte(addr.Port))
	return Address{Addr: raw}
}

// udpFromAddress converts a registry address back to a UDP address.
func udpFromAddress(addr Address) *net.UDPAddr {
	if len(addr.Addr) < 6 {
		return nil
	}
	ip := net.IP(addr.Addr[:4])
	port := int(addr.Addr[4])<<8 | int(addr.Addr[5])
	return &net.UDPAddr{IP: ip, Port: port}
}
