package trafficstats

import (
	"sync/atomic"
	"time"
)

// Snapshot is a point-in-time copy of the tunnel counters. It may be
// slightly stale: every field is sampled independently and lock-free.
type Snapshot struct {
	LastHandshakeAt    time.Time
	BytesTX            uint64
	BytesRX            uint64
	PacketsTX          uint64
	PacketsRX          uint64
	TXDropped          uint64
	RXDropped          uint64
	CurrentSendCounter uint64
	RekeyIn            time.Duration
}

// Collector accumulates data-plane counters. All methods are safe for
// concurrent use from the forwarder loops and the snapshot reader.
type Collector struct {
	bytesTX   atomic.Uint64
	bytesRX   atomic.Uint64
	packetsTX atomic.Uint64
	packetsRX atomic.Uint64
	txDropped atomic.Uint64
	rxDropped atomic.Uint64

	sendCounter        atomic.Uint64
	lastHandshakeNanos atomic.Int64
	rekeyAtNanos       atomic.Int64
}

func NewCollector() *Collector {
	return &Collector{}
}

// RecordTX accounts one sealed-and-sent datagram.
func (c *Collector) RecordTX(bytes int) {
	c.bytesTX.Add(uint64(bytes))
	c.packetsTX.Add(1)
}

// RecordRX accounts one successfully opened datagram.
func (c *Collector) RecordRX(bytes int) {
	c.bytesRX.Add(uint64(bytes))
	c.packetsRX.Add(1)
}

// DropTX accounts an outbound packet that could not be sent.
func (c *Collector) DropTX() { c.txDropped.Add(1) }

// DropRX accounts an inbound datagram that failed authentication, replay or
// allowed-ips checks.
func (c *Collector) DropRX() { c.rxDropped.Add(1) }

// SetSendCounter publishes the active session's next send counter.
func (c *Collector) SetSendCounter(v uint64) { c.sendCounter.Store(v) }

// SetLastHandshake publishes the completion time of the latest handshake.
func (c *Collector) SetLastHandshake(t time.Time) {
	c.lastHandshakeNanos.Store(t.UnixNano())
}

// SetRekeyDeadline publishes when the current session will want a rekey; a
// zero time clears it.
func (c *Collector) SetRekeyDeadline(t time.Time) {
	if t.IsZero() {
		c.rekeyAtNanos.Store(0)
		return
	}
	c.rekeyAtNanos.Store(t.UnixNano())
}

// Snapshot samples every counter. now anchors the RekeyIn countdown.
func (c *Collector) Snapshot(now time.Time) Snapshot {
	s := Snapshot{
		BytesTX:            c.bytesTX.Load(),
		BytesRX:            c.bytesRX.Load(),
		PacketsTX:          c.packetsTX.Load(),
		PacketsRX:          c.packetsRX.Load(),
		TXDropped:          c.txDropped.Load(),
		RXDropped:          c.rxDropped.Load(),
		CurrentSendCounter: c.sendCounter.Load(),
	}
	if ns := c.lastHandshakeNanos.Load(); ns != 0 {
		s.LastHandshakeAt = time.Unix(0, ns)
	}
	if ns := c.rekeyAtNanos.Load(); ns != 0 {
		if d := time.Unix(0, ns).Sub(now); d > 0 {
			s.RekeyIn = d
		}
	}
	return s
}
