package udp_wg

import (
	"context"
	"io"

	"synapseguard/application/network/tun"
)

// PacketProcessor is the slice of the peer state machine the forwarder
// drives: one call per outbound IP packet, one per inbound datagram.
type PacketProcessor interface {
	SendIP(packet []byte) error
	ReceiveDatagram(datagram []byte) ([]byte, error)
}

// Worker runs the two forwarding directions over one peer.
type Worker struct {
	tunHandler       *TunHandler
	transportHandler *TransportHandler
}

func NewWorker(
	ctx context.Context,
	device io.ReadWriter,
	conn io.Reader,
	processor PacketProcessor,
	mtu int,
) tun.Worker {
	return &Worker{
		tunHandler:       NewTunHandler(ctx, device, processor),
		transportHandler: NewTransportHandler(ctx, conn, device, processor, mtu),
	}
}

func (w *Worker) HandleTun() error {
	return w.tunHandler.HandleTun()
}

func (w *Worker) HandleTransport() error {
	return w.transportHandler.HandleTransport()
}
