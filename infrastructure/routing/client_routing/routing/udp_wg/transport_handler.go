package udp_wg

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"synapseguard/domain/vpn"
	"synapseguard/infrastructure/settings"
)

type TransportHandler struct {
	ctx       context.Context
	reader    io.Reader // abstraction over the UDP socket
	writer    io.Writer // abstraction over the TUN device
	processor PacketProcessor
	mtu       int
}

func NewTransportHandler(
	ctx context.Context,
	reader io.Reader,
	writer io.Writer,
	processor PacketProcessor,
	mtu int,
) *TransportHandler {
	return &TransportHandler{
		ctx:       ctx,
		reader:    reader,
		writer:    writer,
		processor: processor,
		mtu:       mtu,
	}
}

// HandleTransport reads UDP datagrams, dispatches them through the peer and
// writes decrypted inner packets to the TUN device. Undecryptable traffic is
// dropped inside the peer; only I/O failures end the loop.
func (h *TransportHandler) HandleTransport() error {
	buffer := make([]byte, settings.UDPBufferSize(max(h.mtu, settings.DefaultMTUIPv4)))

	for {
		select {
		case <-h.ctx.Done():
			return nil
		default:
			n, readErr := h.reader.Read(buffer)
			if readErr != nil {
				if errors.Is(readErr, os.ErrDeadlineExceeded) {
					continue
				}
				if h.ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("could not read a packet from conn: %w", readErr)
			}

			inner, err := h.processor.ReceiveDatagram(buffer[:n])
			if err != nil {
				if errors.Is(err, vpn.ErrRetired) || h.ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("failed to process datagram: %w", err)
			}
			if inner == nil {
				continue
			}
			if _, writeErr := h.writer.Write(inner); writeErr != nil {
				if h.ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("failed to write to TUN: %w", writeErr)
			}
		}
	}
}
