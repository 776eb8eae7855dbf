package udp_wg

import (
	"context"
	"errors"
	"fmt"
	"io"

	"synapseguard/domain/vpn"
	"synapseguard/infrastructure/settings"
)

type TunHandler struct {
	ctx       context.Context
	reader    io.Reader // abstraction over TUN device
	processor PacketProcessor
}

func NewTunHandler(ctx context.Context, reader io.Reader, processor PacketProcessor) *TunHandler {
	return &TunHandler{
		ctx:       ctx,
		reader:    reader,
		processor: processor,
	}
}

// HandleTun reads IP packets from the TUN device and hands them to the peer,
// which seals and sends them over UDP.
func (h *TunHandler) HandleTun() error {
	buffer := make([]byte, settings.MaxPacketLengthBytes)

	for {
		select {
		case <-h.ctx.Done():
			return nil
		default:
			n, err := h.reader.Read(buffer)
			if n > 0 {
				if sendErr := h.processor.SendIP(buffer[:n]); sendErr != nil {
					if errors.Is(sendErr, vpn.ErrRetired) || h.ctx.Err() != nil {
						return nil
					}
					return fmt.Errorf("could not send packet: %w", sendErr)
				}
			}
			if err != nil {
				if h.ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("could not read a packet from TUN: %w", err)
			}
		}
	}
}
