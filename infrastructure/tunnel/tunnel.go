package tunnel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/sync/errgroup"

	"synapseguard/application"
	"synapseguard/application/network/connection"
	apptun "synapseguard/application/network/tun"
	"synapseguard/domain/vpn"
	"synapseguard/infrastructure/listeners/udp_listener"
	"synapseguard/infrastructure/peer"
	"synapseguard/infrastructure/routing/client_routing"
	"synapseguard/infrastructure/routing/client_routing/routing/udp_wg"
	"synapseguard/infrastructure/settings"
	"synapseguard/infrastructure/telemetry/trafficstats"
	"synapseguard/infrastructure/timing"
)

// Deps are the externally supplied collaborators. Device is mandatory; a nil
// Conn is dialed from the config endpoint; a nil Logger disables logging and
// a nil Clock means the system clock.
type Deps struct {
	Device apptun.Device
	Conn   connection.Transport
	Logger application.Logger
	Clock  timing.Clock
}

// Stats is the user-facing snapshot: the state machine plus the data-plane
// counters. The counters are sampled lock-free and may be slightly stale;
// State is read under the peer's lock.
type Stats struct {
	State vpn.State
	trafficstats.Snapshot
}

// Tunnel is one running VPN client instance. There is no singleton; Start
// may be called again after Stop with a fresh config.
type Tunnel struct {
	peer   *peer.Peer
	stats  *trafficstats.Collector
	clock  timing.Clock
	cancel context.CancelFunc
	conn   io.Closer
	device io.Closer

	states chan vpn.StateEvent

	stopOnce sync.Once
	done     chan struct{}
	runErr   error
}

// Start validates the config, brings up the data plane and begins the first
// handshake. Configuration errors fail synchronously; everything later is
// reported through the state channel.
func Start(cfg settings.TunnelConfig, deps Deps) (*Tunnel, error) {
	if deps.Device == nil {
		return nil, fmt.Errorf("%w: tun device is required", vpn.ErrConfigInvalid)
	}
	rt, err := cfg.Parse()
	if err != nil {
		return nil, err
	}

	clock := deps.Clock
	if clock == nil {
		clock = timing.SystemClock{}
	}

	conn := deps.Conn
	if conn == nil {
		udp, dialErr := udp_listener.NewUdpDialer(rt.Endpoint).Establish()
		if dialErr != nil {
			return nil, fmt.Errorf("%w: %v", vpn.ErrNetworkUnreachable, dialErr)
		}
		conn = udp
	}

	t := &Tunnel{
		stats:  trafficstats.NewCollector(),
		clock:  clock,
		conn:   conn,
		device: deps.Device,
		states: make(chan vpn.StateEvent, 16),
		done:   make(chan struct{}),
	}

	wheel := timing.NewWheel(clock, 0)
	p, err := peer.NewPeer(rt, conn, wheel, clock, t.stats, deps.Logger, t.publish)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	t.peer = p

	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel

	worker := udp_wg.NewWorker(ctx, deviceReadWriter{deps.Device}, conn, p, rt.MTU)
	router := client_routing.NewRouter(worker)

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error { return router.RouteTraffic(ctx) })
	group.Go(func() error { return wheel.Run(ctx) })

	p.Connect()

	go func() {
		t.runErr = group.Wait()
		close(t.done)
	}()

	return t, nil
}

// State reports the current tunnel state.
func (t *Tunnel) State() vpn.State { return t.peer.State() }

// States is the event channel: monotonic state transitions plus surfaced
// errors. When the consumer lags, the oldest event is dropped.
func (t *Tunnel) States() <-chan vpn.StateEvent { return t.states }

// Stats samples the counters.
func (t *Tunnel) Stats() Stats {
	return Stats{
		State:    t.peer.State(),
		Snapshot: t.stats.Snapshot(t.clock.Now()),
	}
}

// Stop cancels the forwarding tasks, zeroizes all key material and closes
// the socket and the tun device. Idempotent; always returns to Idle.
func (t *Tunnel) Stop() error {
	t.stopOnce.Do(func() {
		t.cancel()
		t.peer.Stop()
		// closing the fds unblocks reads parked inside the loops
		_ = t.conn.Close()
		_ = t.device.Close()
		<-t.done
	})
	return nil
}

// Wait blocks until the forwarding tasks have ended and reports their error.
func (t *Tunnel) Wait() error {
	<-t.done
	if errors.Is(t.runErr, context.Canceled) {
		return nil
	}
	return t.runErr
}

func (t *Tunnel) publish(e vpn.StateEvent) {
	for {
		select {
		case t.states <- e:
			return
		default:
			select {
			case <-t.states:
			default:
			}
		}
	}
}

// deviceReadWriter narrows the tun device to the io interfaces the worker
// consumes.
type deviceReadWriter struct {
	apptun.Device
}
