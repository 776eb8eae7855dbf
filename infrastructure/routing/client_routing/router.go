package client_routing

import (
	"context"

	"golang.org/x/sync/errgroup"

	"synapseguard/application/network/routing"
	"synapseguard/application/network/tun"
)

type Router struct {
	worker tun.Worker
}

func NewRouter(worker tun.Worker) routing.Router {
	return &Router{
		worker: worker,
	}
}

func (r *Router) RouteTraffic(ctx context.Context) error {
	errGroup, _ := errgroup.WithContext(ctx)

	// TUN -> Transport
	errGroup.Go(func() error {
		return r.worker.HandleTun()
	})

	// Transport -> TUN
	errGroup.Go(func() error {
		return r.worker.HandleTransport()
	})

	return errGroup.Wait()
}
