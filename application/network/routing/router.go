package routing

import "context"

// Router is an interface for routing traffic between client and server
// (manages the TUN worker and the transport worker).
type Router interface {
	RouteTraffic(ctx context.Context) error
}
