package wire

import (
	"context"
	"fmt"
	"log/slog"
)

// HandlerFunc processes one inbound packet body and returns zero or more
// reply packets to send back to the sender. Returning an error does not
// stop the dispatch loop; it is logged and the sender receives nothing.
type HandlerFunc func(ctx context.Context, from string, body string) ([]Packet, error)

// Dispatcher routes inbound packets by name to a registered handler,
// generalizing the method-table lookup the MCP tool server used for
// JSON-RPC methods to this bus's flat packet-name namespace.
type Dispatcher struct {
	handlers map[string]HandlerFunc
	log      *slog.Logger
}

// NewDispatcher builds an empty registry. A nil logger disables logging.
func NewDispatcher(log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.New(slog.NewTextHandler(discardWriter{}, nil))
	}
	return &Dispatcher{handlers: make(map[string]HandlerFunc), log: log}
}

// Register binds a packet name to its handler. Registering the same name
// twice replaces the prior handler, which is useful for tests that stub
// out one handler without rebuilding the whole registry.
func (d *Dispatcher) Register(name string, h HandlerFunc) {
	d.handlers[name] = h
}

// Dispatch looks up pkt.Name and invokes its handler, forwarding any reply
// packets to bus.Send addressed back to the sender.
func (d *Dispatcher) Dispatch(ctx context.Context, bus Bus, env Envelope) {
	h, ok := d.handlers[env.Pkt.Name]
	if !ok {
		d.log.Warn("wire: no handler registered", "packet", env.Pkt.Name, "from", env.From)
		return
	}

	replies, err := h(ctx, env.From, env.Pkt.Body)
	if err != nil {
		d.log.Error("wire: handler error", "packet", env.Pkt.Name, "from", env.From, "error", err)
		return
	}

	for _, reply := range replies {
		if err := bus.Send(ctx, env.From, reply); err != nil {
			d.log.Error("wire: reply send failed", "packet", reply.Name, "to", env.From, "error", err)
		}
	}
}

// Serve runs the receive/dispatch loop until ctx is cancelled. Only safe to
// call when this Dispatcher's handlers are the sole mutator of whatever
// state they touch; a caller that must also drive a ticking process
// against that same state (e.g. the Crafting Server) should use RecvLoop
// instead and fold both into one select loop.
func (d *Dispatcher) Serve(ctx context.Context, bus Bus) error {
	for {
		env, err := bus.Recv(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("wire: recv: %w", err)
		}
		d.Dispatch(ctx, bus, env)
	}
}

// RecvLoop runs bus.Recv in its own goroutine and forwards each envelope on
// the returned channel, so a caller can select between inbound packets and
// some other event source (a tick, a shutdown signal) in a single
// goroutine instead of handing packets to a handler from a second,
// unsynchronized one. The error channel receives exactly one value - nil
// on clean cancellation - and both channels are closed once Recv stops.
func RecvLoop(ctx context.Context, bus Bus) (<-chan Envelope, <-chan error) {
	envCh := make(chan Envelope)
	errCh := make(chan error, 1)
	go func() {
		defer close(envCh)
		defer close(errCh)
		for {
			env, err := bus.Recv(ctx)
			if err != nil {
				if ctx.Err() != nil {
					errCh <- nil
				} else {
					errCh <- fmt.Errorf("wire: recv: %w", err)
				}
				return
			}
			select {
			case envCh <- env:
			case <-ctx.Done():
				errCh <- nil
				return
			}
		}
	}()
	return envCh, errCh
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }
