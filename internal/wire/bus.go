package wire

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

// Envelope pairs a received packet with the address it arrived from.
type Envelope struct {
	From string
	Pkt  Packet
}

// Bus is the minimal contract both servers need from the radio transport:
// best-effort, unordered, no acknowledgement of delivery. Send may silently
// drop a frame under load; Recv blocks until a packet arrives or ctx ends.
type Bus interface {
	Send(ctx context.Context, addr string, pkt Packet) error
	Recv(ctx context.Context) (Envelope, error)
	Addr() string
}

// seqCounter hands out monotonically increasing sequence tokens for
// outbound chunked messages; one counter per bus instance.
type seqCounter struct {
	mu   sync.Mutex
	next uint64
}

func (c *seqCounter) take() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next++
	return c.next
}

// LocalBus is an in-process best-effort bus: every participant shares one
// switchboard (a map of address -> inbound channel), modeling the shared
// radio medium without a real network socket. It is the transport used by
// the reference storage/crafting wiring and by tests; a production
// deployment would swap this for a UDP-backed Bus implementing the same
// interface.
//
// Sends are throttled with a token-bucket limiter (golang.org/x/time/rate)
// to model the bus's real bandwidth ceiling: a runaway dispatcher tick that
// tries to fan out hundreds of frames in one pass degrades into drops
// instead of an unbounded burst, which is the same failure shape a real
// best-effort radio channel has under congestion.
type LocalBus struct {
	addr    string
	switchb *Switchboard
	limiter *rate.Limiter
	seq     seqCounter
	reasm   *Reassembler
	reasmMu sync.Mutex
}

// Switchboard is the shared medium every LocalBus on the same fabric binds
// to; it owns the per-address inbound queues.
type Switchboard struct {
	mu    sync.Mutex
	inbox map[string]chan rawFrame
}

type rawFrame struct {
	from  string
	frame Frame
}

// NewSwitchboard creates an empty shared medium.
func NewSwitchboard() *Switchboard {
	return &Switchboard{inbox: make(map[string]chan rawFrame)}
}

// NewLocalBus registers addr on sb and returns its endpoint. burst and
// ratePerSec bound outbound frame throughput; a sensible default for a
// single transposer network is a few hundred frames/sec.
func NewLocalBus(sb *Switchboard, addr string, ratePerSec float64, burst int) *LocalBus {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	ch := make(chan rawFrame, 256)
	sb.inbox[addr] = ch

	return &LocalBus{
		addr:    addr,
		switchb: sb,
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), burst),
		reasm:   NewReassembler(nil),
	}
}

// Addr returns this endpoint's bus address.
func (b *LocalBus) Addr() string { return b.addr }

// Send frames pkt and delivers it to addr's inbox, dropping frames the
// limiter rejects (best-effort: the caller gets an error, but per spec.md
// there is no retry contract at this layer — higher-level state machines
// are expected to tolerate loss).
func (b *LocalBus) Send(ctx context.Context, addr string, pkt Packet) error {
	seq := b.seq.take()
	frames := SplitFrames(seq, pkt)

	b.switchb.mu.Lock()
	dst, ok := b.switchb.inbox[addr]
	b.switchb.mu.Unlock()
	if !ok {
		return fmt.Errorf("wire: no such bus address %q", addr)
	}

	for _, f := range frames {
		if !b.limiter.Allow() {
			return fmt.Errorf("wire: bus send throttled (dropped frame %d/%d of seq %d)", f.Part, f.PartsTotal, f.Seq)
		}
		select {
		case dst <- rawFrame{from: b.addr, frame: f}:
		case <-ctx.Done():
			return ctx.Err()
		default:
			return fmt.Errorf("wire: inbox for %q full, dropping frame", addr)
		}
	}
	return nil
}

// Recv blocks until a complete packet has been reassembled from this
// endpoint's inbox, or ctx ends.
func (b *LocalBus) Recv(ctx context.Context) (Envelope, error) {
	b.switchb.mu.Lock()
	ch := b.switchb.inbox[b.addr]
	b.switchb.mu.Unlock()

	for {
		select {
		case raw := <-ch:
			b.reasmMu.Lock()
			pkt, complete := b.reasm.Feed(raw.frame)
			b.reasmMu.Unlock()
			if complete {
				return Envelope{From: raw.from, Pkt: pkt}, nil
			}
		case <-ctx.Done():
			return Envelope{}, ctx.Err()
		}
	}
}
