// Package transport is the engine's Exchange substrate (spec.md §4.7 /
// §6 "MPI interface"). It is grounded on aistore's transport.StreamBundle
// (imported as "github.com/NVIDIA/aistore/transport/bundle" in
// xact/xs/tcb.go, constructed with `bundle.NewDataMover(trname, recvCB,
// owt, extra)`): one persistent addressable stream per destination,
// registered once, fed per iteration. Communicator plays StreamBundle's
// role for collectives (counts Alltoall, done-flag Allreduce);
// Exchange plays it for the sparse non-blocking payload exchange.
//
// LocalCommunicator is the in-process implementation used by tests and
// cmd/walkctl: one goroutine per simulated MPI rank, connected through
// a shared Hub instead of a socket. A production deployment would swap
// in a real MPI- or gRPC-backed Communicator without the engine package
// (walk) changing at all — it only ever sees the Communicator/Exchange
// interfaces.
package transport

import (
	"sync"

	"github.com/klauspost/compress/s2"

	"github.com/cosmowalk/treewalk/cmn"
	"github.com/cosmowalk/treewalk/cmn/debug"
)

// Communicator is the collective half of the MPI interface: rank
// identity plus the counts exchange and the done-flag reduction
// (spec.md §4.7 step 1, §4.8's exit condition).
type Communicator interface {
	Rank() int
	Size() int

	// AlltoallInts exchanges one int64 per destination rank: send[d] is
	// what this rank sends to rank d; the result's [s] is what this
	// rank received from rank s. len(send) must equal Size().
	AlltoallInts(send []int64) (recv []int64, err error)

	// AllreduceSum sums v across every rank and returns the total to
	// all of them (spec.md §4.7 step 7's `Allreduce(done_flag, SUM)`).
	AllreduceSum(v int64) (int64, error)

	// NewExchange opens a sparse non-blocking payload exchange tagged
	// `tag` (spec.md allows exactly two tags per iteration: query and
	// result).
	NewExchange(tag int) Exchange
}

// Exchange is one sparse non-blocking all-to-all of byte payloads:
// receives are posted before sends (spec.md §4.7 step 2 "Post
// non-blocking sparse receives, then sends... enables a potential
// zero-copy path"), and only ranks with non-zero counts participate.
type Exchange interface {
	// PostRecv registers buf to be filled with the payload this rank
	// will receive from src. Non-blocking: returns immediately.
	PostRecv(src int, buf []byte)
	// PostSend enqueues buf for delivery to dst. Non-blocking; buf must
	// not be modified until Wait returns (spec.md §4.7 step 5 "Wait on
	// sends of queries before freeing the send buffer").
	PostSend(dst int, buf []byte)
	// Wait blocks until every posted receive has been filled and every
	// posted send has been delivered.
	Wait() error
}

type message struct {
	data []byte
}

type chanKey struct {
	dst, tag, src int
}

// Hub is the shared rendezvous point for every simulated rank's
// LocalCommunicator, standing in for the network.
type Hub struct {
	size int

	mu    sync.Mutex
	inbox map[chanKey]chan message

	// barrier/reduce state (sense-reversing barrier, one generation's
	// reduce buffer at a time — callers must call AllreduceSum/Barrier
	// in lockstep across ranks, which the outer driver always does).
	bmu      sync.Mutex
	bcond    *sync.Cond
	bcount   int
	bgen     int
	reduceIn []int64
}

// NewHub allocates the shared substrate for `size` simulated ranks.
func NewHub(size int) *Hub {
	h := &Hub{size: size, inbox: make(map[chanKey]chan message), reduceIn: make([]int64, size)}
	h.bcond = sync.NewCond(&h.bmu)
	return h
}

func (h *Hub) chanFor(dst, tag, src int) chan message {
	h.mu.Lock()
	defer h.mu.Unlock()
	k := chanKey{dst, tag, src}
	ch, ok := h.inbox[k]
	if !ok {
		ch = make(chan message, 1)
		h.inbox[k] = ch
	}
	return ch
}

// barrier blocks every rank until all Size() ranks have called it for
// the current generation.
func (h *Hub) barrier() {
	h.bmu.Lock()
	gen := h.bgen
	h.bcount++
	if h.bcount == h.size {
		h.bcount = 0
		h.bgen++
		h.bcond.Broadcast()
	} else {
		for h.bgen == gen {
			h.bcond.Wait()
		}
	}
	h.bmu.Unlock()
}

// LocalCommunicator is one simulated rank's handle onto a Hub.
type LocalCommunicator struct {
	hub  *Hub
	rank int
	tags int64 // not read or written; internal collectives use the fixed negative tags below
}

// Rank returns a fresh LocalCommunicator for rank r of hub.
func (h *Hub) Rank(r int) *LocalCommunicator { return &LocalCommunicator{hub: h, rank: r} }

func (c *LocalCommunicator) Rank() int { return c.rank }
func (c *LocalCommunicator) Size() int { return c.hub.size }

const (
	internalTagCounts = -1
	internalTagReduce = -2
)

func (c *LocalCommunicator) AlltoallInts(send []int64) ([]int64, error) {
	debug.Assertf(len(send) == c.hub.size, "transport: AlltoallInts len=%d size=%d", len(send), c.hub.size)
	ex := c.NewExchange(internalTagCounts)
	recv := make([]int64, c.hub.size)
	bufs := make([][8]byte, c.hub.size)
	for r := 0; r < c.hub.size; r++ {
		if r == c.rank {
			recv[r] = send[r]
			continue
		}
		ex.PostRecv(r, bufs[r][:])
	}
	for r := 0; r < c.hub.size; r++ {
		if r == c.rank {
			continue
		}
		var b [8]byte
		putInt64(b[:], send[r])
		ex.PostSend(r, b[:])
	}
	if err := ex.Wait(); err != nil {
		return nil, err
	}
	for r := 0; r < c.hub.size; r++ {
		if r == c.rank {
			continue
		}
		recv[r] = getInt64(bufs[r][:])
	}
	return recv, nil
}

// AllreduceSum sums v from every rank via a barrier-guarded shared
// accumulator: write, barrier (ensures every write lands), read+sum,
// barrier (ensures no rank re-enters and overwrites before the slower
// readers finish).
func (c *LocalCommunicator) AllreduceSum(v int64) (int64, error) {
	c.hub.mu.Lock()
	c.hub.reduceIn[c.rank] = v
	c.hub.mu.Unlock()
	c.hub.barrier()
	var sum int64
	for _, x := range c.hub.reduceIn {
		sum += x
	}
	c.hub.barrier()
	return sum, nil
}

func (c *LocalCommunicator) NewExchange(tag int) Exchange {
	return &exchange{hub: c.hub, tag: tag, self: c.rank}
}

type exchange struct {
	hub     *Hub
	tag     int
	self    int
	recvWG  sync.WaitGroup
	sendWG  sync.WaitGroup
	mu      sync.Mutex
	lastErr error
}

func (e *exchange) PostRecv(src int, buf []byte) {
	e.recvWG.Add(1)
	go func() {
		defer e.recvWG.Done()
		ch := e.hub.chanFor(e.self, e.tag, src)
		msg := <-ch
		copy(buf, msg.data)
		if len(msg.data) != len(buf) {
			e.mu.Lock()
			if e.lastErr == nil {
				e.lastErr = shortRecvError(e.self, src, len(buf), len(msg.data))
			}
			e.mu.Unlock()
		}
	}()
}

func (e *exchange) PostSend(dst int, buf []byte) {
	e.sendWG.Add(1)
	// A real zero-copy MPI send would hand the buffer to the network
	// layer directly; here the Hub channel is the "wire", so a copy is
	// unavoidable since buf is caller-owned and may be reused the
	// instant PostSend returns once Wait has observed the copy done.
	cp := make([]byte, len(buf))
	copy(cp, buf)
	go func() {
		defer e.sendWG.Done()
		ch := e.hub.chanFor(dst, e.tag, e.self)
		ch <- message{data: cp}
	}()
}

func (e *exchange) Wait() error {
	e.sendWG.Wait()
	e.recvWG.Wait()
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

// MaybeCompress applies s2 (klauspost/compress) to payload when it
// crosses cmn.Config.CompressThreshold, mirroring aistore's
// config.TCB.Compression knob (xact/xs/tcb.go's bundle.Extra{Compression:
// config.TCB.Compression}). Returns the (possibly) compressed bytes and
// whether compression was applied.
func MaybeCompress(payload []byte, cfg *cmn.Config) ([]byte, bool) {
	if cfg.CompressThreshold <= 0 || len(payload) < cfg.CompressThreshold {
		return payload, false
	}
	return s2.Encode(nil, payload), true
}

// Decompress reverses MaybeCompress.
func Decompress(payload []byte) ([]byte, error) {
	return s2.Decode(nil, payload)
}

func putInt64(b []byte, v int64) {
	u := uint64(v)
	for i := 0; i < 8; i++ {
		b[i] = byte(u >> (8 * i))
	}
}

func getInt64(b []byte) int64 {
	var u uint64
	for i := 0; i < 8; i++ {
		u |= uint64(b[i]) << (8 * i)
	}
	return int64(u)
}
