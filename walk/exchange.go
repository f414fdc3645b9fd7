// Exchange orchestration (spec.md §4.7): the per-iteration round trip
// that turns this rank's export table into remote work and back into
// reduced results. Grounded on aistore's own two-stage bundle usage in
// xact/xs/tcb.go (counts negotiated before the payload stream opens),
// adapted to the engine's sparse non-blocking Communicator/Exchange
// pair (transport.Communicator/transport.Exchange) instead of a
// persistent addressable stream.
//
// Split into postQueryExchange/finishQueryExchange rather than one
// function so the Outer Driver can run the Primary Runner's purely
// local pass while the query round trip postQueryExchange starts is
// still in flight (spec.md §2's compute/communication overlap): the
// counts negotiation is the only part that must block before the query
// Exchange's PostRecv/PostSend are issued, since each receive buffer's
// size comes from it.
package walk

import (
	"time"

	"github.com/cosmowalk/treewalk/cmn/debug"
	"github.com/cosmowalk/treewalk/cmn/nlog"
	"github.com/cosmowalk/treewalk/transport"
	"github.com/cosmowalk/treewalk/walk/metrics"
)

const (
	queryExchangeTag  = 0
	resultExchangeTag = 1
)

type destBatch struct {
	recs []*ExportRecord
}

type byteRange struct {
	start, count int
}

// pendingExchange is the in-flight query round trip postQueryExchange
// started: its PostRecv/PostSend pairs are posted, but qx.Wait() has
// not been called yet. finishQueryExchange consumes it.
type pendingExchange struct {
	qx        transport.Exchange
	byDest    map[int]*destBatch
	recvBufs  map[int][]byte
	recvFlags map[int]bool
	qWire     int
	started   time.Time
}

// postQueryExchange negotiates the counts exchange (blocking: each
// destination's receive buffer size depends on it), then posts the
// query Exchange's PostRecv/PostSend pairs and returns without waiting
// on them. The caller is expected to run Primary next and only call
// finishQueryExchange once Primary returns.
func (w *Walk) postQueryExchange() (*pendingExchange, error) {
	rank := w.Comm.Rank()
	size := w.Comm.Size()
	qWire := wireQuerySize(w.V)

	byDest := make(map[int]*destBatch)
	w.exports.Each(func(_ int, rec *ExportRecord) {
		debug.Assertf(rec.Rank != rank, "walk: export targets self (rank=%d)", rank)
		b := byDest[rec.Rank]
		if b == nil {
			b = &destBatch{}
			byDest[rec.Rank] = b
		}
		b.recs = append(b.recs, rec)
	})

	t0 := time.Now()
	destBufs := make(map[int][]byte, len(byDest))
	sendLens := make([]int64, size)
	for dst, b := range byDest {
		raw := make([]byte, len(b.recs)*qWire)
		for i, rec := range b.recs {
			p := w.Table.Particle(rec.OriginIdx)
			q := Query{QueryHeader: QueryHeader{Pos: p.Pos(), NodeList: rec.NodeList}}
			q.Extra = make([]byte, w.V.QuerySize)
			if w.V.Fill != nil {
				w.V.Fill(rec.OriginIdx, &q)
			}
			encodeQuery(&q, raw[i*qWire:(i+1)*qWire])
		}
		payload, compressed := transport.MaybeCompress(raw, w.Config)
		destBufs[dst] = payload
		sendLens[dst] = frameLen(len(payload), compressed)
	}

	recvLens, err := w.Comm.AlltoallInts(sendLens)
	if err != nil {
		return nil, err
	}
	w.Reporter.ObservePhase(metrics.PhaseCountsX, time.Since(t0))

	started := time.Now()
	qx := w.Comm.NewExchange(queryExchangeTag)
	recvBufs := make(map[int][]byte)
	recvFlags := make(map[int]bool)
	for src := 0; src < size; src++ {
		if src == rank || recvLens[src] == 0 {
			continue
		}
		byteLen, compressed := unframeLen(recvLens[src])
		buf := make([]byte, byteLen)
		recvBufs[src] = buf
		recvFlags[src] = compressed
		qx.PostRecv(src, buf)
	}
	for dst, buf := range destBufs {
		qx.PostSend(dst, buf)
		w.Reporter.NoteDestRank(dst)
	}

	return &pendingExchange{
		qx:        qx,
		byDest:    byDest,
		recvBufs:  recvBufs,
		recvFlags: recvFlags,
		qWire:     qWire,
		started:   started,
	}, nil
}

// finishQueryExchange waits on the query round trip postQueryExchange
// started (this is where the compute/communication overlap window
// closes), runs the Secondary Runner over whatever arrived, and drains
// the resulting Result payloads back to their origins (spec.md §4.7
// steps 3-7). Resets the export table once every result has been
// reduced.
func (w *Walk) finishQueryExchange(p *pendingExchange) error {
	if err := p.qx.Wait(); err != nil {
		return err
	}
	w.Reporter.ObservePhase(metrics.PhaseQueryX, time.Since(p.started))

	var flat []Query
	offsets := make(map[int]byteRange, len(p.recvBufs))
	for src, buf := range p.recvBufs {
		data := buf
		if p.recvFlags[src] {
			var err error
			data, err = transport.Decompress(buf)
			if err != nil {
				return err
			}
		}
		n := len(data) / p.qWire
		offsets[src] = byteRange{start: len(flat), count: n}
		for i := 0; i < n; i++ {
			flat = append(flat, decodeQuery(data[i*p.qWire:(i+1)*p.qWire], w.V.QuerySize))
		}
	}

	t2 := time.Now()
	results := w.runSecondary(flat)
	w.Reporter.ObservePhase(metrics.PhaseSecondary, time.Since(t2))

	rWire := wireResultSize(w.V)
	size := w.Comm.Size()

	t3 := time.Now()
	resultBufs := make(map[int][]byte, len(offsets))
	sendResultLens := make([]int64, size)
	for src, rng := range offsets {
		raw := make([]byte, rng.count*rWire)
		for i := 0; i < rng.count; i++ {
			encodeResult(&results[rng.start+i], raw[i*rWire:(i+1)*rWire])
		}
		payload, compressed := transport.MaybeCompress(raw, w.Config)
		resultBufs[src] = payload
		sendResultLens[src] = frameLen(len(payload), compressed)
	}

	recvResultLens, err := w.Comm.AlltoallInts(sendResultLens)
	if err != nil {
		return err
	}
	w.Reporter.ObservePhase(metrics.PhaseCountsX, time.Since(t3))

	t4 := time.Now()
	rx := w.Comm.NewExchange(resultExchangeTag)
	recvResultBufs := make(map[int][]byte)
	recvResultFlags := make(map[int]bool)
	for dst := range p.byDest {
		if recvResultLens[dst] == 0 {
			continue
		}
		byteLen, compressed := unframeLen(recvResultLens[dst])
		buf := make([]byte, byteLen)
		recvResultBufs[dst] = buf
		recvResultFlags[dst] = compressed
		rx.PostRecv(dst, buf)
	}
	for src, buf := range resultBufs {
		rx.PostSend(src, buf)
	}
	if err := rx.Wait(); err != nil {
		return err
	}
	w.Reporter.ObservePhase(metrics.PhaseResultX, time.Since(t4))

	for dst, b := range p.byDest {
		buf, ok := recvResultBufs[dst]
		if !ok {
			debug.Assertf(len(b.recs) == 0, "walk: no results arrived from dest rank %d with %d pending exports", dst, len(b.recs))
			continue
		}
		data := buf
		if recvResultFlags[dst] {
			var derr error
			data, derr = transport.Decompress(buf)
			if derr != nil {
				return derr
			}
		}
		n := len(data) / rWire
		debug.Assertf(n == len(b.recs), "walk: result count %d from rank %d does not match %d pending exports", n, dst, len(b.recs))
		for i, rec := range b.recs {
			res := decodeResult(data[i*rWire:(i+1)*rWire], w.V.ResultSize)
			if w.V.Reduce != nil {
				w.V.Reduce(rec.OriginIdx, &res, ReduceGhosts, w)
			}
		}
	}

	w.exports.Reset()
	nlog.Infof("walk: exchange run=%s dests=%d imports=%d", w.ID, len(p.byDest), len(flat))
	return nil
}

// frameLen packs a byte length and a compression flag into one int64 for
// the counts-exchange collective, since transport.Communicator only
// carries a single integer per destination (spec.md's counts exchange
// was defined around record counts; compressed payloads need their
// exact byte length negotiated instead, so the flag rides along in the
// low bit rather than adding a second collective round trip).
func frameLen(byteLen int, compressed bool) int64 {
	v := int64(byteLen) << 1
	if compressed {
		v |= 1
	}
	return v
}

func unframeLen(framed int64) (byteLen int, compressed bool) {
	return int(framed >> 1), framed&1 == 1
}
