// Wire codec for Query/Result payloads crossing the Exchange boundary
// (spec.md §3 "Query/Result Payloads"). Fixed-offset manual packing,
// not a general-purpose serializer: the payload shape is exactly the
// header fields plus an opaque Extra tail, mirroring spec.md §9's
// "dispatch uses byte-offset slicing into the query/result buffers".
// encoding/binary is the standard library's fixed-width codec; nothing
// in the retrieved corpus offers a closer fit for packing a tiny,
// fixed-layout struct into bytes without allocating an intermediate
// representation (DESIGN.md).
package walk

import (
	"encoding/binary"
	"math"

	"github.com/cosmowalk/treewalk/cmn/cos"
)

func wireQuerySize(v *Visitor) int  { return 3*8 + cos.NodeListLength*8 + v.QuerySize }
func wireResultSize(v *Visitor) int { return 8 + v.ResultSize }

func encodeQuery(q *Query, buf []byte) {
	for a := 0; a < 3; a++ {
		binary.LittleEndian.PutUint64(buf[a*8:a*8+8], math.Float64bits(q.Pos[a]))
	}
	base := 24
	for li := 0; li < cos.NodeListLength; li++ {
		binary.LittleEndian.PutUint64(buf[base+li*8:base+li*8+8], uint64(int64(q.NodeList[li])))
	}
	copy(buf[base+cos.NodeListLength*8:], q.Extra)
}

func decodeQuery(buf []byte, querySize int) Query {
	var q Query
	for a := 0; a < 3; a++ {
		q.Pos[a] = math.Float64frombits(binary.LittleEndian.Uint64(buf[a*8 : a*8+8]))
	}
	base := 24
	for li := 0; li < cos.NodeListLength; li++ {
		q.NodeList[li] = int(int64(binary.LittleEndian.Uint64(buf[base+li*8 : base+li*8+8])))
	}
	q.Extra = make([]byte, querySize)
	copy(q.Extra, buf[base+cos.NodeListLength*8:base+cos.NodeListLength*8+querySize])
	return q
}

func encodeResult(r *Result, buf []byte) {
	binary.LittleEndian.PutUint64(buf[0:8], uint64(r.IDEcho))
	copy(buf[8:], r.Extra)
}

func decodeResult(buf []byte, resultSize int) Result {
	var r Result
	r.IDEcho = int64(binary.LittleEndian.Uint64(buf[0:8]))
	r.Extra = make([]byte, resultSize)
	copy(r.Extra, buf[8:8+resultSize])
	return r
}
