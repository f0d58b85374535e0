package linesrv

import (
	"github.com/cyberinferno/go-linesrv/connid"
	"github.com/cyberinferno/go-linesrv/partial"
	"github.com/cyberinferno/go-linesrv/utils"
)

// framer splits drained bytes into messages. Bytes seen since the last
// delimiter within one drain pass live in a caller-owned accumulator; bytes
// left over between passes live in the partial store.
type framer struct {
	delim    byte
	partials *partial.Store
}

// feed consumes chunk for connection id. Each delimiter completes a message
// made of the stored partial (if any), the accumulator and the bytes before
// the delimiter; emit receives a fresh slice it may keep. The returned
// accumulator holds the unterminated tail.
//
// emit returns false when the connection can take no more messages; feed
// then drops the rest of the chunk and reports ok=false.
func (f *framer) feed(id connid.ID, acc, chunk []byte, emit func(msg []byte) bool) (rest []byte, ok bool) {
	segments, tail := utils.SplitDelimited(chunk, f.delim)
	for _, seg := range segments {
		msg := utils.JoinBytes(f.partials.Pop(id), acc, seg)
		acc = acc[:0]
		if !emit(msg) {
			return acc, false
		}
	}

	return append(acc, tail...), true
}

// flush ends a drain pass, carrying a non-empty accumulator over to the
// next poll cycle.
func (f *framer) flush(id connid.ID, acc []byte) {
	if len(acc) > 0 {
		f.partials.Merge(id, acc)
	}
}
