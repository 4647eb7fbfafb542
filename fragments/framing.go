package fragments

import (
	"encoding/binary"
	"math"
)

// OffsetSize returns the width in bytes of the framing offsets of a
// compact-format container whose total encoded length is n.
func OffsetSize(n int) int {
	switch {
	case n == 0:
		return 0
	case n <= math.MaxUint8:
		return 1
	case n <= math.MaxUint16:
		return 2
	case uint64(n) <= math.MaxUint32:
		return 4
	default:
		return 8
	}
}

// containerSize returns the offset width to use for a container with
// bodyLen bytes of data followed by n framing offsets.
//
// The width must be the one that [OffsetSize] computes from the final
// container length, so grow it until the two agree.
func containerSize(bodyLen, n int) int {
	for _, sz := range []int{1, 2, 4} {
		if OffsetSize(bodyLen+n*sz) <= sz {
			return sz
		}
	}
	return 8
}

// FramingOffsets appends the framing offsets of a compact-format
// container that started at output position start. The offsets are
// written in the order given, little-endian, using the smallest width
// that can address the whole container including the offsets
// themselves.
func (e *Encoder) FramingOffsets(start int, offsets []int) {
	if len(offsets) == 0 {
		return
	}
	sz := containerSize(len(e.Out)-start, len(offsets))
	var buf [8]byte
	for _, off := range offsets {
		binary.LittleEndian.PutUint64(buf[:], uint64(off))
		e.Out = append(e.Out, buf[:sz]...)
	}
}

// readOffset reads a little-endian framing offset of width sz from
// the front of bs.
func readOffset(bs []byte, sz int) int {
	switch sz {
	case 1:
		return int(bs[0])
	case 2:
		return int(binary.LittleEndian.Uint16(bs))
	case 4:
		return int(binary.LittleEndian.Uint32(bs))
	default:
		return int(binary.LittleEndian.Uint64(bs))
	}
}

// An OffsetReader reads the framing offsets at the tail of a
// compact-format container, back to front.
type OffsetReader struct {
	c    []byte
	sz   int
	tail int
}

// NewOffsetReader returns an OffsetReader for the container c.
func NewOffsetReader(c []byte) *OffsetReader {
	return &OffsetReader{
		c:    c,
		sz:   OffsetSize(len(c)),
		tail: len(c),
	}
}

// Next consumes and returns the next framing offset, moving from the
// end of the container towards its start. The offset must point
// inside the container, before the offsets read so far.
func (r *OffsetReader) Next() (int, error) {
	if r.sz == 0 || r.tail < r.sz {
		return 0, ErrMissingFramingOffset
	}
	r.tail -= r.sz
	off := readOffset(r.c[r.tail:], r.sz)
	if off > r.tail {
		return 0, ErrOutOfBounds
	}
	return off, nil
}

// Tail returns the position of the first framing offset consumed so
// far, which is the end of the container's data.
func (r *OffsetReader) Tail() int {
	return r.tail
}

// ArrayOffsets reads the framing offset table of a compact-format
// array of variable-size elements held in c. It returns the end
// position of each element, in element order.
func ArrayOffsets(c []byte) ([]int, error) {
	if len(c) == 0 {
		return nil, nil
	}
	sz := OffsetSize(len(c))
	if len(c) < sz {
		return nil, ErrMissingFramingOffset
	}
	last := readOffset(c[len(c)-sz:], sz)
	if last > len(c)-sz {
		return nil, ErrMissingFramingOffset
	}
	table := len(c) - last
	if table%sz != 0 {
		return nil, ErrMissingFramingOffset
	}
	n := table / sz
	ret := make([]int, n)
	prev := 0
	for i := range n {
		off := readOffset(c[last+i*sz:], sz)
		if off < prev || off > last {
			return nil, ErrOutOfBounds
		}
		ret[i] = off
		prev = off
	}
	return ret, nil
}
