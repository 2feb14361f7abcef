package packfile

import (
	"fmt"
)

// applyDelta reconstructs a target object from base and a delta
// instruction stream of the form defined by spec §4.1.2: a source-size
// varint, a target-size varint, then a sequence of COPY (0x80-tagged,
// offset+length sub-bytes picked by a 7-bit presence mask) and INSERT
// (0x01-0x7f length-prefixed literal) commands.
func applyDelta(base, delta []byte) ([]byte, error) {
	srcSize, pos, err := readDeltaSize(delta, 0)
	if err != nil {
		return nil, err
	}
	if int(srcSize) != len(base) {
		return nil, fmt.Errorf("packfile: delta source size %d does not match base length %d", srcSize, len(base))
	}

	tgtSize, pos, err := readDeltaSize(delta, pos)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, tgtSize)

	for pos < len(delta) {
		op := delta[pos]
		pos++

		if op&0x80 != 0 {
			var offset, length uint32
			if op&0x01 != 0 {
				if pos >= len(delta) {
					return nil, fmt.Errorf("packfile: truncated copy offset")
				}
				offset |= uint32(delta[pos])
				pos++
			}
			if op&0x02 != 0 {
				if pos >= len(delta) {
					return nil, fmt.Errorf("packfile: truncated copy offset")
				}
				offset |= uint32(delta[pos]) << 8
				pos++
			}
			if op&0x04 != 0 {
				if pos >= len(delta) {
					return nil, fmt.Errorf("packfile: truncated copy offset")
				}
				offset |= uint32(delta[pos]) << 16
				pos++
			}
			if op&0x08 != 0 {
				if pos >= len(delta) {
					return nil, fmt.Errorf("packfile: truncated copy offset")
				}
				offset |= uint32(delta[pos]) << 24
				pos++
			}
			if op&0x10 != 0 {
				if pos >= len(delta) {
					return nil, fmt.Errorf("packfile: truncated copy length")
				}
				length |= uint32(delta[pos])
				pos++
			}
			if op&0x20 != 0 {
				if pos >= len(delta) {
					return nil, fmt.Errorf("packfile: truncated copy length")
				}
				length |= uint32(delta[pos]) << 8
				pos++
			}
			if op&0x40 != 0 {
				if pos >= len(delta) {
					return nil, fmt.Errorf("packfile: truncated copy length")
				}
				length |= uint32(delta[pos]) << 16
				pos++
			}
			if length == 0 {
				length = 0x10000
			}
			if int64(offset)+int64(length) > int64(len(base)) {
				return nil, fmt.Errorf("packfile: copy command out of base bounds")
			}
			out = append(out, base[offset:offset+length]...)
			continue
		}

		if op == 0 {
			return nil, fmt.Errorf("packfile: reserved delta opcode 0")
		}
		n := int(op)
		if pos+n > len(delta) {
			return nil, fmt.Errorf("packfile: truncated insert payload")
		}
		out = append(out, delta[pos:pos+n]...)
		pos += n
	}

	if uint64(len(out)) != tgtSize {
		return nil, fmt.Errorf("packfile: delta produced %d bytes, expected %d", len(out), tgtSize)
	}
	return out, nil
}

// readDeltaSize reads one of the two 7-bit-continuation varints at the
// head of a delta stream (source size, then target size).
func readDeltaSize(delta []byte, pos int) (uint64, int, error) {
	var size uint64
	var shift uint
	for {
		if pos >= len(delta) {
			return 0, 0, fmt.Errorf("packfile: truncated delta size varint")
		}
		b := delta[pos]
		pos++
		size |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			break
		}
		shift += 7
	}
	return size, pos, nil
}
