package gorpc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrDecode marks a malformed frame or a fragment whose declared length
// exceeds the configured maximum. ErrIO marks a short read/write or a peer
// that closed mid-frame. Both are fatal for the owning connection.
var (
	ErrDecode = errors.New("gorpc: malformed frame")
	ErrIO     = errors.New("gorpc: transport io error")
)

// lastFragmentBit marks the final fragment of an XDR record. Fragment
// length occupies the remaining 31 bits, matching the classic ONC RPC
// record-marking standard this framing borrows.
const lastFragmentBit = uint32(1) << 31

// unboundedFragment is the limit readRecord applies when maxFragmentSize
// is 0 (the default): no limit.
const unboundedFragment = ^uint32(0)

// writeRecord writes body as a single-fragment XDR record: a 4-byte record
// mark (high bit set, since we always emit exactly one fragment) followed
// by body verbatim.
func writeRecord(w io.Writer, body []byte) error {
	mark := lastFragmentBit | uint32(len(body))
	hdr := make([]byte, 4)
	binary.BigEndian.PutUint32(hdr, mark)

	if _, err := w.Write(hdr); err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}
	return nil
}

// readRecord reads one complete XDR record from r, possibly spanning
// several fragments, and returns the concatenated fragment bodies.
// maxFragmentSize bounds each individual fragment's declared length; 0
// means unbounded.
func readRecord(r io.Reader, maxFragmentSize uint32) ([]byte, error) {
	if maxFragmentSize == 0 {
		maxFragmentSize = unboundedFragment
	}

	var body []byte
	for {
		var hdr [4]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrIO, err)
		}
		mark := binary.BigEndian.Uint32(hdr[:])
		last := mark&lastFragmentBit != 0
		fragLen := mark &^ lastFragmentBit
		if fragLen > maxFragmentSize {
			return nil, fmt.Errorf("%w: fragment length %d exceeds max %d", ErrDecode, fragLen, maxFragmentSize)
		}
		frag := make([]byte, fragLen)
		if _, err := io.ReadFull(r, frag); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrIO, err)
		}
		body = append(body, frag...)
		if last {
			break
		}
	}
	return body, nil
}

// marshalParam appends the tuple encoding of p (int32 type, uint32 len,
// len bytes of data, zero-padded to a 4-byte boundary) to dst. A nil Data
// and an empty non-nil Data marshal identically: both have length 0.
func marshalParam(dst []byte, p Param) ([]byte, error) {
	dataLen := uint32(len(p.Data))
	pad := (4 - int(dataLen)%4) % 4

	dst = binary.BigEndian.AppendUint32(dst, uint32(p.Type))
	dst = binary.BigEndian.AppendUint32(dst, dataLen)
	dst = append(dst, p.Data...)
	dst = append(dst, make([]byte, pad)...)
	return dst, nil
}

// unmarshalParam reads one tuple from the front of body and returns it
// along with the number of bytes consumed.
func unmarshalParam(body []byte) (Param, int, error) {
	if len(body) < 8 {
		return Param{}, 0, fmt.Errorf("%w: truncated tuple header", ErrDecode)
	}
	typ := int32(binary.BigEndian.Uint32(body[0:4]))
	dataLen := binary.BigEndian.Uint32(body[4:8])
	pad := (4 - int(dataLen)%4) % 4
	consumed := 8 + int(dataLen) + pad
	if len(body) < consumed {
		return Param{}, 0, fmt.Errorf("%w: truncated payload", ErrDecode)
	}

	var data []byte
	if dataLen > 0 {
		data = make([]byte, dataLen)
		copy(data, body[8:8+dataLen])
	}
	return Param{Type: typ, Data: data}, consumed, nil
}

// EncodeParam writes p to w as a single XDR record carrying exactly the
// tuple of type, length, and payload. This is the pure framing codec: no
// procedure number or status is involved.
func EncodeParam(w io.Writer, p Param) error {
	body, err := marshalParam(nil, p)
	if err != nil {
		return err
	}
	return writeRecord(w, body)
}

// DecodeParam reads one XDR record from r and parses it as a Param.
// maxFragmentSize bounds each fragment's declared length; 0 means
// unbounded.
func DecodeParam(r io.Reader, maxFragmentSize uint32) (Param, error) {
	body, err := readRecord(r, maxFragmentSize)
	if err != nil {
		return Param{}, err
	}
	p, consumed, err := unmarshalParam(body)
	if err != nil {
		return Param{}, err
	}
	if consumed != len(body) {
		return Param{}, fmt.Errorf("%w: trailing bytes after tuple", ErrDecode)
	}
	return p, nil
}
