package wal

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/hupe1980/boxdb/internal/hash"
)

// OpType identifies a mutation inside a commit frame.
type OpType uint8

const (
	OpSet    OpType = 1
	OpDelete OpType = 2
)

var (
	ErrInvalidCRC    = errors.New("invalid frame checksum")
	ErrInvalidOp     = errors.New("invalid frame operation")
	ErrShortRead     = errors.New("short read in frame")
	ErrFrameTooLarge = errors.New("frame too large")
)

// maxFrameSize bounds a single committed transaction.
const maxFrameSize = 256 * 1024 * 1024

// frameHeaderSize is CRC (4) + LSN (8) + Length (4).
const frameHeaderSize = 16

// Op is one key mutation.
type Op struct {
	Type  OpType
	Key   []byte
	Value []byte
}

// Frame is one committed transaction.
type Frame struct {
	LSN uint64
	Ops []Op
}

func (f *Frame) bodySize() int {
	n := 0
	for _, op := range f.Ops {
		n += 1 + binary.MaxVarintLen32 + len(op.Key)
		if op.Type == OpSet {
			n += binary.MaxVarintLen32 + len(op.Value)
		}
	}
	return n
}

// AppendTo encodes the frame and appends it to dst.
//
// Format:
// [CRC32C: 4][LSN: 8][Length: 4][Ops: Length bytes]
// Op: [Type: 1][uvarint KeyLen][Key] and for OpSet [uvarint ValueLen][Value].
// The checksum covers LSN, Length and Ops.
func (f *Frame) AppendTo(dst []byte) ([]byte, error) {
	start := len(dst)
	dst = append(dst, make([]byte, frameHeaderSize)...)

	for _, op := range f.Ops {
		switch op.Type {
		case OpSet:
			dst = append(dst, byte(op.Type))
			dst = binary.AppendUvarint(dst, uint64(len(op.Key)))
			dst = append(dst, op.Key...)
			dst = binary.AppendUvarint(dst, uint64(len(op.Value)))
			dst = append(dst, op.Value...)
		case OpDelete:
			dst = append(dst, byte(op.Type))
			dst = binary.AppendUvarint(dst, uint64(len(op.Key)))
			dst = append(dst, op.Key...)
		default:
			return nil, fmt.Errorf("%w: type %d", ErrInvalidOp, op.Type)
		}
	}

	bodyLen := len(dst) - start - frameHeaderSize
	if bodyLen > maxFrameSize {
		return nil, ErrFrameTooLarge
	}

	hdr := dst[start : start+frameHeaderSize]
	binary.LittleEndian.PutUint64(hdr[4:], f.LSN)
	binary.LittleEndian.PutUint32(hdr[12:], uint32(bodyLen))
	binary.LittleEndian.PutUint32(hdr[0:], hash.CRC32C(dst[start+4:]))
	return dst, nil
}

// Decode reads one frame from r and returns it with the number of bytes
// consumed. A clean end of input returns io.EOF.
func Decode(r io.Reader) (*Frame, int64, error) {
	var hdr [frameHeaderSize]byte
	n, err := io.ReadFull(r, hdr[:])
	if err != nil {
		if err == io.EOF {
			return nil, 0, io.EOF
		}
		return nil, int64(n), fmt.Errorf("%w: header", ErrShortRead)
	}

	checksum := binary.LittleEndian.Uint32(hdr[0:])
	lsn := binary.LittleEndian.Uint64(hdr[4:])
	length := binary.LittleEndian.Uint32(hdr[12:])
	if length > maxFrameSize {
		return nil, frameHeaderSize, ErrFrameTooLarge
	}

	body := make([]byte, length)
	if m, err := io.ReadFull(r, body); err != nil {
		return nil, frameHeaderSize + int64(m), fmt.Errorf("%w: body", ErrShortRead)
	}

	crc := hash.UpdateCRC32C(hash.CRC32C(hdr[4:]), body)
	if crc != checksum {
		return nil, frameHeaderSize + int64(length), ErrInvalidCRC
	}

	ops, err := parseOps(body)
	if err != nil {
		return nil, frameHeaderSize + int64(length), err
	}
	return &Frame{LSN: lsn, Ops: ops}, frameHeaderSize + int64(length), nil
}

func parseOps(body []byte) ([]Op, error) {
	var ops []Op
	for len(body) > 0 {
		typ := OpType(body[0])
		body = body[1:]

		key, rest, err := readBytes(body)
		if err != nil {
			return nil, err
		}
		body = rest

		switch typ {
		case OpSet:
			val, rest, err := readBytes(body)
			if err != nil {
				return nil, err
			}
			body = rest
			ops = append(ops, Op{Type: OpSet, Key: key, Value: val})
		case OpDelete:
			ops = append(ops, Op{Type: OpDelete, Key: key})
		default:
			return nil, fmt.Errorf("%w: type %d", ErrInvalidOp, typ)
		}
	}
	return ops, nil
}

func readBytes(b []byte) ([]byte, []byte, error) {
	l, k := binary.Uvarint(b)
	if k <= 0 || l > uint64(len(b)-k) {
		return nil, nil, ErrShortRead
	}
	return b[k : k+int(l)], b[k+int(l):], nil
}

// IsTorn reports whether err from Decode indicates an incomplete or corrupt
// tail that recovery may cut off.
func IsTorn(err error) bool {
	return errors.Is(err, ErrShortRead) || errors.Is(err, ErrInvalidCRC) ||
		errors.Is(err, ErrFrameTooLarge) || errors.Is(err, ErrInvalidOp)
}
