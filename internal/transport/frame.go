package transport

import (
	"encoding/binary"
	"fmt"
	"io"
)

// FrameHeaderSize is the fixed-size prefix of a replication frame:
// 8-byte EID, 1-byte cmd_id, 4-byte size.
const FrameHeaderSize = 8 + 1 + 4

// EncodeFrame writes one replication frame in the spec's wire format:
// (eid u64 LE, cmd_id i8, size u32 LE, payload).
func EncodeFrame(w io.Writer, eid uint64, cmdID int8, payload []byte) (int, error) {
	var header [FrameHeaderSize]byte
	binary.LittleEndian.PutUint64(header[0:8], eid)
	header[8] = byte(cmdID)
	binary.LittleEndian.PutUint32(header[9:13], uint32(len(payload)))

	n, err := w.Write(header[:])
	if err != nil {
		return n, err
	}
	m, err := w.Write(payload)
	return n + m, err
}

// DecodeFrame reads one replication frame from r.
func DecodeFrame(r io.Reader) (eid uint64, cmdID int8, payload []byte, err error) {
	var header [FrameHeaderSize]byte
	if _, err = io.ReadFull(r, header[:]); err != nil {
		return 0, 0, nil, err
	}
	eid = binary.LittleEndian.Uint64(header[0:8])
	cmdID = int8(header[8])
	size := binary.LittleEndian.Uint32(header[9:13])
	if size > 64*1024*1024 {
		return 0, 0, nil, fmt.Errorf("transport: frame payload too large: %d bytes", size)
	}

	payload = make([]byte, size)
	if _, err = io.ReadFull(r, payload); err != nil {
		return 0, 0, nil, err
	}
	return eid, cmdID, payload, nil
}
