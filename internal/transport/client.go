package transport

import (
	"bufio"
	"fmt"
	"net"
)

// Client is a thin RESP client for the replication RPC surface.
type Client struct {
	conn net.Conn
	r    *bufio.Reader
	w    *bufio.Writer
}

// Dial connects to a replication server at addr.
func Dial(addr string) (*Client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", addr, err)
	}
	return &Client{
		conn: conn,
		r:    bufio.NewReader(conn),
		w:    bufio.NewWriter(conn),
	}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) sendCommand(args ...string) error {
	if err := writeArray(c.w, len(args)); err != nil {
		return err
	}
	for _, a := range args {
		if err := writeBulkString(c.w, a); err != nil {
			return err
		}
	}
	return c.w.Flush()
}

// Replicaof issues REPLICAOF host port and returns the server's reply.
func (c *Client) Replicaof(host, port string) (string, error) {
	if err := c.sendCommand("REPLICAOF", host, port); err != nil {
		return "", err
	}
	return readLine(c.r)
}

// Replicainfo issues REPLICAINFO and returns (mode, sdb hash hex, last eid).
// The first two fields are RESP bulk strings; last_eid is a RESP integer,
// matching SPEC_FULL.md §6's "last_eid as integer" and server.go's
// writeInteger reply for that field.
func (c *Client) Replicainfo() (mode, sdbHash, lastEID string, err error) {
	if err = c.sendCommand("REPLICAINFO"); err != nil {
		return "", "", "", err
	}
	header, err := readLine(c.r)
	if err != nil {
		return "", "", "", err
	}
	if len(header) == 0 || header[0] != '*' {
		return "", "", "", fmt.Errorf("transport: unexpected replicainfo reply %q", header)
	}

	mode, err = c.readBulkString()
	if err != nil {
		return "", "", "", err
	}
	sdbHash, err = c.readBulkString()
	if err != nil {
		return "", "", "", err
	}

	eidLine, err := readLine(c.r)
	if err != nil {
		return "", "", "", err
	}
	if len(eidLine) == 0 || eidLine[0] != ':' {
		return "", "", "", fmt.Errorf("transport: expected integer reply for last_eid, got %q", eidLine)
	}
	return mode, sdbHash, eidLine[1:], nil
}

func (c *Client) readBulkString() (string, error) {
	lenLine, err := readLine(c.r)
	if err != nil {
		return "", err
	}
	if len(lenLine) == 0 || lenLine[0] != '$' {
		return "", fmt.Errorf("transport: expected bulk header, got %q", lenLine)
	}
	n := 0
	fmt.Sscanf(lenLine, "$%d", &n)
	buf := make([]byte, n+2)
	if _, err := readFull(c.r, buf); err != nil {
		return "", err
	}
	return string(buf[:n]), nil
}

// Replicasync issues REPLICASYNC and, on success, returns a FrameReader
// the caller can drain for the streamed replication frames. The
// underlying connection is thereafter owned by the returned reader.
func (c *Client) Replicasync() (*FrameReader, error) {
	if err := c.sendCommand("REPLICASYNC"); err != nil {
		return nil, err
	}
	ack, err := readLine(c.r)
	if err != nil {
		return nil, err
	}
	if len(ack) == 0 || ack[0] != ':' {
		return nil, fmt.Errorf("transport: replicasync failed: %s", ack)
	}
	return &FrameReader{r: c.r}, nil
}

// FrameReader drains replication frames from an established REPLICASYNC
// stream.
type FrameReader struct {
	r *bufio.Reader
}

// Next blocks for the next replication frame.
func (f *FrameReader) Next() (eid uint64, cmdID int8, payload []byte, err error) {
	return DecodeFrame(f.r)
}
