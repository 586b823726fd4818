package transport

import (
	"bufio"
	"net"
)

const defaultBufferSize = 32 * 1024

// bufferedConn pairs a connection with the reader the request was parsed
// from and the writer the response goes out through.
type bufferedConn struct {
	net.Conn
	reader *bufio.Reader
	writer *bufio.Writer
}

func newBufferedConn(conn net.Conn) *bufferedConn {
	return &bufferedConn{
		Conn:   conn,
		reader: bufio.NewReaderSize(conn, defaultBufferSize),
		writer: bufio.NewWriterSize(conn, defaultBufferSize),
	}
}

func (c *bufferedConn) flush() error {
	return c.writer.Flush()
}
