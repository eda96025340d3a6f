package transport

import (
	"context"
	"log/slog"
	"net"
	"sync"

	"github.com/casimiro/go-beep/internal/beeperrors"
	"github.com/casimiro/go-beep/internal/bufpool"
	"github.com/casimiro/go-beep/internal/logger"
)

// writeRequest pairs an outbound buffer with the channel its caller
// waits on for the write's outcome, preserving call order across the
// single writer goroutine.
type writeRequest struct {
	data []byte
	done chan error
}

// TCP adapts a net.Conn (or anything satisfying it, e.g. a *tls.Conn)
// to Transport. Outbound writes are funneled through a single
// goroutine so concurrent Write calls from different channels never
// interleave their bytes on the wire, mirroring the double-buffered
// single-writer discipline of a connection's write loop.
type TCP struct {
	conn        net.Conn
	log         *slog.Logger
	readBufSize int

	outbound chan writeRequest
	closeWg  sync.WaitGroup

	closeOnce sync.Once
	closeErr  error
}

// NewTCP wraps conn and starts its write loop. readBufSize sizes each
// ReadSome call's buffer (drawn from the shared pool); a value <= 0
// uses a 4096-byte default.
func NewTCP(conn net.Conn, readBufSize int) *TCP {
	if readBufSize <= 0 {
		readBufSize = 4096
	}
	t := &TCP{
		conn:        conn,
		log:         logger.WithSession(logger.Logger(), "", "", conn.RemoteAddr().String()),
		readBufSize: readBufSize,
		outbound:    make(chan writeRequest, 64),
	}
	t.closeWg.Add(1)
	go t.writeLoop()
	return t
}

func (t *TCP) ReadSome(ctx context.Context) ([]byte, error) {
	type result struct {
		n   int
		buf []byte
		err error
	}
	resultCh := make(chan result, 1)
	go func() {
		buf := bufpool.Get(t.readBufSize)
		n, err := t.conn.Read(buf)
		resultCh <- result{n: n, buf: buf, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-resultCh:
		if r.err != nil {
			bufpool.Put(r.buf)
			return nil, beeperrors.NewTransportError("tcp.read", r.err)
		}
		out := append([]byte(nil), r.buf[:r.n]...)
		bufpool.Put(r.buf)
		return out, nil
	}
}

func (t *TCP) Write(ctx context.Context, b []byte) error {
	req := writeRequest{data: b, done: make(chan error, 1)}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case t.outbound <- req:
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-req.done:
		return err
	}
}

func (t *TCP) writeLoop() {
	defer t.closeWg.Done()
	for req := range t.outbound {
		_, err := t.conn.Write(req.data)
		if err != nil {
			err = beeperrors.NewTransportError("tcp.write", err)
			t.log.Warn("write failed", "error", err)
		}
		req.done <- err
	}
}

func (t *TCP) Close() error {
	t.closeOnce.Do(func() {
		t.closeErr = t.conn.Close()
		close(t.outbound)
		t.closeWg.Wait()
	})
	return t.closeErr
}
