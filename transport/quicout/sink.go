// Package quicout implements the compositor's output transport: one
// unidirectional QUIC stream per connected viewer, each composed frame
// written as a length-prefixed object.
//
// This is deliberately simpler than the teacher's full MoQ Transport
// framing (distribution/moq_writer.go): this repository serves a single
// fixed track per connection, not a multi-track catalog, so there is no
// need for MoQ's subscribe/announce control plane — just quic-go for the
// transport and quicvarint for the length prefix, both already in the
// teacher's dependency graph.
package quicout

import (
	"context"
	"crypto/tls"
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"

	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/quicvarint"

	"github.com/keycodingyfq/soft-compositor/compositor"
)

// objectHeaderLen is the fixed portion of an object following its varint
// length prefix: width(4) + height(4) + pts(8).
const objectHeaderLen = 4 + 4 + 8

// Sink is a compositor.FrameDestination backed by a set of connected QUIC
// clients, each receiving every frame handed to OnFrame on its own
// unidirectional stream. Writes are best-effort and a viewer whose write
// fails is dropped. Writes run synchronously on the calling goroutine, one
// viewer after another, so a write that waits on a slow viewer's stream
// delays the other viewers and the generator.
type Sink struct {
	log *slog.Logger

	mu      sync.Mutex
	streams map[*quic.Conn]quic.SendStream
}

// NewSink creates an empty output sink. If log is nil, slog.Default() is
// used.
func NewSink(log *slog.Logger) *Sink {
	if log == nil {
		log = slog.Default()
	}
	return &Sink{
		log:     log.With("component", "quicout"),
		streams: make(map[*quic.Conn]quic.SendStream),
	}
}

// Serve accepts connections on addr until ctx is cancelled, opening one
// outbound unidirectional stream per accepted connection and registering
// it for delivery.
func (s *Sink) Serve(ctx context.Context, addr string, tlsConf *tls.Config) error {
	ln, err := quic.ListenAddr(addr, tlsConf, nil)
	if err != nil {
		return fmt.Errorf("quicout: listen on %s: %w", addr, err)
	}
	s.log.Info("listening", "addr", addr)

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.log.Warn("accept error", "error", err)
			continue
		}
		go s.register(ctx, conn)
	}
}

func (s *Sink) register(ctx context.Context, conn *quic.Conn) {
	stream, err := conn.OpenUniStreamSync(ctx)
	if err != nil {
		s.log.Warn("open stream failed", "remote", conn.RemoteAddr(), "error", err)
		conn.CloseWithError(0, "stream open failed")
		return
	}

	s.mu.Lock()
	s.streams[conn] = stream
	s.mu.Unlock()
	s.log.Info("viewer connected", "remote", conn.RemoteAddr())

	<-conn.Context().Done()

	s.mu.Lock()
	delete(s.streams, conn)
	s.mu.Unlock()
	s.log.Info("viewer disconnected", "remote", conn.RemoteAddr())
}

// OnFrame implements compositor.FrameDestination. It does not Retain
// frame.Buffer: every byte it needs is copied into the wire payload
// before OnFrame returns.
func (s *Sink) OnFrame(frame compositor.ComposedFrame) {
	payload := encodeObject(frame)

	s.mu.Lock()
	defer s.mu.Unlock()
	for conn, stream := range s.streams {
		if _, err := stream.Write(payload); err != nil {
			s.log.Debug("write failed, dropping viewer", "remote", conn.RemoteAddr(), "error", err)
			delete(s.streams, conn)
		}
	}
}

// ViewerCount reports the number of currently registered viewers.
func (s *Sink) ViewerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.streams)
}

// encodeObject serializes one composed frame as
// varint(length) || width(4) || height(4) || pts(8) || payload, where
// payload is the I420 planes concatenated Y, U, V.
func encodeObject(frame compositor.ComposedFrame) []byte {
	y, u, v := frame.Buffer.Y(), frame.Buffer.U(), frame.Buffer.V()
	bodyLen := objectHeaderLen + len(y) + len(u) + len(v)

	out := make([]byte, quicvarint.Len(uint64(bodyLen))+bodyLen)
	n := quicvarint.Append(out[:0], uint64(bodyLen))
	body := out[len(n):]

	binary.BigEndian.PutUint32(body[0:4], frame.Width)
	binary.BigEndian.PutUint32(body[4:8], frame.Height)
	binary.BigEndian.PutUint64(body[8:16], uint64(frame.TimeStamp))
	copy(body[objectHeaderLen:], y)
	copy(body[objectHeaderLen+len(y):], u)
	copy(body[objectHeaderLen+len(y)+len(u):], v)

	return out
}
