package handler

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rcarmo/go-bmp/internal/codec"
	"github.com/rcarmo/go-bmp/internal/logging"
)

const (
	writeWait   = 10 * time.Second
	frameQueue  = 4
	errorPrefix = "error: "
)

// wsConn is the part of *websocket.Conn the stream loops use.
type wsConn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
}

// frame is one inbound message waiting to be converted.
type frame struct {
	messageType int
	data        []byte
}

// Connect upgrades to a websocket on which every binary message is a BMP
// file. Each one is answered with a PNG binary message, or with a text
// message "error: ..." when it cannot be decoded. A failed frame does not
// close the connection. Streams beyond Security.MaxConnections are refused
// with 503.
func (s *Service) Connect(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	if origin != "" && !isAllowedOrigin(origin, s.cfg.Security.AllowedOrigins) {
		http.Error(w, "Origin not allowed", http.StatusForbidden)
		return
	}

	if limit := int64(s.cfg.Security.MaxConnections); limit > 0 {
		if s.streams.Add(1) > limit {
			s.streams.Add(-1)
			logging.Warn("websocket stream from %s refused: %d streams open", r.RemoteAddr, limit)
			http.Error(w, "too many connections", http.StatusServiceUnavailable)
			return
		}
		defer s.streams.Add(-1)
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn("websocket upgrade from %s: %v", r.RemoteAddr, err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(s.cfg.Codec.MaxUploadBytes)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	logging.Info("websocket stream opened by %s", r.RemoteAddr)
	frames := make(chan frame, frameQueue)
	go wsReader(ctx, conn, frames)
	s.wsWriter(ctx, conn, frames)
	logging.Info("websocket stream closed for %s", r.RemoteAddr)
}

// wsReader forwards inbound messages until the peer goes away. Closing
// frames lets the writer drain what is queued and stop.
func wsReader(ctx context.Context, conn wsConn, frames chan<- frame) {
	defer close(frames)

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logging.Warn("error reading message from ws: %v", err)
			}
			return
		}

		select {
		case frames <- frame{messageType: messageType, data: data}:
		case <-ctx.Done():
			return
		}
	}
}

// wsWriter converts frames in arrival order and sends the results.
func (s *Service) wsWriter(ctx context.Context, conn wsConn, frames <-chan frame) {
	for {
		var f frame
		var ok bool
		select {
		case <-ctx.Done():
			return
		case f, ok = <-frames:
			if !ok {
				return
			}
		}

		messageType, reply := s.convertFrame(f)
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(messageType, reply); err != nil {
			logging.Warn("failed sending message to ws: %v", err)
			return
		}
	}
}

func (s *Service) convertFrame(f frame) (int, []byte) {
	if f.messageType != websocket.BinaryMessage {
		return websocket.TextMessage, []byte(errorPrefix + "expected a binary BMP message")
	}

	bm, err := codec.ReadWithOptions(f.data, s.readOptions())
	if err != nil {
		logging.Debug("ws frame of %d bytes rejected: %v", len(f.data), err)
		return websocket.TextMessage, []byte(errorPrefix + err.Error())
	}
	defer bm.Release()

	var out bytes.Buffer
	if err := png.Encode(&out, bm.Image()); err != nil {
		return websocket.TextMessage, []byte(errorPrefix + fmt.Sprintf("png encode: %v", err))
	}
	return websocket.BinaryMessage, out.Bytes()
}
