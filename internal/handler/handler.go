// Package handler exposes the BMP codec over HTTP and websocket.
package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"github.com/rcarmo/go-bmp/internal/codec"
	"github.com/rcarmo/go-bmp/internal/config"
	"github.com/rcarmo/go-bmp/internal/logging"
)

// Output formats accepted by the format query parameter.
const (
	FormatPNG = "png"
	FormatBMP = "bmp"
	FormatRaw = "raw"
)

// Service serves decode, encode and info requests under the limits of a
// configuration.
type Service struct {
	cfg      *config.Config
	upgrader websocket.Upgrader
	streams  atomic.Int64 // open websocket streams
}

// New returns a Service for cfg. A nil cfg uses config.Default.
func New(cfg *config.Config) *Service {
	if cfg == nil {
		cfg = config.Default()
	}
	s := &Service{cfg: cfg}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || isAllowedOrigin(origin, s.cfg.Security.AllowedOrigins)
		},
	}
	return s
}

// Register mounts every endpoint on mux.
func (s *Service) Register(mux *http.ServeMux) {
	mux.HandleFunc("/decode", s.Decode)
	mux.HandleFunc("/encode", s.Encode)
	mux.HandleFunc("/info", s.Info)
	mux.HandleFunc("/ws", s.Connect)
	mux.HandleFunc("/healthz", Health)
}

func (s *Service) readOptions() codec.ReadOptions {
	return codec.ReadOptions{
		MaxPixelBytes: s.cfg.Codec.MaxPixelBytes,
		MaxDimension:  s.cfg.Codec.MaxDimension,
	}
}

// Health answers liveness probes.
func Health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "ok")
}

// Decode converts an uploaded BMP into PNG, a re-encoded BMP, or the raw
// canonical pixel buffer.
func (s *Service) Decode(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = s.cfg.Codec.DefaultOutput
	}
	if format != FormatPNG && format != FormatBMP && format != FormatRaw {
		http.Error(w, fmt.Sprintf("unknown format %q", format), http.StatusBadRequest)
		return
	}

	data, ok := s.readBody(w, r)
	if !ok {
		return
	}

	bm, err := codec.ReadWithOptions(data, s.readOptions())
	if err != nil {
		s.decodeFailed(w, r, err)
		return
	}
	defer bm.Release()

	var out bytes.Buffer
	switch format {
	case FormatPNG:
		if err := png.Encode(&out, bm.Image()); err != nil {
			logging.Error("png encode: %v", err)
			http.Error(w, "encode failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/png")
	case FormatBMP:
		if err := codec.Write(&out, bm.Pix, bm.Width, bm.Height, bm.Channels); err != nil {
			logging.Error("bmp encode: %v", err)
			http.Error(w, "encode failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/bmp")
	case FormatRaw:
		out.Write(bm.Pix)
		w.Header().Set("Content-Type", "application/octet-stream")
	}

	setImageHeaders(w, bm)
	w.Header().Set("Content-Length", strconv.Itoa(out.Len()))
	_, _ = out.WriteTo(w)
}

// Encode turns a canonical pixel buffer into a BMP file. Dimensions and
// channel count come from the query string.
func (s *Service) Encode(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}

	q := r.URL.Query()
	width, err := strconv.Atoi(q.Get("width"))
	if err != nil {
		http.Error(w, fmt.Errorf("get width: %w", err).Error(), http.StatusBadRequest)
		return
	}
	height, err := strconv.Atoi(q.Get("height"))
	if err != nil {
		http.Error(w, fmt.Errorf("get height: %w", err).Error(), http.StatusBadRequest)
		return
	}
	channels, err := strconv.Atoi(q.Get("channels"))
	if err != nil {
		http.Error(w, fmt.Errorf("get channels: %w", err).Error(), http.StatusBadRequest)
		return
	}
	if limit := s.cfg.Codec.MaxDimension; width > limit || height > limit {
		http.Error(w, fmt.Sprintf("dimensions %dx%d exceed limit %d", width, height, limit), http.StatusBadRequest)
		return
	}

	data, ok := s.readBody(w, r)
	if !ok {
		return
	}

	out, err := codec.Encode(data, width, height, channels)
	if err != nil {
		logging.Warn("encode %dx%dx%d from %s: %v", width, height, channels, r.RemoteAddr, err)
		w.Header().Set("X-Error-Kind", codec.KindOf(err).String())
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "image/bmp")
	w.Header().Set("Content-Length", strconv.Itoa(len(out)))
	_, _ = w.Write(out)
}

// ImageInfo is the header summary returned by Info.
type ImageInfo struct {
	Width         int    `json:"width"`
	Height        int    `json:"height"`
	BitsPerPixel  int    `json:"bpp"`
	Compression   string `json:"compression"`
	TopDown       bool   `json:"topDown"`
	PaletteColors int    `json:"paletteColors"`
	Channels      int    `json:"channels"`
	HeaderSize    uint32 `json:"headerSize"`
	PixelOffset   uint32 `json:"pixelOffset"`
}

// Describe parses and validates the headers of data without decoding pixels.
func Describe(data []byte) (*ImageInfo, error) {
	h, err := codec.ParseHeader(data)
	if err != nil {
		return nil, err
	}
	f, err := codec.ResolveFormat(h)
	if err != nil {
		return nil, err
	}

	colors := 0
	if f.HasPalette {
		colors = int(h.Info.ColorsUsed)
		if f.BitsPerPixel <= 8 && (colors == 0 || colors > 1<<f.BitsPerPixel) {
			colors = 1 << f.BitsPerPixel
		}
	}

	return &ImageInfo{
		Width:         h.Width(),
		Height:        h.Height(),
		BitsPerPixel:  f.BitsPerPixel,
		Compression:   f.Compression.String(),
		TopDown:       h.TopDown(),
		PaletteColors: colors,
		Channels:      f.DstChannels,
		HeaderSize:    h.Info.Size,
		PixelOffset:   h.File.PixelOffset,
	}, nil
}

// Info reports header metadata of an uploaded BMP as JSON.
func (s *Service) Info(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}

	data, ok := s.readBody(w, r)
	if !ok {
		return
	}

	info, err := Describe(data)
	if err != nil {
		s.decodeFailed(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(info); err != nil {
		logging.Error("write info: %v", err)
	}
}

// readBody reads the request body under the upload limit. It writes the
// error response itself and reports whether the caller should continue.
func (s *Service) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body := http.MaxBytesReader(w, r.Body, s.cfg.Codec.MaxUploadBytes)
	data, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, fmt.Sprintf("body exceeds %d bytes", tooLarge.Limit), http.StatusRequestEntityTooLarge)
			return nil, false
		}
		logging.Warn("read body from %s: %v", r.RemoteAddr, err)
		http.Error(w, "read body failed", http.StatusBadRequest)
		return nil, false
	}
	return data, true
}

func (s *Service) decodeFailed(w http.ResponseWriter, r *http.Request, err error) {
	kind := codec.KindOf(err)
	logging.Warn("decode from %s failed (%s): %v", r.RemoteAddr, kind, err)
	w.Header().Set("X-Error-Kind", kind.String())
	http.Error(w, err.Error(), http.StatusUnprocessableEntity)
}

func requirePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method == http.MethodPost {
		return true
	}
	w.Header().Set("Allow", http.MethodPost)
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	return false
}

func setImageHeaders(w http.ResponseWriter, bm *codec.Bitmap) {
	w.Header().Set("X-Image-Width", strconv.Itoa(bm.Width))
	w.Header().Set("X-Image-Height", strconv.Itoa(bm.Height))
	w.Header().Set("X-Image-Channels", strconv.Itoa(bm.Channels))
}

// isAllowedOrigin matches the host of origin exactly against the allowed
// list. Entries may carry a scheme ("https://app.example") or not
// ("app.example:8443"). An empty list allows any origin, and loopback hosts
// are always allowed.
func isAllowedOrigin(origin string, allowed []string) bool {
	u, err := url.Parse(strings.TrimSpace(origin))
	if err != nil || u.Host == "" {
		return false
	}

	if len(allowed) == 0 {
		return true
	}

	switch u.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}

	for _, entry := range allowed {
		candidate := strings.TrimSuffix(strings.TrimSpace(entry), "/")
		if candidate == "" {
			continue
		}
		if !strings.Contains(candidate, "://") {
			if strings.EqualFold(candidate, u.Host) {
				return true
			}
			continue
		}
		c, err := url.Parse(candidate)
		if err != nil {
			continue
		}
		if strings.EqualFold(c.Scheme, u.Scheme) && strings.EqualFold(c.Host, u.Host) {
			return true
		}
	}

	return false
}
