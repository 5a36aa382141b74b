package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/rcarmo/go-bmp/internal/config"
	"github.com/rcarmo/go-bmp/internal/handler"
	"github.com/rcarmo/go-bmp/internal/logging"
	"github.com/rcarmo/go-bmp/web"
)

const (
	appName    = "BMP Codec Service"
	appVersion = "v1.0.0"
)

type parsedArgs struct {
	host           string
	port           string
	logLevel       string
	configFile     string
	maxUploadBytes int64
	defaultOutput  string
}

func main() {
	args, action := parseFlags()
	switch action {
	case "help":
		showHelp()
		return
	case "version":
		showVersion()
		return
	}

	if err := run(args); err != nil {
		logging.Error("%v", err)
		os.Exit(1)
	}
}

func parseFlags() (parsedArgs, string) {
	return parseFlagsWithArgs(os.Args[1:])
}

func parseFlagsWithArgs(arguments []string) (parsedArgs, string) {
	fs := flag.NewFlagSet("bmp-server", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	hostFlag := fs.String("host", "", "server listen host")
	portFlag := fs.String("port", "", "server listen port")
	logLevelFlag := fs.String("log-level", "", "log level (debug, info, warn, error)")
	configFlag := fs.String("config", "", "YAML configuration file")
	maxUpload := fs.Int64("max-upload", 0, "maximum request body size in bytes")
	outputFlag := fs.String("output", "", "default decode output (png, bmp)")
	helpFlag := fs.Bool("help", false, "show help")
	versionFlag := fs.Bool("version", false, "show version")

	if err := fs.Parse(arguments); err != nil {
		return parsedArgs{}, "help"
	}

	if *helpFlag {
		return parsedArgs{}, "help"
	}
	if *versionFlag {
		return parsedArgs{}, "version"
	}

	return parsedArgs{
		host:           strings.TrimSpace(*hostFlag),
		port:           strings.TrimSpace(*portFlag),
		logLevel:       strings.TrimSpace(*logLevelFlag),
		configFile:     strings.TrimSpace(*configFlag),
		maxUploadBytes: *maxUpload,
		defaultOutput:  strings.TrimSpace(*outputFlag),
	}, ""
}

func run(args parsedArgs) error {
	cfg, err := config.LoadWithOverrides(config.LoadOptions{
		Host:           args.host,
		Port:           args.port,
		LogLevel:       args.logLevel,
		ConfigFile:     args.configFile,
		MaxUploadBytes: args.maxUploadBytes,
		DefaultOutput:  args.defaultOutput,
	})
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := setupLogging(cfg.Logging); err != nil {
		return err
	}

	server, err := createServer(cfg)
	if err != nil {
		return err
	}
	logging.Info("starting server on %s (TLS=%t, max upload %d bytes)", server.Addr, cfg.Security.EnableTLS, cfg.Codec.MaxUploadBytes)

	return startServer(server, cfg)
}

func createServer(cfg *config.Config) (*http.Server, error) {
	addr := net.JoinHostPort(cfg.Server.Host, cfg.Server.Port)

	dist, err := web.DistFS()
	if err != nil {
		return nil, fmt.Errorf("load static assets: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/", http.FileServer(http.FS(dist)))
	handler.New(cfg).Register(mux)

	h := applySecurityMiddleware(mux, cfg)
	h = requestLoggingMiddleware(h)

	return &http.Server{
		Addr:         addr,
		Handler:      h,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}, nil
}

func applySecurityMiddleware(next http.Handler, cfg *config.Config) http.Handler {
	if cfg == nil {
		return securityHeadersMiddleware(corsMiddleware(next, nil))
	}

	h := next
	if cfg.Security.EnableRateLimit {
		h = rateLimitMiddleware(h, cfg.Security.RateLimitPerMinute)
	}
	h = corsMiddleware(h, cfg.Security.AllowedOrigins)
	h = securityHeadersMiddleware(h)

	return h
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-XSS-Protection", "1; mode=block")
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Content-Security-Policy", "default-src 'self'; img-src 'self' blob:; style-src 'self' 'unsafe-inline'; connect-src 'self' ws: wss:")

		next.ServeHTTP(w, r)
	})
}

func corsMiddleware(next http.Handler, allowedOrigins []string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if isOriginAllowed(origin, allowedOrigins, r.Host) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Expose-Headers", "X-Image-Width, X-Image-Height, X-Image-Channels, X-Error-Kind")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// isOriginAllowed reports whether origin is listed, or, with no list, whether
// its host is exactly the request host.
func isOriginAllowed(origin string, allowedOrigins []string, host string) bool {
	if origin == "" {
		return false
	}

	for _, allowed := range allowedOrigins {
		if strings.TrimSpace(allowed) == origin {
			return true
		}
	}

	if len(allowedOrigins) == 0 {
		u, err := url.Parse(origin)
		return err == nil && u.Host != "" && strings.EqualFold(u.Host, host)
	}

	return false
}

// rateLimiter keeps one token bucket per client address. A client refills
// perMinute tokens over a minute and may burst up to perMinute.
type rateLimiter struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	idle      time.Duration
	now       func() time.Time
	lastSweep time.Time
	clients   map[string]*rateClient
}

type rateClient struct {
	limiter *rate.Limiter
	seen    time.Time
}

func newRateLimiter(perMinute int) *rateLimiter {
	return &rateLimiter{
		limit:   rate.Every(time.Minute / time.Duration(perMinute)),
		burst:   perMinute,
		idle:    time.Minute,
		now:     time.Now,
		clients: make(map[string]*rateClient),
	}
}

func (l *rateLimiter) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now)

	c, ok := l.clients[key]
	if !ok {
		c = &rateClient{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[key] = c
	}
	c.seen = now
	return c.limiter.AllowN(now, 1)
}

// sweep drops clients idle for a full refill period; their buckets are full.
func (l *rateLimiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < l.idle {
		return
	}
	l.lastSweep = now
	for key, c := range l.clients {
		if now.Sub(c.seen) >= l.idle {
			delete(l.clients, key)
		}
	}
}

func rateLimitMiddleware(next http.Handler, perMinute int) http.Handler {
	if perMinute <= 0 {
		return next
	}
	limiter := newRateLimiter(perMinute)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		if !limiter.allow(host) {
			w.Header().Set("Retry-After", "60")
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func setupLogging(cfg config.LoggingConfig) error {
	logging.SetLevelFromString(cfg.Level)
	logging.SetFormatFromString(cfg.Format)

	if cfg.File == "" {
		logging.SetOutput(os.Stderr)
		return nil
	}

	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	logging.SetOutput(f)
	return nil
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack lets the websocket upgrade pass through the recorder.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func requestLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logging.Info("%s %s %s %d %s", r.RemoteAddr, r.Method, r.URL.Path, rec.status, time.Since(start))
	})
}

func startServer(server *http.Server, cfg *config.Config) error {
	if server == nil {
		return fmt.Errorf("server is nil")
	}

	var err error
	if cfg != nil && cfg.Security.EnableTLS {
		err = server.ListenAndServeTLS(cfg.Security.TLSCertFile, cfg.Security.TLSKeyFile)
	} else {
		err = server.ListenAndServe()
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}

	return err
}

func showHelp() {
	fmt.Println(appName)
	fmt.Println("USAGE: bmp-server [options]")
	fmt.Println("OPTIONS:")
	fmt.Println("  -host               Set server listen host (default 0.0.0.0)")
	fmt.Println("  -port               Set server listen port (default 8080)")
	fmt.Println("  -log-level          Set log level (debug, info, warn, error)")
	fmt.Println("  -config             Load settings from a YAML file")
	fmt.Println("  -max-upload         Maximum request body size in bytes")
	fmt.Println("  -output             Default decode output (png, bmp)")
	fmt.Println("  -version            Show version information")
	fmt.Println("  -help               Show this help message")
	fmt.Println("ENDPOINTS: POST /decode, POST /encode, POST /info, GET /ws, GET /healthz")
	fmt.Println("ENVIRONMENT VARIABLES: CONFIG_FILE, SERVER_HOST, SERVER_PORT, LOG_LEVEL, LOG_FORMAT, CODEC_MAX_UPLOAD_BYTES, CODEC_MAX_PIXEL_BYTES, CODEC_MAX_DIMENSION, CODEC_DEFAULT_OUTPUT, ALLOWED_ORIGINS")
	fmt.Println("EXAMPLES: bmp-server -host 0.0.0.0 -port 8080 -config bmp.yaml")
}

func showVersion() {
	fmt.Printf("%s %s\n", appName, appVersion)
	fmt.Println("Formats: BMP 1/4/8/24/32 bpp, RLE8, RLE4, BITFIELDS")
}
