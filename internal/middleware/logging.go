package middleware

import (
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// responseWriter records the status and size of a response.
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
	wroteHeader  bool
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
	}
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += int64(n)
	return n, err
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// LoggingConfig holds configuration for the logging middleware
type LoggingConfig struct {
	SkipPaths []string
	// MediaPrefix is the URL prefix stored images are served under.
	// Requests below it count as static files.
	MediaPrefix     string
	LogStaticFiles  bool
	LogHealthChecks bool
	// ResponseHeaders are logged as sc(Header) fields, in order.
	ResponseHeaders []string
}

// Response headers the thumbnail handler sets to say which artifact it
// served and where it came from.
const (
	ThumbnailHeader       = "X-Thumbnail"
	ThumbnailSourceHeader = "X-Thumbnail-Source"
)

// DefaultLoggingConfig returns a sensible default configuration
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		SkipPaths:       []string{},
		MediaPrefix:     "/media/",
		LogStaticFiles:  false,
		LogHealthChecks: true,
		ResponseHeaders: []string{"Content-Type", ThumbnailHeader, ThumbnailSourceHeader},
	}
}

const software = "ThumbnailField/1.0"

var healthCheckPaths = map[string]bool{
	"/health":  true,
	"/healthz": true,
	"/livez":   true,
}

// exchange is one finished request as seen by the access log.
type exchange struct {
	req  *http.Request
	rw   *responseWriter
	at   time.Time
	took time.Duration
}

// w3cField is one column of the access log.
type w3cField struct {
	name  string
	value func(x *exchange) string
}

// accessLog writes requests in W3C Extended Log Format. The directive
// header naming the columns is written before the first logged request.
type accessLog struct {
	fields []w3cField
	header sync.Once
}

func newAccessLog(config LoggingConfig) *accessLog {
	fields := []w3cField{
		{"date", func(x *exchange) string { return x.at.Format("2006-01-02") }},
		{"time", func(x *exchange) string { return x.at.Format("15:04:05") }},
		{"c-ip", func(x *exchange) string { return getClientIP(x.req) }},
		{"cs-method", func(x *exchange) string { return x.req.Method }},
		{"cs-uri-stem", func(x *exchange) string { return x.req.URL.Path }},
		{"cs-uri-query", func(x *exchange) string { return x.req.URL.RawQuery }},
		{"sc-status", func(x *exchange) string { return strconv.Itoa(x.rw.statusCode) }},
		{"sc-bytes", func(x *exchange) string { return strconv.FormatInt(x.rw.bytesWritten, 10) }},
		{"time-taken", func(x *exchange) string { return strconv.FormatInt(x.took.Milliseconds(), 10) }},
	}
	for _, h := range config.ResponseHeaders {
		h := h
		fields = append(fields, w3cField{"sc(" + h + ")", func(x *exchange) string { return x.rw.Header().Get(h) }})
	}
	fields = append(fields, w3cField{"cs(User-Agent)", func(x *exchange) string { return x.req.Header.Get("User-Agent") }})

	return &accessLog{fields: fields}
}

// directives returns the header lines of the log.
func (l *accessLog) directives() []string {
	names := make([]string, len(l.fields))
	for i, f := range l.fields {
		names[i] = f.name
	}
	return []string{
		"#Version: 1.0",
		"#Software: " + software,
		"#Fields: " + strings.Join(names, " "),
	}
}

// line formats x with one value per field. Empty values become "-".
func (l *accessLog) line(x *exchange) string {
	var b strings.Builder
	for i, f := range l.fields {
		if i > 0 {
			b.WriteByte(' ')
		}
		v := sanitizeLogField(f.value(x))
		if v == "" {
			v = "-"
		}
		b.WriteString(escapeW3CField(v))
	}
	return b.String()
}

func (l *accessLog) write(x *exchange) {
	l.header.Do(func() {
		for _, d := range l.directives() {
			log.Println(d)
		}
	})
	//nolint:gosec // G706: every field passes through sanitizeLogField before it is written
	log.Println(l.line(x))
}

// sanitizeLogField removes control characters that could be used for log injection.
// This includes newlines, carriage returns, tabs, null bytes, and ANSI escape sequences.
func sanitizeLogField(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\n' || r == '\r':
			// Replace newlines/carriage returns with spaces to prevent log line forging
			b.WriteRune(' ')
		case r == '\x00':
			continue
		case r == '\x1b':
			// Strip ANSI escape character to prevent terminal escape injection
			continue
		case r < 0x20 && r != '\t':
			continue
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Logger returns HTTP logging middleware using W3C Extended Log Format
func Logger(config LoggingConfig) func(http.Handler) http.Handler {
	access := newAccessLog(config)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if shouldSkip(r.URL.Path, config) {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			wrapped := newResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			access.write(&exchange{req: r, rw: wrapped, at: time.Now().UTC(), took: time.Since(start)})
		})
	}
}

func shouldSkip(path string, config LoggingConfig) bool {
	for _, skipPath := range config.SkipPaths {
		if strings.HasPrefix(path, skipPath) {
			return true
		}
	}

	if !config.LogHealthChecks && healthCheckPaths[path] {
		return true
	}

	if !config.LogStaticFiles && config.MediaPrefix != "" && strings.HasPrefix(path, config.MediaPrefix) {
		return true
	}

	return false
}

func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}
	return ip
}

// escapeW3CField quotes values that contain whitespace or quotes.
// Embedded quotes are doubled.
func escapeW3CField(s string) string {
	if strings.ContainsAny(s, " \t\"") {
		s = strings.ReplaceAll(s, "\"", "\"\"")
		return "\"" + s + "\""
	}
	return s
}
