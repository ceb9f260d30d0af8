package middleware

import (
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzip"
)

// GzipConfig configures response compression.
type GzipConfig struct {
	Level int
	// ExcludedPaths are route templates never compressed, such as
	// websocket upgrade endpoints.
	ExcludedPaths []string
}

// DefaultGzipConfig returns the configuration used by the signal API.
func DefaultGzipConfig() GzipConfig {
	return GzipConfig{Level: gzip.DefaultCompression}
}

type gzipWriter struct {
	gin.ResponseWriter
	writer *gzip.Writer
	wrote  bool
	// passthrough is set when the handler encoded the body itself.
	passthrough bool
}

func (g *gzipWriter) Write(data []byte) (int, error) {
	if !g.wrote {
		g.wrote = true
		if g.Header().Get("Content-Encoding") != "" {
			g.passthrough = true
		} else {
			g.Header().Set("Content-Encoding", "gzip")
			g.Header().Add("Vary", "Accept-Encoding")
		}
	}
	if g.passthrough {
		return g.ResponseWriter.Write(data)
	}
	g.Header().Del("Content-Length")
	return g.writer.Write(data)
}

func (g *gzipWriter) WriteString(s string) (int, error) {
	return g.Write([]byte(s))
}

func (g *gzipWriter) WriteHeader(code int) {
	if g.Header().Get("Content-Encoding") == "" {
		g.Header().Del("Content-Length")
	}
	g.ResponseWriter.WriteHeader(code)
}

// Gzip compresses responses for clients that accept it. Responses whose
// handler already set Content-Encoding pass through untouched.
func Gzip(cfg GzipConfig) gin.HandlerFunc {
	excluded := make(map[string]bool, len(cfg.ExcludedPaths))
	for _, p := range cfg.ExcludedPaths {
		excluded[p] = true
	}
	pool := sync.Pool{
		New: func() any {
			w, err := gzip.NewWriterLevel(nil, cfg.Level)
			if err != nil {
				w = gzip.NewWriter(nil)
			}
			return w
		},
	}

	return func(c *gin.Context) {
		if excluded[c.FullPath()] ||
			!strings.Contains(c.GetHeader("Accept-Encoding"), "gzip") ||
			strings.EqualFold(c.GetHeader("Connection"), "upgrade") {
			c.Next()
			return
		}

		gz := pool.Get().(*gzip.Writer)
		gz.Reset(c.Writer)
		defer pool.Put(gz)

		gw := &gzipWriter{ResponseWriter: c.Writer, writer: gz}
		c.Writer = gw

		c.Next()

		// Headers are decided on the first write, so an empty body is never
		// advertised as gzip and a pre-encoded one is left alone.
		if !gw.wrote || gw.passthrough {
			return
		}
		_ = gz.Close()
	}
}
