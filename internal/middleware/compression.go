package middleware

import (
	"bytes"
	"compress/gzip"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"
)

// CompressionConfig holds configuration for response compression
type CompressionConfig struct {
	MinSize          int      // Minimum response size to compress (bytes)
	CompressionLevel int      // Gzip compression level (1-9, 9 is best compression)
	ContentTypes     []string // Content types to compress
}

// DefaultCompressionConfig returns the default compression configuration
func DefaultCompressionConfig() CompressionConfig {
	return CompressionConfig{
		MinSize:          1024,
		CompressionLevel: gzip.DefaultCompression,
		ContentTypes: []string{
			"application/json",
			"text/plain",
			"text/html",
		},
	}
}

// Compressor gzips buffered responses for clients that accept it
type Compressor struct {
	config CompressionConfig
	pool   sync.Pool

	totalResponses      atomic.Int64
	compressedResponses atomic.Int64
	originalBytes       atomic.Int64
	compressedBytes     atomic.Int64
}

// NewCompressor creates a compressor. An invalid level falls back to the default.
func NewCompressor(config CompressionConfig) *Compressor {
	if config.CompressionLevel < gzip.HuffmanOnly || config.CompressionLevel > gzip.BestCompression {
		config.CompressionLevel = gzip.DefaultCompression
	}

	cm := &Compressor{config: config}
	cm.pool.New = func() interface{} {
		gz, _ := gzip.NewWriterLevel(io.Discard, config.CompressionLevel)
		return gz
	}
	return cm
}

// Handler returns the gin middleware. Responses are held in memory until the
// handler chain finishes so small bodies can be sent uncompressed.
func (cm *Compressor) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !acceptsGzip(c.Request) || c.Request.Method == http.MethodHead {
			c.Next()
			return
		}

		original := c.Writer
		bw := &bufferedWriter{ResponseWriter: original}
		c.Writer = bw
		defer func() { c.Writer = original }()

		c.Next()

		if bw.buf.Len() == 0 {
			return
		}
		cm.totalResponses.Add(1)
		cm.originalBytes.Add(int64(bw.buf.Len()))

		if bw.buf.Len() < cm.config.MinSize || !cm.shouldCompress(original.Header().Get("Content-Type")) {
			cm.compressedBytes.Add(int64(bw.buf.Len()))
			if _, err := original.Write(bw.buf.Bytes()); err != nil {
				slog.Debug("Failed to write response", "error", err)
			}
			return
		}

		var compressed bytes.Buffer
		gz := cm.pool.Get().(*gzip.Writer)
		gz.Reset(&compressed)
		_, err := gz.Write(bw.buf.Bytes())
		if err == nil {
			err = gz.Close()
		}
		cm.pool.Put(gz)
		if err != nil {
			slog.Error("Failed to compress response", "error", err)
			cm.compressedBytes.Add(int64(bw.buf.Len()))
			original.Write(bw.buf.Bytes())
			return
		}

		h := original.Header()
		h.Set("Content-Encoding", "gzip")
		h.Add("Vary", "Accept-Encoding")
		h.Del("Content-Length")

		cm.compressedResponses.Add(1)
		cm.compressedBytes.Add(int64(compressed.Len()))
		if _, err := original.Write(compressed.Bytes()); err != nil {
			slog.Debug("Failed to write compressed response", "error", err)
		}
	}
}

func acceptsGzip(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept-Encoding"), "gzip")
}

func (cm *Compressor) shouldCompress(contentType string) bool {
	for _, ct := range cm.config.ContentTypes {
		if strings.Contains(contentType, ct) {
			return true
		}
	}
	return false
}

// GetStats returns compression statistics
func (cm *Compressor) GetStats() map[string]interface{} {
	total := cm.originalBytes.Load()
	sent := cm.compressedBytes.Load()

	ratio := 1.0
	if total > 0 {
		ratio = float64(sent) / float64(total)
	}

	return map[string]interface{}{
		"total_responses":      cm.totalResponses.Load(),
		"compressed_responses": cm.compressedResponses.Load(),
		"original_bytes":       total,
		"sent_bytes":           sent,
		"compression_ratio":    ratio,
	}
}

// bufferedWriter holds the body while status and headers pass through to
// the wrapped writer, which only commits them on the first real write.
type bufferedWriter struct {
	gin.ResponseWriter
	buf bytes.Buffer
}

func (w *bufferedWriter) Write(data []byte) (int, error) {
	return w.buf.Write(data)
}

func (w *bufferedWriter) WriteString(s string) (int, error) {
	return w.buf.WriteString(s)
}

func (w *bufferedWriter) Written() bool {
	return w.buf.Len() > 0 || w.ResponseWriter.Written()
}

func (w *bufferedWriter) Size() int {
	if w.buf.Len() > 0 {
		return w.buf.Len()
	}
	return w.ResponseWriter.Size()
}

// Flush is a no-op until the handler chain completes
func (w *bufferedWriter) Flush() {}
