package mw

import (
	"bytes"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
)

// snapshot is a stored read-model response.
type snapshot struct {
	status int
	header http.Header
	body   []byte
}

// teeWriter copies the response body into buf while writing it out.
type teeWriter struct {
	gin.ResponseWriter
	buf *bytes.Buffer
}

func (w teeWriter) Write(b []byte) (int, error) {
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w teeWriter) WriteString(s string) (int, error) {
	w.buf.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Cache serves repeated GETs of the same URI from store for ttl. Entries are
// per tenant scope, so it has to run after Tenant. Hits carry X-Cache: HIT.
func Cache(store *cache.Cache, ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		key := scopeLabel(c) + "|" + c.Request.RequestURI
		if v, found := store.Get(key); found {
			replay(c, v.(snapshot))
			return
		}

		tee := teeWriter{ResponseWriter: c.Writer, buf: new(bytes.Buffer)}
		c.Writer = tee
		c.Next()

		if status := tee.Status(); status >= 200 && status < 300 {
			store.Set(key, snapshot{
				status: status,
				header: tee.Header().Clone(),
				body:   tee.buf.Bytes(),
			}, ttl)
		}
	}
}

func replay(c *gin.Context, s snapshot) {
	h := c.Writer.Header()
	for k, v := range s.header {
		h[k] = v
	}
	h.Set("X-Cache", "HIT")
	c.Writer.WriteHeader(s.status)
	_, _ = c.Writer.Write(s.body)
	c.Abort()
}

// InvalidateOnWrite drops every cached snapshot once a non-GET request has
// succeeded, so machine statuses never outlive the command that changed them.
func InvalidateOnWrite(store *cache.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			return
		}
		if c.Writer.Status() < http.StatusBadRequest {
			store.Flush()
		}
	}
}
