// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/ManuGH/clipgate/internal/domain/session/manager"
	"github.com/ManuGH/clipgate/internal/fsutil"
)

// httpSink writes a delivery as an attachment response.
type httpSink struct {
	w        http.ResponseWriter
	prepared bool
}

func newHTTPSink(w http.ResponseWriter) *httpSink {
	return &httpSink{w: w}
}

// Prepared reports whether response headers have been sent.
func (s *httpSink) Prepared() bool { return s.prepared }

func (s *httpSink) Prepare(info manager.DeliveryInfo) (io.Writer, error) {
	h := s.w.Header()
	ct := info.MimeType
	if ct == "" {
		ct = "application/octet-stream"
	}
	h.Set("Content-Type", ct)
	h.Set("Content-Length", strconv.FormatInt(info.Size, 10))
	h.Set("Content-Disposition", contentDisposition(info.FileName))
	h.Set("Cache-Control", "no-store")
	h.Set("X-Content-Type-Options", "nosniff")
	if !info.ModTime.IsZero() {
		h.Set("Last-Modified", info.ModTime.UTC().Format(http.TimeFormat))
	}
	s.w.WriteHeader(http.StatusOK)
	s.prepared = true
	return s.w, nil
}

// contentDisposition builds an attachment header with an ASCII fallback name
// and, for non-ASCII names, an RFC 5987 filename* parameter.
func contentDisposition(name string) string {
	name = fsutil.SanitizeFilename(name)
	ascii := asciiFallback(name)
	v := mime.FormatMediaType("attachment", map[string]string{"filename": ascii})
	if v == "" {
		v = `attachment; filename="` + fsutil.FallbackFilename + `"`
	}
	if ascii != name {
		v += "; filename*=UTF-8''" + encodeRFC5987(name)
	}
	return v
}

func asciiFallback(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r < 0x20 || r > 0x7e:
			b.WriteByte('_')
		case r == '"' || r == '\\' || r == ';':
			b.WriteByte('_')
		default:
			b.WriteRune(r)
		}
	}
	out := b.String()
	if strings.Trim(out, "_. ") == "" {
		return fsutil.FallbackFilename
	}
	return out
}

func encodeRFC5987(s string) string {
	const attrChars = "!#$&+-.^_`|~"
	var b strings.Builder
	for _, c := range []byte(s) {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', strings.IndexByte(attrChars, c) >= 0:
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "%%%02X", c)
		}
	}
	return b.String()
}
