// internal/httpserver/share.go
//
// GET /share.png renders a QR code that points players at the game.

package httpserver

import (
	"net/http"
	"strings"

	"github.com/skip2/go-qrcode"
)

// shareURL returns the configured public URL, or one derived from the request.
func (s *Server) shareURL(r *http.Request) string {
	if s.opts.PublicURL != "" {
		return s.opts.PublicURL
	}
	scheme := "http"
	if r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		scheme = "https"
	}
	return scheme + "://" + r.Host + "/"
}

func (s *Server) handleShareQR(w http.ResponseWriter, r *http.Request) {
	png, err := qrcode.Encode(s.shareURL(r), qrcode.Medium, 256)
	if err != nil {
		logRequestErr(r, err, "encode qr")
		writeError(w, http.StatusInternalServerError, "qr_failed")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write(png)
}
