package export

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/mapwright/mapwright/internal/document"
)

// Source supplies the map to export.
type Source interface {
	Snapshot() *document.Map
}

type Handler struct {
	source  Source
	palette Palette
}

func NewHandler(source Source) *Handler {
	return &Handler{source: source, palette: DefaultPalette()}
}

// ExportImage serves the current map as a PNG attachment. Query parameters:
// width (pixels) and captions (true to draw captions).
func (h *Handler) ExportImage(w http.ResponseWriter, r *http.Request) {
	width, err := strconv.Atoi(r.URL.Query().Get("width"))
	if err != nil || width <= 0 || width > MaxWidth {
		width = DefaultWidth
	}
	captions, _ := strconv.ParseBool(r.URL.Query().Get("captions"))

	m := h.source.Snapshot()
	var buf bytes.Buffer
	err = PNG(&buf, m, Options{Width: width, Palette: h.palette, Captions: captions})
	if errors.Is(err, ErrEmptyMap) {
		http.Error(w, "map has no visible items", http.StatusConflict)
		return
	}
	if err != nil {
		slog.Error("export image", "error", err, "map", m.Ref.Name)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.png"`, FileName(m.Ref.Name)))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	if _, err := buf.WriteTo(w); err != nil {
		slog.Debug("write export", "error", err)
		return
	}
	slog.Info("export complete", "map", m.Ref.Name, "width", width, "size", buf.Len())
}

// FileName reduces name to a safe file name stem.
func FileName(name string) string {
	if name == "" {
		return "map"
	}
	return strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			return r
		}
		return '-'
	}, name)
}
