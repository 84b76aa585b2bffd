package handlers

import (
	"net/http"

	"github.com/kozaktomas/gatewatch/internal/config"
	"github.com/kozaktomas/gatewatch/internal/database"
)

// GalleryCounter reports the number of identities the recognizer knows.
type GalleryCounter interface {
	Count() int
}

// ConfigHandler handles configuration endpoints
type ConfigHandler struct {
	config  *config.Config
	gallery GalleryCounter
}

// NewConfigHandler creates a new config handler
func NewConfigHandler(cfg *config.Config, gallery GalleryCounter) *ConfigHandler {
	return &ConfigHandler{
		config:  cfg,
		gallery: gallery,
	}
}

// ConfigResponse represents the configuration response
type ConfigResponse struct {
	Engine            config.EngineConfig `json:"engine"`
	DedupWindowSeconds float64             `json:"dedup_window_seconds"`
	Timezone          string              `json:"timezone"`
	Backend           string              `json:"backend"`
	GallerySize       int                 `json:"gallery_size"`
}

// Get returns the effective engine configuration
func (h *ConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	size := 0
	if h.gallery != nil {
		size = h.gallery.Count()
	}

	respondJSON(w, http.StatusOK, ConfigResponse{
		Engine:            h.config.Engine,
		DedupWindowSeconds: h.config.Exits.DedupWindow.Seconds(),
		Timezone:          h.config.Exits.Location().String(),
		Backend:           database.BackendName(),
		GallerySize:       size,
	})
}
