package handlers

import (
	"net/http"

	"github.com/kozaktomas/lookalike/internal/config"
)

// ConfigHandler exposes the settings a client needs to prepare query images.
type ConfigHandler struct {
	config *config.Config
}

func NewConfigHandler(cfg *config.Config) *ConfigHandler {
	return &ConfigHandler{config: cfg}
}

type ConfigResponse struct {
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	Mode         string `json:"mode"`
	Extension    string `json:"extension"`
	FacesAllowed int    `json:"faces_allowed"`
	Method       string `json:"method"`
	Dim          int    `json:"dim"`
	MaxUploadMB  int    `json:"max_upload_mb"`
}

// Get returns the image and model settings
func (h *ConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, ConfigResponse{
		Width:        h.config.Images.Width,
		Height:       h.config.Images.Height,
		Mode:         h.config.Images.Mode,
		Extension:    h.config.Images.TargetExtension(),
		FacesAllowed: h.config.Faces.Allowed,
		Method:       h.config.Model.Method,
		Dim:          h.config.Model.Dim,
		MaxUploadMB:  h.config.Server.MaxUploadMB,
	})
}
