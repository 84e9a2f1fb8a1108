// Package handlers adapts the ingestion pipeline to the HTTP surface.
package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"go.opentelemetry.io/otel"

	"github.com/incidentops/geolayers/internal/errs"
	"github.com/incidentops/geolayers/internal/models"
)

var tracer = otel.Tracer("geolayers-handlers")

// LayerResponse is the common response for layer-producing uploads
type LayerResponse struct {
	Success          bool                         `json:"success"`
	Message          string                       `json:"message"`
	Count            int                          `json:"count,omitempty"`
	DatalayerFolders []models.DatalayerFolder     `json:"datalayerfolders,omitempty"`
	Collabrooms      []models.DatalayerCollabroom `json:"collabrooms,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeError maps taxonomy kinds to statuses and user-safe messages. The
// wrapped detail is logged, never returned, so internal paths stay internal.
func writeError(w http.ResponseWriter, err error) {
	log.Printf("Ingestion failed: %v", err)

	status := http.StatusInternalServerError
	message := "Failed to add data layer."
	switch {
	case errors.Is(err, errs.ErrAuthorization):
		status = http.StatusForbidden
		message = "Permission denied."
	case errors.Is(err, errs.ErrFormat):
		status = http.StatusBadRequest
		message = "Failed to upload file: unsupported or corrupt format."
	case errors.Is(err, errs.ErrDigest):
		message = "Upload digest configuration error."
	case errors.Is(err, errs.ErrIO):
		message = "Failed to store uploaded file."
	case errors.Is(err, errs.ErrCatalog):
		message = "Failed to register data layer."
	}

	writeJSON(w, status, LayerResponse{Success: false, Message: message})
}
