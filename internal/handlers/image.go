package handlers

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/incidentops/geolayers/internal/images"
	"github.com/incidentops/geolayers/internal/ingest"
	"github.com/incidentops/geolayers/internal/models"
)

// ImageResponse reports the outcome of one image contribution
type ImageResponse struct {
	Success bool                 `json:"success"`
	Message string               `json:"message,omitempty"`
	Count   int                  `json:"count,omitempty"`
	Feature *models.ImageFeature `json:"feature,omitempty"`
}

// ImageHandler accepts geotagged image uploads for an in-progress layer
type ImageHandler struct {
	pipeline *ingest.Pipeline
}

// NewImageHandler creates a new image upload handler
func NewImageHandler(pipeline *ingest.Pipeline) *ImageHandler {
	return &ImageHandler{pipeline: pipeline}
}

// ServeHTTP handles POST /datalayers/{workspaceId}/image/{id}
func (h *ImageHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ctx, span := tracer.Start(ctx, "upload_image",
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer span.End()

	vars := mux.Vars(r)
	workspaceID, err := strconv.Atoi(vars["workspaceId"])
	if err != nil {
		http.Error(w, "invalid workspace id", http.StatusBadRequest)
		return
	}
	layerID := vars["id"]

	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		http.Error(w, "failed to parse multipart form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ImageResponse{Success: false, Message: "No image found."})
		return
	}
	defer file.Close()

	span.SetAttributes(
		attribute.String("file_name", header.Filename),
		attribute.String("layer_id", layerID),
	)

	art := ingest.Artifact{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Body:        file,
	}
	req := ingest.PlacementRequest{WorkspaceID: workspaceID, ImageLayerID: layerID}
	auth := ingest.AuthContext{Username: r.Header.Get("X-Remote-User")}

	result, err := h.pipeline.Ingest(ctx, art, req, auth)
	if err != nil {
		span.RecordError(err)
		writeJSON(w, http.StatusOK, ImageResponse{Success: false, Message: "No location found for image."})
		return
	}

	writeJSON(w, http.StatusOK, ImageResponse{Success: true, Count: 1, Feature: result.Feature})
}

// ImageFinishHandler finalizes or cancels an in-progress image layer
type ImageFinishHandler struct {
	pipeline *ingest.Pipeline
}

// NewImageFinishHandler creates a new finish handler
func NewImageFinishHandler(pipeline *ingest.Pipeline) *ImageFinishHandler {
	return &ImageFinishHandler{pipeline: pipeline}
}

// ServeHTTP handles POST /datalayers/{workspaceId}/image/{id}/finish
func (h *ImageFinishHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ctx, span := tracer.Start(ctx, "finish_image_layer",
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer span.End()

	vars := mux.Vars(r)
	workspaceID, err := strconv.Atoi(vars["workspaceId"])
	if err != nil {
		http.Error(w, "invalid workspace id", http.StatusBadRequest)
		return
	}

	req := images.FinishRequest{
		LayerID:       vars["id"],
		Title:         r.URL.Query().Get("title"),
		WorkspaceID:   workspaceID,
		UserSessionID: queryInt(r, "usersessionid"),
		Cancel:        r.URL.Query().Get("cancel") == "true",
	}
	span.SetAttributes(
		attribute.String("layer_id", req.LayerID),
		attribute.Bool("cancel", req.Cancel),
	)

	reg, message, err := h.pipeline.Images().Finish(ctx, req)
	if err != nil {
		span.RecordError(err)
		writeError(w, err)
		return
	}

	resp := LayerResponse{Success: true, Message: "ok"}
	if message != "" {
		resp.Message = message
	}
	if reg != nil && reg.Folder != nil {
		resp.Count = 1
		resp.DatalayerFolders = append(resp.DatalayerFolders, *reg.Folder)
	}
	writeJSON(w, http.StatusOK, resp)
}

func queryInt(r *http.Request, name string) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return 0
	}
	return v
}
