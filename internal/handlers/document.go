package handlers

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/incidentops/geolayers/internal/ingest"
)

const maxUploadSize = 500 << 20 // 500 MB

// DocumentHandler accepts KML, KMZ, GPX, and GeoJSON uploads
type DocumentHandler struct {
	pipeline *ingest.Pipeline
}

// NewDocumentHandler creates a new document upload handler
func NewDocumentHandler(pipeline *ingest.Pipeline) *DocumentHandler {
	return &DocumentHandler{pipeline: pipeline}
}

// ServeHTTP handles POST /datalayers/{workspaceId}/document
func (h *DocumentHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ctx, span := tracer.Start(ctx, "upload_document",
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer span.End()

	workspaceID, err := strconv.Atoi(mux.Vars(r)["workspaceId"])
	if err != nil {
		http.Error(w, "invalid workspace id", http.StatusBadRequest)
		return
	}

	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		http.Error(w, "failed to parse multipart form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "file is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	span.SetAttributes(
		attribute.String("file_name", header.Filename),
		attribute.Int("workspace_id", workspaceID),
	)

	req := ingest.PlacementRequest{
		WorkspaceID:   workspaceID,
		DisplayName:   r.FormValue("displayname"),
		Baselayer:     r.FormValue("baselayer") == "true",
		UserSessionID: formInt(r, "usersessionid"),
		RefreshRate:   formInt(r, "refreshrate"),
	}
	if orgID := formInt(r, "orgid"); orgID > 0 {
		req.OrgIDs = []int{orgID}
	}
	if roomID := formInt(r, "collabroomId"); roomID > 0 {
		req.Collabrooms = []int{roomID}
	}

	art := ingest.Artifact{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Body:        file,
	}
	auth := ingest.AuthContext{Username: r.Header.Get("X-Remote-User")}

	result, err := h.pipeline.Ingest(ctx, art, req, auth)
	if err != nil {
		span.RecordError(err)
		writeError(w, err)
		return
	}

	resp := LayerResponse{Success: true, Message: "ok", Count: 1}
	if result.Folder != nil {
		resp.DatalayerFolders = append(resp.DatalayerFolders, *result.Folder)
	}
	resp.Collabrooms = result.Collabrooms
	writeJSON(w, http.StatusOK, resp)
}

func formInt(r *http.Request, name string) int {
	v, err := strconv.Atoi(r.FormValue(name))
	if err != nil {
		return 0
	}
	return v
}
