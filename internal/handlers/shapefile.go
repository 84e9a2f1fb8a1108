package handlers

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/incidentops/geolayers/internal/ingest"
)

// ShapefileHandler accepts shapefile batch uploads
type ShapefileHandler struct {
	pipeline *ingest.Pipeline
}

// NewShapefileHandler creates a new shapefile upload handler
func NewShapefileHandler(pipeline *ingest.Pipeline) *ShapefileHandler {
	return &ShapefileHandler{pipeline: pipeline}
}

// ServeHTTP handles POST /datalayers/{workspaceId}/shapefile. The multipart
// body carries the primary member as "shpFile", an optional "sldFile" style
// document, and any further batch members (.dbf, .shx, .prj) under their own
// field names.
func (h *ShapefileHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ctx, span := tracer.Start(ctx, "upload_shapefile",
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

	shp, shpHeader, err := r.FormFile("shpFile")
	if err != nil {
		http.Error(w, "required attachment 'shpFile' not found", http.StatusBadRequest)
		return
	}
	defer shp.Close()

	span.SetAttributes(attribute.String("file_name", shpHeader.Filename))

	art := ingest.Artifact{
		Name:        shpHeader.Filename,
		ContentType: shpHeader.Header.Get("Content-Type"),
		Body:        shp,
	}

	for field, headers := range r.MultipartForm.File {
		if field == "shpFile" || field == "sldFile" || len(headers) == 0 {
			continue
		}
		f, err := headers[0].Open()
		if err != nil {
			http.Error(w, "failed to read attachment "+field, http.StatusBadRequest)
			return
		}
		defer f.Close()
		art.Companions = append(art.Companions, ingest.NamedStream{
			Name: headers[0].Filename,
			Body: f,
		})
	}

	if headers := r.MultipartForm.File["sldFile"]; len(headers) > 0 {
		f, err := headers[0].Open()
		if err == nil {
			sld, _ := io.ReadAll(f)
			f.Close()
			art.SLD = string(sld)
		}
	}

	req := ingest.PlacementRequest{
		WorkspaceID: workspaceID,
		DisplayName: r.FormValue("displayname"),
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
	writeJSON(w, http.StatusOK, resp)
}
