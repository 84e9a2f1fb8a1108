package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/incidentops/geolayers/internal/ingest"
	"github.com/incidentops/geolayers/internal/models"
)

// LayerHandler serves layer update, delete, and collabroom placement
// operations outside the upload path
type LayerHandler struct {
	pipeline *ingest.Pipeline
}

// NewLayerHandler creates a new layer maintenance handler
func NewLayerHandler(pipeline *ingest.Pipeline) *LayerHandler {
	return &LayerHandler{pipeline: pipeline}
}

// Update handles POST /datalayers/{datalayerId}
func (h *LayerHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "update_datalayer",
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer span.End()

	var layer models.Datalayer
	if err := json.NewDecoder(r.Body).Decode(&layer); err != nil {
		http.Error(w, "invalid layer body", http.StatusBadRequest)
		return
	}
	layer.ID = mux.Vars(r)["datalayerId"]
	span.SetAttributes(attribute.String("datalayer_id", layer.ID))

	updated, err := h.pipeline.UpdateLayer(ctx, &layer)
	if err != nil {
		span.RecordError(err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// Delete handles DELETE /datalayers/{datalayerId}
func (h *LayerHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "delete_datalayer",
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer span.End()

	id := mux.Vars(r)["datalayerId"]
	span.SetAttributes(attribute.String("datalayer_id", id))

	if err := h.pipeline.DeleteLayer(ctx, id); err != nil {
		span.RecordError(err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, LayerResponse{Success: true, Message: "ok"})
}

// AddToCollabroom handles POST /collabroom/{collabroomId}/datalayers/{datalayerId}
func (h *LayerHandler) AddToCollabroom(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "add_collabroom_datalayer",
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer span.End()

	vars := mux.Vars(r)
	collabroomID, err := strconv.Atoi(vars["collabroomId"])
	if err != nil {
		http.Error(w, "invalid collabroom id", http.StatusBadRequest)
		return
	}

	dc, err := h.pipeline.AddCollabroomLayer(ctx, collabroomID, vars["datalayerId"], r.Header.Get("X-Remote-User"))
	if err != nil {
		span.RecordError(err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, LayerResponse{
		Success:     true,
		Message:     "ok",
		Count:       1,
		Collabrooms: []models.DatalayerCollabroom{*dc},
	})
}

// RemoveFromCollabrooms handles DELETE /collabroom/datalayers
func (h *LayerHandler) RemoveFromCollabrooms(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "delete_collabroom_datalayers",
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer span.End()

	var rooms []models.DatalayerCollabroom
	if err := json.NewDecoder(r.Body).Decode(&rooms); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	if err := h.pipeline.DeleteCollabroomLayers(ctx, rooms); err != nil {
		span.RecordError(err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, LayerResponse{Success: true, Message: "ok", Count: len(rooms)})
}
