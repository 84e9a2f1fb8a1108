package ingest

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/incidentops/geolayers/internal/catalog"
	"github.com/incidentops/geolayers/internal/format"
	"github.com/incidentops/geolayers/internal/kml"
	"github.com/incidentops/geolayers/internal/kmz"
	"github.com/incidentops/geolayers/internal/models"
	"github.com/incidentops/geolayers/internal/staging"
)

// ingestDocument handles the file-backed formats: KML, KMZ, GPX, GeoJSON.
// The artifact is written content-addressed (KML through the repair filter),
// KMZ archives are extracted next to their container, the result is mirrored
// to the blob store, and only then is the catalog touched.
func (p *Pipeline) ingestDocument(ctx context.Context, kind format.Kind, art Artifact, req PlacementRequest, auth AuthContext) (*RegisteredLayer, error) {
	ctx, span := tracer.Start(ctx, "ingest.document",
		trace.WithAttributes(attribute.String("format", kind.String())),
	)
	defer span.End()

	if err := p.authorize(ctx, auth); err != nil {
		return nil, err
	}

	var filter staging.Filter
	if kind == format.KML {
		filter = kml.Repair
	}

	ext := format.Ext(art.Name)
	destDir := filepath.Join(p.opts.UploadPath, kind.Subdir())
	path, _, err := staging.WriteContentAddressed(art.Body, destDir, ext, p.opts.DigestAlgorithm, filter)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	stored := filepath.Base(path)
	span.SetAttributes(attribute.String("stored_name", stored))

	// The layer name the source records: the stored file itself, or for KMZ
	// the entry-point KML inside the extracted batch directory.
	layerName := stored
	mirrorPrefix := kind.Subdir() + "/" + stored
	if kind == format.KMZ {
		batch := strings.TrimSuffix(stored, filepath.Ext(stored))
		entry, err := kmz.Extract(path, filepath.Join(destDir, batch))
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		layerName = batch + "/" + filepath.ToSlash(entry)
		mirrorPrefix = kind.Subdir() + "/" + batch

		if err := p.blobs.UploadDir(ctx, mirrorPrefix, filepath.Join(destDir, batch)); err != nil {
			span.RecordError(err)
			return nil, err
		}
	} else {
		if err := p.blobs.UploadFile(ctx, mirrorPrefix, path, art.ContentType); err != nil {
			span.RecordError(err)
			return nil, err
		}
	}

	now := time.Now()
	doc := &models.Document{
		DisplayName:   art.Name,
		Filename:      stored,
		Filetype:      art.ContentType,
		UserSessionID: req.UserSessionID,
		Created:       now,
	}
	// Best-effort mirror rollback once a catalog step fails; the layer never
	// existed, so the web tier must not serve its files.
	unmirror := func() {
		if err := p.blobs.RemovePrefix(ctx, mirrorPrefix); err != nil {
			span.RecordError(err)
		}
	}

	if err := p.catalog.InsertDocument(ctx, doc); err != nil {
		unmirror()
		span.RecordError(err)
		return nil, err
	}

	datasourceID, err := p.catalog.EnsureDatasource(ctx, p.opts.WebserverURL+"/"+ext+"/", ext, "")
	if err != nil {
		unmirror()
		span.RecordError(err)
		return nil, err
	}

	displayName := req.DisplayName
	if displayName == "" {
		displayName = art.Name
	}
	layer := &models.Datalayer{
		DisplayName:   displayName,
		Baselayer:     req.Baselayer,
		UserSessionID: req.UserSessionID,
		Created:       now,
		Source: models.DatalayerSource{
			DatasourceID: datasourceID,
			LayerName:    layerName,
			RefreshRate:  req.RefreshRate,
			Created:      now,
		},
	}

	placement := catalog.Placement{
		FolderName:  uploadFolder,
		WorkspaceID: req.WorkspaceID,
		Collabrooms: req.Collabrooms,
		OrgIDs:      req.OrgIDs,
	}
	if placement.Rooms() {
		userID, err := p.catalog.GetUserID(ctx, auth.Username)
		if err != nil {
			unmirror()
			span.RecordError(err)
			return nil, err
		}
		placement.UserID = userID
	}

	reg, err := p.catalog.RegisterLayer(ctx, layer, placement)
	if err != nil {
		unmirror()
		span.RecordError(err)
		return nil, err
	}

	p.announce(ctx, req.WorkspaceID, reg)

	return &RegisteredLayer{Layer: reg.Layer, Folder: reg.Folder, Collabrooms: reg.Collabrooms}, nil
}
