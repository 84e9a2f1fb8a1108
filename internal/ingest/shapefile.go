package ingest

import (
	"context"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/incidentops/geolayers/internal/catalog"
	"github.com/incidentops/geolayers/internal/errs"
	"github.com/incidentops/geolayers/internal/models"
	"github.com/incidentops/geolayers/internal/staging"
)

// ingestShapefile stages the batch (.shp plus companions) into a scoped
// directory, loads the features into their own table, publishes the table on
// the map server, and registers the catalog entry. The staging directory is
// always removed; server-side state is rolled back on downstream failure.
func (p *Pipeline) ingestShapefile(ctx context.Context, art Artifact, req PlacementRequest, auth AuthContext) (*RegisteredLayer, error) {
	ctx, span := tracer.Start(ctx, "ingest.shapefile",
		trace.WithAttributes(attribute.String("file_name", art.Name)),
	)
	defer span.End()

	if err := p.authorize(ctx, auth); err != nil {
		return nil, err
	}

	datasourceID, err := p.catalog.EnsureDatasource(ctx, p.opts.MapserverURL+"/wms", "wms", "Geolayers WMS Server")
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	batch := strings.ReplaceAll(strings.TrimSuffix(art.Name, filepath.Ext(art.Name)), " ", "_")
	layerName := batch + strconv.FormatInt(time.Now().UnixMilli(), 10)
	span.SetAttributes(attribute.String("layer_name", layerName))

	dir, cleanup, err := staging.Acquire(filepath.Join(p.opts.UploadPath, "shapefiles"), batch)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	defer cleanup()

	if err := writeStream(dir.Join(batch+".shp"), art.Body); err != nil {
		span.RecordError(err)
		return nil, err
	}
	for _, companion := range art.Companions {
		ext := strings.ToLower(filepath.Ext(companion.Name))
		if ext == "" || ext == ".shp" {
			continue
		}
		if err := writeStream(dir.Join(batch+ext), companion.Body); err != nil {
			span.RecordError(err)
			return nil, err
		}
	}

	count, err := p.features.InsertFeatures(ctx, layerName, dir.Join(batch+".shp"))
	if err != nil {
		p.features.RemoveFeaturesTable(ctx, layerName)
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("feature_count", count))

	if !p.mapserver.AddFeatureType(ctx, p.opts.GeoserverWorkspace, p.opts.GeoserverDatastore, layerName, "EPSG:3857") {
		p.features.RemoveFeaturesTable(ctx, layerName)
		return nil, errs.Tagf(errs.ErrCatalog, "failed to create features %s", layerName)
	}

	styleName := defaultShapefileStyle
	if art.SLD != "" && p.mapserver.AddStyle(ctx, layerName, art.SLD) {
		styleName = layerName
	}
	p.mapserver.UpdateLayerStyle(ctx, layerName, styleName)
	p.mapserver.UpdateLayerEnabled(ctx, layerName, true)

	sessionID := req.UserSessionID
	if sessionID == 0 {
		sessionID, err = p.catalog.GetUserSessionID(ctx, auth.Username)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
	}

	now := time.Now()
	layer := &models.Datalayer{
		DisplayName:   req.DisplayName,
		Baselayer:     false,
		UserSessionID: sessionID,
		Created:       now,
		Source: models.DatalayerSource{
			DatasourceID: datasourceID,
			LayerName:    layerName,
			Created:      now,
		},
	}

	reg, err := p.catalog.RegisterLayer(ctx, layer, catalog.Placement{
		FolderName:  uploadFolder,
		WorkspaceID: req.WorkspaceID,
		OrgIDs:      req.OrgIDs,
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	p.notifier.NewLayer(ctx, req.WorkspaceID, reg.Folder)

	return &RegisteredLayer{Layer: reg.Layer, Folder: reg.Folder}, nil
}
