package ingest

import (
	"context"
	"time"

	"github.com/incidentops/geolayers/internal/catalog"
	"github.com/incidentops/geolayers/internal/models"
)

// registerImageLayer is the generic layer-creation path for finished image
// layers: the source's layer name is the image layer id published on the map
// server.
func (p *Pipeline) registerImageLayer(ctx context.Context, layerID, title string, workspaceID, userSessionID int) (*catalog.Registration, error) {
	datasourceID, err := p.catalog.EnsureDatasource(ctx, p.opts.ImageDatasourceURL, "wms", "")
	if err != nil {
		return nil, err
	}

	now := time.Now()
	layer := &models.Datalayer{
		DisplayName:   title,
		Baselayer:     false,
		UserSessionID: userSessionID,
		Created:       now,
		Source: models.DatalayerSource{
			DatasourceID: datasourceID,
			LayerName:    layerID,
			Created:      now,
		},
	}

	reg, err := p.catalog.RegisterLayer(ctx, layer, catalog.Placement{
		FolderName:  uploadFolder,
		WorkspaceID: workspaceID,
	})
	if err != nil {
		return nil, err
	}

	p.notifier.NewLayer(ctx, workspaceID, reg.Folder)
	return reg, nil
}

// UpdateLayer updates a layer's display fields and announces the change.
func (p *Pipeline) UpdateLayer(ctx context.Context, layer *models.Datalayer) (*models.Datalayer, error) {
	updated, err := p.catalog.UpdateDatalayer(ctx, layer)
	if err != nil {
		return nil, err
	}
	p.notifier.UpdatedLayer(ctx, updated)
	return updated, nil
}

// DeleteLayer removes a layer and announces the removal.
func (p *Pipeline) DeleteLayer(ctx context.Context, datalayerID string) error {
	if err := p.catalog.RemoveDatalayer(ctx, datalayerID); err != nil {
		return err
	}
	p.notifier.DeletedLayer(ctx, datalayerID)
	return nil
}

// AddCollabroomLayer links an existing layer into a collabroom and announces
// the placement.
func (p *Pipeline) AddCollabroomLayer(ctx context.Context, collabroomID int, datalayerID, username string) (*models.DatalayerCollabroom, error) {
	userID, err := p.catalog.GetUserID(ctx, username)
	if err != nil {
		return nil, err
	}
	dc, err := p.catalog.InsertCollabroomDatalayer(ctx, collabroomID, datalayerID, userID)
	if err != nil {
		return nil, err
	}
	p.notifier.NewCollabroomLayer(ctx, dc)
	return dc, nil
}

// DeleteCollabroomLayers removes collabroom placements and announces the
// removal.
func (p *Pipeline) DeleteCollabroomLayers(ctx context.Context, rooms []models.DatalayerCollabroom) error {
	if err := p.catalog.DeleteCollabroomDatalayers(ctx, rooms); err != nil {
		return err
	}
	p.notifier.DeletedCollabroomLayer(ctx, rooms)
	return nil
}
