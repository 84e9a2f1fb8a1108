// Package images implements the per-layer image ingestion workflow: images
// are collected one at a time, each contributing a geotagged feature, until
// the layer is finished or cancelled.
package images

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/incidentops/geolayers/internal/catalog"
	"github.com/incidentops/geolayers/internal/errs"
	"github.com/incidentops/geolayers/internal/format"
	"github.com/incidentops/geolayers/internal/models"
	"github.com/incidentops/geolayers/internal/staging"
)

// FeatureCatalog is the catalog subset the workflow needs.
type FeatureCatalog interface {
	InsertImageFeature(ctx context.Context, layerID, location, filename string) error
	RemoveImageFeatures(ctx context.Context, layerID string) (int64, error)
}

// LayerCreator turns accumulated features into a served map layer.
type LayerCreator interface {
	AddImageLayer(ctx context.Context, workspace, datastore, layerID, title string) bool
}

// RegisterFunc delegates finished layers to the generic layer-creation path.
type RegisterFunc func(ctx context.Context, layerID, title string, workspaceID, userSessionID int) (*catalog.Registration, error)

type layerState int

const (
	collecting layerState = iota
	finished
)

// Workflow tracks in-progress image layers. Each layer id moves from
// collecting through finalize-or-cancel to finished.
type Workflow struct {
	catalog   FeatureCatalog
	layers    LayerCreator
	register  RegisterFunc
	locator   Locator
	baseDir   string
	workspace string
	datastore string
	algorithm string

	mu     sync.Mutex
	states map[string]layerState
}

// NewWorkflow creates an image workflow rooted at baseDir.
func NewWorkflow(cat FeatureCatalog, layers LayerCreator, register RegisterFunc, locator Locator, baseDir, workspace, datastore, algorithm string) *Workflow {
	return &Workflow{
		catalog:   cat,
		layers:    layers,
		register:  register,
		locator:   locator,
		baseDir:   baseDir,
		workspace: workspace,
		datastore: datastore,
		algorithm: algorithm,
		states:    make(map[string]layerState),
	}
}

func (w *Workflow) state(layerID string) layerState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.states[layerID]
}

func (w *Workflow) setState(layerID string, s layerState) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.states[layerID] = s
}

// Collect stages one uploaded image under the layer's directory and records
// its geolocation as an ImageFeature. An image without location metadata is
// rejected (nothing persisted) but the layer keeps collecting.
func (w *Workflow) Collect(ctx context.Context, layerID, filename string, img io.Reader) (*models.ImageFeature, error) {
	if w.state(layerID) == finished {
		return nil, errs.Tagf(errs.ErrFormat, "image layer %s is already finished", layerID)
	}

	dir := filepath.Join(w.baseDir, layerID)
	path, _, err := staging.WriteContentAddressed(img, dir, format.Ext(filename), w.algorithm, nil)
	if err != nil {
		return nil, err
	}

	lon, lat, err := w.locator.Location(path)
	if err != nil {
		os.Remove(path)
		return nil, errs.Tagf(errs.ErrFormat, "no location found for image %s: %w", filename, err)
	}

	location := fmt.Sprintf("POINT(%s %s)",
		strconv.FormatFloat(lon, 'f', -1, 64),
		strconv.FormatFloat(lat, 'f', -1, 64))

	feature := &models.ImageFeature{
		LayerID:  layerID,
		Location: location,
		Filename: layerID + "/" + filepath.Base(path),
	}
	if err := w.catalog.InsertImageFeature(ctx, layerID, feature.Location, feature.Filename); err != nil {
		return nil, err
	}
	return feature, nil
}

// FinishRequest closes out an in-progress image layer.
type FinishRequest struct {
	LayerID       string
	Title         string
	WorkspaceID   int
	UserSessionID int
	Cancel        bool
}

// Finish finalizes or cancels an image layer. On finalize, the map server
// layer is created first and the catalog entry registered through the
// generic path; if the server-side creation fails the accumulated features
// are left untouched and the layer keeps collecting, so finalize can be
// retried. On cancel, staged files and feature rows are removed; partial
// failures are reported in the returned message, not as errors.
func (w *Workflow) Finish(ctx context.Context, req FinishRequest) (*catalog.Registration, string, error) {
	if req.Cancel {
		return nil, w.cancel(ctx, req.LayerID), nil
	}

	if !w.layers.AddImageLayer(ctx, w.workspace, w.datastore, req.LayerID, req.Title) {
		return nil, "", errs.Tagf(errs.ErrCatalog, "failed to create image layer %s", req.LayerID)
	}

	reg, err := w.register(ctx, req.LayerID, req.Title, req.WorkspaceID, req.UserSessionID)
	if err != nil {
		return nil, "", err
	}

	w.setState(req.LayerID, finished)
	return reg, "", nil
}

func (w *Workflow) cancel(ctx context.Context, layerID string) string {
	var msgs []string

	dir := filepath.Join(w.baseDir, layerID)
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		msgs = append(msgs, fmt.Sprintf("%s: no such file or directory", dir))
	} else if err := os.RemoveAll(dir); err != nil {
		msgs = append(msgs, err.Error())
	}

	if n, err := w.catalog.RemoveImageFeatures(ctx, layerID); err != nil || n < 1 {
		msgs = append(msgs, "The images could not be removed from the database.")
	}

	w.setState(layerID, finished)
	return strings.Join(msgs, "\n")
}
