// Package ingest is the entry point of the upload pipeline: it classifies
// an uploaded artifact, materializes it on durable storage, registers the
// resulting layer in the catalog, and announces the change.
package ingest

import (
	"context"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/incidentops/geolayers/internal/catalog"
	"github.com/incidentops/geolayers/internal/errs"
	"github.com/incidentops/geolayers/internal/format"
	"github.com/incidentops/geolayers/internal/images"
	"github.com/incidentops/geolayers/internal/models"
)

var tracer = otel.Tracer("geolayers-ingest")

// Catalog is the persistent-store surface the pipeline depends on.
type Catalog interface {
	EnsureDatasource(ctx context.Context, internalURL, typeName, displayName string) (string, error)
	RegisterLayer(ctx context.Context, layer *models.Datalayer, p catalog.Placement) (*catalog.Registration, error)
	InsertDocument(ctx context.Context, doc *models.Document) error
	InsertImageFeature(ctx context.Context, layerID, location, filename string) error
	RemoveImageFeatures(ctx context.Context, layerID string) (int64, error)
	InsertCollabroomDatalayer(ctx context.Context, collabroomID int, datalayerID string, userID int) (*models.DatalayerCollabroom, error)
	DeleteCollabroomDatalayers(ctx context.Context, rooms []models.DatalayerCollabroom) error
	RemoveDatalayer(ctx context.Context, datalayerID string) error
	UpdateDatalayer(ctx context.Context, layer *models.Datalayer) (*models.Datalayer, error)
	IsUserRole(ctx context.Context, username string, roleID int) (bool, error)
	GetUserSessionID(ctx context.Context, username string) (int, error)
	GetUserID(ctx context.Context, username string) (int, error)
}

// FeatureStore loads shapefile features and rolls them back.
type FeatureStore interface {
	InsertFeatures(ctx context.Context, layerName, shapefilePath string) (int, error)
	RemoveFeaturesTable(ctx context.Context, layerName string) error
}

// MapServer configures served layers on the map/feature server.
type MapServer interface {
	AddFeatureType(ctx context.Context, workspace, datastore, layerName, projection string) bool
	AddStyle(ctx context.Context, styleName, sld string) bool
	UpdateLayerStyle(ctx context.Context, layerName, styleName string) bool
	UpdateLayerEnabled(ctx context.Context, layerName string, enabled bool) bool
	AddImageLayer(ctx context.Context, workspace, datastore, layerID, title string) bool
}

// Blobs mirrors finalized files to the store the web tier serves from.
type Blobs interface {
	UploadFile(ctx context.Context, key, path, contentType string) error
	UploadDir(ctx context.Context, prefix, dir string) error
	RemovePrefix(ctx context.Context, prefix string) error
}

// Notifier announces catalog mutations; implementations never return errors
// to the caller.
type Notifier interface {
	NewLayer(ctx context.Context, workspaceID int, df *models.DatalayerFolder)
	UpdatedLayer(ctx context.Context, layer *models.Datalayer)
	DeletedLayer(ctx context.Context, datalayerID string)
	NewCollabroomLayer(ctx context.Context, dc *models.DatalayerCollabroom)
	DeletedCollabroomLayer(ctx context.Context, dcs []models.DatalayerCollabroom)
}

// NamedStream is an auxiliary upload accompanying the primary artifact, such
// as the .dbf and .shx members of a shapefile batch.
type NamedStream struct {
	Name string
	Body io.Reader
}

// Artifact is one uploaded byte stream with its declared identity.
type Artifact struct {
	Name        string
	ContentType string
	Body        io.Reader
	Companions  []NamedStream
	SLD         string // optional style document for shapefile uploads
}

// PlacementRequest describes where the resulting layer should land.
type PlacementRequest struct {
	WorkspaceID   int
	Collabrooms   []int
	OrgIDs        []int
	DisplayName   string
	Baselayer     bool
	RefreshRate   int
	UserSessionID int
	ImageLayerID  string // target layer for image uploads
}

// AuthContext identifies the uploading user.
type AuthContext struct {
	Username string
}

// RegisteredLayer is the fully resolved result handed back to the service
// layer. Image uploads contribute a feature to an in-progress layer rather
// than a registered layer.
type RegisteredLayer struct {
	Layer       *models.Datalayer
	Folder      *models.DatalayerFolder
	Collabrooms []models.DatalayerCollabroom
	Feature     *models.ImageFeature
}

// Options carries the pipeline's static configuration.
type Options struct {
	UploadPath         string
	ImageFeaturePath   string
	WebserverURL       string
	MapserverURL       string
	ImageDatasourceURL string
	DigestAlgorithm    string
	GeoserverWorkspace string
	GeoserverDatastore string
	ImageWorkspace     string
	ImageDatastore     string
}

// Layers uploaded through this pipeline always land in the Upload folder
// unless a collabroom placement is requested.
const uploadFolder = "Upload"

const defaultShapefileStyle = "defaultShapefileStyle"

// Pipeline wires the ingestion stages to their collaborators. All
// dependencies are injected; the pipeline holds no global state.
type Pipeline struct {
	catalog   Catalog
	features  FeatureStore
	mapserver MapServer
	blobs     Blobs
	notifier  Notifier
	images    *images.Workflow
	opts      Options
}

// New constructs the pipeline and its image workflow.
func New(cat Catalog, features FeatureStore, mapserver MapServer, blobs Blobs, notifier Notifier, locator images.Locator, opts Options) *Pipeline {
	p := &Pipeline{
		catalog:   cat,
		features:  features,
		mapserver: mapserver,
		blobs:     blobs,
		notifier:  notifier,
		opts:      opts,
	}
	p.images = images.NewWorkflow(cat, mapserver, p.registerImageLayer, locator,
		opts.ImageFeaturePath, opts.ImageWorkspace, opts.ImageDatastore, opts.DigestAlgorithm)
	return p
}

// Images exposes the per-layer image workflow for the finish endpoint.
func (p *Pipeline) Images() *images.Workflow {
	return p.images
}

// Ingest classifies the artifact and runs the matching handler. It returns
// either the registered layer (or contributed image feature) or a tagged
// error from the taxonomy in internal/errs.
func (p *Pipeline) Ingest(ctx context.Context, art Artifact, req PlacementRequest, auth AuthContext) (*RegisteredLayer, error) {
	ctx, span := tracer.Start(ctx, "ingest",
		trace.WithAttributes(attribute.String("file_name", art.Name)),
	)
	defer span.End()

	kind := format.Classify(art.Name)
	span.SetAttributes(attribute.String("format", kind.String()))

	switch kind {
	case format.Unknown:
		return nil, errs.Tagf(errs.ErrFormat, "unrecognized file extension: %s", art.Name)
	case format.Shapefile:
		return p.ingestShapefile(ctx, art, req, auth)
	case format.Image:
		feature, err := p.images.Collect(ctx, req.ImageLayerID, art.Name, art.Body)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		return &RegisteredLayer{Feature: feature}, nil
	default:
		return p.ingestDocument(ctx, kind, art, req, auth)
	}
}

// authorize admits users holding any of the super, admin, or GIS roles.
// Consulted before any file I/O; a denial has no side effects.
func (p *Pipeline) authorize(ctx context.Context, auth AuthContext) error {
	for _, role := range []int{catalog.RoleSuper, catalog.RoleAdmin, catalog.RoleGIS} {
		ok, err := p.catalog.IsUserRole(ctx, auth.Username, role)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
	return errs.Tagf(errs.ErrAuthorization, "user %s lacks upload permission", auth.Username)
}

// announce publishes exactly one event per placement row.
func (p *Pipeline) announce(ctx context.Context, workspaceID int, reg *catalog.Registration) {
	if reg.Folder != nil {
		p.notifier.NewLayer(ctx, workspaceID, reg.Folder)
		return
	}
	for i := range reg.Collabrooms {
		p.notifier.NewCollabroomLayer(ctx, &reg.Collabrooms[i])
	}
}

func writeStream(path string, src io.Reader) error {
	f, err := os.Create(path)
	if err != nil {
		return errs.Tagf(errs.ErrIO, "create %s: %w", path, err)
	}
	_, err = io.Copy(f, src)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return errs.Tagf(errs.ErrIO, "write %s: %w", path, err)
	}
	return nil
}
