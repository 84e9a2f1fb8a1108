package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/incidentops/geolayers/internal/errs"
	"github.com/incidentops/geolayers/internal/models"
)

var tracer = otel.Tracer("geolayers-catalog")

// MySQLCatalog implements the catalog against MySQL with tracing
type MySQLCatalog struct {
	db *sql.DB
}

// NewMySQLCatalog initializes a new catalog client
func NewMySQLCatalog(dsn string) (*MySQLCatalog, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	return &MySQLCatalog{db: db}, nil
}

// NewWithDB wraps an existing database handle; used by tests.
func NewWithDB(db *sql.DB) *MySQLCatalog {
	return &MySQLCatalog{db: db}
}

// Close closes the database connection
func (c *MySQLCatalog) Close() error {
	return c.db.Close()
}

// DB exposes the underlying handle for collaborators sharing the same
// database, such as the feature store.
func (c *MySQLCatalog) DB() *sql.DB {
	return c.db
}

// EnsureDatasource returns the id of the datasource registered for
// internalURL, creating it if absent. The insert is race-free: two callers
// creating the same URL concurrently converge on one row.
func (c *MySQLCatalog) EnsureDatasource(ctx context.Context, internalURL, typeName, displayName string) (string, error) {
	ctx, span := tracer.Start(ctx, "catalog.ensure_datasource",
		trace.WithAttributes(
			attribute.String("internal_url", internalURL),
			attribute.String("type", typeName),
		),
	)
	defer span.End()

	var id string
	err := c.db.QueryRowContext(ctx,
		`SELECT datasourceid FROM datasources WHERE internalurl = ?`, internalURL).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		span.RecordError(err)
		return "", errs.Tagf(errs.ErrCatalog, "lookup datasource: %w", err)
	}

	var typeID int
	err = c.db.QueryRowContext(ctx,
		`SELECT datasourcetypeid FROM datasource_types WHERE typename = ?`, typeName).Scan(&typeID)
	if err != nil {
		span.RecordError(err)
		return "", errs.Tagf(errs.ErrCatalog, "no datasource type %q: %w", typeName, err)
	}

	id = uuid.New().String()
	_, err = c.db.ExecContext(ctx,
		`INSERT IGNORE INTO datasources (datasourceid, datasourcetypeid, displayname, internalurl)
		 VALUES (?, ?, ?, ?)`,
		id, typeID, displayName, internalURL)
	if err != nil {
		span.RecordError(err)
		return "", errs.Tagf(errs.ErrCatalog, "insert datasource: %w", err)
	}

	// Re-read so a concurrent creator's row wins over our candidate id.
	err = c.db.QueryRowContext(ctx,
		`SELECT datasourceid FROM datasources WHERE internalurl = ?`, internalURL).Scan(&id)
	if err != nil {
		span.RecordError(err)
		return "", errs.Tagf(errs.ErrCatalog, "reread datasource: %w", err)
	}
	return id, nil
}

// RegisterLayer persists a datalayer, its source, its organization links,
// and its placement as one transaction. Either every row is inserted or none
// is, so readers never observe a layer without a placement.
func (c *MySQLCatalog) RegisterLayer(ctx context.Context, layer *models.Datalayer, p Placement) (*Registration, error) {
	ctx, span := tracer.Start(ctx, "catalog.register_layer",
		trace.WithAttributes(
			attribute.String("display_name", layer.DisplayName),
			attribute.Bool("collabroom_placement", p.Rooms()),
		),
	)
	defer span.End()

	now := time.Now()
	if layer.ID == "" {
		layer.ID = uuid.New().String()
	}
	if layer.Source.ID == "" {
		layer.Source.ID = uuid.New().String()
	}
	if layer.Created.IsZero() {
		layer.Created = now
	}
	if layer.Source.Created.IsZero() {
		layer.Source.Created = now
	}
	span.SetAttributes(attribute.String("datalayer_id", layer.ID))

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		span.RecordError(err)
		return nil, errs.Tagf(errs.ErrCatalog, "begin registration: %w", err)
	}

	reg, err := registerLayerTx(ctx, tx, layer, p)
	if err != nil {
		tx.Rollback()
		span.RecordError(err)
		return nil, errs.Tag(errs.ErrCatalog, err)
	}
	if err := tx.Commit(); err != nil {
		span.RecordError(err)
		return nil, errs.Tagf(errs.ErrCatalog, "commit registration: %w", err)
	}

	span.SetAttributes(attribute.Bool("insert_success", true))
	return reg, nil
}

func registerLayerTx(ctx context.Context, tx *sql.Tx, layer *models.Datalayer, p Placement) (*Registration, error) {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO datalayer_sources (datalayersourceid, datasourceid, layername, refreshrate, created)
		 VALUES (?, ?, ?, ?, ?)`,
		layer.Source.ID, layer.Source.DatasourceID, layer.Source.LayerName, layer.Source.RefreshRate, layer.Source.Created)
	if err != nil {
		return nil, fmt.Errorf("insert datalayer source: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO datalayers (datalayerid, datalayersourceid, displayname, baselayer, usersessionid, created)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		layer.ID, layer.Source.ID, layer.DisplayName, layer.Baselayer, layer.UserSessionID, layer.Created)
	if err != nil {
		return nil, fmt.Errorf("insert datalayer: %w", err)
	}

	for _, orgID := range p.OrgIDs {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO datalayer_orgs (datalayerid, orgid) VALUES (?, ?)`, layer.ID, orgID)
		if err != nil {
			return nil, fmt.Errorf("insert datalayer org %d: %w", orgID, err)
		}
	}

	if p.Rooms() {
		rooms := make([]models.DatalayerCollabroom, 0, len(p.Collabrooms))
		for _, roomID := range p.Collabrooms {
			res, err := tx.ExecContext(ctx,
				`INSERT INTO collabroom_datalayers (collabroomid, datalayerid, userid) VALUES (?, ?, ?)`,
				roomID, layer.ID, p.UserID)
			if err != nil {
				return nil, fmt.Errorf("insert collabroom datalayer %d: %w", roomID, err)
			}
			id, _ := res.LastInsertId()
			rooms = append(rooms, models.DatalayerCollabroom{
				ID:           id,
				CollabroomID: roomID,
				DatalayerID:  layer.ID,
				UserID:       p.UserID,
			})
		}
		return &Registration{Layer: layer, Collabrooms: rooms}, nil
	}

	var folderID string
	err = tx.QueryRowContext(ctx,
		`SELECT folderid FROM folders WHERE foldername = ? AND workspaceid = ?`,
		p.FolderName, p.WorkspaceID).Scan(&folderID)
	if err != nil {
		return nil, fmt.Errorf("lookup folder %q: %w", p.FolderName, err)
	}

	// The locking read serializes index allocation per folder; concurrent
	// registrations block here instead of racing the max to the same value.
	var next int
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(folderindex) + 1, 0) FROM datalayer_folders WHERE folderid = ? FOR UPDATE`,
		folderID).Scan(&next)
	if err != nil {
		return nil, fmt.Errorf("allocate folder index: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO datalayer_folders (folderid, datalayerid, folderindex) VALUES (?, ?, ?)`,
		folderID, layer.ID, next)
	if err != nil {
		return nil, fmt.Errorf("insert datalayer folder: %w", err)
	}
	id, _ := res.LastInsertId()

	return &Registration{
		Layer: layer,
		Folder: &models.DatalayerFolder{
			ID:          id,
			FolderID:    folderID,
			DatalayerID: layer.ID,
			Index:       next,
		},
	}, nil
}

// InsertCollabroomDatalayer links an existing datalayer into a collabroom.
func (c *MySQLCatalog) InsertCollabroomDatalayer(ctx context.Context, collabroomID int, datalayerID string, userID int) (*models.DatalayerCollabroom, error) {
	ctx, span := tracer.Start(ctx, "catalog.insert_collabroom_datalayer",
		trace.WithAttributes(
			attribute.Int("collabroom_id", collabroomID),
			attribute.String("datalayer_id", datalayerID),
		),
	)
	defer span.End()

	res, err := c.db.ExecContext(ctx,
		`INSERT INTO collabroom_datalayers (collabroomid, datalayerid, userid) VALUES (?, ?, ?)`,
		collabroomID, datalayerID, userID)
	if err != nil {
		span.RecordError(err)
		return nil, errs.Tagf(errs.ErrCatalog, "insert collabroom datalayer: %w", err)
	}
	id, _ := res.LastInsertId()
	return &models.DatalayerCollabroom{
		ID:           id,
		CollabroomID: collabroomID,
		DatalayerID:  datalayerID,
		UserID:       userID,
	}, nil
}

// DeleteCollabroomDatalayers removes collabroom placements.
func (c *MySQLCatalog) DeleteCollabroomDatalayers(ctx context.Context, rooms []models.DatalayerCollabroom) error {
	ctx, span := tracer.Start(ctx, "catalog.delete_collabroom_datalayers")
	defer span.End()

	for _, room := range rooms {
		_, err := c.db.ExecContext(ctx,
			`DELETE FROM collabroom_datalayers WHERE collabroomid = ? AND datalayerid = ?`,
			room.CollabroomID, room.DatalayerID)
		if err != nil {
			span.RecordError(err)
			return errs.Tagf(errs.ErrCatalog, "delete collabroom datalayer: %w", err)
		}
	}
	return nil
}

// RemoveDatalayer deletes a datalayer together with its source, org links,
// and placements.
func (c *MySQLCatalog) RemoveDatalayer(ctx context.Context, datalayerID string) error {
	ctx, span := tracer.Start(ctx, "catalog.remove_datalayer",
		trace.WithAttributes(attribute.String("datalayer_id", datalayerID)),
	)
	defer span.End()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.Tagf(errs.ErrCatalog, "begin removal: %w", err)
	}

	stmts := []string{
		`DELETE FROM datalayer_folders WHERE datalayerid = ?`,
		`DELETE FROM collabroom_datalayers WHERE datalayerid = ?`,
		`DELETE FROM datalayer_orgs WHERE datalayerid = ?`,
		`DELETE FROM datalayer_sources WHERE datalayersourceid =
			(SELECT datalayersourceid FROM datalayers WHERE datalayerid = ?)`,
		`DELETE FROM datalayers WHERE datalayerid = ?`,
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt, datalayerID); err != nil {
			tx.Rollback()
			span.RecordError(err)
			return errs.Tagf(errs.ErrCatalog, "remove datalayer: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return errs.Tagf(errs.ErrCatalog, "commit removal: %w", err)
	}
	return nil
}

// UpdateDatalayer updates the mutable display fields of a datalayer.
func (c *MySQLCatalog) UpdateDatalayer(ctx context.Context, layer *models.Datalayer) (*models.Datalayer, error) {
	ctx, span := tracer.Start(ctx, "catalog.update_datalayer",
		trace.WithAttributes(attribute.String("datalayer_id", layer.ID)),
	)
	defer span.End()

	res, err := c.db.ExecContext(ctx,
		`UPDATE datalayers SET displayname = ?, baselayer = ? WHERE datalayerid = ?`,
		layer.DisplayName, layer.Baselayer, layer.ID)
	if err != nil {
		span.RecordError(err)
		return nil, errs.Tagf(errs.ErrCatalog, "update datalayer: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, errs.Tagf(errs.ErrCatalog, "datalayer not found: %s", layer.ID)
	}
	return layer, nil
}

// InsertDocument records an uploaded artifact's catalog entry.
func (c *MySQLCatalog) InsertDocument(ctx context.Context, doc *models.Document) error {
	ctx, span := tracer.Start(ctx, "catalog.insert_document")
	defer span.End()

	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO documents (documentid, displayname, filename, filetype, usersessionid, created)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.DisplayName, doc.Filename, doc.Filetype, doc.UserSessionID, doc.Created)
	if err != nil {
		span.RecordError(err)
		return errs.Tagf(errs.ErrCatalog, "insert document: %w", err)
	}
	return nil
}

// InsertImageFeature persists one geotagged image under an image layer id.
func (c *MySQLCatalog) InsertImageFeature(ctx context.Context, layerID, location, filename string) error {
	ctx, span := tracer.Start(ctx, "catalog.insert_image_feature",
		trace.WithAttributes(
			attribute.String("layer_id", layerID),
			attribute.String("location", location),
		),
	)
	defer span.End()

	_, err := c.db.ExecContext(ctx,
		`INSERT INTO image_features (imageid, location, filename) VALUES (?, ?, ?)`,
		layerID, location, filename)
	if err != nil {
		span.RecordError(err)
		return errs.Tagf(errs.ErrCatalog, "insert image feature: %w", err)
	}
	return nil
}

// RemoveImageFeatures deletes every image feature for a layer id, returning
// the number of rows removed.
func (c *MySQLCatalog) RemoveImageFeatures(ctx context.Context, layerID string) (int64, error) {
	ctx, span := tracer.Start(ctx, "catalog.remove_image_features",
		trace.WithAttributes(attribute.String("layer_id", layerID)),
	)
	defer span.End()

	res, err := c.db.ExecContext(ctx,
		`DELETE FROM image_features WHERE imageid = ?`, layerID)
	if err != nil {
		span.RecordError(err)
		return 0, errs.Tagf(errs.ErrCatalog, "remove image features: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// IsUserRole reports whether the user holds the given system role in any of
// their organizations.
func (c *MySQLCatalog) IsUserRole(ctx context.Context, username string, roleID int) (bool, error) {
	var n int
	err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM user_orgs uo
		 JOIN users u ON u.userid = uo.userid
		 WHERE u.username = ? AND uo.systemroleid = ?`,
		username, roleID).Scan(&n)
	if err != nil {
		return false, errs.Tagf(errs.ErrCatalog, "role lookup: %w", err)
	}
	return n > 0, nil
}

// GetUserSessionID returns the current session id for a user.
func (c *MySQLCatalog) GetUserSessionID(ctx context.Context, username string) (int, error) {
	var id int
	err := c.db.QueryRowContext(ctx,
		`SELECT us.usersessionid FROM user_sessions us
		 JOIN users u ON u.userid = us.userid
		 WHERE u.username = ?
		 ORDER BY us.created DESC LIMIT 1`,
		username).Scan(&id)
	if err != nil {
		return 0, errs.Tagf(errs.ErrCatalog, "session lookup for %s: %w", username, err)
	}
	return id, nil
}

// GetUserID resolves a username to its user id.
func (c *MySQLCatalog) GetUserID(ctx context.Context, username string) (int, error) {
	var id int
	err := c.db.QueryRowContext(ctx,
		`SELECT userid FROM users WHERE username = ?`, username).Scan(&id)
	if err != nil {
		return 0, errs.Tagf(errs.ErrCatalog, "user lookup for %s: %w", username, err)
	}
	return id, nil
}
