package catalog

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/incidentops/geolayers/internal/errs"
	"github.com/incidentops/geolayers/internal/models"
)

func newMockCatalog(t *testing.T) (*MySQLCatalog, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewWithDB(db), mock
}

func TestEnsureDatasourceExisting(t *testing.T) {
	cat, mock := newMockCatalog(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT datasourceid FROM datasources WHERE internalurl = ?`)).
		WithArgs("http://maps.example.com/wms").
		WillReturnRows(sqlmock.NewRows([]string{"datasourceid"}).AddRow("ds-1"))

	id, err := cat.EnsureDatasource(context.Background(), "http://maps.example.com/wms", "wms", "WMS Server")
	require.NoError(t, err)
	assert.Equal(t, "ds-1", id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureDatasourceCreates(t *testing.T) {
	cat, mock := newMockCatalog(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT datasourceid FROM datasources WHERE internalurl = ?`)).
		WithArgs("http://web.example.com/upload/kml/").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT datasourcetypeid FROM datasource_types WHERE typename = ?`)).
		WithArgs("kml").
		WillReturnRows(sqlmock.NewRows([]string{"datasourcetypeid"}).AddRow(3))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT IGNORE INTO datasources`)).
		WithArgs(sqlmock.AnyArg(), 3, "", "http://web.example.com/upload/kml/").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT datasourceid FROM datasources WHERE internalurl = ?`)).
		WithArgs("http://web.example.com/upload/kml/").
		WillReturnRows(sqlmock.NewRows([]string{"datasourceid"}).AddRow("ds-new"))

	id, err := cat.EnsureDatasource(context.Background(), "http://web.example.com/upload/kml/", "kml", "")
	require.NoError(t, err)
	assert.Equal(t, "ds-new", id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegisterLayerFolderPlacement(t *testing.T) {
	cat, mock := newMockCatalog(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO datalayer_sources`)).
		WithArgs(sqlmock.AnyArg(), "ds-1", "abc123.kml", 30, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO datalayers`)).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "Fire Perimeter", false, 17, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO datalayer_orgs`)).
		WithArgs(sqlmock.AnyArg(), 5).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT folderid FROM folders WHERE foldername = ? AND workspaceid = ?`)).
		WithArgs("Upload", 1).
		WillReturnRows(sqlmock.NewRows([]string{"folderid"}).AddRow("folder-1"))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COALESCE(MAX(folderindex) + 1, 0) FROM datalayer_folders WHERE folderid = ? FOR UPDATE`)).
		WithArgs("folder-1").
		WillReturnRows(sqlmock.NewRows([]string{"next"}).AddRow(4))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO datalayer_folders`)).
		WithArgs("folder-1", sqlmock.AnyArg(), 4).
		WillReturnResult(sqlmock.NewResult(11, 1))
	mock.ExpectCommit()

	layer := &models.Datalayer{
		DisplayName:   "Fire Perimeter",
		UserSessionID: 17,
		Source:        models.DatalayerSource{DatasourceID: "ds-1", LayerName: "abc123.kml", RefreshRate: 30},
	}
	reg, err := cat.RegisterLayer(context.Background(), layer, Placement{
		FolderName:  "Upload",
		WorkspaceID: 1,
		OrgIDs:      []int{5},
	})
	require.NoError(t, err)
	require.NotNil(t, reg.Folder)
	assert.NotEmpty(t, layer.ID)
	assert.NotEmpty(t, layer.Source.ID)
	assert.Equal(t, int64(11), reg.Folder.ID)
	assert.Equal(t, "folder-1", reg.Folder.FolderID)
	assert.Equal(t, 4, reg.Folder.Index)
	assert.Equal(t, layer.ID, reg.Folder.DatalayerID)
	assert.Empty(t, reg.Collabrooms)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegisterLayerCollabroomPlacement(t *testing.T) {
	cat, mock := newMockCatalog(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO datalayer_sources`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO datalayers`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO collabroom_datalayers`)).
		WithArgs(42, sqlmock.AnyArg(), 9).
		WillReturnResult(sqlmock.NewResult(7, 1))
	mock.ExpectCommit()

	layer := &models.Datalayer{
		DisplayName: "Room Overlay",
		Source:      models.DatalayerSource{DatasourceID: "ds-1", LayerName: "abc.kml"},
	}
	reg, err := cat.RegisterLayer(context.Background(), layer, Placement{
		Collabrooms: []int{42},
		UserID:      9,
	})
	require.NoError(t, err)
	assert.Nil(t, reg.Folder)
	require.Len(t, reg.Collabrooms, 1)
	assert.Equal(t, int64(7), reg.Collabrooms[0].ID)
	assert.Equal(t, 42, reg.Collabrooms[0].CollabroomID)
	assert.Equal(t, 9, reg.Collabrooms[0].UserID)
	assert.Equal(t, layer.ID, reg.Collabrooms[0].DatalayerID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegisterLayerRollsBackOnMissingFolder(t *testing.T) {
	cat, mock := newMockCatalog(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO datalayer_sources`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO datalayers`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT folderid FROM folders`)).
		WithArgs("Upload", 1).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	layer := &models.Datalayer{
		DisplayName: "Orphan",
		Source:      models.DatalayerSource{DatasourceID: "ds-1", LayerName: "x.kml"},
	}
	_, err := cat.RegisterLayer(context.Background(), layer, Placement{FolderName: "Upload", WorkspaceID: 1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrCatalog))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateDatalayer(t *testing.T) {
	cat, mock := newMockCatalog(t)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE datalayers SET displayname = ?, baselayer = ? WHERE datalayerid = ?`)).
		WithArgs("Renamed", true, "layer-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	updated, err := cat.UpdateDatalayer(context.Background(), &models.Datalayer{
		ID: "layer-1", DisplayName: "Renamed", Baselayer: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.DisplayName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateDatalayerNotFound(t *testing.T) {
	cat, mock := newMockCatalog(t)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE datalayers`)).
		WithArgs("Renamed", false, "missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := cat.UpdateDatalayer(context.Background(), &models.Datalayer{ID: "missing", DisplayName: "Renamed"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrCatalog))
}

func TestRemoveDatalayer(t *testing.T) {
	cat, mock := newMockCatalog(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM datalayer_folders WHERE datalayerid = ?`)).
		WithArgs("layer-1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM collabroom_datalayers WHERE datalayerid = ?`)).
		WithArgs("layer-1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM datalayer_orgs WHERE datalayerid = ?`)).
		WithArgs("layer-1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM datalayer_sources`)).
		WithArgs("layer-1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM datalayers WHERE datalayerid = ?`)).
		WithArgs("layer-1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, cat.RemoveDatalayer(context.Background(), "layer-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertCollabroomDatalayer(t *testing.T) {
	cat, mock := newMockCatalog(t)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO collabroom_datalayers`)).
		WithArgs(3, "layer-1", 12).
		WillReturnResult(sqlmock.NewResult(21, 1))

	dc, err := cat.InsertCollabroomDatalayer(context.Background(), 3, "layer-1", 12)
	require.NoError(t, err)
	assert.Equal(t, int64(21), dc.ID)
	assert.Equal(t, 3, dc.CollabroomID)
}

func TestRemoveImageFeatures(t *testing.T) {
	cat, mock := newMockCatalog(t)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM image_features WHERE imageid = ?`)).
		WithArgs("img-layer").
		WillReturnResult(sqlmock.NewResult(0, 6))

	n, err := cat.RemoveImageFeatures(context.Background(), "img-layer")
	require.NoError(t, err)
	assert.Equal(t, int64(6), n)
}

func TestIsUserRole(t *testing.T) {
	cat, mock := newMockCatalog(t)

	mock.ExpectQuery(`SELECT COUNT`).
		WithArgs("gis.analyst", RoleGIS).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(`SELECT COUNT`).
		WithArgs("visitor", RoleGIS).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	ok, err := cat.IsUserRole(context.Background(), "gis.analyst", RoleGIS)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = cat.IsUserRole(context.Background(), "visitor", RoleGIS)
	require.NoError(t, err)
	assert.False(t, ok)
}
