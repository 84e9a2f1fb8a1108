package models

import "time"

// Datasource identifies a backing endpoint that layers reference: a map
// server, or the web tier directory a file format is served from.
type Datasource struct {
	ID          string `json:"datasourceid"`
	TypeID      int    `json:"datasourcetypeid"`
	DisplayName string `json:"displayname,omitempty"`
	InternalURL string `json:"internalurl"`
}

// DatalayerSource describes where a layer's content physically lives.
// Exactly one exists per Datalayer.
type DatalayerSource struct {
	ID           string    `json:"datalayersourceid"`
	DatasourceID string    `json:"datasourceid"`
	LayerName    string    `json:"layername"`
	RefreshRate  int       `json:"refreshrate,omitempty"`
	Created      time.Time `json:"created"`
}

// Datalayer is a catalog entry for a displayable map layer.
type Datalayer struct {
	ID            string          `json:"datalayerid"`
	DisplayName   string          `json:"displayname"`
	Baselayer     bool            `json:"baselayer"`
	UserSessionID int             `json:"usersessionid"`
	Created       time.Time       `json:"created"`
	Source        DatalayerSource `json:"datalayersource"`
}

// Folder is a named container for layers within a workspace.
type Folder struct {
	ID          string `json:"folderid"`
	Name        string `json:"foldername"`
	WorkspaceID int    `json:"workspaceid"`
}

// DatalayerFolder places a datalayer at an ordered position within a folder.
// The index is unique within its folder at allocation time.
type DatalayerFolder struct {
	ID          int64  `json:"datalayerfolderid"`
	FolderID    string `json:"folderid"`
	DatalayerID string `json:"datalayerid"`
	Index       int    `json:"folderindex"`
}

// DatalayerCollabroom places a datalayer directly in a collaboration room.
type DatalayerCollabroom struct {
	ID           int64  `json:"collabroomdatalayerid"`
	CollabroomID int    `json:"collabroomid"`
	DatalayerID  string `json:"datalayerid"`
	UserID       int    `json:"userid"`
}

// ImageFeature is a single geotagged image belonging to an image layer.
// Location holds a point geometry string of the form POINT(lon lat).
type ImageFeature struct {
	LayerID  string `json:"imageid"`
	Location string `json:"location"`
	Filename string `json:"filename"`
}

// Document records an uploaded artifact's identity alongside the stored
// content-addressed file name.
type Document struct {
	ID            string    `json:"documentid"`
	DisplayName   string    `json:"displayname"`
	Filename      string    `json:"filename"`
	Filetype      string    `json:"filetype"`
	UserSessionID int       `json:"usersessionid"`
	Created       time.Time `json:"created"`
}
