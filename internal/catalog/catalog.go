// Package catalog persists datalayers, their sources, and their placements.
package catalog

import "github.com/incidentops/geolayers/internal/models"

// System role ids consulted before shapefile and document uploads.
const (
	RoleGIS   = 2
	RoleAdmin = 4
	RoleSuper = 5
)

// Placement directs a new layer into either a named folder within a
// workspace or one or more collaboration rooms. A layer is always placed in
// exactly one of the two.
type Placement struct {
	FolderName  string
	WorkspaceID int
	Collabrooms []int
	UserID      int
	OrgIDs      []int
}

// Rooms reports whether the placement targets collabrooms rather than a
// folder.
func (p Placement) Rooms() bool { return len(p.Collabrooms) > 0 }

// Registration is the fully hydrated result of a successful layer
// registration, used for notification payloads and API responses.
type Registration struct {
	Layer       *models.Datalayer
	Folder      *models.DatalayerFolder
	Collabrooms []models.DatalayerCollabroom
}
