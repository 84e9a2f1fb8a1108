// Package format classifies uploaded artifacts into the closed set of
// supported geospatial formats and drives per-format dispatch.
package format

import (
	"path/filepath"
	"strings"
)

// Kind is one of the supported upload formats.
type Kind int

const (
	Unknown Kind = iota
	Shapefile
	KMZ
	KML
	GPX
	GeoJSON
	Image
)

// Classify maps a file name to its format by lower-cased extension.
func Classify(filename string) Kind {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".shp":
		return Shapefile
	case ".kmz":
		return KMZ
	case ".kml":
		return KML
	case ".gpx":
		return GPX
	case ".json", ".geojson":
		return GeoJSON
	case ".jpg", ".jpeg", ".png", ".gif", ".tif", ".tiff":
		return Image
	}
	return Unknown
}

func (k Kind) String() string {
	switch k {
	case Shapefile:
		return "shapefile"
	case KMZ:
		return "kmz"
	case KML:
		return "kml"
	case GPX:
		return "gpx"
	case GeoJSON:
		return "geojson"
	case Image:
		return "image"
	}
	return "unknown"
}

// Subdir returns the upload subdirectory files of this format are stored
// under.
func (k Kind) Subdir() string {
	switch k {
	case Shapefile:
		return "shapefiles"
	case Image:
		return "images"
	default:
		return k.String()
	}
}

// Ext returns the lower-cased extension of filename without the leading dot,
// used as the datasource type for the web-served file formats.
func Ext(filename string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
}
