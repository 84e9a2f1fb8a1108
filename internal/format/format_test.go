package format

import "testing"

func TestClassify(t *testing.T) {
	cases := []struct {
		filename string
		want     Kind
	}{
		{"perimeter.shp", Shapefile},
		{"Perimeter.SHP", Shapefile},
		{"overlay.kmz", KMZ},
		{"track.kml", KML},
		{"hike.gpx", GPX},
		{"regions.geojson", GeoJSON},
		{"regions.json", GeoJSON},
		{"photo.jpg", Image},
		{"photo.JPEG", Image},
		{"scan.tiff", Image},
		{"icon.png", Image},
		{"notes.txt", Unknown},
		{"noextension", Unknown},
		{"", Unknown},
	}
	for _, tc := range cases {
		if got := Classify(tc.filename); got != tc.want {
			t.Errorf("Classify(%q) = %v, want %v", tc.filename, got, tc.want)
		}
	}
}

func TestSubdir(t *testing.T) {
	cases := []struct {
		kind Kind
		want string
	}{
		{Shapefile, "shapefiles"},
		{Image, "images"},
		{KML, "kml"},
		{KMZ, "kmz"},
		{GPX, "gpx"},
		{GeoJSON, "geojson"},
	}
	for _, tc := range cases {
		if got := tc.kind.Subdir(); got != tc.want {
			t.Errorf("%v.Subdir() = %q, want %q", tc.kind, got, tc.want)
		}
	}
}

func TestExt(t *testing.T) {
	if got := Ext("Overlay.KML"); got != "kml" {
		t.Errorf("Ext(Overlay.KML) = %q, want kml", got)
	}
	if got := Ext("archive.tar.gz"); got != "gz" {
		t.Errorf("Ext(archive.tar.gz) = %q, want gz", got)
	}
	if got := Ext("none"); got != "" {
		t.Errorf("Ext(none) = %q, want empty", got)
	}
}
