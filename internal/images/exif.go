package images

import (
	"fmt"
	"os"

	"github.com/rwcarlsen/goexif/exif"
)

// Locator extracts a point location from an image file.
type Locator interface {
	Location(path string) (lon, lat float64, err error)
}

// ExifLocator reads embedded EXIF GPS metadata.
type ExifLocator struct{}

func (ExifLocator) Location(path string) (float64, float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	meta, err := exif.Decode(f)
	if err != nil {
		return 0, 0, fmt.Errorf("decode exif: %w", err)
	}
	lat, lon, err := meta.LatLong()
	if err != nil {
		return 0, 0, fmt.Errorf("no gps metadata: %w", err)
	}
	return lon, lat, nil
}
