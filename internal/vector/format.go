// Package vector reads and writes layers as Shapefiles, GeoPackages and
// GeoJSON documents.
package vector

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/tract-apportion/internal/layer"
)

// Format is a supported vector file format.
type Format string

// Supported formats.
const (
	FormatShapefile  Format = "shapefile"
	FormatGeoPackage Format = "gpkg"
	FormatGeoJSON    Format = "geojson"
)

// FormatOf picks the format from the file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".shp":
		return FormatShapefile, nil
	case ".gpkg":
		return FormatGeoPackage, nil
	case ".geojson", ".json":
		return FormatGeoJSON, nil
	default:
		return "", eris.Errorf("vector: unsupported file type %q (want .shp, .gpkg or .geojson)", path)
	}
}

// Source locates a layer on disk.
type Source struct {
	// Name is the layer name given to the result.
	Name string
	Path string
	// Table selects the feature table of a GeoPackage. Empty picks the
	// first feature table.
	Table string
}

// Read loads a whole layer into memory.
func Read(ctx context.Context, src Source) (*layer.Layer, error) {
	format, err := FormatOf(src.Path)
	if err != nil {
		return nil, err
	}

	var l *layer.Layer
	switch format {
	case FormatShapefile:
		l, err = readShapefile(ctx, src.Path)
	case FormatGeoPackage:
		l, err = readGeoPackage(ctx, src.Path, src.Table)
	case FormatGeoJSON:
		l, err = readGeoJSON(src.Path)
	}
	if err != nil {
		return nil, err
	}

	l.Name = src.Name
	if l.Name == "" {
		l.Name = strings.TrimSuffix(filepath.Base(src.Path), filepath.Ext(src.Path))
	}
	return l, nil
}

// WriteOptions tunes Write.
type WriteOptions struct {
	// Table names the GeoPackage feature table. Defaults to the layer name.
	Table string
	// Description is stored in gpkg_contents.
	Description string
}

// Write stores l at path, replacing any existing file.
func Write(ctx context.Context, path string, l *layer.Layer, opts WriteOptions) error {
	format, err := FormatOf(path)
	if err != nil {
		return err
	}

	switch format {
	case FormatShapefile:
		return writeShapefile(ctx, path, l)
	case FormatGeoPackage:
		return writeGeoPackage(ctx, path, l, opts)
	default:
		return writeGeoJSON(path, l)
	}
}
