// Package featurestore loads shapefile batches into per-layer feature
// tables that the map server publishes.
package featurestore

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	"github.com/jonas-p/go-shp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/incidentops/geolayers/internal/errs"
)

var tracer = otel.Tracer("geolayers-featurestore")

var identPattern = regexp.MustCompile(`[^a-zA-Z0-9_]`)

// Store writes shapefile features into the feature database.
type Store struct {
	db *sql.DB
}

// New wraps an existing feature-database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// InsertFeatures creates a table named after the layer and loads every shape
// in the batch into it: one row per shape, geometry as WKT plus the
// shapefile's attribute columns. Returns the number of features inserted.
func (s *Store) InsertFeatures(ctx context.Context, layerName, shapefilePath string) (int, error) {
	ctx, span := tracer.Start(ctx, "featurestore.insert_features",
		trace.WithAttributes(attribute.String("layer_name", layerName)),
	)
	defer span.End()

	r, err := shp.Open(shapefilePath)
	if err != nil {
		span.RecordError(err)
		return 0, errs.Tagf(errs.ErrCatalog, "open shapefile: %w", err)
	}
	defer r.Close()

	table := sanitizeIdent(layerName)
	fields := r.Fields()
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = sanitizeIdent(f.String())
	}

	var ddl strings.Builder
	fmt.Fprintf(&ddl, "CREATE TABLE `%s` (fid INT AUTO_INCREMENT PRIMARY KEY, geom TEXT NOT NULL", table)
	for _, col := range cols {
		fmt.Fprintf(&ddl, ", `%s` TEXT", col)
	}
	ddl.WriteString(")")

	if _, err := s.db.ExecContext(ctx, ddl.String()); err != nil {
		span.RecordError(err)
		return 0, errs.Tagf(errs.ErrCatalog, "create feature table: %w", err)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)+1), ", ")
	insert := fmt.Sprintf("INSERT INTO `%s` (geom", table)
	for _, col := range cols {
		insert += fmt.Sprintf(", `%s`", col)
	}
	insert += ") VALUES (" + placeholders + ")"

	count := 0
	for r.Next() {
		row, shape := r.Shape()
		args := make([]any, 0, len(cols)+1)
		args = append(args, shapeWKT(shape))
		for i := range fields {
			args = append(args, r.ReadAttribute(row, i))
		}
		if _, err := s.db.ExecContext(ctx, insert, args...); err != nil {
			span.RecordError(err)
			return count, errs.Tagf(errs.ErrCatalog, "insert feature %d: %w", row, err)
		}
		count++
	}
	if err := r.Err(); err != nil {
		span.RecordError(err)
		return count, errs.Tagf(errs.ErrCatalog, "read shapefile: %w", err)
	}

	span.SetAttributes(attribute.Int("feature_count", count))
	return count, nil
}

// RemoveFeaturesTable drops a layer's feature table; used for best-effort
// rollback when a later pipeline stage fails.
func (s *Store) RemoveFeaturesTable(ctx context.Context, layerName string) error {
	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf("DROP TABLE IF EXISTS `%s`", sanitizeIdent(layerName)))
	if err != nil {
		return errs.Tagf(errs.ErrCatalog, "drop feature table: %w", err)
	}
	return nil
}

func sanitizeIdent(name string) string {
	return identPattern.ReplaceAllString(name, "_")
}

func shapeWKT(s shp.Shape) string {
	switch v := s.(type) {
	case *shp.Point:
		return fmt.Sprintf("POINT(%v %v)", v.X, v.Y)
	case *shp.PolyLine:
		return multipartWKT("MULTILINESTRING", v.NumParts, v.Parts, v.Points)
	case *shp.Polygon:
		return multipartWKT("POLYGON", v.NumParts, v.Parts, v.Points)
	default:
		box := s.BBox()
		return fmt.Sprintf("POLYGON((%v %v, %v %v, %v %v, %v %v, %v %v))",
			box.MinX, box.MinY, box.MaxX, box.MinY, box.MaxX, box.MaxY, box.MinX, box.MaxY, box.MinX, box.MinY)
	}
}

func multipartWKT(kind string, numParts int32, parts []int32, points []shp.Point) string {
	var b strings.Builder
	b.WriteString(kind)
	b.WriteString("(")
	for p := int32(0); p < numParts; p++ {
		start := parts[p]
		end := int32(len(points))
		if p+1 < numParts {
			end = parts[p+1]
		}
		if p > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for i := start; i < end; i++ {
			if i > start {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%v %v", points[i].X, points[i].Y)
		}
		b.WriteString(")")
	}
	b.WriteString(")")
	return b.String()
}
