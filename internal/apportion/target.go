package apportion

import (
	"strconv"

	"github.com/ctessum/geom"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/tract-apportion/internal/layer"
)

// Target is a region of interest, typically a service-area circle.
type Target struct {
	ID       string
	Name     string
	Geometry geom.Polygonal
}

// TargetsFromLayer reads targets from a polygon layer. idField and nameField
// name the attributes holding the identifier and display name; an empty
// idField uses the feature id. Features without polygon area are skipped.
func TargetsFromLayer(l *layer.Layer, idField, nameField string) ([]Target, error) {
	idIdx, nameIdx := -1, -1
	if idField != "" {
		i, ok := l.Schema.Index(idField)
		if !ok {
			return nil, eris.Wrapf(ErrUnknownField, "apportion: target id field %q in layer %q", idField, l.Name)
		}
		idIdx = i
	}
	if nameField != "" {
		i, ok := l.Schema.Index(nameField)
		if !ok {
			return nil, eris.Wrapf(ErrUnknownField, "apportion: target name field %q in layer %q", nameField, l.Name)
		}
		nameIdx = i
	}

	targets := make([]Target, 0, l.Len())
	skipped := 0
	for _, f := range l.Features {
		poly, ok := f.Geometry.(geom.Polygonal)
		if !ok || poly.Area() == 0 {
			skipped++
			continue
		}

		t := Target{ID: strconv.FormatInt(f.ID, 10), Geometry: poly}
		if idIdx >= 0 {
			if id := formatValue(valueAt(f, idIdx)); id != "" {
				t.ID = id
			}
		}
		if nameIdx >= 0 {
			t.Name = formatValue(valueAt(f, nameIdx))
		}
		targets = append(targets, t)
	}

	if skipped > 0 {
		zap.L().Warn("apportion: target features without polygon area skipped",
			zap.String("layer", l.Name),
			zap.Int("skipped", skipped),
		)
	}
	return targets, nil
}

func valueAt(f *layer.Feature, i int) any {
	if i < 0 || i >= len(f.Values) {
		return nil
	}
	return f.Values[i]
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return ""
	}
}
