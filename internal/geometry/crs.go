package geometry

import (
	"strconv"
	"strings"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/proj"
	"github.com/rotisserie/eris"
)

// Well-known definitions for the EPSG codes the tool is normally run with.
const (
	WebMercatorProj4 = "+proj=merc +a=6378137 +b=6378137 +lat_ts=0.0 +lon_0=0.0 +x_0=0.0 +y_0=0 +k=1.0 +units=m +nadgrids=@null +no_defs"
	WGS84Proj4       = "+proj=longlat +datum=WGS84 +no_defs"

	webMercatorWKT = `PROJCS["WGS 84 / Pseudo-Mercator",GEOGCS["WGS 84",DATUM["WGS_1984",SPHEROID["WGS 84",6378137,298.257223563]],PRIMEM["Greenwich",0],UNIT["degree",0.0174532925199433]],PROJECTION["Mercator_1SP"],PARAMETER["central_meridian",0],PARAMETER["scale_factor",1],PARAMETER["false_easting",0],PARAMETER["false_northing",0],UNIT["metre",1]]`
	wgs84WKT       = `GEOGCS["WGS 84",DATUM["WGS_1984",SPHEROID["WGS 84",6378137,298.257223563]],PRIMEM["Greenwich",0],UNIT["degree",0.0174532925199433]]`
)

type knownCRS struct {
	proj4 string
	wkt   string
	name  string
}

var knownCRSs = map[int]knownCRS{
	3857:   {proj4: WebMercatorProj4, wkt: webMercatorWKT, name: "WGS 84 / Pseudo-Mercator"},
	900913: {proj4: WebMercatorProj4, wkt: webMercatorWKT, name: "WGS 84 / Pseudo-Mercator"},
	4326:   {proj4: WGS84Proj4, wkt: wgs84WKT, name: "WGS 84"},
}

// CRS identifies a coordinate reference system by EPSG code, PROJ.4 string
// or WKT.
type CRS struct {
	// Def is the definition as configured (e.g. "EPSG:3857").
	Def string
	// SRID is the EPSG code, or 0 when the definition has none.
	SRID int
}

// WGS84 is longitude/latitude on the WGS 84 datum.
var WGS84 = CRS{Def: "EPSG:4326", SRID: 4326}

// ParseCRS accepts "EPSG:<code>", a PROJ.4 string or WKT. Unknown EPSG codes
// are rejected since they cannot be resolved without a projection database.
func ParseCRS(def string) (CRS, error) {
	def = strings.TrimSpace(def)
	if def == "" {
		return CRS{}, eris.New("geometry: empty CRS definition")
	}

	upper := strings.ToUpper(def)
	if code, ok := strings.CutPrefix(upper, "EPSG:"); ok {
		srid, err := strconv.Atoi(code)
		if err != nil {
			return CRS{}, eris.Wrapf(err, "geometry: parse EPSG code %q", def)
		}
		if _, ok := knownCRSs[srid]; !ok {
			return CRS{}, eris.Errorf("geometry: unsupported EPSG code %d; use a PROJ.4 or WKT definition", srid)
		}
		return CRS{Def: def, SRID: srid}, nil
	}

	c := CRS{Def: def}
	if _, err := c.SR(); err != nil {
		return CRS{}, err
	}
	return c, nil
}

// IsZero reports whether no CRS is set.
func (c CRS) IsZero() bool { return c.Def == "" }

// SR parses the definition for use with proj transforms.
func (c CRS) SR() (*proj.SR, error) {
	def := c.Def
	if k, ok := knownCRSs[c.SRID]; ok {
		def = k.proj4
	}
	sr, err := proj.Parse(def)
	if err != nil {
		return nil, eris.Wrapf(err, "geometry: parse CRS %q", c.Def)
	}
	return sr, nil
}

// WKT returns a WKT definition when one is known, for .prj files and
// GeoPackage srs rows.
func (c CRS) WKT() string {
	if k, ok := knownCRSs[c.SRID]; ok {
		return k.wkt
	}
	if isWKT(c.Def) {
		return c.Def
	}
	return ""
}

// Name returns a display name for the CRS.
func (c CRS) Name() string {
	if k, ok := knownCRSs[c.SRID]; ok {
		return k.name
	}
	return c.Def
}

func isWKT(def string) bool {
	d := strings.ToUpper(strings.TrimSpace(def))
	return strings.HasPrefix(d, "PROJCS[") || strings.HasPrefix(d, "GEOGCS[")
}

// CRSFromWKT builds a CRS from WKT read from a .prj file or GeoPackage,
// mapping well-known definitions back to their EPSG code.
func CRSFromWKT(wkt string, srid int) CRS {
	if _, ok := knownCRSs[srid]; ok {
		return CRS{Def: "EPSG:" + strconv.Itoa(srid), SRID: srid}
	}
	w := strings.TrimSpace(wkt)
	for code, k := range knownCRSs {
		if strings.EqualFold(w, k.wkt) {
			return CRS{Def: "EPSG:" + strconv.Itoa(code), SRID: code}
		}
	}
	return CRS{Def: w, SRID: srid}
}

// Reprojector transforms geometries between two coordinate systems.
// A nil Reprojector is the identity.
type Reprojector struct {
	trans proj.Transformer
}

// NewReprojector returns a Reprojector from src to dst, or nil when either
// side is unset or both name the same system.
func NewReprojector(src, dst CRS) (*Reprojector, error) {
	if src.IsZero() || dst.IsZero() {
		return nil, nil
	}
	if src.Def == dst.Def || (src.SRID != 0 && src.SRID == dst.SRID) {
		return nil, nil
	}

	srcSR, err := src.SR()
	if err != nil {
		return nil, err
	}
	dstSR, err := dst.SR()
	if err != nil {
		return nil, err
	}
	trans, err := srcSR.NewTransform(dstSR)
	if err != nil {
		return nil, eris.Wrapf(err, "geometry: transform %s to %s", src.Def, dst.Def)
	}
	return &Reprojector{trans: trans}, nil
}

// Apply transforms g. Nil geometries pass through.
func (r *Reprojector) Apply(g geom.Geom) (geom.Geom, error) {
	if r == nil || g == nil {
		return g, nil
	}
	out, err := g.Transform(r.trans)
	if err != nil {
		return nil, eris.Wrap(err, "geometry: reproject")
	}
	return out, nil
}
