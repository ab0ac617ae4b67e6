package domain

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/golang/geo/s2"
)

// LatLng is a WGS84 coordinate in degrees.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Ring is a closed sequence of [lng, lat] positions in GeoJSON order.
type Ring [][2]float64

// Polygon is an exterior ring followed by zero or more holes.
type Polygon []Ring

// DistrictGeometry is the immutable boundary of one district.
type DistrictGeometry struct {
	District District
	Polygons []Polygon
	Centroid LatLng

	// loops holds one s2 loop per ring, normalized to enclose the smaller
	// region, grouped by polygon.
	loops [][]*s2.Loop
}

// NewDistrictGeometry validates the rings, computes the centroid and
// prepares the point lookup.
func NewDistrictGeometry(d District, polygons []Polygon) (DistrictGeometry, error) {
	if len(polygons) == 0 {
		return DistrictGeometry{}, fmt.Errorf("geometry for %s: no polygons", d)
	}
	loops := make([][]*s2.Loop, 0, len(polygons))
	for i, poly := range polygons {
		if len(poly) == 0 {
			return DistrictGeometry{}, fmt.Errorf("geometry for %s: polygon %d has no rings", d, i)
		}
		polyLoops := make([]*s2.Loop, 0, len(poly))
		for j, ring := range poly {
			loop, err := ringLoop(ring)
			if err != nil {
				return DistrictGeometry{}, fmt.Errorf("geometry for %s: polygon %d ring %d: %w", d, i, j, err)
			}
			polyLoops = append(polyLoops, loop)
		}
		loops = append(loops, polyLoops)
	}

	return DistrictGeometry{
		District: d,
		Polygons: polygons,
		Centroid: PolygonCentroid(polygons),
		loops:    loops,
	}, nil
}

// Contains reports whether the point lies inside the district. A point is
// inside a polygon when an odd number of its rings contain it, which treats
// every ring after the first as a hole.
func (g DistrictGeometry) Contains(p LatLng) bool {
	pt := s2.PointFromLatLng(s2.LatLngFromDegrees(p.Lat, p.Lng))
	for _, poly := range g.loops {
		n := 0
		for _, l := range poly {
			if l.ContainsPoint(pt) {
				n++
			}
		}
		if n%2 == 1 {
			return true
		}
	}
	return false
}

// Locate returns the district whose boundary contains p.
func Locate(geoms []DistrictGeometry, p LatLng) (District, error) {
	for _, g := range geoms {
		if g.Contains(p) {
			return g.District, nil
		}
	}
	return 0, ErrUnknownDistrict
}

// GeoJoin pairs a district's geometry with its estimates.
type GeoJoin struct {
	Geometry   DistrictGeometry
	Prevalence float64
	Risk       float64
}

// JoinGeometry matches risk estimates to geometries on the District key.
// Districts estimated but lacking geometry are returned in noGeometry;
// geometries with no estimate are returned in noEstimate.
func JoinGeometry(geoms []DistrictGeometry, prevalence PrevalenceEstimate, risk RiskEstimate) (joined []GeoJoin, noGeometry, noEstimate []District) {
	byDistrict := make(map[District]DistrictGeometry, len(geoms))
	for _, g := range geoms {
		byDistrict[g.District] = g
		if _, ok := risk[g.District]; !ok {
			noEstimate = append(noEstimate, g.District)
		}
	}

	joined = make([]GeoJoin, 0, len(risk))
	for d, r := range risk {
		g, ok := byDistrict[d]
		if !ok {
			noGeometry = append(noGeometry, d)
			continue
		}
		joined = append(joined, GeoJoin{Geometry: g, Prevalence: prevalence[d], Risk: r})
	}
	sort.Slice(joined, func(i, j int) bool { return joined[i].Geometry.District < joined[j].Geometry.District })
	sort.Slice(noGeometry, func(i, j int) bool { return noGeometry[i] < noGeometry[j] })
	sort.Slice(noEstimate, func(i, j int) bool { return noEstimate[i] < noEstimate[j] })
	return joined, noGeometry, noEstimate
}

func ringLoop(ring Ring) (*s2.Loop, error) {
	pts := make([]s2.Point, 0, len(ring))
	for i, pos := range ring {
		if i == len(ring)-1 && len(ring) > 1 && pos == ring[0] {
			break // GeoJSON rings repeat the first position
		}
		pts = append(pts, s2.PointFromLatLng(s2.LatLngFromDegrees(pos[1], pos[0])))
	}
	if len(pts) < 3 {
		return nil, errors.New("ring needs at least 3 distinct positions")
	}
	loop := s2.LoopFromPoints(pts)
	loop.Normalize()
	return loop, nil
}

// PolygonCentroid returns the area-weighted centroid of the polygons,
// computed in ETRS89-LAEA (EPSG:3035) and projected back to WGS84. Holes
// subtract their area. Degenerate input falls back to the vertex mean.
func PolygonCentroid(polygons []Polygon) LatLng {
	var sumA, sumX, sumY float64
	var meanX, meanY float64
	var n int
	for _, poly := range polygons {
		for i, ring := range poly {
			xs := make([]float64, len(ring))
			ys := make([]float64, len(ring))
			for k, pos := range ring {
				xs[k], ys[k] = laeaForward(pos[1], pos[0])
				meanX += xs[k]
				meanY += ys[k]
				n++
			}
			a, cx, cy := ringCentroid(xs, ys)
			w := math.Abs(a)
			if i > 0 {
				w = -w
			}
			sumA += w
			sumX += w * cx
			sumY += w * cy
		}
	}
	if n == 0 {
		return LatLng{}
	}
	if math.Abs(sumA) < 1e-9 {
		lat, lng := laeaInverse(meanX/float64(n), meanY/float64(n))
		return LatLng{Lat: lat, Lng: lng}
	}
	lat, lng := laeaInverse(sumX/sumA, sumY/sumA)
	return LatLng{Lat: lat, Lng: lng}
}

// ringCentroid applies the shoelace formula. The ring may be open or closed.
func ringCentroid(xs, ys []float64) (area, cx, cy float64) {
	n := len(xs)
	if n < 3 {
		return 0, 0, 0
	}
	var a2, sx, sy float64
	for i := range n {
		j := (i + 1) % n
		cross := xs[i]*ys[j] - xs[j]*ys[i]
		a2 += cross
		sx += (xs[i] + xs[j]) * cross
		sy += (ys[i] + ys[j]) * cross
	}
	if a2 == 0 {
		return 0, 0, 0
	}
	return a2 / 2, sx / (3 * a2), sy / (3 * a2)
}

// ETRS89-LAEA (EPSG:3035) on the GRS80 ellipsoid, following EPSG Guidance
// Note 7-2, method 9820.
const (
	grs80A   = 6378137.0
	grs80InF = 298.257222101
	laeaLat0 = 52.0
	laeaLon0 = 10.0
	laeaFE   = 4321000.0
	laeaFN   = 3210000.0
)

var laea = newLAEAParams()

type laeaParams struct {
	e, e2     float64
	qp        float64
	rq        float64
	d         float64
	sinB0     float64
	cosB0     float64
	lon0      float64
	phiCoeff2 float64
	phiCoeff4 float64
	phiCoeff6 float64
}

func newLAEAParams() laeaParams {
	f := 1 / grs80InF
	e2 := 2*f - f*f
	e := math.Sqrt(e2)
	phi0 := laeaLat0 * math.Pi / 180

	p := laeaParams{e: e, e2: e2, lon0: laeaLon0 * math.Pi / 180}
	p.qp = authalicQ(math.Pi/2, e, e2)
	q0 := authalicQ(phi0, e, e2)
	beta0 := math.Asin(q0 / p.qp)
	p.sinB0, p.cosB0 = math.Sincos(beta0)
	p.rq = grs80A * math.Sqrt(p.qp/2)
	sinPhi0 := math.Sin(phi0)
	p.d = grs80A * (math.Cos(phi0) / math.Sqrt(1-e2*sinPhi0*sinPhi0)) / (p.rq * p.cosB0)

	e4 := e2 * e2
	e6 := e4 * e2
	p.phiCoeff2 = e2/3 + 31*e4/180 + 517*e6/5040
	p.phiCoeff4 = 23*e4/360 + 251*e6/3780
	p.phiCoeff6 = 761 * e6 / 45360
	return p
}

func authalicQ(phi, e, e2 float64) float64 {
	s := math.Sin(phi)
	return (1 - e2) * (s/(1-e2*s*s) - (1/(2*e))*math.Log((1-e*s)/(1+e*s)))
}

// laeaForward projects degrees to EPSG:3035 easting/northing in metres.
func laeaForward(latDeg, lngDeg float64) (x, y float64) {
	phi := latDeg * math.Pi / 180
	lam := lngDeg*math.Pi/180 - laea.lon0
	q := authalicQ(phi, laea.e, laea.e2)
	beta := math.Asin(clampUnit(q / laea.qp))
	sinB, cosB := math.Sincos(beta)
	sinL, cosL := math.Sincos(lam)

	b := laea.rq * math.Sqrt(2/(1+laea.sinB0*sinB+laea.cosB0*cosB*cosL))
	x = laeaFE + b*laea.d*cosB*sinL
	y = laeaFN + (b/laea.d)*(laea.cosB0*sinB-laea.sinB0*cosB*cosL)
	return x, y
}

// laeaInverse projects EPSG:3035 metres back to degrees.
func laeaInverse(x, y float64) (latDeg, lngDeg float64) {
	dx := x - laeaFE
	dy := y - laeaFN
	rho := math.Hypot(dx/laea.d, laea.d*dy)
	if rho == 0 {
		return laeaLat0, laeaLon0
	}
	c := 2 * math.Asin(clampUnit(rho/(2*laea.rq)))
	sinC, cosC := math.Sincos(c)

	beta := math.Asin(clampUnit(cosC*laea.sinB0 + laea.d*dy*sinC*laea.cosB0/rho))
	lam := laea.lon0 + math.Atan2(dx*sinC, laea.d*rho*laea.cosB0*cosC-laea.d*laea.d*dy*laea.sinB0*sinC)
	phi := beta +
		laea.phiCoeff2*math.Sin(2*beta) +
		laea.phiCoeff4*math.Sin(4*beta) +
		laea.phiCoeff6*math.Sin(6*beta)
	return phi * 180 / math.Pi, lam * 180 / math.Pi
}

func clampUnit(v float64) float64 {
	return math.Max(-1, math.Min(1, v))
}
