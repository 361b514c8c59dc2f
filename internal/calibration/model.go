package calibration

import (
	"math"

	"github.com/ayusman/gazetrack/internal/detector"
)

// Method identifies how a Model maps ratios to the screen.
type Method string

const (
	// MethodGrid interpolates piecewise-affinely across the recorded anchor grid.
	MethodGrid Method = "grid"
	// MethodAffine uses a least-squares affine fit, for sparse or partial anchor sets.
	MethodAffine Method = "affine"
)

const (
	// degenerateArea is the smallest triangle area in ratio space treated as usable.
	degenerateArea = 1e-12
	// snapDistance is how close a ratio must be to a recorded ratio to map
	// straight to that point's screen location.
	snapDistance = 1e-9
)

// Model is a fitted mapping from pupil ratios to screen coordinates plus
// the ratio bounds observed while fitting it. A Model is immutable.
type Model struct {
	Method Method
	// Folded is set when the anchor grid's triangles do not all wind the
	// same way in ratio space, so some triangles overlap.
	Folded bool
	Min    detector.Ratio
	Max    detector.Ratio
	Points []CalibrationPoint

	screen    Size
	triangles []triangle
	affineX   [3]float64
	affineY   [3]float64
}

// CalibrationPoint is a confirmed pairing of a raw sample with a known screen location.
type CalibrationPoint struct {
	Ratio  detector.Ratio `json:"ratio"`
	Screen Point          `json:"screen"`
	Anchor int            `json:"anchor"`
}

type triangle struct {
	r [3]detector.Ratio
	s [3]Point
}

// Map converts a ratio to a screen position. The ratio is clamped to the
// bounds observed during calibration so the mapping never extrapolates far
// outside the calibrated region.
func (m *Model) Map(r detector.Ratio) Point {
	r = detector.Ratio{
		X: math.Max(m.Min.X, math.Min(m.Max.X, r.X)),
		Y: math.Max(m.Min.Y, math.Min(m.Max.Y, r.Y)),
	}

	var p Point
	switch m.Method {
	case MethodGrid:
		p = m.mapGrid(r)
	default:
		p = Point{
			X: m.affineX[0] + m.affineX[1]*r.X + m.affineX[2]*r.Y,
			Y: m.affineY[0] + m.affineY[1]*r.X + m.affineY[2]*r.Y,
		}
	}
	return m.screen.Clamp(p)
}

// mapGrid returns the screen location of a recorded point when r is one of
// the recorded ratios. Otherwise it uses the triangle that contains r, or the
// one r is least outside of.
func (m *Model) mapGrid(r detector.Ratio) Point {
	for _, p := range m.Points {
		if math.Abs(p.Ratio.X-r.X) <= snapDistance && math.Abs(p.Ratio.Y-r.Y) <= snapDistance {
			return p.Screen
		}
	}

	best := -1
	bestMin := math.Inf(-1)
	var bestL [3]float64

	for i := range m.triangles {
		l, ok := m.triangles[i].barycentric(r)
		if !ok {
			continue
		}
		lowest := math.Min(l[0], math.Min(l[1], l[2]))
		if lowest > bestMin {
			best, bestMin, bestL = i, lowest, l
		}
	}

	if best < 0 {
		return Point{}
	}

	t := m.triangles[best]
	return Point{
		X: bestL[0]*t.s[0].X + bestL[1]*t.s[1].X + bestL[2]*t.s[2].X,
		Y: bestL[0]*t.s[0].Y + bestL[1]*t.s[1].Y + bestL[2]*t.s[2].Y,
	}
}

func (t triangle) signedArea() float64 {
	a, b, c := t.r[0], t.r[1], t.r[2]
	return ((b.X-a.X)*(c.Y-a.Y) - (c.X-a.X)*(b.Y-a.Y)) / 2
}

func (t triangle) barycentric(p detector.Ratio) ([3]float64, bool) {
	r0, r1, r2 := t.r[0], t.r[1], t.r[2]
	d := (r1.Y-r2.Y)*(r0.X-r2.X) + (r2.X-r1.X)*(r0.Y-r2.Y)
	if d == 0 {
		return [3]float64{}, false
	}
	l0 := ((r1.Y-r2.Y)*(p.X-r2.X) + (r2.X-r1.X)*(p.Y-r2.Y)) / d
	l1 := ((r2.Y-r0.Y)*(p.X-r2.X) + (r0.X-r2.X)*(p.Y-r2.Y)) / d
	return [3]float64{l0, l1, 1 - l0 - l1}, true
}

// fitGrid builds a piecewise-affine model from a complete anchor grid.
// points must be indexed by anchor index. It returns nil when every grid
// cell is degenerate in ratio space, and reports whether the usable
// triangles disagree in winding.
func fitGrid(points []CalibrationPoint, grid int) (tris []triangle, folded bool) {
	at := func(row, col int) CalibrationPoint { return points[row*grid+col] }

	var positive, negative bool
	for row := 0; row < grid-1; row++ {
		for col := 0; col < grid-1; col++ {
			a, b := at(row, col), at(row, col+1)
			c, d := at(row+1, col), at(row+1, col+1)
			for _, corners := range [2][3]CalibrationPoint{{a, b, d}, {a, d, c}} {
				t := triangle{
					r: [3]detector.Ratio{corners[0].Ratio, corners[1].Ratio, corners[2].Ratio},
					s: [3]Point{corners[0].Screen, corners[1].Screen, corners[2].Screen},
				}
				a := t.signedArea()
				if math.Abs(a) <= degenerateArea {
					continue
				}
				if a > 0 {
					positive = true
				} else {
					negative = true
				}
				tris = append(tris, t)
			}
		}
	}
	return tris, positive && negative
}

// fitAffine solves screen = a0 + a1*rx + a2*ry per axis in the least-squares
// sense. It reports false when the ratios are collinear.
func fitAffine(points []CalibrationPoint) (ax, ay [3]float64, ok bool) {
	n := float64(len(points))
	if n < 3 {
		return ax, ay, false
	}

	var mx, my, msx, msy float64
	for _, p := range points {
		mx += p.Ratio.X
		my += p.Ratio.Y
		msx += p.Screen.X
		msy += p.Screen.Y
	}
	mx /= n
	my /= n
	msx /= n
	msy /= n

	// Centered normal equations decouple the intercept.
	var sxx, syy, sxy, sxX, syX, sxY, syY float64
	for _, p := range points {
		dx, dy := p.Ratio.X-mx, p.Ratio.Y-my
		sxx += dx * dx
		syy += dy * dy
		sxy += dx * dy
		sxX += dx * (p.Screen.X - msx)
		syX += dy * (p.Screen.X - msx)
		sxY += dx * (p.Screen.Y - msy)
		syY += dy * (p.Screen.Y - msy)
	}

	det := sxx*syy - sxy*sxy
	if det <= 1e-12*sxx*syy || det == 0 {
		return ax, ay, false
	}

	solve := func(bx, by, mean float64) [3]float64 {
		a1 := (bx*syy - by*sxy) / det
		a2 := (by*sxx - bx*sxy) / det
		return [3]float64{mean - a1*mx - a2*my, a1, a2}
	}

	return solve(sxX, syX, msx), solve(sxY, syY, msy), true
}
