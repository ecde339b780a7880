package pipeline

import (
	"math"

	"github.com/aerovision/detect-worker/internal/model"
)

// polygonArea returns the absolute area of a simple polygon (shoelace).
func polygonArea(poly []model.Point) float64 {
	n := len(poly)
	if n < 3 {
		return 0
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		sum += poly[i].X*poly[j].Y - poly[j].X*poly[i].Y
	}
	return math.Abs(sum) / 2
}

// clipPolygon clips subject against one directed edge (a->b) of a convex
// clip polygon, keeping points on the inner side (Sutherland-Hodgman step).
func clipPolygon(subject []model.Point, a, b model.Point) []model.Point {
	inside := func(p model.Point) bool {
		return (b.X-a.X)*(p.Y-a.Y)-(b.Y-a.Y)*(p.X-a.X) >= 0
	}
	intersect := func(p, q model.Point) model.Point {
		// Line a-b with segment p-q.
		a1 := b.Y - a.Y
		b1 := a.X - b.X
		c1 := a1*a.X + b1*a.Y
		a2 := q.Y - p.Y
		b2 := p.X - q.X
		c2 := a2*p.X + b2*p.Y
		det := a1*b2 - a2*b1
		if det == 0 {
			return p
		}
		return model.Point{
			X: (b2*c1 - b1*c2) / det,
			Y: (a1*c2 - a2*c1) / det,
		}
	}

	var out []model.Point
	n := len(subject)
	for i := 0; i < n; i++ {
		cur := subject[i]
		prev := subject[(i+n-1)%n]
		curIn := inside(cur)
		prevIn := inside(prev)
		switch {
		case curIn && prevIn:
			out = append(out, cur)
		case curIn && !prevIn:
			out = append(out, intersect(prev, cur), cur)
		case !curIn && prevIn:
			out = append(out, intersect(prev, cur))
		}
	}
	return out
}

// orient returns the corners in counter-clockwise order for clipping. Boxes
// arrive clockwise in image coordinates (y down), which is counter-clockwise
// in plain cartesian terms, but geographic transforms can flip handedness,
// so normalize by signed area.
func orient(c [4]model.Point) []model.Point {
	sum := 0.0
	for i := 0; i < 4; i++ {
		j := (i + 1) % 4
		sum += c[i].X*c[j].Y - c[j].X*c[i].Y
	}
	if sum < 0 {
		return []model.Point{c[3], c[2], c[1], c[0]}
	}
	return []model.Point{c[0], c[1], c[2], c[3]}
}

// intersectionArea computes the overlap area of two convex quadrilaterals.
func intersectionArea(a, b [4]model.Point) float64 {
	subject := orient(a)
	clip := orient(b)
	for i := 0; i < len(clip); i++ {
		if len(subject) == 0 {
			return 0
		}
		subject = clipPolygon(subject, clip[i], clip[(i+1)%len(clip)])
	}
	return polygonArea(subject)
}

// boxIoU is intersection-over-union of two oriented quadrilaterals.
func boxIoU(a, b [4]model.Point) float64 {
	inter := intersectionArea(a, b)
	if inter == 0 {
		return 0
	}
	union := polygonArea(a[:]) + polygonArea(b[:]) - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}
