package viz

import (
	"math"
	"sort"

	"github.com/foerg/mbsim-env-sub002/internal/spatial"
	"github.com/go-gl/mathgl/mgl64"
)

// Camera looks at the origin from Distance along its rotated z-axis.
type Camera struct {
	RotX, RotY, RotZ float64
	Zoom             float64
	Distance         float64
	Near             float64
}

func NewCamera() *Camera {
	return &Camera{RotX: 0.35, RotY: -0.6, Zoom: 1.0, Distance: 4, Near: 0.1}
}

func (c *Camera) RotateX(a float64) { c.RotX += a }
func (c *Camera) RotateY(a float64) { c.RotY += a }
func (c *Camera) RotateZ(a float64) { c.RotZ += a }
func (c *Camera) ZoomIn()           { c.Zoom = math.Min(50, c.Zoom*1.2) }
func (c *Camera) ZoomOut()          { c.Zoom = math.Max(0.02, c.Zoom/1.2) }

func (c *Camera) rotation() mgl64.Mat3 {
	return mgl64.Rotate3DZ(c.RotZ).Mul3(mgl64.Rotate3DX(c.RotX)).Mul3(mgl64.Rotate3DY(c.RotY))
}

// RotatePoint returns p in camera coordinates.
func (c *Camera) RotatePoint(p spatial.Vec3) spatial.Vec3 {
	return c.rotation().Mul3x1(p)
}

// Project maps a world point to sub-pixel coordinates of a sw x sh screen.
// It returns x, y, depth and whether the point is in front of the camera and
// on screen.
func (c *Camera) Project(p spatial.Vec3, sw, sh int) (int, int, float64, bool) {
	x, y, depth, front := c.project(p, sw, sh)
	return x, y, depth, front && x >= 0 && x < sw && y >= 0 && y < sh
}

func (c *Camera) project(p spatial.Vec3, sw, sh int) (int, int, float64, bool) {
	rot := c.RotatePoint(p).Mul(c.Zoom)
	if rot.Z() >= c.Distance-c.Near {
		return 0, 0, 0, false
	}
	scale := c.Distance / (c.Distance - rot.Z())
	pScale := math.Min(float64(sw), float64(sh)) / 3.0
	sx := rot.X()*scale*pScale + float64(sw/2)
	sy := -rot.Y()*scale*pScale + float64(sh/2)
	// keep Bresenham loops short for points far off screen
	limit := 4 * float64(sw+sh)
	if math.Abs(sx) > limit || math.Abs(sy) > limit {
		return 0, 0, 0, false
	}
	return int(math.Round(sx)), int(math.Round(sy)), rot.Z(), true
}

type Edge struct {
	Start, End spatial.Vec3
}

type Wireframe struct{ Edges []Edge }

func NewWireframe() *Wireframe                 { return &Wireframe{Edges: make([]Edge, 0)} }
func (w *Wireframe) AddEdge(s, e spatial.Vec3) { w.Edges = append(w.Edges, Edge{s, e}) }
func (w *Wireframe) AddPoint(p spatial.Vec3)   { w.Edges = append(w.Edges, Edge{p, p}) }
func (w *Wireframe) Clear()                    { w.Edges = w.Edges[:0] }

func (w *Wireframe) Append(o *Wireframe) *Wireframe {
	w.Edges = append(w.Edges, o.Edges...)
	return w
}

type projectedEdge struct {
	x1, y1, x2, y2 int
	depth          float64
}

// Render3D draws the wireframe back to front. Edges are clipped by the
// canvas; edges with an end behind the camera are dropped.
func Render3D(c *Canvas, w *Wireframe, cam *Camera) {
	if c == nil || w == nil || cam == nil {
		return
	}
	cw, ch := c.Width*2, c.Height*4
	proj := make([]projectedEdge, 0, len(w.Edges))
	for _, e := range w.Edges {
		x1, y1, d1, f1 := cam.project(e.Start, cw, ch)
		x2, y2, d2, f2 := cam.project(e.End, cw, ch)
		if f1 && f2 {
			proj = append(proj, projectedEdge{x1, y1, x2, y2, (d1 + d2) / 2})
		}
	}
	sort.Slice(proj, func(i, j int) bool { return proj[i].depth < proj[j].depth })
	for _, e := range proj {
		if e.x1 == e.x2 && e.y1 == e.y2 {
			c.Set(e.x1, e.y1)
		} else {
			c.DrawLine(e.x1, e.y1, e.x2, e.y2)
		}
	}
}

// BoxWireframe returns the edges of a box with half extents h centred at r
// and rotated by a.
func BoxWireframe(r spatial.Vec3, a spatial.Mat3, h spatial.Vec3) *Wireframe {
	w := NewWireframe()
	var v [8]spatial.Vec3
	for i := range v {
		local := spatial.Vec3{h[0], h[1], h[2]}
		for k := 0; k < 3; k++ {
			if i&(1<<k) != 0 {
				local[k] = -local[k]
			}
		}
		v[i] = r.Add(a.Mul3x1(local))
	}
	for i := range v {
		for k := 0; k < 3; k++ {
			if j := i | 1<<k; j != i {
				w.AddEdge(v[i], v[j])
			}
		}
	}
	return w
}

// AxesWireframe draws the three axes of a frame with length l.
func AxesWireframe(r spatial.Vec3, a spatial.Mat3, l float64) *Wireframe {
	w := NewWireframe()
	for k := 0; k < 3; k++ {
		w.AddEdge(r, r.Add(a.Col(k).Mul(l)))
	}
	return w
}

// GridWireframe is a square grid of n cells of the given size in the plane
// through the origin with normal along y.
func GridWireframe(n int, size float64) *Wireframe {
	w := NewWireframe()
	half := float64(n) * size / 2
	for i := 0; i <= n; i++ {
		s := -half + float64(i)*size
		w.AddEdge(spatial.Vec3{s, 0, -half}, spatial.Vec3{s, 0, half})
		w.AddEdge(spatial.Vec3{-half, 0, s}, spatial.Vec3{half, 0, s})
	}
	return w
}
