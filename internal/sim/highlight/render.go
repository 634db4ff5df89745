package highlight

import (
	"github.com/go-gl/mathgl/mgl64"

	"multipart.dev/internal/sim/cell"
)

type Color struct {
	R float32 `json:"r"`
	G float32 `json:"g"`
	B float32 `json:"b"`
	A float32 `json:"a"`
}

// Red is the default highlight colour; alpha is filled in per entry.
var Red = Color{R: 1}

// Box is an axis-aligned box in camera-relative coordinates.
type Box struct {
	Min mgl64.Vec3 `json:"min"`
	Max mgl64.Vec3 `json:"max"`
}

// Frame is the host's per-frame drawing surface.
type Frame interface {
	Camera() mgl64.Vec3
	DrawLineBox(b Box, c Color)
}

// UnitBox is the unit cube of pos, centred on the cell and shifted by -camera.
func UnitBox(pos cell.Pos, camera mgl64.Vec3) Box {
	center := mgl64.Vec3{float64(pos.X) + 0.5, float64(pos.Y) + 0.5, float64(pos.Z) + 0.5}
	half := mgl64.Vec3{0.5, 0.5, 0.5}
	return Box{
		Min: center.Sub(half).Sub(camera),
		Max: center.Add(half).Sub(camera),
	}
}

// RenderAll draws every active entry. It never changes the registry.
func (r *Registry) RenderAll(f Frame) {
	if f == nil || len(r.order) == 0 {
		return
	}
	cam := f.Camera()
	for _, k := range r.order {
		c := r.color
		c.A = float32(r.left[k]) / float32(r.lifetime)
		f.DrawLineBox(UnitBox(k, cam), c)
	}
}

// OnRender is the per-frame hook.
func (r *Registry) OnRender(f Frame) { r.RenderAll(f) }

type Line struct {
	Box   Box   `json:"box"`
	Color Color `json:"color"`
}

// Recorder is a Frame that keeps what was drawn, for transports and tests.
type Recorder struct {
	Cam   mgl64.Vec3
	Lines []Line
}

func (r *Recorder) Camera() mgl64.Vec3 { return r.Cam }

func (r *Recorder) DrawLineBox(b Box, c Color) {
	r.Lines = append(r.Lines, Line{Box: b, Color: c})
}

// Reset empties the recorder for the next frame, keeping its buffer.
func (r *Recorder) Reset() { r.Lines = r.Lines[:0] }
