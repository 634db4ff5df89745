package cell

import "fmt"

// Pos addresses a single cell of the world grid. Y is up.
type Pos struct {
	X int
	Y int
	Z int
}

// Up is the world-up unit vector. Horizontal facings never rotate it.
var Up = Pos{Y: 1}

func (p Pos) Add(o Pos) Pos { return Pos{X: p.X + o.X, Y: p.Y + o.Y, Z: p.Z + o.Z} }
func (p Pos) Sub(o Pos) Pos { return Pos{X: p.X - o.X, Y: p.Y - o.Y, Z: p.Z - o.Z} }

func (p Pos) Scale(n int) Pos { return Pos{X: p.X * n, Y: p.Y * n, Z: p.Z * n} }

func (p Pos) ToArray() [3]int { return [3]int{p.X, p.Y, p.Z} }

func FromArray(a [3]int) Pos { return Pos{X: a[0], Y: a[1], Z: a[2]} }

func (p Pos) String() string { return fmt.Sprintf("(%d,%d,%d)", p.X, p.Y, p.Z) }
