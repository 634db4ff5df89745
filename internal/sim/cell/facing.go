package cell

import (
	"fmt"
	"strings"
)

// Facing is one of the four horizontal compass directions. The zero value is
// North, which is also the orientation of structures that do not rotate.
type Facing uint8

const (
	North Facing = iota
	East
	South
	West
)

// Facings lists every horizontal facing in clockwise order starting at North.
var Facings = [4]Facing{North, East, South, West}

var facingNames = [4]string{"north", "east", "south", "west"}

// Vec returns the unit step of f. North is -Z, East is +X.
func (f Facing) Vec() Pos {
	switch f & 3 {
	case North:
		return Pos{Z: -1}
	case East:
		return Pos{X: 1}
	case South:
		return Pos{Z: 1}
	default: // West
		return Pos{X: -1}
	}
}

func (f Facing) Clockwise() Facing        { return (f + 1) & 3 }
func (f Facing) CounterClockwise() Facing { return (f + 3) & 3 }
func (f Facing) Opposite() Facing         { return (f + 2) & 3 }

// AlongZ reports whether f points along the Z axis.
func (f Facing) AlongZ() bool { return f&1 == 0 }

// YRot is the model rotation around Y in degrees, with South at 0 and
// increasing clockwise when seen from above.
func (f Facing) YRot() int {
	return int((f+2)&3) * 90
}

func (f Facing) String() string {
	if f > West {
		return fmt.Sprintf("facing(%d)", uint8(f))
	}
	return facingNames[f]
}

func ParseFacing(s string) (Facing, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, n := range facingNames {
		if n == s {
			return Facing(i), nil
		}
	}
	return North, fmt.Errorf("unknown facing %q", s)
}

func (f Facing) MarshalText() ([]byte, error) {
	if f > West {
		return nil, fmt.Errorf("invalid facing %d", uint8(f))
	}
	return []byte(facingNames[f]), nil
}

func (f *Facing) UnmarshalText(b []byte) error {
	v, err := ParseFacing(string(b))
	if err != nil {
		return err
	}
	*f = v
	return nil
}

// Rotation is a clockwise quarter-turn count in [0,3].
type Rotation uint8

const (
	RotateNone Rotation = iota
	RotateClockwise90
	RotateClockwise180
	RotateCounterClockwise90
)

func (r Rotation) Rotate(f Facing) Facing { return (f + Facing(r)) & 3 }

// NormalizeRotation converts a client-provided rotation value into a stable
// quarter-turn count.
//
// It accepts either quarter-turns (0..3) or degrees (multiples of 90).
func NormalizeRotation(r int) Rotation {
	// Treat large multiples of 90 as degrees.
	if r%90 == 0 && (r > 3 || r < -3) {
		r = r / 90
	}
	r %= 4
	if r < 0 {
		r += 4
	}
	return Rotation(r)
}

// Mirror flips a structure across one horizontal axis.
type Mirror uint8

const (
	MirrorNone Mirror = iota
	// MirrorLeftRight flips across the X axis (north <-> south).
	MirrorLeftRight
	// MirrorFrontBack flips across the Z axis (east <-> west).
	MirrorFrontBack
)

// Rotation returns the rotation that mirroring a structure facing f amounts to.
func (m Mirror) Rotation(f Facing) Rotation {
	switch m {
	case MirrorLeftRight:
		if f.AlongZ() {
			return RotateClockwise180
		}
	case MirrorFrontBack:
		if !f.AlongZ() {
			return RotateClockwise180
		}
	}
	return RotateNone
}
