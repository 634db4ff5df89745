package multipart

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyParts      = errors.New("multipart: part list is empty")
	ErrDuplicateOffset = errors.New("multipart: offset already defined")
)

// Offset is the position of one part relative to the structure origin.
// DX is the side axis, DY is height and DZ is depth.
type Offset struct {
	DX int `json:"dx"`
	DY int `json:"dy"`
	DZ int `json:"dz"`
}

func (o Offset) String() string { return fmt.Sprintf("[%d, %d, %d]", o.DX, o.DY, o.DZ) }

// Builder collects the offsets of a structure type. The first error sticks;
// later Define calls are ignored once it is set.
type Builder struct {
	offsets []Offset
	seen    map[Offset]struct{}
	err     error
}

func (b *Builder) Define(dx, dy, dz int) *Builder {
	if b.err != nil {
		return b
	}
	o := Offset{DX: dx, DY: dy, DZ: dz}
	if b.seen == nil {
		b.seen = map[Offset]struct{}{}
	}
	if _, dup := b.seen[o]; dup {
		b.err = fmt.Errorf("position %s: %w", o, ErrDuplicateOffset)
		return b
	}
	b.seen[o] = struct{}{}
	b.offsets = append(b.offsets, o)
	return b
}

func (b *Builder) Err() error { return b.err }

// Build freezes the collected offsets.
func (b *Builder) Build() (Parts, error) {
	if b.err != nil {
		return Parts{}, b.err
	}
	if len(b.offsets) == 0 {
		return Parts{}, ErrEmptyParts
	}
	out := make([]Offset, len(b.offsets))
	copy(out, b.offsets)
	return Parts{offsets: out}, nil
}

// Parts is an immutable, ordered, duplicate-free offset list shared by every
// placement of one structure type.
type Parts struct {
	offsets []Offset
}

func (p Parts) Len() int { return len(p.offsets) }

func (p Parts) At(i int) Offset { return p.offsets[i] }

// Index returns the part index of o, or -1.
func (p Parts) Index(o Offset) int {
	for i, v := range p.offsets {
		if v == o {
			return i
		}
	}
	return -1
}

func (p Parts) Offsets() []Offset {
	out := make([]Offset, len(p.offsets))
	copy(out, p.offsets)
	return out
}
