package world

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"sort"

	"multipart.dev/internal/sim/cell"
)

var ErrOutOfBounds = errors.New("cell out of world bounds")

type ChunkKey struct {
	CX int
	CZ int
}

// Cell is the stored form of one grid cell. Block is a palette id; Part and
// Facing are only meaningful for structure cells.
type Cell struct {
	Block  uint16
	Part   uint16
	Facing cell.Facing
}

type Chunk struct {
	CX, CZ int
	Height int
	Cells  []Cell // len = 16*16*Height

	dirty bool
	hash  [32]byte
}

func (c *Chunk) index(x, y, z int) int {
	// x fastest, then z, then y
	return x + z*16 + y*256
}

func (c *Chunk) Get(x, y, z int) Cell {
	return c.Cells[c.index(x, y, z)]
}

func (c *Chunk) Set(x, y, z int, v Cell) {
	i := c.index(x, y, z)
	if c.Cells[i] == v {
		return
	}
	c.Cells[i] = v
	c.dirty = true
}

func (c *Chunk) Digest() [32]byte {
	if c.dirty || c.hash == ([32]byte{}) {
		h := sha256.New()
		var tmp [5]byte
		for _, v := range c.Cells {
			binary.LittleEndian.PutUint16(tmp[0:2], v.Block)
			binary.LittleEndian.PutUint16(tmp[2:4], v.Part)
			tmp[4] = byte(v.Facing)
			h.Write(tmp[:])
		}
		copy(c.hash[:], h.Sum(nil))
		c.dirty = false
	}
	return c.hash
}

// ChunkStore is a lazily allocated grid of columns. Unloaded cells read as
// air (palette id 0).
type ChunkStore struct {
	height    int
	boundaryR int
	// Accessed only from the world loop goroutine.
	chunks map[ChunkKey]*Chunk
}

func NewChunkStore(height, boundaryR int) *ChunkStore {
	return &ChunkStore{
		height:    height,
		boundaryR: boundaryR,
		chunks:    map[ChunkKey]*Chunk{},
	}
}

func (s *ChunkStore) Height() int { return s.height }

func (s *ChunkStore) InBounds(pos cell.Pos) bool {
	if pos.Y < 0 || pos.Y >= s.height {
		return false
	}
	if s.boundaryR > 0 {
		if pos.X < -s.boundaryR || pos.X > s.boundaryR || pos.Z < -s.boundaryR || pos.Z > s.boundaryR {
			return false
		}
	}
	return true
}

func (s *ChunkStore) Get(pos cell.Pos) Cell {
	if !s.InBounds(pos) {
		return Cell{}
	}
	ch, ok := s.chunks[ChunkKey{CX: floorDiv(pos.X, 16), CZ: floorDiv(pos.Z, 16)}]
	if !ok {
		return Cell{}
	}
	return ch.Get(mod(pos.X, 16), pos.Y, mod(pos.Z, 16))
}

func (s *ChunkStore) Set(pos cell.Pos, v Cell) error {
	if !s.InBounds(pos) {
		return ErrOutOfBounds
	}
	ch := s.getOrCreate(floorDiv(pos.X, 16), floorDiv(pos.Z, 16))
	ch.Set(mod(pos.X, 16), pos.Y, mod(pos.Z, 16), v)
	return nil
}

func (s *ChunkStore) getOrCreate(cx, cz int) *Chunk {
	k := ChunkKey{CX: cx, CZ: cz}
	if ch, ok := s.chunks[k]; ok {
		return ch
	}
	ch := &Chunk{
		CX:     cx,
		CZ:     cz,
		Height: s.height,
		Cells:  make([]Cell, 16*16*s.height),
		dirty:  true,
	}
	s.chunks[k] = ch
	return ch
}

func (s *ChunkStore) LoadedChunkKeys() []ChunkKey {
	keys := make([]ChunkKey, 0, len(s.chunks))
	for k := range s.chunks {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].CX != keys[j].CX {
			return keys[i].CX < keys[j].CX
		}
		return keys[i].CZ < keys[j].CZ
	})
	return keys
}

func (s *ChunkStore) Chunk(k ChunkKey) (*Chunk, bool) {
	ch, ok := s.chunks[k]
	return ch, ok
}

func (s *ChunkStore) Reset() { s.chunks = map[ChunkKey]*Chunk{} }

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func mod(a, b int) int {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}
