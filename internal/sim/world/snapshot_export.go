package world

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"multipart.dev/internal/persistence/snapshot"
	"multipart.dev/internal/sim/cell"
)

// ExportSnapshot captures every loaded chunk. Must run on the loop goroutine.
func (w *World) ExportSnapshot(nowTick uint64) snapshot.SnapshotV1 {
	s := snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version:       snapshot.Version,
			WorldID:       w.cfg.ID,
			Tick:          nowTick,
			CatalogDigest: w.cats.Structures.Digest,
		},
		TickRate:  w.cfg.TickRateHz,
		Height:    w.cfg.Height,
		BoundaryR: w.cfg.BoundaryR,
		Palette:   w.Palette(),
	}
	for _, k := range w.chunks.LoadedChunkKeys() {
		ch, _ := w.chunks.Chunk(k)
		out := snapshot.ChunkV1{
			CX:      ch.CX,
			CZ:      ch.CZ,
			Height:  ch.Height,
			Blocks:  make([]uint16, len(ch.Cells)),
			Parts:   make([]uint16, len(ch.Cells)),
			Facings: make([]uint8, len(ch.Cells)),
		}
		for i, c := range ch.Cells {
			out.Blocks[i] = c.Block
			out.Parts[i] = c.Part
			out.Facings[i] = uint8(c.Facing)
		}
		s.Chunks = append(s.Chunks, out)
	}
	return s
}

// ImportSnapshot replaces the cell grid with s. Block ids are remapped by
// name, so catalogs may gain or reorder entries between runs; a name that is
// no longer known fails the import.
func (w *World) ImportSnapshot(s snapshot.SnapshotV1) error {
	if s.Height != w.cfg.Height {
		return fmt.Errorf("snapshot height %d does not match world height %d", s.Height, w.cfg.Height)
	}
	remap := make([]uint16, len(s.Palette))
	for i, id := range s.Palette {
		to, ok := w.index[id]
		if !ok {
			return fmt.Errorf("snapshot palette: %w: %s", ErrUnknownBlock, id)
		}
		remap[i] = to
	}

	store := NewChunkStore(w.cfg.Height, w.cfg.BoundaryR)
	for _, c := range s.Chunks {
		n := 16 * 16 * c.Height
		if c.Height != s.Height || len(c.Blocks) != n || len(c.Parts) != n || len(c.Facings) != n {
			return fmt.Errorf("snapshot chunk %d,%d: bad dimensions", c.CX, c.CZ)
		}
		ch := store.getOrCreate(c.CX, c.CZ)
		for i := range ch.Cells {
			b := c.Blocks[i]
			if int(b) >= len(remap) {
				return fmt.Errorf("snapshot chunk %d,%d: block id %d outside palette", c.CX, c.CZ, b)
			}
			f := cell.Facing(c.Facings[i])
			if f > cell.West {
				return fmt.Errorf("snapshot chunk %d,%d: bad facing %d", c.CX, c.CZ, f)
			}
			ch.Cells[i] = Cell{Block: remap[b], Part: c.Parts[i], Facing: f}
		}
	}

	w.chunks = store
	w.pendingChanges = nil
	w.tickChanges = nil
	// Snapshots hold the last executed tick.
	w.tick.Store(s.Header.Tick + 1)
	return nil
}

// StateDigest hashes the palette and every loaded chunk in key order.
func (w *World) StateDigest() string {
	h := sha256.New()
	for _, id := range w.palette {
		h.Write([]byte(id))
		h.Write([]byte{0})
	}
	var tmp [16]byte
	for _, k := range w.chunks.LoadedChunkKeys() {
		ch, _ := w.chunks.Chunk(k)
		binary.LittleEndian.PutUint64(tmp[0:8], uint64(int64(k.CX)))
		binary.LittleEndian.PutUint64(tmp[8:16], uint64(int64(k.CZ)))
		h.Write(tmp[:])
		d := ch.Digest()
		h.Write(d[:])
	}
	return hex.EncodeToString(h.Sum(nil))
}
