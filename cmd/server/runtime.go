package main

import (
	"log"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"multipart.dev/internal/persistence/archive"
	"multipart.dev/internal/persistence/indexdb"
	"multipart.dev/internal/persistence/snapshot"
	"multipart.dev/internal/sim/multipart"
	"multipart.dev/internal/sim/tuning"
	"multipart.dev/internal/sim/world"
)

func worldConfig(id string, tune tuning.Tuning) world.WorldConfig {
	mask := multipart.UpdateNone
	if tune.Placement.UpdateNeighbors {
		mask |= multipart.UpdateNeighbors
	}
	if tune.Placement.UpdateClients {
		mask |= multipart.UpdateClients
	}
	return world.WorldConfig{
		ID:                 id,
		TickRateHz:         tune.TickRateHz,
		FrameRateHz:        tune.FrameRateHz,
		Height:             tune.WorldHeight,
		BoundaryR:          tune.WorldBoundaryR,
		Interactive:        tune.InteractiveSide,
		HighlightLifetime:  tune.Highlight.LifetimeTicks,
		HighlightColor:     tune.Highlight.Color,
		UpdateMask:         mask,
		SnapshotEveryTicks: tune.SnapshotEveryTicks,
	}
}

// resumeConfig keeps the world shape recorded in the snapshot; everything
// else still comes from tuning.
func resumeConfig(cfg world.WorldConfig, snap snapshot.SnapshotV1) world.WorldConfig {
	if snap.TickRate > 0 {
		cfg.TickRateHz = snap.TickRate
	}
	if snap.Height > 0 {
		cfg.Height = snap.Height
	}
	if snap.BoundaryR > 0 {
		cfg.BoundaryR = snap.BoundaryR
	}
	return cfg
}

func openIndex(worldDir string, disable bool) (*indexdb.SQLiteIndex, error) {
	if disable {
		return nil, nil
	}
	return indexdb.OpenSQLite(filepath.Join(worldDir, "index", "world.sqlite"))
}

// persistSnapshot writes snap under worldDir/snapshots, archives epoch ends
// and records both in the index when one is open.
func persistSnapshot(worldDir string, snap snapshot.SnapshotV1, epochTicks int, idx *indexdb.SQLiteIndex, logger *log.Logger) (string, error) {
	path := snapshot.PathFor(filepath.Join(worldDir, "snapshots"), snap.Header.Tick)
	if err := snapshot.WriteSnapshot(path, snap); err != nil {
		return "", err
	}
	if fi, err := os.Stat(path); err == nil {
		logger.Printf("snapshot tick=%d chunks=%d size=%s", snap.Header.Tick, len(snap.Chunks), humanize.Bytes(uint64(fi.Size())))
	}
	if idx != nil {
		idx.RecordSnapshot(path, snap)
	}

	epoch, archivedPath, ok, err := archive.ArchiveEpochSnapshot(worldDir, path, snap, epochTicks)
	if err != nil {
		logger.Printf("archive epoch snapshot: %v", err)
	} else if ok {
		logger.Printf("archived epoch=%d tick=%d", epoch, snap.Header.Tick)
		if idx != nil {
			idx.RecordArchive(epoch, snap.Header.Tick, archivedPath)
		}
	}
	return path, nil
}

type multiTickLogger struct {
	a world.TickLogger
	b world.TickLogger
}

func (m multiTickLogger) WriteTick(entry world.TickLogEntry) error {
	if m.a != nil {
		_ = m.a.WriteTick(entry)
	}
	if m.b != nil {
		_ = m.b.WriteTick(entry)
	}
	return nil
}

type multiAuditLogger struct {
	a world.AuditLogger
	b world.AuditLogger
}

func (m multiAuditLogger) WriteAudit(entry world.AuditEntry) error {
	if m.a != nil {
		_ = m.a.WriteAudit(entry)
	}
	if m.b != nil {
		_ = m.b.WriteAudit(entry)
	}
	return nil
}
