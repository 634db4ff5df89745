package indexdb

import (
	"context"
	"path/filepath"
	"testing"

	"multipart.dev/internal/persistence/snapshot"
	"multipart.dev/internal/sim/catalogs"
	"multipart.dev/internal/sim/tuning"
	"multipart.dev/internal/sim/world"
)

func TestSQLiteIndex_QueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.ch <- req{kind: reqTick, tick: world.TickLogEntry{Tick: 1}}

	_ = s.WriteTick(world.TickLogEntry{Tick: 2})
	_ = s.WriteAudit(world.AuditEntry{Tick: 2})
	s.RecordSnapshot("/tmp/2.snap.zst", snapshot.SnapshotV1{})
	s.RecordArchive(1, 2, "/tmp/2.snap.zst")

	st := s.Stats()
	if st.DropTickTotal != 1 || st.DropAuditTotal != 1 || st.DropSnapshotTotal != 1 || st.DropArchiveTotal != 1 {
		t.Fatalf("drop stats=%+v", st)
	}
	if st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("queue stats mismatch: depth=%d cap=%d", st.QueueDepth, st.QueueCapacity)
	}
}

func TestSQLiteIndex_AuditsSnapshotsAndCatalogs(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "index", "world.sqlite")
	idx, err := OpenSQLite(dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	cats, err := catalogs.Load("../../../configs")
	if err != nil {
		t.Fatalf("catalogs: %v", err)
	}
	if err := idx.UpsertCatalogs("../../../configs", cats, tuning.Defaults()); err != nil {
		t.Fatalf("upsert catalogs: %v", err)
	}

	pos := [3]int{4, 70, -9}
	_ = idx.WriteAudit(world.AuditEntry{Tick: 3, Actor: "s1", Action: world.AuditPlace, Block: "example", Pos: pos})
	_ = idx.WriteAudit(world.AuditEntry{Tick: 3, Actor: "s1", Action: world.AuditDestroy, Block: "STONE", Pos: [3]int{0, 0, 0}})
	_ = idx.WriteAudit(world.AuditEntry{Tick: 8, Actor: "s2", Action: world.AuditDestroy, Block: "example", Pos: pos, Reason: "drop"})
	_ = idx.WriteTick(world.TickLogEntry{Tick: 3, Digest: "d", Changes: []world.CellChange{{Pos: pos, Block: "example"}}})
	idx.RecordSnapshot("/data/3.snap.zst", snapshot.SnapshotV1{
		Header:  snapshot.Header{Tick: 3, CatalogDigest: cats.Structures.Digest},
		Height:  128,
		Palette: []string{"AIR"},
	})
	if err := idx.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	idx, err = OpenSQLite(dbPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer idx.Close()
	ctx := context.Background()

	got, err := idx.AuditsAt(ctx, pos)
	if err != nil {
		t.Fatalf("audits: %v", err)
	}
	if len(got) != 2 || got[0].Action != world.AuditPlace || got[1].Actor != "s2" || got[1].Reason != "drop" {
		t.Fatalf("audits at %v = %+v", pos, got)
	}

	tick, path, err := idx.LatestSnapshot(ctx)
	if err != nil || tick != 3 || path != "/data/3.snap.zst" {
		t.Fatalf("latest snapshot=%d %q %v", tick, path, err)
	}

	d, err := idx.CatalogDigest(ctx, "structures")
	if err != nil || d != cats.Structures.Digest {
		t.Fatalf("structures digest=%q err=%v", d, err)
	}

	var n int
	if err := idx.db.QueryRow(`SELECT COUNT(*) FROM changes WHERE tick = 3`).Scan(&n); err != nil || n != 1 {
		t.Fatalf("changes rows=%d err=%v", n, err)
	}
}
