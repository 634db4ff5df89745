package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"multipart.dev/internal/persistence/snapshot"
	"multipart.dev/internal/sim/catalogs"
	"multipart.dev/internal/sim/tuning"
	"multipart.dev/internal/sim/world"
)

// SQLiteIndex is a queryable secondary index of the JSONL logs and snapshot
// files. Writes are queued and applied by one writer goroutine; when the
// queue is full they are dropped and counted.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropTick     atomic.Uint64
	dropAudit    atomic.Uint64
	dropSnapshot atomic.Uint64
	dropArchive  atomic.Uint64
}

type Stats struct {
	QueueDepth        int
	QueueCapacity     int
	DropTickTotal     uint64
	DropAuditTotal    uint64
	DropSnapshotTotal uint64
	DropArchiveTotal  uint64
}

type reqKind int

const (
	reqTick reqKind = iota + 1
	reqAudit
	reqSnapshot
	reqArchive
)

type req struct {
	kind reqKind

	tick     world.TickLogEntry
	audit    world.AuditEntry
	snapshot snapshotRow
	archive  archiveRow
}

type snapshotRow struct {
	Tick          uint64
	Path          string
	Height        int
	Chunks        int
	PaletteSize   int
	CatalogDigest string
}

type archiveRow struct {
	Epoch      int
	EndTick    uint64
	Path       string
	RecordedAt string
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		// Structure placement bursts many audits in one tick.
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS ticks (
			tick INTEGER PRIMARY KEY,
			digest TEXT NOT NULL,
			changes INTEGER NOT NULL,
			audits INTEGER NOT NULL,
			highlights INTEGER NOT NULL,
			raw_json TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS changes (
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			z INTEGER NOT NULL,
			block TEXT NOT NULL,
			part INTEGER NOT NULL,
			facing TEXT,
			PRIMARY KEY (tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_changes_pos_tick ON changes(x, z, y, tick);`,
		`CREATE TABLE IF NOT EXISTS audits (
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			actor TEXT NOT NULL,
			action TEXT NOT NULL,
			block TEXT NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			z INTEGER NOT NULL,
			part INTEGER NOT NULL,
			facing TEXT,
			reason TEXT,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_audits_actor_tick ON audits(actor, tick);`,
		`CREATE INDEX IF NOT EXISTS idx_audits_pos_tick ON audits(x, z, y, tick);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			tick INTEGER PRIMARY KEY,
			path TEXT NOT NULL,
			height INTEGER NOT NULL,
			chunks INTEGER NOT NULL,
			palette_size INTEGER NOT NULL,
			catalog_digest TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS archives (
			epoch INTEGER PRIMARY KEY,
			end_tick INTEGER NOT NULL,
			snapshot_path TEXT NOT NULL,
			recorded_at TEXT NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	return Stats{
		QueueDepth:        len(s.ch),
		QueueCapacity:     cap(s.ch),
		DropTickTotal:     s.dropTick.Load(),
		DropAuditTotal:    s.dropAudit.Load(),
		DropSnapshotTotal: s.dropSnapshot.Load(),
		DropArchiveTotal:  s.dropArchive.Load(),
	}
}

func (s *SQLiteIndex) enqueue(r req, drops *atomic.Uint64) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- r:
	default:
		// JSONL logs remain the source of truth.
		drops.Add(1)
	}
}

func (s *SQLiteIndex) WriteTick(entry world.TickLogEntry) error {
	if s != nil {
		s.enqueue(req{kind: reqTick, tick: entry}, &s.dropTick)
	}
	return nil
}

func (s *SQLiteIndex) WriteAudit(entry world.AuditEntry) error {
	if s != nil {
		s.enqueue(req{kind: reqAudit, audit: entry}, &s.dropAudit)
	}
	return nil
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if s == nil {
		return
	}
	s.enqueue(req{kind: reqSnapshot, snapshot: snapshotRow{
		Tick:          snap.Header.Tick,
		Path:          path,
		Height:        snap.Height,
		Chunks:        len(snap.Chunks),
		PaletteSize:   len(snap.Palette),
		CatalogDigest: snap.Header.CatalogDigest,
	}}, &s.dropSnapshot)
}

func (s *SQLiteIndex) RecordArchive(epoch int, endTick uint64, archivedSnapshotPath string) {
	if s == nil || epoch <= 0 || archivedSnapshotPath == "" {
		return
	}
	s.enqueue(req{kind: reqArchive, archive: archiveRow{
		Epoch:      epoch,
		EndTick:    endTick,
		Path:       archivedSnapshotPath,
		RecordedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}}, &s.dropArchive)
}

// UpsertCatalogs stores the catalogs and tuning the server runs with, keyed
// by name with their digests.
func (s *SQLiteIndex) UpsertCatalogs(configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	type kv struct {
		name   string
		digest string
		json   []byte
	}
	var rows []kv
	if configDir != "" {
		if b, err := os.ReadFile(filepath.Join(configDir, "blocks.json")); err == nil {
			rows = append(rows, kv{name: "blocks_defs", digest: cats.Blocks.DefsDigest, json: b})
		}
	}
	if b, _ := json.Marshal(cats.Blocks.Palette); len(b) > 0 {
		rows = append(rows, kv{name: "blocks_palette", digest: cats.Blocks.PaletteDigest, json: b})
	}
	{
		defs := make([]catalogs.StructureDef, 0, len(cats.Structures.ByID))
		for _, d := range cats.Structures.ByID {
			defs = append(defs, d)
		}
		sort.Slice(defs, func(i, j int) bool { return defs[i].ID < defs[j].ID })
		if b, _ := json.Marshal(defs); len(b) > 0 {
			rows = append(rows, kv{name: "structures", digest: cats.Structures.Digest, json: b})
		}
	}
	{
		b, _ := json.Marshal(tune)
		sum := sha256.Sum256(b)
		rows = append(rows, kv{name: "tuning", digest: hex.EncodeToString(sum[:]), json: b})
	}

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		if r.name == "" || r.digest == "" || len(r.json) == 0 {
			continue
		}
		if _, err := stmt.Exec(r.name, r.digest, string(r.json), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// CatalogDigest returns the stored digest of catalog name.
func (s *SQLiteIndex) CatalogDigest(ctx context.Context, name string) (string, error) {
	var d string
	err := s.db.QueryRowContext(ctx, `SELECT digest FROM catalogs WHERE name = ?`, name).Scan(&d)
	return d, err
}

// AuditsAt returns every indexed audit for the cell at pos, oldest first.
func (s *SQLiteIndex) AuditsAt(ctx context.Context, pos [3]int) ([]world.AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT raw_json FROM audits WHERE x = ? AND z = ? AND y = ? ORDER BY tick, seq`,
		pos[0], pos[2], pos[1])
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []world.AuditEntry
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var e world.AuditEntry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// LatestSnapshot returns the path of the highest indexed snapshot tick.
func (s *SQLiteIndex) LatestSnapshot(ctx context.Context) (uint64, string, error) {
	var tick int64
	var path string
	err := s.db.QueryRowContext(ctx, `SELECT tick, path FROM snapshots ORDER BY tick DESC LIMIT 1`).Scan(&tick, &path)
	return uint64(tick), path, err
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertTick, _ := s.db.Prepare(`INSERT OR REPLACE INTO ticks(tick,digest,changes,audits,highlights,raw_json) VALUES(?,?,?,?,?,?)`)
	insertChange, _ := s.db.Prepare(`INSERT OR REPLACE INTO changes(tick,seq,x,y,z,block,part,facing) VALUES(?,?,?,?,?,?,?,?)`)
	insertAudit, _ := s.db.Prepare(`INSERT OR REPLACE INTO audits(tick,seq,actor,action,block,x,y,z,part,facing,reason,raw_json) VALUES(?,?,?,?,?,?,?,?,?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(tick,path,height,chunks,palette_size,catalog_digest) VALUES(?,?,?,?,?,?)`)
	insertArchive, _ := s.db.Prepare(`INSERT OR REPLACE INTO archives(epoch,end_tick,snapshot_path,recorded_at) VALUES(?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertTick, insertChange, insertAudit, insertSnapshot, insertArchive} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second

		lastAuditTick uint64
		auditSeq      int
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(st *sql.Stmt, args ...any) bool {
		if st == nil {
			return true
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback()
			return false
		}
		opCount++
		return true
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqTick:
			t := r.tick
			b, _ := json.Marshal(t)
			if !exec(insertTick, int64(t.Tick), t.Digest, len(t.Changes), t.Audits, t.Highlights, string(b)) {
				continue
			}
			for i, c := range t.Changes {
				if !exec(insertChange, int64(t.Tick), i, c.Pos[0], c.Pos[1], c.Pos[2], c.Block, c.Part, c.Facing) {
					break
				}
			}

		case reqAudit:
			a := r.audit
			if a.Tick != lastAuditTick {
				lastAuditTick = a.Tick
				auditSeq = 0
			}
			seq := auditSeq
			auditSeq++
			raw, _ := json.Marshal(a)
			exec(insertAudit, int64(a.Tick), seq, a.Actor, a.Action, a.Block,
				a.Pos[0], a.Pos[1], a.Pos[2], a.Part, a.Facing, a.Reason, string(raw))

		case reqSnapshot:
			sn := r.snapshot
			exec(insertSnapshot, int64(sn.Tick), sn.Path, sn.Height, sn.Chunks, sn.PaletteSize, sn.CatalogDigest)

		case reqArchive:
			ar := r.archive
			exec(insertArchive, ar.Epoch, int64(ar.EndTick), ar.Path, ar.RecordedAt)
		}
		if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait) {
			commit()
		}
	}

	commit()
}
