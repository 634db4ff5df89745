package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// dbCmd runs read-only queries against a world's sqlite index, which may be
// open by a running server (WAL mode).
func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (required unless -db)")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	limit := fs.Int("limit", 20, "result limit")
	actor := fs.String("actor", "", "actor filter (audits)")
	_ = fs.Parse(args)

	q := "snapshots"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		if strings.TrimSpace(*worldID) == "" {
			fmt.Fprintln(os.Stderr, "missing -world or -db")
			os.Exit(2)
		}
		path = filepath.Join(*dataDir, "worlds", *worldID, "index", "world.sqlite")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	var rows []map[string]any
	switch q {
	case "snapshots":
		rows, err = queryRows(db, `SELECT tick, path, height, chunks, palette_size, catalog_digest FROM snapshots ORDER BY tick DESC LIMIT ?`, *limit)
	case "archives":
		rows, err = queryRows(db, `SELECT epoch, end_tick, snapshot_path, recorded_at FROM archives ORDER BY epoch DESC LIMIT ?`, *limit)
	case "catalogs":
		rows, err = queryRows(db, `SELECT name, digest, updated_at FROM catalogs ORDER BY name`)
	case "ticks":
		rows, err = queryRows(db, `SELECT tick, digest, changes, audits, highlights FROM ticks ORDER BY tick DESC LIMIT ?`, *limit)
	case "audits":
		if a := strings.TrimSpace(*actor); a != "" {
			rows, err = queryRows(db, `SELECT tick, actor, action, block, x, y, z, part, facing, reason FROM audits WHERE actor = ? ORDER BY tick DESC, seq DESC LIMIT ?`, a, *limit)
		} else {
			rows, err = queryRows(db, `SELECT tick, actor, action, block, x, y, z, part, facing, reason FROM audits ORDER BY tick DESC, seq DESC LIMIT ?`, *limit)
		}
	default:
		fmt.Fprintln(os.Stderr, "unknown query:", q, "(want snapshots|archives|catalogs|ticks|audits)")
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "query:", err)
		os.Exit(1)
	}
	enc := json.NewEncoder(os.Stdout)
	for _, r := range rows {
		_ = enc.Encode(r)
	}
}

func queryRows(db *sql.DB, query string, args ...any) ([]map[string]any, error) {
	rs, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rs.Close()
	cols, err := rs.Columns()
	if err != nil {
		return nil, err
	}
	var out []map[string]any
	for rs.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rs.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(cols))
		for i, c := range cols {
			if b, ok := vals[i].([]byte); ok {
				row[c] = string(b)
			} else {
				row[c] = vals[i]
			}
		}
		out = append(out, row)
	}
	return out, rs.Err()
}
