package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	persistlog "multipart.dev/internal/persistence/log"
	"multipart.dev/internal/persistence/snapshot"
	"multipart.dev/internal/sim/catalogs"
	"multipart.dev/internal/sim/multipart"
	"multipart.dev/internal/sim/world"
)

var errStop = errors.New("stop")

func main() {
	var (
		snapPath  = flag.String("snapshot", "", "path to .snap.zst")
		ticksDir  = flag.String("ticks", "", "dir containing ticks-*.jsonl.zst (optional)")
		configDir = flag.String("configs", "./configs", "config directory")
		toTick    = flag.Uint64("to_tick", 0, "stop at tick (inclusive, optional)")
	)
	flag.Parse()

	if *snapPath == "" {
		fmt.Fprintln(os.Stderr, "missing -snapshot")
		os.Exit(2)
	}

	snap, err := snapshot.ReadSnapshot(*snapPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}
	fmt.Printf("snapshot v%d world=%s tick=%d height=%d chunks=%d palette=%d\n",
		snap.Header.Version, snap.Header.WorldID, snap.Header.Tick, snap.Height, len(snap.Chunks), len(snap.Palette))

	if *ticksDir == "" {
		return
	}

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load catalogs:", err)
		os.Exit(1)
	}
	reg := multipart.NewRegistry()
	if err := cats.Register(reg); err != nil {
		fmt.Fprintln(os.Stderr, "register structures:", err)
		os.Exit(1)
	}
	w, err := world.New(world.WorldConfig{
		ID:         snap.Header.WorldID,
		TickRateHz: snap.TickRate,
		Height:     snap.Height,
		BoundaryR:  snap.BoundaryR,
	}, cats, reg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "world:", err)
		os.Exit(1)
	}
	if err := w.ImportSnapshot(snap); err != nil {
		fmt.Fprintln(os.Stderr, "import snapshot:", err)
		os.Exit(1)
	}

	files, err := listTickFiles(*ticksDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "list ticks:", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no tick files found in", *ticksDir)
		os.Exit(1)
	}

	startTick := w.CurrentTick()
	var checked uint64
	for _, path := range files {
		err := persistlog.ReadJSONL(path, func(line []byte) error {
			var entry world.TickLogEntry
			if err := json.Unmarshal(line, &entry); err != nil {
				return fmt.Errorf("%s: unmarshal: %w", filepath.Base(path), err)
			}
			if entry.Tick < startTick {
				return nil
			}
			if *toTick != 0 && entry.Tick > *toTick {
				return errStop
			}
			got, err := w.ReplayTick(entry)
			if err != nil {
				return err
			}
			checked++
			if got != entry.Digest {
				return fmt.Errorf("digest mismatch at tick %d: got=%s want=%s", entry.Tick, got, entry.Digest)
			}
			return nil
		})
		if errors.Is(err, errStop) {
			break
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, "replay:", err)
			os.Exit(1)
		}
	}
	fmt.Printf("replay ok: checked=%d ticks (from snapshot tick=%d, now=%d)\n", checked, snap.Header.Tick, w.CurrentTick())
}

// listTickFiles returns the hourly tick logs in dir; names sort by hour.
func listTickFiles(dir string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, "ticks-") && strings.HasSuffix(name, ".jsonl.zst") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, filepath.Join(dir, name))
	}
	return out, nil
}
