package archive

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"multipart.dev/internal/persistence/snapshot"
)

type EpochMeta struct {
	Epoch         int    `json:"epoch"`
	EndTick       uint64 `json:"end_tick"`
	WorldID       string `json:"world_id"`
	Snapshot      string `json:"snapshot"`
	CatalogDigest string `json:"catalog_digest,omitempty"`
	Chunks        int    `json:"chunks"`
	CreatedAt     string `json:"created_at"`
	EpochTicks    int    `json:"epoch_ticks"`
}

// ArchiveEpochSnapshot copies an epoch-end snapshot into
// `worldDir/archives/epoch_<NNN>/`, so the rolling snapshot directory can be
// pruned without losing long-term history. It returns archived=true only
// when snap is the last tick of an epoch of epochTicks ticks.
func ArchiveEpochSnapshot(worldDir, snapshotPath string, snap snapshot.SnapshotV1, epochTicks int) (epoch int, archivedPath string, archived bool, err error) {
	if epochTicks <= 0 {
		return 0, "", false, nil
	}
	n := uint64(epochTicks)
	// Snapshots hold the last executed tick; epoch k ends at tick n*k - 1.
	if (snap.Header.Tick+1)%n != 0 {
		return 0, "", false, nil
	}
	epoch = int((snap.Header.Tick + 1) / n)

	archiveDir := filepath.Join(worldDir, "archives", fmt.Sprintf("epoch_%03d", epoch))
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return 0, "", false, err
	}

	dst := filepath.Join(archiveDir, filepath.Base(snapshotPath))
	if err := copyFile(snapshotPath, dst); err != nil {
		return 0, "", false, err
	}

	meta := EpochMeta{
		Epoch:         epoch,
		EndTick:       snap.Header.Tick,
		WorldID:       snap.Header.WorldID,
		Snapshot:      filepath.Base(dst),
		CatalogDigest: snap.Header.CatalogDigest,
		Chunks:        len(snap.Chunks),
		CreatedAt:     time.Now().UTC().Format(time.RFC3339Nano),
		EpochTicks:    epochTicks,
	}
	if b, err := json.MarshalIndent(meta, "", "  "); err == nil {
		_ = os.WriteFile(filepath.Join(archiveDir, "meta.json"), b, 0o644)
	}

	return epoch, dst, true, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
