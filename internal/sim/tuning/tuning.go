package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	TickRateHz         int  `yaml:"tick_rate_hz" json:"tick_rate_hz"`
	FrameRateHz        int  `yaml:"frame_rate_hz" json:"frame_rate_hz"`
	WorldHeight        int  `yaml:"world_height" json:"world_height"`
	WorldBoundaryR     int  `yaml:"world_boundary_r" json:"world_boundary_r"`
	InteractiveSide    bool `yaml:"interactive_side" json:"interactive_side"`
	SnapshotEveryTicks int  `yaml:"snapshot_every_ticks" json:"snapshot_every_ticks"`
	// ArchiveEveryTicks copies every epoch-end snapshot to archives/; 0 disables.
	ArchiveEveryTicks int `yaml:"archive_every_ticks" json:"archive_every_ticks"`

	Highlight Highlight `yaml:"highlight" json:"highlight"`
	Placement Placement `yaml:"placement" json:"placement"`
}

type Highlight struct {
	LifetimeTicks int        `yaml:"lifetime_ticks" json:"lifetime_ticks"`
	Color         [3]float32 `yaml:"color" json:"color"`
}

type Placement struct {
	UpdateNeighbors bool `yaml:"update_neighbors" json:"update_neighbors"`
	UpdateClients   bool `yaml:"update_clients" json:"update_clients"`
}

func Defaults() Tuning {
	return Tuning{
		TickRateHz:         20,
		FrameRateHz:        30,
		WorldHeight:        128,
		WorldBoundaryR:     512,
		InteractiveSide:    true,
		SnapshotEveryTicks: 6000,
		ArchiveEveryTicks:  72000,
		Highlight: Highlight{
			LifetimeTicks: 60,
			Color:         [3]float32{1, 0, 0},
		},
		Placement: Placement{UpdateNeighbors: true, UpdateClients: true},
	}
}

// Load reads path over the defaults, so omitted keys keep their default.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	if t.TickRateHz <= 0 {
		return fmt.Errorf("tick_rate_hz must be > 0")
	}
	if t.FrameRateHz < 0 {
		return fmt.Errorf("frame_rate_hz must be >= 0")
	}
	if t.WorldHeight <= 0 {
		return fmt.Errorf("world_height must be > 0")
	}
	if t.SnapshotEveryTicks < 0 || t.ArchiveEveryTicks < 0 {
		return fmt.Errorf("snapshot_every_ticks and archive_every_ticks must be >= 0")
	}
	if t.ArchiveEveryTicks > 0 && (t.SnapshotEveryTicks == 0 || t.ArchiveEveryTicks%t.SnapshotEveryTicks != 0) {
		return fmt.Errorf("archive_every_ticks must be a multiple of snapshot_every_ticks")
	}
	if t.Highlight.LifetimeTicks <= 0 {
		return fmt.Errorf("highlight.lifetime_ticks must be > 0")
	}
	for _, c := range t.Highlight.Color {
		if c < 0 || c > 1 {
			return fmt.Errorf("highlight.color components must be in [0,1]")
		}
	}
	return nil
}
