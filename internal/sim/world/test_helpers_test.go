package world

import (
	"testing"

	"multipart.dev/internal/sim/catalogs"
	"multipart.dev/internal/sim/multipart"
)

type recordingAudits struct{ entries []AuditEntry }

func (r *recordingAudits) WriteAudit(e AuditEntry) error {
	r.entries = append(r.entries, e)
	return nil
}

func (r *recordingAudits) actions() []string {
	out := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Action)
	}
	return out
}

type recordingTicks struct{ entries []TickLogEntry }

func (r *recordingTicks) WriteTick(e TickLogEntry) error {
	r.entries = append(r.entries, e)
	return nil
}

func testConfig() WorldConfig {
	return WorldConfig{
		ID:                "test",
		TickRateHz:        20,
		FrameRateHz:       0,
		Height:            128,
		BoundaryR:         256,
		Interactive:       true,
		HighlightLifetime: 60,
		UpdateMask:        multipart.UpdateDefault,
	}
}

func newTestWorld(t *testing.T, cfg WorldConfig) *World {
	t.Helper()
	cats, err := catalogs.Load("../../../configs")
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	reg := multipart.NewRegistry()
	if err := cats.Register(reg); err != nil {
		t.Fatalf("register: %v", err)
	}
	w, err := New(cfg, cats, reg)
	if err != nil {
		t.Fatalf("world: %v", err)
	}
	return w
}
