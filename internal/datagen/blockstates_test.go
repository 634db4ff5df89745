package datagen

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"multipart.dev/internal/sim/catalogs"
	"multipart.dev/internal/sim/multipart"
)

func loadTypes(t *testing.T) (*catalogs.Catalogs, *multipart.Registry) {
	t.Helper()
	cats, err := catalogs.Load("../../configs")
	if err != nil {
		t.Fatalf("catalogs: %v", err)
	}
	reg := multipart.NewRegistry()
	if err := cats.Register(reg); err != nil {
		t.Fatalf("register: %v", err)
	}
	return cats, reg
}

func TestGenerate_NonDirectional(t *testing.T) {
	cats, reg := loadTypes(t)
	typ, _ := reg.Lookup("example")
	got := ForStructure(typ, cats.Structures.ByID["example"])
	want := Blockstate{Variants: map[string]Variant{
		"part=0": {Model: "multipart:block/example/part_0"},
		"part=1": {Model: "multipart:block/example/part_1"},
		"part=2": {Model: "multipart:block/example/part_2"},
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("blockstate mismatch (-want +got):\n%s", diff)
	}
}

func TestGenerate_DirectionalRotation(t *testing.T) {
	cats, reg := loadTypes(t)
	typ, _ := reg.Lookup("double_door")
	got := ForStructure(typ, cats.Structures.ByID["double_door"])
	if len(got.Variants) != 16 {
		t.Fatalf("variants=%d want 16", len(got.Variants))
	}
	for key, wantY := range map[string]int{
		"facing=north,part=0": 0,
		"facing=east,part=1":  90,
		"facing=south,part=2": 180,
		"facing=west,part=3":  270,
	} {
		v, ok := got.Variants[key]
		if !ok {
			t.Fatalf("missing variant %q", key)
		}
		if v.Y != wantY {
			t.Fatalf("%s: y=%d want %d", key, v.Y, wantY)
		}
	}
	if m := got.Variants["facing=west,part=3"].Model; m != "multipart:block/double_door/part_3" {
		t.Fatalf("model=%q", m)
	}
}

func TestGenerate_CustomHooks(t *testing.T) {
	_, reg := loadTypes(t)
	typ, _ := reg.Lookup("example_facing")
	got := Generate(typ, "mymod", PrefixPath("custom/frame"), func(st multipart.State, v *Variant) {
		v.Y = st.Part * 10
	})
	v := got.Variants["facing=south,part=2"]
	if v.Model != "mymod:custom/frame/part_2" || v.Y != 20 {
		t.Fatalf("variant=%+v", v)
	}
}

func TestWriteAll(t *testing.T) {
	cats, reg := loadTypes(t)
	dir := t.TempDir()
	paths, err := WriteAll(dir, cats, reg)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if len(paths) != 3 {
		t.Fatalf("paths=%v", paths)
	}
	b, err := os.ReadFile(filepath.Join(dir, "assets", "multipart", "blockstates", "example_facing.json"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var bs Blockstate
	if err := json.Unmarshal(b, &bs); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(bs.Variants) != 12 {
		t.Fatalf("variants=%d want 12", len(bs.Variants))
	}
}
