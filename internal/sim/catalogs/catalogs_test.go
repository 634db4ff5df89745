package catalogs

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"multipart.dev/internal/sim/cell"
	"multipart.dev/internal/sim/multipart"
)

func TestLoad_RepoConfigs(t *testing.T) {
	cats, err := Load("../../../configs")
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	if cats.Blocks.Palette[0] != "AIR" || cats.Blocks.Index["AIR"] != 0 {
		t.Fatalf("AIR must be palette id 0: %v", cats.Blocks.Palette)
	}
	if !cats.Blocks.Replaceable("TALL_GRASS") || cats.Blocks.Replaceable("STONE") || cats.Blocks.Replaceable("NOPE") {
		t.Fatalf("unexpected replaceability")
	}

	reg := multipart.NewRegistry()
	if err := cats.Register(reg); err != nil {
		t.Fatalf("register: %v", err)
	}
	typ, ok := reg.Lookup("example_facing")
	if !ok {
		t.Fatalf("missing example_facing")
	}
	if !typ.Directional() || typ.Size() != 3 {
		t.Fatalf("example_facing: directional=%v size=%d", typ.Directional(), typ.Size())
	}
	if got := typ.Facing(multipart.State{Facing: cell.West}); got != cell.West {
		t.Fatalf("directional facing=%s", got)
	}
	plain, _ := reg.Lookup("example")
	if plain.Directional() {
		t.Fatalf("example should not be directional")
	}
	if got := plain.Facing(multipart.State{Facing: cell.West}); got != cell.North {
		t.Fatalf("plain facing=%s", got)
	}
}

func TestParseStructure_Rejects(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{name: "not json", raw: `{`},
		{name: "missing parts", raw: `{"id":"a"}`},
		{name: "empty parts", raw: `{"id":"a","parts":[]}`},
		{name: "short offset", raw: `{"id":"a","parts":[[0,0]]}`},
		{name: "fractional offset", raw: `{"id":"a","parts":[[0,0.5,0]]}`},
		{name: "bad id", raw: `{"id":"Has Space","parts":[[0,0,0]]}`},
		{name: "unknown field", raw: `{"id":"a","parts":[[0,0,0]],"rotate":true}`},
	}
	for _, c := range cases {
		if _, err := ParseStructure([]byte(c.raw)); err == nil {
			t.Fatalf("%s: expected error", c.name)
		}
	}

	_, err := ParseStructure([]byte(`{"id":"a","parts":[[0,0,0],[1,2,3],[0,0,0]]}`))
	if !errors.Is(err, multipart.ErrDuplicateOffset) {
		t.Fatalf("duplicate offset: got %v", err)
	}
}

func TestLoad_StructureErrors(t *testing.T) {
	write := func(dir, name, body string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	setup := func() string {
		dir := t.TempDir()
		if err := os.MkdirAll(filepath.Join(dir, "structures"), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		write(dir, "blocks.json", `[{"id":"AIR","replaceable":true},{"id":"STONE"}]`)
		return dir
	}

	dir := setup()
	write(filepath.Join(dir, "structures"), "a.json", `{"id":"tower","parts":[[0,0,0],[0,1,0]]}`)
	write(filepath.Join(dir, "structures"), "b.json", `{"id":"tower","parts":[[0,0,0]]}`)
	if _, err := Load(dir); err == nil {
		t.Fatalf("expected duplicate structure id error")
	}

	dir = setup()
	write(filepath.Join(dir, "structures"), "a.json", `{"id":"STONE_x","parts":[[0,0,0]]}`)
	if _, err := Load(dir); err == nil {
		t.Fatalf("expected schema error for upper-case id")
	}

	dir = setup()
	write(dir, "blocks.json", `[{"id":"STONE"}]`)
	if _, err := Load(dir); err == nil {
		t.Fatalf("expected missing AIR error")
	}

	dir = setup()
	cats, err := Load(dir)
	if err != nil {
		t.Fatalf("load without structures: %v", err)
	}
	if len(cats.Structures.ByID) != 0 || cats.Structures.Digest == "" {
		t.Fatalf("empty structure catalog: %+v", cats.Structures)
	}
}
