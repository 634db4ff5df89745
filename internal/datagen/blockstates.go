// Package datagen writes client blockstate files for structure types: one
// variant per part index, and per facing for directional types.
package datagen

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"multipart.dev/internal/sim/catalogs"
	"multipart.dev/internal/sim/cell"
	"multipart.dev/internal/sim/multipart"
)

const DefaultNamespace = "multipart"

type Variant struct {
	Model string `json:"model"`
	Y     int    `json:"y,omitempty"`
}

type Blockstate struct {
	Variants map[string]Variant `json:"variants"`
}

// PathProvider returns the model path (without namespace) for st.
type PathProvider func(st multipart.State, id string) string

// ExtraData adjusts the variant generated for st.
type ExtraData func(st multipart.State, v *Variant)

// PartPath reads models from block/<id>/part_<i>.
func PartPath(st multipart.State, id string) string {
	return "block/" + id + "/part_" + strconv.Itoa(st.Part)
}

// PrefixPath reads models from <prefix>/part_<i>.
func PrefixPath(prefix string) PathProvider {
	return func(st multipart.State, _ string) string {
		return prefix + "/part_" + strconv.Itoa(st.Part)
	}
}

// FacingRotation turns the model to the state's facing; models are authored
// facing north.
func FacingRotation(st multipart.State, v *Variant) {
	v.Y = (st.Facing.YRot() + 180) % 360
}

// Generate builds the variant map for every state of t.
func Generate(t *multipart.Type, namespace string, path PathProvider, extra ExtraData) Blockstate {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if path == nil {
		path = PartPath
	}
	bs := Blockstate{Variants: make(map[string]Variant)}
	add := func(key string, st multipart.State) {
		v := Variant{Model: namespace + ":" + path(st, t.ID())}
		if extra != nil {
			extra(st, &v)
		}
		bs.Variants[key] = v
	}
	for part := 0; part < t.Size(); part++ {
		if !t.Directional() {
			add("part="+strconv.Itoa(part), multipart.State{Block: t.ID(), Part: part})
			continue
		}
		for _, f := range cell.Facings {
			add(fmt.Sprintf("facing=%s,part=%d", f, part), multipart.State{Block: t.ID(), Part: part, Facing: f})
		}
	}
	return bs
}

// ForStructure generates the blockstate of a catalog structure with the
// default hooks: part paths (or the def's model path) and facing rotation for
// directional types.
func ForStructure(t *multipart.Type, def catalogs.StructureDef) Blockstate {
	var path PathProvider = PartPath
	if def.ModelPath != "" {
		path = PrefixPath(def.ModelPath)
	}
	var extra ExtraData
	if t.Directional() {
		extra = FacingRotation
	}
	return Generate(t, def.Namespace, path, extra)
}

// WriteAll writes assets/<ns>/blockstates/<id>.json under outDir for every
// structure in cats and returns the written paths in id order.
func WriteAll(outDir string, cats *catalogs.Catalogs, reg *multipart.Registry) ([]string, error) {
	ids := make([]string, 0, len(cats.Structures.ByID))
	for id := range cats.Structures.ByID {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var paths []string
	for _, id := range ids {
		def := cats.Structures.ByID[id]
		t, ok := reg.Lookup(id)
		if !ok {
			return paths, fmt.Errorf("structure %s: not registered", id)
		}
		ns := def.Namespace
		if ns == "" {
			ns = DefaultNamespace
		}
		b, err := json.MarshalIndent(ForStructure(t, def), "", "  ")
		if err != nil {
			return paths, err
		}
		p := filepath.Join(outDir, "assets", ns, "blockstates", id+".json")
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return paths, err
		}
		if err := os.WriteFile(p, append(b, '\n'), 0o644); err != nil {
			return paths, fmt.Errorf("write %s: %w", p, err)
		}
		paths = append(paths, p)
	}
	return paths, nil
}
