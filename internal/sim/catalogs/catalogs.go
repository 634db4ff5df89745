package catalogs

import (
	"bytes"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"multipart.dev/internal/sim/multipart"
)

//go:embed structure.schema.json
var structureSchemaJSON string

var structureSchema = jsonschema.MustCompileString("structure.schema.json", structureSchemaJSON)

type Catalogs struct {
	Blocks     BlockCatalog
	Structures StructureCatalog
}

type BlockCatalog struct {
	Palette       []string
	Index         map[string]uint16
	Defs          map[string]BlockDef
	PaletteDigest string
	DefsDigest    string
}

type BlockDef struct {
	ID          string `json:"id"`
	Replaceable bool   `json:"replaceable"`
}

type StructureCatalog struct {
	ByID   map[string]StructureDef
	Digest string
}

// StructureDef is one structure type as written in configs/structures.
type StructureDef struct {
	ID          string   `json:"id"`
	Namespace   string   `json:"namespace,omitempty"`
	Directional bool     `json:"directional,omitempty"`
	ModelPath   string   `json:"model_path,omitempty"`
	Parts       [][3]int `json:"parts"`
}

func Load(configDir string) (*Catalogs, error) {
	var c Catalogs

	if err := loadBlocks(filepath.Join(configDir, "blocks.json"), &c.Blocks); err != nil {
		return nil, err
	}
	if err := loadStructures(filepath.Join(configDir, "structures"), &c.Structures); err != nil {
		return nil, err
	}
	for id := range c.Structures.ByID {
		if _, clash := c.Blocks.Defs[id]; clash {
			return nil, fmt.Errorf("structure %s: id clashes with a block", id)
		}
	}
	return &c, nil
}

// Register adds every structure to reg in id order.
func (c *Catalogs) Register(reg *multipart.Registry) error {
	ids := make([]string, 0, len(c.Structures.ByID))
	for id := range c.Structures.ByID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if _, err := reg.Register(c.Structures.ByID[id].Definition()); err != nil {
			return err
		}
	}
	return nil
}

// Replaceable reports whether block id may be overwritten by a placement.
// Unknown ids are treated as solid.
func (b BlockCatalog) Replaceable(id string) bool {
	d, ok := b.Defs[id]
	return ok && d.Replaceable
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func loadBlocks(path string, out *BlockCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.DefsDigest = sha256Hex(raw)

	var defs []BlockDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("blocks.json: %w", err)
	}
	out.Defs = map[string]BlockDef{}
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("blocks.json: empty id")
		}
		out.Defs[d.ID] = d
	}

	ids := make([]string, 0, len(out.Defs))
	for id := range out.Defs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	// Ensure AIR exists and is palette id 0.
	air, ok := out.Defs["AIR"]
	if !ok {
		return fmt.Errorf("blocks.json: missing AIR")
	}
	if !air.Replaceable {
		return fmt.Errorf("blocks.json: AIR must be replaceable")
	}
	ids = append([]string{"AIR"}, filterOut(ids, "AIR")...)

	out.Palette = ids
	out.Index = make(map[string]uint16, len(ids))
	for i, id := range ids {
		out.Index[id] = uint16(i)
	}
	palJSON, _ := json.Marshal(ids)
	out.PaletteDigest = sha256Hex(palJSON)
	return nil
}

func loadStructures(dir string, out *StructureCatalog) error {
	out.ByID = map[string]StructureDef{}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			out.Digest = sha256Hex(nil)
			return nil
		}
		return err
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(e.Name(), ".json") {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)

	var concat bytes.Buffer
	for _, p := range files {
		b, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		concat.Write(b)
		concat.WriteByte('\n')

		sd, err := ParseStructure(b)
		if err != nil {
			return fmt.Errorf("structure %s: %w", filepath.Base(p), err)
		}
		if _, dup := out.ByID[sd.ID]; dup {
			return fmt.Errorf("structure %s: duplicate id %s", filepath.Base(p), sd.ID)
		}
		out.ByID[sd.ID] = sd
	}
	out.Digest = sha256Hex(concat.Bytes())
	return nil
}

// ParseStructure validates raw against the structure schema and checks that
// its part list would register.
func ParseStructure(raw []byte) (StructureDef, error) {
	var sd StructureDef
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return sd, err
	}
	if err := structureSchema.Validate(doc); err != nil {
		return sd, err
	}
	if err := json.Unmarshal(raw, &sd); err != nil {
		return sd, err
	}
	if _, err := multipart.NewType(sd.Definition()); err != nil {
		return sd, err
	}
	return sd, nil
}

func filterOut(in []string, remove string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == remove {
			continue
		}
		out = append(out, s)
	}
	return out
}
