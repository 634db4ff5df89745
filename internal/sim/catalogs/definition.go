package catalogs

import (
	"multipart.dev/internal/sim/cell"
	"multipart.dev/internal/sim/multipart"
)

type structureDefinition struct{ def StructureDef }

func (s structureDefinition) ID() string { return s.def.ID }

func (s structureDefinition) DefineParts(b *multipart.Builder) {
	for _, p := range s.def.Parts {
		b.Define(p[0], p[1], p[2])
	}
}

type directionalDefinition struct{ structureDefinition }

func (directionalDefinition) Facing(st multipart.State) cell.Facing { return st.Facing }

// Definition adapts d to the multipart engine. Directional structures read
// their facing from the stored cell state.
func (d StructureDef) Definition() multipart.Definition {
	base := structureDefinition{def: d}
	if d.Directional {
		return directionalDefinition{base}
	}
	return base
}
