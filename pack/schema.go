package pack

import (
	"fmt"
	"os"

	"github.com/TheoDgb/URLCustomDiscsAPI/types"
)

// Schema is the model-manifest layout of a pack.
type Schema int

const (
	// SchemaLegacy keeps disc models as overrides in models/item/music_disc_13.json.
	SchemaLegacy Schema = iota
	// SchemaCurrent keeps disc models as range_dispatch entries in items/music_disc_13.json.
	SchemaCurrent
)

// CurrentSchemaSince is the first platform version using SchemaCurrent.
var CurrentSchemaSince = types.PlatformVersion{Major: 1, Minor: 21, Patch: 4}

func (s Schema) String() string {
	if s == SchemaCurrent {
		return "current"
	}
	return "legacy"
}

// SchemaFor selects the schema for a platform version.
func SchemaFor(v types.PlatformVersion) Schema {
	if v.AtLeast(CurrentSchemaSince) {
		return SchemaCurrent
	}
	return SchemaLegacy
}

// DetectSchema infers the schema of an unpacked pack: a pack with an item
// definition file is current, anything else is legacy.
func DetectSchema(dir string) (Schema, error) {
	_, err := os.Stat(ItemDefinitionPath(dir))
	switch {
	case err == nil:
		return SchemaCurrent, nil
	case os.IsNotExist(err):
		return SchemaLegacy, nil
	default:
		return SchemaLegacy, fmt.Errorf("detect schema: %w", err)
	}
}

// Templates maps each schema to the empty pack a registration starts from.
type Templates struct {
	Legacy  string
	Current string
}

// For returns the template archive for schema.
func (t Templates) For(s Schema) string {
	if s == SchemaCurrent {
		return t.Current
	}
	return t.Legacy
}
