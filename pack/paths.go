package pack

import "path/filepath"

const (
	assetsRoot  = "assets/minecraft"
	baseDisc    = "music_disc_13"
	modelPrefix = "custom_music_disc_"
)

// AudioDir is where disc audio lives inside a pack.
func AudioDir(dir string) string {
	return filepath.Join(dir, filepath.FromSlash(assetsRoot), "sounds", "custom")
}

// AudioPath is the OGG asset of a disc.
func AudioPath(dir, name string) string {
	return filepath.Join(AudioDir(dir), name+".ogg")
}

// SoundsPath is the sound registry.
func SoundsPath(dir string) string {
	return filepath.Join(dir, filepath.FromSlash(assetsRoot), "sounds.json")
}

// LegacyManifestPath is the override list used by SchemaLegacy.
func LegacyManifestPath(dir string) string {
	return filepath.Join(dir, filepath.FromSlash(assetsRoot), "models", "item", baseDisc+".json")
}

// ItemDefinitionPath is the item definition used by SchemaCurrent.
func ItemDefinitionPath(dir string) string {
	return filepath.Join(dir, filepath.FromSlash(assetsRoot), "items", baseDisc+".json")
}

// ModelPath is the per-disc model file.
func ModelPath(dir, name string) string {
	return filepath.Join(dir, filepath.FromSlash(assetsRoot), "models", "item", modelPrefix+name+".json")
}

// SoundKey is the sound-registry key of a disc.
func SoundKey(name string) string {
	return "customdisc." + name
}

// namespace is the resource-location prefix written for s.
func namespace(s Schema) string {
	if s == SchemaCurrent {
		return "minecraft:"
	}
	return ""
}

// ModelRef is how the manifest refers to a disc's model.
func ModelRef(name string, s Schema) string {
	return namespace(s) + "item/" + modelPrefix + name
}
