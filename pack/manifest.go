package pack

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/TheoDgb/URLCustomDiscsAPI/iox"
)

// readObject decodes a JSON object file, keeping unknown members verbatim.
// A missing file yields an empty object.
func readObject(path string) (map[string]json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]json.RawMessage{}, nil
	}
	if err != nil {
		return nil, err
	}
	obj := map[string]json.RawMessage{}
	if len(bytes.TrimSpace(data)) == 0 {
		return obj, nil
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return obj, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return iox.WriteFileAtomic(path, append(data, '\n'), 0o644)
}

// --- Sound registry ---

type soundEntry struct {
	Category string      `json:"category"`
	Sounds   []soundFile `json:"sounds"`
}

type soundFile struct {
	Name   string `json:"name"`
	Stream bool   `json:"stream"`
}

func upsertSound(dir, name string) error {
	path := SoundsPath(dir)
	reg, err := readObject(path)
	if err != nil {
		return err
	}
	key := SoundKey(name)
	if _, ok := reg[key]; ok {
		return nil
	}
	entry, err := json.Marshal(soundEntry{
		Category: "record",
		Sounds:   []soundFile{{Name: "custom/" + name, Stream: true}},
	})
	if err != nil {
		return err
	}
	reg[key] = entry
	return writeJSON(path, reg)
}

// removeSound deletes the registry key. Returns ErrNotFound if absent.
func removeSound(dir, name string) error {
	path := SoundsPath(dir)
	reg, err := readObject(path)
	if err != nil {
		return err
	}
	key := SoundKey(name)
	if _, ok := reg[key]; !ok {
		return fmt.Errorf("%w: sound key %s", ErrNotFound, key)
	}
	delete(reg, key)
	return writeJSON(path, reg)
}

// --- Legacy override list ---

type overrideProbe struct {
	Predicate struct {
		CustomModelData *float64 `json:"custom_model_data"`
	} `json:"predicate"`
	Model string `json:"model"`
}

type overrideEntry struct {
	Predicate struct {
		CustomModelData int `json:"custom_model_data"`
	} `json:"predicate"`
	Model string `json:"model"`
}

func readOverrides(path string) (map[string]json.RawMessage, []json.RawMessage, error) {
	doc, err := readObject(path)
	if err != nil {
		return nil, nil, err
	}
	var overrides []json.RawMessage
	if raw, ok := doc["overrides"]; ok && string(raw) != "null" {
		if err := json.Unmarshal(raw, &overrides); err != nil {
			return nil, nil, fmt.Errorf("parse overrides: %w", err)
		}
	}
	return doc, overrides, nil
}

func upsertOverride(dir, name string, cmd int) error {
	path := LegacyManifestPath(dir)
	doc, overrides, err := readOverrides(path)
	if err != nil {
		return err
	}
	for _, raw := range overrides {
		var p overrideProbe
		if json.Unmarshal(raw, &p) != nil {
			continue
		}
		if p.Predicate.CustomModelData != nil && *p.Predicate.CustomModelData == float64(cmd) {
			return nil
		}
	}

	var e overrideEntry
	e.Predicate.CustomModelData = cmd
	e.Model = ModelRef(name, SchemaLegacy)
	raw, err := json.Marshal(e)
	if err != nil {
		return err
	}
	overrides = append(overrides, raw)

	if doc["overrides"], err = json.Marshal(overrides); err != nil {
		return err
	}
	return writeJSON(path, doc)
}

func removeOverride(dir, name string) error {
	path := LegacyManifestPath(dir)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: no model manifest", ErrNotFound)
	}
	doc, overrides, err := readOverrides(path)
	if err != nil {
		return err
	}

	kept := make([]json.RawMessage, 0, len(overrides))
	for _, raw := range overrides {
		var p overrideProbe
		if json.Unmarshal(raw, &p) == nil && refersTo(p.Model, name) {
			continue
		}
		kept = append(kept, raw)
	}
	if len(kept) == len(overrides) {
		return fmt.Errorf("%w: no override for %s", ErrNotFound, name)
	}

	// The plain item model carries no override list.
	if len(kept) == 0 {
		delete(doc, "overrides")
		return writeJSON(path, doc)
	}
	if doc["overrides"], err = json.Marshal(kept); err != nil {
		return err
	}
	return writeJSON(path, doc)
}

// --- Current item definition ---

type dispatchEntryProbe struct {
	Threshold *float64 `json:"threshold"`
	Model     struct {
		Model string `json:"model"`
	} `json:"model"`
}

type dispatchEntry struct {
	Threshold int        `json:"threshold"`
	Model     plainModel `json:"model"`
}

type plainModel struct {
	Type  string `json:"type"`
	Model string `json:"model"`
}

func defaultDispatch() map[string]json.RawMessage {
	fallback, _ := json.Marshal(plainModel{Type: "minecraft:model", Model: "minecraft:item/" + baseDisc})
	return map[string]json.RawMessage{
		"type":     json.RawMessage(`"minecraft:range_dispatch"`),
		"property": json.RawMessage(`"minecraft:custom_model_data"`),
		"fallback": fallback,
		"entries":  json.RawMessage(`[]`),
	}
}

func readDispatch(path string) (doc, model map[string]json.RawMessage, entries []json.RawMessage, err error) {
	doc, err = readObject(path)
	if err != nil {
		return nil, nil, nil, err
	}
	model = defaultDispatch()
	if raw, ok := doc["model"]; ok {
		var existing map[string]json.RawMessage
		if err := json.Unmarshal(raw, &existing); err != nil {
			return nil, nil, nil, fmt.Errorf("parse item model: %w", err)
		}
		var typ string
		_ = json.Unmarshal(existing["type"], &typ)
		if typ == "minecraft:range_dispatch" {
			for k, v := range existing {
				model[k] = v
			}
		} else {
			// A plain item model becomes the fallback of a new dispatch.
			model["fallback"] = raw
		}
	}
	if raw := model["entries"]; len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &entries); err != nil {
			return nil, nil, nil, fmt.Errorf("parse dispatch entries: %w", err)
		}
	}
	return doc, model, entries, nil
}

func writeDispatch(path string, doc, model map[string]json.RawMessage, entries []json.RawMessage) error {
	sort.SliceStable(entries, func(i, j int) bool {
		return threshold(entries[i]) < threshold(entries[j])
	})
	var err error
	if entries == nil {
		entries = []json.RawMessage{}
	}
	if model["entries"], err = json.Marshal(entries); err != nil {
		return err
	}
	if doc["model"], err = json.Marshal(model); err != nil {
		return err
	}
	return writeJSON(path, doc)
}

func threshold(raw json.RawMessage) float64 {
	var p dispatchEntryProbe
	if json.Unmarshal(raw, &p) != nil || p.Threshold == nil {
		return 0
	}
	return *p.Threshold
}

func upsertDispatch(dir, name string, cmd int) error {
	path := ItemDefinitionPath(dir)
	doc, model, entries, err := readDispatch(path)
	if err != nil {
		return err
	}
	for _, raw := range entries {
		var p dispatchEntryProbe
		if json.Unmarshal(raw, &p) == nil && p.Threshold != nil && *p.Threshold == float64(cmd) {
			return nil
		}
	}

	raw, err := json.Marshal(dispatchEntry{
		Threshold: cmd,
		Model:     plainModel{Type: "minecraft:model", Model: ModelRef(name, SchemaCurrent)},
	})
	if err != nil {
		return err
	}
	return writeDispatch(path, doc, model, append(entries, raw))
}

func removeDispatch(dir, name string) error {
	path := ItemDefinitionPath(dir)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: no item definition", ErrNotFound)
	}
	doc, model, entries, err := readDispatch(path)
	if err != nil {
		return err
	}

	kept := make([]json.RawMessage, 0, len(entries))
	for _, raw := range entries {
		var p dispatchEntryProbe
		if json.Unmarshal(raw, &p) == nil && refersTo(p.Model.Model, name) {
			continue
		}
		kept = append(kept, raw)
	}
	if len(kept) == len(entries) {
		return fmt.Errorf("%w: no dispatch entry for %s", ErrNotFound, name)
	}
	if len(kept) == 0 && synthesized(model) {
		doc["model"] = model["fallback"]
		return writeJSON(path, doc)
	}
	return writeDispatch(path, doc, model, kept)
}

// synthesized reports whether model is exactly the dispatch wrapper added
// around a plain item model, so an empty one can revert to its fallback.
func synthesized(model map[string]json.RawMessage) bool {
	for k := range model {
		switch k {
		case "type", "property", "fallback", "entries":
		default:
			return false
		}
	}
	var prop string
	if json.Unmarshal(model["property"], &prop) != nil || prop != "minecraft:custom_model_data" {
		return false
	}
	var fb struct {
		Type string `json:"type"`
	}
	return json.Unmarshal(model["fallback"], &fb) == nil && fb.Type == "minecraft:model"
}

// refersTo matches a model reference with or without the namespace.
func refersTo(ref, name string) bool {
	return strings.TrimPrefix(ref, "minecraft:") == ModelRef(name, SchemaLegacy)
}

// --- Per-disc model ---

type discModel struct {
	Parent   string            `json:"parent"`
	Textures map[string]string `json:"textures"`
}

func writeModel(dir, name string, s Schema) error {
	ns := namespace(s)
	return writeJSON(ModelPath(dir, name), discModel{
		Parent:   ns + "item/generated",
		Textures: map[string]string{"layer0": ns + "item/record_custom"},
	})
}
