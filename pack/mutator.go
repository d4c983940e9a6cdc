package pack

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/TheoDgb/URLCustomDiscsAPI/iox"
	"github.com/TheoDgb/URLCustomDiscsAPI/types"
)

// Disc is a disc to add to a pack.
type Disc struct {
	Name            string
	CustomModelData int
	// AudioPath is the OGG file to embed.
	AudioPath string
	Schema    Schema
}

// Validate checks the disc name and model-data discriminator.
func (d Disc) Validate() error {
	if err := types.ValidateDiscName(d.Name); err != nil {
		return err
	}
	if d.CustomModelData <= 0 {
		return fmt.Errorf("custom model data must be positive, got %d", d.CustomModelData)
	}
	return nil
}

// AddDisc embeds d into the pack at dir. Steps run in a fixed order: audio,
// sound registry, model manifest, model file. Registry and manifest upserts
// are no-ops when the key or discriminator is already present.
func AddDisc(dir string, d Disc) error {
	if err := d.Validate(); err != nil {
		return err
	}

	if _, err := iox.CopyFile(AudioPath(dir, d.Name), d.AudioPath); err != nil {
		return fmt.Errorf("%w: %w", ErrAudioAsset, err)
	}

	if err := upsertSound(dir, d.Name); err != nil {
		return fmt.Errorf("%w: %w", ErrSoundRegistry, err)
	}

	var err error
	if d.Schema == SchemaCurrent {
		err = upsertDispatch(dir, d.Name, d.CustomModelData)
	} else {
		err = upsertOverride(dir, d.Name, d.CustomModelData)
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrModelManifest, err)
	}

	if err := writeModel(dir, d.Name, d.Schema); err != nil {
		return fmt.Errorf("%w: %w", ErrModelFile, err)
	}
	return nil
}

// RemoveReport carries soft failures from RemoveDisc.
type RemoveReport struct {
	Warnings []string
}

// RemoveDisc deletes disc name from the pack at dir. A missing audio
// asset, sound key or manifest entry is ErrNotFound. Failing to delete the
// per-disc model file is reported as a warning.
func RemoveDisc(dir, name string, s Schema) (RemoveReport, error) {
	var report RemoveReport
	if err := types.ValidateDiscName(name); err != nil {
		return report, err
	}

	if err := os.Remove(AudioPath(dir, name)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return report, fmt.Errorf("%w: audio asset for %s", ErrNotFound, name)
		}
		return report, fmt.Errorf("%w: %w", ErrAudioAsset, err)
	}

	if err := removeSound(dir, name); err != nil {
		if errors.Is(err, ErrNotFound) {
			return report, err
		}
		return report, fmt.Errorf("%w: %w", ErrSoundRegistry, err)
	}

	if err := os.Remove(ModelPath(dir, name)); err != nil {
		report.Warnings = append(report.Warnings, fmt.Sprintf("model file for %s not removed: %v", name, err))
	}

	var err error
	if s == SchemaCurrent {
		err = removeDispatch(dir, name)
	} else {
		err = removeOverride(dir, name)
	}
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return report, err
		}
		return report, fmt.Errorf("%w: %w", ErrModelManifest, err)
	}
	return report, nil
}

// CountDiscs returns the number of disc audio assets in the pack.
func CountDiscs(dir string) (int, error) {
	entries, err := os.ReadDir(AudioDir(dir))
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("list discs: %w", err)
	}
	n := 0
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".ogg") {
			n++
		}
	}
	return n, nil
}

// HasDisc reports whether the pack already carries audio for name.
func HasDisc(dir, name string) bool {
	_, err := os.Stat(AudioPath(dir, name))
	return err == nil
}
