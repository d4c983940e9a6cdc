package pack

import "errors"

// Step failures. Each AddDisc step fails with its own sentinel.
var (
	ErrAudioAsset    = errors.New("pack: audio asset")
	ErrSoundRegistry = errors.New("pack: sound registry")
	ErrModelManifest = errors.New("pack: model manifest")
	ErrModelFile     = errors.New("pack: model file")
)

var (
	// ErrNotFound is returned when a disc is absent from the pack.
	ErrNotFound = errors.New("pack: disc not found")
	// ErrArchive marks zip read or write failures.
	ErrArchive = errors.New("pack: archive")
	// ErrUnsafePath marks an archive entry that would escape the target directory.
	ErrUnsafePath = errors.New("pack: unsafe entry path")
)
