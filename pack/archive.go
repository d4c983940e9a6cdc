package pack

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/TheoDgb/URLCustomDiscsAPI/iox"
)

// epoch is the modification time stamped on every repacked entry.
var epoch = time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)

// Unpack extracts the archive at zipPath into dir. Entries that would land
// outside dir are rejected with ErrUnsafePath before anything is written
// for them.
func Unpack(zipPath, dir string) error {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return fmt.Errorf("%w: open %s: %w", ErrArchive, filepath.Base(zipPath), err)
	}
	defer iox.DiscardClose(r)

	root, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrArchive, err)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("%w: %w", ErrArchive, err)
	}

	for _, f := range r.File {
		target, err := entryTarget(root, f.Name)
		if err != nil {
			return err
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("%w: %w", ErrArchive, err)
			}
			continue
		}
		if err := extractFile(f, target); err != nil {
			return fmt.Errorf("%w: extract %s: %w", ErrArchive, f.Name, err)
		}
	}
	return nil
}

func entryTarget(root, name string) (string, error) {
	clean := filepath.FromSlash(strings.ReplaceAll(name, `\`, "/"))
	if filepath.IsAbs(clean) || filepath.VolumeName(clean) != "" {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, name)
	}
	target := filepath.Join(root, clean)
	rel, err := filepath.Rel(root, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, name)
	}
	return target, nil
}

func extractFile(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer iox.DiscardClose(rc)

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		iox.DiscardClose(out)
		return err
	}
	return out.Close()
}

// Repack writes dir as a zip archive at zipPath and returns its size.
// Entries are sorted, use forward slashes and carry a fixed timestamp, so
// the same tree always produces the same bytes. The archive is written to a
// temp file and renamed into place.
func Repack(dir, zipPath string) (int64, error) {
	files, err := listFiles(dir)
	if err != nil {
		return 0, fmt.Errorf("%w: list %s: %w", ErrArchive, dir, err)
	}

	outDir := filepath.Dir(zipPath)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrArchive, err)
	}
	tmp, err := os.CreateTemp(outDir, ".repack-*.zip")
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrArchive, err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	zw := zip.NewWriter(tmp)
	for _, rel := range files {
		if err := addFile(zw, dir, rel); err != nil {
			iox.DiscardClose(zw)
			iox.DiscardClose(tmp)
			return 0, fmt.Errorf("%w: add %s: %w", ErrArchive, rel, err)
		}
	}
	if err := zw.Close(); err != nil {
		iox.DiscardClose(tmp)
		return 0, fmt.Errorf("%w: finish archive: %w", ErrArchive, err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrArchive, err)
	}
	if err := os.Rename(tmpName, zipPath); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrArchive, err)
	}

	fi, err := os.Stat(zipPath)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrArchive, err)
	}
	return fi.Size(), nil
}

// listFiles returns regular files under dir as sorted slash paths.
func listFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	sort.Strings(files)
	return files, err
}

func addFile(zw *zip.Writer, dir, rel string) error {
	hdr := &zip.FileHeader{
		Name:     rel,
		Method:   zip.Deflate,
		Modified: epoch,
	}
	hdr.SetMode(0o644)

	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	f, err := os.Open(filepath.Join(dir, filepath.FromSlash(rel)))
	if err != nil {
		return err
	}
	defer iox.DiscardClose(f)
	_, err = io.Copy(w, f)
	return err
}
