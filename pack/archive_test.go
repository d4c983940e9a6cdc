package pack

import (
	"archive/zip"
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func buildZip(t *testing.T, path string, entries map[string]string) {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range entries {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestUnpackRepackRoundTrip(t *testing.T) {
	work := t.TempDir()
	src := filepath.Join(work, "in.zip")
	buildZip(t, src, map[string]string{
		"pack.mcmeta":                          `{"pack":{"pack_format":46}}`,
		"assets/minecraft/sounds.json":         `{}`,
		"assets/minecraft/sounds/custom/a.ogg": "OggS",
		"assets/minecraft/models/item/":        "",
	})

	dir := filepath.Join(work, "unpacked")
	if err := Unpack(src, dir); err != nil {
		t.Fatalf("Unpack: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "assets", "minecraft", "sounds", "custom", "a.ogg")); err != nil {
		t.Fatalf("file not extracted: %v", err)
	}

	out := filepath.Join(work, "out.zip")
	size, err := Repack(dir, out)
	if err != nil {
		t.Fatalf("Repack: %v", err)
	}
	fi, _ := os.Stat(out)
	if fi.Size() != size {
		t.Errorf("size = %d, file is %d", size, fi.Size())
	}

	r, err := zip.OpenReader(out)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	var names []string
	for _, f := range r.File {
		names = append(names, f.Name)
	}
	want := []string{
		"assets/minecraft/sounds.json",
		"assets/minecraft/sounds/custom/a.ogg",
		"pack.mcmeta",
	}
	if len(names) != len(want) {
		t.Fatalf("entries = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("entry %d = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestRepack_Deterministic(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "b"), 0o755); err != nil {
		t.Fatal(err)
	}
	for _, p := range []string{"z.txt", "a.txt", "b/c.txt"} {
		if err := os.WriteFile(filepath.Join(dir, filepath.FromSlash(p)), []byte(p), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	out := t.TempDir()
	first := filepath.Join(out, "1.zip")
	second := filepath.Join(out, "2.zip")
	if _, err := Repack(dir, first); err != nil {
		t.Fatal(err)
	}
	if _, err := Repack(dir, second); err != nil {
		t.Fatal(err)
	}
	a, _ := os.ReadFile(first)
	b, _ := os.ReadFile(second)
	if !bytes.Equal(a, b) {
		t.Error("repacking the same tree produced different bytes")
	}

	entries, _ := os.ReadDir(out)
	if len(entries) != 2 {
		t.Errorf("output dir has %d entries, want 2 (temp files left behind)", len(entries))
	}
}

func TestUnpack_RejectsZipSlip(t *testing.T) {
	for _, name := range []string{"../evil.txt", "a/../../evil.txt", "/abs/evil.txt", `..\evil.txt`} {
		t.Run(name, func(t *testing.T) {
			work := t.TempDir()
			src := filepath.Join(work, "bad.zip")
			buildZip(t, src, map[string]string{name: "pwned"})

			dir := filepath.Join(work, "out")
			err := Unpack(src, dir)
			if !errors.Is(err, ErrUnsafePath) {
				t.Fatalf("err = %v, want ErrUnsafePath", err)
			}
			if _, err := os.Stat(filepath.Join(work, "evil.txt")); !os.IsNotExist(err) {
				t.Error("entry escaped the target directory")
			}
		})
	}
}

func TestUnpack_NotAZip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.zip")
	if err := os.WriteFile(path, []byte("not a zip"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := Unpack(path, t.TempDir()); !errors.Is(err, ErrArchive) {
		t.Fatalf("err = %v, want ErrArchive", err)
	}
}
