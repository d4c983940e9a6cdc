package store

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := t.Context()
	work := t.TempDir()

	src := filepath.Join(work, "src.zip")
	if err := os.WriteFile(src, []byte("PK-archive"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := s.Stat(ctx, "tok.zip"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Stat before Put = %v, want ErrNotFound", err)
	}

	size, err := PutFile(ctx, s, "tok.zip", src)
	if err != nil {
		t.Fatalf("PutFile: %v", err)
	}
	if size != 10 {
		t.Errorf("size = %d, want 10", size)
	}

	got, err := s.Stat(ctx, "tok.zip")
	if err != nil || got != 10 {
		t.Fatalf("Stat = %d, %v", got, err)
	}

	dst := filepath.Join(work, "fetched", "tok.zip")
	n, err := s.Fetch(ctx, "tok.zip", dst)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if n != 10 {
		t.Errorf("fetched %d bytes, want 10", n)
	}
	data, _ := os.ReadFile(dst)
	if string(data) != "PK-archive" {
		t.Errorf("fetched content = %q", data)
	}

	if err := s.Delete(ctx, "tok.zip"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Stat(ctx, "tok.zip"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Stat after Delete = %v, want ErrNotFound", err)
	}
	if err := s.Delete(ctx, "tok.zip"); err != nil {
		t.Errorf("Delete of absent key = %v, want nil", err)
	}
	if _, err := s.Fetch(ctx, "tok.zip", dst+".2"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Fetch of absent key = %v, want ErrNotFound", err)
	}
}

func TestDirStore(t *testing.T) {
	s, err := NewDirStore(filepath.Join(t.TempDir(), "objects"))
	if err != nil {
		t.Fatal(err)
	}
	exerciseStore(t, s)
}

func TestDirStore_RejectsPathKeys(t *testing.T) {
	s, err := NewDirStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"../escape.zip", "a/b.zip", "", ".."} {
		if err := s.Put(t.Context(), key, strings.NewReader("x"), 1); err == nil {
			t.Errorf("Put(%q) succeeded, want error", key)
		}
	}
}

func TestDirStore_ShortWrite(t *testing.T) {
	s, err := NewDirStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Put(t.Context(), "tok.zip", strings.NewReader("abc"), 10); err == nil {
		t.Fatal("expected short write error")
	}
	if _, err := s.Stat(t.Context(), "tok.zip"); !errors.Is(err, ErrNotFound) {
		t.Errorf("partial object left behind: %v", err)
	}
}

// fakeS3 is an in-memory S3API.
type fakeS3 struct {
	mu           sync.Mutex
	objects      map[string][]byte
	contentTypes map[string]string
	putErr       error
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}, contentTypes: map[string]string{}}
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Key)] = data
	f.contentTypes[aws.ToString(in.Key)] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &s3types.NoSuchKey{Message: aws.String("The specified key does not exist.")}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &s3types.NotFound{Message: aws.String("Not Found")}
	}
	return &s3.HeadObjectOutput{ContentLength: aws.Int64(int64(len(data)))}, nil
}

func TestS3Store(t *testing.T) {
	fake := newFakeS3()
	s := NewS3StoreWithClient(fake, S3Config{Bucket: "packs"})
	exerciseStore(t, s)
}

func TestS3Store_PrefixAndContentType(t *testing.T) {
	fake := newFakeS3()
	s := NewS3StoreWithClient(fake, S3Config{Bucket: "packs", Prefix: "prod"})

	if err := s.Put(t.Context(), "tok.zip", strings.NewReader("zip"), 3); err != nil {
		t.Fatal(err)
	}
	if _, ok := fake.objects["prod/tok.zip"]; !ok {
		t.Errorf("objects = %v, want key prod/tok.zip", fake.objects)
	}
	if ct := fake.contentTypes["prod/tok.zip"]; ct != "application/zip" {
		t.Errorf("content type = %q", ct)
	}
}

func TestS3Store_PutErrorClassified(t *testing.T) {
	fake := newFakeS3()
	fake.putErr = errors.New("operation error S3: PutObject, https response error StatusCode: 403, api error AccessDenied")
	s := NewS3StoreWithClient(fake, S3Config{Bucket: "packs"})

	err := s.Put(t.Context(), "tok.zip", strings.NewReader("zip"), 3)
	if !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("err = %v, want ErrAccessDenied", err)
	}
}

func TestS3Config_Validate(t *testing.T) {
	cfg := S3Config{}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for missing bucket")
	}
	cfg.Bucket = "b"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate = %v", err)
	}
}
