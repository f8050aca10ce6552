package storage

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"
)

type memoryService struct {
	objects      map[string][]byte
	contentTypes map[string]string
	deleted      []string
}

func newMemoryService() *memoryService {
	return &memoryService{objects: map[string][]byte{}, contentTypes: map[string]string{}}
}

func (m *memoryService) PutObject(_ context.Context, body io.Reader, opts PutOptions) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	m.objects[opts.Key] = data
	m.contentTypes[opts.Key] = opts.ContentType
	return "s3://" + opts.Bucket + "/" + opts.Key, nil
}

func (m *memoryService) ListObjects(_ context.Context, _ string, prefix string) ([]ObjectInfo, error) {
	var out []ObjectInfo
	for key, data := range m.objects {
		if strings.HasPrefix(key, prefix) {
			out = append(out, ObjectInfo{Key: key, Size: int64(len(data))})
		}
	}
	return out, nil
}

func (m *memoryService) DeletePrefix(_ context.Context, _ string, prefix string) error {
	for key := range m.objects {
		if strings.HasPrefix(key, prefix) {
			delete(m.objects, key)
			m.deleted = append(m.deleted, key)
		}
	}
	return nil
}

func (m *memoryService) GetObjectURL(_ context.Context, bucket, key string, _ time.Duration) (string, error) {
	return "https://" + bucket + ".example.com/" + key, nil
}

func TestResumeKey(t *testing.T) {
	key := ResumeKey("/resumes/", 42, "CV Final.PDF")
	if !strings.HasPrefix(key, "resumes/42/") || !strings.HasSuffix(key, ".pdf") {
		t.Fatalf("unexpected key %q", key)
	}
	if other := ResumeKey("resumes", 42, "cv.pdf"); other == key {
		t.Fatalf("expected unique keys")
	}
	if bare := ResumeKey("", 7, "notes"); !strings.HasPrefix(bare, "7/") || strings.Contains(bare, ".") {
		t.Fatalf("unexpected key without prefix %q", bare)
	}
}

func TestResumeArchiveIsScopedPerUser(t *testing.T) {
	svc := newMemoryService()
	archive := NewResumeArchive(svc, "bucket", "resumes")
	ctx := context.Background()

	location, err := archive.Store(ctx, 1, "cv.docx", []byte("one"))
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if !strings.HasPrefix(location, "s3://bucket/resumes/1/") {
		t.Fatalf("unexpected location %q", location)
	}
	if _, err := archive.Store(ctx, 2, "cv.txt", []byte("two")); err != nil {
		t.Fatalf("store: %v", err)
	}

	objects, err := archive.List(ctx, 1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(objects) != 1 || objects[0].URL == "" || svc.contentTypes[objects[0].Key] != contentTypes[".docx"] {
		t.Fatalf("unexpected objects %+v", objects)
	}

	if err := archive.Purge(ctx, 1); err != nil {
		t.Fatalf("purge: %v", err)
	}
	objects, _ = archive.List(ctx, 1)
	if objects == nil || len(objects) != 0 {
		t.Fatalf("expected empty non-nil list, got %#v", objects)
	}
	if len(svc.objects) != 1 {
		t.Fatalf("purge touched other users: %v", svc.objects)
	}
}
