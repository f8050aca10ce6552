package storage

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

const defaultLinkExpiry = 15 * time.Minute

var contentTypes = map[string]string{
	".pdf":  "application/pdf",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".txt":  "text/plain; charset=utf-8",
}

// ResumeArchive keeps uploaded resume files under a per-user prefix.
type ResumeArchive struct {
	svc        Service
	bucket     string
	prefix     string
	linkExpiry time.Duration
}

func NewResumeArchive(svc Service, bucket, prefix string) *ResumeArchive {
	return &ResumeArchive{
		svc:        svc,
		bucket:     bucket,
		prefix:     strings.Trim(prefix, "/"),
		linkExpiry: defaultLinkExpiry,
	}
}

func (a *ResumeArchive) Store(ctx context.Context, userID int64, filename string, data []byte) (string, error) {
	key := ResumeKey(a.prefix, userID, filename)
	ext := strings.ToLower(filepath.Ext(filename))
	return a.svc.PutObject(ctx, bytes.NewReader(data), PutOptions{
		Bucket:      a.bucket,
		Key:         key,
		ContentType: contentTypes[ext],
	})
}

// List returns the user's archived files with short-lived download links.
func (a *ResumeArchive) List(ctx context.Context, userID int64) ([]ObjectInfo, error) {
	objects, err := a.svc.ListObjects(ctx, a.bucket, userPrefix(a.prefix, userID))
	if err != nil {
		return nil, err
	}
	for i := range objects {
		url, err := a.svc.GetObjectURL(ctx, a.bucket, objects[i].Key, a.linkExpiry)
		if err != nil {
			return nil, err
		}
		objects[i].URL = url
	}
	if objects == nil {
		objects = []ObjectInfo{}
	}
	return objects, nil
}

func (a *ResumeArchive) Purge(ctx context.Context, userID int64) error {
	return a.svc.DeletePrefix(ctx, a.bucket, userPrefix(a.prefix, userID))
}

// ResumeKey builds <prefix>/<userID>/<uuid><ext>.
func ResumeKey(prefix string, userID int64, filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	return path.Join(userPrefix(prefix, userID), uuid.NewString()+ext)
}

func userPrefix(prefix string, userID int64) string {
	id := fmt.Sprintf("%d", userID)
	if prefix == "" {
		return id + "/"
	}
	return path.Join(prefix, id) + "/"
}
