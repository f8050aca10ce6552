package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"resume-matcher/internal/domain"
	"resume-matcher/internal/storage"
)

// TextExtractor turns an uploaded file into plain text based on its extension.
type TextExtractor interface {
	Extract(data []byte, filename string) (string, error)
}

// ResumeArchive keeps raw uploads per user.
type ResumeArchive interface {
	Store(ctx context.Context, userID int64, filename string, data []byte) (string, error)
	List(ctx context.Context, userID int64) ([]storage.ObjectInfo, error)
	Purge(ctx context.Context, userID int64) error
}

type Upload struct {
	ResumeText string
	// Location is empty when archiving is disabled or failed.
	Location string
}

// ResumeService handles resume uploads. Uploads are never charged.
type ResumeService interface {
	Upload(ctx context.Context, credential, filename string, data []byte) (*Upload, error)
	List(ctx context.Context, credential string) ([]storage.ObjectInfo, error)
	Purge(ctx context.Context, credential string) error
}

type resumeService struct {
	identities IdentityResolver
	extractor  TextExtractor
	archive    ResumeArchive
	logger     logrus.FieldLogger
}

// NewResumeService builds the upload service. archive may be nil.
func NewResumeService(identities IdentityResolver, extractor TextExtractor, archive ResumeArchive, logger logrus.FieldLogger) ResumeService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &resumeService{
		identities: identities,
		extractor:  extractor,
		archive:    archive,
		logger:     logger,
	}
}

func (s *resumeService) Upload(ctx context.Context, credential, filename string, data []byte) (*Upload, error) {
	user, err := s.identities.Resolve(ctx, credential)
	if err != nil {
		return nil, err
	}

	filename = strings.TrimSpace(filename)
	if filename == "" {
		return nil, fmt.Errorf("%w: file name is required", domain.ErrInput)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: file is empty", domain.ErrInput)
	}

	text, err := s.extractor.Extract(data, filename)
	if err != nil {
		if errors.Is(err, domain.ErrUnsupportedFormat) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: extract %s: %w", domain.ErrUpstream, filename, err)
	}

	upload := &Upload{ResumeText: text}
	if s.archive == nil {
		return upload, nil
	}
	location, err := s.archive.Store(ctx, user.ID, filename, data)
	if err != nil {
		s.logger.WithError(err).WithField("user_id", user.ID).Warn("archive resume upload")
		return upload, nil
	}
	upload.Location = location
	return upload, nil
}

func (s *resumeService) List(ctx context.Context, credential string) ([]storage.ObjectInfo, error) {
	user, err := s.identities.Resolve(ctx, credential)
	if err != nil {
		return nil, err
	}
	if s.archive == nil {
		return []storage.ObjectInfo{}, nil
	}
	return s.archive.List(ctx, user.ID)
}

func (s *resumeService) Purge(ctx context.Context, credential string) error {
	user, err := s.identities.Resolve(ctx, credential)
	if err != nil {
		return err
	}
	if s.archive == nil {
		return nil
	}
	if err := s.archive.Purge(ctx, user.ID); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrUpstream, err)
	}
	return nil
}
