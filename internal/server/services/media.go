package services

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/gophblog/internal/common"
	"github.com/dmitrijs2005/gophblog/internal/logging"
	"github.com/dmitrijs2005/gophblog/internal/server/models"
	"github.com/dmitrijs2005/gophblog/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gophblog/internal/server/storage"
	"github.com/dmitrijs2005/gophblog/internal/server/transform"
	"github.com/google/uuid"
)

const (
	// CachePublic lets browsers and CDNs keep public media forever; the URL
	// never changes meaning.
	CachePublic = "public, max-age=31536000, immutable"
	// CachePrivate keeps private media out of every cache.
	CachePrivate = "private, no-store"
)

// UploadResult is returned to the uploader.
type UploadResult struct {
	ID               string `json:"-"`
	URL              string `json:"url"`
	OriginalFilename string `json:"originalFilename"`
}

// ServeOptions is the requested rendition of a media item.
type ServeOptions struct {
	Transform transform.Options
	// Original bypasses any transform and returns the stored bytes.
	Original bool
}

// MediaContent is a media item ready to be written to the client.
type MediaContent struct {
	Data         []byte
	ContentType  string
	CacheControl string
	Filename     string
}

// MediaService accepts uploads and serves stored media through the
// visibility rules.
type MediaService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	store       storage.ObjectStore
	logger      logging.Logger
}

func NewMediaService(db *sql.DB, m repomanager.RepositoryManager, store storage.ObjectStore, logger logging.Logger) *MediaService {
	return &MediaService{
		db:          db,
		repomanager: m,
		store:       store,
		logger:      logger.With("module", "media"),
	}
}

// Upload stores body and records it as a fresh, public, unreferenced item.
// contentType may be empty, in which case it is derived from the filename
// or sniffed from the first bytes.
func (s *MediaService) Upload(ctx context.Context, uploaderID, filename, contentType string, body io.Reader) (*UploadResult, error) {
	filename = path.Base(filepath.ToSlash(strings.TrimSpace(filename)))
	if filename == "" || filename == "." || filename == "/" {
		return nil, fmt.Errorf("%w: filename is required", common.ErrValidation)
	}

	br := bufio.NewReader(body)
	contentType = detectContentType(filename, contentType, br)

	id := uuid.New()
	key := storage.RandomKey(id)

	if err := s.store.Put(ctx, key, contentType, br); err != nil {
		return nil, fmt.Errorf("error storing object: %w", err)
	}

	item := &models.Media{
		ID:               id.String(),
		BlobURL:          common.MediaPathPrefix + id.String(),
		StorageKey:       key,
		OriginalFilename: filename,
		ContentType:      contentType,
		UploaderID:       uploaderID,
		IsPublic:         true,
		Status:           models.MediaUploaded,
	}
	if err := s.repomanager.Media(s.db).Create(ctx, item); err != nil {
		if delErr := s.store.Delete(ctx, key); delErr != nil {
			s.logger.Warn(ctx, "orphan object left behind", "key", key, "error", delErr)
		}
		return nil, fmt.Errorf("error recording media: %w", err)
	}

	s.logger.Info(ctx, "media uploaded", "media_id", item.ID, "content_type", contentType)
	return &UploadResult{ID: item.ID, URL: item.BlobURL, OriginalFilename: filename}, nil
}

// Serve fetches a media item for a caller.
//
// Items that do not exist or are pending deletion are common.ErrorNotFound.
// Private items need an authenticated caller, else common.ErrAccessDenied.
// Images are transformed when a rendition is requested and Original is
// not set.
func (s *MediaService) Serve(ctx context.Context, id string, opts ServeOptions, authenticated bool) (*MediaContent, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, common.ErrorNotFound
	}

	item, err := s.repomanager.Media(s.db).GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if item.Status == models.MediaPendingDeletion {
		return nil, common.ErrorNotFound
	}
	if !item.IsPublic && !authenticated {
		return nil, common.ErrAccessDenied
	}

	data, err := s.store.Get(ctx, item.StorageKey)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.logger.Warn(ctx, "backing object missing", "media_id", item.ID, "key", item.StorageKey)
		}
		return nil, err
	}

	if !opts.Original && !opts.Transform.IsZero() && item.IsImage() && transform.Supported(item.ContentType) {
		if data, err = transform.Apply(data, item.ContentType, opts.Transform); err != nil {
			return nil, err
		}
	}

	cache := CachePrivate
	if item.IsPublic {
		cache = CachePublic
	}

	return &MediaContent{
		Data:         data,
		ContentType:  item.ContentType,
		CacheControl: cache,
		Filename:     item.OriginalFilename,
	}, nil
}

func detectContentType(filename, declared string, br *bufio.Reader) string {
	if mt, _, err := mime.ParseMediaType(declared); err == nil && mt != "application/octet-stream" {
		return mt
	}
	if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename))); byExt != "" {
		if mt, _, err := mime.ParseMediaType(byExt); err == nil {
			return mt
		}
	}
	head, _ := br.Peek(512)
	mt, _, _ := mime.ParseMediaType(http.DetectContentType(head))
	return mt
}
