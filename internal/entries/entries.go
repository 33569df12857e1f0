package entries

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"

	"thumbnailfield/internal/codec"
	"thumbnailfield/internal/database"
	"thumbnailfield/internal/imagefield"
	"thumbnailfield/internal/logging"
	"thumbnailfield/internal/naming"
)

var (
	// ErrInvalidTitle is returned for an empty title.
	ErrInvalidTitle = errors.New("title is required")

	// ErrNotImage is returned when an upload is not a supported image.
	ErrNotImage = errors.New("upload is not a supported image")
)

// Upload is an image file sent by a client.
type Upload struct {
	Filename string
	Content  io.Reader
}

// Record is an entry together with its image value. A Record must not be
// shared between goroutines.
type Record struct {
	Entry *database.Entry
	Image *imagefield.File
}

// Service manages entries and their images.
type Service struct {
	db       *database.Database
	field    *imagefield.Field
	uploadTo string
}

// NewService returns a service storing uploads under uploadTo.
func NewService(db *database.Database, field *imagefield.Field, uploadTo string) *Service {
	return &Service{
		db:       db,
		field:    field,
		uploadTo: strings.Trim(uploadTo, "/"),
	}
}

// Field returns the image field entries use.
func (s *Service) Field() *imagefield.Field { return s.field }

// Open wraps an entry loaded elsewhere.
func (s *Service) Open(e *database.Entry) *Record {
	rec := &Record{Entry: e}
	rec.Image = s.field.Open(e.ImageKey, imagefield.PersisterFunc(func(ctx context.Context) error {
		return s.persistImage(ctx, rec)
	}))
	return rec
}

// persistImage writes the current image key back to the row.
func (s *Service) persistImage(ctx context.Context, rec *Record) error {
	key := rec.Image.Key()
	var width, height int
	if key != "" {
		dims, err := rec.Image.Dimensions(ctx)
		if err != nil {
			logging.Warn("Could not read dimensions of %s: %v", key, err)
		} else {
			width, height = dims.Width, dims.Height
		}
	}
	if err := s.db.UpdateEntryImage(ctx, rec.Entry.ID, key, width, height); err != nil {
		return err
	}
	rec.Entry.ImageKey = key
	rec.Entry.ImageWidth = width
	rec.Entry.ImageHeight = height
	return nil
}

// UploadKey returns the storage key an upload called filename is saved
// under. Directory parts of filename are dropped and dots inside the stem
// become underscores, so an upload cannot be named like the thumbnail of
// another one.
func (s *Service) UploadKey(filename string) string {
	name := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	name = strings.TrimLeft(name, ".")
	if name == "" || name == "/" {
		name = "upload"
	}
	stem, ext := naming.SplitExt(name)
	if stem == "" {
		stem = uuid.NewString()
	}
	stem = strings.ReplaceAll(stem, ".", "_")
	name = stem + strings.ToLower(ext)
	if s.uploadTo == "" {
		return name
	}
	return path.Join(s.uploadTo, name)
}

// checkUpload rejects uploads whose name or content is not an image the
// codec can write thumbnails for.
func checkUpload(u *Upload) (io.Reader, error) {
	if naming.InferFormat(u.Filename) == "" {
		return nil, fmt.Errorf("%w: unsupported file extension %q", ErrNotImage, path.Ext(u.Filename))
	}
	br := bufio.NewReader(u.Content)
	header, _ := br.Peek(12)
	switch codec.Sniff(header) {
	case "unknown", "mp4-container":
		return nil, ErrNotImage
	}
	return br, nil
}

// saveUpload stores content as the record's original. Leftovers of a
// previous image that could not be deleted do not fail the upload.
func saveUpload(ctx context.Context, rec *Record, key string, content io.Reader) error {
	_, err := rec.Image.SaveOriginal(ctx, key, content, true)
	var cleanup *imagefield.CleanupError
	if errors.As(err, &cleanup) {
		logging.Warn("Entry %d: %v", rec.Entry.ID, err)
		return nil
	}
	return err
}

// Create inserts an entry and, when upload is not nil, stores its image.
// The row is removed again if the image cannot be stored.
func (s *Service) Create(ctx context.Context, title, body string, upload *Upload) (*Record, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrInvalidTitle
	}

	var content io.Reader
	if upload != nil {
		var err error
		if content, err = checkUpload(upload); err != nil {
			return nil, err
		}
	}

	e := &database.Entry{Title: title, Body: body}
	if err := s.db.CreateEntry(ctx, e); err != nil {
		return nil, err
	}
	rec := s.Open(e)

	if upload != nil {
		if err := saveUpload(ctx, rec, s.UploadKey(upload.Filename), content); err != nil {
			if delErr := s.db.DeleteEntry(ctx, e.ID); delErr != nil {
				logging.Error("Failed to remove entry %d after image save failure: %v", e.ID, delErr)
			}
			return nil, err
		}
	}

	logging.Info("Created entry %d (%q) image=%q", e.ID, e.Title, e.ImageKey)
	return rec, nil
}

// Get loads an entry by ID.
func (s *Service) Get(ctx context.Context, id int64) (*Record, error) {
	e, err := s.db.GetEntry(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.Open(e), nil
}

// List returns a page of entries.
func (s *Service) List(ctx context.Context, opts database.ListOptions) (*database.EntryList, error) {
	return s.db.ListEntries(ctx, opts)
}

// Update changes the title and body of an entry.
func (s *Service) Update(ctx context.Context, id int64, title, body string) (*Record, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrInvalidTitle
	}
	rec, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	rec.Entry.Title = title
	rec.Entry.Body = body
	if err := s.db.UpdateEntry(ctx, rec.Entry); err != nil {
		return nil, err
	}
	return rec, nil
}

// ReplaceImage stores upload as the entry's new image. The previous image
// and its thumbnails are removed when the field is configured to.
func (s *Service) ReplaceImage(ctx context.Context, id int64, upload *Upload) (*Record, error) {
	content, err := checkUpload(upload)
	if err != nil {
		return nil, err
	}
	rec, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	prev := rec.Image.Key()
	if err := saveUpload(ctx, rec, s.UploadKey(upload.Filename), content); err != nil {
		return nil, err
	}
	logging.Info("Replaced image of entry %d: %q -> %q", id, prev, rec.Image.Key())
	return rec, nil
}

// RemoveImage deletes the entry's image and its thumbnails and clears the
// key.
func (s *Service) RemoveImage(ctx context.Context, id int64) (*Record, error) {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := rec.Image.Delete(ctx, true); err != nil {
		return nil, err
	}
	return rec, nil
}

// Delete removes an entry with its image and thumbnails. Storage failures
// are logged and the row is removed regardless.
func (s *Service) Delete(ctx context.Context, id int64) error {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := rec.Image.Delete(ctx, false); err != nil {
		logging.Warn("Failed to delete image files of entry %d: %v", id, err)
	}
	if err := s.db.DeleteEntry(ctx, id); err != nil {
		return err
	}
	logging.Info("Deleted entry %d (%q)", id, rec.Entry.Title)
	return nil
}

// EachWithImage calls fn with a fresh Record for every entry that has an
// image.
func (s *Service) EachWithImage(ctx context.Context, fn func(*Record) error) error {
	return s.db.EntriesWithImages(ctx, func(e database.Entry) error {
		return fn(s.Open(&e))
	})
}
