package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/mattn/go-sqlite3"

	"thumbnailfield/internal/logging"
)

const entryColumns = `id, title, body, image_key, image_width, image_height, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*Entry, error) {
	var e Entry
	var created, updated int64
	if err := row.Scan(&e.ID, &e.Title, &e.Body, &e.ImageKey, &e.ImageWidth, &e.ImageHeight, &created, &updated); err != nil {
		return nil, err
	}
	e.CreatedAt = time.Unix(created, 0)
	e.UpdatedAt = time.Unix(updated, 0)
	return &e, nil
}

func translateError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
		return ErrDuplicateTitle
	}
	return err
}

// CreateEntry inserts e and fills in its ID and timestamps.
func (d *Database) CreateEntry(ctx context.Context, e *Entry) (err error) {
	start := time.Now()
	defer func() { recordQuery("create_entry", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	now := time.Now().Unix()
	result, err := d.db.ExecContext(ctx, `
		INSERT INTO entries (title, body, image_key, image_width, image_height, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, e.Title, e.Body, e.ImageKey, e.ImageWidth, e.ImageHeight, now, now)
	if err != nil {
		err = translateError(err)
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	e.ID = id
	e.CreatedAt = time.Unix(now, 0)
	e.UpdatedAt = e.CreatedAt
	logging.Debug("Created entry %d (%q)", e.ID, e.Title)
	return nil
}

// GetEntry retrieves an entry by ID.
func (d *Database) GetEntry(ctx context.Context, id int64) (_ *Entry, err error) {
	start := time.Now()
	defer func() { recordQuery("get_entry", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	e, err := scanEntry(d.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM entries WHERE id = ?`, id))
	if err != nil {
		err = translateError(err)
		return nil, err
	}
	return e, nil
}

// UpdateEntry writes the title and body of e.
func (d *Database) UpdateEntry(ctx context.Context, e *Entry) (err error) {
	start := time.Now()
	defer func() { recordQuery("update_entry", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	now := time.Now().Unix()
	result, err := d.db.ExecContext(ctx, `
		UPDATE entries SET title = ?, body = ?, updated_at = ? WHERE id = ?
	`, e.Title, e.Body, now, e.ID)
	if err != nil {
		err = translateError(err)
		return err
	}
	if err = requireRow(result); err != nil {
		return err
	}
	e.UpdatedAt = time.Unix(now, 0)
	return nil
}

// UpdateEntryImage stores the image key and original dimensions of an entry.
func (d *Database) UpdateEntryImage(ctx context.Context, id int64, key string, width, height int) (err error) {
	start := time.Now()
	defer func() { recordQuery("update_entry_image", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	result, err := d.db.ExecContext(ctx, `
		UPDATE entries SET image_key = ?, image_width = ?, image_height = ?, updated_at = ? WHERE id = ?
	`, key, width, height, time.Now().Unix(), id)
	if err != nil {
		return err
	}
	err = requireRow(result)
	return err
}

// DeleteEntry removes an entry row. Image cleanup is the caller's job.
func (d *Database) DeleteEntry(ctx context.Context, id int64) (err error) {
	start := time.Now()
	defer func() { recordQuery("delete_entry", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	result, err := d.db.ExecContext(ctx, `DELETE FROM entries WHERE id = ?`, id)
	if err != nil {
		return err
	}
	err = requireRow(result)
	return err
}

// ListEntries returns a page of entries, newest first.
func (d *Database) ListEntries(ctx context.Context, opts ListOptions) (_ *EntryList, err error) {
	start := time.Now()
	defer func() { recordQuery("list_entries", start, err) }()

	if opts.Page < 1 {
		opts.Page = 1
	}
	if opts.PageSize < 1 {
		opts.PageSize = 50
	}
	if opts.PageSize > 500 {
		opts.PageSize = 500
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var total int
	if err = d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries`).Scan(&total); err != nil {
		return nil, fmt.Errorf("count query failed: %w", err)
	}

	rows, err := d.db.QueryContext(ctx, `
		SELECT `+entryColumns+` FROM entries
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, opts.PageSize, (opts.Page-1)*opts.PageSize)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := &EntryList{
		Items:      []Entry{},
		TotalItems: total,
		Page:       opts.Page,
		PageSize:   opts.PageSize,
		TotalPages: int(math.Ceil(float64(total) / float64(opts.PageSize))),
	}
	for rows.Next() {
		e, scanErr := scanEntry(rows)
		if scanErr != nil {
			err = scanErr
			return nil, err
		}
		list.Items = append(list.Items, *e)
	}
	err = rows.Err()
	if err != nil {
		return nil, err
	}
	return list, nil
}

// EntriesWithImages calls fn for each entry that has an image, in ID
// order. Rows are read before fn is called so fn may use the database.
func (d *Database) EntriesWithImages(ctx context.Context, fn func(Entry) error) (err error) {
	start := time.Now()
	var entries []Entry
	func() {
		defer func() { recordQuery("list_entries_with_images", start, err) }()

		d.mu.RLock()
		defer d.mu.RUnlock()

		var rows *sql.Rows
		rows, err = d.db.QueryContext(ctx, `SELECT `+entryColumns+` FROM entries WHERE image_key != '' ORDER BY id`)
		if err != nil {
			return
		}
		defer rows.Close()
		for rows.Next() {
			e, scanErr := scanEntry(rows)
			if scanErr != nil {
				err = scanErr
				return
			}
			entries = append(entries, *e)
		}
		err = rows.Err()
	}()
	if err != nil {
		return err
	}

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

func requireRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
