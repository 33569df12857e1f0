package database

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestCreateAndGetEntry(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	e := &Entry{Title: "hello-world", Body: "first post"}
	if err := db.CreateEntry(ctx, e); err != nil {
		t.Fatalf("CreateEntry() error = %v", err)
	}
	if e.ID == 0 {
		t.Fatal("CreateEntry() did not set ID")
	}
	if e.CreatedAt.IsZero() {
		t.Error("CreateEntry() did not set CreatedAt")
	}

	got, err := db.GetEntry(ctx, e.ID)
	if err != nil {
		t.Fatalf("GetEntry() error = %v", err)
	}
	if got.Title != "hello-world" || got.Body != "first post" || got.ImageKey != "" {
		t.Errorf("GetEntry() = %+v", got)
	}
}

func TestCreateEntryDuplicateTitle(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if err := db.CreateEntry(ctx, &Entry{Title: "same"}); err != nil {
		t.Fatal(err)
	}
	err := db.CreateEntry(ctx, &Entry{Title: "same"})
	if !errors.Is(err, ErrDuplicateTitle) {
		t.Errorf("CreateEntry(duplicate) error = %v, want ErrDuplicateTitle", err)
	}
}

func TestGetEntryNotFound(t *testing.T) {
	db := setupTestDB(t)
	if _, err := db.GetEntry(context.Background(), 42); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetEntry(missing) error = %v, want ErrNotFound", err)
	}
}

func TestUpdateEntry(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	e := &Entry{Title: "draft"}
	if err := db.CreateEntry(ctx, e); err != nil {
		t.Fatal(err)
	}
	e.Title = "published"
	e.Body = "done"
	if err := db.UpdateEntry(ctx, e); err != nil {
		t.Fatalf("UpdateEntry() error = %v", err)
	}

	got, err := db.GetEntry(ctx, e.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "published" || got.Body != "done" {
		t.Errorf("after update = %+v", got)
	}

	missing := &Entry{ID: 999, Title: "x"}
	if err := db.UpdateEntry(ctx, missing); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateEntry(missing) error = %v, want ErrNotFound", err)
	}
}

func TestUpdateEntryImage(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	e := &Entry{Title: "with-image"}
	if err := db.CreateEntry(ctx, e); err != nil {
		t.Fatal(err)
	}
	if err := db.UpdateEntryImage(ctx, e.ID, "img/thumbnails/cat.png", 800, 400); err != nil {
		t.Fatalf("UpdateEntryImage() error = %v", err)
	}

	got, err := db.GetEntry(ctx, e.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ImageKey != "img/thumbnails/cat.png" || got.ImageWidth != 800 || got.ImageHeight != 400 {
		t.Errorf("image fields = %q %dx%d", got.ImageKey, got.ImageWidth, got.ImageHeight)
	}

	if err := db.UpdateEntryImage(ctx, e.ID, "", 0, 0); err != nil {
		t.Fatal(err)
	}
	got, _ = db.GetEntry(ctx, e.ID)
	if got.ImageKey != "" {
		t.Errorf("cleared ImageKey = %q", got.ImageKey)
	}

	if err := db.UpdateEntryImage(ctx, 999, "x.png", 1, 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateEntryImage(missing) error = %v, want ErrNotFound", err)
	}
}

func TestDeleteEntry(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	e := &Entry{Title: "gone"}
	if err := db.CreateEntry(ctx, e); err != nil {
		t.Fatal(err)
	}
	if err := db.DeleteEntry(ctx, e.ID); err != nil {
		t.Fatalf("DeleteEntry() error = %v", err)
	}
	if _, err := db.GetEntry(ctx, e.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetEntry(deleted) error = %v", err)
	}
	if err := db.DeleteEntry(ctx, e.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("DeleteEntry(twice) error = %v, want ErrNotFound", err)
	}
}

func TestListEntriesPagination(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := db.CreateEntry(ctx, &Entry{Title: fmt.Sprintf("entry-%d", i)}); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name      string
		opts      ListOptions
		wantItems int
		wantPages int
		wantFirst string
	}{
		{"first page", ListOptions{Page: 1, PageSize: 2}, 2, 3, "entry-4"},
		{"last page", ListOptions{Page: 3, PageSize: 2}, 1, 3, "entry-0"},
		{"defaults", ListOptions{}, 5, 1, "entry-4"},
		{"past the end", ListOptions{Page: 9, PageSize: 2}, 0, 3, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list, err := db.ListEntries(ctx, tt.opts)
			if err != nil {
				t.Fatalf("ListEntries() error = %v", err)
			}
			if len(list.Items) != tt.wantItems {
				t.Errorf("len(Items) = %d, want %d", len(list.Items), tt.wantItems)
			}
			if list.TotalItems != 5 {
				t.Errorf("TotalItems = %d, want 5", list.TotalItems)
			}
			if list.TotalPages != tt.wantPages {
				t.Errorf("TotalPages = %d, want %d", list.TotalPages, tt.wantPages)
			}
			if tt.wantFirst != "" && list.Items[0].Title != tt.wantFirst {
				t.Errorf("first item = %q, want %q", list.Items[0].Title, tt.wantFirst)
			}
		})
	}
}

func TestEntriesWithImages(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	for i, key := range []string{"a.png", "", "c.png"} {
		e := &Entry{Title: fmt.Sprintf("e%d", i), ImageKey: key}
		if err := db.CreateEntry(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	var keys []string
	err := db.EntriesWithImages(ctx, func(e Entry) error {
		keys = append(keys, e.ImageKey)
		// The callback may write to the database
		return db.UpdateEntryImage(ctx, e.ID, e.ImageKey, 1, 1)
	})
	if err != nil {
		t.Fatalf("EntriesWithImages() error = %v", err)
	}
	if len(keys) != 2 || keys[0] != "a.png" || keys[1] != "c.png" {
		t.Errorf("visited keys = %v", keys)
	}

	stop := errors.New("stop")
	calls := 0
	err = db.EntriesWithImages(ctx, func(Entry) error {
		calls++
		return stop
	})
	if !errors.Is(err, stop) || calls != 1 {
		t.Errorf("callback error not propagated: err=%v calls=%d", err, calls)
	}
}
