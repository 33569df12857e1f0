package database

import "time"

// Entry is a blog entry with an optional image.
type Entry struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	ImageKey    string    `json:"imageKey,omitempty"`
	ImageWidth  int       `json:"imageWidth,omitempty"`
	ImageHeight int       `json:"imageHeight,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// EntryList is one page of entries.
type EntryList struct {
	Items      []Entry `json:"items"`
	TotalItems int     `json:"totalItems"`
	Page       int     `json:"page"`
	PageSize   int     `json:"pageSize"`
	TotalPages int     `json:"totalPages"`
}

// ListOptions controls ListEntries pagination.
type ListOptions struct {
	Page     int
	PageSize int
}
