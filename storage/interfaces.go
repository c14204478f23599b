package storage

import "zoopla-scraper/models"

// RecordWriter is the interface any storage backend must satisfy.
type RecordWriter interface {
	Write(records models.Dataset) error
	Close() error
}
