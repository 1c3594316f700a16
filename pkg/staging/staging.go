// Package staging is the MongoDB side of the hub: the src_dump status
// collection and the collections uploaders load data into.
package staging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
)

// SrcDumpCollection holds one status document per data source.
const SrcDumpCollection = "src_dump"

// Status values for dump and upload records.
const (
	StatusDownloading = "downloading"
	StatusUploading   = "uploading"
	StatusSuccess     = "success"
	StatusFailed      = "failed"
)

// ErrNotFound is returned when a document does not exist.
var ErrNotFound = errors.New("document not found")

// Doc is a staged record. It round-trips through BSON.
type Doc = map[string]any

// Filter selects documents by field equality. A value of the form
// map[string]any{"$in": []any{...}} matches any of the listed values.
type Filter = map[string]any

// DownloadStatus is the download section of a src_dump document.
type DownloadStatus struct {
	Status    string    `bson:"status,omitempty" json:"status,omitempty"`
	StartedAt time.Time `bson:"started_at,omitempty" json:"started_at,omitempty"`
	Time      string    `bson:"time,omitempty" json:"time,omitempty"`
	Error     string    `bson:"err,omitempty" json:"err,omitempty"`
}

// UploadJob is the status of one uploader of a source.
type UploadJob struct {
	Status    string    `bson:"status" json:"status"`
	StartedAt time.Time `bson:"started_at,omitempty" json:"started_at,omitempty"`
	Time      string    `bson:"time,omitempty" json:"time,omitempty"`
	Count     int64     `bson:"count,omitempty" json:"count,omitempty"`
	Error     string    `bson:"err,omitempty" json:"err,omitempty"`
}

// UploadStatus is the upload section of a src_dump document.
type UploadStatus struct {
	Status string               `bson:"status,omitempty" json:"status,omitempty"`
	Jobs   map[string]UploadJob `bson:"jobs,omitempty" json:"jobs,omitempty"`
}

// SrcDump is the status document of a data source.
type SrcDump struct {
	ID              string         `bson:"_id" json:"_id"`
	Release         string         `bson:"release,omitempty" json:"release,omitempty"`
	DataFolder      string         `bson:"data_folder,omitempty" json:"data_folder,omitempty"`
	LogFile         string         `bson:"logfile,omitempty" json:"logfile,omitempty"`
	Download        DownloadStatus `bson:"download,omitempty" json:"download,omitempty"`
	Upload          UploadStatus   `bson:"upload,omitempty" json:"upload,omitempty"`
	PendingToUpload bool           `bson:"pending_to_upload,omitempty" json:"pending_to_upload,omitempty"`
}

// DumpRecord is what a dumper reports about a finished or failed dump.
type DumpRecord struct {
	Status     string
	Release    string
	DataFolder string
	LogFile    string
	StartedAt  time.Time
	Elapsed    time.Duration
	Err        string
	// PendingToUpload flags the source for the dispatcher.
	PendingToUpload bool
}

// Cursor iterates over query results.
type Cursor interface {
	Next(ctx context.Context) bool
	Decode(v any) error
	Err() error
	Close(ctx context.Context) error
}

// Store is the staging database used by dumpers, uploaders, the dispatcher and bots.
type Store interface {
	// PendingSources lists src_dump ids flagged pending_to_upload. Only string ids are returned.
	PendingSources(ctx context.Context) ([]string, error)
	// MarkUploadStarted clears the pending flag and the previous upload section.
	MarkUploadStarted(ctx context.Context, src string) error
	SourceStatus(ctx context.Context, src string) (*SrcDump, error)
	RegisterDump(ctx context.Context, src string, rec DumpRecord) error
	RegisterUpload(ctx context.Context, src, uploader string, job UploadJob) error

	// ReplaceCollection loads docs into a temporary collection and swaps it in
	// once the channel is closed. A cancelled ctx leaves the target untouched.
	ReplaceCollection(ctx context.Context, name string, docs <-chan Doc) (int64, error)
	Find(ctx context.Context, name string, filter Filter) (Cursor, error)
	FindOne(ctx context.Context, name string, id string, v any) error
	Count(ctx context.Context, name string, filter Filter) (int64, error)

	Close(ctx context.Context) error
}

// FormatElapsed renders a duration the way status documents store it.
func FormatElapsed(d time.Duration) string {
	return d.Round(time.Second).String()
}

// ToDoc converts a bson-tagged struct to a Doc.
func ToDoc(v any) (Doc, error) {
	raw, err := bson.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %T: %w", v, err)
	}
	var out bson.M
	if err := bson.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode %T: %w", v, err)
	}
	return Doc(out), nil
}

// FromDoc decodes a document into v using its bson tags.
func FromDoc(d Doc, v any) error {
	raw, err := bson.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}
	return bson.Unmarshal(raw, v)
}
