package interpro

import (
	"context"

	"github.com/soundprediction/go-biohub/pkg/staging"
	"github.com/soundprediction/go-biohub/pkg/uploader"
)

// SourceName is the src_dump id of InterPro.
const SourceName = "interpro"

// Collection names.
const (
	EntriesCollection  = "interpro"
	ProteinsCollection = "interpro_protein"
	DBInfoCollection   = "dbinfo"
)

type baseUploader struct{}

func (baseUploader) MainSource() string { return SourceName }

// EntriesUploader stages InterPro entries.
type EntriesUploader struct{ baseUploader }

// Name implements uploader.SourceUploader.
func (EntriesUploader) Name() string { return EntriesCollection }

// Load implements uploader.SourceUploader.
func (EntriesUploader) Load(ctx context.Context, folder string, out chan<- staging.Doc) error {
	return ParseEntries(ctx, folder, func(e Entry) error {
		doc, err := staging.ToDoc(e)
		if err != nil {
			return err
		}
		return uploader.Send(ctx, out, doc)
	})
}

// ProteinsUploader stages protein memberships.
type ProteinsUploader struct{ baseUploader }

// Name implements uploader.SourceUploader.
func (ProteinsUploader) Name() string { return ProteinsCollection }

// Load implements uploader.SourceUploader.
func (ProteinsUploader) Load(ctx context.Context, folder string, out chan<- staging.Doc) error {
	entries, err := LoadEntries(ctx, folder)
	if err != nil {
		return err
	}
	return ParseProteins(ctx, folder, entries, func(p Protein) error {
		doc, err := staging.ToDoc(p)
		if err != nil {
			return err
		}
		return uploader.Send(ctx, out, doc)
	})
}

// DBInfoUploader stages the member database release info.
type DBInfoUploader struct{ baseUploader }

// Name implements uploader.SourceUploader.
func (DBInfoUploader) Name() string { return DBInfoCollection }

// Load implements uploader.SourceUploader.
func (DBInfoUploader) Load(ctx context.Context, folder string, out chan<- staging.Doc) error {
	return ParseReleaseInfo(ctx, folder, func(doc staging.Doc) error {
		return uploader.Send(ctx, out, doc)
	})
}

// Uploaders returns every InterPro uploader.
func Uploaders() []uploader.SourceUploader {
	return []uploader.SourceUploader{EntriesUploader{}, ProteinsUploader{}, DBInfoUploader{}}
}
