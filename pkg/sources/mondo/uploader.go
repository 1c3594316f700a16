package mondo

import (
	"context"

	"github.com/soundprediction/go-biohub/pkg/staging"
	"github.com/soundprediction/go-biohub/pkg/uploader"
)

// SourceName is the src_dump id and collection of Mondo.
const SourceName = "mondo"

// Uploader stages equivalence classes.
type Uploader struct{}

// Name implements uploader.SourceUploader.
func (Uploader) Name() string { return SourceName }

// MainSource implements uploader.SourceUploader.
func (Uploader) MainSource() string { return SourceName }

// Load implements uploader.SourceUploader.
func (Uploader) Load(ctx context.Context, folder string, out chan<- staging.Doc) error {
	classes, err := ParseFile(ctx, folder)
	if err != nil {
		return err
	}
	for _, c := range classes {
		doc, err := staging.ToDoc(c)
		if err != nil {
			return err
		}
		if err := uploader.Send(ctx, out, doc); err != nil {
			return err
		}
	}
	return nil
}
