package mygene

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/soundprediction/go-biohub/pkg/httpclient"
	"github.com/soundprediction/go-biohub/pkg/staging"
	"github.com/soundprediction/go-biohub/pkg/uploader"
)

// Source and collection names.
const (
	MainSource      = "mygene"
	YeastCollection = "yeast"
)

// DefaultBaseURL is the public MyGene.info API.
const DefaultBaseURL = "https://mygene.info"

// MetadataURL returns the metadata endpoint polled by the dumper.
func MetadataURL(base string) string {
	if base == "" {
		base = DefaultBaseURL
	}
	return strings.TrimRight(base, "/") + "/v3/metadata"
}

type queryPage struct {
	ScrollID string        `json:"_scroll_id"`
	Total    int           `json:"total"`
	Hits     []staging.Doc `json:"hits"`
	Error    string        `json:"error"`
}

// YeastUploader stages every Entrez gene of a taxon from MyGene.info.
type YeastUploader struct {
	Client  *httpclient.Client
	BaseURL string
	TaxID   int
}

// NewYeastUploader returns an uploader for the S288c strain.
func NewYeastUploader(client *httpclient.Client, baseURL string) *YeastUploader {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &YeastUploader{Client: client, BaseURL: strings.TrimRight(baseURL, "/"), TaxID: Yeast.TaxID}
}

// Name implements uploader.SourceUploader.
func (u *YeastUploader) Name() string { return YeastCollection }

// MainSource implements uploader.SourceUploader.
func (u *YeastUploader) MainSource() string { return MainSource }

func (u *YeastUploader) firstPage() string {
	q := url.Values{}
	q.Set("q", "__all__")
	q.Set("species", strconv.Itoa(u.TaxID))
	q.Set("entrezonly", "true")
	q.Set("fields", "all")
	q.Set("fetch_all", "true")
	return u.BaseURL + "/v3/query?" + q.Encode()
}

// Load implements uploader.SourceUploader. The data folder is unused: hits
// are read straight from the scroll API.
func (u *YeastUploader) Load(ctx context.Context, _ string, out chan<- staging.Doc) error {
	next := u.firstPage()
	for page := 0; ; page++ {
		var p queryPage
		if err := u.Client.GetJSON(ctx, next, &p); err != nil {
			return fmt.Errorf("failed to fetch page %d: %w", page, err)
		}
		if len(p.Hits) == 0 {
			return nil
		}
		for _, hit := range p.Hits {
			doc, err := staging.ToDoc(hit)
			if err != nil {
				return err
			}
			delete(doc, "_score")
			if err := uploader.Send(ctx, out, doc); err != nil {
				return err
			}
		}
		if p.ScrollID == "" {
			return nil
		}
		next = u.BaseURL + "/v3/query?scroll_id=" + url.QueryEscape(p.ScrollID)
	}
}
