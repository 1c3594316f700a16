package mygene

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/biogo/ncbi/entrez"
	"github.com/soundprediction/go-biohub/pkg/botlog"
	"github.com/soundprediction/go-biohub/pkg/driver"
	"github.com/soundprediction/go-biohub/pkg/engine"
	"github.com/soundprediction/go-biohub/pkg/types"
)

// ErrArticleNotFound is returned when PubMed has no record for a PMID.
var ErrArticleNotFound = errors.New("pubmed article not found")

// Article is the part of a PubMed record written to the store.
type Article struct {
	PMID  string
	Title string
	DOIs  []string
}

type pubmedArticleSet struct {
	Articles []struct {
		Citation struct {
			PMID  string `xml:"PMID"`
			Title string `xml:"Article>ArticleTitle"`
		} `xml:"MedlineCitation"`
		IDs []struct {
			Type  string `xml:"IdType,attr"`
			Value string `xml:",chardata"`
		} `xml:"PubmedData>ArticleIdList>ArticleId"`
	} `xml:"PubmedArticle"`
}

// ParseArticle decodes the first article of an efetch XML response.
func ParseArticle(r io.Reader) (*Article, error) {
	var set pubmedArticleSet
	if err := xml.NewDecoder(r).Decode(&set); err != nil {
		return nil, fmt.Errorf("failed to decode pubmed response: %w", err)
	}
	if len(set.Articles) == 0 {
		return nil, ErrArticleNotFound
	}
	a := set.Articles[0]
	out := &Article{PMID: strings.TrimSpace(a.Citation.PMID), Title: strings.TrimSpace(a.Citation.Title)}
	for _, id := range a.IDs {
		if id.Type == "doi" {
			out.DOIs = append(out.DOIs, strings.TrimSpace(id.Value))
		}
	}
	return out, nil
}

// ArticleFetcher retrieves PubMed records.
type ArticleFetcher interface {
	FetchArticle(ctx context.Context, pmid string) (*Article, error)
}

// EntrezFetcher fetches articles with the NCBI E-utilities.
type EntrezFetcher struct {
	Tool   string
	Email  string
	APIKey string
}

// FetchArticle implements ArticleFetcher.
func (f EntrezFetcher) FetchArticle(ctx context.Context, pmid string) (*Article, error) {
	id, err := strconv.Atoi(pmid)
	if err != nil {
		return nil, fmt.Errorf("invalid pmid %q: %w", pmid, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r, err := entrez.Fetch("pubmed", &entrez.Parameters{RetMode: "xml", APIKey: f.APIKey}, f.Tool, f.Email, nil, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pmid %s: %w", pmid, err)
	}
	defer r.Close()
	return ParseArticle(r)
}

// PubmedBot resolves PMIDs to scholarly-article items, creating them when needed.
type PubmedBot struct {
	Items   driver.ItemStore
	Fetcher ArticleFetcher
	// Log receives CREATE/UPDATE entries when set.
	Log    *botlog.Writer
	Logger *slog.Logger
	Now    func() time.Time
}

// ArticleStatements builds the statements of an article item.
func ArticleStatements(a *Article, retrieved time.Time) []types.Statement {
	ref := types.NewReference(
		types.ItemID(PubMedQID, types.PropStatedIn),
		types.ExternalID(a.PMID, PropPubMed),
		types.Time(retrieved, types.PropRetrieved),
	)
	sts := []types.Statement{
		types.ItemID(ScholarlyArticleQID, types.PropInstanceOf, ref),
		types.ExternalID(a.PMID, PropPubMed, ref),
		types.MonolingualText(a.Title, "en", PropTitle, ref),
	}
	for _, doi := range a.DOIs {
		sts = append(sts, types.ExternalID(doi, PropDOI, ref))
	}
	return sts
}

// GetOrCreate returns the item of pmid.
func (b *PubmedBot) GetOrCreate(ctx context.Context, pmid string) (string, error) {
	logger := b.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ids, err := b.Items.FindByClaim(ctx, PropPubMed, pmid)
	if err != nil {
		return "", err
	}
	if len(ids) > 1 {
		logger.WarnContext(ctx, "multiple items found for pmid", "pmid", pmid, "items", ids)
	}
	if len(ids) > 0 {
		return ids[0], nil
	}

	a, err := b.Fetcher.FetchArticle(ctx, pmid)
	if err != nil {
		return "", err
	}
	if a.PMID == "" {
		a.PMID = pmid
	}
	now := time.Now()
	if b.Now != nil {
		now = b.Now()
	}
	eng, err := engine.New(ctx, b.Items, engine.Options{
		ItemName:  a.Title,
		Domain:    ArticleDomain,
		Data:      ArticleStatements(a, now),
		CoreProps: []string{PropPubMed},
	})
	if err != nil {
		return "", err
	}
	eng.SetLabel(a.Title, "en")
	eng.SetDescription("scientific article", "en")
	if b.Log != nil {
		return botlog.TryWrite(ctx, eng, pmid, PropPubMed, b.Log, "create scholarly article")
	}
	return eng.Write(ctx, "create scholarly article")
}
