package mondo_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/soundprediction/go-biohub/pkg/botlog"
	"github.com/soundprediction/go-biohub/pkg/driver"
	"github.com/soundprediction/go-biohub/pkg/idmapper"
	"github.com/soundprediction/go-biohub/pkg/sources/mondo"
	"github.com/soundprediction/go-biohub/pkg/staging"
	"github.com/soundprediction/go-biohub/pkg/types"
	"github.com/soundprediction/go-biohub/pkg/uploader"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const owlFixture = `<?xml version="1.0"?>
<rdf:RDF xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#"
     xmlns:rdfs="http://www.w3.org/2000/01/rdf-schema#"
     xmlns:owl="http://www.w3.org/2002/07/owl#">
  <owl:Class rdf:about="http://purl.obolibrary.org/obo/MONDO_0000001">
    <rdfs:label>alkaptonuria</rdfs:label>
    <owl:equivalentClass rdf:resource="http://purl.obolibrary.org/obo/DOID_1386"/>
  </owl:Class>
  <owl:Class rdf:about="http://purl.obolibrary.org/obo/UMLS_C0000744">
    <owl:equivalentClass rdf:resource="http://purl.obolibrary.org/obo/DOID_1386"/>
  </owl:Class>
  <owl:Class rdf:about="http://purl.obolibrary.org/obo/MONDO_0000002">
    <owl:equivalentClass rdf:resource="http://purl.obolibrary.org/obo/DOID_9999"/>
    <owl:equivalentClass rdf:resource="http://purl.obolibrary.org/obo/UMLS_C1111111"/>
  </owl:Class>
  <owl:Class rdf:about="http://purl.obolibrary.org/obo/MONDO_0000003">
    <owl:equivalentClass rdf:resource="http://www.orpha.net/ORDO/Orphanet_14"/>
    <owl:equivalentClass rdf:resource="http://purl.obolibrary.org/obo/MONDO_0000003"/>
  </owl:Class>
</rdf:RDF>
`

var fixtureIDs = []string{
	"DOID:1386", "DOID:9999", "MONDO:0000001", "MONDO:0000002", "MONDO:0000003",
	"Orphanet:14", "UMLS:C0000744", "UMLS:C1111111",
}

var fixedNow = func() time.Time { return time.Date(2016, 10, 20, 12, 0, 0, 0, time.UTC) }

func fixture(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, mondo.OntologyFile), []byte(owlFixture), 0o644))
	return dir
}

func TestCURIE(t *testing.T) {
	assert.Equal(t, "DOID:1386", mondo.CURIE("http://purl.obolibrary.org/obo/DOID_1386"))
	assert.Equal(t, "Orphanet:14", mondo.CURIE("http://www.orpha.net/ORDO/Orphanet_14"))
	assert.Equal(t, "NCIT:C_1", mondo.CURIE("http://example.org/onto#NCIT_C_1"))
}

func TestEquivalenceGraph_Closure(t *testing.T) {
	g := mondo.NewEquivalenceGraph()
	g.Add("x/A_1", "x/B_1")
	g.Add("x/C_1", "x/B_1")
	g.Add("x/D_1", "x/D_1")
	assert.Equal(t, 3, g.Len())

	classes := g.Classes()
	require.Len(t, classes, 3)
	for _, c := range classes {
		assert.Equal(t, []string{"A:1", "B:1", "C:1"}, c.EquivalentClass)
	}
}

func TestParseFile(t *testing.T) {
	classes, err := mondo.ParseFile(context.Background(), fixture(t))
	require.NoError(t, err)

	byID := make(map[string]mondo.Equivalence)
	var ids []string
	for _, c := range classes {
		byID[c.ID] = c
		ids = append(ids, c.ID)
	}
	assert.ElementsMatch(t, fixtureIDs, ids)
	assert.Equal(t, []string{"DOID:1386", "MONDO:0000001", "UMLS:C0000744"}, byID["DOID:1386"].EquivalentClass)
	assert.Equal(t, []string{"C0000744"}, byID["DOID:1386"].UMLS())
	assert.Equal(t, []string{"MONDO:0000003", "Orphanet:14"}, byID["Orphanet:14"].EquivalentClass)
	assert.Empty(t, byID["Orphanet:14"].UMLS())
}

func staged(t *testing.T) *staging.MemoryStore {
	t.Helper()
	ctx := context.Background()
	s := staging.NewMemoryStore()
	s.SetStatus(staging.SrcDump{
		ID:         mondo.SourceName,
		Release:    "5f2c9a1",
		DataFolder: fixture(t),
		Download:   staging.DownloadStatus{Status: staging.StatusSuccess, StartedAt: time.Date(2016, 10, 19, 0, 0, 0, 0, time.UTC)},
	})
	m := uploader.NewManager(s, nil)
	m.Register(mondo.Uploader{})
	require.NoError(t, m.UploadSrc(ctx, mondo.SourceName))
	return s
}

func seedDiseases(d *driver.MemoryDriver) {
	a := types.NewItem("Q7")
	a.AddStatement(types.ExternalID("DOID:1386", mondo.PropDOID))
	b := types.NewItem("Q8")
	b.AddStatement(types.ExternalID("MONDO:0000003", "P5270"))
	d.Seed(a, b)
}

func TestUploader(t *testing.T) {
	ctx := context.Background()
	s := staged(t)
	n, err := s.Count(ctx, mondo.SourceName, nil)
	require.NoError(t, err)
	assert.EqualValues(t, len(fixtureIDs), n)

	cur, err := s.Find(ctx, mondo.SourceName, nil)
	require.NoError(t, err)
	defer cur.Close(ctx)
	var ids []string
	for cur.Next(ctx) {
		var doc staging.Doc
		require.NoError(t, cur.Decode(&doc))
		ids = append(ids, doc["_id"].(string))
	}
	require.NoError(t, cur.Err())
	assert.ElementsMatch(t, fixtureIDs, ids)
}

func runBot(t *testing.T, b *mondo.Bot) []botlog.Entry {
	t.Helper()
	path, err := b.Run(context.Background())
	require.NoError(t, err)
	header, entries, err := botlog.ParseFile(path)
	require.NoError(t, err)
	assert.Equal(t, "MondoBot", header.Bot())
	assert.Equal(t, "5f2c9a1", header.Releases()["Mondo"])
	return entries
}

func TestBot(t *testing.T) {
	ctx := context.Background()
	s := staged(t)
	d := driver.NewMemoryDriver()
	seedDiseases(d)

	b := &mondo.Bot{Staging: s, Items: d, Mapper: idmapper.NewStoreMapper(d), LogDir: t.TempDir(), Now: fixedNow}
	entries := runBot(t, b)

	var updated, notFound []string
	for _, e := range entries {
		switch {
		case e.Msg == botlog.ActionUpdate:
			updated = append(updated, e.ExternalID)
		case e.Level == botlog.LevelError && strings.HasPrefix(e.Msg, "doid_not_found"):
			notFound = append(notFound, e.ExternalID)
		}
	}
	assert.Equal(t, []string{"DOID:1386"}, updated)
	assert.Equal(t, []string{"DOID:9999"}, notFound)

	got, err := d.GetItem(ctx, "Q7")
	require.NoError(t, err)
	assert.Equal(t, []string{"C0000744"}, got.ClaimValues(mondo.PropUMLS))
	ref := got.Claims[mondo.PropUMLS][0].References[0]
	assert.Contains(t, ref, types.Snak{Property: types.PropStatedIn, Datatype: types.ItemDatatype, Value: mondo.MondoQID})
	assert.Equal(t, "disease", got.Domain)

	sum, err := b.Summary()
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Updated)

	// A second run finds nothing to write.
	before := len(d.Edits())
	b.RunID = "second"
	sum = botlog.Summarize(runBot(t, b))
	assert.Equal(t, 0, sum.Updated)
	assert.Len(t, d.Edits(), before)
}

func TestBot_DryRun(t *testing.T) {
	s := staged(t)
	d := driver.NewMemoryDriver()
	seedDiseases(d)

	b := &mondo.Bot{Staging: s, Items: d, Mapper: idmapper.NewStoreMapper(d), LogDir: t.TempDir(), Now: fixedNow, DryRun: true}
	sum := botlog.Summarize(runBot(t, b))
	assert.Equal(t, 1, sum.Updated)
	assert.Empty(t, d.Edits())
}

func TestBot_Sample(t *testing.T) {
	s := staged(t)
	d := driver.NewMemoryDriver()
	seedDiseases(d)

	// Only the first document, DOID:1386, is kept.
	b := &mondo.Bot{Staging: s, Items: d, Mapper: idmapper.NewStoreMapper(d), LogDir: t.TempDir(), Now: fixedNow, Sample: true}
	entries := runBot(t, b)
	require.Len(t, entries, 1)
	assert.Equal(t, "DOID:1386", entries[0].ExternalID)
}
