package interpro_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/pgzip"
	"github.com/soundprediction/go-biohub/pkg/botlog"
	"github.com/soundprediction/go-biohub/pkg/driver"
	"github.com/soundprediction/go-biohub/pkg/idmapper"
	"github.com/soundprediction/go-biohub/pkg/sources/interpro"
	"github.com/soundprediction/go-biohub/pkg/staging"
	"github.com/soundprediction/go-biohub/pkg/types"
	"github.com/soundprediction/go-biohub/pkg/uploader"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const entriesXML = `<?xml version="1.0" encoding="UTF-8"?>
<interprodb>
<release>
<dbinfo dbname="INTERPRO" version="61.0" entry_count="3" file_date="03-NOV-16"/>
<dbinfo dbname="PFAM" version="30.0" entry_count="16306" file_date="24-JUN-16"/>
</release>
<interpro id="IPR000001" protein_count="10" short_name="Kringle" type="Domain">
<name>Kringle</name>
<abstract><p>Kringles are autonomous structural domains.</p></abstract>
<found_in><rel_ref ipr_ref="IPR000003"/></found_in>
</interpro>
<interpro id="IPR000002" protein_count="5" short_name="Fam_parent" type="Family">
<name>Parent family</name>
<child_list><rel_ref ipr_ref="IPR000003"/></child_list>
</interpro>
<interpro id="IPR000003" protein_count="3" short_name="Fam_child" type="Family">
<name>Child family</name>
<parent_list><rel_ref ipr_ref="IPR000002"/></parent_list>
<contains><rel_ref ipr_ref="IPR000001"/></contains>
</interpro>
</interprodb>
`

const proteinsTSV = "P00001\tIPR000002\tParent family\tPF00001\t1\t100\n" +
	"P00001\tIPR000003\tChild family\tPF00002\t1\t100\n" +
	"P00001\tIPR000001\tKringle\tPF00051\t10\t50\n" +
	"P00001\tIPR000001\tKringle\tSM00130\t12\t48\n" +
	"P00002\tIPR000002\tParent family\tPF00001\t1\t90\n" +
	"P00003\tIPR999999\tUnknown\tPF99999\t1\t10\n"

func writeGzip(t *testing.T, path, content string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	gz := pgzip.NewWriter(f)
	_, err = gz.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())
}

func fixture(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeGzip(t, filepath.Join(dir, interpro.EntriesFile), entriesXML)
	writeGzip(t, filepath.Join(dir, interpro.ProteinsFile), proteinsTSV)
	return dir
}

func TestParseReleaseInfo(t *testing.T) {
	var docs []staging.Doc
	err := interpro.ParseReleaseInfo(context.Background(), fixture(t), func(d staging.Doc) error {
		docs = append(docs, d)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "INTERPRO", docs[0]["_id"])
	assert.Equal(t, "61.0", docs[0]["version"])
	assert.Equal(t, "03-NOV-16", docs[0]["file_date"])
	assert.Equal(t, "PFAM", docs[1]["_id"])
}

func TestParseEntries(t *testing.T) {
	entries, err := interpro.LoadEntries(context.Background(), fixture(t))
	require.NoError(t, err)
	require.Len(t, entries, 3)

	kringle := entries["IPR000001"]
	assert.Equal(t, "Kringle", kringle.Name)
	assert.Equal(t, "Domain", kringle.Type)
	assert.Equal(t, 10, kringle.ProteinCount)
	assert.Equal(t, []string{"IPR000003"}, kringle.FoundIn)
	assert.Empty(t, kringle.Parent)

	child := entries["IPR000003"]
	assert.Equal(t, "IPR000002", child.Parent)
	assert.Equal(t, []string{"IPR000001"}, child.Contains)
	assert.Equal(t, []string{"IPR000003"}, entries["IPR000002"].Children)
}

func TestParseEntries_MultipleParents(t *testing.T) {
	dir := t.TempDir()
	writeGzip(t, filepath.Join(dir, interpro.EntriesFile), `<interprodb>
<interpro id="IPR000009" protein_count="1" short_name="x" type="Family"><name>x</name>
<parent_list><rel_ref ipr_ref="IPR000001"/><rel_ref ipr_ref="IPR000002"/></parent_list>
</interpro></interprodb>`)
	err := interpro.ParseEntries(context.Background(), dir, func(interpro.Entry) error { return nil })
	assert.ErrorContains(t, err, "2 parents")
}

func TestParseProteins(t *testing.T) {
	ctx := context.Background()
	dir := fixture(t)
	entries, err := interpro.LoadEntries(ctx, dir)
	require.NoError(t, err)

	var got []interpro.Protein
	require.NoError(t, interpro.ParseProteins(ctx, dir, entries, func(p interpro.Protein) error {
		got = append(got, p)
		return nil
	}))
	assert.Equal(t, []interpro.Protein{
		{ID: "P00001", Subclass: []string{"IPR000003"}, HasPart: []string{"IPR000001"}},
		{ID: "P00002", Subclass: []string{"IPR000002"}, HasPart: []string{}},
		{ID: "P00003", Subclass: []string{}, HasPart: []string{}},
	}, got)
}

func TestNewTerm(t *testing.T) {
	term, err := interpro.NewTerm(interpro.Entry{ID: "IPR000001", Name: "Kringle", Type: "Domain"}, "Q1")
	require.NoError(t, err)
	assert.Equal(t, "InterPro Domain", term.Description)
	assert.Equal(t, "Q898273", term.TypeQID)
	assert.Equal(t, "IPR000001: Kringle", term.String())

	_, err = interpro.NewTerm(interpro.Entry{ID: "IPR000002", Type: "Region"}, "Q1")
	assert.Error(t, err)
}

// staged uploads the fixture through the uploader manager.
func staged(t *testing.T) *staging.MemoryStore {
	t.Helper()
	ctx := context.Background()
	s := staging.NewMemoryStore()
	require.NoError(t, s.RegisterDump(ctx, interpro.SourceName, staging.DumpRecord{
		Status:     staging.StatusSuccess,
		Release:    "20170201",
		DataFolder: fixture(t),
	}))
	m := uploader.NewManager(s, nil)
	m.Register(interpro.Uploaders()...)
	require.NoError(t, m.UploadSrc(ctx, interpro.SourceName))
	return s
}

func TestUploaders(t *testing.T) {
	ctx := context.Background()
	s := staged(t)
	for name, want := range map[string]int64{"interpro": 3, "interpro_protein": 3, "dbinfo": 2} {
		n, err := s.Count(ctx, name, nil)
		require.NoError(t, err)
		assert.Equal(t, want, n, name)
	}
	var p interpro.Protein
	require.NoError(t, s.FindOne(ctx, interpro.ProteinsCollection, "P00001", &p))
	assert.Equal(t, []string{"IPR000003"}, p.Subclass)
}

func fixedNow() time.Time { return time.Date(2017, 2, 1, 10, 0, 0, 0, time.UTC) }

func runItemsBot(t *testing.T, s staging.Store, d *driver.MemoryDriver, runID string) []botlog.Entry {
	t.Helper()
	b := &interpro.ItemsBot{
		Deps:    interpro.Deps{Staging: s, Items: d, Mapper: idmapper.NewStoreMapper(d)},
		Options: interpro.Options{LogDir: t.TempDir(), RunID: runID, Now: fixedNow},
	}
	path, err := b.Run(context.Background())
	require.NoError(t, err)
	header, entries, err := botlog.ParseFile(path)
	require.NoError(t, err)
	assert.Equal(t, "InterproBot_Items", header.Bot())
	assert.Equal(t, "61.0", header.Releases()["InterPro"])
	return entries
}

func TestItemsBot(t *testing.T) {
	ctx := context.Background()
	s := staged(t)
	d := driver.NewMemoryDriver()

	entries := runItemsBot(t, s, d, "first")
	sum := botlog.Summarize(entries)
	assert.Equal(t, 3, sum.Created)
	assert.Equal(t, 2, sum.Updated)
	assert.Empty(t, sum.Errors)

	rel, err := d.GetItem(ctx, "Q1")
	require.NoError(t, err)
	assert.Equal(t, "InterPro Release 61.0", rel.Label())
	assert.Equal(t, []string{"+2016-11-03T00:00:00Z"}, rel.ClaimValues("P577"))

	ids, err := d.ClaimIndex(ctx, interpro.PropInterPro, nil)
	require.NoError(t, err)
	require.Len(t, ids, 3)

	child, err := d.GetItem(ctx, ids["IPR000003"])
	require.NoError(t, err)
	assert.Equal(t, "Child family", child.Label())
	assert.Equal(t, "InterPro Family", child.Descriptions["en"])
	assert.Equal(t, []string{"Fam_child", "IPR000003"}, child.Aliases["en"])
	assert.ElementsMatch(t, []string{"Q417841", ids["IPR000002"]}, child.ClaimValues(types.PropSubclassOf))
	assert.Equal(t, []string{ids["IPR000001"]}, child.ClaimValues(types.PropHasPart))

	kringle, err := d.GetItem(ctx, ids["IPR000001"])
	require.NoError(t, err)
	assert.Equal(t, []string{ids["IPR000003"]}, kringle.ClaimValues(types.PropPartOf))
	refs := kringle.Claims[types.PropPartOf][0].References
	require.Len(t, refs, 1)
	assert.Contains(t, refs[0], types.Snak{Property: types.PropStatedIn, Datatype: types.ItemDatatype, Value: "Q1"})

	// Nothing changes on a second run.
	before := len(d.Edits())
	sum = botlog.Summarize(runItemsBot(t, s, d, "second"))
	assert.Equal(t, 0, sum.Created+sum.Updated)
	assert.Equal(t, 5, sum.Skipped)
	assert.Len(t, d.Edits(), before)
}

func TestProteinBot(t *testing.T) {
	ctx := context.Background()
	s := staged(t)
	d := driver.NewMemoryDriver()

	yeast := "Q27510868"
	p1 := types.NewItem("Q100")
	p1.AddStatement(types.ExternalID("P00001", interpro.PropUniProt))
	p1.AddStatement(types.ItemID(yeast, types.PropFoundInTaxon))
	p2 := types.NewItem("Q101")
	p2.AddStatement(types.ExternalID("P00002", interpro.PropUniProt))
	d.Seed(p1, p2)

	runItemsBot(t, s, d, "items")
	ids, err := d.ClaimIndex(ctx, interpro.PropInterPro, nil)
	require.NoError(t, err)

	b := &interpro.ProteinBot{
		Deps:    interpro.Deps{Staging: s, Items: d, Mapper: idmapper.NewStoreMapper(d)},
		Options: interpro.Options{LogDir: t.TempDir(), Now: fixedNow},
		Taxon:   yeast,
	}
	path, err := b.Run(ctx)
	require.NoError(t, err)
	_, entries, err := botlog.ParseFile(path)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "P00001", entries[0].ExternalID)
	assert.Equal(t, botlog.ActionUpdate, entries[0].Msg)
	assert.Equal(t, "Q100", entries[0].WDID)

	got, err := d.GetItem(ctx, "Q100")
	require.NoError(t, err)
	assert.Equal(t, []string{ids["IPR000003"]}, got.ClaimValues(types.PropSubclassOf))
	assert.Equal(t, []string{ids["IPR000001"]}, got.ClaimValues(types.PropHasPart))
	ref := got.Claims[types.PropHasPart][0].References[0]
	assert.Contains(t, ref, types.Snak{Property: types.PropReferenceURL, Datatype: types.URLDatatype, Value: interpro.ProteinURL("P00001")})

	untouched, err := d.GetItem(ctx, "Q101")
	require.NoError(t, err)
	assert.Empty(t, untouched.ClaimValues(types.PropSubclassOf))
}

func TestProteinStatements_MissingEntries(t *testing.T) {
	sts, missing := interpro.Statements(interpro.Protein{
		ID:       "P00009",
		Subclass: []string{"IPR000002"},
		HasPart:  []string{"IPR000001", "IPR000005"},
	}, "Q1", map[string]string{"IPR000001": "Q2", "IPR000002": "Q3"})
	assert.Len(t, sts, 2)
	assert.Equal(t, []string{"IPR000005"}, missing)
}
