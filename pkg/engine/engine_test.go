package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/soundprediction/go-biohub/pkg/driver"
	"github.com/soundprediction/go-biohub/pkg/engine"
	"github.com/soundprediction/go-biohub/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func iprRef(release string) types.Reference {
	return types.NewReference(types.ItemID(release, types.PropStatedIn), types.ExternalID("IPR000001", "P2926"))
}

func seedInterPro(t *testing.T) *driver.MemoryDriver {
	t.Helper()
	d := driver.NewMemoryDriver()
	it := types.NewItem("Q100")
	it.Labels["en"] = "Kringle"
	it.Descriptions["en"] = "InterPro Domain"
	it.AddStatement(types.ExternalID("IPR000001", "P2926", iprRef("Q1")))
	it.AddStatement(types.ItemID("Q898273", types.PropSubclassOf, iprRef("Q1")))
	d.Seed(it)
	return d
}

func TestNew_CreatesWhenNothingMatches(t *testing.T) {
	ctx := context.Background()
	d := driver.NewMemoryDriver()

	e, err := engine.New(ctx, d, engine.Options{
		ItemName: "Kringle",
		Domain:   "interpro",
		Data:     []types.Statement{types.ExternalID("IPR000001", "P2926")},
	})
	require.NoError(t, err)
	assert.True(t, e.CreateNewItem())
	assert.True(t, e.RequireWrite())

	qid, err := e.Write(ctx, "create")
	require.NoError(t, err)
	assert.Equal(t, "Q1", qid)
	assert.False(t, e.CreateNewItem())
	assert.False(t, e.RequireWrite())

	stored, err := d.GetItem(ctx, qid)
	require.NoError(t, err)
	assert.Equal(t, "Kringle", stored.Label())
	assert.Equal(t, "interpro", stored.Domain)
}

func TestNew_SearchOnly(t *testing.T) {
	_, err := engine.New(context.Background(), driver.NewMemoryDriver(), engine.Options{
		Data:       []types.Statement{types.ExternalID("1", "P351")},
		SearchOnly: true,
	})
	assert.ErrorIs(t, err, engine.ErrNoMatch)
}

func TestNew_Ambiguous(t *testing.T) {
	d := driver.NewMemoryDriver()
	a := types.NewItem("Q1")
	a.AddStatement(types.ExternalID("851487", "P351"))
	b := types.NewItem("Q2")
	b.AddStatement(types.ExternalID("YDL072C", "P594"))
	d.Seed(a, b)

	_, err := engine.New(context.Background(), d, engine.Options{
		Data: []types.Statement{
			types.ExternalID("851487", "P351"),
			types.ExternalID("YDL072C", "P594"),
		},
	})
	assert.ErrorIs(t, err, engine.ErrAmbiguousItem)
}

func TestEngine_NoChangeNoWrite(t *testing.T) {
	ctx := context.Background()
	d := seedInterPro(t)

	e, err := engine.New(ctx, d, engine.Options{
		Data: []types.Statement{
			types.ExternalID("IPR000001", "P2926", iprRef("Q1")),
			types.ItemID("Q898273", types.PropSubclassOf, iprRef("Q1")),
		},
		AppendValue: []string{types.PropSubclassOf},
	})
	require.NoError(t, err)
	assert.False(t, e.CreateNewItem())
	assert.Equal(t, "Q100", e.ItemID())
	assert.False(t, e.RequireWrite())

	qid, err := e.Write(ctx, "noop")
	require.NoError(t, err)
	assert.Equal(t, "Q100", qid)
	assert.Empty(t, d.Edits())
}

func TestEngine_AppendKeepsExisting(t *testing.T) {
	ctx := context.Background()
	d := seedInterPro(t)

	e, err := engine.New(ctx, d, engine.Options{
		Data: []types.Statement{
			types.ExternalID("IPR000001", "P2926", iprRef("Q1")),
			types.ItemID("Q500", types.PropSubclassOf, iprRef("Q1")),
		},
		AppendValue: []string{types.PropSubclassOf},
	})
	require.NoError(t, err)
	assert.True(t, e.RequireWrite())
	assert.ElementsMatch(t, []string{"Q898273", "Q500"}, e.Item().ClaimValues(types.PropSubclassOf))

	_, err = e.Write(ctx, "append")
	require.NoError(t, err)
	stored, err := d.GetItem(ctx, "Q100")
	require.NoError(t, err)
	assert.Len(t, stored.Claims[types.PropSubclassOf], 2)
}

func TestEngine_AppendMergesNewReference(t *testing.T) {
	ctx := context.Background()
	d := seedInterPro(t)

	e, err := engine.New(ctx, d, engine.Options{
		ItemID:      "Q100",
		Data:        []types.Statement{types.ItemID("Q898273", types.PropSubclassOf, iprRef("Q2"))},
		AppendValue: []string{types.PropSubclassOf},
	})
	require.NoError(t, err)
	assert.True(t, e.RequireWrite())

	sts := e.Item().Claims[types.PropSubclassOf]
	require.Len(t, sts, 1)
	assert.Len(t, sts[0].References, 2)
}

func TestEngine_ReplaceDropsOldValues(t *testing.T) {
	ctx := context.Background()
	d := seedInterPro(t)

	e, err := engine.New(ctx, d, engine.Options{
		ItemID: "Q100",
		Data:   []types.Statement{types.ItemID("Q417841", types.PropSubclassOf, iprRef("Q1"))},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Q417841"}, e.Item().ClaimValues(types.PropSubclassOf))
	assert.True(t, e.RequireWrite())
}

func TestEngine_ReplaceKeepsStoredReferences(t *testing.T) {
	ctx := context.Background()
	d := seedInterPro(t)

	e, err := engine.New(ctx, d, engine.Options{
		ItemID: "Q100",
		Data:   []types.Statement{types.ItemID("Q898273", types.PropSubclassOf, iprRef("Q2"))},
	})
	require.NoError(t, err)
	assert.True(t, e.RequireWrite())

	_, err = e.Write(ctx, "update subclass")
	require.NoError(t, err)
	it, err := d.GetItem(ctx, "Q100")
	require.NoError(t, err)
	sts := it.Claims[types.PropSubclassOf]
	require.Len(t, sts, 1)
	assert.Len(t, sts[0].References, 2)
	assert.True(t, sts[0].HasReference(iprRef("Q1")))
	assert.True(t, sts[0].HasReference(iprRef("Q2")))
}

func TestEngine_RetrievedDateDoesNotForceWrite(t *testing.T) {
	ctx := context.Background()
	d := driver.NewMemoryDriver()

	ref := func(day int) types.Reference {
		return types.NewReference(
			types.ItemID("Q27468140", types.PropStatedIn),
			types.Time(time.Date(2016, 10, day, 0, 0, 0, 0, time.UTC), types.PropRetrieved),
		)
	}
	it := types.NewItem("Q7")
	it.AddStatement(types.ExternalID("DOID:1386", "P699"))
	it.AddStatement(types.ExternalID("C0000744", "P2892", ref(1)))
	d.Seed(it)

	e, err := engine.New(ctx, d, engine.Options{
		ItemID:      "Q7",
		Data:        []types.Statement{types.ExternalID("C0000744", "P2892", ref(20))},
		AppendValue: []string{"P2892"},
	})
	require.NoError(t, err)
	assert.False(t, e.RequireWrite())

	e, err = engine.New(ctx, d, engine.Options{
		ItemID: "Q7",
		Data:   []types.Statement{types.ExternalID("C0000744", "P2892", ref(20))},
	})
	require.NoError(t, err)
	assert.False(t, e.RequireWrite())
}

func TestEngine_TermsAndAliases(t *testing.T) {
	ctx := context.Background()
	d := seedInterPro(t)

	e, err := engine.New(ctx, d, engine.Options{ItemID: "Q100"})
	require.NoError(t, err)
	assert.False(t, e.RequireWrite())

	e.SetLabel("Kringle", "")
	e.SetDescription("InterPro Domain", "en")
	assert.False(t, e.RequireWrite())

	e.SetAliases([]string{"Kringle_dom", "IPR000001", "Kringle_dom", ""}, "")
	assert.Equal(t, []string{"Kringle_dom", "IPR000001"}, e.Item().Aliases["en"])
	assert.True(t, e.RequireWrite())

	e.SetDescription("InterPro Family", "")
	_, err = e.Write(ctx, "terms")
	require.NoError(t, err)

	stored, err := d.GetItem(ctx, "Q100")
	require.NoError(t, err)
	assert.Equal(t, "InterPro Family", stored.Descriptions["en"])
}

func TestEngine_Update(t *testing.T) {
	ctx := context.Background()
	d := seedInterPro(t)

	e, err := engine.New(ctx, d, engine.Options{ItemID: "Q100"})
	require.NoError(t, err)
	e.Update([]types.Statement{types.ItemID("Q200", "P688")})
	assert.Equal(t, []string{"Q200"}, e.Item().ClaimValues("P688"))
	assert.True(t, e.RequireWrite())
}

func TestEngine_MissingExplicitItem(t *testing.T) {
	_, err := engine.New(context.Background(), driver.NewMemoryDriver(), engine.Options{ItemID: "Q9"})
	assert.ErrorIs(t, err, driver.ErrItemNotFound)
}
