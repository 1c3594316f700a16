package types_test

import (
	"testing"
	"time"

	"github.com/soundprediction/go-biohub/pkg/types"
	"github.com/stretchr/testify/assert"
)

func TestTimeStatementFormat(t *testing.T) {
	st := types.Time(time.Date(2016, 10, 19, 15, 4, 5, 0, time.UTC), types.PropRetrieved)
	assert.Equal(t, "+2016-10-19T00:00:00Z", st.Value)
	assert.Equal(t, types.TimeDatatype, st.Datatype)
}

func TestSameClaimIgnoresQualifierOrder(t *testing.T) {
	a := types.String("100", "P644").WithQualifiers(types.String("NC_1", "P2249"), types.String("x", "P1"))
	b := types.String("100", "P644").WithQualifiers(types.String("x", "P1"), types.String("NC_1", "P2249"))
	c := types.String("100", "P644")

	assert.True(t, a.SameClaim(b))
	assert.False(t, a.SameClaim(c))
}

func TestReferenceEqualIgnoresRetrievedDate(t *testing.T) {
	day1 := types.NewReference(types.ItemID("Q1", types.PropStatedIn), types.Time(time.Date(2016, 1, 1, 0, 0, 0, 0, time.UTC), types.PropRetrieved))
	day2 := types.NewReference(types.ItemID("Q1", types.PropStatedIn), types.Time(time.Date(2017, 1, 1, 0, 0, 0, 0, time.UTC), types.PropRetrieved))
	other := types.NewReference(types.ItemID("Q2", types.PropStatedIn), types.Time(time.Date(2017, 1, 1, 0, 0, 0, 0, time.UTC), types.PropRetrieved))

	assert.True(t, day1.Equal(day2))
	assert.False(t, day1.Equal(other))
}

func TestItemClone(t *testing.T) {
	it := types.NewItem("Q1")
	it.Labels["en"] = "kinase"
	it.AddStatement(types.ExternalID("IPR000001", "P2926", types.NewReference(types.ItemID("Q5", types.PropStatedIn))))

	cp := it.Clone()
	cp.Labels["en"] = "changed"
	cp.Claims["P2926"][0].References[0][0].Value = "Q6"

	assert.Equal(t, "kinase", it.Label())
	assert.Equal(t, "Q5", it.Claims["P2926"][0].References[0][0].Value)
	assert.Equal(t, []string{"IPR000001"}, it.ClaimValues("P2926"))
}
