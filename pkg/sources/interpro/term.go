package interpro

import (
	"fmt"
	"time"

	"github.com/soundprediction/go-biohub/pkg/release"
	"github.com/soundprediction/go-biohub/pkg/types"
	"github.com/soundprediction/go-biohub/pkg/utils"
)

// Properties written by the InterPro bots.
const (
	PropInterPro = "P2926"
	PropUniProt  = "P352"
	PropHasPart  = types.PropHasPart
	PropPartOf   = types.PropPartOf
)

// Entry types.
const (
	TypeActiveSite    = "Active_site"
	TypeBindingSite   = "Binding_site"
	TypeConservedSite = "Conserved_site"
	TypeDomain        = "Domain"
	TypeFamily        = "Family"
	TypePTM           = "PTM"
	TypeRepeat        = "Repeat"
)

// DatabaseQID is the InterPro database item.
const DatabaseQID = "Q3047275"

var typeDescriptions = map[string]string{
	TypeActiveSite:    "InterPro Active Site",
	TypeBindingSite:   "InterPro Binding Site",
	TypeConservedSite: "InterPro Conserved Site",
	TypeDomain:        "InterPro Domain",
	TypeFamily:        "InterPro Family",
	TypePTM:           "InterPro PTM",
	TypeRepeat:        "InterPro Repeat",
}

var typeQIDs = map[string]string{
	TypeActiveSite:    "Q423026",  // active site
	TypeBindingSite:   "Q616005",  // binding site
	TypeConservedSite: "Q7644128", // supersecondary structure
	TypeDomain:        "Q898273",  // protein domain
	TypeFamily:        "Q417841",  // protein family
	TypePTM:           "Q898362",  // post-translational modification
	TypeRepeat:        "Q3273544", // structural motif
}

// Term is an entry ready to be written, bound to a release item.
type Term struct {
	Entry
	Description string
	TypeQID     string
	ReleaseQID  string
}

// NewTerm validates the entry type.
func NewTerm(e Entry, releaseQID string) (*Term, error) {
	qid, ok := typeQIDs[e.Type]
	if !ok {
		return nil, fmt.Errorf("entry %s: unknown type %q", e.ID, e.Type)
	}
	return &Term{Entry: e, Description: typeDescriptions[e.Type], TypeQID: qid, ReleaseQID: releaseQID}, nil
}

func (t *Term) String() string {
	return t.ID + ": " + t.Name
}

// Reference is shared by every statement about the term.
func (t *Term) Reference() types.Reference {
	return types.NewReference(
		types.ItemID(t.ReleaseQID, types.PropStatedIn),
		types.ExternalID(t.ID, PropInterPro),
	)
}

// ItemStatements identify the term and its type.
func (t *Term) ItemStatements() []types.Statement {
	ref := t.Reference()
	return []types.Statement{
		types.ExternalID(t.ID, PropInterPro, ref),
		types.ItemID(t.TypeQID, types.PropSubclassOf, ref),
	}
}

// RelationshipStatements link the term to its parent, the entries it
// contains and those it is found in. ids maps InterPro ids to items; ids
// missing from it are returned separately.
func (t *Term) RelationshipStatements(ids map[string]string) ([]types.Statement, []string) {
	ref := t.Reference()
	sts := []types.Statement{types.ExternalID(t.ID, PropInterPro, ref)}
	var missing []string
	add := func(ipr, prop string) {
		qid, ok := ids[ipr]
		if !ok {
			missing = append(missing, ipr)
			return
		}
		sts = append(sts, types.ItemID(qid, prop, ref))
	}
	if t.Parent != "" {
		add(t.Parent, types.PropSubclassOf)
	}
	for _, c := range t.Contains {
		add(c, PropHasPart)
	}
	for _, f := range t.FoundIn {
		add(f, PropPartOf)
	}
	return sts, missing
}

// DBInfo is the staged <dbinfo> of a release.
type DBInfo struct {
	ID         string `bson:"_id"`
	DBName     string `bson:"dbname"`
	Version    string `bson:"version"`
	FileDate   string `bson:"file_date"`
	EntryCount string `bson:"entry_count"`
}

// Release describes the InterPro release item of info.
func (info DBInfo) Release() (release.Release, error) {
	pub, err := utils.ParseFileDate(info.FileDate)
	if err != nil {
		return release.Release{}, err
	}
	return NewRelease(info.Version, pub), nil
}

// NewRelease builds the release item description of an InterPro version.
func NewRelease(version string, pub time.Time) release.Release {
	return release.Release{
		Title:       "InterPro Release " + version,
		Description: fmt.Sprintf("Release %s of the InterPro database & software", version),
		EditionOf:   DatabaseQID,
		Edition:     version,
		PubDate:     pub,
		ArchiveURL:  fmt.Sprintf("ftp://ftp.ebi.ac.uk/pub/databases/interpro/%s/", version),
	}
}
