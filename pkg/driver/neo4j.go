package driver

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/db"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
	"github.com/soundprediction/go-biohub/pkg/types"
)

// Neo4jDriver implements the ItemStore interface for Neo4j databases.
//
// Items are stored as (:Item {qid, ...}) nodes. Every statement is a
// (:Claim) node hanging off its item through a HAS_CLAIM relationship, with
// qualifiers and references serialised as JSON.
type Neo4jDriver struct {
	client   neo4j.DriverWithContext
	database string
}

// NewNeo4jDriver creates a new Neo4j driver instance.
func NewNeo4jDriver(uri, username, password, database string) (*Neo4jDriver, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}

	if database == "" {
		database = "neo4j"
	}

	return &Neo4jDriver{
		client:   driver,
		database: database,
	}, nil
}

// VerifyConnectivity checks that the server is reachable.
func (n *Neo4jDriver) VerifyConnectivity(ctx context.Context) error {
	return n.client.VerifyConnectivity(ctx)
}

// GetItem retrieves an item and its claims by id.
func (n *Neo4jDriver) GetItem(ctx context.Context, id string) (*types.Item, error) {
	qid := types.NormalizeID(id)
	session := n.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: n.database})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := `
			MATCH (i:Item {qid: $qid})
			OPTIONAL MATCH (i)-[:HAS_CLAIM]->(c:Claim)
			RETURN i, collect(c) AS claims
		`
		res, err := tx.Run(ctx, query, map[string]any{"qid": qid})
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		if len(records) == 0 {
			return nil, nil
		}
		return records[0], nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get item %s: %w", qid, err)
	}
	if result == nil {
		return nil, fmt.Errorf("%s: %w", qid, ErrItemNotFound)
	}

	record := result.(*db.Record)
	itemValue, found := record.Get("i")
	if !found || itemValue == nil {
		return nil, fmt.Errorf("%s: %w", qid, ErrItemNotFound)
	}
	item, err := itemFromDBNode(itemValue.(dbtype.Node))
	if err != nil {
		return nil, err
	}

	claimsValue, _ := record.Get("claims")
	claimList, _ := claimsValue.([]any)
	for _, raw := range claimList {
		node, ok := raw.(dbtype.Node)
		if !ok {
			continue
		}
		st, err := statementFromDBNode(node)
		if err != nil {
			return nil, fmt.Errorf("item %s: %w", qid, err)
		}
		item.AddStatement(st)
	}
	sortClaims(item)
	return item, nil
}

// CreateItem allocates a new qid and writes the item.
func (n *Neo4jDriver) CreateItem(ctx context.Context, item *types.Item, summary string) (string, error) {
	if item == nil {
		return "", fmt.Errorf("cannot create nil item")
	}

	session := n.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: n.database})
	defer session.Close(ctx)

	result, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MERGE (c:Counter {name: 'item'})
			ON CREATE SET c.next = 1
			SET c.next = c.next + 1
			RETURN c.next - 1 AS id
		`, nil)
		if err != nil {
			return nil, err
		}
		record, err := res.Single(ctx)
		if err != nil {
			return nil, err
		}
		raw, _ := record.Get("id")
		qid := fmt.Sprintf("Q%d", raw.(int64))

		stored := item.Clone()
		stored.ID = qid
		if err := writeItem(ctx, tx, stored, summary, true); err != nil {
			return nil, err
		}
		return qid, nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to create item: %w", err)
	}
	return result.(string), nil
}

// UpdateItem rewrites an existing item's terms and claims.
func (n *Neo4jDriver) UpdateItem(ctx context.Context, item *types.Item, summary string) error {
	if item == nil {
		return fmt.Errorf("cannot update nil item")
	}
	stored := item.Clone()
	stored.ID = types.NormalizeID(item.ID)

	session := n.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: n.database})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `MATCH (i:Item {qid: $qid}) RETURN i.qid AS qid`, map[string]any{"qid": stored.ID})
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		if len(records) == 0 {
			return nil, fmt.Errorf("%s: %w", stored.ID, ErrItemNotFound)
		}
		return nil, writeItem(ctx, tx, stored, summary, false)
	})
	return err
}

func writeItem(ctx context.Context, tx neo4j.ManagedTransaction, item *types.Item, summary string, create bool) error {
	props, err := itemToProperties(item)
	if err != nil {
		return err
	}
	props["summary"] = summary

	itemQuery := `
		MATCH (i:Item {qid: $qid})
		SET i += $properties
		WITH i
		OPTIONAL MATCH (i)-[:HAS_CLAIM]->(c:Claim)
		DETACH DELETE c
	`
	if create {
		itemQuery = `CREATE (i:Item {qid: $qid}) SET i += $properties`
	}
	if _, err := tx.Run(ctx, itemQuery, map[string]any{
		"qid":        item.ID,
		"properties": props,
	}); err != nil {
		return err
	}

	claims, err := claimsToProperties(item)
	if err != nil {
		return err
	}
	if len(claims) == 0 {
		return nil
	}
	_, err = tx.Run(ctx, `
		MATCH (i:Item {qid: $qid})
		UNWIND $claims AS claim
		CREATE (i)-[:HAS_CLAIM]->(c:Claim)
		SET c = claim
	`, map[string]any{
		"qid":    item.ID,
		"claims": claims,
	})
	return err
}

// FindByClaim returns ids of items with a statement prop = value.
func (n *Neo4jDriver) FindByClaim(ctx context.Context, prop, value string) ([]string, error) {
	session := n.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: n.database})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := `
			MATCH (i:Item)-[:HAS_CLAIM]->(c:Claim {property: $prop, value: $value})
			RETURN DISTINCT i.qid AS qid
			ORDER BY qid
		`
		res, err := tx.Run(ctx, query, map[string]any{"prop": prop, "value": value})
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to find %s=%s: %w", prop, value, err)
	}

	var ids []string
	for _, record := range result.([]*db.Record) {
		if qid, ok := record.Get("qid"); ok {
			ids = append(ids, qid.(string))
		}
	}
	return ids, nil
}

// ClaimIndex maps each value of prop to the item holding it, restricted by filters.
func (n *Neo4jDriver) ClaimIndex(ctx context.Context, prop string, filters []Filter) (map[string]string, error) {
	var sb strings.Builder
	params := map[string]any{"prop": prop}
	sb.WriteString("MATCH (i:Item)-[:HAS_CLAIM]->(c:Claim {property: $prop})\n")
	for k, f := range filters {
		fp := fmt.Sprintf("fprop%d", k)
		params[fp] = f.Property
		if f.Value == "" {
			fmt.Fprintf(&sb, "MATCH (i)-[:HAS_CLAIM]->(:Claim {property: $%s})\n", fp)
			continue
		}
		fv := fmt.Sprintf("fval%d", k)
		params[fv] = f.Value
		fmt.Fprintf(&sb, "MATCH (i)-[:HAS_CLAIM]->(:Claim {property: $%s, value: $%s})\n", fp, fv)
	}
	sb.WriteString("RETURN DISTINCT c.value AS value, i.qid AS qid")
	query := sb.String()

	session := n.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: n.database})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to index %s: %w", prop, err)
	}

	index := make(map[string]string)
	for _, record := range result.([]*db.Record) {
		value, _ := record.Get("value")
		qid, _ := record.Get("qid")
		v, ok1 := value.(string)
		q, ok2 := qid.(string)
		if ok1 && ok2 {
			index[v] = q
		}
	}
	return index, nil
}

// CreateIndices creates the indices used by lookups.
func (n *Neo4jDriver) CreateIndices(ctx context.Context) error {
	session := n.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: n.database})
	defer session.Close(ctx)

	indices := []string{
		"CREATE CONSTRAINT item_qid_unique IF NOT EXISTS FOR (i:Item) REQUIRE i.qid IS UNIQUE",
		"CREATE INDEX claim_property_value_idx IF NOT EXISTS FOR (c:Claim) ON (c.property, c.value)",
		"CREATE INDEX item_domain_idx IF NOT EXISTS FOR (i:Item) ON (i.domain)",
	}
	// Schema changes cannot share a transaction with each other.
	for _, indexQuery := range indices {
		_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
			_, err := tx.Run(ctx, indexQuery, nil)
			return nil, err
		})
		if err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}

// GetStats returns item and claim counts.
func (n *Neo4jDriver) GetStats(ctx context.Context) (*StoreStats, error) {
	session := n.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: n.database})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		stats := &StoreStats{ClaimsByProp: make(map[string]int64)}

		itemRes, err := tx.Run(ctx, `
			MATCH (i:Item)
			RETURN count(i) AS item_count, max(i.modified) AS last_updated
		`, nil)
		if err != nil {
			return nil, err
		}
		itemRecord, err := itemRes.Single(ctx)
		if err != nil {
			return nil, err
		}
		if v, ok := itemRecord.Get("item_count"); ok {
			stats.ItemCount = v.(int64)
		}
		if v, ok := itemRecord.Get("last_updated"); ok && v != nil {
			if t, err := time.Parse(time.RFC3339, v.(string)); err == nil {
				stats.LastUpdated = t
			}
		}

		claimRes, err := tx.Run(ctx, `
			MATCH (:Item)-[:HAS_CLAIM]->(c:Claim)
			RETURN c.property AS property, count(c) AS claim_count
			ORDER BY property
		`, nil)
		if err != nil {
			return nil, err
		}
		claimRecords, err := claimRes.Collect(ctx)
		if err != nil {
			return nil, err
		}
		for _, record := range claimRecords {
			prop, _ := record.Get("property")
			count, _ := record.Get("claim_count")
			p, _ := prop.(string)
			c, _ := count.(int64)
			stats.ClaimsByProp[p] = c
			stats.ClaimCount += c
		}
		return stats, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}
	return result.(*StoreStats), nil
}

// Close closes the driver connection.
func (n *Neo4jDriver) Close(ctx context.Context) error {
	return n.client.Close(ctx)
}

func itemToProperties(item *types.Item) (map[string]any, error) {
	labels, err := json.Marshal(item.Labels)
	if err != nil {
		return nil, fmt.Errorf("failed to encode labels: %w", err)
	}
	descriptions, err := json.Marshal(item.Descriptions)
	if err != nil {
		return nil, fmt.Errorf("failed to encode descriptions: %w", err)
	}
	aliases, err := json.Marshal(item.Aliases)
	if err != nil {
		return nil, fmt.Errorf("failed to encode aliases: %w", err)
	}
	return map[string]any{
		"label":        item.Label(),
		"labels":       string(labels),
		"descriptions": string(descriptions),
		"aliases":      string(aliases),
		"domain":       item.Domain,
		"modified":     time.Now().UTC().Format(time.RFC3339),
	}, nil
}

func claimsToProperties(item *types.Item) ([]map[string]any, error) {
	var out []map[string]any
	for _, sts := range item.Claims {
		for _, st := range sts {
			qualifiers, err := json.Marshal(st.Qualifiers)
			if err != nil {
				return nil, fmt.Errorf("failed to encode qualifiers: %w", err)
			}
			references, err := json.Marshal(st.References)
			if err != nil {
				return nil, fmt.Errorf("failed to encode references: %w", err)
			}
			out = append(out, map[string]any{
				"property":   st.Property,
				"datatype":   string(st.Datatype),
				"value":      st.Value,
				"lang":       st.Lang,
				"qualifiers": string(qualifiers),
				"references": string(references),
			})
		}
	}
	return out, nil
}

func itemFromDBNode(node dbtype.Node) (*types.Item, error) {
	props := node.Props
	item := types.NewItem(stringProp(props, "qid"))
	item.Domain = stringProp(props, "domain")
	if raw := stringProp(props, "modified"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			item.Modified = t
		}
	}
	if err := decodeJSONProp(props, "labels", &item.Labels); err != nil {
		return nil, err
	}
	if err := decodeJSONProp(props, "descriptions", &item.Descriptions); err != nil {
		return nil, err
	}
	if err := decodeJSONProp(props, "aliases", &item.Aliases); err != nil {
		return nil, err
	}
	return item, nil
}

func statementFromDBNode(node dbtype.Node) (types.Statement, error) {
	props := node.Props
	st := types.Statement{Snak: types.Snak{
		Property: stringProp(props, "property"),
		Datatype: types.Datatype(stringProp(props, "datatype")),
		Value:    stringProp(props, "value"),
		Lang:     stringProp(props, "lang"),
	}}
	if err := decodeJSONProp(props, "qualifiers", &st.Qualifiers); err != nil {
		return st, err
	}
	if err := decodeJSONProp(props, "references", &st.References); err != nil {
		return st, err
	}
	return st, nil
}

func stringProp(props map[string]any, key string) string {
	if v, ok := props[key].(string); ok {
		return v
	}
	return ""
}

func decodeJSONProp(props map[string]any, key string, target any) error {
	raw := stringProp(props, key)
	if raw == "" || raw == "null" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), target); err != nil {
		return fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return nil
}

// sortClaims gives claims a stable order since Neo4j returns them unordered.
func sortClaims(item *types.Item) {
	for _, sts := range item.Claims {
		sort.SliceStable(sts, func(a, b int) bool {
			return sts[a].Value < sts[b].Value
		})
	}
}
