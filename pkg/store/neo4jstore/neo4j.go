// Package neo4jstore is a Store backed by Neo4j. Units and entities are
// nodes, links are LINKED relationships, and the vector and fulltext indexes
// serve the semantic and keyword strategies natively.
package neo4jstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/memora-ai/memora/pkg/store"
	"github.com/memora-ai/memora/pkg/types"
)

const (
	vectorIndexName   = "unit_embedding"
	fulltextIndexName = "unit_text"
)

// Neo4jStore implements store.Store on a Neo4j database.
type Neo4jStore struct {
	client   neo4j.DriverWithContext
	database string
}

// New connects to the database and ensures the indexes exist.
func New(ctx context.Context, uri, username, password, database string, dimensions int) (*Neo4jStore, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	if database == "" {
		database = "neo4j"
	}
	s := &Neo4jStore{client: driver, database: database}
	if err := s.ensureIndexes(ctx, dimensions); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Neo4jStore) ensureIndexes(ctx context.Context, dimensions int) error {
	session := s.session(ctx)
	defer session.Close(ctx)

	statements := []string{
		`CREATE CONSTRAINT unit_id IF NOT EXISTS FOR (u:MemoryUnit) REQUIRE u.id IS UNIQUE`,
		`CREATE CONSTRAINT entity_id IF NOT EXISTS FOR (e:Entity) REQUIRE e.id IS UNIQUE`,
		fmt.Sprintf(`CREATE FULLTEXT INDEX %s IF NOT EXISTS FOR (u:MemoryUnit) ON EACH [u.text]`, fulltextIndexName),
	}
	if dimensions > 0 {
		statements = append(statements, fmt.Sprintf(
			`CREATE VECTOR INDEX %s IF NOT EXISTS FOR (u:MemoryUnit) ON (u.embedding)
			 OPTIONS {indexConfig: {`+"`vector.dimensions`"+`: %d, `+"`vector.similarity_function`"+`: 'cosine'}}`,
			vectorIndexName, dimensions))
	}
	for _, stmt := range statements {
		if _, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
			_, err := tx.Run(ctx, stmt, nil)
			return nil, err
		}); err != nil {
			return fmt.Errorf("ensure indexes: %w", err)
		}
	}
	return nil
}

func (s *Neo4jStore) session(ctx context.Context) neo4j.SessionWithContext {
	return s.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
}

// PutUnit creates the unit node and all its links inside one managed write
// transaction. A missing link target aborts the whole write.
func (s *Neo4jStore) PutUnit(ctx context.Context, unit *types.MemoryUnit, links []types.Link) error {
	if err := unit.Validate(); err != nil {
		return err
	}
	session := s.session(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, l := range links {
			other := l.TargetID
			if other == unit.ID {
				other = l.SourceID
			}
			res, err := tx.Run(ctx, `MATCH (u:MemoryUnit {id: $id}) RETURN u.id`, map[string]any{"id": other})
			if err != nil {
				return nil, err
			}
			if _, err := res.Single(ctx); err != nil {
				return nil, fmt.Errorf("link target %s: %w", other, types.ErrNotFound)
			}
		}

		_, err := tx.Run(ctx, `
			MERGE (u:MemoryUnit {id: $id})
			SET u.agent_id = $agent_id,
			    u.text = $text,
			    u.context = $context,
			    u.embedding = $embedding,
			    u.event_at = $event_at,
			    u.ingested_at = $ingested_at,
			    u.fact_type = $fact_type,
			    u.access_count = coalesce(u.access_count, 0),
			    u.confidence = $confidence,
			    u.document_id = $document_id
		`, unitParams(unit))
		if err != nil {
			return nil, err
		}

		for _, l := range links {
			_, err := tx.Run(ctx, `
				MATCH (a:MemoryUnit {id: $source}), (b:MemoryUnit {id: $target})
				MERGE (a)-[r:LINKED {type: $type}]->(b)
				SET r.weight = $weight
			`, map[string]any{
				"source": l.SourceID,
				"target": l.TargetID,
				"type":   string(l.Type),
				"weight": l.Weight,
			})
			if err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	return err
}

// GetUnit returns the stored unit.
func (s *Neo4jStore) GetUnit(ctx context.Context, id string) (*types.MemoryUnit, error) {
	session := s.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `MATCH (u:MemoryUnit {id: $id}) RETURN u`, map[string]any{"id": id})
		if err != nil {
			return nil, err
		}
		record, err := res.Single(ctx)
		if err != nil {
			return nil, fmt.Errorf("unit %s: %w", id, types.ErrNotFound)
		}
		return record, nil
	})
	if err != nil {
		return nil, err
	}
	node, _ := result.(*neo4j.Record).Get("u")
	return unitFromNode(node.(neo4j.Node))
}

// DeleteUnit removes the unit node; DETACH drops every link touching it.
func (s *Neo4jStore) DeleteUnit(ctx context.Context, id string) error {
	session := s.session(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (u:MemoryUnit {id: $id})
			DETACH DELETE u
			RETURN count(u) AS deleted
		`, map[string]any{"id": id})
		if err != nil {
			return nil, err
		}
		record, err := res.Single(ctx)
		if err != nil {
			return nil, err
		}
		if deleted, _ := record.Get("deleted"); deleted.(int64) == 0 {
			return nil, fmt.Errorf("unit %s: %w", id, types.ErrNotFound)
		}
		_, err = tx.Run(ctx, `
			MATCH (e:Entity) WHERE $id IN e.unit_ids
			SET e.unit_ids = [uid IN e.unit_ids WHERE uid <> $id]
		`, map[string]any{"id": id})
		return nil, err
	})
	return err
}

// IncrementAccess bumps access counts for the given ids.
func (s *Neo4jStore) IncrementAccess(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	session := s.session(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, `
			MATCH (u:MemoryUnit) WHERE u.id IN $ids
			SET u.access_count = coalesce(u.access_count, 0) + 1
		`, map[string]any{"ids": ids})
		return nil, err
	})
	return err
}

// VectorSearch queries the vector index and filters by agent, threshold, and
// fact type.
func (s *Neo4jStore) VectorSearch(ctx context.Context, q store.VectorQuery) ([]store.ScoredUnit, error) {
	session := s.session(ctx)
	defer session.Close(ctx)

	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		// Over-fetch before filtering: the index cannot filter by agent.
		res, err := tx.Run(ctx, fmt.Sprintf(`
			CALL db.index.vector.queryNodes('%s', $fetch, $vector)
			YIELD node, score
			WHERE node.agent_id = $agent_id AND score >= $threshold
			  AND ($fact_types = [] OR node.fact_type IN $fact_types)
			RETURN node, score
			ORDER BY score DESC, node.event_at DESC, node.id ASC
			LIMIT $limit
		`, vectorIndexName), map[string]any{
			"fetch":      limit * 4,
			"vector":     q.Vector,
			"agent_id":   q.AgentID,
			"threshold":  q.Threshold,
			"fact_types": factTypeStrings(q.FactTypes),
			"limit":      limit,
		})
		if err != nil {
			return nil, err
		}
		return collectScored(ctx, res)
	})
	if err != nil {
		return nil, err
	}
	return result.([]store.ScoredUnit), nil
}

// TextSearch queries the fulltext index and filters by agent and fact type.
func (s *Neo4jStore) TextSearch(ctx context.Context, q store.TextQuery) ([]store.ScoredUnit, error) {
	query := sanitizeFulltext(q.Query)
	if query == "" {
		return nil, nil
	}
	session := s.session(ctx)
	defer session.Close(ctx)

	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, fmt.Sprintf(`
			CALL db.index.fulltext.queryNodes('%s', $query)
			YIELD node, score
			WHERE node.agent_id = $agent_id
			  AND ($fact_types = [] OR node.fact_type IN $fact_types)
			RETURN node, score
			ORDER BY score DESC, node.event_at DESC, node.id ASC
			LIMIT $limit
		`, fulltextIndexName), map[string]any{
			"query":      query,
			"agent_id":   q.AgentID,
			"fact_types": factTypeStrings(q.FactTypes),
			"limit":      limit,
		})
		if err != nil {
			return nil, err
		}
		return collectScored(ctx, res)
	})
	if err != nil {
		return nil, err
	}
	return result.([]store.ScoredUnit), nil
}

// Neighbors returns link edges touching unitID, strongest first. Links are
// symmetric so direction is ignored.
func (s *Neo4jStore) Neighbors(ctx context.Context, unitID string, linkTypes []types.LinkType, limit int) ([]types.Neighbor, error) {
	session := s.session(ctx)
	defer session.Close(ctx)

	lts := make([]string, len(linkTypes))
	for i, lt := range linkTypes {
		lts[i] = string(lt)
	}
	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		params := map[string]any{"id": unitID, "link_types": lts}
		query := `
			MATCH (u:MemoryUnit {id: $id})-[r:LINKED]-(n:MemoryUnit)
			WHERE $link_types = [] OR r.type IN $link_types
			RETURN n.id AS id, r.type AS type, r.weight AS weight
			ORDER BY r.weight DESC, n.id ASC
		`
		if limit > 0 {
			query += " LIMIT $limit"
			params["limit"] = limit
		}
		res, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		var out []types.Neighbor
		for res.Next(ctx) {
			rec := res.Record()
			id, _ := rec.Get("id")
			lt, _ := rec.Get("type")
			w, _ := rec.Get("weight")
			out = append(out, types.Neighbor{
				UnitID: id.(string),
				Type:   types.LinkType(lt.(string)),
				Weight: w.(float64),
			})
		}
		return out, res.Err()
	})
	if err != nil {
		return nil, err
	}
	return result.([]types.Neighbor), nil
}

// RangeSearch returns the agent's units inside the event-time range, oldest
// first.
func (s *Neo4jStore) RangeSearch(ctx context.Context, q store.RangeQuery) ([]*types.MemoryUnit, error) {
	session := s.session(ctx)
	defer session.Close(ctx)

	limit := q.Limit
	if limit <= 0 {
		limit = 1000
	}
	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (u:MemoryUnit)
			WHERE u.agent_id = $agent_id
			  AND u.event_at >= $start AND u.event_at <= $end
			  AND ($fact_types = [] OR u.fact_type IN $fact_types)
			RETURN u
			ORDER BY u.event_at ASC, u.id ASC
			LIMIT $limit
		`, map[string]any{
			"agent_id":   q.AgentID,
			"start":      q.Range.Start.UTC(),
			"end":        q.Range.End.UTC(),
			"fact_types": factTypeStrings(q.FactTypes),
			"limit":      limit,
		})
		if err != nil {
			return nil, err
		}
		var out []*types.MemoryUnit
		for res.Next(ctx) {
			node, _ := res.Record().Get("u")
			u, err := unitFromNode(node.(neo4j.Node))
			if err != nil {
				return nil, err
			}
			out = append(out, u)
		}
		return out, res.Err()
	})
	if err != nil {
		return nil, err
	}
	return result.([]*types.MemoryUnit), nil
}

// PutEntity inserts or replaces an entity node.
func (s *Neo4jStore) PutEntity(ctx context.Context, e *types.Entity) error {
	if e.ID == "" || e.Name == "" {
		return &types.ValidationError{Field: "entity", Reason: "id and name are required"}
	}
	session := s.session(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, `
			MERGE (e:Entity {id: $id})
			SET e.name = $name,
			    e.type = $type,
			    e.variants = $variants,
			    e.unit_ids = $unit_ids,
			    e.first_seen = $first_seen,
			    e.last_seen = $last_seen
		`, map[string]any{
			"id":         e.ID,
			"name":       e.Name,
			"type":       string(e.Type),
			"variants":   e.Variants,
			"unit_ids":   e.UnitIDs,
			"first_seen": e.FirstSeen.UTC(),
			"last_seen":  e.LastSeen.UTC(),
		})
		return nil, err
	})
	return err
}

// GetEntity returns the stored entity.
func (s *Neo4jStore) GetEntity(ctx context.Context, id string) (*types.Entity, error) {
	session := s.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `MATCH (e:Entity {id: $id}) RETURN e`, map[string]any{"id": id})
		if err != nil {
			return nil, err
		}
		record, err := res.Single(ctx)
		if err != nil {
			return nil, fmt.Errorf("entity %s: %w", id, types.ErrNotFound)
		}
		node, _ := record.Get("e")
		return entityFromNode(node.(neo4j.Node))
	})
	if err != nil {
		return nil, err
	}
	return result.(*types.Entity), nil
}

// EntitiesByType lists entities of the given type, ordered by id.
func (s *Neo4jStore) EntitiesByType(ctx context.Context, t types.EntityType) ([]*types.Entity, error) {
	session := s.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (e:Entity {type: $type}) RETURN e ORDER BY e.id ASC
		`, map[string]any{"type": string(t)})
		if err != nil {
			return nil, err
		}
		var out []*types.Entity
		for res.Next(ctx) {
			node, _ := res.Record().Get("e")
			e, err := entityFromNode(node.(neo4j.Node))
			if err != nil {
				return nil, err
			}
			out = append(out, e)
		}
		return out, res.Err()
	})
	if err != nil {
		return nil, err
	}
	return result.([]*types.Entity), nil
}

// Close closes the driver.
func (s *Neo4jStore) Close() error {
	return s.client.Close(context.Background())
}

func unitParams(u *types.MemoryUnit) map[string]any {
	embedding := make([]float64, len(u.Embedding))
	for i, v := range u.Embedding {
		embedding[i] = float64(v)
	}
	var confidence any
	if u.Confidence != nil {
		confidence = *u.Confidence
	}
	return map[string]any{
		"id":          u.ID,
		"agent_id":    u.AgentID,
		"text":        u.Text,
		"context":     u.Context,
		"embedding":   embedding,
		"event_at":    u.EventAt.UTC(),
		"ingested_at": u.IngestedAt.UTC(),
		"fact_type":   string(u.FactType),
		"confidence":  confidence,
		"document_id": u.DocumentID,
	}
}

func unitFromNode(node neo4j.Node) (*types.MemoryUnit, error) {
	u := &types.MemoryUnit{}
	props := node.Props
	u.ID, _ = props["id"].(string)
	u.AgentID, _ = props["agent_id"].(string)
	u.Text, _ = props["text"].(string)
	u.Context, _ = props["context"].(string)
	if v, ok := props["fact_type"].(string); ok {
		u.FactType = types.FactType(v)
	}
	u.DocumentID, _ = props["document_id"].(string)
	if v, ok := props["access_count"].(int64); ok {
		u.AccessCount = v
	}
	if v, ok := props["confidence"].(float64); ok {
		u.Confidence = &v
	}
	if v, ok := props["event_at"].(time.Time); ok {
		u.EventAt = v
	}
	if v, ok := props["ingested_at"].(time.Time); ok {
		u.IngestedAt = v
	}
	if raw, ok := props["embedding"].([]any); ok {
		u.Embedding = make([]float32, len(raw))
		for i, x := range raw {
			f, ok := x.(float64)
			if !ok {
				return nil, fmt.Errorf("unit %s: embedding element %d is %T", u.ID, i, x)
			}
			u.Embedding[i] = float32(f)
		}
	}
	return u, nil
}

func entityFromNode(node neo4j.Node) (*types.Entity, error) {
	e := &types.Entity{}
	props := node.Props
	e.ID, _ = props["id"].(string)
	e.Name, _ = props["name"].(string)
	if v, ok := props["type"].(string); ok {
		e.Type = types.EntityType(v)
	}
	if v, ok := props["first_seen"].(time.Time); ok {
		e.FirstSeen = v
	}
	if v, ok := props["last_seen"].(time.Time); ok {
		e.LastSeen = v
	}
	e.Variants = stringList(props["variants"])
	e.UnitIDs = stringList(props["unit_ids"])
	return e, nil
}

func stringList(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, x := range raw {
		if s, ok := x.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func collectScored(ctx context.Context, res neo4j.ResultWithContext) ([]store.ScoredUnit, error) {
	var out []store.ScoredUnit
	for res.Next(ctx) {
		rec := res.Record()
		node, _ := rec.Get("node")
		score, _ := rec.Get("score")
		u, err := unitFromNode(node.(neo4j.Node))
		if err != nil {
			return nil, err
		}
		out = append(out, store.ScoredUnit{Unit: u, Score: score.(float64)})
	}
	return out, res.Err()
}

// sanitizeFulltext strips Lucene operators so raw user queries cannot break
// the fulltext call.
func sanitizeFulltext(q string) string {
	return strings.Join(store.Tokenize(q), " ")
}

// factTypeStrings converts fact types to the plain strings the driver expects;
// the result is never nil so `$fact_types = []` matches when no filter is set.
func factTypeStrings(fts []types.FactType) []string {
	out := make([]string, 0, len(fts))
	for _, ft := range fts {
		out = append(out, string(ft))
	}
	return out
}

var _ store.Store = (*Neo4jStore)(nil)
