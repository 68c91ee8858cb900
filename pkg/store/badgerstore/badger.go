// Package badgerstore is a durable, embedded Store backed by BadgerDB. It
// keeps the whole graph in a single local key-value directory, serving
// single-node deployments that outlive the process.
package badgerstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/memora-ai/memora/pkg/store"
	"github.com/memora-ai/memora/pkg/types"
)

// Key prefixes. Units, adjacency lists, and entities each live under their
// own prefix so scans stay cheap.
const (
	unitPrefix   = "unit/"
	adjPrefix    = "adj/"
	entityPrefix = "ent/"
	dimsKey      = "meta/dims"
)

// BadgerStore implements store.Store on BadgerDB.
type BadgerStore struct {
	db     *badger.DB
	bm25K1 float64
	bm25B  float64
}

// Options configures Open.
type Options struct {
	Path   string
	BM25K1 float64
	BM25B  float64
	// InMemory runs badger without files, for tests.
	InMemory bool
}

// Open opens or creates the database at opts.Path.
func Open(opts Options) (*BadgerStore, error) {
	bopts := badger.DefaultOptions(opts.Path).WithLogger(nil)
	if opts.InMemory {
		bopts = bopts.WithInMemory(true)
	}
	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %s: %w", opts.Path, err)
	}
	k1, b := opts.BM25K1, opts.BM25B
	if k1 <= 0 {
		k1 = store.DefaultBM25K1
	}
	if b <= 0 {
		b = store.DefaultBM25B
	}
	return &BadgerStore{db: db, bm25K1: k1, bm25B: b}, nil
}

// PutUnit stores the unit and both directions of its links in one badger
// transaction, so a failure leaves nothing behind.
func (s *BadgerStore) PutUnit(ctx context.Context, unit *types.MemoryUnit, links []types.Link) error {
	if err := unit.Validate(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if len(unit.Embedding) > 0 {
			if err := checkDims(txn, len(unit.Embedding), unit.ID); err != nil {
				return err
			}
		}
		for _, l := range links {
			other := l.TargetID
			if other == unit.ID {
				other = l.SourceID
			}
			if _, err := txn.Get([]byte(unitPrefix + other)); err != nil {
				if errors.Is(err, badger.ErrKeyNotFound) {
					return fmt.Errorf("link target %s: %w", other, types.ErrNotFound)
				}
				return err
			}
		}
		if err := putJSON(txn, unitPrefix+unit.ID, unit); err != nil {
			return err
		}
		for _, l := range links {
			if err := appendNeighbor(txn, l.SourceID, types.Neighbor{UnitID: l.TargetID, Type: l.Type, Weight: l.Weight}); err != nil {
				return err
			}
			if err := appendNeighbor(txn, l.TargetID, types.Neighbor{UnitID: l.SourceID, Type: l.Type, Weight: l.Weight}); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetUnit returns the stored unit.
func (s *BadgerStore) GetUnit(ctx context.Context, id string) (*types.MemoryUnit, error) {
	var unit types.MemoryUnit
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, unitPrefix+id, &unit)
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, fmt.Errorf("unit %s: %w", id, types.ErrNotFound)
		}
		return nil, err
	}
	return &unit, nil
}

// DeleteUnit removes the unit and detaches every link referencing it.
func (s *BadgerStore) DeleteUnit(ctx context.Context, id string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(unitPrefix + id)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("unit %s: %w", id, types.ErrNotFound)
			}
			return err
		}
		var neighbors []types.Neighbor
		if err := getJSON(txn, adjPrefix+id, &neighbors); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		for _, n := range neighbors {
			var far []types.Neighbor
			if err := getJSON(txn, adjPrefix+n.UnitID, &far); err != nil {
				if errors.Is(err, badger.ErrKeyNotFound) {
					continue
				}
				return err
			}
			kept := far[:0]
			for _, f := range far {
				if f.UnitID != id {
					kept = append(kept, f)
				}
			}
			if err := putJSON(txn, adjPrefix+n.UnitID, kept); err != nil {
				return err
			}
		}
		if err := txn.Delete([]byte(adjPrefix + id)); err != nil {
			return err
		}
		if err := txn.Delete([]byte(unitPrefix + id)); err != nil {
			return err
		}
		// Drop the unit from any entity that referenced it.
		return forEachPrefix(txn, entityPrefix, func(item *badger.Item) error {
			var e types.Entity
			if err := item.Value(func(v []byte) error { return json.Unmarshal(v, &e) }); err != nil {
				return err
			}
			kept := e.UnitIDs[:0]
			removed := false
			for _, uid := range e.UnitIDs {
				if uid == id {
					removed = true
					continue
				}
				kept = append(kept, uid)
			}
			if !removed {
				return nil
			}
			e.UnitIDs = kept
			return putJSON(txn, entityPrefix+e.ID, &e)
		})
	})
}

// IncrementAccess bumps access counts. Unknown ids are skipped.
func (s *BadgerStore) IncrementAccess(ctx context.Context, ids []string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		for _, id := range ids {
			var unit types.MemoryUnit
			if err := getJSON(txn, unitPrefix+id, &unit); err != nil {
				if errors.Is(err, badger.ErrKeyNotFound) {
					continue
				}
				return err
			}
			unit.AccessCount++
			if err := putJSON(txn, unitPrefix+id, &unit); err != nil {
				return err
			}
		}
		return nil
	})
}

// VectorSearch scans the agent's units and ranks by cosine similarity.
func (s *BadgerStore) VectorSearch(ctx context.Context, q store.VectorQuery) ([]store.ScoredUnit, error) {
	units, err := s.agentUnits(q.AgentID, q.FactTypes)
	if err != nil {
		return nil, err
	}
	return store.RankByCosine(units, q.Vector, q.Threshold, q.Limit), nil
}

// TextSearch scans the agent's units and ranks by BM25.
func (s *BadgerStore) TextSearch(ctx context.Context, q store.TextQuery) ([]store.ScoredUnit, error) {
	units, err := s.agentUnits(q.AgentID, q.FactTypes)
	if err != nil {
		return nil, err
	}
	return store.RankBM25(units, q.Query, s.bm25K1, s.bm25B, q.Limit), nil
}

// Neighbors returns the link edges adjacent to unitID, strongest first.
func (s *BadgerStore) Neighbors(ctx context.Context, unitID string, linkTypes []types.LinkType, limit int) ([]types.Neighbor, error) {
	var neighbors []types.Neighbor
	err := s.db.View(func(txn *badger.Txn) error {
		err := getJSON(txn, adjPrefix+unitID, &neighbors)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	var out []types.Neighbor
	for _, n := range neighbors {
		if len(linkTypes) > 0 && !containsLinkType(linkTypes, n.Type) {
			continue
		}
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Weight != out[j].Weight {
			return out[i].Weight > out[j].Weight
		}
		return out[i].UnitID < out[j].UnitID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// RangeSearch returns the agent's units inside the event-time range, oldest
// first.
func (s *BadgerStore) RangeSearch(ctx context.Context, q store.RangeQuery) ([]*types.MemoryUnit, error) {
	units, err := s.agentUnits(q.AgentID, q.FactTypes)
	if err != nil {
		return nil, err
	}
	var out []*types.MemoryUnit
	for _, u := range units {
		if q.Range.Contains(u.EventAt) {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].EventAt.Equal(out[j].EventAt) {
			return out[i].EventAt.Before(out[j].EventAt)
		}
		return out[i].ID < out[j].ID
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// PutEntity inserts or replaces an entity.
func (s *BadgerStore) PutEntity(ctx context.Context, e *types.Entity) error {
	if e.ID == "" || e.Name == "" {
		return &types.ValidationError{Field: "entity", Reason: "id and name are required"}
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return putJSON(txn, entityPrefix+e.ID, e)
	})
}

// GetEntity returns the stored entity.
func (s *BadgerStore) GetEntity(ctx context.Context, id string) (*types.Entity, error) {
	var e types.Entity
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, entityPrefix+id, &e)
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, fmt.Errorf("entity %s: %w", id, types.ErrNotFound)
		}
		return nil, err
	}
	return &e, nil
}

// EntitiesByType lists entities of the given type, ordered by id.
func (s *BadgerStore) EntitiesByType(ctx context.Context, t types.EntityType) ([]*types.Entity, error) {
	var out []*types.Entity
	err := s.db.View(func(txn *badger.Txn) error {
		return forEachPrefix(txn, entityPrefix, func(item *badger.Item) error {
			var e types.Entity
			if err := item.Value(func(v []byte) error { return json.Unmarshal(v, &e) }); err != nil {
				return err
			}
			if e.Type == t {
				cp := e
				out = append(out, &cp)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Close closes the underlying database.
func (s *BadgerStore) Close() error { return s.db.Close() }

func (s *BadgerStore) agentUnits(agentID string, fts []types.FactType) ([]*types.MemoryUnit, error) {
	var out []*types.MemoryUnit
	err := s.db.View(func(txn *badger.Txn) error {
		return forEachPrefix(txn, unitPrefix, func(item *badger.Item) error {
			var u types.MemoryUnit
			if err := item.Value(func(v []byte) error { return json.Unmarshal(v, &u) }); err != nil {
				return err
			}
			if u.AgentID != agentID || !matchesFactTypes(&u, fts) {
				return nil
			}
			cp := u
			out = append(out, &cp)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func checkDims(txn *badger.Txn, dims int, unitID string) error {
	item, err := txn.Get([]byte(dimsKey))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return putJSON(txn, dimsKey, dims)
	}
	if err != nil {
		return err
	}
	var have int
	if err := item.Value(func(v []byte) error { return json.Unmarshal(v, &have) }); err != nil {
		return err
	}
	if have != dims {
		return fmt.Errorf("unit %s: %w: got %d, store has %d", unitID, types.ErrDimensionMismatch, dims, have)
	}
	return nil
}

func appendNeighbor(txn *badger.Txn, id string, n types.Neighbor) error {
	var neighbors []types.Neighbor
	if err := getJSON(txn, adjPrefix+id, &neighbors); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
		return err
	}
	neighbors = append(neighbors, n)
	return putJSON(txn, adjPrefix+id, neighbors)
}

func putJSON(txn *badger.Txn, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set([]byte(key), data)
}

func getJSON(txn *badger.Txn, key string, v any) error {
	item, err := txn.Get([]byte(key))
	if err != nil {
		return err
	}
	return item.Value(func(data []byte) error { return json.Unmarshal(data, v) })
}

func forEachPrefix(txn *badger.Txn, prefix string, fn func(item *badger.Item) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(prefix)
	it := txn.NewIterator(opts)
	defer it.Close()
	for it.Rewind(); it.Valid(); it.Next() {
		if err := fn(it.Item()); err != nil {
			return err
		}
	}
	return nil
}

func matchesFactTypes(u *types.MemoryUnit, fts []types.FactType) bool {
	if len(fts) == 0 {
		return true
	}
	for _, ft := range fts {
		if u.FactType == ft {
			return true
		}
	}
	return false
}

func containsLinkType(ts []types.LinkType, t types.LinkType) bool {
	for _, x := range ts {
		if x == t {
			return true
		}
	}
	return false
}

var _ store.Store = (*BadgerStore)(nil)
