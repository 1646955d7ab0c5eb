package adapter

import (
	"context"
	"fmt"
	"slices"

	"github.com/arthur-debert/nedb-adapter/types"
)

// Lookup is what a join orchestrator needs from the adapter: find records of
// any model on the connection, and name a model's primary key.
type Lookup interface {
	FindByCriteria(ctx context.Context, model string, criteria types.Criteria) ([]types.Record, error)
	PrimaryKeyName(model string) (string, error)
}

// JoinRequest is the parent query handed to a JoinRunner.
type JoinRequest struct {
	Connection string
	Parent     string
	Criteria   types.Criteria
}

// JoinRunner executes a join plan using lookup for every model access.
type JoinRunner interface {
	RunJoin(ctx context.Context, req JoinRequest, lookup Lookup) ([]types.Record, error)
}

// JoinRunnerFunc adapts a function to JoinRunner.
type JoinRunnerFunc func(ctx context.Context, req JoinRequest, lookup Lookup) ([]types.Record, error)

func (f JoinRunnerFunc) RunJoin(ctx context.Context, req JoinRequest, lookup Lookup) ([]types.Record, error) {
	return f(ctx, req, lookup)
}

// connectionLookup resolves models by name on every call, so it never holds
// a collection past a teardown.
type connectionLookup struct {
	adapter    *Adapter
	connection string
}

// Lookup returns the lookup contract scoped to one connection.
func (a *Adapter) Lookup(conn string) Lookup {
	return connectionLookup{adapter: a, connection: conn}
}

func (l connectionLookup) collection(model string) (*Collection, error) {
	if model == "" {
		return nil, fmt.Errorf("%w: empty model name", ErrUnknownModel)
	}
	return l.adapter.Collection(l.connection, model)
}

func (l connectionLookup) FindByCriteria(ctx context.Context, model string, criteria types.Criteria) ([]types.Record, error) {
	col, err := l.collection(model)
	if err != nil {
		return nil, err
	}
	return col.Find(ctx, criteria)
}

func (l connectionLookup) PrimaryKeyName(model string) (string, error) {
	col, err := l.collection(model)
	if err != nil {
		return "", err
	}
	return col.PrimaryKey(), nil
}

// Join hands the parent query to runner along with a lookup for the
// connection. Select is dropped before the runner sees the criteria.
func (a *Adapter) Join(ctx context.Context, conn, model string, criteria types.Criteria, runner JoinRunner) ([]types.Record, error) {
	if _, err := a.Collection(conn, model); err != nil {
		return nil, err
	}
	req := JoinRequest{Connection: conn, Parent: model, Criteria: criteria.WithoutSelect()}
	return runner.RunJoin(ctx, req, a.Lookup(conn))
}

// Populate is a one-level join: every parent record gets an Alias field
// holding the child records whose ChildKey equals the parent's ParentKey.
// An empty ParentKey means the parent's primary key.
type Populate struct {
	Alias     string
	Child     string
	ChildKey  string
	ParentKey string
	// Criteria further filters children. Its where clause is combined with
	// the key match.
	Criteria types.Criteria
}

func (p Populate) RunJoin(ctx context.Context, req JoinRequest, lookup Lookup) ([]types.Record, error) {
	parents, err := lookup.FindByCriteria(ctx, req.Parent, req.Criteria)
	if err != nil {
		return nil, err
	}
	parentKey := p.ParentKey
	if parentKey == "" {
		if parentKey, err = lookup.PrimaryKeyName(req.Parent); err != nil {
			return nil, err
		}
	}

	var keys []any
	seen := map[string]bool{}
	for _, rec := range parents {
		v, ok := rec[parentKey]
		if !ok || v == nil {
			continue
		}
		k := fmt.Sprint(v)
		if !seen[k] {
			seen[k] = true
			keys = append(keys, v)
		}
	}

	groups := map[string][]types.Record{}
	if len(keys) > 0 {
		criteria := p.Criteria.WithoutSelect()
		match := types.Cmp(p.ChildKey, types.OpIn, keys)
		if criteria.Where != nil {
			criteria.Where = types.And{Nodes: []types.Node{match, criteria.Where}}
		} else {
			criteria.Where = match
		}
		children, err := lookup.FindByCriteria(ctx, p.Child, criteria)
		if err != nil {
			return nil, err
		}
		for _, child := range children {
			for _, k := range groupKeys(child[p.ChildKey]) {
				groups[k] = append(groups[k], child)
			}
		}
	}

	out := make([]types.Record, len(parents))
	for i, rec := range parents {
		joined := rec.Clone()
		kids := groups[fmt.Sprint(rec[parentKey])]
		if kids == nil || rec[parentKey] == nil {
			kids = []types.Record{}
		}
		joined[p.Alias] = kids
		out[i] = joined
	}
	return out, nil
}

// groupKeys returns the join keys a child value answers to. An array value
// answers to each distinct element.
func groupKeys(v any) []string {
	list, ok := v.([]any)
	if !ok {
		return []string{fmt.Sprint(v)}
	}
	var out []string
	for _, e := range list {
		if e == nil {
			continue
		}
		if k := fmt.Sprint(e); !slices.Contains(out, k) {
			out = append(out, k)
		}
	}
	return out
}
