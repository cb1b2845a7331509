package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// fakeProvider serves fixed snapshots from memory.
type fakeProvider struct {
	tables   []string
	rows     map[string][]RawRow
	listErr  error
	fetchErr map[string]error
}

func (p *fakeProvider) ListTables(context.Context) ([]string, error) {
	if p.listErr != nil {
		return nil, p.listErr
	}

	return p.tables, nil
}

func (p *fakeProvider) FetchRows(_ context.Context, table string) ([]RawRow, error) {
	if err := p.fetchErr[table]; err != nil {
		return nil, err
	}

	return p.rows[table], nil
}

// placeholderLabel is where the fake graph keeps nodes that were merged
// into existence by an edge endpoint, mirroring an unlabeled neo4j node.
const placeholderLabel = ""

// memGraph imitates the store's merge semantics: node merges are keyed
// by (label, id), edge endpoint lookups see every node regardless of
// label and create placeholders for misses.
type memGraph struct {
	nodes       map[string]map[string]map[string]any
	edges       map[EdgeTuple]struct{}
	constraints map[string]string
}

func newMemGraph() *memGraph {
	return &memGraph{
		nodes:       make(map[string]map[string]map[string]any),
		edges:       make(map[EdgeTuple]struct{}),
		constraints: make(map[string]string),
	}
}

func (g *memGraph) mergeNode(label, id string, props map[string]any) {
	if g.nodes[label] == nil {
		g.nodes[label] = make(map[string]map[string]any)
	}

	g.nodes[label][id] = props
}

func (g *memGraph) hasAnyNode(id string) bool {
	for _, byID := range g.nodes {
		if _, ok := byID[id]; ok {
			return true
		}
	}

	return false
}

func (g *memGraph) nodeCount() int {
	n := 0
	for _, byID := range g.nodes {
		n += len(byID)
	}

	return n
}

func (g *memGraph) placeholders() []string {
	ids := []string{}
	for id := range g.nodes[placeholderLabel] {
		ids = append(ids, id)
	}

	return ids
}

type memStore struct {
	mu      sync.Mutex
	graph   *memGraph
	commits []string
	txs     []*memTx

	// runErr, when set, fails tx.Run for matching plan types.
	runErr func(plan WritePlan) error
}

func newMemStore() *memStore {
	return &memStore{graph: newMemGraph()}
}

func (s *memStore) OpenSession(context.Context) (Session, error) {
	return &memSession{store: s}, nil
}

type memSession struct {
	store *memStore
}

func (m *memSession) BeginTx(context.Context) (Tx, error) {
	tx := &memTx{store: m.store}

	m.store.mu.Lock()
	m.store.txs = append(m.store.txs, tx)
	m.store.mu.Unlock()

	return tx, nil
}

func (m *memSession) WipeAll(context.Context) error {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()

	m.store.graph = newMemGraph()
	m.store.commits = append(m.store.commits, "wipe")

	return nil
}

func (m *memSession) Close(context.Context) error { return nil }

type memTx struct {
	store      *memStore
	staged     []WritePlan
	rolledBack bool
}

func (t *memTx) Run(_ context.Context, plan WritePlan) error {
	if t.store.runErr != nil {
		if err := t.store.runErr(plan); err != nil {
			return err
		}
	}

	t.staged = append(t.staged, plan)

	return nil
}

func (t *memTx) Commit(context.Context) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	for _, plan := range t.staged {
		t.store.apply(plan)
	}

	return nil
}

func (t *memTx) Rollback(context.Context) error {
	t.staged = nil
	t.rolledBack = true

	return nil
}

func (s *memStore) apply(plan WritePlan) {
	g := s.graph

	switch p := plan.(type) {
	case ConstraintPlan:
		g.constraints[p.Label] = p.Property
		s.commits = append(s.commits, "constraint:"+p.Label)
	case NodeMergePlan:
		for _, row := range p.Rows {
			id := row[p.IDProperty].(string)
			g.mergeNode(p.Label, id, row)
		}
		s.commits = append(s.commits, fmt.Sprintf("nodes:%s", p.Label))
	case EdgeMergePlan:
		for _, tuple := range p.Tuples {
			for _, id := range []string{tuple.Source, tuple.Target} {
				if !g.hasAnyNode(id) {
					g.mergeNode(placeholderLabel, id, map[string]any{p.IDProperty: id})
				}
			}
			g.edges[tuple] = struct{}{}
		}
		s.commits = append(s.commits, "edges")
	}
}

func peopleAndCompanies() *fakeProvider {
	return &fakeProvider{
		tables: []string{"People", "Companies"},
		rows: map[string][]RawRow{
			"People": {
				{
					ID: "rec00000000000001",
					Fields: map[string]any{
						"Name":     "Ada",
						"FRIENDS":  []any{"rec00000000000002"},
						"WORKS_AT": []any{"rec00000000000051"},
					},
				},
				{
					ID:     "rec00000000000002",
					Fields: map[string]any{"Name": "Grace"},
				},
			},
			"Companies": {
				{
					ID:     "rec00000000000051",
					Fields: map[string]any{"Name": "Acme", "Founded": 1947},
				},
			},
		},
	}
}

func newTestJob(t *testing.T, provider Provider, store Store) *Job {
	t.Helper()

	return NewJob(provider, store, zaptest.NewLogger(t).Sugar(), WithWorkers(2))
}

func TestJobRunPhaseOrdering(t *testing.T) {
	store := newMemStore()
	job := newTestJob(t, peopleAndCompanies(), store)

	require.NoError(t, job.Run(context.Background(), false))

	commits := store.commits
	require.Equal(t, []string{
		"constraint:People",
		"nodes:People",
		"constraint:Companies",
		"nodes:Companies",
		"edges",
	}, commits)
}

func TestJobRunIdempotent(t *testing.T) {
	store := newMemStore()
	job := newTestJob(t, peopleAndCompanies(), store)

	require.NoError(t, job.Run(context.Background(), false))

	nodesAfterFirst := store.graph.nodeCount()
	edgesAfterFirst := len(store.graph.edges)

	require.NoError(t, job.Run(context.Background(), false))

	assert.Equal(t, nodesAfterFirst, store.graph.nodeCount())
	assert.Equal(t, edgesAfterFirst, len(store.graph.edges))

	ada := store.graph.nodes["People"]["rec00000000000001"]
	require.NotNil(t, ada)
	assert.Equal(t, "Ada", ada["Name"])
}

func TestJobRunNoPlaceholderForIngestedTargets(t *testing.T) {
	store := newMemStore()
	job := newTestJob(t, peopleAndCompanies(), store)

	require.NoError(t, job.Run(context.Background(), false))

	// rec...51 is both a Companies record and an edge target; it must
	// come out fully populated, not as a placeholder.
	assert.NotContains(t, store.graph.placeholders(), "rec00000000000051")

	acme := store.graph.nodes["Companies"]["rec00000000000051"]
	require.NotNil(t, acme)
	assert.Equal(t, "Acme", acme["Name"])
	assert.Equal(t, 1947, acme["Founded"])

	// rec...02 is a People record targeted by FRIENDS; same guarantee.
	assert.NotContains(t, store.graph.placeholders(), "rec00000000000002")
}

func TestJobRunDanglingTargetBecomesPlaceholder(t *testing.T) {
	provider := &fakeProvider{
		tables: []string{"People"},
		rows: map[string][]RawRow{
			"People": {
				{
					ID:     "rec00000000000001",
					Fields: map[string]any{"KNOWS": "rec00000000000099"},
				},
			},
		},
	}

	store := newMemStore()
	job := newTestJob(t, provider, store)

	// a dangling target is tolerated, never an error
	require.NoError(t, job.Run(context.Background(), false))

	assert.Contains(t, store.graph.placeholders(), "rec00000000000099")
	assert.Len(t, store.graph.edges, 1)
}

func TestJobRunNuke(t *testing.T) {
	store := newMemStore()
	store.graph.mergeNode("Leftover", "old-1", map[string]any{"junk": true})
	store.graph.edges[EdgeTuple{Source: "old-1", Target: "old-2", Label: "OLD"}] = struct{}{}

	job := newTestJob(t, peopleAndCompanies(), store)

	require.NoError(t, job.Run(context.Background(), true))

	assert.Equal(t, "wipe", store.commits[0])
	assert.Empty(t, store.graph.nodes["Leftover"])

	for edge := range store.graph.edges {
		assert.NotEqual(t, "OLD", edge.Label)
	}

	assert.NotNil(t, store.graph.nodes["People"]["rec00000000000001"])
}

func TestJobRunWithoutNukeKeepsStore(t *testing.T) {
	store := newMemStore()
	store.graph.mergeNode("Leftover", "old-1", map[string]any{"junk": true})

	job := newTestJob(t, peopleAndCompanies(), store)

	require.NoError(t, job.Run(context.Background(), false))

	assert.NotNil(t, store.graph.nodes["Leftover"]["old-1"])
}

func TestJobRunEmptyTable(t *testing.T) {
	provider := &fakeProvider{
		tables: []string{"People"},
		rows:   map[string][]RawRow{"People": nil},
	}

	store := newMemStore()
	job := newTestJob(t, provider, store)

	require.NoError(t, job.Run(context.Background(), false))

	assert.Equal(t, IDProperty, store.graph.constraints["People"])
	assert.Zero(t, store.graph.nodeCount())
	assert.Empty(t, store.graph.edges)
}

func TestJobRunFetchErrorAborts(t *testing.T) {
	provider := peopleAndCompanies()
	provider.fetchErr = map[string]error{"Companies": errors.New("rate limited")}

	store := newMemStore()
	job := newTestJob(t, provider, store)

	err := job.Run(context.Background(), false)

	var fetchErr *SourceFetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, "Companies", fetchErr.Table)

	// nothing may reach the store on a failed fetch
	assert.Empty(t, store.commits)
}

func TestJobRunListErrorAborts(t *testing.T) {
	provider := peopleAndCompanies()
	provider.listErr = errors.New("unauthorized")

	store := newMemStore()
	job := newTestJob(t, provider, store)

	require.Error(t, job.Run(context.Background(), false))
	assert.Empty(t, store.commits)
}

func TestJobRunStoreErrorAborts(t *testing.T) {
	store := newMemStore()
	store.runErr = func(plan WritePlan) error {
		if p, ok := plan.(NodeMergePlan); ok && p.Label == "Companies" {
			return errors.New("deadline exceeded")
		}

		return nil
	}

	job := newTestJob(t, peopleAndCompanies(), store)

	err := job.Run(context.Background(), false)

	var writeErr *StoreWriteError
	require.ErrorAs(t, err, &writeErr)
	assert.Equal(t, "nodes", writeErr.Phase)
	assert.Equal(t, "Companies", writeErr.Table)

	// units committed before the failure stay committed, edges never ran
	assert.Contains(t, store.commits, "nodes:People")
	assert.NotContains(t, store.commits, "edges")

	// the failing unit's transaction must have been rolled back
	require.NotEmpty(t, store.txs)
	failed := store.txs[len(store.txs)-1]
	assert.True(t, failed.rolledBack)

	for _, tx := range store.txs[:len(store.txs)-1] {
		assert.False(t, tx.rolledBack)
	}
}

func TestJobRunMalformedRowAborts(t *testing.T) {
	provider := &fakeProvider{
		tables: []string{"People"},
		rows: map[string][]RawRow{
			"People": {{Fields: map[string]any{"Name": "nobody"}}},
		},
	}

	store := newMemStore()
	job := newTestJob(t, provider, store)

	err := job.Run(context.Background(), false)

	var malformed *MalformedRecordError
	require.ErrorAs(t, err, &malformed)
	assert.Empty(t, store.commits)
}
