// Package cypher translates ingest write plans into Cypher executed
// against a Neo4j instance.
package cypher

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/Blackdeer1524/airgraph/src/ingest"
)

// Store wraps one Neo4j driver. It implements ingest.Store.
type Store struct {
	driver neo4j.DriverWithContext
}

func New(ctx context.Context, uri, user, password string) (*Store, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("creating neo4j driver: %w", err)
	}

	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, fmt.Errorf("verifying neo4j connectivity: %w", err)
	}

	return &Store{driver: driver}, nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

func (s *Store) OpenSession(ctx context.Context) (ingest.Session, error) {
	sess := s.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode: neo4j.AccessModeWrite,
	})

	return &session{sess: sess}, nil
}

type session struct {
	sess neo4j.SessionWithContext
}

func (s *session) BeginTx(ctx context.Context) (ingest.Tx, error) {
	tx, err := s.sess.BeginTransaction(ctx)
	if err != nil {
		return nil, err
	}

	return &transaction{tx: tx}, nil
}

// WipeAll destroys the whole graph. Runs in an auto-commit transaction:
// it is not part of any write unit and must not be rolled back with one.
func (s *session) WipeAll(ctx context.Context) error {
	_, err := s.sess.Run(ctx, "MATCH (n) DETACH DELETE n", nil)
	return err
}

func (s *session) Close(ctx context.Context) error {
	return s.sess.Close(ctx)
}

type transaction struct {
	tx neo4j.ExplicitTransaction
}

func (t *transaction) Run(ctx context.Context, plan ingest.WritePlan) error {
	switch p := plan.(type) {
	case ingest.ConstraintPlan:
		_, err := t.tx.Run(ctx, constraintQuery(p), nil)
		return err
	case ingest.NodeMergePlan:
		return t.runNodeMerge(ctx, p)
	case ingest.EdgeMergePlan:
		return t.runEdgeMerge(ctx, p)
	}

	return fmt.Errorf("unknown write plan %T", plan)
}

func (t *transaction) Commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

func (t *transaction) Rollback(ctx context.Context) error {
	return t.tx.Rollback(ctx)
}

func (t *transaction) runNodeMerge(ctx context.Context, p ingest.NodeMergePlan) error {
	if len(p.Rows) == 0 {
		return nil
	}

	rows := make([]any, len(p.Rows))
	for i, row := range p.Rows {
		rows[i] = row
	}

	_, err := t.tx.Run(ctx, nodeMergeQuery(p), map[string]any{"rows": rows})
	return err
}

// runEdgeMerge merges tuples grouped by label, since a relationship type
// cannot be parameterized in Cypher. Endpoints are merged by the id
// property alone: a target nobody ingested comes out as an unlabeled
// placeholder node instead of failing the batch.
func (t *transaction) runEdgeMerge(ctx context.Context, p ingest.EdgeMergePlan) error {
	byLabel := make(map[string][]any)
	for _, tuple := range p.Tuples {
		byLabel[tuple.Label] = append(byLabel[tuple.Label], map[string]any{
			"source": tuple.Source,
			"target": tuple.Target,
		})
	}

	labels := make([]string, 0, len(byLabel))
	for label := range byLabel {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	for _, label := range labels {
		query := edgeMergeQuery(p.IDProperty, label)

		if _, err := t.tx.Run(ctx, query, map[string]any{"rows": byLabel[label]}); err != nil {
			return err
		}
	}

	return nil
}

func constraintQuery(p ingest.ConstraintPlan) string {
	return fmt.Sprintf(
		"CREATE CONSTRAINT IF NOT EXISTS FOR (n:%s) REQUIRE n.%s IS UNIQUE",
		escapeName(p.Label), escapeName(p.Property),
	)
}

func nodeMergeQuery(p ingest.NodeMergePlan) string {
	return fmt.Sprintf(
		"UNWIND $rows AS row MERGE (n:%s {%s: row.%s}) SET n += row",
		escapeName(p.Label), escapeName(p.IDProperty), escapeName(p.IDProperty),
	)
}

func edgeMergeQuery(idProperty, label string) string {
	id := escapeName(idProperty)

	return fmt.Sprintf(
		"UNWIND $rows AS row "+
			"MERGE (a {%s: row.source}) "+
			"MERGE (b {%s: row.target}) "+
			"MERGE (a)-[:%s]->(b)",
		id, id, escapeName(label),
	)
}

// escapeName quotes a label, relationship type or property name. Neither
// can be parameterized, so they are interpolated with backtick quoting.
func escapeName(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}
