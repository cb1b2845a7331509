package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants"
	"golang.org/x/sync/errgroup"

	"github.com/Blackdeer1524/airgraph/src"
)

const DefaultWorkers = 4

// Job drives one full snapshot ingest: fetch every table, normalize,
// optionally wipe the store, merge all nodes, then merge all edges.
// Edges wait for every table's nodes so that merging an endpoint by
// identifier can never shadow a record that is still in flight.
type Job struct {
	provider Provider
	store    Store
	log      src.Logger

	workers int
}

type JobOption func(*Job)

// WithWorkers bounds the fetch and transform fan-out. One worker makes
// both phases strictly sequential.
func WithWorkers(n int) JobOption {
	return func(j *Job) {
		if n > 0 {
			j.workers = n
		}
	}
}

func NewJob(provider Provider, store Store, log src.Logger, opts ...JobOption) *Job {
	j := &Job{
		provider: provider,
		store:    store,
		log:      log,
		workers:  DefaultWorkers,
	}

	for _, opt := range opts {
		opt(j)
	}

	return j
}

// Run executes the whole pipeline once. With nuke set, every node and
// relationship already in the store is destroyed before the first write.
// Any fatal error aborts the run as-is: committed units stay committed,
// and a rerun converges because every write is a merge.
func (j *Job) Run(ctx context.Context, nuke bool) error {
	runID := uuid.NewString()
	start := time.Now()

	j.log.Infof("run %s: starting ingest job", runID)

	tables, err := j.provider.ListTables(ctx)
	if err != nil {
		return fmt.Errorf("listing source tables: %w", err)
	}

	j.log.Infof("run %s: found %d tables in source: %v", runID, len(tables), tables)

	rows, err := j.fetchAll(ctx, tables)
	if err != nil {
		return err
	}

	batches, err := j.transformAll(tables, rows)
	if err != nil {
		return err
	}

	j.reportDanglingTargets(runID, batches)

	sess, err := j.store.OpenSession(ctx)
	if err != nil {
		return fmt.Errorf("opening store session: %w", err)
	}
	defer func() { _ = sess.Close(ctx) }()

	if nuke {
		j.log.Warnf("run %s: nuke requested, irreversibly wiping the store", runID)

		if err := sess.WipeAll(ctx); err != nil {
			return &StoreWriteError{Phase: "wipe", Err: err}
		}
	}

	for _, batch := range batches {
		constraint, nodes := PlanNodeUpsert(batch)

		if err := j.commitUnit(ctx, sess, constraint); err != nil {
			return &StoreWriteError{Phase: "constraint", Table: batch.Table, Err: err}
		}

		if err := j.commitUnit(ctx, sess, nodes); err != nil {
			return &StoreWriteError{Phase: "nodes", Table: batch.Table, Err: err}
		}

		j.log.Infof(
			"run %s: merged %d nodes under label %q",
			runID, len(nodes.Rows), batch.Table,
		)
	}

	edges := PlanEdgeUpsert(batches)

	if err := j.commitUnit(ctx, sess, edges); err != nil {
		return &StoreWriteError{Phase: "edges", Err: err}
	}

	j.log.Infof("run %s: merged %d edges", runID, len(edges.Tuples))
	j.log.Infof("run %s: ingest finished in %s", runID, time.Since(start))

	return nil
}

// fetchAll downloads every table's snapshot. Tables are independent, so
// downloads run on a bounded errgroup; results are indexed by table
// position, never by completion order.
func (j *Job) fetchAll(ctx context.Context, tables []string) ([][]RawRow, error) {
	rows := make([][]RawRow, len(tables))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(j.workers)

	for i, table := range tables {
		i, table := i, table
		g.Go(func() error {
			start := time.Now()

			fetched, err := j.provider.FetchRows(ctx, table)
			if err != nil {
				return &SourceFetchError{Table: table, Err: err}
			}

			rows[i] = fetched
			j.log.Infof(
				"fetched table %q (%d rows) in %s",
				table, len(fetched), time.Since(start),
			)

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return rows, nil
}

// transformAll normalizes every table on a worker pool. Transformation
// is pure, so the only shared state is the result slice, again indexed
// by table position.
func (j *Job) transformAll(tables []string, rows [][]RawRow) ([]TableBatch, error) {
	pool, err := ants.NewPool(j.workers)
	if err != nil {
		return nil, fmt.Errorf("creating transform pool: %w", err)
	}
	defer pool.Release()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)

	batches := make([]TableBatch, len(tables))

	for i, table := range tables {
		wg.Add(1)

		task := func() {
			defer wg.Done()

			batch, err := TransformTable(table, rows[i])

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				if firstErr == nil {
					firstErr = err
				}

				return
			}

			batches[i] = batch
		}

		if err := pool.Submit(task); err != nil {
			wg.Done()

			mu.Lock()
			if firstErr == nil {
				firstErr = err
			}
			mu.Unlock()
		}
	}

	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}

	return batches, nil
}

// commitUnit runs one plan inside its own transaction with a guaranteed
// commit-or-rollback on every exit path.
func (j *Job) commitUnit(ctx context.Context, sess Session, plan WritePlan) (err error) {
	tx, err := sess.BeginTx(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if err == nil {
			return
		}

		if rbErr := tx.Rollback(ctx); rbErr != nil {
			j.log.Errorf("rollback failed: %v", rbErr)
		}
	}()

	if err = tx.Run(ctx, plan); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// reportDanglingTargets counts edge targets no fetched table has a record
// for. The store tolerates them by merging placeholder nodes, so this is
// an operator signal, never an error.
func (j *Job) reportDanglingTargets(runID string, batches []TableBatch) {
	known := make(map[string]struct{})
	for _, batch := range batches {
		for _, rec := range batch.Records {
			known[rec.ID] = struct{}{}
		}
	}

	dangling := 0
	for _, batch := range batches {
		for _, rec := range batch.Records {
			for _, targets := range rec.Edges {
				for _, target := range targets {
					if _, ok := known[target]; !ok {
						dangling++
					}
				}
			}
		}
	}

	if dangling > 0 {
		j.log.Warnf(
			"run %s: %d edge targets have no source record; "+
				"the store will merge placeholder nodes for them",
			runID, dangling,
		)
	}
}
