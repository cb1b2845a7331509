package ingest

import "context"

// Provider is the tabular side of the pipeline. How rows are paginated
// or authenticated is its business; the job only sees full snapshots.
type Provider interface {
	ListTables(ctx context.Context) ([]string, error)
	FetchRows(ctx context.Context, table string) ([]RawRow, error)
}

// Store is the graph side. It executes write plans; it never sees raw
// rows or normalized records.
type Store interface {
	OpenSession(ctx context.Context) (Session, error)
}

// Session is one scoped connection to the store.
type Session interface {
	BeginTx(ctx context.Context) (Tx, error)
	// WipeAll irreversibly deletes every node and relationship.
	WipeAll(ctx context.Context) error
	Close(ctx context.Context) error
}

// Tx is one atomic write unit: either every plan run inside it is
// applied, or none is.
type Tx interface {
	Run(ctx context.Context, plan WritePlan) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}
