package ingest

import "fmt"

// MalformedRecordError reports a source row that carries no stable
// identifier. There is no recovery: every downstream write is keyed by it.
type MalformedRecordError struct {
	Table string
	Index int
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf(
		"table %q: row %d has no stable identifier",
		e.Table, e.Index,
	)
}

// SourceFetchError wraps a provider failure for one table. The job never
// retries; a partial snapshot must not reach the store.
type SourceFetchError struct {
	Table string
	Err   error
}

func (e *SourceFetchError) Error() string {
	return fmt.Sprintf("fetching table %q: %v", e.Table, e.Err)
}

func (e *SourceFetchError) Unwrap() error { return e.Err }

// StoreWriteError wraps a store failure for one write unit. Units are
// committed independently, so everything before the failing unit stays
// applied and a rerun converges thanks to merge semantics.
type StoreWriteError struct {
	Phase string
	Table string
	Err   error
}

func (e *StoreWriteError) Error() string {
	if e.Table == "" {
		return fmt.Sprintf("store write (%s): %v", e.Phase, e.Err)
	}

	return fmt.Sprintf("store write (%s, table %q): %v", e.Phase, e.Table, e.Err)
}

func (e *StoreWriteError) Unwrap() error { return e.Err }
