package ingest

import "sort"

// IDProperty is the reserved node property that carries the source
// record identifier. It is what node merges key on, so it must never
// collide with a user column — the ignore prefix guarantees that.
const IDProperty = "_aid"

// WritePlan is a store-agnostic batch mutation. The store client owns
// the translation into its native query language.
type WritePlan interface {
	writePlan()
}

// ConstraintPlan declares that Property must be unique among nodes
// labeled Label. Declared before the first merge so repeated runs hit
// the uniqueness guard instead of duplicating nodes.
type ConstraintPlan struct {
	Label    string
	Property string
}

// NodeMergePlan merges one node per row under Label, keyed by the
// IDProperty value inside each row.
type NodeMergePlan struct {
	Label      string
	IDProperty string
	Rows       []map[string]any
}

// EdgeTuple is one relationship to merge. Source and Target are store-wide
// identifiers, not scoped to any table.
type EdgeTuple struct {
	Source string
	Target string
	Label  string
}

// EdgeMergePlan merges every tuple, matching endpoints by IDProperty
// alone. A target nobody ingested becomes a minimal placeholder node on
// the store side rather than failing the batch.
type EdgeMergePlan struct {
	IDProperty string
	Tuples     []EdgeTuple
}

func (ConstraintPlan) writePlan() {}
func (NodeMergePlan) writePlan()  {}
func (EdgeMergePlan) writePlan()  {}

// PlanNodeUpsert turns one table's batch into its uniqueness constraint
// and node-merge plan. Rows repeating an identifier collapse to the last
// occurrence, which is what a repeated merge would have produced anyway.
// An empty batch yields an empty (no-op) merge plan.
func PlanNodeUpsert(batch TableBatch) (ConstraintPlan, NodeMergePlan) {
	constraint := ConstraintPlan{
		Label:    batch.Table,
		Property: IDProperty,
	}

	rows := make([]map[string]any, 0, len(batch.Records))
	at := make(map[string]int, len(batch.Records))

	for _, rec := range batch.Records {
		row := make(map[string]any, len(rec.Props)+1)
		for k, v := range rec.Props {
			row[k] = v
		}
		row[IDProperty] = rec.ID

		if i, seen := at[rec.ID]; seen {
			rows[i] = row
			continue
		}

		at[rec.ID] = len(rows)
		rows = append(rows, row)
	}

	merge := NodeMergePlan{
		Label:      batch.Table,
		IDProperty: IDProperty,
		Rows:       rows,
	}

	return constraint, merge
}

// PlanEdgeUpsert flattens the edge maps of every supplied batch into one
// cross-table merge plan. Duplicate (source, target, label) tuples
// collapse to a single relationship. Labels are emitted in sorted order
// per record to keep the plan deterministic.
//
// The resulting plan must only be executed after every node-merge plan
// of every table has been committed; otherwise merging an endpoint by
// identifier would plant a placeholder where a fully-populated node
// belongs.
func PlanEdgeUpsert(batches []TableBatch) EdgeMergePlan {
	seen := make(map[EdgeTuple]struct{})
	tuples := []EdgeTuple{}

	for _, batch := range batches {
		for _, rec := range batch.Records {
			labels := make([]string, 0, len(rec.Edges))
			for label := range rec.Edges {
				labels = append(labels, label)
			}
			sort.Strings(labels)

			for _, label := range labels {
				for _, target := range rec.Edges[label] {
					t := EdgeTuple{Source: rec.ID, Target: target, Label: label}
					if _, dup := seen[t]; dup {
						continue
					}

					seen[t] = struct{}{}
					tuples = append(tuples, t)
				}
			}
		}
	}

	return EdgeMergePlan{IDProperty: IDProperty, Tuples: tuples}
}
