package ingest

// RawRow is one record exactly as the source provider hands it over:
// a stable identifier plus the raw column values. CreatedTime is source
// bookkeeping and is discarded during normalization.
type RawRow struct {
	ID          string
	Fields      map[string]any
	CreatedTime string
}

// NormalizedRecord is a RawRow split along the column convention:
// property columns land in Props unchanged, edge columns are reduced to
// their label and target identifiers. Props keys and the columns behind
// Edges partition the kept columns with no overlap.
type NormalizedRecord struct {
	ID    string
	Props map[string]any
	Edges map[string][]string
}

// SplitRow normalizes one raw row. Ignored columns and the creation
// timestamp are dropped, edge values are coerced to a target list
// (a scalar counts as a single-element list, an empty value yields no
// targets). A row without an identifier is a *MalformedRecordError.
func SplitRow(row RawRow) (NormalizedRecord, error) {
	if row.ID == "" {
		return NormalizedRecord{}, &MalformedRecordError{}
	}

	rec := NormalizedRecord{
		ID:    row.ID,
		Props: make(map[string]any),
		Edges: make(map[string][]string),
	}

	for name, value := range row.Fields {
		switch Classify(name) {
		case ColumnIgnored:
		case ColumnEdge:
			label := EdgeLabel(name)
			rec.Edges[label] = append(rec.Edges[label], edgeTargets(value)...)
		case ColumnProperty:
			rec.Props[name] = value
		}
	}

	return rec, nil
}

// edgeTargets coerces an edge column value into a list of target
// identifiers. Sources serialize link fields either as a list of ids or,
// for single links, as a bare string. Anything else carries no targets.
func edgeTargets(value any) []string {
	switch v := value.(type) {
	case nil:
		return nil
	case string:
		if v == "" {
			return nil
		}

		return []string{v}
	case []string:
		return v
	case []any:
		targets := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				targets = append(targets, s)
			}
		}

		return targets
	}

	return nil
}
