package ingest

import "errors"

// TableBatch is everything one source table contributes to the run:
// its normalized records in source order.
type TableBatch struct {
	Table   string
	Records []NormalizedRecord
}

// TransformTable normalizes every row of one table. Rows are independent
// of each other; source order is preserved so that logs and tests are
// deterministic. The first malformed row aborts the whole table.
func TransformTable(table string, rows []RawRow) (TableBatch, error) {
	records := make([]NormalizedRecord, 0, len(rows))

	for i, row := range rows {
		rec, err := SplitRow(row)
		if err != nil {
			var malformed *MalformedRecordError
			if errors.As(err, &malformed) {
				malformed.Table = table
				malformed.Index = i
			}

			return TableBatch{}, err
		}

		records = append(records, rec)
	}

	return TableBatch{Table: table, Records: records}, nil
}
