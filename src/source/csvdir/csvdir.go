// Package csvdir implements the source provider over a directory of CSV
// snapshots, one "<table>.csv" per table. The header row names the
// columns; the first column holds the stable record identifier. It exists
// for local runs and tests, where pointing the pipeline at a SaaS base
// would be overkill.
package csvdir

import (
	"context"
	"encoding/csv"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/Blackdeer1524/airgraph/src/ingest"
)

const tableSuffix = ".csv"

// targetSeparator splits a multi-target edge cell, e.g. "rec1;rec2".
const targetSeparator = ";"

// Provider reads table snapshots from one directory of an afero
// filesystem.
type Provider struct {
	fs  afero.Fs
	dir string
}

func New(fs afero.Fs, dir string) *Provider {
	return &Provider{fs: fs, dir: dir}
}

// ListTables returns every "<name>.csv" in the directory as a table
// name, in lexical order.
func (p *Provider) ListTables(_ context.Context) ([]string, error) {
	infos, err := afero.ReadDir(p.fs, p.dir)
	if err != nil {
		return nil, fmt.Errorf("listing %q: %w", p.dir, err)
	}

	tables := []string{}
	for _, info := range infos {
		if info.IsDir() || !strings.HasSuffix(info.Name(), tableSuffix) {
			continue
		}

		tables = append(tables, strings.TrimSuffix(info.Name(), tableSuffix))
	}

	return tables, nil
}

// FetchRows parses one table's CSV file into raw rows. Empty cells are
// treated as absent columns; cells of edge columns may carry several
// targets separated by ";".
func (p *Provider) FetchRows(_ context.Context, table string) ([]ingest.RawRow, error) {
	path := filepath.Join(p.dir, table+tableSuffix)

	f, err := p.fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %q: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	lines, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing %q: %w", path, err)
	}

	if len(lines) == 0 {
		return nil, nil
	}

	header := lines[0]
	rows := make([]ingest.RawRow, 0, len(lines)-1)

	for _, line := range lines[1:] {
		row := ingest.RawRow{Fields: make(map[string]any)}

		if len(line) > 0 {
			row.ID = line[0]
		}

		for i := 1; i < len(header) && i < len(line); i++ {
			name, cell := header[i], line[i]
			if cell == "" {
				continue
			}

			if ingest.Classify(name) == ingest.ColumnEdge {
				row.Fields[name] = splitTargets(cell)
				continue
			}

			row.Fields[name] = cell
		}

		rows = append(rows, row)
	}

	return rows, nil
}

func splitTargets(cell string) []string {
	parts := strings.Split(cell, targetSeparator)

	targets := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			targets = append(targets, trimmed)
		}
	}

	return targets
}
