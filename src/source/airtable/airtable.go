// Package airtable implements the source provider against the Airtable
// REST API. Table discovery follows the reference-table convention: one
// designated table lists every ingestable table in its Name column.
package airtable

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/Blackdeer1524/airgraph/src/ingest"
)

const (
	defaultBaseURL  = "https://api.airtable.com/v0"
	defaultRefTable = "Tables"

	// Airtable caps clients at 5 requests per second per base.
	requestsPerSecond = 5

	requestTimeout = 30 * time.Second
)

// Provider fetches full-table snapshots from one Airtable base.
type Provider struct {
	apiKey   string
	baseID   string
	refTable string
	baseURL  string

	client  *http.Client
	limiter *rate.Limiter
}

type Option func(*Provider)

// WithReferenceTable overrides which table lists the ingestable tables.
func WithReferenceTable(name string) Option {
	return func(p *Provider) {
		if name != "" {
			p.refTable = name
		}
	}
}

// WithBaseURL points the provider at a different API endpoint. Tests use
// it to target an httptest server.
func WithBaseURL(u string) Option {
	return func(p *Provider) { p.baseURL = u }
}

func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.client = c }
}

func New(apiKey, baseID string, opts ...Option) *Provider {
	p := &Provider{
		apiKey:   apiKey,
		baseID:   baseID,
		refTable: defaultRefTable,
		baseURL:  defaultBaseURL,
		client:   &http.Client{Timeout: requestTimeout},
		limiter:  rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// record and recordsPage mirror the wire format of the list-records
// endpoint.
type record struct {
	ID          string         `json:"id"`
	CreatedTime string         `json:"createdTime"`
	Fields      map[string]any `json:"fields"`
}

type recordsPage struct {
	Records []record `json:"records"`
	Offset  string   `json:"offset"`
}

// ListTables reads the reference table and returns the Name of every
// record in it, in source order.
func (p *Provider) ListTables(ctx context.Context) ([]string, error) {
	rows, err := p.FetchRows(ctx, p.refTable)
	if err != nil {
		return nil, err
	}

	tables := make([]string, 0, len(rows))
	for _, row := range rows {
		name, ok := row.Fields["Name"].(string)
		if !ok || name == "" {
			return nil, fmt.Errorf(
				"reference table %q: record %q has no Name",
				p.refTable, row.ID,
			)
		}

		tables = append(tables, name)
	}

	return tables, nil
}

// FetchRows downloads the full snapshot of one table, following the
// offset cursor until the last page.
func (p *Provider) FetchRows(ctx context.Context, table string) ([]ingest.RawRow, error) {
	var (
		rows   []ingest.RawRow
		offset string
	)

	for {
		page, err := p.fetchPage(ctx, table, offset)
		if err != nil {
			return nil, err
		}

		for _, rec := range page.Records {
			rows = append(rows, ingest.RawRow{
				ID:          rec.ID,
				Fields:      sanitizeFields(rec.Fields),
				CreatedTime: rec.CreatedTime,
			})
		}

		if page.Offset == "" {
			return rows, nil
		}

		offset = page.Offset
	}
}

func (p *Provider) fetchPage(ctx context.Context, table, offset string) (*recordsPage, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf(
		"%s/%s/%s",
		p.baseURL, url.PathEscape(p.baseID), url.PathEscape(table),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	if offset != "" {
		q := req.URL.Query()
		q.Set("offset", offset)
		req.URL.RawQuery = q.Encode()
	}

	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting table %q: %w", table, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("requesting table %q: unexpected status %s", table, resp.Status)
	}

	var page recordsPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decoding table %q response: %w", table, err)
	}

	return &page, nil
}

// sanitizeFields drops entries that are not record ids from edge column
// lists. Link fields hold record ids, but a formula column with a
// shouting name can leak arbitrary strings into the edge path.
func sanitizeFields(fields map[string]any) map[string]any {
	for name, value := range fields {
		if ingest.Classify(name) != ingest.ColumnEdge {
			continue
		}

		switch v := value.(type) {
		case string:
			// single-link fields surface as a bare id
			if !IsRecordID(v) {
				fields[name] = ""
			}
		case []any:
			kept := make([]any, 0, len(v))
			for _, item := range v {
				if s, ok := item.(string); ok && IsRecordID(s) {
					kept = append(kept, s)
				}
			}

			fields[name] = kept
		}
	}

	return fields
}

// IsRecordID reports whether s has the shape of an Airtable record id:
// "rec" followed by alphanumerics, 17 characters total.
func IsRecordID(s string) bool {
	if len(s) != 17 {
		return false
	}

	if s[:3] != "rec" {
		return false
	}

	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		default:
			return false
		}
	}

	return true
}
