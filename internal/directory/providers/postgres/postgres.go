// Package postgresprovider looks directory identifiers up in a PostgreSQL table
// holding a directory export.
package postgresprovider

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"mailanon/internal/directory/providers"
)

const ProviderID = "postgres"

// Table names the export table and its identifier and address columns.
type Table struct {
	Name             string
	IdentifierColumn string
	AddressColumn    string
}

type Provider struct {
	db    *sql.DB
	query string
}

func New(db *sql.DB, table Table) (*Provider, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	if table.Name == "" || table.IdentifierColumn == "" || table.AddressColumn == "" {
		return nil, fmt.Errorf("table, identifier column and address column are required")
	}
	id := pq.QuoteIdentifier(table.IdentifierColumn)
	query := fmt.Sprintf(
		"SELECT %s, %s FROM %s WHERE lower(%s) = ANY($1) AND %s IS NOT NULL",
		id,
		pq.QuoteIdentifier(table.AddressColumn),
		quoteTable(table.Name),
		id,
		pq.QuoteIdentifier(table.AddressColumn),
	)
	return &Provider{db: db, query: query}, nil
}

func (p *Provider) ID() string {
	return ProviderID
}

func (p *Provider) Lookup(ctx context.Context, identifiers []string) (map[string]string, error) {
	found := make(map[string]string)
	if len(identifiers) == 0 {
		return found, nil
	}
	byKey := make(map[string]string, len(identifiers))
	keys := make([]string, 0, len(identifiers))
	for _, id := range identifiers {
		k := strings.ToLower(strings.TrimSpace(id))
		if _, dup := byKey[k]; !dup {
			keys = append(keys, k)
		}
		byKey[k] = id
	}

	rows, err := p.db.QueryContext(ctx, p.query, pq.Array(keys))
	if err != nil {
		return nil, classify(ctx, err)
	}
	defer rows.Close()

	for rows.Next() {
		var identifier, address string
		if err := rows.Scan(&identifier, &address); err != nil {
			return nil, providers.NewProviderError(providers.ErrorBadData, ProviderID, "scan directory row", err)
		}
		requested, ok := byKey[strings.ToLower(identifier)]
		if !ok || strings.TrimSpace(address) == "" {
			continue
		}
		if _, seen := found[requested]; !seen {
			found[requested] = address
		}
	}
	if err := rows.Err(); err != nil {
		return nil, classify(ctx, err)
	}
	return found, nil
}

func (p *Provider) Health(ctx context.Context) error {
	if err := p.db.PingContext(ctx); err != nil {
		return classify(ctx, err)
	}
	return nil
}

// quoteTable quotes an optionally schema-qualified table name.
func quoteTable(name string) string {
	parts := strings.Split(name, ".")
	for i, part := range parts {
		parts[i] = pq.QuoteIdentifier(part)
	}
	return strings.Join(parts, ".")
}

func classify(ctx context.Context, err error) error {
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
		return providers.NewProviderError(providers.ErrorTimeout, ProviderID, "query timed out", err)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "28":
			return providers.NewProviderError(providers.ErrorAuthentication, ProviderID, "query rejected", err)
		case "42":
			return providers.NewProviderError(providers.ErrorBadData, ProviderID, "directory table mismatch", err)
		}
	}
	return providers.NewProviderError(providers.ErrorProviderOutage, ProviderID, "query failed", err)
}
