package search

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rbhughes/old-purrio-geographix/internal/domain"
)

var (
	assetPattern  = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)
	onlyWildcards = regexp.MustCompile(`^[*?\s]+$`)
)

// Query is one parameterized search over a single asset table.
type Query struct {
	Asset string
	SQL   string
	Args  []any
}

// TSQuery converts user terms into a to_tsquery expression. `?` becomes
// `_`, `*` becomes a prefix match and terms are ANDed. It returns "" when
// terms hold nothing but wildcards and whitespace.
func TSQuery(terms string) string {
	if strings.TrimSpace(terms) == "" || onlyWildcards.MatchString(terms) {
		return ""
	}
	fields := strings.Fields(terms)
	for i, t := range fields {
		t = strings.ReplaceAll(t, "?", "_")
		fields[i] = strings.ReplaceAll(t, "*", ":*")
	}
	return strings.Join(fields, " & ")
}

// BuildQuery builds the search over asset for body.
func BuildQuery(asset string, body *domain.SearchBody) (Query, error) {
	if !assetPattern.MatchString(asset) {
		return Query{}, fmt.Errorf("%w: invalid asset name %q", domain.ErrValidation, asset)
	}
	if len(body.Suites) == 0 {
		return Query{}, fmt.Errorf("%w: search needs at least one suite", domain.ErrValidation)
	}

	args := []any{asset}
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT repo_id, repo_name, well_id, suite, tag, doc, $1::text AS asset FROM %s a WHERE 1=1",
		pgx.Identifier{asset}.Sanitize())

	placeholders := make([]string, len(body.Suites))
	for i, s := range body.Suites {
		args = append(args, s)
		placeholders[i] = fmt.Sprintf("$%d", len(args))
	}
	fmt.Fprintf(&b, " AND a.suite IN (%s)", strings.Join(placeholders, ","))

	if strings.TrimSpace(body.Tag) != "" {
		args = append(args, body.Tag)
		fmt.Fprintf(&b, " AND a.tag = $%d", len(args))
	}

	if tsq := TSQuery(body.Terms); tsq != "" {
		args = append(args, tsq)
		fmt.Fprintf(&b, " AND a.ts @@ to_tsquery('english', $%d)", len(args))
	}

	return Query{Asset: asset, SQL: b.String(), Args: args}, nil
}

// Limited returns the query capped at limit rows.
func (q Query) Limited(limit int) string {
	return fmt.Sprintf("%s LIMIT %d", q.SQL, limit)
}

// Count returns a query counting every match.
func (q Query) Count() string {
	return fmt.Sprintf("SELECT COUNT(*) FROM (%s) AS subquery", q.SQL)
}
