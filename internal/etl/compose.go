package etl

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rbhughes/old-purrio-geographix/internal/domain"
	"github.com/rbhughes/old-purrio-geographix/internal/legacy"
)

// ErrMissingColumn is returned when a row lacks an identifier column.
var ErrMissingColumn = errors.New("row is missing identifier column")

// Warning reports a column whose declared transform kind has no
// implementation.
type Warning struct {
	Column string
	Kind   string
}

// DocumentID returns the content hash identifying a source row.
func DocumentID(repoID, asset, suite string, keyValues []string) string {
	return domain.Hashify(repoID + asset + suite + repoID + strings.Join(keyValues, ""))
}

// ComposeDocs builds one AssetDocument per row of a page. rows are not
// modified. Each column with an unimplemented transform is reported once
// in the returned warnings.
func ComposeDocs(body *domain.ExtractPageBody, rows []legacy.Row) ([]domain.AssetDocument, []Warning, error) {
	prefixes := make([]string, 0, len(body.Prefixes))
	for p := range body.Prefixes {
		prefixes = append(prefixes, p)
	}
	sort.Strings(prefixes)

	var warnings []Warning
	warned := make(map[string]bool)

	docs := make([]domain.AssetDocument, 0, len(rows))
	for i, row := range rows {
		assetKeys, err := keyValues(row, body.AssetIDKeys)
		if err != nil {
			return nil, nil, fmt.Errorf("row %d: %w", i, err)
		}
		wellKeys, err := keyValues(row, body.WellIDKeys)
		if err != nil {
			return nil, nil, fmt.Errorf("row %d: %w", i, err)
		}

		values := make(map[string]any, len(row)+len(body.Xforms))
		for k, v := range row {
			values[k] = v
		}
		for col, x := range body.Xforms {
			kind := KindOf(x)
			out, err := Transform(kind, values[col])
			if err != nil && !warned[col] {
				warned[col] = true
				warnings = append(warnings, Warning{Column: col, Kind: kind})
			}
			values[col] = out
		}

		doc := make(map[string]map[string]any, len(prefixes))
		for _, prefix := range prefixes {
			table := body.Prefixes[prefix]
			if doc[table] == nil {
				doc[table] = make(map[string]any)
			}
			for k, v := range values {
				if strings.HasPrefix(k, prefix) {
					doc[table][strings.TrimPrefix(k, prefix)] = v
				}
			}
		}

		docs = append(docs, domain.AssetDocument{
			ID:       DocumentID(body.RepoID, body.Asset, body.Suite, assetKeys),
			RepoID:   body.RepoID,
			RepoName: body.RepoName,
			WellID:   strings.Join(wellKeys, "-"),
			Suite:    body.Suite,
			Tag:      body.Tag,
			Doc:      doc,
		})
	}

	sort.Slice(warnings, func(i, j int) bool { return warnings[i].Column < warnings[j].Column })
	return docs, warnings, nil
}

func keyValues(row legacy.Row, keys []string) ([]string, error) {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		v, ok := row[k]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, k)
		}
		out = append(out, keyString(v))
	}
	return out, nil
}

// keyString renders an identifier value the way Python's str() does, so
// document ids agree with ids minted by the Python loaders.
func keyString(v any) string {
	switch s := v.(type) {
	case nil:
		return "None"
	case string:
		return s
	case []byte:
		return string(s)
	case bool:
		if s {
			return "True"
		}
		return "False"
	case float64:
		return pyFloat(s, 64)
	case float32:
		return pyFloat(float64(s), 32)
	case time.Time:
		if s.Nanosecond()/1000 != 0 {
			return s.Format("2006-01-02 15:04:05.000000")
		}
		return s.Format("2006-01-02 15:04:05")
	default:
		return fmt.Sprint(v)
	}
}

// pyFloat formats f like Python's float repr: shortest round-trip digits,
// always a decimal point, scientific notation outside [1e-4, 1e16).
func pyFloat(f float64, bitSize int) string {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}

	if abs := math.Abs(f); abs != 0 && (abs < 1e-4 || abs >= 1e16) {
		return strconv.FormatFloat(f, 'e', -1, bitSize)
	}
	out := strconv.FormatFloat(f, 'f', -1, bitSize)
	if !strings.ContainsRune(out, '.') {
		out += ".0"
	}
	return out
}
