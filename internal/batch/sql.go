package batch

import (
	"fmt"
	"regexp"
	"strings"
)

var leadingSelect = regexp.MustCompile(`(?i)^\s*SELECT`)

// RecencyPredicate returns the filter limiting rows to those changed in the
// last days days, or "" when days <= 0.
func RecencyPredicate(days int) string {
	if days <= 0 {
		return ""
	}
	return fmt.Sprintf("WHERE row_changed_date >= DATEADD(DAY, -%d, CURRENT DATE)", days)
}

// SpliceRecency replaces every occurrence of slot in selectSQL with the
// recency predicate for days. A blank slot leaves selectSQL unchanged.
func SpliceRecency(selectSQL, slot string, days int) string {
	if strings.TrimSpace(slot) == "" {
		return selectSQL
	}
	return strings.ReplaceAll(selectSQL, slot, RecencyPredicate(days))
}

// BuildWhere returns the outer filter applied to the spliced select.
func BuildWhere(clause string) string {
	where := "WHERE 1=1"
	if c := strings.TrimSpace(clause); c != "" {
		where += " AND " + c
	}
	return where
}

// CountSQL wraps selectSQL in a row count restricted by where.
func CountSQL(selectSQL, where string) string {
	return fmt.Sprintf("SELECT COUNT(*) AS count FROM ( %s ) c %s", selectSQL, where)
}

// PageSelector builds the statement fetching one page of selectSQL.
func PageSelector(selectSQL, where, order string, offset, length int) string {
	body := leadingSelect.ReplaceAllString(selectSQL, "")
	return fmt.Sprintf("SELECT TOP %d START AT %d %s %s %s;", length, offset, strings.TrimSpace(body), where, order)
}
