package discovery

import (
	"strconv"
	"strings"
)

type wellCounter struct {
	key  string
	stmt string
}

// wellCounters are run as one batch against each project database. Every
// statement returns a single "tally" column.
var wellCounters = []wellCounter{
	{"well_count", "SELECT COUNT(uwi) AS tally FROM well"},
	{"wells_with_completion", "SELECT COUNT(DISTINCT uwi) AS tally FROM well_completion"},
	{"wells_with_core", "SELECT COUNT(DISTINCT uwi) AS tally FROM well_core"},
	{"wells_with_dst", "SELECT COUNT(DISTINCT uwi) AS tally FROM well_test WHERE test_type = 'DST'"},
	{"wells_with_formation", "SELECT COUNT(DISTINCT uwi) AS tally FROM well_formation"},
	{"wells_with_ip", "SELECT COUNT(DISTINCT uwi) AS tally FROM well_test WHERE test_type = 'IP'"},
	{"wells_with_perforation", "SELECT COUNT(DISTINCT uwi) AS tally FROM well_perforation"},
	{"wells_with_production", "SELECT COUNT(DISTINCT uwi) AS tally FROM well_cumulative_production"},
	{"wells_with_raster_log", "SELECT COUNT(DISTINCT(w.uwi)) AS tally FROM well w JOIN log_image_reg_log_section r ON r.well_id = w.uwi"},
	{"wells_with_survey", "SELECT COUNT(DISTINCT uwi) AS tally FROM ( SELECT uwi FROM well_dir_srvy_station UNION SELECT uwi FROM well_dir_proposed_srvy_station ) x"},
	{"wells_with_vector_log", "SELECT COUNT(DISTINCT wellid) AS tally FROM gx_well_curve"},
	{"wells_with_zone", "SELECT COUNT(DISTINCT uwi) AS tally FROM well_zone_interval"},
}

func countStatements() []string {
	stmts := make([]string, len(wellCounters))
	for i, c := range wellCounters {
		stmts[i] = c.stmt
	}
	return stmts
}

// tally reads the "tally" column of the first row. Missing or null values
// count as zero.
func tally(rows []map[string]any) int64 {
	if len(rows) == 0 {
		return 0
	}
	for k, v := range rows[0] {
		if !strings.EqualFold(k, "tally") {
			continue
		}
		switch n := v.(type) {
		case int64:
			return n
		case int32:
			return int64(n)
		case int:
			return int64(n)
		case float64:
			return int64(n)
		case []byte:
			i, _ := strconv.ParseInt(string(n), 10, 64)
			return i
		case string:
			i, _ := strconv.ParseInt(n, 10, 64)
			return i
		}
	}
	return 0
}
