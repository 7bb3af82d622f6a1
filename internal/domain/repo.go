package domain

import "time"

// Repo is a discovered legacy project: where it lives, how to connect to
// its database and some inventory metadata.
type Repo struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	FSPath      string           `json:"fs_path"`
	Suite       string           `json:"suite"`
	Conn        Conn             `json:"conn"`
	ConnAux     map[string]any   `json:"conn_aux,omitempty"`
	WellCounts  map[string]int64 `json:"well_counts,omitempty"`
	Bytes       int64            `json:"bytes"`
	Files       int64            `json:"files"`
	Directories int64            `json:"directories"`
	RepoMod     time.Time        `json:"repo_mod"`
	Outline     [][2]float64     `json:"outline,omitempty"`
	UpdatedAt   time.Time        `json:"updated_at,omitempty"`
}

// LedgerEntry tracks one outstanding sub-task of a batch. A batch is
// finished when no entries remain for its BatchID.
type LedgerEntry struct {
	BatchID   string     `json:"batch_id"`
	TaskID    int64      `json:"task_id"`
	Status    TaskStatus `json:"status"`
	NumTasks  int        `json:"num_tasks"`
	Directive Directive  `json:"directive"`
}

// SearchResult is one row written back for a search task. A result with an
// empty RepoID records a search that produced no hits for Asset.
type SearchResult struct {
	SearchID   int64          `json:"search_id"`
	UserID     string         `json:"user_id"`
	Directive  string         `json:"directive"`
	Asset      string         `json:"asset,omitempty"`
	Active     bool           `json:"active"`
	SearchBody any            `json:"search_body"`
	SQL        string         `json:"sql,omitempty"`
	RepoID     string         `json:"repo_id,omitempty"`
	RepoName   string         `json:"repo_name,omitempty"`
	WellID     string         `json:"well_id,omitempty"`
	Suite      string         `json:"suite,omitempty"`
	Tag        string         `json:"tag,omitempty"`
	Doc        map[string]any `json:"doc,omitempty"`
}
