package domain

import (
	"encoding/json"
	"fmt"
)

// TaskBody is the directive-specific payload of a Task. The set of
// implementations is closed: one variant per directive plus UnknownBody
// for directives this worker does not recognize.
type TaskBody interface {
	// Directive returns the directive this body belongs to.
	Directive() Directive

	// TargetSuites returns the suite(s) the body is addressed to.
	TargetSuites() []string

	isTaskBody()
}

// Xform declares how a single source column is normalized.
type Xform struct {
	TSType string `json:"ts_type" yaml:"ts_type"`
	Xform  string `json:"xform,omitempty" yaml:"xform,omitempty"`
}

// ExtractBatchBody requests extraction of every row of one asset kind
// from one repo. It is decomposed into ExtractPageBody sub-tasks.
type ExtractBatchBody struct {
	ID          int64  `json:"id,omitempty"`
	Asset       string `json:"asset" validate:"required"`
	Chunk       int    `json:"chunk" validate:"gte=0"`
	Cron        string `json:"cron"`
	Recency     int    `json:"recency" validate:"gte=0"`
	RepoFSPath  string `json:"repo_fs_path"`
	RepoID      string `json:"repo_id" validate:"required"`
	RepoName    string `json:"repo_name"`
	Suite       string `json:"suite" validate:"required"`
	Tag         string `json:"tag"`
	WhereClause string `json:"where_clause"`
}

// ExtractPageBody describes one fully-specified page of a batch.
type ExtractPageBody struct {
	Asset       string            `json:"asset" validate:"required"`
	AssetIDKeys []string          `json:"asset_id_keys" validate:"required,min=1"`
	BatchID     string            `json:"batch_id" validate:"required"`
	Conn        Conn              `json:"conn"`
	Prefixes    map[string]string `json:"prefixes"`
	RepoID      string            `json:"repo_id" validate:"required"`
	RepoName    string            `json:"repo_name"`
	Selector    string            `json:"selector" validate:"required"`
	Suite       string            `json:"suite" validate:"required"`
	Tag         string            `json:"tag"`
	WellIDKeys  []string          `json:"well_id_keys"`
	Xforms      map[string]Xform  `json:"xforms"`
}

// DiscoverBody asks the worker to inventory repos below ReconRoot.
type DiscoverBody struct {
	ReconRoot string `json:"recon_root" validate:"required"`
	Suite     string `json:"suite" validate:"required"`
	Worker    string `json:"worker"`
	GGXHost   string `json:"ggx_host"`
}

// SearchBody describes a full-text search over normalized asset documents.
type SearchBody struct {
	SearchID    int64    `json:"search_id"`
	UserID      string   `json:"user_id"`
	Assets      []string `json:"assets" validate:"required,min=1"`
	Suites      []string `json:"suites" validate:"required,min=1"`
	Tag         string   `json:"tag"`
	Terms       string   `json:"terms"`
	SaveToStore bool     `json:"save_to_store"`
}

// HaltBody requests an orderly shutdown of the worker.
type HaltBody struct {
	Suite  string `json:"suite" validate:"required"`
	Reason string `json:"reason,omitempty"`
}

// UnknownBody preserves the raw body of an unrecognized directive so the
// task can be left untouched rather than discarded.
type UnknownBody struct {
	Name Directive       `json:"-"`
	Raw  json.RawMessage `json:"-"`
}

func (*ExtractBatchBody) isTaskBody() {}
func (*ExtractPageBody) isTaskBody()  {}
func (*DiscoverBody) isTaskBody()     {}
func (*SearchBody) isTaskBody()       {}
func (*HaltBody) isTaskBody()         {}
func (*UnknownBody) isTaskBody()      {}

func (*ExtractBatchBody) Directive() Directive { return DirectiveExtractBatch }
func (*ExtractPageBody) Directive() Directive  { return DirectiveExtractPage }
func (*DiscoverBody) Directive() Directive     { return DirectiveDiscover }
func (*SearchBody) Directive() Directive       { return DirectiveSearch }
func (*HaltBody) Directive() Directive         { return DirectiveHalt }
func (b *UnknownBody) Directive() Directive    { return b.Name }

func (b *ExtractBatchBody) TargetSuites() []string { return []string{b.Suite} }
func (b *ExtractPageBody) TargetSuites() []string  { return []string{b.Suite} }
func (b *DiscoverBody) TargetSuites() []string     { return []string{b.Suite} }
func (b *SearchBody) TargetSuites() []string       { return b.Suites }
func (b *HaltBody) TargetSuites() []string         { return []string{b.Suite} }

// TargetSuites reads "suite" or "suites" from the raw body, if present.
func (b *UnknownBody) TargetSuites() []string {
	var probe struct {
		Suite  string   `json:"suite"`
		Suites []string `json:"suites"`
	}
	if err := json.Unmarshal(b.Raw, &probe); err != nil {
		return nil
	}
	if probe.Suite != "" {
		return append(probe.Suites, probe.Suite)
	}
	return probe.Suites
}

// MarshalJSON writes the preserved raw body back out unchanged.
func (b *UnknownBody) MarshalJSON() ([]byte, error) {
	if len(b.Raw) == 0 {
		return []byte("{}"), nil
	}
	return b.Raw, nil
}

// DecodeBody decodes raw into the body variant selected by directive.
func DecodeBody(directive Directive, raw json.RawMessage) (TaskBody, error) {
	var body TaskBody
	switch directive {
	case DirectiveExtractBatch:
		body = &ExtractBatchBody{}
	case DirectiveExtractPage:
		body = &ExtractPageBody{}
	case DirectiveDiscover:
		body = &DiscoverBody{}
	case DirectiveSearch:
		body = &SearchBody{}
	case DirectiveHalt:
		body = &HaltBody{}
	default:
		return &UnknownBody{Name: directive, Raw: append(json.RawMessage(nil), raw...)}, nil
	}

	if len(raw) == 0 || string(raw) == "null" {
		return nil, fmt.Errorf("%w: %s task has no body", ErrInvalidTask, directive)
	}
	if err := json.Unmarshal(raw, body); err != nil {
		return nil, fmt.Errorf("%w: decode %s body: %v", ErrInvalidTask, directive, err)
	}
	return body, nil
}
