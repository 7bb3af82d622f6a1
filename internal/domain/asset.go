package domain

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
)

// AssetDocument is a normalized, content-addressed record extracted from a
// legacy repo and stored in the table named after its asset kind.
type AssetDocument struct {
	ID       string                    `json:"id"`
	RepoID   string                    `json:"repo_id"`
	RepoName string                    `json:"repo_name"`
	WellID   string                    `json:"well_id"`
	Suite    string                    `json:"suite"`
	Tag      string                    `json:"tag"`
	Doc      map[string]map[string]any `json:"doc"`
}

// DNA is the extraction metadata for one asset kind.
type DNA struct {
	Select          string            `json:"select" yaml:"select" validate:"required"`
	Order           string            `json:"order" yaml:"order"`
	WhereRecentSlot string            `json:"where_recent_slot" yaml:"where_recent_slot"`
	AssetIDKeys     []string          `json:"asset_id_keys" yaml:"asset_id_keys" validate:"required,min=1,dive,required"`
	WellIDKeys      []string          `json:"well_id_keys" yaml:"well_id_keys"`
	Prefixes        map[string]string `json:"prefixes" yaml:"prefixes"`
	Xforms          map[string]Xform  `json:"xforms" yaml:"xforms"`
}

// Page is a 1-based window of rows fetched by one statement.
type Page struct {
	Offset int `json:"offset"`
	Length int `json:"length"`
}

// Hashify returns the lowercase hex MD5 digest of the lower-cased input.
// It is used for ids that must stay stable across re-extraction.
func Hashify(s string) string {
	sum := md5.Sum([]byte(strings.ToLower(s)))
	return hex.EncodeToString(sum[:])
}
