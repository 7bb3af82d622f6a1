package dna

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rbhughes/old-purrio-geographix/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
suites:
  geographix:
    well:
      select: SELECT w.uwi AS w_uwi, w.well_name AS w_well_name FROM well w __RECENT__
      order: ORDER BY w.uwi
      where_recent_slot: __RECENT__
      asset_id_keys: [w_uwi]
      well_id_keys: [w_uwi]
      prefixes:
        w_: well
      xforms:
        w_well_name:
          ts_type: string
        w_image:
          ts_type: object
          xform: blob_to_hex
`

func TestParse(t *testing.T) {
	src, err := Parse([]byte(sample))
	require.NoError(t, err)

	d, err := src.FetchDNA(context.Background(), "GeoGraphix", "WELL")
	require.NoError(t, err)

	assert.Equal(t, "ORDER BY w.uwi", d.Order)
	assert.Equal(t, "__RECENT__", d.WhereRecentSlot)
	assert.Equal(t, []string{"w_uwi"}, d.AssetIDKeys)
	assert.Equal(t, map[string]string{"w_": "well"}, d.Prefixes)
	assert.Equal(t, domain.Xform{TSType: "object", Xform: "blob_to_hex"}, d.Xforms["w_image"])
}

func TestFetchDNAUnknown(t *testing.T) {
	src, err := Parse([]byte(sample))
	require.NoError(t, err)

	_, err = src.FetchDNA(context.Background(), "geographix", "raster_log")
	assert.ErrorIs(t, err, ErrUnknownAsset)
}

func TestParseRejectsIncompleteDNA(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{name: "bad yaml", doc: "suites: ["},
		{name: "no select", doc: "suites:\n  g:\n    well:\n      asset_id_keys: [a]\n"},
		{name: "no id keys", doc: "suites:\n  g:\n    well:\n      select: SELECT 1\n"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.doc))
			assert.ErrorIs(t, err, domain.ErrInvalidFormat)
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dna.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	src, err := LoadFile(path)
	require.NoError(t, err)
	_, err = src.FetchDNA(context.Background(), "geographix", "well")
	assert.NoError(t, err)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
