package dna

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rbhughes/old-purrio-geographix/internal/domain"
	"gopkg.in/yaml.v3"
)

// ErrUnknownAsset is returned when no DNA is defined for a suite and asset.
var ErrUnknownAsset = errors.New("no dna for asset")

// document is the file layout: suites -> suite -> asset -> DNA.
type document struct {
	Suites map[string]map[string]domain.DNA `yaml:"suites"`
}

// FileSource serves DNA loaded once from a YAML file.
type FileSource struct {
	suites map[string]map[string]domain.DNA
}

// LoadFile reads and validates the YAML document at path.
func LoadFile(path string) (*FileSource, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dna file: %w", err)
	}
	return Parse(raw)
}

// Parse builds a FileSource from YAML. Suite and asset names are matched
// case-insensitively.
func Parse(raw []byte) (*FileSource, error) {
	var doc document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: dna file: %v", domain.ErrInvalidFormat, err)
	}

	suites := make(map[string]map[string]domain.DNA, len(doc.Suites))
	for suite, assets := range doc.Suites {
		normalized := make(map[string]domain.DNA, len(assets))
		for asset, d := range assets {
			if strings.TrimSpace(d.Select) == "" {
				return nil, fmt.Errorf("%w: %s/%s has no select", domain.ErrInvalidFormat, suite, asset)
			}
			if len(d.AssetIDKeys) == 0 {
				return nil, fmt.Errorf("%w: %s/%s has no asset_id_keys", domain.ErrInvalidFormat, suite, asset)
			}
			normalized[strings.ToLower(asset)] = d
		}
		suites[strings.ToLower(suite)] = normalized
	}
	return &FileSource{suites: suites}, nil
}

// FetchDNA returns the DNA for asset in suite.
func (s *FileSource) FetchDNA(ctx context.Context, suite, asset string) (*domain.DNA, error) {
	d, ok := s.suites[strings.ToLower(suite)][strings.ToLower(asset)]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrUnknownAsset, suite, asset)
	}
	return &d, nil
}
