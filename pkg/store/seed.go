package store

import (
	"context"
	"fmt"
	"os"

	"docvault/logging"
	"docvault/pkg/models"

	"sigs.k8s.io/yaml"
)

// SeedDocument is one entry of a YAML seed file. Content is stored verbatim;
// Level uses the same names as the CLI (none, confidentiality, integrity, all).
type SeedDocument struct {
	Owner    string `json:"owner"`
	Filename string `json:"filename"`
	Level    string `json:"level"`
	Content  string `json:"content"`
}

// SeedFile is the top-level YAML seed structure.
type SeedFile struct {
	Documents []SeedDocument `json:"documents"`
}

// LoadSeedFile parses a YAML seed file.
func LoadSeedFile(path string) (*SeedFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}

	var seed SeedFile
	if err := yaml.Unmarshal(raw, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}
	return &seed, nil
}

// ApplySeed checks in every seed document. Used by demo deployments to start
// the store with sample data; each document is checked in as its owner.
func (s *DocumentStore) ApplySeed(ctx context.Context, seed *SeedFile) error {
	for _, entry := range seed.Documents {
		level, err := models.ParseSecurityLevel(entry.Level)
		if err != nil {
			return fmt.Errorf("seed document %s/%s: %w", entry.Owner, entry.Filename, err)
		}
		if err := s.CheckIn(ctx, entry.Owner, entry.Filename, level, []byte(entry.Content)); err != nil {
			return fmt.Errorf("seed document %s/%s: %w", entry.Owner, entry.Filename, err)
		}
	}
	logging.Info("Seeded %d sample documents", len(seed.Documents))
	return nil
}
