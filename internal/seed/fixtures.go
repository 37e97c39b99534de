package seed

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"

	"streamcode/internal/models"
	"streamcode/internal/service"

	"gopkg.in/yaml.v3"
)

//go:embed fixtures/streams.yaml
var builtInFixtures []byte

type fixtureFile struct {
	Streams []map[string]any `yaml:"streams"`
}

// ParseFixtures decodes a YAML fixture document into descriptors. Entries use
// the same field names as the JSON API.
func ParseFixtures(raw []byte) ([]models.StreamDescriptor, error) {
	var file fixtureFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse fixtures: %w", err)
	}

	out := make([]models.StreamDescriptor, 0, len(file.Streams))
	for i, entry := range file.Streams {
		b, err := json.Marshal(entry)
		if err != nil {
			return nil, fmt.Errorf("fixture %d: %w", i, err)
		}
		var d models.StreamDescriptor
		if err := json.Unmarshal(b, &d); err != nil {
			return nil, fmt.Errorf("fixture %d: %w", i, err)
		}
		out = append(out, d)
	}
	return out, nil
}

// BuiltInFixtures returns the embedded showcase descriptors.
func BuiltInFixtures() ([]models.StreamDescriptor, error) {
	return ParseFixtures(builtInFixtures)
}

// IssueFixtures issues every descriptor through the registry and returns the codes in order.
func IssueFixtures(ctx context.Context, registry *service.StreamCodeService, descriptors []models.StreamDescriptor) ([]string, error) {
	codes := make([]string, 0, len(descriptors))
	for i, d := range descriptors {
		res, err := registry.Issue(ctx, d)
		if err != nil {
			return nil, fmt.Errorf("issue fixture %d: %w", i, err)
		}
		codes = append(codes, res.Code)
	}
	return codes, nil
}
