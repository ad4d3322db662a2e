package rules

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/helmarr/helmarr/internal/store"
)

// seedFile is the YAML shape of a rule seed file.
type seedFile struct {
	Rules []seedRule `yaml:"rules"`
}

type seedRule struct {
	Name                  string         `yaml:"name"`
	Kind                  string         `yaml:"kind"`
	Criteria              map[string]any `yaml:"criteria"`
	TargetType            string         `yaml:"targetType"`
	TargetInstanceID      int64          `yaml:"targetInstanceId"`
	RootFolder            string         `yaml:"rootFolder"`
	QualityProfile        string         `yaml:"qualityProfile"`
	Order                 int64          `yaml:"order"`
	Tags                  []string       `yaml:"tags"`
	AlwaysRequireApproval bool           `yaml:"alwaysRequireApproval"`
	BypassUserQuotas      bool           `yaml:"bypassUserQuotas"`
}

// SeedFromFile loads routing rules from a YAML file into an empty database.
// It is a no-op when the file does not exist or rules already exist, so it
// is safe to run on every startup.
func (s *Service) SeedFromFile(ctx context.Context, path string) error {
	if path == "" {
		return nil
	}

	count, err := s.store.CountRules(ctx)
	if err != nil {
		return fmt.Errorf("counting routing rules: %w", err)
	}
	if count > 0 {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.Debug().Str("path", path).Msg("no rule seed file, skipping")
			return nil
		}
		return fmt.Errorf("reading rule seed file: %w", err)
	}

	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return fmt.Errorf("parsing rule seed file: %w", err)
	}

	for i, sr := range seed.Rules {
		criteria, err := json.Marshal(sr.Criteria)
		if err != nil {
			return fmt.Errorf("encoding criteria for seed rule %q: %w", sr.Name, err)
		}
		order := sr.Order
		if order == 0 {
			order = int64(i+1) * 10
		}
		_, err = s.store.CreateRule(ctx, store.RoutingRule{
			Name:                  sr.Name,
			Kind:                  store.RuleKind(sr.Kind),
			Criteria:              criteria,
			TargetType:            store.TargetType(sr.TargetType),
			TargetInstanceID:      sr.TargetInstanceID,
			RootFolder:            sr.RootFolder,
			QualityProfile:        sr.QualityProfile,
			SortOrder:             order,
			Enabled:               true,
			Tags:                  sr.Tags,
			AlwaysRequireApproval: sr.AlwaysRequireApproval,
			BypassUserQuotas:      sr.BypassUserQuotas,
		})
		if err != nil {
			return fmt.Errorf("inserting seed rule %q: %w", sr.Name, err)
		}
	}

	s.logger.Info().Int("rules", len(seed.Rules)).Str("path", path).Msg("seeded routing rules")
	return nil
}
