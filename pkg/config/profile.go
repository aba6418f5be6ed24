package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/mirroros/gateway/pkg/tiers"
)

// limitsSchema validates a limits profile before any of it is applied, so a
// half-broken profile never leaves the tier table partially overridden.
const limitsSchema = `{
	"type": "object",
	"additionalProperties": false,
	"properties": {
		"tiers": {
			"type": "object",
			"additionalProperties": false,
			"properties": {
				"free":       {"$ref": "#/$defs/limits"},
				"pro":        {"$ref": "#/$defs/limits"},
				"enterprise": {"$ref": "#/$defs/limits"}
			}
		},
		"forgive_upstream_client_errors": {"type": "boolean"}
	},
	"$defs": {
		"limits": {
			"type": "object",
			"additionalProperties": false,
			"required": ["predictions_per_day", "requests_per_minute", "requests_per_hour"],
			"properties": {
				"predictions_per_day": {"type": "integer", "minimum": -1},
				"requests_per_minute": {"type": "integer", "minimum": -1},
				"requests_per_hour":   {"type": "integer", "minimum": -1}
			}
		}
	}
}`

// TierLimits is one tier's ceilings in a limits profile.
type TierLimits struct {
	PredictionsPerDay int64 `yaml:"predictions_per_day"`
	RequestsPerMinute int   `yaml:"requests_per_minute"`
	RequestsPerHour   int   `yaml:"requests_per_hour"`
}

// LimitsProfile is the parsed optional YAML profile overriding the built-in
// tier table.
type LimitsProfile struct {
	Tiers                       map[string]TierLimits `yaml:"tiers"`
	ForgiveUpstreamClientErrors *bool                 `yaml:"forgive_upstream_client_errors"`
}

// LoadLimitsProfile reads, validates and parses a limits profile file.
func LoadLimitsProfile(path string) (*LimitsProfile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read limits profile: %w", err)
	}

	// Decode once generically for schema validation, once typed for use.
	// The generic document goes through a JSON round trip so the validator
	// sees the value types it expects.
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("config: parse limits profile: %w", err)
	}
	jsonRaw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("config: normalize limits profile: %w", err)
	}
	var jsonDoc any
	if err := json.Unmarshal(jsonRaw, &jsonDoc); err != nil {
		return nil, fmt.Errorf("config: normalize limits profile: %w", err)
	}
	schema := jsonschema.MustCompileString("limits_profile.json", limitsSchema)
	if err := schema.Validate(jsonDoc); err != nil {
		return nil, fmt.Errorf("config: invalid limits profile: %w", err)
	}

	var profile LimitsProfile
	if err := yaml.Unmarshal(raw, &profile); err != nil {
		return nil, fmt.Errorf("config: parse limits profile: %w", err)
	}
	return &profile, nil
}

// Apply overrides the tier table with the profile's ceilings and folds the
// profile's toggles into cfg. Unknown tier names were already rejected by
// the schema.
func (p *LimitsProfile) Apply(cfg *Config) {
	for name, l := range p.Tiers {
		tiers.Override(tiers.TierID(name), tiers.Limits{
			PredictionsPerDay: l.PredictionsPerDay,
			RequestsPerMinute: l.RequestsPerMinute,
			RequestsPerHour:   l.RequestsPerHour,
		})
	}
	if p.ForgiveUpstreamClientErrors != nil {
		cfg.ForgiveUpstreamClientErrors = *p.ForgiveUpstreamClientErrors
	}
}
