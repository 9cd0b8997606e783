// Package sites loads per-host mirroring rules: which elements to omit, where
// the main content lives, and whether pages need scripts to render.
package sites

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

var (
	// ErrMissingHost indicates a rule without a host.
	ErrMissingHost = errors.New("site rule missing host")
	// ErrInvalidRule indicates a rule that could not be decoded.
	ErrInvalidRule = errors.New("invalid site rule")
)

// Rule customizes mirroring for one host. Host matches exactly or as a
// parent domain ("example.org" matches "www.example.org").
type Rule struct {
	Host        string   `mapstructure:"host"`
	Omit        []string `mapstructure:"omit"`
	MainArea    string   `mapstructure:"main_area"`
	Readability bool     `mapstructure:"readability"`
	LoadScripts bool     `mapstructure:"load_scripts"`
	FollowLinks *bool    `mapstructure:"follow_links"`
}

// Rules is an ordered rule set. The first matching rule wins.
type Rules struct {
	rules []Rule
}

type sitesFile struct {
	Sites []map[string]any `yaml:"sites"`
}

// NewRules builds a rule set from already decoded rules.
func NewRules(rules ...Rule) *Rules {
	return &Rules{rules: rules}
}

// Load reads rules from a YAML file. A missing or empty path yields an empty set.
func Load(path string) (*Rules, error) {
	if path == "" {
		return NewRules(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return NewRules(), nil
		}
		return nil, fmt.Errorf("read sites file: %w", err)
	}

	return Parse(data)
}

// Parse decodes rules from YAML bytes.
func Parse(data []byte) (*Rules, error) {
	var file sitesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse sites YAML: %w", err)
	}

	rules := make([]Rule, 0, len(file.Sites))
	for i, raw := range file.Sites {
		rule, err := decodeRule(raw)
		if err != nil {
			return nil, fmt.Errorf("site %d: %w", i, err)
		}
		rules = append(rules, rule)
	}

	return NewRules(rules...), nil
}

func decodeRule(raw map[string]any) (Rule, error) {
	var rule Rule
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &rule,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		DecodeHook:       mapstructure.StringToSliceHookFunc(","),
	})
	if err != nil {
		return Rule{}, fmt.Errorf("create decoder: %w", err)
	}

	if decodeErr := decoder.Decode(raw); decodeErr != nil {
		return Rule{}, fmt.Errorf("%w: %w", ErrInvalidRule, decodeErr)
	}

	rule.Host = strings.ToLower(strings.TrimSpace(rule.Host))
	for i, sel := range rule.Omit {
		rule.Omit[i] = strings.TrimSpace(sel)
	}
	if rule.Host == "" {
		return Rule{}, ErrMissingHost
	}

	return rule, nil
}

// For returns the rule for host, if any.
func (r *Rules) For(host string) (Rule, bool) {
	if r == nil {
		return Rule{}, false
	}

	host = strings.ToLower(host)
	for _, rule := range r.rules {
		if host == rule.Host || strings.HasSuffix(host, "."+rule.Host) {
			return rule, true
		}
	}
	return Rule{}, false
}

// Len returns the number of rules.
func (r *Rules) Len() int {
	if r == nil {
		return 0
	}
	return len(r.rules)
}

// Hosts lists the rule hosts in order.
func (r *Rules) Hosts() []string {
	if r == nil {
		return nil
	}
	hosts := make([]string, len(r.rules))
	for i, rule := range r.rules {
		hosts[i] = rule.Host
	}
	return hosts
}
