// Package autoheal classifies failed tool calls and applies deterministic
// remediation with bounded retry.
//
// Classification is a data-driven pattern set: keyword and regex matching
// against the raw error text. Deliberately simple and auditable, not a
// learned classifier. Learned fixes from prior successful remediations are
// preferred over the generic classification fix when present.
package autoheal

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/harrison/skillrunner/internal/models"
)

// Pattern is one classification rule. Keywords are matched as substrings
// after lowercasing; Regex, when set, must match the raw text.
type Pattern struct {
	Classification models.Classification `yaml:"classification"`
	Keywords       []string              `yaml:"keywords,omitempty"`
	Regex          string                `yaml:"regex,omitempty"`

	compiled *regexp.Regexp
}

// Classifier buckets raw error text into auth, network or unknown.
type Classifier struct {
	patterns []Pattern
}

// builtinPatterns is the default rule set. Order matters: first match wins.
func builtinPatterns() []Pattern {
	return []Pattern{
		{
			Classification: models.ClassAuth,
			Keywords: []string{
				"unauthorized", "401", "403", "forbidden", "authentication",
				"auth failed", "token expired", "invalid credentials",
				"permission denied", "access denied", "login required",
			},
		},
		{
			Classification: models.ClassNetwork,
			Keywords: []string{
				"connection refused", "connection reset", "timeout",
				"timed out", "no such host", "network unreachable",
				"dns", "tls handshake", "broken pipe", "502", "503", "504",
				"service unavailable", "eof",
			},
		},
	}
}

// NewClassifier creates a Classifier with the built-in pattern set.
func NewClassifier() *Classifier {
	c := &Classifier{patterns: builtinPatterns()}
	c.compile()
	return c
}

// NewClassifierFromFile creates a Classifier with extra patterns from a
// YAML file layered before the built-in set, so operators can override
// classifications for their own tools.
func NewClassifierFromFile(path string) (*Classifier, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pattern file: %w", err)
	}
	var extra []Pattern
	if err := yaml.Unmarshal(data, &extra); err != nil {
		return nil, fmt.Errorf("parse pattern file %s: %w", path, err)
	}
	for i := range extra {
		switch extra[i].Classification {
		case models.ClassAuth, models.ClassNetwork, models.ClassUnknown:
		default:
			return nil, fmt.Errorf("pattern %d: invalid classification %q", i, extra[i].Classification)
		}
	}
	c := &Classifier{patterns: append(extra, builtinPatterns()...)}
	if err := c.compile(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Classifier) compile() error {
	for i := range c.patterns {
		p := &c.patterns[i]
		if p.Regex == "" {
			continue
		}
		re, err := regexp.Compile(p.Regex)
		if err != nil {
			return fmt.Errorf("compile pattern regex %q: %w", p.Regex, err)
		}
		p.compiled = re
	}
	return nil
}

// Classify buckets error text. Unmatched text is ClassUnknown.
func (c *Classifier) Classify(errorText string) models.Classification {
	lowered := strings.ToLower(errorText)
	for i := range c.patterns {
		p := &c.patterns[i]
		if p.compiled != nil && p.compiled.MatchString(errorText) {
			return p.Classification
		}
		for _, kw := range p.Keywords {
			if strings.Contains(lowered, kw) {
				return p.Classification
			}
		}
	}
	return models.ClassUnknown
}
