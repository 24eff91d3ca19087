// Package policy holds the ordered table of recognition models and the
// detector/metric settings shared by every verification call.
package policy

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

//go:embed policy.yaml
var defaultPolicyYAML []byte

// maxCosineDistance is the upper bound of the cosine distance range.
const maxCosineDistance = 2.0

// knownModels maps normalized model names to the identifiers the backends expect.
var knownModels = map[string]string{
	"facenet":      "Facenet",
	"facenet512":   "Facenet512",
	"arcface":      "ArcFace",
	"vggface":      "VGG-Face",
	"openface":     "OpenFace",
	"deepface":     "DeepFace",
	"deepid":       "DeepID",
	"dlib":         "Dlib",
	"sface":        "SFace",
	"ghostfacenet": "GhostFaceNet",
}

// Model is a single recognition model and its maximum distance for a match.
type Model struct {
	Name      string  `yaml:"name" json:"name"`
	Threshold float64 `yaml:"threshold" json:"threshold"`
}

// Policy is the ordered model table plus the settings shared by all models.
type Policy struct {
	Detector       string  `yaml:"detector" json:"detector"`
	DistanceMetric string  `yaml:"distance_metric" json:"distance_metric"`
	Align          bool    `yaml:"align" json:"align"`
	Models         []Model `yaml:"models" json:"models"`
}

// override mirrors Policy with optional fields so a file can change only what it names.
type override struct {
	Detector       *string `yaml:"detector"`
	DistanceMetric *string `yaml:"distance_metric"`
	Align          *bool   `yaml:"align"`
	Models         []Model `yaml:"models"`
}

// Default returns the embedded policy. It panics if the embedded file is invalid,
// which can only happen through a programming error.
func Default() *Policy {
	var p Policy
	if err := yaml.Unmarshal(defaultPolicyYAML, &p); err != nil {
		panic("failed to unmarshal embedded policy.yaml: " + err.Error())
	}
	p.canonicalize()
	if err := p.Validate(); err != nil {
		panic("embedded policy.yaml is invalid: " + err.Error())
	}
	return &p
}

// Load returns the default policy with the overrides from path applied.
// An empty path returns the default policy.
func Load(path string) (*Policy, error) {
	p := Default()
	if path == "" {
		return p, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	if err := p.apply(data); err != nil {
		return nil, fmt.Errorf("invalid policy file %s: %w", path, err)
	}
	return p, nil
}

// apply merges a YAML override document into the policy.
// A models list replaces the whole table; a model listed with threshold 0
// keeps the threshold it had in the current table.
func (p *Policy) apply(data []byte) error {
	var o override
	if err := yaml.Unmarshal(data, &o); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	if o.Detector != nil {
		p.Detector = strings.TrimSpace(*o.Detector)
	}
	if o.DistanceMetric != nil {
		p.DistanceMetric = strings.TrimSpace(*o.DistanceMetric)
	}
	if o.Align != nil {
		p.Align = *o.Align
	}
	if len(o.Models) > 0 {
		models := make([]Model, 0, len(o.Models))
		for _, m := range o.Models {
			m.Name = CanonicalModelName(m.Name)
			if m.Threshold == 0 {
				if prev, ok := p.Model(m.Name); ok {
					m.Threshold = prev.Threshold
				}
			}
			models = append(models, m)
		}
		p.Models = models
	}

	p.canonicalize()
	return p.Validate()
}

func (p *Policy) canonicalize() {
	for i := range p.Models {
		p.Models[i].Name = CanonicalModelName(p.Models[i].Name)
	}
}

// Validate checks that the table can drive a verification run.
func (p *Policy) Validate() error {
	if p.Detector == "" {
		return errors.New("detector must not be empty")
	}
	if p.DistanceMetric == "" {
		return errors.New("distance_metric must not be empty")
	}
	if len(p.Models) == 0 {
		return errors.New("at least one model is required")
	}

	seen := make(map[string]bool, len(p.Models))
	for _, m := range p.Models {
		if m.Name == "" {
			return errors.New("model name must not be empty")
		}
		if seen[m.Name] {
			return fmt.Errorf("model %s is listed more than once", m.Name)
		}
		seen[m.Name] = true

		if m.Threshold <= 0 {
			return fmt.Errorf("model %s: threshold must be positive", m.Name)
		}
		if p.DistanceMetric == "cosine" && m.Threshold > maxCosineDistance {
			return fmt.Errorf("model %s: cosine threshold %.2f exceeds %.1f", m.Name, m.Threshold, maxCosineDistance)
		}
	}
	return nil
}

// Model returns the table entry for name, matched after normalization.
func (p *Policy) Model(name string) (Model, bool) {
	canonical := CanonicalModelName(name)
	for _, m := range p.Models {
		if m.Name == canonical {
			return m, true
		}
	}
	return Model{}, false
}

// WithDetector returns a copy of the policy using detector, or the policy itself if detector is empty.
func (p *Policy) WithDetector(detector string) *Policy {
	detector = strings.TrimSpace(detector)
	if detector == "" {
		return p
	}
	cp := *p
	cp.Models = append([]Model(nil), p.Models...)
	cp.Detector = detector
	return &cp
}

// removeDiacritics removes diacritical marks from a string (e.g., "Fáce" -> "Face").
func removeDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

// normalizeModelName lowercases the name and drops diacritics, spaces, dashes and underscores.
func normalizeModelName(name string) string {
	name = strings.ToLower(removeDiacritics(name))
	return strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' || r == '_' {
			return -1
		}
		return r
	}, name)
}

// CanonicalModelName maps spellings like "vgg face" or "ARCFACE" to the backend identifier.
// Unknown names are returned trimmed but otherwise unchanged.
func CanonicalModelName(name string) string {
	if canonical, ok := knownModels[normalizeModelName(name)]; ok {
		return canonical
	}
	return strings.TrimSpace(name)
}
