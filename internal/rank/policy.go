// Package rank scores memory items and packs them into a token budget.
//
// Everything here is a pure function of stored metadata and the request,
// so the same inputs always produce the same selection.
package rank

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rcliao/mnemosyne/internal/model"
)

// Policy holds the tunable ranking constants.
type Policy struct {
	KindWeights map[model.Kind]float64
	// HalfLife is the age at which recency decay reaches 0.5.
	HalfLife time.Duration

	WorkspaceMatch    float64
	WorkspaceUnset    float64
	WorkspaceMismatch float64

	// HybridFullKinds lists kinds that hybrid mode shows in full when the
	// full content is at most HybridFullMaxChars.
	HybridFullKinds    map[model.Kind]bool
	HybridFullMaxChars int

	CharsPerToken int
}

// DefaultPolicy returns the stock ranking constants.
func DefaultPolicy() Policy {
	return Policy{
		KindWeights: map[model.Kind]float64{
			model.KindDecision: 1.4,
			model.KindPattern:  1.3,
			model.KindCommand:  1.2,
			model.KindAnswer:   1.1,
			model.KindNote:     0.7,
		},
		HalfLife:          14 * 24 * time.Hour,
		WorkspaceMatch:    1.2,
		WorkspaceUnset:    1.0,
		WorkspaceMismatch: 0.8,
		HybridFullKinds: map[model.Kind]bool{
			model.KindCommand: true,
			model.KindPattern: true,
		},
		HybridFullMaxChars: 300,
		CharsPerToken:      4,
	}
}

// Validate checks that every factor keeps scores strictly positive.
func (p Policy) Validate() error {
	for k := range model.ValidKinds {
		if w, ok := p.KindWeights[k]; !ok || w <= 0 {
			return fmt.Errorf("kind weight for %s must be positive", k)
		}
	}
	if p.HalfLife <= 0 {
		return fmt.Errorf("half-life must be positive")
	}
	if p.WorkspaceMatch <= 0 || p.WorkspaceUnset <= 0 || p.WorkspaceMismatch <= 0 {
		return fmt.Errorf("workspace multipliers must be positive")
	}
	if !(p.WorkspaceMatch >= p.WorkspaceUnset && p.WorkspaceUnset >= p.WorkspaceMismatch) {
		return fmt.Errorf("workspace multipliers must satisfy match >= unset >= mismatch")
	}
	if p.CharsPerToken <= 0 {
		return fmt.Errorf("chars per token must be positive")
	}
	return nil
}

// ParseKindWeights parses "decision=1.4,note=0.7" into overrides on top of
// the default weights.
func ParseKindWeights(s string) (map[model.Kind]float64, error) {
	weights := DefaultPolicy().KindWeights
	if strings.TrimSpace(s) == "" {
		return weights, nil
	}
	for _, pair := range strings.Split(s, ",") {
		name, val, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			return nil, fmt.Errorf("kind weight %q: expected kind=weight", pair)
		}
		k, err := model.ParseKind(name)
		if err != nil {
			return nil, err
		}
		w, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil || w <= 0 || math.IsInf(w, 0) || math.IsNaN(w) {
			return nil, fmt.Errorf("kind weight %q: must be a positive number", pair)
		}
		weights[k] = w
	}
	return weights, nil
}

// FormatKindWeights renders kind weights in ParseKindWeights form, ordered by kind.
func FormatKindWeights(w map[model.Kind]float64) string {
	kinds := make([]string, 0, len(w))
	for k := range w {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)
	parts := make([]string, len(kinds))
	for i, k := range kinds {
		parts[i] = k + "=" + strconv.FormatFloat(w[model.Kind(k)], 'g', -1, 64)
	}
	return strings.Join(parts, ",")
}
