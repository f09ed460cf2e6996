// Package matcher scores catalog candidates against BOM lines and picks the
// best one, alone or in batches backed by a search function.
package matcher

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"partsmatch/internal"
	"partsmatch/internal/footprint"
	"partsmatch/internal/value"
)

const (
	HighConfidenceThreshold   = 0.80
	MediumConfidenceThreshold = 0.50

	DefaultValueTolerancePct = 5.0

	// Incompatible numeric values earn PartialValueCredit times their
	// min/max ratio when that ratio exceeds PartialValueFloor.
	PartialValueCredit = 0.5
	PartialValueFloor  = 0.5

	WeakFactorThreshold = 0.5
)

type Classification string

const (
	ClassHigh    Classification = "high"
	ClassMedium  Classification = "medium"
	ClassLow     Classification = "low"
	ClassNoMatch Classification = "no_match"
)

type MatchResult struct {
	Component  internal.Record    `json:"bom_component"`
	Part       internal.Record    `json:"matched_part"`
	Confidence float64            `json:"confidence"`
	Details    map[Factor]float64 `json:"match_details"`
	Warnings   []string           `json:"warnings"`
}

func (r MatchResult) Classification() Classification {
	switch {
	case r.Part == nil:
		return ClassNoMatch
	case r.Confidence >= HighConfidenceThreshold:
		return ClassHigh
	case r.Confidence >= MediumConfidenceThreshold:
		return ClassMedium
	default:
		return ClassLow
	}
}

func (r MatchResult) IsHighConfidence() bool   { return r.Classification() == ClassHigh }
func (r MatchResult) IsMediumConfidence() bool { return r.Classification() == ClassMedium }
func (r MatchResult) IsLowConfidence() bool    { return r.Classification() == ClassLow }
func (r MatchResult) IsNoMatch() bool          { return r.Classification() == ClassNoMatch }

// Score returns the sub-score for f and whether it was computed.
func (r MatchResult) Score(f Factor) (float64, bool) {
	s, ok := r.Details[f]
	return s, ok
}

type Engine struct {
	weights           Weights
	valueTolerancePct float64
	logger            *zap.Logger
}

type Option func(*Engine)

func WithValueTolerance(pct float64) Option {
	return func(e *Engine) {
		if pct >= 0 {
			e.valueTolerancePct = pct
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEngine uses DefaultWeights when weights is nil and rejects weights that
// fail Validate.
func NewEngine(weights Weights, opts ...Option) (*Engine, error) {
	if weights == nil {
		weights = DefaultWeights()
	}
	if err := weights.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		weights:           weights.clone(),
		valueTolerancePct: DefaultValueTolerancePct,
		logger:            zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func defaultEngine(weights Weights) *Engine {
	e, err := NewEngine(weights)
	if err != nil {
		e, _ = NewEngine(nil)
	}
	return e
}

func (e *Engine) Weights() Weights {
	return e.weights.clone()
}

// Match scores every candidate and keeps the first one with the strictly
// highest non-zero score. Candidates are never reordered.
func (e *Engine) Match(component internal.Record, candidates []internal.Record) MatchResult {
	result := MatchResult{
		Component: component,
		Details:   map[Factor]float64{},
		Warnings:  []string{},
	}
	if len(candidates) == 0 {
		result.Warnings = append(result.Warnings, "No candidate parts provided")
		return result
	}

	bom := extractFields(component)
	best := 0.0
	for _, candidate := range candidates {
		score, details := e.score(bom, candidate)
		if score > best {
			best = score
			result.Part = candidate
			result.Confidence = score
			result.Details = details
		}
	}

	if result.Part == nil {
		result.Warnings = append(result.Warnings, "No candidate shares a comparable field with the BOM line")
		return result
	}

	if mpn, ok := bom[FactorMPN]; ok && result.Details[FactorMPN] < WeakFactorThreshold {
		result.Warnings = append(result.Warnings, fmt.Sprintf("MPN '%s' did not match exactly", mpn))
	}
	if fp, ok := bom[FactorFootprint]; ok && result.Details[FactorFootprint] < WeakFactorThreshold {
		result.Warnings = append(result.Warnings, fmt.Sprintf("Footprint '%s' may not be compatible", fp))
	}
	if v, ok := bom[FactorValue]; ok && result.Details[FactorValue] < WeakFactorThreshold {
		result.Warnings = append(result.Warnings, fmt.Sprintf("Value '%s' did not match", v))
	}
	return result
}

func (e *Engine) score(bom fields, candidate internal.Record) (float64, map[Factor]float64) {
	cand := extractFields(candidate)
	details := map[Factor]float64{}
	total, weight := 0.0, 0.0
	for _, f := range Factors {
		b, ok := bom[f]
		if !ok {
			continue
		}
		c, ok := cand[f]
		if !ok {
			continue
		}
		s := e.factorScore(f, b, c)
		details[f] = s
		total += s * e.weights[f]
		weight += e.weights[f]
	}
	if weight <= 0 {
		return 0, details
	}
	return clamp01(total / weight), details
}

func (e *Engine) factorScore(f Factor, bom, candidate string) float64 {
	switch f {
	case FactorValue:
		return e.valueScore(bom, candidate)
	case FactorFootprint:
		if footprint.Compatible(bom, candidate) {
			return 1
		}
		return 0
	default:
		return Similarity(bom, candidate)
	}
}

func (e *Engine) valueScore(bom, candidate string) float64 {
	a, b := value.Parse(bom), value.Parse(candidate)
	if a.IsCompatible(b, e.valueTolerancePct) {
		return 1
	}
	if a.Numeric == nil || b.Numeric == nil {
		return 0
	}
	x, y := *a.Numeric, *b.Numeric
	if x <= 0 || y <= 0 {
		return 0
	}
	ratio := math.Min(x, y) / math.Max(x, y)
	if ratio > PartialValueFloor {
		return ratio * PartialValueCredit
	}
	return 0
}

// MatchComponent matches with weights, or with DefaultWeights when weights
// is nil or invalid.
func MatchComponent(component internal.Record, candidates []internal.Record, weights Weights) MatchResult {
	return defaultEngine(weights).Match(component, candidates)
}
