package sarcasm

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// Config holds every weight and threshold of the scorer. It is built once at startup and
// never mutated afterwards. StrictThreshold is expected to exceed PossibleThreshold; the
// scorer does not check this.
type Config struct {
	StrictThreshold   float64
	PossibleThreshold float64

	IronyWeight     float64
	IronyFloor      float64
	IronyFloorBonus float64

	IntentWeight float64

	ContradictionWeight     float64
	ContradictionPosMass    float64
	ContradictionPosMassLow float64

	StyleWeight float64
	ComboWeight float64

	BorderlineMargin float64
	BorderlineBump   float64

	// Calibration enables logistic blending when non-nil and valid.
	Calibration *Calibration
	BlendWeight float64
}

// DefaultConfig mirrors the tuned production values.
func DefaultConfig() Config {
	return Config{
		StrictThreshold:         0.55,
		PossibleThreshold:       0.25,
		IronyWeight:             0.5,
		IronyFloor:              0.5,
		IronyFloorBonus:         0.05,
		IntentWeight:            0.6,
		ContradictionWeight:     0.5,
		ContradictionPosMass:    0.5,
		ContradictionPosMassLow: 0.3,
		StyleWeight:             0.1,
		ComboWeight:             0.5,
		BorderlineMargin:        0.08,
		BorderlineBump:          0.06,
		BlendWeight:             0.5,
	}
}

// LabelFor maps a score onto the discrete label.
func (c Config) LabelFor(score float64) Label {
	switch {
	case score >= c.StrictThreshold:
		return Sarcastic
	case score >= c.PossibleThreshold:
		return PossiblySarcastic
	default:
		return NotSarcastic
	}
}

// Calibration holds logistic-regression coefficients over the additive features.
type Calibration struct {
	Intercept     float64 `json:"intercept"`
	Irony         float64 `json:"irony"`
	Intent        float64 `json:"intent"`
	Contradiction float64 `json:"contradiction"`
	Style         float64 `json:"style"`
	Combo         float64 `json:"combo"`
	PositiveMass  float64 `json:"positive_mass"`
	NegativeHits  float64 `json:"negative_hits"`
}

// ParseCalibration decodes coefficients from JSON. Empty input means "not configured".
func ParseCalibration(raw string) (*Calibration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var c Calibration
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("decode sarcasm calibration: %w", err)
	}
	if !c.Valid() {
		return nil, fmt.Errorf("sarcasm calibration contains non-finite coefficients")
	}
	return &c, nil
}

// Valid reports whether every coefficient is finite.
func (c *Calibration) Valid() bool {
	if c == nil {
		return false
	}
	for _, v := range []float64{c.Intercept, c.Irony, c.Intent, c.Contradiction, c.Style, c.Combo, c.PositiveMass, c.NegativeHits} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
