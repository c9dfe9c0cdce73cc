package fusion

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/idlab-discover/anomalyfusion-cli/internal/geo"
	"github.com/idlab-discover/anomalyfusion-cli/internal/grid"
	"github.com/idlab-discover/anomalyfusion-cli/internal/scorer"
	"github.com/idlab-discover/anomalyfusion-cli/internal/sensor"
)

func near(a, b, tol float64) bool { return math.Abs(a-b) <= tol }

func TestCombine_RangeProperty(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for k := 0; k < 2000; k++ {
		scores := map[sensor.Modality]float64{}
		weights := Weights{}
		for _, m := range sensor.All() {
			weights[m] = rng.Float64()
			if rng.Float64() < 0.8 {
				scores[m] = rng.Float64()
			}
		}
		if k%10 == 0 {
			scores[sensor.SAR] = 1
			scores[sensor.Thermal] = 0
		}
		got := Combine(scores, weights)
		if math.IsNaN(got) || got < 0 || got > 1 {
			t.Fatalf("Combine(%v, %v) = %v, outside [0,1]", scores, weights, got)
		}
	}
}

func permutations(in []sensor.Modality) [][]sensor.Modality {
	if len(in) <= 1 {
		return [][]sensor.Modality{append([]sensor.Modality(nil), in...)}
	}
	var out [][]sensor.Modality
	for i := range in {
		rest := make([]sensor.Modality, 0, len(in)-1)
		rest = append(rest, in[:i]...)
		rest = append(rest, in[i+1:]...)
		for _, p := range permutations(rest) {
			out = append(out, append([]sensor.Modality{in[i]}, p...))
		}
	}
	return out
}

func TestCombine_OrderInvariant(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	perms := permutations(sensor.All())
	if len(perms) != 120 {
		t.Fatalf("expected 120 permutations, got %d", len(perms))
	}
	for k := 0; k < 50; k++ {
		scores := map[sensor.Modality]float64{}
		weights := Weights{}
		for _, m := range sensor.All() {
			scores[m] = 0.01 + 0.98*rng.Float64()
			weights[m] = rng.Float64()
		}
		want := Combine(scores, weights)
		for _, order := range perms {
			if got := combineOrdered(order, scores, weights); !near(got, want, 1e-9) {
				t.Fatalf("order %v: %v, want %v", order, got, want)
			}
		}
	}
}

func TestCombine_SelfConsistent(t *testing.T) {
	for _, s := range []float64{0, 0.1, 0.33, 0.5, 0.9, 1} {
		scores := map[sensor.Modality]float64{}
		for _, m := range sensor.All() {
			scores[m] = s
		}
		for _, w := range []float64{0.2, 0.5, 1} {
			if got := Combine(scores, EqualWeights(w)); !near(got, s, 1e-9) {
				t.Fatalf("Combine(all %v, weight %v) = %v, want %v", s, w, got, s)
			}
		}
	}
}

func TestCombine_MissingIsSkippedNotZero(t *testing.T) {
	w := DefaultWeights()
	only := map[sensor.Modality]float64{sensor.Gravity: 0.8}
	if got := Combine(only, w); !near(got, 0.8, 1e-12) {
		t.Fatalf("single modality = %v, want 0.8", got)
	}

	withZero := map[sensor.Modality]float64{sensor.Gravity: 0.8, sensor.SAR: 0}
	if Combine(withZero, w) >= Combine(only, w) {
		t.Fatalf("a zero score must pull the result down, a missing one must not")
	}
}

func TestCombine_NoContributors(t *testing.T) {
	if got := Combine(nil, DefaultWeights()); got != 0 {
		t.Fatalf("Combine(nil) = %v, want 0", got)
	}
	scores := map[sensor.Modality]float64{sensor.SAR: 0.9}
	if got := Combine(scores, Weights{sensor.SAR: 0, sensor.Thermal: 1}); got != 0 {
		t.Fatalf("zero-weight only = %v, want 0", got)
	}
	conflict := map[sensor.Modality]float64{sensor.SAR: 1, sensor.Thermal: 0}
	if got := Combine(conflict, EqualWeights(0.5)); got != 0 {
		t.Fatalf("certain conflict = %v, want 0", got)
	}
}

func TestCombine_StrongSignalNotDiluted(t *testing.T) {
	scores := map[sensor.Modality]float64{
		sensor.SAR: 0.98, sensor.Thermal: 0.5, sensor.Seismic: 0.5, sensor.Gravity: 0.5, sensor.Magnetic: 0.5,
	}
	w := EqualWeights(0.2)
	mean := (0.98 + 4*0.5) / 5
	if got := Combine(scores, w); got <= mean {
		t.Fatalf("Combine = %v, want above the arithmetic mean %v", got, mean)
	}
}

func TestAgreement_BonusMonotone(t *testing.T) {
	a := DefaultAgreement()
	want := []float64{0, 0, 0, 0.1, 0.2, 0.3}
	prev := -1.0
	for n := 0; n <= 5; n++ {
		got := a.BonusFor(n)
		if got != want[n] {
			t.Fatalf("BonusFor(%d) = %v, want %v", n, got, want[n])
		}
		if got < prev {
			t.Fatalf("bonus decreased at %d", n)
		}
		prev = got
	}
	if a.BonusFor(7) != 0.3 {
		t.Fatalf("counts above the top tier keep the top bonus")
	}
}

func TestAgreement_CountsAvailableOnly(t *testing.T) {
	a := DefaultAgreement()
	scores := map[sensor.Modality]float64{sensor.SAR: 0.5, sensor.Thermal: 0.49, sensor.Seismic: 0.9}
	if got := CountAgreeing(scores, a.Threshold); got != 2 {
		t.Fatalf("CountAgreeing = %d, want 2", got)
	}
	if a.Bonus(scores) != 0 {
		t.Fatalf("two agreeing modalities earn no bonus")
	}
}

func TestAgreement_CustomTiers(t *testing.T) {
	a := Agreement{Threshold: 0.6, Tiers: []grid.AgreementTier{{Count: 2, Bonus: 0.05}, {Count: 3, Bonus: 0.5}}}
	if err := a.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if a.BonusFor(3) != 0.5 || a.BonusFor(2) != 0.05 || a.BonusFor(1) != 0 {
		t.Fatalf("unexpected custom tier lookup")
	}

	bad := []Agreement{
		{Threshold: 1.5},
		{Threshold: 0.5, Tiers: []grid.AgreementTier{{Count: 0, Bonus: 0.1}}},
		{Threshold: 0.5, Tiers: []grid.AgreementTier{{Count: 3, Bonus: -0.1}}},
		{Threshold: 0.5, Tiers: []grid.AgreementTier{{Count: 3, Bonus: 0.1}, {Count: 3, Bonus: 0.2}}},
		{Threshold: 0.5, Tiers: []grid.AgreementTier{{Count: 5, Bonus: 0.1}, {Count: 3, Bonus: 0.2}}},
	}
	for i, b := range bad {
		if err := b.Validate(); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}
}

func TestApplyBonus_Clamped(t *testing.T) {
	if got := ApplyBonus(0.9, 0.3); got != 1 {
		t.Fatalf("ApplyBonus(0.9, 0.3) = %v, want 1", got)
	}
	if got := ApplyBonus(0.5, 0.2); !near(got, 0.6, 1e-12) {
		t.Fatalf("ApplyBonus(0.5, 0.2) = %v, want 0.6", got)
	}
}

func TestWeights_Validate(t *testing.T) {
	if err := DefaultWeights().Validate(); err != nil {
		t.Fatalf("default weights invalid: %v", err)
	}
	bad := []Weights{
		{sensor.SAR: 1.5},
		{sensor.SAR: -0.1},
		{sensor.SAR: 0, sensor.Thermal: 0},
		{sensor.Modality("sonar"): 0.5},
	}
	for i, w := range bad {
		if err := w.Validate(); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
}

// passThrough treats the raw value as the score, so tests can place exact
// scores on the grid.
type passThrough struct{}

func (passThrough) Score(_ sensor.Modality, raw, _ float64) (float64, bool) {
	if math.IsNaN(raw) {
		return 0, false
	}
	return raw, true
}

func (passThrough) Baseline(sensor.Modality) float64 { return 0 }

func testEngine(t *testing.T, s scorer.Scorer, cfg Config) *Engine {
	t.Helper()
	e, err := NewEngine(s, cfg)
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	e.now = func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }
	e.newID = func() string { return "test-run" }
	return e
}

func request(rows, cols int) sensor.Request {
	return sensor.Request{Center: geo.Coordinate{Lat: 29.9792, Lon: 31.1342}, RadiusMeters: 500, Rows: rows, Cols: cols}
}

func constLayer(m sensor.Modality, rows, cols int, v float64) *sensor.Layer {
	vals := sensor.NewLayerValues(rows, cols)
	for i := range vals {
		for j := range vals[i] {
			vals[i][j] = v
		}
	}
	return &sensor.Layer{Modality: m, Values: vals, Source: "test"}
}

func TestEngine_AllModalitiesAgree(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Weights = EqualWeights(0.2)
	e := testEngine(t, passThrough{}, cfg)

	b := sensor.NewBatch(1, 1)
	for _, m := range sensor.All() {
		b.Set(constLayer(m, 1, 1, 0.9))
	}
	g, err := e.Run(request(1, 1), b)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	c := g.Cells[0]
	if !near(c.Combined, 0.9, 1e-9) {
		t.Fatalf("combined = %v, want 0.9", c.Combined)
	}
	if c.AgreementBonus != 0.3 || c.Agreeing != 5 {
		t.Fatalf("bonus = %v agreeing = %d", c.AgreementBonus, c.Agreeing)
	}
	if c.Probability != 1 || c.Class != grid.Critical {
		t.Fatalf("probability = %v class = %s, want 1 CRITICAL", c.Probability, c.Class)
	}
	if g.RunID != "test-run" || g.CreatedAt.IsZero() {
		t.Fatalf("run metadata not set: %q %v", g.RunID, g.CreatedAt)
	}
}

func TestEngine_TwoModalitiesAvailable(t *testing.T) {
	e := testEngine(t, passThrough{}, DefaultConfig())

	b := sensor.NewBatch(1, 1)
	b.Set(constLayer(sensor.SAR, 1, 1, 0.8))
	b.Set(constLayer(sensor.Thermal, 1, 1, 0.85))
	b.Set(sensor.UnavailableLayer(sensor.Seismic, "offline"))
	b.Set(sensor.UnavailableLayer(sensor.Gravity, "offline"))
	b.Set(sensor.UnavailableLayer(sensor.Magnetic, "offline"))

	g, err := e.Run(request(1, 1), b)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	c := g.Cells[0]

	// SAR and thermal carry equal default weights, so each gets half.
	l := math.Sqrt(0.8 * 0.85)
	a := math.Sqrt(0.2 * 0.15)
	want := l / (l + a)
	if !near(c.Combined, want, 1e-9) {
		t.Fatalf("combined = %v, want %v", c.Combined, want)
	}
	if c.AgreementBonus != 0 || c.Probability != c.Combined {
		t.Fatalf("bonus = %v probability = %v", c.AgreementBonus, c.Probability)
	}
	if len(c.Scores) != 2 {
		t.Fatalf("scores = %v, want only the two available modalities", c.Scores)
	}

	for _, m := range []sensor.Modality{sensor.Seismic, sensor.Gravity, sensor.Magnetic} {
		av, ok := g.ModalityAvailability(m)
		if !ok || av.Status != grid.StatusUnavailable || av.Reason != "offline" {
			t.Fatalf("%s availability = %+v", m, av)
		}
	}
	if av, _ := g.ModalityAvailability(sensor.SAR); av.Status != grid.StatusAvailable || av.CellsCovered != 1 {
		t.Fatalf("sar availability = %+v", av)
	}
}

func TestEngine_PartialCoverage(t *testing.T) {
	e := testEngine(t, passThrough{}, DefaultConfig())
	b := sensor.NewBatch(1, 2)
	l := constLayer(sensor.Gravity, 1, 2, 0.7)
	l.Values[0][1] = math.NaN()
	b.Set(l)

	g, err := e.Run(request(1, 2), b)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	av, _ := g.ModalityAvailability(sensor.Gravity)
	if av.Status != grid.StatusPartial || av.CellsCovered != 1 {
		t.Fatalf("gravity availability = %+v", av)
	}
	if c, _ := g.At(0, 1); c.Probability != 0 || len(c.Scores) != 0 {
		t.Fatalf("uncovered cell = %+v", c)
	}
}

func TestEngine_OutOfRangeScoreAborts(t *testing.T) {
	e := testEngine(t, passThrough{}, DefaultConfig())
	b := sensor.NewBatch(2, 2)
	l := constLayer(sensor.Magnetic, 2, 2, 0.5)
	l.Values[1][0] = 1.5
	b.Set(l)

	_, err := e.Run(request(2, 2), b)
	if !IsOutOfRange(err) {
		t.Fatalf("Run() error = %v, want OutOfRangeScoreError", err)
	}
	var oor *OutOfRangeScoreError
	if !errors.As(err, &oor) || oor.Row != 1 || oor.Col != 0 || oor.Modality != sensor.Magnetic {
		t.Fatalf("error details = %+v", oor)
	}
}

func TestEngine_InvalidDimensions(t *testing.T) {
	e := testEngine(t, passThrough{}, DefaultConfig())

	if _, err := e.Run(request(0, 3), sensor.NewBatch(0, 3)); !errors.Is(err, ErrInvalidGridDimensions) {
		t.Fatalf("zero rows error = %v", err)
	}
	if _, err := e.Run(request(2, 2), sensor.NewBatch(3, 2)); !errors.Is(err, ErrInvalidGridDimensions) {
		t.Fatalf("mismatched batch error = %v", err)
	}
	b := sensor.NewBatch(2, 2)
	b.Set(constLayer(sensor.SAR, 2, 3, 0.5))
	if _, err := e.Run(request(2, 2), b); !errors.Is(err, ErrInvalidGridDimensions) {
		t.Fatalf("mismatched layer error = %v", err)
	}
}

func TestEngine_ZeroWeightDisablesModality(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Weights[sensor.Magnetic] = 0
	e := testEngine(t, passThrough{}, cfg)
	b := sensor.NewBatch(1, 1)
	b.Set(constLayer(sensor.Magnetic, 1, 1, 0.95))
	b.Set(constLayer(sensor.SAR, 1, 1, 0.6))

	g, err := e.Run(request(1, 1), b)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if _, ok := g.Cells[0].Scores[sensor.Magnetic]; ok {
		t.Fatalf("disabled modality must not be scored")
	}
	if !near(g.Cells[0].Probability, 0.6, 1e-12) {
		t.Fatalf("probability = %v, want 0.6", g.Cells[0].Probability)
	}
	av, _ := g.ModalityAvailability(sensor.Magnetic)
	if av.Status != grid.StatusUnavailable {
		t.Fatalf("magnetic availability = %+v", av)
	}
}

func TestEngine_SyntheticSurvey(t *testing.T) {
	e := testEngine(t, scorer.Default(), DefaultConfig())
	req := request(30, 30)
	req.Seed = 3
	b, err := sensor.NewSyntheticProvider().Acquire(context.Background(), req)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	g, err := e.Run(req, b)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if err := g.Validate(); err != nil {
		t.Fatalf("grid invalid: %v", err)
	}
	center, _ := g.At(15, 15)
	corner, _ := g.At(0, 0)
	if center.Probability <= corner.Probability {
		t.Fatalf("center %v should score above corner %v", center.Probability, corner.Probability)
	}
	if !g.Bounds.Contains(center.Center) {
		t.Fatalf("cell center outside bounds")
	}
}

func TestNewEngine_Validation(t *testing.T) {
	if _, err := NewEngine(nil, DefaultConfig()); err == nil {
		t.Fatalf("expected error for nil scorer")
	}
	cfg := DefaultConfig()
	cfg.AnomalyThreshold = 2
	if _, err := NewEngine(passThrough{}, cfg); err == nil {
		t.Fatalf("expected error for threshold 2")
	}
}

func TestNewEngine_CopiesWeights(t *testing.T) {
	cfg := DefaultConfig()
	e := testEngine(t, passThrough{}, cfg)
	cfg.Weights[sensor.SAR] = 0
	if e.Config().Weights[sensor.SAR] != 0.25 {
		t.Fatalf("engine weights changed after construction")
	}
}
