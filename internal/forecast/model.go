package forecast

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/dengueviewer/atlas-service/internal/domain"
)

// ErrUnknownProvince is returned when a graph is requested for a province
// the feature table never saw.
var ErrUnknownProvince = errors.New("unknown province")

// outbreakQuantile marks the top share of absolute monthly changes as
// outbreak-sized when evaluating the model.
const outbreakQuantile = 0.8

// ModelMetrics is the held-out evaluation of a trained model. The baseline
// is persistence: predicting no change from one month to the next. Global
// covers every test row, Outbreak only the rows whose true change reaches
// the outbreak threshold.
type ModelMetrics struct {
	CutoffYear        int          `json:"cutoff_year"`
	TrainRows         int          `json:"train_rows"`
	TestRows          int          `json:"test_rows"`
	OutbreakThreshold float64      `json:"outbreak_threshold"`
	Global            ErrorMetrics `json:"global"`
	Outbreak          ErrorMetrics `json:"outbreak"`
}

// ErrorMetrics compares the model's RMSE against the persistence baseline
// over one subset of the test rows.
type ErrorMetrics struct {
	RMSEModel      float64 `json:"rmse_model"`
	RMSEBase       float64 `json:"rmse_base"`
	ImprovementPct float64 `json:"improvement_pct"`
}

// GraphSeries is a per-province comparison of observed monthly cases
// against the model's one-step-ahead predictions, on the case scale.
type GraphSeries struct {
	Province string    `json:"province"`
	Dates    []string  `json:"dates"`
	Real     []float64 `json:"real"`
	Model    []float64 `json:"model"`
	Baseline []float64 `json:"baseline"`
}

// Model is a trained forecast with its evaluation and the feature rows it
// was built from.
type Model struct {
	reg        Regressor
	cutoffYear int
	eval       ModelMetrics
	rows       []FeatureRow
}

// Train fits reg on rows from years before cutoffYear and evaluates it on
// the cutoff year itself. Observations are weighted up with the size of
// their target so that rare outbreak months pull on the fit.
func Train(rows []FeatureRow, cutoffYear int, reg Regressor) (*Model, error) {
	var train, test []FeatureRow
	for _, r := range rows {
		switch {
		case r.Date.Year() < cutoffYear:
			train = append(train, r)
		case r.Date.Year() == cutoffYear:
			test = append(test, r)
		}
	}
	if len(train) == 0 {
		return nil, fmt.Errorf("no feature rows before cutoff year %d", cutoffYear)
	}

	x := mat.NewDense(len(train), lagCount+1, nil)
	y := make([]float64, len(train))
	weights := make([]float64, len(train))
	for i, r := range train {
		x.SetRow(i, r.Features())
		y[i] = r.Target
		weights[i] = 1 + 5*math.Abs(r.Target)
	}
	if err := reg.Fit(x, y, weights); err != nil {
		return nil, err
	}

	m := &Model{reg: reg, cutoffYear: cutoffYear, rows: rows}
	m.eval = m.evaluate(train, test)
	return m, nil
}

// Metrics returns the held-out evaluation computed at training time.
func (m *Model) Metrics() ModelMetrics {
	return m.eval
}

func (m *Model) evaluate(train, test []FeatureRow) ModelMetrics {
	eval := ModelMetrics{
		CutoffYear: m.cutoffYear,
		TrainRows:  len(train),
		TestRows:   len(test),
	}

	absTargets := make([]float64, len(train))
	for i, r := range train {
		absTargets[i] = math.Abs(r.Target)
	}
	sort.Float64s(absTargets)
	eval.OutbreakThreshold = stat.Quantile(outbreakQuantile, stat.LinInterp, absTargets, nil)

	if len(test) == 0 {
		return eval
	}

	var sqModel, sqBase float64
	var sqModelOut, sqBaseOut float64
	var outbreaks int
	for _, r := range test {
		pred := m.reg.Predict(r.Features())
		sqModel += (pred - r.Target) * (pred - r.Target)
		sqBase += r.Target * r.Target

		if math.Abs(r.Target) >= eval.OutbreakThreshold {
			outbreaks++
			sqModelOut += (pred - r.Target) * (pred - r.Target)
			sqBaseOut += r.Target * r.Target
		}
	}

	eval.Global = rmsePair(sqModel, sqBase, len(test))
	eval.Outbreak = rmsePair(sqModelOut, sqBaseOut, outbreaks)
	return eval
}

func rmsePair(sqModel, sqBase float64, n int) ErrorMetrics {
	if n == 0 {
		return ErrorMetrics{}
	}
	em := ErrorMetrics{
		RMSEModel: math.Sqrt(sqModel / float64(n)),
		RMSEBase:  math.Sqrt(sqBase / float64(n)),
	}
	if em.RMSEBase > 0 {
		em.ImprovementPct = (1 - em.RMSEModel/em.RMSEBase) * 100
	}
	return em
}

// Graph returns the recent observed-versus-predicted series for one
// province, starting the year before the cutoff. The province is matched
// by its normalized name.
func (m *Model) Graph(province string) (GraphSeries, error) {
	key := domain.Normalize(province)
	out := GraphSeries{}

	for _, r := range m.rows {
		if r.Key != key && domain.Normalize(r.Province) != key {
			continue
		}
		if out.Province == "" {
			out.Province = r.Province
		}
		if r.Date.Year() < m.cutoffYear-1 {
			continue
		}

		pred := m.reg.Predict(r.Features())
		next := r.Date.AddDate(0, 1, 0)
		out.Dates = append(out.Dates, next.Format(monthLayout))
		out.Real = append(out.Real, math.Expm1(r.LogCases+r.Target))
		out.Model = append(out.Model, math.Expm1(r.LogCases+pred))
		out.Baseline = append(out.Baseline, math.Expm1(r.LogCases))
	}

	if out.Province == "" {
		return GraphSeries{}, fmt.Errorf("%w: %s", ErrUnknownProvince, province)
	}
	return out, nil
}
