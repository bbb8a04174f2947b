// Package forecast trains a one-step-ahead model of monthly dengue
// dynamics per province and serves its evaluation metrics and per-province
// prediction series.
package forecast

import (
	"math"
	"sort"
	"time"

	"github.com/dengueviewer/atlas-service/internal/domain"
)

// monthLayout is the bucket format of monthly case tables.
const monthLayout = "2006-01-02"

// lagCount is how many monthly change lags feed the model.
const lagCount = 3

// FeatureRow is one trainable observation: the state of a province at month
// t with its target, the log-case change from t to t+1.
type FeatureRow struct {
	Province string
	Key      string
	Date     time.Time
	Bucket   string

	LogCases float64
	// Lags[l-1] is the log-case change observed at month t-l.
	Lags  [lagCount]float64
	Month int

	Target float64
}

// Features returns Lags and Month as the model's input vector.
func (r FeatureRow) Features() []float64 {
	out := make([]float64, 0, lagCount+1)
	for _, l := range r.Lags {
		out = append(out, l)
	}
	return append(out, float64(r.Month))
}

// BuildFeatures reshapes a monthly case table into feature rows. Each row
// needs lagCount+1 preceding months for its lags and one following month
// for its target; months without that history are excluded rather than
// zero-padded.
func BuildFeatures(table domain.CaseTable) []FeatureRow {
	type observation struct {
		date  time.Time
		cases float64
		name  string
	}

	series := make(map[string][]observation)
	totals := make(map[string]map[string]*observation)
	for _, rec := range table.Records {
		date, err := time.Parse(monthLayout, rec.Bucket)
		if err != nil {
			continue
		}
		byBucket, ok := totals[rec.Key]
		if !ok {
			byBucket = make(map[string]*observation)
			totals[rec.Key] = byBucket
		}
		if obs, ok := byBucket[rec.Bucket]; ok {
			obs.cases += rec.Cases
		} else {
			byBucket[rec.Bucket] = &observation{date: date, cases: rec.Cases, name: rec.Name}
		}
	}
	for key, byBucket := range totals {
		obs := make([]observation, 0, len(byBucket))
		for _, o := range byBucket {
			obs = append(obs, *o)
		}
		sort.Slice(obs, func(i, j int) bool { return obs[i].date.Before(obs[j].date) })
		series[key] = obs
	}

	keys := make([]string, 0, len(series))
	for key := range series {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var rows []FeatureRow
	for _, key := range keys {
		obs := series[key]

		logs := make([]float64, len(obs))
		for i, o := range obs {
			logs[i] = math.Log1p(o.cases)
		}

		// change[t] is the log step from month t-1 to t.
		change := make([]float64, len(obs))
		for t := 1; t < len(obs); t++ {
			change[t] = logs[t] - logs[t-1]
		}

		for t := lagCount + 1; t < len(obs)-1; t++ {
			row := FeatureRow{
				Province: obs[t].name,
				Key:      key,
				Date:     obs[t].date,
				Bucket:   obs[t].date.Format(monthLayout),
				LogCases: logs[t],
				Month:    int(obs[t].date.Month()),
				Target:   logs[t+1] - logs[t],
			}
			if row.Province == "" {
				row.Province = key
			}
			for l := 1; l <= lagCount; l++ {
				row.Lags[l-1] = change[t-l]
			}
			rows = append(rows, row)
		}
	}
	return rows
}
