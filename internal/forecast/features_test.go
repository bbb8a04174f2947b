package forecast

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dengueviewer/atlas-service/internal/domain"
)

// monthlyTable builds a single-province table with the given case counts on
// consecutive months starting January of startYear.
func monthlyTable(key string, startYear int, cases []float64) domain.CaseTable {
	var records []domain.CaseRecord
	for i, c := range cases {
		year := startYear + i/12
		month := i%12 + 1
		records = append(records, domain.CaseRecord{
			Key:    key,
			Name:   key,
			Bucket: fmt.Sprintf("%d-%02d-01", year, month),
			Cases:  c,
		})
	}
	return domain.CaseTable{Records: records}
}

func TestBuildFeaturesLagsAndTarget(t *testing.T) {
	table := monthlyTable("PHUKET", 2023, []float64{1, 2, 3, 4, 5, 6, 7, 8})

	rows := BuildFeatures(table)

	// Eight months minus four of lag history and one of lookahead.
	require.Len(t, rows, 3)

	first := rows[0]
	assert.Equal(t, "2023-05-01", first.Bucket)
	assert.Equal(t, 5, first.Month)
	assert.InDelta(t, math.Log1p(5), first.LogCases, 1e-12)
	assert.InDelta(t, math.Log1p(4)-math.Log1p(3), first.Lags[0], 1e-12)
	assert.InDelta(t, math.Log1p(3)-math.Log1p(2), first.Lags[1], 1e-12)
	assert.InDelta(t, math.Log1p(2)-math.Log1p(1), first.Lags[2], 1e-12)
	assert.InDelta(t, math.Log1p(6)-math.Log1p(5), first.Target, 1e-12)
}

func TestBuildFeaturesExcludesIncompleteHistory(t *testing.T) {
	table := monthlyTable("PHUKET", 2023, []float64{1, 2, 3, 4, 5, 6, 7, 8})

	rows := BuildFeatures(table)

	for _, r := range rows {
		assert.GreaterOrEqual(t, r.Bucket, "2023-05-01", "first four months have no full lag history")
		assert.LessOrEqual(t, r.Bucket, "2023-07-01", "last month has no target")
	}
}

func TestBuildFeaturesSumsDuplicateBuckets(t *testing.T) {
	table := monthlyTable("PHUKET", 2023, []float64{1, 2, 3, 4, 5, 6})
	table.Records = append(table.Records, domain.CaseRecord{
		Key: "PHUKET", Bucket: "2023-05-01", Cases: 10,
	})

	rows := BuildFeatures(table)

	require.Len(t, rows, 1)
	assert.InDelta(t, math.Log1p(15), rows[0].LogCases, 1e-12)
}

func TestBuildFeaturesTooShortSeries(t *testing.T) {
	table := monthlyTable("PHUKET", 2023, []float64{1, 2, 3, 4, 5})
	assert.Empty(t, BuildFeatures(table))
}

func TestBuildFeaturesIgnoresNonMonthlyBuckets(t *testing.T) {
	table := domain.CaseTable{Records: []domain.CaseRecord{
		{Key: "BRA", Bucket: "2024-W05", Cases: 10},
		{Key: "BRA", Bucket: "2024-W06", Cases: 12},
	}}
	assert.Empty(t, BuildFeatures(table))
}

func TestBuildFeaturesSeparatesProvinces(t *testing.T) {
	a := monthlyTable("PHUKET", 2023, []float64{1, 2, 3, 4, 5, 6})
	b := monthlyTable("CHAINAT", 2023, []float64{10, 20, 30, 40, 50, 60})
	table := domain.CaseTable{Records: append(a.Records, b.Records...)}

	rows := BuildFeatures(table)

	require.Len(t, rows, 2)
	keys := []string{rows[0].Key, rows[1].Key}
	assert.ElementsMatch(t, []string{"PHUKET", "CHAINAT"}, keys)
}
