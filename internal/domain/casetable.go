package domain

import "sort"

// CaseTable is a long-form case table: one record per (key, bucket) pair
// after load-time aggregation. Records are not required to be sorted.
type CaseTable struct {
	Records []CaseRecord
}

// BucketTotal is the aggregate for one join key within one time bucket.
type BucketTotal struct {
	Cases     float64
	Incidence float64
	Name      string
}

// Buckets returns the distinct time buckets in ascending order. Bucket
// identifiers sort lexicographically in chronological order by construction.
func (t CaseTable) Buckets() []string {
	seen := make(map[string]struct{}, len(t.Records))
	for _, r := range t.Records {
		seen[r.Bucket] = struct{}{}
	}
	buckets := make([]string, 0, len(seen))
	for b := range seen {
		buckets = append(buckets, b)
	}
	sort.Strings(buckets)
	return buckets
}

// Aggregate sums the records of one time bucket by join key. Residual
// duplicates (rows the load-time aggregation did not fold, e.g. after a
// correction mapped two source units onto one) are summed here as well so
// aggregation stays additive end to end.
func (t CaseTable) Aggregate(bucket string) map[string]BucketTotal {
	totals := make(map[string]BucketTotal)
	for _, r := range t.Records {
		if r.Bucket != bucket {
			continue
		}
		total := totals[r.Key]
		total.Cases += r.Cases
		total.Incidence += r.Incidence
		if total.Name == "" {
			total.Name = r.Name
		}
		totals[r.Key] = total
	}
	return totals
}

// Keys returns the set of distinct join keys present in the table.
func (t CaseTable) Keys() map[string]struct{} {
	keys := make(map[string]struct{}, len(t.Records))
	for _, r := range t.Records {
		keys[r.Key] = struct{}{}
	}
	return keys
}
