// Command validate checks the on-disk surveillance datasets against the
// region descriptors before a deploy: file presence, column resolution,
// join-key coverage between boundaries and case tables, and row quality.
//
// Usage:
//
//	go run ./cmd/validate -data-dir ./data
//	go run ./cmd/validate -data-dir ./data -regions regions.yaml -region brasil
package main

import (
	"flag"
	"fmt"
	"os"
	"sort"

	"github.com/dengueviewer/atlas-service/internal/config"
	"github.com/dengueviewer/atlas-service/internal/domain"
	"github.com/dengueviewer/atlas-service/internal/ingest"
)

// coverageFloor is the minimum share of geometry keys the case table must
// reach before the join is considered healthy.
const coverageFloor = 0.5

// phase tracks pass/fail for one validation phase.
type phase struct {
	name   string
	errors []string
	notes  []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) notef(format string, args ...any) {
	p.notes = append(p.notes, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	dataDir := flag.String("data-dir", "./data", "directory containing the surveillance datasets")
	regionsFile := flag.String("regions", "", "optional region descriptor YAML (defaults to the built-in regions)")
	only := flag.String("region", "", "validate a single region id")
	tolerance := flag.Float64("tolerance", 0.01, "geometry simplification tolerance in degrees")
	flag.Parse()

	if code := run(*dataDir, *regionsFile, *only, *tolerance); code != 0 {
		os.Exit(code)
	}
}

func run(dataDir, regionsFile, only string, tolerance float64) int {
	specs, err := config.LoadRegions(regionsFile, dataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load region descriptors: %v\n", err)
		return 1
	}

	fmt.Println("=== Dengue Atlas Dataset Validation ===")
	fmt.Println()

	allPassed := true
	for _, spec := range specs {
		if only != "" && spec.ID != only {
			continue
		}

		phases := validateRegion(spec, tolerance)

		fmt.Printf("%s:\n", spec.ID)
		for _, p := range phases {
			status := "\033[32mPASS\033[0m"
			if !p.passed() {
				status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
				allPassed = false
			}
			fmt.Printf("  %-32s %s\n", p.name, status)
			for _, n := range p.notes {
				fmt.Printf("    %s\n", n)
			}
			for i, e := range p.errors {
				fmt.Printf("    [%d] %s\n", i+1, e)
			}
		}
		fmt.Println()
	}

	if allPassed {
		fmt.Println("All validations passed.")
		return 0
	}
	fmt.Println("Validation FAILED.")
	return 1
}

func validateRegion(spec config.RegionSpec, tolerance float64) []*phase {
	presence := validatePresence(spec)
	if !presence.passed() {
		return []*phase{presence}
	}

	regions, cases, loading := loadSources(spec, tolerance)
	phases := []*phase{presence, loading}
	if !loading.passed() {
		return phases
	}

	return append(phases,
		validateCoverage(regions, cases),
		validateQuality(cases),
	)
}

// validatePresence checks that every file a descriptor names exists.
func validatePresence(spec config.RegionSpec) *phase {
	p := &phase{name: "file presence"}

	paths := []string{spec.Geometry.Path, spec.Cases.Path}
	if spec.Population != nil {
		paths = append(paths, spec.Population.Path)
	}
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			p.errorf("missing %s", path)
		}
	}
	return p
}

// loadSources runs the real loaders, surfacing schema mismatches exactly as
// the service would see them.
func loadSources(spec config.RegionSpec, tolerance float64) ([]domain.AdminRegion, domain.CaseTable, *phase) {
	p := &phase{name: "schema and loading"}

	regions, err := ingest.LoadGeometry(spec.Geometry, tolerance)
	if err != nil {
		p.errorf("geometry: %v", err)
	} else {
		p.notef("%d boundary units", len(regions))
	}

	cases, stats, err := ingest.LoadCaseTable(spec.Cases)
	if err != nil {
		p.errorf("cases: %v", err)
	} else {
		p.notef("%d case records from %d rows", stats.RecordsKept, stats.RowsRead)
	}

	if spec.Population != nil {
		pop, err := ingest.LoadPopulation(*spec.Population)
		if err != nil {
			p.errorf("population: %v", err)
		} else {
			p.notef("%d population entries", len(pop))
		}
	}

	return regions, cases, p
}

// validateCoverage measures how well the two key sets line up. A silently
// empty intersection is the classic symptom of a key-construction bug.
func validateCoverage(regions []domain.AdminRegion, cases domain.CaseTable) *phase {
	p := &phase{name: "join-key coverage"}

	cov := domain.KeyCoverage(regions, cases)
	p.notef("geometry=%d cases=%d shared=%d", cov.GeometryKeys, cov.CaseKeys, cov.Shared)

	if cov.Shared == 0 {
		p.errorf("no shared keys between geometry and case table")
		p.notef("sample geometry keys: %v", sampleKeys(geometryKeys(regions), 5))
		p.notef("sample case keys: %v", sampleKeys(caseKeys(cases), 5))
		return p
	}

	if share := float64(cov.Shared) / float64(cov.GeometryKeys); share < coverageFloor {
		p.errorf("only %.0f%% of boundary units have case data (floor %.0f%%)", share*100, coverageFloor*100)
	}
	return p
}

// validateQuality checks the reshaped case records themselves.
func validateQuality(cases domain.CaseTable) *phase {
	p := &phase{name: "row quality"}

	if len(cases.Records) == 0 {
		p.errorf("case table is empty after reshaping")
		return p
	}

	var negative int
	for _, rec := range cases.Records {
		if rec.Cases < 0 {
			negative++
		}
	}
	if negative > 0 {
		p.errorf("%d records carry negative case counts", negative)
	}

	buckets := cases.Buckets()
	p.notef("%d time buckets, %s .. %s", len(buckets), buckets[0], buckets[len(buckets)-1])
	return p
}

func geometryKeys(regions []domain.AdminRegion) []string {
	out := make([]string, 0, len(regions))
	for _, r := range regions {
		out = append(out, r.Key)
	}
	return out
}

func caseKeys(cases domain.CaseTable) []string {
	seen := make(map[string]bool)
	var out []string
	for _, rec := range cases.Records {
		if !seen[rec.Key] {
			seen[rec.Key] = true
			out = append(out, rec.Key)
		}
	}
	return out
}

func sampleKeys(keys []string, n int) []string {
	sort.Strings(keys)
	if len(keys) > n {
		keys = keys[:n]
	}
	return keys
}
