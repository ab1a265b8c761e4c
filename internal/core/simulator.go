package core

import (
	"context"
	"fmt"

	"carboncore/internal/allometry"
	"carboncore/pkg/domain"
)

// Simulator evolves a mixed-species stand year by year and aggregates the
// carbon accounting layers (gross biomass, soil, buffer, net). A simulator
// holds no mutable state between calls; one instance may serve concurrent
// runs as long as each call owns its scenario value.
type Simulator struct {
	coeffs *allometry.Store
	cfg    ModelConfig
}

// NewSimulator constructs a simulator over a loaded coefficient store.
func NewSimulator(coeffs *allometry.Store, cfg ModelConfig) *Simulator {
	return &Simulator{coeffs: coeffs, cfg: cfg}
}

// Config returns the model constants the simulator applies.
func (s *Simulator) Config() ModelConfig { return s.cfg }

// cohort tracks the live trees of one species. Diameters are kept in
// ascending order: every tree starts at the same value and growth adds a
// uniform increment, so order is established at planting and never disturbed.
// Culling therefore keeps a tail slice (the largest stems survive).
type cohort struct {
	species string
	region  domain.Region
	count   int
	dbhCM   []float64
}

// Simulate runs the year-by-year stand evolution for a scenario and returns
// one result per project year. An empty species mix is not an error; it
// produces an all-zero series. The context is checked between years so large
// stands over long horizons remain cancellable.
func (s *Simulator) Simulate(ctx context.Context, sc domain.Scenario) ([]domain.YearlyResult, error) {
	if sc.AreaHa <= 0 {
		return nil, fmt.Errorf("area must be positive, got %g ha", sc.AreaHa)
	}
	if sc.ProjectYears <= 0 {
		return nil, fmt.Errorf("project years must be positive, got %d", sc.ProjectYears)
	}
	if sc.AnnualMortality < 0 || sc.AnnualMortality >= 1 {
		return nil, fmt.Errorf("annual mortality must be in [0,1), got %g", sc.AnnualMortality)
	}

	cohorts := make([]*cohort, 0, len(sc.Mix))
	for _, entry := range sc.Mix {
		// Truncate, never round: a fractional tree is not planted.
		stems := int(sc.AreaHa * entry.Density * entry.Percent / 100.0)
		if stems < 0 {
			stems = 0
		}
		dbh := make([]float64, stems)
		for i := range dbh {
			dbh[i] = 1.0
		}
		cohorts = append(cohorts, &cohort{
			species: entry.Species,
			region:  entry.Region,
			count:   stems,
			dbhCM:   dbh,
		})
	}

	thinning := make(map[int]float64, len(sc.Thinning))
	for _, event := range sc.Thinning {
		if event.PercentRemove < 0 || event.PercentRemove > 100 {
			return nil, fmt.Errorf("thinning year %d: percent to remove must be in [0,100], got %g", event.Year, event.PercentRemove)
		}
		thinning[event.Year] = event.PercentRemove / 100.0
	}

	series := make([]domain.YearlyResult, 0, sc.ProjectYears)
	for year := 1; year <= sc.ProjectYears; year++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		totalBiomassKg := 0.0
		totalTrees := 0
		for _, c := range cohorts {
			if c.count <= 0 {
				continue
			}

			survivors := int(float64(c.count) * (1 - sc.AnnualMortality))
			if survivors <= 0 {
				c.clear()
				continue
			}
			c.cullTo(survivors)

			if frac, ok := thinning[year]; ok {
				keep := int(float64(survivors) * (1 - frac))
				if keep <= 0 {
					c.clear()
					continue
				}
				c.cullTo(keep)
			}

			growthCM := s.cfg.GrowthMM(c.species, c.region, sc.Management) / 10.0
			for i := range c.dbhCM {
				c.dbhCM[i] += growthCM
			}

			cohortKg := 0.0
			for _, dbh := range c.dbhCM {
				cohortKg += s.coeffs.BiomassKg(dbh, c.species, c.region)
			}
			totalBiomassKg += cohortKg * (1 + s.cfg.RootShootRatio)
			totalTrees += c.count
		}

		biomassT := totalBiomassKg / 1000.0
		carbonT := biomassT * s.cfg.CarbonFraction
		series = append(series, domain.YearlyResult{
			Year:       year,
			Trees:      totalTrees,
			BiomassT:   biomassT,
			CarbonT:    carbonT,
			GrossCO2eT: carbonT * s.cfg.CO2eFactor,
		})
	}

	// Soil carbon is a one-time project-level estimate distributed evenly
	// across the series, keyed on the first mix entry's region.
	if len(sc.Mix) > 0 {
		soilTotal := s.cfg.SoilCO2eT(sc.AreaHa, sc.Mix[0].Region, sc.Management)
		annualSoil := soilTotal / float64(sc.ProjectYears)
		for i := range series {
			series[i].SoilCO2eT = annualSoil
		}
	}

	buffer := s.cfg.bufferFor(sc)
	for i := range series {
		combined := series[i].GrossCO2eT + series[i].SoilCO2eT
		series[i].NetCO2eT = combined * (1 - buffer)
		series[i].BufferCO2eT = combined * buffer
	}

	return series, nil
}

// Summarize extracts the final-year summary figures from a series.
func Summarize(series []domain.YearlyResult) domain.RunSummary {
	if len(series) == 0 {
		return domain.RunSummary{}
	}
	last := series[len(series)-1]
	return domain.RunSummary{
		FinalTrees:      last.Trees,
		GrossCO2eT:      last.GrossCO2eT,
		SoilCO2eT:       last.SoilCO2eT,
		NetCO2eT:        last.NetCO2eT,
		BufferHeldCO2eT: last.BufferCO2eT,
	}
}

func (c *cohort) clear() {
	c.count = 0
	c.dbhCM = nil
}

// cullTo drops the smallest-diameter stems until keep remain, modelling
// suppression mortality of understory trees.
func (c *cohort) cullTo(keep int) {
	if len(c.dbhCM) > keep {
		c.dbhCM = c.dbhCM[len(c.dbhCM)-keep:]
	}
	c.count = keep
}
