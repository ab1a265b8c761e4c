package core

import "carboncore/pkg/domain"

// ModelConfig collects the accounting and growth constants applied by a
// simulator instance. Holding them as an explicit value lets concurrent
// simulations run under different assumption sets.
type ModelConfig struct {
	// CarbonFraction converts dry biomass tonnes to carbon tonnes.
	CarbonFraction float64
	// CO2eFactor converts carbon tonnes to CO2-equivalent tonnes (44/12).
	CO2eFactor float64
	// RootShootRatio expands above-ground biomass to include roots.
	RootShootRatio float64
	// BufferFraction is the non-permanence buffer applied when a scenario
	// does not select its own.
	BufferFraction float64
	// SOCBaselineTCHa maps climate zones to baseline soil organic carbon
	// stocks in tonnes of carbon per hectare.
	SOCBaselineTCHa map[domain.Region]float64
	// SOCFallbackTCHa applies when a scenario's region is not in the table.
	SOCFallbackTCHa float64
	// SOCUpliftFraction is the assumed gain over the project horizon
	// relative to the baseline stock.
	SOCUpliftFraction float64
	// BiocharSoilTCHa is the stable carbon added per hectare when biochar
	// management is active.
	BiocharSoilTCHa float64
	// GrowthMMPerYear maps climate zones to baseline annual diameter
	// increments in millimeters.
	GrowthMMPerYear map[domain.Region]float64
	// FastGrowthMMPerYear overrides the tropical baseline for species in
	// FastGrowers.
	FastGrowthMMPerYear float64
	// FastGrowers lists tropical plantation species with elevated growth.
	FastGrowers []string
	// Management uplifts compose multiplicatively when flags are set.
	IrrigationUplift float64
	NutrientUplift   float64
	BiocharUplift    float64
}

// DefaultModelConfig returns the published constants the model ships with:
// IPCC stoichiometric factors, Chave-style root expansion, and conservative
// management uplifts.
func DefaultModelConfig() ModelConfig {
	return ModelConfig{
		CarbonFraction: 0.47,
		CO2eFactor:     3.67,
		RootShootRatio: 0.20,
		BufferFraction: 0.15,
		SOCBaselineTCHa: map[domain.Region]float64{
			domain.RegionTropical:  75,
			domain.RegionTemperate: 100,
			domain.RegionBoreal:    150,
		},
		SOCFallbackTCHa:   75,
		SOCUpliftFraction: 0.10,
		BiocharSoilTCHa:   5,
		GrowthMMPerYear: map[domain.Region]float64{
			domain.RegionTropical:  12.0,
			domain.RegionTemperate: 8.0,
			domain.RegionBoreal:    5.0,
		},
		FastGrowthMMPerYear: 20.0,
		FastGrowers: []string{
			"Acacia mangium",
			"Eucalyptus grandis",
			"Gmelina arborea",
		},
		IrrigationUplift: 1.15,
		NutrientUplift:   1.10,
		BiocharUplift:    1.10,
	}
}

// GrowthMM returns the annual diameter increment in millimeters for a
// species under the given management regime.
func (c ModelConfig) GrowthMM(species string, region domain.Region, mgmt domain.Management) float64 {
	base, ok := c.GrowthMMPerYear[region]
	if !ok {
		base = c.GrowthMMPerYear[domain.RegionBoreal]
	}
	if region == domain.RegionTropical {
		for _, fast := range c.FastGrowers {
			if fast == species {
				base = c.FastGrowthMMPerYear
				break
			}
		}
	}
	uplift := 1.0
	if mgmt.Irrigation {
		uplift *= c.IrrigationUplift
	}
	if mgmt.Nutrients {
		uplift *= c.NutrientUplift
	}
	if mgmt.Biochar {
		uplift *= c.BiocharUplift
	}
	return base * uplift
}

// SoilCO2eT computes the one-time gross soil carbon contribution for a
// project in CO2e tonnes: the assumed uplift over the regional baseline
// stock plus the fixed biochar addition when that flag is active.
func (c ModelConfig) SoilCO2eT(areaHa float64, region domain.Region, mgmt domain.Management) float64 {
	baseline, ok := c.SOCBaselineTCHa[region]
	if !ok {
		baseline = c.SOCFallbackTCHa
	}
	soil := areaHa * baseline * c.SOCUpliftFraction * c.CO2eFactor
	if mgmt.Biochar {
		soil += areaHa * c.BiocharSoilTCHa * c.CO2eFactor
	}
	return soil
}

// bufferFor resolves the buffer fraction for a scenario, falling back to the
// model default when the scenario leaves it unset.
func (c ModelConfig) bufferFor(sc domain.Scenario) float64 {
	if sc.BufferFraction > 0 {
		return sc.BufferFraction
	}
	return c.BufferFraction
}
