// Package allometry answers species- and region-specific biomass equation
// lookups. A store is built once from a tabular coefficient file and is
// read-only afterwards, so lookups are safe for concurrent use across
// simulation runs.
package allometry

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"carboncore/pkg/domain"
)

// Coefficient holds power-law parameters predicting above-ground biomass in
// kilograms from stem diameter at breast height in centimeters.
type Coefficient struct {
	A           float64 `json:"a"`
	B           float64 `json:"b"`
	WoodDensity float64 `json:"wood_density"`
}

const (
	// defaultWoodDensity substitutes for rows with a blank wood_density column.
	defaultWoodDensity = 0.5
	// minBiomassKg floors degenerate power-law outputs for near-zero diameters.
	minBiomassKg = 0.01
)

// GenericDefault is the terminal lookup fallback for species absent from the
// coefficient table entirely (Chave et al. 2014 pan-tropical model).
var GenericDefault = Coefficient{A: 0.0673, B: 2.3230, WoodDensity: defaultWoodDensity}

type key struct {
	species string
	region  domain.Region
}

// Store resolves allometric coefficients with a three-tier fallback chain.
type Store struct {
	exact map[key]Coefficient
	// bySpecies retains the first-loaded row per species. When an exact
	// (species, region) pair is missing, the species-level fallback uses
	// load order as the documented deterministic tie-break.
	bySpecies map[string]Coefficient
	species   []string
}

// Row is one parsed line of the coefficient table.
type Row struct {
	Species     string
	Region      domain.Region
	Coefficient Coefficient
}

// NewStore builds a store from parsed rows. Later rows overwrite earlier
// exact (species, region) entries; the species-level fallback always keeps
// the first occurrence.
func NewStore(rows []Row) *Store {
	s := &Store{
		exact:     make(map[key]Coefficient, len(rows)),
		bySpecies: make(map[string]Coefficient, len(rows)),
	}
	for _, row := range rows {
		s.exact[key{species: row.Species, region: row.Region}] = row.Coefficient
		if _, seen := s.bySpecies[row.Species]; !seen {
			s.bySpecies[row.Species] = row.Coefficient
			s.species = append(s.species, row.Species)
		}
	}
	return s
}

// LoadCSV parses a coefficient table with required columns species_name,
// region, a, b and an optional wood_density column. Any malformed row is a
// fatal configuration error.
func LoadCSV(r io.Reader) (*Store, error) {
	rows, err := parseCSV(r)
	if err != nil {
		return nil, err
	}
	return NewStore(rows), nil
}

// LoadFile loads a coefficient table from disk.
func LoadFile(path string) (*Store, error) {
	f, err := os.Open(path) // #nosec G304 -- operator-supplied table path
	if err != nil {
		return nil, fmt.Errorf("open coefficient table: %w", err)
	}
	defer func() { _ = f.Close() }()
	store, err := LoadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("parse coefficient table %s: %w", path, err)
	}
	return store, nil
}

func parseCSV(r io.Reader) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.TrimSpace(strings.ToLower(name))] = i
	}
	for _, required := range []string{"species_name", "region", "a", "b"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("coefficient table missing column %q", required)
		}
	}
	densityCol, hasDensity := cols["wood_density"]

	var rows []Row
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		species := strings.TrimSpace(record[cols["species_name"]])
		if species == "" {
			return nil, fmt.Errorf("line %d: empty species_name", line)
		}
		region := domain.Region(strings.ToLower(strings.TrimSpace(record[cols["region"]])))
		a, err := strconv.ParseFloat(strings.TrimSpace(record[cols["a"]]), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: coefficient a: %w", line, err)
		}
		b, err := strconv.ParseFloat(strings.TrimSpace(record[cols["b"]]), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: coefficient b: %w", line, err)
		}
		density := defaultWoodDensity
		if hasDensity && densityCol < len(record) {
			if raw := strings.TrimSpace(record[densityCol]); raw != "" {
				density, err = strconv.ParseFloat(raw, 64)
				if err != nil {
					return nil, fmt.Errorf("line %d: wood_density: %w", line, err)
				}
			}
		}
		rows = append(rows, Row{
			Species:     species,
			Region:      region,
			Coefficient: Coefficient{A: a, B: b, WoodDensity: density},
		})
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("coefficient table has no data rows")
	}
	return rows, nil
}

// Coefficients resolves coefficients for a species and region. The lookup
// never fails: exact pair first, then the species' first-loaded row from any
// region, then GenericDefault.
func (s *Store) Coefficients(species string, region domain.Region) Coefficient {
	if c, ok := s.exact[key{species: species, region: region}]; ok {
		return c
	}
	if c, ok := s.bySpecies[species]; ok {
		return c
	}
	return GenericDefault
}

// Known reports whether the species appears anywhere in the table.
func (s *Store) Known(species string) bool {
	_, ok := s.bySpecies[species]
	return ok
}

// Species lists every species in the table, in load order.
func (s *Store) Species() []string {
	out := make([]string, len(s.species))
	copy(out, s.species)
	return out
}

// BiomassKg computes above-ground biomass for a single stem from its
// diameter at breast height. Results are floored at a small positive value
// so degenerate diameters never yield zero or negative biomass.
func (s *Store) BiomassKg(dbhCM float64, species string, region domain.Region) float64 {
	c := s.Coefficients(species, region)
	agb := c.A * math.Pow(dbhCM, c.B)
	if agb < minBiomassKg {
		return minBiomassKg
	}
	return agb
}
