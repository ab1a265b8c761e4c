package allometry

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

// NativeFilter maps ecoregions to the species considered native there. It is
// advisory input for callers assembling a species mix; the simulator itself
// never consults it.
type NativeFilter struct {
	byEcoregion map[string][]string
}

// LoadNativeCSV parses a table with columns ecoregion and species_name.
func LoadNativeCSV(r io.Reader) (*NativeFilter, error) {
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
	ecoCol, okEco := cols["ecoregion"]
	spCol, okSp := cols["species_name"]
	if !okEco || !okSp {
		return nil, fmt.Errorf("native species table requires ecoregion and species_name columns")
	}

	filter := &NativeFilter{byEcoregion: make(map[string][]string)}
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		eco := strings.ToLower(strings.TrimSpace(record[ecoCol]))
		species := strings.TrimSpace(record[spCol])
		if eco == "" || species == "" {
			return nil, fmt.Errorf("line %d: empty ecoregion or species_name", line)
		}
		filter.byEcoregion[eco] = append(filter.byEcoregion[eco], species)
	}
	return filter, nil
}

// LoadNativeFile loads a native species table from disk.
func LoadNativeFile(path string) (*NativeFilter, error) {
	f, err := os.Open(path) // #nosec G304 -- operator-supplied table path
	if err != nil {
		return nil, fmt.Errorf("open native species table: %w", err)
	}
	defer func() { _ = f.Close() }()
	filter, err := LoadNativeCSV(f)
	if err != nil {
		return nil, fmt.Errorf("parse native species table %s: %w", path, err)
	}
	return filter, nil
}

// SpeciesFor returns the native species list for an ecoregion, sorted.
func (f *NativeFilter) SpeciesFor(ecoregion string) []string {
	species := f.byEcoregion[strings.ToLower(strings.TrimSpace(ecoregion))]
	out := make([]string, len(species))
	copy(out, species)
	sort.Strings(out)
	return out
}

// IsNative reports whether the species is listed as native to the ecoregion.
func (f *NativeFilter) IsNative(ecoregion, species string) bool {
	for _, s := range f.byEcoregion[strings.ToLower(strings.TrimSpace(ecoregion))] {
		if s == species {
			return true
		}
	}
	return false
}

// Ecoregions lists the known ecoregions, sorted.
func (f *NativeFilter) Ecoregions() []string {
	out := make([]string, 0, len(f.byEcoregion))
	for eco := range f.byEcoregion {
		out = append(out, eco)
	}
	sort.Strings(out)
	return out
}
