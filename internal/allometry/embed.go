package allometry

import (
	"bytes"
	_ "embed"
	"fmt"
)

//go:embed data/allometric_equations.csv
var defaultEquationsCSV []byte

//go:embed data/native_species.csv
var defaultNativeCSV []byte

// DefaultStore loads the bundled coefficient table. The bundle covers the
// species offered by the planting-plan UI; operator-supplied tables replace
// it via LoadFile.
func DefaultStore() (*Store, error) {
	store, err := LoadCSV(bytes.NewReader(defaultEquationsCSV))
	if err != nil {
		return nil, fmt.Errorf("bundled coefficient table: %w", err)
	}
	return store, nil
}

// DefaultNativeFilter loads the bundled ecoregion-to-species filter table.
func DefaultNativeFilter() (*NativeFilter, error) {
	filter, err := LoadNativeCSV(bytes.NewReader(defaultNativeCSV))
	if err != nil {
		return nil, fmt.Errorf("bundled native species table: %w", err)
	}
	return filter, nil
}
