// Command carbonsim runs a reforestation carbon sequestration simulation from
// the command line and prints the year-by-year series.
package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"carboncore/internal/allometry"
	"carboncore/internal/blob"
	"carboncore/internal/core"
	"carboncore/pkg/domain"
)

var exitFunc = os.Exit

type stringList []string

func (l *stringList) String() string { return strings.Join(*l, ",") }

func (l *stringList) Set(v string) error {
	*l = append(*l, v)
	return nil
}

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "carbonsim: %v\n", err)
		exitFunc(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("carbonsim", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		area      = fs.Float64("area", 100, "project area in hectares")
		years     = fs.Int("years", 40, "project duration in years")
		mortality = fs.Float64("mortality", 0.04, "annual mortality fraction [0,1)")
		buffer    = fs.Float64("buffer", 0, "non-permanence buffer fraction (0 = model default)")
		coeffPath = fs.String("coefficients", "", "path to allometric coefficient CSV (default: bundled table)")
		ecoregion = fs.String("ecoregion", "", "warn when species are not native to this ecoregion")
		output    = fs.String("output", "table", "output format: table|json|csv")
		export    = fs.Bool("export", false, "also store JSON and CSV artifacts in the configured blob store")

		irrigation = fs.Bool("irrigation", false, "apply irrigation growth uplift")
		nutrients  = fs.Bool("nutrients", false, "apply nutrient management growth uplift")
		biochar    = fs.Bool("biochar", false, "apply biochar growth and soil uplift")

		species  stringList
		thinning stringList
	)
	fs.Var(&species, "species", "species mix entry as name:region:percent:density (repeatable)")
	fs.Var(&thinning, "thin", "thinning event as year:percent (repeatable)")

	if err := fs.Parse(args); err != nil {
		return err
	}

	store, err := loadStore(*coeffPath)
	if err != nil {
		return err
	}

	mix, err := parseMix(species)
	if err != nil {
		return err
	}
	events, err := parseThinning(thinning)
	if err != nil {
		return err
	}

	warnUnknownSpecies(stderr, store, mix)
	if *ecoregion != "" {
		if err := warnNonNative(stderr, *ecoregion, mix); err != nil {
			return err
		}
	}

	scenario := domain.Scenario{
		Name:            "cli",
		AreaHa:          *area,
		ProjectYears:    *years,
		AnnualMortality: *mortality,
		BufferFraction:  *buffer,
		Mix:             mix,
		Thinning:        events,
		Management: domain.Management{
			Irrigation: *irrigation,
			Nutrients:  *nutrients,
			Biochar:    *biochar,
		},
	}

	sim := core.NewSimulator(store, core.DefaultModelConfig())
	series, err := sim.Simulate(context.Background(), scenario)
	if err != nil {
		return err
	}
	summary := core.Summarize(series)

	if *export {
		if err := exportArtifacts(stderr, series, summary); err != nil {
			return err
		}
	}

	switch *output {
	case "json":
		return writeJSONOutput(stdout, series, summary)
	case "csv":
		return writeCSVOutput(stdout, series)
	case "table":
		return writeTableOutput(stdout, series, summary)
	default:
		return fmt.Errorf("unknown output format %q", *output)
	}
}

func loadStore(path string) (*allometry.Store, error) {
	if path == "" {
		return allometry.DefaultStore()
	}
	return allometry.LoadFile(path)
}

// parseMix decodes repeatable name:region:percent:density entries.
func parseMix(entries []string) ([]domain.SpeciesMixEntry, error) {
	if len(entries) == 0 {
		return []domain.SpeciesMixEntry{
			{Species: "Picea abies", Region: domain.RegionTemperate, Percent: 100, Density: 1100},
		}, nil
	}
	mix := make([]domain.SpeciesMixEntry, 0, len(entries))
	for _, raw := range entries {
		parts := strings.Split(raw, ":")
		if len(parts) != 4 {
			return nil, fmt.Errorf("invalid species entry %q (want name:region:percent:density)", raw)
		}
		region := domain.Region(strings.ToLower(strings.TrimSpace(parts[1])))
		if !region.Known() {
			return nil, fmt.Errorf("unknown region %q in species entry %q", parts[1], raw)
		}
		pct, err := strconv.ParseFloat(parts[2], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid percent in species entry %q: %w", raw, err)
		}
		density, err := strconv.ParseFloat(parts[3], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid density in species entry %q: %w", raw, err)
		}
		mix = append(mix, domain.SpeciesMixEntry{
			Species: strings.TrimSpace(parts[0]),
			Region:  region,
			Percent: pct,
			Density: density,
		})
	}
	return mix, nil
}

// parseThinning decodes repeatable year:percent entries.
func parseThinning(entries []string) ([]domain.ThinningEvent, error) {
	events := make([]domain.ThinningEvent, 0, len(entries))
	for _, raw := range entries {
		parts := strings.Split(raw, ":")
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid thinning entry %q (want year:percent)", raw)
		}
		year, err := strconv.Atoi(parts[0])
		if err != nil {
			return nil, fmt.Errorf("invalid year in thinning entry %q: %w", raw, err)
		}
		pct, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid percent in thinning entry %q: %w", raw, err)
		}
		events = append(events, domain.ThinningEvent{Year: year, PercentRemove: pct})
	}
	return events, nil
}

func warnUnknownSpecies(stderr io.Writer, store *allometry.Store, mix []domain.SpeciesMixEntry) {
	for _, entry := range mix {
		if store.Known(entry.Species) {
			continue
		}
		if hint := store.Suggest(entry.Species); hint != "" {
			fmt.Fprintf(stderr, "warning: no coefficients for %q, using generic equation (did you mean %q?)\n", entry.Species, hint)
		} else {
			fmt.Fprintf(stderr, "warning: no coefficients for %q, using generic equation\n", entry.Species)
		}
	}
}

func warnNonNative(stderr io.Writer, ecoregion string, mix []domain.SpeciesMixEntry) error {
	filter, err := allometry.DefaultNativeFilter()
	if err != nil {
		return err
	}
	known := false
	for _, eco := range filter.Ecoregions() {
		if eco == ecoregion {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("unknown ecoregion %q (known: %s)", ecoregion, strings.Join(filter.Ecoregions(), ", "))
	}
	for _, entry := range mix {
		if !filter.IsNative(ecoregion, entry.Species) {
			fmt.Fprintf(stderr, "warning: %q is not native to %s\n", entry.Species, ecoregion)
		}
	}
	return nil
}

// exportArtifacts stores the series as JSON and CSV in the blob store
// selected by the CARBONCORE_BLOB_* environment.
func exportArtifacts(stderr io.Writer, series []domain.YearlyResult, summary domain.RunSummary) error {
	ctx := context.Background()
	store, err := blob.Open(ctx)
	if err != nil {
		return fmt.Errorf("open blob store: %w", err)
	}

	stamp := time.Now().UTC().Format("20060102T150405Z")

	var jsonBuf bytes.Buffer
	if err := writeJSONOutput(&jsonBuf, series, summary); err != nil {
		return err
	}
	var csvBuf bytes.Buffer
	if err := writeCSVOutput(&csvBuf, series); err != nil {
		return err
	}

	artifacts := []struct {
		key         string
		contentType string
		payload     []byte
	}{
		{"cli/" + stamp + ".json", "application/json", jsonBuf.Bytes()},
		{"cli/" + stamp + ".csv", "text/csv", csvBuf.Bytes()},
	}
	for _, artifact := range artifacts {
		info, err := store.Put(ctx, artifact.key, bytes.NewReader(artifact.payload), blob.PutOptions{ContentType: artifact.contentType})
		if err != nil {
			return fmt.Errorf("store %s: %w", artifact.key, err)
		}
		fmt.Fprintf(stderr, "exported %s (%d bytes)\n", info.Key, info.Size)
	}
	return nil
}

func writeJSONOutput(w io.Writer, series []domain.YearlyResult, summary domain.RunSummary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{"series": series, "summary": summary})
}

func writeCSVOutput(w io.Writer, series []domain.YearlyResult) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()
	header := []string{"year", "trees_total", "biomass_t", "carbon_t", "co2e_gross_t", "soil_co2e_gross_t", "co2e_net_t", "co2e_buffer_t"}
	if err := writer.Write(header); err != nil {
		return err
	}
	for _, year := range series {
		row := []string{
			strconv.Itoa(year.Year),
			strconv.Itoa(year.Trees),
			formatFloat(year.BiomassT),
			formatFloat(year.CarbonT),
			formatFloat(year.GrossCO2eT),
			formatFloat(year.SoilCO2eT),
			formatFloat(year.NetCO2eT),
			formatFloat(year.BufferCO2eT),
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func writeTableOutput(w io.Writer, series []domain.YearlyResult, summary domain.RunSummary) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "YEAR\tTREES\tBIOMASS t\tCARBON t\tGROSS tCO2e\tSOIL tCO2e\tNET tCO2e\tBUFFER tCO2e")
	for _, year := range series {
		fmt.Fprintf(tw, "%d\t%d\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\n",
			year.Year, year.Trees, year.BiomassT, year.CarbonT, year.GrossCO2eT, year.SoilCO2eT, year.NetCO2eT, year.BufferCO2eT)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "\nfinal: %d trees, %.2f tCO2e net, %.2f tCO2e buffered\n",
		summary.FinalTrees, summary.NetCO2eT, summary.BufferHeldCO2eT)
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
