// Command pricecheck prices a saved cart, checkout or order payload offline and prints
// the summary every storefront surface would render for it.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-pricing/internal/obs"
	"github.com/noah-isme/toko-pricing/internal/pricing"
	"github.com/noah-isme/toko-pricing/internal/summary"
)

func main() {
	var (
		input  = flag.String("in", "-", "path to a JSON record, or - for stdin")
		strict = flag.Bool("strict", false, "exit non-zero when the totals do not reconcile")
		indent = flag.Bool("pretty", true, "indent the JSON output")
	)
	flag.Parse()

	logger := obs.NewLogger(os.Stderr, "console", "info")
	if err := run(*input, *strict, *indent, os.Stdin, os.Stdout, logger); err != nil {
		logger.Error().Err(err).Msg("pricecheck failed")
		os.Exit(1)
	}
}

func run(path string, strict, pretty bool, stdin io.Reader, stdout io.Writer, logger zerolog.Logger) error {
	src := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open record: %w", err)
		}
		defer f.Close()
		src = f
	}

	var raw pricing.Record
	dec := json.NewDecoder(src)
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return fmt.Errorf("decode record: %w", err)
	}

	out := summary.Build(raw)
	if residual := out.Totals.Residual(); !residual.IsZero() {
		logger.Warn().Str("residual", residual.String()).Msg("totals do not reconcile")
		if strict {
			return errors.New("totals do not reconcile")
		}
	}
	if out.Synthesized {
		logger.Info().Msg("discount line synthesized from header amount")
	}

	enc := json.NewEncoder(stdout)
	if pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(out)
}
