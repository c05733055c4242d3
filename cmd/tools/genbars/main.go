// genbars writes a deterministic synthetic bar history into a bar-log
// file, giving replay runs a reproducible input.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/titisda/trading-algorithum/internal/barlog"
	"github.com/titisda/trading-algorithum/internal/schema"
	"github.com/titisda/trading-algorithum/internal/source"
)

func main() {
	out := flag.String("out", "bars.log", "Output bar-log path")
	securityID := flag.Uint("security-id", 1, "Security ID stamped on every record")
	kindName := flag.String("kind", "tradebar", "Record kind: tradebar or quotebar")
	resolutionName := flag.String("resolution", "minute", "Bar resolution")
	startArg := flag.String("start", "", "Window start, RFC 3339, exchange-local")
	endArg := flag.String("end", "", "Window end, RFC 3339, exchange-local")
	priceScale := flag.Int("price-scale", 2, "Decimal places for price inputs")
	quantityScale := flag.Int("quantity-scale", 0, "Decimal places for size inputs")
	basePrice := flag.String("base-price", "100.00", "Base price, decimal")
	amplitude := flag.String("amplitude", "0.50", "Walk amplitude, decimal")
	spread := flag.String("spread", "0.02", "Quote spread, decimal")
	baseSize := flag.String("base-size", "100", "Bar volume, decimal")
	flag.Parse()

	if err := run(genSpec{
		out:           *out,
		securityID:    schema.SecurityID(*securityID),
		kindName:      *kindName,
		resolution:    *resolutionName,
		start:         *startArg,
		end:           *endArg,
		priceScale:    *priceScale,
		quantityScale: *quantityScale,
		basePrice:     *basePrice,
		amplitude:     *amplitude,
		spread:        *spread,
		baseSize:      *baseSize,
	}); err != nil {
		log.Fatalf("genbars failed: %v", err)
	}
}

type genSpec struct {
	out           string
	securityID    schema.SecurityID
	kindName      string
	resolution    string
	start, end    string
	priceScale    int
	quantityScale int
	basePrice     string
	amplitude     string
	spread        string
	baseSize      string
}

func run(spec genSpec) error {
	kind, err := schema.ParseRecordKind(spec.kindName)
	if err != nil {
		return err
	}
	resolution, err := schema.ParseResolution(spec.resolution)
	if err != nil {
		return err
	}
	start, err := time.Parse(time.RFC3339, spec.start)
	if err != nil {
		return fmt.Errorf("invalid start: %w", err)
	}
	end, err := time.Parse(time.RFC3339, spec.end)
	if err != nil {
		return fmt.Errorf("invalid end: %w", err)
	}

	base, err := schema.ParsePrice(spec.basePrice, spec.priceScale)
	if err != nil {
		return fmt.Errorf("invalid base price: %w", err)
	}
	amp, err := schema.ParsePrice(spec.amplitude, spec.priceScale)
	if err != nil {
		return fmt.Errorf("invalid amplitude: %w", err)
	}
	sprd, err := schema.ParsePrice(spec.spread, spec.priceScale)
	if err != nil {
		return fmt.Errorf("invalid spread: %w", err)
	}
	size, err := schema.ParseQuantity(spec.baseSize, spec.quantityScale)
	if err != nil {
		return fmt.Errorf("invalid base size: %w", err)
	}

	gen, err := source.NewGenerator(source.GeneratorConfig{
		SecurityID: spec.securityID,
		Kind:       kind,
		Resolution: resolution,
		Start:      start.UTC(),
		End:        end.UTC(),
		BasePrice:  base,
		Amplitude:  amp,
		Spread:     sprd,
		BaseSize:   size,
	})
	if err != nil {
		return err
	}

	file, err := os.Create(spec.out)
	if err != nil {
		return err
	}
	w := barlog.NewWriter(file)

	count := 0
	for {
		rec, err := gen.Next()
		if err != nil {
			break
		}
		if err := w.Write(rec); err != nil {
			file.Close()
			return err
		}
		count++
	}
	if err := w.Close(); err != nil {
		return err
	}

	fmt.Printf("wrote %d records to %s\n", count, spec.out)
	return nil
}
