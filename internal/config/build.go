package config

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// Build resolves every configured cycle against cat and validates its
// shape. All problems are reported together; cycle-shape failures wrap
// domain.ErrInvalidCycle.
func Build(cfg *Config, cat Catalog) ([]domain.CycleDefinition, error) {
	defs := make([]domain.CycleDefinition, 0, len(cfg.Cycles))
	var errs []error
	for _, cy := range cfg.Cycles {
		def, err := buildCycle(cy, cat)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		defs = append(defs, def)
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("config: build cycles: %w", errors.Join(errs...))
	}
	return defs, nil
}

func buildCycle(cy CycleConfig, cat Catalog) (domain.CycleDefinition, error) {
	def := domain.CycleDefinition{
		Name: cy.Name,
		Kind: domain.CycleKind(cy.Kind),
	}
	for _, key := range cy.Instruments {
		inst, err := cat.Lookup(key)
		if err != nil {
			return def, fmt.Errorf("cycle %s: %w", cy.Name, err)
		}
		def.Instruments = append(def.Instruments, inst)
	}

	if len(cy.Directions) == 0 {
		def.Directions = domain.DirectionsFor(def.Kind)
	}
	for _, d := range cy.Directions {
		def.Directions = append(def.Directions, domain.Direction(d))
	}

	var err error
	if def.MinQuantity, err = optionalDecimal(cy.MinQuantity); err != nil {
		return def, fmt.Errorf("cycle %s: min_quantity: %w", cy.Name, err)
	}
	if def.MaxQuantity, err = optionalDecimal(cy.MaxQuantity); err != nil {
		return def, fmt.Errorf("cycle %s: max_quantity: %w", cy.Name, err)
	}

	if err := def.Validate(); err != nil {
		return def, err
	}
	return def, nil
}

func optionalDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}
