package app

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/arbengine/internal/config"
	"github.com/alanyoungcy/arbengine/internal/domain"
	"github.com/alanyoungcy/arbengine/internal/platform/paper"
	"github.com/alanyoungcy/arbengine/internal/platform/rest"
)

// runner is a background loop started alongside the engines.
type runner func(ctx context.Context) error

// venueInstruments groups the instruments the cycles trade by venue.
func venueInstruments(defs []domain.CycleDefinition) map[string][]domain.Instrument {
	out := map[string][]domain.Instrument{}
	seen := map[string]bool{}
	for _, def := range defs {
		for _, inst := range def.Instruments {
			if seen[inst.Key()] {
				continue
			}
			seen[inst.Key()] = true
			out[inst.Venue] = append(out[inst.Venue], inst)
		}
	}
	return out
}

func sortedVenues(byVenue map[string][]domain.Instrument) []string {
	names := make([]string, 0, len(byVenue))
	for name := range byVenue {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// buildVenues constructs one Exchange per venue the cycles reference. Live
// mode talks to the venues' REST APIs; paper mode simulates fills locally
// against real or mirrored market data.
func (a *App) buildVenues(defs []domain.CycleDefinition, deps *Dependencies) (domain.Venues, []runner, error) {
	byVenue := venueInstruments(defs)
	venues := make(domain.Venues, len(byVenue))
	var runners []runner

	for _, name := range sortedVenues(byVenue) {
		vc, ok := a.cfg.Venue(name)
		if !ok {
			vc = config.VenueConfig{Name: name}
		}
		switch strings.ToLower(a.cfg.Mode) {
		case "live":
			client, run, err := a.liveVenue(vc, byVenue[name], deps)
			if err != nil {
				return nil, nil, err
			}
			venues[name] = client
			if run != nil {
				runners = append(runners, run)
			}
		case "paper":
			ex, err := a.paperVenue(vc, deps)
			if err != nil {
				return nil, nil, err
			}
			venues[name] = ex
		default:
			return nil, nil, fmt.Errorf("app: mode %q does not trade", a.cfg.Mode)
		}
	}
	return venues, runners, nil
}

func (a *App) liveVenue(vc config.VenueConfig, insts []domain.Instrument, deps *Dependencies) (*rest.Client, runner, error) {
	secret, err := config.VenueSecret(vc)
	if err != nil {
		return nil, nil, fmt.Errorf("app: venue %s: %w", vc.Name, err)
	}
	client := rest.NewClient(rest.Config{
		Name:       vc.Name,
		BaseURL:    vc.BaseURL,
		APIKey:     vc.APIKey,
		APISecret:  secret,
		Timeout:    vc.Timeout.Duration,
		DepthLimit: vc.DepthLimit,
	}, deps.Metrics, a.logger)

	if vc.WSURL == "" {
		return client, nil, nil
	}
	stream := rest.NewDepthStream(vc.WSURL, insts, a.cfg.Engine.Staleness.Duration, a.logger)
	client.WithStream(stream)
	a.logger.Info("depth stream enabled",
		slog.String("venue", vc.Name),
		slog.Int("instruments", len(insts)),
	)
	return client, stream.Run, nil
}

func (a *App) paperVenue(vc config.VenueConfig, deps *Dependencies) (*paper.Exchange, error) {
	balances := make(domain.Balances, len(vc.PaperBalances))
	for cur, amt := range vc.PaperBalances {
		v, err := decimal.NewFromString(amt)
		if err != nil {
			return nil, fmt.Errorf("app: venue %s: paper balance %s: %w", vc.Name, cur, err)
		}
		balances[strings.ToUpper(cur)] = v
	}
	ex := paper.New(vc.Name, balances, a.logger)

	switch {
	case vc.BaseURL != "":
		// Public depth only; paper mode never sends signed requests.
		ex.WithDepthSource(rest.NewClient(rest.Config{
			Name:       vc.Name,
			BaseURL:    vc.BaseURL,
			Timeout:    vc.Timeout.Duration,
			DepthLimit: vc.DepthLimit,
		}, deps.Metrics, a.logger))
	case deps.Ladders != nil:
		ex.WithDepthSource(deps.Ladders)
	default:
		a.logger.Warn("paper venue has no market data source, its book stays empty",
			slog.String("venue", vc.Name))
	}
	return ex, nil
}
