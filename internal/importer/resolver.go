package importer

import (
	"context"

	"powietrze-import/internal/models"
)

// StationStore and IndicatorStore are the storage calls the resolver needs;
// the postgres repositories satisfy them.
type StationStore interface {
	FindOrCreate(ctx context.Context, code string) (*models.Station, error)
}

type IndicatorStore interface {
	FindOrCreate(ctx context.Context, name, unit string) (*models.Indicator, error)
}

type indicatorKey struct {
	name string
	unit string
}

// Resolver maps natural keys to surrogate ids. The first lookup of a key hits
// storage with a find-or-create; later lookups within the same run are served
// from the cache. The cache is never invalidated during a run since Station
// and Indicator rows are append-only dictionaries.
type Resolver struct {
	stations   StationStore
	indicators IndicatorStore

	stationCache   map[string]uint
	indicatorCache map[indicatorKey]uint
}

func NewResolver(stations StationStore, indicators IndicatorStore) *Resolver {
	return &Resolver{
		stations:       stations,
		indicators:     indicators,
		stationCache:   make(map[string]uint),
		indicatorCache: make(map[indicatorKey]uint),
	}
}

func (r *Resolver) ResolveStation(ctx context.Context, code string) (uint, error) {
	if id, ok := r.stationCache[code]; ok {
		return id, nil
	}

	station, err := r.stations.FindOrCreate(ctx, code)
	if err != nil {
		return 0, err
	}

	r.stationCache[code] = station.ID
	return station.ID, nil
}

func (r *Resolver) ResolveIndicator(ctx context.Context, name, unit string) (uint, error) {
	key := indicatorKey{name: name, unit: unit}
	if id, ok := r.indicatorCache[key]; ok {
		return id, nil
	}

	indicator, err := r.indicators.FindOrCreate(ctx, name, unit)
	if err != nil {
		return 0, err
	}

	r.indicatorCache[key] = indicator.ID
	return indicator.ID, nil
}
