// Package locate answers position queries against the learned emitter
// aggregates, with the imported coarse-cell dataset as a fallback prior.
package locate

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/locator-project/locator/internal/aggregate"
	"github.com/locator-project/locator/internal/radio"
	"github.com/locator-project/locator/internal/store"
)

// ErrNoCoverage means nothing in the query resolved: no GNSS fix, no known
// emitter, no imported prior.
var ErrNoCoverage = errors.New("no coverage for the reported environment")

const (
	// GNSS fixes and fused estimates never claim better than this.
	minAccuracyM = 10

	// Emitter accuracies below a meter would blow up the inverse weighting.
	minEmitterAccuracyM = 1

	// Fraction of resolved emitters dropped as outliers when more than three
	// resolve.
	trimFraction = 0.10

	defaultCoarseCacheTTL = 10 * time.Minute
)

// Source records which path produced the estimate.
type Source string

const (
	SourceGNSS   Source = "gnss"
	SourceFused  Source = "fused"
	SourceCoarse Source = "coarse"
)

// Position is one location estimate. Accuracy is a radius in meters.
type Position struct {
	Lat      float64
	Lon      float64
	Accuracy float64
	Altitude *float64
	Source   Source
}

// Store is the read surface the engine needs.
type Store interface {
	GetWifi(ctx context.Context, q store.Querier, macs []string) (map[string]aggregate.Aggregate, error)
	GetBluetooth(ctx context.Context, q store.Querier, macs []string) (map[string]aggregate.Aggregate, error)
	GetCells(ctx context.Context, q store.Querier, keys []radio.CellKey) (map[radio.CellKey]aggregate.Aggregate, error)
	LookupCoarse(ctx context.Context, q store.Querier, keys []radio.CellKey) ([]store.CoarsePrior, error)
}

type Config struct {
	Logger *slog.Logger
	Store  Store
	DB     store.Querier

	// DefaultStrength substitutes for query emitters reported without a
	// signal measurement.
	DefaultStrength float64

	CoarseCacheTTL time.Duration
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.Store == nil {
		return errors.New("store is required")
	}
	if c.DefaultStrength == 0 {
		c.DefaultStrength = -90
	}
	if c.CoarseCacheTTL == 0 {
		c.CoarseCacheTTL = defaultCoarseCacheTTL
	}
	return nil
}

type Engine struct {
	log *slog.Logger
	cfg *Config

	// The imported dataset is static between out-of-band refreshes, so
	// priors are cached per cell key.
	coarseCache *ttlcache.Cache[radio.CellKey, store.CoarsePrior]
}

func New(cfg *Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		log: cfg.Logger,
		cfg: cfg,
		coarseCache: ttlcache.New(
			ttlcache.WithTTL[radio.CellKey, store.CoarsePrior](cfg.CoarseCacheTTL),
		),
	}, nil
}

// Locate resolves a query in priority order: a GNSS fix on the query wins
// outright, then fusion over known emitters, then the coarse-cell prior.
func (e *Engine) Locate(ctx context.Context, rep *radio.Report) (Position, error) {
	if pos, ok := gnssPosition(rep); ok {
		metricQueries.WithLabelValues(string(SourceGNSS)).Inc()
		return pos, nil
	}

	obs, err := rep.Emitters(e.cfg.DefaultStrength)
	if err != nil && !errors.Is(err, radio.ErrNoValidEmitters) {
		return Position{}, err
	}

	if pos, ok, err := e.fuse(ctx, obs); err != nil {
		return Position{}, err
	} else if ok {
		metricQueries.WithLabelValues(string(SourceFused)).Inc()
		return pos, nil
	}

	if pos, ok, err := e.coarse(ctx, obs); err != nil {
		return Position{}, err
	} else if ok {
		metricQueries.WithLabelValues(string(SourceCoarse)).Inc()
		return pos, nil
	}

	metricQueries.WithLabelValues("no_coverage").Inc()
	return Position{}, ErrNoCoverage
}

// gnssPosition passes a usable device fix straight through. Accuracy defaults
// to the floor when the device did not report one.
func gnssPosition(rep *radio.Report) (Position, bool) {
	g := rep.GNSS
	if g == nil {
		return Position{}, false
	}
	if g.Latitude < -90 || g.Latitude > 90 || g.Longitude < -180 || g.Longitude > 180 {
		return Position{}, false
	}
	acc := float64(minAccuracyM)
	if g.Accuracy != nil && *g.Accuracy > acc {
		acc = *g.Accuracy
	}
	return Position{
		Lat:      g.Latitude,
		Lon:      g.Longitude,
		Accuracy: acc,
		Altitude: g.Altitude,
		Source:   SourceGNSS,
	}, true
}

type resolved struct {
	agg    aggregate.Aggregate
	weight float64
	dist   float64
}

// fuse combines every emitter the aggregates know about into a weighted
// centroid. Each emitter counts by its signal strength and inversely by how
// spread out its own observations are.
func (e *Engine) fuse(ctx context.Context, obs []radio.Observation) (Position, bool, error) {
	var macsWifi, macsBT []string
	var cellKeys []radio.CellKey
	for _, o := range obs {
		switch o.Kind {
		case radio.KindWifi:
			macsWifi = append(macsWifi, o.MAC)
		case radio.KindBluetooth:
			macsBT = append(macsBT, o.MAC)
		case radio.KindCell:
			cellKeys = append(cellKeys, o.Cell)
		}
	}

	wifi, err := e.cfg.Store.GetWifi(ctx, e.cfg.DB, macsWifi)
	if err != nil {
		return Position{}, false, err
	}
	bluetooth, err := e.cfg.Store.GetBluetooth(ctx, e.cfg.DB, macsBT)
	if err != nil {
		return Position{}, false, err
	}
	cells, err := e.cfg.Store.GetCells(ctx, e.cfg.DB, cellKeys)
	if err != nil {
		return Position{}, false, err
	}

	var rs []resolved
	for _, o := range obs {
		var agg aggregate.Aggregate
		var ok bool
		switch o.Kind {
		case radio.KindWifi:
			agg, ok = wifi[o.MAC]
		case radio.KindBluetooth:
			agg, ok = bluetooth[o.MAC]
		case radio.KindCell:
			agg, ok = cells[o.Cell]
		}
		if !ok {
			continue
		}
		w := aggregate.Weight(o.Strength) / math.Max(agg.Accuracy, minEmitterAccuracyM)
		rs = append(rs, resolved{agg: agg, weight: w})
	}
	if len(rs) == 0 {
		return Position{}, false, nil
	}

	rs = trimOutliers(rs)
	lat, lon := centroid(rs)

	var sumW, sumWD2, maxAcc float64
	for _, r := range rs {
		d := aggregate.DistanceMeters(lat, lon, r.agg.Lat, r.agg.Lon)
		sumW += r.weight
		sumWD2 += r.weight * d * d
		if r.agg.Accuracy > maxAcc {
			maxAcc = r.agg.Accuracy
		}
	}
	acc := math.Sqrt(sumWD2 / sumW)
	if acc > maxAcc {
		acc = maxAcc
	}
	if acc < minAccuracyM {
		acc = minAccuracyM
	}

	return Position{Lat: lat, Lon: lon, Accuracy: acc, Source: SourceFused}, true, nil
}

// trimOutliers drops the farthest tenth of the resolved emitters from the
// initial centroid. Too few emitters and trimming would dominate the result,
// so three or fewer pass through untouched.
func trimOutliers(rs []resolved) []resolved {
	if len(rs) <= 3 {
		return rs
	}
	drop := int(float64(len(rs)) * trimFraction)
	if drop == 0 {
		return rs
	}
	lat, lon := centroid(rs)
	for i := range rs {
		rs[i].dist = aggregate.DistanceMeters(lat, lon, rs[i].agg.Lat, rs[i].agg.Lon)
	}
	sort.SliceStable(rs, func(i, j int) bool { return rs[i].dist < rs[j].dist })
	return rs[:len(rs)-drop]
}

func centroid(rs []resolved) (lat, lon float64) {
	var sumW float64
	for _, r := range rs {
		sumW += r.weight
		lat += r.weight * r.agg.Lat
		lon += r.weight * r.agg.Lon
	}
	return lat / sumW, lon / sumW
}

// coarse falls back to the imported dataset, preferring the tightest
// coverage radius among the query's cells.
func (e *Engine) coarse(ctx context.Context, obs []radio.Observation) (Position, bool, error) {
	var keys []radio.CellKey
	for _, o := range obs {
		if o.Kind == radio.KindCell {
			keys = append(keys, o.Cell)
		}
	}
	if len(keys) == 0 {
		return Position{}, false, nil
	}

	var priors []store.CoarsePrior
	var misses []radio.CellKey
	for _, k := range keys {
		if item := e.coarseCache.Get(k); item != nil {
			priors = append(priors, item.Value())
		} else {
			misses = append(misses, k)
		}
	}
	if len(misses) > 0 {
		fetched, err := e.cfg.Store.LookupCoarse(ctx, e.cfg.DB, misses)
		if err != nil {
			return Position{}, false, err
		}
		for _, p := range fetched {
			e.coarseCache.Set(p.Key, p, ttlcache.DefaultTTL)
			priors = append(priors, p)
		}
	}
	if len(priors) == 0 {
		return Position{}, false, nil
	}

	best := priors[0]
	for _, p := range priors[1:] {
		if p.Radius < best.Radius {
			best = p
		}
	}
	return Position{Lat: best.Lat, Lon: best.Lon, Accuracy: best.Radius, Source: SourceCoarse}, true, nil
}
