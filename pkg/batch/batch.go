// Package batch encodes many records into facet keys with bounded
// parallelism, for ingestion tooling that feeds a search index.
package batch

import (
	"context"
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/1F47E/go-geo-tiles/pkg/errors"
	"github.com/1F47E/go-geo-tiles/pkg/event"
	"github.com/1F47E/go-geo-tiles/pkg/logger"
	"github.com/1F47E/go-geo-tiles/pkg/mercator"
	"github.com/1F47E/go-geo-tiles/pkg/metrics"
	"github.com/1F47E/go-geo-tiles/pkg/models"
)

// Record is one item to index. A nil Location marks an item without
// coordinates; it is keyed with the sentinel tile.
type Record struct {
	models.Point `yaml:",inline"`
	Earliest     float64 `json:"earliest" yaml:"earliest"`
	Latest       float64 `json:"latest" yaml:"latest"`
}

// Keys are the facet keys of one record
type Keys struct {
	ID         string `json:"id" yaml:"id"`
	GeoTile    string `json:"geo_tile" yaml:"geo_tile"`
	ChronoTile string `json:"chrono_tile" yaml:"chrono_tile"`
	EventTile  string `json:"event_tile" yaml:"event_tile"`
}

// Encoder turns records into keys. Safe for concurrent use.
type Encoder struct {
	events       *event.Tiler
	workers      int
	strict       bool
	chronoPrefix string
	log          *zap.SugaredLogger
}

// Option configures an Encoder
type Option func(*Encoder)

// WithWorkers bounds the number of records encoded concurrently
func WithWorkers(n int) Option {
	return func(e *Encoder) { e.workers = n }
}

// WithStrict rejects out-of-range coordinates instead of clamping them
func WithStrict(strict bool) Option {
	return func(e *Encoder) { e.strict = strict }
}

// WithChronoPrefix roots every chrono key at a magnitude prefix such as "10k"
func WithChronoPrefix(prefix string) Option {
	return func(e *Encoder) { e.chronoPrefix = prefix }
}

// WithLogger sets the logger
func WithLogger(l *zap.SugaredLogger) Option {
	return func(e *Encoder) { e.log = l }
}

// NewEncoder creates an Encoder; a nil tiler means event.DefaultTiler
func NewEncoder(ev *event.Tiler, opts ...Option) *Encoder {
	if ev == nil {
		ev = event.DefaultTiler()
	}
	e := &Encoder{events: ev, workers: runtime.NumCPU()}
	for _, opt := range opts {
		opt(e)
	}
	if e.workers <= 0 {
		e.workers = runtime.NumCPU()
	}
	return e
}

// Encode encodes all records, preserving their order. The first failing
// record cancels the rest and its error is returned.
func (e *Encoder) Encode(ctx context.Context, records []Record) ([]Keys, error) {
	log := e.logger()
	out := make([]Keys, len(records))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	for i, r := range records {
		i, r := i, r
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			keys, err := e.EncodeOne(r)
			if err != nil {
				return errors.Wrapf(err, "record %q", r.ID)
			}
			out[i] = keys
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		log.Warnw("Batch encoding failed", logger.FieldRecords, len(records), logger.FieldError, err)
		return nil, err
	}

	log.Debugw("Batch encoded", logger.FieldRecords, len(records), logger.FieldWorkers, e.workers)
	return out, nil
}

// EncodeOne computes the geo, chrono and event keys of a record
func (e *Encoder) EncodeOne(r Record) (Keys, error) {
	ct := e.events.Chrono()
	chronoPath, err := ct.EncodePath(r.Latest, r.Earliest, e.chronoPrefix)
	if err != nil {
		metrics.EncodeErrors.WithLabelValues(metrics.KindChrono).Inc()
		return Keys{}, err
	}

	geoPath, err := e.geoPath(r.Location)
	if err != nil {
		metrics.EncodeErrors.WithLabelValues(metrics.KindGeo).Inc()
		return Keys{}, err
	}

	prefix, _, digits := ct.ParsePrefix(chronoPath)
	keys := Keys{
		ID:         r.ID,
		GeoTile:    geoPath,
		ChronoTile: chronoPath,
		EventTile:  event.Interleave(prefix, digits, geoPath),
	}

	metrics.KeysEncoded.WithLabelValues(metrics.KindGeo).Inc()
	metrics.KeysEncoded.WithLabelValues(metrics.KindChrono).Inc()
	metrics.KeysEncoded.WithLabelValues(metrics.KindEvent).Inc()
	return keys, nil
}

func (e *Encoder) geoPath(loc *models.Location) (string, error) {
	zoom := e.events.Zoom()
	if loc == nil {
		return mercator.SentinelPath(zoom), nil
	}
	if e.strict {
		if err := mercator.ValidateLatLon(loc.Lat, loc.Lon); err != nil {
			return "", err
		}
	}
	return e.events.Mercator().LatLonToQuadTree(loc.Lat, loc.Lon, zoom), nil
}

func (e *Encoder) logger() *zap.SugaredLogger {
	if e.log != nil {
		return e.log
	}
	return logger.ComponentLogger("batch")
}
