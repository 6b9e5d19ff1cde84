package main

import (
	"github.com/spf13/cobra"

	"github.com/1F47E/go-geo-tiles/pkg/aggregate"
	"github.com/1F47E/go-geo-tiles/pkg/batch"
	"github.com/1F47E/go-geo-tiles/pkg/errors"
	"github.com/1F47E/go-geo-tiles/pkg/logger"
	"github.com/1F47E/go-geo-tiles/pkg/models"
	"github.com/1F47E/go-geo-tiles/pkg/rtree"
)

const (
	modeGeo    = "geo"
	modeEvent  = "event"
	modeChrono = "chrono"
)

func (a *app) aggregateCmd() *cobra.Command {
	var (
		input     string
		depth     int
		mode      string
		saveIndex string
	)

	cmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Cluster facet counts into regions",
		Long: `Read a list of {path, count} facets (JSON or YAML, stdin by default) and
group them into regions. A depth of 0 picks the display depth automatically.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log := logger.ComponentLogger("cli")

			data, err := readInput(cmd, input)
			if err != nil {
				return err
			}
			var facets []aggregate.Facet
			if err := decodeInput(data, &facets); err != nil {
				return err
			}

			agg := aggregate.New(a.cfg.AggregateOptions()...)
			var result aggregate.Result
			switch mode {
			case modeGeo:
				result = agg.Aggregate(facets, depth)
			case modeEvent:
				result = agg.AggregateEvents(facets, depth)
			case modeChrono:
				result = agg.AggregateChrono(facets, depth)
			default:
				return errors.WithHint(errors.Newf("unknown mode %q", mode), "use --mode geo, event or chrono")
			}

			if saveIndex != "" {
				index := rtree.NewRegionIndex()
				if err := index.IndexRegions(result.Regions); err != nil {
					return err
				}
				if err := index.SaveToFile(saveIndex); err != nil {
					return err
				}
				log.Infow("Region index saved", logger.FieldFile, saveIndex, logger.FieldCount, index.Count())
			}
			return a.print(cmd, result)
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "", "Facet file (default stdin)")
	cmd.Flags().IntVarP(&depth, "depth", "d", 0, "Display depth, 0 for automatic")
	cmd.Flags().StringVarP(&mode, "mode", "m", modeGeo, "Key kind: geo, event or chrono")
	cmd.Flags().StringVar(&saveIndex, "save-index", "", "Also write the regions to an R-Tree index file")
	return cmd
}

func (a *app) indexCmd() *cobra.Command {
	var (
		input   string
		strict  bool
		workers int
	)

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Compute geo, chrono and event keys for a list of records",
		Long: `Read records with id, location {lat, lon}, earliest and latest (JSON or
YAML, stdin by default) and print the facet keys of each one in input order.
Records without a location get the sentinel tile.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := readInput(cmd, input)
			if err != nil {
				return err
			}
			var records []batch.Record
			if err := decodeInput(data, &records); err != nil {
				return err
			}

			opts := a.cfg.BatchOptions()
			if cmd.Flags().Changed("strict") {
				opts = append(opts, batch.WithStrict(strict))
			}
			if cmd.Flags().Changed("workers") {
				opts = append(opts, batch.WithWorkers(workers))
			}
			opts = append(opts, batch.WithLogger(logger.ComponentLogger("batch")))

			keys, err := batch.NewEncoder(a.cfg.EventTiler(), opts...).Encode(cmd.Context(), records)
			if err != nil {
				return err
			}
			return a.print(cmd, keys)
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "", "Record file (default stdin)")
	cmd.Flags().BoolVar(&strict, "strict", false, "Reject out-of-range coordinates")
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "Concurrent encoders (default from config)")
	return cmd
}

func (a *app) regionsCmd() *cobra.Command {
	var indexFile string

	cmd := &cobra.Command{
		Use:   "regions",
		Short: "Query a saved region index",
	}
	cmd.PersistentFlags().StringVarP(&indexFile, "index", "x", "data/regions.gob", "Index file path")

	load := func() (*rtree.RegionIndex, error) {
		index := rtree.NewRegionIndex()
		if err := index.LoadFromFile(indexFile); err != nil {
			return nil, errors.WithHint(err, "build one with: geotile aggregate --save-index <file>")
		}
		logger.ComponentLogger("cli").Debugw("Region index loaded", logger.FieldFile, indexFile, logger.FieldCount, index.Count())
		return index, nil
	}

	var south, west, north, east float64
	boxCmd := &cobra.Command{
		Use:   "box",
		Short: "Regions intersecting a bounding box",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			index, err := load()
			if err != nil {
				return err
			}
			regions, err := index.QueryBox(models.NewBoundingBox(south, west, north, east))
			if err != nil {
				return err
			}
			return a.print(cmd, regions)
		},
	}
	boxCmd.Flags().Float64Var(&south, "min-lat", 0, "South edge")
	boxCmd.Flags().Float64Var(&west, "min-lon", 0, "West edge")
	boxCmd.Flags().Float64Var(&north, "max-lat", 0, "North edge")
	boxCmd.Flags().Float64Var(&east, "max-lon", 0, "East edge")

	var lat, lon, radius float64
	radiusCmd := &cobra.Command{
		Use:   "radius",
		Short: "Regions within a distance of a point",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			index, err := load()
			if err != nil {
				return err
			}
			regions, err := index.QueryRadius(models.Location{Lat: lat, Lon: lon}, radius)
			if err != nil {
				return err
			}
			return a.print(cmd, regions)
		},
	}
	radiusCmd.Flags().Float64Var(&lat, "lat", 0, "Center latitude")
	radiusCmd.Flags().Float64Var(&lon, "lon", 0, "Center longitude")
	radiusCmd.Flags().Float64VarP(&radius, "radius", "r", 10, "Radius in km")

	var k int
	nearestCmd := &cobra.Command{
		Use:   "nearest",
		Short: "The k regions closest to a point",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			index, err := load()
			if err != nil {
				return err
			}
			return a.print(cmd, index.NearestNeighbors(models.Location{Lat: lat, Lon: lon}, k))
		},
	}
	nearestCmd.Flags().Float64Var(&lat, "lat", 0, "Center latitude")
	nearestCmd.Flags().Float64Var(&lon, "lon", 0, "Center longitude")
	nearestCmd.Flags().IntVar(&k, "k", 10, "Number of regions")

	cmd.AddCommand(boxCmd, radiusCmd, nearestCmd)
	return cmd
}
