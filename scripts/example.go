package main

import (
	"context"
	"fmt"
	"log"

	"github.com/1F47E/go-geo-tiles/pkg/aggregate"
	"github.com/1F47E/go-geo-tiles/pkg/batch"
	"github.com/1F47E/go-geo-tiles/pkg/event"
	"github.com/1F47E/go-geo-tiles/pkg/isoyear"
	"github.com/1F47E/go-geo-tiles/pkg/mercator"
	"github.com/1F47E/go-geo-tiles/pkg/models"
	"github.com/1F47E/go-geo-tiles/pkg/rtree"
)

func record(id string, lat, lon, earliest, latest float64) batch.Record {
	return batch.Record{
		Point:    models.Point{ID: id, Location: &models.Location{Lat: lat, Lon: lon}},
		Earliest: earliest,
		Latest:   latest,
	}
}

func main() {
	// Sites with the years they were occupied (astronomical, 0 = 1 BCE)
	sites := []batch.Record{
		record("ROME", 41.8902, 12.4922, -752, 476),
		record("POMPEII", 40.7489, 14.4848, -600, 79),
		record("OSTIA", 41.7558, 12.2915, -620, 500),
		record("ATHENS", 37.9715, 23.7257, -3000, 2024),
		record("KNOSSOS", 35.2980, 25.1631, -7000, -1100),
		record("GIZA", 29.9792, 31.1342, -2600, -2500),
		record("PETRA", 30.3285, 35.4444, -312, 663),
		record("TROY", 39.9575, 26.2389, -3000, 500),
		{Point: models.Point{ID: "UNPROVENANCED"}, Earliest: -500, Latest: -300},
	}

	encoder := batch.NewEncoder(event.DefaultTiler())
	keys, err := encoder.Encode(context.Background(), sites)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println("=== Facet keys ===")
	for i, k := range keys {
		fmt.Printf("  %-14s %s..%s\n", k.ID,
			isoyear.MustYearToISO(sites[i].Earliest), isoyear.MustYearToISO(sites[i].Latest))
		fmt.Printf("    geo    %s\n    chrono %s\n    event  %s\n", k.GeoTile, k.ChronoTile, k.EventTile)
	}

	// Pretend the search backend returned one bucket per site
	geoFacets := make([]aggregate.Facet, 0, len(keys))
	chronoFacets := make([]aggregate.Facet, 0, len(keys))
	for _, k := range keys {
		geoFacets = append(geoFacets, aggregate.Facet{Path: k.GeoTile, Count: 1, ChronoPath: k.ChronoTile})
		chronoFacets = append(chronoFacets, aggregate.Facet{Path: k.ChronoTile, Count: 1})
	}

	agg := aggregate.New()
	result := agg.Aggregate(geoFacets, 0)
	fmt.Printf("\n=== %d regions at depth %d (scope %q, %d skipped) ===\n",
		len(result.Regions), result.Depth, result.Scope, result.Skipped)
	for _, r := range result.Regions {
		fmt.Printf("  %s %-22s count=%d path=%s\n", r.ID, r.Label, r.Count, r.Path)
	}

	periods := agg.AggregateChrono(chronoFacets, 0)
	fmt.Printf("\n=== %d periods at depth %d ===\n", len(periods.Regions), periods.Depth)
	for _, r := range periods.Regions {
		fmt.Printf("  %s count=%d %s..%s\n", r.Label, r.Count,
			isoyear.Label(r.Dates.Earliest), isoyear.Label(r.Dates.Latest))
	}

	index := rtree.NewRegionIndex()
	if err := index.IndexRegions(result.Regions); err != nil {
		log.Fatal(err)
	}

	fmt.Println("\n=== Regions within 300km of Naples ===")
	naples := models.Location{Lat: 40.8518, Lon: 14.2681}
	near, err := index.QueryRadius(naples, 300)
	if err != nil {
		log.Fatal(err)
	}
	for _, r := range near {
		c := r.Box.Center()
		fmt.Printf("  %s: %.1f km to centre\n", r.ID,
			mercator.Distance(naples.Lat, naples.Lon, c.Lat, c.Lon)/1000)
	}

	fmt.Println("\n=== Saving Index ===")
	if err := index.SaveToFile("regions.gob"); err != nil {
		log.Fatal(err)
	}
	reloaded := rtree.NewRegionIndex()
	if err := reloaded.LoadFromFile("regions.gob"); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Loaded index with %d regions\n", reloaded.Count())
}
