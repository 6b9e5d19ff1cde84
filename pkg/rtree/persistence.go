package rtree

import (
	"encoding/gob"
	"os"

	"github.com/1F47E/go-geo-tiles/pkg/aggregate"
	"github.com/1F47E/go-geo-tiles/pkg/errors"
)

// IndexData represents the serializable form of the region index
type IndexData struct {
	Regions []aggregate.Region `json:"regions"`
	Count   int64              `json:"count"`
}

// SaveToFile saves the indexed regions to a binary file
func (g *RegionIndex) SaveToFile(filename string) error {
	data := IndexData{
		Regions: g.Regions(),
		Count:   g.Count(),
	}

	file, err := os.Create(filename)
	if err != nil {
		return errors.Wrap(err, "failed to create file")
	}
	defer file.Close()

	if err := gob.NewEncoder(file).Encode(data); err != nil {
		return errors.Wrap(err, "failed to encode regions")
	}
	return nil
}

// LoadFromFile replaces the index content with the regions stored in filename
func (g *RegionIndex) LoadFromFile(filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return errors.Wrap(err, "failed to open file")
	}
	defer file.Close()

	var data IndexData
	if err := gob.NewDecoder(file).Decode(&data); err != nil {
		return errors.Wrap(err, "failed to decode regions")
	}

	// Clear existing index and rebuild
	g.Clear()
	if err := g.IndexRegions(data.Regions); err != nil {
		return errors.Wrap(err, "failed to index regions")
	}
	return nil
}
