package main

import (
	"github.com/spf13/cobra"

	"github.com/1F47E/go-geo-tiles/pkg/errors"
	"github.com/1F47E/go-geo-tiles/pkg/event"
	"github.com/1F47E/go-geo-tiles/pkg/isoyear"
	"github.com/1F47E/go-geo-tiles/pkg/mercator"
	"github.com/1F47E/go-geo-tiles/pkg/models"
)

type pathOutput struct {
	Path string `json:"path" yaml:"path"`
}

type intervalOutput struct {
	Path        string  `json:"path" yaml:"path"`
	Earliest    float64 `json:"earliest" yaml:"earliest"`
	Latest      float64 `json:"latest" yaml:"latest"`
	EarliestISO string  `json:"earliest_iso" yaml:"earliest_iso"`
	LatestISO   string  `json:"latest_iso" yaml:"latest_iso"`
}

type tileOutput struct {
	Path    string             `json:"path" yaml:"path"`
	Zoom    int                `json:"zoom" yaml:"zoom"`
	Box     models.BoundingBox `json:"box" yaml:"box"`
	Polygon [][2]float64       `json:"polygon" yaml:"polygon"`
}

type yearOutput struct {
	Year  float64 `json:"year" yaml:"year"`
	ISO   string  `json:"iso" yaml:"iso"`
	Label string  `json:"label" yaml:"label"`
}

func (a *app) chronoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chrono",
		Short: "Encode and decode chrono tiles",
	}

	var earliest, latest float64
	var prefix string
	encodeCmd := &cobra.Command{
		Use:   "encode",
		Short: "Encode a year interval into a chrono path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := a.cfg.ChronoTiler().EncodePath(latest, earliest, prefix)
			if err != nil {
				return err
			}
			return a.print(cmd, pathOutput{Path: path})
		},
	}
	encodeCmd.Flags().Float64VarP(&earliest, "earliest", "e", 0, "Earliest year (astronomical, BCE negative)")
	encodeCmd.Flags().Float64VarP(&latest, "latest", "l", 0, "Latest year (astronomical, BCE negative)")
	encodeCmd.Flags().StringVarP(&prefix, "prefix", "p", "", "Magnitude prefix such as 10k")

	decodeCmd := &cobra.Command{
		Use:   "decode <path>",
		Short: "Decode a chrono path into its year bracket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tiler := a.cfg.ChronoTiler()
			lo, hi, err := tiler.DecodePath(args[0])
			if err != nil {
				return err
			}
			loISO, hiISO, err := tiler.DecodeISO(args[0])
			if err != nil {
				return err
			}
			return a.print(cmd, intervalOutput{
				Path:        args[0],
				Earliest:    lo,
				Latest:      hi,
				EarliestISO: loISO,
				LatestISO:   hiISO,
			})
		},
	}

	cmd.AddCommand(encodeCmd, decodeCmd)
	return cmd
}

func (a *app) geoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "geo",
		Short: "Encode and decode mercator quadtree tiles",
	}

	var lat, lon float64
	var zoom int
	var strict bool
	encodeCmd := &cobra.Command{
		Use:   "encode",
		Short: "Encode a coordinate into a quadtree path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("zoom") {
				zoom = a.cfg.EventZoom()
			}
			if strict || a.cfg.Geo.Strict {
				if err := mercator.ValidateLatLon(lat, lon); err != nil {
					return err
				}
			}
			return a.print(cmd, pathOutput{Path: mercator.New().LatLonToQuadTree(lat, lon, zoom)})
		},
	}
	encodeCmd.Flags().Float64Var(&lat, "lat", 0, "Latitude")
	encodeCmd.Flags().Float64Var(&lon, "lon", 0, "Longitude")
	encodeCmd.Flags().IntVarP(&zoom, "zoom", "z", event.DefaultZoom, "Zoom level")
	encodeCmd.Flags().BoolVar(&strict, "strict", false, "Reject out-of-range coordinates instead of clamping")

	decodeCmd := &cobra.Command{
		Use:   "decode <path>",
		Short: "Decode a quadtree path into its bounding box",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			box, err := mercator.New().QuadTreeToLatLon(args[0])
			if err != nil {
				return err
			}
			return a.print(cmd, tileOutput{
				Path:    args[0],
				Zoom:    len(args[0]),
				Box:     box,
				Polygon: box.Ring(),
			})
		},
	}

	cmd.AddCommand(encodeCmd, decodeCmd)
	return cmd
}

func (a *app) eventCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "event",
		Short: "Encode, decode and coarsen event tiles",
	}

	var lat, lon, earliest, latest float64
	var prefix string
	encodeCmd := &cobra.Command{
		Use:   "encode",
		Short: "Encode a coordinate and year interval into an event path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := a.cfg.EventTiler().Encode(lat, lon, latest, earliest, prefix)
			if err != nil {
				return err
			}
			return a.print(cmd, pathOutput{Path: path})
		},
	}
	encodeCmd.Flags().Float64Var(&lat, "lat", 0, "Latitude")
	encodeCmd.Flags().Float64Var(&lon, "lon", 0, "Longitude")
	encodeCmd.Flags().Float64VarP(&earliest, "earliest", "e", 0, "Earliest year")
	encodeCmd.Flags().Float64VarP(&latest, "latest", "l", 0, "Latest year")
	encodeCmd.Flags().StringVarP(&prefix, "prefix", "p", "", "Chrono magnitude prefix such as 10k")

	decodeCmd := &cobra.Command{
		Use:   "decode <path>",
		Short: "Split an event path into its chrono and geo parts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			decoded, err := a.cfg.EventTiler().Decode(args[0])
			if err != nil {
				return err
			}
			return a.print(cmd, decoded)
		},
	}

	var levels int
	reduceCmd := &cobra.Command{
		Use:   "reduce <path>",
		Short: "Keep the first N levels of an event path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := event.ReducePrecision(args[0], levels)
			if err != nil {
				return err
			}
			return a.print(cmd, pathOutput{Path: path})
		},
	}
	reduceCmd.Flags().IntVarP(&levels, "levels", "n", 1, "Number of levels to keep")

	cmd.AddCommand(encodeCmd, decodeCmd, reduceCmd)
	return cmd
}

func (a *app) isoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "iso",
		Short: "Convert between year numbers and ISO 8601 years",
	}

	var year float64
	toCmd := &cobra.Command{
		Use:   "to",
		Short: "Format a year number as an ISO 8601 year",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			iso, err := isoyear.YearToISO(year)
			if err != nil {
				return err
			}
			return a.print(cmd, yearOutput{Year: year, ISO: iso, Label: isoyear.Label(year)})
		},
	}
	toCmd.Flags().Float64VarP(&year, "year", "y", 1, "Astronomical year (0 = 1 BCE)")

	fromCmd := &cobra.Command{
		Use:   "from <iso>",
		Short: "Parse the year of an ISO 8601 date",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			y, err := isoyear.ISOToYear(args[0])
			if err != nil {
				return errors.WithHint(err, "negative years need a -- separator: geotile iso from -- -0043")
			}
			return a.print(cmd, yearOutput{Year: y, ISO: args[0], Label: isoyear.Label(y)})
		},
	}

	cmd.AddCommand(toCmd, fromCmd)
	return cmd
}
