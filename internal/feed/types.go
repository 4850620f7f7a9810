package feed

import "encoding/json"

// Document is the USGS GeoJSON summary feed shape, reduced to the fields the
// pipeline consumes. A document with no features is a valid empty window.
type Document struct {
	Features []Feature `json:"features"`
}

type Feature struct {
	Properties Properties `json:"properties"`
	Geometry   Geometry   `json:"geometry"`
}

// Properties carries the per-event payload. Mag and Depth stay json.Number so
// the dedup key can reuse the feed's exact textual form ("5.0" must not become
// "5"); a JSON null leaves them empty.
type Properties struct {
	Alert   string      `json:"alert"`
	Place   string      `json:"place"`
	Mag     json.Number `json:"mag"`
	URL     string      `json:"url"`
	Time    int64       `json:"time"`
	Tsunami int         `json:"tsunami"`
	Depth   json.Number `json:"depth"`
	Sig     int         `json:"sig"`
	Code    string      `json:"code"`
}

// Geometry holds [longitude, latitude, ...]; trailing members are ignored.
type Geometry struct {
	Coordinates []float64 `json:"coordinates"`
}

// Lon returns the longitude, or 0 when coordinates are absent.
func (g Geometry) Lon() float64 {
	if len(g.Coordinates) > 0 {
		return g.Coordinates[0]
	}
	return 0
}

// Lat returns the latitude, or 0 when coordinates are absent.
func (g Geometry) Lat() float64 {
	if len(g.Coordinates) > 1 {
		return g.Coordinates[1]
	}
	return 0
}
