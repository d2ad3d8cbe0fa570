package sentinel

import (
	"encoding/json"
	"time"

	"github.com/paulmach/orb/geojson"
)

const (
	DefaultCollection = "sentinel-2-l2a"
	DefaultSTACURL    = "https://earth-search.aws.element84.com/v1"

	// QABand is the cloud bitmask band name used throughout the pipeline.
	QABand = "QA60"
)

// SearchRequest is the body of a STAC item search.
type SearchRequest struct {
	Collections []string          `json:"collections"`
	Intersects  *geojson.Geometry `json:"intersects,omitempty"`
	Datetime    string            `json:"datetime"`
	Query       PropertyFilter    `json:"query,omitempty"`
	Limit       int               `json:"limit,omitempty"`
	Next        string            `json:"next,omitempty"`
}

// PropertyFilter is the STAC query extension, property name -> operator -> value.
type PropertyFilter map[string]map[string]interface{}

type Asset struct {
	Href  string `json:"href"`
	Type  string `json:"type,omitempty"`
	Title string `json:"title,omitempty"`
}

type Properties struct {
	Datetime           time.Time `json:"datetime"`
	CloudCover         *float64  `json:"eo:cloud_cover,omitempty"`
	ProcessingBaseline string    `json:"s2:processing_baseline,omitempty"`
	Platform           string    `json:"platform,omitempty"`
	MGRSTile           string    `json:"s2:mgrs_tile,omitempty"`
}

// Scene is one archive entry, a STAC item.
type Scene struct {
	ID         string            `json:"id"`
	Collection string            `json:"collection"`
	Geometry   *geojson.Geometry `json:"geometry"`
	Properties *Properties       `json:"properties"`
	Assets     map[string]Asset  `json:"assets"`
}

type Link struct {
	Rel    string          `json:"rel"`
	Href   string          `json:"href"`
	Method string          `json:"method,omitempty"`
	Body   json.RawMessage `json:"body,omitempty"`
	Merge  bool            `json:"merge,omitempty"`
}

type Response struct {
	Type     string   `json:"type"`
	Features []*Scene `json:"features"`
	Links    []*Link  `json:"links"`
}

func (r *Response) next() *Link {
	for _, l := range r.Links {
		if l.Rel == "next" {
			return l
		}
	}
	return nil
}
