package sentinel

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	log "github.com/sirupsen/logrus"

	"mangrove-composite/raster"
)

// SCLBand is the scene classification layer, used as cloud source when a catalog has no QA60 asset.
const SCLBand = "SCL"

// DefaultAssets maps pipeline band names to the asset keys of the default catalog.
var DefaultAssets = map[string]string{
	"B2":    "blue",
	"B3":    "green",
	"B4":    "red",
	"B8":    "nir",
	"B11":   "swir16",
	"B12":   "swir22",
	QABand:  "qa60",
	SCLBand: "scl",
}

// BandReader reads one raster asset warped onto a grid. Nodata pixels are NaN.
type BandReader interface {
	ReadBand(ctx context.Context, href string, g raster.Grid) ([]float64, error)
}

func newHTTP(retryMax int) *retryablehttp.Client {
	client := retryablehttp.NewClient()
	client.RetryMax = retryMax
	client.HTTPClient.Timeout = 60 * time.Second
	client.Logger = nil
	if log.GetLevel() >= log.DebugLevel {
		client.Logger = log.StandardLogger()
	}
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler
	return client
}

// Client searches a STAC catalog and loads scene bands through a BandReader.
type Client struct {
	BaseURL    string
	Collection string
	HTTP       *retryablehttp.Client
	Reader     BandReader

	// Assets maps band names to asset keys. Missing entries fall back to DefaultAssets.
	Assets map[string]string

	// QASource is QABand or SCLBand.
	QASource string

	PageLimit int
}

func New(baseURL string, retryMax int, reader BandReader) *Client {
	return &Client{
		BaseURL:    baseURL,
		Collection: DefaultCollection,
		HTTP:       newHTTP(retryMax),
		Reader:     reader,
		Assets:     map[string]string{},
		QASource:   QABand,
		PageLimit:  100,
	}
}

// WithHTTPClient swaps the transport client, mostly for tests.
func (c *Client) WithHTTPClient(h *http.Client) *Client {
	c.HTTP.HTTPClient = h
	return c
}

func (c *Client) assetKey(band string) string {
	if k, ok := c.Assets[band]; ok {
		return k
	}
	if k, ok := DefaultAssets[band]; ok {
		return k
	}
	return band
}

// Find runs the query against the catalog and re-applies it locally.
func (c *Client) Find(ctx context.Context, q *Query) ([]*Scene, error) {
	if q.Collection == "" {
		q.Collection = c.Collection
	}
	scenes, err := c.Search(ctx, q.SearchRequest(c.PageLimit))
	if err != nil {
		return nil, err
	}
	var out []*Scene
	for _, s := range scenes {
		if q.Matches(s) {
			out = append(out, s)
		} else {
			log.Debugf("Dropping scene %q not matching query", s.ID)
		}
	}
	return out, nil
}

// Load reads the requested bands of a scene onto the grid.
func (c *Client) Load(ctx context.Context, s *Scene, g raster.Grid, bands []string) (*raster.Image, error) {
	if c.Reader == nil {
		return nil, fmt.Errorf("no band reader configured")
	}
	img := &raster.Image{Grid: g}
	for _, name := range bands {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		src := name
		if name == QABand && c.QASource == SCLBand {
			src = SCLBand
		}
		key := c.assetKey(src)
		a, ok := s.Assets[key]
		if !ok && src == QABand {
			// Catalogs without a QA60 asset still carry the scene classification.
			if sa, found := s.Assets[c.assetKey(SCLBand)]; found {
				log.Debugf("Scene %s has no %q asset, deriving %s from %s", s.ID, key, QABand, SCLBand)
				src, key, a, ok = SCLBand, c.assetKey(SCLBand), sa, true
			}
		}
		if !ok {
			return nil, fmt.Errorf("scene %q has no asset %q for band %s", s.ID, key, src)
		}
		log.Debugf("Reading %s band %s from %s", s.ID, src, a.Href)
		data, err := c.Reader.ReadBand(ctx, a.Href, g)
		if err != nil {
			return nil, fmt.Errorf("read %s/%s: %v", s.ID, key, err)
		}
		b := &raster.Band{Name: name, Data: data}
		if src == SCLBand {
			b = QAFromSCL(b)
		}
		img.Bands = append(img.Bands, b)
	}
	return Harmonize(s, img), nil
}
