// Package config holds the run configuration: YAML file, then environment overrides.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"mangrove-composite/composite"
	"mangrove-composite/export"
	"mangrove-composite/sentinel"
	"mangrove-composite/util"
)

type Export struct {
	// Destination is a local directory, gs://bucket[/prefix] or mem://.
	Destination    string `yaml:"destination"`
	Folder         string `yaml:"folder"`
	Workers        int    `yaml:"workers"`
	UploadAttempts int    `yaml:"upload_attempts"`
	// RasterName is the description and file prefix of composites; {year} is replaced.
	RasterName   string `yaml:"raster_name"`
	SamplesName  string `yaml:"samples_name"`
	AOIName      string `yaml:"aoi_name"`
	VectorFormat string `yaml:"vector_format"`
}

type Config struct {
	STACURL    string            `yaml:"stac_url"`
	Collection string            `yaml:"collection"`
	RetryMax   int               `yaml:"retry_max"`
	QASource   string            `yaml:"qa_source"`
	Assets     map[string]string `yaml:"assets"`

	AOI         string `yaml:"aoi"`
	NonMangrove string `yaml:"non_mangrove"`
	Mangrove    string `yaml:"mangrove"`

	Years         []int    `yaml:"years"`
	MaxCloudCover float64  `yaml:"max_cloud_cover"`
	CloudBit      uint     `yaml:"cloud_bit"`
	CirrusBit     uint     `yaml:"cirrus_bit"`
	ScaleDivisor  float64  `yaml:"scale_divisor"`
	Bands         []string `yaml:"bands"`
	Scale         float64  `yaml:"scale"`
	MaxPixels     int64    `yaml:"max_pixels"`
	Concurrency   int      `yaml:"concurrency"`

	Export Export `yaml:"export"`

	// JobStore is memory, sqlite:<path> or datastore:<project>.
	JobStore  string `yaml:"jobstore"`
	ProjectID string `yaml:"project_id"`
}

func Default() *Config {
	p := composite.DefaultParams()
	return &Config{
		STACURL:       sentinel.DefaultSTACURL,
		Collection:    p.Collection,
		RetryMax:      3,
		QASource:      sentinel.QABand,
		AOI:           "AOI_AGERS2024.geojson",
		NonMangrove:   "Non_Mangrove.geojson",
		Mangrove:      "Mangrove.geojson",
		Years:         []int{2019, 2024},
		MaxCloudCover: p.MaxCloudCover,
		CloudBit:      p.CloudBit,
		CirrusBit:     p.CirrusBit,
		ScaleDivisor:  p.ScaleDivisor,
		Bands:         p.Bands,
		Scale:         p.Scale,
		MaxPixels:     p.MaxPixels,
		Concurrency:   p.Concurrency,
		Export: Export{
			Destination:    "exports",
			Folder:         "Mangrove_AGERS2024",
			Workers:        2,
			UploadAttempts: 3,
			RasterName:     "Sentinel2_{year}",
			SamplesName:    "sample_class_2019",
			AOIName:        "AOI_AGERS2024",
			VectorFormat:   string(export.SHP),
		},
		JobStore: "memory",
	}
}

// Parse overlays YAML onto the defaults.
func Parse(data []byte) (*Config, error) {
	c := Default()
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, util.Invalidf("config: %v", err)
	}
	return c, nil
}

// Load reads the YAML file at path (defaults only when path is empty), the optional .env
// file and the environment overrides, then validates.
func Load(path string) (*Config, error) {
	c := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, util.Invalidf("config: %v", err)
		}
		if c, err = Parse(data); err != nil {
			return nil, err
		}
	}
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warnf("Ignoring .env: %v", err)
	}
	c.ApplyEnv()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// ApplyEnv applies the environment overrides.
func (c *Config) ApplyEnv() {
	c.STACURL = util.EnvOrDefault("STAC_URL", c.STACURL)
	c.Years = util.EnvOrDefaultInts("YEARS", c.Years)
	c.Concurrency = util.EnvOrDefaultInt("CONCURRENCY", c.Concurrency)
	c.Export.Folder = util.EnvOrDefault("EXPORT_FOLDER", c.Export.Folder)
	c.Export.Workers = util.EnvOrDefaultInt("EXPORT_WORKERS", c.Export.Workers)
	if bucket := util.EnvOrDefault("EXPORT_BUCKET", ""); bucket != "" {
		c.Export.Destination = "gs://" + strings.TrimPrefix(bucket, "gs://")
	}
	c.ProjectID = util.EnvOrDefault("PROJECT_ID", c.ProjectID)
	c.JobStore = util.EnvOrDefault("JOBSTORE", c.JobStore)
}

// JobStoreURI resolves a bare "datastore" against the project ID.
func (c *Config) JobStoreURI() string {
	if c.JobStore == "datastore" && c.ProjectID != "" {
		return "datastore:" + c.ProjectID
	}
	return c.JobStore
}

// RasterName returns the export description and file prefix of a year's composite.
func (c *Config) RasterName(year int) string {
	return strings.ReplaceAll(c.Export.RasterName, "{year}", fmt.Sprint(year))
}

func (c *Config) Params() composite.Params {
	return composite.Params{
		Collection:    c.Collection,
		MaxCloudCover: c.MaxCloudCover,
		QABand:        sentinel.QABand,
		CloudBit:      c.CloudBit,
		CirrusBit:     c.CirrusBit,
		ScaleDivisor:  c.ScaleDivisor,
		Bands:         append([]string(nil), c.Bands...),
		Scale:         c.Scale,
		MaxPixels:     c.MaxPixels,
		Concurrency:   c.Concurrency,
	}
}

func (c *Config) Validate() error {
	if c.STACURL == "" {
		return util.Invalidf("stac_url is empty")
	}
	if c.RetryMax < 0 {
		return util.Invalidf("retry_max must not be negative")
	}
	if c.QASource != sentinel.QABand && c.QASource != sentinel.SCLBand {
		return util.Invalidf("qa_source must be %s or %s, got %q", sentinel.QABand, sentinel.SCLBand, c.QASource)
	}
	if c.AOI == "" {
		return util.Invalidf("aoi is empty")
	}
	if len(c.Years) == 0 {
		return util.Invalidf("no years configured")
	}
	for _, y := range c.Years {
		if y < 1 || y > 9999 {
			return util.Invalidf("year %d out of range", y)
		}
	}
	if err := c.Params().Validate(); err != nil {
		return err
	}
	e := c.Export
	if e.Destination == "" {
		return util.Invalidf("export destination is empty")
	}
	if e.Workers < 1 {
		return util.Invalidf("export workers must be positive, got %d", e.Workers)
	}
	if e.UploadAttempts < 1 {
		return util.Invalidf("upload attempts must be positive, got %d", e.UploadAttempts)
	}
	if !strings.Contains(e.RasterName, "{year}") && len(c.Years) > 1 {
		return util.Invalidf("raster_name %q must contain {year} with several years", e.RasterName)
	}
	if _, err := export.ParseFormat(e.VectorFormat); err != nil {
		return err
	}
	if c.JobStore == "datastore" && c.ProjectID == "" {
		return util.Invalidf("datastore job store needs project_id")
	}
	return nil
}
