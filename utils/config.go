package utils

import (
	"encoding/json"
	"fmt"
	"image/color"
	"io/ioutil"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/deegree/ows/datastore"
	"github.com/deegree/ows/geometry"
	"github.com/deegree/ows/wmsclient"
)

var LibexecDir = "."
var EtcDir = "."
var DataDir = "."

const DefaultRecvMsgSize = 10 * 1024 * 1024

type CacheConfig struct {
	// Type is one of memcache, bolt or none.
	Type    string   `json:"type"`
	Servers []string `json:"servers"`
	File    string   `json:"file"`
	TTLSecs int      `json:"ttl"`
}

type ServiceConfig struct {
	OWSHostname        string      `json:"ows_hostname"`
	NameSpace          string      `json:"-"`
	Title              string      `json:"title"`
	Abstract           string      `json:"abstract"`
	Keywords           []string    `json:"keywords"`
	WorkerNodes        []string    `json:"worker_nodes"`
	LocalWorkers       int         `json:"local_workers"`
	MaxGrpcRecvMsgSize int         `json:"max_grpc_recv_msg_size"`
	ConcLimit          int         `json:"conc_limit"`
	TimeoutSecs        int         `json:"timeout"`
	UpdateSequence     string      `json:"update_sequence"`
	TempDir            string      `json:"temp_dir"`
	Cache              CacheConfig `json:"cache"`
}

// CacheLevel is one source of a coverage: the raster files at Path
// serve requests whose resolution lies in [MinRes, MaxRes).
// Configuring the same coverage at several resolutions speeds up
// coarse requests.
type CacheLevel struct {
	Path   string  `json:"path"`
	MinRes float64 `json:"min_res"`
	MaxRes float64 `json:"max_res"`
}

type Palette struct {
	Interpolate bool         `json:"interpolate"`
	Colours     []color.RGBA `json:"colours"`
}

// RangeAxis is an axis of the range set of a coverage, such as the
// bands of a multispectral image.
type RangeAxis struct {
	Name   string   `json:"name"`
	Label  string   `json:"label"`
	Values []string `json:"values"`
}

// Coverage is a WCS offering backed by raster files.
type Coverage struct {
	Name        string `json:"name"`
	Label       string `json:"label"`
	Description string `json:"description"`
	MetadataURL string `json:"metadata_url"`

	NativeCRS string `json:"native_crs"`
	// Envelope is in NativeCRS. Envelopes lists the envelope in
	// other supported CRSs.
	Envelope       []float64            `json:"envelope"`
	LatLonEnvelope []float64            `json:"lat_lon_envelope"`
	Envelopes      map[string][]float64 `json:"envelopes"`

	SupportedCRS   []string `json:"supported_crs"`
	ResponseCRS    []string `json:"response_crs"`
	Formats        []string `json:"formats"`
	Interpolations []string `json:"interpolations"`

	RangeSet []RangeAxis `json:"range_set"`
	// Bands names the bands of the source files in order.
	Bands    []string `json:"bands"`
	BandExpr string   `json:"band_expression"`

	Levels []CacheLevel `json:"levels"`

	MaxWidth  int `json:"max_width"`
	MaxHeight int `json:"max_height"`
}

// Layer is a WMS layer drawn from a coverage or, for feature info,
// backed by a feature type of the data store.
type Layer struct {
	OWSHostname string `json:"-"`
	NameSpace   string `json:"-"`
	Name        string `json:"name"`
	Title       string `json:"title"`
	Abstract    string `json:"abstract"`
	MetadataURL string `json:"metadata_url"`
	Coverage    string `json:"coverage"`
	FeatureType string `json:"feature_type"`
	OffsetValue float64       `json:"offset_value"`
	ClipValue   float64       `json:"clip_value"`
	ScaleValue  float64       `json:"scale_value"`
	Palette     *Palette      `json:"palette"`
	Style       *FeatureStyle `json:"style"`
	LegendPath  string        `json:"legend_path"`
	MaxWidth    int           `json:"max_width"`
	MaxHeight   int           `json:"max_height"`
}

// Config is the configuration of one namespace of the server.
type Config struct {
	ServiceConfig  ServiceConfig             `json:"service_config"`
	Layers         []Layer                   `json:"layers"`
	Coverages      []Coverage                `json:"coverages"`
	RemoteServices []wmsclient.ServiceConfig `json:"remote_services"`
	DataStore      *datastore.Config         `json:"data_store"`
	// Users maps user names to bcrypt password hashes.
	Users map[string]string `json:"users"`
}

// string used to format Go ISO times
const ISOFormat = "2006-01-02T15:04:05.000Z"

func LoadAllConfigFiles(rootDir string, verbose bool) (map[string]*Config, error) {
	configMap := make(map[string]*Config)
	err := filepath.Walk(rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if !info.IsDir() && info.Name() == "config.json" {
			relPath, _ := filepath.Rel(rootDir, filepath.Dir(path))
			if verbose {
				log.Printf("Loading config file: %s under namespace: %s\n", path, relPath)
			}

			config := &Config{}
			e := config.LoadConfigFile(path)
			if e != nil {
				return e
			}

			configMap[relPath] = config

			ns := relPath
			if relPath == "." {
				ns = ""
			}
			config.ServiceConfig.NameSpace = ns
			for i := range config.Layers {
				config.Layers[i].NameSpace = ns
			}
		}
		return nil
	})

	if err == nil && len(configMap) == 0 {
		err = fmt.Errorf("No config file found")
	}

	return configMap, err
}

// LoadConfigFile marshalls the config.json document returning an
// instance of a Config variable containing all the values
func (config *Config) LoadConfigFile(configFile string) error {
	*config = Config{}
	cfg, err := ioutil.ReadFile(configFile)
	if err != nil {
		return fmt.Errorf("Error while reading config file: %s. Error: %v", configFile, err)
	}

	err = json.Unmarshal(cfg, config)
	if err != nil {
		return fmt.Errorf("Error at JSON parsing config document: %s. Error: %v", configFile, err)
	}

	if config.DataStore != nil && config.DataStore.FeatureTypesFile != "" && !filepath.IsAbs(config.DataStore.FeatureTypesFile) {
		config.DataStore.FeatureTypesFile = filepath.Join(filepath.Dir(configFile), config.DataStore.FeatureTypesFile)
	}

	if err := config.validate(); err != nil {
		return fmt.Errorf("Invalid config document: %s. Error: %v", configFile, err)
	}
	return nil
}

func (config *Config) validate() error {
	sc := &config.ServiceConfig
	if sc.MaxGrpcRecvMsgSize <= 0 {
		sc.MaxGrpcRecvMsgSize = DefaultRecvMsgSize
	}

	coverages := make(map[string]bool)
	for i := range config.Coverages {
		cov := &config.Coverages[i]
		if cov.Name == "" {
			return fmt.Errorf("coverage %d has no name", i)
		}
		if coverages[cov.Name] {
			return fmt.Errorf("coverage %s defined twice", cov.Name)
		}
		coverages[cov.Name] = true

		if cov.NativeCRS == "" {
			return fmt.Errorf("coverage %s has no native_crs", cov.Name)
		}
		if len(cov.Envelope) != 4 {
			return fmt.Errorf("coverage %s: envelope must have 4 values", cov.Name)
		}
		if len(cov.Levels) == 0 {
			return fmt.Errorf("coverage %s has no levels", cov.Name)
		}
		for _, lvl := range cov.Levels {
			if lvl.MinRes >= lvl.MaxRes {
				return fmt.Errorf("coverage %s: level %s has min_res >= max_res", cov.Name, lvl.Path)
			}
		}
		if !containsFold(cov.SupportedCRS, cov.NativeCRS) {
			cov.SupportedCRS = append([]string{cov.NativeCRS}, cov.SupportedCRS...)
		}
		if len(cov.ResponseCRS) == 0 {
			cov.ResponseCRS = cov.SupportedCRS
		}
		if len(cov.Interpolations) == 0 {
			cov.Interpolations = []string{"nearest neighbor"}
		}
		if len(cov.Bands) == 0 {
			cov.Bands = []string{"band1"}
		}
		if len(cov.LatLonEnvelope) != 4 {
			native := geometry.Envelope{MinX: cov.Envelope[0], MinY: cov.Envelope[1], MaxX: cov.Envelope[2], MaxY: cov.Envelope[3]}
			ll, err := TransformEnvelope(native, cov.NativeCRS, "EPSG:4326")
			if err != nil {
				return fmt.Errorf("coverage %s: %v", cov.Name, err)
			}
			cov.LatLonEnvelope = []float64{ll.MinX, ll.MinY, ll.MaxX, ll.MaxY}
		}
	}

	for i := range config.Layers {
		layer := &config.Layers[i]
		layer.OWSHostname = sc.OWSHostname
		if layer.Coverage != "" && !coverages[layer.Coverage] {
			return fmt.Errorf("layer %s draws unknown coverage %s", layer.Name, layer.Coverage)
		}
		if layer.Palette != nil && layer.Palette.Colours != nil && len(layer.Palette.Colours) < 2 {
			return fmt.Errorf("The colour palette must contain at least 2 colours.")
		}
		if layer.ScaleValue == 0 {
			layer.ScaleValue = 1
		}
		if layer.ClipValue == 0 {
			layer.ClipValue = 255
		}
		if layer.FeatureType != "" && layer.Style == nil {
			layer.Style = DefaultFeatureStyle()
		}
	}

	for _, rs := range config.RemoteServices {
		if rs.URL == "" {
			return fmt.Errorf("remote service %s has no url", rs.Name)
		}
	}
	return nil
}

// Coverage looks up a coverage by name.
func (config *Config) Coverage(name string) (*Coverage, bool) {
	for i := range config.Coverages {
		if config.Coverages[i].Name == name {
			return &config.Coverages[i], true
		}
	}
	return nil, false
}

// Layer looks up a local WMS layer by name.
func (config *Config) Layer(name string) (*Layer, bool) {
	for i := range config.Layers {
		if config.Layers[i].Name == name {
			return &config.Layers[i], true
		}
	}
	return nil, false
}

func DumpConfig(configs map[string]*Config) (string, error) {
	configJson, err := json.MarshalIndent(configs, "", "  ")
	if err != nil {
		return "", err
	}
	return string(configJson), nil
}

// ConfigStore holds the configuration of every namespace. It is
// swapped as a whole on reload.
type ConfigStore struct {
	mu      sync.RWMutex
	configs map[string]*Config
}

func NewConfigStore(configs map[string]*Config) *ConfigStore {
	return &ConfigStore{configs: configs}
}

func (cs *ConfigStore) Get(namespace string) (*Config, bool) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	c, ok := cs.configs[namespace]
	return c, ok
}

func (cs *ConfigStore) Set(configs map[string]*Config) {
	cs.mu.Lock()
	cs.configs = configs
	cs.mu.Unlock()
}

// WatchConfig reloads the configuration on SIGHUP. onReload is
// called with the new configuration before it is published.
func WatchConfig(infoLog, errLog *log.Logger, store *ConfigStore, verbose bool, onReload func(map[string]*Config)) {
	// Catch SIGHUP to automatically reload cache
	sighup := make(chan os.Signal, 1)
	signal.Notify(sighup, syscall.SIGHUP)
	go func() {
		for range sighup {
			infoLog.Println("Caught SIGHUP, reloading config...")
			confMap, err := LoadAllConfigFiles(EtcDir, verbose)
			if err != nil {
				errLog.Printf("Error in loading config files: %v\n", err)
				continue
			}
			if onReload != nil {
				onReload(confMap)
			}
			store.Set(confMap)
		}
	}()
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
