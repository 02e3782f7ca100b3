package main

/* ows is a web server implementing the WMS, WCS and a JSON flavour
   of the WFS protocols. Maps and coverages are read from raster
   files through a pool of GDAL workers, or cascaded from remote WMS
   servers. Features are read from and written to a PostGIS store.
   Each directory holding a config.json below the config dir is a
   namespace served under /ows/<namespace>. */

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/deegree/ows/cache"
	"github.com/deegree/ows/datastore"
	"github.com/deegree/ows/metrics"
	proc "github.com/deegree/ows/processor"
	"github.com/deegree/ows/utils"
	"github.com/deegree/ows/wmsclient"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	reuseport "github.com/kavu/go_reuseport"

	_ "net/http/pprof"
)

var (
	port            = flag.Int("p", 8080, "Server listening port.")
	serverDataDir   = flag.String("data_dir", utils.DataDir, "Server data directory.")
	serverConfigDir = flag.String("conf_dir", utils.EtcDir, "Server config directory.")
	serverLogDir    = flag.String("log_dir", "", "Server log directory.")
	validateConfig  = flag.Bool("check_conf", false, "Validate server config files.")
	dumpConfig      = flag.Bool("dump_conf", false, "Dump server config files.")
	verbose         = flag.Bool("v", false, "Verbose mode for more server outputs.")
)

var (
	reWMSMap = utils.CompileWMSRegexMap()
	reWCSMap = utils.CompileWCSRegexMap()
	reWFSMap = utils.CompileWFSRegexMap()
)

var (
	Error = log.New(os.Stderr, "OWS: ", log.Ldate|log.Ltime|log.Lshortfile)
	Info  = log.New(os.Stdout, "OWS: ", log.Ldate|log.Ltime|log.Lshortfile)
)

var metricsLogger metrics.Logger

var templates *utils.Templates

var configStore *utils.ConfigStore

var services = &serviceRegistry{services: map[string]*service{}}

// shared holds the caches and warpers that outlive config reloads.
var shared = newSharedResources()

// setup checks required files are in place, loads the configuration
// of every namespace and builds the resources they use. This is the
// first function to be called in main.
func setup() {
	rand.Seed(time.Now().UnixNano())

	flag.Parse()

	utils.DataDir = *serverDataDir
	utils.EtcDir = *serverConfigDir

	filePaths := []string{
		utils.DataDir + "/static/index.html",
		utils.DataDir + "/templates/WMS_GetCapabilities.tpl",
		utils.DataDir + "/templates/WCS_GetCapabilities.tpl",
		utils.DataDir + "/templates/WCS_DescribeCoverage.tpl"}

	for _, filePath := range filePaths {
		if _, err := os.Stat(filePath); os.IsNotExist(err) {
			panic(err)
		}
	}

	confMap, err := utils.LoadAllConfigFiles(utils.EtcDir, *verbose)
	if err != nil {
		Error.Printf("Error in loading config files: %v\n", err)
		panic(err)
	}

	if *validateConfig {
		os.Exit(0)
	}

	if *dumpConfig {
		configJson, err := utils.DumpConfig(confMap)
		if err != nil {
			Error.Printf("Error in dumping configs: %v\n", err)
		} else {
			log.Print(configJson)
		}
		os.Exit(0)
	}

	utils.InitGdal()
	if *verbose {
		Info.Printf("GDAL drivers: %v", utils.DriverNames())
	}
	templates = utils.DefaultTemplates(*verbose)

	configStore = utils.NewConfigStore(confMap)
	services.reload(confMap)
	utils.WatchConfig(Info, Error, configStore, *verbose, services.reload)

	if len(*serverLogDir) > 0 {
		if *serverLogDir == "-" {
			metricsLogger = metrics.NewStdoutLogger()
		} else {
			maxLogFileSize := int64(0)
			if val, ok := os.LookupEnv("OWS_MAX_LOG_FILE_SIZE"); ok {
				valInt, e := strconv.ParseInt(val, 10, 64)
				if e == nil {
					maxLogFileSize = valInt
				} else {
					Error.Printf("invalid OWS_MAX_LOG_FILE_SIZE: %v", e)
				}
			}

			maxLogFiles := -1
			if val, ok := os.LookupEnv("OWS_MAX_LOG_FILES"); ok {
				valInt, e := strconv.ParseInt(val, 10, 32)
				if e == nil {
					maxLogFiles = int(valInt)
				} else {
					Error.Printf("invalid OWS_MAX_LOG_FILES: %v", e)
				}
			}

			metricsLogger = metrics.NewFileLogger(*serverLogDir, maxLogFileSize, maxLogFiles, *verbose)
		}
	}
}

// service is a namespace of the server: its configuration and the
// stores built from it.
type service struct {
	conf   *utils.Config
	cache  cache.TileCache
	warper proc.Warper
	remote *wmsclient.RemoteWMSStore
	store  *datastore.Store
}

func (s *service) timeout() time.Duration {
	if s.conf.ServiceConfig.TimeoutSecs > 0 {
		return time.Duration(s.conf.ServiceConfig.TimeoutSecs) * time.Second
	}
	return 60 * time.Second
}

func (s *service) cacheTTL() time.Duration {
	return time.Duration(s.conf.ServiceConfig.Cache.TTLSecs) * time.Second
}

func (s *service) concLimit() int {
	if s.conf.ServiceConfig.ConcLimit > 0 {
		return s.conf.ServiceConfig.ConcLimit
	}
	return 16
}

func (s *service) close() {
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			Error.Printf("closing data store of %s: %v", s.conf.ServiceConfig.NameSpace, err)
		}
	}
}

// sharedResources keeps one cache per cache file or server list and
// one warper per worker node list.
type sharedResources struct {
	mu      sync.Mutex
	caches  map[string]cache.TileCache
	warpers map[string]proc.Warper
}

func newSharedResources() *sharedResources {
	return &sharedResources{
		caches:  make(map[string]cache.TileCache),
		warpers: make(map[string]proc.Warper),
	}
}

func (r *sharedResources) tileCache(cc utils.CacheConfig) (cache.TileCache, error) {
	var key string
	switch strings.ToLower(cc.Type) {
	case "memcache":
		key = "memcache:" + strings.Join(cc.Servers, ",")
	case "bolt":
		key = "bolt:" + cc.File
	case "", "none":
		return cache.NopCache{}, nil
	default:
		return nil, fmt.Errorf("unknown cache type %s", cc.Type)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if tc, ok := r.caches[key]; ok {
		return tc, nil
	}

	var tc cache.TileCache
	if strings.EqualFold(cc.Type, "memcache") {
		tc = cache.NewMemcacheCache(cc.Servers...)
	} else {
		bc, err := cache.NewBoltCache(cc.File)
		if err != nil {
			return nil, err
		}
		tc = bc
	}
	r.caches[key] = tc
	return tc, nil
}

func (r *sharedResources) warper(sc *utils.ServiceConfig) (proc.Warper, error) {
	key := strings.Join(sc.WorkerNodes, ",")
	if key == "" {
		key = fmt.Sprintf("local:%d", sc.LocalWorkers)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if w, ok := r.warpers[key]; ok {
		return w, nil
	}

	maxMsgSize := sc.MaxGrpcRecvMsgSize
	if maxMsgSize <= 0 {
		maxMsgSize = proc.DefaultMaxGrpcRecvMsgSize
	}
	localWorkers := sc.LocalWorkers
	if localWorkers <= 0 {
		localWorkers = 4
	}
	w, err := proc.NewWarper(sc.WorkerNodes, maxMsgSize, localWorkers, *verbose)
	if err != nil {
		return nil, err
	}
	r.warpers[key] = w
	return w, nil
}

func (r *sharedResources) sweep() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, tc := range r.caches {
		if bc, ok := tc.(*cache.BoltCache); ok {
			n, err := bc.Sweep()
			if err != nil {
				Error.Printf("sweeping cache %s: %v", key, err)
			} else if *verbose && n > 0 {
				Info.Printf("swept %d expired entries from %s", n, key)
			}
		}
	}
}

func newService(namespace string, conf *utils.Config) (*service, error) {
	conf.ServiceConfig.NameSpace = namespace
	s := &service{conf: conf}

	tc, err := shared.tileCache(conf.ServiceConfig.Cache)
	if err != nil {
		return nil, err
	}
	s.cache = tc

	if len(conf.Coverages) > 0 {
		w, err := shared.warper(&conf.ServiceConfig)
		if err != nil {
			return nil, err
		}
		s.warper = w
	}

	s.remote = wmsclient.NewRemoteWMSStore(tc, Info)
	if len(conf.RemoteServices) > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout())
		if err := s.remote.Connect(ctx, conf.RemoteServices); err != nil {
			Error.Printf("namespace %s: %v", namespace, err)
		}
		cancel()
	}

	if conf.DataStore != nil {
		cfg := *conf.DataStore
		if cfg.FeatureTypesFile != "" && !filepath.IsAbs(cfg.FeatureTypesFile) {
			cfg.FeatureTypesFile = filepath.Join(utils.EtcDir, namespace, cfg.FeatureTypesFile)
		}
		store, err := datastore.Open(cfg, *verbose)
		if err != nil {
			return nil, err
		}
		store.SetLogger(Info)
		s.store = store
	}
	return s, nil
}

type serviceRegistry struct {
	mu       sync.RWMutex
	services map[string]*service
}

func (r *serviceRegistry) get(namespace string) (*service, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.services[namespace]
	return s, ok
}

func (r *serviceRegistry) set(namespace string, s *service) {
	r.mu.Lock()
	r.services[namespace] = s
	r.mu.Unlock()
}

// reload replaces every namespace. A namespace whose resources fail
// to build is not served. The replaced data stores are closed once
// the requests using them had time to finish.
func (r *serviceRegistry) reload(confMap map[string]*utils.Config) {
	next := make(map[string]*service, len(confMap))
	for ns, conf := range confMap {
		s, err := newService(ns, conf)
		if err != nil {
			Error.Printf("namespace %s is not served: %v", ns, err)
			continue
		}
		next[ns] = s
	}

	r.mu.Lock()
	prev := r.services
	r.services = next
	r.mu.Unlock()

	if len(prev) > 0 {
		time.AfterFunc(2*time.Minute, func() {
			for _, s := range prev {
				s.close()
			}
		})
	}
	shared.sweep()
}

// writeException reports err to the client and records the status.
func writeException(w http.ResponseWriter, version string, err error, metricsCollector *metrics.MetricsCollector) {
	status := utils.WriteServiceException(w, version, err)
	metricsCollector.Info.HTTPStatus = status
	if status >= 500 {
		Error.Printf("%v", err)
	} else if *verbose {
		Info.Printf("%v", err)
	}
}

var reqService = map[string]string{
	"getfeatureinfo":   "WMS",
	"getmap":           "WMS",
	"getlegendgraphic": "WMS",
	"describecoverage": "WCS",
	"getcoverage":      "WCS",
	"getfeature":       "WFS",
	"transaction":      "WFS",
}

// generalHandler handles every request of a namespace.
func generalHandler(s *service, w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate, max-age=0")
	if *verbose {
		Info.Printf("%s\n", r.URL.String())
	}

	metricsCollector := metrics.NewMetricsCollector(metricsLogger)
	defer metricsCollector.Log()

	t0 := time.Now()
	metricsCollector.Info.ReqTime = t0.Format(utils.ISOFormat)
	defer func() { metricsCollector.Info.ReqDuration = time.Since(t0) }()

	reqUrl, e := url.QueryUnescape(r.URL.String())
	if e == nil {
		metricsCollector.Info.URL.RawURL = reqUrl
	} else {
		metricsCollector.Info.URL.RawURL = r.URL.String()
	}
	metricsCollector.Info.RemoteAddr = r.RemoteAddr
	metricsCollector.Info.HTTPStatus = 200

	if r.Method != "GET" && r.Method != "POST" {
		metricsCollector.Info.HTTPStatus = 405
		http.Error(w, fmt.Sprintf("Method %s not allowed.", r.Method), 405)
		return
	}

	query, err := utils.ParseQuery(r.URL.RawQuery)
	if err != nil {
		writeException(w, "", err, metricsCollector)
		return
	}

	if _, fOK := query["service"]; !fOK {
		canInferService := false
		if request, hasReq := query["request"]; hasReq {
			if service, found := reqService[strings.ToLower(request[0])]; found {
				query["service"] = []string{service}
				canInferService = true
			}
		}

		if !canInferService {
			metricsCollector.Info.HTTPStatus = 400
			http.Error(w, fmt.Sprintf("Not a OWS request. Request does not contain a 'service' parameter."), 400)
			return
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout())
	defer cancel()

	switch strings.ToUpper(query["service"][0]) {
	case "WMS":
		metricsCollector.Info.Request.Service = "WMS"
		params, err := utils.WMSParamsChecker(query, reWMSMap)
		if err != nil {
			writeException(w, "1.3.0", err, metricsCollector)
			return
		}
		serveWMS(ctx, params, s, r, w, metricsCollector)
	case "WCS":
		metricsCollector.Info.Request.Service = "WCS"
		params, err := utils.WCSParamsChecker(query, reWCSMap)
		if err != nil {
			writeException(w, "", err, metricsCollector)
			return
		}
		serveWCS(ctx, params, s, r, w, metricsCollector)
	case "WFS":
		metricsCollector.Info.Request.Service = "WFS"
		params, err := utils.WFSParamsChecker(query, reWFSMap)
		if err != nil {
			writeException(w, "", err, metricsCollector)
			return
		}
		serveWFS(ctx, params, s, r, w, metricsCollector)
	default:
		metricsCollector.Info.HTTPStatus = 400
		http.Error(w, fmt.Sprintf("Not a valid OWS request. URL %s does not contain a valid 'service' parameter.", r.URL.String()), 400)
		return
	}
}

func owsHandler(w http.ResponseWriter, r *http.Request) {
	namespace := "."
	if ns, ok := mux.Vars(r)["namespace"]; ok && ns != "" {
		namespace = strings.Trim(ns, "/")
	}
	s, ok := services.get(namespace)
	if !ok {
		Info.Printf("Invalid dataset namespace: %v for url: %v\n", namespace, r.URL.Path)
		http.Error(w, fmt.Sprintf("Invalid dataset namespace: %v\n", namespace), 404)
		return
	}
	generalHandler(s, w, r)
}

func fileHandler(w http.ResponseWriter, r *http.Request) {
	upath := r.URL.Path
	if !strings.HasPrefix(upath, "/") {
		upath = "/" + upath
		r.URL.Path = upath
	}
	upath = path.Clean(upath)
	upath = filepath.Join(utils.DataDir+"/static", upath)

	if *verbose {
		Info.Printf("%s -> %s\n", r.URL.String(), upath)
	}

	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate, max-age=0")
	http.ServeFile(w, r, upath)
}

func newRouter() http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/ows", owsHandler)
	router.HandleFunc("/ows/{namespace:.+}", owsHandler)
	router.PathPrefix("/debug/").Handler(http.DefaultServeMux)
	router.PathPrefix("/").HandlerFunc(fileHandler)

	cors := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{"GET", "POST", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Authorization", "Content-Type"}),
	)
	return handlers.ProxyHeaders(cors(handlers.CompressHandler(router)))
}

func main() {
	setup()

	lis, err := reuseport.Listen("tcp", fmt.Sprintf("0.0.0.0:%d", *port))
	if err != nil {
		Error.Fatalf("failed to listen: %v", err)
	}

	Info.Printf("OWS is ready")
	log.Fatal(http.Serve(lis, newRouter()))
}
