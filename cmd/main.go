package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"
	"reflect"
	"syscall"
	"time"

	"github.com/aukilabs/go-tooling/pkg/cli"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/events"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/go-tooling/pkg/metrics"
	"github.com/aukilabs/tilestream/cache"
	layersconfig "github.com/aukilabs/tilestream/config"
	"github.com/aukilabs/tilestream/engine"
	"github.com/aukilabs/tilestream/featureflag"
	"github.com/aukilabs/tilestream/fetch"
	tilehttp "github.com/aukilabs/tilestream/http"
	"github.com/aukilabs/tilestream/jobs"
	"github.com/aukilabs/tilestream/scene"
	"github.com/aukilabs/tilestream/tilesource"
	"github.com/aukilabs/tilestream/tms"
	tilewebsocket "github.com/aukilabs/tilestream/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/encoding/json"
	"golang.org/x/time/rate"
)

var (
	// The tilestream version number. Set at build.
	version = "v0.1.0"

	infoGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name:        "tilestream_info",
		Help:        "Tilestream information.",
		ConstLabels: prometheus.Labels{"version": version},
	})
)

// This will effectively disable obfuscation of the config struct. Without it, the keys would get obfuscated causing the cli package to generate garbled command-line options.
// https://github.com/burrowers/garble/issues/403
var _ = reflect.TypeOf(config{})

type config struct {
	Addr            string        `cli:""        env:"TILESTREAM_ADDR"              help:"Listening address for tile clients."`
	AdminAddr       string        `cli:""        env:"TILESTREAM_ADMIN_ADDR"        help:"Admin listening address."`
	LayersFile      string        `cli:""        env:"TILESTREAM_LAYERS_FILE"       help:"The YAML file describing the served layers."`
	CacheFile       string        `cli:""        env:"TILESTREAM_CACHE_FILE"        help:"The SQLite file where tiles are cached."`
	CacheMemorySize int           `cli:",hidden" env:"TILESTREAM_CACHE_MEMORY_SIZE" help:"The number of tiles cached in memory."`
	Workers         int           `cli:""        env:"TILESTREAM_WORKERS"           help:"The number of tiles loaded concurrently."`
	FrameDuration   time.Duration `cli:",hidden" env:"TILESTREAM_FRAME_DURATION"    help:"The duration between each merge of loaded tiles."`
	MinLevel        int           `cli:""        env:"TILESTREAM_MIN_LEVEL"         help:"The lowest level tiles can be loaded at."`
	MaxLevel        int           `cli:""        env:"TILESTREAM_MAX_LEVEL"         help:"The deepest level tiles can be loaded at."`
	FetchTimeout    time.Duration `cli:",hidden" env:"TILESTREAM_FETCH_TIMEOUT"     help:"The timeout of tile server requests."`
	FetchRateLimit  int           `cli:",hidden" env:"TILESTREAM_FETCH_RATE_LIMIT"  help:"The maximum number of tile server requests per second, 0 for unlimited."`
	FetchBurst      int           `cli:",hidden" env:"TILESTREAM_FETCH_BURST"       help:"The number of tile server requests allowed in a burst."`
	LogLevel        string        `cli:""        env:"TILESTREAM_LOG_LEVEL"         help:"Log level (debug|info|warning|error)."`
	LogIndent       bool          `cli:""        env:"TILESTREAM_LOG_INDENT"        help:"Indent logs."`
	Events          eventsConfig  `cli:",hidden" env:"-"                            help:"Event pusher configuration."`
	FeatureFlags    []string      `cli:",hidden" env:"TILESTREAM_FEATURE_FLAGS"     help:"Comma separated feature flags"`
	Version         bool          `cli:""        env:"-"                            help:"Show version."`
	Help            bool          `cli:""        env:"-"                            help:"Show help."`
}

type eventsConfig struct {
	Endpoint      string        `cli:",hidden" env:"TILESTREAM_EVENTS_ENDPOINT"       help:"Endpoint to where events are pushed."`
	FlushInterval time.Duration `cli:",hidden" env:"TILESTREAM_EVENTS_FLUSH_INTERVAL" help:"The duration between each event flush."`
	BatchSize     int           `cli:",hidden" env:"TILESTREAM_EVENTS_BATCH_SIZE"     help:"The maximum number of events sent at once."`
	QueueSize     int           `cli:",hidden" env:"TILESTREAM_EVENTS_QUEUE_SIZE"     help:"The size of the queue where events are stored."`
}

func main() {
	conf := config{
		Addr:            ":8080",
		AdminAddr:       ":18080",
		LayersFile:      "layers.yaml",
		CacheFile:       "tilestream.db",
		CacheMemorySize: cache.DefaultMemorySize,
		Workers:         jobs.DefaultWorkers,
		FrameDuration:   jobs.DefaultFrameDuration,
		MinLevel:        0,
		MaxLevel:        20,
		FetchTimeout:    fetch.DefaultTimeout,
		FetchRateLimit:  50,
		FetchBurst:      10,
		LogLevel:        logs.InfoLevel.String(),
		Events: eventsConfig{
			FlushInterval: events.DefaultFlushInterval,
			BatchSize:     events.DefaultBatchSize,
			QueueSize:     events.DefaultQueueSize,
		},
	}

	// set the information gauge to 1, useful for SUM query
	infoGauge.Set(1)

	ctx, cancel := cli.ContextWithSignals(context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer cancel()

	cli.Register().
		Help("Starts tilestream server.").
		Options(&conf)
	cli.Load()

	if conf.Version {
		fmt.Println(version)
		os.Exit(0)
	}

	if err := validateConfig(conf); err != nil {
		logs.Fatal(err)
	}

	logs.SetLevel(logs.ParseLevel(conf.LogLevel))
	logs.Encoder = json.Marshal
	if conf.LogIndent {
		logs.Encoder = func(v any) ([]byte, error) {
			return json.MarshalIndent(v, "", "  ")
		}
	}

	errors.Encoder = json.Marshal

	if conf.Events.Endpoint != "" {
		eventsPusher := events.Pusher{
			Endpoint:      conf.Events.Endpoint,
			FlushInterval: conf.Events.FlushInterval,
			BatchSize:     conf.Events.BatchSize,
			QueueSize:     conf.Events.QueueSize,
			Transport:     metrics.HTTPTransport(http.DefaultTransport),
		}
		go eventsPusher.Start()
		defer eventsPusher.Close()

		eventsLogger := events.Logger{
			Pusher:           &eventsPusher,
			SDKType:          "tilestream",
			SDKVersionFamily: version,
		}
		logs.SetLogger(eventsLogger.Log)
	}

	layersFile, err := layersconfig.Load(conf.LayersFile)
	if err != nil {
		logs.Fatal(err)
	}

	featureFlags := featureflag.New(conf.FeatureFlags)

	client := &fetch.Client{
		HTTP:      fetch.NewHTTPClient(conf.FetchTimeout),
		UserAgent: fmt.Sprintf("tilestream %s", version),
	}
	if conf.FetchRateLimit > 0 {
		featureFlags.IfNotSet(featureflag.FlagDisableRateLimit, func() {
			client.Limiter = rate.NewLimiter(rate.Limit(conf.FetchRateLimit), conf.FetchBurst)
		})
	}

	var store *cache.Store
	featureFlags.IfNotSet(featureflag.FlagDisableTileCache, func() {
		if store, err = cache.Open(ctx, conf.CacheFile, conf.CacheMemorySize); err != nil {
			logs.Fatal(err)
		}
	})
	if store != nil {
		defer store.Close()
	}

	m, sources := loadLayers(ctx, layersFile, client, store)
	defer m.Close()

	terrain := &engine.Terrain{}
	engineContext := engine.NewContext(
		engine.NewTileModelFactory(terrain),
		m,
		layersFile.RenderBindings(),
		engine.SelectionInfo{
			MinLevel: uint32(conf.MinLevel),
			MaxLevel: uint32(conf.MaxLevel),
		},
	)

	queue := jobs.NewQueue(conf.Workers, conf.FrameDuration)
	go queue.StartDispatchFrames()
	defer queue.Close()

	var nodes scene.Registry
	defer nodes.EvictAll()

	readinessCheck := func() bool {
		for _, s := range sources {
			if s.Err() != nil {
				return false
			}
		}
		return true
	}

	var service http.ServeMux

	tiles := tilehttp.TileHandler{
		Nodes:   &nodes,
		Context: engineContext,
		Queue:   queue,
		Profile: layersFile.TerrainProfile(),
	}
	tiles.Register(&service)

	service.HandleFunc("/health", tilehttp.HandleHealthCheck)
	service.HandleFunc("/version", tilehttp.HandleVersion(version))
	service.HandleFunc("/ready", tilehttp.HandleReadyCheck(readinessCheck))

	featureFlags.IfNotSet(featureflag.FlagDisableTileEvents, func() {
		var broadcaster tilewebsocket.Broadcaster
		removeListener := terrain.AddListener(&broadcaster)
		go func() {
			<-ctx.Done()
			removeListener()
			broadcaster.Close()
		}()

		service.Handle("/events", broadcaster.Handler(ctx))
	})

	var admin http.ServeMux
	admin.Handle("/metrics", promhttp.Handler())
	admin.HandleFunc("/health", tilehttp.HandleHealthCheck)
	admin.HandleFunc("/debug/pprof/", pprof.Index)
	admin.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	admin.HandleFunc("/debug/pprof/profile", pprof.Profile)
	admin.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	admin.HandleFunc("/debug/pprof/trace", pprof.Trace)
	admin.Handle("/debug/pprof/goroutine", pprof.Handler("goroutine"))
	admin.Handle("/debug/pprof/heap", pprof.Handler("heap"))
	admin.Handle("/debug/pprof/block", pprof.Handler("block"))
	admin.HandleFunc("/ready", tilehttp.HandleReadyCheck(readinessCheck))

	logs.WithTag("version", version).
		WithTag("log_level", conf.LogLevel).
		WithTag("layers", len(sources)).
		WithTag("cache", store != nil).
		WithTag("feature_flags", featureFlags.Names()).
		Info("starting tilestream server")

	tilehttp.ListenAndServe(ctx,
		&http.Server{Addr: conf.Addr, Handler: metrics.HTTPHandler(tilehttp.HandleWithCORS(&service),
			tilehttp.MetricsPathFormatter)},
		&http.Server{Addr: conf.AdminAddr, Handler: &admin},
	)
}

// loadLayers initializes the sources of the layers file. A source that fails
// to initialize is kept in the map and produces no data.
func loadLayers(ctx context.Context, f layersconfig.File, client *fetch.Client, store *cache.Store) (*engine.Map, []*tms.Source) {
	m := engine.NewMap()
	sources := make([]*tms.Source, 0, len(f.Layers))

	for _, l := range f.Layers {
		src := tms.New(l.Options(), client, nil)
		if err := src.Initialize(ctx); err != nil {
			logs.WithTag("layer", l.Name).Warn(err)
		}
		sources = append(sources, src)

		var ts tilesource.TileSource = src
		if store != nil && !l.NoCache {
			ts = cache.Wrap(src, l.Name, store)
		}

		if err := m.AddLayer(engine.Layer{Name: l.Name, Source: ts}); err != nil {
			logs.Fatal(err)
		}
	}
	return m, sources
}

func validateConfig(conf config) error {
	if conf.LayersFile == "" {
		return errors.New("a layers file is required")
	}

	if conf.MinLevel < 0 || conf.MaxLevel < conf.MinLevel {
		return errors.Newf("invalid level range [%d, %d]", conf.MinLevel, conf.MaxLevel)
	}

	if conf.Workers <= 0 {
		return errors.New("at least one worker is required")
	}

	if conf.FetchRateLimit < 0 || conf.FetchBurst < 0 {
		return errors.New("fetch rate limit and burst must be positive")
	}
	return nil
}
