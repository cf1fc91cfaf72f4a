package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/pprof"
	"net/url"
	"os"
	"reflect"
	"syscall"
	"time"

	"github.com/aukilabs/go-tooling/pkg/cli"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/events"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/go-tooling/pkg/metrics"
	"github.com/aukilabs/occlusion/bvh"
	"github.com/aukilabs/occlusion/featureflag"
	occlusionhttp "github.com/aukilabs/occlusion/http"
	"github.com/aukilabs/occlusion/jobs"
	"github.com/aukilabs/occlusion/models"
	"github.com/aukilabs/occlusion/occlusion"
	"github.com/aukilabs/occlusion/smoketest"
	owebsocket "github.com/aukilabs/occlusion/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/encoding/json"
	"golang.org/x/net/websocket"
	"golang.org/x/sync/errgroup"
)

var (
	// The occlusion server version number. Set at build.
	version = "v0.1.0"

	infoGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name:        "occlusion_info",
		Help:        "Occlusion server information.",
		ConstLabels: prometheus.Labels{"version": version},
	})
)

// This will effectively disable obfuscation of the config struct. Without it, the keys would get obfuscated causing the cli package to generate garbled command-line options.
// https://github.com/burrowers/garble/issues/403
var _ = reflect.TypeOf(config{})

type config struct {
	Addr               string           `cli:""        env:"OCCLUSION_ADDR"                  help:"Listening address for client connections."`
	AdminAddr          string           `cli:""        env:"OCCLUSION_ADMIN_ADDR"            help:"Admin listening address."`
	PublicEndpoint     string           `cli:""        env:"OCCLUSION_PUBLIC_ENDPOINT"       help:"The public endpoint where this server is reachable."`
	APIKey             string           `cli:""        env:"OCCLUSION_API_KEY"               help:"The key clients must present. Empty accepts every client."`
	AllowedOrigins     []string         `cli:",hidden" env:"OCCLUSION_ALLOWED_ORIGINS"       help:"Comma separated CORS origins."`
	LogLevel           string           `cli:""        env:"OCCLUSION_LOG_LEVEL"             help:"Log level (debug|info|warning|error)."`
	LogIndent          bool             `cli:""        env:"OCCLUSION_LOG_INDENT"            help:"Indent logs."`
	Workers            int              `cli:",hidden" env:"OCCLUSION_WORKERS"               help:"The number of query workers. 0 uses the number of CPUs."`
	TreeCapacity       int              `cli:",hidden" env:"OCCLUSION_TREE_CAPACITY"         help:"The initial number of node slots of each tree."`
	ClientIdleTimeout  time.Duration    `cli:",hidden" env:"OCCLUSION_CLIENT_IDLE_TIMEOUT"   help:"Time until an idle client will be disconnected"`
	FrameDuration      time.Duration    `cli:",hidden" env:"OCCLUSION_FRAME_DURATION"        help:"The duration of a scene frame."`
	LogSummaryInterval time.Duration    `cli:",hidden" env:"OCCLUSION_LOG_SUMMARY_INTERVAL"  help:"The duration between each log summary by connection."`
	SmokeTestTimeout   time.Duration    `cli:",hidden" env:"OCCLUSION_SMOKE_TEST_TIMEOUT"    help:"The maximum duration of a smoke test."`
	Simulation         simulationConfig `cli:",hidden" env:"-"                               help:"Simulated scene configuration."`
	Events             eventsConfig     `cli:",hidden" env:"-"                               help:"Event pusher configuration."`
	FeatureFlags       []string         `cli:",hidden" env:"OCCLUSION_FEATURE_FLAGS"         help:"Comma separated feature flags"`
	Version            bool             `cli:""        env:"-"                               help:"Show version."`
	Help               bool             `cli:""        env:"-"                               help:"Show help."`
}

type simulationConfig struct {
	StaticEntities  int           `cli:",hidden" env:"OCCLUSION_SIMULATION_STATIC_ENTITIES"  help:"The number of static entities."`
	DynamicEntities int           `cli:",hidden" env:"OCCLUSION_SIMULATION_DYNAMIC_ENTITIES" help:"The number of moving entities."`
	Lights          int           `cli:",hidden" env:"OCCLUSION_SIMULATION_LIGHTS"           help:"The number of moving lights."`
	WorldSize       float64       `cli:",hidden" env:"OCCLUSION_SIMULATION_WORLD_SIZE"       help:"The edge length of the simulated world."`
	Speed           float64       `cli:",hidden" env:"OCCLUSION_SIMULATION_SPEED"            help:"The maximum speed of moving entities, per second."`
	TickInterval    time.Duration `cli:",hidden" env:"OCCLUSION_SIMULATION_TICK_INTERVAL"    help:"The duration between each entity move."`
}

type eventsConfig struct {
	Endpoint      string        `cli:",hidden" env:"OCCLUSION_EVENTS_ENDPOINT"       help:"Endpoint to where events are pushed."`
	FlushInterval time.Duration `cli:",hidden" env:"OCCLUSION_EVENTS_FLUSH_INTERVAL" help:"The duration between each event flush."`
	BatchSize     int           `cli:",hidden" env:"OCCLUSION_EVENTS_BATCH_SIZE"     help:"The maximum number of events sent at once."`
	QueueSize     int           `cli:",hidden" env:"OCCLUSION_EVENTS_QUEUE_SIZE"     help:"The size of the queue where events are stored."`
}

func main() {
	conf := config{
		Addr:               ":4000",
		AdminAddr:          ":18190",
		PublicEndpoint:     "http://localhost:4000",
		AllowedOrigins:     []string{"*"},
		LogLevel:           logs.InfoLevel.String(),
		TreeCapacity:       bvh.DefaultInitialCapacity,
		ClientIdleTimeout:  time.Minute * 5,
		FrameDuration:      time.Millisecond * 15,
		LogSummaryInterval: time.Minute,
		SmokeTestTimeout:   time.Second * 10,
		Simulation: simulationConfig{
			StaticEntities:  1000,
			DynamicEntities: 200,
			Lights:          20,
			WorldSize:       500,
			Speed:           5,
			TickInterval:    time.Millisecond * 50,
		},
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
		Help("Starts the occlusion server.").
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
			SDKType:          "occlusion",
			SDKVersionFamily: version,
		}
		logs.SetLogger(eventsLogger.Log)
	}

	flags := featureflag.New(conf.FeatureFlags)

	var scheduler jobs.Scheduler = jobs.Inline{}
	if !flags.IsSet(featureflag.FlagInlineJobs) {
		pool := jobs.NewPool(conf.Workers, 0)
		defer pool.Close()
		scheduler = pool
	}

	manager := models.NewManager(
		occlusion.WithName("scene"),
		occlusion.WithScheduler(scheduler),
		occlusion.WithTreeOptions(
			bvh.WithInitialCapacity(conf.TreeCapacity),
			bvh.WithValidation(flags.IsSet(featureflag.FlagValidateTrees)),
			bvh.WithRebalance(!flags.IsSet(featureflag.FlagDisableRebalance)),
		),
	)

	scene := models.NewScene(1, conf.FrameDuration, manager)
	defer scene.Close()

	sim, err := newSimulation(scene, conf.Simulation)
	if err != nil {
		logs.Fatal(errors.New("creating simulation failed").Wrap(err))
	}

	var service http.ServeMux
	service.Handle("/health", occlusionhttp.HandleWithCORS(http.HandlerFunc(occlusionhttp.HandleHealthCheck), conf.AllowedOrigins...))
	service.Handle("/version", occlusionhttp.HandleWithCORS(occlusionhttp.HandleVersion(version), conf.AllowedOrigins...))
	service.Handle("/query", occlusionhttp.HandleWithCORS(
		occlusionhttp.VerifyAPIKeyHandler(conf.APIKey, occlusionhttp.HandleQuery(scene)),
		conf.AllowedOrigins...,
	))
	service.HandleFunc("/smoke-test", occlusionhttp.VerifyAPIKeyHandler(conf.APIKey, smoketest.HandleSmokeTest(ctx, smoketest.Options{
		Scheduler: scheduler,
		Timeout:   conf.SmokeTestTimeout,
		SendResult: func(_ context.Context, res smoketest.Results) error {
			logs.WithTag("status", res.Status).
				WithTag("duration_ms", res.DurationMilliSec).
				Info("smoke test completed")
			return nil
		},
	})))

	readinessCheck := func() bool {
		return ctx.Err() == nil
	}
	service.Handle("/ready", occlusionhttp.HandleWithCORS(occlusionhttp.HandleReadyCheck(readinessCheck), conf.AllowedOrigins...))

	flags.IfNotSet(featureflag.FlagDisableWebsocket, func() {
		service.Handle("/", occlusionhttp.HandleWithCORS(websocket.Server{
			Handshake: occlusionhttp.VerifyAPIKey(conf.APIKey),
			Handler: func(conn *websocket.Conn) {
				defer conn.Close()

				var vh owebsocket.Handler = &owebsocket.VisibilityHandler{
					Scene:             scene,
					ClientIdleTimeout: conf.ClientIdleTimeout,
				}
				h := owebsocket.HandlerWithLogs(vh, conf.LogSummaryInterval)
				h = owebsocket.HandlerWithMetrics(h, conf.PublicEndpoint)
				defer h.Close()

				owebsocket.Handle(ctx, conn, h)
			},
		}, conf.AllowedOrigins...))
	})

	var admin http.ServeMux
	admin.Handle("/metrics", promhttp.Handler())
	admin.HandleFunc("/health", occlusionhttp.HandleHealthCheck)
	admin.HandleFunc("/debug/pprof/", pprof.Index)
	admin.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	admin.HandleFunc("/debug/pprof/profile", pprof.Profile)
	admin.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	admin.HandleFunc("/debug/pprof/trace", pprof.Trace)
	admin.Handle("/debug/pprof/goroutine", pprof.Handler("goroutine"))
	admin.Handle("/debug/pprof/heap", pprof.Handler("heap"))
	admin.Handle("/debug/pprof/threadcreate", pprof.Handler("threadcreate"))
	admin.Handle("/debug/pprof/block", pprof.Handler("block"))
	admin.HandleFunc("/ready", occlusionhttp.HandleReadyCheck(readinessCheck))

	logs.WithTag("version", version).
		WithTag("log_level", conf.LogLevel).
		WithTag("endpoint", conf.PublicEndpoint).
		WithTag("scene", scene.SceneUUID).
		WithTag("feature_flags", flags.Flags()).
		Info("starting occlusion server")

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		scene.StartDispatchFrames()
		return nil
	})

	g.Go(func() error {
		defer scene.Close()
		return sim.Run(ctx, conf.Simulation.TickInterval)
	})

	g.Go(func() error {
		occlusionhttp.ListenAndServe(ctx,
			&http.Server{Addr: conf.Addr, Handler: metrics.HTTPHandler(&service,
				occlusionhttp.MetricsPathFormatter)},
			&http.Server{Addr: conf.AdminAddr, Handler: &admin},
		)
		return nil
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		logs.Error(errors.New("occlusion server stopped").Wrap(err))
	}
}

func validateConfig(conf config) error {
	if _, err := url.ParseRequestURI(conf.PublicEndpoint); err != nil {
		return errors.New("invalid public endpoint").Wrap(err)
	}

	if conf.FrameDuration <= 0 {
		return errors.New("frame duration must be positive").
			WithTag("frame_duration", conf.FrameDuration)
	}

	if conf.TreeCapacity <= 0 {
		return errors.New("tree capacity must be positive").
			WithTag("tree_capacity", conf.TreeCapacity)
	}

	sim := conf.Simulation
	if sim.StaticEntities < 0 || sim.DynamicEntities < 0 || sim.Lights < 0 {
		return errors.New("simulated entity counts cannot be negative")
	}

	if sim.WorldSize <= 0 {
		return errors.New("simulated world size must be positive").
			WithTag("world_size", sim.WorldSize)
	}

	if sim.TickInterval <= 0 {
		return errors.New("simulation tick interval must be positive").
			WithTag("tick_interval", sim.TickInterval)
	}

	return nil
}
