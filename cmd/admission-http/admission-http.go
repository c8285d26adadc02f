package main

import (
	"flag"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	awsSession "github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/sns"
	"github.com/go-kit/log"
	"github.com/gorilla/mux"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	_ "github.com/lib/pq"

	"github.com/truxe-io/admission/core"
	handler "github.com/truxe-io/admission/handler/http"
	"github.com/truxe-io/admission/platform/counter"
	"github.com/truxe-io/admission/platform/metrics"
	"github.com/truxe-io/admission/platform/redis"
	"github.com/truxe-io/admission/service/alert"
	"github.com/truxe-io/admission/service/block"
	"github.com/truxe-io/admission/service/breaker"
	"github.com/truxe-io/admission/service/detector"
	"github.com/truxe-io/admission/service/limiter"
	"github.com/truxe-io/admission/service/plan"
	"github.com/truxe-io/admission/service/policy"
)

// Logging and telemetry identifiers.
const (
	component        = "admission-http"
	namespaceCounter = "counter"
	namespaceLimiter = "limiter"
	storeMemory      = "memory"
	storePostgres    = "postgres"
	storeRedis       = "redis"
)

// Prefixes.
const (
	prefixCounter = "admission"
)

// Timeouts.
const (
	defaultReadTimeout  = 2 * time.Second
	defaultWriteTimeout = 3 * time.Second
)

// Buildtime vars.
var (
	revision = "0000000-dev"
)

func main() {
	var (
		begin = time.Now()

		alertTopic       = flag.String("alert.topic", "", "SNS topic ARN alerts are published to")
		awsID            = flag.String("aws.id", "", "Identifier for AWS requests")
		awsRegion        = flag.String("aws.region", "us-east-1", "AWS Region to operate in")
		awsSecret        = flag.String("aws.secret", "", "Identification secret for AWS requests")
		detectorInterval = flag.Duration("detector.interval", detector.DefaultInterval, "Interval between abuse detection cycles")
		listenAddr       = flag.String("listen.addr", ":8084", "HTTP bind address for the admission API")
		postgresURL      = flag.String("postgres.url", "", "Postgres URL of the billing store")
		redisAddr        = flag.String("redis.addr", ":6379", "Redis address to connect to")
		telemetryAddr    = flag.String("telemetry.addr", ":9000", "HTTP bind address where prometheus telemetry is exposed")
	)
	flag.Parse()

	// Setup logging.
	logger := log.With(
		log.NewJSONLogger(os.Stdout),
		"caller", log.Caller(3),
		"component", component,
		"revision", revision,
	)

	hostname, err := os.Hostname()
	if err != nil {
		logger.Log("err", err, "lifecycle", "abort")
		os.Exit(1)
	}

	logger = log.With(logger, "host", hostname)

	// Setup instrumentation.
	go func(addr string) {
		logger.Log(
			"duration", time.Since(begin).Nanoseconds(),
			"lifecycle", "start",
			"listen", addr,
			"sub", "telemetry",
		)

		http.Handle("/metrics", promhttp.Handler())

		err := http.ListenAndServe(addr, nil)
		if err != nil {
			logger.Log("err", err, "lifecycle", "abort", "sub", "telemetry")
			os.Exit(1)
		}
	}(*telemetryAddr)

	counterErrCount, counterOpCount, counterOpLatency := metrics.KeyMetrics(
		namespaceCounter,
		metrics.FieldComponent,
		metrics.FieldMethod,
		metrics.FieldNamespace,
		metrics.FieldStore,
	)

	limiterErrCount, limiterOpCount, limiterOpLatency := metrics.KeyMetrics(
		namespaceLimiter,
		metrics.FieldComponent,
		metrics.FieldDimension,
		metrics.FieldMethod,
		metrics.FieldNamespace,
		metrics.FieldStore,
	)

	// Setup clients.
	redisPool := redis.Pool(*redisAddr, "")

	var pgClient *sqlx.DB

	if *postgresURL != "" {
		pgClient, err = sqlx.Connect(storePostgres, *postgresURL)
		if err != nil {
			logger.Log("err", err, "lifecycle", "abort")
			os.Exit(1)
		}
	}

	// Setup services.
	var counters counter.Service
	counters = counter.RedisService(redisPool, prefixCounter)
	counters = counter.InstrumentServiceMiddleware(
		component,
		storeRedis,
		counterErrCount,
		counterOpCount,
		counterOpLatency,
	)(counters)

	var limits limiter.Service
	limits = limiter.WindowedService(counters)
	limits = limiter.InstrumentMiddleware(
		component,
		storeRedis,
		limiterErrCount,
		limiterOpCount,
		limiterOpLatency,
	)(limits)
	limits = limiter.LogMiddleware(logger, storeRedis)(limits)

	policies, err := policy.MemService(limiter.Rule{}, policy.Defaults())
	if err != nil {
		logger.Log("err", err, "lifecycle", "abort")
		os.Exit(1)
	}

	var plans plan.Service

	if pgClient != nil {
		plans = plan.PostgresService(pgClient)
		plans = plan.LogMiddleware(logger, storePostgres)(plans)
	} else {
		plans = plan.MemService()
		plans = plan.LogMiddleware(logger, storeMemory)(plans)
	}
	plans = plan.CacheMiddleware(counters)(plans)

	var sink alert.Sink
	sink = alert.LogSink(logger)

	if *alertTopic != "" {
		aSession := awsSession.New(&aws.Config{
			Credentials: credentials.NewStaticCredentials(*awsID, *awsSecret, ""),
			Region:      aws.String(*awsRegion),
		})

		sink = alert.FanoutSink(sink, alert.SNSSink(sns.New(aSession), *alertTopic))
	}

	sink = alert.SampleMiddleware(1, 5, alert.KindDenial)(sink)

	var breakers breaker.Service
	breakers = breaker.MemService(breaker.Options{
		OnTransition: func(dep string, from, to breaker.State) {
			_ = sink.Raise(alert.New(
				alert.KindBreakerState,
				alert.SeverityWarning,
				"breaker state changed",
				map[string]string{
					"dependency": dep,
					"from":       from.String(),
					"to":         to.String(),
				},
			))
		},
	})
	breakers = breaker.LogMiddleware(logger)(breakers)

	var blocks block.Service
	blocks = block.StoreService(counters)
	blocks = block.LogMiddleware(logger, storeRedis)(blocks)

	dtr := detector.New(
		counters,
		blocks,
		breakers,
		sink,
		*detectorInterval,
		detector.Thresholds{},
	)

	stop := make(chan struct{})
	defer close(stop)

	go dtr.Run(stop)

	// Setup facade.
	var (
		stats    = core.NewStats()
		evaluate = core.Evaluate(
			breakers,
			blocks,
			plans,
			policies,
			limits,
			counters,
			dtr.EmergencyActive,
			sink,
			stats,
		)
		authFailure = core.AuthFailure(counters, sink, stats)
	)

	// Setup middlewares.
	withAdmission := handler.Chain(
		handler.SecureHeaders(),
		handler.DebugHeaders(revision, hostname),
		handler.Admit(evaluate),
	)

	withAdmin := handler.Chain(
		handler.SecureHeaders(),
		handler.DebugHeaders(revision, hostname),
	)

	// Setup Router.
	router := mux.NewRouter().StrictSlash(true)

	router.Methods("GET").Path(`/health-45016490610398192`).Name("healthcheck").HandlerFunc(
		handler.Wrap(
			withAdmin,
			handler.Health(pgClient, redisPool),
		),
	)

	// Admitted operation routes. The route name doubles as the operation the
	// policy registry resolves.
	router.Methods("POST").Path(`/auth/login`).Name("login").HandlerFunc(
		handler.Wrap(
			withAdmission,
			handler.Admitted(),
		),
	)

	router.Methods("POST").Path(`/auth/magiclink`).Name("magiclink").HandlerFunc(
		handler.Wrap(
			withAdmission,
			handler.Admitted(),
		),
	)

	router.Methods("POST").Path(`/auth/signup`).Name("signup").HandlerFunc(
		handler.Wrap(
			withAdmission,
			handler.Admitted(),
		),
	)

	router.Methods("POST").Path(`/auth/token/refresh`).Name("token.refresh").HandlerFunc(
		handler.Wrap(
			withAdmission,
			handler.Admitted(),
		),
	)

	router.PathPrefix(`/api`).Name("api").HandlerFunc(
		handler.Wrap(
			withAdmission,
			handler.Admitted(),
		),
	)

	router.Methods("POST").Path(`/auth/failure`).Name("authFailure").HandlerFunc(
		handler.Wrap(
			withAdmin,
			handler.AuthFailure(authFailure),
		),
	)

	// Admin routes.
	router.Methods("PUT").Path(`/admin/policies/{operation}/{dimension}`).Name("ruleAdjust").HandlerFunc(
		handler.Wrap(
			withAdmin,
			handler.RuleAdjust(
				core.RuleAdjust(policies),
			),
		),
	)

	router.Methods("DELETE").Path(`/admin/counters/{namespace}/{key}`).Name("keyReset").HandlerFunc(
		handler.Wrap(
			withAdmin,
			handler.KeyReset(
				core.KeyReset(counters),
			),
		),
	)

	router.Methods("POST").Path(`/admin/blocks`).Name("addressBlock").HandlerFunc(
		handler.Wrap(
			withAdmin,
			handler.AddressBlock(
				core.AddressBlock(blocks),
			),
		),
	)

	router.Methods("DELETE").Path(`/admin/blocks/{address}`).Name("addressUnblock").HandlerFunc(
		handler.Wrap(
			withAdmin,
			handler.AddressUnblock(
				core.AddressUnblock(blocks),
			),
		),
	)

	router.Methods("GET").Path(`/admin/statistics`).Name("statistics").HandlerFunc(
		handler.Wrap(
			withAdmin,
			handler.Statistics(
				core.StatisticsGet(stats, breakers, dtr),
			),
		),
	)

	router.Methods("GET").Path(`/admin/thresholds`).Name("thresholdsGet").HandlerFunc(
		handler.Wrap(
			withAdmin,
			handler.ThresholdsGet(
				core.ThresholdsGet(dtr),
			),
		),
	)

	router.Methods("PUT").Path(`/admin/thresholds`).Name("thresholdsSet").HandlerFunc(
		handler.Wrap(
			withAdmin,
			handler.ThresholdsSet(
				core.ThresholdsSet(dtr),
			),
		),
	)

	// Setup server.
	server := &http.Server{
		Addr:         *listenAddr,
		Handler:      router,
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
	}

	logger.Log(
		"duration", time.Since(begin).Nanoseconds(),
		"lifecycle", "start",
		"listen", *listenAddr,
		"sub", "api",
	)

	err = server.ListenAndServe()
	if err != nil {
		logger.Log("err", err, "lifecycle", "abort", "sub", "api")
		os.Exit(1)
	}
}
