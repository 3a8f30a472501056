package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/couchbase/cluster-ready/common/metadataclient"
	"github.com/couchbase/cluster-ready/pkg/app_config"
	"github.com/couchbase/cluster-ready/pkg/webapi"
	"github.com/couchbase/cluster-ready/readiness"
	"github.com/couchbase/cluster-ready/utils/selfsignedcert"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Continuously monitor readiness and serve the results over http",
	Args:  cobra.NoArgs,

	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return startMonitor()
	},
}

var watchCfgFile bool

func init() {
	serveCmd.Flags().BoolVar(&watchCfgFile, "watch-config", false, "indicates whether to watch the config files for changes")

	serveFlags := pflag.NewFlagSet("", pflag.ContinueOnError)
	serveFlags.String("ensemble-connect", "", "ensemble connect string to monitor")
	serveFlags.String("cluster-bootstrap-servers", "", "bootstrap brokers of the cluster to monitor")
	serveFlags.String("cluster-config", "", "client properties file for the cluster to monitor")
	serveFlags.Int("min-brokers", 1, "brokers required for the cluster to be ready")
	serveFlags.Duration("interval", readiness.DefaultMonitorInterval, "time between checks of a ready component")
	serveFlags.Duration("check-timeout", readiness.DefaultMonitorCheckTimeout, "timeout of a single check")
	serveFlags.String("bind-address", "0.0.0.0", "the local address to bind to")
	serveFlags.Int("web-port", 9091, "the web readiness/metrics port")
	serveFlags.Bool("self-sign", false, "serve https with a self-signed certificate")
	serveFlags.String("cert", "", "path to tls cert for the web port")
	serveFlags.String("key", "", "path to private tls key for the web port")
	serveFlags.String("otlp-endpoint", "", "opentelemetry endpoint to send telemetry to")
	serveFlags.Bool("disable-otlp-traces", false, "disable sending traces to otlp")
	serveFlags.Bool("disable-otlp-metrics", false, "disable sending metrics to otlp")
	serveFlags.Bool("trace-everything", false, "enables tracing of all checks")
	serveCmd.Flags().AddFlagSet(serveFlags)

	_ = viper.BindPFlags(serveFlags)
}

func initTelemetry(
	ctx context.Context,
	logger *zap.Logger,
	otlpEndpoint string,
	enableTraces bool,
	enableMetrics bool,
	traceEverything bool,
) (
	*sdktrace.TracerProvider,
	*sdkmetric.MeterProvider,
	error,
) {
	res, err := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithProcess(),
		resource.WithTelemetrySDK(),
		resource.WithHost(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String("cluster-ready"),
		),
	)
	if err != nil {
		if res == nil {
			return nil, nil, err
		}

		logger.Warn("failed to setup some part of opentelemetry resource", zap.Error(err))
	}

	promExp, err := prometheus.New()
	if err != nil {
		return nil, nil, err
	}

	meterOpts := []sdkmetric.Option{
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(promExp),
	}
	if enableMetrics && otlpEndpoint != "" {
		metricExp, err := otlpmetricgrpc.New(
			ctx,
			otlpmetricgrpc.WithInsecure(),
			otlpmetricgrpc.WithEndpoint(otlpEndpoint))
		if err != nil {
			return nil, nil, err
		}

		meterOpts = append(meterOpts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)))
	}
	meterProvider := sdkmetric.NewMeterProvider(meterOpts...)

	var tracerProvider *sdktrace.TracerProvider
	if enableTraces && otlpEndpoint != "" {
		traceClient := otlptracegrpc.NewClient(
			otlptracegrpc.WithInsecure(),
			otlptracegrpc.WithEndpoint(otlpEndpoint))
		traceExp, err := otlptrace.New(ctx, traceClient)
		if err != nil {
			return nil, nil, err
		}

		baseTracing := sdktrace.NeverSample()
		if traceEverything {
			baseTracing = sdktrace.AlwaysSample()
		}

		tracerProvider = sdktrace.NewTracerProvider(
			sdktrace.WithSampler(sdktrace.ParentBased(baseTracing)),
			sdktrace.WithResource(res),
			sdktrace.WithSpanProcessor(sdktrace.NewBatchSpanProcessor(traceExp)),
		)
	}

	return tracerProvider, meterProvider, nil
}

type serveConfig struct {
	logLevelStr             string
	ensembleConnect         string
	clusterBootstrapServers string
	clusterConfig           string
	minBrokers              int
	interval                time.Duration
	checkTimeout            time.Duration
	bindAddress             string
	webPort                 int
	selfSign                bool
	certPath                string
	keyPath                 string
	otlpEndpoint            string
	disableOtlpTraces       bool
	disableOtlpMetrics      bool
	traceEverything         bool
}

func readServeConfig(logger *zap.Logger) *serveConfig {
	config := &serveConfig{
		logLevelStr:             viper.GetString("log-level"),
		ensembleConnect:         viper.GetString("ensemble-connect"),
		clusterBootstrapServers: viper.GetString("cluster-bootstrap-servers"),
		clusterConfig:           viper.GetString("cluster-config"),
		minBrokers:              viper.GetInt("min-brokers"),
		interval:                viper.GetDuration("interval"),
		checkTimeout:            viper.GetDuration("check-timeout"),
		bindAddress:             viper.GetString("bind-address"),
		webPort:                 viper.GetInt("web-port"),
		selfSign:                viper.GetBool("self-sign"),
		certPath:                viper.GetString("cert"),
		keyPath:                 viper.GetString("key"),
		otlpEndpoint:            viper.GetString("otlp-endpoint"),
		disableOtlpTraces:       viper.GetBool("disable-otlp-traces"),
		disableOtlpMetrics:      viper.GetBool("disable-otlp-metrics"),
		traceEverything:         viper.GetBool("trace-everything"),
	}

	logger.Info("parsed monitor configuration",
		zap.String("logLevelStr", config.logLevelStr),
		zap.String("ensembleConnect", config.ensembleConnect),
		zap.String("clusterBootstrapServers", config.clusterBootstrapServers),
		zap.String("clusterConfig", config.clusterConfig),
		zap.Int("minBrokers", config.minBrokers),
		zap.Duration("interval", config.interval),
		zap.Duration("checkTimeout", config.checkTimeout),
		zap.String("bindAddress", config.bindAddress),
		zap.Int("webPort", config.webPort),
		zap.Bool("selfSign", config.selfSign),
		zap.String("certPath", config.certPath),
		zap.String("keyPath", config.keyPath),
		zap.String("otlpEndpoint", config.otlpEndpoint),
		zap.Bool("disableOtlpTraces", config.disableOtlpTraces),
		zap.Bool("disableOtlpMetrics", config.disableOtlpMetrics),
		zap.Bool("traceEverything", config.traceEverything))

	return config
}

// buildClusterConfig returns nil when no cluster is to be monitored.
func buildClusterConfig(config *serveConfig) (*metadataclient.Config, error) {
	if config.clusterConfig == "" && config.clusterBootstrapServers == "" {
		return nil, nil
	}

	props := make(map[string]string)
	if config.clusterConfig != "" {
		loaded, err := app_config.LoadClientProperties(config.clusterConfig)
		if err != nil {
			return nil, err
		}
		props = loaded
	}

	if config.clusterBootstrapServers != "" {
		props[metadataclient.KeyBootstrapServers] = config.clusterBootstrapServers
	}

	return metadataclient.ConfigFromProperties(props)
}

func loadWebCertificate(config *serveConfig) (*tls.Certificate, error) {
	if config.certPath != "" && config.keyPath != "" {
		cert, err := tls.LoadX509KeyPair(config.certPath, config.keyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load tls certificate: %w", err)
		}
		return &cert, nil
	}

	if config.certPath != "" || config.keyPath != "" {
		return nil, fmt.Errorf("must specify both cert and key")
	}

	if config.selfSign {
		return selfsignedcert.GenerateCertificate(config.bindAddress, "localhost")
	}

	return nil, nil
}

func startMonitor() error {
	logger.Info("starting cluster-ready monitor", zap.String("version", rootCmd.Version))

	logger.Info("parsed launch configuration",
		zap.String("cli-config", cliCfgFile),
		zap.Bool("watch-config", watchCfgFile))

	config := readServeConfig(logger)

	otlpTracerProvider, otlpMeterProvider, err :=
		initTelemetry(context.Background(),
			logger,
			config.otlpEndpoint,
			!config.disableOtlpTraces,
			!config.disableOtlpMetrics,
			config.traceEverything)
	if err != nil {
		return fmt.Errorf("failed to initialize opentelemetry: %w", err)
	}

	if otlpTracerProvider != nil {
		otel.SetTracerProvider(otlpTracerProvider)
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
		defer func() {
			_ = otlpTracerProvider.Shutdown(context.Background())
		}()
	}
	otel.SetMeterProvider(otlpMeterProvider)
	defer func() {
		_ = otlpMeterProvider.Shutdown(context.Background())
	}()

	clusterConfig, err := buildClusterConfig(config)
	if err != nil {
		return err
	}

	checker, err := newChecker()
	if err != nil {
		return err
	}

	monitor, err := readiness.NewMonitor(readiness.MonitorOptions{
		Logger:          logger.Named("monitor"),
		Checker:         checker,
		EnsembleConnect: config.ensembleConnect,
		ClusterConfig:   clusterConfig,
		MinBrokers:      config.minBrokers,
		CheckTimeout:    config.checkTimeout,
		Interval:        config.interval,
	})
	if err != nil {
		return err
	}

	webCertificate, err := loadWebCertificate(config)
	if err != nil {
		return err
	}

	webServer := webapi.NewWebServer(webapi.WebServerOptions{
		Logger:         logger.Named("webapi"),
		LogLevel:       &logLevel,
		ListenAddress:  fmt.Sprintf("%s:%v", config.bindAddress, config.webPort),
		Status:         monitor,
		TLSCertificate: webCertificate,
	})

	reloadClusterConfig := func() {
		if clusterConfig == nil {
			return
		}

		newClusterConfig, err := buildClusterConfig(readServeConfig(logger))
		if err != nil {
			logger.Warn("failed to reload cluster configuration", zap.Error(err))
			return
		}
		if newClusterConfig == nil {
			logger.Warn("cluster monitoring cannot be disabled without a restart")
			return
		}

		monitor.SetClusterConfig(newClusterConfig)
		logger.Info("updated cluster configuration")
	}

	var configLock sync.Mutex
	reloadConfiguration := func() {
		configLock.Lock()
		defer configLock.Unlock()

		if cliCfgFile != "" {
			err := viper.ReadInConfig()
			if err != nil {
				logger.Warn("failed to parse configuration file",
					zap.Error(err))
			}
		}

		newConfig := readServeConfig(logger)

		if newConfig.ensembleConnect != config.ensembleConnect ||
			newConfig.minBrokers != config.minBrokers ||
			newConfig.interval != config.interval ||
			newConfig.checkTimeout != config.checkTimeout {
			logger.Warn("config changes for ensembleConnect, minBrokers, interval, or checkTimeout require a restart")
		}

		if newConfig.bindAddress != config.bindAddress ||
			newConfig.webPort != config.webPort ||
			newConfig.selfSign != config.selfSign ||
			newConfig.certPath != config.certPath ||
			newConfig.keyPath != config.keyPath {
			logger.Warn("config changes for bindAddress, webPort, selfSign, certPath, or keyPath require a restart")
		}

		if newConfig.otlpEndpoint != config.otlpEndpoint ||
			newConfig.disableOtlpTraces != config.disableOtlpTraces ||
			newConfig.disableOtlpMetrics != config.disableOtlpMetrics ||
			newConfig.traceEverything != config.traceEverything {
			logger.Warn("config changes for otlpEndpoint, disableOtlpTraces, disableOtlpMetrics, or traceEverything require a restart")
		}

		if newConfig.logLevelStr != config.logLevelStr {
			applyLogLevel(newConfig.logLevelStr)
			logger.Info("updated log level",
				zap.String("newLevel", logLevel.Level().String()))
		}

		config = newConfig
		reloadClusterConfig()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if watchCfgFile {
		if cliCfgFile != "" {
			viper.OnConfigChange(func(in fsnotify.Event) {
				logger.Info("configuration file change detected")
				reloadConfiguration()
			})

			go viper.WatchConfig()
		}

		if config.clusterConfig != "" {
			clusterWatcher, err := app_config.NewConfigWatcher(logger.Named("cluster-config"), config.clusterConfig)
			if err != nil {
				return err
			}
			defer clusterWatcher.Close()

			go func() {
				for range clusterWatcher.Updates() {
					configLock.Lock()
					reloadClusterConfig()
					configLock.Unlock()
				}
			}()
		}
	}

	go func() {
		sigCh := make(chan os.Signal, 10)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

		hasReceivedSigInt := false
		for sig := range sigCh {
			if sig == syscall.SIGINT {
				if hasReceivedSigInt {
					logger.Info("Received SIGINT a second time, terminating...")
					os.Exit(1)
				} else {
					logger.Info("Received SIGINT, attempting graceful shutdown...")
					hasReceivedSigInt = true
					cancel()
				}
			} else if sig == syscall.SIGTERM {
				logger.Info("Received SIGTERM, attempting graceful shutdown...")
				cancel()
			} else if sig == syscall.SIGHUP {
				logger.Info("Received SIGHUP, reloading configuration...")
				reloadConfiguration()
			}
		}
	}()

	webErrCh := make(chan error, 1)
	go func() {
		webErrCh <- webServer.ListenAndServe()
	}()

	monitorDoneCh := make(chan struct{})
	go func() {
		_ = monitor.Run(ctx)
		close(monitorDoneCh)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-webErrCh:
		if err != nil {
			runErr = fmt.Errorf("failed to serve web api: %w", err)
		}
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	err = webServer.Shutdown(shutdownCtx)
	if err != nil {
		logger.Warn("failed to shutdown web server", zap.Error(err))
	}
	<-monitorDoneCh

	if runErr != nil {
		return runErr
	}

	logger.Info("monitor shutdown gracefully")
	return nil
}
