package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/couchbase/cluster-ready/common/coordination"
	"github.com/couchbase/cluster-ready/common/coordination/etcdcoord"
	"github.com/couchbase/cluster-ready/common/coordination/zkcoord"
	"github.com/couchbase/cluster-ready/common/membership"
	"github.com/couchbase/cluster-ready/pkg/metrics"
	"github.com/couchbase/cluster-ready/readiness"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var errNotReady = errors.New("not ready")

var rootCmd = &cobra.Command{
	Version: metrics.BuildVersion,

	Use:   "cluster-ready",
	Short: "Checks whether a coordination ensemble and a Kafka cluster are ready",

	SilenceErrors: true,

	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadCliConfig()
	},
}

var cliCfgFile string

var logLevel zap.AtomicLevel
var logger *zap.Logger

func init() {
	rootCmd.PersistentFlags().StringVar(&cliCfgFile, "cli-config", "", "specifies a config file to load settings from")

	configFlags := pflag.NewFlagSet("", pflag.ContinueOnError)
	configFlags.String("log-level", "info", "the log level to run at")
	configFlags.String("zk-auth-config", "", "path to a JAAS file with a Client section, enables authenticated ensemble sessions")
	configFlags.String("coordination-backend", "zookeeper", "the coordination service the ensemble runs, zookeeper or etcd")
	configFlags.String("registration-path", membership.DefaultRegistrationPath, "the path brokers register themselves under")
	rootCmd.PersistentFlags().AddFlagSet(configFlags)

	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.SetEnvPrefix("cr")
	viper.AutomaticEnv()

	_ = viper.BindPFlags(configFlags)

	rootCmd.AddCommand(zkReadyCmd, kafkaReadyCmd, serveCmd, docCmd)
}

func getLogger() (zap.AtomicLevel, *zap.Logger) {
	logLevel := zap.NewAtomicLevel()
	logConfig := zap.NewProductionEncoderConfig()
	logConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	jsonEncoder := zapcore.NewJSONEncoder(logConfig)
	core := zapcore.NewTee(
		zapcore.NewCore(jsonEncoder, zapcore.AddSync(os.Stdout), logLevel),
	)
	logger := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))

	return logLevel, logger
}

func applyLogLevel(levelStr string) {
	parsedLogLevel, err := zapcore.ParseLevel(levelStr)
	if err != nil {
		logger.Warn("invalid log level specified, using INFO instead",
			zap.String("logLevel", levelStr))
		parsedLogLevel = zapcore.InfoLevel
	}
	logLevel.SetLevel(parsedLogLevel)
}

func loadCliConfig() error {
	if cliCfgFile != "" {
		viper.SetConfigFile(cliCfgFile)
		err := viper.ReadInConfig()
		if err != nil {
			return fmt.Errorf("failed to load specified config file: %w", err)
		}
	}

	applyLogLevel(viper.GetString("log-level"))
	return nil
}

// argsOrHelp accepts either no arguments, which shows help, or exactly n.
func argsOrHelp(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 || len(args) == n {
			return nil
		}
		return fmt.Errorf("accepts %d arg(s), received %d", n, len(args))
	}
}

func parseTimeoutMs(s string) (time.Duration, error) {
	timeoutMs, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout %q, expected milliseconds", s)
	}
	return time.Duration(timeoutMs) * time.Millisecond, nil
}

func newDialer(backend string) (coordination.Dialer, error) {
	switch strings.ToLower(backend) {
	case "", "zookeeper", "zk":
		return zkcoord.NewDialer(zkcoord.DialerOptions{
			Logger: logger,
		}), nil
	case "etcd":
		return etcdcoord.NewDialer(etcdcoord.DialerOptions{
			Logger: logger,
		}), nil
	}
	return nil, fmt.Errorf("unknown coordination backend %q", backend)
}

func newChecker() (*readiness.Checker, error) {
	dialer, err := newDialer(viper.GetString("coordination-backend"))
	if err != nil {
		return nil, err
	}

	// the auth configuration is read once, an unusable file is fatal
	creds, err := coordination.CredentialsFromAuthConfig(viper.GetString("zk-auth-config"))
	if err != nil {
		return nil, err
	}

	return readiness.NewChecker(readiness.CheckerOptions{
		Logger:           logger.Named("readiness"),
		Dialer:           dialer,
		Credentials:      creds,
		RegistrationPath: viper.GetString("registration-path"),
	}), nil
}

func main() {
	logLevel, logger = getLogger()

	err := rootCmd.Execute()
	_ = logger.Sync()

	if err != nil {
		// readiness failures have been logged by the checks themselves
		if !errors.Is(err, errNotReady) && !errors.Is(err, readiness.ErrNotReady) {
			logger.Error("command failed", zap.Error(err))
		}
		os.Exit(1)
	}
}
