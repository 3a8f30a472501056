package main

import (
	"errors"
	"strconv"

	"github.com/couchbase/cluster-ready/pkg/app_config"
	"github.com/couchbase/cluster-ready/readiness"
	"github.com/couchbase/cluster-ready/utils/secretsmanager"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var kafkaReadyCmd = &cobra.Command{
	Use:   "kafka-ready <min-expected-brokers> <timeout-ms>",
	Short: "Check if Kafka is ready",
	Long: "Waits until the cluster reports at least the expected number of brokers. " +
		"The bootstrap servers are either given with -b or discovered from the " +
		"ensemble with -z.",
	Args: argsOrHelp(2),

	RunE: runKafkaReady,
}

var (
	kafkaClientConfig     string
	kafkaBootstrapServers string
	kafkaEnsembleConnect  string
	kafkaSecurityProtocol string
)

func init() {
	kafkaReadyCmd.Flags().StringVarP(&kafkaClientConfig, "config", "c", "", "client properties file")
	kafkaReadyCmd.Flags().StringVarP(&kafkaBootstrapServers, "bootstrap-servers", "b", "", "list of bootstrap brokers")
	kafkaReadyCmd.Flags().StringVarP(&kafkaEnsembleConnect, "zookeeper-connect", "z", "", "ensemble connect string used to discover a bootstrap broker")
	kafkaReadyCmd.Flags().StringVarP(&kafkaSecurityProtocol, "security-protocol", "s", "PLAINTEXT", "which broker endpoint to connect to")
	kafkaReadyCmd.MarkFlagsMutuallyExclusive("bootstrap-servers", "zookeeper-connect")

	credsFlags := pflag.NewFlagSet("", pflag.ContinueOnError)
	credsFlags.String("sasl-creds-aws-id", "", "id of secret in aws sm storing sasl credentials")
	credsFlags.String("sasl-creds-aws-region", "", "region of sasl-creds-aws-id secret")
	credsFlags.String("sasl-creds-azure-id", "", "id of secret in azure kv storing sasl credentials")
	credsFlags.String("sasl-creds-azure-vault-name", "", "name of key vault storing sasl-creds-azure-id")
	credsFlags.String("sasl-creds-gcp-id", "", "id of secret in gcp sm storing sasl credentials")
	credsFlags.String("sasl-creds-gcp-project-id", "", "id of project containing sasl-creds-gcp-id")
	kafkaReadyCmd.Flags().AddFlagSet(credsFlags)

	_ = viper.BindPFlags(credsFlags)
}

func readSecretSource() secretsmanager.Source {
	return secretsmanager.Source{
		AwsID:          viper.GetString("sasl-creds-aws-id"),
		AwsRegion:      viper.GetString("sasl-creds-aws-region"),
		AzureID:        viper.GetString("sasl-creds-azure-id"),
		AzureVaultName: viper.GetString("sasl-creds-azure-vault-name"),
		GcpID:          viper.GetString("sasl-creds-gcp-id"),
		GcpProjectID:   viper.GetString("sasl-creds-gcp-project-id"),
	}
}

func runKafkaReady(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return cmd.Help()
	}
	cmd.SilenceUsage = true

	minBrokers, err := strconv.Atoi(args[0])
	if err != nil {
		return errors.New("min-expected-brokers must be an integer")
	}

	timeout, err := parseTimeoutMs(args[1])
	if err != nil {
		return err
	}

	req := readiness.KafkaReadyRequest{
		MinBrokers:       minBrokers,
		Timeout:          timeout,
		BootstrapServers: kafkaBootstrapServers,
		EnsembleConnect:  kafkaEnsembleConnect,
		SecurityProtocol: kafkaSecurityProtocol,
	}

	if kafkaClientConfig != "" {
		req.ClientProperties, err = app_config.LoadClientProperties(kafkaClientConfig)
		if err != nil {
			return err
		}
	}

	secretSource := readSecretSource()
	if secretSource.Configured() {
		logger.Info("fetching sasl credentials from cloud secret store")
		req.SaslUsername, req.SaslPassword, err = secretsmanager.FetchCredentials(cmd.Context(), secretSource)
		if err != nil {
			return err
		}
	}

	checker, err := newChecker()
	if err != nil {
		return err
	}

	logger.Debug("checking kafka readiness",
		zap.Int("minBrokers", minBrokers),
		zap.Duration("timeout", timeout),
		zap.String("bootstrapServers", kafkaBootstrapServers),
		zap.String("zookeeperConnect", kafkaEnsembleConnect),
		zap.String("securityProtocol", kafkaSecurityProtocol),
		zap.String("config", kafkaClientConfig))

	err = checker.WaitForCluster(cmd.Context(), req)
	if err != nil {
		return err
	}

	logger.Info("kafka is ready", zap.Int("minBrokers", minBrokers))
	return nil
}
