package testutils

import (
	"os"
	"testing"
)

// Config points integration tests at externally provided services.  Tests
// which need a service that is not configured are skipped.
type Config struct {
	ZookeeperConnStr string
	EtcdEndpoint     string
	KafkaBootstrap   string
}

var globalTestConfig *Config

func GetTestConfig(t *testing.T) *Config {
	if globalTestConfig == nil {
		testConfig := &Config{
			EtcdEndpoint: "localhost:2379",
		}

		envZookeeper := os.Getenv("CRTEST_ZOOKEEPER")
		if envZookeeper != "" {
			testConfig.ZookeeperConnStr = envZookeeper
		}

		envEtcd := os.Getenv("CRTEST_ETCD")
		if envEtcd != "" {
			testConfig.EtcdEndpoint = envEtcd
		}

		envKafka := os.Getenv("CRTEST_KAFKA_BOOTSTRAP")
		if envKafka != "" {
			testConfig.KafkaBootstrap = envKafka
		}

		t.Logf("initialized test configuration")
		t.Logf("  zookeeper: %s", testConfig.ZookeeperConnStr)
		t.Logf("  etcd: %s", testConfig.EtcdEndpoint)
		t.Logf("  kafka: %s", testConfig.KafkaBootstrap)

		globalTestConfig = testConfig
	}

	return globalTestConfig
}

// RequireZookeeper returns the zookeeper connect string or skips the test.
func RequireZookeeper(t *testing.T) string {
	connStr := GetTestConfig(t).ZookeeperConnStr
	if connStr == "" {
		t.Skip("CRTEST_ZOOKEEPER not set, skipping zookeeper integration test")
	}
	return connStr
}

// RequireKafka returns the kafka bootstrap servers or skips the test.
func RequireKafka(t *testing.T) string {
	bootstrap := GetTestConfig(t).KafkaBootstrap
	if bootstrap == "" {
		t.Skip("CRTEST_KAFKA_BOOTSTRAP not set, skipping kafka integration test")
	}
	return bootstrap
}
