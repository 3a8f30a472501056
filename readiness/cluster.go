package readiness

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/couchbase/cluster-ready/common/metadataclient"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type pollState int

const (
	pollStateStart pollState = iota
	pollStatePoll
	pollStateBackoff
	pollStateReady
	pollStateTimedOut
)

func (s pollState) String() string {
	switch s {
	case pollStateStart:
		return "START"
	case pollStatePoll:
		return "POLL"
	case pollStateBackoff:
		return "BACKOFF"
	case pollStateReady:
		return "READY"
	case pollStateTimedOut:
		return "TIMED_OUT"
	}
	return "UNKNOWN"
}

// ClusterPollResult describes how a cluster readiness wait ended.
type ClusterPollResult struct {
	Ready         bool
	Attempts      int
	LastObserved  int
	Elapsed       time.Duration
	ObservedNodes []metadataclient.Broker
}

// IsClusterReady polls the cluster until at least minBrokers brokers are
// reported or timeout elapses.  At least one poll is always made.
func (c *Checker) IsClusterReady(
	ctx context.Context,
	cfg *metadataclient.Config,
	minBrokers int,
	timeout time.Duration,
) bool {
	return c.PollCluster(ctx, cfg, minBrokers, timeout).Ready
}

// pollLogLevels controls how loudly the outcome of a cluster wait is logged.
type pollLogLevels struct {
	ready    zapcore.Level
	timedOut zapcore.Level
}

var (
	waitPollLevels    = pollLogLevels{ready: zapcore.InfoLevel, timedOut: zapcore.ErrorLevel}
	monitorPollLevels = pollLogLevels{ready: zapcore.DebugLevel, timedOut: zapcore.DebugLevel}
)

// PollCluster is IsClusterReady with the details of the wait.
func (c *Checker) PollCluster(
	ctx context.Context,
	cfg *metadataclient.Config,
	minBrokers int,
	timeout time.Duration,
) ClusterPollResult {
	return c.pollCluster(ctx, cfg, minBrokers, timeout, waitPollLevels)
}

func (c *Checker) pollCluster(
	ctx context.Context,
	cfg *metadataclient.Config,
	minBrokers int,
	timeout time.Duration,
	levels pollLogLevels,
) ClusterPollResult {
	ctx, span := c.tracer.Start(ctx, "IsClusterReady",
		trace.WithAttributes(attribute.Int("minBrokers", minBrokers)))
	defer span.End()

	finder := c.newBrokerFinder(c.logger, cfg)

	// max.poll.timeout.ms from the client config wins over the checker default
	ceiling := c.requestCeiling
	if cfg.MaxPollTimeout > 0 {
		ceiling = cfg.MaxPollTimeout
	}

	var begin time.Time
	var remaining time.Duration
	var result ClusterPollResult
	b := backoff.NewConstantBackOff(c.backoffInterval)

	state := pollStateStart
	for {
		switch state {
		case pollStateStart:
			begin = time.Now()
			remaining = timeout
			state = pollStatePoll

		case pollStatePoll:
			brokers := c.pollOnce(ctx, finder, attemptTimeout(remaining, ceiling))
			result.Attempts++
			result.LastObserved = len(brokers)
			result.ObservedNodes = brokers

			c.metrics.PollAttempts.Add(ctx, 1)
			c.metrics.ObservedBrokers.Record(ctx, int64(len(brokers)))

			if len(brokers) >= minBrokers {
				state = pollStateReady
			} else {
				state = pollStateBackoff
			}

		case pollStateBackoff:
			remaining = timeout - time.Since(begin)
			if remaining > 0 {
				sleep := b.NextBackOff()
				if remaining < sleep {
					sleep = remaining
				}

				if !sleepContext(ctx, sleep) {
					state = pollStateTimedOut
					continue
				}
				remaining = timeout - time.Since(begin)
			}

			if remaining <= 0 {
				state = pollStateTimedOut
			} else {
				state = pollStatePoll
			}

		case pollStateReady:
			result.Ready = true
			result.Elapsed = time.Since(begin)
			c.logger.Log(levels.ready, "cluster is ready",
				zap.Int("brokers", result.LastObserved),
				zap.Int("attempts", result.Attempts))
			c.finishClusterPoll(ctx, span, result)
			return result

		case pollStateTimedOut:
			result.Elapsed = time.Since(begin)
			c.logger.Log(levels.timedOut, fmt.Sprintf("Expected %d brokers but found only %d. Brokers found %s.",
				minBrokers, result.LastObserved, formatBrokers(result.ObservedNodes)),
				zap.Int("attempts", result.Attempts),
				zap.Duration("elapsed", result.Elapsed))
			c.finishClusterPoll(ctx, span, result)
			return result
		}
	}
}

func (c *Checker) finishClusterPoll(ctx context.Context, span trace.Span, result ClusterPollResult) {
	span.SetAttributes(
		attribute.Bool("ready", result.Ready),
		attribute.Int("attempts", result.Attempts),
		attribute.Int("observedBrokers", result.LastObserved))

	c.recordCheck(ctx, "cluster", result.Ready, time.Now().Add(-result.Elapsed))
}

// pollOnce performs a single metadata poll.  Failures of any kind are
// reported as an empty broker list.
func (c *Checker) pollOnce(ctx context.Context, finder BrokerFinder, timeout time.Duration) (brokers []metadataclient.Broker) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("metadata poll panicked", zap.Any("panic", r))
			brokers = nil
		}
	}()

	brokers, err := finder.FindAllBrokers(ctx, timeout)
	if err != nil {
		c.logger.Debug("metadata poll found no brokers", zap.Error(err))
		return nil
	}

	c.logger.Debug("metadata poll", zap.Int("brokers", len(brokers)))
	return brokers
}

func attemptTimeout(remaining, ceiling time.Duration) time.Duration {
	timeout := remaining
	if ceiling < timeout {
		timeout = ceiling
	}
	if timeout < minAttemptTimeout {
		timeout = minAttemptTimeout
	}
	return timeout
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func formatBrokers(brokers []metadataclient.Broker) string {
	out := "["
	for i, broker := range brokers {
		if i > 0 {
			out += ", "
		}
		out += fmt.Sprintf("%d@%s", broker.NodeID, broker.Endpoint)
	}
	return out + "]"
}
