package notify

import (
	"encoding/json"
	"strings"

	"github.com/filswan/go-mcs-sdk/mcs/api/common/logs"
	"github.com/gomodule/redigo/redis"
	"github.com/lagrangedao/go-bounty-coordinator/internal/models"
	"golang.org/x/xerrors"
)

// Sink receives every committed coordinator event.
type Sink interface {
	Publish(e *models.EventLog) error
}

// LogSink writes events as EVENT_JSON lines.
type LogSink struct{}

func (LogSink) Publish(e *models.EventLog) error {
	logs.GetLogger().Info(e.String())
	return nil
}

// RedisPublisher publishes events on a Redis pub/sub channel.
type RedisPublisher struct {
	pool    *redis.Pool
	channel string
}

func NewRedisPublisher(pool *redis.Pool, channel string) *RedisPublisher {
	return &RedisPublisher{pool: pool, channel: channel}
}

func (p *RedisPublisher) Publish(e *models.EventLog) error {
	conn := p.pool.Get()
	defer conn.Close()

	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	receivers, err := redis.Int(conn.Do("PUBLISH", p.channel, payload))
	if err != nil {
		return xerrors.Errorf("publishing %s to %s: %w", e.Event, p.channel, err)
	}
	logs.GetLogger().Debugf("event %s for bounty %s delivered to %d subscribers", e.Event, e.BountyId(), receivers)
	return nil
}

// FanOut delivers an event to every sink, even when some of them fail.
type FanOut []Sink

func (f FanOut) Publish(e *models.EventLog) error {
	var failed []string
	for _, sink := range f {
		if err := sink.Publish(e); err != nil {
			failed = append(failed, err.Error())
		}
	}
	if len(failed) > 0 {
		return xerrors.Errorf("%d of %d sinks failed: %s", len(failed), len(f), strings.Join(failed, "; "))
	}
	return nil
}
