package payment

import (
	"github.com/gocelery/gocelery"
	"github.com/gomodule/redigo/redis"
	"golang.org/x/xerrors"
)

// CeleryService runs transfer tasks through a Redis backed celery queue.
type CeleryService struct {
	cli *gocelery.CeleryClient
}

func NewCeleryService(pool *redis.Pool, workers int) (*CeleryService, error) {
	celeryClient, err := gocelery.NewCeleryClient(
		gocelery.NewRedisBroker(pool),
		gocelery.NewRedisBackend(pool),
		workers)
	if err != nil {
		return nil, xerrors.Errorf("failed init celery service: %w", err)
	}
	return &CeleryService{cli: celeryClient}, nil
}

func (s *CeleryService) RegisterTask(taskName string, task interface{}) {
	s.cli.Register(taskName, task)
}

func (s *CeleryService) DelayTask(taskName string, params ...interface{}) (*gocelery.AsyncResult, error) {
	return s.cli.Delay(taskName, params...)
}

func (s *CeleryService) Start() {
	s.cli.StartWorker()
}

func (s *CeleryService) Stop() {
	s.cli.StopWorker()
}
