// Package pipeline wires the live ingest path: raw records off the
// queue, through normalization workers, into spool segments the batch
// analyzer later reads.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	inputredis "trailscope/internal/input/redis"
	"trailscope/internal/logger"
	"trailscope/internal/metrics"
	"trailscope/internal/normalize/cloudtrail"
	"trailscope/pkg/models"
)

// RedisIngestPipeline consumes raw audit records from Redis, normalizes
// them concurrently and spools canonical events.
type RedisIngestPipeline struct {
	consumer      *inputredis.Consumer
	writer        EventWriter
	workers       int
	batchSize     int
	flushInterval time.Duration
}

// NewRedisIngestPipeline creates an ingest pipeline over a Redis queue.
func NewRedisIngestPipeline(consumer *inputredis.Consumer, writer EventWriter, workers, batchSize int, flushInterval time.Duration) *RedisIngestPipeline {
	return &RedisIngestPipeline{
		consumer:      consumer,
		writer:        writer,
		workers:       workers,
		batchSize:     batchSize,
		flushInterval: flushInterval,
	}
}

// Run starts the pipeline loop and blocks until ctx is cancelled.
func (p *RedisIngestPipeline) Run(ctx context.Context) error {
	logger.Infof("Redis ingest pipeline started")

	if p.workers <= 0 {
		p.workers = 8
	}
	if p.batchSize <= 0 {
		p.batchSize = 1000
	}
	if p.flushInterval <= 0 {
		p.flushInterval = 2 * time.Second
	}

	msgCh := make(chan []byte, p.workers*4)
	eventCh := make(chan *models.CanonicalEvent, p.workers*4)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.readLoop(ctx, msgCh)
		close(msgCh)
	}()

	var workerWg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		workerWg.Add(1)
		go func() {
			defer workerWg.Done()
			p.workerLoop(msgCh, eventCh)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		workerWg.Wait()
		close(eventCh)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.writeLoop(ctx, eventCh)
	}()

	<-ctx.Done()
	wg.Wait()
	return ctx.Err()
}

// Close releases pipeline resources.
func (p *RedisIngestPipeline) Close() error {
	if p.writer != nil {
		if err := p.writer.Close(); err != nil {
			logger.Errorf("Failed to close spool writer: %v", err)
		}
	}
	if p.consumer != nil {
		return p.consumer.Close()
	}
	return nil
}

func (p *RedisIngestPipeline) readLoop(ctx context.Context, out chan<- []byte) {
	for {
		payload, err := p.consumer.Pop(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Errorf("Failed to pop redis message: %v", err)
			time.Sleep(500 * time.Millisecond)
			continue
		}
		if payload == nil {
			continue
		}
		metrics.RecordsConsumed.Inc()
		select {
		case out <- payload:
		case <-ctx.Done():
			return
		}
	}
}

func (p *RedisIngestPipeline) workerLoop(in <-chan []byte, out chan<- *models.CanonicalEvent) {
	for payload := range in {
		event, err := cloudtrail.Parse(payload)
		if err != nil {
			var malformed *models.MalformedEventError
			if errors.As(err, &malformed) {
				metrics.RecordsMalformed.Inc()
				logger.Warnf("Skipping malformed record: %v", err)
				continue
			}
			logger.Errorf("Failed to normalize record: %v", err)
			continue
		}
		metrics.RecordsNormalized.Inc()
		out <- event
	}
}

func (p *RedisIngestPipeline) writeLoop(ctx context.Context, in <-chan *models.CanonicalEvent) {
	ticker := time.NewTicker(p.flushInterval)
	defer ticker.Stop()

	var batch []*models.CanonicalEvent

	flush := func() {
		if len(batch) == 0 {
			return
		}
		for {
			if err := p.writer.WriteEvents(batch); err != nil {
				logger.Errorf("Failed to write spool batch: %v", err)
				select {
				case <-ctx.Done():
					return
				case <-time.After(1 * time.Second):
				}
				continue
			}
			metrics.EventsSpooled.Add(float64(len(batch)))
			batch = nil
			break
		}
	}

	for {
		select {
		case <-ticker.C:
			flush()
		case event, ok := <-in:
			if !ok {
				flush()
				return
			}
			batch = append(batch, event)
			if len(batch) >= p.batchSize {
				flush()
			}
		}
	}
}
