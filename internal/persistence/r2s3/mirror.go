package r2s3

import (
	"context"
	"encoding/json"
	"log"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"tilecensus.ai/internal/census"
)

type Stats struct {
	QueueDepth         int
	DroppedTotal       uint64
	UploadSuccessTotal uint64
	UploadFailTotal    uint64
}

type job struct {
	key         string
	localPath   string
	body        []byte
	contentType string
}

// Mirror is a census sink that copies each run's export file, plus a JSON
// copy of the report, to the bucket in the background. Upload failures are
// logged and counted; they never fail the run.
type Mirror struct {
	client *Client
	prefix string
	logger *log.Logger

	mu     sync.Mutex
	closed bool
	jobs   chan job
	wg     sync.WaitGroup

	droppedTotal       atomic.Uint64
	uploadSuccessTotal atomic.Uint64
	uploadFailTotal    atomic.Uint64

	backoff time.Duration
}

func NewMirror(client *Client, prefix string, workers, queueCapacity int, logger *log.Logger) *Mirror {
	if workers <= 0 {
		workers = 1
	}
	if queueCapacity <= 0 {
		queueCapacity = 64
	}
	m := &Mirror{
		client:  client,
		prefix:  strings.Trim(strings.ReplaceAll(prefix, "\\", "/"), "/"),
		logger:  logger,
		jobs:    make(chan job, queueCapacity),
		backoff: 200 * time.Millisecond,
	}
	for i := 0; i < workers; i++ {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			for j := range m.jobs {
				m.uploadOne(j)
			}
		}()
	}
	return m
}

// Consume queues the report's export and a JSON copy of the report under
// <prefix>/<world>/<run id>/.
func (m *Mirror) Consume(_ context.Context, r *census.Report) error {
	if m == nil || m.client == nil || r == nil {
		return nil
	}
	dir := m.runDir(r)
	if r.Path != "" {
		m.enqueue(job{key: path.Join(dir, filepath.Base(r.Path)), localPath: r.Path})
	}
	b, err := json.Marshal(r)
	if err != nil {
		return err
	}
	m.enqueue(job{key: path.Join(dir, "report.json"), body: b, contentType: "application/json"})
	return nil
}

func (m *Mirror) runDir(r *census.Report) string {
	world := strings.TrimSpace(r.WorldID)
	if world == "" {
		world = "default"
	}
	return path.Join(m.prefix, world, r.ID)
}

func (m *Mirror) enqueue(j job) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		dropped := m.droppedTotal.Add(1)
		m.printf("mirror drop key=%s reason=closed dropped_total=%d", j.key, dropped)
		return
	}
	select {
	case m.jobs <- j:
	default:
		dropped := m.droppedTotal.Add(1)
		m.printf("mirror drop key=%s reason=queue_saturated dropped_total=%d", j.key, dropped)
	}
}

// Close drains queued uploads. Reports consumed afterwards are dropped.
func (m *Mirror) Close() error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	close(m.jobs)
	m.mu.Unlock()
	m.wg.Wait()
	return nil
}

func (m *Mirror) Stats() Stats {
	if m == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:         len(m.jobs),
		DroppedTotal:       m.droppedTotal.Load(),
		UploadSuccessTotal: m.uploadSuccessTotal.Load(),
		UploadFailTotal:    m.uploadFailTotal.Load(),
	}
}

func (m *Mirror) uploadOne(j job) {
	if err := m.uploadWithRetry(j); err != nil {
		m.uploadFailTotal.Add(1)
		m.printf("mirror upload failed key=%s err=%v", j.key, err)
		return
	}
	m.uploadSuccessTotal.Add(1)
	m.printf("mirror uploaded key=%s", j.key)
}

func (m *Mirror) uploadWithRetry(j job) error {
	const maxAttempts = 4
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		var err error
		if j.localPath != "" {
			err = m.client.PutFile(ctx, j.key, j.localPath)
		} else {
			err = m.client.Put(ctx, j.key, j.body, j.contentType)
		}
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt < maxAttempts {
			time.Sleep(time.Duration(attempt*attempt) * m.backoff)
		}
	}
	return lastErr
}

func (m *Mirror) printf(format string, args ...any) {
	if m.logger != nil {
		m.logger.Printf(format, args...)
	}
}
