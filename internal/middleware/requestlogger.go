package middleware

import (
	"context"
	"time"

	"github.com/arkana-app/access-api/internal/models"
	"github.com/arkana-app/access-api/internal/repository"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// RequestLogger buffers request records and batch-inserts them so logging
// never sits on the request path. Constructed once at startup and passed
// to the server; there is no package-level state.
type RequestLogger struct {
	repo    *repository.RequestLogRepository
	entries chan models.RequestLog
	done    chan struct{}
}

func NewRequestLogger(repo *repository.RequestLogRepository, bufferSize int) *RequestLogger {
	if bufferSize <= 0 {
		bufferSize = 1000
	}

	l := &RequestLogger{
		repo:    repo,
		entries: make(chan models.RequestLog, bufferSize),
		done:    make(chan struct{}),
	}

	go l.worker()

	return l
}

func (l *RequestLogger) worker() {
	batch := make([]models.RequestLog, 0, 100)
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := l.repo.CreateBatch(context.Background(), batch); err != nil {
			log.Error().Err(err).Int("batch", len(batch)).Msg("failed to insert request logs")
		}
		batch = make([]models.RequestLog, 0, 100)
	}

	for {
		select {
		case entry := <-l.entries:
			batch = append(batch, entry)
			if len(batch) >= 100 {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-l.done:
			flush()
			return
		}
	}
}

// Stop flushes the remaining batch and ends the worker.
func (l *RequestLogger) Stop() {
	close(l.done)
}

// Handler logs every HTTP request after it completes.
func (l *RequestLogger) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		entry := models.RequestLog{
			Timestamp:      start,
			Method:         c.Request.Method,
			Path:           c.Request.URL.Path,
			StatusCode:     c.Writer.Status(),
			ResponseTimeMs: int(time.Since(start).Milliseconds()),
			IPAddress:      c.ClientIP(),
			UserAgent:      c.Request.UserAgent(),
		}

		select {
		case l.entries <- entry:
		default:
			// Channel full; drop rather than block the request.
		}
	}
}
