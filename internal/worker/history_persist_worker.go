package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"gopherai-pdfqa/internal/logger"
	"gopherai-pdfqa/internal/metrics"
	"gopherai-pdfqa/internal/model"
	"gopherai-pdfqa/internal/platform/rabbitmq"
)

type HistoryWriter interface {
	Create(ctx context.Context, qa *model.QuestionAnswer) error
}

type HistoryCacheDeleter interface {
	DeleteHistory(ctx context.Context, userID uint) error
}

// errMalformed marks deliveries that can never be persisted.
var errMalformed = errors.New("malformed history row")

// requeueDelay keeps a database outage from spinning the consumer.
const requeueDelay = time.Second

// HistoryPersistWorker drains the history queue into the database. Malformed
// rows are dropped; rows the database refused are requeued.
type HistoryPersistWorker struct {
	conn      *amqp.Connection
	repo      HistoryWriter
	cache     HistoryCacheDeleter
	queueName string
	log       *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewHistoryPersistWorker(conn *amqp.Connection, repo HistoryWriter, cache HistoryCacheDeleter, queueName string) *HistoryPersistWorker {
	return &HistoryPersistWorker{
		conn:      conn,
		repo:      repo,
		cache:     cache,
		queueName: queueName,
		log:       logger.New("history-worker"),
	}
}

func (w *HistoryPersistWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}
	if err := rabbitmq.DeclareQueue(ch, w.queueName); err != nil {
		_ = ch.Close()
		cancel()
		return err
	}
	if err := ch.Qos(16, 0, false); err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("set worker qos failed: %w", err)
	}

	deliveries, err := ch.Consume(
		w.queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				if err := w.handle(workerCtx, d.Body); err != nil {
					metrics.IncHistoryPersistFailures()
					requeue := shouldRequeue(err)
					w.log.Error("persist history failed", "requeue", requeue, "redelivered", d.Redelivered, "err", err)
					if requeue {
						select {
						case <-workerCtx.Done():
						case <-time.After(requeueDelay):
						}
					}
					_ = d.Nack(false, requeue)
					continue
				}
				_ = d.Ack(false)
			}
		}
	}()

	w.log.Info("history worker started", "queue", w.queueName)
	return nil
}

// shouldRequeue reports whether a failed delivery may succeed on retry.
func shouldRequeue(err error) bool {
	return err != nil && !errors.Is(err, errMalformed)
}

func (w *HistoryPersistWorker) handle(ctx context.Context, body []byte) error {
	var qa model.QuestionAnswer
	if err := json.Unmarshal(body, &qa); err != nil {
		return fmt.Errorf("%w: decode failed: %v", errMalformed, err)
	}
	if qa.UserID == 0 {
		return fmt.Errorf("%w: no user", errMalformed)
	}
	// The publisher never assigns ids; let the database do it.
	qa.ID = 0
	if err := w.repo.Create(ctx, &qa); err != nil {
		return fmt.Errorf("store history row failed: %w", err)
	}
	if w.cache != nil {
		if err := w.cache.DeleteHistory(ctx, qa.UserID); err != nil {
			w.log.Warn("drop history cache failed", "user_id", qa.UserID, "err", err)
		}
	}
	return nil
}

func (w *HistoryPersistWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
