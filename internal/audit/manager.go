package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/hibiken/asynq"
)

const (
	taskTypeAudit = "audit:record"
	queueName     = "audit"
)

// Manager は監査イベントの投入と保存を担います。
type Manager struct {
	client *asynq.Client
	server *asynq.Server
	mux    *asynq.ServeMux
	store  *Store
	logger *log.Logger
}

// NewManager は Manager を初期化します。
func NewManager(redisURL string, store *Store, logger *log.Logger) (*Manager, error) {
	if store == nil {
		return nil, errors.New("store is nil")
	}
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := asynq.NewClient(opt)
	server := asynq.NewServer(
		opt,
		asynq.Config{
			Concurrency: 2,
			Queues: map[string]int{
				queueName: 1,
			},
		},
	)

	mux := asynq.NewServeMux()
	manager := &Manager{
		client: client,
		server: server,
		mux:    mux,
		store:  store,
		logger: logger,
	}
	mux.HandleFunc(taskTypeAudit, manager.handleAuditTask)
	return manager, nil
}

// StartWorkers は Asynq サーバーをバックグラウンドで起動します。
func (m *Manager) StartWorkers() {
	go func() {
		if err := m.server.Run(m.mux); err != nil && err != asynq.ErrServerClosed {
			m.logf("asynq server stopped with error: %v", err)
		}
	}()
}

// Shutdown はサーバーとクライアントを閉じます。
func (m *Manager) Shutdown(ctx context.Context) error {
	m.server.Shutdown()
	return m.client.Close()
}

// Record はイベントをキューに投入します。失敗してもログに残すだけで呼び出し元には返しません。
func (m *Manager) Record(ctx context.Context, event Event) {
	body, err := json.Marshal(event)
	if err != nil {
		m.logf("failed to encode audit event kind=%s: %v", event.Kind, err)
		return
	}
	task := asynq.NewTask(taskTypeAudit, body, asynq.Queue(queueName))
	if _, err := m.client.EnqueueContext(ctx, task, asynq.MaxRetry(3)); err != nil {
		m.logf("failed to enqueue audit event kind=%s: %v", event.Kind, err)
	}
}

// Recent は保存済みのイベントを新しい順に返します。
func (m *Manager) Recent(ctx context.Context, limit int) ([]Event, error) {
	return m.store.Recent(ctx, limit)
}

func (m *Manager) handleAuditTask(ctx context.Context, task *asynq.Task) error {
	var event Event
	if err := json.Unmarshal(task.Payload(), &event); err != nil {
		// 再試行しても直らないのでスキップする
		return fmt.Errorf("invalid audit payload: %v: %w", err, asynq.SkipRetry)
	}
	if event.Kind == "" {
		return fmt.Errorf("missing kind in audit payload: %w", asynq.SkipRetry)
	}
	return m.store.Append(ctx, &event)
}

func (m *Manager) logf(format string, args ...any) {
	if m.logger != nil {
		m.logger.Printf(format, args...)
	} else {
		log.Printf(format, args...)
	}
}
