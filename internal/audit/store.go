package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const eventsKey = "audit:events"

// Store は監査イベントを Redis のリストに保存します。新しいものが先頭です。
type Store struct {
	rdb        redis.Cmdable
	maxEntries int
}

// NewStore は Store を作成します。maxEntries が 0 以下の場合は 1000 件を上限にします。
func NewStore(rdb redis.Cmdable, maxEntries int) *Store {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	return &Store{
		rdb:        rdb,
		maxEntries: maxEntries,
	}
}

// Append はイベントを保存し、上限を超えた分を切り詰めます。
func (s *Store) Append(ctx context.Context, event *Event) error {
	if event == nil {
		return fmt.Errorf("event is nil")
	}
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	pipe := s.rdb.TxPipeline()
	pipe.LPush(ctx, eventsKey, payload)
	pipe.LTrim(ctx, eventsKey, 0, int64(s.maxEntries-1))
	_, err = pipe.Exec(ctx)
	return err
}

// Recent は新しい順に最大 limit 件のイベントを返します。
// 壊れたエントリは読み飛ばします。
func (s *Store) Recent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 || limit > s.maxEntries {
		limit = s.maxEntries
	}
	raw, err := s.rdb.LRange(ctx, eventsKey, 0, int64(limit-1)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	events := make([]Event, 0, len(raw))
	for _, item := range raw {
		var ev Event
		if err := json.Unmarshal([]byte(item), &ev); err != nil {
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}
