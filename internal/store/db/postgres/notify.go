package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/zhouzirui/z-support/backend/internal/observability"
	"github.com/zhouzirui/z-support/backend/internal/store"
)

const (
	minReconnectInterval = 10 * time.Second
	maxReconnectInterval = time.Minute
	pingInterval         = 90 * time.Second
)

// Listen forwards change notifications raised by the table triggers to
// handle until ctx is cancelled. A nil notification after a reconnect is
// skipped; changes made while disconnected are lost.
func Listen(ctx context.Context, dsn string, handle func(context.Context, store.Change)) error {
	logger := observability.WithFields("component", "pg-listener")

	listener := pq.NewListener(dsn, minReconnectInterval, maxReconnectInterval,
		func(ev pq.ListenerEventType, err error) {
			switch ev {
			case pq.ListenerEventConnectionAttemptFailed, pq.ListenerEventDisconnected:
				logger.Warn("listener connection problem", "event", ev, "err", err)
			case pq.ListenerEventReconnected:
				logger.Info("listener reconnected")
			}
		})
	defer listener.Close()

	if err := listener.Listen(NotifyChannel); err != nil {
		return errors.Wrapf(err, "listen %s", NotifyChannel)
	}
	logger.Info("listening for changes", "channel", NotifyChannel)

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case n := <-listener.Notify:
			if n == nil {
				continue
			}
			change, err := decodeChange(n.Extra)
			if err != nil {
				logger.Warn("dropping malformed notification", "payload", n.Extra, "err", err)
				continue
			}
			handle(ctx, change)
		case <-ticker.C:
			if err := listener.Ping(); err != nil {
				logger.Warn("listener ping failed", "err", err)
			}
		}
	}
}

func decodeChange(payload string) (store.Change, error) {
	var change store.Change
	if err := json.Unmarshal([]byte(payload), &change); err != nil {
		return store.Change{}, errors.Wrap(err, "decode change")
	}
	if change.Table == "" || change.ID == "" {
		return store.Change{}, errors.New("change is missing table or id")
	}
	return change, nil
}
