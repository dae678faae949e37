package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/zhouzirui/z-support/backend/internal/model/chat"
	"github.com/zhouzirui/z-support/backend/internal/observability"
	"github.com/zhouzirui/z-support/backend/internal/realtime"
	"github.com/zhouzirui/z-support/backend/internal/store"
)

var (
	ErrVisitorRequired = errors.New("visitor id is required")
	ErrSessionNotFound = chat.ErrSessionNotFound
	ErrMessageNotFound = errors.New("message not found")
	ErrEmptyMessage    = errors.New("message has neither content nor image")
	ErrInvalidStatus   = errors.New("invalid status")
)

// conversationFanout 限制并发查询最后一条消息的数量
const conversationFanout = 8

// Service owns session and message writes and announces every successful
// write as a change event.
type Service struct {
	store     *store.Store
	publisher realtime.Publisher
	broker    *realtime.Broker
	buffer    int
	now       func() time.Time
}

// Option 定制 Service
type Option func(*Service)

// WithPublisher 替换变更事件的去向，订阅仍由 broker 提供
func WithPublisher(p realtime.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithSubscriptionBuffer 设置每个订阅的通道容量
func WithSubscriptionBuffer(n int) Option {
	return func(s *Service) { s.buffer = n }
}

// WithClock 替换 time.Now，供测试使用
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService 创建会话服务
func NewService(st *store.Store, broker *realtime.Broker, opts ...Option) *Service {
	s := &Service{
		store:     st,
		publisher: broker,
		broker:    broker,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FindSessionsByVisitor 返回访客的全部会话，最新的在前
func (s *Service) FindSessionsByVisitor(ctx context.Context, visitorID string) ([]chat.Session, error) {
	if strings.TrimSpace(visitorID) == "" {
		return nil, ErrVisitorRequired
	}
	list, err := s.store.ListSessions(ctx, &store.FindSession{VisitorID: &visitorID})
	if err != nil {
		return nil, err
	}
	return derefSessions(list), nil
}

// ListSessions returns every session, newest first.
func (s *Service) ListSessions(ctx context.Context, limit int) ([]chat.Session, error) {
	list, err := s.store.ListSessions(ctx, &store.FindSession{Limit: limit})
	if err != nil {
		return nil, err
	}
	return derefSessions(list), nil
}

// GetSession retrieves a session by identifier.
func (s *Service) GetSession(ctx context.Context, sessionID string) (chat.Session, error) {
	session, err := s.store.GetSession(ctx, &store.FindSession{ID: &sessionID})
	if err != nil {
		return chat.Session{}, err
	}
	if session == nil {
		return chat.Session{}, ErrSessionNotFound
	}
	return *session, nil
}

// CreateSession 为访客创建会话，缺省的标识、状态与时间戳会被补齐
func (s *Service) CreateSession(ctx context.Context, session chat.Session) (chat.Session, error) {
	if strings.TrimSpace(session.VisitorID) == "" {
		return chat.Session{}, ErrVisitorRequired
	}
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.Status == "" {
		session.Status = chat.SessionActive
	}
	if !session.Status.Valid() {
		return chat.Session{}, fmt.Errorf("%w: %q", ErrInvalidStatus, session.Status)
	}
	now := s.now().UTC()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	if session.UpdatedAt.IsZero() {
		session.UpdatedAt = session.CreatedAt
	}

	created, err := s.store.CreateSession(ctx, &session)
	if err != nil {
		return chat.Session{}, err
	}
	s.publish(ctx, chat.EventInsert, chat.TableSessions, created, nil)
	return *created, nil
}

// UpdateSessionStatus 切换会话状态
func (s *Service) UpdateSessionStatus(ctx context.Context, sessionID string, status chat.SessionStatus) (chat.Session, error) {
	if !status.Valid() {
		return chat.Session{}, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	before, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return chat.Session{}, err
	}

	updated, err := s.store.UpdateSession(ctx, &store.UpdateSession{ID: sessionID, Status: &status})
	if err != nil {
		return chat.Session{}, err
	}
	if updated == nil {
		return chat.Session{}, ErrSessionNotFound
	}
	s.publish(ctx, chat.EventUpdate, chat.TableSessions, updated, before)
	return *updated, nil
}

// ListMessages returns a session's messages in creation order.
func (s *Service) ListMessages(ctx context.Context, sessionID string) ([]chat.Message, error) {
	list, err := s.store.ListMessages(ctx, &store.FindMessage{SessionID: &sessionID})
	if err != nil {
		return nil, err
	}
	out := make([]chat.Message, 0, len(list))
	for _, m := range list {
		out = append(out, *m)
	}
	return out, nil
}

// InsertMessage 向会话追加一条消息
func (s *Service) InsertMessage(ctx context.Context, message chat.Message) (chat.Message, error) {
	if message.Content != nil {
		message.Content = chat.StringPtr(strings.TrimSpace(*message.Content))
	}
	if message.ImageURL != nil {
		message.ImageURL = chat.StringPtr(strings.TrimSpace(*message.ImageURL))
	}
	if message.Empty() {
		return chat.Message{}, ErrEmptyMessage
	}
	if message.SessionID == "" {
		return chat.Message{}, ErrSessionNotFound
	}
	if _, err := s.GetSession(ctx, message.SessionID); err != nil {
		return chat.Message{}, err
	}

	if message.ID == "" {
		message.ID = uuid.NewString()
	}
	if message.Status == "" {
		message.Status = chat.MessageSent
	}
	if !message.Status.Valid() {
		return chat.Message{}, fmt.Errorf("%w: %q", ErrInvalidStatus, message.Status)
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = s.now().UTC()
	}

	created, err := s.store.CreateMessage(ctx, &message)
	if err != nil {
		return chat.Message{}, err
	}
	s.publish(ctx, chat.EventInsert, chat.TableMessages, created, nil)
	return *created, nil
}

// UpdateMessageStatus 记录送达、已读等状态变化
func (s *Service) UpdateMessageStatus(ctx context.Context, messageID string, status chat.MessageStatus) (chat.Message, error) {
	if !status.Valid() {
		return chat.Message{}, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	before, err := s.getMessage(ctx, messageID)
	if err != nil {
		return chat.Message{}, err
	}

	updated, err := s.store.UpdateMessage(ctx, &store.UpdateMessage{ID: messageID, Status: &status})
	if err != nil {
		return chat.Message{}, err
	}
	if updated == nil {
		return chat.Message{}, ErrMessageNotFound
	}
	s.publish(ctx, chat.EventUpdate, chat.TableMessages, updated, before)
	return *updated, nil
}

func (s *Service) DeleteMessage(ctx context.Context, messageID string) error {
	before, err := s.getMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteMessage(ctx, messageID); err != nil {
		return err
	}
	s.publish(ctx, chat.EventDelete, chat.TableMessages, nil, before)
	return nil
}

// Subscribe opens a change feed restricted by filter.
func (s *Service) Subscribe(_ context.Context, filter chat.Filter) (chat.Subscription, error) {
	return s.broker.Subscribe(filter, s.buffer), nil
}

// ListConversations returns sessions newest first, each with its last
// message.
func (s *Service) ListConversations(ctx context.Context, limit int) ([]chat.Conversation, error) {
	sessions, err := s.store.ListSessions(ctx, &store.FindSession{Limit: limit})
	if err != nil {
		return nil, err
	}
	return s.withLastMessages(ctx, sessions)
}

func (s *Service) withLastMessages(ctx context.Context, sessions []*chat.Session) ([]chat.Conversation, error) {
	out := make([]chat.Conversation, len(sessions))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(conversationFanout)
	for i, session := range sessions {
		g.Go(func() error {
			last, err := s.store.LastMessage(gctx, session.ID)
			if err != nil {
				return fmt.Errorf("last message for session %s: %w", session.ID, err)
			}
			out[i] = chat.Conversation{Session: *session, LastMessage: last}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// HandleChange 把数据库发出的变更通知转换为 broker 事件，
// 用于数据库自身负责通知的部署方式。
func (s *Service) HandleChange(ctx context.Context, change store.Change) {
	logger := observability.LoggerFromContext(ctx)
	typ := chat.EventType(change.Op)

	var (
		evt chat.Event
		err error
	)
	switch {
	case typ == chat.EventDelete && change.Table == chat.TableMessages:
		evt, err = chat.NewEvent(typ, change.Table, nil, chat.Message{ID: change.ID, SessionID: change.SessionID})
	case typ == chat.EventDelete:
		evt, err = chat.NewEvent(typ, change.Table, nil, map[string]string{"id": change.ID})
	default:
		var row any
		row, err = s.loadRow(ctx, change)
		if err == nil && row == nil {
			return
		}
		if err == nil {
			evt, err = chat.NewEvent(typ, change.Table, row, nil)
		}
	}
	if err != nil {
		logger.Warn("failed to translate change", "table", change.Table, "id", change.ID, "err", err)
		return
	}
	s.broker.Publish(evt)
}

func (s *Service) loadRow(ctx context.Context, change store.Change) (any, error) {
	switch change.Table {
	case chat.TableMessages:
		m, err := s.store.GetMessage(ctx, &store.FindMessage{ID: &change.ID})
		if err != nil || m == nil {
			return nil, err
		}
		return m, nil
	case chat.TableSessions:
		session, err := s.store.GetSession(ctx, &store.FindSession{ID: &change.ID})
		if err != nil || session == nil {
			return nil, err
		}
		return session, nil
	case chat.TableAdminUsers:
		u, err := s.store.GetAdminUser(ctx, &store.FindAdminUser{ID: &change.ID})
		if err != nil || u == nil {
			return nil, err
		}
		return u, nil
	default:
		return nil, fmt.Errorf("unknown table %q", change.Table)
	}
}

func (s *Service) getMessage(ctx context.Context, id string) (*chat.Message, error) {
	m, err := s.store.GetMessage(ctx, &store.FindMessage{ID: &id})
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, ErrMessageNotFound
	}
	return m, nil
}

func (s *Service) publish(ctx context.Context, typ chat.EventType, table string, newRow, oldRow any) {
	evt, err := chat.NewEvent(typ, table, newRow, oldRow)
	if err != nil {
		observability.LoggerFromContext(ctx).Warn("failed to encode change event", "table", table, "err", err)
		return
	}
	s.publisher.Publish(evt)
}

func derefSessions(list []*chat.Session) []chat.Session {
	out := make([]chat.Session, 0, len(list))
	for _, s := range list {
		out = append(out, *s)
	}
	return out
}
