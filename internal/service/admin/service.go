package admin

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zhouzirui/z-support/backend/internal/model/admin"
	"github.com/zhouzirui/z-support/backend/internal/model/chat"
	"github.com/zhouzirui/z-support/backend/internal/observability"
	"github.com/zhouzirui/z-support/backend/internal/realtime"
	"github.com/zhouzirui/z-support/backend/internal/store"
)

var (
	ErrAdminNotFound = errors.New("admin user not found")
	ErrInvalidEmail  = errors.New("invalid email address")
)

// recentSessions 仪表盘展示的最近会话数
const recentSessions = 5

// Service 管理后台服务：仪表盘统计、在线状态与个人设置
type Service struct {
	store     *store.Store
	publisher realtime.Publisher
	now       func() time.Time
}

// NewService 创建管理后台服务
func NewService(st *store.Store, publisher realtime.Publisher) *Service {
	if publisher == nil {
		publisher = realtime.NopPublisher{}
	}
	return &Service{store: st, publisher: publisher, now: time.Now}
}

// Stats 仪表盘计数
type Stats struct {
	TotalSessions   int64 `json:"totalSessions"`
	ActiveSessions  int64 `json:"activeSessions"`
	WaitingSessions int64 `json:"waitingSessions"`
	TotalMessages   int64 `json:"totalMessages"`
	OnlineAdmins    int   `json:"onlineAdmins"`
}

// Dashboard 管理后台首页数据
type Dashboard struct {
	Stats          Stats               `json:"stats"`
	RecentSessions []chat.Conversation `json:"recentSessions"`
}

// Dashboard 并发获取统计数据与最近的会话
func (s *Service) Dashboard(ctx context.Context) (Dashboard, error) {
	var (
		out    Dashboard
		recent []*chat.Session
		online []*admin.User
	)
	active, waiting, isOnline := chat.SessionActive, chat.SessionWaiting, true

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		out.Stats.TotalSessions, err = s.store.CountSessions(gctx, &store.FindSession{})
		return err
	})
	g.Go(func() (err error) {
		out.Stats.ActiveSessions, err = s.store.CountSessions(gctx, &store.FindSession{Status: &active})
		return err
	})
	g.Go(func() (err error) {
		out.Stats.WaitingSessions, err = s.store.CountSessions(gctx, &store.FindSession{Status: &waiting})
		return err
	})
	g.Go(func() (err error) {
		out.Stats.TotalMessages, err = s.store.CountMessages(gctx, &store.FindMessage{})
		return err
	})
	g.Go(func() (err error) {
		online, err = s.store.ListAdminUsers(gctx, &store.FindAdminUser{IsOnline: &isOnline})
		return err
	})
	g.Go(func() (err error) {
		recent, err = s.store.ListSessions(gctx, &store.FindSession{Limit: recentSessions})
		return err
	})
	if err := g.Wait(); err != nil {
		return Dashboard{}, fmt.Errorf("load dashboard: %w", err)
	}
	out.Stats.OnlineAdmins = len(online)

	out.RecentSessions = make([]chat.Conversation, len(recent))
	g, gctx = errgroup.WithContext(ctx)
	for i, session := range recent {
		g.Go(func() error {
			last, err := s.store.LastMessage(gctx, session.ID)
			if err != nil {
				return err
			}
			out.RecentSessions[i] = chat.Conversation{Session: *session, LastMessage: last}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Dashboard{}, fmt.Errorf("load recent sessions: %w", err)
	}
	return out, nil
}

// Profile 返回管理员的个人设置
func (s *Service) Profile(ctx context.Context, adminID string) (admin.User, error) {
	u, err := s.store.GetAdminUser(ctx, &store.FindAdminUser{ID: &adminID})
	if err != nil {
		return admin.User{}, err
	}
	if u == nil {
		return admin.User{}, ErrAdminNotFound
	}
	return *u, nil
}

// UpdateProfile 修改管理员的显示名称与邮箱
func (s *Service) UpdateProfile(ctx context.Context, adminID, name, email string) (admin.User, error) {
	name = strings.TrimSpace(name)
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := mail.ParseAddress(email); err != nil {
		return admin.User{}, ErrInvalidEmail
	}
	return s.update(ctx, &store.UpdateAdminUser{ID: adminID, Name: &name, Email: &email})
}

// Heartbeat 将管理员标记为在线
func (s *Service) Heartbeat(ctx context.Context, adminID string) (admin.User, error) {
	online := true
	now := s.now().UTC()
	return s.update(ctx, &store.UpdateAdminUser{ID: adminID, IsOnline: &online, LastSeen: &now})
}

// GoOffline 将管理员标记为离线，例如登出时
func (s *Service) GoOffline(ctx context.Context, adminID string) (admin.User, error) {
	online := false
	return s.update(ctx, &store.UpdateAdminUser{ID: adminID, IsOnline: &online})
}

// ListPeers 返回除自己以外的所有管理员
func (s *Service) ListPeers(ctx context.Context, selfID string) ([]admin.User, error) {
	list, err := s.store.ListAdminUsers(ctx, &store.FindAdminUser{ExcludeID: &selfID})
	if err != nil {
		return nil, err
	}
	out := make([]admin.User, 0, len(list))
	for _, u := range list {
		out = append(out, *u)
	}
	return out, nil
}

// Sweep 把心跳超过 ttl 的管理员标记为离线，返回变更数量
func (s *Service) Sweep(ctx context.Context, ttl time.Duration) (int, error) {
	online := true
	cutoff := s.now().UTC().Add(-ttl)
	stale, err := s.store.ListAdminUsers(ctx, &store.FindAdminUser{IsOnline: &online, SeenBefore: &cutoff})
	if err != nil {
		return 0, err
	}
	for _, u := range stale {
		if _, err := s.GoOffline(ctx, u.ID); err != nil {
			return 0, err
		}
	}
	return len(stale), nil
}

// RunSweeper 按 interval 周期调用 Sweep，直到 ctx 结束
func (s *Service) RunSweeper(ctx context.Context, interval, ttl time.Duration) {
	logger := observability.WithFields("component", "presence-sweeper")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.Sweep(ctx, ttl)
			if err != nil {
				logger.Warn("presence sweep failed", "err", err)
				continue
			}
			if n > 0 {
				logger.Info("marked admins offline", "count", n)
			}
		}
	}
}

func (s *Service) update(ctx context.Context, update *store.UpdateAdminUser) (admin.User, error) {
	before, err := s.Profile(ctx, update.ID)
	if err != nil {
		return admin.User{}, err
	}
	updated, err := s.store.UpdateAdminUser(ctx, update)
	if err != nil {
		return admin.User{}, err
	}
	if updated == nil {
		return admin.User{}, ErrAdminNotFound
	}

	evt, err := chat.NewEvent(chat.EventUpdate, chat.TableAdminUsers, updated, before)
	if err == nil {
		s.publisher.Publish(evt)
	}
	return *updated, nil
}
