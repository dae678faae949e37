package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/zhouzirui/z-support/backend/internal/model/admin"
	"github.com/zhouzirui/z-support/backend/internal/observability"
	"github.com/zhouzirui/z-support/backend/internal/store"
)

var (
	ErrInvalidCredentials = errors.New("invalid login credentials")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrWeakPassword       = errors.New("password should be at least 6 characters")
	ErrEmailRequired      = errors.New("email is required")
)

const (
	minPasswordLength = 6

	purposeAccess   = "access"
	purposeRecovery = "recovery"
)

// EventType 认证状态变化类型
type EventType string

const (
	EventSignedIn         EventType = "SIGNED_IN"
	EventSignedOut        EventType = "SIGNED_OUT"
	EventPasswordRecovery EventType = "PASSWORD_RECOVERY"
	EventUserUpdated      EventType = "USER_UPDATED"
)

// Event 推送给认证状态监听者的事件
type Event struct {
	Type   EventType `json:"event"`
	UserID string    `json:"userId"`
	At     time.Time `json:"at"`
}

// Claims 访问令牌与恢复令牌携带的声明
type Claims struct {
	Purpose string `json:"purpose"`
	Email   string `json:"email"`
	jwt.RegisteredClaims
}

// Session 登录成功后返回的会话
type Session struct {
	AccessToken string     `json:"access_token"`
	TokenType   string     `json:"token_type"`
	ExpiresAt   time.Time  `json:"expires_at"`
	User        admin.User `json:"user"`
}

// Config 令牌有效期与密码哈希配置
type Config struct {
	Secret      string
	TokenTTL    time.Duration
	RecoveryTTL time.Duration
	BcryptCost  int
}

// Service 签发并校验管理员凭证
type Service struct {
	store  *store.Store
	mailer Mailer
	cfg    Config
	secret []byte
	now    func() time.Time

	mu        sync.Mutex
	revoked   map[string]time.Time
	listeners map[int]chan Event
	nextID    int
}

// NewService 创建认证服务
func NewService(st *store.Store, mailer Mailer, cfg Config) *Service {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = time.Hour
	}
	if cfg.RecoveryTTL <= 0 {
		cfg.RecoveryTTL = time.Hour
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	if mailer == nil {
		mailer = LogMailer{}
	}
	return &Service{
		store:     st,
		mailer:    mailer,
		cfg:       cfg,
		secret:    []byte(cfg.Secret),
		now:       time.Now,
		revoked:   make(map[string]time.Time),
		listeners: make(map[int]chan Event),
	}
}

// EnsureAdmin 在邮箱不存在时创建管理员，布尔值表示是否新建
func (s *Service) EnsureAdmin(ctx context.Context, email, password, name string) (admin.User, bool, error) {
	email = normalizeEmail(email)
	if email == "" {
		return admin.User{}, false, ErrEmailRequired
	}
	existing, err := s.store.GetAdminUser(ctx, &store.FindAdminUser{Email: &email})
	if err != nil {
		return admin.User{}, false, err
	}
	if existing != nil {
		return *existing, false, nil
	}

	hash, err := s.hash(password)
	if err != nil {
		return admin.User{}, false, err
	}
	created, err := s.store.CreateAdminUser(ctx, &admin.User{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         strings.TrimSpace(name),
		PasswordHash: hash,
		CreatedAt:    s.now().UTC(),
	})
	if err != nil {
		return admin.User{}, false, err
	}
	return *created, true, nil
}

// SignIn 校验邮箱与密码并签发访问令牌
func (s *Service) SignIn(ctx context.Context, email, password string) (Session, error) {
	email = normalizeEmail(email)
	u, err := s.store.GetAdminUser(ctx, &store.FindAdminUser{Email: &email})
	if err != nil {
		return Session{}, err
	}
	if u == nil {
		return Session{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return Session{}, ErrInvalidCredentials
	}

	session, err := s.issue(*u, purposeAccess, s.cfg.TokenTTL)
	if err != nil {
		return Session{}, err
	}
	s.emit(EventSignedIn, u.ID)
	return session, nil
}

// Verify 校验访问令牌并返回声明
func (s *Service) Verify(token string) (*Claims, error) {
	return s.parse(token, purposeAccess)
}

// User returns the admin behind verified claims.
func (s *Service) User(ctx context.Context, claims *Claims) (admin.User, error) {
	id := claims.Subject
	u, err := s.store.GetAdminUser(ctx, &store.FindAdminUser{ID: &id})
	if err != nil {
		return admin.User{}, err
	}
	if u == nil {
		return admin.User{}, ErrInvalidToken
	}
	return *u, nil
}

// SignOut 吊销令牌直至其原本的过期时间
func (s *Service) SignOut(_ context.Context, token string) error {
	claims, err := s.Verify(token)
	if err != nil {
		return err
	}
	s.revoke(claims)
	s.emit(EventSignedOut, claims.Subject)
	return nil
}

// RequestPasswordReset 发送重置密码链接。邮箱不存在时不返回错误，避免泄露账号是否存在
func (s *Service) RequestPasswordReset(ctx context.Context, email, redirectTo string) error {
	email = normalizeEmail(email)
	if email == "" {
		return ErrEmailRequired
	}
	u, err := s.store.GetAdminUser(ctx, &store.FindAdminUser{Email: &email})
	if err != nil {
		return err
	}
	if u == nil {
		observability.LoggerFromContext(ctx).Info("password reset requested for unknown email")
		return nil
	}

	session, err := s.issue(*u, purposeRecovery, s.cfg.RecoveryTTL)
	if err != nil {
		return err
	}
	link, err := recoveryLink(redirectTo, session.AccessToken)
	if err != nil {
		return err
	}
	return s.mailer.SendPasswordReset(ctx, u.Email, link)
}

// ExchangeRecovery 用一次性恢复令牌换取访问会话，并广播 PASSWORD_RECOVERY，
// 管理后台据此切换到重置密码表单。
func (s *Service) ExchangeRecovery(ctx context.Context, token string) (Session, error) {
	claims, err := s.parse(token, purposeRecovery)
	if err != nil {
		return Session{}, err
	}
	u, err := s.User(ctx, claims)
	if err != nil {
		return Session{}, err
	}
	s.revoke(claims)

	session, err := s.issue(u, purposeAccess, s.cfg.TokenTTL)
	if err != nil {
		return Session{}, err
	}
	s.emit(EventPasswordRecovery, u.ID)
	return session, nil
}

// UpdatePassword 修改当前管理员的密码
func (s *Service) UpdatePassword(ctx context.Context, claims *Claims, password string) (admin.User, error) {
	hash, err := s.hash(password)
	if err != nil {
		return admin.User{}, err
	}
	updated, err := s.store.UpdateAdminUser(ctx, &store.UpdateAdminUser{ID: claims.Subject, PasswordHash: &hash})
	if err != nil {
		return admin.User{}, err
	}
	if updated == nil {
		return admin.User{}, ErrInvalidToken
	}
	s.emit(EventUserUpdated, updated.ID)
	return *updated, nil
}

// Subscribe 注册认证状态监听，返回的函数用于注销并关闭通道
func (s *Service) Subscribe() (<-chan Event, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := s.nextID
	ch := make(chan Event, 8)
	s.listeners[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
			close(ch)
		})
	}
}

func (s *Service) emit(typ EventType, userID string) {
	evt := Event{Type: typ, UserID: userID, At: s.now().UTC()}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.listeners {
		select {
		case ch <- evt:
		default:
		}
	}
}

func (s *Service) issue(u admin.User, purpose string, ttl time.Duration) (Session, error) {
	now := s.now().UTC()
	expires := now.Add(ttl)
	claims := Claims{
		Purpose: purpose,
		Email:   u.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return Session{}, fmt.Errorf("sign token: %w", err)
	}
	return Session{AccessToken: signed, TokenType: "bearer", ExpiresAt: expires, User: u}, nil
}

func (s *Service) parse(token, purpose string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Purpose != purpose || claims.Subject == "" {
		return nil, ErrInvalidToken
	}

	s.mu.Lock()
	_, revoked := s.revoked[claims.ID]
	s.mu.Unlock()
	if revoked {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (s *Service) revoke(claims *Claims) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	for jti, exp := range s.revoked {
		if now.After(exp) {
			delete(s.revoked, jti)
		}
	}
	if claims.ExpiresAt != nil {
		s.revoked[claims.ID] = claims.ExpiresAt.Time
	}
}

func (s *Service) hash(password string) (string, error) {
	if len(password) < minPasswordLength {
		return "", ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func recoveryLink(redirectTo, token string) (string, error) {
	u, err := url.Parse(redirectTo)
	if err != nil || redirectTo == "" {
		return "", fmt.Errorf("invalid redirect %q", redirectTo)
	}
	fragment := url.Values{}
	fragment.Set("access_token", token)
	fragment.Set("type", "recovery")
	u.Fragment = fragment.Encode()
	return u.String(), nil
}
