package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/zhouzirui/z-support/backend/internal/config"
	"github.com/zhouzirui/z-support/backend/internal/handler"
	"github.com/zhouzirui/z-support/backend/internal/observability"
	"github.com/zhouzirui/z-support/backend/internal/realtime"
	adminService "github.com/zhouzirui/z-support/backend/internal/service/admin"
	authService "github.com/zhouzirui/z-support/backend/internal/service/auth"
	chatService "github.com/zhouzirui/z-support/backend/internal/service/chat"
	"github.com/zhouzirui/z-support/backend/internal/storage"
	"github.com/zhouzirui/z-support/backend/internal/store"
	"github.com/zhouzirui/z-support/backend/internal/store/db"
	"github.com/zhouzirui/z-support/backend/internal/store/db/postgres"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := observability.Setup(os.Stdout, cfg.Log.Format, cfg.Log.Level)

	driver, err := db.NewDBDriver(ctx, cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		log.Fatalf("failed to open %s database: %v", cfg.Database.Driver, err)
	}
	st := store.New(driver)
	defer st.Close()
	if err := st.Migrate(ctx); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	broker := realtime.NewBroker()
	chatOpts := []chatService.Option{chatService.WithSubscriptionBuffer(cfg.Realtime.Buffer)}

	// postgres 模式下变更由触发器经 LISTEN/NOTIFY 回流，避免重复推送
	var publisher realtime.Publisher = broker
	if cfg.Realtime.Source == "postgres" {
		if cfg.Database.Driver != "postgres" && cfg.Database.Driver != "postgresql" {
			log.Fatalf("REALTIME_SOURCE=postgres requires DB_DRIVER=postgres")
		}
		publisher = realtime.NopPublisher{}
		chatOpts = append(chatOpts, chatService.WithPublisher(publisher))
	}

	chatSvc := chatService.NewService(st, broker, chatOpts...)
	adminSvc := adminService.NewService(st, publisher)
	authSvc := authService.NewService(st, authService.LogMailer{}, authService.Config{
		Secret:      cfg.Auth.JWTSecret,
		TokenTTL:    cfg.Auth.TokenTTL,
		RecoveryTTL: cfg.Auth.RecoveryTTL,
	})

	if cfg.Realtime.Source == "postgres" {
		go func() {
			if err := postgres.Listen(ctx, cfg.Database.DSN, chatSvc.HandleChange); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("postgres change listener stopped", "err", err)
			}
		}()
		logger.Info("realtime changes sourced from postgres", "channel", postgres.NotifyChannel)
	}

	if cfg.Auth.AdminEmail != "" && cfg.Auth.AdminPassword != "" {
		user, created, err := authSvc.EnsureAdmin(ctx, cfg.Auth.AdminEmail, cfg.Auth.AdminPassword, cfg.Auth.AdminName)
		if err != nil {
			log.Fatalf("failed to bootstrap admin user: %v", err)
		}
		if created {
			logger.Info("bootstrap admin created", "admin_id", user.ID, "email", user.Email)
		}
	} else {
		logger.Warn("ADMIN_EMAIL / ADMIN_PASSWORD not set, skipping admin bootstrap")
	}

	go adminSvc.RunSweeper(ctx, cfg.Presence.SweepInterval, cfg.Presence.TTL)
	go logAuthEvents(ctx, authSvc)

	objects, localDir, err := newObjectStore(ctx, cfg.Storage)
	if err != nil {
		log.Fatalf("failed to initialize %s storage: %v", cfg.Storage.Backend, err)
	}

	router := handler.NewRouter(handler.Deps{
		AnonKey:         cfg.Server.AnonKey,
		Chat:            chatSvc,
		Admin:           adminSvc,
		Auth:            authSvc,
		Uploader:        storage.NewUploader(objects, chatSvc),
		EventsPerSecond: cfg.Realtime.EventsPerSecond,
		LocalStorageDir: localDir,
	})

	startServer(ctx, cfg.Server, router)
}

// newObjectStore 返回图片存储；本地模式同时返回需要对外提供的目录
func newObjectStore(ctx context.Context, cfg config.StorageConfig) (storage.ObjectStore, string, error) {
	if cfg.Backend == "s3" {
		s3, err := storage.NewS3(ctx, storage.S3Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			PublicBaseURL:   cfg.S3.PublicBaseURL,
			UsePathStyle:    cfg.S3.UsePathStyle,
		})
		return s3, "", err
	}

	local, err := storage.NewLocal(cfg.LocalDir, cfg.LocalBaseURL)
	if err != nil {
		return nil, "", err
	}
	return local, local.Root(), nil
}

// logAuthEvents 记录登录、登出与找回密码事件
func logAuthEvents(ctx context.Context, authSvc *authService.Service) {
	events, unsubscribe := authSvc.Subscribe()
	defer unsubscribe()

	logger := observability.WithFields("component", "auth-audit")
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			logger.Info("auth event", "event", evt.Type, "admin_id", evt.UserID)
		}
	}
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	observability.Logger().Info("z-support backend listening", "addr", addr, "public_url", serverCfg.PublicURL)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
