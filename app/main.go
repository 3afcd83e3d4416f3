package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/sushihentaime/teamblog/internal/blogservice"
	"github.com/sushihentaime/teamblog/internal/common"
	"github.com/sushihentaime/teamblog/internal/mailservice"
	"github.com/sushihentaime/teamblog/internal/notificationservice"
	"github.com/sushihentaime/teamblog/internal/storage"
	"github.com/sushihentaime/teamblog/internal/userservice"
)

type application struct {
	config              *Config
	logger              *slog.Logger
	db                  *sql.DB
	userService         *userservice.UserService
	blogService         *blogservice.BlogService
	notificationService *notificationservice.NotificationService
	mailService         *mailservice.MailService
	files               storage.FileStore
	done                chan struct{}
}

func main() {
	cfg, err := loadConfig(".env")
	if err != nil {
		slog.New(slog.NewTextHandler(os.Stderr, nil)).Error("failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger, flush := newLogger(os.Stdout, cfg)

	err = run(cfg, logger)
	flush()
	if err != nil {
		logger.Error("application stopped", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(cfg *Config, logger *slog.Logger) error {
	if cfg.MigrateOnStart {
		m, err := common.MigrateUp(cfg.MigrationsDir, cfg.postgresURI())
		if err != nil {
			return err
		}
		m.Close()
		logger.Info("database migrations applied")
	}

	db, err := common.NewDB(cfg.postgresURI(), cfg.DB.MaxOpenConns, cfg.DB.MaxIdleConns, cfg.DB.MaxIdleTime)
	if err != nil {
		return fmt.Errorf("failed to connect to the database: %w", err)
	}
	defer common.CloseDB(db)

	broker, err := common.NewMessageBroker(cfg.rabbitURI())
	if err != nil {
		return fmt.Errorf("failed to connect to the message broker: %w", err)
	}
	defer broker.Close()

	if err := common.SetupUserExchange(broker); err != nil {
		return fmt.Errorf("failed to setup the user exchange: %w", err)
	}
	if err := common.SetupBlogExchange(broker); err != nil {
		return fmt.Errorf("failed to setup the blog exchange: %w", err)
	}

	marks, closeMarks, err := newWatermarkStore(cfg, db)
	if err != nil {
		return err
	}
	defer closeMarks()

	unreadCache, err := newUnreadCache(cfg)
	if err != nil {
		return err
	}

	files, err := newFileStore(cfg, logger)
	if err != nil {
		return err
	}

	userService := userservice.NewUserService(db, broker, common.NewCache(5*time.Minute, 10*time.Minute))
	notificationService := notificationservice.NewNotificationService(blogservice.NewBlogModel(db), marks, unreadCache, logger)

	app := &application{
		config:              cfg,
		logger:              logger,
		db:                  db,
		userService:         userService,
		notificationService: notificationService,
		blogService: blogservice.NewBlogService(db, logger,
			blogservice.WithNotifier(notificationService),
			blogservice.WithWatermarkRemover(notificationService),
			blogservice.WithFileRemover(files),
			blogservice.WithPostEvents(broker, userService),
		),
		mailService: mailservice.NewMailService(broker, cfg.Mail.Host, cfg.Mail.User, cfg.Mail.Password, cfg.Mail.Sender, cfg.Mail.Port, cfg.AppURL, logger),
		files:       files,
		done:        make(chan struct{}),
	}

	app.mailService.SendActivationEmail()
	app.mailService.SendPostNotifications()

	return app.serve(cfg.Port)
}

// newWatermarkStore returns the configured store and a func releasing it.
func newWatermarkStore(cfg *Config, db *sql.DB) (notificationservice.WatermarkStore, func(), error) {
	switch cfg.Watermarks.Backend {
	case "mongo":
		client, mdb, err := common.NewMongo(cfg.Watermarks.MongoURI, cfg.Watermarks.MongoDB)
		if err != nil {
			return nil, nil, err
		}

		marks := notificationservice.NewMongoWatermarks(mdb)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := marks.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, nil, fmt.Errorf("could not create watermark indexes: %w", err)
		}

		return marks, func() { _ = client.Disconnect(context.Background()) }, nil
	default:
		return notificationservice.NewPostgresWatermarks(db), func() {}, nil
	}
}

// newUnreadCache returns nil when caching is disabled.
func newUnreadCache(cfg *Config) (notificationservice.UnreadCache, error) {
	switch cfg.Cache.Backend {
	case "redis":
		rdb, err := common.NewRedis(cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB)
		if err != nil {
			return nil, err
		}
		return notificationservice.NewRedisUnreadCache(rdb, cfg.Cache.TTL), nil
	case "memory":
		return notificationservice.NewMemoryUnreadCache(common.NewCache(cfg.Cache.TTL, 2*cfg.Cache.TTL), cfg.Cache.TTL), nil
	default:
		return nil, nil
	}
}

func newFileStore(cfg *Config, logger *slog.Logger) (storage.FileStore, error) {
	switch cfg.Storage.Backend {
	case "s3":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		return storage.NewS3Store(ctx, storage.S3Config{
			Region:    cfg.Storage.S3Region,
			Bucket:    cfg.Storage.S3Bucket,
			AccessKey: cfg.Storage.S3AccessKey,
			SecretKey: cfg.Storage.S3SecretKey,
			Endpoint:  cfg.Storage.S3Endpoint,
		}, logger)
	default:
		return storage.NewDiskStore(cfg.Storage.UploadDir)
	}
}
