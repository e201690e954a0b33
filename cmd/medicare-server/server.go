package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/chela967/medicare/internal/config"
	"github.com/chela967/medicare/internal/domain/admin"
	"github.com/chela967/medicare/internal/domain/doctor"
	"github.com/chela967/medicare/internal/domain/identity"
	"github.com/chela967/medicare/internal/domain/messaging"
	"github.com/chela967/medicare/internal/domain/pharmacy"
	"github.com/chela967/medicare/internal/domain/scheduling"
	"github.com/chela967/medicare/internal/platform/audit"
	"github.com/chela967/medicare/internal/platform/auth"
	"github.com/chela967/medicare/internal/platform/blobstore"
	"github.com/chela967/medicare/internal/platform/db"
	"github.com/chela967/medicare/internal/platform/locker"
	"github.com/chela967/medicare/internal/platform/middleware"
	"github.com/chela967/medicare/internal/platform/notification"
	"github.com/chela967/medicare/internal/platform/reporting"
	"github.com/chela967/medicare/internal/platform/session"
	"github.com/chela967/medicare/internal/platform/view"
)

// app holds the connections and services shared by the commands.
type app struct {
	cfg    *config.Config
	logger zerolog.Logger

	pool  *pgxpool.Pool
	redis *redis.Client
	amqp  *amqp.Connection
	files blobstore.Store
	local *blobstore.LocalStore

	sessions  *session.Manager
	identity  *identity.Service
	doctors   *doctor.Service
	schedule  *scheduling.Service
	messages  *messaging.Service
	pharmacy  *pharmacy.Service
	admin     *admin.Service
	measures  *reporting.Evaluator
	reminders *scheduling.ReminderDispatcher
}

func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.PoolOptions())
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	a.pool = pool
	logger.Info().Msg("connected to database")

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		a.redis = redis.NewClient(opts)
		if err := a.redis.Ping(ctx).Err(); err != nil {
			a.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		logger.Info().Msg("connected to redis")
	}

	if err := a.openFiles(ctx); err != nil {
		a.Close()
		return nil, err
	}

	sender, err := a.mailSender()
	if err != nil {
		a.Close()
		return nil, err
	}
	notifier := notification.NewNotifier(sender, notification.NewTemplateEngine(), logger)

	policy, err := auth.NewCasbinPolicy(auth.DefaultGrants)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("load policy: %w", err)
	}

	var (
		store     session.Store = session.NewMemoryStore()
		lk        locker.Locker = locker.NewLocalLocker()
		tx                      = db.NewTxManager(pool)
		auditLog                = audit.NewPGStore(pool)
		userRepo                = identity.NewUserRepoPG(pool)
		doctorRepo              = doctor.NewRepoPG(pool)
		apptRepo                = scheduling.NewAppointmentRepoPG(pool)
	)
	if a.redis != nil {
		store = session.NewRedisStore(a.redis)
		lk = locker.NewRedisLocker(a.redis)
	}
	a.sessions = session.NewManager(store, cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction(), logger)

	a.identity = identity.NewService(userRepo, identity.NewPatientRepoPG(pool), doctorGate{doctors: doctorRepo},
		tx, policy, auditLog, notifier, cfg.BaseURL, logger)

	a.doctors = doctor.NewService(doctorRepo, doctor.NewSpecialtyRepoPG(pool), doctorAccounts{users: userRepo},
		a.files, tx, policy, auditLog, notifier, cfg.BaseURL, logger)

	a.schedule = scheduling.NewService(apptRepo, scheduling.NewSlotRepoPG(pool), bookingDoctors{doctors: a.doctors},
		policy, notifier, scheduling.Config{
			MeetingURLTemplate: cfg.MeetingURLTemplate,
			ReminderLead:       cfg.ReminderLead,
			Location:           time.Local,
		}, logger)
	a.reminders = scheduling.NewReminderDispatcher(apptRepo, notifier, lk, cfg.ReminderCron, logger)

	a.messages = messaging.NewService(messaging.NewMessageRepoPG(pool), messaging.NewNotificationRepoPG(pool),
		chatAppointments{appointments: a.schedule}, tx, policy, logger)

	a.pharmacy = pharmacy.NewService(pharmacy.NewCategoryRepoPG(pool), pharmacy.NewMedicineRepoPG(pool),
		pharmacy.NewOrderRepoPG(pool), pharmacy.NewPrescriptionRepoPG(pool),
		prescriptionAppointments{appointments: a.schedule}, a.files, tx, policy, auditLog, logger)

	a.measures = reporting.NewEvaluator(pool)
	a.admin = admin.NewService(a.measures, a.schedule, auditLog, policy, logger)

	return a, nil
}

// openFiles picks the upload backend.
func (a *app) openFiles(ctx context.Context) error {
	if a.cfg.StorageDriver == "minio" {
		store, err := blobstore.NewMinioStore(ctx, a.cfg.MinioEndpoint, a.cfg.MinioAccessKey,
			a.cfg.MinioSecretKey, a.cfg.MinioBucket, a.cfg.MinioUseSSL)
		if err != nil {
			return fmt.Errorf("open minio store: %w", err)
		}
		a.files = store
		return nil
	}
	local, err := blobstore.NewLocalStore(a.cfg.UploadDir, "/uploads/")
	if err != nil {
		return fmt.Errorf("open upload dir: %w", err)
	}
	a.files, a.local = local, local
	return nil
}

// mailSender queues mail on RabbitMQ when AMQP_URL is set, sends it over
// SMTP when SMTP_HOST is set, and only logs it otherwise.
func (a *app) mailSender() (notification.EmailSender, error) {
	switch {
	case a.cfg.AMQPURL != "":
		conn, err := amqp.Dial(a.cfg.AMQPURL)
		if err != nil {
			return nil, fmt.Errorf("connect amqp: %w", err)
		}
		a.amqp = conn
		ch, err := conn.Channel()
		if err != nil {
			return nil, fmt.Errorf("open amqp channel: %w", err)
		}
		return notification.NewQueueSender(ch, a.cfg.MailQueue)
	case a.cfg.SMTPHost != "":
		return smtpSender(a.cfg), nil
	default:
		a.logger.Warn().Msg("no mail transport configured, emails are only logged")
		return notification.LogSender{Logger: a.logger}, nil
	}
}

func smtpSender(cfg *config.Config) *notification.SMTPSender {
	return notification.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.MailFrom)
}

func (a *app) Close() {
	if a.amqp != nil {
		_ = a.amqp.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
}

// routes builds the echo instance with every portal mounted.
func (a *app) routes() (*echo.Echo, error) {
	renderer, err := view.NewRenderer()
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Renderer = renderer
	e.HTTPErrorHandler = view.ErrorHandler(a.logger)

	metrics := middleware.NewMetrics()

	e.Use(middleware.Recovery(a.logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(a.logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(metrics.Middleware())
	e.Use(a.sessions.Middleware())

	e.GET("/metrics", metrics.Handler())
	extra := map[string]db.Pinger{}
	if a.redis != nil {
		extra["redis"] = db.PingFunc(func(ctx context.Context) error { return a.redis.Ping(ctx).Err() })
	}
	e.GET("/health", db.HealthHandler(a.pool, extra))

	if a.local != nil {
		e.Static("/uploads", a.local.Root())
	}

	loginLimit := middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: a.cfg.RateLimitRPS,
		BurstSize:         a.cfg.RateLimitBurst,
		OnLimit: func(c echo.Context) error {
			return view.Back(c, "/login", session.FlashError, "Too many attempts. Please wait a moment and try again.")
		},
	})

	public := e.Group("")
	adminGroup := e.Group("/admin", auth.RequireRole(auth.RoleAdmin))
	doctorGroup := e.Group("/doctor", auth.RequireRole(auth.RoleDoctor))
	patientGroup := e.Group("/patient", auth.RequireRole(auth.RolePatient))
	api := e.Group("/api", auth.RequireRole(auth.RoleDoctor, auth.RolePatient))
	inbox := e.Group("/notifications", auth.RequireLogin())

	identity.NewHandler(a.identity, a.sessions, loginLimit).RegisterRoutes(public, adminGroup, patientGroup)
	doctor.NewHandler(a.doctors, a.files).RegisterRoutes(public, adminGroup, doctorGroup, patientGroup)
	scheduling.NewHandler(a.schedule).RegisterRoutes(adminGroup, doctorGroup, patientGroup)
	messaging.NewHandler(a.messages).RegisterRoutes(api, inbox)
	pharmacy.NewHandler(a.pharmacy).RegisterRoutes(adminGroup, doctorGroup, patientGroup)
	admin.NewHandler(a.admin).RegisterRoutes(adminGroup)
	reporting.NewHandler(a.measures).RegisterRoutes(adminGroup)

	return e, nil
}

func runServer(cfg *config.Config, logger zerolog.Logger) error {
	ctx := context.Background()
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to start")
		return err
	}
	defer a.Close()

	e, err := a.routes()
	if err != nil {
		return err
	}

	reminderCtx, stopReminders := context.WithCancel(ctx)
	defer stopReminders()
	if err := a.reminders.Start(reminderCtx); err != nil {
		return fmt.Errorf("start reminder scheduler: %w", err)
	}
	defer a.reminders.Stop()

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	sigCtx, cancel := signalContext()
	defer cancel()
	<-sigCtx.Done()

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

// runMailWorker drains the mail queue into SMTP until ctx ends.
func runMailWorker(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	conn, err := amqp.Dial(cfg.AMQPURL)
	if err != nil {
		return fmt.Errorf("connect amqp: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open amqp channel: %w", err)
	}
	defer ch.Close()

	logger.Info().Str("queue", cfg.MailQueue).Msg("mail worker started")
	return notification.NewQueueConsumer(ch, cfg.MailQueue, smtpSender(cfg), logger).Run(ctx)
}
