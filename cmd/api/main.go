package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/fmarconi/consultorio-ai-platform/cmd/mainconfig"
	"github.com/fmarconi/consultorio-ai-platform/internal/api/router"
	"github.com/fmarconi/consultorio-ai-platform/internal/appointments"
	appconfig "github.com/fmarconi/consultorio-ai-platform/internal/config"
	"github.com/fmarconi/consultorio-ai-platform/internal/conversation"
	"github.com/fmarconi/consultorio-ai-platform/internal/messaging"
	"github.com/fmarconi/consultorio-ai-platform/internal/messaging/whatsappclient"
	"github.com/fmarconi/consultorio-ai-platform/internal/notify"
	"github.com/fmarconi/consultorio-ai-platform/internal/observability/metrics"
	"github.com/fmarconi/consultorio-ai-platform/internal/patients"
	"github.com/fmarconi/consultorio-ai-platform/internal/schedule"
	"github.com/fmarconi/consultorio-ai-platform/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting consultorio-ai-platform API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx := context.Background()

	calCfg, err := schedule.ParseCalendarConfig(cfg.OfficeDays, cfg.OfficeHours, cfg.SlotMinutes, cfg.ClinicTimezone)
	if err != nil {
		logger.Error("invalid calendar configuration", "error", err)
		os.Exit(1)
	}
	calendar := schedule.NewCalendar(calCfg)

	// Storage. Without DATABASE_URL everything runs in memory, which is
	// enough for local development against the dry-run sender.
	var (
		patientRepo patients.Repository
		apptRepo    appointments.Repository
		recorder    conversation.MessageRecorder
		dedupe      *messaging.DedupeStore
	)
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		patientRepo = patients.NewPostgresRepository(pool)
		apptRepo = appointments.NewPostgresRepository(pool)
		recorder = messaging.NewStore(pool)
		dedupe = messaging.NewDedupeStore(pool)
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory repositories")
		patientRepo = patients.NewInMemoryRepository()
		apptRepo = appointments.NewInMemoryRepository()
	}

	clinic := conversation.ClinicInfo{
		Name:       cfg.ClinicName,
		DoctorName: cfg.DoctorName,
		Address:    cfg.ClinicAddress,
		Phone:      cfg.ClinicPhone,
		HoursLabel: cfg.ClinicHoursLabel,
		Insurances: cfg.ClinicInsurances,
		InboxEmail: cfg.ClinicInboxEmail,
	}

	registry := prometheus.NewRegistry()
	convMetrics := metrics.NewConversationMetrics(registry)

	slots := conversation.NewSlotProvider(calendar, apptRepo, cfg.DoctorID, cfg.BookingHorizonDays)
	machine := conversation.NewMachine(patientRepo, apptRepo, slots, clinic, logger)
	reconciler := conversation.NewReconciler(calendar.Location(), logger).
		WithMetrics(convMetrics)

	var emailSender notify.EmailSender
	if sg := notify.NewSendGridSender(notify.SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.SendGridFromEmail,
		FromName:  cfg.SendGridFromName,
	}, logger); sg != nil {
		emailSender = sg
	} else {
		emailSender = notify.NewStubEmailSender(logger)
	}
	notifier := notify.NewService(emailSender, cfg.ClinicInboxEmail, cfg.ClinicName, calendar.Location(), logger)

	executor := conversation.NewExecutor(apptRepo, patientRepo, cfg.DoctorID, calendar.Location(), logger).
		WithNotifier(notifier).
		WithMetrics(convMetrics)

	var agent *conversation.Agent
	if cfg.GeminiAPIKey != "" {
		primary, err := conversation.NewGeminiLLMClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
		if err != nil {
			logger.Error("failed to initialize gemini client", "error", err)
			os.Exit(1)
		}
		llm := conversation.LLMClient(primary)
		if cfg.GeminiFallbackModelID != "" {
			fallback, err := conversation.NewGeminiLLMClient(ctx, cfg.GeminiAPIKey, cfg.GeminiFallbackModelID)
			if err != nil {
				logger.Error("failed to initialize fallback gemini client", "error", err)
				os.Exit(1)
			}
			llm = conversation.NewFallbackLLMClient(primary, fallback, logger)
		}
		agent = conversation.NewAgent(llm, clinic, cfg.LLMTimeout, logger).
			WithMetrics(convMetrics)
	} else {
		logger.Warn("GEMINI_API_KEY not set, running deterministic flows only")
	}

	var history *conversation.HistoryStore
	if cfg.RedisAddr != "" {
		opts := &redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
		if cfg.RedisTLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		history = conversation.NewHistoryStore(redis.NewClient(opts), nil)
	}

	engine := conversation.NewEngine(conversation.EngineDeps{
		Patients:   patientRepo,
		Machine:    machine,
		Slots:      slots,
		Reconciler: reconciler,
		Executor:   executor,
		Agent:      agent,
		FAQ:        conversation.NewFAQ(clinic),
		History:    history,
		Recorder:   recorder,
		Metrics:    convMetrics,
		Logger:     logger,
	})

	var orchestrator *conversation.Orchestrator
	if cfg.UseMemoryQueue {
		orchestrator = conversation.NewOrchestrator(engine, conversation.NewMemoryQueue(64), logger,
			conversation.WithWorkerCount(cfg.WorkerCount))
	} else {
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			logger.Error("failed to load AWS config", "error", err)
			os.Exit(1)
		}
		queue := conversation.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.ConversationQueueURL)
		orchestrator = conversation.NewOrchestrator(engine, queue, logger,
			conversation.WithWorkerCount(cfg.WorkerCount))
	}

	var sender messaging.TextSender
	var verifier *whatsappclient.Client
	if cfg.WhatsAppToken != "" && cfg.WhatsAppPhoneNumberID != "" {
		waClient, err := whatsappclient.New(whatsappclient.Config{
			BaseURL:       cfg.WhatsAppBaseURL,
			AccessToken:   cfg.WhatsAppToken,
			PhoneNumberID: cfg.WhatsAppPhoneNumberID,
			AppSecret:     cfg.WhatsAppAppSecret,
			MaxRetries:    2,
			Logger:        logger.Logger,
		})
		if err != nil {
			logger.Error("failed to initialize whatsapp client", "error", err)
			os.Exit(1)
		}
		sender = messaging.NewWhatsAppSender(waClient, logger)
		if cfg.WhatsAppAppSecret != "" {
			verifier = waClient
		}
	} else {
		logger.Warn("WhatsApp credentials not set, outbound messages are logged only")
		sender = messaging.NewLogSender(logger)
	}

	var claimer messaging.MessageClaimer
	if dedupe != nil {
		claimer = dedupe
	}
	var sigVerifier messaging.SignatureVerifier
	if verifier != nil {
		sigVerifier = verifier
	}
	messagingHandler := messaging.NewHandler(cfg.WhatsAppVerifyToken, sigVerifier, orchestrator, sender, claimer, logger)

	r := router.New(&router.Config{
		Logger:           logger,
		MessagingHandler: messagingHandler,
		MetricsHandler:   promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	if err := orchestrator.Shutdown(shutdownCtx); err != nil {
		logger.Error("orchestrator shutdown failed", "error", err)
	}

	logger.Info("server stopped")
}
