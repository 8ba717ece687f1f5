package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/abrbrillante/abr-portal/auth"
	"github.com/abrbrillante/abr-portal/billing"
	"github.com/abrbrillante/abr-portal/customer"
	"github.com/abrbrillante/abr-portal/db"
	"github.com/abrbrillante/abr-portal/guard"
	"github.com/abrbrillante/abr-portal/identity"
	"github.com/abrbrillante/abr-portal/subscription"

	"github.com/TheZeroSlave/zapsentry"
	"github.com/getsentry/sentry-go"
	"github.com/go-chi/chi"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Build-time injected variables
var (
	Version = ""
)

func mustGetenv(logger *zap.Logger, key string) string {
	value := os.Getenv(key)
	if value == "" {
		logger.Fatal("Missing required configuration",
			zap.String("Key", key),
		)
	}
	return value
}

func main() {
	var logger *zap.Logger
	var dotFile string
	var err error

	// Determine running environment and initialize structural logger
	env := os.Getenv("API_ENV")
	if "production" == env {
		dotFile = ".env.production"
		logger, err = zap.NewProduction()
	} else {
		dotFile = ".env.development"
		logger, err = zap.NewDevelopment()
	}

	if err != nil {
		log.Fatalf("Cannot initialize logger: %v\n", err)
	}
	logger = logger.With(zap.String("Version", Version))
	defer logger.Sync()

	// Load configurations from dotFile
	if err := godotenv.Load(dotFile); err != nil {
		logger.Fatal("Cannot load configurations from .env",
			zap.Error(err),
		)
	}

	// Initialize sentry for error reporting
	if err := sentry.Init(sentry.ClientOptions{
		Environment: env,
		Debug:       "production" != env,
	}); err != nil {
		logger.Fatal("Cannot initialize sentry",
			zap.Error(err),
		)
	}
	defer sentry.Flush(time.Second * 2)

	// Attach sentry to zap so we can do automatic error capturing
	cfg := zapsentry.Configuration{
		Level: zapcore.ErrorLevel,
		Tags: map[string]string{
			"component": "api",
		},
	}
	core, err := zapsentry.NewCore(cfg, zapsentry.NewSentryClientFromClient(sentry.CurrentHub().Client()))
	if err != nil {
		logger.Fatal("Cannot initialize zapsentry",
			zap.Error(err),
		)
	}
	logger = zapsentry.AttachCoreToLogger(core, logger)

	siteURL := mustGetenv(logger, "SITE_URL")

	db, err := db.New(logger, mustGetenv(logger, "POSTGRES_URI"))
	if err != nil {
		logger.Fatal("Cannot connect to the customer record store",
			zap.Error(err),
		)
	}

	identityClient, err := identity.NewClient(identity.Options{
		BaseURL:    mustGetenv(logger, "SUPABASE_URL"),
		AnonKey:    mustGetenv(logger, "SUPABASE_ANON_KEY"),
		ServiceKey: mustGetenv(logger, "SUPABASE_SERVICE_KEY"),
		Logger:     logger,
	})
	if err != nil {
		logger.Fatal("Cannot initialize identity provider client",
			zap.Error(err),
		)
	}

	billingClient, err := billing.NewClient(billing.Options{
		SecretKey:    mustGetenv(logger, "TOYYIBPAY_SECRET_KEY"),
		CategoryCode: mustGetenv(logger, "TOYYIBPAY_CATEGORY_CODE"),
		Logger:       logger,
	})
	if err != nil {
		logger.Fatal("Cannot initialize billing provider client",
			zap.Error(err),
		)
	}

	authManager, err := auth.New(auth.Options{
		Logger:        logger,
		JWTSigningKey: mustGetenv(logger, "SUPABASE_JWT_SECRET"),
	})
	if err != nil {
		logger.Fatal("Cannot initialize Auth",
			zap.Error(err),
		)
	}

	customerManager, err := customer.NewManager(logger, db)
	if err != nil {
		logger.Fatal("Cannot initialize CustomerManager",
			zap.Error(err),
		)
	}

	subscriptionManager, err := subscription.NewManager(subscription.ManagerOptions{
		Identity:  identityClient,
		Customers: customerManager,
		Billing:   billingClient,
		BaseURL:   siteURL,
		Logger:    logger,
	})
	if err != nil {
		logger.Fatal("Cannot initialize SubscriptionManager",
			zap.Error(err),
		)
	}

	subscriptionRouter, err := subscription.NewService(subscription.ServiceOptions{
		Auth:                authManager,
		SubscriptionManager: subscriptionManager,
		Logger:              logger,
	})
	if err != nil {
		logger.Fatal("Cannot initialize Subscription Service Router",
			zap.Error(err),
		)
	}

	customerRouter, err := customer.NewService(customer.Options{
		CustomerManager: customerManager,
		Logger:          logger,
	})
	if err != nil {
		logger.Fatal("Cannot initialize Customer Service Router",
			zap.Error(err),
		)
	}

	accessGuard, err := guard.New(guard.Options{
		Customers: customerManager,
		Logger:    logger,
	})
	if err != nil {
		logger.Fatal("Cannot initialize access Guard",
			zap.Error(err),
		)
	}

	contentDir := os.Getenv("CONTENT_DIR")
	if contentDir == "" {
		contentDir = "content"
	}

	rootRouter := chi.NewRouter()

	rootRouter.Use(cors.New(cors.Options{
		AllowedOrigins:   []string{siteURL},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	}).Handler)

	rootRouter.Mount("/api", subscriptionRouter.Router())

	rootRouter.Route("/api/customers", func(r chi.Router) {
		r.Use(authManager.Middleware())
		r.Use(accessGuard.Admin())
		r.Mount("/", customerRouter.Router())
	})

	// Protected reference content, gated on a paid and unexpired subscription
	rootRouter.Route("/content", func(r chi.Router) {
		r.Use(authManager.Middleware())
		r.Use(accessGuard.Paid())
		r.Handle("/*", http.StripPrefix("/content", http.FileServer(http.Dir(contentDir))))
	})

	// Landing page the billing provider redirects back to after payment.
	// Confirmation itself arrives through the callback, not through here.
	rootRouter.Get("/payment-success", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "Terima kasih! Pembayaran anda sedang diproses.")
	})

	rootRouter.Get("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "Sistem Rujukan ABR")
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "3001"
	}

	srv := &http.Server{
		Handler: rootRouter,
		Addr:    ":" + port,
	}

	logger.Info("API listening",
		zap.String("Addr", srv.Addr),
	)

	log.Fatalln(srv.ListenAndServe())
}
