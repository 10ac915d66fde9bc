package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fjod/go_checkout/internal/checkout"
	"github.com/fjod/go_checkout/internal/clock"
	"github.com/fjod/go_checkout/internal/discount"
	"github.com/fjod/go_checkout/internal/dispatch"
	h "github.com/fjod/go_checkout/internal/http"
	"github.com/fjod/go_checkout/internal/orders"
	"github.com/fjod/go_checkout/internal/payment"
	"github.com/fjod/go_checkout/internal/pricing"
	"github.com/fjod/go_checkout/internal/store"
)

type Config struct {
	HTTPPort        string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration

	SessionBackend string // "memory" or "redis"
	RedisAddr      string
	SessionTTL     time.Duration
	GraceWindow    time.Duration

	DBHost         string
	DBPort         int
	DBUser         string
	DBPassword     string
	DBName         string
	MigrationsPath string

	KafkaBrokers string

	DiscountEngineURL     string
	DiscountEngineTimeout time.Duration
	EmailServiceURL       string
	EmailServiceTimeout   time.Duration
}

func loadConfig() *Config {
	dbPort, err := strconv.Atoi(getEnv("DB_PORT", "5432"))
	if err != nil {
		log.Fatalf("Invalid DB_PORT: %v", err)
	}

	return &Config{
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		RequestTimeout:  30 * time.Second,
		ShutdownTimeout: 10 * time.Second,

		SessionBackend: getEnv("SESSION_BACKEND", "memory"),
		RedisAddr:      getEnv("REDIS_ADDR", "localhost:6379"),
		SessionTTL:     getDurationEnv("SESSION_TTL", store.DefaultSessionTTL),
		GraceWindow:    getDurationEnv("GRACE_WINDOW", store.DefaultGraceWindow),

		DBHost:         getEnv("DB_HOST", "localhost"),
		DBPort:         dbPort,
		DBUser:         getEnv("DB_USER", "postgres"),
		DBPassword:     getEnv("DB_PASSWORD", "postgres"),
		DBName:         getEnv("DB_NAME", "checkout"),
		MigrationsPath: getEnv("MIGRATIONS_PATH", "./internal/orders/migrations"),

		KafkaBrokers: getEnv("KAFKA_BROKERS", "localhost:9092"),

		DiscountEngineURL:     getEnv("DISCOUNT_ENGINE_URL", "http://localhost:8091"),
		DiscountEngineTimeout: 5 * time.Second,
		EmailServiceURL:       getEnv("EMAIL_SERVICE_URL", "http://localhost:8092"),
		EmailServiceTimeout:   10 * time.Second,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		log.Fatalf("Invalid %s: %v", key, err)
	}
	return d
}

func main() {
	log.Println("guest-checkout starting...")

	cfg := loadConfig()
	clk := clock.NewSystem()

	// Session store
	var sessions store.SessionStore
	switch cfg.SessionBackend {
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(context.Background()).Err(); err != nil {
			log.Fatalf("Failed to connect to redis: %v", err)
		}
		sessions = store.NewRedisStore(client, cfg.SessionTTL, cfg.GraceWindow, clk)
		log.Printf("using redis session store at %s", cfg.RedisAddr)
	case "memory":
		sessions = store.NewMemoryStore(cfg.SessionTTL, cfg.GraceWindow, clk)
		log.Println("using in-memory session store")
	default:
		log.Fatalf("Unknown SESSION_BACKEND %q", cfg.SessionBackend)
	}
	defer sessions.Close()

	// Orders archive
	creds := &orders.Credentials{
		Host:              cfg.DBHost,
		Port:              cfg.DBPort,
		User:              cfg.DBUser,
		Password:          cfg.DBPassword,
		DBName:            cfg.DBName,
		MigrationsDirPath: cfg.MigrationsPath,
	}
	orderRepo, err := orders.NewRepository(creds)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer orderRepo.Close()

	if err := orderRepo.RunMigrations(creds); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Confirmation email dispatch
	sender := dispatch.NewHTTPEmailSender(cfg.EmailServiceURL, cfg.EmailServiceTimeout)
	dispatcher := dispatch.NewDispatcher(sender, clk)

	svc := checkout.NewService(sessions, orderRepo, dispatcher, clk, pricing.StandardShipping)

	engine := discount.NewHTTPEngine(cfg.DiscountEngineURL, cfg.DiscountEngineTimeout)
	resolver := discount.NewResolver(sessions, engine, pricing.StandardShipping, clk)

	consumer := payment.NewConsumer(svc, strings.Split(cfg.KafkaBrokers, ",")...)
	defer consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go dispatcher.Run(ctx)
	go consumer.Run(ctx)

	handler := h.NewCheckoutHandler(svc, resolver)
	router := h.NewRouter(handler, cfg.RequestTimeout)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("checkout API listening on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("server forced to shutdown: %v", err)
	}

	log.Println("server exited")
}
