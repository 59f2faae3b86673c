package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront-be/internal/config"
	"storefront-be/internal/db"
	"storefront-be/internal/events"
	"storefront-be/internal/handler"
	"storefront-be/internal/logger"
	"storefront-be/internal/middleware"
	"storefront-be/internal/notify"
	"storefront-be/internal/order"
	"storefront-be/internal/otp"
	"storefront-be/internal/payment"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	initDBFunc      = db.InitDB
	startServerFunc = func(srv *http.Server) error {
		return srv.ListenAndServe()
	}
)

const (
	smsTimeout      = 10 * time.Second
	eventBuffer     = 256
	shutdownTimeout = 15 * time.Second
)

type app struct {
	router     http.Handler
	limiter    *middleware.Limiter
	dispatcher *notify.AsyncDispatcher
	closers    []func()
}

func (a *app) close() {
	// Pending SMS sends finish before the event queue is flushed.
	a.dispatcher.Wait()
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg := config.LoadConfig()
	logger.Init(cfg.AppEnv)
	defer logger.Sync()

	database := initDBFunc(cfg)
	defer database.Close()

	a, err := newServer(cfg, database)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go a.limiter.Run(ctx)

	srv := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.L().Info("server listening", zap.String("addr", srv.Addr), zap.String("env", cfg.AppEnv))
		errCh <- startServerFunc(srv)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
		logger.L().Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func newServer(cfg *config.Config, database *sql.DB) (*app, error) {
	a := &app{limiter: middleware.NewLimiter()}

	var sender notify.Sender
	if cfg.SMSBaseURL != "" {
		sender = notify.NewHTTPSender(cfg.SMSBaseURL, cfg.SMSAPIKey, cfg.SMSSender)
	} else {
		logger.L().Warn("SMS_BASE_URL not set, SMS will only be logged")
		sender = notify.NewLogSender()
	}
	a.dispatcher = notify.NewDispatcher(sender, smsTimeout)

	var publisher events.Publisher = events.Nop{}
	if len(cfg.KafkaBrokers) > 0 {
		kp := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, eventBuffer)
		kp.Start()
		a.closers = append(a.closers, kp.Close)
		publisher = kp
	}

	store, err := newOTPStore(cfg, database, a)
	if err != nil {
		return nil, err
	}
	otpSvc := otp.NewService(store, a.dispatcher, otp.Options{
		TTL:            cfg.OTP.TTL,
		ResendCooldown: cfg.OTP.ResendCooldown,
		VerifiedWindow: cfg.OTP.VerifiedWindow,
	})

	gateways := []payment.Gateway{
		payment.NewBkashGateway(cfg.Bkash, cfg.GatewayTimeout),
		payment.NewSSLCommerzGateway(cfg.SSLCommerz, cfg.GatewayTimeout),
	}
	paymentSvc := payment.NewService(payment.NewRepository(database), gateways, publisher, a.dispatcher, cfg.CallbackBaseURL)

	orderSvc := order.NewService(order.NewRepository(database), paymentSvc, otpSvc, publisher, a.dispatcher, order.Options{
		NumberPrefix:    cfg.Order.NumberPrefix,
		RequireGuestOTP: cfg.OTP.RequiredForGuest,
	})

	a.router = handler.New(orderSvc, otpSvc, paymentSvc).Router(handler.RouterOptions{
		JWTSecret: []byte(cfg.JWTSecret),
		Limiter:   a.limiter,
	})
	return a, nil
}

func newOTPStore(cfg *config.Config, database *sql.DB, a *app) (otp.Store, error) {
	switch cfg.OTP.Store {
	case "redis":
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = rdb.Close() })
		return otp.NewRedisStore(rdb, cfg.OTP.VerifiedWindow), nil
	case "postgres", "":
		return otp.NewRepository(database), nil
	default:
		return nil, errors.New("unknown OTP_STORE " + cfg.OTP.Store)
	}
}
