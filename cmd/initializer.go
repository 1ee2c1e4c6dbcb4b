package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"

	"cloverBack/internal/auth"
	"cloverBack/internal/config"
	"cloverBack/internal/handlers"
	"cloverBack/internal/lock"
	"cloverBack/internal/recurring"
	"cloverBack/internal/refund"
	"cloverBack/internal/repositories"
	"cloverBack/internal/timeutil"
)

type application struct {
	errorLog *log.Logger
	infoLog  *log.Logger
	logger   *slog.Logger

	tokens *auth.Manager
	job    *recurring.Job

	recurringHandler *handlers.RecurringHandler
	refundHandler    *handlers.RefundHandler
	healthHandler    *handlers.HealthHandler
}

func initializeApp(cfg config.Config, db *sql.DB, rdb *redis.Client, logger *slog.Logger, errorLog, infoLog *log.Logger) (*application, error) {
	// Repositories
	seriesRepo := &repositories.RecurringRepository{DB: db}
	contributionRepo := &repositories.ContributionRepository{DB: db}
	tokenRepo := &repositories.PaymentTokenRepository{DB: db}
	activityRepo := &repositories.ActivityRepository{DB: db}
	membershipRepo := &repositories.MembershipRepository{DB: db}
	participantRepo := &repositories.ParticipantRepository{DB: db}
	processorRepo := &repositories.ProcessorRepository{DB: db}
	settingsRepo := &repositories.SettingsRepository{DB: db}
	trxnRepo := &repositories.FinancialTrxnRepository{DB: db}

	locker := lock.NewRedisLocker(rdb, cfg.Recurring.LockTTL)

	job, err := recurring.NewJob(recurring.Deps{
		Locker:        locker,
		Series:        seriesRepo,
		Contributions: contributionRepo,
		Tokens:        tokenRepo,
		Memberships:   membershipRepo,
		Activities:    activityRepo,
		Processors:    processorRepo,
		Currency:      settingsRepo,
		Gateways:      recurring.Clover(cfg.Clover.Timeout, logger),
		Logger:        logger.With("component", "recurring"),
		Now:           timeutil.Now,
	}, recurring.Config{
		LockName:         cfg.Recurring.LockName,
		FailureThreshold: cfg.Recurring.FailureThreshold,
		FailureCeiling:   cfg.Recurring.FailureCeiling,
		DefaultCurrency:  cfg.Clover.DefaultCurrency,
	})
	if err != nil {
		return nil, err
	}

	decider, err := refund.NewDecider(refund.Deps{
		Payments:     trxnRepo,
		Processors:   processorRepo,
		Memberships:  membershipRepo,
		Participants: participantRepo,
		Locker:       locker,
		Gateways:     refund.Clover(cfg.Clover.Timeout, logger),
		Currency:     cfg.Clover.DefaultCurrency,
		Logger:       logger.With("component", "refund"),
		Now:          timeutil.Now,
	})
	if err != nil {
		return nil, err
	}

	tokens, err := auth.NewManager(cfg.Auth.JWTSecret)
	if err != nil {
		return nil, err
	}

	return &application{
		errorLog:         errorLog,
		infoLog:          infoLog,
		logger:           logger,
		tokens:           tokens,
		job:              job,
		recurringHandler: handlers.NewRecurringHandler(job, job.Executor(), logger),
		refundHandler:    handlers.NewRefundHandler(decider, logger),
		healthHandler: &handlers.HealthHandler{Checks: map[string]handlers.Pinger{
			"database": db,
			"redis":    handlers.PingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() }),
		}},
	}, nil
}

// openDB connects to the ledger database.
func openDB(driver, dsn string) (*sql.DB, error) {
	if driver == "" {
		driver = "mysql"
	}
	if driver == "mysql" {
		var err error
		if dsn, err = mysqlDSN(dsn, timeutil.Location()); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		log.Printf("Failed to open DB: %v", err)
		return nil, err
	}
	if err = db.Ping(); err != nil {
		log.Printf("Failed to ping DB: %v", err)
		return nil, err
	}
	db.SetMaxIdleConns(10)
	log.Println("Successfully connected to database")
	return db, nil
}

// mysqlDSN forces parseTime and reads DATETIME columns in the schedule
// location, so due dates compare against the same clock the job uses.
func mysqlDSN(dsn string, loc *time.Location) (string, error) {
	mc, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("parse dsn: %w", err)
	}
	mc.ParseTime = true
	if loc != nil {
		mc.Loc = loc
	}
	return mc.FormatDSN(), nil
}

func addSecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Cross-Origin-Resource-Policy", "same-origin")
		next.ServeHTTP(w, r)
	})
}
