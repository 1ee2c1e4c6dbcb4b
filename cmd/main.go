package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"

	"cloverBack/internal/config"
	"cloverBack/internal/models"
	"cloverBack/internal/timeutil"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: Error loading .env file: %v", err)
	}

	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to the YAML config file")
	once := flag.Bool("once", false, "run the recurring job once and exit")
	flag.Parse()

	infoLog := log.New(os.Stdout, "INFO\t", log.Ldate|log.Ltime)
	errorLog := log.New(os.Stderr, "ERROR\t", log.Ldate|log.Ltime|log.Lshortfile)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		errorLog.Fatal(err)
	}
	loc := timeutil.SetLocation(cfg.Recurring.Timezone)
	infoLog.Printf("recurring schedule timezone: %s", loc)

	db, err := openDB(cfg.Database.Driver, cfg.Database.URL)
	if err != nil {
		errorLog.Fatal(err)
	}
	defer db.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := initializeApp(cfg, db, rdb, logger, errorLog, infoLog)
	if err != nil {
		errorLog.Fatal(err)
	}

	if *once {
		runCtx, cancel := context.WithTimeout(ctx, cfg.Recurring.RunTimeout)
		res, err := app.job.Run(runCtx, models.JobParams{})
		cancel()
		if err != nil {
			errorLog.Fatal(err)
		}
		infoLog.Printf("recurring job: %s", res.Message)
		return
	}

	if cfg.Recurring.Enabled {
		startRecurringRunner(ctx, app.job, cfg.Recurring.Interval, cfg.Recurring.RunTimeout, infoLog, errorLog)
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:5173"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowCredentials: true,
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
	})

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		ErrorLog:     errorLog,
		Handler:      addSecurityHeaders(c.Handler(app.routes())),
		IdleTimeout:  time.Minute,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: cfg.Recurring.RunTimeout + 10*time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	infoLog.Printf("Starting server on %s", cfg.Server.Address)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		errorLog.Fatal(err)
	}
}
