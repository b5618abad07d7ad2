package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"checkout-3ds-api/config"
	"checkout-3ds-api/database"
	"checkout-3ds-api/handlers"
	"checkout-3ds-api/middleware"
	"checkout-3ds-api/queue"
	"checkout-3ds-api/services/auth"
	"checkout-3ds-api/services/payment"
	"checkout-3ds-api/services/payment/braintree"
	"checkout-3ds-api/services/threeds"
	"checkout-3ds-api/worker"
)

const jobQueueName = "three_ds_jobs"

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, Authorization, X-Request-ID")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// loggingMiddleware logs slow requests and errors only.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapper := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapper, r)

		elapsed := time.Since(start)
		if elapsed > 500*time.Millisecond || wrapper.status >= 400 {
			log.Printf(
				"[RequestID: %s] %s %s %s %d %v",
				middleware.GetRequestID(r.Context()),
				r.Method,
				r.RequestURI,
				middleware.ClientIP(r),
				wrapper.status,
				elapsed,
			)
		}
	})
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile | log.Lmicroseconds | log.LUTC)
	log.Printf("Server starting with %d CPUs available", runtime.NumCPU())

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	log.Printf("Configuration loaded successfully")

	var db *database.Connection
	var err error
	for retries := 0; retries < 5; retries++ {
		db, err = database.NewConnection(cfg.Database)
		if err == nil {
			break
		}
		retryDelay := time.Duration(retries+1) * time.Second
		log.Printf("Failed to connect to database (attempt %d/5): %v. Retrying in %v...",
			retries+1, err, retryDelay)
		time.Sleep(retryDelay)
	}
	if err != nil {
		log.Fatalf("Failed to connect to database after retries: %v", err)
	}
	defer db.Close()

	if err := database.EnsureSchema(cfg.Database); err != nil {
		log.Fatalf("Failed to prepare database schema: %v", err)
	}
	log.Println("Successfully connected to database")

	jobQueue, err := queue.NewQueue(cfg.Redis.URL, jobQueueName)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer jobQueue.Close()
	log.Println("Successfully connected to Redis")

	var translator threeds.Translator
	if cfg.Challenge.TranslationsFile != "" {
		catalog, err := threeds.LoadCatalog(cfg.Challenge.TranslationsFile)
		if err != nil {
			log.Fatalf("Failed to load translations: %v", err)
		}
		translator = catalog
		log.Printf("Loaded %d translations from %s", len(catalog), cfg.Challenge.TranslationsFile)
	}

	btClient := braintree.NewClient(cfg.Braintree)
	if cfg.Gateway.Active {
		pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := btClient.Ping(pingCtx); err != nil {
			log.Printf("Warning: Braintree API is not reachable: %v", err)
		}
		pingCancel()
	}
	gateway := braintree.NewGateway(btClient, cfg.Challenge.Timeout)

	icons := payment.NewIconSource(cfg.Icons.Dir, cfg.Icons.BaseURL, cfg.Gateway.AvailableCardTypes)
	provider := payment.NewConfigProvider(cfg.Gateway, cfg.ThreeDS, btClient, icons)
	challengeTokens := auth.NewChallengeTokenService(cfg.Challenge.TokenSecret, "checkout-3ds-api", auth.ChallengeTokenDuration)

	workerConcurrency := cfg.Redis.WorkerConcurrency
	if workerConcurrency < 1 {
		workerConcurrency = 1
	} else if workerConcurrency > 8 {
		workerConcurrency = 8
	}
	attemptWorker := worker.NewWorker(jobQueue, db)
	attemptWorker.Start(workerConcurrency)
	log.Printf("Started attempt worker with %d threads", workerConcurrency)

	sessionStore := handlers.NewSessionStore(cfg.Session.Secret, cfg.Session.MaxAge, cfg.Session.Secure)
	threeDSHandler := handlers.NewThreeDSHandler(provider, gateway, challengeTokens, jobQueue, db, sessionStore,
		handlers.ThreeDSOptions{
			SessionName:      cfg.Session.Name,
			SessionMaxAge:    cfg.Session.MaxAge,
			ChallengeTimeout: cfg.Challenge.Timeout,
			VerifyWait:       cfg.Challenge.VerifyWait,
			Translator:       translator,
		})
	internalHandler := handlers.NewInternalHandler(jobQueue)
	healthHandler := handlers.NewHealthHandler(map[string]handlers.Pinger{
		"database": db,
		"redis": handlers.PingFunc(func(ctx context.Context) error {
			return jobQueue.Client().Ping(ctx).Err()
		}),
	})

	janitorCtx, stopJanitor := context.WithCancel(context.Background())
	defer stopJanitor()
	go threeDSHandler.RunJanitor(janitorCtx)

	rateLimiter := middleware.NewRateLimiter(jobQueue.Client())
	trustedProxies, err := middleware.ParseTrustedProxies(cfg.Server.TrustedProxies)
	if err != nil {
		log.Fatalf("Invalid trusted proxies: %v", err)
	}

	router := mux.NewRouter()
	router.Use(middleware.RealIP(trustedProxies))
	router.Use(middleware.RequestID)
	router.Use(middleware.SecurityHeadersMiddleware)
	router.Use(corsMiddleware)
	router.Use(loggingMiddleware)
	router.Use(rateLimiter.RateLimitMiddleware())

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", healthHandler.Health).Methods("GET")

	tds := api.PathPrefix("/3ds").Subrouter()
	tds.HandleFunc("/config", threeDSHandler.GetConfig).Methods("GET", "OPTIONS")
	tds.HandleFunc("/verify", threeDSHandler.Verify).Methods("POST", "OPTIONS")
	tds.HandleFunc("/attempts/{id}", threeDSHandler.GetAttempt).Methods("GET", "OPTIONS")
	tds.Handle("/attempts/{id}/challenge",
		middleware.ChallengeAuth(challengeTokens)(http.HandlerFunc(threeDSHandler.SubmitChallenge))).Methods("POST", "OPTIONS")

	internal := router.PathPrefix("/internal").Subrouter()
	internal.Use(middleware.IPWhitelistMiddleware(cfg.Server.InternalAllowedIPs))
	internal.Use(middleware.RequireInternalSecret(cfg.Server.InternalSecret))
	internal.HandleFunc("/jobs/{id}/retry", internalHandler.RetryJob).Methods("POST")

	// verify can hold the request for the whole wait period
	writeTimeout := cfg.Challenge.VerifyWait + 10*time.Second
	if writeTimeout < 30*time.Second {
		writeTimeout = 30 * time.Second
	}

	srv := &http.Server{
		Addr:           fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:        router,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   writeTimeout,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		log.Printf("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	<-stop
	log.Println("Shutdown signal received, gracefully shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	log.Println("Shutting down HTTP server...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	stopJanitor()

	log.Println("Waiting for in-flight 3DS verifications...")
	if err := threeDSHandler.Drain(shutdownCtx); err != nil {
		log.Printf("Verifications cancelled before finishing: %v", err)
	}

	log.Println("Stopping attempt worker...")
	attemptWorker.Stop()

	log.Println("Server exited properly")
}
