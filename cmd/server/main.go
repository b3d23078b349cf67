package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/nukekv/nukekv/internal/api"
	"github.com/nukekv/nukekv/internal/config"
	"github.com/nukekv/nukekv/internal/handler"
	"github.com/nukekv/nukekv/internal/metrics"
	"github.com/nukekv/nukekv/internal/netutil"
	"github.com/nukekv/nukekv/internal/server"
	"github.com/nukekv/nukekv/internal/store"
	"github.com/nukekv/nukekv/internal/worker"
)

const banner = `
     __    __  __    __  __    __  ________       __    __  __     __
    /  \  /  |/  |  /  |/  |  /  |/        |     /  |  /  |/  |   /  |
    $$  \ $$ |$$ |  $$ |$$ | /$$/ $$$$$$$$/      $$ | /$$/ $$ |   $$ |
    $$$  \$$ |$$ |  $$ |$$ |/$$/  $$ |__  ______ $$ |/$$/  $$ |   $$ |
    $$$$  $$ |$$ |  $$ |$$  $$<   $$    |/      |$$  $$<   $$  \ /$$/
    $$ $$ $$ |$$ |  $$ |$$$$$  \  $$$$$/ $$$$$$/ $$$$$  \   $$  /$$/
    $$ |$$$$ |$$ \__$$ |$$ |$$  \ $$ |_____      $$ |$$  \   $$ $$/
    $$ | $$$ |$$    $$/ $$ | $$  |$$       |     $$ | $$  |   $$$/
    $$/   $$/  $$$$$$/  $$/   $$/ $$$$$$$$/      $$/   $$/     $/
`

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", os.Getenv("NUKEKV_CONFIG"), "path to YAML config file")
	port := flag.Int("port", 0, "listen port (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Port = *port
	}

	logger := setupLogger(cfg)

	// The probe runs while the engine boots; the banner waits on it briefly.
	publicIP := make(chan string, 1)
	go func() { publicIP <- netutil.PublicIP() }()

	st := store.New(cfg, logger)
	metrics.RegisterStore(st)
	if err := st.Load(); err != nil {
		logger.Error().Err(err).Msg("snapshot load failed, starting empty")
	}

	listener, err := listen(cfg.Port)
	if err != nil {
		logger.Error().Err(err).Int("port", cfg.Port).Msg("bind failed")
		os.Exit(1)
	}

	handlers := handler.New(st, cfg)
	pool := worker.New(handlers.Table(), cfg.Workers(), logger)
	sweeper := store.NewSweeper(st, logger)
	sweeper.Start()

	srv := server.New(listener, pool, st, cfg.MaxPayloadSize, logger)
	go func() {
		if err := srv.Serve(); err != nil {
			logger.Fatal().Err(err).Msg("accept loop failed")
		}
	}()

	var admin *api.Server
	if cfg.HTTPPort > 0 {
		admin = api.New(st, cfg, handler.Version, handler.ProtocolName, logger)
		go func() {
			addr := fmt.Sprintf(":%d", cfg.HTTPPort)
			if err := admin.ListenAndServe(addr); err != nil && err != http.ErrServerClosed {
				logger.Error().Err(err).Msg("http admin server failed")
			}
		}()
	}

	printBanner(cfg, publicIP)

	waitForSignal(logger)
	shutdown(cfg, logger, srv, admin, pool, sweeper, st)
}

func setupLogger(cfg *config.Config) zerolog.Logger {
	level := zerolog.InfoLevel
	if cfg.DebugMode {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(level).
		With().Timestamp().Logger()
	log.Logger = logger
	return logger
}

func listen(port int) (net.Listener, error) {
	lc := net.ListenConfig{}
	return lc.Listen(context.Background(), "tcp", fmt.Sprintf(":%d", port))
}

func printBanner(cfg *config.Config, publicIP <-chan string) {
	fmt.Print(banner)
	fmt.Printf("%s : Protocol: %s\n", handler.Version, handler.ProtocolName)
	fmt.Println("=================================================================")
	fmt.Println("Server is ready to accept connections!")
	fmt.Printf("  - Listening on: 0.0.0.0:%d\n", cfg.Port)

	select {
	case ip := <-publicIP:
		if ip != "" {
			fmt.Printf("  - Connect Publicly: %s:%d\n", ip, cfg.Port)
		} else {
			fmt.Println("  - Public IP: (Could not determine, check internet connection)")
		}
	case <-time.After(3 * time.Second):
		fmt.Println("  - Public IP: (Could not determine, check internet connection)")
	}

	if cfg.HTTPPort > 0 {
		fmt.Printf("  - Admin API: http://localhost:%d/v1/stats\n", cfg.HTTPPort)
	}
	fmt.Printf("  - Workers: %d, Batching: %d, Go: %s (%d cores)\n",
		cfg.Workers(), cfg.BatchProcessingSize, runtime.Version(), runtime.NumCPU())
	fmt.Println("=================================================================")
	fmt.Println("Press Ctrl+C to shut down.")
}

func waitForSignal(logger zerolog.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info().Str("signal", sig.String()).Msg("starting graceful shutdown")
}

// shutdown drains in order: accept loop and connections, worker queue,
// sweeper, final snapshot. A hard deadline forces exit(1) if the drain hangs.
func shutdown(cfg *config.Config, logger zerolog.Logger, srv *server.Server,
	admin *api.Server, pool *worker.Pool, sweeper *store.Sweeper, st *store.Store) {

	force := time.AfterFunc(cfg.ShutdownTimeout, func() {
		logger.Error().Msg("shutdown deadline exceeded, forcing exit")
		os.Exit(1)
	})
	defer force.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn().Err(err).Msg("tcp shutdown incomplete")
	}
	if admin != nil {
		if err := admin.Shutdown(ctx); err != nil {
			logger.Warn().Err(err).Msg("http shutdown incomplete")
		}
	}

	pool.Shutdown()
	sweeper.Stop()

	if st.Persistence() && st.Dirty() > 0 {
		logger.Info().Int64("ops", st.Dirty()).Msg("performing final save")
		if err := st.Save(); err != nil {
			logger.Error().Err(err).Msg("final save failed")
		}
	}

	logger.Info().Msg("shutdown complete")
	os.Exit(0)
}
