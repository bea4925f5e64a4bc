package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	migrate "github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/VelonacepsCalyxEggs/RemoteOpenVPNTrafficMonitor/internal/api"
	"github.com/VelonacepsCalyxEggs/RemoteOpenVPNTrafficMonitor/internal/api/middleware"
	"github.com/VelonacepsCalyxEggs/RemoteOpenVPNTrafficMonitor/internal/model"
	"github.com/VelonacepsCalyxEggs/RemoteOpenVPNTrafficMonitor/internal/poller"
	"github.com/VelonacepsCalyxEggs/RemoteOpenVPNTrafficMonitor/internal/repository/postgres"
	"github.com/VelonacepsCalyxEggs/RemoteOpenVPNTrafficMonitor/internal/scheduler"
	schedulerjobs "github.com/VelonacepsCalyxEggs/RemoteOpenVPNTrafficMonitor/internal/scheduler/jobs"
	"github.com/VelonacepsCalyxEggs/RemoteOpenVPNTrafficMonitor/internal/transport"
)

type Config struct {
	App struct {
		Env string `mapstructure:"env"`
	} `mapstructure:"app"`
	Server struct {
		Host            string        `mapstructure:"host"`
		Port            int           `mapstructure:"port"`
		ReadTimeout     time.Duration `mapstructure:"read_timeout"`
		WriteTimeout    time.Duration `mapstructure:"write_timeout"`
		ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	} `mapstructure:"server"`
	Database struct {
		URL         string        `mapstructure:"url"`
		MaxConns    int           `mapstructure:"max_conns"`
		PingTimeout time.Duration `mapstructure:"ping_timeout"`
	} `mapstructure:"database"`
	Log struct {
		Level    string `mapstructure:"level"`
		Encoding string `mapstructure:"encoding"`
	} `mapstructure:"log"`
	SSH struct {
		PrivateKeyFile string        `mapstructure:"private_key_file"`
		Password       string        `mapstructure:"password"`
		KnownHostsFile string        `mapstructure:"known_hosts_file"`
		ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	} `mapstructure:"ssh"`
	Poll struct {
		CycleTimeout     time.Duration `mapstructure:"cycle_timeout"`
		HistoryRetention time.Duration `mapstructure:"history_retention"`
		RateFloor        float64       `mapstructure:"rate_floor"`
	} `mapstructure:"poll"`
	Storage struct {
		SampleRetention time.Duration `mapstructure:"sample_retention"`
	} `mapstructure:"storage"`
	Security struct {
		InternalToken     string `mapstructure:"internal_token"`
		InternalTokenFile string `mapstructure:"internal_token_file"`
	} `mapstructure:"security"`
	CORS struct {
		AllowOrigins []string `mapstructure:"allow_origins"`
	} `mapstructure:"cors"`
}

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "healthcheck":
			os.Exit(runHealthcheck())
		case "migrate":
			if err := runMigrateCommand(); err != nil {
				fmt.Fprintln(os.Stderr, sanitizeCLIError(err))
				os.Exit(1)
			}
			return
		case "add-server":
			if err := runAddServerCommand(os.Args[2:]); err != nil {
				fmt.Fprintln(os.Stderr, sanitizeCLIError(err))
				os.Exit(1)
			}
			return
		}
	}

	cfg, err := loadConfig()
	if err != nil {
		panic(fmt.Errorf("load config: %w", err))
	}

	logger, err := newLogger(cfg)
	if err != nil {
		panic(fmt.Errorf("init logger: %w", err))
	}
	defer logger.Sync() //nolint:errcheck

	if !strings.EqualFold(cfg.App.Env, "development") {
		gin.SetMode(gin.ReleaseMode)
	}

	dbPool, err := newDBPool(context.Background(), cfg)
	if err != nil {
		logger.Fatal("connect database failed", zap.Error(err))
	}
	defer dbPool.Close()

	serverRepo := postgres.NewServerRepository(dbPool)
	sampleRepo := postgres.NewThroughputRepository(dbPool)

	runnerFactory, err := buildRunnerFactory(cfg)
	if err != nil {
		logger.Fatal("build ssh runner factory failed", zap.Error(err))
	}

	manager := poller.NewManager(serverRepo, sampleRepo, runnerFactory, poller.Config{
		CycleTimeout: cfg.Poll.CycleTimeout,
		Retention:    cfg.Poll.HistoryRetention,
		RateFloor:    cfg.Poll.RateFloor,
	}, logger)
	defer manager.Stop()

	if err := manager.Reconcile(context.Background()); err != nil {
		logger.Warn("initial poller reconcile failed", zap.Error(err))
	}

	reconcileJob := schedulerjobs.NewReconcileJob(manager, logger)
	retentionJob := schedulerjobs.NewRetentionJob(sampleRepo, cfg.Storage.SampleRetention, logger)

	cronRunner := scheduler.NewScheduler(scheduler.Deps{
		ReconcileJob: reconcileJob,
		RetentionJob: retentionJob,
	}, logger)
	cronRunner.Start()
	defer func() {
		stopCtx := cronRunner.Stop()
		select {
		case <-stopCtx.Done():
		case <-time.After(2 * time.Second):
		}
	}()

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(buildCORSMiddleware(cfg))
	router.Use(middleware.RequestLogger(logger))

	healthHandler := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
	readyHandler := func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), cfg.Database.PingTimeout)
		defer cancel()

		if err := dbPool.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "not_ready",
				"error":  "database unavailable",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	}

	router.GET("/health", healthHandler)
	router.GET("/health/ready", readyHandler)

	internalMetrics := router.Group("/internal")
	internalMetrics.Use(middleware.InternalTokenAuth(cfg.Security.InternalToken))
	internalMetrics.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api.RegisterV1Routes(router, api.Deps{
		Servers:       serverRepo,
		Samples:       sampleRepo,
		Pollers:       manager,
		InternalToken: cfg.Security.InternalToken,
		Version:       Version,
		StartedAt:     time.Now().UTC(),
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErrCh := make(chan error, 1)
	go func() {
		err := srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
			return
		}
		serverErrCh <- nil
	}()

	logger.Info("collector started",
		zap.String("addr", srv.Addr),
		zap.String("version", Version),
		zap.String("commit", Commit),
		zap.String("build_time", BuildTime),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))
	case err := <-serverErrCh:
		if err != nil {
			logger.Fatal("server exited unexpectedly", zap.Error(err))
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown server failed", zap.Error(err))
	}
}

func loadConfig() (Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("VPNMON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("database.url", "VPNMON_DATABASE_URL", "DATABASE_URL")

	v.SetDefault("app.env", "development")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("database.url", "")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.ping_timeout", "3s")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "json")
	v.SetDefault("ssh.private_key_file", "")
	v.SetDefault("ssh.password", "")
	v.SetDefault("ssh.known_hosts_file", "")
	v.SetDefault("ssh.connect_timeout", "10s")
	v.SetDefault("poll.cycle_timeout", "30s")
	v.SetDefault("poll.history_retention", "1h")
	v.SetDefault("poll.rate_floor", 0.0)
	v.SetDefault("storage.sample_retention", "720h")
	v.SetDefault("security.internal_token", "")
	v.SetDefault("security.internal_token_file", "")
	v.SetDefault("cors.allow_origins", []string{"http://localhost:5173"})

	if err := v.ReadInConfig(); err != nil {
		var notFoundErr viper.ConfigFileNotFoundError
		if !errors.As(err, &notFoundErr) {
			return Config{}, fmt.Errorf("read config file failed: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config failed: %w", err)
	}

	if strings.TrimSpace(cfg.Security.InternalToken) == "" && strings.TrimSpace(cfg.Security.InternalTokenFile) != "" {
		// #nosec G304 -- path is provided by operator config.
		raw, err := os.ReadFile(strings.TrimSpace(cfg.Security.InternalTokenFile))
		if err != nil {
			return Config{}, fmt.Errorf("read security.internal_token_file failed: %w", err)
		}
		cfg.Security.InternalToken = strings.TrimSpace(string(raw))
	}

	if cfg.Database.URL == "" {
		return Config{}, errors.New("database.url is required")
	}
	if cfg.Database.MaxConns <= 0 {
		return Config{}, errors.New("database.max_conns must be greater than 0")
	}
	if cfg.Database.PingTimeout <= 0 {
		return Config{}, errors.New("database.ping_timeout must be greater than 0")
	}
	if cfg.SSH.PrivateKeyFile == "" && cfg.SSH.Password == "" {
		return Config{}, errors.New("ssh.private_key_file or ssh.password is required")
	}
	if cfg.Poll.HistoryRetention <= 0 {
		return Config{}, errors.New("poll.history_retention must be greater than 0")
	}

	return cfg, nil
}

func newLogger(cfg Config) (*zap.Logger, error) {
	var zapCfg zap.Config
	if strings.EqualFold(cfg.App.Env, "development") {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	if cfg.Log.Level != "" {
		if err := zapCfg.Level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
			return nil, fmt.Errorf("invalid log.level: %w", err)
		}
	}

	if cfg.Log.Encoding != "" {
		zapCfg.Encoding = cfg.Log.Encoding
	}

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build zap logger failed: %w", err)
	}
	return logger, nil
}

func newDBPool(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database.url failed: %w", err)
	}

	const maxInt32 = int(^uint32(0) >> 1)
	if cfg.Database.MaxConns > maxInt32 {
		return nil, fmt.Errorf("database.max_conns must be <= %d", maxInt32)
	}

	poolCfg.MaxConns = int32(cfg.Database.MaxConns) // #nosec G115 -- validated upper bound above.

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool failed: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.Database.PingTimeout)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database failed: %w", err)
	}

	return pool, nil
}

// buildRunnerFactory loads shared SSH credentials once and closes over them;
// per-server user and address come from the server row.
func buildRunnerFactory(cfg Config) (poller.RunnerFactory, error) {
	var keyPEM []byte
	if cfg.SSH.PrivateKeyFile != "" {
		var err error
		keyPEM, err = transport.LoadPrivateKey(cfg.SSH.PrivateKeyFile)
		if err != nil {
			return nil, err
		}
	}

	return func(server *model.Server) (transport.Runner, error) {
		return transport.NewSSHRunner(transport.SSHConfig{
			Address:        server.Address,
			User:           server.SSHUser,
			PrivateKeyPEM:  keyPEM,
			Password:       cfg.SSH.Password,
			KnownHostsPath: cfg.SSH.KnownHostsFile,
			ConnectTimeout: cfg.SSH.ConnectTimeout,
		})
	}, nil
}

func buildCORSMiddleware(cfg Config) gin.HandlerFunc {
	origins := make([]string, 0, len(cfg.CORS.AllowOrigins))
	for _, origin := range cfg.CORS.AllowOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		origins = append(origins, trimmed)
	}
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173"}
	}

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowOrigins = origins
	corsCfg.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Internal-Token"}
	return cors.New(corsCfg)
}

func runMigrateCommand() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config failed: %w", err)
	}

	migrationDir := "/migrations"
	if _, statErr := os.Stat(migrationDir); statErr != nil {
		migrationDir = "./migrations"
	}

	migrator, err := migrate.New("file://"+migrationDir, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("init migrator failed: %w", err)
	}
	defer migrator.Close() //nolint:errcheck

	if err := migrator.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations failed: %w", err)
	}

	fmt.Println("migrations applied successfully")
	return nil
}

func runAddServerCommand(args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config failed: %w", err)
	}

	fs := flag.NewFlagSet("add-server", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var (
		name       string
		serverType string
		address    string
		sshUser    string
		statusPath string
		interval   int
	)
	fs.StringVar(&name, "name", "", "unique server name")
	fs.StringVar(&serverType, "type", "", "server type: openvpn or wireguard")
	fs.StringVar(&address, "address", "", "ssh endpoint host:port")
	fs.StringVar(&sshUser, "user", "", "ssh user")
	fs.StringVar(&statusPath, "status-path", "", "openvpn status log path (openvpn only)")
	fs.IntVar(&interval, "interval", 30, "poll interval in seconds")

	if err := fs.Parse(args); err != nil {
		return err
	}

	server := &model.Server{
		Name:            strings.TrimSpace(name),
		Type:            model.ServerType(strings.TrimSpace(serverType)),
		Address:         strings.TrimSpace(address),
		SSHUser:         strings.TrimSpace(sshUser),
		StatusPath:      strings.TrimSpace(statusPath),
		PollIntervalSec: interval,
		Enabled:         true,
	}

	if server.Name == "" || server.Address == "" || server.SSHUser == "" {
		return errors.New("name, address and user are required")
	}
	if !server.Type.Valid() {
		return fmt.Errorf("invalid server type %q", serverType)
	}
	if interval <= 0 {
		return errors.New("interval must be greater than 0")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	pool, err := newDBPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := postgres.NewServerRepository(pool).Create(ctx, server); err != nil {
		return fmt.Errorf("create server failed: %w", err)
	}

	fmt.Printf("server %s registered with id %s\n", server.Name, server.ID)
	return nil
}

func runHealthcheck() int {
	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	resp, err := client.Get("http://localhost:8080/health/ready")
	if err != nil {
		return 1
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return 1
	}
	return 0
}

func sanitizeCLIError(err error) string {
	if err == nil {
		return ""
	}

	text := strings.ReplaceAll(err.Error(), "\n", " ")
	text = strings.ReplaceAll(text, "\r", " ")
	return strings.TrimSpace(text)
}
