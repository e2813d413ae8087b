package main

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/goodnatureofminers/blockinsight7000-ledger/internal/account/ethereum"
	"github.com/goodnatureofminers/blockinsight7000-ledger/internal/account/model"
	"github.com/goodnatureofminers/blockinsight7000-ledger/internal/account/registry"
	"github.com/goodnatureofminers/blockinsight7000-ledger/internal/account/repository/postgres"
	"github.com/goodnatureofminers/blockinsight7000-ledger/internal/account/service/ingester"
	"github.com/goodnatureofminers/blockinsight7000-ledger/internal/clock"
	"github.com/goodnatureofminers/blockinsight7000-ledger/internal/metrics"
	"github.com/goodnatureofminers/blockinsight7000-ledger/internal/pkg/gethrpc"
	"github.com/goodnatureofminers/blockinsight7000-ledger/internal/transport"
	grpcMiddleware "github.com/grpc-ecosystem/go-grpc-middleware"
	grpcZap "github.com/grpc-ecosystem/go-grpc-middleware/logging/zap"
	grpcRecovery "github.com/grpc-ecosystem/go-grpc-middleware/recovery"
	grpcCtxTags "github.com/grpc-ecosystem/go-grpc-middleware/tags"
	grpcPrometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	gwruntime "github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/jessevdk/go-flags"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const healthService = "blockinsight7000.ledger.Ingester"

type config struct {
	Config           string        `long:"config" env:"LEDGER_INGESTER_CONFIG" description:"INI config file; command line flags override it" no-ini:"true"`
	PostgresDSN      string        `long:"postgres-dsn" env:"LEDGER_INGESTER_POSTGRES_DSN" description:"PostgreSQL DSN" required:"true"`
	Coin             model.Coin    `long:"coin" env:"LEDGER_INGESTER_COIN" description:"coin name" default:"NUKO"`
	Network          model.Network `long:"network" env:"LEDGER_INGESTER_NETWORK" description:"network name" default:"mainnet"`
	NodeURL          string        `long:"node-url" env:"LEDGER_INGESTER_NODE_URL" description:"node JSON-RPC endpoint (http, ws or IPC path)" default:"http://127.0.0.1:8545"`
	NodeTransport    string        `long:"node-transport" env:"LEDGER_INGESTER_NODE_TRANSPORT" description:"node transport, empty picks it from the URL" choice:"" choice:"http" choice:"ws" choice:"ipc"`
	PollInterval     time.Duration `long:"poll-interval" env:"LEDGER_INGESTER_POLL_INTERVAL" description:"new block polling interval for HTTP endpoints" default:"1s"`
	RPCTimeout       time.Duration `long:"rpc-timeout" env:"LEDGER_INGESTER_RPC_TIMEOUT" description:"timeout of one node RPC call" default:"30s"`
	RPCRate          int           `long:"rpc-rate" env:"LEDGER_INGESTER_RPC_RATE" description:"node RPC calls per second, 0 is unlimited" default:"0"`
	Workers          int           `long:"workers" env:"LEDGER_INGESTER_WORKERS" description:"concurrent node fetches per block" default:"8"`
	BlockReward      string        `long:"block-reward" env:"LEDGER_INGESTER_BLOCK_REWARD" description:"block reward in wei" default:"7500000000000000000"`
	GenesisFile      string        `long:"genesis-file" env:"LEDGER_INGESTER_GENESIS_FILE" description:"genesis JSON whose alloc section is the premine"`
	AddressCacheSize int           `long:"address-cache-size" env:"LEDGER_INGESTER_ADDRESS_CACHE_SIZE" description:"addresses kept in memory" default:"1000"`
	Retries          int           `long:"retries" env:"LEDGER_INGESTER_RETRIES" description:"retries of a failing real-time block before it is dropped, 0 keeps the default, negative disables" default:"2"`
	RetryBackoff     time.Duration `long:"retry-backoff" env:"LEDGER_INGESTER_RETRY_BACKOFF" description:"first real-time retry delay, doubled per attempt" default:"1s"`
	RetryBackoffMax  time.Duration `long:"retry-backoff-max" env:"LEDGER_INGESTER_RETRY_BACKOFF_MAX" description:"longest real-time retry delay" default:"30s"`
	GRPCAddr         string        `long:"grpc-addr" env:"LEDGER_INGESTER_GRPC_ADDR" description:"gRPC health service address" default:":8000"`
	StatusAddr       string        `long:"status-addr" env:"LEDGER_INGESTER_STATUS_ADDR" description:"HTTP address serving /healthz and /metrics" default:":8001"`
}

func main() {
	cfg := config{}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := zap.NewDevelopment()
	if err != nil {
		panic("can't initialize zap logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync()
	}()
	grpcZap.ReplaceGrpcLoggerV2(logger)

	if err := parseConfig(&cfg, os.Args[1:]); err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
			return
		}
		logger.Fatal("failed to parse flags", zap.Error(err))
	}

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("ledger ingester failed", zap.Error(err))
	}
}

// parseConfig reads the INI file named by --config first, so required options may come from it,
// and then applies args on top of it.
func parseConfig(cfg *config, args []string) error {
	var pre struct {
		Config string `long:"config" env:"LEDGER_INGESTER_CONFIG"`
	}
	if _, err := flags.NewParser(&pre, flags.IgnoreUnknown).ParseArgs(args); err != nil {
		return err
	}

	parser := flags.NewParser(cfg, flags.Default)
	if pre.Config != "" {
		if err := flags.NewIniParser(parser).ParseFile(pre.Config); err != nil {
			return fmt.Errorf("read config file %s: %w", pre.Config, err)
		}
	}
	_, err := parser.ParseArgs(args)
	return err
}

func run(ctx context.Context, cfg config, logger *zap.Logger) error {
	reward, ok := new(big.Int).SetString(cfg.BlockReward, 10)
	if !ok || reward.Sign() < 0 {
		return fmt.Errorf("block reward %q is not a non-negative integer", cfg.BlockReward)
	}
	var premine map[common.Address]*big.Int
	if cfg.GenesisFile != "" {
		alloc, err := ethereum.LoadGenesisAlloc(cfg.GenesisFile)
		if err != nil {
			return fmt.Errorf("load premine: %w", err)
		}
		premine = alloc
		logger.Info("loaded premine", zap.Int("accounts", len(premine)))
	}

	repo, err := postgres.NewRepository(ctx, cfg.PostgresDSN, metrics.NewPostgresRepository(cfg.Coin, cfg.Network))
	if err != nil {
		return fmt.Errorf("init repository: %w", err)
	}
	defer repo.Close()

	rawClient, err := gethrpc.Dial(ctx, cfg.NodeTransport, cfg.NodeURL)
	if err != nil {
		return fmt.Errorf("init node client: %w", err)
	}
	client := gethrpc.NewObservedClient(rawClient, cfg.RPCRate, metrics.NewRPCClient(cfg.Coin, cfg.Network)).
		WithCallTimeout(cfg.RPCTimeout)
	defer client.Close()

	addresses, err := registry.NewRegistry(cfg.AddressCacheSize, metrics.NewAddressRegistry(cfg.Coin, cfg.Network))
	if err != nil {
		return fmt.Errorf("init address registry: %w", err)
	}

	healthServer := health.NewServer()
	orchestrator, err := ingester.NewSyncOrchestrator(
		repo,
		ethereum.NewSource(client, cfg.PollInterval),
		addresses,
		metrics.NewSyncOrchestrator(cfg.Coin, cfg.Network, ingester.States()...),
		ingester.Options{
			BlockReward:     reward,
			Premine:         premine,
			WorkerCount:     cfg.Workers,
			RealTimeRetries: cfg.Retries,
			RetryBackoff:    clock.Backoff{Initial: cfg.RetryBackoff, Max: cfg.RetryBackoffMax},
			Listeners:       []ingester.StateListener{transport.NewSyncHealth(healthServer, healthService)},
		},
		cfg.Coin,
		cfg.Network,
		logger,
	)
	if err != nil {
		return err
	}

	if err := startGRPCServer(ctx, cfg.GRPCAddr, healthServer, logger); err != nil {
		return err
	}
	if err := startStatusServer(ctx, cfg.StatusAddr, cfg.GRPCAddr, logger); err != nil {
		return err
	}

	return orchestrator.Run(ctx)
}

func startGRPCServer(ctx context.Context, addr string, healthServer *health.Server, logger *zap.Logger) error {
	unary := []grpc.UnaryServerInterceptor{
		grpcRecovery.UnaryServerInterceptor(),
		grpcCtxTags.UnaryServerInterceptor(),
		grpcPrometheus.UnaryServerInterceptor,
		grpcZap.UnaryServerInterceptor(logger),
	}
	stream := []grpc.StreamServerInterceptor{
		grpcRecovery.StreamServerInterceptor(),
		grpcCtxTags.StreamServerInterceptor(),
		grpcPrometheus.StreamServerInterceptor,
		grpcZap.StreamServerInterceptor(logger),
	}
	grpcServer := grpc.NewServer(
		grpc.UnaryInterceptor(grpcMiddleware.ChainUnaryServer(unary...)),
		grpc.StreamInterceptor(grpcMiddleware.ChainStreamServer(stream...)),
	)
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	grpcPrometheus.EnableHandlingTimeHistogram()
	grpcPrometheus.Register(grpcServer)

	socket, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen grpc %s: %w", addr, err)
	}
	go func() {
		logger.Info("starting gRPC server", zap.String("addr", addr))
		if err := grpcServer.Serve(socket); err != nil {
			logger.Error("gRPC server failed", zap.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		logger.Info("shutting down gRPC server")
		healthServer.Shutdown()
		stopped := make(chan struct{})
		go func() {
			grpcServer.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-time.After(5 * time.Second):
			grpcServer.Stop()
		}
	}()
	return nil
}

func startStatusServer(ctx context.Context, addr, grpcAddr string, logger *zap.Logger) error {
	target, err := loopback(grpcAddr)
	if err != nil {
		return err
	}
	conn, err := grpc.NewClient(target, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("connect health client: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/", gwruntime.NewServeMux(gwruntime.WithHealthzEndpoint(healthpb.NewHealthClient(conn))))
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           cors.Default().Handler(mux),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    http.DefaultMaxHeaderBytes,
	}

	go func() {
		logger.Info("starting status server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("status server failed", zap.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown status server", zap.Error(err))
		}
		_ = conn.Close()
	}()
	return nil
}

// loopback turns a listen address such as ":8000" into one a local client can dial.
func loopback(addr string) (string, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "", fmt.Errorf("parse grpc addr %s: %w", addr, err)
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, port), nil
}
