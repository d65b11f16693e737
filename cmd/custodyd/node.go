package custodyd

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/certusone/wormhole/custody/pkg/api"
	"github.com/certusone/wormhole/custody/pkg/bridge"
	"github.com/certusone/wormhole/custody/pkg/common"
	"github.com/certusone/wormhole/custody/pkg/config"
	"github.com/certusone/wormhole/custody/pkg/db"
	"github.com/certusone/wormhole/custody/pkg/readiness"
	"github.com/certusone/wormhole/custody/pkg/token"
	"github.com/certusone/wormhole/custody/pkg/version"
	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// ConfigFile is set by the root command's --config flag.
var ConfigFile string

// EnvPrefix is prepended to flag names to form their environment variables, e.g. CUSTODYD_DATADIR.
const EnvPrefix = "CUSTODYD"

var (
	dataDir        *string
	inMemory       *bool
	apiAddr        *string
	statusAddr     *string
	logLevel       *string
	logFormat      *string
	environment    *string
	unsafeDevMode  *bool
	programID      *string
	maxTxAge       *time.Duration
	auditInterval  *time.Duration
	rateLimit      *float64
	rateLimitBurst *int
	tokenCacheSize *int
)

func init() {
	dataDir = NodeCmd.Flags().String("dataDir", "", "Data directory (required unless --inMemory)")
	inMemory = NodeCmd.Flags().Bool("inMemory", false, "Keep all state in memory (only allowed with --unsafeDevMode)")
	apiAddr = NodeCmd.Flags().String("apiAddr", "[::]:8080", "Listen address for the bridge API (prefix with sd: for a systemd socket)")
	statusAddr = NodeCmd.Flags().String("statusAddr", "[::]:6060", "Listen address for the status server (readiness and metrics)")
	logLevel = NodeCmd.Flags().String("logLevel", "info", "Logging level (debug, info, warn, error, dpanic, panic, fatal)")
	logFormat = NodeCmd.Flags().String("logFormat", "console", "Log output format (console, json)")
	environment = NodeCmd.Flags().String("env", "", "Environment (prod, test, dev)")
	unsafeDevMode = NodeCmd.Flags().Bool("unsafeDevMode", false, "Launch node in unsafe devnet mode (enables the faucet)")
	programID = NodeCmd.Flags().String("programId", bridge.DefaultProgramID.String(), "Program ID all bridge addresses are derived from")
	maxTxAge = NodeCmd.Flags().Duration("maxTxAge", bridge.DefaultMaxTxAge, "Maximum clock drift accepted on signed transactions")
	auditInterval = NodeCmd.Flags().Duration("auditInterval", bridge.DefaultAuditInterval, "Interval between custody audits of every bridge")
	rateLimit = NodeCmd.Flags().Float64("rateLimit", 50, "API requests per second across all clients (0 disables the limit)")
	rateLimitBurst = NodeCmd.Flags().Int("rateLimitBurst", 100, "API request burst size")
	tokenCacheSize = NodeCmd.Flags().Int("tokenCacheSize", token.DefaultCacheSize, "Number of token account addresses to cache")
}

var NodeCmd = &cobra.Command{
	Use:   "node",
	Short: "Run the custody bridge node",
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return config.InitFileConfig(cmd, config.Options{FilePath: ConfigFile, EnvPrefix: EnvPrefix})
	},
	Run: runNode,
}

const devwarning = `
        +++++++++++++++++++++++++++++++++++++++++++++++++++
        |   NODE IS RUNNING IN INSECURE DEVELOPMENT MODE  |
        |                                                 |
        |      Do not use --unsafeDevMode in prod.        |
        +++++++++++++++++++++++++++++++++++++++++++++++++++

`

func runNode(cmd *cobra.Command, args []string) {
	envStr := *environment
	if envStr == "" {
		if *unsafeDevMode {
			envStr = string(common.UnsafeDevNet)
		} else {
			envStr = string(common.MainNet)
		}
	}
	env, err := common.ParseEnvironment(envStr)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if *unsafeDevMode {
		if !env.AllowsDevMode() {
			fmt.Printf("--unsafeDevMode is not allowed in the %s environment\n", env)
			os.Exit(1)
		}
		fmt.Print(devwarning)
	}

	common.SetRestrictiveUmask()

	logger, err := newLogger(*logLevel, *logFormat)
	if err != nil {
		fmt.Println("Invalid log level:", err)
		os.Exit(1)
	}
	logger = logger.With(zap.String("env", string(env)))
	logger.Info("custodyd starting", zap.String("version", version.Version()))

	program, err := solana.PublicKeyFromBase58(*programID)
	if err != nil {
		logger.Fatal("Invalid programId", zap.Error(err))
	}
	if *maxTxAge <= 0 {
		logger.Fatal("maxTxAge must be positive", zap.Duration("maxTxAge", *maxTxAge))
	}
	if *auditInterval <= 0 {
		logger.Fatal("auditInterval must be positive", zap.Duration("auditInterval", *auditInterval))
	}

	registry := readiness.NewRegistry()
	for _, c := range []readiness.Component{common.ReadinessDatabase, common.ReadinessAPI, common.ReadinessAudit} {
		if err := registry.RegisterComponent(c); err != nil {
			logger.Fatal("Failed to register readiness component", zap.Error(err))
		}
	}

	var database *db.Database
	if *inMemory {
		if !*unsafeDevMode {
			logger.Fatal("--inMemory requires --unsafeDevMode")
		}
		logger.Warn("database is in memory, all state is lost on exit")
		database, err = db.OpenInMemory()
		if err != nil {
			logger.Fatal("Failed to open database", zap.Error(err))
		}
	} else {
		if *dataDir == "" {
			logger.Fatal("Please specify --dataDir")
		}
		database = db.OpenDb(logger, *dataDir)
	}
	defer database.Close()
	registry.SetReady(common.ReadinessDatabase)

	tokens, err := token.NewLedger(*tokenCacheSize)
	if err != nil {
		logger.Fatal("Failed to create token ledger", zap.Error(err))
	}

	b, err := bridge.New(logger, database, tokens,
		bridge.WithProgramID(program),
		bridge.WithMaxTxAge(*maxTxAge),
	)
	if err != nil {
		logger.Fatal("Failed to create bridge", zap.Error(err))
	}

	rootCtx, rootCtxCancel := context.WithCancel(context.Background())
	defer rootCtxCancel()
	common.ListenSysExit(logger, rootCtxCancel)

	apiListener, err := listen(logger, *apiAddr)
	if err != nil {
		logger.Fatal("Failed to listen", zap.String("addr", *apiAddr), zap.Error(err))
	}
	apiServer := api.NewHTTPServer(*apiAddr, b, logger, api.Config{
		RequestsPerSecond: *rateLimit,
		Burst:             *rateLimitBurst,
		EnableFaucet:      *unsafeDevMode,
	})
	go func() {
		logger.Sugar().Infof("API server listening on %s", apiListener.Addr())
		err := apiServer.Serve(apiListener)
		if err != nil && err != http.ErrServerClosed {
			logger.Fatal("API server closed unexpectedly", zap.Error(err))
		}
	}()
	registry.SetReady(common.ReadinessAPI)

	var statusServer *http.Server
	if *statusAddr != "" {
		statusListener, err := listen(logger, *statusAddr)
		if err != nil {
			logger.Fatal("Failed to listen", zap.String("addr", *statusAddr), zap.Error(err))
		}
		statusServer = api.NewStatusServer(*statusAddr, registry)
		go func() {
			logger.Sugar().Infof("Status server listening on %s", statusListener.Addr())
			err := statusServer.Serve(statusListener)
			if err != nil && err != http.ErrServerClosed {
				logger.Fatal("Status server closed unexpectedly", zap.Error(err))
			}
		}()
	}

	// Audit everything once before reporting ready, so a node restarted on an inconsistent database is visible.
	for _, r := range b.AuditAll() {
		if !r.Balanced {
			logger.Error("bridge failed startup audit", zap.Stringer("mint", r.Mint))
		}
	}
	registry.SetReady(common.ReadinessAudit)

	auditErrC := make(chan error, 1)
	go func() {
		auditErrC <- b.RunAudits(rootCtx, *auditInterval)
	}()

	<-rootCtx.Done()
	logger.Info("root context cancelled, exiting...")

	if err := <-auditErrC; err != nil {
		logger.Error("auditor exited with error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error shutting down API server", zap.Error(err))
	}
	if statusServer != nil {
		if err := statusServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("Error shutting down status server", zap.Error(err))
		}
	}
	logger.Info("Success! All tasks completed. Exiting...")
}

// listen opens a TCP listener on addr. Addresses prefixed with "sd:" are looked up among the sockets passed
// in by systemd socket activation instead.
func listen(logger *zap.Logger, addr string) (net.Listener, error) {
	if !strings.HasPrefix(addr, "sd:") {
		return net.Listen("tcp", addr)
	}

	listeners, err := getSDListeners()
	if err != nil {
		return nil, fmt.Errorf("failed to get systemd listeners: %w", err)
	}
	want := addr[3:]
	all := make([]string, len(listeners))
	for i, l := range listeners {
		logger.Debug("found systemd socket", zap.String("addr", l.Addr().String()))
		if l.Addr().String() == want {
			return l, nil
		}
		all[i] = l.Addr().String()
	}
	return nil, fmt.Errorf("no valid systemd listeners, got: %s", strings.Join(all, ","))
}
