package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/tokengate/internal/httpapi"
	"github.com/MarkoPoloResearchLab/tokengate/internal/oplog"
	"github.com/MarkoPoloResearchLab/tokengate/internal/persona"
	"github.com/MarkoPoloResearchLab/tokengate/internal/store/filestore"
	"github.com/MarkoPoloResearchLab/tokengate/pkg/metering"
)

const (
	flagDataDir           = "data-dir"
	flagPersonasDir       = "personas-dir"
	flagListenAddr        = "listen-addr"
	flagWebhookPath       = "webhook-path"
	flagWebhookAuth       = "webhook-auth"
	flagAllowedOrigins    = "allowed-origins"
	flagDailyFreeMessages = "daily-free-messages"
	flagVoteRewardTokens  = "vote-reward-tokens"
	flagVoteRewardExpiry  = "vote-reward-expiry-hours"

	defaultDataDir           = "data"
	defaultPersonasDir       = "personas"
	defaultListenAddr        = ":8080"
	defaultWebhookPath       = "/topgg/webhook"
	defaultDailyFreeMessages = 5
	defaultVoteRewardTokens  = 3000
	defaultVoteRewardExpiry  = 12
)

type runtimeConfig struct {
	DataDir           string
	PersonasDir       string
	ListenAddr        string
	WebhookPath       string
	WebhookAuth       string
	AllowedOrigins    string
	DailyFreeMessages int
	VoteRewardTokens  int64
	VoteRewardExpiry  int
}

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "tokengated: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := &runtimeConfig{}
	cmd := &cobra.Command{
		Use:           "tokengated",
		Short:         "AI usage metering daemon with a top.gg vote webhook",
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg)
		},
	}

	cmd.Flags().String(flagDataDir, defaultDataDir, "Directory holding the JSON state files")
	cmd.Flags().String(flagPersonasDir, defaultPersonasDir, "Directory of system persona .txt prompts")
	cmd.Flags().String(flagListenAddr, defaultListenAddr, "HTTP listen address")
	cmd.Flags().String(flagWebhookPath, defaultWebhookPath, "Vote webhook route")
	cmd.Flags().String(flagWebhookAuth, "", "Shared secret required in the webhook Authorization header")
	cmd.Flags().String(flagAllowedOrigins, "", "Comma-delimited CORS origins for the metering API")
	cmd.Flags().Int(flagDailyFreeMessages, defaultDailyFreeMessages, "Free messages per user per day")
	cmd.Flags().Int64(flagVoteRewardTokens, defaultVoteRewardTokens, "Base token grant per vote")
	cmd.Flags().Int(flagVoteRewardExpiry, defaultVoteRewardExpiry, "Vote reward expiry in hours")

	return cmd
}

func loadConfig(cmd *cobra.Command, cfg *runtimeConfig) error {
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	bindings := map[string]string{
		flagDataDir:           "DATA_DIR",
		flagPersonasDir:       "PERSONAS_DIR",
		flagListenAddr:        "LISTEN_ADDR",
		flagWebhookPath:       "WEBHOOK_PATH",
		flagWebhookAuth:       "WEBHOOK_AUTH",
		flagAllowedOrigins:    "ALLOWED_ORIGINS",
		flagDailyFreeMessages: "DAILY_FREE_MESSAGES",
		flagVoteRewardTokens:  "VOTE_REWARD_TOKENS",
		flagVoteRewardExpiry:  "VOTE_REWARD_EXPIRY_HOURS",
	}
	for flagName, envName := range bindings {
		configKey := strings.ReplaceAll(flagName, "-", "_")
		if err := viper.BindEnv(configKey, envName); err != nil {
			return err
		}
		if err := viper.BindPFlag(configKey, cmd.Flags().Lookup(flagName)); err != nil {
			return err
		}
	}

	cfg.DataDir = viper.GetString("data_dir")
	cfg.PersonasDir = viper.GetString("personas_dir")
	cfg.ListenAddr = viper.GetString("listen_addr")
	cfg.WebhookPath = viper.GetString("webhook_path")
	cfg.WebhookAuth = viper.GetString("webhook_auth")
	cfg.AllowedOrigins = viper.GetString("allowed_origins")
	cfg.DailyFreeMessages = viper.GetInt("daily_free_messages")
	cfg.VoteRewardTokens = viper.GetInt64("vote_reward_tokens")
	cfg.VoteRewardExpiry = viper.GetInt("vote_reward_expiry_hours")

	if cfg.DataDir == "" {
		return fmt.Errorf("data dir is required")
	}
	if cfg.DailyFreeMessages < 0 {
		return fmt.Errorf("daily free messages must not be negative")
	}
	if cfg.VoteRewardTokens <= 0 {
		return fmt.Errorf("vote reward tokens must be positive")
	}
	if cfg.VoteRewardExpiry <= 0 {
		return fmt.Errorf("vote reward expiry must be positive")
	}
	return nil
}

func runServer(ctx context.Context, cfg *runtimeConfig) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	store, err := filestore.Open(cfg.DataDir, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	clock := time.Now
	operationLogger := oplog.New(logger)

	ledger, err := metering.NewLedger(store, clock, metering.WithLedgerLogger(operationLogger))
	if err != nil {
		return fmt.Errorf("ledger init: %w", err)
	}
	tracker, err := metering.NewQuotaTracker(store, cfg.DailyFreeMessages, clock)
	if err != nil {
		return fmt.Errorf("quota tracker init: %w", err)
	}
	votes, err := metering.NewVoteMachine(
		store,
		ledger,
		metering.TokenAmount(cfg.VoteRewardTokens),
		time.Duration(cfg.VoteRewardExpiry)*time.Hour,
		clock,
		metering.WithVoteLogger(operationLogger),
	)
	if err != nil {
		return fmt.Errorf("vote machine init: %w", err)
	}
	gate, err := metering.NewGate(tracker, ledger)
	if err != nil {
		return fmt.Errorf("gate init: %w", err)
	}

	personas, err := persona.NewManager(persona.Config{
		PersonasDir: cfg.PersonasDir,
		DataDir:     cfg.DataDir,
	}, logger)
	if err != nil {
		return fmt.Errorf("persona manager init: %w", err)
	}

	server, err := httpapi.New(httpapi.Config{
		ListenAddr:           cfg.ListenAddr,
		WebhookPath:          cfg.WebhookPath,
		WebhookAuthorization: cfg.WebhookAuth,
		AllowedOrigins:       httpapi.ParseAllowedOrigins(cfg.AllowedOrigins),
	}, gate, votes, personas, logger)
	if err != nil {
		return fmt.Errorf("http server init: %w", err)
	}

	logger.Info("tokengated starting",
		zap.String("data_dir", store.Dir()),
		zap.Int("daily_free_messages", cfg.DailyFreeMessages),
		zap.Int64("vote_reward_tokens", cfg.VoteRewardTokens),
		zap.Int("vote_reward_expiry_hours", cfg.VoteRewardExpiry))
	return server.Run(ctx)
}
