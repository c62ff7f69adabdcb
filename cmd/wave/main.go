package main

import (
	"context"
	"fmt"
	"iter"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/jmerrifield20/waveledger/internal/deploy"
	"github.com/jmerrifield20/waveledger/internal/harness"
	"github.com/jmerrifield20/waveledger/internal/ledger"
	"github.com/jmerrifield20/waveledger/internal/network"
	"github.com/jmerrifield20/waveledger/internal/report"
	"github.com/jmerrifield20/waveledger/pkg/client"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// version is overridden via -ldflags "-X main.version=...".
var version = "dev"

var (
	nodeURL string
	cfgFile string
	devLogs bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "wave",
	Short: "waveledger CLI",
	Long: `wave drives a waveledger: it deploys a fresh ledger, submits messages as
two different actors, waits for each to confirm, and prints the final log.

Without --node everything runs in-process on an ephemeral local network.
With --node it talks to a running wavenode.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(home + "/.wave")
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
		viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		viper.AutomaticEnv()
		_ = viper.ReadInConfig()

		if nodeURL == "" {
			nodeURL = viper.GetString("node_url")
		}
	},
}

func init() {
	viper.SetDefault("first_message", harness.DefaultFirstMessage)
	viper.SetDefault("second_message", harness.DefaultSecondMessage)
	viper.SetDefault("ledger.max_message_length", ledger.DefaultMaxMessageLength)
	viper.SetDefault("ledger.confirmation_timeout", "30s")
	viper.SetDefault("ledger.block_interval", "0s")
	viper.SetDefault("network.accounts", network.DefaultAccounts)
	viper.SetDefault("network.seed", "")

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.wave/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&nodeURL, "node", "", "wavenode URL (e.g. http://localhost:8545); runs in-process when empty")
	rootCmd.PersistentFlags().BoolVar(&devLogs, "dev", false, "human-readable development logging")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(actorsCmd)
	rootCmd.AddCommand(recordsCmd)
	rootCmd.AddCommand(versionCmd)
}

func newLogger() (*zap.Logger, error) {
	if devLogs {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func newNodeClient() (*client.Client, error) {
	if nodeURL == "" {
		return nil, fmt.Errorf("--node (or node_url in config) is required for this command")
	}
	return client.New(nodeURL,
		client.WithConfirmationTimeout(viper.GetDuration("ledger.confirmation_timeout")),
	)
}

// ── run ──────────────────────────────────────────────────────────────────────

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Deploy a fresh ledger and run the two-actor script against it",
	Long: `Run deploys a fresh ledger and, in order: reads the record count, submits
the first message as actor 0, waits for confirmation, submits the second
message as actor 1, waits for confirmation, and prints every record.

Any failure aborts the run and exits with status 1.`,
	Args: cobra.NoArgs,
	RunE: runScript,
}

func init() {
	runCmd.Flags().String("first-message", "", "first message (default \"A message!\")")
	runCmd.Flags().String("second-message", "", "second message (default \"Another message!\")")
	_ = viper.BindPFlag("first_message", runCmd.Flags().Lookup("first-message"))
	_ = viper.BindPFlag("second_message", runCmd.Flags().Lookup("second-message"))
}

func runScript(cmd *cobra.Command, _ []string) error {
	logger, err := newLogger()
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		net      harness.Network
		deployer harness.Deployer
	)
	if nodeURL != "" {
		c, err := newNodeClient()
		if err != nil {
			return err
		}
		net, deployer = c, c
		logger.Info("running against node", zap.String("node", nodeURL))
	} else {
		local, err := network.New(network.Config{
			Accounts: viper.GetInt("network.accounts"),
			Seed:     viper.GetString("network.seed"),
		}, logger)
		if err != nil {
			return fmt.Errorf("create network: %w", err)
		}
		deployments := deploy.NewLocal(local, ledger.Config{
			MaxMessageLength:    viper.GetInt("ledger.max_message_length"),
			ConfirmationTimeout: viper.GetDuration("ledger.confirmation_timeout"),
			BlockInterval:       viper.GetDuration("ledger.block_interval"),
		}, logger)
		defer deployments.Close()
		net, deployer = local, deployments
	}

	reporter := report.Multi(
		report.NewConsoleReporter(cmd.OutOrStdout()),
		report.NewZapReporter(logger),
	)
	h := harness.New(net, deployer, reporter, harness.Config{
		FirstMessage:  viper.GetString("first_message"),
		SecondMessage: viper.GetString("second_message"),
	}, logger)

	res, err := h.Run(ctx)
	if err != nil {
		logger.Error("run failed", zap.Error(err))
		return err
	}
	logger.Info("run complete",
		zap.String("address", res.Deployment.Address),
		zap.Int("records", len(res.Records)),
	)
	return nil
}

// ── actors ───────────────────────────────────────────────────────────────────

var actorsCmd = &cobra.Command{
	Use:   "actors",
	Short: "List the actors provisioned by a node",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := newNodeClient()
		if err != nil {
			return err
		}
		actors, err := c.ProvisionActors(context.Background())
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "#\tADDRESS")
		for i, a := range actors {
			fmt.Fprintf(w, "%d\t%s\n", i, a.Address)
		}
		return w.Flush()
	},
}

// ── records ──────────────────────────────────────────────────────────────────

var recordsAuthor string

var recordsCmd = &cobra.Command{
	Use:   "records <ledger-address>",
	Short: "Print the confirmed records of a ledger on a node",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newNodeClient()
		if err != nil {
			return err
		}
		l := c.Ledger(args[0])
		ctx := context.Background()

		var records []ledger.Record
		if recordsAuthor != "" {
			records, err = l.RecordsBy(ctx, recordsAuthor)
		} else {
			var seq iter.Seq[ledger.Record]
			seq, err = l.Records(ctx)
			if err == nil {
				records = slices.Collect(seq)
			}
		}
		if err != nil {
			return err
		}

		fmt.Fprint(cmd.OutOrStdout(), report.RecordTable(records))
		return nil
	},
}

func init() {
	recordsCmd.Flags().StringVar(&recordsAuthor, "author", "", "only show records by this actor address")
}

// ── version ──────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the wave CLI version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("wave %s (waveledger)\n", version)
	},
}
