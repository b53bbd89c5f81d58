package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const (
	appName    = "statarb"
	appVersion = "1.0.0"
)

// rootOptions 全局参数
type rootOptions struct {
	configFile string
	logLevel   string
	logFormat  string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Statistical-arbitrage pair signal engine",
		Version: appVersion,
		Long: `statarb tracks price pairs and emits mean-reversion signals.

Each pair runs a tracker with dynamic hedging, regime detection,
volatility-targeted sizing and a transaction-cost gate. Signals can be
printed, published to NATS and exported as Prometheus metrics.`,
		SilenceUsage: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&opts.configFile, "config", "c", "", "Configuration file path (defaults used when empty)")
	pf.StringVar(&opts.logLevel, "log-level", "", "Log level: trace, debug, info, warn, error (overrides config)")
	pf.StringVar(&opts.logFormat, "log-format", "", "Log format: json, console (overrides config)")

	rootCmd.AddCommand(newRunCmd(opts))
	rootCmd.AddCommand(newGenerateCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and exit",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", appName, appVersion)
		},
	}
}
