package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (set at build time with -ldflags)
var (
	Version   = "dev"
	GitCommit = "unknown"
)

var (
	configPath   string
	networkFlag  string
	keypairFlag  string
	assumeYes    bool
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:           "solpay",
	Short:         "solpay - Solana subscription payments",
	Long:          `solpay buys and inspects Purple Squirrel Media subscriptions paid in SOL or USDC, with a 1% platform fee split.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("SOLPAY_CONFIG"), "path to a YAML config file")
	rootCmd.PersistentFlags().StringVarP(&networkFlag, "network", "n", "", "network override (mainnet-beta, devnet, testnet)")
	rootCmd.PersistentFlags().StringVarP(&keypairFlag, "keypair", "k", "", "keypair file or base58 private key used to sign")
	rootCmd.PersistentFlags().BoolVarP(&assumeYes, "yes", "y", false, "sign without asking for confirmation")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "text", "output format (text, json)")

	rootCmd.AddCommand(payCmd)
	rootCmd.AddCommand(balanceCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(membershipCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(airdropCmd)
	rootCmd.AddCommand(payURLCmd)
	rootCmd.AddCommand(pricesCmd)
	rootCmd.AddCommand(networkCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "solpay %s\n", Version)
		if GitCommit != "unknown" {
			fmt.Fprintf(cmd.OutOrStdout(), "Commit: %s\n", GitCommit)
		}
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
