package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/psm-labs/solpay"
	"github.com/psm-labs/solpay/network"
	"github.com/psm-labs/solpay/pricing"
)

var (
	tierFlag     string
	currencyFlag string
	pricesTier   string
)

func addPurchaseFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&tierFlag, "tier", "t", string(solpay.TierBasic), "subscription tier (basic, pro, creator)")
	cmd.Flags().StringVar(&currencyFlag, "currency", string(solpay.CurrencySOL), "payment currency (SOL, USDC)")
}

func init() {
	addPurchaseFlags(payCmd)
	addPurchaseFlags(payURLCmd)
	pricesCmd.Flags().StringVarP(&pricesTier, "tier", "t", "", "only show this tier")
	balanceCmd.Flags().StringVarP(&tierFlag, "tier", "t", string(solpay.TierBasic), "tier to check affordability for")
	balanceCmd.Flags().StringVar(&currencyFlag, "currency", string(solpay.CurrencySOL), "currency to check (SOL, USDC)")
}

func purchaseArgs() (solpay.TierID, solpay.Currency, error) {
	currency, err := solpay.ParseCurrency(currencyFlag)
	if err != nil {
		return "", "", err
	}
	return solpay.TierID(strings.ToLower(strings.TrimSpace(tierFlag))), currency, nil
}

func render(w io.Writer, v interface{}, text func(io.Writer)) error {
	if outputFormat == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(w)
	return nil
}

var payCmd = &cobra.Command{
	Use:   "pay",
	Short: "Buy a subscription with the configured keypair",
	Example: `  # Pay for Pro in USDC on devnet
  solpay pay --tier pro --currency USDC --network devnet --keypair ~/.config/solana/id.json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		tier, currency, err := purchaseArgs()
		if err != nil {
			return err
		}
		a, err := newApp(true)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		if _, err := a.connectWallet(ctx); err != nil {
			return err
		}
		defer a.wallet.Disconnect(ctx)

		result, err := a.engine.PayWithWallet(ctx, a.session, tier, currency)
		if err != nil {
			if errors.Is(err, solpay.ErrUserRejected) {
				fmt.Fprintln(cmd.ErrOrStderr(), "Payment cancelled.")
			}
			return err
		}
		return render(cmd.OutOrStdout(), result, func(w io.Writer) {
			fmt.Fprintf(w, "Payment confirmed: %v %s for %s\n", result.Amount, result.Currency, result.Tier)
			fmt.Fprintf(w, "  signature: %s\n", result.Signature)
			fmt.Fprintf(w, "  fee:       %v %s\n", result.Fee, result.Currency)
			fmt.Fprintf(w, "  reference: %s\n", result.Reference)
			fmt.Fprintf(w, "  explorer:  %s\n", result.Explorer)
			fmt.Fprintf(w, "  expires:   %s\n", result.Subscription.ExpiresAt.Format(time.RFC3339))
			if result.Subscription.NFTMint != "" {
				fmt.Fprintf(w, "  nft:       %s\n", result.Subscription.NFTMint)
			}
		})
	},
}

var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Check whether the wallet can afford a tier",
	RunE: func(cmd *cobra.Command, args []string) error {
		tier, currency, err := purchaseArgs()
		if err != nil {
			return err
		}
		a, err := newApp(true)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		if _, err := a.connectWallet(ctx); err != nil {
			return err
		}
		result := a.engine.CheckSufficiency(ctx, a.session, tier, currency)
		if result.Err != nil {
			return result.Err
		}
		return render(cmd.OutOrStdout(), result, func(w io.Writer) {
			verdict := "sufficient"
			if !result.Sufficient {
				verdict = "insufficient"
			}
			fmt.Fprintf(w, "%s balance %s: have %.4f, need %v\n", result.Currency, verdict, result.Available, result.Required)
		})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current subscription",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		status := a.ledger.CurrentSubscription()
		return render(cmd.OutOrStdout(), status, func(w io.Writer) {
			switch {
			case status.Active:
				sub := status.Subscription
				fmt.Fprintf(w, "Active %s subscription until %s\n", sub.Tier, sub.ExpiresAt.Format(time.RFC3339))
			case status.Expired != nil:
				fmt.Fprintf(w, "Subscription %s expired at %s\n", status.Expired.Tier, status.Expired.ExpiresAt.Format(time.RFC3339))
			default:
				fmt.Fprintln(w, "No subscription")
			}
		})
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded subscriptions, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		history := a.ledger.History()
		return render(cmd.OutOrStdout(), history, func(w io.Writer) {
			if len(history) == 0 {
				fmt.Fprintln(w, "No subscriptions recorded")
				return
			}
			for _, sub := range history {
				fmt.Fprintf(w, "%s  %-8s %v %s  %s\n", sub.StartedAt.Format("2006-01-02"), sub.Tier, sub.Amount, sub.Currency, sub.Signature)
			}
		})
	},
}

var membershipCmd = &cobra.Command{
	Use:   "membership [wallet]",
	Short: "Check a wallet's membership locally and with the remote services",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		var walletAddr string
		if len(args) == 1 {
			walletAddr = args[0]
		} else {
			key, err := a.connectWallet(ctx)
			if err != nil {
				return err
			}
			walletAddr = key.String()
		}

		result := a.ledger.CheckMembership(ctx, walletAddr)
		return render(cmd.OutOrStdout(), result, func(w io.Writer) {
			if !result.HasMembership {
				fmt.Fprintf(w, "%s has no membership\n", walletAddr)
			} else {
				fmt.Fprintf(w, "%s holds a %s membership (%s)\n", walletAddr, result.Tier, result.Source)
				if result.NFTMint != "" {
					fmt.Fprintf(w, "  nft: %s\n", a.env.TokenURL(result.NFTMint))
				}
			}
			if result.Error != nil {
				fmt.Fprintf(w, "  warning: %s\n", result.Error.Message)
			}
		})
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify <signature>",
	Short: "Look up a payment transaction",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(true)
		if err != nil {
			return err
		}
		defer a.Close()

		result, err := a.engine.VerifyPayment(cmd.Context(), a.session, args[0])
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), result, func(w io.Writer) {
			if !result.Confirmed {
				msg := "not confirmed"
				if result.Error != "" {
					msg = "failed: " + result.Error
				}
				fmt.Fprintf(w, "Transaction %s\n", msg)
				return
			}
			fmt.Fprintf(w, "Confirmed in slot %d (fee %d lamports)\n", result.Slot, result.Fee)
			if result.BlockTime != nil {
				fmt.Fprintf(w, "  time: %s\n", result.BlockTime.Format(time.RFC3339))
			}
			fmt.Fprintf(w, "  explorer: %s\n", a.env.TxURL(args[0]))
		})
	},
}

var airdropCmd = &cobra.Command{
	Use:   "airdrop [sol]",
	Short: "Request devnet SOL for the configured keypair",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		amount := 1.0
		if len(args) == 1 {
			v, err := strconv.ParseFloat(args[0], 64)
			if err != nil {
				return fmt.Errorf("invalid amount %q: %w", args[0], err)
			}
			amount = v
		}
		a, err := newApp(true)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		if _, err := a.connectWallet(ctx); err != nil {
			return err
		}
		sig, err := a.engine.RequestAirdrop(ctx, a.session, amount)
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), map[string]interface{}{"signature": sig, "amount": amount}, func(w io.Writer) {
			fmt.Fprintf(w, "Airdrop of %v SOL requested: %s\n", amount, sig)
		})
	},
}

var payURLCmd = &cobra.Command{
	Use:   "payurl",
	Short: "Print a wallet payment link for a tier",
	RunE: func(cmd *cobra.Command, args []string) error {
		tier, currency, err := purchaseArgs()
		if err != nil {
			return err
		}
		a, err := newApp(true)
		if err != nil {
			return err
		}
		defer a.Close()

		link, err := a.engine.PaymentURL(tier, currency, a.env.StableMint, time.Now())
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), map[string]string{"url": link}, func(w io.Writer) {
			fmt.Fprintln(w, link)
		})
	},
}

var pricesCmd = &cobra.Command{
	Use:   "prices",
	Short: "Show tier prices",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		catalog := a.cfg.Catalog()
		ids := catalog.IDs()
		if pricesTier != "" {
			tier, err := catalog.Lookup(solpay.TierID(strings.ToLower(pricesTier)))
			if err != nil {
				return err
			}
			ids = []solpay.TierID{tier.ID}
		}

		tiers := make([]solpay.Tier, 0, len(ids))
		for _, id := range ids {
			tiers = append(tiers, catalog[id])
		}
		formatted := pricing.FormatCatalog(cmd.Context(), a.oracle, tiers)
		prices := make(map[solpay.TierID]pricing.Prices, len(ids))
		for i, id := range ids {
			prices[id] = formatted[i]
		}
		return render(cmd.OutOrStdout(), prices, func(w io.Writer) {
			for _, id := range ids {
				p := prices[id]
				line := fmt.Sprintf("%-8s %s", catalog[id].Name, p.SOL)
				if p.SOLUSD != "" {
					line += " (" + p.SOLUSD + ")"
				}
				fmt.Fprintf(w, "%s | %s | %s\n", line, p.USDC, p.Duration)
			}
		})
	},
}

var networkCmd = &cobra.Command{
	Use:   "network",
	Short: "Show the active network and probe its endpoints",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		info := map[string]interface{}{
			"network":   a.env.Name,
			"endpoints": a.env.Endpoints,
			"usdcMint":  a.env.StableMint,
			"available": network.Names(),
		}
		_, connErr := a.manager.Connect(cmd.Context())
		if connErr == nil {
			info["endpoint"] = a.manager.Endpoint()
		} else {
			info["error"] = connErr.Error()
		}
		return render(cmd.OutOrStdout(), info, func(w io.Writer) {
			fmt.Fprintf(w, "Network:  %s\n", a.env.Name)
			fmt.Fprintf(w, "USDC:     %s\n", a.env.StableMint)
			if connErr == nil {
				fmt.Fprintf(w, "Endpoint: %s (healthy)\n", a.manager.Endpoint())
			} else {
				fmt.Fprintf(w, "Endpoint: unavailable (%v)\n", connErr)
			}
		})
	},
}
