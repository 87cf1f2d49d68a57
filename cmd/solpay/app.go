package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	solana "github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog/log"

	"github.com/psm-labs/solpay/config"
	"github.com/psm-labs/solpay/connection"
	solpayhttp "github.com/psm-labs/solpay/http"
	"github.com/psm-labs/solpay/ledger"
	"github.com/psm-labs/solpay/logging"
	"github.com/psm-labs/solpay/network"
	"github.com/psm-labs/solpay/payment"
	"github.com/psm-labs/solpay/pricing"
	"github.com/psm-labs/solpay/wallet"
)

// app is the wired object graph shared by the commands.
type app struct {
	cfg     config.Config
	env     network.Environment
	manager *connection.Manager
	retrier *connection.Retrier
	wallet  *wallet.Session
	session *payment.Session
	ledger  *ledger.Ledger
	store   ledger.Store
	engine  *payment.Engine
	oracle  *pricing.Oracle
}

// loadConfig reads configuration, applies flag overrides and initializes logging.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("failed to load configuration: %w", err)
	}
	if networkFlag != "" {
		cfg.Network = strings.ToLower(strings.TrimSpace(networkFlag))
	}
	if keypairFlag != "" {
		cfg.Keypair = keypairFlag
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}

	logging.Init(logging.Config{
		Format:    cfg.Log.Format,
		Level:     cfg.Log.Level,
		Component: "solpay",
	})
	return cfg, nil
}

// newApp wires the full stack. The merchant wallet is only required when
// needMerchant is set.
func newApp(needMerchant bool) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	selector, err := cfg.Selector()
	if err != nil {
		return nil, err
	}
	env := selector.Active()

	manager := connection.NewManager(env, connection.WithProbeTimeout(cfg.ProbeTimeout))
	retrier := connection.NewRetrier(manager,
		connection.WithMaxAttempts(cfg.MaxRetries),
		connection.WithBaseDelay(cfg.RetryDelay),
	)

	var providers []wallet.Provider
	if cfg.Keypair != "" {
		key, err := wallet.LoadKeypair(cfg.Keypair)
		if err != nil {
			return nil, err
		}
		provider, err := wallet.NewKeypairProvider(key, confirmPrompt(os.Stdin, os.Stderr))
		if err != nil {
			return nil, err
		}
		providers = append(providers, provider)
	}
	walletSession := wallet.NewSession(providers...)

	store, err := ledger.NewBoltStore(cfg.StorePath, nil)
	if err != nil {
		return nil, err
	}

	opts := []ledger.Option{ledger.WithCatalog(cfg.Catalog())}
	auth := solpayhttp.BearerAuth(cfg.APIToken)
	if cfg.APIURL.Set {
		backend, err := solpayhttp.NewBackendClient(solpayhttp.Config{URL: cfg.APIURL.URL, AuthProvider: auth})
		if err != nil {
			store.Close()
			return nil, err
		}
		opts = append(opts, ledger.WithBackend(backend))
	}
	if cfg.MinterURL.Set {
		minter, err := solpayhttp.NewMinterClient(solpayhttp.Config{URL: cfg.MinterURL.URL, AuthProvider: auth})
		if err != nil {
			store.Close()
			return nil, err
		}
		opts = append(opts, ledger.WithMinter(minter))
	}
	subscriptions := ledger.New(store, opts...)

	a := &app{
		cfg:     cfg,
		env:     env,
		manager: manager,
		retrier: retrier,
		wallet:  walletSession,
		session: payment.NewSession(retrier, walletSession),
		ledger:  subscriptions,
		store:   store,
	}

	if oracle, err := pricing.NewCoinGeckoOracle(cfg.PriceURL); err == nil {
		a.oracle = oracle
	} else {
		log.Warn().Err(err).Msg("price oracle disabled")
	}

	merchant, err := cfg.Merchant()
	if err != nil {
		if needMerchant {
			a.Close()
			return nil, err
		}
		return a, nil
	}
	feeWallet, err := solana.PublicKeyFromBase58(cfg.FeeWallet)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("invalid fee wallet: %w", err)
	}
	engine, err := payment.NewEngine(payment.Config{
		MerchantWallet:      merchant,
		FeeWallet:           feeWallet,
		FeePercent:          cfg.FeePercent,
		PriorityFee:         cfg.PriorityFee,
		ConfirmPollInterval: cfg.ConfirmPollInterval,
		Catalog:             cfg.Catalog(),
	}, subscriptions)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.engine = engine
	return a, nil
}

// connectWallet connects the configured signer.
func (a *app) connectWallet(ctx context.Context) (solana.PublicKey, error) {
	return a.wallet.Connect(ctx, "")
}

// Close releases the local store.
func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to close subscription store")
	}
}

// confirmPrompt asks on out and reads the answer from in, unless --yes was given.
func confirmPrompt(in io.Reader, out io.Writer) wallet.ConfirmFunc {
	reader := bufio.NewReader(in)
	return func(ctx context.Context, tx *solana.Transaction) (bool, error) {
		if assumeYes {
			return true, nil
		}
		fmt.Fprintf(out, "Sign transaction with %d instruction(s)? [y/N]: ", len(tx.Message.Instructions))
		answer, err := reader.ReadString('\n')
		if err != nil && err != io.EOF {
			return false, err
		}
		answer = strings.ToLower(strings.TrimSpace(answer))
		return answer == "y" || answer == "yes", nil
	}
}
