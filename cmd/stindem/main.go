package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/big"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/layer-3/stindem"
	"github.com/layer-3/stindem/config"
	"github.com/layer-3/stindem/core"
	"github.com/layer-3/stindem/internal/eth"
	"go.uber.org/zap"
)

type command struct {
	usage string
	// needsSession commands connect and sign in before running
	needsSession bool
	run          func(ctx context.Context, app *stindem.App, cfg config.Client, args []string) (interface{}, error)
}

var commands = map[string]command{
	"status": {usage: "show the wallet and session state", run: runStatus},
	"connect": {usage: "connect a wallet interactively", run: func(ctx context.Context, app *stindem.App, _ config.Client, _ []string) (interface{}, error) {
		return app.Connect(ctx, false)
	}},
	"disconnect": {usage: "forget the wallet session", run: func(_ context.Context, app *stindem.App, _ config.Client, _ []string) (interface{}, error) {
		return nil, app.Disconnect()
	}},
	"login": {usage: "sign in with the connected wallet", needsSession: true, run: func(ctx context.Context, app *stindem.App, _ config.Client, _ []string) (interface{}, error) {
		return app.State().User, nil
	}},
	"login-email":  {usage: "-email <email> -password <password>", run: runLoginEmail},
	"pay-premium":  {usage: "-policy <id> -amount <tokens>", needsSession: true, run: runPayPremium},
	"purchase":     {usage: "-quantity <tokens> -price <tokens>", needsSession: true, run: runPurchase},
	"recover":      {usage: "-quantity <tokens> -value <tokens>", needsSession: true, run: runRecover},
	"settlements":  {usage: "<premium|purchase|recovery>", needsSession: true, run: runSettlements},
	"pending":      {usage: "list attempts that are not reconciled", run: runPending},
	"retry-record": {usage: "<tx hash>", needsSession: true, run: runRetryRecord},
	"resume":       {usage: "<tx hash>", needsSession: true, run: runResume},
}

func main() {
	configPath := flag.String("config", "", "path to the client YAML config")
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}
	cmd, ok := commands[flag.Arg(0)]
	if !ok {
		usage()
		os.Exit(2)
	}

	if err := run(*configPath, cmd, flag.Args()[1:]); err != nil {
		fmt.Fprintln(os.Stderr, stindem.Describe(err))
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: stindem [-config file] <command> [flags]")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(os.Stderr, "  %-13s %s\n", name, commands[name].usage)
	}
}

func run(configPath string, cmd command, args []string) error {
	cfg, err := config.LoadClient(configPath)
	if err != nil {
		return err
	}
	logger, err := config.NewLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := stindem.Open(ctx, cfg, logger, chooseWallet(os.Stdin, os.Stderr), nil)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := app.Close(); cerr != nil {
			logger.Debug("close", zap.Error(cerr))
		}
	}()

	app.Restore(ctx)
	if cmd.needsSession {
		if err := ensureSession(ctx, app); err != nil {
			return err
		}
	}

	out, err := cmd.run(ctx, app, cfg, args)
	if err != nil {
		return err
	}
	if out != nil {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}
	return nil
}

// ensureSession connects the wallet and signs in. Bearer tokens live only in this process.
func ensureSession(ctx context.Context, app *stindem.App) error {
	if !app.State().Connected() {
		if _, err := app.Connect(ctx, false); err != nil {
			return err
		}
	}
	if _, err := app.Me(ctx); err == nil {
		return nil
	} else if !errors.Is(err, core.ErrNotAuthenticated) {
		return err
	}
	_, err := app.Login(ctx)
	return err
}

// chooseWallet asks on the terminal which of several installed wallets to use
func chooseWallet(in io.Reader, out io.Writer) func([]core.WalletKind) (core.WalletKind, error) {
	return func(kinds []core.WalletKind) (core.WalletKind, error) {
		for i, k := range kinds {
			fmt.Fprintf(out, "  [%d] %s\n", i+1, k)
		}
		fmt.Fprint(out, "Select wallet: ")
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && line == "" {
			return "", core.ErrUserRejected
		}
		line = strings.TrimSpace(line)
		for i, k := range kinds {
			if line == fmt.Sprint(i+1) || line == string(k) {
				return k, nil
			}
		}
		return "", core.ErrUserRejected
	}
}

type statusView struct {
	Status        core.ConnectionStatus   `json:"status"`
	Wallet        core.WalletKind         `json:"wallet,omitempty"`
	Address       string                  `json:"address,omitempty"`
	ChainID       string                  `json:"chainId,omitempty"`
	User          *core.AuthenticatedUser `json:"user,omitempty"`
	Authenticated bool                    `json:"authenticated"`
	Error         string                  `json:"error,omitempty"`
}

func runStatus(_ context.Context, app *stindem.App, _ config.Client, _ []string) (interface{}, error) {
	snap := app.State()
	view := statusView{
		Status:        snap.Status,
		Wallet:        snap.WalletKind,
		ChainID:       snap.ChainID,
		User:          snap.User,
		Authenticated: snap.Authenticated,
	}
	if snap.Session != nil {
		view.Address = snap.Session.Address
	}
	if snap.Wallet.Err != nil {
		view.Error = stindem.Describe(snap.Wallet.Err)
	}
	return view, nil
}

func runLoginEmail(ctx context.Context, app *stindem.App, _ config.Client, args []string) (interface{}, error) {
	fs := flag.NewFlagSet("login-email", flag.ContinueOnError)
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return app.LoginEmail(ctx, *email, *password)
}

func parseTokens(name, value string, decimals int32) (*big.Int, error) {
	v, err := eth.ParseAmount(value, decimals)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return v, nil
}

func runPayPremium(ctx context.Context, app *stindem.App, cfg config.Client, args []string) (interface{}, error) {
	fs := flag.NewFlagSet("pay-premium", flag.ContinueOnError)
	policy := fs.String("policy", "", "policy id")
	amount := fs.String("amount", "", "premium amount in tokens")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	policyID, err := stindem.ParseUint(*policy)
	if err != nil {
		return nil, fmt.Errorf("policy: %w", err)
	}
	value, err := parseTokens("amount", *amount, cfg.TokenDecimals)
	if err != nil {
		return nil, err
	}
	return app.PayPremium(ctx, stindem.PremiumPayment{PolicyID: policyID, Amount: value})
}

func runPurchase(ctx context.Context, app *stindem.App, cfg config.Client, args []string) (interface{}, error) {
	fs := flag.NewFlagSet("purchase", flag.ContinueOnError)
	quantity := fs.String("quantity", "", "tokens to buy")
	price := fs.String("price", "", "total price in tokens")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	q, err := parseTokens("quantity", *quantity, cfg.TokenDecimals)
	if err != nil {
		return nil, err
	}
	p, err := parseTokens("price", *price, cfg.TokenDecimals)
	if err != nil {
		return nil, err
	}
	return app.PurchaseStindem(ctx, stindem.Purchase{Quantity: q, TotalPrice: p})
}

func runRecover(ctx context.Context, app *stindem.App, cfg config.Client, args []string) (interface{}, error) {
	fs := flag.NewFlagSet("recover", flag.ContinueOnError)
	quantity := fs.String("quantity", "", "tokens to sell")
	value := fs.String("value", "", "total value in tokens")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	q, err := parseTokens("quantity", *quantity, cfg.TokenDecimals)
	if err != nil {
		return nil, err
	}
	v, err := parseTokens("value", *value, cfg.TokenDecimals)
	if err != nil {
		return nil, err
	}
	return app.RecoverStindem(ctx, stindem.Recovery{Quantity: q, TotalValue: v})
}

func runSettlements(ctx context.Context, app *stindem.App, _ config.Client, args []string) (interface{}, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("%w: settlements needs a kind", core.ErrInvalidInput)
	}
	kind, err := stindem.ParseKind(args[0])
	if err != nil {
		return nil, err
	}
	return app.Settlements(ctx, kind)
}

func runPending(ctx context.Context, app *stindem.App, _ config.Client, _ []string) (interface{}, error) {
	return app.Pending(ctx)
}

func txHashArg(args []string) (string, error) {
	if len(args) != 1 || strings.TrimSpace(args[0]) == "" {
		return "", fmt.Errorf("%w: a transaction hash is required", core.ErrInvalidInput)
	}
	return strings.TrimSpace(args[0]), nil
}

func runRetryRecord(ctx context.Context, app *stindem.App, _ config.Client, args []string) (interface{}, error) {
	hash, err := txHashArg(args)
	if err != nil {
		return nil, err
	}
	return app.RetryRecord(ctx, hash)
}

func runResume(ctx context.Context, app *stindem.App, _ config.Client, args []string) (interface{}, error) {
	hash, err := txHashArg(args)
	if err != nil {
		return nil, err
	}
	return app.Resume(ctx, hash)
}
