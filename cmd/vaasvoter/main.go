package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"

	"go.vocdoni.io/vaas/apiclient"
	"go.vocdoni.io/vaas/config"
	"go.vocdoni.io/vaas/crypto/ethereum"
	"go.vocdoni.io/vaas/csp"
	"go.vocdoni.io/vaas/internal"
	"go.vocdoni.io/vaas/log"
	"go.vocdoni.io/vaas/metrics"
	"go.vocdoni.io/vaas/receipt"
	"go.vocdoni.io/vaas/voter"
)

var (
	keysPrint   = color.New(color.FgCyan, color.Bold)
	valuesPrint = color.New(color.FgMagenta)
	infoPrint   = color.New(color.FgGreen)
	errorPrint  = color.New(color.FgHiRed)
)

// cfg is loaded before any subcommand runs.
var cfg *config.VoterCfg

var rootCmd = &cobra.Command{
	Use:          "vaasvoter",
	Short:        "anonymous voting client for CSP driven elections",
	Version:      internal.Version,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if cfg, err = config.Load(cmd.Flags()); err != nil {
			return err
		}
		log.Init(cfg.LogLevel, cfg.LogOutput)
		log.Infow("starting "+filepath.Base(os.Args[0]), "version", internal.Version)
		if cfg.MetricsAddr != "" {
			startMetrics(cfg.MetricsAddr)
		}
		return nil
	},
}

func init() {
	config.AddFlags(rootCmd.PersistentFlags())
	rootCmd.PersistentFlags().SortFlags = false
	rootCmd.AddCommand(voteCmd, resumeCmd, receiptsCmd, electionCmd, waitTxCmd)
}

func main() {
	os.Exit(run())
}

// run executes the command line and returns the process exit code.
func run() int {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		errorPrint.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

func startMetrics(addr string) {
	metrics.RegisterVoter()
	router := chi.NewRouter()
	metrics.NewAgent("/metrics", router)
	srv := &http.Server{Addr: addr, Handler: router, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorw("metrics server stopped", "error", err)
		}
	}()
}

// newAPI returns the backend client described by cfg.
func newAPI() (*apiclient.HTTPclient, error) {
	addr, err := cfg.API()
	if err != nil {
		return nil, err
	}
	token, err := cfg.BearerToken()
	if err != nil {
		return nil, err
	}
	c := apiclient.NewHTTPclient(addr, token)
	c.SetRetries(cfg.Retries)
	if cfg.AccountKey != "" {
		if err := c.SetAccount(cfg.AccountKey); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// newVoter returns a voter described by cfg. The receipt store is opened
// in the data directory and must be closed by the caller.
func newVoter() (*voter.Voter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	backend, err := newAPI()
	if err != nil {
		return nil, err
	}
	cspAddr, _ := cfg.CSP()
	cspToken, _ := cfg.CSPBearerToken()
	cspClient := csp.New(cspAddr, cspToken)
	cspClient.SetRetries(cfg.Retries)

	keys := backend.Account()
	if keys == nil {
		keys = ethereum.NewSignKeys()
		if err := keys.Generate(); err != nil {
			return nil, err
		}
		log.Infow("generated voter key", "address", keys.Address().Hex())
	}
	mode, _ := cfg.Mode()
	pubKey, _ := cfg.PubKey()

	v := &voter.Voter{
		API:        backend,
		CSP:        cspClient,
		Keys:       keys,
		Mode:       mode,
		Salted:     cfg.Salted,
		CSPPubKey:  pubKey,
		Policy:     cfg.Policy(),
		OpenPolicy: cfg.OpenPolicy(),
	}
	if len(cfg.AuthData) > 0 {
		v.AuthData = csp.RawAuth(cfg.AuthData)
	}
	if v.Receipts, err = openReceipts(); err != nil {
		return nil, err
	}
	return v, nil
}

func openReceipts() (*receipt.Store, error) {
	store, err := receipt.Open(cfg.DBType, cfg.ReceiptsDir())
	if err != nil {
		return nil, fmt.Errorf("cannot open receipt store: %w", err)
	}
	return store, nil
}

func printReceipt(r *receipt.VoteReceipt) {
	keysPrint.Print("election:   ")
	valuesPrint.Println(r.ElectionID.String())
	keysPrint.Print("nullifier:  ")
	valuesPrint.Println(r.Nullifier.String())
	keysPrint.Print("mode:       ")
	valuesPrint.Println(r.Mode)
	keysPrint.Print("submitted:  ")
	valuesPrint.Println(r.SubmittedAt.Format(time.RFC3339))
	keysPrint.Print("registered: ")
	valuesPrint.Println(r.Registered)
	if r.ExplorerURL != "" {
		keysPrint.Print("explorer:   ")
		valuesPrint.Println(r.ExplorerURL)
	}
}
