// ABOUTME: Entry point for the wallet-gateway trust gateway
// ABOUTME: Dispatches to serve and the offline administration subcommands

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/pflag"

	"github.com/2389/wallet-gateway/internal/config"
	"github.com/2389/wallet-gateway/internal/gateway"
	"github.com/2389/wallet-gateway/internal/rpc"
)

// Version is set at build time.
var version = "dev"

const banner = `
                 _ _      _                     _
 __      ____ _| | | ___| |_      __ _  __ _| |_ _____      ____ _ _   _
 \ \ /\ / / _' | | |/ _ \ __|___ / _' |/ _' | __/ _ \ \ /\ / / _' | | | |
  \ V  V / (_| | | |  __/ ||_____| (_| | (_| | ||  __/\ V  V / (_| | |_| |
   \_/\_/ \__,_|_|_|\___|\__|     \__, |\__,_|\__\___| \_/\_/ \__,_|\__, |
                                  |___/                             |___/
`

const usage = `Usage: wallet-gateway <command> [flags]

Commands:
  serve                       Start the gateway
  token --subject ID          Mint a bearer token for an app or the approval UI
  apps                        List apps with stored approvals
  grants APP                  Show an app's approvals
  mode APP permissive|strict  Set an app's authorization mode
  revoke APP [--key KEY]      Revoke one approval or everything for an app

Every command accepts --config PATH (default $WALLET_GATEWAY_CONFIG or
~/.config/wallet-gateway/config.yaml).
`

func main() {
	if len(os.Args) < 2 {
		fmt.Print(usage)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cmd, args := os.Args[1], os.Args[2:]
	var err error
	switch cmd {
	case "serve":
		err = runServe(ctx, args)
	case "token":
		err = runToken(args, os.Stdout)
	case "apps":
		err = runApps(ctx, args, os.Stdout)
	case "grants":
		err = runGrants(ctx, args, os.Stdout)
	case "mode":
		err = runMode(ctx, args, os.Stdout)
	case "revoke":
		err = runRevoke(ctx, args, os.Stdout)
	case "help", "-h", "--help":
		fmt.Print(usage)
	case "--version", "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n%s", cmd, usage)
		os.Exit(1)
	}

	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newFlagSet returns a flag set carrying the shared --config flag.
func newFlagSet(name string, configPath *string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.StringVarP(configPath, "config", "c", config.Path(), "path to the config file")
	return fs
}

func runServe(ctx context.Context, args []string) error {
	var configPath string
	fs := newFlagSet("serve", &configPath)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger := setupLogger(cfg.Logging, os.Stdout)

	printSummary(os.Stdout, configPath, cfg)

	logger.Info("starting wallet-gateway",
		"config", configPath,
		"grpc_addr", cfg.Server.GRPCAddr,
		"http_addr", cfg.Server.HTTPAddr,
		"storage", cfg.Storage.Driver,
	)

	conn, err := gateway.DialExecutor(cfg.Executor)
	if err != nil {
		return err
	}
	defer conn.Close()

	gw, err := gateway.New(ctx, cfg, rpc.NewRemoteExecutor(conn), logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}
	return gw.Run(ctx)
}

// printSummary prints the startup lines shown under the banner.
func printSummary(w io.Writer, configPath string, cfg *config.Config) {
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	line := func(label, value string) {
		green.Fprint(w, "    ▶ ")
		fmt.Fprintf(w, "%-10s %s\n", label+":", value)
	}
	line("Config", configPath)
	line("gRPC", cfg.Server.GRPCAddr)
	if cfg.Server.HTTPAddr != "" {
		line("HTTP", cfg.Server.HTTPAddr)
	}
	line("Storage", cfg.Storage.Driver)
	line("Executor", cfg.Executor.Addr)
	line("Mode", cfg.Authorization.DefaultMode)
	if cfg.Storage.Driver == config.DriverMemory {
		yellow.Fprintln(w, "    ! approvals are kept in memory and lost on restart")
	}
	fmt.Fprintln(w)
}
