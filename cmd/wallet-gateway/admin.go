// ABOUTME: Offline administration subcommands: tokens, app listing, grants, mode and revoke
// ABOUTME: They open the configured store directly, so run them against the same config as serve

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/2389/wallet-gateway/internal/auth"
	"github.com/2389/wallet-gateway/internal/capability"
	"github.com/2389/wallet-gateway/internal/clock"
	"github.com/2389/wallet-gateway/internal/config"
	"github.com/2389/wallet-gateway/internal/gateway"
)

// Default token lifetime: 30 days.
const defaultTokenTTL = 30 * 24 * time.Hour

func runToken(args []string, out io.Writer) error {
	var configPath, subject, role string
	var ttl time.Duration
	fs := newFlagSet("token", &configPath)
	fs.StringVarP(&subject, "subject", "s", "", "app id (or UI subject) the token identifies")
	fs.StringVarP(&role, "role", "r", string(auth.RoleApp), "token role: app or ui")
	fs.DurationVar(&ttl, "ttl", defaultTokenTTL, "token lifetime; 0 never expires")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	r := auth.Role(role)
	if !r.Valid() {
		return fmt.Errorf("--role must be app or ui, got %q", role)
	}
	if subject == "" && r == auth.RoleUI {
		subject = cfg.Auth.UISubject
	}
	if r == auth.RoleApp {
		if err := capability.ValidateAppID(subject); err != nil {
			return fmt.Errorf("--subject: %w", err)
		}
	}

	issuer, err := auth.NewJWTIssuer([]byte(cfg.Auth.JWTSecret), clock.Real())
	if err != nil {
		return fmt.Errorf("creating token issuer: %w", err)
	}
	token, err := issuer.Generate(subject, r, ttl)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}
	fmt.Fprintln(out, token)
	return nil
}

// withStore loads the config, opens the approval store and runs fn.
func withStore(ctx context.Context, configPath string, fn func(*capability.Store) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger := setupLogger(config.LoggingConfig{Level: "warn", Format: cfg.Logging.Format}, io.Discard)
	caps, closeStore, err := gateway.OpenCapabilityStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	return errors.Join(fn(caps), closeStore())
}

func runApps(ctx context.Context, args []string, out io.Writer) error {
	var configPath string
	fs := newFlagSet("apps", &configPath)
	if err := fs.Parse(args); err != nil {
		return err
	}

	return withStore(ctx, configPath, func(caps *capability.Store) error {
		apps, err := caps.ListApps(ctx)
		if err != nil {
			return err
		}
		if len(apps) == 0 {
			fmt.Fprintln(out, "no apps have stored approvals")
			return nil
		}

		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, color.CyanString("APP")+"\t"+color.CyanString("MODE")+"\t"+color.CyanString("KEYS")+"\t"+color.CyanString("MODE EXPIRES"))
		for _, app := range apps {
			b, err := caps.Behavior(ctx, app)
			if err != nil {
				return err
			}
			keys, err := caps.Keys(ctx, app)
			if err != nil {
				return err
			}
			expires := "-"
			if b.ExpiresAt != nil {
				expires = b.ExpiresAt.Format(time.RFC3339)
			}
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", app, b.Mode, len(keys), expires)
		}
		return tw.Flush()
	})
}

func runGrants(ctx context.Context, args []string, out io.Writer) error {
	var configPath string
	var asJSON bool
	fs := newFlagSet("grants", &configPath)
	fs.BoolVar(&asJSON, "json", false, "print reconstructed capabilities as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: wallet-gateway grants APP [--json]")
	}
	app := fs.Arg(0)

	return withStore(ctx, configPath, func(caps *capability.Store) error {
		if asJSON {
			list, err := caps.Reconstruct(ctx, app)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(capability.List(list))
		}

		b, err := caps.Behavior(ctx, app)
		if err != nil {
			return err
		}
		keys, err := caps.Keys(ctx, app)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s %s (%s mode)\n", color.CyanString("App"), app, b.Mode)
		if len(keys) == 0 {
			fmt.Fprintln(out, "  no approvals")
			return nil
		}
		for _, k := range keys {
			fmt.Fprintf(out, "  %s %s\n", color.GreenString("✓"), k)
		}
		return nil
	})
}

func runMode(ctx context.Context, args []string, out io.Writer) error {
	var configPath string
	var expires time.Duration
	fs := newFlagSet("mode", &configPath)
	fs.DurationVar(&expires, "expires", 0, "revert to the default mode after this long; 0 keeps it")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return errors.New("usage: wallet-gateway mode APP permissive|strict [--expires DURATION]")
	}
	app, mode := fs.Arg(0), capability.Mode(fs.Arg(1))
	if !mode.Valid() {
		return fmt.Errorf("mode must be permissive or strict, got %q", mode)
	}

	return withStore(ctx, configPath, func(caps *capability.Store) error {
		b := capability.Behavior{Mode: mode}
		if expires > 0 {
			t := time.Now().Add(expires).UTC()
			b.ExpiresAt = &t
		}
		if err := caps.SetBehavior(ctx, app, b); err != nil {
			return err
		}
		fmt.Fprintf(out, "%s %s is now %s\n", color.GreenString("✓"), app, mode)
		return nil
	})
}

func runRevoke(ctx context.Context, args []string, out io.Writer) error {
	var configPath, key string
	fs := newFlagSet("revoke", &configPath)
	fs.StringVarP(&key, "key", "k", "", "revoke only this storage key")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: wallet-gateway revoke APP [--key KEY]")
	}
	app := fs.Arg(0)

	return withStore(ctx, configPath, func(caps *capability.Store) error {
		if key != "" {
			if err := caps.RevokeKey(ctx, app, key); err != nil {
				return err
			}
			fmt.Fprintf(out, "%s revoked %s for %s\n", color.GreenString("✓"), key, app)
			return nil
		}
		n, err := caps.RevokeApp(ctx, app)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s revoked %d keys for %s\n", color.GreenString("✓"), n, app)
		return nil
	})
}
