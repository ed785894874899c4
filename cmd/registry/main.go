// Package main provides the registry binary: the HTTP host plus operator
// commands that act on the configured store directly.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/R3E-Network/password_registry/internal/app/domain/account"
	"github.com/R3E-Network/password_registry/internal/app/host"
	"github.com/R3E-Network/password_registry/internal/app/runtime"
	"github.com/R3E-Network/password_registry/internal/config"
	"github.com/R3E-Network/password_registry/internal/middleware"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

// run executes one subcommand and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stderr)
		return 2
	}

	var err error
	switch args[0] {
	case "serve":
		err = cmdServe(ctx, args[1:], stderr)
	case "deploy":
		err = cmdDeploy(ctx, args[1:], stdout, stderr)
	case "list":
		err = cmdList(ctx, args[1:], stdout, stderr)
	case "status":
		err = cmdStatus(ctx, args[1:], stdout, stderr)
	case "migrate":
		err = cmdMigrate(ctx, args[1:], stdout, stderr)
	case "token":
		err = cmdToken(args[1:], stdout, stderr)
	case "help", "-h", "--help":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		printUsage(stderr)
		return 2
	}

	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `Password registry

Usage:
  registry <command> [options]

Commands:
  serve     Run the HTTP host
  deploy    Initialize the registry
    -owner <account>    Owner account (required)
  list      Print the hashes stored for an account
    -account <account>  Account to list (required)
  status    Show initialization state, schema version and owner
  migrate   Upgrade an ownerless deployment
    -owner <account>    Owner to install (required)
  token     Mint an HS256 caller token
    -subject <account>  Caller account (required)
    -ttl <duration>     Token lifetime, must be positive (default 1h)

Every command accepts -config <path>; REGISTRY_* environment variables
override the file.`)
}

func newFlagSet(name string, stderr io.Writer) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	cfgPath := fs.String("config", "", "Path to YAML config (default $"+config.ConfigPathEnv+")")
	return fs, cfgPath
}

// withHost loads config, opens the store and runs fn against a host.
func withHost(ctx context.Context, cfgPath string, fn func(*host.Host) error) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	log := runtime.NewLogger(cfg.Logging)

	kv, closer, err := runtime.OpenStore(ctx, cfg.Storage, log.Component("storage"))
	if err != nil {
		return err
	}
	defer closer.Close()

	return fn(host.New(kv, host.WithLogger(log.Component("host"))))
}

func requireAccount(name, raw string) (account.ID, error) {
	if strings.TrimSpace(raw) == "" {
		return "", fmt.Errorf("-%s is required", name)
	}
	return account.Parse(raw)
}

func cmdServe(ctx context.Context, args []string, stderr io.Writer) error {
	fs, cfgPath := newFlagSet("serve", stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}
	log := runtime.NewLogger(cfg.Logging)

	app, err := runtime.NewApplication(ctx, cfg, log)
	if err != nil {
		return err
	}

	runErr := app.Run(ctx)
	log.Info("shutting down")
	if err := app.Shutdown(context.Background()); err != nil {
		log.WithError(err).Warn("shutdown incomplete")
	}
	return runErr
}

func cmdDeploy(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs, cfgPath := newFlagSet("deploy", stderr)
	ownerFlag := fs.String("owner", "", "Owner account")
	if err := fs.Parse(args); err != nil {
		return err
	}
	owner, err := requireAccount("owner", *ownerFlag)
	if err != nil {
		return err
	}

	return withHost(ctx, *cfgPath, func(h *host.Host) error {
		if err := h.Deploy(ctx, owner); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "registry initialized with owner %s\n", owner)
		return nil
	})
}

func cmdList(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs, cfgPath := newFlagSet("list", stderr)
	accountFlag := fs.String("account", "", "Account to list")
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := requireAccount("account", *accountFlag)
	if err != nil {
		return err
	}

	return withHost(ctx, *cfgPath, func(h *host.Host) error {
		values, err := h.List(ctx, id)
		if err != nil {
			return err
		}
		for _, v := range values {
			fmt.Fprintln(stdout, v)
		}
		return nil
	})
}

func cmdStatus(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs, cfgPath := newFlagSet("status", stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}

	return withHost(ctx, *cfgPath, func(h *host.Host) error {
		info, err := h.Describe(ctx)
		if err != nil {
			return err
		}
		if !info.Initialized {
			fmt.Fprintln(stdout, "initialized: false")
			return nil
		}
		fmt.Fprintln(stdout, "initialized: true")
		fmt.Fprintf(stdout, "schema: %d\n", info.Schema)
		fmt.Fprintf(stdout, "entries_prefix: %s\n", info.EntriesPrefix)
		if info.NeedsMigration() {
			fmt.Fprintln(stdout, "owner: (none, run migrate -owner <account>)")
		} else {
			fmt.Fprintf(stdout, "owner: %s\n", info.Owner)
		}
		return nil
	})
}

func cmdMigrate(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs, cfgPath := newFlagSet("migrate", stderr)
	ownerFlag := fs.String("owner", "", "Owner to install")
	if err := fs.Parse(args); err != nil {
		return err
	}
	owner, err := requireAccount("owner", *ownerFlag)
	if err != nil {
		return err
	}

	return withHost(ctx, *cfgPath, func(h *host.Host) error {
		if err := h.Migrate(ctx, owner); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "registry upgraded; owner is %s\n", owner)
		return nil
	})
}

func cmdToken(args []string, stdout, stderr io.Writer) error {
	fs, cfgPath := newFlagSet("token", stderr)
	subjectFlag := fs.String("subject", "", "Caller account")
	ttl := fs.Duration("ttl", time.Hour, "Token lifetime, must be positive")
	if err := fs.Parse(args); err != nil {
		return err
	}
	subject, err := requireAccount("subject", *subjectFlag)
	if err != nil {
		return err
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}
	token, err := middleware.IssueToken([]byte(cfg.Auth.JWTSecret), cfg.Auth.Issuer, subject, *ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, token)
	return nil
}
