// Command evolve-session is a small CLI around the Evolve session SDK:
// login, status, refresh and logout against a configured backend.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/evolve-healthtech/evolve-go/api"
	"github.com/evolve-healthtech/evolve-go/credentials/filestore"
	"github.com/evolve-healthtech/evolve-go/internal/config"
	"github.com/evolve-healthtech/evolve-go/session"
)

func main() {
	// Load .env file if present (ignore error if not found)
	_ = godotenv.Load()

	email := flag.String("email", "", "account email (login command)")
	password := flag.String("password", "", "account password (login command)")
	flag.Parse()

	c := config.New()
	setupLogging(c)

	command := flag.Arg(0)
	if command == "" {
		usage()
		os.Exit(1)
	}

	if err := run(c, command, *email, *password); err != nil {
		log.Fatal().Err(err).Str("command", command).Msg("command failed")
	}
}

func run(c config.Config, command, email, password string) error {
	client, err := api.New(c.GetBaseURL(), api.WithTimeout(c.GetRequestTimeout()))
	if err != nil {
		return fmt.Errorf("api.New: %w", err)
	}

	store, err := filestore.New(c.GetCredentialsFile())
	if err != nil {
		return fmt.Errorf("filestore.New: %w", err)
	}

	manager, err := session.NewManager(store, client,
		session.WithRenewal(c.GetRenewalInterval(), c.GetRenewalThreshold()))
	if err != nil {
		return fmt.Errorf("session.NewManager: %w", err)
	}
	defer manager.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	restored := manager.RestoreSession(ctx)

	switch command {
	case "login":
		if restored {
			fmt.Println("Already logged in. Run logout first to switch accounts.")
			return nil
		}
		displayBanner()
		if email == "" || password == "" {
			return fmt.Errorf("login requires -email and -password")
		}
		if err := manager.LoginWithPassword(ctx, email, password); err != nil {
			return err
		}
		fmt.Printf("Logged in as %s\n", manager.CurrentUser().Label())

	case "status":
		if !restored {
			fmt.Println("Not logged in.")
			return nil
		}
		user, err := manager.FetchUser(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Logged in as %s (%s)\n", user.Label(), user.Email)

	case "refresh":
		if !restored {
			fmt.Println("Not logged in.")
			return nil
		}
		if !manager.RefreshAccessToken(ctx) {
			return fmt.Errorf("token refresh failed")
		}
		fmt.Println("Access token refreshed.")

	case "logout":
		manager.Logout()
		fmt.Println("Logged out.")

	default:
		usage()
		return fmt.Errorf("unknown command %q", command)
	}
	return nil
}

func setupLogging(c config.Config) {
	level, err := zerolog.ParseLevel(c.GetLogLevel())
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}

func displayBanner() {
	banner := figure.NewFigure("Evolve", "cybermedium", true)
	banner.Print()
	fmt.Println()
}

func usage() {
	fmt.Println("Usage: evolve-session [flags] <login|status|refresh|logout>")
	flag.PrintDefaults()
}
