// ABOUTME: Entry point for coven-librarian
// ABOUTME: Chat-driven download agent that organises a remote media library over SSH

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"

	"github.com/2389/coven-librarian/internal/config"
	"github.com/2389/coven-librarian/internal/gateway"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

const banner = `
                                 _  _  _                         _
  ___ _____   _____ _ __        | |(_)| |__   _ __   __ _  _ __ (_)  __ _  _ __
 / __/ _ \ \ / / _ \ '_ \ _____ | || || '_ \ | '__| / _' || '__|| | / _' || '_ \
| (_| (_) \ V /  __/ | | |_____|| || || |_) || |   | (_| || |   | || (_| || | | |
 \___\___/ \_/ \___|_| |_|      |_||_||_.__/ |_|    \__,_||_|   |_| \__,_||_| |_|
`

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: coven-librarian <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve                     Listen for chat prompts and run download agents")
		fmt.Println("  init                      Create a new config file interactively")
		fmt.Println("  check                     Connect to the library host and describe the library")
		fmt.Println("  history [agent-id]        List recent agents, or one agent's delivered turns")
		fmt.Println("  version                   Print the version")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit(os.Stdin, os.Stdout, config.DefaultPath())
	case "check":
		err = runCheck(ctx)
	case "history":
		err = runHistory(ctx, os.Args[2:])
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := config.DefaultPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging, os.Stdout)

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:     %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Matrix:     %s\n", cfg.Matrix.Homeserver)
	green.Print("    ▶ ")
	fmt.Printf("Library:    %s@%s:%s\n", cfg.SSH.User, cfg.SSH.Host, cfg.Library.Path)
	green.Print("    ▶ ")
	fmt.Printf("Downloads:  %s\n", cfg.Downloads.BasePath)
	green.Print("    ▶ ")
	fmt.Printf("Model:      %s\n", cfg.LLM.Model)
	if cfg.Downloads.Jackett.URL == "" {
		yellow.Println("    ! search disabled (downloads.jackett.url not set)")
	}
	if cfg.Database.Path == "" {
		yellow.Println("    ! turn ledger disabled (database.path not set)")
	}
	fmt.Println()

	logger.Info("starting coven-librarian",
		"config", configPath,
		"homeserver", cfg.Matrix.Homeserver,
		"workers", cfg.Dispatcher.Workers,
	)

	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	return gw.Run(ctx)
}
