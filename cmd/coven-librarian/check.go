// ABOUTME: check command: verifies SSH access to the library host
// ABOUTME: Describes the library and lists download folders through the remote channel

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"sort"

	"github.com/fatih/color"

	"github.com/2389/coven-librarian/internal/config"
	"github.com/2389/coven-librarian/internal/gateway"
	"github.com/2389/coven-librarian/internal/remote"
)

func runCheck(ctx context.Context) error {
	cfg, err := config.Load(config.DefaultPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger := setupLogger(cfg.Logging, os.Stderr)

	shell, err := gateway.NewShell(cfg, logger)
	if err != nil {
		return err
	}
	channel := remote.NewChannel(shell, logger)

	green := color.New(color.FgGreen)
	green.Print("  ▶ ")
	fmt.Printf("Connecting to %s@%s\n\n", cfg.SSH.User, cfg.SSH.Host)

	library, err := channel.DescribeDirectory(ctx, cfg.Library.Path)
	if err != nil {
		return fmt.Errorf("describing library: %w", err)
	}
	fmt.Printf("Library %s\n", cfg.Library.Path)
	printLibrary(os.Stdout, library)

	downloads, err := channel.ListDirectories(ctx, cfg.Downloads.BasePath)
	if err != nil {
		return fmt.Errorf("listing downloads: %w", err)
	}
	fmt.Printf("\nDownloads %s: %d folder(s)\n", cfg.Downloads.BasePath, countSubdirs(cfg.Downloads.BasePath, downloads))

	fmt.Println()
	green.Println("  ✓ Library host reachable")
	return nil
}

// countSubdirs counts the directories below base. The listing includes base
// itself.
func countSubdirs(base string, dirs []string) int {
	root := path.Clean(base)
	n := 0
	for _, dir := range dirs {
		if path.Clean(dir) != root {
			n++
		}
	}
	return n
}

// printLibrary writes one line per directory with its entry count, and
// the entries themselves indented beneath it.
func printLibrary(w io.Writer, library map[string][]string) {
	if len(library) == 0 {
		fmt.Fprintln(w, "  (empty)")
		return
	}

	dirs := make([]string, 0, len(library))
	for dir := range library {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)

	for _, dir := range dirs {
		entries := library[dir]
		fmt.Fprintf(w, "  %s (%d)\n", dir, len(entries))
		for _, entry := range entries {
			fmt.Fprintf(w, "    %s\n", entry)
		}
	}
}
