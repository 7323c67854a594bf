// ABOUTME: Interactive config writer for coven-librarian init
// ABOUTME: Prompts for each section and writes a YAML config the loader accepts

package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fatih/color"
)

// initAnswers are the values gathered by runInit.
type initAnswers struct {
	Homeserver      string
	UserID          string
	AccessToken     string
	Username        string
	Password        string
	AllowedRooms    []string
	SSHHost         string
	SSHUser         string
	SSHKeyPath      string
	SSHPassword     string
	LibraryPath     string
	DownloadsPath   string
	TransmissionURL string
	JackettURL      string
	JackettAPIKey   string
	LLMBaseURL      string
	LLMModel        string
	LLMAPIKey       string
	DatabasePath    string
	LogLevel        string
	LogFormat       string
}

func runInit(in io.Reader, out io.Writer, defaultConfigPath string) error {
	reader := bufio.NewReader(in)
	green := color.New(color.FgGreen)

	fmt.Fprintln(out, "coven-librarian configuration setup")
	fmt.Fprintln(out, "===================================")
	fmt.Fprintln(out)

	outputFile := prompt(reader, out, "Config file path", defaultConfigPath)
	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(reader, out, "File exists. Overwrite?", "no")
		if !isYes(overwrite) {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	var a initAnswers

	fmt.Fprintln(out, "\n--- Matrix ---")
	a.Homeserver = prompt(reader, out, "Homeserver URL", "https://matrix.org")
	a.AccessToken = prompt(reader, out, "Access token (leave empty to log in with a password)", "")
	if a.AccessToken != "" {
		a.UserID = prompt(reader, out, "User ID (e.g. @librarian:matrix.org)", "")
	} else {
		a.Username = prompt(reader, out, "Username", "")
		a.Password = prompt(reader, out, "Password", "")
	}
	a.AllowedRooms = splitList(prompt(reader, out, "Allowed room IDs, comma separated (empty = all joined rooms)", ""))

	fmt.Fprintln(out, "\n--- Library host (SSH) ---")
	a.SSHHost = prompt(reader, out, "Host[:port]", "")
	a.SSHUser = prompt(reader, out, "User", "")
	a.SSHKeyPath = prompt(reader, out, "Private key path, e.g. ~/.ssh/id_ed25519 (leave empty to use a password)", "")
	if a.SSHKeyPath == "" {
		a.SSHPassword = prompt(reader, out, "Password", "")
	}
	a.LibraryPath = prompt(reader, out, "Library path", "/srv/library")
	a.DownloadsPath = prompt(reader, out, "Downloads path", "/srv/downloads")

	fmt.Fprintln(out, "\n--- Downloads ---")
	a.TransmissionURL = prompt(reader, out, "Transmission RPC URL", "http://localhost:9091/transmission/rpc")
	a.JackettURL = prompt(reader, out, "Jackett URL (leave empty to disable search)", "")
	if a.JackettURL != "" {
		a.JackettAPIKey = prompt(reader, out, "Jackett API key", "")
	}

	fmt.Fprintln(out, "\n--- Language model ---")
	a.LLMBaseURL = prompt(reader, out, "OpenAI-compatible base URL", "https://api.openai.com/v1")
	a.LLMModel = prompt(reader, out, "Model", "gpt-4o-mini")
	a.LLMAPIKey = prompt(reader, out, "API key", "${OPENAI_API_KEY}")

	fmt.Fprintln(out, "\n--- Storage and logging ---")
	a.DatabasePath = prompt(reader, out, "Turn ledger database (empty disables)", defaultDataPath())
	a.LogLevel = prompt(reader, out, "Log level (debug/info/warn/error)", "info")
	a.LogFormat = prompt(reader, out, "Log format (text/json)", "text")

	if err := os.MkdirAll(filepath.Dir(outputFile), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	// The file may hold credentials.
	if err := os.WriteFile(outputFile, []byte(renderConfig(a)), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	fmt.Fprintln(out)
	green.Fprintf(out, "  ✓ Config written to %s\n", outputFile)
	fmt.Fprintln(out, "\nTo verify the library host:")
	fmt.Fprintln(out, "  coven-librarian check")
	fmt.Fprintln(out, "To start listening:")
	fmt.Fprintln(out, "  coven-librarian serve")
	return nil
}

func renderConfig(a initAnswers) string {
	var b strings.Builder
	q := strconv.Quote

	b.WriteString("# coven-librarian configuration\n")
	b.WriteString("# Generated by coven-librarian init\n\n")

	b.WriteString("matrix:\n")
	fmt.Fprintf(&b, "  homeserver: %s\n", q(a.Homeserver))
	if a.AccessToken != "" {
		fmt.Fprintf(&b, "  user_id: %s\n", q(a.UserID))
		fmt.Fprintf(&b, "  access_token: %s\n", q(a.AccessToken))
	} else {
		fmt.Fprintf(&b, "  username: %s\n", q(a.Username))
		fmt.Fprintf(&b, "  password: %s\n", q(a.Password))
	}
	if len(a.AllowedRooms) > 0 {
		b.WriteString("  allowed_rooms:\n")
		for _, room := range a.AllowedRooms {
			fmt.Fprintf(&b, "    - %s\n", q(room))
		}
	}
	b.WriteString("\n")

	b.WriteString("ssh:\n")
	fmt.Fprintf(&b, "  host: %s\n", q(a.SSHHost))
	fmt.Fprintf(&b, "  user: %s\n", q(a.SSHUser))
	if a.SSHKeyPath != "" {
		fmt.Fprintf(&b, "  private_key_path: %s\n", q(a.SSHKeyPath))
	} else {
		fmt.Fprintf(&b, "  password: %s\n", q(a.SSHPassword))
	}
	b.WriteString("  timeout: \"15s\"\n\n")

	b.WriteString("library:\n")
	fmt.Fprintf(&b, "  path: %s\n\n", q(a.LibraryPath))

	b.WriteString("downloads:\n")
	fmt.Fprintf(&b, "  base_path: %s\n", q(a.DownloadsPath))
	b.WriteString("  transmission:\n")
	fmt.Fprintf(&b, "    url: %s\n", q(a.TransmissionURL))
	if a.JackettURL != "" {
		b.WriteString("  jackett:\n")
		fmt.Fprintf(&b, "    url: %s\n", q(a.JackettURL))
		fmt.Fprintf(&b, "    api_key: %s\n", q(a.JackettAPIKey))
	}
	b.WriteString("\n")

	b.WriteString("llm:\n")
	fmt.Fprintf(&b, "  base_url: %s\n", q(a.LLMBaseURL))
	fmt.Fprintf(&b, "  model: %s\n", q(a.LLMModel))
	fmt.Fprintf(&b, "  api_key: %s\n\n", q(a.LLMAPIKey))

	b.WriteString("agents:\n")
	b.WriteString("  max_depth: 10\n")
	b.WriteString("  affinity_ttl: \"1440h\"\n")
	b.WriteString("  sweep_interval: \"10m\"\n\n")

	b.WriteString("dispatcher:\n")
	b.WriteString("  workers: 4\n")
	b.WriteString("  buffer_size: 1000\n\n")

	b.WriteString("database:\n")
	fmt.Fprintf(&b, "  path: %s\n\n", q(a.DatabasePath))

	b.WriteString("logging:\n")
	fmt.Fprintf(&b, "  level: %s\n", q(a.LogLevel))
	fmt.Fprintf(&b, "  format: %s\n", q(a.LogFormat))

	return b.String()
}

// defaultDataPath returns the default ledger location.
// Priority: XDG_DATA_HOME/coven > ~/.local/share/coven
func defaultDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "librarian.db"
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}
	return filepath.Join(dataDir, "coven", "librarian.db")
}

func prompt(reader *bufio.Reader, out io.Writer, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Fprintf(out, "%s [%s]: ", question, defaultVal)
	} else {
		fmt.Fprintf(out, "%s: ", question)
	}

	input, err := reader.ReadString('\n')
	input = strings.TrimSpace(input)
	if err != nil && input == "" {
		// On EOF or error, return default
		fmt.Fprintln(out)
		return defaultVal
	}

	if input == "" {
		return defaultVal
	}
	return input
}

func isYes(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "y" || s == "yes"
}

func splitList(s string) []string {
	var items []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			items = append(items, part)
		}
	}
	return items
}
