// ABOUTME: Gateway orchestrator wiring chat, agents, remote library and downloads together
// ABOUTME: Builds every component from config and runs the dispatcher until shutdown

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/2389/coven-librarian/internal/agent"
	"github.com/2389/coven-librarian/internal/chat"
	"github.com/2389/coven-librarian/internal/config"
	"github.com/2389/coven-librarian/internal/dispatch"
	"github.com/2389/coven-librarian/internal/download"
	"github.com/2389/coven-librarian/internal/llm"
	"github.com/2389/coven-librarian/internal/remote"
	"github.com/2389/coven-librarian/internal/store"
	"github.com/2389/coven-librarian/internal/tools"
)

// Gateway connects a Matrix account to download agents operating on a
// remote library.
type Gateway struct {
	config     *config.Config
	transport  *chat.MatrixTransport
	shell      *remote.SSHShell
	registry   *agent.Registry
	dispatcher *dispatch.Dispatcher
	logger     *slog.Logger

	// store is nil when the turn ledger is disabled
	store *store.SQLiteStore
}

// New creates a Gateway from cfg. No network connection is made until Run.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	shell, err := NewShell(cfg, logger)
	if err != nil {
		return nil, err
	}
	channel := remote.NewChannel(shell, logger)

	transport, err := chat.NewMatrixTransport(chat.MatrixConfig{
		Homeserver:   cfg.Matrix.Homeserver,
		UserID:       cfg.Matrix.UserID,
		Username:     cfg.Matrix.Username,
		Password:     cfg.Matrix.Password,
		AccessToken:  cfg.Matrix.AccessToken,
		AllowedRooms: cfg.Matrix.AllowedRooms,
	}, logger)
	if err != nil {
		return nil, err
	}

	manager, err := NewDownloadManager(cfg)
	if err != nil {
		return nil, err
	}

	factory, err := NewAgentFactory(AgentDeps{
		Config:    cfg,
		FS:        channel,
		Manager:   manager,
		Searcher:  NewSearcher(cfg),
		Completer: NewCompleter(cfg),
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}

	registry := agent.NewRegistry(cfg.Agents.AffinityTTL, cfg.Agents.MaxEntries, logger.With("component", "registry"))
	registry.Register(agent.KindDownload, factory)

	gw := &Gateway{
		config:    cfg,
		transport: transport,
		shell:     shell,
		registry:  registry,
		logger:    logger.With("component", "gateway"),
	}

	var ledger dispatch.TurnRecorder
	if cfg.Database.Path != "" {
		gw.store, err = store.NewSQLiteStore(cfg.Database.Path, logger)
		if err != nil {
			return nil, fmt.Errorf("opening turn ledger: %w", err)
		}
		ledger = gw.store
	}

	gw.dispatcher, err = dispatch.New(dispatch.Config{
		Transport:  transport,
		Registry:   registry,
		Kind:       agent.KindDownload,
		Ledger:     ledger,
		Workers:    cfg.Dispatcher.Workers,
		BufferSize: cfg.Dispatcher.BufferSize,
		Logger:     logger,
	})
	if err != nil {
		gw.closeStore()
		return nil, err
	}

	return gw, nil
}

// NewShell creates the SSH shell for the configured library host.
func NewShell(cfg *config.Config, logger *slog.Logger) (*remote.SSHShell, error) {
	shell, err := remote.NewSSHShell(remote.SSHConfig{
		Addr:                  cfg.SSH.Host,
		User:                  cfg.SSH.User,
		Password:              cfg.SSH.Password,
		PrivateKeyPath:        cfg.SSH.PrivateKeyPath,
		PrivateKeyPassphrase:  cfg.SSH.PrivateKeyPassphrase,
		KnownHostsPath:        cfg.SSH.KnownHostsPath,
		InsecureIgnoreHostKey: cfg.SSH.InsecureIgnoreHostKey,
		Timeout:               cfg.SSH.Timeout,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("creating ssh shell: %w", err)
	}
	return shell, nil
}

// NewDownloadManager creates the Transmission client downloading into
// downloads.base_path.
func NewDownloadManager(cfg *config.Config) (*download.TransmissionClient, error) {
	client, err := download.NewTransmissionClient(download.TransmissionConfig{
		URL:      cfg.Downloads.Transmission.URL,
		Username: cfg.Downloads.Transmission.Username,
		Password: cfg.Downloads.Transmission.Password,
		BaseDir:  cfg.Downloads.BasePath,
		Timeout:  cfg.Downloads.Transmission.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("creating download manager: %w", err)
	}
	return client, nil
}

// NewSearcher returns the Jackett client, or nil when search is not configured.
func NewSearcher(cfg *config.Config) download.Searcher {
	if cfg.Downloads.Jackett.URL == "" {
		return nil
	}
	return download.NewJackettClient(download.JackettConfig{
		URL:     cfg.Downloads.Jackett.URL,
		APIKey:  cfg.Downloads.Jackett.APIKey,
		Timeout: cfg.Downloads.Jackett.Timeout,
	})
}

// NewCompleter creates the chat completion client.
func NewCompleter(cfg *config.Config) llm.Completer {
	return llm.NewOpenAIClient(llm.OpenAIConfig{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
	})
}

// AgentDeps are the collaborators of a download agent.
type AgentDeps struct {
	Config    *config.Config
	FS        tools.FileSystem
	Manager   download.Manager
	Searcher  download.Searcher // optional
	Completer llm.Completer
	Logger    *slog.Logger
}

// NewAgentFactory returns the factory building download agents. The tool
// catalog is shared by every agent it creates.
func NewAgentFactory(deps AgentDeps) (agent.Factory, error) {
	cfg := deps.Config
	catalog, err := agent.NewCatalog(tools.DownloadAgentTools(deps.FS, deps.Manager, deps.Searcher, tools.Config{
		LibraryPath:   cfg.Library.Path,
		DownloadsPath: cfg.Downloads.BasePath,
		SearchLimit:   cfg.Downloads.SearchLimit,
	})...)
	if err != nil {
		return nil, fmt.Errorf("building tool catalog: %w", err)
	}

	prompt := cfg.LLM.SystemPrompt
	if prompt == "" {
		prompt = DefaultSystemPrompt(cfg.Library.Path, cfg.Downloads.BasePath)
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return func() (*agent.Agent, error) {
		if deps.Completer == nil {
			return nil, errors.New("no completion client configured")
		}
		return agent.New(agent.Config{
			Kind:         agent.KindDownload,
			Completer:    deps.Completer,
			Tools:        catalog,
			MaxDepth:     cfg.Agents.MaxDepth,
			SystemPrompt: prompt,
			Logger:       logger.With("component", "agent"),
		}), nil
	}, nil
}

// Run logs in, starts the registry janitor and serves prompts until ctx is
// cancelled or the chat subscription fails.
func (g *Gateway) Run(ctx context.Context) error {
	if err := g.transport.Login(ctx); err != nil {
		g.closeStore()
		return fmt.Errorf("logging in to matrix: %w", err)
	}

	janitorCtx, stopJanitor := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Go(func() {
		g.registry.RunJanitor(janitorCtx, g.config.Agents.SweepInterval)
	})

	g.logger.Info("gateway running",
		"library", g.config.Library.Path,
		"downloads", g.config.Downloads.BasePath,
		"max_depth", g.config.Agents.MaxDepth,
		"affinity_ttl", g.config.Agents.AffinityTTL,
	)
	serveErr := g.dispatcher.Serve(ctx)

	stopJanitor()
	wg.Wait()

	shutdownErr := g.Shutdown()
	if serveErr != nil {
		return serveErr
	}
	return shutdownErr
}

// Shutdown releases the SSH connection and the ledger.
func (g *Gateway) Shutdown() error {
	g.logger.Info("shutting down gateway")

	var errs []error
	if err := g.shell.Disconnect(); err != nil {
		errs = append(errs, fmt.Errorf("ssh disconnect: %w", err))
	}
	if err := g.closeStore(); err != nil {
		errs = append(errs, fmt.Errorf("store close: %w", err))
	}
	return errors.Join(errs...)
}

func (g *Gateway) closeStore() error {
	if g.store == nil {
		return nil
	}
	err := g.store.Close()
	g.store = nil
	return err
}
