package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/localmind/aegis/internal/config"
	"github.com/localmind/aegis/internal/devtaskstore"
	"github.com/localmind/aegis/internal/llm"
	"github.com/localmind/aegis/internal/oauth"
	"github.com/localmind/aegis/internal/sessionstore"
	"github.com/localmind/aegis/internal/tooladapter"
	"github.com/localmind/aegis/internal/vault"
	"github.com/localmind/aegis/internal/vault/policy"
	"github.com/localmind/aegis/internal/vault/store"
	"github.com/localmind/aegis/internal/workflow"
)

// app bundles the long-lived collaborators a command needs, built once
// from the loaded Config. Mirrors the teacher's handlers.go pattern of a
// single struct threading the vault/gateway/providers into every command
// handler instead of re-deriving them per command.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	vault     *store.Vault
	policy    *policy.Engine
	oauth     *oauth.Manager
	llm       *llm.Client
	adapters  *tooladapter.Registry
	sessions  *sessionstore.Store
	devtasks  devtaskstore.Store
	workflows *workflow.Engine
}

// newApp loads configuration and opens the vault. A missing config file
// falls back to config.Default(); any other config error, or a vault that
// cannot be opened, fails fast.
func newApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			cfg = config.Default()
		} else {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}

	level := slog.LevelInfo
	_ = level.UnmarshalText([]byte(cfg.Logging.Level))
	var handler slog.Handler
	if cfg.Logging.Format == "text" {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	logger := slog.New(handler)

	dataDir := defaultDataDir(cfg.Vault.DataDir)
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("create vault data dir: %w", err)
	}
	v, err := vault.OpenWithKeychain(dataDir)
	if err != nil {
		return nil, fmt.Errorf("open vault: %w", err)
	}

	sessions, err := sessionstore.Open(filepath.Join(dataDir, "sessions.db"))
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}

	adapters := tooladapter.NewRegistry()

	a := &app{
		cfg:       cfg,
		logger:    logger,
		vault:     v,
		policy:    policy.New(v),
		oauth:     oauth.NewManager(v),
		adapters:  adapters,
		sessions:  sessions,
		devtasks:  devtaskstore.NewMemoryStore(),
		workflows: workflow.New(adapters, logger),
	}

	if cfg.LLM.DefaultProvider != "" {
		providerCfg := cfg.LLM.Providers[cfg.LLM.DefaultProvider]
		a.llm = llm.NewClient(cfg.LLM.DefaultProvider, providerCfg.APIKey, providerCfg.BaseURL, providerCfg.DefaultModel)
	}

	return a, nil
}

func (a *app) Close() error {
	_ = a.sessions.Close()
	return a.vault.Close()
}
