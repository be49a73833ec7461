// Package cli implements the mnemosyne CLI commands.
package cli

import (
	"context"
	"errors"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/mnemosyne/internal/config"
	"github.com/rcliao/mnemosyne/internal/engine"
	"github.com/rcliao/mnemosyne/internal/model"
	"github.com/rcliao/mnemosyne/internal/space"
	"github.com/rcliao/mnemosyne/internal/store"
	"github.com/rcliao/mnemosyne/internal/store/postgres"
)

var (
	dbPath    string
	envFile   string
	userFlag  string
	spaceFlag string
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "mnemosyne",
	Short: "Persistent memory for AI coding agents",
	Long: "Mnemosyne stores decisions, commands, patterns and session summaries across agent sessions.\n" +
		"Run `mnemosyne serve` to expose it as an MCP server, or use the subcommands directly.",
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "SQLite database path (default: $MNEMOSYNE_DB or ~/.mnemosyne/memory.db)")
	RootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "Load environment from this file instead of ./.env")
	RootCmd.PersistentFlags().StringVarP(&userFlag, "user", "u", "", "Caller identity (default: $MNEMOSYNE_USER or local)")
	RootCmd.PersistentFlags().StringVarP(&spaceFlag, "space", "s", "", "Target space (default: personal space)")
}

func loadConfig() *config.Config {
	cfg, err := config.Load(envFile)
	if err != nil {
		exitErr("load config", err)
	}
	if dbPath != "" {
		cfg.Database.Path = dbPath
	}
	if userFlag != "" {
		cfg.Identity.User = userFlag
	}
	if spaceFlag != "" {
		cfg.Identity.Space = spaceFlag
	}
	return cfg
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Database.Driver {
	case "postgres":
		return postgres.Open(ctx, cfg.Database.PostgresDSN)
	default:
		return store.NewSQLiteStore(cfg.Database.Path)
	}
}

// deps bundles what a command needs to run one memory operation.
type deps struct {
	cfg      *config.Config
	log      *slog.Logger
	store    store.Store
	engine   *engine.Engine
	resolver *space.Resolver
}

// openDeps opens the configured store and builds the engine. logOut
// receives log lines; stdio serving must keep stdout free for protocol
// frames.
func openDeps(ctx context.Context, logOut io.Writer) *deps {
	cfg := loadConfig()
	log := cfg.Logger(logOut)

	policy, err := cfg.Policy()
	if err != nil {
		exitErr("ranking policy", err)
	}
	s, err := openStore(ctx, cfg)
	if err != nil {
		exitErr("open store", err)
	}
	return &deps{
		cfg:   cfg,
		log:   log,
		store: s,
		engine: engine.New(s, engine.Options{
			Policy:  &policy,
			Compact: cfg.CompactOptions(),
			Logger:  log,
		}),
		resolver: space.NewResolver(s),
	}
}

func (r *deps) Close() {
	if err := r.store.Close(); err != nil {
		r.log.Warn("close store", "error", err)
	}
}

// scope resolves the configured caller against the configured target space.
func (r *deps) scope(ctx context.Context) model.Scope {
	sc, err := r.resolver.Resolve(ctx, r.cfg.Identity.User, r.cfg.Identity.Space)
	if err != nil {
		exitErr("resolve space", err)
	}
	return sc
}

// bootstrapDefaults is the bootstrap request used when a caller omits
// arguments.
func (r *deps) bootstrapDefaults() engine.BootstrapRequest {
	req := engine.DefaultBootstrapRequest()
	req.MaxTokens = r.cfg.Ranking.DefaultMaxTokens
	return req
}

func printJSON(v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}

// splitList splits a comma-separated flag value, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// readContent returns args joined by spaces, or stdin when no args are
// given and stdin is not a terminal.
func readContent(args []string, stdin *os.File) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	stat, err := stdin.Stat()
	if err != nil || stat.Mode()&os.ModeCharDevice != 0 {
		return "", nil
	}
	b, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return string(b), nil
}

// exitErr prints err and exits. Memory errors carry their code so
// scripts can tell a denial from a missing item.
func exitErr(msg string, err error) {
	var me *model.MemoryError
	if errors.As(err, &me) {
		fmt.Fprintf(os.Stderr, "error: %s: %s: %v\n", msg, model.Code(err), err)
	} else {
		fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	}
	os.Exit(1)
}
