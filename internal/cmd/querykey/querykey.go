// Package querykey parses querykey command configuration and runs its
// subcommands.
package querykey

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"

	query "github.com/goliatone/go-query"
	"github.com/goliatone/go-query/internal/hydrate"
	"github.com/goliatone/go-query/match"
	"github.com/goliatone/go-query/pkg/state"
)

// Config holds querykey command configuration.
type Config struct {
	DefaultsFile string `env:"QUERYKEY_DEFAULTS_FILE"`
	RedisURL     string `env:"QUERYKEY_REDIS_URL" envDefault:"redis://localhost:6379"`
	LogLevel     string `env:"QUERYKEY_LOG_LEVEL" envDefault:"warn"`
	Engine       string `env:"QUERYKEY_ENGINE" envDefault:"expr"`
}

// ErrUsage reports a missing or unknown subcommand.
var ErrUsage = errors.New("usage: querykey [flags] normalize|serialize|deserialize|match|lookup [args]")

// ParseConfig parses environment and flags into a Config. The remaining
// arguments name the subcommand and its operands.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, []string, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, nil, fmt.Errorf("parse env: %w", err)
	}
	fs.StringVar(&cfg.DefaultsFile, "defaults", cfg.DefaultsFile, "YAML file with default query parameters")
	fs.StringVar(&cfg.RedisURL, "redis", cfg.RedisURL, "Redis URL used by lookup")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	fs.StringVar(&cfg.Engine, "engine", cfg.Engine, "Rule engine used by match (expr, cel, js)")
	if err := fs.Parse(args); err != nil {
		return Config{}, nil, err
	}
	return cfg, fs.Args(), nil
}

// IO bundles the streams a subcommand reads and writes.
type IO struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer
}

// Run executes the subcommand named by args[0].
func Run(ctx context.Context, cfg Config, args []string, streams IO) error {
	if len(args) == 0 {
		return ErrUsage
	}
	logger, err := newLogger(cfg.LogLevel, streams.Err)
	if err != nil {
		return err
	}
	canonicalizer, err := newCanonicalizer(cfg, logger)
	if err != nil {
		return err
	}
	app := &app{cfg: cfg, io: streams, logger: logger, canonicalizer: canonicalizer}

	name, rest := args[0], args[1:]
	switch name {
	case "normalize":
		return app.normalize(rest)
	case "serialize":
		return app.serialize(rest)
	case "deserialize":
		return app.deserialize(rest)
	case "match":
		return app.match(rest)
	case "lookup":
		return app.lookup(ctx, rest)
	default:
		return fmt.Errorf("%w: unknown command %q", ErrUsage, name)
	}
}

type app struct {
	cfg           Config
	io            IO
	logger        *slog.Logger
	canonicalizer *query.Canonicalizer
}

func newLogger(level string, w io.Writer) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, err)
	}
	if w == nil {
		w = io.Discard
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})), nil
}

func newCanonicalizer(cfg Config, logger *slog.Logger) (*query.Canonicalizer, error) {
	opts := []query.Option{query.WithLogger(query.SlogKeyLogger(logger))}
	if cfg.DefaultsFile != "" {
		data, err := os.ReadFile(cfg.DefaultsFile)
		if err != nil {
			return nil, fmt.Errorf("read defaults: %w", err)
		}
		defaults, err := query.ParseDefaultsYAML(data)
		if err != nil {
			return nil, fmt.Errorf("defaults %s: %w", cfg.DefaultsFile, err)
		}
		opts = append(opts, query.WithDefaults(defaults))
	}
	return query.NewCanonicalizer(opts...), nil
}

// readQuery decodes the query operand, or stdin when it is absent or "-".
func (a *app) readQuery(args []string) (query.Query, error) {
	raw, err := a.operand(args)
	if err != nil {
		return query.Query{}, err
	}
	var q query.Query
	if err := json.Unmarshal([]byte(raw), &q); err != nil {
		return query.Query{}, fmt.Errorf("query: %w", err)
	}
	return q, nil
}

func (a *app) operand(args []string) (string, error) {
	if len(args) > 0 && args[0] != "-" {
		return args[0], nil
	}
	if a.io.In == nil {
		return "", fmt.Errorf("%w: missing operand", ErrUsage)
	}
	data, err := io.ReadAll(a.io.In)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func (a *app) println(value string) error {
	_, err := fmt.Fprintln(a.io.Out, value)
	return err
}

// printJSON writes value on one line, leaving &, < and > unescaped as keys do.
func (a *app) printJSON(value any) error {
	enc := json.NewEncoder(a.io.Out)
	enc.SetEscapeHTML(false)
	return enc.Encode(value)
}

func (a *app) normalize(args []string) error {
	q, err := a.readQuery(args)
	if err != nil {
		return err
	}
	return a.printJSON(a.canonicalizer.Normalize(q))
}

func (a *app) serialize(args []string) error {
	fs := flag.NewFlagSet("serialize", flag.ContinueOnError)
	fs.SetOutput(a.io.Err)
	scope := fs.Uint64("scope", 0, "Scope (site) id prefixed to the key")
	withoutPage := fs.Bool("without-page", false, "Drop the page parameter")
	if err := fs.Parse(args); err != nil {
		return err
	}
	q, err := a.readQuery(fs.Args())
	if err != nil {
		return err
	}
	var key string
	if *withoutPage {
		key, err = a.canonicalizer.SerializeWithoutPage(q, query.ScopeID(*scope))
	} else {
		key, err = a.canonicalizer.Serialize(q, query.ScopeID(*scope))
	}
	if err != nil {
		return err
	}
	return a.println(key)
}

type deserializeOutput struct {
	ScopeID *uint64      `json:"scope_id,omitempty"`
	Query   *query.Query `json:"query,omitempty"`
	Valid   bool         `json:"valid"`
}

func (a *app) deserialize(args []string) error {
	key, err := a.operand(args)
	if err != nil {
		return err
	}
	details := a.canonicalizer.Deserialize(key)
	out := deserializeOutput{Valid: details.Valid}
	if details.HasScope() {
		scope := uint64(details.ScopeID)
		out.ScopeID = &scope
	}
	if details.Valid {
		out.Query = &details.Query
	}
	return a.printJSON(out)
}

func (a *app) match(args []string) error {
	fs := flag.NewFlagSet("match", flag.ContinueOnError)
	fs.SetOutput(a.io.Err)
	postsFile := fs.String("posts", "", "JSON file with posts (array or API response)")
	scope := fs.Uint64("scope", 0, "Site id stamped on posts without one")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *postsFile == "" {
		return fmt.Errorf("%w: match requires -posts", ErrUsage)
	}
	q, err := a.readQuery(fs.Args())
	if err != nil {
		return err
	}
	data, err := os.ReadFile(*postsFile)
	if err != nil {
		return fmt.Errorf("read posts: %w", err)
	}
	resp, err := hydrate.NewPostsDecoder().DecodeBytes(hydrate.Context{Source: *postsFile, ScopeID: *scope}, data)
	if err != nil {
		return err
	}

	matcher, err := match.NewMatcher(
		match.WithEngine(a.cfg.Engine),
		match.WithCanonicalizer(a.canonicalizer),
		match.WithEvaluatorLogger(slogEvaluatorLogger(a.logger)),
	)
	if err != nil {
		return err
	}
	posts, err := matcher.Filter(q, resp.Posts)
	if err != nil {
		return err
	}
	for _, post := range posts {
		if err := a.println(fmt.Sprint(post.ID)); err != nil {
			return err
		}
	}
	return nil
}

func slogEvaluatorLogger(logger *slog.Logger) match.EvaluatorLogger {
	return match.EvaluatorLoggerFunc(func(event match.EvaluatorLogEvent) {
		if event.Err != nil {
			logger.Warn("rule evaluation failed", "engine", event.Engine, "key", event.Key, "post_id", event.PostID, "error", event.Err)
			return
		}
		logger.Debug("rule evaluated", "engine", event.Engine, "key", event.Key, "post_id", event.PostID, "matched", event.Matched, "duration", event.Duration)
	})
}

type lookupOutput struct {
	Key      string  `json:"key"`
	Found    bool    `json:"found"`
	Items    []int64 `json:"items,omitempty"`
	LastPage int     `json:"last_page,omitempty"`
}

func (a *app) lookup(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("lookup", flag.ContinueOnError)
	fs.SetOutput(a.io.Err)
	scope := fs.Uint64("scope", 0, "Scope (site) id of the query")
	if err := fs.Parse(args); err != nil {
		return err
	}
	q, err := a.readQuery(fs.Args())
	if err != nil {
		return err
	}

	client, err := state.DialRedis(ctx, state.RedisOptions{URL: a.cfg.RedisURL})
	if err != nil {
		return err
	}
	defer client.Close()

	manager := NewRedisManager(a.canonicalizer, client)
	key, err := a.canonicalizer.Serialize(q, query.ScopeID(*scope))
	if err != nil {
		return err
	}
	items, found, err := manager.Items(ctx, query.ScopeID(*scope), q)
	if err != nil {
		return err
	}
	lastPage, _, err := manager.LastPage(ctx, query.ScopeID(*scope), q)
	if err != nil {
		return err
	}
	a.logger.Debug("lookup", "key", key, "found", found)

	return a.printJSON(lookupOutput{Key: key, Found: found, Items: items, LastPage: lastPage})
}
