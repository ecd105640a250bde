package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/korhy/cookbook/internal/core"
)

// ErrNoDatabase is returned by RequireDatabase when no URL is configured.
var ErrNoDatabase = errors.New("DATABASE_URL is required")

var durationType = reflect.TypeOf(time.Duration(0))

// Load builds a Config from the process environment, fills defaults from the
// struct tags and validates the result.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := populate(reflect.ValueOf(cfg).Elem(), os.Getenv); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// populate walks the sections of v and assigns every field carrying an env
// tag. Fields without a value and without a default keep their zero value.
func populate(v reflect.Value, getenv func(string) string) error {
	for i := 0; i < v.NumField(); i++ {
		sf := v.Type().Field(i)
		fv := v.Field(i)
		if !fv.CanSet() {
			continue
		}
		if sf.Type.Kind() == reflect.Struct {
			if err := populate(fv, getenv); err != nil {
				return err
			}
			continue
		}

		name, ok := sf.Tag.Lookup("env")
		if !ok {
			continue
		}
		raw := lookup(getenv, name, sf.Tag.Get("envAlt"))
		if raw == "" {
			raw = sf.Tag.Get("default")
		}
		if raw == "" {
			continue
		}
		if err := assign(fv, raw); err != nil {
			return fmt.Errorf("%s=%q: %w", name, raw, err)
		}
	}
	return nil
}

// lookup returns the first non-empty value among the given names.
func lookup(getenv func(string) string, names ...string) string {
	for _, n := range names {
		if n == "" {
			continue
		}
		if v := getenv(n); v != "" {
			return v
		}
	}
	return ""
}

func assign(fv reflect.Value, raw string) error {
	if fv.Type() == durationType {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return err
		}
		fv.SetInt(int64(d))
		return nil
	}

	switch fv.Kind() {
	case reflect.String:
		fv.SetString(raw)
	case reflect.Int, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, fv.Type().Bits())
		if err != nil {
			return fmt.Errorf("not an integer")
		}
		fv.SetInt(n)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("not a boolean")
		}
		fv.SetBool(b)
	case reflect.Slice:
		if fv.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("cannot decode into []%s", fv.Type().Elem().Kind())
		}
		fv.Set(reflect.ValueOf(splitList(raw)))
	default:
		return fmt.Errorf("cannot decode into %s", fv.Kind())
	}
	return nil
}

// splitList parses a comma-separated list, dropping blank entries.
func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// problems accumulates validation failures so one error can report them all.
type problems []string

func (p *problems) addf(format string, args ...any) {
	*p = append(*p, fmt.Sprintf(format, args...))
}

func (p problems) err() error {
	if len(p) == 0 {
		return nil
	}
	return fmt.Errorf("validation failed:\n  - %s", strings.Join(p, "\n  - "))
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var p problems

	db := c.Database
	switch {
	case db.MaxConns <= 0:
		p.addf("DB_MAX_CONNS (%d) must be positive", db.MaxConns)
	case db.MinConns < 0:
		p.addf("DB_MIN_CONNS (%d) cannot be negative", db.MinConns)
	case db.MaxConns < db.MinConns:
		p.addf("DB_MAX_CONNS (%d) is below DB_MIN_CONNS (%d)", db.MaxConns, db.MinConns)
	}

	srv := c.Server
	if srv.Port < 1 || srv.Port > 65535 {
		p.addf("SERVER_PORT (%d) is outside 1-65535", srv.Port)
	}
	if srv.ReadTimeout < 0 {
		p.addf("SERVER_READ_TIMEOUT (%s) cannot be negative", srv.ReadTimeout)
	}
	if srv.ShutdownTimeout <= 0 {
		p.addf("SERVER_SHUTDOWN_TIMEOUT (%s) must be positive", srv.ShutdownTimeout)
	}

	c.Import.check(&p)

	if c.History.RetentionDays <= 0 {
		p.addf("HISTORY_RETENTION_DAYS (%d) must be positive", c.History.RetentionDays)
	}
	if c.History.CheckInterval <= 0 {
		p.addf("HISTORY_CHECK_INTERVAL (%s) must be positive", c.History.CheckInterval)
	}

	if c.Security.RequireAPIKey && len(c.Security.APIKeys) == 0 {
		p.addf("REQUIRE_API_KEY is set but API_KEYS lists no key")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		p.addf("LOG_LEVEL (%q) is not one of debug, info, warn, error", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		p.addf("LOG_FORMAT (%q) is not one of text, json", c.Logging.Format)
	}

	return p.err()
}

// RequireDatabase reports whether a live run can connect. Validate-only runs
// skip this check.
func (c *Config) RequireDatabase() error {
	if strings.TrimSpace(c.Database.URL) == "" {
		return ErrNoDatabase
	}
	return nil
}

// Revalidate re-runs the import checks after flags changed the section.
func (c *ImportConfig) Revalidate() error {
	var p problems
	c.check(&p)
	return p.err()
}

func (c *ImportConfig) check(p *problems) {
	chars := []struct{ env, value string }{
		{"IMPORT_DELIMITER", c.Delimiter},
		{"IMPORT_QUOTE", c.Quote},
		{"IMPORT_ESCAPE", c.Escape},
	}
	for _, ch := range chars {
		if _, err := ParseChar(ch.value); err != nil {
			p.addf("%s (%q) %v", ch.env, ch.value, err)
		}
	}
	if c.Delimiter != "" && c.Delimiter == c.Quote {
		p.addf("IMPORT_DELIMITER and IMPORT_QUOTE must differ")
	}
	if c.BatchSize <= 0 {
		p.addf("IMPORT_BATCH_SIZE (%d) must be positive", c.BatchSize)
	}
	if c.MaxWarnings <= 0 {
		p.addf("IMPORT_MAX_WARNINGS (%d) must be positive", c.MaxWarnings)
	}
	if c.Timeout <= 0 {
		p.addf("IMPORT_TIMEOUT (%s) must be positive", c.Timeout)
	}
	if _, err := core.ParseRecipeFormat(c.RecipeFormat); err != nil {
		p.addf("IMPORT_RECIPE_FORMAT (%q) is not one of keyed, self-contained", c.RecipeFormat)
	}
}

// ParseChar reads a single-character setting. "tab" and the two-character
// escape `\t` stand for a tab.
func ParseChar(s string) (rune, error) {
	switch s {
	case "tab", `\t`:
		return '\t', nil
	}
	if utf8.RuneCountInString(s) != 1 {
		return 0, errors.New("must be a single character")
	}
	r, _ := utf8.DecodeRuneInString(s)
	return r, nil
}

// Options converts the section into importer options.
func (c *ImportConfig) Options() (core.Options, error) {
	if err := c.Revalidate(); err != nil {
		return core.Options{}, err
	}
	delim, _ := ParseChar(c.Delimiter)
	quote, _ := ParseChar(c.Quote)
	escape, _ := ParseChar(c.Escape)
	format, _ := core.ParseRecipeFormat(c.RecipeFormat)

	return core.Options{
		Files: core.Files{
			Dir:               c.DataDir,
			Categories:        c.CategoriesFile,
			Ingredients:       c.IngredientsFile,
			Recipes:           c.RecipesFile,
			RecipeIngredients: c.RecipeIngredientsFile,
		},
		Reader: core.ReaderOptions{
			Delimiter:  delim,
			Quote:      quote,
			Escape:     escape,
			SkipHeader: c.SkipHeader,
		},
		BatchSize:   c.BatchSize,
		DryRun:      c.DryRun,
		Format:      format,
		MaxWarnings: c.MaxWarnings,
	}, nil
}

// String renders the config for debug logs. The database URL and API keys
// never appear in the output.
func (c *Config) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Config{Server: {Addr: %q}, ", c.Server.Addr())
	fmt.Fprintf(&b, "Database: {URL: [MASKED], Conns: %d-%d}, ", c.Database.MinConns, c.Database.MaxConns)
	fmt.Fprintf(&b, "Import: {DataDir: %q, Delimiter: %q, BatchSize: %d, DryRun: %t, RecipeFormat: %q}, ",
		c.Import.DataDir, c.Import.Delimiter, c.Import.BatchSize, c.Import.DryRun, c.Import.RecipeFormat)
	fmt.Fprintf(&b, "Security: {RequireAPIKey: %t, APIKeys: %d configured, TrustedProxies: %d}, ",
		c.Security.RequireAPIKey, len(c.Security.APIKeys), len(c.Security.TrustedProxies))
	fmt.Fprintf(&b, "History: {RetentionDays: %d}, ", c.History.RetentionDays)
	fmt.Fprintf(&b, "Logging: {Level: %q, Format: %q}}", c.Logging.Level, c.Logging.Format)
	return b.String()
}
