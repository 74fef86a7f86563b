// Package config resolves intake settings from a YAML file, the environment
// and CLI flags, remembering where each value came from.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type ValueSource string

const (
	SourceUnknown ValueSource = "unknown"
	SourceConfig  ValueSource = "config"
	SourceEnv     ValueSource = "env"
	SourceCLI     ValueSource = "cli"
	SourceDefault ValueSource = "default"
)

// Built-in defaults.
const (
	DefaultDBPath   = "~/.intake/intake.db"
	DefaultJobsDir  = "jobs"
	DefaultListen   = ":8000"
	DefaultLLM      = "google/gemini-2.5-flash"
	DefaultTimeout  = "30s"
	DefaultLogMode  = "dev"
	DefaultOrigins  = "*"
	DefaultEnvFile  = ".env"
	defaultFromName = "built-in default"
)

type ResolvedValue struct {
	Value  string      `json:"value"`
	Source ValueSource `json:"source"`
	From   string      `json:"from,omitempty"`
}

type ResolveOptions struct {
	ConfigPath string
	// EnvFile is loaded into the environment first; existing variables win.
	// Empty uses DefaultEnvFile, "-" skips it.
	EnvFile string

	CLILLM     string
	CLIDBPath  string
	CLIJobsDir string
	CLIListen  string
	CLILogMode string
}

type ResolvedConfig struct {
	ConfigPath string `json:"config_path"`
	EnvFile    string `json:"env_file,omitempty"`

	DBPath  ResolvedValue `json:"db_path"`
	JobsDir ResolvedValue `json:"jobs_dir"`
	Listen  ResolvedValue `json:"listen"`
	LogMode ResolvedValue `json:"log_mode"`

	LLM              ResolvedValue `json:"llm"`
	LLMTimeout       ResolvedValue `json:"llm_timeout"`
	LLMRatePerMinute ResolvedValue `json:"llm_rate_per_minute"`

	AllowedOrigins ResolvedValue `json:"allowed_origins"`

	SchemaInterview ResolvedValue `json:"schema_interview"`
	SchemaSurvey    ResolvedValue `json:"schema_survey"`

	LLMKeys map[string]ResolvedValue `json:"llm_keys,omitempty"`
}

type fileConfig struct {
	DBPath  string `yaml:"db_path"`
	JobsDir string `yaml:"jobs_dir"`
	Listen  string `yaml:"listen"`
	LLM     struct {
		Provider      string `yaml:"provider"`
		APIKey        string `yaml:"api_key"`
		Timeout       string `yaml:"timeout"`
		RatePerMinute string `yaml:"rate_per_minute"`
	} `yaml:"llm"`
	CORS struct {
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"cors"`
	Schema struct {
		Interview string `yaml:"interview"`
		Survey    string `yaml:"survey"`
	} `yaml:"schema"`
	Log struct {
		Mode string `yaml:"mode"`
	} `yaml:"log"`
}

func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".intake", "config.yaml")
}

func ResolveConfig(opts ResolveOptions) (ResolvedConfig, error) {
	path := strings.TrimSpace(opts.ConfigPath)
	if path == "" {
		path = DefaultConfigPath()
	}

	out := ResolvedConfig{
		ConfigPath: path,
		LLMKeys:    map[string]ResolvedValue{},
	}

	envFile, err := loadEnvFile(opts.EnvFile)
	if err != nil {
		return out, err
	}
	out.EnvFile = envFile

	def := func(dst *ResolvedValue, v string) {
		apply(dst, v, SourceDefault, defaultFromName)
	}
	def(&out.DBPath, DefaultDBPath)
	def(&out.JobsDir, DefaultJobsDir)
	def(&out.Listen, DefaultListen)
	def(&out.LogMode, DefaultLogMode)
	def(&out.LLM, DefaultLLM)
	def(&out.LLMTimeout, DefaultTimeout)
	def(&out.LLMRatePerMinute, "0")
	def(&out.AllowedOrigins, DefaultOrigins)

	cfg, err := loadConfig(path)
	if err != nil {
		return out, err
	}

	if cfg != nil {
		apply(&out.DBPath, cfg.DBPath, SourceConfig, path)
		apply(&out.JobsDir, cfg.JobsDir, SourceConfig, path)
		apply(&out.Listen, cfg.Listen, SourceConfig, path)
		apply(&out.LogMode, cfg.Log.Mode, SourceConfig, path)
		apply(&out.LLM, cfg.LLM.Provider, SourceConfig, path)
		apply(&out.LLMTimeout, cfg.LLM.Timeout, SourceConfig, path)
		apply(&out.LLMRatePerMinute, cfg.LLM.RatePerMinute, SourceConfig, path)
		apply(&out.AllowedOrigins, strings.Join(cfg.CORS.AllowedOrigins, ","), SourceConfig, path)
		apply(&out.SchemaInterview, cfg.Schema.Interview, SourceConfig, path)
		apply(&out.SchemaSurvey, cfg.Schema.Survey, SourceConfig, path)

		if key := strings.TrimSpace(cfg.LLM.APIKey); key != "" {
			p := providerOf(cfg.LLM.Provider)
			if p == "" {
				p = "default"
			}
			out.LLMKeys[p] = ResolvedValue{Value: key, Source: SourceConfig, From: path}
		}
	}

	applyEnv(&out.DBPath, "INTAKE_DB")
	applyEnv(&out.JobsDir, "INTAKE_JOBS_DIR")
	applyEnv(&out.Listen, "INTAKE_LISTEN")
	applyEnv(&out.LogMode, "INTAKE_LOG_MODE")
	applyEnv(&out.LLM, "INTAKE_LLM")
	applyEnv(&out.LLMTimeout, "INTAKE_LLM_TIMEOUT")
	applyEnv(&out.LLMRatePerMinute, "INTAKE_LLM_RATE")
	applyEnv(&out.AllowedOrigins, "INTAKE_ALLOWED_ORIGINS")
	applyEnv(&out.SchemaInterview, "INTAKE_SCHEMA_INTERVIEW")
	applyEnv(&out.SchemaSurvey, "INTAKE_SCHEMA_SURVEY")

	for env, provider := range map[string]string{
		"OPENROUTER_API_KEY": "openrouter",
		"OPENAI_API_KEY":     "openai",
		"GEMINI_API_KEY":     "google",
		"GOOGLE_API_KEY":     "google",
	} {
		if v := strings.TrimSpace(os.Getenv(env)); v != "" {
			// GEMINI_API_KEY wins over GOOGLE_API_KEY.
			if cur, ok := out.LLMKeys[provider]; ok && cur.From == "GEMINI_API_KEY" {
				continue
			}
			out.LLMKeys[provider] = ResolvedValue{Value: v, Source: SourceEnv, From: env}
		}
	}

	apply(&out.LLM, opts.CLILLM, SourceCLI, "--llm")
	apply(&out.DBPath, opts.CLIDBPath, SourceCLI, "--db")
	apply(&out.JobsDir, opts.CLIJobsDir, SourceCLI, "--jobs")
	apply(&out.Listen, opts.CLIListen, SourceCLI, "--listen")
	apply(&out.LogMode, opts.CLILogMode, SourceCLI, "--log-mode")

	out.DBPath.Value = expandUserPath(out.DBPath.Value)
	out.JobsDir.Value = expandUserPath(out.JobsDir.Value)
	out.SchemaInterview.Value = expandUserPath(out.SchemaInterview.Value)
	out.SchemaSurvey.Value = expandUserPath(out.SchemaSurvey.Value)

	return out, nil
}

// Timeout parses the per-attempt generation timeout.
func (r ResolvedConfig) Timeout() (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(r.LLMTimeout.Value))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid llm timeout %q (from %s)", r.LLMTimeout.Value, r.LLMTimeout.From)
	}
	return d, nil
}

// RatePerMinute parses the generation rate limit; 0 means unlimited.
func (r ResolvedConfig) RatePerMinute() (int, error) {
	v := strings.TrimSpace(r.LLMRatePerMinute.Value)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid llm rate %q (from %s)", v, r.LLMRatePerMinute.From)
	}
	return n, nil
}

// Origins splits the comma-separated CORS origin list.
func (r ResolvedConfig) Origins() []string {
	var out []string
	for _, o := range strings.Split(r.AllowedOrigins.Value, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// EffectiveLLMModel returns the configured provider/model. A bare provider
// name borrows the model from fallback when fallback is for that provider.
func (r ResolvedConfig) EffectiveLLMModel(fallback string) ResolvedValue {
	c := r.LLM
	if strings.TrimSpace(c.Value) != "" {
		if strings.Contains(c.Value, "/") {
			return c
		}
		if fallback != "" && strings.HasPrefix(strings.ToLower(fallback), strings.ToLower(strings.TrimSpace(c.Value))+"/") {
			return ResolvedValue{Value: fallback, Source: c.Source, From: c.From}
		}
	}
	if strings.TrimSpace(fallback) != "" {
		return ResolvedValue{Value: fallback, Source: SourceDefault, From: defaultFromName}
	}
	return ResolvedValue{}
}

func (r ResolvedConfig) APIKeyForProvider(providerOrModel string) ResolvedValue {
	provider := providerOf(providerOrModel)
	if provider == "" {
		return ResolvedValue{}
	}
	if v, ok := r.LLMKeys[provider]; ok && strings.TrimSpace(v.Value) != "" {
		return v
	}
	if v, ok := r.LLMKeys["default"]; ok && strings.TrimSpace(v.Value) != "" {
		return v
	}
	return ResolvedValue{}
}

func providerOf(providerOrModel string) string {
	v := strings.ToLower(strings.TrimSpace(providerOrModel))
	if v == "" {
		return ""
	}
	if idx := strings.Index(v, "/"); idx > 0 {
		return v[:idx]
	}
	return v
}

func apply(dst *ResolvedValue, raw string, source ValueSource, from string) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return
	}
	*dst = ResolvedValue{Value: v, Source: source, From: from}
}

func applyEnv(dst *ResolvedValue, envKey string) {
	if v := strings.TrimSpace(os.Getenv(envKey)); v != "" {
		*dst = ResolvedValue{Value: v, Source: SourceEnv, From: envKey}
	}
}

// loadEnvFile returns the path it loaded, or "" when there was none.
func loadEnvFile(path string) (string, error) {
	path = strings.TrimSpace(path)
	switch path {
	case "-":
		return "", nil
	case "":
		path = DefaultEnvFile
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return "", fmt.Errorf("loading %s: %w", path, err)
	}
	return path, nil
}

func loadConfig(path string) (*fileConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &cfg, nil
}

func expandUserPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
