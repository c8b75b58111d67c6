package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Config struct is the top-level configuration structure. A loaded Config is
// treated as read-only and passed explicitly to every stage.
type Config struct {
	Paths      PathsConfig      `mapstructure:"paths"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Server     ServerConfig     `mapstructure:"server"`
	Bot        BotConfig        `mapstructure:"bot"`
	Qualtrics  QualtricsConfig  `mapstructure:"qualtrics"`
	Scoring    ScoringConfig    `mapstructure:"scoring"`
	Suspicious SuspiciousConfig `mapstructure:"suspicious"`
	Entries    EntriesConfig    `mapstructure:"entries"`
	Filter     FilterConfig     `mapstructure:"filter"`
	Analysis   AnalysisConfig   `mapstructure:"analysis"`
}

// PathsConfig locates the snapshot lineage on disk. Relative directories are
// resolved against CoreDir.
type PathsConfig struct {
	CoreDir      string `mapstructure:"core_dir"`
	RawDir       string `mapstructure:"raw_dir"`
	ProcessedDir string `mapstructure:"processed_dir"`
	FiguresDir   string `mapstructure:"figures_dir"`
	ConfigDir    string `mapstructure:"config_dir"`
}

// LoggingConfig holds settings for the logger.
type LoggingConfig struct {
	Directory  string `mapstructure:"directory"`
	Level      string `mapstructure:"level"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// DatabaseConfig holds database connection settings. The archive is optional.
type DatabaseConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
}

// ServerConfig holds settings for the read-only results server.
type ServerConfig struct {
	Port string `mapstructure:"port"`
}

// BotConfig configures the SQL-over-HTTP bot backend.
type BotConfig struct {
	SQLURL   string   `mapstructure:"sql_url"`
	AuthKey  string   `mapstructure:"auth_key"`
	PageSize int      `mapstructure:"page_size"`
	Tables   []string `mapstructure:"tables"`
}

// QualtricsConfig configures the survey vendor export.
type QualtricsConfig struct {
	ClientID     string            `mapstructure:"client_id"`
	ClientSecret string            `mapstructure:"client_secret"`
	DataCenter   string            `mapstructure:"datacenter"`
	BaseURL      string            `mapstructure:"base_url"`
	SurveyIDs    map[string]string `mapstructure:"survey_ids"`
	Format       string            `mapstructure:"format"`
	PollInterval int               `mapstructure:"poll_interval_seconds"`
}

// ScoringConfig describes the raw survey exports.
type ScoringConfig struct {
	InstrumentsFile string            `mapstructure:"instruments_file"`
	StageFiles      map[string]string `mapstructure:"stage_files"`
	EmailColumns    map[string]string `mapstructure:"email_columns"`
	ExcludedEmails  []string          `mapstructure:"excluded_emails"`
	ExcludedDomains []string          `mapstructure:"excluded_domains"`
	AliasFile       string            `mapstructure:"alias_file"`
}

// SuspiciousConfig holds the thresholds of the suspicious-response checks.
type SuspiciousConfig struct {
	ConsecutiveThreshold int      `mapstructure:"consecutive_threshold"`
	DurationCutoff       float64  `mapstructure:"duration_cutoff"`
	IPStages             []string `mapstructure:"ip_stages"`
	AllowedIPPrefixes    []string `mapstructure:"allowed_ip_prefixes"`
	IgnoreInTotal        []string `mapstructure:"ignore_in_total"`
}

// EntriesConfig configures journal ingestion and content cleaning.
type EntriesConfig struct {
	HeaderPatterns   []string `mapstructure:"header_patterns"`
	PreamblePatterns []string `mapstructure:"preamble_patterns"`
	IgnoreWords      []string `mapstructure:"ignore_words"`
}

// FilterConfig enumerates the final filter options.
type FilterConfig struct {
	RequiredMeasures         []string `mapstructure:"required_measures"`
	EnforceNonzeroWEMWBS     bool     `mapstructure:"enforce_nonzero_wemwbs"`
	MinWordCount             int      `mapstructure:"min_word_count"`
	ExcludeType              string   `mapstructure:"exclude_type"`
	MinEntriesPerParticipant int      `mapstructure:"min_entries_per_participant"`
	EligibleOnly             bool     `mapstructure:"eligible_only"`
	EligibleOutcomes         []string `mapstructure:"eligible_outcomes"`
	ContentColumn            string   `mapstructure:"content_column"`
	OutcomeFile              string   `mapstructure:"outcome_file"`
}

// AnalysisConfig configures the group statistics.
type AnalysisConfig struct {
	Groups          []string          `mapstructure:"groups"`
	GroupLabels     map[string]string `mapstructure:"group_labels"`
	MinGroupSize    int               `mapstructure:"min_group_size"`
	Alpha           float64           `mapstructure:"alpha"`
	ConfidenceLevel float64           `mapstructure:"confidence_level"`
}

// setDefaults sets the default values for the configuration.
func setDefaults(v *viper.Viper, projectRoot string) {
	v.SetDefault("paths.core_dir", projectRoot)
	v.SetDefault("paths.raw_dir", "data/raw")
	v.SetDefault("paths.processed_dir", "data/processed")
	v.SetDefault("paths.figures_dir", "figures")
	v.SetDefault("paths.config_dir", "config")

	v.SetDefault("logging.directory", "logs")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.max_size", 10)   // 10 MB
	v.SetDefault("logging.max_backups", 3) // Keep 3 backups
	v.SetDefault("logging.max_age", 7)     // 7 days
	v.SetDefault("logging.compress", true)

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "journaling")
	v.SetDefault("database.password", "journaling")
	v.SetDefault("database.dbname", "journaling")

	v.SetDefault("server.port", "5050")

	v.SetDefault("bot.page_size", 200)
	v.SetDefault("bot.tables", []string{
		"tsj_gptsummaries", "tsj_journals", "tsj_journals_saved",
		"tsj_moodanswers", "tsj_moodquestions", "tsj_mooduseranswers",
		"tsj_usertable",
	})

	v.SetDefault("qualtrics.format", "csv")
	v.SetDefault("qualtrics.poll_interval_seconds", 2)

	v.SetDefault("scoring.instruments_file", "instruments.yaml")
	v.SetDefault("scoring.stage_files", map[string]string{
		"Prescreening": "Journalling - 1 Prescreening.csv",
		"Baseline":     "Journalling - 2 Baseline.csv",
		"Exit":         "Journalling - 3 Exit.csv",
	})
	v.SetDefault("scoring.email_columns", map[string]string{
		"Prescreening": "intro-email",
		"Baseline":     "Email",
		"Exit":         "Email",
	})
	v.SetDefault("scoring.excluded_emails", []string{"test@test.pl"})
	v.SetDefault("scoring.excluded_domains", []string{"prolific.com"})
	v.SetDefault("scoring.alias_file", "email_matching.json")

	v.SetDefault("suspicious.consecutive_threshold", 10)
	v.SetDefault("suspicious.duration_cutoff", 0.4)
	v.SetDefault("suspicious.ip_stages", []string{"Baseline", "Exit"})
	v.SetDefault("suspicious.allowed_ip_prefixes", []string{"0.0.0", "144.82.8"})
	v.SetDefault("suspicious.ignore_in_total", []string{
		"Prescreening_Completed", "Baseline_Completed", "Exit_Completed",
		"Flagged_Baseline_IPAddress_Participants", "Flagged_Baseline_IPAddress_Count",
		"Flagged_Exit_IPAddress_Participants", "Flagged_Exit_IPAddress_Count",
	})

	v.SetDefault("entries.header_patterns", []string{`^(.*?\d{4}):\s*`})
	v.SetDefault("entries.preamble_patterns", []string{`Here are (my|the) responses to.*`})
	v.SetDefault("entries.ignore_words", []string{"bot", "boti"})

	v.SetDefault("filter.required_measures", []string{"WEMWBS", "GAD7", "PHQ9"})
	v.SetDefault("filter.enforce_nonzero_wemwbs", true)
	v.SetDefault("filter.min_word_count", 4)
	v.SetDefault("filter.exclude_type", "Summary")
	v.SetDefault("filter.min_entries_per_participant", 6)
	v.SetDefault("filter.eligible_only", true)
	v.SetDefault("filter.eligible_outcomes", []string{"Eligible", "Insufficient"})
	v.SetDefault("filter.content_column", "JournalAnonymised")
	v.SetDefault("filter.outcome_file", "study_outcome_by_pid.json")

	v.SetDefault("analysis.groups", []string{"A", "B", "C"})
	v.SetDefault("analysis.group_labels", map[string]string{
		"A": "Cognitive Sum.",
		"B": "Emotional Sum.",
		"C": "No Sum.",
	})
	v.SetDefault("analysis.min_group_size", 6)
	v.SetDefault("analysis.alpha", 0.05)
	v.SetDefault("analysis.confidence_level", 0.95)
}

// Load reads configuration with Viper: defaults, then config/config.yaml
// under projectRoot, then JOURNALING_* environment variables.
func Load(projectRoot string, log *zap.Logger) (*Config, error) {
	v := viper.New()
	setDefaults(v, projectRoot)

	v.AddConfigPath(filepath.Join(projectRoot, "config"))
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	// e.g., JOURNALING_FILTER_MIN_WORD_COUNT
	v.SetEnvPrefix("JOURNALING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// It's okay if the file doesn't exist; defaults and env vars will be used.
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		log.Debug("No config file found, using defaults", zap.String("root", projectRoot))
	}

	var conf Config
	if err := v.Unmarshal(&conf); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}

	log.Info("Configuration loaded successfully", zap.String("core_dir", conf.Paths.CoreDir))
	return &conf, nil
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	if len(c.Filter.RequiredMeasures) == 0 {
		return errors.New("filter.required_measures must not be empty")
	}
	if c.Filter.MinWordCount < 0 {
		return fmt.Errorf("filter.min_word_count must be >= 0, got %d", c.Filter.MinWordCount)
	}
	if c.Filter.MinEntriesPerParticipant < 0 {
		return fmt.Errorf("filter.min_entries_per_participant must be >= 0, got %d", c.Filter.MinEntriesPerParticipant)
	}
	if c.Suspicious.DurationCutoff <= 0 || c.Suspicious.DurationCutoff >= 1 {
		return fmt.Errorf("suspicious.duration_cutoff must be in (0,1), got %v", c.Suspicious.DurationCutoff)
	}
	if c.Bot.PageSize <= 0 {
		return fmt.Errorf("bot.page_size must be positive, got %d", c.Bot.PageSize)
	}
	return nil
}

func (c *Config) resolve(dir string) string {
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(c.Paths.CoreDir, dir)
}

// RawDir returns the absolute directory for raw vendor exports.
func (c *Config) RawDir(sub ...string) string {
	return filepath.Join(append([]string{c.resolve(c.Paths.RawDir)}, sub...)...)
}

// ProcessedPath returns the absolute path of a numbered snapshot.
func (c *Config) ProcessedPath(name string) string {
	return filepath.Join(c.resolve(c.Paths.ProcessedDir), name)
}

// FiguresPath returns the absolute path of an analysis artefact.
func (c *Config) FiguresPath(name string) string {
	return filepath.Join(c.resolve(c.Paths.FiguresDir), name)
}

// ConfigPath returns the absolute path of a file in the config directory.
func (c *Config) ConfigPath(name string) string {
	return filepath.Join(c.resolve(c.Paths.ConfigDir), name)
}

// LogDir returns the absolute log directory.
func (c *Config) LogDir() string {
	return c.resolve(c.Logging.Directory)
}
