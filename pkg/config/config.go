package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	// Log configuration
	Log LogConfig `mapstructure:"log"`

	// Server configuration
	Server ServerConfig `mapstructure:"server"`

	// Staging database (MongoDB)
	Mongo MongoConfig `mapstructure:"mongo"`

	// Item store (Neo4j)
	Graph GraphConfig `mapstructure:"graph"`

	Data       DataConfig       `mapstructure:"data"`
	Dispatcher DispatcherConfig `mapstructure:"dispatcher"`
	Wikibase   WikibaseConfig   `mapstructure:"wikibase"`
	Report     ReportConfig     `mapstructure:"report"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Notify     NotifyConfig     `mapstructure:"notify"`
	Hub        HubConfig        `mapstructure:"hub"`

	// Per-source settings
	InterPro InterProConfig `mapstructure:"interpro"`
	Mondo    MondoConfig    `mapstructure:"mondo"`
	MyGene   MyGeneConfig   `mapstructure:"mygene"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"`
	// Dir receives bot run logs.
	Dir string `mapstructure:"dir"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // gin mode: debug, release, test
}

// MongoConfig holds the staging database location
type MongoConfig struct {
	URI         string `mapstructure:"uri"`
	SrcDatabase string `mapstructure:"src_database"`
}

// GraphConfig holds the item store connection
type GraphConfig struct {
	URI      string `mapstructure:"uri"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
}

// DataConfig holds archive and log locations
type DataConfig struct {
	ArchiveRoot string `mapstructure:"archive_root"`
	LogFolder   string `mapstructure:"log_folder"`
	// AppPath is the working directory of spawned commands.
	AppPath string `mapstructure:"app_path"`
	// Archive keeps older releases on disk.
	Archive bool `mapstructure:"archive"`
}

// DispatcherConfig holds the polling loop settings
type DispatcherConfig struct {
	SleepTime     time.Duration `mapstructure:"sleep_time"`
	UploadCommand []string      `mapstructure:"upload_command"`
	// Builders maps a source to the command run after its upload succeeds.
	Builders map[string][]string `mapstructure:"builders"`
}

// WikibaseConfig holds the public query endpoint
type WikibaseConfig struct {
	SPARQLURL string `mapstructure:"sparql_url"`
	// UseSPARQL resolves identifiers against SPARQLURL instead of the item store.
	UseSPARQL bool `mapstructure:"use_sparql"`
}

// ReportConfig holds the report database
type ReportConfig struct {
	DuckDBPath string `mapstructure:"duckdb_path"`
	// PersistErrors copies error logs into the report database.
	PersistErrors bool `mapstructure:"persist_errors"`
}

// CacheConfig holds the identifier map cache
type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Path    string        `mapstructure:"path"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// NotifyConfig holds notification settings
type NotifyConfig struct {
	WebhookURL string `mapstructure:"webhook_url"`
	WWWRootURL string `mapstructure:"www_root_url"`
}

// HubConfig holds cron schedules with a seconds field
type HubConfig struct {
	DumpSchedules map[string]string `mapstructure:"dump_schedules"`
	PollSchedule  string            `mapstructure:"poll_schedule"`
}

// InterProConfig locates the InterPro release
type InterProConfig struct {
	FTPHost string `mapstructure:"ftp_host"`
	FTPDir  string `mapstructure:"ftp_dir"`
	// Taxon restricts the protein bot, e.g. Q27510868 for yeast.
	Taxon string `mapstructure:"taxon"`
}

// MondoConfig locates the Mondo ontology
type MondoConfig struct {
	Repo string `mapstructure:"repo"`
	Path string `mapstructure:"path"`
}

// MyGeneConfig locates MyGene.info and PubMed
type MyGeneConfig struct {
	BaseURL      string `mapstructure:"base_url"`
	EntrezTool   string `mapstructure:"entrez_tool"`
	EntrezEmail  string `mapstructure:"entrez_email"`
	EntrezAPIKey string `mapstructure:"entrez_api_key"`
}

// Load loads configuration from file and environment variables
func Load() (*Config, error) {
	setDefaults()
	bindEnv()

	viper.SetConfigName("biohub")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.biohub")
	viper.AddConfigPath("/etc/biohub")
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	return config, nil
}

// LoadFile loads configuration from an explicit file.
func LoadFile(path string) (*Config, error) {
	setDefaults()
	bindEnv()
	viper.SetConfigFile(path)
	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	return config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.dir", "./logs")

	viper.SetDefault("server.host", "localhost")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.mode", "debug")

	viper.SetDefault("mongo.uri", "mongodb://localhost:27017")
	viper.SetDefault("mongo.src_database", "wikidata_src")

	viper.SetDefault("graph.uri", "bolt://localhost:7687")
	viper.SetDefault("graph.username", "neo4j")
	viper.SetDefault("graph.password", "password")
	viper.SetDefault("graph.database", "neo4j")

	viper.SetDefault("data.archive_root", "./data")
	viper.SetDefault("data.log_folder", "./logs/dump")
	viper.SetDefault("data.app_path", ".")
	viper.SetDefault("data.archive", false)

	viper.SetDefault("dispatcher.sleep_time", 10*time.Second)
	viper.SetDefault("dispatcher.upload_command", []string{"biohub", "upload"})
	viper.SetDefault("dispatcher.builders", map[string][]string{
		"interpro": {"biohub", "bot", "interpro"},
	})

	viper.SetDefault("wikibase.sparql_url", "https://query.wikidata.org/sparql")
	viper.SetDefault("wikibase.use_sparql", false)

	viper.SetDefault("report.duckdb_path", "./report.duckdb")
	viper.SetDefault("report.persist_errors", true)

	viper.SetDefault("cache.enabled", true)
	viper.SetDefault("cache.path", "./cache")
	viper.SetDefault("cache.ttl", 24*time.Hour)

	viper.SetDefault("notify.www_root_url", "http://localhost:8080")

	viper.SetDefault("hub.poll_schedule", "*/10 * * * * *")
	viper.SetDefault("hub.dump_schedules", map[string]string{
		"interpro": "0 0 2 * * *",
		"mondo":    "0 0 3 * * *",
		"mygene":   "0 0 4 * * *",
	})

	viper.SetDefault("interpro.ftp_host", "ftp.ebi.ac.uk:21")
	viper.SetDefault("interpro.ftp_dir", "/pub/databases/interpro/current")
	viper.SetDefault("mondo.repo", "monarch-initiative/monarch-disease-ontology")
	viper.SetDefault("mondo.path", "src/mondo/mondo.owl")
	viper.SetDefault("mygene.base_url", "https://mygene.info")
	viper.SetDefault("mygene.entrez_tool", "biohub")
}

// bindEnv maps BIOHUB_* variables and the names the bots used historically.
func bindEnv() {
	viper.SetEnvPrefix("biohub")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.BindEnv("graph.uri", "BIOHUB_GRAPH_URI", "NEO4J_URI")
	viper.BindEnv("graph.username", "BIOHUB_GRAPH_USERNAME", "NEO4J_USER")
	viper.BindEnv("graph.password", "BIOHUB_GRAPH_PASSWORD", "NEO4J_PASSWORD")
	viper.BindEnv("graph.database", "BIOHUB_GRAPH_DATABASE", "NEO4J_DATABASE")
	viper.BindEnv("mongo.uri", "BIOHUB_MONGO_URI", "MONGO_URI")
	viper.BindEnv("wikibase.sparql_url", "BIOHUB_WIKIBASE_SPARQL_URL", "SPARQL_URL")
	viper.BindEnv("notify.webhook_url", "BIOHUB_NOTIFY_WEBHOOK_URL", "WEBHOOK_URL")
	viper.BindEnv("mygene.entrez_api_key", "BIOHUB_MYGENE_ENTREZ_API_KEY", "NCBI_API_KEY")
	viper.BindEnv("server.host", "BIOHUB_SERVER_HOST", "SERVER_HOST")
	viper.BindEnv("server.port", "BIOHUB_SERVER_PORT", "SERVER_PORT")
}
