package store

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Backend names accepted by the `backend` setting.
const (
	BackendLocal       = "local"
	BackendMemory      = "memory"
	BackendDocstore    = "docstore"
	BackendREST        = "rest"
	BackendGoogleTasks = "googletasks"
)

// Config is satisfied by anything that can name the mirror directory.
type Config interface {
	BasePath() string
}

// Settings is the resolved configuration of a taskpad process.
type Settings struct {
	Owner           string       `json:"owner"`
	Backend         string       `json:"backend"`
	Mirror          string       `json:"mirror"`
	Database        string       `json:"database"`
	RESTURL         string       `json:"restUrl"`
	PostgresDSN     string       `json:"postgresDsn,omitempty"`
	GoogleConfigDir string       `json:"googleConfigDir,omitempty"`
	ServerAddr      string       `json:"serverAddr"`
	Sync            SyncSettings `json:"sync"`
	LogLevel        string       `json:"logLevel"`
	ConfigFile      string       `json:"configFile,omitempty"`
}

// SyncSettings tunes the optimistic layer.
type SyncSettings struct {
	Debounce time.Duration `json:"debounce"`
	Timeout  time.Duration `json:"timeout"`
	Retries  int           `json:"retries"`
	Grace    time.Duration `json:"grace"`
}

// BasePath returns the mirror directory.
func (s *Settings) BasePath() string {
	return s.Mirror
}

// LoadConfig reads `.taskpad.yaml` from $TASKPAD_CONFIG_PATH or the working
// directory, overlays TASKPAD_* environment variables and fills defaults.
func LoadConfig() (*Settings, error) {
	v := viper.New()
	v.SetDefault("owner", "local")
	v.SetDefault("backend", BackendLocal)
	v.SetDefault("mirror", "~/.taskpad/mirror")
	v.SetDefault("database", "~/.taskpad/taskpad.db")
	v.SetDefault("rest.url", "http://127.0.0.1:8080")
	v.SetDefault("postgres.dsn", "")
	v.SetDefault("google.config_dir", "~/.config/taskpad")
	v.SetDefault("server.addr", "127.0.0.1:8080")
	v.SetDefault("sync.debounce", "300ms")
	v.SetDefault("sync.timeout", "10s")
	v.SetDefault("sync.retries", 2)
	v.SetDefault("sync.grace", "5s")
	v.SetDefault("log.level", "info")
	v.SetConfigName(".taskpad") // .yaml is implicit
	v.SetEnvPrefix("TASKPAD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if override := os.Getenv("TASKPAD_CONFIG_PATH"); override != "" {
		v.AddConfigPath(override)
	}
	v.AddConfigPath("./")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("store: read config: %w", err)
		}
	}
	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Settings, error) {
	s := &Settings{
		Owner:       v.GetString("owner"),
		Backend:     v.GetString("backend"),
		RESTURL:     v.GetString("rest.url"),
		PostgresDSN: v.GetString("postgres.dsn"),
		ServerAddr:  v.GetString("server.addr"),
		LogLevel:    v.GetString("log.level"),
		ConfigFile:  v.ConfigFileUsed(),
		Sync: SyncSettings{
			Debounce: v.GetDuration("sync.debounce"),
			Timeout:  v.GetDuration("sync.timeout"),
			Retries:  v.GetInt("sync.retries"),
			Grace:    v.GetDuration("sync.grace"),
		},
	}
	var err error
	if s.Mirror, err = homedir.Expand(v.GetString("mirror")); err != nil {
		return nil, fmt.Errorf("store: expand mirror path: %w", err)
	}
	if s.Database, err = homedir.Expand(v.GetString("database")); err != nil {
		return nil, fmt.Errorf("store: expand database path: %w", err)
	}
	if s.GoogleConfigDir, err = homedir.Expand(v.GetString("google.config_dir")); err != nil {
		return nil, fmt.Errorf("store: expand google config dir: %w", err)
	}
	switch s.Backend {
	case BackendLocal, BackendMemory, BackendDocstore, BackendREST, BackendGoogleTasks:
	default:
		return nil, fmt.Errorf("store: unknown backend %q", s.Backend)
	}
	if s.Owner == "" {
		return nil, fmt.Errorf("store: owner must not be empty")
	}
	return s, nil
}
