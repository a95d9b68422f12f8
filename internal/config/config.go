package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pion/stun/v3"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const EnvPrefix = "CONVERSE"

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	PongWait   time.Duration `mapstructure:"pong_wait"`
	WriteWait  time.Duration `mapstructure:"write_wait"`
	SendBuffer int           `mapstructure:"send_buffer"`
	Secret     string        `mapstructure:"secret"`
	LogLevel   string        `mapstructure:"log_level"`

	Match      MatchConfig     `mapstructure:"match"`
	Signal     SignalConfig    `mapstructure:"signal"`
	ICEServers []ICEServer     `mapstructure:"ice_servers"`
	Directory  DirectoryConfig `mapstructure:"directory"`

	v *viper.Viper
}

type MatchConfig struct {
	Policy          string        `mapstructure:"policy"`
	WaitTimeout     time.Duration `mapstructure:"wait_timeout"`
	Seed            int64         `mapstructure:"seed"`
	JanitorInterval time.Duration `mapstructure:"janitor_interval"`
}

type SignalConfig struct {
	RateLimit    int           `mapstructure:"rate_limit"`
	RateInterval time.Duration `mapstructure:"rate_interval"`
}

type ICEServer struct {
	URLs       []string `mapstructure:"urls"`
	Username   string   `mapstructure:"username"`
	Credential string   `mapstructure:"credential"`
}

type DirectoryConfig struct {
	Driver       string        `mapstructure:"driver"`
	SQLitePath   string        `mapstructure:"sqlite_path"`
	RedisAddr    string        `mapstructure:"redis_addr"`
	RequireKnown bool          `mapstructure:"require_known"`
	Timeout      time.Duration `mapstructure:"timeout"`
	Users        []UserEntry   `mapstructure:"users"`
}

// UserEntry seeds the static directory.
type UserEntry struct {
	ID           string `mapstructure:"id"`
	UserName     string `mapstructure:"user_name"`
	Country      string `mapstructure:"country"`
	FluencyLevel string `mapstructure:"fluency_level"`
}

// flagKeys maps command line flags onto config keys.
var flagKeys = map[string]string{
	"port":         "port",
	"mode":         "mode",
	"static":       "static_path",
	"log-level":    "log_level",
	"match-policy": "match.policy",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 65536)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("pong_wait", "60s")
	v.SetDefault("write_wait", "10s")
	v.SetDefault("send_buffer", 64)
	v.SetDefault("secret", "converse-dev-secret")
	v.SetDefault("log_level", "info")

	v.SetDefault("match.policy", "fifo")
	v.SetDefault("match.wait_timeout", "2m")
	v.SetDefault("match.seed", 0)
	v.SetDefault("match.janitor_interval", "5s")

	v.SetDefault("signal.rate_limit", 50)
	v.SetDefault("signal.rate_interval", "1s")

	v.SetDefault("ice_servers", []map[string]any{
		{"urls": []string{"stun:stun.l.google.com:19302"}},
	})

	v.SetDefault("directory.driver", "static")
	v.SetDefault("directory.sqlite_path", "converse.db")
	v.SetDefault("directory.redis_addr", "localhost:6379")
	v.SetDefault("directory.require_known", false)
	v.SetDefault("directory.timeout", "2s")
}

// Load reads defaults, then the yaml file, then CONVERSE_* env, then flags.
// An empty path means config/config.<CONFIG_ENV>.yaml, which may be absent.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	explicit := path != ""
	if !explicit {
		env := os.Getenv("CONFIG_ENV")
		if env == "" {
			env = "dev"
		}
		path = fmt.Sprintf("config/config.%s.yaml", env)
	}
	v.SetConfigFile(path)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for flag, key := range flagKeys {
			if f := flags.Lookup(flag); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", flag, err)
				}
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if explicit {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		log.Warn().Str("module", "config").Str("file", path).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", v.ConfigFileUsed()).Msg("loaded config")
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Str("policy", cfg.Match.Policy).Str("directory", cfg.Directory.Driver).Msg("config ready")
	return cfg, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.v = v
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var ErrInvalid = errors.New("invalid config")

func (c *Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	switch strings.ToLower(c.Match.Policy) {
	case "", "fifo", "random":
	default:
		errs = append(errs, fmt.Errorf("match.policy %q", c.Match.Policy))
	}
	switch c.Directory.Driver {
	case "", "static", "sqlite", "redis":
	default:
		errs = append(errs, fmt.Errorf("directory.driver %q", c.Directory.Driver))
	}
	if c.PingPeriod <= 0 || c.PongWait <= c.PingPeriod {
		errs = append(errs, fmt.Errorf("ping_period %s must be positive and below pong_wait %s", c.PingPeriod, c.PongWait))
	}
	if c.SendBuffer <= 0 {
		errs = append(errs, fmt.Errorf("send_buffer %d", c.SendBuffer))
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level %q", c.LogLevel))
	}
	for i, s := range c.ICEServers {
		if len(s.URLs) == 0 {
			errs = append(errs, fmt.Errorf("ice_servers[%d] has no urls", i))
		}
		for _, u := range s.URLs {
			if !validICEURL(u) {
				errs = append(errs, fmt.Errorf("ice_servers[%d] url %q", i, u))
			}
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// validICEURL accepts stun:, stuns:, turn: and turns: URIs with a host
// and, when given, a numeric port and known transport.
func validICEURL(u string) bool {
	uri, err := stun.ParseURI(u)
	return err == nil && uri.Host != ""
}

// ICEServerList is the ICE configuration handed to clients on registration and pairing.
func (c *Config) ICEServerList() []webrtc.ICEServer {
	out := make([]webrtc.ICEServer, 0, len(c.ICEServers))
	for _, s := range c.ICEServers {
		srv := webrtc.ICEServer{URLs: s.URLs, Username: s.Username}
		if s.Credential != "" {
			srv.Credential = s.Credential
			srv.CredentialType = webrtc.ICECredentialTypePassword
		}
		out = append(out, srv)
	}
	return out
}

func (c *Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// Watch reloads the file on change and hands the new config to onChange.
// A reload that fails validation is logged and ignored.
func (c *Config) Watch(onChange func(*Config)) {
	if c.v == nil {
		return
	}
	c.v.OnConfigChange(func(e fsnotify.Event) {
		next, err := decode(c.v)
		if err != nil {
			log.Error().Err(err).Str("module", "config").Str("file", e.Name).Msg("reload rejected")
			return
		}
		log.Info().Str("module", "config").Str("file", e.Name).Str("op", e.Op.String()).Msg("config reloaded")
		onChange(next)
	})
	c.v.WatchConfig()
}
