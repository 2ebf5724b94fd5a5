package videoengine

import (
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes the environment variables LoadConfig reads, e.g.
// VIDEOENGINE_LOG_LEVEL or VIDEOENGINE_DEFAULT_CODEC_WIDTH.
const EnvPrefix = "VIDEOENGINE"

// CodecConfig selects the default codec.
type CodecConfig struct {
	Name      string `mapstructure:"name"`
	Width     int    `mapstructure:"width"`
	Height    int    `mapstructure:"height"`
	Framerate int    `mapstructure:"framerate"`
}

// Config holds the engine settings that can come from a file or the
// environment.
type Config struct {
	LogLevel       string      `mapstructure:"log_level"`
	DefaultCodec   CodecConfig `mapstructure:"default_codec"`
	MinBitrateKbps int         `mapstructure:"min_bitrate_kbps"`
	MaxBitrateKbps int         `mapstructure:"max_bitrate_kbps"`
	TemporalLayers int         `mapstructure:"temporal_layers"`
	RTPBufferSize  int         `mapstructure:"rtp_buffer_size"`
	TimedRender    bool        `mapstructure:"timed_render"`
	LibraryPath    string      `mapstructure:"library_path"`
}

// DefaultConfig returns the built-in settings.
func DefaultConfig() *Config {
	def := DefaultVideoCodec()
	return &Config{
		LogLevel: DefaultLogLevel.String(),
		DefaultCodec: CodecConfig{
			Name:      def.Name,
			Width:     def.Width,
			Height:    def.Height,
			Framerate: def.Framerate,
		},
		MinBitrateKbps: MinVideoBitrateKbps,
		MaxBitrateKbps: MaxVideoBitrateKbps,
		TemporalLayers: DefaultTemporalLayers,
		RTPBufferSize:  VideoRTPBufferSize,
	}
}

func setDefaults(v *viper.Viper) {
	def := DefaultConfig()
	v.SetDefault("log_level", def.LogLevel)
	v.SetDefault("default_codec.name", def.DefaultCodec.Name)
	v.SetDefault("default_codec.width", def.DefaultCodec.Width)
	v.SetDefault("default_codec.height", def.DefaultCodec.Height)
	v.SetDefault("default_codec.framerate", def.DefaultCodec.Framerate)
	v.SetDefault("min_bitrate_kbps", def.MinBitrateKbps)
	v.SetDefault("max_bitrate_kbps", def.MaxBitrateKbps)
	v.SetDefault("temporal_layers", def.TemporalLayers)
	v.SetDefault("rtp_buffer_size", def.RTPBufferSize)
	v.SetDefault("timed_render", def.TimedRender)
	v.SetDefault("library_path", def.LibraryPath)
}

// LoadConfig reads settings from path (YAML, JSON or TOML, by extension)
// and from VIDEOENGINE_* environment variables, which take precedence.
// An empty path reads the environment only.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file at %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks the settings for consistency.
func (c *Config) Validate() error {
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	if c.DefaultCodec.Name == "" {
		return fmt.Errorf("%w: default codec name is empty", ErrConfiguration)
	}
	if c.DefaultCodec.Width < 0 || c.DefaultCodec.Height < 0 || c.DefaultCodec.Framerate < 0 {
		return fmt.Errorf("%w: negative default codec format", ErrConfiguration)
	}
	if c.MinBitrateKbps <= 0 || c.MaxBitrateKbps < c.MinBitrateKbps {
		return fmt.Errorf("%w: bitrate range %d-%d kbps", ErrConfiguration, c.MinBitrateKbps, c.MaxBitrateKbps)
	}
	if c.TemporalLayers < 1 {
		return fmt.Errorf("%w: temporal layers must be at least 1", ErrConfiguration)
	}
	if c.RTPBufferSize < 0 {
		return fmt.Errorf("%w: negative RTP buffer size", ErrConfiguration)
	}
	return nil
}

// Level returns the configured log level, or DefaultLogLevel when it does
// not parse.
func (c *Config) Level() log.Level {
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return DefaultLogLevel
	}
	return level
}

// Codec returns the configured default codec. The payload type comes from
// the preference table.
func (c *Config) Codec() VideoCodecSpec {
	spec := VideoCodecSpec{
		Name:      c.DefaultCodec.Name,
		Width:     c.DefaultCodec.Width,
		Height:    c.DefaultCodec.Height,
		Framerate: c.DefaultCodec.Framerate,
	}
	for _, p := range DefaultCodecPreferences {
		if strings.EqualFold(p.Name, spec.Name) {
			spec.ID = p.PayloadType
			spec.Name = p.Name
			break
		}
	}
	return spec
}
