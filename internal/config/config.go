package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	LogLevel string         `mapstructure:"log_level"`
	Lipsync  LipsyncConfig  `mapstructure:"lipsync"`
	Media    MediaConfig    `mapstructure:"media"`
	TTS      TTSConfig      `mapstructure:"tts"`
	Renderer RendererConfig `mapstructure:"renderer"`
	Server   ServerConfig   `mapstructure:"server"`
}

type LipsyncConfig struct {
	FPS             int    `mapstructure:"fps"`
	MaxSegmentChars int    `mapstructure:"max_segment_chars"`
	SynthWorkers    int    `mapstructure:"synth_workers"`
	TempDir         string `mapstructure:"temp_dir"`
}

type MediaConfig struct {
	FFmpegPath string `mapstructure:"ffmpeg_path"`
	FFplayPath string `mapstructure:"ffplay_path"`
}

type TTSConfig struct {
	Backend       string   `mapstructure:"backend"`
	Voice         string   `mapstructure:"voice"`
	CLIPath       string   `mapstructure:"cli_path"`
	CLIConfigPath string   `mapstructure:"cli_config_path"`
	Concurrency   int      `mapstructure:"concurrency"`
	Quiet         bool     `mapstructure:"quiet"`
	Command       string   `mapstructure:"command"`
	CommandArgs   []string `mapstructure:"command_args"`
	Stream        bool     `mapstructure:"stream"`
	FormatArgs    []string `mapstructure:"format_args"`
	Format        string   `mapstructure:"format"`
}

type RendererConfig struct {
	Kind        string   `mapstructure:"kind"`
	URL         string   `mapstructure:"url"`
	Expressions []string `mapstructure:"expressions"`
	Motions     []string `mapstructure:"motions"`
	TimeoutMS   int      `mapstructure:"timeout_ms"`
}

type ServerConfig struct {
	ListenAddr     string `mapstructure:"listen_addr"`
	MaxTextBytes   int    `mapstructure:"max_text_bytes"`
	MaxPending     int    `mapstructure:"max_pending"`
	RequestTimeout int    `mapstructure:"request_timeout"`
	Script         bool   `mapstructure:"script"`
}

type LoadOptions struct {
	Cmd        flagBinder
	ConfigFile string
	Defaults   Config
}

type flagBinder interface {
	Flags() *pflag.FlagSet
}

func DefaultConfig() Config {
	return Config{
		LogLevel: "info",
		Lipsync: LipsyncConfig{
			FPS:             10,
			MaxSegmentChars: 0,
			SynthWorkers:    2,
			TempDir:         "",
		},
		Media: MediaConfig{
			FFmpegPath: "ffmpeg",
			FFplayPath: "ffplay",
		},
		TTS: TTSConfig{
			Backend:       BackendPocketTTS,
			Voice:         "",
			CLIPath:       "",
			CLIConfigPath: "",
			Concurrency:   1,
			Quiet:         true,
			Command:       "",
			CommandArgs:   nil,
			Stream:        false,
			FormatArgs:    []string{"-f", "mp3"},
			Format:        "wav",
		},
		Renderer: RendererConfig{
			Kind:        RendererStdout,
			URL:         "http://127.0.0.1:42943",
			Expressions: nil,
			Motions:     nil,
			TimeoutMS:   500,
		},
		Server: ServerConfig{
			ListenAddr:     ":8080",
			MaxTextBytes:   4096,
			MaxPending:     8,
			RequestTimeout: 120,
			Script:         false,
		},
	}
}

func RegisterFlags(fs *pflag.FlagSet, defaults Config) {
	fs.String("log-level", defaults.LogLevel, "Log level (debug|info|warn|error)")
	fs.Int("lipsync-fps", defaults.Lipsync.FPS, "Mouth animation frame rate")
	fs.Int("lipsync-max-segment-chars", defaults.Lipsync.MaxSegmentChars, "Split segments longer than this at sentence boundaries (0 disables)")
	fs.Int("lipsync-synth-workers", defaults.Lipsync.SynthWorkers, "Max concurrent file-based synthesis jobs per utterance")
	fs.String("lipsync-temp-dir", defaults.Lipsync.TempDir, "Directory for temporary audio files (default: OS temp dir)")
	fs.String("media-ffmpeg-path", defaults.Media.FFmpegPath, "Path to ffmpeg executable")
	fs.String("media-ffplay-path", defaults.Media.FFplayPath, "Path to ffplay executable")
	fs.String("tts-backend", defaults.TTS.Backend, "TTS backend (pocket-tts|command)")
	fs.String("tts-voice", defaults.TTS.Voice, "Voice name or .safetensors file path")
	fs.String("tts-cli-path", defaults.TTS.CLIPath, "Path to pocket-tts executable")
	fs.String("tts-cli-config-path", defaults.TTS.CLIConfigPath, "Path to pocket-tts config file")
	fs.Int("tts-concurrency", defaults.TTS.Concurrency, "Max concurrent pocket-tts subprocesses")
	fs.Bool("tts-quiet", defaults.TTS.Quiet, "Pass --quiet to pocket-tts generate")
	fs.String("tts-command", defaults.TTS.Command, "Executable for the command TTS backend")
	fs.StringSlice("tts-command-args", defaults.TTS.CommandArgs, "Arguments for the command TTS backend ({text} and {out} are substituted)")
	fs.Bool("tts-stream", defaults.TTS.Stream, "Stream audio from the command TTS backend's stdout")
	fs.StringSlice("tts-format-args", defaults.TTS.FormatArgs, "ffmpeg input format arguments for streamed audio")
	fs.String("tts-format", defaults.TTS.Format, "File extension of audio written by the command TTS backend")
	fs.String("renderer-kind", defaults.Renderer.Kind, "Renderer sink (stdout|http|websocket)")
	fs.String("renderer-url", defaults.Renderer.URL, "Base URL of the remote renderer")
	fs.StringSlice("renderer-expressions", defaults.Renderer.Expressions, "Expression labels known to the renderer")
	fs.StringSlice("renderer-motions", defaults.Renderer.Motions, "Motion labels known to the renderer")
	fs.Int("renderer-timeout-ms", defaults.Renderer.TimeoutMS, "Remote renderer request timeout in milliseconds")
	fs.String("server-listen-addr", defaults.Server.ListenAddr, "HTTP listen address")
	fs.Int("server-max-text-bytes", defaults.Server.MaxTextBytes, "Maximum /speak text size in bytes")
	fs.Int("server-max-pending", defaults.Server.MaxPending, "Maximum admitted /speak requests before answering 503 (0 disables)")
	fs.Int("server-request-timeout", defaults.Server.RequestTimeout, "Per-request timeout for /speak in seconds")
	fs.Bool("server-script", defaults.Server.Script, "Expose the websocket script hub at /ws")
}

func Load(opts LoadOptions) (Config, error) {
	v := viper.New()

	setDefaults(v, opts.Defaults)
	if opts.Cmd != nil {
		if err := bindFlags(v, opts.Cmd.Flags()); err != nil {
			return Config{}, err
		}
	}

	v.SetEnvPrefix("LIPSYNC")
	replacer := strings.NewReplacer("-", "_", ".", "_", "__", "_")
	v.SetEnvKeyReplacer(replacer)
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("lipsync")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("log_level", c.LogLevel)
	v.SetDefault("lipsync.fps", c.Lipsync.FPS)
	v.SetDefault("lipsync.max_segment_chars", c.Lipsync.MaxSegmentChars)
	v.SetDefault("lipsync.synth_workers", c.Lipsync.SynthWorkers)
	v.SetDefault("lipsync.temp_dir", c.Lipsync.TempDir)
	v.SetDefault("media.ffmpeg_path", c.Media.FFmpegPath)
	v.SetDefault("media.ffplay_path", c.Media.FFplayPath)
	v.SetDefault("tts.backend", c.TTS.Backend)
	v.SetDefault("tts.voice", c.TTS.Voice)
	v.SetDefault("tts.cli_path", c.TTS.CLIPath)
	v.SetDefault("tts.cli_config_path", c.TTS.CLIConfigPath)
	v.SetDefault("tts.concurrency", c.TTS.Concurrency)
	v.SetDefault("tts.quiet", c.TTS.Quiet)
	v.SetDefault("tts.command", c.TTS.Command)
	v.SetDefault("tts.command_args", c.TTS.CommandArgs)
	v.SetDefault("tts.stream", c.TTS.Stream)
	v.SetDefault("tts.format_args", c.TTS.FormatArgs)
	v.SetDefault("tts.format", c.TTS.Format)
	v.SetDefault("renderer.kind", c.Renderer.Kind)
	v.SetDefault("renderer.url", c.Renderer.URL)
	v.SetDefault("renderer.expressions", c.Renderer.Expressions)
	v.SetDefault("renderer.motions", c.Renderer.Motions)
	v.SetDefault("renderer.timeout_ms", c.Renderer.TimeoutMS)
	v.SetDefault("server.listen_addr", c.Server.ListenAddr)
	v.SetDefault("server.max_text_bytes", c.Server.MaxTextBytes)
	v.SetDefault("server.max_pending", c.Server.MaxPending)
	v.SetDefault("server.request_timeout", c.Server.RequestTimeout)
	v.SetDefault("server.script", c.Server.Script)
}

// flagKeys maps each command-line flag to the nested config key it sets.
var flagKeys = map[string]string{
	"log-level":                 "log_level",
	"lipsync-fps":               "lipsync.fps",
	"lipsync-max-segment-chars": "lipsync.max_segment_chars",
	"lipsync-synth-workers":     "lipsync.synth_workers",
	"lipsync-temp-dir":          "lipsync.temp_dir",
	"media-ffmpeg-path":         "media.ffmpeg_path",
	"media-ffplay-path":         "media.ffplay_path",
	"tts-backend":               "tts.backend",
	"tts-voice":                 "tts.voice",
	"tts-cli-path":              "tts.cli_path",
	"tts-cli-config-path":       "tts.cli_config_path",
	"tts-concurrency":           "tts.concurrency",
	"tts-quiet":                 "tts.quiet",
	"tts-command":               "tts.command",
	"tts-command-args":          "tts.command_args",
	"tts-stream":                "tts.stream",
	"tts-format-args":           "tts.format_args",
	"tts-format":                "tts.format",
	"renderer-kind":             "renderer.kind",
	"renderer-url":              "renderer.url",
	"renderer-expressions":      "renderer.expressions",
	"renderer-motions":          "renderer.motions",
	"renderer-timeout-ms":       "renderer.timeout_ms",
	"server-listen-addr":        "server.listen_addr",
	"server-max-text-bytes":     "server.max_text_bytes",
	"server-max-pending":        "server.max_pending",
	"server-request-timeout":    "server.request_timeout",
	"server-script":             "server.script",
}

// bindFlags binds known flags to their nested keys. A flag only overrides
// env and config file values when it was set explicitly.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}

	return nil
}
