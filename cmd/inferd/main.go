package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"inferd/internal/common/fsutil"
	"inferd/internal/config"
	"inferd/internal/engine"
	"inferd/internal/registry"
	"inferd/internal/server"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// flagOverrides collects command line values into a Config whose zero
// values mean "not set", so Finalize can layer it over the config file.
type flagOverrides struct {
	configPath string
	protocol   string
	cfg        config.Config
}

func newRootCmd() *cobra.Command {
	var o flagOverrides

	cmd := &cobra.Command{
		Use:           "inferd",
		Short:         "Model inference server speaking REST or RPC",
		Version:       server.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(o)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&o.configPath, "config", "c", "", "config file (yaml, json or toml)")
	f.StringVar(&o.protocol, "protocol", "", "wire protocol: rest or rpc")
	f.StringVar(&o.cfg.Host, "host", "", "listen host")
	f.IntVarP(&o.cfg.Port, "port", "p", 0, "listen port")
	f.IntVar(&o.cfg.Workers, "workers", 0, "worker pool size")
	f.IntVar(&o.cfg.TimeoutSeconds, "timeout", 0, "per-request timeout in seconds")
	f.StringVar(&o.cfg.ModelPath, "model-path", "", "path to the model weights")
	f.StringVar(&o.cfg.ModelType, "model-type", "", "model backend: llama or echo")
	f.StringVar(&o.cfg.ModelID, "model-id", "", "model identifier reported to clients")
	f.BoolVar(&o.cfg.AuthEnabled, "auth", false, "require an API key on inference requests")
	f.StringSliceVar(&o.cfg.APIKeys, "api-key", nil, "accepted API key (repeatable)")
	f.StringSliceVar(&o.cfg.CORSOrigins, "cors-origin", nil, "allowed CORS origin (repeatable)")
	f.BoolVar(&o.cfg.RateLimitEnabled, "rate-limit", false, "enable per-client rate limiting")
	f.IntVar(&o.cfg.RateLimitPerMinute, "rate-limit-per-minute", 0, "requests allowed per client per minute")
	f.BoolVar(&o.cfg.EnableTLS, "tls", false, "serve TLS")
	f.StringVar(&o.cfg.CertFile, "cert-file", "", "TLS certificate file")
	f.StringVar(&o.cfg.KeyFile, "key-file", "", "TLS key file")
	f.BoolVar(&o.cfg.EnableReflection, "reflection", false, "enable rpc reflection")
	f.BoolVar(&o.cfg.EnableHealthChecking, "health-checking", false, "enable the rpc health service")
	f.IntVar(&o.cfg.MaxMessageMB, "max-message-mb", 0, "rpc message size limit in MB")
	f.IntVar(&o.cfg.MaxConcurrentStreams, "max-concurrent-streams", 0, "rpc concurrent stream limit")
	f.StringVar(&o.cfg.LogLevel, "log-level", "", "log level: trace, debug, info, warn or error")
	f.StringVar(&o.cfg.LogFile, "log-file", "", "append logs to this file instead of stderr")

	return cmd
}

func serve(o flagOverrides) error {
	var fileCfg config.Config
	if o.configPath != "" {
		var err error
		fileCfg, err = config.Load(o.configPath)
		if err != nil {
			return err
		}
	}
	o.cfg.Protocol = config.Protocol(o.protocol)
	cfg, err := config.Finalize(fileCfg, o.cfg)
	if err != nil {
		return err
	}

	// ModelPath may name a directory of weights; pin it to one file before
	// the engine sees it.
	if cfg.ModelType != "echo" {
		mf, err := registry.Resolve(cfg.ModelPath, cfg.ModelID)
		if err != nil {
			return err
		}
		cfg.ModelPath = mf.Path
		if cfg.ModelID == "" {
			cfg.ModelID = mf.ID
		}
	}

	log, closeLog, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	eng, err := engine.Load(cfg)
	if err != nil {
		return fmt.Errorf("load engine: %w", err)
	}
	defer eng.Close()
	log.Info().
		Str("model", eng.Info().ID).
		Str("type", eng.Info().Type).
		Msg("engine loaded")

	srv := server.New(cfg, eng, log)
	if err := srv.Start(); err != nil {
		return err
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	sig := <-stop
	log.Info().Str("signal", sig.String()).Msg("shutting down")

	return srv.Stop()
}

// newLogger builds the process logger from config. Console output goes to
// stderr; a configured log file gets plain JSON lines instead.
func newLogger(cfg config.Config) (zerolog.Logger, func(), error) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil {
		return zerolog.Nop(), nil, config.Errorf("unknown log_level %q", cfg.LogLevel)
	}

	var w io.Writer = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	closeLog := func() {}
	if cfg.LogFile != "" {
		path, err := fsutil.ExpandHome(cfg.LogFile)
		if err != nil {
			return zerolog.Nop(), nil, err
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return zerolog.Nop(), nil, err
		}
		w = f
		closeLog = func() { _ = f.Close() }
	}

	log := zerolog.New(w).Level(level).With().Timestamp().Logger()
	return log, closeLog, nil
}
