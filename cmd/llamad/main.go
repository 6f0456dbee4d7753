package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"llamad/internal/common/fsutil"
	"llamad/internal/config"
	"llamad/internal/httpapi"
	"llamad/internal/registry"
	"llamad/internal/runtime"
	"llamad/internal/session"
	"llamad/pkg/types"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	var (
		cfgPath    string
		addr       string
		modelsDir  string
		ctxSize    int
		genCeiling int
		gpuLayers  int
		logLevel   string
	)

	root := &cobra.Command{
		Use:           "llamad",
		Short:         "Generation session daemon over llama.cpp",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Config{}
			if cfgPath != "" {
				var err error
				cfg, err = config.Load(cfgPath)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
			}
			// Flags win over the config file.
			if cmd.Flags().Changed("addr") || cfg.Addr == "" {
				cfg.Addr = addr
			}
			if cmd.Flags().Changed("models-dir") || cfg.ModelsDir == "" {
				cfg.ModelsDir = modelsDir
			}
			if cmd.Flags().Changed("ctx-size") || cfg.CtxSize == 0 {
				cfg.CtxSize = ctxSize
			}
			if cmd.Flags().Changed("gen-ceiling") || cfg.GenCeiling == 0 {
				cfg.GenCeiling = genCeiling
			}
			if cmd.Flags().Changed("gpu-layers") {
				cfg.GPULayers = gpuLayers
			}
			if cmd.Flags().Changed("log-level") || cfg.LogLevel == "" {
				cfg.LogLevel = logLevel
			}
			return serve(cfg)
		},
	}

	defaultAddr := ":8080"
	if v := os.Getenv("LLAMAD_ADDR"); v != "" {
		defaultAddr = v
	}
	root.Flags().StringVar(&cfgPath, "config", "", "Path to a yaml/json/toml config file")
	root.Flags().StringVar(&addr, "addr", defaultAddr, "HTTP listen address, e.g. :8080")
	root.Flags().StringVar(&modelsDir, "models-dir", "~/models/llm", "Directory to scan for *.gguf model files")
	root.Flags().IntVar(&ctxSize, "ctx-size", session.DefaultCtxSize, "Default context capacity in tokens (512..32768)")
	root.Flags().IntVar(&genCeiling, "gen-ceiling", session.DefaultGenCeiling, "Upper bound on unbounded generation")
	root.Flags().IntVar(&gpuLayers, "gpu-layers", 0, "Model layers to offload to the GPU")
	root.Flags().StringVar(&logLevel, "log-level", "info", "Log level: debug|info|warn|error")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version and exit",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("llamad %s\n", version)
		},
	})
	return root
}

func serve(cfg config.Config) error {
	log := newLogger(cfg.LogLevel)

	rt := runtime.NewLlamaRuntime()
	if !runtime.Available() {
		log.Warn().Msg("inference runtime not compiled in; session calls will fail until built with -tags=llama")
	}

	models, err := registry.LoadDir(cfg.ModelsDir)
	if err != nil {
		log.Warn().Err(err).Str("dir", cfg.ModelsDir).Msg("model scan failed; only explicit paths will work")
	}
	byID := make(map[string]types.Model, len(models))
	for _, m := range models {
		byID[m.ID] = m
	}

	engine := session.NewEngine(rt, session.Params{
		CtxSize:    cfg.CtxSize,
		BatchSize:  cfg.BatchSize,
		GenCeiling: cfg.GenCeiling,
		GPULayers:  cfg.GPULayers,
		Sampling:   samplingOverrides(cfg.Sampling),
	}, log)

	httpapi.SetLogger(log)
	httpapi.SetMaxBodyBytes(cfg.MaxBodyBytes)
	if len(cfg.CORSAllowedOrigins) > 0 {
		httpapi.SetCORSOptions(true, cfg.CORSAllowedOrigins,
			[]string{"GET", "POST", "PUT", "DELETE"}, []string{"Content-Type", "X-Log-Level"})
	}

	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()
	httpapi.SetBaseContext(baseCtx)

	mux := httpapi.NewMux(engine, httpapi.Options{
		ListModels: func() []types.Model { return models },
		ResolveModel: func(id string) (string, error) {
			m, ok := byID[id]
			if !ok {
				return "", fmt.Errorf("model not found: %s", id)
			}
			if !fsutil.PathExists(m.Path) {
				return "", fmt.Errorf("model file missing: %s", m.Path)
			}
			return m.Path, nil
		},
		Ready:       runtime.Available,
		Version:     version,
		RuntimeName: rt.Name(),
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info().Str("addr", cfg.Addr).Str("models_dir", cfg.ModelsDir).
			Int("models", len(models)).Msg("llamad listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Graceful shutdown (Ctrl+C / SIGTERM)
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	cancelBase()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown error")
	}
	for _, id := range engine.Handles() {
		if err := engine.Close(id); err != nil {
			log.Error().Err(err).Str("handle", id).Msg("session close on shutdown")
		}
	}
	return nil
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger()
}

// samplingOverrides maps config sampling defaults onto the engine's sparse
// override type. The pointer fields line up one to one.
func samplingOverrides(s config.Sampling) *session.Overrides {
	return &session.Overrides{
		Temperature:      s.Temperature,
		TopK:             s.TopK,
		TopP:             s.TopP,
		MinP:             s.MinP,
		RepeatPenalty:    s.RepeatPenalty,
		RepeatLastN:      s.RepeatLastN,
		PresencePenalty:  s.PresencePenalty,
		FrequencyPenalty: s.FrequencyPenalty,
		Mirostat:         s.Mirostat,
		MirostatTau:      s.MirostatTau,
		MirostatEta:      s.MirostatEta,
		Seed:             s.Seed,
		MaxTokens:        s.NumPredict,
	}
}
