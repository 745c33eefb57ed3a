// Package main is the entry point for the gateway.
package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/corvidlabs/aigateway/internal/config"
	"github.com/corvidlabs/aigateway/internal/dispatch"
	"github.com/corvidlabs/aigateway/internal/healthcache"
	"github.com/corvidlabs/aigateway/internal/logging"
	"github.com/corvidlabs/aigateway/internal/metrics"
	"github.com/corvidlabs/aigateway/internal/policy"
	"github.com/corvidlabs/aigateway/internal/provider"
	"github.com/corvidlabs/aigateway/internal/ratelimit"
	"github.com/corvidlabs/aigateway/internal/registry"
	"github.com/corvidlabs/aigateway/internal/server"
)

// providerFactory builds a provider.Provider from its Config. The map
// below plays the same role the teacher's providerFactory map in
// cmd/llmrouter/main.go does — one entry per known provider kind,
// avoiding an if/else chain — generalized to three backends instead of
// two and to the shared provider.Config shape instead of loose
// (apiKey, baseURL) arguments.
type providerFactory func(cfg provider.Config, client *http.Client) provider.Provider

var constructors = map[string]providerFactory{
	"openai": func(cfg provider.Config, client *http.Client) provider.Provider {
		return provider.NewOpenAIProvider(cfg, client)
	},
	"anthropic": func(cfg provider.Config, client *http.Client) provider.Provider {
		return provider.NewAnthropicProvider(cfg, client)
	},
	"gemini": func(cfg provider.Config, client *http.Client) provider.Provider {
		return provider.NewGeminiProvider(cfg, client)
	},
}

func main() {
	configPath := "config.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewDefault(cfg.Logging.Level)

	httpClient := provider.NewSharedHTTPClient()

	providers := make(map[string]provider.Provider)
	modelsByProvider := make(map[string][]string)

	for name, p := range cfg.Providers {
		if !p.Enabled {
			continue
		}
		factory, ok := constructors[name]
		if !ok {
			logger.Fatal().Str("provider", name).Msg("unknown provider in config")
		}

		models := p.Models
		if len(models) == 0 {
			models = provider.DefaultModels(name)
		}

		instance := factory(provider.Config{
			APIKey:     p.APIKey,
			APIBase:    p.APIBase,
			Models:     models,
			Timeout:    p.Timeout(),
			MaxRetries: p.MaxRetries,
			RateLimit:  ratelimit.FromConfig(p.RateLimit),
		}, httpClient)

		providers[name] = instance
		modelsByProvider[name] = models
		logger.Info().Str("provider", name).Strs("models", p.Models).Msg("registered provider")
	}

	var router *policy.Router
	if path := os.Getenv("GATEWAY_ROUTING_POLICY"); path != "" {
		source, err := os.ReadFile(path)
		if err != nil {
			logger.Fatal().Err(err).Str("path", path).Msg("reading routing policy script")
		}
		router, err = policy.Load(string(source))
		if err != nil {
			logger.Fatal().Err(err).Msg("loading routing policy script")
		}
	}

	reg, err := registry.New(providers, modelsByProvider, router)
	if err != nil {
		logger.Fatal().Err(err).Msg("building provider registry")
	}

	promReg := prometheus.NewRegistry()
	recorder := metrics.NewPromRecorder(promReg)

	var cache *healthcache.Cache
	if addr := os.Getenv("GATEWAY_REDIS_ADDR"); addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: addr})
		cache = healthcache.New(rdb, cfg.Server.Timeout()*2)
	}

	d := dispatch.New(reg, recorder)
	srv := server.New(cfg, d, reg, cache, promReg, logger)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      srv,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	logger.Info().Int("port", cfg.Server.Port).Msg("gateway listening")

	if err := httpServer.ListenAndServe(); err != nil {
		logger.Fatal().Err(err).Msg("server error")
	}
}
