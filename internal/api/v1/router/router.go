package router

import (
	"context"
	"net/http"
	"strings"

	"app/internal/api/v1/handler"
	"app/internal/config"
	"app/internal/llm"
	"app/internal/middleware"
	"app/internal/repository"
	"app/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (http.Handler, *pgxpool.Pool, error) {
	logger.Info().Str("environment", cfg.Environment).Msg("Router initializing")

	// 1. Open DB connection (connection pooling)
	dsn := cfg.DBConnectionString
	// In a development environment, we want to ensure that SSL is disabled for
	// local testing. In production, the connection string should be provided
	// with the correct SSL settings.
	if cfg.Environment == "development" && !strings.Contains(dsn, "sslmode") {
		separator := "?"
		if strings.Contains(dsn, "?") {
			separator = "&"
		}
		dsn += separator + "sslmode=disable"
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create DB pool")
		return nil, nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Error().Err(err).Msg("Failed to ping DB")
		pool.Close()
		return nil, nil, err
	}
	logger.Info().Msg("Database connection successful")

	// 2. Initialize validator
	validate := validator.New(validator.WithRequiredStructEnabled())

	// 3. Resolve provider API keys. Keys set in the environment win; missing
	// ones are looked up in Secret Manager when a project is configured.
	llmConfig := llm.Config{
		AnthropicAPIKey:   cfg.AnthropicAPIKey,
		OpenAIAPIKey:      cfg.OpenAIAPIKey,
		OpenAIAPIHost:     cfg.OpenAIAPIHost,
		OpenRouterAPIKey:  cfg.OpenRouterAPIKey,
		OpenRouterAPIHost: cfg.OpenRouterAPIHost,
	}
	if cfg.GCPProjectID != "" {
		secrets, err := service.NewSecretManagerService(ctx, cfg.GCPProjectID)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to create Secret Manager client")
			pool.Close()
			return nil, nil, err
		}
		defer secrets.Close()

		fill := func(dst *string, provider string) {
			if *dst != "" {
				return
			}
			key, err := secrets.GetProviderAPIKey(ctx, provider)
			if err != nil {
				logger.Warn().Err(err).Str("provider", provider).Msg("Provider API key not found in Secret Manager")
				return
			}
			*dst = key
		}
		fill(&llmConfig.AnthropicAPIKey, string(llm.ProviderAnthropic))
		fill(&llmConfig.OpenAIAPIKey, string(llm.ProviderOpenAI))
		fill(&llmConfig.OpenRouterAPIKey, string(llm.ProviderOpenRouter))
	}
	llmClient := llm.NewClient(&llmConfig)

	// 4. Initialize repositories & services & handlers
	chatRepo := repository.NewChatRepo(pool)

	chatSvc := service.NewChatService(chatRepo, llmClient, service.NewChatTools(), service.StreamOptions{
		SystemPrompt:   cfg.SystemPrompt,
		MaxToolSteps:   cfg.MaxToolSteps,
		MaxTokens:      cfg.LLMMaxTokens,
		ThinkingBudget: cfg.LLMThinkingBudget,
	}, logger)

	chatHandler := handler.NewChatHandler(chatSvc, validate, logger)
	modelHandler := handler.NewModelHandler(logger)

	// 5. Initialize middleware
	authMiddleware := middleware.AuthMiddleware(cfg.JWTSecret)
	optionalAuthMiddleware := middleware.OptionalAuthMiddleware(cfg.JWTSecret)

	// 6. Create ServeMux router
	mux := http.NewServeMux()

	// Create a subrouter for API v1 with the /v1 prefix
	apiV1Mux := http.NewServeMux()
	chatHandler.RegisterRoutes(apiV1Mux, authMiddleware, optionalAuthMiddleware)
	modelHandler.RegisterRoutes(apiV1Mux)

	mux.Handle("/v1/", http.StripPrefix("/v1", apiV1Mux))

	// 7. Apply CORS middleware
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	return middleware.LoggerMiddleware(c.Handler(mux)), pool, nil
}
