// Package bootstrap assembles the services described by a config.Config.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/medlens/rxchat/backend/internal/cache"
	"github.com/medlens/rxchat/backend/internal/config"
	"github.com/medlens/rxchat/backend/internal/database"
	chatmodel "github.com/medlens/rxchat/backend/internal/model/chat"
	"github.com/medlens/rxchat/backend/internal/model/prescription"
	"github.com/medlens/rxchat/backend/internal/service/ai"
	"github.com/medlens/rxchat/backend/internal/service/chat"
	"github.com/medlens/rxchat/backend/internal/service/ocr"
	"github.com/medlens/rxchat/backend/internal/service/ocr/remote"
	"github.com/medlens/rxchat/backend/internal/service/ocr/tesseract"
	"github.com/medlens/rxchat/backend/internal/service/pipeline"
	"github.com/medlens/rxchat/backend/internal/service/prompt"
	"github.com/medlens/rxchat/backend/internal/service/session"
)

// App holds the wired services and the resources they own.
type App struct {
	Config   *config.Config
	Pipeline *pipeline.Service
	Sessions *session.Manager

	closers []func() error
}

// New wires every service from cfg. Missing model credentials and an
// unreachable database are not fatal: the affected calls fail as unavailable
// while the rest of the pipeline keeps working.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	app := &App{Config: cfg}

	store := app.buildStore(cfg)

	generator, err := buildGenerator(ctx, cfg.AI)
	if err != nil {
		_ = app.Close()
		return nil, err
	}

	extractor := buildExtractor(cfg.OCR)

	app.Sessions = session.NewManager()
	assembler := prompt.NewAssembler(cfg.Prompt.MaxAnchorChars)
	chatSvc := chat.NewService(assembler, generator, chat.WithTimeout(cfg.AI.Timeout))
	app.Pipeline = pipeline.NewService(store, extractor, app.Sessions, chatSvc,
		pipeline.WithMaxImageBytes(cfg.OCR.MaxImageBytes))

	return app, nil
}

// Close releases database and cache connections.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) buildStore(cfg *config.Config) prescription.Store {
	var store prescription.Store
	switch cfg.Store.Driver {
	case "memory":
		store = prescription.NewMemoryStore()
	default:
		db, err := database.Open(cfg.Store.Driver, cfg.Store.DatabaseURL)
		if err != nil {
			log.Warn().Err(err).Str("driver", cfg.Store.Driver).Msg("prescription store unreachable, records are disabled")
			return prescription.NewUnavailableStore(err)
		}
		a.closers = append(a.closers, func() error { return database.Close(db) })
		store = database.NewPrescriptionStore(db)
	}

	if cfg.Cache.Enabled() {
		client := cache.NewClient(cfg.Cache.RedisAddr)
		a.closers = append(a.closers, client.Close)
		store = cache.NewRecordCache(store, client, cfg.Cache.TTL)
		log.Info().Str("addr", cfg.Cache.RedisAddr).Msg("redis record cache enabled")
	}
	return store
}

func buildGenerator(ctx context.Context, cfg config.AIConfig) (ai.Generator, error) {
	if !cfg.Enabled() {
		log.Warn().Str("provider", cfg.Provider).Msg("language model credentials missing, chat is disabled")
		return disabledGenerator{}, nil
	}

	var gen ai.Generator
	switch cfg.Provider {
	case "ark":
		chatModel, err := cfg.NewChatModel(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create ark chat model: %w", err)
		}
		einoGen, err := ai.NewEinoGenerator(ctx, chatModel)
		if err != nil {
			return nil, err
		}
		gen = einoGen
	default:
		openaiGen, err := ai.NewOpenAIGenerator(cfg.OpenAIConfig())
		if err != nil {
			return nil, err
		}
		gen = openaiGen
	}

	log.Info().Str("provider", cfg.Provider).Str("model", cfg.Model).Msg("language model configured")
	if _, ok := gen.(ai.Streamer); ok && !cfg.StreamResponse {
		return generateOnly{gen}, nil
	}
	return gen, nil
}

func buildExtractor(cfg config.OCRConfig) ocr.Extractor {
	switch cfg.Engine {
	case "remote":
		return remote.NewClient(cfg.RemoteURL, "", cfg.RemoteTimeout)
	case "tesseract":
		tessdata := cfg.ResolveTessdata()
		log.Info().Str("tessdata", tessdata).Strs("languages", cfg.Languages).Msg("tesseract engine configured")
		return tesseract.NewEngine(cfg.Languages, tessdata)
	default:
		log.Warn().Msg("no OCR engine configured, image uploads are disabled")
		return nil
	}
}

type disabledGenerator struct{}

func (disabledGenerator) Generate(context.Context, []chatmodel.Message) (string, error) {
	return "", fmt.Errorf("%w: no language model configured", ai.ErrModelUnavailable)
}

// generateOnly hides the Streamer implementation of the wrapped generator.
type generateOnly struct {
	ai.Generator
}
