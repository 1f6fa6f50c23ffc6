// Package app assembles the store, write pipeline, services, HTTP router
// and background workers from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/justsurfingit/jobpilot/internal/auth"
	"github.com/justsurfingit/jobpilot/internal/config"
	"github.com/justsurfingit/jobpilot/internal/database"
	"github.com/justsurfingit/jobpilot/internal/docstore"
	"github.com/justsurfingit/jobpilot/internal/handlers"
	"github.com/justsurfingit/jobpilot/internal/mutation"
	"github.com/justsurfingit/jobpilot/internal/services"
	"github.com/justsurfingit/jobpilot/internal/toast"
)

type worker struct {
	name string
	run  func(ctx context.Context) error
}

type App struct {
	DB        *gorm.DB // nil when running on the in-memory store
	Store     *docstore.Store
	Toasts    *toast.Bus
	Mutations *mutation.Dispatcher
	Jobs      *services.JobService
	Reminders *services.ReminderService
	LLM       *services.LLMService // nil without GEMINI_API_KEY
	Router    *gin.Engine

	workers []worker
	cancel  context.CancelFunc
	group   *errgroup.Group
}

// New builds every component cfg asks for. Nothing runs until Start.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Toasts: toast.NewBus()}

	if cfg.DatabaseURL != "" {
		db, err := database.Connect(cfg.DatabaseDriver, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		a.DB = db
		a.Store = docstore.New(docstore.NewGormBackend(db))
	} else {
		log.Println("⚠️  DATABASE_URL not set, documents are kept in memory")
		a.Store = docstore.New(docstore.NewMemoryBackend())
	}

	a.Mutations = mutation.NewDispatcher(a.Store, a.Toasts, mutation.Options{
		Concurrency: cfg.MutationConcurrency,
		Timeout:     cfg.MutationTimeout,
	})
	a.Jobs = services.NewJobService(a.Store, a.Mutations)
	a.Reminders = services.NewReminderService(a.Store, a.Mutations, a.Jobs)

	if cfg.GeminiAPIKey != "" {
		gen, err := services.NewGeminiGenerator(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			a.shutdownStorage()
			return nil, err
		}
		a.LLM = services.NewLLMService(gen, cfg.LLMRatePerMinute)
	} else {
		log.Println("⚠️  GEMINI_API_KEY not set, AI features are disabled")
	}

	if err := a.addWorkers(ctx, cfg); err != nil {
		a.shutdownStorage()
		return nil, err
	}

	a.Router = handlers.NewRouter(handlers.Deps{
		Verifier:    auth.NewVerifier(cfg.AuthSecret, cfg.AuthIssuer, cfg.AuthAudience),
		Source:      a.Store,
		Toasts:      a.Toasts,
		Jobs:        a.Jobs,
		Reminders:   a.Reminders,
		LLM:         a.LLM,
		CORSOrigins: cfg.CORSOrigins,
	})
	return a, nil
}

func (a *App) addWorkers(ctx context.Context, cfg *config.Config) error {
	if cfg.GmailEnabled {
		switch {
		case a.DB == nil:
			log.Println("⚠️  Gmail watcher needs DATABASE_URL for its sync state, skipping")
		case a.LLM == nil:
			log.Println("⚠️  Gmail watcher needs GEMINI_API_KEY to read emails, skipping")
		default:
			client, err := auth.NewGmailService(ctx, cfg.GmailCredentialsFile, cfg.GmailTokenFile)
			if err != nil {
				return fmt.Errorf("gmail: %w", err)
			}
			log.Println("✅ Gmail Service connected successfully.")
			emails := services.NewEmailService(a.DB, cfg.GmailOwnerID, a.LLM, a.Jobs, client, cfg.GmailPollInterval)
			a.workers = append(a.workers, worker{name: "gmail watcher", run: emails.Run})
		}
	}

	if cfg.TelegramBotToken != "" {
		sender, err := services.NewTelegramSender(cfg.TelegramBotToken, cfg.TelegramChatID)
		if err != nil {
			return fmt.Errorf("telegram: %w", err)
		}
		notifier := services.NewReminderNotifier(a.Store, cfg.ReminderOwnerID, sender, cfg.ReminderCheckInterval)
		a.workers = append(a.workers, worker{name: "reminder notifier", run: notifier.Run})
	}
	return nil
}

// Start launches the background workers. They stop on Close or when ctx
// ends.
func (a *App) Start(ctx context.Context) {
	ctx, a.cancel = context.WithCancel(ctx)
	a.group, ctx = errgroup.WithContext(ctx)
	for _, w := range a.workers {
		log.Printf("🔄 Starting %s", w.name)
		a.group.Go(func() error {
			if err := w.run(ctx); err != nil {
				return fmt.Errorf("%s: %w", w.name, err)
			}
			return nil
		})
	}
}

// Close stops the workers, lets dispatched writes settle within ctx and
// releases storage.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.cancel != nil {
		a.cancel()
		if err := a.group.Wait(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := a.Mutations.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("drain writes: %w", err))
	}
	if err := a.shutdownStorage(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (a *App) shutdownStorage() error {
	a.Store.Close()
	if a.DB == nil {
		return nil
	}
	if err := database.Close(a.DB); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
