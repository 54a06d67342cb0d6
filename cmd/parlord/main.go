package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/parlorchat/parlor"
	"github.com/parlorchat/parlor/dispatch"
	"github.com/parlorchat/parlor/fanout"
	"github.com/parlorchat/parlor/internal/config"
	"github.com/parlorchat/parlor/internal/server"
	"github.com/parlorchat/parlor/memory"
	"github.com/parlorchat/parlor/provider/openaicompat"
	"github.com/parlorchat/parlor/realtime"
	"github.com/parlorchat/parlor/store/sqlite"
	"github.com/parlorchat/parlor/strategy/builtin"
	"github.com/parlorchat/parlor/strategy/managedllm"
	"github.com/parlorchat/parlor/strategy/webhook"
	"github.com/parlorchat/parlor/tools/fetch"
	"github.com/parlorchat/parlor/tools/search"
)

func main() {
	cfg := config.Load(os.Getenv("PARLOR_CONFIG"))
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("parlord exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	store := sqlite.New(cfg.Database.Path, sqlite.WithLogger(logger))
	defer store.Close()
	if err := store.Init(ctx); err != nil {
		return err
	}

	if cfg.Secrets.MasterKey == "" {
		logger.Warn("secrets.master_key is empty; stored API keys use an insecure development key")
		cfg.Secrets.MasterKey = "parlor-dev-only"
	}
	cipher := parlor.NewAESCipher(cfg.Secrets.MasterKey)

	// Stream fan-out plumbing: durable queue for lifecycle events, lossy
	// pub/sub for chunks, relayed into the websocket hub and the SSE bus.
	queue := fanout.NewMemoryQueue(1024, fanout.WithQueueLogger(logger))
	pubsub := fanout.NewMemoryPubSub()
	emitter := fanout.NewEmitter(queue, pubsub, fanout.WithEmitterLogger(logger))
	hub := realtime.NewHub(realtime.WithLogger(logger))
	bus := fanout.NewBus()
	relay := fanout.NewRelay(queue, pubsub, hub, bus, fanout.WithRelayLogger(logger))

	// Tool registry shared by managed bots, filtered per bot/binding.
	registry := parlor.NewToolRegistry()
	registry.Add(fetch.New())
	if cfg.Search.BraveAPIKey != "" {
		registry.Add(search.New(cfg.Search.BraveAPIKey))
	}

	// Shared summarizer for channel memory, if configured.
	var memOpts []memory.Option
	memOpts = append(memOpts, memory.WithLogger(logger), memory.WithWindowSize(cfg.Dispatch.WindowSize))
	if cfg.Summarize.APIKey != "" && cfg.Summarize.Model != "" {
		baseURL := cfg.Summarize.BaseURL
		if baseURL == "" {
			baseURL = "https://api.openai.com/v1"
		}
		summarizer := parlor.WithRetry(
			openaicompat.NewProvider(cfg.Summarize.APIKey, cfg.Summarize.Model, baseURL,
				openaicompat.WithName(cfg.Summarize.Provider)),
			parlor.RetryLogger(logger))
		memOpts = append(memOpts, memory.WithSummarizer(summarizer))
	}
	mem := memory.NewManager(store, store, memOpts...)

	// Builtin templates. The reminder delivery callback posts through the
	// message store so fired reminders look like any other bot message.
	reminder := builtin.NewReminder(func(botID, channelID, userID, text string) {
		dctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		bot, ok, err := store.GetBot(dctx, botID)
		if err != nil || !ok {
			logger.Warn("reminder delivery: bot lookup failed", "bot_id", botID, "error", err)
			return
		}
		msg := parlor.Message{
			ID:        parlor.NewID(),
			GuildID:   bot.GuildID,
			ChannelID: channelID,
			Sender:    parlor.Sender{ID: bot.UserID, Name: bot.DisplayName, IsBot: true},
			Content:   text,
			CreatedAt: parlor.NowUnix(),
		}
		if err := store.CreateMessage(dctx, msg); err != nil {
			logger.Warn("reminder delivery failed", "bot_id", botID, "error", err)
		}
	})
	defer reminder.Stop()

	runner := dispatch.NewRunner(logger,
		webhook.New(store, emitter, webhook.WithLogger(logger)),
		builtin.New(store, []builtin.Template{
			builtin.AutoResponder{},
			builtin.Eightball{},
			reminder,
		}, builtin.WithLogger(logger)),
		managedllm.New(store, emitter, mem, registry, cipher, managedllm.WithLogger(logger)),
	)

	orch := dispatch.NewOrchestrator(store, store, runner,
		dispatch.WithWindowSize(cfg.Dispatch.WindowSize),
		dispatch.WithLogger(logger))

	srv := server.New(store, orch, hub, bus, server.WithLogger(logger))
	httpServer := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := relay.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("parlord listening", "addr", cfg.Server.ListenAddr)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutCtx); err != nil {
			return err
		}
		// Let in-flight bot dispatches finish before the store closes.
		return orch.Drain(shutCtx)
	})

	return g.Wait()
}
