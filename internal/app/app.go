package app

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/slack-go/slack"

	"floorbot/internal/analysis"
	"floorbot/internal/classify"
	"floorbot/internal/config"
	"floorbot/internal/directory"
	"floorbot/internal/httpx"
	"floorbot/internal/intake"
	"floorbot/internal/integrations/llm"
	slackbot "floorbot/internal/integrations/slack"
	"floorbot/internal/metrics"
	"floorbot/internal/notify"
	"floorbot/internal/patternwatch"
	"floorbot/internal/pipeline"
	"floorbot/internal/storage/sqlite"
)

func Main() {
	cfg := config.LoadConfig()
	appliedHTTPTimeout := httpx.ConfigureExternalHTTPClient(cfg.ExternalHTTPTimeoutSecs)
	log.Printf(
		"Config loaded. Company=%s Provider=%s Timezone=%s KeywordRules=%s Directory=%s ChannelDepartments=%d PatternSchedule=%q ExternalHTTPTimeout=%s",
		cfg.CompanyID,
		cfg.LLMProvider,
		cfg.Timezone,
		cfg.KeywordRulesPath,
		directoryKind(cfg),
		len(cfg.ChannelDepartments),
		cfg.PatternScanSchedule,
		appliedHTTPTimeout,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to init database: %v", err)
	}
	log.Printf("Database initialized at %s", cfg.DBPath)
	defer store.Close()

	var dir directory.Directory = store
	if cfg.DirectoryConfigured() {
		pg, err := directory.NewPostgresDirectory(ctx, cfg.DirectoryDSN)
		if err != nil {
			log.Fatalf("Failed to connect to directory: %v", err)
		}
		defer pg.Close()
		dir = pg
	}

	var extraRules []classify.Rule
	if cfg.KeywordRulesPath != "" {
		extraRules, err = classify.LoadKeywordRules(cfg.KeywordRulesPath)
		if err != nil {
			log.Fatalf("Failed to load keyword rules: %v", err)
		}
		log.Printf("Loaded %d keyword rules from %s", len(extraRules), cfg.KeywordRulesPath)
	}

	api := slack.New(
		cfg.SlackBotToken,
		slack.OptionAppLevelToken(cfg.SlackAppToken),
	)

	completer := llm.NewFromConfig(cfg)
	notifier := notify.NewNotifier(directory.NewResolver(dir), slackbot.NewGateway(api))
	orch := pipeline.New(pipeline.Deps{
		EventType: classify.NewEventTypeClassifier(completer, extraRules),
		Severity:  classify.NewSeverityClassifier(completer),
		Extractor: classify.NewFieldExtractor(completer),
		Internal:  llm.NewInternalAnswerer(completer),
		Market:    llm.NewMarketAnswerer(completer),
		Store:     store,
		Tracker:   intake.NewTracker(store),
		Notifier:  notifier,
		Trend:     analysis.NewTrendEvaluator(store),
		Patterns:  analysis.NewPatternDetector(store),
	})

	startMetricsServer(ctx, cfg.MetricsAddr)
	patternwatch.Start(ctx, cfg.PatternScanSchedule, cfg.Location,
		patternwatch.NewWatcher(orch, notifier, cfg.CompanyID, cfg.PatternWindowHours, cfg.PatternMinFailures))

	log.Println("Starting floor operations bot...")
	if err := slackbot.NewBot(api, orch, cfg.CompanyID).WithChannelDepartments(cfg.ChannelDepartments).Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Slack bot error: %v", err)
	}
}

func directoryKind(cfg config.Config) string {
	if cfg.DirectoryConfigured() {
		return "postgres"
	}
	return "sqlite"
}

func startMetricsServer(ctx context.Context, addr string) {
	if addr == "" {
		log.Println("Metrics endpoint disabled (metrics_addr not set)")
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log.Printf("Metrics listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("Metrics server error: %v", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}
