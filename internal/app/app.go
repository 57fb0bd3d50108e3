package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/K2LinTeams/AutoCheckin-Next/internal/config"
	"github.com/K2LinTeams/AutoCheckin-Next/internal/domain"
	"github.com/K2LinTeams/AutoCheckin-Next/internal/executor"
	"github.com/K2LinTeams/AutoCheckin-Next/internal/notify"
	"github.com/K2LinTeams/AutoCheckin-Next/internal/portal"
	"github.com/K2LinTeams/AutoCheckin-Next/internal/scheduler"
	"github.com/K2LinTeams/AutoCheckin-Next/internal/store"
	"github.com/K2LinTeams/AutoCheckin-Next/internal/telegram"
)

// ErrTaskDisabled is returned when a paused task is run on demand.
var ErrTaskDisabled = errors.New("task is paused")

// App owns the store and the check-in pipeline. The Telegram bot and the
// health endpoint only exist while Serve runs.
type App struct {
	cfg     config.Config
	log     *zap.Logger
	repo    store.Repo
	portal  *portal.Client
	exec    *executor.Executor
	wecom   *http.Client
	router  *telegram.Router
	httpSrv *http.Server
}

// New opens the configuration store and builds the check-in pipeline.
func New(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	repo, err := store.OpenSQLite(ctx, cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	log.Debug("sqlite ready", zap.String("path", cfg.DBPath))

	client := portal.NewClient(endpoints(cfg),
		portal.WithTimeout(cfg.HTTPTimeout),
		portal.WithLogger(log.Named("portal")),
	)
	return &App{
		cfg:    cfg,
		log:    log,
		repo:   repo,
		portal: client,
		exec:   executor.New(client, log.Named("executor")),
		wecom:  &http.Client{Timeout: cfg.HTTPTimeout},
	}, nil
}

// Repo exposes the configuration store to the CLI.
func (a *App) Repo() store.Repo { return a.repo }

func (a *App) Close() error { return a.repo.Close() }

// NewLogin starts a fresh QR login handshake against the configured portal.
func (a *App) NewLogin() (*portal.Login, error) {
	return portal.NewLogin(endpoints(a.cfg),
		portal.WithTimeout(a.cfg.HTTPTimeout),
		portal.WithLogger(a.log.Named("login")),
	)
}

// Notifier builds the channels for one notifier snapshot. Telegram is only
// included while the bot is running.
func (a *App) Notifier(cfg domain.NotifierConfig) notify.Notifier {
	var channels notify.Multi
	if w := notify.NewWeCom(cfg, notify.WithBaseURL(a.cfg.WeComAPIURL), notify.WithHTTPClient(a.wecom)); w.Enabled() {
		channels = append(channels, w)
	}
	if a.router != nil && a.cfg.TelegramChatID != 0 {
		channels = append(channels, notify.NewTelegram(a.router, a.cfg.TelegramChatID))
	}
	return channels
}

// RunTask executes one task now, regardless of its trigger time.
func (a *App) RunTask(ctx context.Context, id string) ([]executor.Outcome, error) {
	snap, err := a.repo.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	for _, t := range snap.Tasks {
		if t.ID != id {
			continue
		}
		if !t.Enabled {
			return nil, ErrTaskDisabled
		}
		return a.exec.Execute(ctx, t, a.Notifier(snap.Notifier)), nil
	}
	return nil, store.ErrTaskNotFound
}

// Serve runs the scheduler, the health endpoint and, when configured, the
// Telegram bot until ctx is canceled or a termination signal arrives.
func (a *App) Serve(ctx context.Context) error {
	a.log.Info("starting autocheckin",
		zap.String("http", a.cfg.HTTPAddr),
		zap.Duration("tick", a.cfg.TickInterval),
		zap.Bool("telegram", a.cfg.TelegramEnabled()),
	)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var updCh tgbotapi.UpdatesChannel
	if a.cfg.TelegramEnabled() {
		bot, err := tgbotapi.NewBotAPI(a.cfg.TelegramToken)
		if err != nil {
			return fmt.Errorf("telegram: %w", err)
		}
		bot.Debug = false
		a.router = telegram.NewRouter(bot, a.log.Named("telegram"), a.repo, a, a.loginFlow, a.cfg.TelegramChatID)

		u := tgbotapi.NewUpdate(0)
		u.Timeout = 30
		updCh = bot.GetUpdatesChan(u)
		defer bot.StopReceivingUpdates()
	}

	a.httpSrv = newHealthServer(a.cfg.HTTPAddr)
	go func() {
		if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("http server error", zap.Error(err))
		}
	}()

	sched := scheduler.New(a.repo, a.exec, a.Notifier, a.log.Named("scheduler"),
		scheduler.WithInterval(a.cfg.TickInterval),
	)
	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		sched.Run(ctx)
	}()

	for {
		select {
		case <-ctx.Done():
			a.log.Info("shutdown signal received")

			shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := a.httpSrv.Shutdown(shCtx)
			cancel()
			if err != nil {
				a.log.Warn("http server shutdown error", zap.Error(err))
			}

			<-schedDone
			if a.router != nil {
				a.router.Wait()
			}
			return nil

		case upd := <-updCh:
			a.router.HandleUpdate(ctx, upd)
		}
	}
}

// endpoints returns the portal URLs configured for this process.
func endpoints(cfg config.Config) portal.Endpoints {
	return portal.Endpoints{
		BaseURL:      cfg.PortalBaseURL,
		LoginURL:     cfg.LoginURL,
		LoginLinkURL: cfg.LoginLinkURL,
		LoginHost:    cfg.LoginHost,
		UIDLoginURL:  cfg.UIDLoginURL,
	}
}

func (a *App) loginFlow() (telegram.LoginFlow, error) {
	l, err := a.NewLogin()
	if err != nil {
		return nil, err
	}
	return l, nil
}

func newHealthServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	return &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}
