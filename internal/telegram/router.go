package telegram

import (
	"context"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/K2LinTeams/AutoCheckin-Next/internal/domain"
	"github.com/K2LinTeams/AutoCheckin-Next/internal/executor"
	"github.com/K2LinTeams/AutoCheckin-Next/internal/portal"
)

const (
	defaultLoginInterval = 2 * time.Second
	defaultLoginTimeout  = 3 * time.Minute
)

// Bot is the subset of *tgbotapi.BotAPI the router uses.
type Bot interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// TaskStore is the part of the configuration store the commands touch.
type TaskStore interface {
	ListTasks(ctx context.Context) ([]domain.Task, error)
	GetTask(ctx context.Context, id string) (*domain.Task, error)
	SetEnabled(ctx context.Context, id string, enabled bool) error
	SetSession(ctx context.Context, id string, s domain.Session) error
}

// Runner executes one task on demand.
type Runner interface {
	RunTask(ctx context.Context, id string) ([]executor.Outcome, error)
}

// LoginFlow is one QR login handshake. *portal.Login implements it.
type LoginFlow interface {
	Code(ctx context.Context) (portal.Code, error)
	Poll(ctx context.Context, checkURL string, interval, timeout time.Duration) (domain.Session, error)
}

// LoginFactory starts a fresh handshake.
type LoginFactory func() (LoginFlow, error)

// Router wires Telegram updates to handlers. Only the configured chat may
// issue commands.
type Router struct {
	bot    Bot
	log    *zap.Logger
	repo   TaskStore
	runner Runner
	logins LoginFactory
	chatID int64

	loginInterval time.Duration
	loginTimeout  time.Duration
	now           func() time.Time

	mu      sync.Mutex
	pending map[string]string // task id -> running job ("login" or "run")
	wg      sync.WaitGroup
}

type Option func(*Router)

// WithClock replaces time.Now for the next-run column of /tasks.
func WithClock(now func() time.Time) Option {
	return func(r *Router) { r.now = now }
}

// WithLoginTiming overrides how often and how long /login polls.
func WithLoginTiming(interval, timeout time.Duration) Option {
	return func(r *Router) {
		r.loginInterval = interval
		r.loginTimeout = timeout
	}
}

// NewRouter creates a new Telegram router.
func NewRouter(bot Bot, log *zap.Logger, repo TaskStore, runner Runner, logins LoginFactory, chatID int64, opts ...Option) *Router {
	r := &Router{
		bot:           bot,
		log:           log,
		repo:          repo,
		runner:        runner,
		logins:        logins,
		chatID:        chatID,
		loginInterval: defaultLoginInterval,
		loginTimeout:  defaultLoginTimeout,
		now:           time.Now,
		pending:       make(map[string]string),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// setPending marks a background job for a task. It reports false when one
// is already running.
func (r *Router) setPending(taskID, job string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, busy := r.pending[taskID]; busy {
		return false
	}
	r.pending[taskID] = job
	return true
}

func (r *Router) getPending(taskID string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending[taskID]
}

func (r *Router) clearPending(taskID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pending, taskID)
}

// background runs f on its own goroutine and tracks it for Wait.
func (r *Router) background(taskID, job string, f func()) bool {
	if !r.setPending(taskID, job) {
		return false
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.clearPending(taskID)
		f()
	}()
	return true
}

// Wait blocks until background logins and runs have finished.
func (r *Router) Wait() { r.wg.Wait() }

// HandleUpdate routes a single update to appropriate handler.
func (r *Router) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	if upd.Message != nil {
		msg := upd.Message
		if msg.Chat == nil {
			return
		}
		chatID := msg.Chat.ID
		if !r.allowed(chatID) {
			r.log.Warn("command from foreign chat ignored", zap.Int64("chat_id", chatID))
			return
		}
		cmd, arg := parseCommand(msg.Text)
		switch cmd {
		case "start", "help":
			r.handleStart(chatID)
		case "tasks":
			r.handleTasks(ctx, chatID)
		case "login":
			r.handleLogin(ctx, chatID, arg)
		case "run":
			r.handleRun(ctx, chatID, arg)
		case "pause":
			r.handleToggle(ctx, chatID, arg, false)
		case "resume":
			r.handleToggle(ctx, chatID, arg, true)
		case "":
			// free text
		default:
			r.sendText(chatID, unknownCommandText)
		}
		return
	}

	// Callback queries (inline buttons under /tasks)
	if upd.CallbackQuery != nil {
		cb := upd.CallbackQuery
		if cb.Message == nil || cb.Message.Chat == nil {
			return
		}
		chatID := cb.Message.Chat.ID
		if !r.allowed(chatID) {
			return
		}
		_ = r.answerCallback(cb.ID, "")

		action, id, _ := strings.Cut(cb.Data, ":")
		switch action {
		case "login":
			r.handleLogin(ctx, chatID, id)
		case "run":
			r.handleRun(ctx, chatID, id)
		case "pause":
			r.handleToggle(ctx, chatID, id, false)
		case "resume":
			r.handleToggle(ctx, chatID, id, true)
		default:
			// stale or foreign button
		}
	}
}

func (r *Router) allowed(chatID int64) bool {
	return r.chatID != 0 && chatID == r.chatID
}

// parseCommand splits "/run@somebot abc" into ("run", "abc"). Text that is
// not a command yields an empty name.
func parseCommand(text string) (cmd, arg string) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", ""
	}
	head, rest, _ := strings.Cut(text[1:], " ")
	head, _, _ = strings.Cut(head, "@")
	return strings.ToLower(head), strings.TrimSpace(rest)
}

// SendMessage sends a plain text message to the given chat.
// This makes Router satisfy notify.Sender.
func (r *Router) SendMessage(chatID int64, text string) error {
	_, err := r.bot.Send(tgbotapi.NewMessage(chatID, text))
	return err
}
