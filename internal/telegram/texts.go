package telegram

import (
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/K2LinTeams/AutoCheckin-Next/internal/domain"
	"github.com/K2LinTeams/AutoCheckin-Next/internal/executor"
)

// Background job kinds, shown when a task is busy.
const (
	jobLogin = "login"
	jobRun   = "run"
)

// UI texts in English
const (
	startText = "👋 I am the AutoCheckin bot.\n\n" +
		"I submit course check-ins at each task's time and report the result here.\n\n" +
		"/tasks — list tasks\n" +
		"/login <task-id> — scan a QR code to refresh a task's session\n" +
		"/run <task-id> — check in now\n" +
		"/pause <task-id>, /resume <task-id> — toggle a task"
	noTasksText        = "No tasks yet. Add one with `autocheckin task add`."
	unknownCommandText = "Unknown command. Try /start."
	missingIDText      = "Please pass a task id, e.g. /run 3f2a…"

	taskNotFoundFmt    = "Task %s not found."
	pausedFmt          = "⏸ %s paused."
	resumedFmt         = "✅ %s resumed."
	busyFmt            = "%s is busy (%s in progress)."
	runStartedFmt      = "▶️ Running %s…"
	runFailedFmt       = "❌ %s: %v"
	loginCaptionFmt    = "Scan with WeChat to log in %s. The code expires in %s."
	loginCodeFailedFmt = "Could not fetch a login code: %v"
	loginExpiredFmt    = "⌛ Login for %s expired. Send /login again."
	loginFailedFmt     = "❌ Login for %s failed: %v"
	loginDoneFmt       = "✅ %s logged in (class %s)."
)

// mainMenuKeyboard builds the reply keyboard shown after /start.
func mainMenuKeyboard() tgbotapi.ReplyKeyboardMarkup {
	return tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton("/tasks"),
			tgbotapi.NewKeyboardButton("/start"),
		),
	)
}

// tasksInlineKeyboard adds one row of actions per task. Callback data is
// "<action>:<task id>".
func tasksInlineKeyboard(tasks []domain.Task) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(tasks))
	for _, t := range tasks {
		toggle := tgbotapi.NewInlineKeyboardButtonData("⏸ "+t.Name, "pause:"+t.ID)
		if !t.Enabled {
			toggle = tgbotapi.NewInlineKeyboardButtonData("▶️ "+t.Name, "resume:"+t.ID)
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Run", "run:"+t.ID),
			tgbotapi.NewInlineKeyboardButtonData("Login", "login:"+t.ID),
			toggle,
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func formatTaskList(tasks []domain.Task, now time.Time) string {
	var b strings.Builder
	b.WriteString("🧾 Tasks:\n")
	for _, t := range tasks {
		state := "✅"
		if !t.Enabled {
			state = "⏸"
		}
		session := "bound"
		if t.Cookie == "" {
			session = "missing"
		}
		next := "—"
		if t.Enabled {
			if at, ok := domain.NextRun(now, t); ok {
				next = at.Format("2006-01-02 15:04")
			}
		}
		fmt.Fprintf(&b, "\n%s %s\n• id: %s\n• time: %s, class %s\n• session: %s\n• next: %s\n",
			state, t.Name, t.ID, t.Time, t.ClassID, session, next)
	}
	return b.String()
}

func formatOutcomes(name string, outcomes []executor.Outcome) string {
	if len(outcomes) == 0 {
		return fmt.Sprintf("%s: no open check-ins.", name)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %d check-in(s)\n", name, len(outcomes))
	for _, o := range outcomes {
		mark := "✅"
		if !o.Success {
			mark = "❌"
		}
		fmt.Fprintf(&b, "%s #%s %s (Loc: %s,%s)\n", mark, o.OpportunityID, o.Message, o.Coord.Lat, o.Coord.Lng)
	}
	return strings.TrimRight(b.String(), "\n")
}
