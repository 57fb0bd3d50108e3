package telegram

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/K2LinTeams/AutoCheckin-Next/internal/domain"
	"github.com/K2LinTeams/AutoCheckin-Next/internal/portal"
)

// --- Generic helpers ---

func (r *Router) sendText(chatID int64, text string) {
	if _, err := r.bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		r.log.Warn("telegram send failed", zap.Error(err))
	}
}

func (r *Router) answerCallback(id, text string) error {
	_, err := r.bot.Request(tgbotapi.NewCallback(id, text))
	return err
}

// lookup resolves the task id argument, replying on failure.
func (r *Router) lookup(ctx context.Context, chatID int64, id string) (*domain.Task, bool) {
	if id == "" {
		r.sendText(chatID, missingIDText)
		return nil, false
	}
	t, err := r.repo.GetTask(ctx, id)
	if err != nil {
		r.log.Warn("task lookup failed", zap.String("task_id", id), zap.Error(err))
		r.sendText(chatID, fmt.Sprintf(taskNotFoundFmt, id))
		return nil, false
	}
	return t, true
}

// --- Core commands ---

func (r *Router) handleStart(chatID int64) {
	msg := tgbotapi.NewMessage(chatID, startText)
	msg.ReplyMarkup = mainMenuKeyboard()
	_, _ = r.bot.Send(msg)
}

func (r *Router) handleTasks(ctx context.Context, chatID int64) {
	tasks, err := r.repo.ListTasks(ctx)
	if err != nil {
		r.log.Error("list tasks failed", zap.Error(err))
		r.sendText(chatID, "Error reading tasks.")
		return
	}
	if len(tasks) == 0 {
		r.sendText(chatID, noTasksText)
		return
	}
	msg := tgbotapi.NewMessage(chatID, formatTaskList(tasks, r.now()))
	msg.ReplyMarkup = tasksInlineKeyboard(tasks)
	_, _ = r.bot.Send(msg)
}

func (r *Router) handleToggle(ctx context.Context, chatID int64, id string, enabled bool) {
	t, ok := r.lookup(ctx, chatID, id)
	if !ok {
		return
	}
	if err := r.repo.SetEnabled(ctx, t.ID, enabled); err != nil {
		r.log.Error("set enabled failed", zap.String("task_id", t.ID), zap.Error(err))
		r.sendText(chatID, "Could not save task state.")
		return
	}
	if enabled {
		r.sendText(chatID, fmt.Sprintf(resumedFmt, t.Name))
	} else {
		r.sendText(chatID, fmt.Sprintf(pausedFmt, t.Name))
	}
}

// --- Run flow ---

func (r *Router) handleRun(ctx context.Context, chatID int64, id string) {
	t, ok := r.lookup(ctx, chatID, id)
	if !ok {
		return
	}
	started := r.background(t.ID, jobRun, func() {
		r.sendText(chatID, fmt.Sprintf(runStartedFmt, t.Name))
		outcomes, err := r.runner.RunTask(ctx, t.ID)
		if err != nil {
			r.log.Warn("manual run failed", zap.String("task_id", t.ID), zap.Error(err))
			r.sendText(chatID, fmt.Sprintf(runFailedFmt, t.Name, err))
			return
		}
		r.sendText(chatID, formatOutcomes(t.Name, outcomes))
	})
	if !started {
		r.sendText(chatID, fmt.Sprintf(busyFmt, t.Name, r.getPending(t.ID)))
	}
}

// --- Login flow ---

func (r *Router) handleLogin(ctx context.Context, chatID int64, id string) {
	t, ok := r.lookup(ctx, chatID, id)
	if !ok {
		return
	}
	started := r.background(t.ID, jobLogin, func() {
		flow, err := r.logins()
		if err != nil {
			r.log.Error("login init failed", zap.Error(err))
			r.sendText(chatID, "Could not start login.")
			return
		}
		code, err := flow.Code(ctx)
		if err != nil {
			r.log.Warn("login code failed", zap.String("task_id", t.ID), zap.Error(err))
			r.sendText(chatID, fmt.Sprintf(loginCodeFailedFmt, err))
			return
		}

		photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{Name: "login.png", Bytes: code.PNG})
		photo.Caption = fmt.Sprintf(loginCaptionFmt, t.Name, r.loginTimeout)
		if _, err := r.bot.Send(photo); err != nil {
			r.log.Error("send qr failed", zap.Error(err))
			return
		}
		r.awaitLogin(ctx, chatID, *t, flow, code.CheckURL)
	})
	if !started {
		r.sendText(chatID, fmt.Sprintf(busyFmt, t.Name, r.getPending(t.ID)))
	}
}

func (r *Router) awaitLogin(ctx context.Context, chatID int64, t domain.Task, flow LoginFlow, checkURL string) {
	sess, err := flow.Poll(ctx, checkURL, r.loginInterval, r.loginTimeout)
	switch {
	case errors.Is(err, portal.ErrLoginExpired):
		r.sendText(chatID, fmt.Sprintf(loginExpiredFmt, t.Name))
		return
	case err != nil:
		r.log.Warn("login failed", zap.String("task_id", t.ID), zap.Error(err))
		r.sendText(chatID, fmt.Sprintf(loginFailedFmt, t.Name, err))
		return
	}

	if err := r.repo.SetSession(ctx, t.ID, sess); err != nil {
		r.log.Error("store session failed", zap.String("task_id", t.ID), zap.Error(err))
		r.sendText(chatID, "Login succeeded but the session could not be saved.")
		return
	}
	bound := t.WithSession(sess)
	r.log.Info("session bound", zap.String("task_id", t.ID), zap.String("class_id", bound.ClassID))
	r.sendText(chatID, fmt.Sprintf(loginDoneFmt, t.Name, bound.ClassID))
}
