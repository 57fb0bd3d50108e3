package notify

import "context"

// Sender is the minimal chat capability the Telegram channel needs.
// telegram.Router implements it.
type Sender interface {
	SendMessage(chatID int64, text string) error
}

// Telegram posts messages to one chat.
type Telegram struct {
	sender Sender
	chatID int64
}

func NewTelegram(sender Sender, chatID int64) *Telegram {
	return &Telegram{sender: sender, chatID: chatID}
}

func (t *Telegram) Notify(_ context.Context, title, content string) error {
	return t.sender.SendMessage(t.chatID, title+"\n\n"+content)
}
