package services

import (
	"context"
	"fmt"
	"html"
	"log"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/justsurfingit/jobpilot/internal/livequery"
	"github.com/justsurfingit/jobpilot/internal/models"
)

// Sender delivers one chat message.
type Sender interface {
	Send(text string) error
}

type TelegramSender struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

func NewTelegramSender(token string, chatID int64) (*TelegramSender, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to init telegram bot: %w", err)
	}
	return &TelegramSender{bot: bot, chatID: chatID}, nil
}

func (t *TelegramSender) Send(text string) error {
	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	_, err := t.bot.Send(msg)
	return err
}

// ReminderNotifier sends each of the owner's reminders to a chat on the
// day it is due, once.
type ReminderNotifier struct {
	Source   livequery.Source
	Owner    string
	Sender   Sender
	Interval time.Duration
	now      func() time.Time

	reminders *livequery.Binding[models.Reminder]
	changed   chan struct{}

	mu   sync.Mutex
	sent map[string]models.Date
}

func NewReminderNotifier(src livequery.Source, owner string, sender Sender, interval time.Duration) *ReminderNotifier {
	return &ReminderNotifier{
		Source:   src,
		Owner:    owner,
		Sender:   sender,
		Interval: interval,
		now:      time.Now,
		changed:  make(chan struct{}, 1),
		sent:     make(map[string]models.Date),
	}
}

// Run checks for due reminders on every tick and whenever the reminders
// change, until ctx ends.
func (n *ReminderNotifier) Run(ctx context.Context) error {
	n.watch()
	defer n.reminders.Close()

	ticker := time.NewTicker(n.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case <-n.changed:
		}
		if sent := n.CheckDue(); sent > 0 {
			log.Printf("⏰ Sent %d reminder(s) for %s", sent, n.Owner)
		}
	}
}

func (n *ReminderNotifier) watch() {
	n.reminders = livequery.New(n.Source, DecodeReminder, func(livequery.State[models.Reminder]) {
		select {
		case n.changed <- struct{}{}:
		default:
		}
	})
	n.reminders.SetDescriptor(RemindersDescriptor(n.Owner))
}

// CheckDue sends the reminders dated today that have not been sent yet
// and returns how many went out.
func (n *ReminderNotifier) CheckDue() int {
	st := n.reminders.State()
	if st.IsLoading {
		return 0
	}
	if st.Err != nil {
		log.Printf("⚠️ Reminder subscription failed: %v", st.Err)
		return 0
	}

	today := models.NewDate(n.now())
	n.mu.Lock()
	defer n.mu.Unlock()
	for id, day := range n.sent {
		if day != today {
			delete(n.sent, id)
		}
	}

	count := 0
	for _, r := range st.Data {
		if r.Date != today || n.sent[r.ID] == today {
			continue
		}
		if err := n.Sender.Send(formatReminder(r)); err != nil {
			log.Printf("❌ Could not send reminder %s: %v", r.ID, err)
			continue
		}
		n.sent[r.ID] = today
		count++
	}
	return count
}

func formatReminder(r models.Reminder) string {
	return fmt.Sprintf("⏰ <b>%s</b>\n🏢 %s\n💼 %s\n📅 %s",
		html.EscapeString(r.Title),
		html.EscapeString(r.JobCompany),
		html.EscapeString(r.JobRole),
		r.Date,
	)
}
