package bot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/phd59fr/mailbridge/internal/dispatch"
	"github.com/phd59fr/mailbridge/internal/logging"
	"github.com/phd59fr/mailbridge/internal/models"
	"github.com/phd59fr/mailbridge/internal/store"
	"github.com/phd59fr/mailbridge/internal/watcher"
)

const readCallbackPrefix = "read_"

// Bot is the notification-surface collaborator: it sends email
// notifications to subscribed groups, serves the subscription commands and
// feeds acknowledgment button presses to the arbiter.
type Bot struct {
	api     *tgbotapi.BotAPI
	store   *store.Store
	arbiter *dispatch.Arbiter
	status  func() []watcher.AccountStatus
}

// New authenticates against the Telegram Bot API.
func New(token string, st *store.Store, arbiter *dispatch.Arbiter, status func() []watcher.AccountStatus) (*Bot, error) {
	api, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, &http.Client{Timeout: 30 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("telegram authentication error: %w", err)
	}

	logging.Log.Infof("Authorized on Telegram account %s", api.Self.UserName)

	return &Bot{
		api:     api,
		store:   st,
		arbiter: arbiter,
		status:  status,
	}, nil
}

// Send implements dispatch.Notifier: it posts one notification with a
// "Read" acknowledgment button and returns the Telegram message id as the
// delivery identifier. A missing or forbidden chat is reported as
// dispatch.ErrDestinationGone.
func (b *Bot) Send(ctx context.Context, chatID int64, email *models.Email) (int64, error) {
	msg := tgbotapi.NewMessage(chatID, RenderEmail(email))
	msg.ParseMode = tgbotapi.ModeMarkdownV2
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Read ✅", readCallbackPrefix+"email"),
		),
	)

	sent, err := b.api.Send(msg)
	if err != nil {
		return 0, classifySendError(err)
	}

	return int64(sent.MessageID), nil
}

// classifySendError separates "this chat is permanently unreachable" from
// transient send failures.
func classifySendError(err error) error {
	var tgErr *tgbotapi.Error
	if errors.As(err, &tgErr) {
		if tgErr.Code == 403 || strings.Contains(strings.ToLower(tgErr.Message), "chat not found") {
			return fmt.Errorf("%w: %s", dispatch.ErrDestinationGone, tgErr.Message)
		}
	}
	return err
}

// Run serves inbound commands and acknowledgment callbacks until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := b.api.GetUpdatesChan(u)

	logging.Log.Info("Telegram bot started")

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			logging.Log.Info("Telegram bot stopped")
			return

		case update, ok := <-updates:
			if !ok {
				return
			}
			switch {
			case update.CallbackQuery != nil:
				b.handleCallback(ctx, update.CallbackQuery)
			case update.Message != nil && update.Message.IsCommand():
				b.handleCommand(ctx, update.Message)
			}
		}
	}
}

// handleCommand serves the subscription command surface. Commands only
// work in groups, matching the notification fan-out model.
func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	chat := msg.Chat
	if !chat.IsGroup() && !chat.IsSuperGroup() {
		b.reply(chat.ID, "This bot only works in groups!")
		return
	}

	switch msg.Command() {
	case "start":
		b.startCommand(ctx, chat)
	case "subscribe":
		b.subscribeCommand(ctx, msg)
	case "unsubscribe":
		b.unsubscribeCommand(ctx, chat)
	case "filter":
		b.filterCommand(ctx, msg)
	case "status":
		b.statusCommand(ctx, chat)
	case "help":
		b.helpCommand(chat)
	}
}

func (b *Bot) startCommand(ctx context.Context, chat *tgbotapi.Chat) {
	if _, err := b.store.DestinationByChatID(ctx, chat.ID); err != nil {
		b.reply(chat.ID, "👋 Welcome to Email Notifier Bot!\n\n"+
			"This group is not subscribed to notifications.\n"+
			"Use /subscribe to start receiving them.")
		return
	}

	stats, err := b.store.GroupStats(ctx, chat.ID)
	if err != nil {
		logging.Log.Errorf("Error reading group stats: %v", err)
		b.reply(chat.ID, "❌ Something went wrong, try again later.")
		return
	}

	b.reply(chat.ID, fmt.Sprintf(
		"👋 Welcome to Email Notifier Bot!\n\n"+
			"📊 Group stats:\n"+
			"• Notifications: %d\n"+
			"• Handled: %d\n"+
			"• Pending: %d\n\n"+
			"Commands:\n"+
			"/subscribe - subscribe to notifications\n"+
			"/unsubscribe - unsubscribe\n"+
			"/filter label1,label2 - filter by account\n"+
			"/status - statistics",
		stats.Total, stats.Handled, stats.Pending,
	))
}

func (b *Bot) subscribeCommand(ctx context.Context, msg *tgbotapi.Message) {
	chat := msg.Chat
	title := chat.Title
	if title == "" {
		title = "Unknown Group"
	}

	var userID int64
	if msg.From != nil {
		userID = msg.From.ID
	}

	if err := b.store.Subscribe(ctx, chat.ID, title, userID); err != nil {
		logging.Log.Errorf("Error subscribing chat %d: %v", chat.ID, err)
		b.reply(chat.ID, "❌ Error subscribing this group.")
		return
	}

	b.reply(chat.ID, fmt.Sprintf(
		"✅ Group %q subscribed to notifications!\n\n"+
			"You will now receive mail from all accounts.\n"+
			"Use /filter to narrow it down.", title))
}

func (b *Bot) unsubscribeCommand(ctx context.Context, chat *tgbotapi.Chat) {
	removed, err := b.store.Unsubscribe(ctx, chat.ID)
	if err != nil {
		logging.Log.Errorf("Error unsubscribing chat %d: %v", chat.ID, err)
		b.reply(chat.ID, "❌ Error unsubscribing this group.")
		return
	}

	if removed {
		b.reply(chat.ID, "✅ Group unsubscribed from notifications.")
	} else {
		b.reply(chat.ID, "❌ This group was not subscribed.")
	}
}

func (b *Bot) filterCommand(ctx context.Context, msg *tgbotapi.Message) {
	chat := msg.Chat

	dest, err := b.store.DestinationByChatID(ctx, chat.ID)
	if err != nil {
		b.reply(chat.ID, "❌ This group is not subscribed. Use /subscribe first.")
		return
	}

	args := strings.TrimSpace(msg.CommandArguments())
	if args == "" {
		current := dest.FilterLabels()
		var text string
		if len(current) > 0 {
			text = fmt.Sprintf("🔍 Current filter: %s\n\n", strings.Join(current, ", "))
		} else {
			text = "🔍 No filter set (receiving from all accounts)\n\n"
		}
		text += "Usage:\n/filter label1,label2 - set filter\n/filter clear - clear filter"
		b.reply(chat.ID, text)
		return
	}

	if strings.EqualFold(args, "clear") {
		if _, err := b.store.SetFilter(ctx, chat.ID, nil); err != nil {
			logging.Log.Errorf("Error clearing filter for chat %d: %v", chat.ID, err)
			b.reply(chat.ID, "❌ Error clearing the filter.")
			return
		}
		b.reply(chat.ID, "✅ Filter cleared. Receiving notifications from all accounts.")
		return
	}

	var labels []string
	for _, label := range strings.Split(args, ",") {
		if label = strings.TrimSpace(label); label != "" {
			labels = append(labels, label)
		}
	}

	if _, err := b.store.SetFilter(ctx, chat.ID, labels); err != nil {
		logging.Log.Errorf("Error setting filter for chat %d: %v", chat.ID, err)
		b.reply(chat.ID, "❌ Error setting the filter.")
		return
	}

	b.reply(chat.ID, fmt.Sprintf("✅ Filter set: %s\n\nOnly these accounts will be forwarded here.",
		strings.Join(labels, ", ")))
}

func (b *Bot) statusCommand(ctx context.Context, chat *tgbotapi.Chat) {
	dest, err := b.store.DestinationByChatID(ctx, chat.ID)
	if err != nil {
		b.reply(chat.ID, "❌ This group is not subscribed. Use /subscribe first.")
		return
	}

	stats, err := b.store.GroupStats(ctx, chat.ID)
	if err != nil {
		logging.Log.Errorf("Error reading group stats: %v", err)
		b.reply(chat.ID, "❌ Something went wrong, try again later.")
		return
	}

	overall, err := b.store.OverallStats(ctx)
	if err != nil {
		logging.Log.Errorf("Error reading overall stats: %v", err)
		b.reply(chat.ID, "❌ Something went wrong, try again later.")
		return
	}

	filterText := "all accounts"
	if labels := dest.FilterLabels(); len(labels) > 0 {
		filterText = strings.Join(labels, ", ")
	}

	var accounts strings.Builder
	connected := 0
	statuses := b.status()
	for _, st := range statuses {
		state := "offline"
		if st.Connected {
			state = "online"
			connected++
		}
		fmt.Fprintf(&accounts, "• %s: %s\n", st.Label, state)
	}

	b.reply(chat.ID, fmt.Sprintf(
		"📊 Group status\n\n"+
			"📬 Group: %s\n"+
			"🔍 Filter: %s\n\n"+
			"Notifications here:\n"+
			"• Total: %d\n"+
			"• Handled: %d\n"+
			"• Pending: %d\n\n"+
			"Overall:\n"+
			"• Accounts watched: %d (%d online)\n%s"+
			"• Active groups: %d\n"+
			"• Messages seen: %d",
		dest.Title, filterText,
		stats.Total, stats.Handled, stats.Pending,
		len(statuses), connected, accounts.String(),
		overall.ActiveDestinations, overall.Messages,
	))
}

func (b *Bot) helpCommand(chat *tgbotapi.Chat) {
	b.reply(chat.ID, "🤖 Email Notifier Bot\n\n"+
		"Commands:\n"+
		"/subscribe - subscribe this group to notifications\n"+
		"/unsubscribe - unsubscribe this group\n"+
		"/filter label1,label2 - only receive mail from these accounts\n"+
		"/filter clear - receive from all accounts\n"+
		"/status - show statistics\n"+
		"/help - this message\n\n"+
		"Press 'Read ✅' under a notification to mark it handled for everyone.")
}

// handleCallback resolves a "Read" button press through the arbiter. The
// acting user always gets a definitive answer: handled, already handled,
// or a generic failure.
func (b *Bot) handleCallback(ctx context.Context, query *tgbotapi.CallbackQuery) {
	if !strings.HasPrefix(query.Data, readCallbackPrefix) || query.Message == nil {
		return
	}

	deliveryID := int64(query.Message.MessageID)
	actor := query.From.ID

	outcome, err := b.arbiter.Acknowledge(ctx, deliveryID, actor)
	if err != nil {
		logging.Log.Errorf("Error acknowledging delivery %d: %v", deliveryID, err)
		b.answer(tgbotapi.NewCallbackWithAlert(query.ID, "❌ Something went wrong, try again."))
		return
	}

	switch outcome {
	case dispatch.OutcomeHandled:
		del := tgbotapi.NewDeleteMessage(query.Message.Chat.ID, query.Message.MessageID)
		if _, err := b.api.Request(del); err != nil {
			logging.Log.Errorf("Error deleting message %d: %v", query.Message.MessageID, err)
		}
		b.answer(tgbotapi.NewCallback(query.ID, "✅ Email marked as handled"))

	case dispatch.OutcomeAlreadyHandled:
		b.answer(tgbotapi.NewCallbackWithAlert(query.ID, "⚠️ This email was already handled"))

	default:
		b.answer(tgbotapi.NewCallbackWithAlert(query.ID, "❌ Unknown notification"))
	}
}

func (b *Bot) reply(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		logging.Log.Errorf("Error replying to chat %d: %v", chatID, err)
	}
}

func (b *Bot) answer(callback tgbotapi.CallbackConfig) {
	if _, err := b.api.Request(callback); err != nil {
		logging.Log.Errorf("Error answering callback: %v", err)
	}
}
