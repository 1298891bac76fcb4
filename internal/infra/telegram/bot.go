package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/domain/enums"
)

// MaxMediaGroup is the largest album Telegram accepts in one sendMediaGroup call.
const MaxMediaGroup = 10

var errNotInitialized = errors.New("telegram bot is not initialized")

type Bot struct {
	api *tgbotapi.BotAPI
	log *zap.Logger
}

type CommandUpdate struct {
	ChatID   int64
	UserID   int64
	Username string
	Name     string
	Command  string
	Args     string
}

type TextUpdate struct {
	ChatID   int64
	UserID   int64
	Username string
	Text     string
}

type CallbackUpdate struct {
	CallbackID string
	ChatID     int64
	MessageID  int
	UserID     int64
	Username   string
	Name       string
	Data       string
}

type Handlers struct {
	OnCommand  func(context.Context, CommandUpdate) error
	OnText     func(context.Context, TextUpdate) error
	OnCallback func(context.Context, CallbackUpdate) error
}

// Media is one content item to send. FileID wins over URL when both are set.
type Media struct {
	Kind    enums.MediaKind
	FileID  string
	URL     string
	Caption string
}

func NewBot(token string, log *zap.Logger) (*Bot, error) {
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("telegram bot token is empty")
	}
	if log == nil {
		log = zap.NewNop()
	}

	api, err := tgbotapi.NewBotAPI(strings.TrimSpace(token))
	if err != nil {
		return nil, fmt.Errorf("create telegram bot api: %w", err)
	}

	return &Bot{api: api, log: log}, nil
}

func (b *Bot) Username() string {
	if b == nil || b.api == nil {
		return ""
	}
	return b.api.Self.UserName
}

// Listen dispatches updates until ctx is done. Handler errors are logged and do not stop
// the loop.
func (b *Bot) Listen(ctx context.Context, pollTimeoutSec int, handlers Handlers) error {
	if b == nil || b.api == nil {
		return errNotInitialized
	}
	if pollTimeoutSec <= 0 {
		pollTimeoutSec = 30
	}

	updateCfg := tgbotapi.NewUpdate(0)
	updateCfg.Timeout = pollTimeoutSec
	updates := b.api.GetUpdatesChan(updateCfg)
	defer b.api.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if err := b.dispatch(ctx, update, handlers); err != nil {
				b.log.Error("telegram update handler failed",
					zap.Int("update_id", update.UpdateID),
					zap.Error(err),
				)
			}
		}
	}
}

func (b *Bot) dispatch(ctx context.Context, update tgbotapi.Update, handlers Handlers) error {
	if msg := update.Message; msg != nil && msg.From != nil {
		if msg.IsCommand() && handlers.OnCommand != nil {
			return handlers.OnCommand(ctx, CommandUpdate{
				ChatID:   msg.Chat.ID,
				UserID:   msg.From.ID,
				Username: msg.From.UserName,
				Name:     displayName(msg.From),
				Command:  msg.Command(),
				Args:     strings.TrimSpace(msg.CommandArguments()),
			})
		}

		text := strings.TrimSpace(msg.Text)
		if text != "" && handlers.OnText != nil {
			return handlers.OnText(ctx, TextUpdate{
				ChatID:   msg.Chat.ID,
				UserID:   msg.From.ID,
				Username: msg.From.UserName,
				Text:     text,
			})
		}
		return nil
	}

	if cb := update.CallbackQuery; cb != nil && cb.From != nil && handlers.OnCallback != nil {
		out := CallbackUpdate{
			CallbackID: cb.ID,
			UserID:     cb.From.ID,
			Username:   cb.From.UserName,
			Name:       displayName(cb.From),
			Data:       cb.Data,
		}
		if cb.Message != nil {
			out.ChatID = cb.Message.Chat.ID
			out.MessageID = cb.Message.MessageID
		}
		return handlers.OnCallback(ctx, out)
	}

	return nil
}

func (b *Bot) SendText(ctx context.Context, chatID int64, text string) (int, error) {
	return b.SendMenu(ctx, chatID, text, nil)
}

func (b *Bot) SendMenu(ctx context.Context, chatID int64, text string, rows [][]InlineButton) (int, error) {
	if b == nil || b.api == nil {
		return 0, errNotInitialized
	}
	if chatID == 0 {
		return 0, fmt.Errorf("chat id is required")
	}

	msg := tgbotapi.NewMessage(chatID, text)
	if len(rows) > 0 {
		msg.ReplyMarkup = BuildInlineKeyboard(rows)
	}
	sent, err := b.api.Send(msg)
	if err != nil {
		return 0, fmt.Errorf("send telegram message: %w", err)
	}

	_ = ctx
	return sent.MessageID, nil
}

func (b *Bot) SendPhotoBytes(ctx context.Context, chatID int64, name string, image []byte, caption string, rows [][]InlineButton) (int, error) {
	if b == nil || b.api == nil {
		return 0, errNotInitialized
	}
	if len(image) == 0 {
		return 0, fmt.Errorf("photo bytes are empty")
	}

	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{Name: name, Bytes: image})
	photo.Caption = caption
	if len(rows) > 0 {
		photo.ReplyMarkup = BuildInlineKeyboard(rows)
	}
	sent, err := b.api.Send(photo)
	if err != nil {
		return 0, fmt.Errorf("send telegram photo: %w", err)
	}

	_ = ctx
	return sent.MessageID, nil
}

// SendMedia sends one item as a single message and 2..10 items as an album. It returns the
// ids of every message Telegram created.
func (b *Bot) SendMedia(ctx context.Context, chatID int64, items []Media) ([]int, error) {
	if b == nil || b.api == nil {
		return nil, errNotInitialized
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("media batch is empty")
	}
	if len(items) > MaxMediaGroup {
		return nil, fmt.Errorf("media batch of %d exceeds %d", len(items), MaxMediaGroup)
	}

	if len(items) == 1 {
		cfg, err := singleMedia(chatID, items[0])
		if err != nil {
			return nil, err
		}
		sent, err := b.api.Send(cfg)
		if err != nil {
			return nil, fmt.Errorf("send telegram media: %w", err)
		}
		return []int{sent.MessageID}, nil
	}

	group, err := mediaGroup(chatID, items)
	if err != nil {
		return nil, err
	}
	sent, err := b.api.SendMediaGroup(group)
	if err != nil {
		return nil, fmt.Errorf("send telegram media group: %w", err)
	}

	ids := make([]int, 0, len(sent))
	for _, m := range sent {
		ids = append(ids, m.MessageID)
	}

	_ = ctx
	return ids, nil
}

func (b *Bot) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	if b == nil || b.api == nil {
		return errNotInitialized
	}
	if _, err := b.api.Request(tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
		return fmt.Errorf("delete telegram message %d: %w", messageID, err)
	}

	_ = ctx
	return nil
}

func (b *Bot) AnswerCallback(ctx context.Context, callbackID, text string) error {
	if b == nil || b.api == nil {
		return errNotInitialized
	}
	if strings.TrimSpace(callbackID) == "" {
		return nil
	}

	cfg := tgbotapi.NewCallback(callbackID, text)
	if _, err := b.api.Request(cfg); err != nil {
		return fmt.Errorf("answer callback query: %w", err)
	}

	_ = ctx
	return nil
}

func fileData(m Media) (tgbotapi.RequestFileData, error) {
	if id := strings.TrimSpace(m.FileID); id != "" {
		return tgbotapi.FileID(id), nil
	}
	if u := strings.TrimSpace(m.URL); u != "" {
		return tgbotapi.FileURL(u), nil
	}
	return nil, fmt.Errorf("media has neither file id nor url")
}

func singleMedia(chatID int64, m Media) (tgbotapi.Chattable, error) {
	file, err := fileData(m)
	if err != nil {
		return nil, err
	}
	switch m.Kind {
	case enums.MediaKindVideo:
		cfg := tgbotapi.NewVideo(chatID, file)
		cfg.Caption = m.Caption
		return cfg, nil
	case enums.MediaKindPhoto:
		cfg := tgbotapi.NewPhoto(chatID, file)
		cfg.Caption = m.Caption
		return cfg, nil
	default:
		return nil, fmt.Errorf("unsupported media kind %q", m.Kind)
	}
}

func mediaGroup(chatID int64, items []Media) (tgbotapi.MediaGroupConfig, error) {
	files := make([]interface{}, 0, len(items))
	for _, m := range items {
		file, err := fileData(m)
		if err != nil {
			return tgbotapi.MediaGroupConfig{}, err
		}
		switch m.Kind {
		case enums.MediaKindVideo:
			v := tgbotapi.NewInputMediaVideo(file)
			v.Caption = m.Caption
			files = append(files, v)
		case enums.MediaKindPhoto:
			p := tgbotapi.NewInputMediaPhoto(file)
			p.Caption = m.Caption
			files = append(files, p)
		default:
			return tgbotapi.MediaGroupConfig{}, fmt.Errorf("unsupported media kind %q", m.Kind)
		}
	}
	return tgbotapi.NewMediaGroup(chatID, files), nil
}

func displayName(u *tgbotapi.User) string {
	name := strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
	if name == "" {
		name = u.UserName
	}
	return name
}
