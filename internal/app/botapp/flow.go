package botapp

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/domain/enums"
	"github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/domain/model"
	tginfra "github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/infra/telegram"
	pgrepo "github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/repo/postgres"
	paymentsvc "github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/services/payments"
	"github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/services/rate"
)

// Step is a screen of the purchase conversation. Callback data encodes the step to render
// next, so the flow keeps no per-chat state.
type Step string

const (
	StepMenu     Step = "menu"
	StepModels   Step = "models"
	StepGallery  Step = "gallery"
	StepKind     Step = "kind"
	StepProduct  Step = "product"
	StepCheckout Step = "checkout"
	StepPaid     Step = "paid"
	StepUnknown  Step = "unknown"
)

const (
	startPayloadPrefix = "model_"
	modelsPageSize     = 20
	galleryLimit       = tginfra.MaxMediaGroup
)

var ErrInvalidCallback = errors.New("invalid callback data")

// Action is a parsed callback payload.
type Action struct {
	Step          Step
	ModelID       int64
	ProductID     int64
	ProductType   enums.ProductType
	TransactionID string
}

// Data renders the callback payload ParseCallback reads back.
func (a Action) Data() string {
	switch a.Step {
	case StepGallery:
		return fmt.Sprintf("%s:%d", a.Step, a.ModelID)
	case StepKind:
		return fmt.Sprintf("%s:%d:%s", a.Step, a.ModelID, a.ProductType)
	case StepProduct, StepCheckout:
		return fmt.Sprintf("%s:%d", a.Step, a.ProductID)
	case StepPaid:
		return fmt.Sprintf("%s:%s", a.Step, a.TransactionID)
	default:
		return string(a.Step)
	}
}

func ParseCallback(data string) (Action, error) {
	parts := strings.Split(strings.TrimSpace(data), ":")
	step := Step(parts[0])
	args := parts[1:]

	switch step {
	case StepMenu, StepModels:
		if len(args) != 0 {
			return Action{Step: StepUnknown}, ErrInvalidCallback
		}
		return Action{Step: step}, nil
	case StepGallery:
		if len(args) != 1 {
			return Action{Step: StepUnknown}, ErrInvalidCallback
		}
		id, err := parseID(args[0])
		if err != nil {
			return Action{Step: StepUnknown}, err
		}
		return Action{Step: step, ModelID: id}, nil
	case StepKind:
		if len(args) != 2 {
			return Action{Step: StepUnknown}, ErrInvalidCallback
		}
		id, err := parseID(args[0])
		if err != nil {
			return Action{Step: StepUnknown}, err
		}
		productType, ok := enums.ParseProductType(args[1])
		if !ok {
			return Action{Step: StepUnknown}, ErrInvalidCallback
		}
		return Action{Step: step, ModelID: id, ProductType: productType}, nil
	case StepProduct, StepCheckout:
		if len(args) != 1 {
			return Action{Step: StepUnknown}, ErrInvalidCallback
		}
		id, err := parseID(args[0])
		if err != nil {
			return Action{Step: StepUnknown}, err
		}
		return Action{Step: step, ProductID: id}, nil
	case StepPaid:
		if len(args) != 1 || strings.TrimSpace(args[0]) == "" {
			return Action{Step: StepUnknown}, ErrInvalidCallback
		}
		return Action{Step: step, TransactionID: strings.TrimSpace(args[0])}, nil
	default:
		return Action{Step: StepUnknown}, ErrInvalidCallback
	}
}

// ParseStartPayload reads a "model_<id>" deep link parameter.
func ParseStartPayload(payload string) (int64, bool) {
	payload = strings.TrimSpace(payload)
	if !strings.HasPrefix(payload, startPayloadPrefix) {
		return 0, false
	}
	id, err := parseID(strings.TrimPrefix(payload, startPayloadPrefix))
	if err != nil {
		return 0, false
	}
	return id, true
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrInvalidCallback
	}
	return id, nil
}

type Catalog interface {
	ListModels(ctx context.Context, limit int) ([]model.CreatorModel, error)
	GetModel(ctx context.Context, modelID int64) (model.CreatorModel, error)
	ListProducts(ctx context.Context, modelID int64, productType enums.ProductType) ([]model.Product, error)
	GetProduct(ctx context.Context, productID int64) (model.Product, error)
}

type Payments interface {
	Checkout(ctx context.Context, buyer paymentsvc.Buyer, productID int64) (paymentsvc.CheckoutResult, error)
	CheckPayment(ctx context.Context, transactionID string) (paymentsvc.PaymentResult, error)
}

type Messenger interface {
	SendText(ctx context.Context, chatID int64, text string) (int, error)
	SendMenu(ctx context.Context, chatID int64, text string, rows [][]tginfra.InlineButton) (int, error)
	SendPhotoBytes(ctx context.Context, chatID int64, name string, image []byte, caption string, rows [][]tginfra.InlineButton) (int, error)
	SendMedia(ctx context.Context, chatID int64, items []tginfra.Media) ([]int, error)
	AnswerCallback(ctx context.Context, callbackID, text string) error
}

// CheckoutThrottle limits how often one buyer may open new charges.
type CheckoutThrottle interface {
	Check(ctx context.Context, buyerID int64) (rate.Decision, error)
}

type Flow struct {
	catalog   Catalog
	payments  Payments
	messenger Messenger
	throttle  CheckoutThrottle
	logger    *zap.Logger
}

func NewFlow(catalog Catalog, payments Payments, messenger Messenger, logger *zap.Logger) *Flow {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Flow{
		catalog:   catalog,
		payments:  payments,
		messenger: messenger,
		logger:    logger,
	}
}

func (f *Flow) AttachThrottle(throttle CheckoutThrottle) {
	f.throttle = throttle
}

func (f *Flow) HandleCommand(ctx context.Context, update tginfra.CommandUpdate) error {
	switch strings.ToLower(strings.TrimSpace(update.Command)) {
	case "start":
		if modelID, ok := ParseStartPayload(update.Args); ok {
			return f.showGallery(ctx, update.ChatID, modelID)
		}
		return f.showMenu(ctx, update.ChatID)
	case "models":
		return f.showModels(ctx, update.ChatID)
	default:
		return f.showMenu(ctx, update.ChatID)
	}
}

func (f *Flow) HandleText(ctx context.Context, update tginfra.TextUpdate) error {
	return f.showMenu(ctx, update.ChatID)
}

func (f *Flow) HandleCallback(ctx context.Context, update tginfra.CallbackUpdate) error {
	action, err := ParseCallback(update.Data)
	if err != nil {
		return f.messenger.AnswerCallback(ctx, update.CallbackID, textUnknownAction)
	}
	if err := f.messenger.AnswerCallback(ctx, update.CallbackID, ""); err != nil {
		f.logger.Debug("answer callback failed", zap.Error(err))
	}

	buyer := paymentsvc.Buyer{TelegramID: update.UserID, DisplayName: update.Name}
	switch action.Step {
	case StepMenu:
		return f.showMenu(ctx, update.ChatID)
	case StepModels:
		return f.showModels(ctx, update.ChatID)
	case StepGallery:
		return f.showGallery(ctx, update.ChatID, action.ModelID)
	case StepKind:
		return f.showProducts(ctx, update.ChatID, action.ModelID, action.ProductType)
	case StepProduct:
		return f.showProduct(ctx, update.ChatID, action.ProductID)
	case StepCheckout:
		return f.checkout(ctx, update.ChatID, buyer, action.ProductID)
	case StepPaid:
		return f.checkPaid(ctx, update.ChatID, buyer, action.TransactionID)
	default:
		return nil
	}
}

func (f *Flow) showMenu(ctx context.Context, chatID int64) error {
	_, err := f.messenger.SendMenu(ctx, chatID, textWelcome, [][]tginfra.InlineButton{
		{{Text: "Ver modelos", Data: Action{Step: StepModels}.Data()}},
	})
	return err
}

func (f *Flow) showModels(ctx context.Context, chatID int64) error {
	models, err := f.catalog.ListModels(ctx, modelsPageSize)
	if err != nil {
		return err
	}
	if len(models) == 0 {
		_, err := f.messenger.SendText(ctx, chatID, textNoModels)
		return err
	}

	rows := make([][]tginfra.InlineButton, 0, len(models)+1)
	for _, m := range models {
		rows = append(rows, []tginfra.InlineButton{{
			Text: m.Name,
			Data: Action{Step: StepGallery, ModelID: m.ID}.Data(),
		}})
	}
	rows = append(rows, []tginfra.InlineButton{{Text: "Voltar", Data: Action{Step: StepMenu}.Data()}})
	_, err = f.messenger.SendMenu(ctx, chatID, "Escolha uma modelo:", rows)
	return err
}

func (f *Flow) showGallery(ctx context.Context, chatID int64, modelID int64) error {
	m, err := f.catalog.GetModel(ctx, modelID)
	if err != nil {
		if errors.Is(err, pgrepo.ErrModelNotFound) {
			_, err := f.messenger.SendText(ctx, chatID, textModelUnavailable)
			return err
		}
		return err
	}

	if media := galleryMedia(m.GalleryRefs); len(media) > 0 {
		if _, err := f.messenger.SendMedia(ctx, chatID, media); err != nil {
			f.logger.Warn("gallery send failed", zap.Int64("model_id", m.ID), zap.Error(err))
		}
	}

	text := m.Name
	if bio := strings.TrimSpace(m.Bio); bio != "" {
		text += "\n\n" + bio
	}
	_, err = f.messenger.SendMenu(ctx, chatID, text, [][]tginfra.InlineButton{
		{{Text: "Pacote avulso", Data: Action{Step: StepKind, ModelID: m.ID, ProductType: enums.ProductTypeOneTime}.Data()}},
		{{Text: "Assinatura", Data: Action{Step: StepKind, ModelID: m.ID, ProductType: enums.ProductTypeSubscription}.Data()}},
		{{Text: "Voltar", Data: Action{Step: StepModels}.Data()}},
	})
	return err
}

func (f *Flow) showProducts(ctx context.Context, chatID int64, modelID int64, productType enums.ProductType) error {
	products, err := f.catalog.ListProducts(ctx, modelID, productType)
	if err != nil {
		return err
	}
	back := []tginfra.InlineButton{{Text: "Voltar", Data: Action{Step: StepGallery, ModelID: modelID}.Data()}}
	if len(products) == 0 {
		_, err := f.messenger.SendMenu(ctx, chatID, textNoProducts, [][]tginfra.InlineButton{back})
		return err
	}

	rows := make([][]tginfra.InlineButton, 0, len(products)+1)
	for _, p := range products {
		rows = append(rows, []tginfra.InlineButton{{
			Text: p.Name + " - " + model.FormatPrice(p.Price, p.Currency),
			Data: Action{Step: StepProduct, ProductID: p.ID}.Data(),
		}})
	}
	rows = append(rows, back)
	_, err = f.messenger.SendMenu(ctx, chatID, "Escolha uma opção:", rows)
	return err
}

func (f *Flow) showProduct(ctx context.Context, chatID int64, productID int64) error {
	p, err := f.catalog.GetProduct(ctx, productID)
	if err != nil && !errors.Is(err, pgrepo.ErrProductNotFound) {
		return err
	}
	if err != nil || !p.Active {
		_, err := f.messenger.SendText(ctx, chatID, textProductUnavailable)
		return err
	}

	_, err = f.messenger.SendMenu(ctx, chatID, productText(p), [][]tginfra.InlineButton{
		{{Text: "Comprar com PIX", Data: Action{Step: StepCheckout, ProductID: p.ID}.Data()}},
		{{Text: "Voltar", Data: Action{Step: StepKind, ModelID: p.ModelID, ProductType: p.Type}.Data()}},
	})
	return err
}

func (f *Flow) checkout(ctx context.Context, chatID int64, buyer paymentsvc.Buyer, productID int64) error {
	if f.throttle != nil {
		decision, err := f.throttle.Check(ctx, buyer.TelegramID)
		switch {
		case err != nil:
			f.logger.Warn("checkout throttle unavailable", zap.Int64("buyer_id", buyer.TelegramID), zap.Error(err))
		case !decision.Allowed:
			f.logger.Info("checkout throttled",
				zap.Int64("buyer_id", buyer.TelegramID),
				zap.String("window", string(decision.Window)),
				zap.Duration("retry_after", decision.RetryAfter),
			)
			_, err = f.messenger.SendText(ctx, chatID, throttledText(decision))
			return err
		}
	}

	result, err := f.payments.Checkout(ctx, buyer, productID)
	if err != nil {
		switch {
		case errors.Is(err, paymentsvc.ErrProductUnavailable), errors.Is(err, paymentsvc.ErrValidation):
			_, err = f.messenger.SendText(ctx, chatID, textProductUnavailable)
		case errors.Is(err, paymentsvc.ErrProviderUnavailable):
			_, err = f.messenger.SendText(ctx, chatID, textProviderUnavailable)
		default:
			f.logger.Error("checkout failed", zap.Int64("buyer_id", buyer.TelegramID), zap.Int64("product_id", productID), zap.Error(err))
			_, err = f.messenger.SendText(ctx, chatID, textSomethingWrong)
		}
		return err
	}

	tx := result.Transaction
	paidButton := [][]tginfra.InlineButton{
		{{Text: "Já paguei", Data: Action{Step: StepPaid, TransactionID: tx.ID}.Data()}},
	}

	if _, err := f.messenger.SendText(ctx, chatID, checkoutText(result)); err != nil {
		return err
	}
	if _, err := f.messenger.SendText(ctx, chatID, tx.PaymentCode); err != nil {
		return err
	}
	if len(tx.QRImage) > 0 {
		_, err := f.messenger.SendPhotoBytes(ctx, chatID, "pix.png", tx.QRImage, "QR Code PIX", paidButton)
		if err == nil {
			return nil
		}
		f.logger.Warn("qr photo send failed", zap.String("transaction_id", tx.ID), zap.Error(err))
	}
	_, err = f.messenger.SendMenu(ctx, chatID, "Depois de pagar, toque no botão abaixo.", paidButton)
	return err
}

func (f *Flow) checkPaid(ctx context.Context, chatID int64, buyer paymentsvc.Buyer, transactionID string) error {
	result, err := f.payments.CheckPayment(ctx, transactionID)
	if err != nil {
		switch {
		case errors.Is(err, paymentsvc.ErrTransactionNotFound), errors.Is(err, paymentsvc.ErrPurchaseNotFound):
			_, err = f.messenger.SendText(ctx, chatID, textPaymentNotFound)
		case errors.Is(err, paymentsvc.ErrProviderUnavailable):
			_, err = f.messenger.SendMenu(ctx, chatID, textStatusUnavailable, retryButton(transactionID))
		default:
			f.logger.Error("payment check failed", zap.String("transaction_id", transactionID), zap.Error(err))
			_, err = f.messenger.SendText(ctx, chatID, textSomethingWrong)
		}
		return err
	}
	if result.Purchase.BuyerID != buyer.TelegramID {
		_, err := f.messenger.SendText(ctx, chatID, textPaymentNotFound)
		return err
	}

	switch result.Purchase.Status {
	case enums.PurchaseStatusCompleted:
		if result.Changed {
			return nil
		}
		_, err = f.messenger.SendText(ctx, chatID, textAlreadyDelivered)
	case enums.PurchaseStatusPaid:
		_, err = f.messenger.SendText(ctx, chatID, textDeliveryPending)
	case enums.PurchaseStatusPending:
		if result.Transaction.Status == enums.TransactionStatusExpired {
			_, err = f.messenger.SendMenu(ctx, chatID, textCodeExpired, [][]tginfra.InlineButton{
				{{Text: "Gerar novo PIX", Data: Action{Step: StepCheckout, ProductID: result.Purchase.ProductID}.Data()}},
			})
			return err
		}
		_, err = f.messenger.SendMenu(ctx, chatID, textNotPaidYet, retryButton(transactionID))
	case enums.PurchaseStatusFailed:
		_, err = f.messenger.SendMenu(ctx, chatID, textPaymentFailed, [][]tginfra.InlineButton{
			{{Text: "Tentar novamente", Data: Action{Step: StepCheckout, ProductID: result.Purchase.ProductID}.Data()}},
		})
	default:
		_, err = f.messenger.SendText(ctx, chatID, textPurchaseClosed)
	}
	return err
}

func retryButton(transactionID string) [][]tginfra.InlineButton {
	return [][]tginfra.InlineButton{
		{{Text: "Já paguei", Data: Action{Step: StepPaid, TransactionID: transactionID}.Data()}},
	}
}

func galleryMedia(refs []string) []tginfra.Media {
	out := make([]tginfra.Media, 0, len(refs))
	for _, ref := range refs {
		ref = strings.TrimSpace(ref)
		if ref == "" {
			continue
		}
		m := tginfra.Media{Kind: enums.MediaKindPhoto}
		if strings.HasPrefix(ref, "https://") || strings.HasPrefix(ref, "http://") {
			m.URL = ref
		} else {
			m.FileID = ref
		}
		out = append(out, m)
		if len(out) == galleryLimit {
			break
		}
	}
	return out
}

func tginfraHandlers(f *Flow) tginfra.Handlers {
	return tginfra.Handlers{
		OnCommand:  f.HandleCommand,
		OnText:     f.HandleText,
		OnCallback: f.HandleCallback,
	}
}
