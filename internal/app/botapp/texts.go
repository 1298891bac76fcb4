package botapp

import (
	"fmt"
	"strings"
	"time"

	"github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/domain/model"
	paymentsvc "github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/services/payments"
	"github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/services/rate"
)

const (
	textWelcome             = "Olá! Aqui você compra conteúdo exclusivo com pagamento via PIX."
	textUnknownAction       = "Ação desconhecida"
	textNoModels            = "Nenhuma modelo disponível no momento."
	textModelUnavailable    = "Esta modelo não está disponível."
	textNoProducts          = "Nenhuma opção disponível nesta categoria."
	textProductUnavailable  = "Este produto não está mais disponível."
	textProviderUnavailable = "Não foi possível gerar o PIX agora. Tente novamente em alguns minutos."
	textSomethingWrong      = "Algo deu errado. Tente novamente."
	textPaymentNotFound     = "Pagamento não encontrado."
	textStatusUnavailable   = "Não conseguimos consultar o pagamento agora. Tente de novo em instantes."
	textAlreadyDelivered    = "Este pagamento já foi confirmado e o conteúdo foi enviado."
	textDeliveryPending     = "Pagamento confirmado! Estamos enviando seu conteúdo."
	textNotPaidYet          = "Ainda não identificamos o pagamento. Assim que pagar, toque em \"Já paguei\"."
	textCodeExpired         = "Este código PIX expirou."
	textPaymentFailed       = "O pagamento não foi concluído."
	textPurchaseClosed      = "Esta compra foi encerrada."
)

func throttledText(d rate.Decision) string {
	reason := "Você gerou muitos pedidos em pouco tempo."
	if d.Window == rate.WindowHour {
		reason = "Você atingiu o limite de pedidos por hora."
	}
	if d.RetryAfter >= 2*time.Minute {
		minutes := int64((d.RetryAfter + time.Minute - 1) / time.Minute)
		return fmt.Sprintf("%s Tente novamente em %d minutos.", reason, minutes)
	}
	return fmt.Sprintf("%s Tente novamente em %d segundos.", reason, int64(d.RetryAfter/time.Second))
}

func productText(p model.Product) string {
	lines := []string{p.Name}
	if d := strings.TrimSpace(p.Description); d != "" {
		lines = append(lines, "", d)
	}
	lines = append(lines, "", "Valor: "+model.FormatPrice(p.Price, p.Currency))
	if p.Type.IsSubscription() && p.AccessDays > 0 {
		lines = append(lines, fmt.Sprintf("Acesso por %d dias", p.AccessDays))
	}
	return strings.Join(lines, "\n")
}

func checkoutText(result paymentsvc.CheckoutResult) string {
	lines := []string{
		fmt.Sprintf("Pedido #%d: %s", result.Purchase.ID, result.Purchase.Snapshot.Name),
		"Valor: " + model.FormatPrice(result.Purchase.Amount, result.Purchase.Currency),
	}
	if exp := result.Transaction.CodeExpiresAt; exp != nil {
		lines = append(lines, "Pague até "+exp.Format("02/01/2006 15:04"))
	}
	lines = append(lines, "", "Copie o código PIX abaixo (copia e cola):")
	return strings.Join(lines, "\n")
}
