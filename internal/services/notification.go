package services

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/irfndi/vana-arb-go/internal/arbitrage"
	"github.com/irfndi/vana-arb-go/internal/models"
	"github.com/irfndi/vana-arb-go/internal/telemetry"
)

// maxAlertOpportunities is how many opportunities one alert lists.
const maxAlertOpportunities = 3

// MessageSender delivers a Markdown message to a chat.
type MessageSender interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// TelegramSender sends messages through the Telegram Bot API.
type TelegramSender struct {
	bot *bot.Bot
}

// NewTelegramSender creates a sender for token. The token is not verified until the first send.
func NewTelegramSender(token string, opts ...bot.Option) (*TelegramSender, error) {
	opts = append([]bot.Option{bot.WithSkipGetMe()}, opts...)
	b, err := bot.New(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return &TelegramSender{bot: b}, nil
}

func (s *TelegramSender) SendMessage(ctx context.Context, chatID int64, text string) error {
	_, err := s.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: tgmodels.ParseModeMarkdown,
	})
	if err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	return nil
}

// NotificationService alerts a chat when the best opportunities clear a threshold.
type NotificationService struct {
	sender    MessageSender
	chatID    int64
	threshold decimal.Decimal
	tracer    *telemetry.BusinessTracer
	logger    *logrus.Logger

	mu            sync.Mutex
	lastSignature string
}

// NewNotificationService creates the service. A nil sender disables alerts.
func NewNotificationService(sender MessageSender, chatID int64, threshold decimal.Decimal, logger *logrus.Logger) *NotificationService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &NotificationService{
		sender:    sender,
		chatID:    chatID,
		threshold: threshold,
		tracer:    telemetry.NewBusinessTracer(),
		logger:    logger,
	}
}

// Enabled reports whether alerts can be delivered.
func (ns *NotificationService) Enabled() bool {
	return ns != nil && ns.sender != nil && ns.chatID != 0
}

// NotifyOpportunities sends an alert for the opportunities above the threshold.
// The same set of opportunities is announced only once in a row. It reports
// whether a message was sent.
func (ns *NotificationService) NotifyOpportunities(ctx context.Context, data *models.DashboardData) (bool, error) {
	if !ns.Enabled() || data == nil {
		return false, nil
	}

	eligible := arbitrage.SortByNet(arbitrage.AboveNet(data.Opportunities, ns.threshold))
	if len(eligible) == 0 {
		return false, nil
	}
	top := eligible
	if len(top) > maxAlertOpportunities {
		top = top[:maxAlertOpportunities]
	}

	signature := alertSignature(top)
	ns.mu.Lock()
	if signature == ns.lastSignature {
		ns.mu.Unlock()
		return false, nil
	}
	ns.mu.Unlock()

	ctx, span := ns.tracer.TraceNotification(ctx, "arbitrage_alert", "telegram")
	defer span.End()

	err := ns.sender.SendMessage(ctx, ns.chatID, ns.formatArbitrageMessage(top, len(eligible)))
	ns.tracer.RecordNotificationResult(span, err == nil, 1, err)
	if err != nil {
		ns.logger.WithError(err).WithField("chat_id", ns.chatID).Error("Failed to send arbitrage alert")
		return false, err
	}

	ns.mu.Lock()
	ns.lastSignature = signature
	ns.mu.Unlock()

	ns.logger.WithFields(logrus.Fields{
		"chat_id":       ns.chatID,
		"opportunities": len(top),
		"best_net":      top[0].Net.String(),
	}).Info("Arbitrage alert sent")
	return true, nil
}

// formatArbitrageMessage renders the top opportunities as Telegram Markdown.
func (ns *NotificationService) formatArbitrageMessage(top []models.ArbitrageOpportunity, total int) string {
	var b strings.Builder
	b.WriteString("🚨 *VANA Arbitrage Alert*\n\n")
	fmt.Fprintf(&b, "Found %d opportunities above %s%% net:\n\n", total, percent(ns.threshold))

	for i, opp := range top {
		fmt.Fprintf(&b, "*%d. %s*\n", i+1, kindLabel(opp.Kind))
		fmt.Fprintf(&b, "💰 Net: *%s%%* (gross %s%%)\n", percent(opp.Net), percent(opp.Gross))

		switch {
		case opp.Cross != nil:
			fmt.Fprintf(&b, "📈 Buy: %s %s @ %s\n", venueName(opp.Cross.BuyVenue), opp.Cross.BuySymbol, opp.Cross.BuyPrice.String())
			fmt.Fprintf(&b, "📉 Sell: %s %s @ %s\n", venueName(opp.Cross.SellVenue), opp.Cross.SellSymbol, opp.Cross.SellPrice.String())
		case opp.Triangular != nil:
			fmt.Fprintf(&b, "🔁 %s: %s\n", venueName(opp.Triangular.Exchange), strings.Join(opp.Triangular.Path, " → "))
		case opp.Pair != nil:
			fmt.Fprintf(&b, "⚖️ %s: %s / %s\n", venueName(opp.Pair.Exchange), opp.Pair.Symbols[0], opp.Pair.Symbols[1])
		}
		b.WriteString("\n")
	}

	if total > len(top) {
		fmt.Fprintf(&b, "...and %d more\n\n", total-len(top))
	}
	b.WriteString("Fees are taker fees only. Verify depth before trading.")
	return b.String()
}

func alertSignature(opps []models.ArbitrageOpportunity) string {
	parts := make([]string, 0, len(opps))
	for _, o := range opps {
		var id string
		switch {
		case o.Cross != nil:
			id = o.Cross.BuyVenue + ":" + o.Cross.BuySymbol + ">" + o.Cross.SellVenue + ":" + o.Cross.SellSymbol
		case o.Triangular != nil:
			id = o.Triangular.Exchange + ":" + strings.Join(o.Triangular.Path, ">")
		case o.Pair != nil:
			id = o.Pair.Exchange + ":" + o.Pair.Symbols[0] + "/" + o.Pair.Symbols[1]
		}
		parts = append(parts, string(o.Kind)+"|"+id)
	}
	return strings.Join(parts, ";")
}

var venueDisplayNames = map[string]string{
	"mexc": "MEXC",
}

func venueName(venue string) string {
	if name, ok := venueDisplayNames[venue]; ok {
		return name
	}
	return cases.Title(language.English).String(venue)
}

func kindLabel(kind models.OpportunityKind) string {
	switch kind {
	case models.KindPairSpread:
		return "Pair spread"
	case models.KindTriangular:
		return "Triangular"
	case models.KindCrossExchange:
		return "Cross-exchange"
	default:
		return string(kind)
	}
}

func percent(d decimal.Decimal) string {
	return d.Mul(decimal.NewFromInt(100)).StringFixed(2)
}
