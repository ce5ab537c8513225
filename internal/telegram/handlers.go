package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"xui_reseller_bot/internal/config"
	"xui_reseller_bot/internal/domain"
	"xui_reseller_bot/internal/logging"
	"xui_reseller_bot/internal/report"
)

// Menu button labels shown on the persistent reply keyboard.
const (
	menuReport   = "📊 My report"
	menuOnline   = "🟢 Online clients"
	menuExpiring = "⏳ Expiring clients"
	menuExpired  = "🚫 Expired clients"
)

// Callback data prefixes routed by the callback query handlers.
const (
	callbackAssignPrefix  = "assign:"
	callbackRefreshPrefix = "refresh:"
)

const (
	msgJoinChannel     = "🔒 Please join the required channel first, then send /start again."
	msgWelcome         = "👋 Welcome! Use the menu below to request your status report."
	msgWelcomeReseller = "👋 Welcome back! Your report is ready below."
	msgNoAssignment    = "ℹ️ No inbound is assigned to you yet. Please contact the administrator."
	msgRestricted      = "⛔ This command is restricted."
	msgAssignBadID     = "Please send a numeric inbound id."
)

type listKind string

const (
	listOnline   listKind = "online"
	listExpiring listKind = "expiring"
	listExpired  listKind = "expired"
)

const refreshReport = "report"
const refreshFull = "full"

// botAPI is the outbound surface the handlers need. *bot.Bot satisfies it;
// tests provide fakes.
type botAPI interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	EditMessageText(ctx context.Context, params *bot.EditMessageTextParams) (*models.Message, error)
	AnswerCallbackQuery(ctx context.Context, params *bot.AnswerCallbackQueryParams) (bool, error)
	GetChatMember(ctx context.Context, params *bot.GetChatMemberParams) (*models.ChatMember, error)
}

type userRegistrar interface {
	EnsureUser(ctx context.Context, userID int64) (bool, error)
	RoleOf(ctx context.Context, userID int64) (string, error)
}

type resellerRegistrar interface {
	Assign(ctx context.Context, userID, inboundID int64) error
	InboundsFor(ctx context.Context, userID int64) ([]int64, error)
}

type reportSource interface {
	TextFor(ctx context.Context, inboundIDs []int64) string
	TextAll(ctx context.Context) string
	BuildFor(ctx context.Context, inboundIDs []int64) (report.Report, error)
	BuildAll(ctx context.Context) (report.Report, error)
}

type failureRecorder interface {
	Record(op string, err error)
}

// Handlers holds the bot's command, menu, and callback logic together with
// the pending inbound-assignment conversations.
type Handlers struct {
	cfg       config.Config
	users     userRegistrar
	resellers resellerRegistrar
	reports   reportSource
	failures  failureRecorder
	logger    *logrus.Entry

	mu            sync.Mutex
	pendingAssign map[int64]int64
}

// NewHandlers constructs the handler set.
func NewHandlers(cfg config.Config, users userRegistrar, resellers resellerRegistrar, reports reportSource, failures failureRecorder, logger *logrus.Entry) *Handlers {
	if logger == nil {
		logger = logging.Logger()
	}

	return &Handlers{
		cfg:           cfg,
		users:         users,
		resellers:     resellers,
		reports:       reports,
		failures:      failures,
		logger:        logger,
		pendingAssign: make(map[int64]int64),
	}
}

// Start handles /start.
func (h *Handlers) Start() bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		h.start(ctx, b, update)
	}
}

// Report handles /report and the report menu button.
func (h *Handlers) Report() bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		h.report(ctx, b, update)
	}
}

// ReportAll handles the super-admin /report_all command.
func (h *Handlers) ReportAll() bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		h.reportAll(ctx, b, update)
	}
}

// StatusList handles the /online, /expiring, and /expired commands and their
// menu buttons.
func (h *Handlers) StatusList(kind listKind) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		h.statusList(ctx, b, update, kind)
	}
}

// AssignCommand handles the direct /assign <telegram_id> <inbound_id> form.
func (h *Handlers) AssignCommand() bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		h.assignCommand(ctx, b, update)
	}
}

// AssignCallback handles the admin's "assign inbound" inline button.
func (h *Handlers) AssignCallback() bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		h.assignCallback(ctx, b, update)
	}
}

// RefreshCallback re-renders a previously sent report or list in place.
func (h *Handlers) RefreshCallback() bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		h.refreshCallback(ctx, b, update)
	}
}

// Default consumes pending assignment replies and logs everything else.
func (h *Handlers) Default(logger *logrus.Entry) bot.HandlerFunc {
	if logger == nil {
		logger = logging.Logger()
	}

	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		if update == nil {
			return
		}

		if h.consumePendingAssign(ctx, b, update) {
			return
		}

		meta := extractUpdateMeta(update)

		fields := logging.Fields{
			"event":       "telegram_update",
			"update_type": meta.updateType,
		}

		if meta.text != "" {
			fields["text"] = meta.text
		}
		if meta.userID != 0 {
			fields["user_id"] = meta.userID
		}
		if meta.chatID != 0 {
			fields["chat_id"] = meta.chatID
		}

		logger.WithFields(fields).Info("telegram update received")
	}
}

func (h *Handlers) start(ctx context.Context, api botAPI, update *models.Update) {
	if update == nil || update.Message == nil {
		return
	}

	uid := userID(update.Message.From)
	chat := chatID(&update.Message.Chat)
	if uid == 0 || chat == 0 {
		return
	}

	// The gate comes first: a user who fails the membership check leaves no
	// trace in the store.
	if h.cfg.RequiredChannelID != "" && !h.isChannelMember(ctx, api, uid) {
		h.send(ctx, api, chat, msgJoinChannel, nil)
		return
	}

	created, err := h.users.EnsureUser(ctx, uid)
	if err != nil {
		h.logger.WithFields(logging.Fields{
			"event":   "user_register_failed",
			"user_id": uid,
		}).WithError(err).Error("failed to register user")
	}

	if created {
		h.notifyAdmins(ctx, api, uid)
	}

	h.send(ctx, api, chat, h.welcomeText(ctx, uid), mainKeyboard())
}

// welcomeText greets returning resellers differently from plain users. Role
// lookup failures fall back to the default greeting.
func (h *Handlers) welcomeText(ctx context.Context, uid int64) string {
	role, err := h.users.RoleOf(ctx, uid)
	if err == nil && role == domain.RoleReseller {
		return msgWelcomeReseller
	}

	return msgWelcome
}

func (h *Handlers) report(ctx context.Context, api botAPI, update *models.Update) {
	if update == nil || update.Message == nil {
		return
	}

	uid := userID(update.Message.From)
	chat := chatID(&update.Message.Chat)

	text, assigned := h.reportText(ctx, uid)
	if !assigned {
		h.send(ctx, api, chat, text, nil)
		return
	}

	h.send(ctx, api, chat, text, refreshMarkup(refreshReport))
}

func (h *Handlers) reportAll(ctx context.Context, api botAPI, update *models.Update) {
	if update == nil || update.Message == nil {
		return
	}

	uid := userID(update.Message.From)
	chat := chatID(&update.Message.Chat)

	if !h.cfg.IsSuperAdmin(uid) {
		h.send(ctx, api, chat, msgRestricted, nil)
		return
	}

	h.send(ctx, api, chat, h.reports.TextAll(ctx), refreshMarkup(refreshFull))
}

func (h *Handlers) statusList(ctx context.Context, api botAPI, update *models.Update, kind listKind) {
	if update == nil || update.Message == nil {
		return
	}

	uid := userID(update.Message.From)
	chat := chatID(&update.Message.Chat)

	text, assigned := h.listText(ctx, uid, kind)
	if !assigned {
		h.send(ctx, api, chat, text, nil)
		return
	}

	h.send(ctx, api, chat, text, refreshMarkup(string(kind)))
}

func (h *Handlers) assignCommand(ctx context.Context, api botAPI, update *models.Update) {
	if update == nil || update.Message == nil {
		return
	}

	uid := userID(update.Message.From)
	chat := chatID(&update.Message.Chat)

	if !h.cfg.IsSuperAdmin(uid) {
		h.send(ctx, api, chat, msgRestricted, nil)
		return
	}

	args := strings.Fields(update.Message.Text)[1:]
	if len(args) != 2 {
		h.send(ctx, api, chat, "Usage: /assign <telegram_id> <inbound_id>", nil)
		return
	}

	target, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || target == 0 {
		h.send(ctx, api, chat, "Usage: /assign <telegram_id> <inbound_id>", nil)
		return
	}

	inboundID, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil || inboundID <= 0 {
		h.send(ctx, api, chat, msgAssignBadID, nil)
		return
	}

	h.completeAssign(ctx, api, chat, target, inboundID)
}

func (h *Handlers) assignCallback(ctx context.Context, api botAPI, update *models.Update) {
	if update == nil || update.CallbackQuery == nil {
		return
	}

	cb := update.CallbackQuery
	adminID := cb.From.ID

	if !h.cfg.IsSuperAdmin(adminID) {
		h.answer(ctx, api, cb.ID, msgRestricted)
		return
	}

	target, err := strconv.ParseInt(strings.TrimPrefix(cb.Data, callbackAssignPrefix), 10, 64)
	if err != nil || target == 0 {
		h.answer(ctx, api, cb.ID, "Invalid user reference.")
		return
	}

	h.mu.Lock()
	h.pendingAssign[adminID] = target
	h.mu.Unlock()

	h.answer(ctx, api, cb.ID, "")

	chat := messageChatID(cb.Message)
	if chat == 0 {
		chat = adminID
	}
	h.send(ctx, api, chat, fmt.Sprintf("Reply with the numeric inbound id to assign to user %d.", target), nil)
}

// consumePendingAssign returns true when the update was an admin's reply to
// an assignment prompt and has been handled.
func (h *Handlers) consumePendingAssign(ctx context.Context, api botAPI, update *models.Update) bool {
	if update == nil || update.Message == nil {
		return false
	}

	adminID := userID(update.Message.From)
	if adminID == 0 {
		return false
	}

	h.mu.Lock()
	target, pending := h.pendingAssign[adminID]
	h.mu.Unlock()
	if !pending {
		return false
	}

	chat := chatID(&update.Message.Chat)
	text := strings.TrimSpace(update.Message.Text)

	inboundID, err := strconv.ParseInt(text, 10, 64)
	if err != nil || inboundID <= 0 {
		h.send(ctx, api, chat, msgAssignBadID, nil)
		return true
	}

	if h.completeAssign(ctx, api, chat, target, inboundID) {
		h.mu.Lock()
		delete(h.pendingAssign, adminID)
		h.mu.Unlock()
	}

	return true
}

// completeAssign records the assignment and sends the confirmation and the
// best-effort notification to the assignee. Returns false when the registry
// write failed.
func (h *Handlers) completeAssign(ctx context.Context, api botAPI, chat, target, inboundID int64) bool {
	if err := h.resellers.Assign(ctx, target, inboundID); err != nil {
		h.logger.WithFields(logging.Fields{
			"event":      "assign_failed",
			"user_id":    target,
			"inbound_id": inboundID,
		}).WithError(err).Error("failed to assign inbound")
		h.send(ctx, api, chat, report.FallbackMessage, nil)
		return false
	}

	h.send(ctx, api, chat, fmt.Sprintf("✅ Inbound %d assigned to user %d.", inboundID, target), nil)
	h.send(ctx, api, target, fmt.Sprintf("🎉 Inbound %d was assigned to you. Send /report to see your status.", inboundID), nil)

	return true
}

func (h *Handlers) refreshCallback(ctx context.Context, api botAPI, update *models.Update) {
	if update == nil || update.CallbackQuery == nil {
		return
	}

	cb := update.CallbackQuery
	uid := cb.From.ID
	kind := strings.TrimPrefix(cb.Data, callbackRefreshPrefix)

	var text string
	switch kind {
	case refreshReport:
		text, _ = h.reportText(ctx, uid)
	case refreshFull:
		if !h.cfg.IsSuperAdmin(uid) {
			h.answer(ctx, api, cb.ID, msgRestricted)
			return
		}
		text = h.reports.TextAll(ctx)
	case string(listOnline), string(listExpiring), string(listExpired):
		text, _ = h.listText(ctx, uid, listKind(kind))
	default:
		h.answer(ctx, api, cb.ID, "")
		return
	}

	if cb.Message.Type != models.MaybeInaccessibleMessageTypeMessage || cb.Message.Message == nil {
		h.answer(ctx, api, cb.ID, "This message can no longer be updated.")
		return
	}

	_, err := api.EditMessageText(ctx, &bot.EditMessageTextParams{
		ChatID:      cb.Message.Message.Chat.ID,
		MessageID:   cb.Message.Message.ID,
		Text:        text,
		ParseMode:   models.ParseModeHTML,
		ReplyMarkup: refreshMarkup(kind),
	})
	if err != nil {
		// Telegram rejects edits that leave the message unchanged.
		h.logger.WithFields(logging.Fields{
			"event":   "refresh_edit_failed",
			"user_id": uid,
			"kind":    kind,
		}).WithError(err).Debug("refresh edit rejected")
	}

	h.answer(ctx, api, cb.ID, "Updated")
}

// reportText resolves the report for the user's assigned inbounds. The bool
// is false when the user has no assignments.
func (h *Handlers) reportText(ctx context.Context, uid int64) (string, bool) {
	ids, err := h.resellers.InboundsFor(ctx, uid)
	if err != nil {
		h.recordFailure("list assignments", err)
		return report.FallbackMessage, true
	}
	if len(ids) == 0 {
		return msgNoAssignment, false
	}

	return h.reports.TextFor(ctx, ids), true
}

func (h *Handlers) listText(ctx context.Context, uid int64, kind listKind) (string, bool) {
	var (
		rep report.Report
		err error
	)

	if h.cfg.IsSuperAdmin(uid) {
		rep, err = h.reports.BuildAll(ctx)
	} else {
		var ids []int64
		ids, err = h.resellers.InboundsFor(ctx, uid)
		if err == nil {
			if len(ids) == 0 {
				return msgNoAssignment, false
			}
			rep, err = h.reports.BuildFor(ctx, ids)
		}
	}

	if err != nil {
		h.recordFailure(fmt.Sprintf("build %s list", kind), err)
		return report.FallbackMessage, true
	}

	switch kind {
	case listOnline:
		return report.FormatList("🟢 <b>Online clients</b>", rep.Online), true
	case listExpiring:
		return report.FormatList("⏳ <b>Expiring clients</b>", rep.Expiring), true
	default:
		return report.FormatList("🚫 <b>Expired clients</b>", rep.Expired), true
	}
}

func (h *Handlers) isChannelMember(ctx context.Context, api botAPI, uid int64) bool {
	member, err := api.GetChatMember(ctx, &bot.GetChatMemberParams{
		ChatID: h.cfg.RequiredChannelID,
		UserID: uid,
	})
	if err != nil {
		h.logger.WithFields(logging.Fields{
			"event":   "membership_check_failed",
			"user_id": uid,
		}).WithError(err).Warn("failed to check channel membership")
		return false
	}
	if member == nil {
		return false
	}

	return member.Owner != nil || member.Administrator != nil || member.Member != nil
}

func (h *Handlers) notifyAdmins(ctx context.Context, api botAPI, uid int64) {
	markup := &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{{
			{Text: "Assign inbound", CallbackData: fmt.Sprintf("%s%d", callbackAssignPrefix, uid)},
		}},
	}

	for _, adminID := range h.cfg.SuperAdmins {
		h.send(ctx, api, adminID, fmt.Sprintf("🆕 New user started the bot: %d", uid), markup)
	}
}

func (h *Handlers) send(ctx context.Context, api botAPI, chat int64, text string, markup models.ReplyMarkup) {
	if chat == 0 || text == "" {
		return
	}

	_, err := api.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:      chat,
		Text:        text,
		ParseMode:   models.ParseModeHTML,
		ReplyMarkup: markup,
	})
	if err != nil {
		h.logger.WithFields(logging.Fields{
			"event":   "send_failed",
			"chat_id": chat,
		}).WithError(err).Error("failed to send telegram message")
	}
}

func (h *Handlers) answer(ctx context.Context, api botAPI, callbackID, text string) {
	_, err := api.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: callbackID,
		Text:            text,
	})
	if err != nil {
		h.logger.WithField("event", "callback_answer_failed").WithError(err).Warn("failed to answer callback query")
	}
}

func (h *Handlers) recordFailure(op string, err error) {
	if h.failures != nil {
		h.failures.Record(op, err)
	}

	h.logger.WithFields(logging.Fields{
		"event": "report_failed",
		"op":    op,
	}).WithError(err).Error("report generation failed")
}

func refreshMarkup(kind string) *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{{
			{Text: "🔄 Refresh", CallbackData: callbackRefreshPrefix + kind},
		}},
	}
}

func mainKeyboard() *models.ReplyKeyboardMarkup {
	return &models.ReplyKeyboardMarkup{
		Keyboard: [][]models.KeyboardButton{
			{{Text: menuReport}},
			{{Text: menuOnline}, {Text: menuExpiring}, {Text: menuExpired}},
		},
		ResizeKeyboard: true,
	}
}
