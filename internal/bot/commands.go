package bot

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/uttal/internal/models"
)

const adminHelp = `Available commands:
/pending - List submissions waiting for review
/review <record_id> approve|reject [feedback] - Settle a submission
/class <teacher_username> - Class overview for a teacher's exercises
/rebuild <YYYY-MM-DD> - Recompute the attendance rollup for one day
/help - Show this message

Examples:
/review 42 approve Nice rhythm, watch the th sound
/class ms.wang
/rebuild 2026-08-31`

type commandHandler func(*tgbotapi.Message) error

func (b *Bot) routeCommands(cmd string) (commandHandler, bool) {
	commands := map[string]commandHandler{
		"start":   b.handleStart,
		"help":    b.handleHelp,
		"pending": b.handlePending,
		"review":  b.handleReview,
		"class":   b.handleClass,
		"rebuild": b.handleRebuild,
	}
	handler, found := commands[cmd]
	return handler, found
}

func (b *Bot) handleMessage(msg *tgbotapi.Message) {
	if !b.admins[msg.From.ID] {
		b.sendMessage(msg.Chat.ID, "This bot is for course teachers only.")
		return
	}

	if !msg.IsCommand() {
		b.sendMessage(msg.Chat.ID, "Send /help for the list of commands.")
		return
	}

	if handler, ok := b.routeCommands(msg.Command()); ok {
		if err := handler(msg); err != nil {
			logger.Error.Printf("Command error: %v", err)
			b.sendMessage(msg.Chat.ID, fmt.Sprintf("Error: %v", err))
		}
		return
	}

	b.sendMessage(msg.Chat.ID, "Unknown command, send /help.")
}

func (b *Bot) handleStart(msg *tgbotapi.Message) error {
	return b.sendMessage(msg.Chat.ID, "Hi! I keep an eye on the review queue for you.\nSend /help for the list of commands.")
}

func (b *Bot) handleHelp(msg *tgbotapi.Message) error {
	return b.sendMessage(msg.Chat.ID, adminHelp)
}

func (b *Bot) handlePending(msg *tgbotapi.Message) error {
	records, err := b.store.ListPendingRecords()
	if err != nil {
		return fmt.Errorf("failed to fetch pending records: %v", err)
	}

	if len(records) == 0 {
		return b.sendMessage(msg.Chat.ID, "Review queue is empty 🎉")
	}

	var out strings.Builder
	out.WriteString(fmt.Sprintf("Waiting for review: %d\n\n", len(records)))
	for i, record := range records {
		if i >= 10 {
			out.WriteString(fmt.Sprintf("…and %d more\n", len(records)-10))
			break
		}
		submitted := time.Unix(record.SubmitTime, 0).UTC()
		out.WriteString(fmt.Sprintf("📝 #%d %s — %s\nscore %d, %s UTC\n\n",
			record.ID,
			record.RealName,
			record.ExerciseTitle,
			record.Score,
			submitted.Format("2006-Jan-02 15:04"),
		))
	}

	return b.sendMessage(msg.Chat.ID, out.String())
}

// handleReview settles one record on behalf of the teacher account
// mapped to the sender's chat ID.
func (b *Bot) handleReview(msg *tgbotapi.Message) error {
	args := strings.Fields(msg.CommandArguments())
	if len(args) < 2 {
		return b.sendMessage(msg.Chat.ID, "Usage: /review <record_id> approve|reject [feedback]")
	}

	recordID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid record id: %v", err)
	}

	var status string
	switch args[1] {
	case "approve":
		status = models.RecordStatusApproved
	case "reject":
		status = models.RecordStatusRejected
	default:
		return fmt.Errorf("unknown verdict %q, use approve or reject", args[1])
	}

	feedback := strings.Join(args[2:], " ")

	reviewer, err := b.reviewerFor(msg.From.ID, msg.From.UserName)
	if err != nil {
		return err
	}

	record, err := b.store.GetRecord(recordID)
	if err != nil {
		return fmt.Errorf("failed to fetch record: %v", err)
	}
	if record == nil {
		return fmt.Errorf("record %d not found", recordID)
	}

	err = b.store.ReviewRecord(recordID, reviewer.ID, status, feedback, models.FeedbackTypeTeacher, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to review: %v", err)
	}

	return b.sendMessage(msg.Chat.ID, fmt.Sprintf("✅ Record #%d %s", recordID, status))
}

// reviewerFor maps a Telegram sender to a teacher account by matching
// the Telegram username against our usernames.
func (b *Bot) reviewerFor(_ int64, tgUsername string) (*models.User, error) {
	if tgUsername == "" {
		return nil, fmt.Errorf("set a Telegram username matching your teacher account to review")
	}

	user, err := b.store.GetUserByUsername(tgUsername)
	if err != nil {
		return nil, fmt.Errorf("failed to look up reviewer: %v", err)
	}
	if user == nil || user.Role != models.RoleTeacher {
		return nil, fmt.Errorf("no teacher account named %s", tgUsername)
	}
	return user, nil
}

func (b *Bot) handleClass(msg *tgbotapi.Message) error {
	args := strings.Fields(msg.CommandArguments())
	if len(args) < 1 {
		return b.sendMessage(msg.Chat.ID, "Usage: /class <teacher_username>")
	}

	teacher, err := b.store.GetUserByUsername(args[0])
	if err != nil {
		return fmt.Errorf("failed to look up teacher: %v", err)
	}
	if teacher == nil || teacher.Role != models.RoleTeacher {
		return fmt.Errorf("no teacher account named %s", args[0])
	}

	to := time.Now().UTC()
	from := to.AddDate(0, 0, -b.config.Stats.DefaultRangeDays)
	rows, err := b.store.ClassStats(teacher.ID, from.Unix(), to.Unix())
	if err != nil {
		return fmt.Errorf("failed to fetch class stats: %v", err)
	}

	if len(rows) == 0 {
		return b.sendMessage(msg.Chat.ID, "No submissions in the current range")
	}

	var out strings.Builder
	out.WriteString(fmt.Sprintf("Class overview for %s (last %d days):\n\n", teacher.Username, b.config.Stats.DefaultRangeDays))
	for _, row := range rows {
		out.WriteString(fmt.Sprintf("👤 %s: avg %.1f, best %d, %d submissions over %d days\n",
			row.RealName,
			row.AvgScore,
			row.MaxScore,
			row.TotalExercises,
			row.ActiveDays,
		))
	}

	return b.sendMessage(msg.Chat.ID, out.String())
}

func (b *Bot) handleRebuild(msg *tgbotapi.Message) error {
	args := strings.Fields(msg.CommandArguments())
	if len(args) < 1 {
		return b.sendMessage(msg.Chat.ID, "Usage: /rebuild <YYYY-MM-DD>")
	}

	if _, err := time.Parse("2006-01-02", args[0]); err != nil {
		return fmt.Errorf("invalid date (use YYYY-MM-DD): %v", err)
	}

	if err := b.store.RebuildDailyStats(args[0], time.Now().Unix()); err != nil {
		return fmt.Errorf("failed to rebuild stats: %v", err)
	}

	return b.sendMessage(msg.Chat.ID, fmt.Sprintf("✅ Attendance rollup rebuilt for %s", args[0]))
}

func (b *Bot) sendMessage(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	_, err := b.api.Send(msg)
	return err
}
