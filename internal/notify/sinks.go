package notify

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

// LogNotifier writes notifications to the logger. It is always configured
// so a daemon without other sinks still reports triggers.
type LogNotifier struct {
	log logrus.FieldLogger
}

// NewLogNotifier returns a notifier logging at info level.
func NewLogNotifier(log logrus.FieldLogger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (l *LogNotifier) Notify(_ context.Context, msg Message) error {
	l.log.WithFields(logrus.Fields{
		"prayer": msg.Event.Prayer.String(),
		"kind":   string(msg.Event.Kind),
		"body":   msg.Body,
	}).Info(msg.Title)
	return nil
}

// TelegramSender is the part of *telebot.Bot used here.
type TelegramSender interface {
	Send(to telebot.Recipient, what interface{}, opts ...interface{}) (*telebot.Message, error)
}

// Telegram posts notifications to a chat.
type Telegram struct {
	bot  TelegramSender
	chat telebot.ChatID
}

// NewTelegram returns a notifier sending to chatID.
func NewTelegram(bot TelegramSender, chatID int64) *Telegram {
	return &Telegram{bot: bot, chat: telebot.ChatID(chatID)}
}

// NewTelegramBot creates a send-only bot. Offline skips the getMe call, so
// construction does not touch the network.
func NewTelegramBot(token string) (*telebot.Bot, error) {
	if token == "" {
		return nil, errors.New("telegram token is empty")
	}
	bot, err := telebot.NewBot(telebot.Settings{Token: token, Offline: true})
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return bot, nil
}

func (t *Telegram) Notify(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	text := msg.Title
	if msg.Body != "" {
		text += "\n" + msg.Body
	}
	if _, err := t.bot.Send(t.chat, text, &telebot.SendOptions{DisableWebPagePreview: true}); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

// ExecPlayer plays audio by running an external command (for example
// "mpv --no-video") with the track appended as the last argument.
type ExecPlayer struct {
	log  logrus.FieldLogger
	argv []string

	mu  sync.Mutex
	cmd *exec.Cmd
}

// NewExecPlayer parses command into argv.
func NewExecPlayer(log logrus.FieldLogger, command string) (*ExecPlayer, error) {
	argv := strings.Fields(command)
	if len(argv) == 0 {
		return nil, errors.New("player command is empty")
	}
	return &ExecPlayer{log: log, argv: argv}, nil
}

// Play starts the player and returns without waiting for it to finish.
// A track already playing is stopped first.
func (p *ExecPlayer) Play(_ context.Context, track string) error {
	if err := p.Stop(); err != nil {
		p.log.WithError(err).Debug("Stopping previous track")
	}

	args := append(append([]string{}, p.argv[1:]...), track)
	cmd := exec.Command(p.argv[0], args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start player %s: %w", p.argv[0], err)
	}

	p.mu.Lock()
	p.cmd = cmd
	p.mu.Unlock()

	go func() {
		err := cmd.Wait()
		p.mu.Lock()
		if p.cmd == cmd {
			p.cmd = nil
		}
		p.mu.Unlock()
		if err != nil {
			p.log.WithError(err).Debug("Player exited")
		}
	}()
	return nil
}

// Stop kills the running player, if any.
func (p *ExecPlayer) Stop() error {
	p.mu.Lock()
	cmd := p.cmd
	p.cmd = nil
	p.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return nil
	}
	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("failed to stop player: %w", err)
	}
	return nil
}
