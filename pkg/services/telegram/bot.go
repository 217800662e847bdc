package telegram

import (
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Service управляет Telegram ботом
type Service struct {
	bot    *tgbotapi.BotAPI
	logger *slog.Logger
}

// New создает новый Telegram сервис
func New(token string, logger *slog.Logger) (*Service, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}

	logger.Info("✅ Bot authorized", slog.String("username", bot.Self.UserName))

	// Устанавливаем команды для меню
	commands := []tgbotapi.BotCommand{
		{Command: "start", Description: "Начать работу"},
		{Command: "status", Description: "Текущий слот и ордера"},
		{Command: "robots", Description: "Роботы по координаторам"},
		{Command: "slots", Description: "Список слотов гаража"},
		{Command: "refresh", Description: "Обновить текущий слот"},
		{Command: "logs", Description: "Последние события"},
		{Command: "avatar", Description: "Аватар робота"},
		{Command: "help", Description: "Помощь"},
	}

	cfg := tgbotapi.NewSetMyCommands(commands...)
	_, err = bot.Request(cfg)
	if err != nil {
		logger.Error("Failed to set commands", slog.Any("error", err))
	} else {
		logger.Info("✅ Bot commands set")
	}

	return &Service{
		bot:    bot,
		logger: logger,
	}, nil
}

// GetUpdatesChan возвращает канал обновлений
func (s *Service) GetUpdatesChan() tgbotapi.UpdatesChannel {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	return s.bot.GetUpdatesChan(u)
}

// StopReceivingUpdates останавливает long polling
func (s *Service) StopReceivingUpdates() {
	s.bot.StopReceivingUpdates()
}

// SendMessage отправляет текстовое сообщение
func (s *Service) SendMessage(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	_, err := s.bot.Send(msg)

	return err
}

// SendHTMLMessage отправляет сообщение с HTML форматированием
func (s *Service) SendHTMLMessage(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	_, err := s.bot.Send(msg)

	return err
}

// SendPhoto отправляет PNG из памяти с подписью
func (s *Service) SendPhoto(chatID int64, name string, data []byte, caption string) error {
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{Name: name, Bytes: data})
	photo.Caption = caption
	_, err := s.bot.Send(photo)

	return err
}
