package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"robogarage/internal/models"

	_ "modernc.org/sqlite"
)

const (
	roleActive = "active"
	roleLast   = "last"
)

var ErrNotFound = errors.New("not found")

// Storage управляет базой данных гаража
type Storage struct {
	db     *sql.DB
	logger *slog.Logger
}

// New создает новый экземпляр Storage
func New(dbPath string, logger *slog.Logger) (*Storage, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	// sqlite не любит параллельных писателей
	db.SetMaxOpenConns(1)

	storage := &Storage{
		db:     db,
		logger: logger,
	}

	if err := storage.init(); err != nil {
		db.Close()
		return nil, err
	}

	return storage, nil
}

// init инициализирует таблицы БД
func (s *Storage) init() error {
	migrationSQL := `
-- Слоты гаража
CREATE TABLE IF NOT EXISTS slots (
    token TEXT PRIMARY KEY,
    hash_id TEXT UNIQUE NOT NULL,
    nickname TEXT NOT NULL DEFAULT '',
    pub_key TEXT NOT NULL DEFAULT '',
    enc_priv_key TEXT NOT NULL DEFAULT '',
    position INTEGER NOT NULL DEFAULT 0,
    is_current INTEGER DEFAULT 0,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Роботы слота, по одному на координатора
CREATE TABLE IF NOT EXISTS slot_robots (
    token TEXT NOT NULL,
    short_alias TEXT NOT NULL,
    position INTEGER NOT NULL DEFAULT 0,
    nickname TEXT NOT NULL DEFAULT '',
    last_order_id TEXT NOT NULL DEFAULT '',
    active_order_id TEXT NOT NULL DEFAULT '',
    earned_rewards INTEGER NOT NULL DEFAULT 0,
    found INTEGER DEFAULT 0,
    tg_enabled INTEGER DEFAULT 0,
    PRIMARY KEY(token, short_alias),
    FOREIGN KEY(token) REFERENCES slots(token) ON DELETE CASCADE
);

-- Активный и последний ордер слота
CREATE TABLE IF NOT EXISTS slot_orders (
    token TEXT NOT NULL,
    role TEXT NOT NULL,
    order_id TEXT NOT NULL,
    short_alias TEXT NOT NULL,
    status INTEGER NOT NULL,
    is_participant INTEGER DEFAULT 0,
    bad_request TEXT NOT NULL DEFAULT '',
    type INTEGER NOT NULL DEFAULT 0,
    currency INTEGER NOT NULL DEFAULT 0,
    amount TEXT NOT NULL DEFAULT '0',
    premium TEXT NOT NULL DEFAULT '0',
    payment_method TEXT NOT NULL DEFAULT '',
    expires_at DATETIME,
    PRIMARY KEY(token, role),
    FOREIGN KEY(token) REFERENCES slots(token) ON DELETE CASCADE
);

-- Лог активности
CREATE TABLE IF NOT EXISTS activity_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    hash_id TEXT,
    level TEXT NOT NULL,
    action TEXT NOT NULL,
    message TEXT NOT NULL,
    details TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_activity_log_hash ON activity_log(hash_id);
CREATE INDEX IF NOT EXISTS idx_activity_log_created ON activity_log(created_at DESC);
`

	if _, err := s.db.Exec(migrationSQL); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	s.logger.Info("✅ Garage database initialized")

	return nil
}

// === Slots ===

// SaveSlot сохраняет слот целиком: роботов и ссылки на ордера
func (s *Storage) SaveSlot(ctx context.Context, record models.SlotRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO slots (token, hash_id, nickname, pub_key, enc_priv_key, position, is_current)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(token) DO UPDATE SET
			nickname = excluded.nickname,
			pub_key = excluded.pub_key,
			enc_priv_key = excluded.enc_priv_key,
			position = excluded.position,
			is_current = excluded.is_current
	`, record.Token, record.HashID, record.Nickname, record.Keys.PubKey, record.Keys.EncPrivKey,
		record.Position, boolToInt(record.IsCurrent))
	if err != nil {
		return fmt.Errorf("failed to save slot: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM slot_robots WHERE token = ?", record.Token); err != nil {
		return fmt.Errorf("failed to clear robots: %w", err)
	}

	for i, robot := range record.Robots {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO slot_robots (token, short_alias, position, nickname, last_order_id, active_order_id,
			                         earned_rewards, found, tg_enabled)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, record.Token, robot.ShortAlias, i, robot.Nickname, robot.LastOrderID, robot.ActiveOrderID,
			robot.EarnedRewards, boolToInt(robot.Found), boolToInt(robot.TGEnabled))
		if err != nil {
			return fmt.Errorf("failed to save robot %s: %w", robot.ShortAlias, err)
		}
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM slot_orders WHERE token = ?", record.Token); err != nil {
		return fmt.Errorf("failed to clear orders: %w", err)
	}

	for role, order := range map[string]*models.Order{roleActive: record.ActiveOrder, roleLast: record.LastOrder} {
		if order == nil {
			continue
		}

		var expiresAt sql.NullTime
		if !order.ExpiresAt.IsZero() {
			expiresAt = sql.NullTime{Time: order.ExpiresAt, Valid: true}
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO slot_orders (token, role, order_id, short_alias, status, is_participant, bad_request,
			                         type, currency, amount, premium, payment_method, expires_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, record.Token, role, order.ID, order.ShortAlias, int(order.Status), boolToInt(order.IsParticipant),
			order.BadRequest, int(order.Type), order.Currency, order.Amount, order.Premium, order.PaymentMethod, expiresAt)
		if err != nil {
			return fmt.Errorf("failed to save %s order: %w", role, err)
		}
	}

	return tx.Commit()
}

// LoadSlots загружает все слоты в порядке position
func (s *Storage) LoadSlots(ctx context.Context) ([]models.SlotRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT token, hash_id, nickname, pub_key, enc_priv_key, position, coalesce(is_current, 0), created_at
		FROM slots
		ORDER BY position, created_at
	`)
	if err != nil {
		return nil, err
	}

	var records []models.SlotRecord
	for rows.Next() {
		var record models.SlotRecord
		var isCurrentInt int

		err := rows.Scan(&record.Token, &record.HashID, &record.Nickname, &record.Keys.PubKey,
			&record.Keys.EncPrivKey, &record.Position, &isCurrentInt, &record.CreatedAt)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan slot: %w", err)
		}

		record.IsCurrent = isCurrentInt == 1
		records = append(records, record)
	}
	rows.Close()

	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range records {
		if records[i].Robots, err = s.robots(ctx, records[i].Token); err != nil {
			return nil, err
		}

		if err := s.orders(ctx, &records[i]); err != nil {
			return nil, err
		}
	}

	return records, nil
}

func (s *Storage) robots(ctx context.Context, token string) ([]models.Robot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT short_alias, nickname, last_order_id, active_order_id, earned_rewards,
		       coalesce(found, 0), coalesce(tg_enabled, 0)
		FROM slot_robots
		WHERE token = ?
		ORDER BY position
	`, token)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var robots []models.Robot
	for rows.Next() {
		var robot models.Robot
		var foundInt, tgEnabledInt int

		err := rows.Scan(&robot.ShortAlias, &robot.Nickname, &robot.LastOrderID, &robot.ActiveOrderID,
			&robot.EarnedRewards, &foundInt, &tgEnabledInt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan robot: %w", err)
		}

		robot.Token = token
		robot.Found = foundInt == 1
		robot.TGEnabled = tgEnabledInt == 1
		robots = append(robots, robot)
	}

	return robots, rows.Err()
}

func (s *Storage) orders(ctx context.Context, record *models.SlotRecord) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT role, order_id, short_alias, status, coalesce(is_participant, 0), bad_request,
		       type, currency, amount, premium, payment_method, expires_at
		FROM slot_orders
		WHERE token = ?
	`, record.Token)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			role          string
			order         models.Order
			status        int
			orderType     int
			participating int
			expiresAt     sql.NullTime
		)

		err := rows.Scan(&role, &order.ID, &order.ShortAlias, &status, &participating, &order.BadRequest,
			&orderType, &order.Currency, &order.Amount, &order.Premium, &order.PaymentMethod, &expiresAt)
		if err != nil {
			return fmt.Errorf("failed to scan order: %w", err)
		}

		order.Status = models.OrderStatus(status)
		order.Type = models.OrderType(orderType)
		order.IsParticipant = participating == 1
		if expiresAt.Valid {
			order.ExpiresAt = expiresAt.Time
		}

		switch role {
		case roleActive:
			record.ActiveOrder = &order
		case roleLast:
			record.LastOrder = &order
		}
	}

	return rows.Err()
}

// DeleteSlot удаляет слот вместе с роботами и ордерами
func (s *Storage) DeleteSlot(ctx context.Context, token string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, query := range []string{
		"DELETE FROM slot_orders WHERE token = ?",
		"DELETE FROM slot_robots WHERE token = ?",
	} {
		if _, err := tx.ExecContext(ctx, query, token); err != nil {
			return err
		}
	}

	result, err := tx.ExecContext(ctx, "DELETE FROM slots WHERE token = ?", token)
	if err != nil {
		return err
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}

	return tx.Commit()
}

// SetCurrentSlot помечает слот текущим
func (s *Storage) SetCurrentSlot(ctx context.Context, token string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "UPDATE slots SET is_current = 0"); err != nil {
		return err
	}

	result, err := tx.ExecContext(ctx, "UPDATE slots SET is_current = 1 WHERE token = ?", token)
	if err != nil {
		return err
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}

	return tx.Commit()
}

// === Activity Log ===

// AddLog добавляет запись в лог
func (s *Storage) AddLog(ctx context.Context, log models.ActivityLog) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO activity_log (hash_id, level, action, message, details)
		VALUES (?, ?, ?, ?, ?)
	`, log.HashID, log.Level, log.Action, log.Message, log.Details)

	return err
}

// GetLogs получает последние записи лога слота
func (s *Storage) GetLogs(ctx context.Context, hashID string, limit int) ([]models.ActivityLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, coalesce(hash_id, ''), level, action, message, coalesce(details, ''), created_at
		FROM activity_log
		WHERE hash_id = ? OR hash_id IS NULL
		ORDER BY id DESC
		LIMIT ?
	`, hashID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []models.ActivityLog
	for rows.Next() {
		var log models.ActivityLog
		err := rows.Scan(&log.ID, &log.HashID, &log.Level, &log.Action, &log.Message, &log.Details, &log.CreatedAt)
		if err != nil {
			continue
		}

		logs = append(logs, log)
	}

	return logs, rows.Err()
}

// Close закрывает соединение с БД
func (s *Storage) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}

	return 0
}
