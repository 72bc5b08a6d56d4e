package storage

import (
	"accord/backend/internal/models"
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrStorageUnavailable wraps any failure of the database itself.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrConstraintViolation wraps writes rejected by a unique or foreign key.
	ErrConstraintViolation = errors.New("constraint violation")
)

// Storage is the durability boundary of the relay. It knows nothing about
// broadcasting or the assistant.
type Storage interface {
	InsertMessage(ctx context.Context, msg models.Message) (*models.Message, error)
	FetchHistory(ctx context.Context, chatID string, limit int, order models.HistoryOrder) iter.Seq2[models.Message, error]
	RecordRead(ctx context.Context, messageID uint, userID string) error

	GetLatestAnalysis(ctx context.Context, chatID string) (*models.AnalysisResult, error)
	SaveAnalysis(ctx context.Context, result *models.AnalysisResult) error
}

// Service implements Storage on top of gorm.
type Service struct {
	DB *gorm.DB
}

// NewStorageService Constructor
func NewStorageService(db *gorm.DB) *Service {
	return &Service{DB: db}
}

// Migrate creates or updates every table the relay writes to.
func (s *Service) Migrate() error {
	return s.DB.AutoMigrate(
		&models.Chat{},
		&models.Message{},
		&models.ReadReceipt{},
		&models.AnalysisResult{},
	)
}

// InsertMessage commits msg and bumps the chat's last message in the same
// transaction. The returned copy carries the database-assigned ID.
func (s *Service) InsertMessage(ctx context.Context, msg models.Message) (*models.Message, error) {
	msg.ID = 0
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&msg).Error; err != nil {
			return err
		}
		// Chats are owned by the CRUD layer; a missing row is not an error.
		return tx.Model(&models.Chat{}).
			Where("id = ?", msg.ChatID).
			Updates(map[string]any{
				"last_message_text": msg.Text,
				"last_message_at":   msg.Timestamp,
			}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("insert message into %s: %w", msg.ChatID, classify(err))
	}
	return &msg, nil
}

// FetchHistory returns a lazy sequence of at most limit messages of the chat.
// Rows are streamed while the caller ranges; ranging again re-runs the query.
// OrderOldestFirst yields the latest limit messages in ascending id order.
func (s *Service) FetchHistory(ctx context.Context, chatID string, limit int, order models.HistoryOrder) iter.Seq2[models.Message, error] {
	return func(yield func(models.Message, error) bool) {
		if limit <= 0 {
			return
		}

		db := s.DB.WithContext(ctx)
		latest := db.Model(&models.Message{}).
			Where("chat_id = ?", chatID).
			Order("id DESC").
			Limit(limit)

		query := latest
		if order == models.OrderOldestFirst {
			query = db.Table("(?) AS recent", latest).Order("id ASC")
		}

		rows, err := query.Rows()
		if err != nil {
			yield(models.Message{}, fmt.Errorf("fetch history of %s: %w", chatID, classify(err)))
			return
		}
		defer rows.Close()

		for rows.Next() {
			var msg models.Message
			if err := db.ScanRows(rows, &msg); err != nil {
				yield(models.Message{}, fmt.Errorf("scan history of %s: %w", chatID, classify(err)))
				return
			}
			if !yield(msg, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(models.Message{}, fmt.Errorf("fetch history of %s: %w", chatID, classify(err)))
		}
	}
}

// CollectHistory drains a history sequence into a slice.
func CollectHistory(seq iter.Seq2[models.Message, error]) ([]models.Message, error) {
	var out []models.Message
	for msg, err := range seq {
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, nil
}

// RecordRead stores a read receipt. Repeating the same (message, user) pair
// is a no-op.
func (s *Service) RecordRead(ctx context.Context, messageID uint, userID string) error {
	receipt := models.ReadReceipt{MessageID: messageID, UserID: userID}
	err := s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&receipt).Error
	if err != nil {
		return fmt.Errorf("record read of message %d by %s: %w", messageID, userID, classify(err))
	}
	return nil
}

// GetLatestAnalysis returns nil without error when the chat was never analyzed.
func (s *Service) GetLatestAnalysis(ctx context.Context, chatID string) (*models.AnalysisResult, error) {
	var result models.AnalysisResult
	err := s.DB.WithContext(ctx).Where("room_id = ?", chatID).First(&result).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get analysis of %s: %w", chatID, classify(err))
	}
	return &result, nil
}

// SaveAnalysis replaces the chat's latest analysis.
func (s *Service) SaveAnalysis(ctx context.Context, result *models.AnalysisResult) error {
	if result.ProducedAt.IsZero() {
		result.ProducedAt = time.Now().UTC()
	}
	err := s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "room_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"analysis_text", "produced_at"}),
		}).
		Create(result).Error
	if err != nil {
		return fmt.Errorf("save analysis of %s: %w", result.RoomID, classify(err))
	}
	return nil
}

// classify maps a gorm error onto the two storage sentinels, keeping the
// original error in the chain. The DB must be opened with TranslateError.
func classify(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) || errors.Is(err, gorm.ErrForeignKeyViolated) {
		return fmt.Errorf("%w: %w", ErrConstraintViolation, err)
	}
	return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
}
