package assets

import (
	"context"
	"errors"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

type Blob struct {
	Name      string `gorm:"primaryKey;size:255"`
	Data      []byte `gorm:"not null"`
	UpdatedAt time.Time
}

type SQLStore struct {
	db *gorm.DB
}

func InitDB(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	err = db.AutoMigrate(&Blob{})
	if err != nil {
		return nil, err
	}

	return db, nil
}

func NewSQLStore(db *gorm.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) Get(ctx context.Context, key string) ([]byte, error) {
	var blob Blob
	err := s.db.WithContext(ctx).Where("name = ?", key).First(&blob).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, Missing
	}
	if err != nil {
		return nil, err
	}

	return blob.Data, nil
}

func (s *SQLStore) Set(ctx context.Context, key string, data []byte) error {
	blob := Blob{
		Name:      key,
		Data:      data,
		UpdatedAt: time.Now(),
	}

	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&blob).Error
}
