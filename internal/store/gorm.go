package store

import (
	"context"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/dkeye/Relay/internal/domain"
)

// record is the gorm shape of one transcript entry. The domain type
// stays free of persistence tags.
type record struct {
	ID     uint      `gorm:"primaryKey"`
	Room   string    `gorm:"index:idx_transcript_room_at,priority:1;size:128;not null"`
	Sender string    `gorm:"size:64;not null"`
	Body   string    `gorm:"type:text;not null"`
	Kind   string    `gorm:"size:16;not null"`
	At     time.Time `gorm:"index:idx_transcript_room_at,priority:2;not null"`
}

func (record) TableName() string { return "transcript" }

// Connect opens Postgres with a short retry loop so the server can come
// up before the database container is ready.
func Connect(dsn string) (*gorm.DB, error) {
	var gdb *gorm.DB
	var err error
	for i := 0; i < 10; i++ {
		gdb, err = gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
		if err == nil {
			sqlDB, err2 := gdb.DB()
			if err2 == nil {
				sqlDB.SetMaxIdleConns(5)
				sqlDB.SetMaxOpenConns(20)
				sqlDB.SetConnMaxLifetime(time.Hour)
				return gdb, nil
			}
			err = err2
		}
		time.Sleep(time.Duration(500+i*200) * time.Millisecond)
	}
	return nil, err
}

func Migrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(&record{})
}

// Gorm is the Postgres-backed transcript store.
type Gorm struct {
	db    *gorm.DB
	stamp stamper
}

func NewGorm(db *gorm.DB) *Gorm {
	return &Gorm{db: db}
}

func (g *Gorm) Append(ctx context.Context, msg *domain.Message) error {
	msg.At = g.stamp.next()
	rec := record{
		Room:   msg.Room,
		Sender: msg.Sender,
		Body:   msg.Body,
		Kind:   string(msg.Kind),
		At:     msg.At,
	}
	return g.db.WithContext(ctx).Create(&rec).Error
}

func (g *Gorm) Recent(ctx context.Context, room string, limit int) ([]domain.Message, error) {
	var recs []record
	q := g.db.WithContext(ctx).Where("room = ?", room).Order("at desc, id desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&recs).Error; err != nil {
		return nil, err
	}
	// fetched newest first, hand back ascending
	out := make([]domain.Message, 0, len(recs))
	for i := len(recs) - 1; i >= 0; i-- {
		r := recs[i]
		out = append(out, domain.Message{
			Room:   r.Room,
			Sender: r.Sender,
			Body:   r.Body,
			Kind:   domain.MessageKind(r.Kind),
			At:     r.At,
		})
	}
	return out, nil
}
