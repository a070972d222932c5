package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/ProSessionAcademy/prosessionacademy--sub001/internal/domain"
	"github.com/ProSessionAcademy/prosessionacademy--sub001/internal/repository/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PostgresMailboxRepository shares mailboxes between service instances.
type PostgresMailboxRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewPostgresMailboxRepository(db *gorm.DB) *PostgresMailboxRepository {
	return &PostgresMailboxRepository{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (r *PostgresMailboxRepository) Migrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&model.Mailbox{}, &model.Candidate{}, &model.Member{})
}

func (r *PostgresMailboxRepository) SetOffer(ctx context.Context, sessionID string, payload json.RawMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.upsert(r.db.WithContext(ctx), sessionID, map[string]any{"offer": []byte(payload)})
}

func (r *PostgresMailboxRepository) SetAnswer(ctx context.Context, sessionID string, payload json.RawMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.upsert(r.db.WithContext(ctx), sessionID, map[string]any{"answer": []byte(payload)})
}

func (r *PostgresMailboxRepository) AppendCandidate(ctx context.Context, sessionID string, role domain.Role, payload json.RawMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := r.upsert(tx, sessionID, nil); err != nil {
			return err
		}
		return tx.Create(&model.Candidate{
			SessionID: sessionID,
			Role:      string(role),
			Payload:   []byte(payload),
			CreatedAt: r.now(),
		}).Error
	})
}

func (r *PostgresMailboxRepository) Admit(ctx context.Context, sessionID string, subject string, limit int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := r.upsert(tx, sessionID, nil); err != nil {
			return err
		}

		// Lock the mailbox row so concurrent admissions are counted one at a time.
		var box model.Mailbox
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&box, "session_id = ?", sessionID).Error; err != nil {
			return err
		}

		var existing int64
		if err := tx.Model(&model.Member{}).
			Where("session_id = ? AND subject = ?", sessionID, subject).
			Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return nil
		}

		if limit > 0 {
			var members int64
			if err := tx.Model(&model.Member{}).
				Where("session_id = ?", sessionID).
				Count(&members).Error; err != nil {
				return err
			}
			if members >= int64(limit) {
				return ErrSessionFull
			}
		}

		return tx.Create(&model.Member{
			SessionID: sessionID,
			Subject:   subject,
			CreatedAt: r.now(),
		}).Error
	})
}

func (r *PostgresMailboxRepository) Read(ctx context.Context, sessionID string) (domain.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return domain.Snapshot{}, err
	}

	var box model.Mailbox
	err := r.db.WithContext(ctx).
		Preload("Candidates", func(db *gorm.DB) *gorm.DB {
			return db.Order("id ASC")
		}).
		First(&box, "session_id = ?", sessionID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.EmptySnapshot(), nil
		}
		return domain.Snapshot{}, err
	}

	return toSnapshot(&box), nil
}

func (r *PostgresMailboxRepository) Delete(ctx context.Context, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ?", sessionID).Delete(&model.Candidate{}).Error; err != nil {
			return err
		}
		if err := tx.Where("session_id = ?", sessionID).Delete(&model.Member{}).Error; err != nil {
			return err
		}
		return tx.Where("session_id = ?", sessionID).Delete(&model.Mailbox{}).Error
	})
}

// Candidates and members go with the row via ON DELETE CASCADE.
func (r *PostgresMailboxRepository) DeleteIdle(ctx context.Context, sessionID string, idleBefore time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	res := r.db.WithContext(ctx).
		Where("session_id = ? AND updated_at < ?", sessionID, idleBefore).
		Delete(&model.Mailbox{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *PostgresMailboxRepository) Sweep(ctx context.Context, idleBefore time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var removed int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		idle := tx.Model(&model.Mailbox{}).Select("session_id").Where("updated_at < ?", idleBefore)

		if err := tx.Where("session_id IN (?)", idle).Delete(&model.Candidate{}).Error; err != nil {
			return err
		}
		if err := tx.Where("session_id IN (?)", idle).Delete(&model.Member{}).Error; err != nil {
			return err
		}
		res := tx.Where("updated_at < ?", idleBefore).Delete(&model.Mailbox{})
		if res.Error != nil {
			return res.Error
		}
		removed = res.RowsAffected
		return nil
	})
	if err != nil {
		return 0, err
	}
	return int(removed), nil
}

func (r *PostgresMailboxRepository) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var count int64
	if err := r.db.WithContext(ctx).Model(&model.Mailbox{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

func (r *PostgresMailboxRepository) upsert(db *gorm.DB, sessionID string, updates map[string]any) error {
	now := r.now()
	row := &model.Mailbox{
		SessionID: sessionID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	assignments := map[string]any{"updated_at": now}
	for column, value := range updates {
		assignments[column] = value
		switch column {
		case "offer":
			row.Offer, _ = value.([]byte)
		case "answer":
			row.Answer, _ = value.([]byte)
		}
	}

	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}},
		DoUpdates: clause.Assignments(assignments),
	}).Create(row).Error
}

func toSnapshot(box *model.Mailbox) domain.Snapshot {
	snap := domain.EmptySnapshot()
	if box.Offer != nil {
		snap.Offer = json.RawMessage(box.Offer)
	}
	if box.Answer != nil {
		snap.Answer = json.RawMessage(box.Answer)
	}
	for _, c := range box.Candidates {
		switch domain.Role(c.Role) {
		case domain.RoleCreator:
			snap.CreatorCandidates = append(snap.CreatorCandidates, json.RawMessage(c.Payload))
		case domain.RolePartner:
			snap.PartnerCandidates = append(snap.PartnerCandidates, json.RawMessage(c.Payload))
		}
	}
	snap.UpdatedAt = box.UpdatedAt
	return snap
}
