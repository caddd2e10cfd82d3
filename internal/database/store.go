package database

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/medlens/rxchat/backend/internal/logging"
	"github.com/medlens/rxchat/backend/internal/model/prescription"
)

// PrescriptionStore implements prescription.Store on top of gorm.
type PrescriptionStore struct {
	db     *gorm.DB
	now    func() time.Time
	logger zerolog.Logger
}

var _ prescription.Store = (*PrescriptionStore)(nil)

func NewPrescriptionStore(db *gorm.DB) *PrescriptionStore {
	return &PrescriptionStore{
		db:     db,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logging.Component("store"),
	}
}

// WithClock overrides the timestamp source.
func (s *PrescriptionStore) WithClock(now func() time.Time) *PrescriptionStore {
	s.now = now
	return s
}

func (s *PrescriptionStore) Create(ctx context.Context, normalizedText string) (prescription.Record, error) {
	if strings.TrimSpace(normalizedText) == "" {
		return prescription.Record{}, prescription.ErrEmptyText
	}

	row := Prescription{
		ID:        uuid.NewString(),
		RawText:   normalizedText,
		CreatedAt: s.now(),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		s.logger.Debug().Err(err).Msg("error creating prescription")
		return prescription.Record{}, s.unavailable(err, "create prescription")
	}
	return toRecord(row), nil
}

func (s *PrescriptionStore) List(ctx context.Context) ([]prescription.Summary, error) {
	var rows []Prescription
	if err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Order("id DESC").
		Find(&rows).Error; err != nil {
		s.logger.Debug().Err(err).Msg("error listing prescriptions")
		return nil, s.unavailable(err, "list prescriptions")
	}

	summaries := make([]prescription.Summary, 0, len(rows))
	for _, row := range rows {
		summaries = append(summaries, toRecord(row).Summary())
	}
	return summaries, nil
}

func (s *PrescriptionStore) Get(ctx context.Context, id string) (prescription.Record, error) {
	var row Prescription
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return prescription.Record{}, prescription.ErrNotFound
	}
	if err != nil {
		s.logger.Debug().Err(err).Str("id", id).Msg("error fetching prescription")
		return prescription.Record{}, s.unavailable(err, "get prescription "+id)
	}
	return toRecord(row), nil
}

func (s *PrescriptionStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return s.unavailable(err, "access connection pool")
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return s.unavailable(err, "ping database")
	}
	return nil
}

func (s *PrescriptionStore) unavailable(err error, action string) error {
	return &storeError{cause: errors.Wrap(err, action)}
}

func toRecord(row Prescription) prescription.Record {
	return prescription.Record{ID: row.ID, RawText: row.RawText, CreatedAt: row.CreatedAt.UTC()}
}

// storeError matches prescription.ErrStoreUnavailable while keeping the
// wrapped driver error and its stack.
type storeError struct {
	cause error
}

func (e *storeError) Error() string {
	return prescription.ErrStoreUnavailable.Error() + ": " + e.cause.Error()
}

func (e *storeError) Unwrap() []error {
	return []error{prescription.ErrStoreUnavailable, e.cause}
}
