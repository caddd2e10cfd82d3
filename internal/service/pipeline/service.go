// Package pipeline is the caller-facing surface: it turns images into stored
// prescriptions and runs grounded conversations over them.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/medlens/rxchat/backend/internal/logging"
	"github.com/medlens/rxchat/backend/internal/model/prescription"
	"github.com/medlens/rxchat/backend/internal/service/chat"
	"github.com/medlens/rxchat/backend/internal/service/normalize"
	"github.com/medlens/rxchat/backend/internal/service/ocr"
	"github.com/medlens/rxchat/backend/internal/service/session"
)

var ErrExtractorUnavailable = errors.New("no OCR engine configured")

type Service struct {
	store         prescription.Store
	extractor     ocr.Extractor
	sessions      *session.Manager
	chat          *chat.Service
	maxImageBytes int
	logger        zerolog.Logger
}

type Option func(*Service)

// WithMaxImageBytes rejects uploads above n bytes.
func WithMaxImageBytes(n int) Option {
	return func(s *Service) { s.maxImageBytes = n }
}

func NewService(store prescription.Store, extractor ocr.Extractor, sessions *session.Manager, chatSvc *chat.Service, opts ...Option) *Service {
	svc := &Service{
		store:     store,
		extractor: extractor,
		sessions:  sessions,
		chat:      chatSvc,
		logger:    logging.Component("pipeline"),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// ExtractAndStore recognizes the text in image, normalizes it and stores it as
// a new prescription record.
func (s *Service) ExtractAndStore(ctx context.Context, image []byte) (prescription.Record, error) {
	text, err := s.Extract(ctx, image)
	if err != nil {
		return prescription.Record{}, err
	}

	record, err := s.store.Create(ctx, text)
	if err != nil {
		s.logger.Debug().Err(err).Msg("failed to store prescription")
		return prescription.Record{}, err
	}

	s.logger.Info().Str("id", record.ID).Int("length", len(record.RawText)).Msg("prescription stored")
	return record, nil
}

// Extract runs OCR and normalization without storing the result.
func (s *Service) Extract(ctx context.Context, image []byte) (string, error) {
	if s.extractor == nil {
		return "", ErrExtractorUnavailable
	}

	format, err := ocr.Sniff(image, s.maxImageBytes)
	if err != nil {
		return "", err
	}

	raw, err := s.extractor.Extract(ctx, image)
	if err != nil {
		s.logger.Warn().Err(err).Str("engine", s.extractor.Name()).Msg("text extraction failed")
		if errors.Is(err, ocr.ErrExtraction) || errors.Is(err, ocr.ErrUnsupportedImage) || ctx.Err() != nil {
			return "", err
		}
		return "", fmt.Errorf("%w: %w", ocr.ErrExtraction, err)
	}

	text, err := normalize.Normalize(raw)
	if err != nil {
		s.logger.Warn().Str("format", string(format)).Msg("no readable text in image")
		return "", err
	}
	return text, nil
}

func (s *Service) ListPrescriptions(ctx context.Context) ([]prescription.Summary, error) {
	return s.store.List(ctx)
}

func (s *Service) GetPrescription(ctx context.Context, id string) (prescription.Record, error) {
	return s.store.Get(ctx, id)
}

// OpenSession starts a session grounded on recordID, or a direct chat when
// recordID is empty.
func (s *Service) OpenSession(ctx context.Context, recordID string) (*session.Session, error) {
	if recordID == "" {
		return s.sessions.OpenUnanchored(ctx)
	}
	record, err := s.store.Get(ctx, recordID)
	if err != nil {
		return nil, err
	}
	return s.sessions.OpenAnchored(ctx, record)
}

// OpenSessionAll starts a session grounded on every stored prescription,
// newest first.
func (s *Service) OpenSessionAll(ctx context.Context) (*session.Session, error) {
	summaries, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}

	records := make([]prescription.Record, 0, len(summaries))
	for _, summary := range summaries {
		record, err := s.store.Get(ctx, summary.ID)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return s.sessions.OpenCombined(ctx, records)
}

// OpenSessionFromText normalizes raw and starts a session grounded on it
// without storing anything.
func (s *Service) OpenSessionFromText(ctx context.Context, raw string) (*session.Session, error) {
	text, err := normalize.Normalize(raw)
	if err != nil {
		return nil, err
	}
	return s.sessions.OpenTransient(ctx, text)
}

func (s *Service) Session(ctx context.Context, id string) (*session.Session, error) {
	return s.sessions.Get(ctx, id)
}

func (s *Service) SendMessage(ctx context.Context, sess *session.Session, text string) (string, error) {
	return s.chat.Converse(ctx, sess, text)
}

func (s *Service) StreamMessage(ctx context.Context, sess *session.Session, text string, onDelta func(string)) (string, error) {
	return s.chat.ConverseStream(ctx, sess, text, onDelta)
}

func (s *Service) StreamingEnabled() bool {
	return s.chat.StreamingEnabled()
}

func (s *Service) CloseSession(ctx context.Context, sess *session.Session) error {
	return s.sessions.Close(ctx, sess)
}

// Ping reports whether the prescription store is reachable.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}
