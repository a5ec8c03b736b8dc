// Package service: единственный владелец состояния: CRUD сущностей, полей и
// записей, каскады, валидация, отчёты, импорт/экспорт и сидирование.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"datalogger/internal/metrics"
	"datalogger/internal/model"
	"datalogger/internal/report"
	"datalogger/internal/store"
)

var (
	ErrNotFound        = store.ErrNotFound
	ErrStorage         = errors.New("storage failure")
	ErrVersionConflict = errors.New("version conflict")
)

type Service struct {
	// mu сериализует мутации (удаление поля + чистка сущностей не перемешиваются)
	mu sync.Mutex

	st       store.Store
	entities store.Repo[model.Entity]
	fields   store.Repo[model.Field]
	records  store.Repo[model.Record]
	config   store.Repo[model.Config]

	log     *zap.Logger
	metrics *metrics.Metrics
	loc     *time.Location
	now     func() time.Time

	idMu    sync.Mutex
	entropy io.Reader
}

type Option func(*Service)

func WithLogger(l *zap.Logger) Option { return func(s *Service) { s.log = l } }

func WithMetrics(m *metrics.Metrics) Option { return func(s *Service) { s.metrics = m } }

// WithLocation задаёт часовой пояс для границ дат в фильтрах.
func WithLocation(loc *time.Location) Option { return func(s *Service) { s.loc = loc } }

// WithClock подменяет часы (тесты).
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func New(st store.Store, opts ...Option) *Service {
	src := rand.New(rand.NewSource(time.Now().UnixNano()))
	s := &Service{
		st:       st,
		entities: store.NewRepo[model.Entity](st, store.Entities),
		fields:   store.NewRepo[model.Field](st, store.Fields),
		records:  store.NewRepo[model.Record](st, store.Records),
		config:   store.NewRepo[model.Config](st, store.Data),
		log:      zap.NewNop(),
		loc:      time.UTC,
		now:      time.Now,
		entropy:  ulid.Monotonic(src, 0),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) Location() *time.Location { return s.loc }

func (s *Service) engine() report.Engine { return report.Engine{Location: s.loc} }

func (s *Service) newID() string {
	s.idMu.Lock()
	defer s.idMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(s.now()), s.entropy).String()
}

// stamp: текущее время с точностью до миллисекунды (как хранится в JSON)
func (s *Service) stamp() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

// fail логирует сбой хранилища и оборачивает его в ErrStorage.
// ErrNotFound пробрасывается как есть.
func (s *Service) fail(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, store.ErrNotFound) {
		return err
	}
	s.log.Error("storage operation failed", zap.String("op", op), zap.Error(err))
	s.metrics.StoreFailure(op)
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}

func checkVersion(expected, actual int64) error {
	if expected != 0 && expected != actual {
		return fmt.Errorf("%w: expected version %d, current %d", ErrVersionConflict, expected, actual)
	}
	return nil
}

func invalid(errs ...model.FieldError) error {
	return &model.ValidationError{Errors: errs}
}

func sameName(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

func (s *Service) Close() error { return s.st.Close() }

// Ping проверяет доступность хранилища.
func (s *Service) Ping(ctx context.Context) error {
	_, err := s.st.List(ctx, store.Data)
	return s.fail("ping", err)
}
