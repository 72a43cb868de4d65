package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"ledgerpos/backend/internal/domain"
	"ledgerpos/backend/internal/rollback"
	"ledgerpos/backend/internal/store"
	"ledgerpos/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Options struct {
	// Location sets the calendar-day boundary for lock keys. Defaults to UTC.
	Location        *time.Location
	CorrectionLabel string
	RetentionDays   int
	Logger          logrus.FieldLogger
	Now             func() time.Time
}

type Service struct {
	repo            store.Repository
	reconstructor   *rollback.Reconstructor
	validate        *validator.Validate
	log             logrus.FieldLogger
	tz              *time.Location
	correctionLabel string
	retentionDays   int
	now             func() time.Time
}

func New(repo store.Repository, opts Options) *Service {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if strings.TrimSpace(opts.CorrectionLabel) == "" {
		opts.CorrectionLabel = "KOREKTA"
	}
	if opts.RetentionDays < 1 {
		opts.RetentionDays = 30
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Service{
		repo:            repo,
		reconstructor:   rollback.NewReconstructor(repo, rollback.NewDisambiguator(opts.CorrectionLabel), opts.Logger),
		validate:        validator.New(),
		log:             opts.Logger.WithField("module", "service"),
		tz:              opts.Location,
		correctionLabel: opts.CorrectionLabel,
		retentionDays:   opts.RetentionDays,
		now:             opts.Now,
	}
}

func (s *Service) CorrectionLabel() string {
	return s.correctionLabel
}

func (s *Service) RetentionDays() int {
	return s.retentionDays
}

func (s *Service) ListAuditLogs(ctx context.Context, date string, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	var from time.Time
	if strings.TrimSpace(date) == "" {
		from = s.now().UTC().Add(-24 * time.Hour)
	} else {
		parsed, err := s.parseDate(date)
		if err != nil {
			return nil, err
		}
		from = startOfDay(parsed, s.tz)
	}
	to := from.Add(24 * time.Hour)

	return s.repo.ListAuditLogs(ctx, from, to, limit)
}

// validateStruct runs struct tags and flattens failures to field:tag pairs.
func (s *Service) validateStruct(op string, v any) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return domain.Validation(op, "%v", err)
	}
	pairs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		pairs = append(pairs, fmt.Sprintf("%s: %s", fe.Field(), fe.Tag()))
	}
	sort.Strings(pairs)
	return domain.Validation(op, "%s", strings.Join(pairs, ", "))
}

// ParseDate resolves a query date the same way lock checks do.
func (s *Service) ParseDate(raw string) (time.Time, error) {
	return s.parseDate(raw)
}

// parseDate accepts a calendar day (read in the business timezone) or a
// full RFC 3339 timestamp.
func (s *Service) parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, domain.Validation("parse date", "date is required")
	}
	if parsed, err := time.ParseInLocation(domain.DayLayout, raw, s.tz); err == nil {
		return parsed, nil
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, domain.Validation("parse date", "date %q must be YYYY-MM-DD or RFC 3339", raw)
	}
	return parsed, nil
}

func (s *Service) dayKey(t time.Time) string {
	return t.In(s.tz).Format(domain.DayLayout)
}

func startOfDay(t time.Time, tz *time.Location) time.Time {
	local := t.In(tz)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, tz).UTC()
}

func (s *Service) logAudit(ctx context.Context, location string, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		Location:      location,
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     s.now().UTC(),
	}); err != nil {
		s.log.WithFields(logrus.Fields{
			"action": action,
			"entity": entityType + "/" + entityID,
		}).WithError(err).Warn("failed to write audit log")
	}
}
