package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/bejimenez/magus/internal/domain"
	pfirestore "github.com/bejimenez/magus/internal/platform/firestore"
	"github.com/bejimenez/magus/internal/repositories"
)

const (
	defaultNamesCollection = "generated_names"
	defaultListLimit       = 20
	maxListLimit           = 200
	recordTxAttempts       = 3
	recordTxTimeout        = 5 * time.Second
)

type generatedNameDocument struct {
	Name       string             `firestore:"name"`
	NameLower  string             `firestore:"nameLower"`
	Culture    string             `firestore:"culture"`
	Gender     string             `firestore:"gender,omitempty"`
	Syllables  []string           `firestore:"syllables"`
	Score      float64            `firestore:"score"`
	Parameters nameParamsDocument `firestore:"parameters"`
	UsageCount int64              `firestore:"usageCount"`
	CreatedAt  time.Time          `firestore:"createdAt"`
	UpdatedAt  time.Time          `firestore:"updatedAt"`
}

type nameParamsDocument struct {
	Count                int     `firestore:"count"`
	Length               string  `firestore:"length,omitempty"`
	MinScore             float64 `firestore:"minScore"`
	IncludePronunciation bool    `firestore:"includePronunciation"`
}

// GeneratedNameRepository implements repositories.GeneratedNameRepository with one document per
// (culture, name) pair and a transactional usage counter.
type GeneratedNameRepository struct {
	names *pfirestore.Collection[generatedNameDocument]
	now   func() time.Time
}

var _ repositories.GeneratedNameRepository = (*GeneratedNameRepository)(nil)

// GeneratedNameOption customises the repository.
type GeneratedNameOption func(*GeneratedNameRepository)

// WithNamesCollection overrides the collection name.
func WithNamesCollection(name string) GeneratedNameOption {
	return func(r *GeneratedNameRepository) {
		if strings.TrimSpace(name) != "" {
			r.names = pfirestore.NewCollection[generatedNameDocument](r.names.Provider(), name)
		}
	}
}

// WithNamesClock injects the clock used for timestamps.
func WithNamesClock(now func() time.Time) GeneratedNameOption {
	return func(r *GeneratedNameRepository) {
		if now != nil {
			r.now = now
		}
	}
}

// NewGeneratedNameRepository constructs a Firestore-backed generated name repository.
func NewGeneratedNameRepository(provider *pfirestore.Provider, opts ...GeneratedNameOption) (*GeneratedNameRepository, error) {
	if provider == nil {
		return nil, errors.New("generated name repository requires firestore provider")
	}
	repo := &GeneratedNameRepository{
		names: pfirestore.NewCollection[generatedNameDocument](provider, defaultNamesCollection),
		now:   time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(repo)
		}
	}
	return repo, nil
}

// RecordUsage creates the document on first sight and increments usageCount afterwards.
func (r *GeneratedNameRepository) RecordUsage(ctx context.Context, record domain.NameRecord) (domain.StoredName, error) {
	if r == nil || r.names == nil {
		return domain.StoredName{}, errors.New("generated name repository not initialised")
	}
	id, err := NameDocumentID(record.Culture, record.Name)
	if err != nil {
		return domain.StoredName{}, err
	}

	now := r.now().UTC()
	if !record.CreatedAt.IsZero() {
		now = record.CreatedAt.UTC()
	}

	var stored generatedNameDocument
	err = r.names.Provider().RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.names.Doc(ctx, id)
		if err != nil {
			return err
		}

		snap, err := tx.Get(ref)
		switch {
		case pfirestore.IsNotFound(err):
			stored = newNameDocument(record, now)
			return tx.Create(ref, stored)
		case err != nil:
			return err
		}

		if err := snap.DataTo(&stored); err != nil {
			return fmt.Errorf("firestore generated names decode %s: %w", id, err)
		}
		stored.UsageCount++
		stored.UpdatedAt = now
		return tx.Update(ref, []firestore.Update{
			{Path: "usageCount", Value: firestore.Increment(1)},
			{Path: "updatedAt", Value: now},
		})
	}, pfirestore.WithTxAttempts(recordTxAttempts), pfirestore.WithTxTimeout(recordTxTimeout))
	if err != nil {
		return domain.StoredName{}, pfirestore.WrapError("generated_names.record", err)
	}
	return toStoredName(id, stored), nil
}

// Get fetches a stored name by culture and name.
func (r *GeneratedNameRepository) Get(ctx context.Context, culture, name string) (domain.StoredName, error) {
	id, err := NameDocumentID(culture, name)
	if err != nil {
		return domain.StoredName{}, err
	}
	doc, err := r.names.Get(ctx, id)
	if err != nil {
		return domain.StoredName{}, err
	}
	return toStoredName(doc.ID, doc.Data), nil
}

// ListByCulture returns the most used names for culture.
func (r *GeneratedNameRepository) ListByCulture(ctx context.Context, culture string, limit int) ([]domain.StoredName, error) {
	culture = strings.ToLower(strings.TrimSpace(culture))
	if culture == "" {
		return nil, errors.New("generated names: culture is required")
	}
	limit = clampLimit(limit)

	docs, err := r.names.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("culture", "==", culture).
			OrderBy("usageCount", firestore.Desc).
			Limit(limit)
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.StoredName, 0, len(docs))
	for _, doc := range docs {
		out = append(out, toStoredName(doc.ID, doc.Data))
	}
	return out, nil
}

// NameDocumentID derives the stable document ID for a (culture, name) pair.
func NameDocumentID(culture, name string) (string, error) {
	culture = strings.ToLower(strings.TrimSpace(culture))
	name = strings.ToLower(strings.TrimSpace(name))
	if culture == "" || name == "" {
		return "", errors.New("generated names: culture and name are required")
	}
	replacer := strings.NewReplacer("/", "_", ".", "_")
	return replacer.Replace(culture + "_" + name), nil
}

func newNameDocument(record domain.NameRecord, now time.Time) generatedNameDocument {
	return generatedNameDocument{
		Name:      record.Name,
		NameLower: strings.ToLower(record.Name),
		Culture:   strings.ToLower(record.Culture),
		Gender:    string(record.Gender),
		Syllables: append([]string(nil), record.Syllables...),
		Score:     record.Score,
		Parameters: nameParamsDocument{
			Count:                record.Parameters.Count,
			Length:               string(record.Parameters.Length),
			MinScore:             record.Parameters.MinScore,
			IncludePronunciation: record.Parameters.IncludePronunciation,
		},
		UsageCount: 1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func toStoredName(id string, doc generatedNameDocument) domain.StoredName {
	return domain.StoredName{
		ID:         id,
		Name:       doc.Name,
		Culture:    doc.Culture,
		Gender:     domain.Gender(doc.Gender),
		Syllables:  append([]string(nil), doc.Syllables...),
		Score:      doc.Score,
		UsageCount: doc.UsageCount,
		CreatedAt:  doc.CreatedAt,
		UpdatedAt:  doc.UpdatedAt,
	}
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultListLimit
	case limit > maxListLimit:
		return maxListLimit
	default:
		return limit
	}
}
