package database

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"book-indexer/internal/core/book"
	"book-indexer/internal/database/model"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrBookNotFound    = errors.New("book not found")
	ErrVersionNotFound = errors.New("version not found")
)

// Support is the per-version flag written once a run succeeds.
type Support string

const (
	SupportAI      Support = "ai"
	SupportKeyword Support = "keyword"
)

// Repository reads book records and stores indexing state.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// GetBook loads a book with its author.
func (r *Repository) GetBook(ctx context.Context, id string) (*model.Book, error) {
	var b model.Book
	err := r.db.WithContext(ctx).Preload("Author").Where("id = ?", id).First(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrBookNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// MarkVersion sets the support flag on one version of a book.
func (r *Repository) MarkVersion(ctx context.Context, bookID, value string, kind Support) error {
	return r.updateVersions(ctx, bookID, func(versions []book.Version) ([]book.Version, bool, error) {
		return MarkVersions(versions, value, kind)
	})
}

// AddVersion appends v to the versions of a book unless a version with the
// same value is already listed.
func (r *Repository) AddVersion(ctx context.Context, bookID string, v book.Version) error {
	return r.updateVersions(ctx, bookID, func(versions []book.Version) ([]book.Version, bool, error) {
		out, added := AppendVersion(versions, v)
		return out, added, nil
	})
}

// updateVersions locks the book row for the read-modify-write so concurrent
// runs on other versions of the same book do not overwrite each other.
func (r *Repository) updateVersions(ctx context.Context, bookID string, fn func([]book.Version) ([]book.Version, bool, error)) error {
	return WithTx(ctx, r.db, func(tx *gorm.DB) error {
		var b model.Book
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", bookID).First(&b).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: %s", ErrBookNotFound, bookID)
		}
		if err != nil {
			return err
		}

		versions, changed, err := fn(b.Versions)
		if err != nil || !changed {
			return err
		}
		return tx.Model(&model.Book{}).Where("id = ?", bookID).Update("versions", datatypes.JSONSlice[book.Version](versions)).Error
	})
}

// AppendVersion returns versions with v at the end, or versions unchanged
// when its value is already present.
func AppendVersion(versions []book.Version, v book.Version) ([]book.Version, bool) {
	if slices.ContainsFunc(versions, func(x book.Version) bool { return x.Value == v.Value }) {
		return versions, false
	}
	return append(slices.Clone(versions), v), true
}

// MarkVersions returns a copy of versions with the flag set on the version
// whose value matches.
func MarkVersions(versions []book.Version, value string, kind Support) ([]book.Version, bool, error) {
	i := slices.IndexFunc(versions, func(v book.Version) bool { return v.Value == value })
	if i < 0 {
		return versions, false, fmt.Errorf("%w: %s", ErrVersionNotFound, value)
	}

	out := slices.Clone(versions)
	switch kind {
	case SupportAI:
		if out[i].AISupported {
			return versions, false, nil
		}
		out[i].AISupported = true
	case SupportKeyword:
		if out[i].KeywordSupported {
			return versions, false, nil
		}
		out[i].KeywordSupported = true
	default:
		return versions, false, fmt.Errorf("unknown support kind %q", kind)
	}
	return out, true, nil
}

// GetFlag returns the value of a persistent flag and whether it is set.
func (r *Repository) GetFlag(ctx context.Context, key string) (string, bool, error) {
	f, err := GetFlagByKey(ctx, r.db, key)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return f.Value, true, nil
}

// SetFlag creates or overwrites a persistent flag.
func (r *Repository) SetFlag(ctx context.Context, key, value string) error {
	return UpsertEntity(ctx, r.db, &model.IndexFlag{Key: key, Value: value}, "value", "updated_at")
}

func GetFlagByKey(ctx context.Context, db *gorm.DB, key string) (*model.IndexFlag, error) {
	var f model.IndexFlag
	if err := db.WithContext(ctx).Where("`key` = ?", key).First(&f).Error; err != nil {
		return nil, err
	}
	return &f, nil
}
