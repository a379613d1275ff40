package model

import (
	"time"

	"book-indexer/internal/core/book"

	"gorm.io/datatypes"
)

const (
	TableNameAuthor    = "authors"
	TableNameBook      = "books"
	TableNameIndexFlag = "index_flags"
)

type Author struct {
	ID        string    `gorm:"column:id;primaryKey;size:64" json:"id"`
	Slug      string    `gorm:"column:slug;uniqueIndex;size:191;not null" json:"slug"`
	Name      string    `gorm:"column:name;size:255" json:"name"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (*Author) TableName() string { return TableNameAuthor }

// Book keeps its published versions in display order. The order matters when
// no version is requested explicitly.
type Book struct {
	ID        string                           `gorm:"column:id;primaryKey;size:64" json:"id"`
	Slug      string                           `gorm:"column:slug;uniqueIndex;size:191;not null" json:"slug"`
	AuthorID  string                           `gorm:"column:author_id;index;size:64;not null" json:"author_id"`
	Author    *Author                          `gorm:"foreignKey:AuthorID" json:"author,omitempty"`
	Versions  datatypes.JSONSlice[book.Version] `gorm:"column:versions" json:"versions"`
	CreatedAt time.Time                        `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time                        `gorm:"column:updated_at" json:"updated_at"`
}

func (*Book) TableName() string { return TableNameBook }

// IndexFlag is a persistent switch shared by every indexing run.
type IndexFlag struct {
	Key       string    `gorm:"column:key;primaryKey;size:191" json:"key"`
	Value     string    `gorm:"column:value;size:255;not null" json:"value"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (*IndexFlag) TableName() string { return TableNameIndexFlag }

// All lists the models owned by this service, for migrations and codegen.
func All() []any {
	return []any{&Author{}, &Book{}, &IndexFlag{}}
}
