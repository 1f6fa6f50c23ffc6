package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DocumentRecord is the row layout used by GormBackend.
type DocumentRecord struct {
	Path       string         `gorm:"primaryKey;size:512"`
	Collection string         `gorm:"index;not null;size:512"`
	DocID      string         `gorm:"not null;size:128"`
	Data       datatypes.JSON `gorm:"not null"`
	CreateTime time.Time      `gorm:"not null"`
	UpdateTime time.Time      `gorm:"not null"`
}

func (DocumentRecord) TableName() string { return "documents" }

// GormBackend stores documents as JSON rows in a single table. The DB
// must be opened with TranslateError so duplicate keys are reported as
// gorm.ErrDuplicatedKey.
type GormBackend struct {
	DB *gorm.DB
}

func NewGormBackend(db *gorm.DB) *GormBackend {
	return &GormBackend{DB: db}
}

func (g *GormBackend) Get(ctx context.Context, path string) (Document, error) {
	var rec DocumentRecord
	err := g.DB.WithContext(ctx).Where("path = ?", path).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Document{}, newError(CodeNotFound, path, "document not found")
	}
	if err != nil {
		return Document{}, err
	}
	return rec.document()
}

func (g *GormBackend) List(ctx context.Context, collection string) ([]Document, error) {
	var recs []DocumentRecord
	if err := g.DB.WithContext(ctx).Where("collection = ?", collection).Find(&recs).Error; err != nil {
		return nil, err
	}
	docs := make([]Document, 0, len(recs))
	for _, rec := range recs {
		doc, err := rec.document()
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (g *GormBackend) Insert(ctx context.Context, doc Document) error {
	rec, err := newRecord(doc)
	if err != nil {
		return err
	}
	err = g.DB.WithContext(ctx).Create(&rec).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return newError(CodeAlreadyExists, doc.Path, "document already exists")
	}
	return err
}

func (g *GormBackend) Replace(ctx context.Context, doc Document) error {
	rec, err := newRecord(doc)
	if err != nil {
		return err
	}
	res := g.DB.WithContext(ctx).Model(&DocumentRecord{}).
		Where("path = ?", doc.Path).
		Updates(map[string]interface{}{
			"data":        rec.Data,
			"update_time": rec.UpdateTime,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return newError(CodeNotFound, doc.Path, "document not found")
	}
	return nil
}

func (g *GormBackend) Remove(ctx context.Context, path string) error {
	res := g.DB.WithContext(ctx).Where("path = ?", path).Delete(&DocumentRecord{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return newError(CodeNotFound, path, "document not found")
	}
	return nil
}

func newRecord(doc Document) (DocumentRecord, error) {
	collection, id, err := splitDocPath(doc.Path)
	if err != nil {
		return DocumentRecord{}, err
	}
	raw, err := json.Marshal(doc.Data)
	if err != nil {
		return DocumentRecord{}, fmt.Errorf("encode %s: %w", doc.Path, err)
	}
	return DocumentRecord{
		Path:       doc.Path,
		Collection: collection,
		DocID:      id,
		Data:       datatypes.JSON(raw),
		CreateTime: doc.CreateTime,
		UpdateTime: doc.UpdateTime,
	}, nil
}

func (r DocumentRecord) document() (Document, error) {
	var data map[string]any
	if err := json.Unmarshal(r.Data, &data); err != nil {
		return Document{}, fmt.Errorf("decode %s: %w", r.Path, err)
	}
	return Document{
		Path:       r.Path,
		ID:         r.DocID,
		Data:       data,
		CreateTime: r.CreateTime,
		UpdateTime: r.UpdateTime,
	}, nil
}
