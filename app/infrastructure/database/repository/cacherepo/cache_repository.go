package cacherepo

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"hydrogen.im/hydrogen-worker/app/domain/assetcache"
	"hydrogen.im/hydrogen-worker/app/infrastructure/database/dbschema"
)

type CacheGormRepository struct {
	db     *gorm.DB
	locker assetcache.Locker
}

func NewCacheGormRepository(db *gorm.DB, locker assetcache.Locker) *CacheGormRepository {
	return &CacheGormRepository{
		db:     db,
		locker: locker,
	}
}

func (r *CacheGormRepository) Open(ctx context.Context, name string) (assetcache.Namespace, error) {
	model := dbschema.CacheNamespace{Name: name}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "name"}}, DoNothing: true}).
		Create(&model).Error
	if err != nil {
		return nil, fmt.Errorf("failed to open cache %q: %w", name, err)
	}
	return &gormNamespace{db: r.db, name: name}, nil
}

func (r *CacheGormRepository) Has(ctx context.Context, name string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&dbschema.CacheNamespace{}).Where("name = ?", name).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check cache %q: %w", name, err)
	}
	return count > 0, nil
}

func (r *CacheGormRepository) Names(ctx context.Context) ([]string, error) {
	var names []string
	err := r.db.WithContext(ctx).Model(&dbschema.CacheNamespace{}).Order("name").Pluck("name", &names).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list caches: %w", err)
	}
	return names, nil
}

func (r *CacheGormRepository) Delete(ctx context.Context, name string) (bool, error) {
	var removed bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("namespace = ?", name).Delete(&dbschema.CacheEntry{}).Error; err != nil {
			return err
		}
		res := tx.Where("name = ?", name).Delete(&dbschema.CacheNamespace{})
		if res.Error != nil {
			return res.Error
		}
		removed = res.RowsAffected > 0
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to delete cache %q: %w", name, err)
	}
	return removed, nil
}

func (r *CacheGormRepository) HealthCheck(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (r *CacheGormRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (r *CacheGormRepository) Locker() assetcache.Locker {
	return r.locker
}

type gormNamespace struct {
	db   *gorm.DB
	name string
}

func (n *gormNamespace) Name() string {
	return n.name
}

func (n *gormNamespace) Match(ctx context.Context, key string) (*assetcache.Response, error) {
	var models []dbschema.CacheEntry
	err := n.db.WithContext(ctx).
		Where("namespace = ? AND request_key = ?", n.name, key).
		Limit(1).
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get value: %w", err)
	}
	if len(models) == 0 {
		return nil, nil
	}
	return models[0].EtoD(), nil
}

func (n *gormNamespace) Put(ctx context.Context, key string, resp *assetcache.Response) error {
	model := dbschema.NewSchemaCacheEntry(n.name, key, resp.Clone().Stamp())
	err := n.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "name"}}, DoNothing: true}).
			Create(&dbschema.CacheNamespace{Name: n.name}).Error
		if err != nil {
			return err
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "namespace"}, {Name: "request_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"url", "status", "status_text", "header", "body", "stored_at", "updated_at"}),
		}).Create(model).Error
	})
	if err != nil {
		return fmt.Errorf("failed to store key: %w", err)
	}
	return nil
}

func (n *gormNamespace) Delete(ctx context.Context, key string) (bool, error) {
	res := n.db.WithContext(ctx).Where("namespace = ? AND request_key = ?", n.name, key).Delete(&dbschema.CacheEntry{})
	if res.Error != nil {
		return false, fmt.Errorf("failed to delete key: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (n *gormNamespace) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	err := n.db.WithContext(ctx).Model(&dbschema.CacheEntry{}).
		Where("namespace = ?", n.name).
		Order("request_key").
		Pluck("request_key", &keys).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	return keys, nil
}
