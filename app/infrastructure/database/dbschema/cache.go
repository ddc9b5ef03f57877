package dbschema

import (
	"encoding/json"
	"net/http"

	"hydrogen.im/hydrogen-worker/app/domain/assetcache"
	"hydrogen.im/hydrogen-worker/app/infrastructure/database"
)

func init() {
	database.RegisterSchemaForAutoMigrate(CacheNamespace{})
	database.RegisterSchemaForAutoMigrate(CacheEntry{})
}

type CacheNamespace struct {
	BaseModel
	Name string `gorm:"type:varchar(255);uniqueIndex;not null"`
}

type CacheEntry struct {
	BaseModel
	Namespace  string `gorm:"type:varchar(255);not null;uniqueIndex:idx_cache_entry_key,priority:1"`
	RequestKey string `gorm:"type:varchar(2048);not null;uniqueIndex:idx_cache_entry_key,priority:2"`
	URL        string `gorm:"type:varchar(2048)"`
	Status     int    `gorm:"not null"`
	StatusText string `gorm:"type:varchar(255)"`
	Header     string `gorm:"type:text"`
	Body       []byte
	StoredAt   int64 `gorm:"type:bigint"`
}

func NewSchemaCacheEntry(namespace string, key string, r *assetcache.Response) *CacheEntry {
	headerJSON := "{}"
	if r.Header != nil {
		if b, err := json.Marshal(r.Header); err == nil {
			headerJSON = string(b)
		}
	}
	return &CacheEntry{
		Namespace:  namespace,
		RequestKey: key,
		URL:        r.URL,
		Status:     r.Status,
		StatusText: r.StatusText,
		Header:     headerJSON,
		Body:       r.Body,
		StoredAt:   r.StoredAt,
	}
}

func (e *CacheEntry) EtoD() *assetcache.Response {
	var header http.Header
	if e.Header != "" {
		json.Unmarshal([]byte(e.Header), &header)
	}
	return &assetcache.Response{
		URL:        e.URL,
		Status:     e.Status,
		StatusText: e.StatusText,
		Header:     header,
		Body:       e.Body,
		StoredAt:   e.StoredAt,
	}
}
