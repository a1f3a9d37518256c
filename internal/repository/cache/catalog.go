package cache

import (
	"context"
	"strconv"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/servicebook/booking-api/internal/model"
	"github.com/servicebook/booking-api/internal/repository"
)

type Config struct {
	TTL             time.Duration
	CleanupInterval time.Duration
}

// Catalog memoizes vendor identity lookups. Vendor to user ownership never
// changes, so only GetVendor and GetVendorIDByUserID are cached; service rows
// carry price and are always read through.
type Catalog struct {
	repository.CatalogRepository
	cache *gocache.Cache
}

func NewCatalog(next repository.CatalogRepository, cfg Config) *Catalog {
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Minute
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 2 * cfg.TTL
	}
	return &Catalog{
		CatalogRepository: next,
		cache:             gocache.New(cfg.TTL, cfg.CleanupInterval),
	}
}

func (c *Catalog) GetVendor(ctx context.Context, id int64) (*model.Vendor, error) {
	key := "vendor:" + strconv.FormatInt(id, 10)
	if v, found := c.cache.Get(key); found {
		vendor := v.(model.Vendor)
		return &vendor, nil
	}

	vendor, err := c.CatalogRepository.GetVendor(ctx, id)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, *vendor, gocache.DefaultExpiration)
	return vendor, nil
}

func (c *Catalog) GetVendorIDByUserID(ctx context.Context, userID int64) (int64, error) {
	key := "user:" + strconv.FormatInt(userID, 10)
	if v, found := c.cache.Get(key); found {
		return v.(int64), nil
	}

	id, err := c.CatalogRepository.GetVendorIDByUserID(ctx, userID)
	if err != nil {
		return 0, err
	}
	c.cache.Set(key, id, gocache.DefaultExpiration)
	return id, nil
}

// ItemCount reports the number of memoized lookups.
func (c *Catalog) ItemCount() int {
	return c.cache.ItemCount()
}
