package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"rentline/internal/domain"
)

// projectionTTL bounds staleness of cached profile/property projections.
const projectionTTL = 5 * time.Minute

// Directory decorates the profile and property lookups with a read-through
// projection cache. Cache failures fall back to the underlying store; a
// cache can slow enrichment down, never break it.
type Directory struct {
	cache      Cache
	profiles   domain.ProfileDirectory
	properties domain.PropertyCatalog
}

func NewDirectory(c Cache, profiles domain.ProfileDirectory, properties domain.PropertyCatalog) *Directory {
	return &Directory{cache: c, profiles: profiles, properties: properties}
}

var (
	_ domain.ProfileDirectory = (*Directory)(nil)
	_ domain.PropertyCatalog  = (*Directory)(nil)
)

func (d *Directory) Profiles(ctx context.Context, ids []int64) (map[int64]*domain.Profile, error) {
	res := make(map[int64]*domain.Profile, len(ids))
	cached := d.getBatch(ctx, ids, profileKey)
	missing := make([]int64, 0, len(ids))
	for _, id := range ids {
		var p domain.Profile
		if raw, ok := cached[profileKey(id)]; ok && json.Unmarshal([]byte(raw), &p) == nil {
			res[id] = &p
			continue
		}
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return res, nil
	}

	fetched, err := d.profiles.Profiles(ctx, missing)
	if err != nil {
		return nil, err
	}
	for id, p := range fetched {
		res[id] = p
		d.setJSON(ctx, profileKey(id), p)
	}
	return res, nil
}

func (d *Directory) Properties(ctx context.Context, ids []int64) (map[int64]*domain.PropertyRef, error) {
	res := make(map[int64]*domain.PropertyRef, len(ids))
	cached := d.getBatch(ctx, ids, propertyKey)
	missing := make([]int64, 0, len(ids))
	for _, id := range ids {
		var p domain.PropertyRef
		if raw, ok := cached[propertyKey(id)]; ok && json.Unmarshal([]byte(raw), &p) == nil {
			res[id] = &p
			continue
		}
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return res, nil
	}

	fetched, err := d.properties.Properties(ctx, missing)
	if err != nil {
		return nil, err
	}
	for id, p := range fetched {
		res[id] = p
		d.setJSON(ctx, propertyKey(id), p)
	}
	return res, nil
}

// Invalidate drops cached projections, e.g. after a profile edit elsewhere.
func (d *Directory) Invalidate(ctx context.Context, profileIDs ...int64) {
	keys := make([]string, len(profileIDs))
	for i, id := range profileIDs {
		keys[i] = profileKey(id)
	}
	_ = d.cache.Del(ctx, keys...)
}

// getBatch reads all candidate keys in one cache round trip, mirroring the
// batched IN-lookup on the store side. A failed read degrades to all-miss.
func (d *Directory) getBatch(ctx context.Context, ids []int64, keyFn func(int64) string) map[string]string {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = keyFn(id)
	}
	cached, err := d.cache.GetMany(ctx, keys)
	if err != nil {
		return nil
	}
	return cached
}

func (d *Directory) setJSON(ctx context.Context, key string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	_ = d.cache.Set(ctx, key, string(raw), projectionTTL)
}

func profileKey(id int64) string  { return fmt.Sprintf("profile:%d", id) }
func propertyKey(id int64) string { return fmt.Sprintf("property:%d", id) }
