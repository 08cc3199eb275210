package postgres

import (
	"context"
	"database/sql"

	"rentline/internal/domain"
)

// ProfileRepo serves public profile projections with batched ANY lookups.
type ProfileRepo struct {
	db *sql.DB
}

func NewProfileRepo(db *sql.DB) *ProfileRepo {
	return &ProfileRepo{db: db}
}

var _ domain.ProfileDirectory = (*ProfileRepo)(nil)

func (r *ProfileRepo) Profiles(ctx context.Context, ids []int64) (map[int64]*domain.Profile, error) {
	if len(ids) == 0 {
		return map[int64]*domain.Profile{}, nil
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, full_name, avatar_url, phone, email
		FROM profiles
		WHERE id = ANY($1)
	`, int64Array(ids))
	if err != nil {
		return nil, transportErr("list profiles", err)
	}
	defer rows.Close()

	res := make(map[int64]*domain.Profile, len(ids))
	for rows.Next() {
		p := &domain.Profile{}
		if err := rows.Scan(&p.ID, &p.FullName, &p.AvatarURL, &p.Phone, &p.Email); err != nil {
			return nil, transportErr("scan profile", err)
		}
		res[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, transportErr("iterate profiles", err)
	}
	return res, nil
}

// PropertyRepo serves property title projections.
type PropertyRepo struct {
	db *sql.DB
}

func NewPropertyRepo(db *sql.DB) *PropertyRepo {
	return &PropertyRepo{db: db}
}

var _ domain.PropertyCatalog = (*PropertyRepo)(nil)

func (r *PropertyRepo) Properties(ctx context.Context, ids []int64) (map[int64]*domain.PropertyRef, error) {
	if len(ids) == 0 {
		return map[int64]*domain.PropertyRef{}, nil
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, title
		FROM properties
		WHERE id = ANY($1)
	`, int64Array(ids))
	if err != nil {
		return nil, transportErr("list properties", err)
	}
	defer rows.Close()

	res := make(map[int64]*domain.PropertyRef, len(ids))
	for rows.Next() {
		p := &domain.PropertyRef{}
		if err := rows.Scan(&p.ID, &p.Title); err != nil {
			return nil, transportErr("scan property", err)
		}
		res[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, transportErr("iterate properties", err)
	}
	return res, nil
}

// int64Array copies ids into a slice the pgx stdlib driver maps to BIGINT[].
func int64Array(ids []int64) []int64 {
	out := make([]int64, len(ids))
	copy(out, ids)
	return out
}
