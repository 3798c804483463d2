package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	domain "github.com/grocery-storefront/api/internal/domain"
	"github.com/grocery-storefront/api/internal/repositories"
)

const couponColumns = `code, type, value, min_cart_total, max_uses, max_uses_per_user, used_count, starts_at, expires_at, is_active, created_at, updated_at`

type couponRepository struct{ s *Store }

func scanCoupon(row pgx.Row) (domain.Coupon, error) {
	var (
		c         domain.Coupon
		couponTyp string
	)
	err := row.Scan(&c.Code, &couponTyp, &c.Value, &c.MinCartTotal, &c.MaxUses, &c.MaxUsesPerUser, &c.UsedCount, &c.StartsAt, &c.ExpiresAt, &c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	c.Type = domain.CouponType(couponTyp)
	return c, err
}

func (r couponRepository) FindByCode(ctx context.Context, code string) (domain.Coupon, error) {
	code = domain.NormalizeCouponCode(code)
	q := r.s.querier(ctx)
	coupon, err := scanCoupon(q.QueryRow(ctx, `SELECT `+couponColumns+` FROM coupons WHERE code = $1`, code))
	if err != nil {
		return domain.Coupon{}, wrapError("coupons.find", err)
	}
	coupon.UsedBy, err = r.usages(ctx, q, code)
	if err != nil {
		return domain.Coupon{}, err
	}
	return coupon, nil
}

func (r couponRepository) usages(ctx context.Context, q querier, code string) (map[string]int, error) {
	rows, err := q.Query(ctx, `SELECT user_id, uses FROM coupon_usages WHERE code = $1`, code)
	if err != nil {
		return nil, wrapError("coupons.usages", err)
	}
	defer rows.Close()
	usedBy := make(map[string]int)
	for rows.Next() {
		var (
			userID string
			uses   int
		)
		if err := rows.Scan(&userID, &uses); err != nil {
			return nil, wrapError("coupons.usages", err)
		}
		usedBy[userID] = uses
	}
	return usedBy, wrapError("coupons.usages", rows.Err())
}

// RecordUsage locks the coupon row so concurrent redemptions re-check the limits in turn.
func (r couponRepository) RecordUsage(ctx context.Context, code string, userID string, at time.Time) (domain.Coupon, error) {
	code = domain.NormalizeCouponCode(code)
	var updated domain.Coupon
	err := r.s.RunInTx(ctx, func(ctx context.Context) error {
		q := r.s.querier(ctx)
		coupon, err := scanCoupon(q.QueryRow(ctx, `SELECT `+couponColumns+` FROM coupons WHERE code = $1 FOR UPDATE`, code))
		if err != nil {
			return wrapError("coupons.record_usage", err)
		}
		var userUses int
		if userID != "" {
			err := q.QueryRow(ctx, `SELECT uses FROM coupon_usages WHERE code = $1 AND user_id = $2`, code, userID).Scan(&userUses)
			if err != nil && !errors.Is(err, pgx.ErrNoRows) {
				return wrapError("coupons.record_usage", err)
			}
		}
		usage := repositories.CouponUsage{
			Code:           code,
			MaxUses:        coupon.MaxUses,
			MaxUsesPerUser: coupon.MaxUsesPerUser,
			UsedCount:      coupon.UsedCount,
			UserCount:      userUses,
		}
		if err := repositories.CheckCouponUsage(usage, userID); err != nil {
			return err
		}

		if _, err := q.Exec(ctx, `UPDATE coupons SET used_count = used_count + 1, updated_at = $2 WHERE code = $1`, code, at.UTC()); err != nil {
			return wrapError("coupons.record_usage", err)
		}
		if userID != "" {
			_, err := q.Exec(ctx,
				`INSERT INTO coupon_usages (code, user_id, uses) VALUES ($1, $2, 1)
				 ON CONFLICT (code, user_id) DO UPDATE SET uses = coupon_usages.uses + 1`,
				code, userID)
			if err != nil {
				return wrapError("coupons.record_usage", err)
			}
		}
		updated, err = r.FindByCode(ctx, code)
		return err
	})
	return updated, err
}

func (r couponRepository) Insert(ctx context.Context, coupon domain.Coupon) error {
	_, err := r.s.querier(ctx).Exec(ctx,
		`INSERT INTO coupons (`+couponColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		domain.NormalizeCouponCode(coupon.Code), string(coupon.Type), coupon.Value, coupon.MinCartTotal,
		coupon.MaxUses, coupon.MaxUsesPerUser, coupon.UsedCount, coupon.StartsAt, coupon.ExpiresAt,
		coupon.IsActive, coupon.CreatedAt.UTC(), coupon.UpdatedAt.UTC())
	return wrapError("coupons.insert", err)
}

func (r couponRepository) Update(ctx context.Context, coupon domain.Coupon) error {
	tag, err := r.s.querier(ctx).Exec(ctx,
		`UPDATE coupons SET type = $2, value = $3, min_cart_total = $4, max_uses = $5, max_uses_per_user = $6,
		 starts_at = $7, expires_at = $8, is_active = $9, updated_at = $10
		 WHERE code = $1`,
		domain.NormalizeCouponCode(coupon.Code), string(coupon.Type), coupon.Value, coupon.MinCartTotal,
		coupon.MaxUses, coupon.MaxUsesPerUser, coupon.StartsAt, coupon.ExpiresAt, coupon.IsActive, coupon.UpdatedAt.UTC())
	if err != nil {
		return wrapError("coupons.update", err)
	}
	if tag.RowsAffected() == 0 {
		return repositories.NewNotFoundError("coupons.update", pgx.ErrNoRows)
	}
	return nil
}

func (r couponRepository) List(ctx context.Context, filter repositories.CouponListFilter) (domain.Page[domain.Coupon], error) {
	q := r.s.querier(ctx)
	page := domain.Page[domain.Coupon]{Page: filter.Page.Page, Limit: filter.Page.Limit, Items: []domain.Coupon{}}
	if err := q.QueryRow(ctx, `SELECT count(*) FROM coupons WHERE is_active OR $1`, filter.IncludeInactive).Scan(&page.Total); err != nil {
		return page, wrapError("coupons.list", err)
	}
	rows, err := q.Query(ctx,
		`SELECT `+couponColumns+` FROM coupons WHERE is_active OR $1 ORDER BY code LIMIT $2 OFFSET $3`,
		filter.IncludeInactive, limitOrAll(filter.Page.Limit), filter.Page.Offset())
	if err != nil {
		return page, wrapError("coupons.list", err)
	}
	defer rows.Close()
	for rows.Next() {
		coupon, err := scanCoupon(rows)
		if err != nil {
			return page, wrapError("coupons.list", err)
		}
		page.Items = append(page.Items, coupon)
	}
	return page, wrapError("coupons.list", rows.Err())
}

// limitOrAll maps a non-positive limit to NULL, which PostgreSQL treats as LIMIT ALL.
func limitOrAll(limit int) *int {
	if limit <= 0 {
		return nil
	}
	return &limit
}
