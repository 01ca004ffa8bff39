package quality

import (
	"context"
	"fmt"
	"time"

	"github.com/ethpandaops/pipelinoor/pkg/store"
	"github.com/ethpandaops/pipelinoor/pkg/transform"
	"gorm.io/gorm"
)

// Stable rule codes. Operators map a failure back to an invariant by
// code, so existing codes must never be renumbered.
const (
	CodeCustomerKeyTotality = 50001
	CodeProductKeyTotality  = 50002
	CodeMaritalStatusDomain = 50011
	CodeGenderDomain        = 50012
	CodeProductLineDomain   = 50013
	CodeSCD2OrderValidity   = 50021
	CodeSalesDateValidity   = 50022
	CodeSalesConsistency    = 50031
	CodeCountryDomain       = 50041
)

// SalesTolerance is the maximum absolute difference tolerated between
// the stored amount and quantity x price.
const SalesTolerance = 0.01

// Rule is a named deterministic predicate over one cleansed entity. The
// check counts violating rows; any count above zero fails the rule.
type Rule struct {
	Code   int
	Name   string
	Entity string
	Check  func(ctx context.Context, db *gorm.DB) (int64, error)
}

// Rules returns the ordered rule catalog. now anchors the
// future-date checks.
func Rules(now time.Time) []Rule {
	return []Rule{
		{
			Code:   CodeCustomerKeyTotality,
			Name:   "customer_key_totality",
			Entity: store.EntityCRMCustomers,
			Check: func(ctx context.Context, db *gorm.DB) (int64, error) {
				return countRaw(ctx, db, `
					SELECT COUNT(*) FROM (
						SELECT customer_id FROM clean_crm_customers
						GROUP BY customer_id
						HAVING COUNT(*) > 1 OR customer_id IS NULL
					) violations`)
			},
		},
		{
			Code:   CodeProductKeyTotality,
			Name:   "product_key_totality",
			Entity: store.EntityCRMProducts,
			Check: func(ctx context.Context, db *gorm.DB) (int64, error) {
				return countRaw(ctx, db, `
					SELECT COUNT(*) FROM (
						SELECT product_code, start_date FROM clean_crm_products
						GROUP BY product_code, start_date
						HAVING COUNT(*) > 1 OR product_code = ''
					) violations`)
			},
		},
		{
			Code:   CodeMaritalStatusDomain,
			Name:   "marital_status_domain",
			Entity: store.EntityCRMCustomers,
			Check: func(ctx context.Context, db *gorm.DB) (int64, error) {
				return countWhere(ctx, db, "clean_crm_customers",
					"marital_status NOT IN ?", transform.MaritalStatus.Canonical())
			},
		},
		{
			Code:   CodeGenderDomain,
			Name:   "gender_domain",
			Entity: store.EntityCRMCustomers,
			Check: func(ctx context.Context, db *gorm.DB) (int64, error) {
				return countWhere(ctx, db, "clean_crm_customers",
					"gender NOT IN ?", transform.Gender.Canonical())
			},
		},
		{
			Code:   CodeProductLineDomain,
			Name:   "product_line_domain",
			Entity: store.EntityCRMProducts,
			Check: func(ctx context.Context, db *gorm.DB) (int64, error) {
				return countWhere(ctx, db, "clean_crm_products",
					"line NOT IN ?", transform.ProductLine.Canonical())
			},
		},
		{
			Code:   CodeSCD2OrderValidity,
			Name:   "scd2_order_validity",
			Entity: store.EntityCRMProducts,
			Check: func(ctx context.Context, db *gorm.DB) (int64, error) {
				return countWhere(ctx, db, "clean_crm_products",
					"end_date < start_date")
			},
		},
		{
			Code:   CodeSalesDateValidity,
			Name:   "sales_date_validity",
			Entity: store.EntityCRMSales,
			Check: func(ctx context.Context, db *gorm.DB) (int64, error) {
				return countWhere(ctx, db, "clean_crm_sales",
					"order_date > ship_date OR order_date > due_date OR order_date > ?",
					now)
			},
		},
		{
			Code:   CodeSalesConsistency,
			Name:   "sales_consistency",
			Entity: store.EntityCRMSales,
			Check: func(ctx context.Context, db *gorm.DB) (int64, error) {
				return countWhere(ctx, db, "clean_crm_sales",
					"sales IS NULL OR price IS NULL OR ABS(sales - quantity * price) > ?",
					SalesTolerance)
			},
		},
		{
			Code:   CodeCountryDomain,
			Name:   "country_domain",
			Entity: store.EntityERPLocations,
			Check: func(ctx context.Context, db *gorm.DB) (int64, error) {
				return countWhere(ctx, db, "clean_erp_locations",
					"country NOT IN ?", transform.Country.Canonical())
			},
		},
	}
}

func countRaw(
	ctx context.Context, db *gorm.DB, query string, args ...any,
) (int64, error) {
	var count int64
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&count).Error; err != nil {
		return 0, fmt.Errorf("counting violations: %w", err)
	}

	return count, nil
}

func countWhere(
	ctx context.Context, db *gorm.DB, table, cond string, args ...any,
) (int64, error) {
	var count int64
	if err := db.WithContext(ctx).
		Table(table).
		Where(cond, args...).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("counting violations: %w", err)
	}

	return count, nil
}
