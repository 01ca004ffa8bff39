package transform

import (
	"sort"
	"strings"
	"time"

	"github.com/ethpandaops/pipelinoor/pkg/store"
)

// Canonical code mappings for the standardized categorical columns. The
// catalog is closed: new codes mean a code change, not configuration.
var (
	// MaritalStatus standardizes the CRM marital status flag.
	MaritalStatus = NewCodeMap(map[string]string{
		"S": "Single",
		"M": "Married",
	})

	// Gender standardizes the CRM gender flag.
	Gender = NewCodeMap(map[string]string{
		"F": "Female",
		"M": "Male",
	})

	// ERPGender standardizes the ERP gender column, which carries both
	// single-letter and spelled-out codes.
	ERPGender = NewCodeMap(map[string]string{
		"F":      "Female",
		"FEMALE": "Female",
		"M":      "Male",
		"MALE":   "Male",
	})

	// ProductLine standardizes the CRM product line code.
	ProductLine = NewCodeMap(map[string]string{
		"M": "Mountain",
		"R": "Road",
		"S": "Other Sales",
		"T": "Touring",
	})

	// Country maps ERP country codes and abbreviations to canonical
	// country names.
	Country = NewCodeMap(map[string]string{
		"DE":  "Germany",
		"US":  "United States",
		"USA": "United States",
	})

	// Maintenance standardizes the product category maintenance flag.
	// Unlike the sibling mappings it passes unmatched values through
	// unchanged; the column is effectively free text.
	Maintenance = NewPassThroughCodeMap(map[string]string{
		"Y":   "Yes",
		"YES": "Yes",
		"N":   "No",
		"NO":  "No",
	})
)

// TransformCustomers deduplicates the CRM customer feed by customer id,
// keeping the most recently created row per key, and standardizes the
// categorical columns. Rows without a parseable customer id are dropped.
func TransformCustomers(raw []store.RawCustomer) []store.CleanCustomer {
	deduped := DedupeByKey(
		raw,
		func(r store.RawCustomer) (int64, bool) {
			return ParseKey(r.CustomerID)
		},
		func(r store.RawCustomer) time.Time {
			if t := CoerceISODate(r.CreateDate); t != nil {
				return *t
			}

			return time.Time{}
		},
	)

	clean := make([]store.CleanCustomer, 0, len(deduped))

	for _, r := range deduped {
		id, _ := ParseKey(r.CustomerID)

		clean = append(clean, store.CleanCustomer{
			CustomerID:    id,
			CustomerKey:   strings.TrimSpace(r.CustomerKey),
			FirstName:     strings.TrimSpace(r.FirstName),
			LastName:      strings.TrimSpace(r.LastName),
			MaritalStatus: MaritalStatus.Standardize(r.MaritalStatus),
			Gender:        Gender.Standardize(r.Gender),
			CreateDate:    CoerceISODate(r.CreateDate),
		})
	}

	return clean
}

// TransformProducts splits the composite product key, standardizes the
// line code, repairs the cost and reconstructs the SCD2 version history
// per product code from the start-date-only feed. Rows without a
// parseable product id or start date cannot be versioned and are
// dropped.
func TransformProducts(raw []store.RawProduct) []store.CleanProduct {
	type version struct {
		row   store.RawProduct
		id    int64
		start time.Time
	}

	groups := make(map[string][]version)
	order := make([]string, 0, len(raw))

	for _, r := range raw {
		id, ok := ParseKey(r.ProductID)
		if !ok {
			continue
		}

		start := CoerceISODate(r.StartDate)
		if start == nil {
			continue
		}

		_, productCode := SplitProductKey(r.ProductKey)

		if _, seen := groups[productCode]; !seen {
			order = append(order, productCode)
		}

		groups[productCode] = append(groups[productCode], version{
			row:   r,
			id:    id,
			start: *start,
		})
	}

	clean := make([]store.CleanProduct, 0, len(raw))

	for _, code := range order {
		versions := groups[code]

		sort.SliceStable(versions, func(i, j int) bool {
			return versions[i].start.Before(versions[j].start)
		})

		starts := make([]time.Time, len(versions))
		for i, v := range versions {
			starts[i] = v.start
		}

		_, ends := ChainSCD2(starts)

		for i, v := range versions {
			categoryID, productCode := SplitProductKey(v.row.ProductKey)

			cost := 0.0
			if c := ParseFloat(v.row.Cost); c != nil && *c > 0 {
				cost = *c
			}

			clean = append(clean, store.CleanProduct{
				ProductID:   v.id,
				CategoryID:  categoryID,
				ProductCode: productCode,
				ProductName: strings.TrimSpace(v.row.ProductName),
				Cost:        cost,
				Line:        ProductLine.Standardize(v.row.Line),
				StartDate:   v.start,
				EndDate:     ends[i],
			})
		}
	}

	return clean
}

// TransformSales coerces the fixed-width text dates and repairs the
// amount/price consistency per row.
func TransformSales(raw []store.RawSale) []store.CleanSale {
	clean := make([]store.CleanSale, 0, len(raw))

	for _, r := range raw {
		quantity, _ := ParseKey(r.Quantity)
		customerID, _ := ParseKey(r.CustomerID)

		sales, price := RepairSales(
			ParseFloat(r.Sales), ParseFloat(r.Price), quantity,
		)

		clean = append(clean, store.CleanSale{
			OrderNumber: strings.TrimSpace(r.OrderNumber),
			ProductCode: strings.TrimSpace(r.ProductCode),
			CustomerID:  customerID,
			OrderDate:   CoerceDate8(r.OrderDate),
			ShipDate:    CoerceDate8(r.ShipDate),
			DueDate:     CoerceDate8(r.DueDate),
			Sales:       sales,
			Quantity:    quantity,
			Price:       price,
		})
	}

	return clean
}

// TransformERPCustomers strips the legacy key prefix, nulls impossible
// birthdates and standardizes the gender column. now anchors the
// future-birthdate check.
func TransformERPCustomers(
	raw []store.RawERPCustomer, now time.Time,
) []store.CleanERPCustomer {
	clean := make([]store.CleanERPCustomer, 0, len(raw))

	for _, r := range raw {
		key := strings.TrimSpace(r.CustomerKey)
		key = strings.TrimPrefix(key, "NAS")

		birthDate := CoerceISODate(r.BirthDate)
		if birthDate != nil && birthDate.After(now) {
			birthDate = nil
		}

		clean = append(clean, store.CleanERPCustomer{
			CustomerKey: key,
			BirthDate:   birthDate,
			Gender:      ERPGender.Standardize(r.Gender),
		})
	}

	return clean
}

// TransformLocations strips the key punctuation and maps country codes
// to canonical names; empty or unmatched codes become the sentinel.
func TransformLocations(raw []store.RawLocation) []store.CleanLocation {
	clean := make([]store.CleanLocation, 0, len(raw))

	for _, r := range raw {
		key := strings.ReplaceAll(strings.TrimSpace(r.CustomerKey), "-", "")

		clean = append(clean, store.CleanLocation{
			CustomerKey: key,
			Country:     Country.Standardize(r.Country),
		})
	}

	return clean
}

// TransformProductCategories trims the descriptive columns and
// standardizes the maintenance flag (pass-through on unmatched values).
func TransformProductCategories(
	raw []store.RawProductCategory,
) []store.CleanProductCategory {
	clean := make([]store.CleanProductCategory, 0, len(raw))

	for _, r := range raw {
		clean = append(clean, store.CleanProductCategory{
			CategoryID:  strings.TrimSpace(r.CategoryID),
			Category:    strings.TrimSpace(r.Category),
			Subcategory: strings.TrimSpace(r.Subcategory),
			Maintenance: Maintenance.Standardize(r.Maintenance),
		})
	}

	return clean
}
