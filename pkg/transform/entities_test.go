package transform

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/pipelinoor/pkg/store"
)

func TestTransformCustomers(t *testing.T) {
	raw := []store.RawCustomer{
		{
			CustomerID: "7", CustomerKey: "AW00000007",
			FirstName: " Jon ", LastName: "Yang",
			MaritalStatus: "M", Gender: "M",
			CreateDate: "2024-01-01",
		},
		{
			CustomerID: "7", CustomerKey: "AW00000007",
			FirstName: "Jon", LastName: "Yang",
			MaritalStatus: "S", Gender: "M",
			CreateDate: "2024-06-01",
		},
		{
			// No parseable key: dropped.
			CustomerID: "", FirstName: "Ghost",
		},
		{
			CustomerID: "9", CustomerKey: "AW00000009",
			FirstName: "Eugene", LastName: "Huang",
			MaritalStatus: "zz", Gender: "",
			CreateDate: "not-a-date",
		},
	}

	clean := TransformCustomers(raw)
	require.Len(t, clean, 2)

	// Key 7 carries the attributes of the 2024-06-01 row.
	first := clean[0]
	assert.Equal(t, int64(7), first.CustomerID)
	assert.Equal(t, "Jon", first.FirstName)
	assert.Equal(t, "Single", first.MaritalStatus)
	assert.Equal(t, "Male", first.Gender)
	require.NotNil(t, first.CreateDate)
	assert.Equal(t, date(2024, 6, 1), *first.CreateDate)

	// Unmatched codes become the sentinel, unparseable dates become
	// null.
	second := clean[1]
	assert.Equal(t, Unknown, second.MaritalStatus)
	assert.Equal(t, Unknown, second.Gender)
	assert.Nil(t, second.CreateDate)
}

func TestTransformProducts_SCD2(t *testing.T) {
	raw := []store.RawProduct{
		{
			ProductID: "210", ProductKey: "CO-RF-FR-P1",
			ProductName: "Frame P1", Cost: "100", Line: "R",
			StartDate: "2024-07-01",
		},
		{
			ProductID: "211", ProductKey: "CO-RF-FR-P1",
			ProductName: "Frame P1", Cost: "90", Line: "R",
			StartDate: "2024-01-01",
		},
	}

	clean := TransformProducts(raw)
	require.Len(t, clean, 2)

	// Versions come out ordered by start date; the chain is contiguous
	// and the last version is open.
	assert.Equal(t, date(2024, 1, 1), clean[0].StartDate)
	assert.Equal(t, date(2024, 6, 30), clean[0].EndDate)
	assert.Equal(t, date(2024, 7, 1), clean[1].StartDate)
	assert.Equal(t, OpenEndDate, clean[1].EndDate)

	assert.Equal(t, "CO_RF", clean[0].CategoryID)
	assert.Equal(t, "FR-P1", clean[0].ProductCode)
	assert.Equal(t, "Road", clean[0].Line)
	assert.Equal(t, 90.0, clean[0].Cost)
}

func TestTransformProducts_DropsUnversionableRows(t *testing.T) {
	raw := []store.RawProduct{
		{ProductID: "bad", ProductKey: "CO-RF-FR-P1", StartDate: "2024-01-01"},
		{ProductID: "1", ProductKey: "CO-RF-FR-P1", StartDate: ""},
		{ProductID: "2", ProductKey: "CO-RF-FR-P2", StartDate: "2024-01-01", Cost: "-5"},
	}

	clean := TransformProducts(raw)
	require.Len(t, clean, 1)
	assert.Equal(t, int64(2), clean[0].ProductID)

	// Negative cost is repaired to zero.
	assert.Equal(t, 0.0, clean[0].Cost)
}

func TestTransformSales(t *testing.T) {
	raw := []store.RawSale{
		{
			OrderNumber: "SO001", ProductCode: "FR-P1", CustomerID: "7",
			OrderDate: "20240601", ShipDate: "20240608", DueDate: "20240613",
			Sales: "15", Quantity: "2", Price: "10",
		},
		{
			OrderNumber: "SO002", ProductCode: "FR-P1", CustomerID: "9",
			OrderDate: "0", ShipDate: "20240701", DueDate: "20240706",
			Sales: "30", Quantity: "3", Price: "",
		},
	}

	clean := TransformSales(raw)
	require.Len(t, clean, 2)

	// Inconsistent amount is repaired to quantity x |price|.
	first := clean[0]
	require.NotNil(t, first.Sales)
	assert.Equal(t, 20.0, *first.Sales)
	require.NotNil(t, first.OrderDate)
	assert.Equal(t, date(2024, 6, 1), *first.OrderDate)

	// Invalid fixed-width date becomes null, missing price is derived.
	second := clean[1]
	assert.Nil(t, second.OrderDate)
	require.NotNil(t, second.Price)
	assert.Equal(t, 10.0, *second.Price)
}

func TestTransformERPCustomers(t *testing.T) {
	now := date(2025, 1, 1)

	raw := []store.RawERPCustomer{
		{CustomerKey: "NASAW00000007 ", BirthDate: "1980-05-04", Gender: "FEMALE"},
		{CustomerKey: "AW00000009", BirthDate: "2030-01-01", Gender: "weird"},
	}

	clean := TransformERPCustomers(raw, now)
	require.Len(t, clean, 2)

	// The legacy prefix is stripped only when present at the start.
	assert.Equal(t, "AW00000007", clean[0].CustomerKey)
	require.NotNil(t, clean[0].BirthDate)
	assert.Equal(t, "Female", clean[0].Gender)

	// Future birthdates are impossible and become null.
	assert.Equal(t, "AW00000009", clean[1].CustomerKey)
	assert.Nil(t, clean[1].BirthDate)
	assert.Equal(t, Unknown, clean[1].Gender)
}

func TestTransformLocations(t *testing.T) {
	raw := []store.RawLocation{
		{CustomerKey: "AW-00000007", Country: "us"},
		{CustomerKey: "AW-00000009", Country: "DE"},
		{CustomerKey: "AW-00000010", Country: "zz"},
		{CustomerKey: "AW-00000011", Country: ""},
	}

	clean := TransformLocations(raw)
	require.Len(t, clean, 4)

	assert.Equal(t, "AW00000007", clean[0].CustomerKey)
	assert.Equal(t, "United States", clean[0].Country)
	assert.Equal(t, "Germany", clean[1].Country)
	assert.Equal(t, Unknown, clean[2].Country)
	assert.Equal(t, Unknown, clean[3].Country)
}

func TestTransformProductCategories(t *testing.T) {
	raw := []store.RawProductCategory{
		{CategoryID: " CO_RF ", Category: "Components", Subcategory: "Road Frames", Maintenance: "yes"},
		{CategoryID: "AC_HE", Category: "Accessories", Subcategory: "Helmets", Maintenance: "Quarterly"},
	}

	clean := TransformProductCategories(raw)
	require.Len(t, clean, 2)

	assert.Equal(t, "CO_RF", clean[0].CategoryID)
	assert.Equal(t, "Yes", clean[0].Maintenance)

	// The maintenance flag passes unmatched values through unchanged.
	assert.Equal(t, "Quarterly", clean[1].Maintenance)
}

// TransformERPCustomers must not mutate its input slice; all transforms
// are pure functions of the raw snapshot.
func TestTransformsArePure(t *testing.T) {
	raw := []store.RawERPCustomer{
		{CustomerKey: "NASAW1", BirthDate: "1980-05-04", Gender: "F"},
	}
	original := raw[0]

	_ = TransformERPCustomers(raw, time.Now().UTC())

	assert.Equal(t, original, raw[0])
}
