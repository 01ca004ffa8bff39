package store

import (
	"fmt"
	"time"
)

// Entity keys for the fixed entity catalog. The keys double as config
// source identifiers and run-log entity names.
const (
	EntityCRMCustomers         = "crm_customers"
	EntityCRMProducts          = "crm_products"
	EntityCRMSales             = "crm_sales"
	EntityERPCustomers         = "erp_customers"
	EntityERPLocations         = "erp_locations"
	EntityERPProductCategories = "erp_product_categories"
)

// Entities lists all known entity keys in processing order.
var Entities = []string{
	EntityCRMCustomers,
	EntityCRMProducts,
	EntityCRMSales,
	EntityERPCustomers,
	EntityERPLocations,
	EntityERPProductCategories,
}

// KnownEntity reports whether the given entity key is part of the catalog.
func KnownEntity(entity string) bool {
	for _, e := range Entities {
		if e == entity {
			return true
		}
	}

	return false
}

// --- Raw layer ---
//
// Raw models mirror the source files column for column. Every field is a
// plain string so that a load never fails on a malformed value; typing
// happens in the transform stage.

// RawCustomer is a CRM customer feed row as loaded.
type RawCustomer struct {
	ID            uint   `gorm:"primaryKey"`
	CustomerID    string `mapstructure:"customer_id"`
	CustomerKey   string `mapstructure:"customer_key"`
	FirstName     string `mapstructure:"first_name"`
	LastName      string `mapstructure:"last_name"`
	MaritalStatus string `mapstructure:"marital_status"`
	Gender        string `mapstructure:"gender"`
	CreateDate    string `mapstructure:"create_date"`
}

// TableName returns the raw CRM customer table name.
func (RawCustomer) TableName() string { return "raw_crm_customers" }

// RawProduct is a CRM product feed row as loaded. The feed carries only
// version start dates; end dates are reconstructed in the transform.
type RawProduct struct {
	ID          uint   `gorm:"primaryKey"`
	ProductID   string `mapstructure:"product_id"`
	ProductKey  string `mapstructure:"product_key"`
	ProductName string `mapstructure:"product_name"`
	Cost        string `mapstructure:"cost"`
	Line        string `mapstructure:"line"`
	StartDate   string `mapstructure:"start_date"`
}

// TableName returns the raw CRM product table name.
func (RawProduct) TableName() string { return "raw_crm_products" }

// RawSale is a CRM sales detail feed row as loaded.
type RawSale struct {
	ID          uint   `gorm:"primaryKey"`
	OrderNumber string `mapstructure:"order_number"`
	ProductCode string `mapstructure:"product_code"`
	CustomerID  string `mapstructure:"customer_id"`
	OrderDate   string `mapstructure:"order_date"`
	ShipDate    string `mapstructure:"ship_date"`
	DueDate     string `mapstructure:"due_date"`
	Sales       string `mapstructure:"sales"`
	Quantity    string `mapstructure:"quantity"`
	Price       string `mapstructure:"price"`
}

// TableName returns the raw CRM sales table name.
func (RawSale) TableName() string { return "raw_crm_sales" }

// RawERPCustomer is an ERP customer demographics row as loaded.
type RawERPCustomer struct {
	ID          uint   `gorm:"primaryKey"`
	CustomerKey string `mapstructure:"customer_key"`
	BirthDate   string `mapstructure:"birth_date"`
	Gender      string `mapstructure:"gender"`
}

// TableName returns the raw ERP customer table name.
func (RawERPCustomer) TableName() string { return "raw_erp_customers" }

// RawLocation is an ERP customer location row as loaded.
type RawLocation struct {
	ID          uint   `gorm:"primaryKey"`
	CustomerKey string `mapstructure:"customer_key"`
	Country     string `mapstructure:"country"`
}

// TableName returns the raw ERP location table name.
func (RawLocation) TableName() string { return "raw_erp_locations" }

// RawProductCategory is an ERP product category row as loaded.
type RawProductCategory struct {
	ID          uint   `gorm:"primaryKey"`
	CategoryID  string `mapstructure:"category_id"`
	Category    string `mapstructure:"category"`
	Subcategory string `mapstructure:"subcategory"`
	Maintenance string `mapstructure:"maintenance"`
}

// TableName returns the raw ERP product category table name.
func (RawProductCategory) TableName() string { return "raw_erp_product_categories" }

// --- Cleansed layer ---

// CleanCustomer is the deduplicated, standardized CRM customer row.
type CleanCustomer struct {
	ID            uint       `gorm:"primaryKey"`
	CustomerID    int64      `gorm:"index;not null"`
	CustomerKey   string     `gorm:"not null"`
	FirstName     string     ``
	LastName      string     ``
	MaritalStatus string     `gorm:"not null"`
	Gender        string     `gorm:"not null"`
	CreateDate    *time.Time ``
	LoadedAt      time.Time  `gorm:"autoCreateTime"`
}

// TableName returns the cleansed CRM customer table name.
func (CleanCustomer) TableName() string { return "clean_crm_customers" }

// CleanProduct is one SCD2 version of a product. Versions of the same
// product code never overlap; the latest version carries the open end
// date sentinel.
type CleanProduct struct {
	ID          uint      `gorm:"primaryKey"`
	ProductID   int64     `gorm:"index;not null"`
	CategoryID  string    `gorm:"index;not null"`
	ProductCode string    `gorm:"index;not null"`
	ProductName string    ``
	Cost        float64   ``
	Line        string    `gorm:"not null"`
	StartDate   time.Time `gorm:"not null"`
	EndDate     time.Time `gorm:"not null"`
	LoadedAt    time.Time `gorm:"autoCreateTime"`
}

// TableName returns the cleansed CRM product table name.
func (CleanProduct) TableName() string { return "clean_crm_products" }

// CleanSale is a typed, repaired sales detail row.
type CleanSale struct {
	ID          uint       `gorm:"primaryKey"`
	OrderNumber string     `gorm:"index;not null"`
	ProductCode string     `gorm:"index"`
	CustomerID  int64      `gorm:"index"`
	OrderDate   *time.Time ``
	ShipDate    *time.Time ``
	DueDate     *time.Time ``
	Sales       *float64   ``
	Quantity    int64      ``
	Price       *float64   ``
	LoadedAt    time.Time  `gorm:"autoCreateTime"`
}

// TableName returns the cleansed CRM sales table name.
func (CleanSale) TableName() string { return "clean_crm_sales" }

// CleanERPCustomer is a standardized ERP customer demographics row.
type CleanERPCustomer struct {
	ID          uint       `gorm:"primaryKey"`
	CustomerKey string     `gorm:"index;not null"`
	BirthDate   *time.Time ``
	Gender      string     `gorm:"not null"`
	LoadedAt    time.Time  `gorm:"autoCreateTime"`
}

// TableName returns the cleansed ERP customer table name.
func (CleanERPCustomer) TableName() string { return "clean_erp_customers" }

// CleanLocation is a normalized ERP customer location row.
type CleanLocation struct {
	ID          uint      `gorm:"primaryKey"`
	CustomerKey string    `gorm:"index;not null"`
	Country     string    `gorm:"not null"`
	LoadedAt    time.Time `gorm:"autoCreateTime"`
}

// TableName returns the cleansed ERP location table name.
func (CleanLocation) TableName() string { return "clean_erp_locations" }

// CleanProductCategory is a trimmed ERP product category row.
type CleanProductCategory struct {
	ID          uint      `gorm:"primaryKey"`
	CategoryID  string    `gorm:"index;not null"`
	Category    string    ``
	Subcategory string    ``
	Maintenance string    ``
	LoadedAt    time.Time `gorm:"autoCreateTime"`
}

// TableName returns the cleansed ERP product category table name.
func (CleanProductCategory) TableName() string { return "clean_erp_product_categories" }

// allModels lists every model for migration, raw layer first.
var allModels = []any{
	&RawCustomer{},
	&RawProduct{},
	&RawSale{},
	&RawERPCustomer{},
	&RawLocation{},
	&RawProductCategory{},
	&CleanCustomer{},
	&CleanProduct{},
	&CleanSale{},
	&CleanERPCustomer{},
	&CleanLocation{},
	&CleanProductCategory{},
}

// NewRawSlice returns a pointer to an empty typed slice for the given
// entity's raw model, for use as a decode target.
func NewRawSlice(entity string) (any, error) {
	switch entity {
	case EntityCRMCustomers:
		return &[]RawCustomer{}, nil
	case EntityCRMProducts:
		return &[]RawProduct{}, nil
	case EntityCRMSales:
		return &[]RawSale{}, nil
	case EntityERPCustomers:
		return &[]RawERPCustomer{}, nil
	case EntityERPLocations:
		return &[]RawLocation{}, nil
	case EntityERPProductCategories:
		return &[]RawProductCategory{}, nil
	default:
		return nil, fmt.Errorf("unknown entity %q", entity)
	}
}

// rawModel returns the raw model for the given entity.
func rawModel(entity string) (any, error) {
	switch entity {
	case EntityCRMCustomers:
		return &RawCustomer{}, nil
	case EntityCRMProducts:
		return &RawProduct{}, nil
	case EntityCRMSales:
		return &RawSale{}, nil
	case EntityERPCustomers:
		return &RawERPCustomer{}, nil
	case EntityERPLocations:
		return &RawLocation{}, nil
	case EntityERPProductCategories:
		return &RawProductCategory{}, nil
	default:
		return nil, fmt.Errorf("unknown entity %q", entity)
	}
}

// cleanModel returns the cleansed model for the given entity.
func cleanModel(entity string) (any, error) {
	switch entity {
	case EntityCRMCustomers:
		return &CleanCustomer{}, nil
	case EntityCRMProducts:
		return &CleanProduct{}, nil
	case EntityCRMSales:
		return &CleanSale{}, nil
	case EntityERPCustomers:
		return &CleanERPCustomer{}, nil
	case EntityERPLocations:
		return &CleanLocation{}, nil
	case EntityERPProductCategories:
		return &CleanProductCategory{}, nil
	default:
		return nil, fmt.Errorf("unknown entity %q", entity)
	}
}
