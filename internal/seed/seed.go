package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	collectiondomain "github.com/trackvault/trackvault/internal/collection/domain"
	productdomain "github.com/trackvault/trackvault/internal/product/domain"
	ratedomain "github.com/trackvault/trackvault/internal/productrate/domain"
	supplierdomain "github.com/trackvault/trackvault/internal/supplier/domain"
)

// Demo fixtures give a fresh install something to click through: two
// suppliers, two priced products and one recorded delivery.
type demoSupplier struct {
	Code   string
	Name   string
	Email  string
	Region string
}

type demoProduct struct {
	Code  string
	Name  string
	Units []string
	Rates []demoRate
}

type demoRate struct {
	Unit string
	Rate string
	From time.Time
}

var demoSuppliers = []demoSupplier{
	{Code: "kivu-coffee-works", Name: "Kivu Coffee Works", Email: "books@kivucoffee.example", Region: "Lake Kivu"},
	{Code: "mara-beekeepers", Name: "Mara Beekeepers Co-op", Email: "accounts@marabees.example", Region: "Maasai Mara"},
}

var demoProducts = []demoProduct{
	{
		Code:  "arabica-cherry",
		Name:  "Arabica Cherry",
		Units: []string{"kg", "crate"},
		Rates: []demoRate{
			{Unit: "kg", Rate: "2.50", From: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
			{Unit: "crate", Rate: "30.00", From: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		},
	},
	{
		Code:  "raw-honey",
		Name:  "Raw Honey",
		Units: []string{"kg"},
		Rates: []demoRate{
			{Unit: "kg", Rate: "6.75", From: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		},
	},
}

// EnsureDemoData seeds demo suppliers, products and rates. Every entity
// is looked up by its stable code first, so repeated startups are no-ops.
func EnsureDemoData(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		suppliers := make([]supplierdomain.Supplier, 0, len(demoSuppliers))
		for _, seed := range demoSuppliers {
			supplier, err := ensureSupplierTx(ctx, tx, node, seed)
			if err != nil {
				return err
			}
			suppliers = append(suppliers, supplier)
		}

		products := make([]productdomain.Product, 0, len(demoProducts))
		var rates []ratedomain.ProductRate
		for _, seed := range demoProducts {
			product, productRates, err := ensureProductTx(ctx, tx, node, seed)
			if err != nil {
				return err
			}
			products = append(products, product)
			rates = append(rates, productRates...)
		}

		return ensureDemoCollectionTx(ctx, tx, node, suppliers[0], products[0], rates)
	})
}

func ensureSupplierTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, seed demoSupplier) (supplierdomain.Supplier, error) {
	var supplier supplierdomain.Supplier
	err := tx.WithContext(ctx).Where("code = ?", seed.Code).First(&supplier).Error
	if err == nil {
		return supplier, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return supplier, err
	}
	now := time.Now().UTC()
	supplier = supplierdomain.Supplier{
		ID:        node.Generate(),
		Code:      seed.Code,
		Name:      seed.Name,
		Email:     seed.Email,
		Region:    seed.Region,
		Status:    supplierdomain.SupplierStatusActive,
		Metadata:  datatypes.JSONMap{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tx.WithContext(ctx).Create(&supplier).Error; err != nil {
		return supplier, err
	}
	return supplier, nil
}

func ensureProductTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, seed demoProduct) (productdomain.Product, []ratedomain.ProductRate, error) {
	var product productdomain.Product
	err := tx.WithContext(ctx).Where("code = ?", seed.Code).First(&product).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return product, nil, err
		}
		now := time.Now().UTC()
		product = productdomain.Product{
			ID:        node.Generate(),
			Code:      seed.Code,
			Name:      seed.Name,
			Units:     datatypes.NewJSONSlice(seed.Units),
			Active:    true,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.WithContext(ctx).Create(&product).Error; err != nil {
			return product, nil, err
		}
	}

	rates := make([]ratedomain.ProductRate, 0, len(seed.Rates))
	for _, seedRate := range seed.Rates {
		rate, err := ensureRateTx(ctx, tx, node, product.ID, seedRate)
		if err != nil {
			return product, nil, err
		}
		rates = append(rates, rate)
	}
	return product, rates, nil
}

func ensureRateTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, productID snowflake.ID, seed demoRate) (ratedomain.ProductRate, error) {
	var rate ratedomain.ProductRate
	err := tx.WithContext(ctx).
		Where("product_id = ? AND unit = ? AND effective_from = ?", productID, seed.Unit, seed.From).
		First(&rate).Error
	if err == nil {
		return rate, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return rate, err
	}
	now := time.Now().UTC()
	rate = ratedomain.ProductRate{
		ID:            node.Generate(),
		ProductID:     productID,
		Unit:          seed.Unit,
		Rate:          decimal.RequireFromString(seed.Rate),
		EffectiveFrom: seed.From,
		Active:        true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := tx.WithContext(ctx).Create(&rate).Error; err != nil {
		return rate, err
	}
	return rate, nil
}

func ensureDemoCollectionTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, supplier supplierdomain.Supplier, product productdomain.Product, rates []ratedomain.ProductRate) error {
	const receipt = "DEMO-0001"

	var existing collectiondomain.Collection
	err := tx.WithContext(ctx).Where("receipt = ?", receipt).First(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	var rate *ratedomain.ProductRate
	for i := range rates {
		if rates[i].ProductID == product.ID && rates[i].Unit == "kg" {
			rate = &rates[i]
			break
		}
	}
	if rate == nil {
		return errors.New("seed demo collection needs a kg rate")
	}

	now := time.Now().UTC()
	quantity := decimal.NewFromInt(40)
	collection := collectiondomain.Collection{
		ID:          node.Generate(),
		Receipt:     receipt,
		SupplierID:  supplier.ID,
		ProductID:   product.ID,
		RateID:      rate.ID,
		Unit:        rate.Unit,
		Quantity:    quantity,
		UnitRate:    rate.Rate,
		Amount:      quantity.Mul(rate.Rate),
		CollectedAt: now,
		Notes:       "seeded demo delivery",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return tx.WithContext(ctx).Create(&collection).Error
}
