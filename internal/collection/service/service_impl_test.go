package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/trackvault/trackvault/internal/clock"
	"github.com/trackvault/trackvault/internal/collection/domain"
	"github.com/trackvault/trackvault/internal/collection/repository"
	productdomain "github.com/trackvault/trackvault/internal/product/domain"
	productrepository "github.com/trackvault/trackvault/internal/product/repository"
	productservice "github.com/trackvault/trackvault/internal/product/service"
	ratedomain "github.com/trackvault/trackvault/internal/productrate/domain"
	raterepository "github.com/trackvault/trackvault/internal/productrate/repository"
	rateservice "github.com/trackvault/trackvault/internal/productrate/service"
	supplierdomain "github.com/trackvault/trackvault/internal/supplier/domain"
	supplierrepository "github.com/trackvault/trackvault/internal/supplier/repository"
	supplierservice "github.com/trackvault/trackvault/internal/supplier/service"
)

type collectionFixture struct {
	svc         domain.Service
	supplierSvc supplierdomain.Service
	supplier    supplierdomain.Supplier
	product     productdomain.Product
	rate        ratedomain.ProductRate
	fake        *clock.FakeClock
	db          *gorm.DB
}

func setupCollections(t *testing.T) collectionFixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatal(err)
	}
	if err := db.AutoMigrate(
		&supplierdomain.Supplier{},
		&productdomain.Product{},
		&ratedomain.ProductRate{},
		&domain.Collection{},
	); err != nil {
		t.Fatal(err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatal(err)
	}

	fake := clock.NewFakeClock(time.Date(2024, 6, 10, 7, 30, 0, 0, time.UTC))
	log := zap.NewNop()
	ctx := context.Background()

	supplierSvc := supplierservice.New(supplierservice.Params{
		DB:    db,
		Log:   log,
		GenID: node,
		Clock: fake,
		Repo:  supplierrepository.Provide(),
	})
	supplier, err := supplierSvc.Create(ctx, supplierdomain.CreateSupplierRequest{
		Name:   "Kivu Coffee Works",
		Email:  "intake@kivu.example",
		Region: "north-kivu",
	})
	if err != nil {
		t.Fatal(err)
	}

	productSvc := productservice.New(productservice.Params{
		DB:    db,
		Log:   log,
		GenID: node,
		Clock: fake,
		Repo:  productrepository.Provide(),
	})
	product, err := productSvc.Create(ctx, productdomain.CreateProductRequest{
		Name:  "Arabica Cherry",
		Units: []string{"kg", "crate"},
	})
	if err != nil {
		t.Fatal(err)
	}

	rateSvc := rateservice.New(rateservice.Params{
		DB:         db,
		Log:        log,
		GenID:      node,
		Clock:      fake,
		Repo:       raterepository.Provide(),
		ProductSvc: productSvc,
	})
	rate, err := rateSvc.Add(ctx, ratedomain.AddRateRequest{
		ProductID:     product.ID.String(),
		Rate:          decimal.RequireFromString("2.5"),
		Unit:          "kg",
		EffectiveFrom: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatal(err)
	}

	svc := New(Params{
		DB:          db,
		Log:         log,
		GenID:       node,
		Clock:       fake,
		Repo:        repository.Provide(),
		SupplierSvc: supplierSvc,
		ProductSvc:  productSvc,
		RateSvc:     rateSvc,
	})

	return collectionFixture{
		svc:         svc,
		supplierSvc: supplierSvc,
		supplier:    supplier,
		product:     product,
		rate:        rate,
		fake:        fake,
		db:          db,
	}
}

func TestRecordCollection(t *testing.T) {
	fx := setupCollections(t)
	ctx := context.Background()

	collectedAt := time.Date(2024, 6, 9, 16, 45, 0, 0, time.UTC)
	got, err := fx.svc.Record(ctx, domain.RecordCollectionRequest{
		SupplierID:  fx.supplier.ID.String(),
		ProductID:   fx.product.ID.String(),
		Unit:        "KG",
		Quantity:    decimal.RequireFromString("40"),
		CollectedAt: &collectedAt,
		Notes:       "morning run",
	})
	if err != nil {
		t.Fatal(err)
	}

	assert.NotEmpty(t, got.Receipt)
	assert.Equal(t, fx.supplier.ID, got.SupplierID)
	assert.Equal(t, fx.product.ID, got.ProductID)
	assert.Equal(t, fx.rate.ID, got.RateID)
	assert.Equal(t, "kg", got.Unit)
	assert.True(t, got.UnitRate.Equal(decimal.RequireFromString("2.5")),
		"rate at the collection date must be denormalized onto the row, got %s", got.UnitRate)
	assert.True(t, got.Amount.Equal(decimal.RequireFromString("100")),
		"amount must be quantity times unit rate, got %s", got.Amount)
	assert.True(t, collectedAt.Equal(got.CollectedAt))

	fetched, err := fx.svc.GetByReceipt(ctx, domain.GetCollectionByReceiptRequest{Receipt: got.Receipt})
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, got.ID, fetched.ID)
}

func TestRecordCollectionDefaultsToClock(t *testing.T) {
	fx := setupCollections(t)

	got, err := fx.svc.Record(context.Background(), domain.RecordCollectionRequest{
		SupplierID: fx.supplier.ID.String(),
		ProductID:  fx.product.ID.String(),
		Unit:       "kg",
		Quantity:   decimal.RequireFromString("12.5"),
	})
	if err != nil {
		t.Fatal(err)
	}

	assert.True(t, fx.fake.Now().Equal(got.CollectedAt))
}

func TestRecordCollectionIdempotent(t *testing.T) {
	fx := setupCollections(t)
	ctx := context.Background()

	req := domain.RecordCollectionRequest{
		SupplierID:     fx.supplier.ID.String(),
		ProductID:      fx.product.ID.String(),
		Unit:           "kg",
		Quantity:       decimal.RequireFromString("18"),
		IdempotencyKey: "truck-7-2024-06-10",
	}

	first, err := fx.svc.Record(ctx, req)
	if err != nil {
		t.Fatal(err)
	}

	fx.fake.Advance(2 * time.Minute)
	retry, err := fx.svc.Record(ctx, req)
	if err != nil {
		t.Fatal(err)
	}

	assert.Equal(t, first.ID, retry.ID, "retry with the same key must return the first accepted row")
	assert.Equal(t, first.Receipt, retry.Receipt)
	assert.True(t, first.CreatedAt.Equal(retry.CreatedAt))

	var count int64
	if err := fx.db.Model(&domain.Collection{}).Count(&count).Error; err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, int64(1), count)
}

func TestRecordCollectionValidation(t *testing.T) {
	fx := setupCollections(t)
	ctx := context.Background()

	beforeRates := time.Date(2023, 11, 20, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		req  domain.RecordCollectionRequest
		want error
	}{
		{
			name: "unknown supplier",
			req: domain.RecordCollectionRequest{
				SupplierID: "424242424242424242",
				ProductID:  fx.product.ID.String(),
				Unit:       "kg",
				Quantity:   decimal.RequireFromString("5"),
			},
			want: domain.ErrSupplierNotFound,
		},
		{
			name: "malformed supplier id",
			req: domain.RecordCollectionRequest{
				SupplierID: "not-an-id",
				ProductID:  fx.product.ID.String(),
				Unit:       "kg",
				Quantity:   decimal.RequireFromString("5"),
			},
			want: domain.ErrInvalidID,
		},
		{
			name: "unknown product",
			req: domain.RecordCollectionRequest{
				SupplierID: fx.supplier.ID.String(),
				ProductID:  "424242424242424242",
				Unit:       "kg",
				Quantity:   decimal.RequireFromString("5"),
			},
			want: ratedomain.ErrProductNotFound,
		},
		{
			name: "zero quantity",
			req: domain.RecordCollectionRequest{
				SupplierID: fx.supplier.ID.String(),
				ProductID:  fx.product.ID.String(),
				Unit:       "kg",
				Quantity:   decimal.Zero,
			},
			want: domain.ErrInvalidQuantity,
		},
		{
			name: "negative quantity",
			req: domain.RecordCollectionRequest{
				SupplierID: fx.supplier.ID.String(),
				ProductID:  fx.product.ID.String(),
				Unit:       "kg",
				Quantity:   decimal.RequireFromString("-3"),
			},
			want: domain.ErrInvalidQuantity,
		},
		{
			name: "blank unit",
			req: domain.RecordCollectionRequest{
				SupplierID: fx.supplier.ID.String(),
				ProductID:  fx.product.ID.String(),
				Unit:       "   ",
				Quantity:   decimal.RequireFromString("5"),
			},
			want: domain.ErrInvalidUnit,
		},
		{
			name: "unit the product does not trade in",
			req: domain.RecordCollectionRequest{
				SupplierID: fx.supplier.ID.String(),
				ProductID:  fx.product.ID.String(),
				Unit:       "barrel",
				Quantity:   decimal.RequireFromString("5"),
			},
			want: ratedomain.ErrUnitNotAllowed,
		},
		{
			name: "unit with no rate on file",
			req: domain.RecordCollectionRequest{
				SupplierID: fx.supplier.ID.String(),
				ProductID:  fx.product.ID.String(),
				Unit:       "crate",
				Quantity:   decimal.RequireFromString("5"),
			},
			want: ratedomain.ErrNoCurrentRate,
		},
		{
			name: "collection date before any rate",
			req: domain.RecordCollectionRequest{
				SupplierID:  fx.supplier.ID.String(),
				ProductID:   fx.product.ID.String(),
				Unit:        "kg",
				Quantity:    decimal.RequireFromString("5"),
				CollectedAt: &beforeRates,
			},
			want: ratedomain.ErrNoCurrentRate,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := fx.svc.Record(ctx, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestRecordCollectionInactiveSupplier(t *testing.T) {
	fx := setupCollections(t)
	ctx := context.Background()

	inactive := "INACTIVE"
	if _, err := fx.supplierSvc.Update(ctx, supplierdomain.UpdateSupplierRequest{
		ID:     fx.supplier.ID.String(),
		Status: &inactive,
	}); err != nil {
		t.Fatal(err)
	}

	_, err := fx.svc.Record(ctx, domain.RecordCollectionRequest{
		SupplierID: fx.supplier.ID.String(),
		ProductID:  fx.product.ID.String(),
		Unit:       "kg",
		Quantity:   decimal.RequireFromString("5"),
	})
	assert.ErrorIs(t, err, domain.ErrSupplierInactive)
}

func TestGetCollectionErrors(t *testing.T) {
	fx := setupCollections(t)
	ctx := context.Background()

	_, err := fx.svc.GetByID(ctx, domain.GetCollectionRequest{ID: "garbage"})
	assert.ErrorIs(t, err, domain.ErrInvalidID)

	_, err = fx.svc.GetByID(ctx, domain.GetCollectionRequest{ID: "424242424242424242"})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = fx.svc.GetByReceipt(ctx, domain.GetCollectionByReceiptRequest{Receipt: "01J00000000000000000000000"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListCollections(t *testing.T) {
	fx := setupCollections(t)
	ctx := context.Background()

	other, err := fx.supplierSvc.Create(ctx, supplierdomain.CreateSupplierRequest{
		Name:   "Rift Valley Dairy",
		Email:  "ops@riftvalley.example",
		Region: "nakuru",
	})
	if err != nil {
		t.Fatal(err)
	}

	days := []struct {
		supplierID string
		day        time.Time
	}{
		{fx.supplier.ID.String(), time.Date(2024, 6, 2, 9, 0, 0, 0, time.UTC)},
		{fx.supplier.ID.String(), time.Date(2024, 6, 5, 9, 0, 0, 0, time.UTC)},
		{other.ID.String(), time.Date(2024, 6, 5, 11, 0, 0, 0, time.UTC)},
		{fx.supplier.ID.String(), time.Date(2024, 6, 8, 9, 0, 0, 0, time.UTC)},
	}
	for _, d := range days {
		fx.fake.Advance(time.Minute)
		if _, err := fx.svc.Record(ctx, domain.RecordCollectionRequest{
			SupplierID:  d.supplierID,
			ProductID:   fx.product.ID.String(),
			Unit:        "kg",
			Quantity:    decimal.RequireFromString("10"),
			CollectedAt: &d.day,
		}); err != nil {
			t.Fatal(err)
		}
	}

	t.Run("filter by supplier", func(t *testing.T) {
		resp, err := fx.svc.List(ctx, domain.ListCollectionRequest{
			SupplierID: other.ID.String(),
		})
		if err != nil {
			t.Fatal(err)
		}
		assert.Len(t, resp.Collections, 1)
		assert.Equal(t, other.ID, resp.Collections[0].SupplierID)
	})

	t.Run("filter by collected range", func(t *testing.T) {
		from := time.Date(2024, 6, 4, 0, 0, 0, 0, time.UTC)
		to := time.Date(2024, 6, 6, 0, 0, 0, 0, time.UTC)
		resp, err := fx.svc.List(ctx, domain.ListCollectionRequest{
			CollectedFrom: &from,
			CollectedTo:   &to,
		})
		if err != nil {
			t.Fatal(err)
		}
		assert.Len(t, resp.Collections, 2)
	})

	t.Run("pagination newest first", func(t *testing.T) {
		resp, err := fx.svc.List(ctx, domain.ListCollectionRequest{PageSize: 3})
		if err != nil {
			t.Fatal(err)
		}
		assert.Len(t, resp.Collections, 3)
		assert.True(t, resp.HasMore)

		rest, err := fx.svc.List(ctx, domain.ListCollectionRequest{
			PageSize:  3,
			PageToken: resp.NextPageToken,
		})
		if err != nil {
			t.Fatal(err)
		}
		assert.Len(t, rest.Collections, 1)
		assert.False(t, rest.HasMore)
	})

	t.Run("malformed supplier filter", func(t *testing.T) {
		_, err := fx.svc.List(ctx, domain.ListCollectionRequest{SupplierID: "zzz"})
		assert.ErrorIs(t, err, domain.ErrInvalidID)
	})
}
