package service

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/trackvault/trackvault/internal/clock"
	collectiondomain "github.com/trackvault/trackvault/internal/collection/domain"
	collectionrepository "github.com/trackvault/trackvault/internal/collection/repository"
	"github.com/trackvault/trackvault/internal/config"
	"github.com/trackvault/trackvault/internal/payment/domain"
	"github.com/trackvault/trackvault/internal/payment/repository"
	"github.com/trackvault/trackvault/internal/providers/pdf"
	recondomain "github.com/trackvault/trackvault/internal/reconciliation/domain"
	reconrepository "github.com/trackvault/trackvault/internal/reconciliation/repository"
	reconservice "github.com/trackvault/trackvault/internal/reconciliation/service"
	supplierdomain "github.com/trackvault/trackvault/internal/supplier/domain"
	supplierrepository "github.com/trackvault/trackvault/internal/supplier/repository"
	supplierservice "github.com/trackvault/trackvault/internal/supplier/service"
)

type paymentFixture struct {
	svc      domain.Service
	supplier supplierdomain.Supplier
	fake     *clock.FakeClock
	node     *snowflake.Node
	db       *gorm.DB
}

func setupPayments(t *testing.T) *paymentFixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatal(err)
	}
	if err := db.AutoMigrate(
		&supplierdomain.Supplier{},
		&collectiondomain.Collection{},
		&domain.Payment{},
		&recondomain.SupplierBalance{},
	); err != nil {
		t.Fatal(err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatal(err)
	}

	fake := clock.NewFakeClock(time.Date(2024, 10, 3, 14, 0, 0, 0, time.UTC))
	log := zap.NewNop()

	supplierSvc := supplierservice.New(supplierservice.Params{
		DB:    db,
		Log:   log,
		GenID: node,
		Clock: fake,
		Repo:  supplierrepository.Provide(),
	})
	supplier, err := supplierSvc.Create(context.Background(), supplierdomain.CreateSupplierRequest{
		Name:  "Aberdare Timber",
		Email: "pay@aberdare.example",
	})
	if err != nil {
		t.Fatal(err)
	}

	reconSvc := reconservice.New(reconservice.Params{
		DB:          db,
		Log:         log,
		GenID:       node,
		Clock:       fake,
		Repo:        reconrepository.Provide(),
		SupplierSvc: supplierSvc,
		Policy:      &config.ReconciliationConfigHolder{},
	})

	svc := New(Params{
		DB:          db,
		Log:         log,
		GenID:       node,
		Clock:       fake,
		Repo:        repository.Provide(),
		SupplierSvc: supplierSvc,
		ReconSvc:    reconSvc,
		PDF:         pdf.New(),
	})

	return &paymentFixture{svc: svc, supplier: supplier, fake: fake, node: node, db: db}
}

func (f *paymentFixture) addCollection(t *testing.T, day time.Time, amount string) {
	t.Helper()
	value := decimal.RequireFromString(amount)
	now := f.fake.Now()
	_, err := collectionrepository.Provide().Insert(context.Background(), f.db, &collectiondomain.Collection{
		ID:          f.node.Generate(),
		Receipt:     "RCPT-" + f.node.Generate().String(),
		SupplierID:  f.supplier.ID,
		ProductID:   f.node.Generate(),
		RateID:      f.node.Generate(),
		Unit:        "kg",
		Quantity:    decimal.NewFromInt(1),
		UnitRate:    value,
		Amount:      value,
		CollectedAt: day,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestRecordPayment(t *testing.T) {
	f := setupPayments(t)
	ctx := context.Background()

	got, err := f.svc.Record(ctx, domain.RecordPaymentRequest{
		SupplierID: f.supplier.ID.String(),
		Amount:     decimal.RequireFromString("1500.75"),
		Method:     "bank_transfer",
		Reference:  "FT-20241003-001",
		Notes:      "september settlement",
	})
	if err != nil {
		t.Fatal(err)
	}

	assert.Equal(t, f.supplier.ID, got.SupplierID)
	assert.Equal(t, domain.MethodBankTransfer, got.Method, "method is folded to the enum form")
	assert.Equal(t, "FT-20241003-001", got.Reference)
	assert.True(t, got.PaidAt.Equal(f.fake.Now()), "paid_at defaults to the clock")

	fetched, err := f.svc.GetByID(ctx, domain.GetPaymentRequest{ID: got.ID.String()})
	if err != nil {
		t.Fatal(err)
	}
	assert.True(t, fetched.Amount.Equal(decimal.RequireFromString("1500.75")))
}

func TestRecordPaymentExplicitPaidAt(t *testing.T) {
	f := setupPayments(t)

	paidAt := time.Date(2024, 9, 28, 10, 0, 0, 0, time.UTC)
	got, err := f.svc.Record(context.Background(), domain.RecordPaymentRequest{
		SupplierID: f.supplier.ID.String(),
		Amount:     decimal.NewFromInt(50),
		Method:     "CASH",
		PaidAt:     &paidAt,
	})
	if err != nil {
		t.Fatal(err)
	}

	assert.True(t, got.PaidAt.Equal(paidAt))
}

func TestRecordPaymentValidation(t *testing.T) {
	f := setupPayments(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  domain.RecordPaymentRequest
		want error
	}{
		{
			name: "unknown supplier",
			req: domain.RecordPaymentRequest{
				SupplierID: "424242424242424242",
				Amount:     decimal.NewFromInt(10),
				Method:     "CASH",
			},
			want: domain.ErrSupplierNotFound,
		},
		{
			name: "malformed supplier id",
			req: domain.RecordPaymentRequest{
				SupplierID: "nope",
				Amount:     decimal.NewFromInt(10),
				Method:     "CASH",
			},
			want: domain.ErrInvalidID,
		},
		{
			name: "zero amount",
			req: domain.RecordPaymentRequest{
				SupplierID: f.supplier.ID.String(),
				Amount:     decimal.Zero,
				Method:     "CASH",
			},
			want: domain.ErrInvalidAmount,
		},
		{
			name: "negative amount",
			req: domain.RecordPaymentRequest{
				SupplierID: f.supplier.ID.String(),
				Amount:     decimal.NewFromInt(-5),
				Method:     "CASH",
			},
			want: domain.ErrInvalidAmount,
		},
		{
			name: "unsupported method",
			req: domain.RecordPaymentRequest{
				SupplierID: f.supplier.ID.String(),
				Amount:     decimal.NewFromInt(10),
				Method:     "CHEQUE",
			},
			want: domain.ErrInvalidMethod,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Record(ctx, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestListPayments(t *testing.T) {
	f := setupPayments(t)
	ctx := context.Background()

	days := []time.Time{
		time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 9, 15, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC),
	}
	for _, day := range days {
		f.fake.Advance(time.Minute)
		if _, err := f.svc.Record(ctx, domain.RecordPaymentRequest{
			SupplierID: f.supplier.ID.String(),
			Amount:     decimal.NewFromInt(100),
			Method:     "CASH",
			PaidAt:     &day,
		}); err != nil {
			t.Fatal(err)
		}
	}

	t.Run("paid range filter", func(t *testing.T) {
		from := time.Date(2024, 9, 10, 0, 0, 0, 0, time.UTC)
		to := time.Date(2024, 9, 30, 0, 0, 0, 0, time.UTC)
		resp, err := f.svc.List(ctx, domain.ListPaymentRequest{
			SupplierID: f.supplier.ID.String(),
			PaidFrom:   &from,
			PaidTo:     &to,
		})
		if err != nil {
			t.Fatal(err)
		}
		assert.Len(t, resp.Payments, 1)
	})

	t.Run("pagination", func(t *testing.T) {
		resp, err := f.svc.List(ctx, domain.ListPaymentRequest{PageSize: 2})
		if err != nil {
			t.Fatal(err)
		}
		assert.Len(t, resp.Payments, 2)
		assert.True(t, resp.HasMore)

		rest, err := f.svc.List(ctx, domain.ListPaymentRequest{PageSize: 2, PageToken: resp.NextPageToken})
		if err != nil {
			t.Fatal(err)
		}
		assert.Len(t, rest.Payments, 1)
		assert.False(t, rest.HasMore)
	})
}

func TestGetPaymentErrors(t *testing.T) {
	f := setupPayments(t)
	ctx := context.Background()

	_, err := f.svc.GetByID(ctx, domain.GetPaymentRequest{ID: "junk"})
	assert.ErrorIs(t, err, domain.ErrInvalidID)

	_, err = f.svc.GetByID(ctx, domain.GetPaymentRequest{ID: "424242424242424242"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPaymentReceiptPDF(t *testing.T) {
	f := setupPayments(t)
	ctx := context.Background()

	f.addCollection(t, time.Date(2024, 9, 20, 0, 0, 0, 0, time.UTC), "500")

	payment, err := f.svc.Record(ctx, domain.RecordPaymentRequest{
		SupplierID: f.supplier.ID.String(),
		Amount:     decimal.NewFromInt(200),
		Method:     "MOBILE_MONEY",
		Reference:  "MM-778812",
	})
	if err != nil {
		t.Fatal(err)
	}

	reader, err := f.svc.Receipt(ctx, domain.ReceiptRequest{ID: payment.ID.String()})
	if err != nil {
		t.Fatal(err)
	}

	raw, err := io.ReadAll(reader)
	if err != nil {
		t.Fatal(err)
	}
	assert.True(t, strings.HasPrefix(string(raw), "%PDF"), "receipt must be a PDF document")
	assert.Greater(t, len(raw), 500)
}

func TestReceiptUnknownPayment(t *testing.T) {
	f := setupPayments(t)

	_, err := f.svc.Receipt(context.Background(), domain.ReceiptRequest{ID: "424242424242424242"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
