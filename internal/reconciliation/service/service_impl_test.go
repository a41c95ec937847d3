package service

import (
	"context"
	"fmt"
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
	paymentdomain "github.com/trackvault/trackvault/internal/payment/domain"
	paymentrepository "github.com/trackvault/trackvault/internal/payment/repository"
	"github.com/trackvault/trackvault/internal/reconciliation/domain"
	"github.com/trackvault/trackvault/internal/reconciliation/repository"
	supplierdomain "github.com/trackvault/trackvault/internal/supplier/domain"
	supplierrepository "github.com/trackvault/trackvault/internal/supplier/repository"
	supplierservice "github.com/trackvault/trackvault/internal/supplier/service"
)

type reconFixture struct {
	svc         domain.Service
	supplierSvc supplierdomain.Service
	repo        domain.Repository
	fake        *clock.FakeClock
	node        *snowflake.Node
	db          *gorm.DB
	seq         int
}

func setupReconciliation(t *testing.T) *reconFixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatal(err)
	}
	if err := db.AutoMigrate(
		&supplierdomain.Supplier{},
		&collectiondomain.Collection{},
		&paymentdomain.Payment{},
		&domain.SupplierBalance{},
	); err != nil {
		t.Fatal(err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatal(err)
	}

	fake := clock.NewFakeClock(time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC))
	log := zap.NewNop()

	supplierSvc := supplierservice.New(supplierservice.Params{
		DB:    db,
		Log:   log,
		GenID: node,
		Clock: fake,
		Repo:  supplierrepository.Provide(),
	})

	repo := repository.Provide()
	svc := New(Params{
		DB:          db,
		Log:         log,
		GenID:       node,
		Clock:       fake,
		Repo:        repo,
		SupplierSvc: supplierSvc,
		Policy:      &config.ReconciliationConfigHolder{},
	})

	return &reconFixture{
		svc:         svc,
		supplierSvc: supplierSvc,
		repo:        repo,
		fake:        fake,
		node:        node,
		db:          db,
	}
}

func (f *reconFixture) addSupplier(t *testing.T, name string) supplierdomain.Supplier {
	t.Helper()
	supplier, err := f.supplierSvc.Create(context.Background(), supplierdomain.CreateSupplierRequest{
		Name:  name,
		Email: "books@" + name[:3] + ".example",
	})
	if err != nil {
		t.Fatal(err)
	}
	return supplier
}

func (f *reconFixture) addCollection(t *testing.T, supplierID snowflake.ID, day time.Time, amount string) {
	t.Helper()
	f.seq++
	value := decimal.RequireFromString(amount)
	now := f.fake.Now()
	_, err := collectionrepository.Provide().Insert(context.Background(), f.db, &collectiondomain.Collection{
		ID:          f.node.Generate(),
		Receipt:     fmt.Sprintf("RCPT-%04d", f.seq),
		SupplierID:  supplierID,
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

func (f *reconFixture) addPayment(t *testing.T, supplierID snowflake.ID, day time.Time, amount string) {
	t.Helper()
	now := f.fake.Now()
	err := paymentrepository.Provide().Insert(context.Background(), f.db, &paymentdomain.Payment{
		ID:         f.node.Generate(),
		SupplierID: supplierID,
		Amount:     decimal.RequireFromString(amount),
		Method:     paymentdomain.MethodCash,
		PaidAt:     day,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestRebuildComputesTotals(t *testing.T) {
	f := setupReconciliation(t)
	supplier := f.addSupplier(t, "Blue Nile Grain")

	f.addCollection(t, supplier.ID, time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC), "100")
	f.addCollection(t, supplier.ID, time.Date(2024, 7, 1, 8, 0, 0, 0, time.UTC), "250.5")
	f.addCollection(t, supplier.ID, time.Date(2024, 8, 1, 8, 0, 0, 0, time.UTC), "49.5")
	f.addPayment(t, supplier.ID, time.Date(2024, 7, 5, 10, 0, 0, 0, time.UTC), "150")

	snapshot, err := f.svc.Rebuild(context.Background(), supplier.ID.String())
	if err != nil {
		t.Fatal(err)
	}

	assert.True(t, snapshot.CollectedTotal.Equal(decimal.RequireFromString("400")),
		"collected total, got %s", snapshot.CollectedTotal)
	assert.True(t, snapshot.PaidTotal.Equal(decimal.RequireFromString("150")))
	assert.True(t, snapshot.Outstanding.Equal(decimal.RequireFromString("250")))

	if assert.NotNil(t, snapshot.LastCollectionAt) {
		assert.True(t, snapshot.LastCollectionAt.Equal(time.Date(2024, 8, 1, 8, 0, 0, 0, time.UTC)))
	}
	if assert.NotNil(t, snapshot.LastPaymentAt) {
		assert.True(t, snapshot.LastPaymentAt.Equal(time.Date(2024, 7, 5, 10, 0, 0, 0, time.UTC)))
	}

	// 100 is fully covered by the 150 paid, the July delivery is not.
	if assert.NotNil(t, snapshot.OldestUnsettledAt) {
		assert.True(t, snapshot.OldestUnsettledAt.Equal(time.Date(2024, 7, 1, 8, 0, 0, 0, time.UTC)))
	}

	assert.True(t, snapshot.ComputedAt.Equal(f.fake.Now()))
}

func TestRebuildFullySettledSupplier(t *testing.T) {
	f := setupReconciliation(t)
	supplier := f.addSupplier(t, "Rift Honey Co")

	f.addCollection(t, supplier.ID, time.Date(2024, 8, 10, 0, 0, 0, 0, time.UTC), "75")
	f.addPayment(t, supplier.ID, time.Date(2024, 8, 12, 0, 0, 0, 0, time.UTC), "75")

	snapshot, err := f.svc.Rebuild(context.Background(), supplier.ID.String())
	if err != nil {
		t.Fatal(err)
	}

	assert.True(t, snapshot.Outstanding.IsZero())
	assert.Nil(t, snapshot.OldestUnsettledAt, "a settled supplier has no unsettled delivery")
}

func TestRebuildSupplierWithNoActivity(t *testing.T) {
	f := setupReconciliation(t)
	supplier := f.addSupplier(t, "Quiet Farm")

	snapshot, err := f.svc.Rebuild(context.Background(), supplier.ID.String())
	if err != nil {
		t.Fatal(err)
	}

	assert.True(t, snapshot.CollectedTotal.IsZero())
	assert.True(t, snapshot.PaidTotal.IsZero())
	assert.True(t, snapshot.Outstanding.IsZero())
	assert.Nil(t, snapshot.LastCollectionAt)
	assert.Nil(t, snapshot.LastPaymentAt)
}

func TestRebuildErrors(t *testing.T) {
	f := setupReconciliation(t)

	_, err := f.svc.Rebuild(context.Background(), "424242424242424242")
	assert.ErrorIs(t, err, domain.ErrSupplierNotFound)

	_, err = f.svc.Rebuild(context.Background(), "not-an-id")
	assert.ErrorIs(t, err, domain.ErrInvalidID)
}

func TestSupplierBalanceBuildsMissingSnapshot(t *testing.T) {
	f := setupReconciliation(t)
	supplier := f.addSupplier(t, "Highland Tea Estate")

	// 45 days outstanding at 300k lands in the 31-60 bucket at medium risk.
	collected := time.Date(2024, 7, 18, 12, 0, 0, 0, time.UTC)
	f.addCollection(t, supplier.ID, collected, "300000")

	resp, err := f.svc.SupplierBalance(context.Background(), supplier.ID.String())
	if err != nil {
		t.Fatal(err)
	}

	assert.Equal(t, supplier.Code, resp.SupplierCode)
	assert.Equal(t, "Highland Tea Estate", resp.SupplierName)
	assert.True(t, resp.Outstanding.Equal(decimal.RequireFromString("300000")))
	assert.Equal(t, "31-60", resp.AgingBucket)
	assert.Equal(t, "medium", resp.RiskLevel)

	stored, err := f.repo.FindBySupplier(context.Background(), f.db, supplier.ID)
	if err != nil {
		t.Fatal(err)
	}
	assert.NotNil(t, stored, "the on-demand rebuild must persist the snapshot")
}

func TestSupplierBalanceStaleSnapshotRecomputed(t *testing.T) {
	f := setupReconciliation(t)
	supplier := f.addSupplier(t, "Mara Sisal Works")
	ctx := context.Background()

	f.addCollection(t, supplier.ID, time.Date(2024, 8, 20, 0, 0, 0, 0, time.UTC), "500")

	first, err := f.svc.SupplierBalance(ctx, supplier.ID.String())
	if err != nil {
		t.Fatal(err)
	}
	assert.True(t, first.Outstanding.Equal(decimal.RequireFromString("500")))

	// A payment lands but the snapshot is still fresh, so the cached
	// value keeps answering.
	f.addPayment(t, supplier.ID, f.fake.Now(), "500")
	f.fake.Advance(5 * time.Minute)

	cached, err := f.svc.SupplierBalance(ctx, supplier.ID.String())
	if err != nil {
		t.Fatal(err)
	}
	assert.True(t, cached.Outstanding.Equal(decimal.RequireFromString("500")))

	f.fake.Advance(11 * time.Minute)

	refreshed, err := f.svc.SupplierBalance(ctx, supplier.ID.String())
	if err != nil {
		t.Fatal(err)
	}
	assert.True(t, refreshed.Outstanding.IsZero(), "stale snapshot must be recomputed")
}

func TestOverview(t *testing.T) {
	f := setupReconciliation(t)
	ctx := context.Background()

	heavy := f.addSupplier(t, "Omo Valley Coop")
	f.addCollection(t, heavy.ID, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), "1200000")

	light := f.addSupplier(t, "Karura Herbs")
	f.addCollection(t, light.ID, time.Date(2024, 8, 27, 0, 0, 0, 0, time.UTC), "10000")

	settled := f.addSupplier(t, "Tsavo Hides")
	f.addCollection(t, settled.ID, time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC), "500")
	f.addPayment(t, settled.ID, time.Date(2024, 8, 2, 0, 0, 0, 0, time.UTC), "500")

	overpaid := f.addSupplier(t, "Chalbi Salt")
	f.addCollection(t, overpaid.ID, time.Date(2024, 8, 5, 0, 0, 0, 0, time.UTC), "100")
	f.addPayment(t, overpaid.ID, time.Date(2024, 8, 6, 0, 0, 0, 0, time.UTC), "150")

	for _, s := range []supplierdomain.Supplier{heavy, light, settled, overpaid} {
		if _, err := f.svc.Rebuild(ctx, s.ID.String()); err != nil {
			t.Fatal(err)
		}
	}

	rows, err := f.svc.Overview(ctx)
	if err != nil {
		t.Fatal(err)
	}

	if !assert.Len(t, rows, 3, "settled suppliers stay out of the overview") {
		t.FailNow()
	}

	assert.Equal(t, "omo-valley-coop", rows[0].SupplierCode)
	assert.Equal(t, "60+", rows[0].AgingBucket)
	assert.Equal(t, "high", rows[0].RiskLevel)

	assert.Equal(t, "karura-herbs", rows[1].SupplierCode)
	assert.Equal(t, "0-30", rows[1].AgingBucket)
	assert.Equal(t, "low", rows[1].RiskLevel)

	assert.Equal(t, "chalbi-salt", rows[2].SupplierCode)
	assert.True(t, rows[2].Outstanding.IsNegative())
	assert.Equal(t, "", rows[2].AgingBucket)
	assert.Equal(t, "none", rows[2].RiskLevel)
}

func TestComputeAgingBucket(t *testing.T) {
	cfg := config.DefaultReconciliationConfig()
	now := time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC)

	at := func(daysAgo int) *time.Time {
		d := now.AddDate(0, 0, -daysAgo)
		return &d
	}

	tests := []struct {
		daysAgo int
		want    string
	}{
		{0, "0-30"},
		{30, "0-30"},
		{31, "31-60"},
		{60, "31-60"},
		{61, "60+"},
		{365, "60+"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, computeAgingBucket(cfg, at(tt.daysAgo), now), "%d days", tt.daysAgo)
	}

	assert.Equal(t, "", computeAgingBucket(cfg, nil, now))
}

func TestComputeRiskLevel(t *testing.T) {
	cfg := config.DefaultReconciliationConfig()
	now := time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC)

	at := func(daysAgo int) *time.Time {
		d := now.AddDate(0, 0, -daysAgo)
		return &d
	}

	tests := []struct {
		name        string
		outstanding string
		oldest      *time.Time
		want        string
	}{
		{"large old debt", "1000000", at(60), "high"},
		{"large recent debt", "1000000", at(10), "low"},
		{"medium aged debt", "250000", at(31), "medium"},
		{"small debt", "10", at(5), "low"},
		{"overpaid", "-50", nil, "none"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := computeRiskLevel(cfg, decimal.RequireFromString(tt.outstanding), tt.oldest, now)
			assert.Equal(t, tt.want, got)
		})
	}
}
