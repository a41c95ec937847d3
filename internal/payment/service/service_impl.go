package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/trackvault/trackvault/internal/clock"
	"github.com/trackvault/trackvault/internal/metricspush"
	obsmetrics "github.com/trackvault/trackvault/internal/observability/metrics"
	"github.com/trackvault/trackvault/internal/payment/domain"
	"github.com/trackvault/trackvault/internal/providers/pdf"
	recondomain "github.com/trackvault/trackvault/internal/reconciliation/domain"
	supplierdomain "github.com/trackvault/trackvault/internal/supplier/domain"
	"github.com/trackvault/trackvault/pkg/db/pagination"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Repo        domain.Repository
	SupplierSvc supplierdomain.Service
	ReconSvc    recondomain.Service
	PDF         pdf.Provider
	ObsMetrics  *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	repo        domain.Repository
	supplierSvc supplierdomain.Service
	reconSvc    recondomain.Service
	pdf         pdf.Provider
	obsMetrics  *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("payment.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		repo:        p.Repo,
		supplierSvc: p.SupplierSvc,
		reconSvc:    p.ReconSvc,
		pdf:         p.PDF,
		obsMetrics:  p.ObsMetrics,
	}
}

func (s *Service) Record(ctx context.Context, req domain.RecordPaymentRequest) (domain.Payment, error) {
	supplier, err := s.loadSupplier(ctx, req.SupplierID)
	if err != nil {
		return domain.Payment{}, err
	}

	if req.Amount.Sign() <= 0 {
		return domain.Payment{}, domain.ErrInvalidAmount
	}
	method, err := parseMethod(req.Method)
	if err != nil {
		return domain.Payment{}, err
	}

	paidAt := s.clock.Now()
	if req.PaidAt != nil {
		paidAt = req.PaidAt.UTC()
	}

	now := s.clock.Now()
	payment := domain.Payment{
		ID:         s.genID.Generate(),
		SupplierID: supplier.ID,
		Amount:     req.Amount,
		Method:     method,
		Reference:  strings.TrimSpace(req.Reference),
		PaidAt:     paidAt,
		Notes:      strings.TrimSpace(req.Notes),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.repo.Insert(ctx, s.db, &payment); err != nil {
		return domain.Payment{}, err
	}

	if s.obsMetrics != nil {
		s.obsMetrics.RecordPaymentRecorded(ctx, string(method))
	}
	metricspush.RecordPayment(string(method))

	s.log.Info("payment recorded",
		zap.String("payment_id", payment.ID.String()),
		zap.String("supplier_code", supplier.Code),
		zap.String("method", string(method)),
		zap.String("amount", payment.Amount.String()),
	)

	return payment, nil
}

func (s *Service) GetByID(ctx context.Context, req domain.GetPaymentRequest) (domain.Payment, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(req.ID))
	if err != nil || id == 0 {
		return domain.Payment{}, domain.ErrInvalidID
	}

	payment, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Payment{}, err
	}
	if payment == nil {
		return domain.Payment{}, domain.ErrNotFound
	}

	return *payment, nil
}

func (s *Service) List(ctx context.Context, req domain.ListPaymentRequest) (domain.ListPaymentResponse, error) {
	filter := domain.ListPaymentFilter{
		PaidFrom: req.PaidFrom,
		PaidTo:   req.PaidTo,
	}
	if v := strings.TrimSpace(req.SupplierID); v != "" {
		id, err := snowflake.ParseString(v)
		if err != nil || id == 0 {
			return domain.ListPaymentResponse{}, domain.ErrInvalidID
		}
		filter.SupplierID = id
	}

	pageSize := int(req.PageSize)
	if pageSize <= 0 {
		pageSize = 50
	}

	items, err := s.repo.List(ctx, s.db, filter, pagination.Pagination{
		PageToken: req.PageToken,
		PageSize:  pageSize,
	})
	if err != nil {
		return domain.ListPaymentResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(payment *domain.Payment) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        payment.ID.String(),
			CreatedAt: payment.CreatedAt.Format(time.RFC3339),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(items) > pageSize {
		items = items[:pageSize]
	}

	payments := make([]domain.Payment, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		payments = append(payments, *item)
	}

	resp := domain.ListPaymentResponse{Payments: payments}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}

	return resp, nil
}

// Receipt renders the payment as a PDF. The outstanding figure is the
// supplier's balance as reconciled now, not as of the payment date.
func (s *Service) Receipt(ctx context.Context, req domain.ReceiptRequest) (io.Reader, error) {
	payment, err := s.GetByID(ctx, domain.GetPaymentRequest{ID: req.ID})
	if err != nil {
		return nil, err
	}

	supplier, err := s.loadSupplier(ctx, payment.SupplierID.String())
	if err != nil {
		return nil, err
	}

	balance, err := s.reconSvc.SupplierBalance(ctx, supplier.ID.String())
	if err != nil {
		return nil, err
	}

	return s.pdf.PaymentReceipt(ctx, pdf.ReceiptData{
		ReceiptNumber:    "PAY-" + payment.ID.String(),
		PaidAt:           payment.PaidAt.Format("02 Jan 2006"),
		SupplierName:     supplier.Name,
		SupplierCode:     supplier.Code,
		SupplierRegion:   supplier.Region,
		Amount:           payment.Amount.StringFixed(2),
		Method:           string(payment.Method),
		Reference:        payment.Reference,
		Notes:            payment.Notes,
		OutstandingAfter: balance.Outstanding.StringFixed(2),
	})
}

func (s *Service) loadSupplier(ctx context.Context, id string) (supplierdomain.Supplier, error) {
	supplier, err := s.supplierSvc.GetByID(ctx, supplierdomain.GetSupplierRequest{ID: id})
	if err != nil {
		switch {
		case errors.Is(err, supplierdomain.ErrNotFound):
			return supplierdomain.Supplier{}, domain.ErrSupplierNotFound
		case errors.Is(err, supplierdomain.ErrInvalidID):
			return supplierdomain.Supplier{}, domain.ErrInvalidID
		}
		return supplierdomain.Supplier{}, err
	}
	return supplier, nil
}

func parseMethod(v string) (domain.PaymentMethod, error) {
	switch domain.PaymentMethod(strings.ToUpper(strings.TrimSpace(v))) {
	case domain.MethodCash:
		return domain.MethodCash, nil
	case domain.MethodBankTransfer:
		return domain.MethodBankTransfer, nil
	case domain.MethodMobileMoney:
		return domain.MethodMobileMoney, nil
	default:
		return "", domain.ErrInvalidMethod
	}
}
