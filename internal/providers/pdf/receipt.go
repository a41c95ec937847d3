package pdf

import (
	"bytes"
	"context"
	"io"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

type MarotoProvider struct{}

func New() Provider {
	return &MarotoProvider{}
}

func (p *MarotoProvider) PaymentReceipt(ctx context.Context, data ReceiptData) (io.Reader, error) {
	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(20,
		text.NewCol(8, "Payment Receipt", props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
		text.NewCol(4, data.ReceiptNumber, props.Text{
			Size:  10,
			Align: align.Right,
			Top:   5,
		}),
	)

	m.AddRow(18,
		col.New(6).Add(
			text.New("Date paid: "+data.PaidAt, props.Text{Top: 0}),
			text.New("Method: "+data.Method, props.Text{Top: 5}),
			text.New("Reference: "+data.Reference, props.Text{Top: 10}),
		),
		col.New(6).Add(
			text.New("Paid to", props.Text{Style: fontstyle.Bold}),
			text.New(data.SupplierName, props.Text{Top: 5}),
			text.New(data.SupplierCode+"  "+data.SupplierRegion, props.Text{Top: 10, Size: 9}),
		),
	)

	m.AddRow(15,
		text.NewCol(12, data.Amount+" paid on "+data.PaidAt, props.Text{
			Size:  14,
			Style: fontstyle.Bold,
			Top:   5,
		}),
	)

	m.AddRow(10,
		text.NewCol(8, "Amount paid", props.Text{Size: 9}),
		text.NewCol(4, data.Amount, props.Text{Size: 9, Align: align.Right}),
	)
	m.AddRow(10,
		text.NewCol(8, "Outstanding after payment", props.Text{Size: 9}),
		text.NewCol(4, data.OutstandingAfter, props.Text{Size: 9, Align: align.Right}),
	)

	if data.Notes != "" {
		m.AddRow(15,
			text.NewCol(12, "Notes: "+data.Notes, props.Text{Size: 9, Top: 3}),
		)
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}

	return bytes.NewReader(doc.GetBytes()), nil
}
