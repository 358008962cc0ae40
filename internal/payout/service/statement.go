package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/bwmarrin/snowflake"
	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
	"github.com/smallbiznis/settlement/internal/money"
)

const statementDateLayout = "02 Jan 2006 15:04 MST"

// Statement renders the remittance advice of a payout: where the money went and
// which settled transactions it pays for.
func (s *Service) Statement(ctx context.Context, id snowflake.ID) ([]byte, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	items, err := s.repo.ListItems(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	units, err := s.settlement.Current().Rates.MinorUnits(p.Currency)
	if err != nil {
		return nil, err
	}
	amount := func(v int64) string { return money.Format(v, units) + " " + p.Currency }

	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()
	m := maroto.New(cfg)

	m.AddRow(20,
		text.NewCol(8, "Payout remittance advice", props.Text{
			Size:  18,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
		text.NewCol(4, string(p.Status), props.Text{
			Size:  12,
			Style: fontstyle.Bold,
			Align: align.Right,
		}),
	)

	settled := "-"
	if p.SettledAt != nil {
		settled = p.SettledAt.UTC().Format(statementDateLayout)
	}
	m.AddRow(30,
		col.New(6).Add(
			text.New("Reference: "+p.Reference, props.Text{Top: 0}),
			text.New("Seller: "+p.SellerID, props.Text{Top: 5}),
			text.New("Created: "+p.CreatedAt.UTC().Format(statementDateLayout), props.Text{Top: 10}),
			text.New("Settled: "+settled, props.Text{Top: 15}),
		),
		col.New(6).Add(
			text.New("Method: "+p.Method, props.Text{Top: 0, Align: align.Right}),
			text.New("Provider: "+p.Provider, props.Text{Top: 5, Align: align.Right}),
			text.New("Destination: "+maskedDestination(p.Account.Data()), props.Text{Top: 10, Align: align.Right}),
		),
	)

	m.AddRow(10,
		text.NewCol(6, "Transaction", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, "Amount", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Fee", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Net", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)
	for _, it := range items {
		label := it.TransactionID
		if label == "" {
			label = "Balance carried forward"
		}
		m.AddRow(8,
			text.NewCol(6, label, props.Text{Size: 9}),
			text.NewCol(2, amount(it.Amount), props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, amount(it.Fee), props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, amount(it.NetAmount), props.Text{Size: 9, Align: align.Right}),
		)
	}

	for _, row := range [][2]string{
		{"Total", amount(p.TotalAmount)},
		{"Fees", amount(p.Fees)},
		{"Paid to seller", amount(p.NetAmount)},
	} {
		m.AddRow(8,
			col.New(8),
			text.NewCol(2, row[0], props.Text{Size: 9, Style: fontstyle.Bold}),
			text.NewCol(2, row[1], props.Text{Size: 9, Align: align.Right}),
		)
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("render statement: %w", err)
	}
	return doc.GetBytes(), nil
}

// maskedDestination shows the last four characters of each account detail.
func maskedDestination(details map[string]string) string {
	keys := make([]string, 0, len(details))
	for k := range details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := ""
	for _, k := range keys {
		v := details[k]
		if len(v) > 4 {
			v = "****" + v[len(v)-4:]
		}
		if out != "" {
			out += ", "
		}
		out += k + " " + v
	}
	if out == "" {
		return "-"
	}
	return out
}
