package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/storefront-dev/storefront/internal/domain/apierr"
	"github.com/storefront-dev/storefront/internal/domain/cart"
	"github.com/storefront-dev/storefront/internal/domain/order"
	"github.com/storefront-dev/storefront/internal/service"
)

// Output formats accepted by --output.
const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

func checkOutputFormat(f string) error {
	switch f {
	case formatTable, formatJSON, formatYAML:
		return nil
	default:
		return fmt.Errorf("invalid output format %q (must be table, json or yaml)", f)
	}
}

// render writes v in the selected format. table is used for the table format.
func render(cmd *cobra.Command, v any, table func(w io.Writer)) error {
	out := cmd.OutOrStdout()
	switch outputFormat {
	case formatJSON:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case formatYAML:
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		table(tw)
		return tw.Flush()
	}
}

// userMessage is the text printed for a failed command.
func userMessage(err error) string {
	return apierr.Message(err, "request failed")
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func nullMoney(d decimal.NullDecimal) string {
	if !d.Valid {
		return "-"
	}
	return money(d.Decimal)
}

// productRow is the printed shape of a product.
type productRow struct {
	ID       string `json:"id" yaml:"id"`
	Name     string `json:"name" yaml:"name"`
	Price    string `json:"price" yaml:"price"`
	Category string `json:"category,omitempty" yaml:"category,omitempty"`
	// Stock is nil when unknown.
	Stock       *int   `json:"stock,omitempty" yaml:"stock,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

func newProductRow(p cart.Product) productRow {
	return productRow{
		ID:          p.ID.String(),
		Name:        p.Name,
		Price:       nullMoney(p.Price),
		Category:    p.Category,
		Description: p.Description,
	}
}

// cartLineRow is the printed shape of a cart line.
type cartLineRow struct {
	ProductID string `json:"product_id" yaml:"product_id"`
	Name      string `json:"name" yaml:"name"`
	Quantity  int    `json:"quantity" yaml:"quantity"`
	UnitPrice string `json:"unit_price" yaml:"unit_price"`
	Subtotal  string `json:"subtotal" yaml:"subtotal"`
}

// cartView is the printed shape of the cart.
type cartView struct {
	Lines     []cartLineRow `json:"lines" yaml:"lines"`
	ItemCount int           `json:"item_count" yaml:"item_count"`
	Total     string        `json:"total" yaml:"total"`
}

func newCartView(s *service.CartStore) cartView {
	c := s.Cart()
	v := cartView{Lines: make([]cartLineRow, 0, c.Len()), ItemCount: s.ItemCount(), Total: money(s.Total())}
	for _, l := range c.Lines {
		v.Lines = append(v.Lines, cartLineRow{
			ProductID: l.Key().String(),
			Name:      l.Name(),
			Quantity:  l.Qty(),
			UnitPrice: money(l.UnitPrice()),
			Subtotal:  money(l.Subtotal()),
		})
	}
	return v
}

func printCart(cmd *cobra.Command, v cartView) error {
	return render(cmd, v, func(w io.Writer) {
		if len(v.Lines) == 0 {
			fmt.Fprintln(w, "Your cart is empty.")
			return
		}
		fmt.Fprintln(w, "ID\tNAME\tQTY\tPRICE\tSUBTOTAL")
		for _, l := range v.Lines {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", l.ProductID, l.Name, l.Quantity, l.UnitPrice, l.Subtotal)
		}
		fmt.Fprintf(w, "\t\t%d\t\t%s\n", v.ItemCount, v.Total)
	})
}

// quoteView is the printed shape of a checkout quote.
type quoteView struct {
	Subtotal    string `json:"subtotal" yaml:"subtotal"`
	ShippingFee string `json:"shipping_fee" yaml:"shipping_fee"`
	Total       string `json:"total" yaml:"total"`
}

func newQuoteView(q order.Quote) quoteView {
	return quoteView{Subtotal: money(q.Subtotal), ShippingFee: money(q.ShippingFee), Total: money(q.Total)}
}

// orderRow is the printed shape of an order.
type orderRow struct {
	ID            int64  `json:"id" yaml:"id"`
	Status        string `json:"status" yaml:"status"`
	Total         string `json:"total" yaml:"total"`
	PaymentMethod string `json:"payment_method,omitempty" yaml:"payment_method,omitempty"`
	CreatedAt     string `json:"created_at,omitempty" yaml:"created_at,omitempty"`
}

func newOrderRow(o order.Order) orderRow {
	return orderRow{
		ID:            o.ID,
		Status:        o.Status,
		Total:         money(o.Total),
		PaymentMethod: o.PaymentMethod,
		CreatedAt:     o.CreatedAt,
	}
}
