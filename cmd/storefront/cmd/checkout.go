package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/storefront-dev/storefront/internal/domain/order"
)

var (
	checkoutFromFile string
	checkoutDryRun   bool
	checkoutInfo     order.DeliveryInfo
)

var checkoutCmd = &cobra.Command{
	Use:   "checkout",
	Short: "Place a cash-on-delivery order for the cart",
	Long: `Place an order for everything in the cart. Payment is cash on delivery
and a flat shipping fee applies to every non-empty order.

Delivery details come from a YAML file, from flags, or both; flags override
the file.

Examples:
  storefront checkout --dry-run
  storefront checkout --from-file delivery.yaml
  storefront checkout --from-file delivery.yaml --phone 555-0100

delivery.yaml:
  first_name: Ada
  last_name: Lovelace
  email: ada@example.com
  phone: 555-0199
  street: 12 Analytical Row
  city: London
  state: LDN
  zip_code: N1 9GU
  country: UK`,
	Args: cobra.NoArgs,
	RunE: runCheckout,
}

func init() {
	f := checkoutCmd.Flags()
	f.StringVarP(&checkoutFromFile, "from-file", "f", "", "YAML file with the delivery details")
	f.BoolVar(&checkoutDryRun, "dry-run", false, "print the quote without placing the order")
	f.StringVar(&checkoutInfo.FirstName, "first-name", "", "recipient first name")
	f.StringVar(&checkoutInfo.LastName, "last-name", "", "recipient last name")
	f.StringVar(&checkoutInfo.Email, "email", "", "contact email")
	f.StringVar(&checkoutInfo.Phone, "phone", "", "contact phone")
	f.StringVar(&checkoutInfo.Street, "street", "", "street address")
	f.StringVar(&checkoutInfo.City, "city", "", "city")
	f.StringVar(&checkoutInfo.State, "state", "", "state or region")
	f.StringVar(&checkoutInfo.ZipCode, "zip-code", "", "postal code")
	f.StringVar(&checkoutInfo.Country, "country", "", "country")

	rootCmd.AddCommand(checkoutCmd)
}

// deliveryInfo merges the file (if any) with the flags set on cmd.
func deliveryInfo(cmd *cobra.Command) (order.DeliveryInfo, error) {
	var info order.DeliveryInfo
	if checkoutFromFile != "" {
		data, err := os.ReadFile(checkoutFromFile)
		if err != nil {
			return info, fmt.Errorf("failed to read delivery file: %w", err)
		}
		if err := yaml.Unmarshal(data, &info); err != nil {
			return info, fmt.Errorf("failed to parse delivery file: %w", err)
		}
	}

	flags := cmd.Flags()
	override := func(name string, dst *string, v string) {
		if flags.Changed(name) {
			*dst = v
		}
	}
	override("first-name", &info.FirstName, checkoutInfo.FirstName)
	override("last-name", &info.LastName, checkoutInfo.LastName)
	override("email", &info.Email, checkoutInfo.Email)
	override("phone", &info.Phone, checkoutInfo.Phone)
	override("street", &info.Street, checkoutInfo.Street)
	override("city", &info.City, checkoutInfo.City)
	override("state", &info.State, checkoutInfo.State)
	override("zip-code", &info.ZipCode, checkoutInfo.ZipCode)
	override("country", &info.Country, checkoutInfo.Country)
	return info, nil
}

// receiptView is the printed shape of a placed order.
type receiptView struct {
	Order       orderRow  `json:"order" yaml:"order"`
	Quote       quoteView `json:"quote" yaml:"quote"`
	CartCleared bool      `json:"cart_cleared" yaml:"cart_cleared"`
}

func runCheckout(cmd *cobra.Command, args []string) error {
	info, err := deliveryInfo(cmd)
	if err != nil {
		return err
	}

	return withApp(cmd, func(ctx context.Context, a *app) error {
		if err := a.requireLogin(); err != nil {
			return err
		}
		if _, err := a.cart.Load(ctx); err != nil {
			return err
		}

		if checkoutDryRun {
			q := newQuoteView(a.checkout.Quote())
			return render(cmd, q, func(w io.Writer) {
				printQuote(w, q)
			})
		}

		receipt, err := a.checkout.PlaceOrder(ctx, info)
		if err != nil {
			return err
		}
		v := receiptView{
			Order:       newOrderRow(*receipt.Order),
			Quote:       newQuoteView(receipt.Quote),
			CartCleared: receipt.CartCleared,
		}
		return render(cmd, v, func(w io.Writer) {
			fmt.Fprintf(w, "Order #%d placed (%s).\n", v.Order.ID, v.Order.Status)
			printQuote(w, v.Quote)
			if !v.CartCleared {
				fmt.Fprintln(w, "Note: the cart could not be cleared; run `storefront cart clear`.")
			}
		})
	})
}

func printQuote(w io.Writer, q quoteView) {
	fmt.Fprintf(w, "Subtotal:\t%s\n", q.Subtotal)
	fmt.Fprintf(w, "Shipping:\t%s\n", q.ShippingFee)
	fmt.Fprintf(w, "Total:\t%s\n", q.Total)
}
