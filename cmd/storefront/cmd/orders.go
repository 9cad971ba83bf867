package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/storefront-dev/storefront/internal/service"
)

var (
	ordersStatus string
	ordersSearch string
	ordersSort   string
)

var ordersCmd = &cobra.Command{
	Use:   "orders",
	Short: "List your orders",
	Long: `List the orders of the signed-in user.

Examples:
  storefront orders
  storefront orders --status pending --sort oldest
  storefront orders --search 42`,
	Args: cobra.NoArgs,
	RunE: runOrders,
}

func init() {
	ordersCmd.Flags().StringVar(&ordersStatus, "status", "all", "keep only orders with this status")
	ordersCmd.Flags().StringVar(&ordersSearch, "search", "", "match the order number or status")
	ordersCmd.Flags().StringVar(&ordersSort, "sort", string(service.SortNewest), "newest or oldest")
	rootCmd.AddCommand(ordersCmd)
}

func runOrders(cmd *cobra.Command, args []string) error {
	sort := service.OrderSort(ordersSort)
	if sort != service.SortNewest && sort != service.SortOldest {
		return fmt.Errorf("invalid sort %q (must be newest or oldest)", ordersSort)
	}

	return withApp(cmd, func(ctx context.Context, a *app) error {
		if err := a.requireLogin(); err != nil {
			return err
		}
		orders, err := a.history.List(ctx, service.OrderFilter{
			Status: ordersStatus,
			Search: ordersSearch,
			Sort:   sort,
		})
		if err != nil {
			return err
		}

		rows := make([]orderRow, 0, len(orders))
		for _, o := range orders {
			rows = append(rows, newOrderRow(o))
		}
		return render(cmd, rows, func(w io.Writer) {
			if len(rows) == 0 {
				fmt.Fprintln(w, "No orders found.")
				return
			}
			fmt.Fprintln(w, "ORDER\tSTATUS\tTOTAL\tPAYMENT\tPLACED")
			for _, r := range rows {
				fmt.Fprintf(w, "#%d\t%s\t%s\t%s\t%s\n", r.ID, r.Status, r.Total, r.PaymentMethod, r.CreatedAt)
			}
		})
	})
}
