package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/storefront-dev/storefront/internal/domain/cart"
	"github.com/storefront-dev/storefront/internal/service"
)

var (
	productsLimit      int
	productsQuery      string
	productsCategories []string
)

var productsCmd = &cobra.Command{
	Use:     "products",
	Aliases: []string{"product"},
	Short:   "Browse the catalog",
}

var productsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List products",
	Long: `List products, optionally narrowed by a search query and categories.

Examples:
  storefront products list
  storefront products list --query lamp
  storefront products list --category Lighting --category Office`,
	Args: cobra.NoArgs,
	RunE: runProductsList,
}

var productsShowCmd = &cobra.Command{
	Use:   "show <product-id>",
	Short: "Show a product with its stock",
	Args:  cobra.ExactArgs(1),
	RunE:  runProductsShow,
}

var productsCategoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "List the categories in the catalog",
	Args:  cobra.NoArgs,
	RunE:  runProductsCategories,
}

func init() {
	productsListCmd.Flags().IntVar(&productsLimit, "limit", 100, "maximum number of products to fetch")
	productsListCmd.Flags().StringVarP(&productsQuery, "query", "q", "", "match name, description or category")
	productsListCmd.Flags().StringSliceVar(&productsCategories, "category", nil, "keep only these categories (repeatable)")
	productsCategoriesCmd.Flags().IntVar(&productsLimit, "limit", 100, "maximum number of products to scan")

	productsCmd.AddCommand(productsListCmd, productsShowCmd, productsCategoriesCmd)
	rootCmd.AddCommand(productsCmd)
}

func runProductsList(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		products, err := a.catalog.ListProducts(ctx, productsLimit)
		if err != nil {
			return err
		}
		products = service.FilterProducts(products, service.ProductFilter{
			Query:      productsQuery,
			Categories: productsCategories,
		})

		rows := make([]productRow, 0, len(products))
		for _, p := range products {
			rows = append(rows, newProductRow(p))
		}
		return render(cmd, rows, func(w io.Writer) {
			if len(rows) == 0 {
				fmt.Fprintln(w, "No products found.")
				return
			}
			fmt.Fprintln(w, "ID\tNAME\tPRICE\tCATEGORY")
			for _, r := range rows {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.ID, r.Name, r.Price, r.Category)
			}
		})
	})
}

func runProductsShow(cmd *cobra.Command, args []string) error {
	id, err := cart.ParseProductID(args[0])
	if err != nil {
		return err
	}
	return withApp(cmd, func(ctx context.Context, a *app) error {
		view, err := a.details.Load(ctx, id)
		if err != nil {
			return err
		}
		row := newProductRow(*view.Product)
		if view.StockKnown() {
			n := view.InStock()
			row.Stock = &n
		}
		return render(cmd, row, func(w io.Writer) {
			fmt.Fprintf(w, "ID:\t%s\n", row.ID)
			fmt.Fprintf(w, "Name:\t%s\n", row.Name)
			fmt.Fprintf(w, "Price:\t%s\n", row.Price)
			if row.Category != "" {
				fmt.Fprintf(w, "Category:\t%s\n", row.Category)
			}
			fmt.Fprintf(w, "Stock:\t%s\n", stockLabel(view))
			if row.Description != "" {
				fmt.Fprintf(w, "\n%s\n", row.Description)
			}
		})
	})
}

func stockLabel(v *service.ProductView) string {
	switch {
	case !v.StockKnown():
		return "unknown"
	case v.InStock() <= 0:
		return "out of stock"
	default:
		return fmt.Sprintf("%d available", v.InStock())
	}
}

func runProductsCategories(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		products, err := a.catalog.ListProducts(ctx, productsLimit)
		if err != nil {
			return err
		}
		categories := service.Categories(products)
		return render(cmd, categories, func(w io.Writer) {
			for _, c := range categories {
				fmt.Fprintln(w, c)
			}
		})
	})
}
