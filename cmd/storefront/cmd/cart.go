package cmd

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/storefront-dev/storefront/internal/domain/cart"
	"github.com/storefront-dev/storefront/internal/service"
)

var cartAddQty int

var cartCmd = &cobra.Command{
	Use:   "cart",
	Short: "View and change your cart",
	Long: `View and change the cart kept by the backend. Every change is sent to
the backend first and the cart is then fetched again, so what is printed is
always the backend's view.`,
}

var cartShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the cart",
	Args:  cobra.NoArgs,
	RunE:  runCartShow,
}

var cartAddCmd = &cobra.Command{
	Use:   "add <product-id>",
	Short: "Add a product to the cart",
	Long: `Add a product to the cart. The quantity is checked against the stock
shown on the product page before it is sent.`,
	Args: cobra.ExactArgs(1),
	RunE: runCartAdd,
}

var cartSetCmd = &cobra.Command{
	Use:   "set <product-id> <quantity>",
	Short: "Set the quantity of a cart line (0 removes it)",
	Args:  cobra.ExactArgs(2),
	RunE:  runCartSet,
}

var cartRemoveCmd = &cobra.Command{
	Use:     "remove <product-id>",
	Aliases: []string{"rm"},
	Short:   "Remove a product from the cart",
	Args:    cobra.ExactArgs(1),
	RunE:    runCartRemove,
}

var cartClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every line from the cart",
	Args:  cobra.NoArgs,
	RunE:  runCartClear,
}

func init() {
	cartAddCmd.Flags().IntVarP(&cartAddQty, "qty", "n", 1, "quantity to add")

	cartCmd.AddCommand(cartShowCmd, cartAddCmd, cartSetCmd, cartRemoveCmd, cartClearCmd)
	rootCmd.AddCommand(cartCmd)
}

// withCart runs fn against a loaded cart of the signed-in user and prints
// the resulting cart.
func withCart(cmd *cobra.Command, fn func(ctx context.Context, a *app) (service.Outcome, error)) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		if err := a.requireLogin(); err != nil {
			return err
		}
		if _, err := a.cart.Load(ctx); err != nil {
			return err
		}

		if fn != nil {
			out, err := fn(ctx, a)
			if err != nil && !errors.Is(err, service.ErrResyncFailed) {
				return err
			}
			if err != nil {
				a.logger.Warn("cart may be out of date", "error", err)
			}
			if out.Notice != "" {
				fmt.Fprintln(cmd.ErrOrStderr(), out.Notice)
			}
		}
		return printCart(cmd, newCartView(a.cart.Store()))
	})
}

func runCartShow(cmd *cobra.Command, args []string) error {
	return withCart(cmd, nil)
}

func runCartAdd(cmd *cobra.Command, args []string) error {
	id, err := cart.ParseProductID(args[0])
	if err != nil {
		return err
	}
	return withCart(cmd, func(ctx context.Context, a *app) (service.Outcome, error) {
		view, err := a.details.Load(ctx, id)
		if err != nil {
			return service.Outcome{}, err
		}
		return a.details.AddToCart(ctx, view, cartAddQty)
	})
}

func runCartSet(cmd *cobra.Command, args []string) error {
	id, err := cart.ParseProductID(args[0])
	if err != nil {
		return err
	}
	qty, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("invalid quantity %q: %w", args[1], err)
	}
	return withCart(cmd, func(ctx context.Context, a *app) (service.Outcome, error) {
		return a.cart.SetQuantity(ctx, id, qty)
	})
}

func runCartRemove(cmd *cobra.Command, args []string) error {
	id, err := cart.ParseProductID(args[0])
	if err != nil {
		return err
	}
	return withCart(cmd, func(ctx context.Context, a *app) (service.Outcome, error) {
		return a.cart.Remove(ctx, id)
	})
}

func runCartClear(cmd *cobra.Command, args []string) error {
	return withCart(cmd, func(ctx context.Context, a *app) (service.Outcome, error) {
		return a.cart.Clear(ctx)
	})
}
