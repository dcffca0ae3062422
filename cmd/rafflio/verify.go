package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rafflio/platform/internal/client"
	"github.com/rafflio/platform/internal/push"
	"github.com/rafflio/platform/internal/reconcile"
	"github.com/rafflio/platform/internal/selector"
)

func verifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify <purchase-id>",
		Short: "Reconcile a purchase's payment against a running API",
		Long: `Run the payment reconciliation engine for one purchase the way the buyer's
browser does after returning from checkout: poll the API, listen on the
purchase's WebSocket and print every step as a JSON line.

With --pick, the listed numbers are then claimed through the ticket selector.`,
		Example: `  rafflio verify 7c1e... --token $TOKEN --payment-id 1319283
  rafflio verify 7c1e... --token $TOKEN --pick 4,8,15`,
		Args: cobra.ExactArgs(1),
		RunE: runVerify,
	}

	cmd.Flags().String("api", envOr("RAFFLIO_API_URL", "http://localhost:3100"), "API base URL")
	cmd.Flags().String("token", os.Getenv("RAFFLIO_PURCHASE_TOKEN"), "purchase token")
	cmd.Flags().String("payment-id", "", "payment_id from the checkout redirect")
	cmd.Flags().String("status", "", "status from the checkout redirect (informational)")
	cmd.Flags().String("preference-id", "", "preference_id from the checkout redirect")
	cmd.Flags().String("merchant-order-id", "", "merchant_order_id from the checkout redirect")
	cmd.Flags().String("pick", "", "comma separated ticket numbers to claim once paid")
	cmd.Flags().Int("attempts", reconcile.DefaultMaxAttempts, "verification attempts before manual recovery")
	cmd.Flags().Duration("timeout", 5*time.Minute, "give up after this long")

	return cmd
}

func runVerify(cmd *cobra.Command, args []string) error {
	logger := newLogger(cmd)
	flags := cmd.Flags()
	apiURL, _ := flags.GetString("api")
	token, _ := flags.GetString("token")
	pick, _ := flags.GetString("pick")
	attempts, _ := flags.GetInt("attempts")
	timeout, _ := flags.GetDuration("timeout")

	numbers, err := parseNumbers(pick)
	if err != nil {
		return err
	}

	var info reconcile.PaymentInfo
	info.PaymentID, _ = flags.GetString("payment-id")
	info.Status, _ = flags.GetString("status")
	info.PreferenceID, _ = flags.GetString("preference-id")
	info.MerchantOrderID, _ = flags.GetString("merchant-order-id")
	info.ExternalReference = args[0]

	ctx := cmd.Context()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	api := client.New(apiURL, token, 15*time.Second)
	engine := reconcile.New(api, api, push.NewWSChannel(apiURL, token, logger),
		reconcile.WithLogger(logger),
		reconcile.WithMaxAttempts(attempts),
	)

	out := json.NewEncoder(cmd.OutOrStdout())
	final, err := engine.Run(ctx, args[0], info, func(s reconcile.Snapshot) {
		_ = out.Encode(s)
	})
	if err != nil {
		return err
	}

	switch final.State {
	case reconcile.StateApproved, reconcile.StateAlreadyConfirmed:
	default:
		return fmt.Errorf("verification ended in %s: %s", final.State, final.Message)
	}
	if len(numbers) == 0 {
		return nil
	}
	return pickNumbers(ctx, api, args[0], numbers, cmd.OutOrStdout())
}

func pickNumbers(ctx context.Context, api *client.API, purchaseID string, numbers []int, w io.Writer) error {
	purchase, err := api.GetPurchase(ctx, purchaseID)
	if err != nil {
		return err
	}
	if purchase == nil {
		return fmt.Errorf("purchase %s not found", purchaseID)
	}

	sel, err := selector.New(ctx, api, api, purchase)
	if err != nil {
		return err
	}
	if sel.Confirmed() {
		fmt.Fprintf(w, "already confirmed: %v\n", sel.Selection())
		return nil
	}

	for _, n := range numbers {
		changed, err := sel.Toggle(n)
		if err != nil {
			return err
		}
		if !changed {
			return fmt.Errorf("number %d cannot be picked", n)
		}
	}

	claimed, err := sel.Confirm(ctx)
	if errors.Is(err, selector.ErrRaceOnClaim) {
		return fmt.Errorf("%w; now available: %v", err, available(sel))
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "claimed: %v\n", claimed)
	return nil
}

func available(sel *selector.Selector) []int {
	var out []int
	for _, c := range sel.View() {
		if c.State == selector.CellAvailable {
			out = append(out, c.Number)
		}
	}
	return out
}

func parseNumbers(s string) ([]int, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var out []int
	for _, part := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid ticket number %q", part)
		}
		out = append(out, n)
	}
	return out, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
