//go:build integration

package testutil

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/rafflio/platform/internal/domain"
)

// DecodeJSON reads and decodes a JSON response body into dst.
func DecodeJSON(t *testing.T, resp *http.Response, dst interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		t.Fatalf("DecodeJSON: %v", err)
	}
}

// AssertStatus checks that the response has the expected HTTP status code.
func AssertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

// AssertErrorCode checks that the response body contains the expected error code.
func AssertErrorCode(t *testing.T, resp *http.Response, expectedCode string) {
	t.Helper()
	var errResp struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	DecodeJSON(t, resp, &errResp)
	if errResp.Code != expectedCode {
		t.Errorf("expected error code %q, got %q (message: %s)", expectedCode, errResp.Code, errResp.Message)
	}
}

// PurchaseStatus reads the stored status of a purchase.
func PurchaseStatus(t *testing.T, env *TestEnv, id uuid.UUID) domain.PurchaseStatus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var status string
	if err := env.Pool.QueryRow(ctx, "SELECT status FROM purchases WHERE id = $1", id).Scan(&status); err != nil {
		t.Fatalf("PurchaseStatus: %v", err)
	}
	return domain.PurchaseStatus(status)
}

// OwnedNumbers returns the ticket numbers a purchase holds, ascending.
func OwnedNumbers(t *testing.T, env *TestEnv, id uuid.UUID) []int {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rows, err := env.Pool.Query(ctx, "SELECT number FROM tickets WHERE purchase_id = $1 ORDER BY number", id)
	if err != nil {
		t.Fatalf("OwnedNumbers: %v", err)
	}
	defer rows.Close()

	numbers := []int{}
	for rows.Next() {
		var n int
		if err := rows.Scan(&n); err != nil {
			t.Fatalf("OwnedNumbers: scan: %v", err)
		}
		numbers = append(numbers, n)
	}
	return numbers
}

// CountOutboxEvents returns the number of outbox events of the given type
// for a purchase.
func CountOutboxEvents(t *testing.T, env *TestEnv, id uuid.UUID, eventType domain.EventType) int {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var count int
	err := env.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM event_outbox WHERE "aggregateId" = $1 AND "eventType" = $2`,
		id.String(), string(eventType)).Scan(&count)
	if err != nil {
		t.Fatalf("CountOutboxEvents: %v", err)
	}
	return count
}
