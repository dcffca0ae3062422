package admin

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rafflio/platform/internal/domain"
	"github.com/rafflio/platform/internal/handler"
)

// ReportsHandler handles admin report generation.
type ReportsHandler struct {
	pool *pgxpool.Pool
}

// NewReportsHandler creates a new ReportsHandler.
func NewReportsHandler(pool *pgxpool.Pool) *ReportsHandler {
	return &ReportsHandler{pool: pool}
}

// DashboardStats is the admin landing page summary.
type DashboardStats struct {
	ActiveRaffles     int   `json:"active_raffles"`
	TicketsSold       int   `json:"tickets_sold"`
	TicketsReserved   int   `json:"tickets_reserved"`
	PendingPurchases  int   `json:"pending_purchases"`
	PaidUnclaimed     int   `json:"paid_unclaimed"`
	ConfirmedRevenue  int64 `json:"confirmed_revenue"`
	FailedLast24Hours int   `json:"failed_last_24h"`
}

// GetDashboardStats handles GET /api/admin/reports/dashboard.
func (h *ReportsHandler) GetDashboardStats(w http.ResponseWriter, r *http.Request) {
	var s DashboardStats
	ctx := r.Context()

	err := h.pool.QueryRow(ctx, `SELECT COUNT(*) FROM raffles WHERE is_active`).Scan(&s.ActiveRaffles)
	if err != nil {
		handler.RespondError(w, domain.ErrInternal("count raffles", err))
		return
	}

	err = h.pool.QueryRow(ctx, `
		SELECT COUNT(*) FILTER (WHERE status = 'sold'),
		       COUNT(*) FILTER (WHERE status = 'reserved')
		FROM tickets`).Scan(&s.TicketsSold, &s.TicketsReserved)
	if err != nil {
		handler.RespondError(w, domain.ErrInternal("count tickets", err))
		return
	}

	err = h.pool.QueryRow(ctx, `
		SELECT COUNT(*) FILTER (WHERE status = 'pending'),
		       COUNT(*) FILTER (WHERE status = 'paid'),
		       COALESCE(SUM(amount) FILTER (WHERE status = 'confirmed'), 0)::bigint,
		       COUNT(*) FILTER (WHERE status = 'failed' AND updated_at > now() - interval '24 hours')
		FROM purchases`).Scan(&s.PendingPurchases, &s.PaidUnclaimed, &s.ConfirmedRevenue, &s.FailedLast24Hours)
	if err != nil {
		handler.RespondError(w, domain.ErrInternal("count purchases", err))
		return
	}

	handler.RespondJSON(w, http.StatusOK, s)
}

type raffleSales struct {
	RaffleID    uuid.UUID `json:"raffle_id"`
	Title       string    `json:"title"`
	MaxTickets  int       `json:"max_tickets"`
	Sold        int       `json:"sold"`
	Purchases   int       `json:"purchases"`
	Revenue     int64     `json:"revenue"`
	PendingPaid int       `json:"pending_or_paid"`
}

// GetSalesReport handles GET /api/admin/reports/sales?period=7 days.
func (h *ReportsHandler) GetSalesReport(w http.ResponseWriter, r *http.Request) {
	period := r.URL.Query().Get("period")
	if period == "" {
		period = "30 days"
	}

	rows, err := h.pool.Query(r.Context(), `
		SELECT r.id, r.title, r.max_tickets,
		       (SELECT COUNT(*) FROM tickets t WHERE t.raffle_id = r.id AND t.status = 'sold'),
		       COUNT(p.id) FILTER (WHERE p.status = 'confirmed'),
		       COALESCE(SUM(p.amount) FILTER (WHERE p.status = 'confirmed'), 0)::bigint,
		       COUNT(p.id) FILTER (WHERE p.status IN ('pending', 'paid'))
		FROM raffles r
		LEFT JOIN purchases p ON p.raffle_id = r.id AND p.created_at > now() - $1::interval
		GROUP BY r.id
		ORDER BY r.draw_date DESC`, period)
	if err != nil {
		handler.RespondError(w, domain.ErrValidation("invalid period"))
		return
	}
	defer rows.Close()

	report := []raffleSales{}
	for rows.Next() {
		var s raffleSales
		if err := rows.Scan(&s.RaffleID, &s.Title, &s.MaxTickets, &s.Sold, &s.Purchases, &s.Revenue, &s.PendingPaid); err != nil {
			handler.RespondError(w, domain.ErrInternal("scan report", err))
			return
		}
		report = append(report, s)
	}
	if err := rows.Err(); err != nil {
		handler.RespondError(w, domain.ErrInternal("read report", err))
		return
	}

	handler.RespondJSON(w, http.StatusOK, report)
}
