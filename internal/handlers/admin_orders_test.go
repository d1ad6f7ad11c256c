package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"

	domain "github.com/scentora/storefront/internal/domain"
	"github.com/scentora/storefront/internal/services"
)

func newAdminTestRouter(svc services.OrderService) chi.Router {
	router := chi.NewRouter()
	router.Route("/admin", NewAdminOrderHandlers(nil, svc).Routes)
	return router
}

func TestAdminOrderHandlersUpdateStatus(t *testing.T) {
	cases := map[string]struct {
		body   string
		status int
		want   services.UpdateItemStatusCommand
	}{
		"single item":     {`{"itemIndex":1,"status":"Shipped"}`, http.StatusOK, services.UpdateItemStatusCommand{ItemIndex: 1, Status: domain.OrderStatusShipped}},
		"string index":    {`{"itemIndex":"0","status":"out for delivery"}`, http.StatusOK, services.UpdateItemStatusCommand{ItemIndex: 0, Status: domain.OrderStatusOutForDelivery}},
		"every item":      {`{"itemIndex":"all","status":"Delivered"}`, http.StatusOK, services.UpdateItemStatusCommand{All: true, Status: domain.OrderStatusDelivered}},
		"unknown status":  {`{"itemIndex":0,"status":"Teleported"}`, http.StatusBadRequest, services.UpdateItemStatusCommand{}},
		"several indexes": {`{"itemIndex":[0,1],"status":"Shipped"}`, http.StatusBadRequest, services.UpdateItemStatusCommand{}},
		"missing index":   {`{"status":"Shipped"}`, http.StatusBadRequest, services.UpdateItemStatusCommand{}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			var got services.UpdateItemStatusCommand
			svc := &stubOrderService{updateStatusFn: func(_ context.Context, cmd services.UpdateItemStatusCommand) (services.Order, error) {
				got = cmd
				return sampleOrder(), nil
			}}
			rr := serveAs(newAdminTestRouter(svc), "admin-1", http.MethodPost, "/admin/orders/ord_1/status", tc.body)
			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, rr.Code, rr.Body.String())
			}
			if tc.status != http.StatusOK {
				return
			}
			if got.ActorID != "admin-1" || got.OrderID != "ord_1" {
				t.Fatalf("unexpected actor or order %+v", got)
			}
			if got.All != tc.want.All || got.ItemIndex != tc.want.ItemIndex || got.Status != tc.want.Status {
				t.Fatalf("expected %+v, got %+v", tc.want, got)
			}
		})
	}
}

func TestAdminOrderHandlersReturnDecisions(t *testing.T) {
	var approved, rejected services.ReturnDecisionCommand
	svc := &stubOrderService{
		approveFn: func(_ context.Context, cmd services.ReturnDecisionCommand) (services.CancellationResult, error) {
			approved = cmd
			return services.CancellationResult{Order: sampleOrder(), RefundAmount: 900, RefundToWallet: true}, nil
		},
		rejectFn: func(_ context.Context, cmd services.ReturnDecisionCommand) (services.Order, error) {
			rejected = cmd
			return sampleOrder(), nil
		},
	}
	router := newAdminTestRouter(svc)

	rr := serveAs(router, "admin-1", http.MethodPost, "/admin/orders/ord_1/returns/approve", `{"itemIndex":[0,"1"]}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("approve: expected 200, got %d", rr.Code)
	}
	if len(approved.ItemIndexes) != 2 || approved.ItemIndexes[1] != 1 || approved.ActorID != "admin-1" {
		t.Fatalf("unexpected approve command %+v", approved)
	}
	if decodeResponse(t, rr)["refundAmount"] != float64(900) {
		t.Fatal("expected refund amount in response")
	}

	rr = serveAs(router, "admin-1", http.MethodPost, "/admin/orders/ord_1/returns/reject", `{"itemIndex":"all","reason":"bottle opened"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("reject: expected 200, got %d", rr.Code)
	}
	if !rejected.All || rejected.Reason != "bottle opened" {
		t.Fatalf("unexpected reject command %+v", rejected)
	}
}

func TestAdminOrderHandlersRejectWithoutSelection(t *testing.T) {
	rr := serveAs(newAdminTestRouter(&stubOrderService{}), "admin-1", http.MethodPost, "/admin/orders/ord_1/returns/reject", `{"reason":"x"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}
