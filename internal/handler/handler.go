// Package handler exposes the cart session service over HTTP.
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart-pricing/internal/domain/coupon"
	"github.com/xenking/kart-pricing/internal/domain/product"
	"github.com/xenking/kart-pricing/internal/session"
)

// SessionHeader identifies the shopper session of a cart request.
const SessionHeader = "X-Session-ID"

const maxBodyBytes = 64 << 10

// Service is the session API served by Handler.
type Service interface {
	View(ctx context.Context, sessionID string) (session.Outcome, error)
	AddItem(ctx context.Context, sessionID, productID string) (session.Outcome, error)
	RemoveItem(ctx context.Context, sessionID, productID string) (session.Outcome, error)
	SetQuantity(ctx context.Context, sessionID, productID string, n int) (session.Outcome, error)
	ApplyCoupon(ctx context.Context, sessionID, code string) (session.Outcome, error)
	ClearCoupon(ctx context.Context, sessionID string) (session.Outcome, error)
	Checkout(ctx context.Context, sessionID string) (session.Outcome, error)
	Products(ctx context.Context) ([]product.Product, error)
	Coupons(ctx context.Context) ([]coupon.Coupon, error)
	CreateCoupon(ctx context.Context, c coupon.Coupon) (session.CouponOutcome, error)
	DeleteCoupon(ctx context.Context, code string) (session.CouponOutcome, error)
}

var _ Service = (*session.Service)(nil)

// Handler routes cart API requests to the session service.
type Handler struct {
	svc Service
}

// New returns a Handler backed by svc.
func New(svc Service) *Handler {
	return &Handler{svc: svc}
}

// Routes returns the router serving every endpoint under /api.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Get("/products", h.listProducts)
		r.Get("/coupons", h.listCoupons)

		r.Route("/cart", func(r chi.Router) {
			r.Use(requireSession)
			r.Get("/", h.viewCart)
			r.Post("/items", h.addItem)
			r.Patch("/items/{productID}", h.setQuantity)
			r.Delete("/items/{productID}", h.removeItem)
			r.Post("/coupon", h.applyCoupon)
			r.Delete("/coupon", h.clearCoupon)
			r.Post("/checkout", h.checkout)
		})

		r.Route("/admin/coupons", func(r chi.Router) {
			r.Post("/", h.createCoupon)
			r.Delete("/{code}", h.deleteCoupon)
		})
	})
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeMessage(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeMessage(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

type sessionKey struct{}

func requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(SessionHeader)
		if id == "" || len(id) > 128 {
			writeMessage(w, http.StatusBadRequest, "missing or invalid "+SessionHeader+" header")
			return
		}
		ctx := context.WithValue(r.Context(), sessionKey{}, id)
		ctx = zctx.With(ctx, zap.String("session", id))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func sessionID(r *http.Request) string {
	id, _ := r.Context().Value(sessionKey{}).(string)
	return id
}

// fail reports an unexpected error. Business failures never reach it.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	zctx.From(r.Context()).Error("Request failed", zap.Error(err))
	writeMessage(w, http.StatusInternalServerError, "internal error")
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.svc.Products(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, encodeProductList(products))
}

func (h *Handler) listCoupons(w http.ResponseWriter, r *http.Request) {
	coupons, err := h.svc.Coupons(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, encodeCouponList(coupons))
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, out session.Outcome, err error) {
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, statusOf(out.Success), encodeOutcome(out))
}

func (h *Handler) viewCart(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.View(r.Context(), sessionID(r))
	h.respond(w, r, out, err)
}

func (h *Handler) addItem(w http.ResponseWriter, r *http.Request) {
	req, err := decodeAddItem(w, r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := h.svc.AddItem(r.Context(), sessionID(r), req.ProductID)
	h.respond(w, r, out, err)
}

func (h *Handler) setQuantity(w http.ResponseWriter, r *http.Request) {
	req, err := decodeSetQuantity(w, r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := h.svc.SetQuantity(r.Context(), sessionID(r), chi.URLParam(r, "productID"), req.Quantity)
	h.respond(w, r, out, err)
}

func (h *Handler) removeItem(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.RemoveItem(r.Context(), sessionID(r), chi.URLParam(r, "productID"))
	h.respond(w, r, out, err)
}

func (h *Handler) applyCoupon(w http.ResponseWriter, r *http.Request) {
	req, err := decodeApplyCoupon(w, r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := h.svc.ApplyCoupon(r.Context(), sessionID(r), req.Code)
	h.respond(w, r, out, err)
}

func (h *Handler) clearCoupon(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.ClearCoupon(r.Context(), sessionID(r))
	h.respond(w, r, out, err)
}

func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.Checkout(r.Context(), sessionID(r))
	h.respond(w, r, out, err)
}

func (h *Handler) createCoupon(w http.ResponseWriter, r *http.Request) {
	c, err := decodeCoupon(w, r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := h.svc.CreateCoupon(r.Context(), c)
	if err != nil {
		fail(w, r, err)
		return
	}
	status := statusOf(out.Success)
	if out.Success {
		status = http.StatusCreated
	}
	writeJSON(w, status, encodeCouponOutcome(out))
}

func (h *Handler) deleteCoupon(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.DeleteCoupon(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, statusOf(out.Success), encodeCouponOutcome(out))
}

func statusOf(success bool) int {
	if success {
		return http.StatusOK
	}
	return http.StatusUnprocessableEntity
}
