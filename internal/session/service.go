// Package session runs cart operations for individual shopper sessions on
// top of the pricing engine.
package session

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/kart-pricing/internal/domain/cart"
	"github.com/xenking/kart-pricing/internal/domain/coupon"
	"github.com/xenking/kart-pricing/internal/domain/order"
	"github.com/xenking/kart-pricing/internal/domain/outcome"
	"github.com/xenking/kart-pricing/internal/domain/product"
)

// ErrEmptyCart is reported when checking out a cart without lines.
var ErrEmptyCart = errors.New("cart is empty")

// CartStore loads and updates the cart of a session.
type CartStore interface {
	Load(ctx context.Context, sessionID string) (cart.Cart, error)
	// Update stores the cart fn derives from the current one. fn may run
	// more than once when the cart changes concurrently.
	Update(ctx context.Context, sessionID string, fn func(c cart.Cart) (cart.Cart, error)) error
}

// SelectionStore keeps the coupon selected by a session, and the notices
// queued for its next request, apart from the cart.
type SelectionStore interface {
	Selected(ctx context.Context, sessionID string) (*coupon.Coupon, error)
	Select(ctx context.Context, sessionID string, c *coupon.Coupon) error
	// Revoke clears every selection of code and returns the cleared
	// coupons by session id.
	Revoke(ctx context.Context, code string) (map[string]coupon.Coupon, error)
	Notify(ctx context.Context, sessionID string, res outcome.Result) error
	// Notices returns the queued notices and how many entries were read.
	Notices(ctx context.Context, sessionID string) ([]outcome.Result, int, error)
	AckNotices(ctx context.Context, sessionID string, n int) error
}

// Options tune a Service. Zero values select no-op telemetry and time.Now.
type Options struct {
	MeterProvider  metric.MeterProvider
	TracerProvider trace.TracerProvider
	Now            func() time.Time
}

// Service is safe for concurrent use. It keeps no session state of its own.
type Service struct {
	engine     *cart.Engine
	products   product.Repository
	coupons    coupon.Repository
	carts      CartStore
	selections SelectionStore
	orders     order.Repository
	now        func() time.Time

	tracer    trace.Tracer
	mutations metric.Int64Counter
}

// NewService wires a Service.
func NewService(
	engine *cart.Engine,
	products product.Repository,
	coupons coupon.Repository,
	carts CartStore,
	selections SelectionStore,
	orders order.Repository,
	opts Options,
) (*Service, error) {
	if opts.MeterProvider == nil {
		opts.MeterProvider = noop.NewMeterProvider()
	}
	if opts.TracerProvider == nil {
		opts.TracerProvider = tracenoop.NewTracerProvider()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	mutations, err := opts.MeterProvider.Meter("kart/session").Int64Counter("cart.mutations",
		metric.WithDescription("Cart operations by outcome"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create mutations counter")
	}

	return &Service{
		engine:     engine,
		products:   products,
		coupons:    coupons,
		carts:      carts,
		selections: selections,
		orders:     orders,
		now:        opts.Now,
		tracer:     opts.TracerProvider.Tracer("kart/session"),
		mutations:  mutations,
	}, nil
}

// state is one session loaded together with a fresh catalog snapshot.
type state struct {
	id       string
	cart     cart.Cart
	products []product.Product
	coupons  []coupon.Coupon
	// stored is the selection as persisted; selected is what the request
	// leaves behind.
	stored   *coupon.Coupon
	selected *coupon.Coupon
	notices  []outcome.Result
	queued   int
}

// load reads everything of sessionID except the cart, which mutations read
// inside their update.
func (s *Service) load(ctx context.Context, sessionID string) (*state, error) {
	products, err := s.products.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list products")
	}
	coupons, err := s.coupons.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list coupons")
	}
	stored, err := s.selections.Selected(ctx, sessionID)
	if err != nil {
		return nil, errors.Wrap(err, "load selection")
	}
	notices, queued, err := s.selections.Notices(ctx, sessionID)
	if err != nil {
		return nil, errors.Wrap(err, "load notices")
	}

	st := &state{
		id:       sessionID,
		products: products,
		coupons:  coupons,
		stored:   stored,
		notices:  notices,
		queued:   queued,
	}
	selected, res := s.engine.RevalidateCoupon(stored, coupons)
	if res.Kind == outcome.KindWarning {
		st.notices = append(st.notices, res)
		zctx.From(ctx).Info("Dropped stale coupon selection",
			zap.String("session", sessionID),
			zap.Error(res.Err),
		)
	}
	st.selected = selected
	return st, nil
}

// commit persists a changed selection and acknowledges the notices that
// the response delivers.
func (s *Service) commit(ctx context.Context, st *state) error {
	if st.selected != st.stored {
		if err := s.selections.Select(ctx, st.id, st.selected); err != nil {
			return errors.Wrap(err, "save selection")
		}
		st.stored = st.selected
	}
	if err := s.selections.AckNotices(ctx, st.id, st.queued); err != nil {
		return errors.Wrap(err, "ack notices")
	}
	st.queued = 0
	return nil
}

// apply runs fn against the stored cart and stores the cart fn leaves in st
// when it succeeds. fn reruns on the fresh cart when another request wrote
// it meanwhile, so it must not touch anything but st.
func (s *Service) apply(ctx context.Context, st *state, fn func(st *state) outcome.Result) (outcome.Result, error) {
	selected := st.selected
	var res outcome.Result
	err := s.carts.Update(ctx, st.id, func(c cart.Cart) (cart.Cart, error) {
		st.cart, st.selected = c, selected
		res = fn(st)
		if !res.Success {
			st.cart, st.selected = c, selected
		}
		return st.cart, nil
	})
	if err != nil {
		return outcome.Result{}, err
	}
	return res, nil
}

func (s *Service) finish(st *state, res outcome.Result) Outcome {
	return Outcome{
		Result:  res,
		Notices: st.notices,
		View:    buildView(st.cart, st.selected, st.products),
	}
}

// record counts op and annotates the span with its result.
func (s *Service) record(ctx context.Context, span trace.Span, op string, res outcome.Result) {
	result := "success"
	switch {
	case !res.Success:
		result = "failure"
	case res.Kind == outcome.KindWarning:
		result = "warning"
	}
	s.mutations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", op),
		attribute.String("outcome", result),
	))
	span.SetAttributes(attribute.String("cart.outcome", result))
	if code := res.Code(); code != "" {
		span.SetAttributes(attribute.String("cart.code", string(code)))
	}
	if !res.Success {
		zctx.From(ctx).Debug("Cart operation rejected",
			zap.String("operation", op),
			zap.String("code", string(res.Code())),
			zap.String("message", res.Message),
		)
	}
}

// mutate runs fn against the loaded session, then persists the cart and
// the selection fn leaves behind when it succeeds.
func (s *Service) mutate(ctx context.Context, op, sessionID string, fn func(st *state) outcome.Result) (Outcome, error) {
	ctx, span := s.tracer.Start(ctx, "session."+op, trace.WithAttributes(
		attribute.String("session.id", sessionID),
	))
	defer span.End()

	st, err := s.load(ctx, sessionID)
	if err != nil {
		span.RecordError(err)
		return Outcome{}, err
	}
	res, err := s.apply(ctx, st, fn)
	if err != nil {
		span.RecordError(err)
		return Outcome{}, err
	}
	if err := s.commit(ctx, st); err != nil {
		span.RecordError(err)
		return Outcome{}, err
	}
	s.record(ctx, span, op, res)
	return s.finish(st, res), nil
}

// View returns the priced cart of sessionID.
func (s *Service) View(ctx context.Context, sessionID string) (Outcome, error) {
	st, err := s.load(ctx, sessionID)
	if err != nil {
		return Outcome{}, err
	}
	if st.cart, err = s.carts.Load(ctx, sessionID); err != nil {
		return Outcome{}, errors.Wrap(err, "load cart")
	}
	if err := s.commit(ctx, st); err != nil {
		return Outcome{}, err
	}
	return s.finish(st, outcome.OK("")), nil
}

// AddItem adds one unit of productID.
func (s *Service) AddItem(ctx context.Context, sessionID, productID string) (Outcome, error) {
	return s.mutate(ctx, "add_item", sessionID, func(st *state) outcome.Result {
		p, ok := product.Find(st.products, productID)
		if !ok {
			return outcome.Fail(errors.Wrap(product.ErrNotFound, productID), "Product not found.")
		}
		var res outcome.Result
		st.cart, res = s.engine.AddToCart(st.cart, p)
		return res
	})
}

// RemoveItem drops the line of productID.
func (s *Service) RemoveItem(ctx context.Context, sessionID, productID string) (Outcome, error) {
	return s.mutate(ctx, "remove_item", sessionID, func(st *state) outcome.Result {
		var res outcome.Result
		st.cart, res = s.engine.RemoveFromCart(st.cart, productID)
		return res
	})
}

// SetQuantity sets the line of productID to n units; n <= 0 removes it.
func (s *Service) SetQuantity(ctx context.Context, sessionID, productID string, n int) (Outcome, error) {
	return s.mutate(ctx, "set_quantity", sessionID, func(st *state) outcome.Result {
		var res outcome.Result
		st.cart, res = s.engine.SetQuantity(st.cart, productID, n, st.products)
		return res
	})
}

// ApplyCoupon selects the coupon with the given code.
func (s *Service) ApplyCoupon(ctx context.Context, sessionID, code string) (Outcome, error) {
	return s.mutate(ctx, "apply_coupon", sessionID, func(st *state) outcome.Result {
		var cp *coupon.Coupon
		for i := range st.coupons {
			if strings.EqualFold(st.coupons[i].Code, code) {
				cp = &st.coupons[i]
				break
			}
		}
		if cp == nil {
			return outcome.Fail(errors.Wrap(coupon.ErrNotFound, code), "Coupon not found.")
		}

		var res outcome.Result
		st.selected, res = s.engine.ApplyCoupon(st.cart, *cp, st.selected)
		return res
	})
}

// ClearCoupon drops the selected coupon.
func (s *Service) ClearCoupon(ctx context.Context, sessionID string) (Outcome, error) {
	return s.mutate(ctx, "clear_coupon", sessionID, func(st *state) outcome.Result {
		var res outcome.Result
		st.selected, res = s.engine.ClearCoupon(st.selected)
		return res
	})
}

// Checkout empties the cart, records the order and clears the selection, in
// that order. A failure to record the order puts the lines back, so a
// failed checkout leaves the session as it was and can be retried without
// duplicating the order.
func (s *Service) Checkout(ctx context.Context, sessionID string) (Outcome, error) {
	ctx, span := s.tracer.Start(ctx, "session.checkout", trace.WithAttributes(
		attribute.String("session.id", sessionID),
	))
	defer span.End()

	st, err := s.load(ctx, sessionID)
	if err != nil {
		span.RecordError(err)
		return Outcome{}, err
	}

	var (
		placed  cart.Cart
		receipt cart.Receipt
	)
	res, err := s.apply(ctx, st, func(st *state) outcome.Result {
		if st.cart.Empty() {
			return outcome.Fail(ErrEmptyCart, "Your cart is empty.")
		}
		var res outcome.Result
		placed = st.cart
		receipt, res = s.engine.CompleteOrder(st.cart, st.selected)
		st.cart = cart.Cart{}
		return res
	})
	if err != nil {
		span.RecordError(err)
		return Outcome{}, err
	}
	if !res.Success {
		if err := s.commit(ctx, st); err != nil {
			span.RecordError(err)
			return Outcome{}, err
		}
		s.record(ctx, span, "checkout", res)
		return s.finish(st, res), nil
	}

	o := newOrder(receipt, placed, st.selected, s.now())
	if err := s.orders.Create(ctx, o); err != nil {
		err = errors.Wrap(err, "record order")
		span.RecordError(err)
		s.restore(ctx, sessionID, placed)
		return Outcome{}, err
	}
	zctx.From(ctx).Info("Order completed",
		zap.String("order_id", o.ID),
		zap.Int64("total", o.TotalAfterDiscount),
		zap.String("coupon", o.CouponCode),
	)

	st.selected = nil
	if err := s.commit(ctx, st); err != nil {
		// The order stands; only the selection survives on an empty cart.
		span.RecordError(err)
		zctx.From(ctx).Error("Finish checkout",
			zap.String("order_id", o.ID),
			zap.Error(err),
		)
	}
	s.record(ctx, span, "checkout", res)
	out := s.finish(st, res)
	out.OrderID = o.ID
	return out, nil
}

// restore puts the lines of a failed checkout back unless the session
// already filled a new cart.
func (s *Service) restore(ctx context.Context, sessionID string, placed cart.Cart) {
	err := s.carts.Update(ctx, sessionID, func(c cart.Cart) (cart.Cart, error) {
		if !c.Empty() {
			return c, nil
		}
		return placed, nil
	})
	if err != nil {
		zctx.From(ctx).Error("Restore cart after failed checkout",
			zap.String("session", sessionID),
			zap.Error(err),
		)
	}
}

func newOrder(receipt cart.Receipt, placed cart.Cart, selected *coupon.Coupon, now time.Time) *order.Order {
	o := &order.Order{
		ID:                  receipt.OrderID,
		TotalBeforeDiscount: receipt.Totals.BeforeDiscount,
		TotalAfterDiscount:  receipt.Totals.AfterDiscount,
		CreatedAt:           now,
	}
	if selected != nil {
		o.CouponCode = selected.Code
	}
	for _, l := range placed.Lines {
		o.Items = append(o.Items, order.Item{
			ProductID: l.Product.ID,
			Name:      l.Product.Name,
			Quantity:  l.Quantity,
			LineTotal: cart.LineTotal(l, placed),
		})
	}
	return o
}

// Products returns the current product catalog.
func (s *Service) Products(ctx context.Context) ([]product.Product, error) {
	products, err := s.products.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list products")
	}
	return products, nil
}

// Coupons returns the current coupon catalog.
func (s *Service) Coupons(ctx context.Context) ([]coupon.Coupon, error) {
	coupons, err := s.coupons.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list coupons")
	}
	return coupons, nil
}

// CreateCoupon adds c to the catalog. An out of range value is rejected
// and the corrected value is reported back in CouponOutcome.Coupon.
func (s *Service) CreateCoupon(ctx context.Context, c coupon.Coupon) (CouponOutcome, error) {
	ctx, span := s.tracer.Start(ctx, "session.create_coupon")
	defer span.End()

	c.Code = strings.TrimSpace(c.Code)
	out, err := s.createCoupon(ctx, c)
	if err != nil {
		span.RecordError(err)
		return CouponOutcome{}, err
	}
	s.record(ctx, span, "create_coupon", out.Result)
	return out, nil
}

func (s *Service) createCoupon(ctx context.Context, c coupon.Coupon) (CouponOutcome, error) {
	coupons, err := s.coupons.List(ctx)
	if err != nil {
		return CouponOutcome{}, errors.Wrap(err, "list coupons")
	}
	out := CouponOutcome{Coupon: c, Coupons: coupons}

	corrected, err := coupon.ValidateDiscountValue(c.DiscountType, c.DiscountValue)
	if err != nil {
		out.Coupon.DiscountValue = corrected
		out.Result = outcome.Fail(err, invalidValueMessage(c.DiscountType, corrected))
		return out, nil
	}
	if err := coupon.CheckCodeAvailable(c.Code, coupons); err != nil {
		out.Result = outcome.Fail(err, fmt.Sprintf("Coupon code %s already exists.", c.Code))
		return out, nil
	}

	switch err := s.coupons.Create(ctx, c); {
	case errors.Is(err, coupon.ErrDuplicateCode):
		out.Result = outcome.Fail(err, fmt.Sprintf("Coupon code %s already exists.", c.Code))
		return out, nil
	case err != nil:
		return CouponOutcome{}, errors.Wrap(err, "create coupon")
	}

	if out.Coupons, err = s.coupons.List(ctx); err != nil {
		return CouponOutcome{}, errors.Wrap(err, "list coupons")
	}
	out.Result = outcome.OK(fmt.Sprintf("Coupon %s created.", c.Code))
	return out, nil
}

func invalidValueMessage(t coupon.DiscountType, corrected fmt.Stringer) string {
	if t == coupon.DiscountPercentage {
		return fmt.Sprintf("Percentage discounts must be between 0 and 100. Value set to %s.", corrected)
	}
	return fmt.Sprintf("Amount discounts must be between 0 and %s. Value set to %s.", coupon.MaxAmount, corrected)
}

// DeleteCoupon removes the coupon with the given code. Sessions that had it
// selected lose the selection and are warned on their next request.
func (s *Service) DeleteCoupon(ctx context.Context, code string) (CouponOutcome, error) {
	ctx, span := s.tracer.Start(ctx, "session.delete_coupon")
	defer span.End()

	res := outcome.OK("")
	switch err := s.coupons.Delete(ctx, code); {
	case errors.Is(err, coupon.ErrNotFound):
		res = outcome.Fail(err, "Coupon not found.")
	case err != nil:
		span.RecordError(err)
		return CouponOutcome{}, errors.Wrap(err, "delete coupon")
	}

	coupons, err := s.coupons.List(ctx)
	if err != nil {
		return CouponOutcome{}, errors.Wrap(err, "list coupons")
	}
	if res.Success {
		cleared, err := s.revokeSelections(ctx, code, coupons)
		if err != nil {
			span.RecordError(err)
			return CouponOutcome{}, err
		}
		res = outcome.OK(fmt.Sprintf("Coupon %s deleted.", code))
		zctx.From(ctx).Info("Coupon deleted",
			zap.String("code", code),
			zap.Int("cleared_selections", cleared),
		)
	}
	s.record(ctx, span, "delete_coupon", res)
	return CouponOutcome{Result: res, Coupons: coupons}, nil
}

// revokeSelections clears every selection of the deleted code and queues the
// warning for the owning session. The code is treated as gone even if the
// catalog still lists it.
func (s *Service) revokeSelections(ctx context.Context, code string, catalog []coupon.Coupon) (int, error) {
	remaining := slices.DeleteFunc(slices.Clone(catalog), func(c coupon.Coupon) bool {
		return strings.EqualFold(c.Code, code)
	})

	revoked, err := s.selections.Revoke(ctx, code)
	if err != nil {
		return 0, errors.Wrap(err, "revoke selections")
	}
	for id, c := range revoked {
		_, res := s.engine.RevalidateCoupon(&c, remaining)
		if err := s.selections.Notify(ctx, id, res); err != nil {
			return 0, errors.Wrapf(err, "notify %s", id)
		}
	}
	return len(revoked), nil
}
