package services

import (
	"context"
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"

	domain "github.com/grocery-storefront/api/internal/domain"
	"github.com/grocery-storefront/api/internal/platform/textutil"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	maxFullNameLength       = 100
	maxPhoneLength          = 20
	maxEmailLength          = 120
	maxDeliveryTitleLength  = 80
	maxDeliveryDetailLength = 500
	maxDeliveryNoteLength   = 300
	maxCouponCodeLength     = 50

	minLineQuantity = 1
	maxLineQuantity = 50
)

var phonePattern = regexp.MustCompile(`^(?:\+?90|0)?5\d{9}$`)

// OrderRequest is the decoded checkout payload. Nothing in it is trusted; client supplied
// prices or names are not even represented.
type OrderRequest struct {
	Customer      OrderCustomerInput
	Delivery      *OrderDeliveryInput
	Items         []OrderLineInput
	PaymentMethod PaymentMethodInput
	CouponCode    string
}

// OrderCustomerInput carries the customer block. Older clients send the delivery address
// inside it, so the address fields are accepted here too.
type OrderCustomerInput struct {
	FullName string
	Name     string
	Phone    string
	Email    string
	Title    string
	Detail   string
	Note     string
}

// OrderDeliveryInput carries the delivery block.
type OrderDeliveryInput struct {
	Title  string
	Detail string
	Note   string
}

// OrderLineInput is one requested cart line. Quantity keeps the JSON literal so fractional
// values can be rejected rather than truncated.
type OrderLineInput struct {
	ProductID string
	Quantity  json.Number
}

// PaymentMethodInput accepts either a bare token (Value) or the object form older clients post.
type PaymentMethodInput struct {
	Value string
	ID    string
	Label string
	Type  string
}

// OrderActor identifies who places the order. Guests carry no user id.
type OrderActor struct {
	UserID  string
	Email   string
	IsGuest bool
}

// NormalizedOrder is the bounded, typed form of an OrderRequest.
type NormalizedOrder struct {
	Customer      domain.OrderCustomer
	Delivery      domain.OrderDelivery
	Lines         []NormalizedLine
	PaymentMethod domain.PaymentMethod
	CouponCode    string
	UserID        string
	IsGuest       bool
}

// NormalizedLine is a validated cart line.
type NormalizedLine struct {
	Ref      domain.ProductRef
	Quantity int
}

// OrderValidator turns raw checkout requests into NormalizedOrder values.
type OrderValidator struct {
	logger func(ctx context.Context, event string, fields map[string]any)
}

// NewOrderValidator constructs a validator. logger receives an event whenever a payment method
// is only recognised through its free-form label.
func NewOrderValidator(logger func(ctx context.Context, event string, fields map[string]any)) *OrderValidator {
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &OrderValidator{logger: logger}
}

// NormalizeOrderRequest validates req without logging.
func NormalizeOrderRequest(req OrderRequest, actor OrderActor) (NormalizedOrder, error) {
	return NewOrderValidator(nil).Normalize(context.Background(), req, actor)
}

// Normalize validates every field and every line before any store access. All failures are
// *OrderError values of kind VALIDATION_ERROR.
func (v *OrderValidator) Normalize(ctx context.Context, req OrderRequest, actor OrderActor) (NormalizedOrder, error) {
	customer := req.Customer
	delivery := OrderDeliveryInput{Title: customer.Title, Detail: customer.Detail, Note: customer.Note}
	if req.Delivery != nil {
		delivery = *req.Delivery
	}

	fullName := customer.FullName
	if strings.TrimSpace(fullName) == "" {
		fullName = customer.Name
	}

	var out NormalizedOrder
	var err error
	if out.Customer.FullName, err = boundedText("fullName", fullName, maxFullNameLength, true); err != nil {
		return NormalizedOrder{}, err
	}
	if out.Customer.Phone, err = normalizePhone(customer.Phone); err != nil {
		return NormalizedOrder{}, err
	}
	if out.Customer.Email, err = boundedText("email", customer.Email, maxEmailLength, false); err != nil {
		return NormalizedOrder{}, err
	}
	if out.Delivery.Title, err = boundedText("title", delivery.Title, maxDeliveryTitleLength, false); err != nil {
		return NormalizedOrder{}, err
	}
	if out.Delivery.Detail, err = boundedText("addressDetail", delivery.Detail, maxDeliveryDetailLength, true); err != nil {
		return NormalizedOrder{}, err
	}
	if out.Delivery.Note, err = boundedText("note", delivery.Note, maxDeliveryNoteLength, false); err != nil {
		return NormalizedOrder{}, err
	}
	coupon, err := boundedText("couponCode", req.CouponCode, maxCouponCodeLength, false)
	if err != nil {
		return NormalizedOrder{}, err
	}
	out.CouponCode = domain.NormalizeCouponCode(coupon)

	if out.PaymentMethod, err = v.normalizePaymentMethod(ctx, req.PaymentMethod); err != nil {
		return NormalizedOrder{}, err
	}

	if len(req.Items) == 0 {
		return NormalizedOrder{}, validationError("Sepet boş olamaz.")
	}
	out.Lines = make([]NormalizedLine, 0, len(req.Items))
	for _, item := range req.Items {
		line, err := normalizeLine(item)
		if err != nil {
			return NormalizedOrder{}, err
		}
		out.Lines = append(out.Lines, line)
	}

	out.IsGuest = actor.IsGuest
	if !actor.IsGuest {
		out.UserID = strings.TrimSpace(actor.UserID)
		if out.UserID == "" {
			return NormalizedOrder{}, validationError("userId zorunludur.")
		}
	}
	return out, nil
}

func boundedText(field, value string, maxLen int, required bool) (string, error) {
	cleaned := textutil.Clean(value)
	if required && cleaned == "" {
		return "", validationError("%s zorunludur.", field)
	}
	if textutil.Length(cleaned) > maxLen {
		return "", validationError("%s çok uzun.", field)
	}
	return cleaned, nil
}

func normalizePhone(value string) (string, error) {
	trimmed, err := boundedText("phone", value, maxPhoneLength, true)
	if err != nil {
		return "", err
	}
	phone := textutil.StripSpaces(trimmed)
	if !phonePattern.MatchString(phone) {
		return "", validationError("Telefon formatı geçersiz.")
	}
	return phone, nil
}

func (v *OrderValidator) normalizePaymentMethod(ctx context.Context, input PaymentMethodInput) (domain.PaymentMethod, error) {
	for _, candidate := range []string{input.Value, input.ID, input.Type} {
		switch domain.PaymentMethod(strings.ToLower(strings.TrimSpace(candidate))) {
		case domain.PaymentMethodCash:
			return domain.PaymentMethodCash, nil
		case domain.PaymentMethodCard:
			return domain.PaymentMethodCard, nil
		}
	}

	label := input.Label
	if strings.TrimSpace(label) == "" {
		label = input.Value
	}
	// Turkish casing keeps "KAPIDA" matching "kapı".
	label = cases.Lower(language.Turkish).String(textutil.Clean(label))
	var method domain.PaymentMethod
	switch {
	case strings.Contains(label, "kapı"), strings.Contains(label, "cash"):
		method = domain.PaymentMethodCash
	case strings.Contains(label, "kart"), strings.Contains(label, "card"):
		method = domain.PaymentMethodCard
	default:
		return "", validationError("paymentMethod geçersiz.")
	}
	v.logger(ctx, "order.payment_method.label_fallback", map[string]any{
		"label":  label,
		"method": string(method),
	})
	return method, nil
}

func normalizeLine(item OrderLineInput) (NormalizedLine, error) {
	ref := domain.ParseProductRef(item.ProductID)
	if ref.Raw == "" {
		return NormalizedLine{}, validationError("productId zorunludur.")
	}
	if ref.IsZero() {
		return NormalizedLine{}, validationError("productId geçersiz: %s", ref.Raw)
	}
	quantity, ok := parseQuantity(item.Quantity)
	if !ok {
		return NormalizedLine{}, validationError("quantity %d-%d aralığında olmalıdır.", minLineQuantity, maxLineQuantity)
	}
	return NormalizedLine{Ref: ref, Quantity: quantity}, nil
}

func parseQuantity(raw json.Number) (int, bool) {
	text := strings.TrimSpace(raw.String())
	if text == "" {
		return 0, false
	}
	value, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) || value != math.Trunc(value) {
		return 0, false
	}
	if value < minLineQuantity || value > maxLineQuantity {
		return 0, false
	}
	return int(value), true
}
