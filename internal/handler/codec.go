package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/coffee-shop/internal/domain/account"
	"github.com/xenking/coffee-shop/internal/domain/contact"
	"github.com/xenking/coffee-shop/internal/domain/order"
	"github.com/xenking/coffee-shop/internal/domain/product"
	"github.com/xenking/coffee-shop/internal/domain/validation"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, encode func(e *jx.Encoder)) {
	var e jx.Encoder
	encode(&e)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

// decodeBody reads a JSON object from the request body and hands every key
// to fn. Malformed bodies are reported as a validation error on "body".
func decodeBody(w http.ResponseWriter, r *http.Request, fn func(d *jx.Decoder, key string) error) error {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return validation.Errorf("body", "cannot read request body")
	}
	if err := jx.DecodeBytes(raw).Obj(fn); err != nil {
		return validation.Errorf("body", "malformed JSON: %v", err)
	}
	return nil
}

func encodeMoney(e *jx.Encoder, d decimal.Decimal) {
	e.Float64(d.InexactFloat64())
}

func encodeTime(e *jx.Encoder, t time.Time) {
	e.Str(t.UTC().Format(time.RFC3339))
}

// Requests.

func decodeSubmitRequest(d *jx.Decoder, key string, req *order.SubmitRequest) error {
	switch key {
	case "items":
		return d.Arr(func(d *jx.Decoder) error {
			var it order.CartItem
			err := d.Obj(func(d *jx.Decoder, key string) error {
				var err error
				switch key {
				case "productId":
					it.ProductID, err = d.Str()
				case "quantity":
					it.Quantity, err = d.Int()
				default:
					err = d.Skip()
				}
				return err
			})
			if err != nil {
				return err
			}
			req.Cart.Items = append(req.Cart.Items, it)
			return nil
		})
	case "shippingInfo":
		return d.Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "name":
				req.Shipping.Name, err = d.Str()
			case "phone":
				req.Shipping.Phone, err = d.Str()
			case "email":
				req.Shipping.Email, err = d.Str()
			case "note":
				if d.Next() == jx.Null {
					return d.Null()
				}
				req.Shipping.Note, err = d.Str()
			default:
				err = d.Skip()
			}
			return err
		})
	case "paymentMethod":
		v, err := d.Str()
		req.PaymentMethod = order.PaymentMethod(v)
		return err
	default:
		return d.Skip()
	}
}

// stringFields decodes an object of string values into the given targets.
// Unknown keys are skipped.
func stringFields(targets map[string]*string) func(d *jx.Decoder, key string) error {
	return func(d *jx.Decoder, key string) error {
		dst, ok := targets[key]
		if !ok {
			return d.Skip()
		}
		v, err := d.Str()
		*dst = v
		return err
	}
}

func decodeProfileUpdate(d *jx.Decoder, key string, upd *account.ProfileUpdate) error {
	var dst **string
	switch key {
	case "name":
		dst = &upd.Name
	case "phone":
		dst = &upd.Phone
	case "address":
		dst = &upd.Address
	default:
		return d.Skip()
	}
	v, err := d.Str()
	if err != nil {
		return err
	}
	*dst = &v
	return nil
}

// Responses.

func encodeProduct(e *jx.Encoder, p product.Product) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(p.ID) })
		e.Field("name", func(e *jx.Encoder) { e.Str(p.Name) })
		e.Field("description", func(e *jx.Encoder) { e.Str(p.Description) })
		e.Field("price", func(e *jx.Encoder) { encodeMoney(e, p.Price) })
		e.Field("category", func(e *jx.Encoder) { e.Str(p.Category) })
		e.Field("imageUrl", func(e *jx.Encoder) { e.Str(p.ImageURL) })
	})
}

func encodeItems(e *jx.Encoder, items []order.LineItem) {
	e.Arr(func(e *jx.Encoder) {
		for _, it := range items {
			e.Obj(func(e *jx.Encoder) {
				e.Field("productId", func(e *jx.Encoder) { e.Str(it.ProductID) })
				e.Field("productName", func(e *jx.Encoder) { e.Str(it.ProductName) })
				e.Field("quantity", func(e *jx.Encoder) { e.Int(it.Quantity) })
				e.Field("unitPrice", func(e *jx.Encoder) { encodeMoney(e, it.UnitPrice) })
				e.Field("lineTotal", func(e *jx.Encoder) { encodeMoney(e, it.LineTotal) })
			})
		}
	})
}

// encodeOrder writes the projection allowed by vis. The public projection is
// limited to orderNumber, status, createdAt, totalAmount and items.
func (h *Handler) encodeOrder(e *jx.Encoder, o *order.Order, vis order.Visibility) {
	e.Obj(func(e *jx.Encoder) {
		if vis == order.VisibilityFull {
			e.Field("id", func(e *jx.Encoder) { e.Str(o.ID) })
		}
		e.Field("orderNumber", func(e *jx.Encoder) { e.Str(o.Number) })
		e.Field("status", func(e *jx.Encoder) { e.Str(string(o.Status)) })
		e.Field("createdAt", func(e *jx.Encoder) { encodeTime(e, o.CreatedAt) })
		e.Field("totalAmount", func(e *jx.Encoder) { encodeMoney(e, o.Total) })
		e.Field("items", func(e *jx.Encoder) { encodeItems(e, o.Items) })
		if vis != order.VisibilityFull {
			return
		}

		// The display code embeds the record id suffix.
		e.Field("displayCode", func(e *jx.Encoder) { e.Str(o.DisplayCode(h.cfg.DisplayLocation)) })
		e.Field("buyerId", func(e *jx.Encoder) {
			if o.IsGuest() {
				e.Null()
				return
			}
			e.Str(o.BuyerID)
		})
		e.Field("subtotal", func(e *jx.Encoder) { encodeMoney(e, o.Subtotal) })
		e.Field("itemDiscount", func(e *jx.Encoder) { encodeMoney(e, o.ItemDiscount) })
		e.Field("memberDiscount", func(e *jx.Encoder) { encodeMoney(e, o.MemberDiscount) })
		e.Field("shippingFee", func(e *jx.Encoder) { encodeMoney(e, o.ShippingFee) })
		e.Field("shippingInfo", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				e.Field("name", func(e *jx.Encoder) { e.Str(o.Shipping.Name) })
				e.Field("phone", func(e *jx.Encoder) { e.Str(o.Shipping.Phone) })
				e.Field("email", func(e *jx.Encoder) { e.Str(o.Shipping.Email) })
				if o.Shipping.Note != "" {
					e.Field("note", func(e *jx.Encoder) { e.Str(o.Shipping.Note) })
				}
			})
		})
		e.Field("paymentMethod", func(e *jx.Encoder) { e.Str(string(o.PaymentMethod)) })
		e.Field("statusHistory", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, rec := range o.History {
					e.Obj(func(e *jx.Encoder) {
						e.Field("status", func(e *jx.Encoder) { e.Str(string(rec.Status)) })
						e.Field("timestamp", func(e *jx.Encoder) { encodeTime(e, rec.Timestamp) })
					})
				}
			})
		})
		e.Field("version", func(e *jx.Encoder) { e.Int(o.Version) })
	})
}

func (h *Handler) encodeOrders(e *jx.Encoder, orders []order.Order) {
	e.Arr(func(e *jx.Encoder) {
		for i := range orders {
			h.encodeOrder(e, &orders[i], order.VisibilityFull)
		}
	})
}

func encodeAccount(e *jx.Encoder, a *account.Account) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(a.ID) })
		e.Field("name", func(e *jx.Encoder) { e.Str(a.Name) })
		e.Field("email", func(e *jx.Encoder) { e.Str(a.Email) })
		e.Field("phone", func(e *jx.Encoder) { e.Str(a.Phone) })
		e.Field("address", func(e *jx.Encoder) { e.Str(a.Address) })
		e.Field("createdAt", func(e *jx.Encoder) { encodeTime(e, a.CreatedAt) })
	})
}

func encodeContact(e *jx.Encoder, m *contact.Message) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(m.ID) })
		e.Field("name", func(e *jx.Encoder) { e.Str(m.Name) })
		e.Field("email", func(e *jx.Encoder) { e.Str(m.Email) })
		e.Field("phone", func(e *jx.Encoder) { e.Str(m.Phone) })
		e.Field("subject", func(e *jx.Encoder) { e.Str(m.Subject) })
		e.Field("message", func(e *jx.Encoder) { e.Str(m.Body) })
		e.Field("createdAt", func(e *jx.Encoder) { encodeTime(e, m.CreatedAt) })
	})
}

func encodeSession(e *jx.Encoder, s *account.Session) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("token", func(e *jx.Encoder) { e.Str(s.Token) })
		e.Field("expiresAt", func(e *jx.Encoder) { encodeTime(e, s.ExpiresAt) })
		e.Field("role", func(e *jx.Encoder) { e.Str(s.Actor.Kind.String()) })
		if s.Account != nil {
			e.Field("account", func(e *jx.Encoder) { encodeAccount(e, s.Account) })
		}
	})
}
