package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/epicerie/internal/domain/auth"
	"github.com/xenking/epicerie/internal/domain/cart"
)

// GetCart handles GET /api/panier/{client_id}.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	customerID, err := pathID(r, "client_id")
	if err != nil {
		writeError(w, r, err, "invalid client id")
		return
	}

	c, err := h.carts.Get(r.Context(), auth.PrincipalFrom(r.Context()), customerID)
	if err != nil {
		writeError(w, r, err, "could not load cart")
		return
	}

	writeMessage(w, http.StatusOK, "cart loaded", func(e *jx.Encoder) {
		e.FieldStart("items")
		e.ArrStart()
		for _, l := range c.Items {
			e.ObjStart()
			e.FieldStart("id")
			e.Int64(l.ID)
			e.FieldStart("produit_id")
			e.Int64(l.ProductID)
			e.FieldStart("variante_poids")
			e.Str(l.Weight)
			e.FieldStart("quantite")
			e.Int(l.Quantity)
			e.FieldStart("prix")
			encodeMoney(e, l.Price)
			e.FieldStart("nom")
			e.Str(l.ProductName)
			e.FieldStart("image")
			e.Str(h.imageURL(l.ProductImage))
			e.ObjEnd()
		}
		e.ArrEnd()
		e.FieldStart("total")
		encodeMoney(e, c.Total)
		e.FieldStart("count")
		e.Int(c.Count)
	})
}

// AddToCart handles POST /api/panier/ajouter. Without client_id the item is
// echoed back and nothing is stored.
func (h *Handler) AddToCart(w http.ResponseWriter, r *http.Request) {
	req := cart.AddItemRequest{Caller: auth.PrincipalFrom(r.Context())}
	err := decodeObject(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "client_id":
			req.CustomerID, err = readInt64(d)
		case "produit_id":
			req.ProductID, err = readInt64(d)
		case "variante_poids":
			req.Weight, err = readString(d)
		case "quantite":
			req.Quantity, err = readInt(d)
		case "prix":
			req.Price, err = readDecimal(d)
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		writeError(w, r, err, "invalid request body")
		return
	}

	res, err := h.carts.Add(r.Context(), req)
	if err != nil {
		writeError(w, r, err, "could not add to cart")
		return
	}

	switch {
	case !res.Persisted:
		writeMessage(w, http.StatusOK, "item added to anonymous cart", func(e *jx.Encoder) {
			e.FieldStart("item")
			e.ObjStart()
			e.FieldStart("produit_id")
			e.Int64(res.Line.ProductID)
			e.FieldStart("variante_poids")
			e.Str(res.Line.Weight)
			e.FieldStart("quantite")
			e.Int(res.Line.Quantity)
			e.FieldStart("prix")
			encodeMoney(e, res.Line.Price)
			e.ObjEnd()
		})
	case res.Merged:
		writeMessage(w, http.StatusOK, "cart quantity updated", func(e *jx.Encoder) {
			e.FieldStart("panier_id")
			e.Int64(res.Line.ID)
		})
	default:
		writeMessage(w, http.StatusCreated, "item added to cart", func(e *jx.Encoder) {
			e.FieldStart("panier_id")
			e.Int64(res.Line.ID)
		})
	}
}

// UpdateCartLine handles PUT /api/panier/{id}, where id is the product.
func (h *Handler) UpdateCartLine(w http.ResponseWriter, r *http.Request) {
	productID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err, "invalid product id")
		return
	}

	var (
		customerID int64
		quantity   int
	)
	err = decodeObject(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "client_id":
			customerID, err = readInt64(d)
		case "quantite":
			quantity, err = readInt(d)
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		writeError(w, r, err, "invalid request body")
		return
	}

	if err := h.carts.UpdateQuantity(r.Context(), auth.PrincipalFrom(r.Context()), productID, customerID, quantity); err != nil {
		writeError(w, r, err, "could not update cart")
		return
	}
	writeMessage(w, http.StatusOK, "quantity updated", nil)
}

// RemoveCartLine handles DELETE /api/panier/{id}?client_id=.
func (h *Handler) RemoveCartLine(w http.ResponseWriter, r *http.Request) {
	productID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err, "invalid product id")
		return
	}
	customerID, err := queryID(r, "client_id")
	if err != nil {
		writeError(w, r, err, "invalid client id")
		return
	}

	if err := h.carts.Remove(r.Context(), auth.PrincipalFrom(r.Context()), productID, customerID); err != nil {
		writeError(w, r, err, "could not remove from cart")
		return
	}
	writeMessage(w, http.StatusOK, "item removed from cart", nil)
}
