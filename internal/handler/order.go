package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/epicerie/internal/domain/auth"
	"github.com/xenking/epicerie/internal/domain/order"
)

// PlaceOrder handles POST /api/order: the caller's cart becomes an order.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	req := order.PlaceOrderRequest{Caller: auth.PrincipalFrom(r.Context())}
	err := decodeObject(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "client_id":
			req.CustomerID, err = readInt64(d)
		case "adresse_livraison":
			req.DeliveryAddress, err = readString(d)
		case "transporteur":
			req.Carrier, err = readString(d)
		case "methode_paiement":
			req.PaymentMethod, err = readString(d)
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		writeError(w, r, err, "invalid request body")
		return
	}

	conf, err := h.orders.PlaceOrder(r.Context(), req)
	if err != nil {
		writeError(w, r, err, "could not place order")
		return
	}

	writeMessage(w, http.StatusOK, "order placed", func(e *jx.Encoder) {
		e.FieldStart("commande_id")
		e.Int64(conf.OrderID)
		e.FieldStart("total")
		encodeMoney(e, conf.Total)
		e.FieldStart("date_livraison_estimee")
		encodeTime(e, conf.EstimatedDelivery)
	})
}

// OrderHistory handles GET /api/orders?user_id=.
func (h *Handler) OrderHistory(w http.ResponseWriter, r *http.Request) {
	customerID, err := queryID(r, "user_id")
	if err != nil {
		writeError(w, r, err, "invalid user id")
		return
	}

	rows, err := h.orders.History(r.Context(), auth.PrincipalFrom(r.Context()), customerID)
	if err != nil {
		writeError(w, r, err, "could not load orders")
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for _, row := range rows {
			e.ObjStart()
			e.FieldStart("id")
			e.Int64(row.OrderID)
			e.FieldStart("total")
			encodeMoney(e, row.Total)
			e.FieldStart("statut")
			e.Str(string(row.Status))
			e.FieldStart("date_commande")
			encodeTime(e, row.CreatedAt)
			e.FieldStart("produit_id")
			e.Int64(row.ProductID)
			e.FieldStart("nom")
			e.Str(row.ProductName)
			e.FieldStart("quantite")
			e.Int(row.Quantity)
			e.FieldStart("variante_poids")
			e.Str(row.Weight)
			e.FieldStart("prix_unitaire")
			encodeMoney(e, row.UnitPrice)
			e.ObjEnd()
		}
		e.ArrEnd()
	})
}
