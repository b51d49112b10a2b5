package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/epicerie/internal/domain/product"
)

// ListProducts handles GET /api/produits.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context())
	if err != nil {
		writeError(w, r, err, "could not list products")
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for _, p := range products {
			h.encodeProduct(e, p)
		}
		e.ArrEnd()
	})
}

// GetProduct handles GET /api/produits/{id}.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err, "invalid product id")
		return
	}
	p, err := h.products.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, r, err, "could not get product")
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		h.encodeProduct(e, *p)
	})
}

// BestSellers handles GET /api/home-best-sellers. Each entry is a product
// flattened with the variant it is featured with.
func (h *Handler) BestSellers(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.BestSellers(r.Context(), h.cfg.BestSellers)
	if err != nil {
		writeError(w, r, err, "could not list best sellers")
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for _, p := range products {
			e.ObjStart()
			h.encodeProductFields(e, p)
			if len(p.Variants) > 0 {
				encodeVariantFields(e, p.Variants[0])
			}
			e.ObjEnd()
		}
		e.ArrEnd()
	})
}

// ListVariants handles GET /api/variantes/poids/{id}.
func (h *Handler) ListVariants(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err, "invalid product id")
		return
	}
	variants, err := h.products.Variants(r.Context(), id)
	if err != nil {
		writeError(w, r, err, "could not list variants")
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeVariants(e, variants)
	})
}

func (h *Handler) encodeProduct(e *jx.Encoder, p product.Product) {
	e.ObjStart()
	h.encodeProductFields(e, p)
	e.FieldStart("variantes")
	encodeVariants(e, p.Variants)
	e.ObjEnd()
}

func (h *Handler) encodeProductFields(e *jx.Encoder, p product.Product) {
	e.FieldStart("id")
	e.Int64(p.ID)
	e.FieldStart("nom")
	e.Str(p.Name)
	e.FieldStart("description")
	e.Str(p.Description)
	e.FieldStart("image")
	e.Str(h.imageURL(p.Image))
}

func encodeVariants(e *jx.Encoder, variants []product.Variant) {
	e.ArrStart()
	for _, v := range variants {
		e.ObjStart()
		encodeVariantFields(e, v)
		e.ObjEnd()
	}
	e.ArrEnd()
}

func encodeVariantFields(e *jx.Encoder, v product.Variant) {
	e.FieldStart("poids")
	e.Str(v.Weight)
	e.FieldStart("prix")
	encodeMoney(e, v.Price)
}
