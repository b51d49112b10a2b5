package handler

import (
	"net/http"
	"time"

	"github.com/go-faster/jx"

	"github.com/xenking/epicerie/internal/domain/auth"
	"github.com/xenking/epicerie/internal/domain/customer"
)

// RegisterCustomer handles POST /api/clients/register.
func (h *Handler) RegisterCustomer(w http.ResponseWriter, r *http.Request) {
	req := customer.RegisterRequest{Caller: auth.PrincipalFrom(r.Context())}
	err := decodeObject(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "prenom":
			req.FirstName, err = readString(d)
		case "nom":
			req.LastName, err = readString(d)
		case "email":
			req.Email, err = readString(d)
		case "mot_de_passe":
			req.Password, err = readString(d)
		case "adresse":
			req.Address, err = readString(d)
		case "telephone":
			req.Phone, err = readString(d)
		case "role":
			var role string
			role, err = readString(d)
			req.Role = auth.Role(role)
		case "date_inscription":
			var s string
			if s, err = readString(d); err == nil && s != "" {
				req.RegisteredAt, err = parseDate(s)
			}
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		writeError(w, r, err, "invalid request body")
		return
	}

	id, err := h.customers.Register(r.Context(), req)
	if err != nil {
		writeError(w, r, err, "could not register customer")
		return
	}

	writeMessage(w, http.StatusCreated, "customer registered", func(e *jx.Encoder) {
		e.FieldStart("client_id")
		e.Int64(id)
	})
}

// Login handles POST /api/clients/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var email, password string
	err := decodeObject(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "email":
			email, err = readString(d)
		case "mot_de_passe":
			password, err = readString(d)
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		writeError(w, r, err, "invalid request body")
		return
	}

	res, err := h.customers.Login(r.Context(), email, password)
	if err != nil {
		writeError(w, r, err, "could not log in")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     TokenCookie,
		Value:    res.Token,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	c := res.Customer
	writeMessage(w, http.StatusOK, "login successful", func(e *jx.Encoder) {
		e.FieldStart("jwtToken")
		e.Str(res.Token)
		e.FieldStart("client")
		e.ObjStart()
		e.FieldStart("id")
		e.Int64(c.ID)
		e.FieldStart("nom")
		e.Str(c.LastName)
		e.FieldStart("prenom")
		e.Str(c.FirstName)
		e.FieldStart("email")
		e.Str(c.Email)
		e.FieldStart("role")
		e.Str(string(c.Role))
		e.ObjEnd()
	})
}

// Logout handles GET /api/logout by expiring the token cookie.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     TokenCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cfg.SecureCookies,
	})
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// ChangePassword handles PUT /api/clients/nouveauMdp/{id}.
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err, "invalid id")
		return
	}

	req := customer.ChangePasswordRequest{
		Caller:     auth.PrincipalFrom(r.Context()),
		CustomerID: id,
	}
	err = decodeObject(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "last_mdp":
			req.Current, err = readString(d)
		case "new_mdp":
			req.New, err = readString(d)
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		writeError(w, r, err, "invalid request body")
		return
	}

	if err := h.customers.ChangePassword(r.Context(), req); err != nil {
		writeError(w, r, err, "could not change password")
		return
	}
	writeMessage(w, http.StatusOK, "password updated", nil)
}

// parseDate accepts RFC 3339 timestamps and plain YYYY-MM-DD dates.
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, s)
}
