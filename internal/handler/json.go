package handler

import (
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/epicerie/internal/domain/apperr"
)

const maxBodySize = 1 << 20

// writeJSON encodes the value produced by fn with the given status.
func writeJSON(w http.ResponseWriter, status int, fn func(e *jx.Encoder)) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	fn(e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

// writeMessage writes {"message": msg, ...} where fields appends extra
// fields to the object.
func writeMessage(w http.ResponseWriter, status int, msg string, fields func(e *jx.Encoder)) {
	writeJSON(w, status, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("message")
		e.Str(msg)
		if fields != nil {
			fields(e)
		}
		e.ObjEnd()
	})
}

// writeError maps err to a status code and writes its client-safe message.
// Server-side failures are logged with the request logger.
func writeError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	status := statusOf(apperr.KindOf(err))
	lg := zctx.From(r.Context())
	if status >= http.StatusInternalServerError {
		lg.Error("Request failed", zap.String("path", r.URL.Path), zap.Error(err))
	} else {
		lg.Debug("Request rejected", zap.String("path", r.URL.Path), zap.Int("status", status), zap.Error(err))
	}
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="epicerie"`)
	}
	writeMessage(w, status, apperr.Message(err, fallback), nil)
}

func statusOf(kind apperr.Kind) int {
	switch kind {
	case apperr.Validation, apperr.EmptyCart, apperr.Conflict:
		return http.StatusBadRequest
	case apperr.NotFound:
		return http.StatusNotFound
	case apperr.Unauthenticated:
		return http.StatusUnauthorized
	case apperr.Forbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// decodeObject reads a JSON object body, calling fn for every field.
func decodeObject(r *http.Request, fn func(d *jx.Decoder, key string) error) error {
	const op = "handler.decode"

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return &apperr.Error{Kind: apperr.Validation, Op: op, Msg: "could not read request body", Err: err}
	}
	if strings.TrimSpace(string(body)) == "" {
		return apperr.New(apperr.Validation, op, "request body is required")
	}
	if err := jx.DecodeBytes(body).Obj(fn); err != nil {
		return &apperr.Error{Kind: apperr.Validation, Op: op, Msg: "invalid request body", Err: err}
	}
	return nil
}

// readInt64 accepts a JSON number, a numeric string or null (zero).
func readInt64(d *jx.Decoder) (int64, error) {
	switch d.Next() {
	case jx.Number:
		return d.Int64()
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return 0, err
		}
		return parseID(s)
	case jx.Null:
		return 0, d.Null()
	default:
		return 0, errors.New("expected integer")
	}
}

func readInt(d *jx.Decoder) (int, error) {
	v, err := readInt64(d)
	return int(v), err
}

// readDecimal accepts a JSON number, a numeric string or null (zero).
func readDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	switch d.Next() {
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(n.String())
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(strings.TrimSpace(s))
	case jx.Null:
		return decimal.Zero, d.Null()
	default:
		return decimal.Zero, errors.New("expected decimal")
	}
}

// readString accepts a JSON string, a number (kept verbatim) or null.
func readString(d *jx.Decoder) (string, error) {
	switch d.Next() {
	case jx.String:
		return d.Str()
	case jx.Number:
		n, err := d.Num()
		return n.String(), err
	case jx.Null:
		return "", d.Null()
	default:
		return "", errors.New("expected string")
	}
}

// parseID parses a decimal id; the empty string is zero.
func parseID(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	return strconv.ParseInt(s, 10, 64)
}

// pathID parses the named path segment as a positive id.
func pathID(r *http.Request, name string) (int64, error) {
	id, err := parseID(r.PathValue(name))
	if err != nil || id <= 0 {
		return 0, apperr.Errorf(apperr.Validation, "handler.pathID", "invalid %s", name)
	}
	return id, nil
}

// queryID parses the named query parameter; a missing one is zero.
func queryID(r *http.Request, name string) (int64, error) {
	id, err := parseID(r.URL.Query().Get(name))
	if err != nil || id < 0 {
		return 0, apperr.Errorf(apperr.Validation, "handler.queryID", "invalid %s", name)
	}
	return id, nil
}

func encodeMoney(e *jx.Encoder, d decimal.Decimal) {
	e.Num(jx.Num(d.StringFixed(2)))
}

func encodeTime(e *jx.Encoder, t time.Time) {
	e.Str(t.UTC().Format(time.RFC3339))
}
