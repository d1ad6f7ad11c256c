package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	domain "github.com/scentora/storefront/internal/domain"
	"github.com/scentora/storefront/internal/platform/auth"
	"github.com/scentora/storefront/internal/platform/httpx"
)

const maxRequestBodySize = 16 * 1024

var (
	errEmptyBody    = errors.New("request body is empty")
	errBodyTooLarge = errors.New("request body exceeds allowed size")
)

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	if limit <= 0 {
		limit = maxRequestBodySize
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

// decodeBody reads a JSON body into dst. An empty body is accepted when optional is set.
// It writes the error response itself and reports whether the handler may continue.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any, optional bool) bool {
	ctx := r.Context()
	body, err := readLimitedBody(r, maxRequestBodySize)
	switch {
	case errors.Is(err, errEmptyBody) && optional:
		return true
	case errors.Is(err, errEmptyBody):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
		return false
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", errBodyTooLarge.Error(), http.StatusRequestEntityTooLarge))
		return false
	case err != nil:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return false
	}
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()
	if err := decoder.Decode(dst); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", fmt.Sprintf("invalid JSON body: %v", err), http.StatusBadRequest))
		return false
	}
	return true
}

func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return "", false
	}
	return strings.TrimSpace(identity.UID), true
}

func pathIndex(w http.ResponseWriter, r *http.Request, raw string) (int, bool) {
	idx, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || idx < 0 {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "item index must be a non-negative integer", http.StatusBadRequest))
		return 0, false
	}
	return idx, true
}

// indexList accepts an item index sent as a number, a numeric string, an array of either, or
// the string "all".
type indexList struct {
	Values []int
	All    bool
	set    bool
}

func (l *indexList) UnmarshalJSON(data []byte) error {
	l.set = true
	var raw any
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	if err := decoder.Decode(&raw); err != nil {
		return err
	}
	if s, ok := raw.(string); ok && strings.EqualFold(strings.TrimSpace(s), "all") {
		l.All = true
		return nil
	}
	values := []any{raw}
	if arr, ok := raw.([]any); ok {
		values = arr
	}
	l.Values = make([]int, 0, len(values))
	for _, v := range values {
		if v == nil {
			continue
		}
		idx, err := parseIndex(v)
		if err != nil {
			return err
		}
		l.Values = append(l.Values, idx)
	}
	return nil
}

func parseIndex(value any) (int, error) {
	var f float64
	switch v := value.(type) {
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0, fmt.Errorf("item index %q is not a number", v.String())
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("item index %q is not a number", v)
		}
		f = parsed
	default:
		return 0, fmt.Errorf("item index has unsupported type %T", value)
	}
	if f < 0 || f != math.Trunc(f) || f > math.MaxInt32 {
		return 0, fmt.Errorf("item index %v must be a non-negative integer", f)
	}
	return int(f), nil
}

// sizeList accepts a variant size as a scalar or an array, each a number or a string like "50ml".
type sizeList []domain.VariantSize

func (l *sizeList) UnmarshalJSON(data []byte) error {
	var raw any
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	if err := decoder.Decode(&raw); err != nil {
		return err
	}
	values := []any{raw}
	if arr, ok := raw.([]any); ok {
		values = arr
	}
	out := make(sizeList, 0, len(values))
	for _, v := range values {
		if v == nil {
			continue
		}
		size, err := domain.ParseVariantSize(v)
		if err != nil {
			return err
		}
		out = append(out, size)
	}
	*l = out
	return nil
}

// single returns the only size in the list.
func (l sizeList) single() (domain.VariantSize, error) {
	switch len(l) {
	case 0:
		return 0, errors.New("variantSize is required")
	case 1:
		return l[0], nil
	}
	for _, s := range l[1:] {
		if s != l[0] {
			return 0, errors.New("variantSize must name a single size")
		}
	}
	return l[0], nil
}

func pointerTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
