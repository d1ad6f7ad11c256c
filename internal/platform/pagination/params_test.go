package pagination

import (
	"errors"
	"net/url"
	"testing"
	"time"
)

func TestParseDefaults(t *testing.T) {
	pager, err := Parse(url.Values{}, Options{})
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if pager.PageSize != DefaultPageSize || pager.PageToken != "" {
		t.Fatalf("unexpected defaults %+v", pager)
	}
}

func TestParsePageSize(t *testing.T) {
	opts := Options{DefaultPageSize: 25, MaxPageSize: 40}
	values := url.Values{}
	values.Set("pageSize", "30")

	pager, err := Parse(values, opts)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if pager.PageSize != 30 {
		t.Fatalf("expected page size 30 got %d", pager.PageSize)
	}

	values.Set("pageSize", "400")
	pager, err = Parse(values, opts)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if pager.PageSize != opts.MaxPageSize {
		t.Fatalf("expected page size clamped to %d got %d", opts.MaxPageSize, pager.PageSize)
	}
}

func TestParseInvalidInput(t *testing.T) {
	cases := []struct {
		name  string
		key   string
		value string
		want  error
	}{
		{"non numeric size", "pageSize", "abc", ErrInvalidPageSize},
		{"zero size", "pageSize", "0", ErrInvalidPageSize},
		{"garbage token", "pageToken", "%%%", ErrInvalidPageToken},
		{"token without id", "pageToken", "e30", ErrInvalidPageToken},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			values := url.Values{}
			values.Set(tc.key, tc.value)
			if _, err := Parse(values, Options{}); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestTokenRoundTrip(t *testing.T) {
	cursor := Cursor{CreatedAt: time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC), ID: "ord_9"}
	token, err := EncodeToken(cursor)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := DecodeToken(token)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !decoded.CreatedAt.Equal(cursor.CreatedAt) || decoded.ID != cursor.ID {
		t.Fatalf("unexpected cursor %+v", decoded)
	}
	if empty, _ := EncodeToken(Cursor{}); empty != "" {
		t.Fatalf("zero cursor should encode to empty token, got %q", empty)
	}
}

func TestLimit(t *testing.T) {
	if Limit(0) != DefaultPageSize || Limit(500) != DefaultMaxPageSize || Limit(7) != 7 {
		t.Fatal("unexpected clamping")
	}
}
