package validators

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/packfinderz-inventory/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-inventory/pkg/errors"
)

type holdLine struct {
	ItemID   string `json:"itemId" validate:"required"`
	Quantity int    `json:"quantity" validate:"gt=0"`
}

type holdBody struct {
	OrderID string     `json:"orderId" validate:"required,max=8"`
	Items   []holdLine `json:"items" validate:"required,min=1,dive"`
}

func post(body string) *http.Request {
	return httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
}

func TestDecodeJSONBodyAcceptsValidPayload(t *testing.T) {
	var dest holdBody
	require.NoError(t, DecodeJSONBody(post(`{"orderId":"ord-1","items":[{"itemId":"A","quantity":2}]}`), &dest))
	assert.Equal(t, "ord-1", dest.OrderID)
	assert.Equal(t, 2, dest.Items[0].Quantity)
}

func TestDecodeJSONBodyRejectsUnknownFields(t *testing.T) {
	var dest holdBody
	err := DecodeJSONBody(post(`{"orderId":"ord-1","items":[],"extra":true}`), &dest)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestDecodeJSONBodyReportsNestedFields(t *testing.T) {
	var dest holdBody
	err := DecodeJSONBody(post(`{"orderId":"far-too-long","items":[{"itemId":"","quantity":0}]}`), &dest)
	require.Error(t, err)

	details, ok := pkgerrors.As(err).Details().(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "must be at most 8 characters", details["orderId"])
	assert.Equal(t, "is required", details["items[0].itemId"])
	assert.Equal(t, "must be greater than 0", details["items[0].quantity"])
}

func TestParsePagination(t *testing.T) {
	params, err := ParsePagination(httptest.NewRequest(http.MethodGet, "/?limit=10&cursor=abc", nil))
	require.NoError(t, err)
	assert.Equal(t, 10, params.Limit)
	assert.Equal(t, "abc", params.Cursor)

	params, err = ParsePagination(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.Equal(t, 25, params.Limit)

	_, err = ParsePagination(httptest.NewRequest(http.MethodGet, "/?limit=500", nil))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = ParsePagination(httptest.NewRequest(http.MethodGet, "/?limit=ten", nil))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestParseStatusFilter(t *testing.T) {
	status, err := ParseStatusFilter(httptest.NewRequest(http.MethodGet, "/?status=out_of_stock", nil))
	require.NoError(t, err)
	assert.Equal(t, enums.StockStatusOutOfStock, status)

	status, err = ParseStatusFilter(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.Empty(t, status)

	_, err = ParseStatusFilter(httptest.NewRequest(http.MethodGet, "/?status=OUT", nil))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "SKU", SanitizeString("  SKU  ", 0))
	assert.Equal(t, "SK", SanitizeString("SKU", 2))
	assert.Equal(t, "bin 4\nshelf", SanitizeString("bin\x00 4\nshelf", 0))
	assert.Equal(t, "caf", SanitizeString("café", 4), "never splits a multibyte rune")
}
