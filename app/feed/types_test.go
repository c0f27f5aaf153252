package feed

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSources_UnmarshalJSONKeepsOrder(t *testing.T) {
	var q Query
	require.NoError(t, json.Unmarshal([]byte(`{"feeds": {"zeta": "https://z.example.com", "alpha": "https://a.example.com"}}`), &q))

	assert.Equal(t, Sources{
		{ID: "zeta", URL: "https://z.example.com"},
		{ID: "alpha", URL: "https://a.example.com"},
	}, q.Conditions)

	require.NoError(t, json.Unmarshal([]byte(`{"feeds": [{"id": "one", "url": "https://one.example.com"}]}`), &q))
	assert.Equal(t, Sources{{ID: "one", URL: "https://one.example.com"}}, q.Conditions)

	assert.Error(t, json.Unmarshal([]byte(`{"feeds": {"bad": 1}}`), &q))
}

func TestQuery_WithDefaults(t *testing.T) {
	q, err := Query{}.WithDefaults()
	require.NoError(t, err)
	assert.Equal(t, DefaultSortField, q.Order.Field)
	assert.Equal(t, Descending, q.Order.Direction)
	assert.Equal(t, DefaultLimit, q.Limit)
	assert.Equal(t, DefaultExpires, q.Feed.Expires)

	q, err = Query{Order: Order{Direction: "ASCENDING"}, Limit: 3}.WithDefaults()
	require.NoError(t, err)
	assert.Equal(t, Ascending, q.Order.Direction)
	assert.Equal(t, 3, q.Limit)

	_, err = Query{Order: Order{Direction: "up"}}.WithDefaults()
	assert.Error(t, err)
}

func TestRecord_Empty(t *testing.T) {
	assert.True(t, Record{}.Empty())
	assert.True(t, Record{"title": "  "}.Empty())
	assert.False(t, Record{"link": "https://example.com"}.Empty())
}
