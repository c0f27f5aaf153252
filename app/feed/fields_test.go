package feed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestFieldMap_Defaults(t *testing.T) {
	m := DefaultFieldMap()

	assert.Equal(t, []string{"title", "guid", "date", "link", "image", "author", "description"}, m.Fields())
	assert.Equal(t, []string{"date", "pubDate", "published", "updated"}, m.Candidates("date"))
	assert.Equal(t, []string{"description", "desc", "summary", "content", "text"}, m.Candidates("description"))
}

func TestFieldMap_MergeIsAdditive(t *testing.T) {
	base := DefaultFieldMap()
	merged := base.Merge(FieldOverrides{
		"image":    {"enclosure", "image"},
		"category": nil,
		"comments": {"wfw_comment"},
	})

	assert.Equal(t, []string{"image", "thumbnail", "enclosure"}, merged.Candidates("image"))
	assert.Equal(t, []string{"category"}, merged.Candidates("category"))
	assert.Equal(t, []string{"wfw_comment"}, merged.Candidates("comments"))
	assert.Equal(t, []string{"title", "guid", "date", "link", "image", "author", "description", "category", "comments"}, merged.Fields())

	assert.Equal(t, []string{"image", "thumbnail"}, base.Candidates("image"), "merge must not modify the receiver")
}

func TestFieldMap_WithHint(t *testing.T) {
	m := DefaultFieldMap().WithHint("link", "url").WithHint("date", "updated").WithHint("title", "")

	assert.Equal(t, []string{"link", "origLink", "url"}, m.Candidates("link"))
	assert.Equal(t, []string{"date", "pubDate", "published", "updated"}, m.Candidates("date"))
	assert.Equal(t, []string{"title"}, m.Candidates("title"))
}

func TestFieldOverrides_UnmarshalYAML(t *testing.T) {
	var mapped FieldOverrides
	require.NoError(t, yaml.Unmarshal([]byte("image: enclosure\nauthor: [creator, dc_creator]\n"), &mapped))
	assert.Equal(t, FieldOverrides{
		"image":  {"enclosure"},
		"author": {"creator", "dc_creator"},
	}, mapped)

	var listed FieldOverrides
	require.NoError(t, yaml.Unmarshal([]byte("[category, comments]"), &listed))
	assert.Equal(t, FieldOverrides{
		"category": {"category"},
		"comments": {"comments"},
	}, listed)

	var invalid FieldOverrides
	assert.Error(t, yaml.Unmarshal([]byte("image: {a: b}"), &invalid))
}
