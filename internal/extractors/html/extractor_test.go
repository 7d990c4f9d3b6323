package html

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const page = `<!DOCTYPE html>
<html>
<head><title>Trail &amp; Gear</title><style>body{color:red}</style></head>
<body>
<p>Intro paragraph.</p>
<script>var secret = 1;</script>
<h2 class="x">Boots</h2>
<p>Waterproof <b>leather</b> boots.</p>
<!-- hidden note -->
<h2>Packs</h2>
<ul><li>30 litre</li><li>50 litre</li></ul>
</body>
</html>`

func TestExtract_SectionsFromHeadings(t *testing.T) {
	out, err := New().Extract(context.Background(), "/site/gear.html", []byte(page))
	require.NoError(t, err)

	assert.Equal(t, "Trail & Gear", out.Title)
	assert.NotContains(t, out.Text, "secret")
	assert.NotContains(t, out.Text, "color:red")
	assert.NotContains(t, out.Text, "hidden note")
	assert.NotContains(t, out.Text, "<")
	assert.Contains(t, out.Text, "Waterproof leather boots.")

	require.Len(t, out.Markers, 2)
	assert.Equal(t, "Boots", out.Markers[0].Section)
	assert.Equal(t, "Packs", out.Markers[1].Section)
	assert.Equal(t, "Boots", out.Text[out.Markers[0].Offset:out.Markers[0].Offset+5])
	assert.Equal(t, "Intro paragraph.", out.Text[:out.Markers[0].Offset-1])
	assert.Contains(t, out.Text[out.Markers[1].Offset:], "30 litre\n50 litre")
}

func TestExtract_TitleFallbacks(t *testing.T) {
	out, err := New().Extract(context.Background(), "/a/b.html", []byte("<h1>Main <i>Heading</i></h1><p>x</p>"))
	require.NoError(t, err)
	assert.Equal(t, "Main Heading", out.Title)

	out, err = New().Extract(context.Background(), "/a/field-notes.htm", []byte("<p>no headings</p>"))
	require.NoError(t, err)
	assert.Equal(t, "field notes", out.Title)
	assert.Equal(t, "no headings", out.Text)
	assert.Empty(t, out.Markers)
}

func TestExtract_EmptyHeadingIgnored(t *testing.T) {
	out, err := New().Extract(context.Background(), "x.html", []byte("<h3> </h3><p>body</p>"))
	require.NoError(t, err)
	assert.Empty(t, out.Markers)
	assert.Equal(t, "body", out.Text)
}
