package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHTMLSelectorFragment(t *testing.T) {
	markup := `<html><head><title>Docs</title></head>
		<body><nav>skip this</nav><main>keep   this
		text</main></body></html>`

	content := HTML(markup, "main", zap.NewNop())
	require.Equal(t, "Docs", content.Title)
	require.Equal(t, "keep this text", content.Body)
}

func TestHTMLFallsBackToWholeBody(t *testing.T) {
	markup := `<html><body><p>alpha</p><p>beta</p></body></html>`

	t.Run("no selector", func(t *testing.T) {
		content := HTML(markup, "", zap.NewNop())
		require.Equal(t, "alpha beta", content.Body)
	})

	t.Run("selector matches nothing", func(t *testing.T) {
		content := HTML(markup, "article", zap.NewNop())
		require.Equal(t, "alpha beta", content.Body)
	})

	t.Run("selector matches empty fragment", func(t *testing.T) {
		content := HTML(`<html><body><div id="x"></div><p>rest</p></body></html>`, "#x", zap.NewNop())
		require.Equal(t, "rest", content.Body)
	})
}

func TestHTMLExcludesScriptAndStyleText(t *testing.T) {
	markup := `<html><body><script>var hidden = 1;</script><style>.a{}</style><p>shown</p></body></html>`
	content := HTML(markup, "", zap.NewNop())
	require.Equal(t, "shown", content.Body)
}

func TestHTMLThumbnailAndLabels(t *testing.T) {
	markup := `<html><head>
		<meta name="pagefinder-thumbnail" content="data:image/png;base64,iVBOR">
		<meta name="pagefinder-labels" content="docs, api,, guides ">
	</head><body>x</body></html>`

	content := HTML(markup, "", zap.NewNop())
	require.Equal(t, "data:image/png;base64,iVBOR", content.Thumbnail)
	require.Equal(t, []string{"docs", "api", "guides"}, content.Labels)
}

func TestHTMLOversizedMetaDropped(t *testing.T) {
	big := strings.Repeat("x", MaxFieldChars+1)
	markup := `<html><head>
		<meta name="pagefinder-thumbnail" content="` + big + `">
		<meta name="pagefinder-labels" content="` + big + `">
	</head><body>x</body></html>`

	content := HTML(markup, "", zap.NewNop())
	require.Empty(t, content.Thumbnail)
	require.Empty(t, content.Labels)
}

func TestHTMLMissingMetaDefaults(t *testing.T) {
	content := HTML(`<html><body>x</body></html>`, "", zap.NewNop())
	require.Empty(t, content.Thumbnail)
	require.NotNil(t, content.Labels)
	require.Empty(t, content.Labels)
}
