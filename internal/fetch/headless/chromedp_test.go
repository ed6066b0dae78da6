package headless

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNew_RejectsNegativeParallelism(t *testing.T) {
	t.Parallel()

	_, err := New(Config{MaxParallel: -1})
	require.Error(t, err)
}

func TestNew_AppliesDefaults(t *testing.T) {
	t.Parallel()

	f, err := New(Config{})
	require.NoError(t, err)
	require.Equal(t, "a[href]", f.cfg.LinkSelector)
	require.Equal(t, "href", f.cfg.AttachmentAttr)
	require.Positive(t, f.cfg.NavigationTimeout)
	require.Nil(t, f.limiter)
}

func TestLinksExpr_EscapesSelector(t *testing.T) {
	t.Parallel()

	expr := linksExpr(`a[href^="https"]`)
	require.Contains(t, expr, `"a[href^=\"https\"]"`)
	require.Contains(t, expr, "querySelectorAll")
}

func TestPayloadExpr_HandlesMissingAttachmentSelector(t *testing.T) {
	t.Parallel()

	expr := payloadExpr("h1.title", "", "href")
	require.Contains(t, expr, `"h1.title"`)
	require.Contains(t, expr, `attachmentUrl`)
}
