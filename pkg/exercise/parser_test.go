package exercise

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/orthoforge/pkg/browser"
	"github.com/entrhq/orthoforge/pkg/browser/browsertest"
)

func TestParseSentenceHTML(t *testing.T) {
	tests := []struct {
		name     string
		html     string
		question string
		options  []string
	}{
		{
			name:     "plain spans",
			html:     `<span class="pointAndClickSpan">Il</span> <span class="pointAndClickSpan">a</span> <span class="pointAndClickSpan">mangé</span> les pomme.`,
			question: "Il a mangé les pomme.",
		},
		{
			name:     "scripts and comments dropped",
			html:     "Il est <!-- hint --><script>var x = 1;</script><style>.a{}</style>parti<br>tôt.",
			question: "Il est parti tôt.",
		},
		{
			name:     "entities decoded",
			html:     "C&#39;est l&rsquo;heure&nbsp;!",
			question: "C'est l’heure !",
		},
		{
			name:     "select becomes a blank",
			html:     `Je ne sais <select><option></option><option>quel</option><option> quelle </option></select> heure il est.`,
			question: "Je ne sais ___ heure il est.",
			options:  []string{"quel", "quelle"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ex, err := parseSentenceHTML(tt.html)
			require.NoError(t, err)
			assert.Equal(t, tt.question, ex.Question)
			assert.Equal(t, tt.options, ex.Options)
		})
	}
}

func TestExercisePrompt(t *testing.T) {
	ex := &Exercise{Question: "Je ne sais ___ heure."}
	assert.Equal(t, "Je ne sais ___ heure.", ex.Prompt())

	ex.Options = []string{"quel", "quelle"}
	assert.Equal(t, "Je ne sais ___ heure.\nChoix possibles : quel / quelle", ex.Prompt())
}

func TestHTMLParser(t *testing.T) {
	parser := &HTMLParser{Sentence: ".sentence"}

	t.Run("reads the sentence", func(t *testing.T) {
		page := browsertest.NewPage()
		page.Set(".sentence", &browsertest.Element{Visible: true, HTML: "<b>Il</b> pleut."})

		ex, err := parser.Parse(context.Background(), page)
		require.NoError(t, err)
		assert.Equal(t, "Il pleut.", ex.Question)
	})

	t.Run("empty sentence", func(t *testing.T) {
		page := browsertest.NewPage()
		page.Set(".sentence", &browsertest.Element{Visible: true, HTML: "  <span></span> "})

		_, err := parser.Parse(context.Background(), page)
		assert.ErrorIs(t, err, ErrParse)
	})

	t.Run("missing sentence", func(t *testing.T) {
		_, err := parser.Parse(context.Background(), browsertest.NewPage())
		assert.ErrorIs(t, err, ErrParse)
		assert.ErrorIs(t, err, browsertest.ErrTimeout)
	})

	t.Run("closed page", func(t *testing.T) {
		page := browsertest.NewPage()
		require.NoError(t, page.Close())

		_, err := parser.Parse(context.Background(), page)
		assert.ErrorIs(t, err, browser.ErrPageClosed)
	})
}
