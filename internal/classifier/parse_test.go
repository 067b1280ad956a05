package classifier

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStripFences(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{`{"a":1}`, `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{\"a\":1}\n```", `{"a":1}`},
		{"  ```json\n{\"a\":1}\n```  ", `{"a":1}`},
		{"plain text with ``` in the body", "plain text with ``` in the body"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, stripFences(tc.in), "input %q", tc.in)
	}
}

func TestParseTaxonomy(t *testing.T) {
	t.Parallel()

	raw := "```json\n{\"categories\":[{\"category\":\"Genres\",\"labels\":[\"Action\",\"Drama\"]}]}\n```"
	taxonomy, err := parseTaxonomy(raw)
	require.NoError(t, err)
	require.Len(t, taxonomy, 1)
	require.Equal(t, "Genres", taxonomy[0].Category)
	require.Equal(t, []string{"Action", "Drama"}, taxonomy[0].Labels)
}

func TestParseTaxonomyRejectsEmptyAndUnnamed(t *testing.T) {
	t.Parallel()

	_, err := parseTaxonomy(`{"categories":[]}`)
	require.Error(t, err)

	_, err = parseTaxonomy(`{"categories":[{"labels":["x"]}]}`)
	require.Error(t, err)

	_, err = parseTaxonomy(`not json at all`)
	require.Error(t, err)
}

func TestParseQuestions(t *testing.T) {
	t.Parallel()

	raw := `{"questions":[{"question":"Favorite genre?","options":["Action","Drama"]}]}`
	questions, err := parseQuestions(raw)
	require.NoError(t, err)
	require.Len(t, questions, 1)
	require.Equal(t, "Favorite genre?", questions[0].Question)
}

func TestParseQuestionsRejectsEmpty(t *testing.T) {
	t.Parallel()

	_, err := parseQuestions(`{"questions":[]}`)
	require.Error(t, err)

	_, err = parseQuestions(`{"questions":[{"options":["x"]}]}`)
	require.Error(t, err)
}

func TestParseCategoriesAllowsEmptyAssignment(t *testing.T) {
	t.Parallel()

	categories, err := parseCategories(`{"categories":[]}`)
	require.NoError(t, err)
	require.Empty(t, categories)

	_, err = parseCategories(`{}`)
	require.Error(t, err)
}
