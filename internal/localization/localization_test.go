package localization_test

import (
	"accord/backend/internal/localization"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_LoadsEmbeddedLocales(t *testing.T) {
	l, err := localization.Default()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"en", "uk"}, l.Languages())
	assert.Equal(t, "Could not perform analysis.", l.GetString("en", "AnalysisFailed"))
	assert.Equal(t, "Не вдалося виконати аналіз.", l.GetString("uk", "AnalysisFailed"))
}

func TestGetString_Fallbacks(t *testing.T) {
	fsys := fstest.MapFS{
		"i18n/en.json":    {Data: []byte(`{"greeting":"Hello","farewell":"Bye"}`)},
		"i18n/uk.json":    {Data: []byte(`{"greeting":"Привіт"}`)},
		"i18n/README.txt": {Data: []byte("ignored")},
	}
	l, err := localization.NewLocalizer(fsys, "i18n")
	require.NoError(t, err)

	assert.Equal(t, "Привіт", l.GetString("uk", "greeting"))
	assert.Equal(t, "Bye", l.GetString("uk", "farewell"), "missing key falls back to English")
	assert.Equal(t, "Hello", l.GetString("fr", "greeting"), "missing language falls back to English")
	assert.Equal(t, "unknown", l.GetString("en", "unknown"), "missing everywhere returns the key")
}

func TestNewLocalizer_Errors(t *testing.T) {
	_, err := localization.NewLocalizer(fstest.MapFS{}, "missing")
	assert.Error(t, err)

	_, err = localization.NewLocalizer(fstest.MapFS{"l/en.json": {Data: []byte("{")}}, "l")
	assert.Error(t, err)
}

func TestMatchLanguage(t *testing.T) {
	l, err := localization.Default()
	require.NoError(t, err)

	assert.Equal(t, "uk", l.MatchLanguage("uk-UA,uk;q=0.9,en;q=0.8"))
	assert.Equal(t, "en", l.MatchLanguage("fr-FR, en;q=0.5"))
	assert.Equal(t, "en", l.MatchLanguage("de"))
	assert.Equal(t, "en", l.MatchLanguage(""))
}
