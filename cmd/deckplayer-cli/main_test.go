package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deckplayer/internal/deck"
	"deckplayer/internal/settings"
	"deckplayer/internal/slideshow"
)

func newTestRoot() *cobra.Command {
	return NewRootCmd(func(dir string, _ settings.LoggerFunc) (*settings.Store, error) {
		return settings.Open(dir, func(string) {})
	})
}

// executeCommandC executes a cobra command and captures its output.
func executeCommandC(root *cobra.Command, args ...string) (string, string, error) {
	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestRootHelp(t *testing.T) {
	stdout, _, err := executeCommandC(newTestRoot(), "--help")
	require.NoError(t, err)
	assert.Contains(t, stdout, "deckplayer-cli [command]")
	for _, sub := range []string{"validate", "speed", "locale", "components"} {
		assert.Contains(t, stdout, sub)
	}
}

func TestValidateCommand(t *testing.T) {
	dir := t.TempDir()

	t.Run("valid yaml deck", func(t *testing.T) {
		path := writeFile(t, dir, "talk.yaml", `
meta:
  title: Talk
slides:
  - id: intro
    layout: title
    content:
      title: Hello
`)
		stdout, _, err := executeCommandC(newTestRoot(), "validate", path)
		require.NoError(t, err)
		assert.Contains(t, stdout, "valid, 1 slides (Talk)")
	})

	t.Run("violations are listed", func(t *testing.T) {
		path := writeFile(t, dir, "broken.json", `{"meta":{},"slides":[{"id":"a","layout":"title","content":{}},{"id":"a","layout":"","content":{}}]}`)
		stdout, _, err := executeCommandC(newTestRoot(), "validate", path)
		require.ErrorIs(t, err, deck.ErrInvalidDeck)
		assert.Contains(t, stdout, "meta.title")
		assert.Contains(t, stdout, "slides[1].layout")
	})

	t.Run("missing file", func(t *testing.T) {
		_, _, err := executeCommandC(newTestRoot(), "validate", filepath.Join(dir, "nope.json"))
		require.Error(t, err)
	})
}

func TestSpeedCommands(t *testing.T) {
	dataDir := t.TempDir()

	stdout, _, err := executeCommandC(newTestRoot(), "--data-dir", dataDir, "speed", "get")
	require.NoError(t, err)
	assert.Contains(t, stdout, "20 (default)")

	stdout, _, err = executeCommandC(newTestRoot(), "--data-dir", dataDir, "speed", "set", "45")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Scroll speed set to 45 seconds.")

	stdout, _, err = executeCommandC(newTestRoot(), "--data-dir", dataDir, "speed", "get")
	require.NoError(t, err)
	assert.Equal(t, "45\n", stdout)

	_, _, err = executeCommandC(newTestRoot(), "--data-dir", dataDir, "speed", "set", "0")
	require.ErrorIs(t, err, slideshow.ErrScrollSpeedOutOfRange)
	_, _, err = executeCommandC(newTestRoot(), "--data-dir", dataDir, "speed", "set", "soon")
	require.Error(t, err)

	stdout, _, err = executeCommandC(newTestRoot(), "--data-dir", dataDir, "speed", "get")
	require.NoError(t, err, "a failed command releases the database")
	assert.Equal(t, "45\n", stdout)
}

func TestLocaleCommands(t *testing.T) {
	dataDir := t.TempDir()

	stdout, _, err := executeCommandC(newTestRoot(), "locale", "list")
	require.NoError(t, err)
	assert.Contains(t, stdout, "en-US\tEnglish")
	assert.Contains(t, stdout, "ja-JP\t日本語")

	stdout, _, err = executeCommandC(newTestRoot(), "--data-dir", dataDir, "locale", "get")
	require.NoError(t, err)
	assert.Contains(t, stdout, "No language stored")

	_, _, err = executeCommandC(newTestRoot(), "--data-dir", dataDir, "locale", "set", "xx-XX")
	require.Error(t, err)

	_, _, err = executeCommandC(newTestRoot(), "--data-dir", dataDir, "locale", "set", "ja-JP")
	require.NoError(t, err)
	stdout, _, err = executeCommandC(newTestRoot(), "--data-dir", dataDir, "locale", "get")
	require.NoError(t, err)
	assert.Equal(t, "ja-JP\n", stdout)
}

func TestLocaleListIncludesExtraLocales(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "manifest.json", `{"locales":["fr-FR.json"]}`)
	writeFile(t, dir, "fr-FR.json", `{"languageCode":"fr-FR","languageName":"Français","ui":{"audio":{"play":"Lire"}}}`)

	stdout, _, err := executeCommandC(newTestRoot(), "locale", "list", "--locales-dir", dir)
	require.NoError(t, err)
	assert.Contains(t, stdout, "fr-FR\tFrançais")
}

func TestComponentsCommand(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "charts.addon.json", `{"components":[{"name":"Chart","markdown":"**{{.title}}**"},{"name":"Image","markdown":"img"}]}`)

	stdout, _, err := executeCommandC(newTestRoot(), "components", "--addons-dir", dir)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Chart (addon charts)")
	assert.Contains(t, stdout, "Image (addon charts)", "addons override built-ins")
	assert.Contains(t, stdout, "TerminalAnimation (built-in)")
}
