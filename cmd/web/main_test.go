package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

const testProfile = `{"topArtists":["Radiohead"],"topTracks":["Idioteque"],"topGenres":["art rock"],"audioProfile":{"danceability":0.4,"energy":0.6,"valence":0.3}}`

func TestMain(m *testing.M) {
	logrus.SetOutput(io.Discard)
	os.Exit(m.Run())
}

// run executes the root command with args and returns its output.
func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestFeaturesCommand(t *testing.T) {
	out, err := run(t, "", "features")
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 12 {
		t.Fatalf("expected 12 features, got %d:\n%s", len(lines), out)
	}
	if !strings.Contains(out, "musical-compatibility") || !strings.Contains(out, "needs partner") {
		t.Errorf("unexpected output %s", out)
	}
}

func TestPromptCommandFromStdin(t *testing.T) {
	out, err := run(t, testProfile, "prompt", "playlist-generator", "--mood", "focused", "--tracks", "12")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"Top Artists: Radiohead", "Mood: focused", "Number of tracks: 12"} {
		if !strings.Contains(out, want) {
			t.Errorf("prompt missing %q:\n%s", want, out)
		}
	}
}

func TestPromptCommandFromFileWithPartner(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.json")
	b := filepath.Join(dir, "b.json")
	os.WriteFile(a, []byte(testProfile), 0o600)
	os.WriteFile(b, []byte(`{"topArtists":["Drake"]}`), 0o600)

	if _, err := run(t, "", "prompt", "musical-compatibility", a); err == nil {
		t.Fatal("expected an error without --partner")
	}
	out, err := run(t, "", "prompt", "musical-compatibility", a, "--partner", b)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Listener B") || !strings.Contains(out, "Drake") {
		t.Errorf("partner not rendered:\n%s", out)
	}
}

func TestPromptCommandErrors(t *testing.T) {
	if _, err := run(t, testProfile, "prompt", "horoscope"); err == nil {
		t.Error("expected unknown feature error")
	}
	if _, err := run(t, `{"topArtists":[]}`, "prompt", "roast"); err == nil {
		t.Error("expected empty profile error")
	}
	if _, err := run(t, `not json`, "prompt", "roast"); err == nil {
		t.Error("expected decode error")
	}
}
