package templates

import (
	"context"
	"strings"
	"testing"

	"mediagrab/internal/catalog"
	"mediagrab/internal/models"
	"mediagrab/internal/session"
)

func render(t *testing.T, s session.Snapshot) string {
	t.Helper()
	var b strings.Builder
	if err := IndexPage(s).Render(context.Background(), &b); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	return b.String()
}

func TestIndexPageEmptySession(t *testing.T) {
	html := render(t, session.Snapshot{SessionID: "s1", ScanState: models.ScanIdle, Destination: models.DefaultDestination})

	if !strings.Contains(html, `data-session="s1"`) || !strings.Contains(html, `data-connected="false"`) {
		t.Errorf("header attributes missing: %s", html)
	}
	for _, absent := range []string{`class="hero"`, `class="grid"`, `class="dock"`, `class="error"`} {
		if strings.Contains(html, absent) {
			t.Errorf("page rendered %s with no data", absent)
		}
	}
}

func TestIndexPageFullSession(t *testing.T) {
	view := catalog.Build(models.FormatLists{Audio: []models.FormatEntry{
		{FormatID: "251", Quality: "160", Ext: "webm", Note: "160kbps", Size: "4 MB"},
	}}, models.CategoryAudio)
	html := render(t, session.Snapshot{
		Connected: true,
		ScanState: models.ScanResolved,
		LastError: `bad "quote"`,
		Media:     &models.MediaReference{Title: "<b>clip</b>", Author: "A", Duration: "3:14", Thumbnail: "https://i.example/t.jpg"},
		Catalog:   &view,
		Job:       &models.DownloadJob{Phase: models.PhaseProcessing, Percent: 42.5, Message: "Downloading: 42.5%"},
	})

	tests := []string{
		`data-connected="true"`,
		`bad &#34;quote&#34;`,
		`&lt;b&gt;clip&lt;/b&gt;`,
		`<img src="https://i.example/t.jpg"`,
		`data-category="audio"`,
		`data-tier="audio"`,
		`data-format="best_audio"`,
		`data-phase="processing"`,
		`value="42"`,
	}
	for _, expected := range tests {
		if !strings.Contains(html, expected) {
			t.Errorf("page missing %s", expected)
		}
	}
}

func TestCatalogGridEmpty(t *testing.T) {
	view := catalog.Build(models.FormatLists{}, models.CategoryVideo)
	html := render(t, session.Snapshot{Catalog: &view})
	if !strings.Contains(html, "No formats found") {
		t.Errorf("empty catalog message missing: %s", html)
	}
}
