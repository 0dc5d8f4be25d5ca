// Package catalog turns raw backend format listings into the filtered,
// deduplicated renditions shown to a user. Everything here is pure.
package catalog

import (
	"fmt"
	"strings"

	"mediagrab/internal/models"
)

const (
	minVisualHeight = 144

	fallbackAudioExt = "mp3"
	defaultNote      = "0kbps"
	defaultSize      = "NA"

	// VariableSize is displayed when the backend does not know the size.
	VariableSize = "Variable Size"
)

var (
	audioContainers  = []string{"mp3", "m4a", "aac", "opus", "ogg", "wav", "flac"}
	visualContainers = map[string]struct{}{"mp4": {}, "webm": {}}
)

// Tier is the badge class of a rendition.
type Tier string

const (
	TierUltra Tier = "4k"
	TierHD    Tier = "hd"
	TierSD    Tier = "sd"
	TierAudio Tier = "audio"
)

// Badge is the quality marker shown on a card.
type Badge struct {
	Tier  Tier   `json:"tier"`
	Label string `json:"label"`
}

// Card is a rendition ready to be painted.
type Card struct {
	Format     models.FormatEntry `json:"format"`
	Badge      Badge              `json:"badge"`
	Title      string             `json:"title"`
	Details    string             `json:"details"`
	Size       string             `json:"size"`
	DownloadID string             `json:"download_id"`
}

// View is the rendered catalog for one category. A nil *View means nothing
// was fetched; a View with no cards is a valid, empty result.
type View struct {
	Category models.Category `json:"category"`
	Cards    []Card          `json:"cards"`
}

// Build renders the requested category of lists.
func Build(lists models.FormatLists, category models.Category) View {
	var entries []models.FormatEntry
	if category == models.CategoryAudio {
		entries = AudioOnly(lists.Audio)
	} else {
		category = models.CategoryVideo
		entries = Visual(lists.Video)
	}

	cards := make([]Card, 0, len(entries))
	for _, f := range entries {
		cards = append(cards, newCard(f, category))
	}
	return View{Category: category, Cards: cards}
}

// Visual keeps the entries that carry a picture, preserving input order.
func Visual(raw []models.FormatEntry) []models.FormatEntry {
	out := make([]models.FormatEntry, 0, len(raw))
	for _, f := range raw {
		ext := strings.ToLower(strings.TrimSpace(f.Ext))
		if isAudioContainer(ext) {
			continue
		}
		if string(f.Quality) == models.AudioQuality {
			continue
		}
		if _, ok := visualContainers[ext]; !ok && ParseHeight(string(f.Quality)) < minVisualHeight {
			continue
		}
		out = append(out, f)
	}
	return out
}

// AudioOnly deduplicates audio entries by note and size. The first entry seen
// for a key wins and output follows first-occurrence order.
func AudioOnly(raw []models.FormatEntry) []models.FormatEntry {
	seen := make(map[string]struct{}, len(raw))
	out := make([]models.FormatEntry, 0, len(raw))
	for _, f := range raw {
		key := dedupKey(f)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}

		f.Quality = models.AudioQuality
		if f.Ext == "" || f.Ext == "none" {
			f.Ext = fallbackAudioExt
		}
		out = append(out, f)
	}
	return out
}

func dedupKey(f models.FormatEntry) string {
	note := f.Note
	if note == "" {
		note = defaultNote
	}
	size := f.Size
	if size == "" {
		size = defaultSize
	}
	return note + size
}

func isAudioContainer(ext string) bool {
	for _, c := range audioContainers {
		if strings.Contains(ext, c) {
			return true
		}
	}
	return false
}

// ParseHeight reads the leading integer of a quality label such as "1080p60".
// Missing or non-numeric labels parse to 0.
func ParseHeight(quality string) int {
	quality = strings.TrimSpace(quality)
	n := 0
	for _, r := range quality {
		if r < '0' || r > '9' {
			break
		}
		n = n*10 + int(r-'0')
		if n > 1<<20 {
			break
		}
	}
	return n
}

// Classify returns the badge for a rendition in the given category.
func Classify(f models.FormatEntry, category models.Category) Badge {
	if category == models.CategoryAudio {
		return Badge{Tier: TierAudio, Label: "AUDIO"}
	}
	h := ParseHeight(string(f.Quality))
	switch {
	case h >= 2160:
		return Badge{Tier: TierUltra, Label: "4K ULTRA"}
	case h >= 1080:
		return Badge{Tier: TierHD, Label: fmt.Sprintf("HD %dp", h)}
	default:
		return Badge{Tier: TierSD, Label: fmt.Sprintf("%dp", h)}
	}
}

// DisplaySize renders an approximate size.
func DisplaySize(size string) string {
	if size == "" || size == "N/A" {
		return VariableSize
	}
	return size
}

func newCard(f models.FormatEntry, category models.Category) Card {
	card := Card{
		Format: f,
		Badge:  Classify(f, category),
		Size:   DisplaySize(f.Size),
	}
	if category == models.CategoryAudio {
		card.Title = "Best Audio"
		note := f.Note
		if note == "" {
			note = "High Quality"
		}
		card.Details = strings.Replace(note, "kbps", " Kbps", 1)
		card.DownloadID = models.BestAudioFormatID
		return card
	}

	card.Title = string(f.Quality)
	ext := f.Ext
	if ext == "" {
		ext = "mp3"
	}
	card.Details = strings.ToUpper(ext)
	card.DownloadID = f.FormatID
	return card
}
