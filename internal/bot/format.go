package bot

import (
	"fmt"
	"strings"

	"github.com/user/movieverse/internal/model"
)

const maxDescriptionRunes = 150

var markdownEscaper = strings.NewReplacer(
	"\\", "\\\\",
	"_", "\\_", "*", "\\*", "[", "\\[", "]", "\\]", "(", "\\(", ")", "\\)",
	"~", "\\~", "`", "\\`", ">", "\\>", "#", "\\#", "+", "\\+", "-", "\\-",
	"=", "\\=", "|", "\\|", "{", "\\{", "}", "\\}", ".", "\\.", "!", "\\!",
)

// EscapeMarkdown escapes special characters for Telegram MarkdownV2 format
func EscapeMarkdown(text string) string {
	return markdownEscaper.Replace(text)
}

// Truncate shortens text to at most n runes, marking the cut with an ellipsis
func Truncate(text string, n int) string {
	r := []rune(text)
	if len(r) <= n {
		return text
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}

// FormatMovie renders one catalog entry as a MarkdownV2 block
func FormatMovie(m *model.Movie) string {
	if m == nil {
		return ""
	}

	parts := []string{
		fmt.Sprintf("🎬 *%s* \\(\\#%d\\)", EscapeMarkdown(m.Title), m.ID),
		EscapeMarkdown(Truncate(m.Description, maxDescriptionRunes)),
		fmt.Sprintf("👁 %d  ❤️ %d", m.Views, m.Likes),
	}
	if !m.UploadDate.IsZero() {
		parts = append(parts, "📅 "+EscapeMarkdown(m.UploadDate.Format("2006-01-02")))
	}
	return strings.Join(parts, "\n")
}

// FormatMovieList renders a numbered listing under a heading
func FormatMovieList(heading string, movies []*model.Movie) string {
	lines := []string{fmt.Sprintf("*%s*\n", EscapeMarkdown(heading))}
	for i, m := range movies {
		lines = append(lines, fmt.Sprintf("%d\\. *%s* \\(\\#%d\\) 👁 %d ❤️ %d",
			i+1, EscapeMarkdown(Truncate(m.Title, 60)), m.ID, m.Views, m.Likes))
	}
	return strings.Join(lines, "\n")
}

// FormatRanking renders a top list for one metric
func FormatRanking(metric model.Metric, ranked []model.RankedMovie) string {
	lines := []string{fmt.Sprintf("🏆 *Top by %s*\n", EscapeMarkdown(string(metric)))}
	for i, r := range ranked {
		score := r.Views
		if metric == model.MetricLikes {
			score = r.Likes
		}
		lines = append(lines, fmt.Sprintf("%d\\. %s \\(\\#%d\\) \\- %d",
			i+1, EscapeMarkdown(Truncate(r.Title, 60)), r.ID, score))
	}
	return strings.Join(lines, "\n")
}

// FormatStats renders platform totals
func FormatStats(stats model.PlatformStats) string {
	return strings.Join([]string{
		"📊 *MovieVerse*\n",
		fmt.Sprintf("🎬 Movies: %d", stats.TotalMovies),
		fmt.Sprintf("👁 Views: %d", stats.TotalViews),
		fmt.Sprintf("❤️ Likes: %d", stats.TotalLikes),
	}, "\n")
}
