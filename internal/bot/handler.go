package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
	"github.com/user/movieverse/internal/catalog"
	"github.com/user/movieverse/internal/model"
	"github.com/user/movieverse/internal/store"
)

const (
	listLimit = 10
	topLimit  = 5
)

// Sender delivers replies to a chat
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
	SendMarkdown(ctx context.Context, chatID int64, text string) error
	SendVideo(ctx context.Context, chatID int64, location, caption string) error
}

// Handler handles Telegram bot commands
type Handler struct {
	catalog   *catalog.Service
	telegram  Sender
	startTime time.Time
}

// NewHandler creates a new command handler
func NewHandler(svc *catalog.Service, telegram Sender) *Handler {
	return &Handler{
		catalog:   svc,
		telegram:  telegram,
		startTime: time.Now(),
	}
}

// Run consumes updates until ctx is cancelled or the channel closes
func (h *Handler) Run(ctx context.Context, updates tgbotapi.UpdatesChannel) {
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			h.HandleUpdate(ctx, update)
		}
	}
}

// HandleUpdate processes an incoming Telegram update
func (h *Handler) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	if update.Message == nil || !update.Message.IsCommand() {
		return
	}
	msg := update.Message
	h.HandleCommand(ctx, msg.Chat.ID, msg.Command(), msg.CommandArguments())
}

// HandleCommand routes commands to their respective handlers
func (h *Handler) HandleCommand(ctx context.Context, chatID int64, command, args string) {
	args = strings.TrimSpace(args)

	log.Info().
		Int64("chatID", chatID).
		Str("command", command).
		Str("args", args).
		Msg("Received command")

	switch command {
	case "start", "help":
		h.handleStart(ctx, chatID)
	case "movies":
		h.handleMovies(ctx, chatID, args)
	case "search":
		h.handleSearch(ctx, chatID, args)
	case "play":
		h.handlePlay(ctx, chatID, args)
	case "like":
		h.handleInteraction(ctx, chatID, args, "❤️ Liked", h.catalog.Like)
	case "top":
		h.handleTop(ctx, chatID, args)
	case "stats":
		h.handleStats(ctx, chatID)
	default:
		h.sendError(ctx, chatID, "Unknown command. Use /help to see available commands.")
	}
}

func (h *Handler) handleStart(ctx context.Context, chatID int64) {
	helpText := `🎬 *MovieVerse*

/movies \[newest\|watched\|liked\] \- Browse the catalog
/search text \- Find movies by title
/play id \- Watch a movie
/like id \- Like a movie
/top \[views\|likes\] \- Most popular movies
/stats \- Platform totals`

	h.sendMarkdown(ctx, chatID, helpText)
}

func (h *Handler) handleMovies(ctx context.Context, chatID int64, args string) {
	sort := model.ParseSortKey(args)
	movies, err := h.catalog.Browse(ctx, store.ListOptions{Sort: sort, Limit: listLimit})
	if err != nil {
		h.replyFailure(ctx, chatID, err)
		return
	}
	if len(movies) == 0 {
		h.send(ctx, chatID, "📭 The catalog is empty.")
		return
	}

	heading := map[model.SortKey]string{
		model.SortNewest:      "Newest movies",
		model.SortMostWatched: "Most watched",
		model.SortMostLiked:   "Most liked",
	}[sort]
	h.sendMarkdown(ctx, chatID, FormatMovieList(heading, movies))
}

func (h *Handler) handleSearch(ctx context.Context, chatID int64, query string) {
	if query == "" {
		h.sendError(ctx, chatID, "Please provide a title to search for. Example: /search matrix")
		return
	}

	movies, err := h.catalog.Browse(ctx, store.ListOptions{Query: query, Limit: listLimit})
	if err != nil {
		h.replyFailure(ctx, chatID, err)
		return
	}
	if len(movies) == 0 {
		h.send(ctx, chatID, fmt.Sprintf("🔍 No movies found for: %s", query))
		return
	}
	h.sendMarkdown(ctx, chatID, FormatMovieList("Results for: "+query, movies))
}

func (h *Handler) handlePlay(ctx context.Context, chatID int64, args string) {
	id, err := ParseMovieID(args)
	if err != nil {
		h.sendError(ctx, chatID, err.Error())
		return
	}

	movie, err := h.catalog.Play(ctx, id)
	if err != nil {
		h.replyFailure(ctx, chatID, err)
		return
	}

	caption := EscapeMarkdown("▶️ Now playing") + "\n\n" + FormatMovie(movie)
	if err := h.telegram.SendVideo(ctx, chatID, movie.VideoURL, caption); err != nil {
		log.Warn().Err(err).Uint("movieID", movie.ID).Msg("Failed to send video, falling back to text")
		h.sendMarkdown(ctx, chatID, caption+"\n\n"+EscapeMarkdown(movie.VideoURL))
	}
}

func (h *Handler) handleInteraction(ctx context.Context, chatID int64, args, verb string, act func(context.Context, uint) (*model.Movie, error)) {
	id, err := ParseMovieID(args)
	if err != nil {
		h.sendError(ctx, chatID, err.Error())
		return
	}

	movie, err := act(ctx, id)
	if err != nil {
		h.replyFailure(ctx, chatID, err)
		return
	}
	h.sendMarkdown(ctx, chatID, EscapeMarkdown(verb)+"\n\n"+FormatMovie(movie))
}

func (h *Handler) handleTop(ctx context.Context, chatID int64, args string) {
	metric := model.MetricViews
	if args != "" {
		metric = model.Metric(strings.ToLower(args))
	}
	if !metric.Valid() {
		h.sendError(ctx, chatID, "Unknown metric. Use: views or likes")
		return
	}

	ranked, err := h.catalog.Top(ctx, metric, topLimit)
	if err != nil {
		h.replyFailure(ctx, chatID, err)
		return
	}
	if len(ranked) == 0 {
		h.send(ctx, chatID, "📭 Nothing to rank yet.")
		return
	}
	h.sendMarkdown(ctx, chatID, FormatRanking(metric, ranked))
}

func (h *Handler) handleStats(ctx context.Context, chatID int64) {
	stats, err := h.catalog.Stats(ctx)
	if err != nil {
		h.replyFailure(ctx, chatID, err)
		return
	}
	text := FormatStats(stats) + "\n⏱ Uptime: " + EscapeMarkdown(formatDuration(time.Since(h.startTime)))
	h.sendMarkdown(ctx, chatID, text)
}

// ParseMovieID reads a catalog id from command arguments, accepting a leading '#'
func ParseMovieID(args string) (uint, error) {
	args = strings.TrimPrefix(strings.TrimSpace(args), "#")
	if args == "" {
		return 0, errors.New("missing movie id, example: /play 42")
	}
	id, err := strconv.ParseUint(args, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%q is not a movie id", args)
	}
	return uint(id), nil
}

func (h *Handler) replyFailure(ctx context.Context, chatID int64, err error) {
	var ve *store.ValidationError
	switch {
	case errors.Is(err, store.ErrNotFound):
		h.sendError(ctx, chatID, "Movie not found.")
	case errors.As(err, &ve):
		if ve.Field == "metric" {
			h.sendError(ctx, chatID, "Unknown metric. Use: views or likes")
			return
		}
		h.sendError(ctx, chatID, ve.Error())
	default:
		log.Error().Err(err).Int64("chatID", chatID).Msg("Command failed")
		h.sendError(ctx, chatID, "Something went wrong. Please try again.")
	}
}

func (h *Handler) send(ctx context.Context, chatID int64, text string) {
	if err := h.telegram.SendMessage(ctx, chatID, text); err != nil {
		log.Error().Err(err).Int64("chatID", chatID).Msg("Failed to send message")
	}
}

func (h *Handler) sendMarkdown(ctx context.Context, chatID int64, text string) {
	if err := h.telegram.SendMarkdown(ctx, chatID, text); err != nil {
		log.Error().Err(err).Int64("chatID", chatID).Msg("Failed to send markdown message")
	}
}

func (h *Handler) sendError(ctx context.Context, chatID int64, message string) {
	h.send(ctx, chatID, "❌ "+message)
}

// formatDuration formats a duration into a human-readable string
func formatDuration(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}
