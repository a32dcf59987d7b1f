// Package scheduler – the auto-reply polling loop.
//
// Each tick discovers business-tier personas with an Instagram link and a
// stored token, pulls their recent media and top-level comments, filters out
// comments the dedup store already knows, and drives the shared engagement
// actions for the remainder. Work is bounded per tick: a persona cap, a
// media and comments fetch limit, and a per-persona task cap. Every failure
// is logged and skipped; a tick never aborts on one persona or one comment.
package scheduler

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/chani337/selfstar/internal/config"
	"github.com/chani337/selfstar/internal/graph"
	"github.com/chani337/selfstar/internal/repo"
	"github.com/chani337/selfstar/internal/services"
)

const loopAutoReply = "auto_reply"

// MediaFetcher is the Graph surface the loop needs for discovery.
type MediaFetcher interface {
	RecentMedia(ctx context.Context, token, igUserID string, mediaLimit, commentsLimit int) ([]graph.Media, error)
}

// replyTask is one unseen comment queued for engagement within a tick.
type replyTask struct {
	commentID   string
	text        string
	postImage   string
	postCaption string
}

// AutoReplyLoop polls Instagram for fresh comments and engages them.
type AutoReplyLoop struct {
	DB     *gorm.DB
	Graph  MediaFetcher
	Engage *services.EngageService
	Cfg    config.SchedulerConfig
}

// Run ticks at the configured interval until ctx is canceled.
func (l *AutoReplyLoop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.Cfg.Interval)
	defer ticker.Stop()

	for {
		l.tick(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (l *AutoReplyLoop) tick(ctx context.Context) {
	start := time.Now()
	defer func() {
		tickTotal.WithLabelValues(loopAutoReply).Inc()
		tickDuration.WithLabelValues(loopAutoReply).Observe(time.Since(start).Seconds())
	}()

	targets, err := repo.ListEngageTargets(ctx, l.DB, l.Cfg.PersonaLimit)
	if err != nil {
		log.Warn().Err(err).Str("loop", loopAutoReply).Msg("persona discovery failed")
		return
	}
	for _, tg := range targets {
		if ctx.Err() != nil {
			return
		}
		l.processPersona(ctx, tg)
	}
}

// processPersona handles one persona's recent comments for this tick.
// Sequential on purpose: load stays bounded and failures stay attributable.
func (l *AutoReplyLoop) processPersona(ctx context.Context, tg repo.EngageTarget) {
	media, err := l.Graph.RecentMedia(ctx, tg.AccessToken, tg.IGUserID, l.Cfg.MediaLimit, l.Cfg.CommentsLimit)
	if err != nil {
		log.Warn().Err(err).
			Str("loop", loopAutoReply).
			Uint("user_id", tg.UserID).
			Int("persona_num", tg.PersonaNum).
			Msg("fetch recent media failed")
		return
	}

	candidates := make([]replyTask, 0)
	ids := make([]string, 0)
	for _, m := range media {
		for _, c := range m.Comments {
			if strings.TrimSpace(c.Text) == "" {
				continue
			}
			candidates = append(candidates, replyTask{
				commentID:   c.ID,
				text:        c.Text,
				postImage:   m.MediaURL,
				postCaption: m.Caption,
			})
			ids = append(ids, c.ID)
		}
	}
	if len(candidates) == 0 {
		return
	}

	seen, err := repo.FilterSeen(ctx, l.DB, tg.UserID, tg.PersonaNum, ids)
	if err != nil {
		log.Warn().Err(err).
			Str("loop", loopAutoReply).
			Uint("user_id", tg.UserID).
			Msg("seen filter failed")
		return
	}

	tasks := make([]replyTask, 0, l.Cfg.MaxPerPersona)
	for _, c := range candidates {
		if _, ok := seen[c.commentID]; ok {
			continue
		}
		tasks = append(tasks, c)
		if len(tasks) >= l.Cfg.MaxPerPersona {
			break
		}
	}

	for _, task := range tasks {
		if ctx.Err() != nil {
			return
		}
		l.runTask(ctx, tg, task)
	}
}

// runTask engages one comment: the image branch first when the text asks
// for one, then the text-reply path. The engagement actions own all dedup
// writes, so a manual API call racing this tick resolves to a single effect.
func (l *AutoReplyLoop) runTask(ctx context.Context, tg repo.EngageTarget, task replyTask) {
	if services.LooksLikeImageRequest(task.text) {
		res, err := l.Engage.AutoImage(ctx, tg.UserID, tg.PersonaNum, task.commentID, task.text)
		switch {
		case err != nil:
			log.Warn().Err(err).
				Str("loop", loopAutoReply).
				Str("comment_id", task.commentID).
				Msg("auto image failed, falling back to text reply")
		case res.Published:
			taskTotal.WithLabelValues(loopAutoReply, "published").Inc()
			return
		}
		// Generated-but-unpublished (or failed) images fall through to a
		// text reply so the commenter still gets an answer.
	}

	res, err := l.Engage.AutoReply(ctx, tg.UserID, tg.PersonaNum, task.commentID, task.text, task.postImage, task.postCaption)
	switch {
	case err != nil:
		taskTotal.WithLabelValues(loopAutoReply, "failed").Inc()
		log.Warn().Err(err).
			Str("loop", loopAutoReply).
			Uint("user_id", tg.UserID).
			Int("persona_num", tg.PersonaNum).
			Str("comment_id", task.commentID).
			Msg("auto reply failed")
	case res.Skipped:
		taskTotal.WithLabelValues(loopAutoReply, "skipped").Inc()
	default:
		taskTotal.WithLabelValues(loopAutoReply, "posted").Inc()
	}
}
