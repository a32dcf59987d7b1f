// Package services – EngageService
//
// This file implements EngageService, the component that turns an inbound
// comment into an outbound effect: a posted reply, a generated image, or a
// fully auto-published post. It is shared by the manual HTTP endpoints and
// the background auto-reply scheduler so both paths have identical dedup and
// error semantics.
//
// Dedup contract: every action with an irreversible external effect
// pre-claims the comment id before calling out. A failed pre-claim aborts
// the action (ErrPreClaimFailed); an already-claimed id yields a skipped
// result, not an error. Post-ack writes (after a successful scheduler reply,
// after auto-publish) are best-effort: a missed ack only risks a future
// duplicate attempt.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/chani337/selfstar/internal/ai"
	"github.com/chani337/selfstar/internal/config"
	"github.com/chani337/selfstar/internal/domain"
	"github.com/chani337/selfstar/internal/graph"
	"github.com/chani337/selfstar/internal/repo"
)

// GraphAPI is the social-graph surface EngageService needs.
type GraphAPI interface {
	CreateComment(ctx context.Context, token, mediaID, message string) (string, error)
	CreateReply(ctx context.Context, token, commentID, message string) (string, error)
	CreateMedia(ctx context.Context, token, igUserID, imageURL, caption string) (string, error)
	GetContainerStatus(ctx context.Context, token, creationID string) (string, error)
	PublishMedia(ctx context.Context, token, igUserID, creationID string) (string, error)
}

// AIGenerator is the AI-service surface EngageService needs.
type AIGenerator interface {
	CommentReply(ctx context.Context, req ai.ReplyRequest) (string, error)
	ChatImage(ctx context.Context, req ai.ImageRequest) (string, error)
	Caption(ctx context.Context, text, personality string) (string, error)
}

// BlobStore is the object-storage surface EngageService needs. It may be
// left nil when no storage is configured; image actions then fail with
// ErrStorageUnavailable.
type BlobStore interface {
	PutDataURI(ctx context.Context, userID uint, personaNum int, dataURI string) (string, error)
	PresignGet(ctx context.Context, key string) (string, error)
}

// PersonaContext carries everything one engagement action needs about the
// acting persona. Composed per invocation, never stored.
type PersonaContext struct {
	UserID      uint
	PersonaNum  int
	IGUserID    string
	AvatarURL   string
	Personality string
	Params      string
	Plan        string
	AccessToken string
}

// EngageService composes the AI and Graph collaborators with the dedup
// store. Construct the struct directly; nil Sleep uses a context-aware
// real sleep.
type EngageService struct {
	DB    *gorm.DB
	Graph GraphAPI
	AI    AIGenerator
	Store BlobStore
	Cfg   config.EngageConfig

	// Sleep is a seam for tests; production leaves it nil.
	Sleep func(ctx context.Context, d time.Duration) error
}

func (s *EngageService) sleep(ctx context.Context, d time.Duration) error {
	if s.Sleep != nil {
		return s.Sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// PersonaContextFor loads the persona and its token for (userID, personaNum)
// and resolves the owner's plan. A missing token leaves AccessToken empty;
// callers that need one check and return ErrOAuthRequired.
func (s *EngageService) PersonaContextFor(ctx context.Context, userID uint, personaNum int) (*PersonaContext, error) {
	p, err := repo.GetPersona(ctx, s.DB, userID, personaNum)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrPersonaNotFound
		}
		return nil, err
	}
	u, err := repo.EnsureUser(ctx, s.DB, userID)
	if err != nil {
		return nil, err
	}
	token, err := repo.GetPersonaToken(ctx, s.DB, userID, personaNum)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}
	return &PersonaContext{
		UserID:      userID,
		PersonaNum:  personaNum,
		IGUserID:    p.IGUserID,
		AvatarURL:   p.AvatarURL,
		Personality: p.Personality(),
		Params:      p.Params,
		Plan:        u.Plan,
		AccessToken: token,
	}, nil
}

// PostComment posts a new top-level comment on a media object on behalf of
// the persona.
func (s *EngageService) PostComment(ctx context.Context, userID uint, personaNum int, mediaID, message string) (string, error) {
	tr := otel.Tracer("services/EngageService")
	ctx, span := tr.Start(ctx, "PostComment",
		trace.WithAttributes(attribute.Int64("user.id", int64(userID)), attribute.String("media.id", mediaID)))
	defer span.End()

	pc, err := s.PersonaContextFor(ctx, userID, personaNum)
	if err != nil {
		return "", err
	}
	if pc.AccessToken == "" {
		return "", ErrOAuthRequired
	}
	id, err := s.Graph.CreateComment(ctx, pc.AccessToken, mediaID, message)
	return id, mapGraphErr(err)
}

// ManualReply posts a user-authored reply under a comment.
func (s *EngageService) ManualReply(ctx context.Context, userID uint, personaNum int, commentID, message string) (string, error) {
	tr := otel.Tracer("services/EngageService")
	ctx, span := tr.Start(ctx, "ManualReply",
		trace.WithAttributes(attribute.Int64("user.id", int64(userID)), attribute.String("comment.id", commentID)))
	defer span.End()

	pc, err := s.PersonaContextFor(ctx, userID, personaNum)
	if err != nil {
		return "", err
	}
	if pc.AccessToken == "" {
		return "", ErrOAuthRequired
	}
	id, err := s.Graph.CreateReply(ctx, pc.AccessToken, commentID, message)
	return id, mapGraphErr(err)
}

// GenerateReply asks the AI service for a persona-voiced reply to a comment.
// An empty result is an error: posting nothing is never intended.
func (s *EngageService) GenerateReply(ctx context.Context, pc *PersonaContext, text, postImg, postCaption string) (string, error) {
	reply, err := s.AI.CommentReply(ctx, ai.ReplyRequest{
		PostImg:     postImg,
		Post:        postCaption,
		Personality: pc.Personality,
		Text:        text,
		PersonaImg:  pc.AvatarURL,
	})
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(reply) == "" {
		return "", ErrAIEmptyReply
	}
	return reply, nil
}

// AutoReplyResult reports one auto-reply invocation. Skipped means the
// comment was already claimed and no external call was made.
type AutoReplyResult struct {
	Skipped bool   `json:"skipped,omitempty"`
	Reply   string `json:"reply,omitempty"`
	ReplyID string `json:"result,omitempty"`
}

// AutoReply pre-claims commentID, generates a reply, and posts it.
//
// Ordering is the race-safety linchpin: the claim is written before any
// external call, so a manual request racing a scheduler tick on the same
// comment produces at most one posted reply. The claim already recorded the
// comment, so no second dedup write happens after posting.
func (s *EngageService) AutoReply(ctx context.Context, userID uint, personaNum int, commentID, text, postImg, postCaption string) (*AutoReplyResult, error) {
	tr := otel.Tracer("services/EngageService")
	ctx, span := tr.Start(ctx, "AutoReply",
		trace.WithAttributes(
			attribute.Int64("user.id", int64(userID)),
			attribute.String("comment.id", commentID),
		))
	defer span.End()

	claimed, err := repo.ClaimOrTouch(ctx, s.DB, commentID, userID, personaNum)
	if err != nil {
		return nil, errors.Join(ErrPreClaimFailed, err)
	}
	if !claimed {
		return &AutoReplyResult{Skipped: true}, nil
	}

	pc, err := s.PersonaContextFor(ctx, userID, personaNum)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(pc.IGUserID) == "" {
		return nil, ErrPersonaNotLinked
	}
	if pc.AccessToken == "" {
		return nil, ErrOAuthRequired
	}

	reply, err := s.GenerateReply(ctx, pc, text, postImg, postCaption)
	if err != nil {
		return nil, err
	}
	replyID, err := s.Graph.CreateReply(ctx, pc.AccessToken, commentID, reply)
	if err != nil {
		return nil, mapGraphErr(err)
	}
	return &AutoReplyResult{Reply: reply, ReplyID: replyID}, nil
}

// AutoDraft generates a reply without posting and without touching dedup.
// The persona must be linked (the draft is written in its Instagram voice)
// but no token is needed.
func (s *EngageService) AutoDraft(ctx context.Context, userID uint, personaNum int, text, postImg, postCaption string) (string, error) {
	tr := otel.Tracer("services/EngageService")
	ctx, span := tr.Start(ctx, "AutoDraft",
		trace.WithAttributes(attribute.Int64("user.id", int64(userID))))
	defer span.End()

	pc, err := s.PersonaContextFor(ctx, userID, personaNum)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(pc.IGUserID) == "" {
		return "", ErrPersonaNotLinked
	}
	return s.GenerateReply(ctx, pc, text, postImg, postCaption)
}

// AutoImageResult reports one auto-image invocation.
type AutoImageResult struct {
	Skipped   bool   `json:"skipped,omitempty"`
	Reason    string `json:"reason,omitempty"`
	ImgKey    string `json:"img_key,omitempty"`
	ImageURL  string `json:"image_url,omitempty"`
	Published bool   `json:"published,omitempty"`
	MediaID   string `json:"media_id,omitempty"`
}

// AutoImage classifies the comment text, generates an image for it, stores
// the image, and records a gallery row. For business-tier owners with
// auto-publish enabled it chains into AutoPublish with an AI caption,
// falling back to FallbackCaption. Publish failure never rolls back the
// stored image.
func (s *EngageService) AutoImage(ctx context.Context, userID uint, personaNum int, commentID, text string) (*AutoImageResult, error) {
	tr := otel.Tracer("services/EngageService")
	ctx, span := tr.Start(ctx, "AutoImage",
		trace.WithAttributes(
			attribute.Int64("user.id", int64(userID)),
			attribute.String("comment.id", commentID),
		))
	defer span.End()

	if !s.Cfg.AutoImageEnabled {
		return &AutoImageResult{Skipped: true, Reason: "disabled"}, nil
	}
	if !LooksLikeImageRequest(text) {
		return &AutoImageResult{Skipped: true, Reason: "not_image_request"}, nil
	}
	if s.Store == nil {
		return nil, ErrStorageUnavailable
	}

	pc, err := s.PersonaContextFor(ctx, userID, personaNum)
	if err != nil {
		return nil, err
	}

	var params json.RawMessage
	if json.Valid([]byte(pc.Params)) {
		params = json.RawMessage(pc.Params)
	}
	dataURI, err := s.AI.ChatImage(ctx, ai.ImageRequest{
		UserText:   text,
		PersonaImg: pc.AvatarURL,
		Persona:    params,
	})
	if err != nil {
		return nil, err
	}
	key, err := s.Store.PutDataURI(ctx, userID, personaNum, dataURI)
	if err != nil {
		return nil, err
	}
	if _, err := repo.InsertChatImage(ctx, s.DB, userID, personaNum, key, text); err != nil {
		return nil, err
	}

	res := &AutoImageResult{ImgKey: key}
	if url, err := s.Store.PresignGet(ctx, key); err == nil {
		res.ImageURL = url
	} else {
		log.Warn().Err(err).Str("img_key", key).Msg("presign generated image")
	}

	if s.Cfg.AutoImageAckSeen && commentID != "" {
		// Post-ack, best effort: the image already exists either way.
		if _, err := repo.ClaimOrTouch(ctx, s.DB, commentID, userID, personaNum); err != nil {
			log.Warn().Err(err).Str("comment_id", commentID).Msg("ack after auto image")
		}
	}

	if domain.IsBusinessPlan(pc.Plan) && s.Cfg.AutoPublishEnabled &&
		pc.AccessToken != "" && strings.TrimSpace(pc.IGUserID) != "" && res.ImageURL != "" {
		caption, err := s.AI.Caption(ctx, text, pc.Personality)
		if err != nil || strings.TrimSpace(caption) == "" {
			caption = FallbackCaption(text)
		}
		mediaID, err := s.AutoPublish(ctx, pc.AccessToken, pc.IGUserID, res.ImageURL, caption)
		if err != nil {
			log.Warn().Err(err).
				Uint("user_id", userID).
				Int("persona_num", personaNum).
				Msg("auto publish after image")
		} else {
			res.Published = true
			res.MediaID = mediaID
			if commentID != "" {
				if _, err := repo.ClaimOrTouch(ctx, s.DB, commentID, userID, personaNum); err != nil {
					log.Warn().Err(err).Str("comment_id", commentID).Msg("ack after auto publish")
				}
			}
		}
	}
	return res, nil
}

// AutoPublish runs the two-step Graph publish flow: create a media
// container, poll its status until FINISHED (or ERROR or attempts
// exhausted), then publish. A "media not ready" publish failure (code 9007)
// is retried exactly once after a fixed sleep.
func (s *EngageService) AutoPublish(ctx context.Context, token, igUserID, imageURL, caption string) (string, error) {
	tr := otel.Tracer("services/EngageService")
	ctx, span := tr.Start(ctx, "AutoPublish",
		trace.WithAttributes(attribute.String("ig.user_id", igUserID)))
	defer span.End()

	creationID, err := s.Graph.CreateMedia(ctx, token, igUserID, imageURL, caption)
	if err != nil {
		return "", mapGraphErr(err)
	}

	for attempt := 0; attempt < s.Cfg.PublishPollMax; attempt++ {
		status, err := s.Graph.GetContainerStatus(ctx, token, creationID)
		if err != nil {
			return "", mapGraphErr(err)
		}
		if status == graph.StatusFinished {
			break
		}
		if status == graph.StatusError {
			return "", &graph.APIError{Status: 500, Message: "container processing failed"}
		}
		if err := s.sleep(ctx, s.Cfg.PublishPollInt); err != nil {
			return "", err
		}
	}

	mediaID, err := s.Graph.PublishMedia(ctx, token, igUserID, creationID)
	if graph.IsMediaNotReady(err) {
		if serr := s.sleep(ctx, s.Cfg.PublishRetrySleep); serr != nil {
			return "", serr
		}
		mediaID, err = s.Graph.PublishMedia(ctx, token, igUserID, creationID)
	}
	if err != nil {
		return "", mapGraphErr(err)
	}
	return mediaID, nil
}

// BulkReplyItem is one reply request inside a batch.
type BulkReplyItem struct {
	CommentID string `json:"comment_id"`
	Message   string `json:"message"`
}

// BulkReplyResult reports one batch item. Status is "replied", "skipped"
// (already claimed), or "error".
type BulkReplyResult struct {
	CommentID string `json:"comment_id"`
	OK        bool   `json:"ok"`
	Status    string `json:"status"`
	ReplyID   string `json:"result,omitempty"`
	Error     string `json:"error,omitempty"`
}

// ReplyBulk posts replies sequentially with per-item pre-claim. One item's
// failure never aborts the batch.
func (s *EngageService) ReplyBulk(ctx context.Context, userID uint, personaNum int, items []BulkReplyItem) []BulkReplyResult {
	tr := otel.Tracer("services/EngageService")
	ctx, span := tr.Start(ctx, "ReplyBulk",
		trace.WithAttributes(
			attribute.Int64("user.id", int64(userID)),
			attribute.Int("items", len(items)),
		))
	defer span.End()

	pc, pcErr := s.PersonaContextFor(ctx, userID, personaNum)

	out := make([]BulkReplyResult, 0, len(items))
	for _, it := range items {
		res := BulkReplyResult{CommentID: it.CommentID}
		if pcErr != nil {
			res.Status = "error"
			res.Error = pcErr.Error()
			out = append(out, res)
			continue
		}
		if pc.AccessToken == "" {
			res.Status = "error"
			res.Error = ErrOAuthRequired.Error()
			out = append(out, res)
			continue
		}
		claimed, err := repo.ClaimOrTouch(ctx, s.DB, it.CommentID, userID, personaNum)
		if err != nil {
			res.Status = "error"
			res.Error = err.Error()
			out = append(out, res)
			continue
		}
		if !claimed {
			res.Status = "skipped"
			res.OK = true
			out = append(out, res)
			continue
		}
		replyID, err := s.Graph.CreateReply(ctx, pc.AccessToken, it.CommentID, it.Message)
		if err != nil {
			res.Status = "error"
			res.Error = mapGraphErr(err).Error()
			out = append(out, res)
			continue
		}
		res.Status = "replied"
		res.OK = true
		res.ReplyID = replyID
		out = append(out, res)
	}
	return out
}

// mapGraphErr remaps Graph error code 190 to ErrOAuthRequired so handlers
// can surface "re-authorize" distinctly from generic upstream failures.
func mapGraphErr(err error) error {
	if err == nil {
		return nil
	}
	if graph.IsOAuthError(err) {
		return errors.Join(ErrOAuthRequired, err)
	}
	return err
}
