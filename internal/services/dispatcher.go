// Package services implements the user actions that feed back into ranking:
// clicks, blocks, demotions, new sources and answers to micro-questions.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"

	"curator/internal/core"
	"curator/internal/logger"
	"curator/internal/store"
)

// Action names accepted by Dispatch.
const (
	ActionClick          = "click"
	ActionBlockSite      = "block-site"
	ActionDemoteSite     = "demote-site"
	ActionDemoteTopic    = "demote-topic"
	ActionAddSite        = "add-site"
	ActionAnswerQuestion = "answer-question"
)

// Preference deltas applied by actions.
const (
	ClickSiteDelta  = 1.0
	ClickTopicDelta = 0.5
	DemotionDelta   = -5.0
)

// ErrUnknownAction is returned for an action name Dispatch does not handle.
var ErrUnknownAction = errors.New("unknown action")

// Request is one user action.
type Request struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload"`
}

// Response reports the outcome of an action. Failures other than an unknown
// action are reported here rather than as errors.
type Response struct {
	Success bool   `json:"success"`
	Blocked *bool  `json:"blocked,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ClickPayload records that the user opened an article.
type ClickPayload struct {
	SiteURL   string `json:"siteUrl" validate:"required"`
	Topic     string `json:"topic" validate:"required"`
	ArticleID string `json:"articleId"`
}

// SitePayload names a source.
type SitePayload struct {
	SiteURL string `json:"siteUrl" validate:"required"`
}

// TopicPayload names a category.
type TopicPayload struct {
	Topic string `json:"topic" validate:"required"`
}

// AddSitePayload registers a new source.
type AddSitePayload struct {
	URL      string `json:"url" validate:"required,url"`
	Category string `json:"category"`
}

// AnswerPayload answers a pending micro-question.
type AnswerPayload struct {
	QuestionID string `json:"questionId" validate:"required"`
	Answer     string `json:"answer" validate:"required"`
}

// QuestionAnswerer refines the interest model from an answer.
type QuestionAnswerer interface {
	AnswerQuestion(ctx context.Context, questionID, answer string) (bool, error)
}

// Dispatcher applies user actions to the preference store.
type Dispatcher struct {
	store    store.PreferenceStore
	answerer QuestionAnswerer
	validate *validator.Validate
	log      *slog.Logger
}

// NewDispatcher creates a Dispatcher. answerer may be nil, in which case
// answer-question always fails.
func NewDispatcher(st store.PreferenceStore, answerer QuestionAnswerer) *Dispatcher {
	return &Dispatcher{
		store:    st,
		answerer: answerer,
		validate: validator.New(),
		log:      logger.Get(),
	}
}

// Dispatch runs one action.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (Response, error) {
	var (
		resp Response
		err  error
	)
	switch req.Action {
	case ActionClick:
		resp, err = handle(ctx, d, req.Payload, d.click)
	case ActionBlockSite:
		resp, err = handle(ctx, d, req.Payload, d.blockSite)
	case ActionDemoteSite:
		resp, err = handle(ctx, d, req.Payload, d.demoteSite)
	case ActionDemoteTopic:
		resp, err = handle(ctx, d, req.Payload, d.demoteTopic)
	case ActionAddSite:
		resp, err = handle(ctx, d, req.Payload, d.addSite)
	case ActionAnswerQuestion:
		resp, err = handle(ctx, d, req.Payload, d.answerQuestion)
	default:
		return Response{}, fmt.Errorf("%w: %q", ErrUnknownAction, req.Action)
	}

	if err != nil {
		d.log.Warn("Action failed", "action", req.Action, "error", err)
		return Response{Success: false, Error: err.Error()}, nil
	}
	d.log.Debug("Action applied", "action", req.Action, "success", resp.Success)
	return resp, nil
}

// handle decodes and validates the payload before running fn.
func handle[P any](ctx context.Context, d *Dispatcher, raw json.RawMessage, fn func(context.Context, P) (Response, error)) (Response, error) {
	var payload P
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return Response{}, fmt.Errorf("invalid payload: %w", err)
	}
	if err := d.validate.Struct(payload); err != nil {
		return Response{}, fmt.Errorf("invalid payload: %w", err)
	}
	return fn(ctx, payload)
}

func (d *Dispatcher) click(ctx context.Context, p ClickPayload) (Response, error) {
	if err := d.store.UpdateSiteScore(ctx, p.SiteURL, ClickSiteDelta); err != nil {
		return Response{}, err
	}
	if err := d.store.UpdateTopicScore(ctx, p.Topic, ClickTopicDelta); err != nil {
		return Response{}, err
	}
	if err := d.store.RecordClick(ctx, p.SiteURL, p.ArticleID); err != nil {
		return Response{}, err
	}
	return Response{Success: true}, nil
}

func (d *Dispatcher) blockSite(ctx context.Context, p SitePayload) (Response, error) {
	blocked, err := d.store.ToggleBlockedSite(ctx, p.SiteURL)
	if err != nil {
		return Response{}, err
	}
	return Response{Success: true, Blocked: &blocked}, nil
}

func (d *Dispatcher) demoteSite(ctx context.Context, p SitePayload) (Response, error) {
	added, err := d.store.AddDemotedSite(ctx, p.SiteURL)
	if err != nil {
		return Response{}, err
	}
	if added {
		if err := d.store.UpdateSiteScore(ctx, p.SiteURL, DemotionDelta); err != nil {
			return Response{}, err
		}
	}
	return Response{Success: true}, nil
}

func (d *Dispatcher) demoteTopic(ctx context.Context, p TopicPayload) (Response, error) {
	added, err := d.store.AddDemotedTopic(ctx, p.Topic)
	if err != nil {
		return Response{}, err
	}
	if added {
		if err := d.store.UpdateTopicScore(ctx, p.Topic, DemotionDelta); err != nil {
			return Response{}, err
		}
	}
	return Response{Success: true}, nil
}

func (d *Dispatcher) addSite(ctx context.Context, p AddSitePayload) (Response, error) {
	category := p.Category
	if category == "" {
		category = core.DefaultCategory
	}
	if err := d.store.AddSite(ctx, core.Source{URL: p.URL, Category: category}); err != nil {
		return Response{}, err
	}
	return Response{Success: true}, nil
}

func (d *Dispatcher) answerQuestion(ctx context.Context, p AnswerPayload) (Response, error) {
	if d.answerer == nil {
		return Response{}, errors.New("question answering is not configured")
	}
	ok, err := d.answerer.AnswerQuestion(ctx, p.QuestionID, p.Answer)
	if err != nil {
		return Response{}, err
	}
	return Response{Success: ok}, nil
}
