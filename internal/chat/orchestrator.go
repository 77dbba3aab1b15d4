// Package chat runs one dialogue turn: retrieve, assemble, ask the model,
// record the exchange.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"rag-memory/internal/assembler"
	"rag-memory/internal/domain"
	"rag-memory/internal/logging"
	"rag-memory/internal/retrieval"
)

type Retriever interface {
	Retrieve(ctx context.Context, q domain.Query) (*retrieval.Response, error)
}

type Saver interface {
	Save(ctx context.Context, sess *domain.ChatSession) error
}

// TranscriptWriter keeps a human-readable log of exchanges. *Transcript
// implements it.
type TranscriptWriter interface {
	Append(sess *domain.ChatSession, user, assistant string, at time.Time) error
}

// Answer is the result of one turn.
type Answer struct {
	Text        string
	ContextUsed string
	Timestamp   time.Time
}

type Config struct {
	Retriever Retriever
	Inference domain.Inference
	Sessions  Saver
	Params    domain.ChatParams
	TopK      int
	// Service and Model only appear in the error answer shown to the user.
	Service string
	Model   string
	Now     func() time.Time
	// Transcript is optional.
	Transcript TranscriptWriter
}

type Orchestrator struct {
	cfg Config
}

func New(cfg Config) *Orchestrator {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Service == "" {
		cfg.Service = "LM Studio"
	}
	return &Orchestrator{cfg: cfg}
}

// Respond answers utterance within sess. The session is mutated and saved;
// when saving fails the answer is still returned alongside the error.
func (o *Orchestrator) Respond(ctx context.Context, sess *domain.ChatSession, utterance string, profile Profile) (*Answer, error) {
	if strings.TrimSpace(utterance) == "" {
		return nil, domain.Invalid("message is empty", "utterance", utterance)
	}
	profile, err := ParseProfile(string(profile))
	if err != nil {
		return nil, err
	}
	logger := logging.From(ctx).With("session", sess.ID)

	project := sess.ProjectName()
	resp, err := o.cfg.Retriever.Retrieve(ctx, domain.Query{
		Text:   utterance,
		Filter: domain.Filter{Tags: profile.Tags(), Project: project},
		TopK:   o.cfg.TopK,
	})
	if err != nil {
		return nil, err
	}
	for _, f := range resp.Failures {
		logger.Warn("collection unavailable for this turn", "collection", f.Collection, "error", f.Err)
	}
	block := assembler.Assemble(resp.Results, o.cfg.TopK)

	messages := make([]domain.Message, 0, len(sess.History)+2)
	messages = append(messages, domain.Message{Role: domain.RoleSystem, Content: SystemPrompt(project, profile)})
	for _, t := range sess.History {
		messages = append(messages, domain.Message{Role: t.Role, Content: t.Content})
	}
	messages = append(messages, domain.Message{Role: domain.RoleUser, Content: UserMessage(block, utterance)})

	text, err := o.cfg.Inference.Chat(ctx, messages, o.cfg.Params)
	if err != nil {
		if !errors.Is(err, domain.ErrTransport) {
			return nil, goerr.Wrap(err, "inference failed", goerr.V("session", sess.ID))
		}
		logger.Error("inference unavailable", "model", o.cfg.Model, "error", err)
		text = fmt.Sprintf("I encountered an error when trying to process your request. Please check that %s is running with model '%s'. Error: %v",
			o.cfg.Service, o.cfg.Model, err)
	}
	text = strings.TrimSpace(text)

	now := o.cfg.Now()
	sess.Append(
		domain.Turn{Role: domain.RoleUser, Content: utterance, Timestamp: now},
		domain.Turn{Role: domain.RoleAssistant, Content: text, Timestamp: now},
	)
	answer := &Answer{Text: text, ContextUsed: block, Timestamp: now}

	saveErr := o.cfg.Sessions.Save(ctx, sess)
	if o.cfg.Transcript != nil {
		if err := o.cfg.Transcript.Append(sess, utterance, text, now); err != nil {
			logger.Warn("failed to append transcript", "error", err)
		}
	}
	if saveErr != nil {
		return answer, goerr.Wrap(saveErr, "answer produced but session not saved", goerr.V("session", sess.ID))
	}
	logger.Debug("turn complete", "results", len(resp.Results), "context", assembler.HasContext(block))
	return answer, nil
}
