package moderation

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"

	"github.com/modguard/modguard/internal/observability"
)

// Pipeline runs the detector stages in order with early exit on the first
// verdict. A stage error or panic is logged and treated as no verdict so
// one broken detector never aborts evaluation of the rest.
type Pipeline struct {
	stages []Detector
}

func NewPipeline(stages ...Detector) *Pipeline {
	return &Pipeline{stages: stages}
}

func (p *Pipeline) Evaluate(ctx context.Context, msg *Message) *Verdict {
	ctx, span := otel.Tracer("moderation").Start(ctx, "evaluate-message")
	defer span.End()

	status := "clean"
	done := observability.StartEvaluation()
	defer func() { done(status) }()

	entry := p.getLogEntry().WithFields(log.Fields{
		"chat_id": msg.ChatID,
		"user_id": msg.UserID,
	})

	for _, stage := range p.stages {
		result := runStage(ctx, stage, msg)
		switch result.Kind {
		case KindError:
			observability.RecordStageError(stage.Name())
			entry.WithFields(log.Fields{
				"stage": stage.Name(),
				"error": result.Err.Error(),
			}).Error("detector stage failed, continuing")
		case KindVerdict:
			result.Verdict.Stage = stage.Name()
			observability.RecordVerdict(stage.Name())
			status = "verdict"
			entry.WithFields(log.Fields{
				"stage":  stage.Name(),
				"reason": result.Verdict.Reason,
			}).Info("verdict")
			return result.Verdict
		}
	}
	return nil
}

func runStage(ctx context.Context, stage Detector, msg *Message) (result StageResult) {
	defer func() {
		if r := recover(); r != nil {
			result = stageError(fmt.Errorf("stage panic: %v", r))
		}
	}()
	return stage.Check(ctx, msg)
}

func (p *Pipeline) getLogEntry() *log.Entry {
	return log.WithField("object", "Pipeline")
}
