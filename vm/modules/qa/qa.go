// Package qa exposes the question/answer ledger operations as call handlers.
// Each handler runs the ledger engine and then executes the transfers the
// engine returned.
package qa

import (
	"encoding/json"
	"fmt"

	"github.com/tolelom/tolask/core"
	"github.com/tolelom/tolask/events"
	"github.com/tolelom/tolask/ledger"
	"github.com/tolelom/tolask/metrics"
	"github.com/tolelom/tolask/vm"
)

func init() {
	vm.Register(core.TxCreateQuestion, handleCreateQuestion)
	vm.Register(core.TxCreateAnswer, handleCreateAnswer)
	vm.Register(core.TxUpvoteAnswer, handleUpvoteAnswer)
	vm.Register(core.TxSetCorrectAnswer, handleSetCorrectAnswer)
}

func handleCreateQuestion(ctx *vm.Context, payload json.RawMessage) (any, error) {
	var p core.CreateQuestionPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("decode create_question payload: %w", err)
	}
	call := ctx.Call()
	out, err := ledger.NewEngine(ctx.State).CreateQuestion(call, p.Content)
	if err != nil {
		return nil, err
	}
	ctx.Emit(events.EventQuestionCreated, map[string]any{
		"question_id": out.QuestionID,
		"author":      call.Caller,
		"reward":      call.AttachedValue(),
	})
	return out, nil
}

func handleCreateAnswer(ctx *vm.Context, payload json.RawMessage) (any, error) {
	var p core.CreateAnswerPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("decode create_answer payload: %w", err)
	}
	call := ctx.Call()
	out, err := ledger.NewEngine(ctx.State).CreateAnswer(call, p.QuestionID, p.Content)
	if err != nil {
		return nil, err
	}
	ctx.Emit(events.EventAnswerCreated, map[string]any{
		"question_id": out.QuestionID,
		"answer_id":   out.AnswerID,
		"author":      call.Caller,
	})
	return out, nil
}

func handleUpvoteAnswer(ctx *vm.Context, payload json.RawMessage) (any, error) {
	var p core.UpvoteAnswerPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("decode upvote_answer payload: %w", err)
	}
	call := ctx.Call()
	out, err := ledger.NewEngine(ctx.State).UpvoteAnswer(call, p.QuestionID, p.AnswerID)
	if err != nil {
		return nil, err
	}
	if err := settle(ctx, out); err != nil {
		return nil, err
	}
	ctx.Emit(events.EventAnswerUpvoted, map[string]any{
		"question_id": out.QuestionID,
		"answer_id":   out.AnswerID,
		"voter":       call.Caller,
		"value":       call.AttachedValue(),
	})
	if ctx.Metrics != nil {
		metrics.AddAmount(ctx.Metrics.UpvoteValue, call.AttachedValue())
	}
	return out, nil
}

func handleSetCorrectAnswer(ctx *vm.Context, payload json.RawMessage) (any, error) {
	var p core.SetCorrectAnswerPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("decode set_correct_answer payload: %w", err)
	}
	call := ctx.Call()
	out, err := ledger.NewEngine(ctx.State).SetCorrectAnswer(call, p.QuestionID, p.AnswerID)
	if err != nil {
		return nil, err
	}
	if err := settle(ctx, out); err != nil {
		return nil, err
	}
	ctx.Emit(events.EventAnswerAccepted, map[string]any{
		"question_id": out.QuestionID,
		"answer_id":   out.AnswerID,
		"author":      out.Answer.Author,
	})
	if ctx.Metrics != nil {
		for _, t := range out.Transfers {
			metrics.AddAmount(ctx.Metrics.SettledReward, t.Amount)
		}
	}
	return out, nil
}

// settle executes the transfers of out in order.
func settle(ctx *vm.Context, out *core.Outcome) error {
	for _, t := range out.Transfers {
		if err := ctx.Transfer(t); err != nil {
			return err
		}
	}
	return nil
}
