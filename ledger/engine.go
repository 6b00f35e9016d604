package ledger

import (
	"fmt"
	"math/big"

	"github.com/tolelom/tolask/core"
)

// Deposit thresholds, in minimal value units.
var (
	MinQuestionReward = big.NewInt(10)
	AnswerPrice       = big.NewInt(1)
)

// Engine applies the mutating ledger operations. It checks every
// precondition before its first write.
type Engine struct {
	stakes *StakeLedger
	store  *Store
}

// NewEngine returns an Engine over state.
func NewEngine(state core.State) *Engine {
	return &Engine{
		stakes: NewStakeLedger(state),
		store:  NewStore(state),
	}
}

// CreateQuestion posts a question whose reward is the attached value and
// adds the same value to the caller's pooled stake.
func (e *Engine) CreateQuestion(call core.Call, content string) (*core.Outcome, error) {
	value := call.AttachedValue()
	if value.Cmp(MinQuestionReward) < 0 {
		return nil, fmt.Errorf("%w: min question reward is %s, got %s", core.ErrDepositTooLow, MinQuestionReward, value)
	}
	id, err := e.store.CreateQuestion(call.Caller, content, value)
	if err != nil {
		return nil, err
	}
	if err := e.stakes.Credit(call.Caller, value); err != nil {
		return nil, err
	}
	return &core.Outcome{QuestionID: id}, nil
}

// CreateAnswer appends the caller's answer. The attached value is a posting
// fee and is not credited to any stake.
func (e *Engine) CreateAnswer(call core.Call, questionID uint32, content string) (*core.Outcome, error) {
	if _, err := e.store.Question(questionID); err != nil {
		return nil, err
	}
	value := call.AttachedValue()
	if value.Cmp(AnswerPrice) < 0 {
		return nil, fmt.Errorf("%w: answering costs %s, got %s", core.ErrDepositTooLow, AnswerPrice, value)
	}
	id, err := e.store.CreateAnswer(questionID, call.Caller, content)
	if err != nil {
		return nil, err
	}
	return &core.Outcome{QuestionID: questionID, AnswerID: id}, nil
}

// UpvoteAnswer adds the attached value to the answer's reward and pays it
// straight to the answer's author.
func (e *Engine) UpvoteAnswer(call core.Call, questionID, answerID uint32) (*core.Outcome, error) {
	value := call.AttachedValue()
	if value.Sign() <= 0 {
		return nil, fmt.Errorf("%w: upvote needs a positive deposit", core.ErrDepositTooLow)
	}
	q, a, err := e.store.FindAnswer(questionID, answerID)
	if err != nil {
		return nil, err
	}

	a.Reward = new(big.Int).Add(a.Reward, value)
	if err := e.store.Save(q); err != nil {
		return nil, err
	}
	return &core.Outcome{
		QuestionID: questionID,
		AnswerID:   answerID,
		Answer:     a,
		Transfers:  []core.Transfer{{To: a.Author, Amount: core.CopyAmount(value)}},
	}, nil
}

// SetCorrectAnswer settles the question on one of its answers: the
// question's reward is debited from the caller's pooled stake and paid to
// the answer's author. Only the question author may call it, only once.
func (e *Engine) SetCorrectAnswer(call core.Call, questionID, answerID uint32) (*core.Outcome, error) {
	q, err := e.store.Question(questionID)
	if err != nil {
		return nil, err
	}
	if q.Author != call.Caller {
		return nil, fmt.Errorf("%w: question %d", core.ErrNotAuthor, questionID)
	}
	if q.Resolved() {
		return nil, fmt.Errorf("%w: question %d", core.ErrAlreadyResolved, questionID)
	}
	a := q.Answer(answerID)
	if a == nil {
		return nil, fmt.Errorf("%w: question %d answer %d", core.ErrAnswerNotFound, questionID, answerID)
	}
	if a.Author == call.Caller {
		return nil, fmt.Errorf("%w: question %d answer %d", core.ErrSelfReward, questionID, answerID)
	}

	reward := core.CopyAmount(q.Reward)
	// The pool may have been drained by settling another question; the
	// question's own Reward field is not a reservation.
	if err := e.stakes.Debit(call.Caller, reward); err != nil {
		return nil, err
	}

	a.IsCorrect = true
	a.Reward = new(big.Int).Add(a.Reward, reward)
	if err := e.store.Save(q); err != nil {
		return nil, err
	}
	return &core.Outcome{
		QuestionID: questionID,
		AnswerID:   answerID,
		Answer:     a,
		Transfers:  []core.Transfer{{To: a.Author, Amount: reward}},
	}, nil
}

// ListQuestions returns the full question collection keyed by id.
func (e *Engine) ListQuestions() (map[uint32]*core.Question, error) {
	return e.store.ListQuestions()
}
