package ledger

import (
	"errors"
	"fmt"
	"math"
	"math/big"

	"github.com/tolelom/tolask/core"
)

// Store holds questions and their answers.
type Store struct {
	state core.State
}

// NewStore returns a Store over state.
func NewStore(state core.State) *Store {
	return &Store{state: state}
}

// nextQuestionID reads the sequence counter. State written before the
// counter existed falls back to the highest stored id, which is the value
// the counter would hold.
func (s *Store) nextQuestionID() (uint32, error) {
	last, err := s.state.LastQuestionID()
	if errors.Is(err, core.ErrNotFound) {
		questions, err := s.state.Questions()
		if err != nil {
			return 0, err
		}
		last = 0
		for _, q := range questions {
			last = max(last, q.ID)
		}
	} else if err != nil {
		return 0, err
	}
	if last == math.MaxUint32 {
		return 0, errors.New("question id space exhausted")
	}
	return last + 1, nil
}

// CreateQuestion stores a new question with no answers and returns its id.
func (s *Store) CreateQuestion(author, content string, reward *big.Int) (uint32, error) {
	id, err := s.nextQuestionID()
	if err != nil {
		return 0, fmt.Errorf("next question id: %w", err)
	}
	q := &core.Question{
		ID:      id,
		Content: content,
		Reward:  core.CopyAmount(reward),
		Author:  author,
		Answers: []*core.Answer{},
	}
	if err := s.state.SetQuestion(q); err != nil {
		return 0, err
	}
	if err := s.state.SetLastQuestionID(id); err != nil {
		return 0, err
	}
	return id, nil
}

// Question loads a question, mapping a missing record to core.ErrQuestionNotFound.
func (s *Store) Question(id uint32) (*core.Question, error) {
	q, err := s.state.GetQuestion(id)
	if errors.Is(err, core.ErrNotFound) {
		return nil, fmt.Errorf("%w: id %d", core.ErrQuestionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load question %d: %w", id, err)
	}
	return q, nil
}

// CreateAnswer appends an answer to the question and returns its id.
func (s *Store) CreateAnswer(questionID uint32, author, content string) (uint32, error) {
	q, err := s.Question(questionID)
	if err != nil {
		return 0, err
	}
	var last uint32
	for _, a := range q.Answers {
		last = max(last, a.ID)
	}
	if last == math.MaxUint32 {
		return 0, fmt.Errorf("answer id space exhausted for question %d", questionID)
	}
	id := last + 1
	q.Answers = append(q.Answers, &core.Answer{
		ID:      id,
		Content: content,
		Author:  author,
		Reward:  new(big.Int),
	})
	if err := s.state.SetQuestion(q); err != nil {
		return 0, err
	}
	return id, nil
}

// FindAnswer returns the question together with the requested answer.
// Mutations to the answer are persisted with Save.
func (s *Store) FindAnswer(questionID, answerID uint32) (*core.Question, *core.Answer, error) {
	q, err := s.Question(questionID)
	if err != nil {
		return nil, nil, err
	}
	a := q.Answer(answerID)
	if a == nil {
		return nil, nil, fmt.Errorf("%w: question %d answer %d", core.ErrAnswerNotFound, questionID, answerID)
	}
	return q, a, nil
}

// Save writes back a question previously loaded from the store.
func (s *Store) Save(q *core.Question) error {
	return s.state.SetQuestion(q)
}

// ListQuestions returns every question keyed by id.
func (s *Store) ListQuestions() (map[uint32]*core.Question, error) {
	questions, err := s.state.Questions()
	if err != nil {
		return nil, err
	}
	out := make(map[uint32]*core.Question, len(questions))
	for _, q := range questions {
		out[q.ID] = q
	}
	return out, nil
}
