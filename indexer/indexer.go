// Package indexer maintains secondary indexes over executed calls so clients
// can list questions and answers by author without scanning full state.
package indexer

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/tolelom/tolask/core"
	"github.com/tolelom/tolask/events"
	"github.com/tolelom/tolask/storage"
)

const (
	prefixAuthorQuestions = "idx:author:question:"
	prefixAuthorAnswers   = "idx:author:answer:"
)

// AnswerRef points at one answer of one question.
type AnswerRef struct {
	QuestionID uint32 `json:"question_id"`
	AnswerID   uint32 `json:"answer_id"`
}

// Indexer subscribes to ledger events and updates secondary lookup tables.
// Index entries live outside the ledger state and do not affect its root.
type Indexer struct {
	db  storage.DB
	log logrus.FieldLogger
}

// New creates an Indexer backed by db and subscribes to relevant events.
func New(db storage.DB, emitter *events.Emitter, log logrus.FieldLogger) *Indexer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	idx := &Indexer{db: db, log: log}
	emitter.Subscribe(events.EventQuestionCreated, idx.onQuestionCreated)
	emitter.Subscribe(events.EventAnswerCreated, idx.onAnswerCreated)
	return idx
}

// QuestionsByAuthor returns the ids of every question author posted.
func (idx *Indexer) QuestionsByAuthor(author string) ([]uint32, error) {
	var ids []uint32
	if err := getList(idx.db, prefixAuthorQuestions+author, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// AnswersByAuthor returns every answer author posted.
func (idx *Indexer) AnswersByAuthor(author string) ([]AnswerRef, error) {
	var refs []AnswerRef
	if err := getList(idx.db, prefixAuthorAnswers+author, &refs); err != nil {
		return nil, err
	}
	return refs, nil
}

// ---- event handlers ----

func (idx *Indexer) onQuestionCreated(ev events.Event) {
	author, _ := ev.Data["author"].(string)
	qid, _ := ev.Data["question_id"].(uint32)
	if author == "" || qid == 0 {
		return
	}
	if err := addToList(idx.db, prefixAuthorQuestions+author, qid); err != nil {
		idx.log.WithError(err).WithField("call_id", ev.CallID).Error("index question")
	}
}

func (idx *Indexer) onAnswerCreated(ev events.Event) {
	author, _ := ev.Data["author"].(string)
	qid, _ := ev.Data["question_id"].(uint32)
	aid, _ := ev.Data["answer_id"].(uint32)
	if author == "" || qid == 0 || aid == 0 {
		return
	}
	ref := AnswerRef{QuestionID: qid, AnswerID: aid}
	if err := addToList(idx.db, prefixAuthorAnswers+author, ref); err != nil {
		idx.log.WithError(err).WithField("call_id", ev.CallID).Error("index answer")
	}
}

// ---- list helpers ----

func getList[T any](db storage.DB, key string, out *[]T) error {
	data, err := db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			*out = nil // empty list
			return nil
		}
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("indexer unmarshal: %w", err)
	}
	return nil
}

func addToList[T comparable](db storage.DB, key string, value T) error {
	var items []T
	if err := getList(db, key, &items); err != nil {
		return err
	}
	for _, it := range items {
		if it == value {
			return nil
		}
	}
	items = append(items, value)
	data, err := json.Marshal(items)
	if err != nil {
		return err
	}
	return db.Set([]byte(key), data)
}
