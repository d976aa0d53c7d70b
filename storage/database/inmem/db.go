package inmemdb

import (
	"sync"

	"github.com/trezcool/academia/core/exam"
)

type (
	// DB keeps every table in memory. It is meant for development and tests.
	DB struct {
		exam     *examTable
		attender *attenderTable

		// serializes transactions
		txMutex sync.Mutex
	}

	examTable struct {
		sync.RWMutex
		table map[string]*exam.Exam
	}

	attenderTable struct {
		sync.RWMutex
		table map[string]*exam.AttenderState
	}

	// journal keeps the rows a transaction overwrote, as they were before its first write.
	// A nil row did not exist.
	journal struct {
		exams     map[string]*exam.Exam
		attenders map[string]*exam.AttenderState
	}
)

func Open() *DB {
	return &DB{
		exam:     &examTable{table: make(map[string]*exam.Exam)},
		attender: &attenderTable{table: make(map[string]*exam.AttenderState)},
	}
}

func newJournal() *journal {
	return &journal{
		exams:     make(map[string]*exam.Exam),
		attenders: make(map[string]*exam.AttenderState),
	}
}

// saveExam records orig, the current row of id. The caller holds the exam table lock.
func (j *journal) saveExam(id string, orig *exam.Exam) {
	if j == nil {
		return
	}
	if _, ok := j.exams[id]; ok {
		return
	}
	if orig != nil {
		cp := *orig
		orig = &cp
	}
	j.exams[id] = orig
}

// saveAttender records orig, the current row of id. The caller holds the attender table lock.
func (j *journal) saveAttender(id string, orig *exam.AttenderState) {
	if j == nil {
		return
	}
	if _, ok := j.attenders[id]; ok {
		return
	}
	if orig != nil {
		cp := *orig
		orig = &cp
	}
	j.attenders[id] = orig
}

// rollback puts back the rows recorded in j. Rows the transaction never wrote keep their
// current value, whoever wrote them meanwhile.
func (db *DB) rollback(j *journal) {
	db.exam.Lock()
	defer db.exam.Unlock()
	db.attender.Lock()
	defer db.attender.Unlock()

	for id, e := range j.exams {
		if e == nil {
			delete(db.exam.table, id)
		} else {
			db.exam.table[id] = e
		}
	}
	for id, as := range j.attenders {
		if as == nil {
			delete(db.attender.table, id)
		} else {
			db.attender.table[id] = as
		}
	}
}
