package cmn

import (
	"sync"
	ratomic "sync/atomic"

	"github.com/pkg/errors"
)

// Errs collects up to maxErrs distinct errors, deduplicating by message.
// Adapted from the teacher's cos.Errs: used by modelparams patch-merge
// validation, where several fields in a single patch document can each
// fail independently and we want to report all of them at once.
type Errs struct {
	errs []error
	cnt  int64
	mu   sync.Mutex
}

const maxErrs = 4

func (e *Errs) Add(err error) {
	if err == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, added := range e.errs {
		if added.Error() == err.Error() {
			return
		}
	}
	if len(e.errs) < maxErrs {
		e.errs = append(e.errs, err)
		ratomic.StoreInt64(&e.cnt, int64(len(e.errs)))
	}
}

func (e *Errs) Cnt() int { return int(ratomic.LoadInt64(&e.cnt)) }

// JoinErr returns the combined error, or nil if nothing was added.
func (e *Errs) JoinErr() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.errs) == 0 {
		return nil
	}
	return errors.WithStack(joinErrors(e.errs))
}

func joinErrors(errs []error) error {
	if len(errs) == 1 {
		return errs[0]
	}
	msgs := make([]string, len(errs))
	for i, err := range errs {
		msgs[i] = err.Error()
	}
	return NewBadParameter("%d errors: %v", len(errs), msgs)
}
