package manager

import (
	"context"
	"reflect"

	"gqm/schema"
)

type journalKey struct{}

type assigned struct {
	bean     *schema.Bean
	ptr      reflect.Value
	previous int64
}

// idJournal 记录保存点内写到 bean 上的标识，回滚保存点时恢复
type idJournal struct {
	entries []assigned
}

func withJournal(ctx context.Context) (context.Context, *idJournal) {
	j := &idJournal{}
	return context.WithValue(ctx, journalKey{}, j), j
}

func journalFrom(ctx context.Context) *idJournal {
	j, _ := ctx.Value(journalKey{}).(*idJournal)
	return j
}

// assignIdentifier 写入标识，并记入 ctx 中最近的日志
func (e *engine) assignIdentifier(ctx context.Context, ptr reflect.Value, id int64) {
	if j := journalFrom(ctx); j != nil {
		j.entries = append(j.entries, assigned{bean: e.bean, ptr: ptr, previous: e.identifierOf(ptr)})
	}
	e.bean.SetIdentifier(ptr, id)
}

// revert 逆序恢复标识
func (j *idJournal) revert() {
	for i := len(j.entries) - 1; i >= 0; i-- {
		a := j.entries[i]
		a.bean.SetIdentifier(a.ptr, a.previous)
	}
	j.entries = nil
}

// promote 保存点释放后，记录并入外层日志，外层回滚时一并恢复
func (j *idJournal) promote(outer context.Context) {
	if parent := journalFrom(outer); parent != nil {
		parent.entries = append(parent.entries, j.entries...)
	}
	j.entries = nil
}
