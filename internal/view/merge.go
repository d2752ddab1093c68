package view

import (
	"sort"

	"github.com/google/uuid"

	"careportal/internal/domain/message"
)

// Merge folds an authoritative snapshot into the locally held ordered list
// and returns the merged list plus the messages that were newly inserted.
//
// The function is pure and idempotent: it keys on message id, never trusts
// arrival order, and recomputes position from (created_at, id). Applying
// the same snapshot twice, or snapshots out of arrival order, converges to
// the same result. A known id never moves and its delivery status only
// advances; an unknown id is inserted at its canonical position. Local
// messages absent from the snapshot are kept: a freshly confirmed send may
// lawfully race a snapshot that predates it.
func Merge(local, snapshot []message.Message) (merged, added []message.Message) {
	merged = make([]message.Message, len(local))
	copy(merged, local)

	index := make(map[uuid.UUID]int, len(merged))
	for i, m := range merged {
		index[m.ID] = i
	}

	for _, m := range snapshot {
		if i, ok := index[m.ID]; ok {
			merged[i].Status = message.Later(merged[i].Status, m.Status)
			continue
		}
		index[m.ID] = len(merged)
		merged = append(merged, m)
		added = append(added, m)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return message.Less(merged[i], merged[j])
	})
	return merged, added
}
