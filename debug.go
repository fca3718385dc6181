package ldtable

import (
	"errors"
	"fmt"
	"io"

	"github.com/davecgh/go-spew/spew"
)

// Dump writes a diagnostic snapshot of the table's live slots and posting
// lists to w. Intended for interactive debugging, not for consumption by
// other code.
func (t *Table) Dump(w io.Writer) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	fmt.Fprintf(w, "table %s (objectMode=%v, epoch=%d, live=%d)\n", t.id, t.objectMode, t.epoch, t.store.len())
	t.store.iterLive(func(id SlotID, record any) bool {
		fmt.Fprintf(w, "slot %d: %s\n", id, spew.Sdump(record))
		return true
	})
	for _, attr := range t.idx.knownAttributes() {
		fmt.Fprintf(w, "attr %q: %s\n", attr, spew.Sdump(t.idx.posting[attr]))
	}
}

// PrintErrChain walks err's wrapped chain, printing each layer's message.
// Grounded on the same diagnostic need as spew-based error dumping: making
// a sentinel buried under several fmt.Errorf wraps visible at a glance.
func PrintErrChain(w io.Writer, err error) {
	for err != nil {
		fmt.Fprintln(w, err.Error())
		err = errors.Unwrap(err)
	}
}
