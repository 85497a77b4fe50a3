package record

import (
	"fmt"
	"strconv"
	"strings"
)

// NextRev computes the revision string the document will carry after its
// next save. Revisions are "<generation>-<opaque>"; only the generation is
// meaningful here. The ledger stamps entries with the upcoming revision so
// redelivery of the saved document is recognised as already processed.
func NextRev(rev string) string {
	return fmt.Sprintf("%d", RevGeneration(rev)+1)
}

// RevGeneration extracts the numeric generation from a revision string.
// Empty and malformed revisions are generation 0.
func RevGeneration(rev string) int64 {
	if rev == "" {
		return 0
	}
	s := rev
	if i := strings.IndexByte(rev, '-'); i >= 0 {
		s = rev[:i]
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
