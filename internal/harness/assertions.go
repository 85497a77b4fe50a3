package harness

import "fmt"

// EvaluateAssertions checks every assertion against the run result and
// returns one message per failure. An empty slice means the scenario passed.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var failures []string
	for i, a := range assertions {
		if msg := evaluate(result, &a); msg != "" {
			failures = append(failures, fmt.Sprintf("assertions[%d]: %s", i, msg))
		}
	}
	return failures
}

func evaluate(result *Result, a *Assertion) string {
	doc, ok := result.Docs[a.Doc]
	if !ok || doc == nil {
		return fmt.Sprintf("document %s not found in result", a.Doc)
	}

	switch a.Type {
	case AssertMuted:
		if doc.Muted == nil {
			return fmt.Sprintf("expected %s to be muted", a.Doc)
		}

	case AssertUnmuted:
		if doc.Muted != nil {
			return fmt.Sprintf("expected %s to be unmuted, muted at %s", a.Doc, doc.Muted)
		}

	case AssertTaskMessage:
		for _, task := range doc.Tasks {
			for _, msg := range task.Messages {
				if msg.Message == a.Message {
					return ""
				}
			}
		}
		return fmt.Sprintf("no task on %s carries message %q", a.Doc, a.Message)

	case AssertErrorCode:
		for _, e := range doc.Errors {
			if e.Code == a.Code {
				return ""
			}
		}
		return fmt.Sprintf("no error on %s carries code %q", a.Doc, a.Code)

	case AssertHistoryCount:
		info := result.Infos[a.Doc]
		got := 0
		if info != nil {
			got = len(info.MutingHistory)
		}
		if got != a.Count {
			return fmt.Sprintf("expected %d history entries on %s, got %d", a.Count, a.Doc, got)
		}
	}
	return ""
}
