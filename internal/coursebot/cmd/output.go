package cmd

import (
	"fmt"
	"io"

	"github.com/cortexai/coursebot/internal/rag"
)

func writeAnswer(w io.Writer, res *rag.Result) {
	fmt.Fprintln(w, res.Answer)
	if len(res.Sources) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Sources:")
		for i, s := range res.Sources {
			if s.URL != nil {
				fmt.Fprintf(w, "  %d. %s <%s>\n", i+1, s.Text, *s.URL)
			} else {
				fmt.Fprintf(w, "  %d. %s\n", i+1, s.Text)
			}
		}
	}
	if res.Fallback {
		fmt.Fprintln(w, "\n(answered with a single tool round)")
	}
}
