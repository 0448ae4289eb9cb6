package tools

import "sync"

// CitationLedger collects the citations produced while answering one query.
// Each tool keeps only the list from its latest execution that cited anything.
type CitationLedger struct {
	mu     sync.Mutex
	order  []string
	byTool map[string][]Citation
}

// Record replaces the citations stored for toolName. Empty lists are ignored
// so a later no-result call does not erase earlier sources.
func (l *CitationLedger) Record(toolName string, citations []Citation) {
	if len(citations) == 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	cp := make([]Citation, len(citations))
	copy(cp, citations)
	l.byTool[toolName] = cp
}

// Collect returns the first non-empty list in tool registration order.
func (l *CitationLedger) Collect() []Citation {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, name := range l.order {
		if c := l.byTool[name]; len(c) > 0 {
			out := make([]Citation, len(c))
			copy(out, c)
			return out
		}
	}
	return nil
}

// Clear forgets every recorded citation.
func (l *CitationLedger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.byTool = make(map[string][]Citation)
}
