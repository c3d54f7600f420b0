package page

// Strategy is one ordered way of finding the chat input on the page.
type Strategy struct {
	Name     string `json:"name"`
	Selector string `json:"selector"`
}

// Candidate is one element the agent reported for a strategy scan. Token is
// the stable per-element identity the agent stamps on first sight; it
// survives rect and value changes but not element replacement.
type Candidate struct {
	Strategy string  `json:"strategy"`
	Token    string  `json:"token"`
	Rect     Rect    `json:"rect"`
	Value    string  `json:"value"`
	Visible  bool    `json:"visible"`
	Editable bool    `json:"editable"`
}

// LocatedInput is the locator's current pick. Generation bumps every time
// identity changes so downstream consumers can tell "same element moved"
// from "different element found".
type LocatedInput struct {
	Token      string
	Strategy   string
	Selector   string
	Rect       Rect
	Value      string
	Generation int
}

// Locator folds agent candidate reports into at most one tracked input.
// It is pure state: the session feeds it reports and routes its decisions
// to the control machine and trigger.
type Locator struct {
	current *LocatedInput
	gen     int
}

// NewLocator starts with nothing located.
func NewLocator() *Locator { return &Locator{} }

// Current reports the tracked input, nil when none was found.
func (l *Locator) Current() *LocatedInput { return l.current }

// Evaluate picks the best candidate and reconciles it against the tracked
// input. It reports the (possibly nil) tracked input after the report and
// whether identity changed, which is what forces exactly one reposition.
func (l *Locator) Evaluate(cands []Candidate) (loc *LocatedInput, changed bool) {
	best := pickBest(cands)

	if best == nil {
		if l.current == nil {
			return nil, false
		}
		// Tracked element vanished.
		l.current = nil
		return nil, true
	}

	if l.current != nil && l.current.Token == best.Token {
		// Same element. Track movement and edits in place without a new
		// generation; callers treat this as "update rect", not "relocate".
		moved := l.current.Rect != best.Rect
		l.current.Rect = best.Rect
		l.current.Value = best.Value
		l.current.Strategy = best.Strategy
		return l.current, moved
	}

	l.gen++
	l.current = &LocatedInput{
		Token:      best.Token,
		Strategy:   best.Strategy,
		Selector:   selectorFor(best.Strategy),
		Rect:       best.Rect,
		Value:      best.Value,
		Generation: l.gen,
	}
	return l.current, true
}

// Reset drops the tracked input, used on navigation.
func (l *Locator) Reset() {
	l.current = nil
}

// pickBest filters to usable candidates and returns the one from the
// earliest strategy. Ties within a strategy keep report order.
func pickBest(cands []Candidate) *Candidate {
	var best *Candidate
	bestRank := len(Strategies) + 1
	for i := range cands {
		c := &cands[i]
		if !usable(c) {
			continue
		}
		if rank := StrategyIndex(c.Strategy); rank < bestRank {
			best = c
			bestRank = rank
		}
	}
	return best
}

// usable rejects hidden, non-editable, and collapsed candidates.
func usable(c *Candidate) bool {
	if !c.Visible || !c.Editable || c.Token == "" {
		return false
	}
	return c.Rect.W >= MinTrackedDim && c.Rect.H >= MinTrackedDim
}

func selectorFor(strategy string) string {
	for _, s := range Strategies {
		if s.Name == strategy {
			return s.Selector
		}
	}
	return ""
}
