package types

import "time"

// Competitor is one entry of the competitive landscape
type Competitor struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Positioning string  `json:"positioning,omitempty"`
	Similarity  float64 `json:"similarity"`
}

// MarketAnalysis is the output of context enrichment
type MarketAnalysis struct {
	Summary       string       `json:"summary"`
	Competitors   []Competitor `json:"competitors"`
	Opportunities []string     `json:"opportunities"`
	Risks         []string     `json:"risks,omitempty"`
}

// OutreachMessage is a single drafted message for one audience
type OutreachMessage struct {
	Audience string `json:"audience"`
	Subject  string `json:"subject"`
	Body     string `json:"body"`
}

// QualityCheck is one line of the validation report
type QualityCheck struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// QualityReport is produced by the final validation step
type QualityReport struct {
	Checks  []QualityCheck `json:"checks"`
	Summary string         `json:"summary,omitempty"`
}

// Passed returns how many checks passed.
func (q *QualityReport) Passed() int {
	n := 0
	for _, c := range q.Checks {
		if c.Passed {
			n++
		}
	}
	return n
}

// LogLevel is the severity of a run state log entry
type LogLevel string

// Log level constants
const (
	LogLevelWarning LogLevel = "warning"
	LogLevelError   LogLevel = "error"
)

// LogEntry is a warning or error noted by a step while producing state
type LogEntry struct {
	Step    string    `json:"step"`
	Level   LogLevel  `json:"level"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// RunState is the payload threaded through the steps of a run. Steps receive a
// value and return a new one; the previous snapshot is never modified.
type RunState struct {
	// Request fields
	ProjectID   string   `json:"project_id"`
	Sector      string   `json:"sector"`
	Idea        string   `json:"idea"`
	Constraints []string `json:"constraints,omitempty"`

	// Produced fields
	Goals            []string          `json:"goals,omitempty"`
	Keywords         []string          `json:"keywords,omitempty"`
	MarketAnalysis   *MarketAnalysis   `json:"market_analysis,omitempty"`
	Document         string            `json:"document,omitempty"`
	Wireframe        string            `json:"wireframe,omitempty"`
	PrototypeLocator string            `json:"prototype_locator,omitempty"`
	VideoLocator     string            `json:"video_locator,omitempty"`
	Outreach         []OutreachMessage `json:"outreach,omitempty"`
	Report           *QualityReport    `json:"report,omitempty"`

	Log []LogEntry `json:"log,omitempty"`
}

// Clone returns a deep copy of the state.
func (s RunState) Clone() RunState {
	out := s
	out.Constraints = cloneStrings(s.Constraints)
	out.Goals = cloneStrings(s.Goals)
	out.Keywords = cloneStrings(s.Keywords)
	out.Outreach = append([]OutreachMessage(nil), s.Outreach...)
	out.Log = append([]LogEntry(nil), s.Log...)
	if s.MarketAnalysis != nil {
		ma := *s.MarketAnalysis
		ma.Competitors = append([]Competitor(nil), s.MarketAnalysis.Competitors...)
		ma.Opportunities = cloneStrings(s.MarketAnalysis.Opportunities)
		ma.Risks = cloneStrings(s.MarketAnalysis.Risks)
		out.MarketAnalysis = &ma
	}
	if s.Report != nil {
		r := *s.Report
		r.Checks = append([]QualityCheck(nil), s.Report.Checks...)
		out.Report = &r
	}
	return out
}

// Warn returns a copy of the state with a warning appended to its log.
func (s RunState) Warn(step, message string) RunState {
	out := s.Clone()
	out.Log = append(out.Log, LogEntry{Step: step, Level: LogLevelWarning, Message: message, At: time.Now().UTC()})
	return out
}

// InitialState builds the state a run starts from.
func InitialState(req SubmitRequest) RunState {
	return RunState{
		ProjectID:   req.ProjectID,
		Sector:      req.Sector,
		Idea:        req.Idea,
		Constraints: cloneStrings(req.Constraints),
	}
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}
