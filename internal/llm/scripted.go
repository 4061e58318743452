package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"math"
	"strings"

	"github.com/jonathan/ideaforge/internal/gateway"
	"github.com/jonathan/ideaforge/internal/types"
)

// scriptedDims is the width of the offline embedding vectors
const scriptedDims = 64

// ScriptedBackend is a deterministic, offline stand-in for the generation
// dependency. It answers by task name so local dry runs and tests can drive the
// full pipeline without network access.
type ScriptedBackend struct{}

// NewScriptedBackend creates an offline generation backend
func NewScriptedBackend() *ScriptedBackend {
	return &ScriptedBackend{}
}

// Operations lists the gateway operations this backend serves
func (s *ScriptedBackend) Operations() []string {
	return []string{gateway.OpGenerateText, gateway.OpGenerateJSON, gateway.OpEmbed}
}

// Call implements gateway.Backend.
func (s *ScriptedBackend) Call(_ context.Context, op string, payload []byte) ([]byte, error) {
	switch op {
	case gateway.OpGenerateText, gateway.OpGenerateJSON:
		var req gateway.TextRequest
		if err := gateway.DecodePayload(op, payload, &req); err != nil {
			return nil, err
		}
		text, ok := scriptedOutputs[req.Task]
		if !ok {
			return nil, &types.FatalError{Op: op, Err: fmt.Errorf("no scripted output for task %q", req.Task)}
		}
		return json.Marshal(gateway.TextResponse{Text: text})

	case gateway.OpEmbed:
		var req gateway.EmbedRequest
		if err := gateway.DecodePayload(op, payload, &req); err != nil {
			return nil, err
		}
		vectors := make([][]float32, len(req.Texts))
		for i, text := range req.Texts {
			vectors[i] = hashEmbedding(text)
		}
		return json.Marshal(gateway.EmbedResponse{Vectors: vectors})

	default:
		return nil, &types.FatalError{Op: op, Err: fmt.Errorf("operation not supported by scripted backend")}
	}
}

// hashEmbedding is a normalised bag-of-words vector: texts sharing words score
// a higher cosine similarity, which is all the offline pipeline needs.
func hashEmbedding(text string) []float32 {
	vec := make([]float32, scriptedDims)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,;:!?\"'()")
		if word == "" {
			continue
		}
		h := fnv.New32a()
		_, _ = h.Write([]byte(word))
		vec[h.Sum32()%scriptedDims]++
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}

var scriptedOutputs = map[string]string{
	"goals": `{
  "goals": [
    "Reach 500 weekly active users within three months of launch",
    "Cut the time to complete the core workflow by half compared to spreadsheets",
    "Convert 5% of trial users into paying customers"
  ],
  "keywords": ["workflow automation", "small clinics", "scheduling", "patient intake"]
}`,
	"market_analysis": `{
  "summary": "The market is served by broad practice management suites that are expensive and slow to adopt. Smaller teams stitch together spreadsheets and messaging apps, leaving room for a focused tool.",
  "competitors": [
    {"name": "SuiteCare", "description": "All-in-one practice management suite for large clinics with scheduling and billing", "positioning": "enterprise"},
    {"name": "QuickBook Health", "description": "Simple online booking widget for small clinics and patient scheduling", "positioning": "self-serve"},
    {"name": "FormFlow", "description": "Generic form builder used for patient intake questionnaires", "positioning": "horizontal"}
  ],
  "opportunities": ["Onboarding in under ten minutes", "Pricing for teams of fewer than ten people"],
  "risks": ["Incumbents may bundle a similar feature"]
}`,
	"document": `# Product Requirements

## Problem
Small teams juggle spreadsheets, chat threads and paper forms to run a workflow that should take minutes. Errors creep in at every hand-off and nobody owns the whole picture.

## Users
Primary users are coordinators who run the workflow every day. Secondary users are managers who need a weekly view of throughput and bottlenecks.

## Requirements
1. Capture requests through a single intake form with validation.
2. Route each request to an owner and track its status until done.
3. Send reminders before deadlines and summarise overdue items daily.
4. Export a weekly report for managers.

## Success Metrics
Weekly active users, median time to complete a request, and trial-to-paid conversion.

## Out of Scope
Billing integrations and native mobile apps are deferred to a later release.
`,
	"wireframe": `<!DOCTYPE html>
<html>
<head><title>Wireframe</title></head>
<body>
  <header data-region="header"><h1>Product</h1><nav data-region="nav"><a href="#features">Features</a><a href="#pricing">Pricing</a></nav></header>
  <main data-region="main">
    <section id="hero" data-region="hero"><h2>Run your workflow in minutes</h2><button>Start free trial</button></section>
    <section id="features" data-region="features"><h2>Features</h2><ul><li>Intake</li><li>Routing</li><li>Reminders</li></ul></section>
    <section id="pricing" data-region="pricing"><h2>Pricing</h2></section>
  </main>
  <footer data-region="footer">Contact</footer>
</body>
</html>`,
	"prototype": `<!DOCTYPE html>
<html>
<head><title>Prototype</title><style>body{font-family:sans-serif}</style></head>
<body>
  <header><h1>Product</h1></header>
  <main>
    <form id="intake">
      <label>Request <input name="request" required></label>
      <button type="submit">Submit</button>
    </form>
    <ul id="queue"></ul>
  </main>
  <script>
    document.getElementById('intake').addEventListener('submit', function (e) {
      e.preventDefault();
      var li = document.createElement('li');
      li.textContent = e.target.request.value;
      document.getElementById('queue').appendChild(li);
    });
  </script>
</body>
</html>`,
	"video_script": `Scene 1: A coordinator drowning in spreadsheets.
Scene 2: The same coordinator submits a request through the new intake form.
Scene 3: The request is routed, tracked and completed with a reminder on time.
Closing: Start your free trial today.`,
	"outreach": `{
  "messages": [
    {"audience": "early adopters", "subject": "Run your workflow in minutes", "body": "We built a focused tool for small teams who are tired of juggling spreadsheets and chat threads. Sign up for early access and help shape the roadmap."},
    {"audience": "investors", "subject": "A focused workflow tool for an underserved segment", "body": "Small teams are poorly served by expensive suites. We are launching a product that onboards in minutes and converts on a simple per-seat price. We would love to share early traction."},
    {"audience": "partners", "subject": "Partnering on workflow automation for small teams", "body": "Our product complements your offering by covering intake and routing for small teams. Let us explore a referral or integration partnership over a short call."}
  ]
}`,
}
