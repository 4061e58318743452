package render

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/jonathan/ideaforge/internal/gateway"
	"github.com/jonathan/ideaforge/internal/types"
)

// StoryboardBackend renders the video script as an SVG storyboard, one panel
// per script line. It needs no external service and is used for offline runs.
type StoryboardBackend struct{}

// Call implements gateway.Backend.
func (StoryboardBackend) Call(_ context.Context, op string, payload []byte) ([]byte, error) {
	if op != gateway.OpRenderMedia {
		return nil, &types.FatalError{Op: op, Err: errors.New("operation not supported by storyboard backend")}
	}
	var req gateway.MediaRequest
	if err := gateway.DecodePayload(op, payload, &req); err != nil {
		return nil, err
	}

	var scenes []string
	for _, line := range strings.Split(req.Script, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			scenes = append(scenes, line)
		}
	}
	if len(scenes) == 0 {
		return nil, &types.FatalError{Op: op, Err: errors.New("script is empty")}
	}

	return json.Marshal(gateway.MediaResponse{ContentType: "image/svg+xml", Data: []byte(storyboardSVG(req.Title, scenes))})
}

func storyboardSVG(title string, scenes []string) string {
	const panelHeight = 90
	height := 60 + panelHeight*len(scenes)

	var sb strings.Builder
	fmt.Fprintf(&sb, `<svg xmlns="http://www.w3.org/2000/svg" width="800" height="%d">`, height)
	fmt.Fprintf(&sb, `<text x="20" y="36" font-size="24" font-family="sans-serif">%s</text>`, html.EscapeString(title))
	for i, scene := range scenes {
		y := 60 + i*panelHeight
		fmt.Fprintf(&sb, `<rect x="20" y="%d" width="760" height="%d" fill="none" stroke="#333"/>`, y, panelHeight-10)
		fmt.Fprintf(&sb, `<text x="36" y="%d" font-size="16" font-family="sans-serif">%s</text>`, y+45, html.EscapeString(scene))
	}
	sb.WriteString(`</svg>`)
	return sb.String()
}
