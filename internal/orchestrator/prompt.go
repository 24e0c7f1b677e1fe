package orchestrator

import (
	"fmt"
	"strings"

	"github.com/archifusion/api/internal/model"
)

// PromptFromVisual renders an analysis as plain text that both the
// inference adapter and the heuristic analyzer understand. Room counts are
// written as "2 bedrooms" so the analyzer's count extraction picks them up.
func PromptFromVisual(va *model.VisualAnalysis) string {
	if va.IsEmpty() {
		return ""
	}

	var b strings.Builder
	b.WriteString("Building inferred from an image.")
	if d := strings.TrimSpace(va.Description); d != "" {
		fmt.Fprintf(&b, "\nDescription: %s", d)
	}
	if len(va.Tags) > 0 {
		fmt.Fprintf(&b, "\nTags: %s", strings.Join(va.Tags, ", "))
	}
	if rooms := roomSummary(va.DetectedRooms); rooms != "" {
		fmt.Fprintf(&b, "\nRooms: %s", rooms)
	}
	if va.Style != "" {
		fmt.Fprintf(&b, "\nStyle: %s", va.Style)
	}
	return b.String()
}

// BuildPrompt joins the textual inputs with the visual summary.
func BuildPrompt(in *model.DecodedInput, va *model.VisualAnalysis) string {
	parts := make([]string, 0, 2)
	if t := in.CombinedText(); t != "" {
		parts = append(parts, t)
	}
	if v := PromptFromVisual(va); v != "" {
		parts = append(parts, v)
	}
	return strings.Join(parts, "\n\n")
}

func roomSummary(rooms []model.DetectedRoom) string {
	counts := make(map[model.RoomType]int)
	var order []model.RoomType
	for _, r := range rooms {
		t := r.Type
		if t == "" {
			t = model.ParseRoomType(r.Name)
		}
		if t == "" {
			continue
		}
		if counts[t] == 0 {
			order = append(order, t)
		}
		counts[t]++
	}

	parts := make([]string, 0, len(order))
	for _, t := range order {
		label := strings.ToLower(model.RoomDisplayName(t))
		if counts[t] > 1 {
			label += "s"
		}
		parts = append(parts, fmt.Sprintf("%d %s", counts[t], label))
	}
	return strings.Join(parts, ", ")
}
