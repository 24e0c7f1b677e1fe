package model

import (
	"fmt"
	"strings"
)

// InputBundle is the multimodal request body for a generation job.
// Images and audio are base64 or data URLs.
type InputBundle struct {
	Text             string `json:"text,omitempty" validate:"max=8000"`
	SketchImage      string `json:"sketchImage,omitempty"`
	SpeechTranscript string `json:"speechTranscript,omitempty" validate:"max=8000"`
	PhotoImage       string `json:"photoImage,omitempty"`
	SpeechAudio      string `json:"speechAudio,omitempty"`
}

// HasAnyModality reports whether at least one input is populated.
func (b *InputBundle) HasAnyModality() bool {
	return strings.TrimSpace(b.Text) != "" ||
		strings.TrimSpace(b.SketchImage) != "" ||
		strings.TrimSpace(b.SpeechTranscript) != "" ||
		strings.TrimSpace(b.PhotoImage) != "" ||
		strings.TrimSpace(b.SpeechAudio) != ""
}

// Media is a decoded binary input.
type Media struct {
	Data     []byte
	MIMEType string
}

// DecodedInput is an InputBundle after validation and base64 decoding.
type DecodedInput struct {
	Text             string
	SpeechTranscript string
	Sketch           *Media
	Photo            *Media
	SpeechAudio      *Media
}

// HasText reports whether a textual modality is available or obtainable.
func (in *DecodedInput) HasText() bool {
	return strings.TrimSpace(in.Text) != "" ||
		strings.TrimSpace(in.SpeechTranscript) != "" ||
		in.SpeechAudio != nil
}

// HasVisual reports whether a sketch or photo was supplied.
func (in *DecodedInput) HasVisual() bool {
	return in.Sketch != nil || in.Photo != nil
}

// CombinedText joins the typed text and the transcript.
func (in *DecodedInput) CombinedText() string {
	parts := make([]string, 0, 2)
	if t := strings.TrimSpace(in.Text); t != "" {
		parts = append(parts, t)
	}
	if t := strings.TrimSpace(in.SpeechTranscript); t != "" {
		parts = append(parts, t)
	}
	return strings.Join(parts, "\n")
}

// RoomRequirement is one requested room.
type RoomRequirement struct {
	Type RoomType `json:"type"`
	Name string   `json:"name"`
}

// RequirementSet is the modality-agnostic description of the building.
type RequirementSet struct {
	BuildingType BuildingType      `json:"buildingType"`
	Rooms        []RoomRequirement `json:"rooms"`
	Style        Style             `json:"style"`
	SizeClass    SizeClass         `json:"sizeClass"`
	FloorCount   int               `json:"floorCount"`
	Source       RequirementSource `json:"source"`
}

// Normalize fills defaults, clamps the floor count and makes room names
// unique so the set is safe to synthesize.
func (r *RequirementSet) Normalize() {
	r.BuildingType = ParseBuildingType(string(r.BuildingType))
	if s, ok := ParseStyle(string(r.Style)); ok {
		r.Style = s
	} else {
		r.Style = StyleModern
	}
	r.SizeClass = ParseSizeClass(string(r.SizeClass))
	if r.FloorCount < 1 {
		r.FloorCount = 1
	}
	if r.FloorCount > 10 {
		r.FloorCount = 10
	}

	used := make(map[string]bool, len(r.Rooms))
	for i := range r.Rooms {
		room := &r.Rooms[i]
		if room.Type == "" {
			room.Type = ParseRoomType(room.Name)
		}
		if strings.TrimSpace(room.Name) == "" {
			room.Name = RoomDisplayName(room.Type)
		}
		room.Name = UniqueName(room.Name, used)
	}
}

// UniqueName returns base, or base suffixed with the first free counter,
// and marks the result as used.
func UniqueName(base string, used map[string]bool) string {
	name := base
	for n := 2; used[name]; n++ {
		name = fmt.Sprintf("%s %d", base, n)
	}
	used[name] = true
	return name
}

// BoundingBox is a floor-plane rectangle in metres. Y maps to the model's z axis.
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// DetectedRoom is a room found by image analysis.
type DetectedRoom struct {
	Type        RoomType    `json:"type"`
	Name        string      `json:"name,omitempty"`
	BoundingBox BoundingBox `json:"boundingBox"`
	Confidence  float64     `json:"confidence"`
}

// VisualAnalysis is the normalized output of the image-analysis service.
type VisualAnalysis struct {
	Description   string         `json:"description"`
	Tags          []string       `json:"tags"`
	DetectedRooms []DetectedRoom `json:"detectedRooms"`
	Style         Style          `json:"style,omitempty"`
}

// IsEmpty reports whether the analysis carries no usable evidence.
func (v *VisualAnalysis) IsEmpty() bool {
	return v == nil || (len(v.DetectedRooms) == 0 && strings.TrimSpace(v.Description) == "" && len(v.Tags) == 0)
}

// Room is a placed room. Coordinates are the minimum corner; height is along y.
type Room struct {
	Name        string   `json:"name"`
	Type        RoomType `json:"type"`
	Width       float64  `json:"width"`
	Length      float64  `json:"length"`
	Height      float64  `json:"height"`
	X           float64  `json:"x"`
	Y           float64  `json:"y"`
	Z           float64  `json:"z"`
	ConnectedTo []string `json:"connectedTo"`
}

// Window sits on one wall of a room; Position is normalized to the wall span.
type Window struct {
	Room     string  `json:"room"`
	Wall     Wall    `json:"wall"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	Position float64 `json:"position"`
}

// Door links two rooms.
type Door struct {
	From   string  `json:"from"`
	To     string  `json:"to"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// ArchitecturalModel is the generated building.
type ArchitecturalModel struct {
	Rooms      []Room   `json:"rooms"`
	Windows    []Window `json:"windows"`
	Doors      []Door   `json:"doors"`
	Style      Style    `json:"style"`
	FloorCount int      `json:"floorCount"`
}

// Validate checks the structural invariants of the model.
func (m *ArchitecturalModel) Validate() error {
	names := make(map[string]struct{}, len(m.Rooms))
	for _, r := range m.Rooms {
		if r.Name == "" {
			return fmt.Errorf("room with empty name")
		}
		if _, dup := names[r.Name]; dup {
			return fmt.Errorf("duplicate room name %q", r.Name)
		}
		if r.Width <= 0 || r.Length <= 0 || r.Height <= 0 {
			return fmt.Errorf("room %q has non-positive dimensions", r.Name)
		}
		names[r.Name] = struct{}{}
	}
	for _, r := range m.Rooms {
		for _, c := range r.ConnectedTo {
			if _, ok := names[c]; !ok {
				return fmt.Errorf("room %q connected to unknown room %q", r.Name, c)
			}
		}
	}
	for _, w := range m.Windows {
		if _, ok := names[w.Room]; !ok {
			return fmt.Errorf("window references unknown room %q", w.Room)
		}
		if w.Position < 0 || w.Position > 1 {
			return fmt.Errorf("window in %q has position %.2f outside [0,1]", w.Room, w.Position)
		}
	}
	for _, d := range m.Doors {
		if _, ok := names[d.From]; !ok {
			return fmt.Errorf("door references unknown room %q", d.From)
		}
		if _, ok := names[d.To]; !ok {
			return fmt.Errorf("door references unknown room %q", d.To)
		}
	}
	for i := range m.Rooms {
		for j := i + 1; j < len(m.Rooms); j++ {
			if Overlaps(m.Rooms[i], m.Rooms[j]) {
				return fmt.Errorf("rooms %q and %q overlap", m.Rooms[i].Name, m.Rooms[j].Name)
			}
		}
	}
	return nil
}

// Overlaps reports whether two rooms on the same level share floor area.
// Touching edges do not count.
func Overlaps(a, b Room) bool {
	if a.Y != b.Y {
		return false
	}
	return a.X < b.X+b.Width && b.X < a.X+a.Width &&
		a.Z < b.Z+b.Length && b.Z < a.Z+a.Length
}

// QuickRequest is the body of the synchronous heuristic endpoint.
type QuickRequest struct {
	Prompt string `json:"prompt" validate:"required,max=4000"`
}

// QuickResponse is returned by the synchronous heuristic endpoint.
type QuickResponse struct {
	Requirements *RequirementSet     `json:"requirements"`
	Model        *ArchitecturalModel `json:"model"`
}
