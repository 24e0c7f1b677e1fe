package model

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Building types
type BuildingType string

const (
	BuildingResidential BuildingType = "residential"
	BuildingCommercial  BuildingType = "commercial"
	BuildingHospitality BuildingType = "hospitality"
)

// Room types
type RoomType string

const (
	RoomBedroom   RoomType = "bedroom"
	RoomBathroom  RoomType = "bathroom"
	RoomKitchen   RoomType = "kitchen"
	RoomLiving    RoomType = "living"
	RoomDining    RoomType = "dining"
	RoomOffice    RoomType = "office"
	RoomGarage    RoomType = "garage"
	RoomBasement  RoomType = "basement"
	RoomAttic     RoomType = "attic"
	RoomUtility   RoomType = "utility"
	RoomMeeting   RoomType = "meeting"
	RoomReception RoomType = "reception"
)

var ValidRoomTypes = []RoomType{
	RoomBedroom, RoomBathroom, RoomKitchen, RoomLiving, RoomDining,
	RoomOffice, RoomGarage, RoomBasement, RoomAttic, RoomUtility,
	RoomMeeting, RoomReception,
}

// Style types
type Style string

const (
	StyleModern      Style = "modern"
	StyleTraditional Style = "traditional"
	StyleIndustrial  Style = "industrial"
)

// Size classes
type SizeClass string

const (
	SizeSmall  SizeClass = "small"
	SizeMedium SizeClass = "medium"
	SizeLarge  SizeClass = "large"
)

// Walls
type Wall string

const (
	WallNorth Wall = "north"
	WallSouth Wall = "south"
	WallEast  Wall = "east"
	WallWest  Wall = "west"
)

// Requirement sources
type RequirementSource string

const (
	SourceHeuristic RequirementSource = "heuristic"
	SourceInference RequirementSource = "inference"
)

// Processing strategies
type Strategy string

const (
	StrategyTextOnly   Strategy = "text_only"
	StrategyParallel   Strategy = "parallel"
	StrategyVisualOnly Strategy = "visual_only"
)

// Job status
type JobStatus string

const (
	JobStatusQueued          JobStatus = "queued"
	JobStatusProcessing      JobStatus = "processing"
	JobStatusAnalyzingInputs JobStatus = "analyzing_inputs"
	JobStatusGeneratingModel JobStatus = "generating_model"
	JobStatusCompleted       JobStatus = "completed"
	JobStatusFailed          JobStatus = "failed"
)

// IsTerminal reports whether no further transitions are allowed.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

var roomAliases = []struct {
	keyword string
	room    RoomType
}{
	{"bedroom", RoomBedroom},
	{"bath", RoomBathroom},
	{"toilet", RoomBathroom},
	{"restroom", RoomBathroom},
	{"washroom", RoomBathroom},
	{"kitchen", RoomKitchen},
	{"living", RoomLiving},
	{"lounge", RoomLiving},
	{"dining", RoomDining},
	{"office", RoomOffice},
	{"study", RoomOffice},
	{"garage", RoomGarage},
	{"basement", RoomBasement},
	{"cellar", RoomBasement},
	{"attic", RoomAttic},
	{"utility", RoomUtility},
	{"laundry", RoomUtility},
	{"meeting", RoomMeeting},
	{"conference", RoomMeeting},
	{"reception", RoomReception},
	{"lobby", RoomReception},
}

// ParseRoomType maps a free-form label such as "Master Bedroom" to a known
// room type, or returns the normalized label unchanged.
func ParseRoomType(label string) RoomType {
	l := normalizeLabel(label)
	for _, a := range roomAliases {
		if strings.Contains(l, a.keyword) {
			return a.room
		}
	}
	return RoomType(l)
}

// ParseStyle returns the style and whether it is one of the known values.
func ParseStyle(label string) (Style, bool) {
	s := Style(normalizeLabel(label))
	switch s {
	case StyleModern, StyleTraditional, StyleIndustrial:
		return s, true
	}
	return "", false
}

// ParseSizeClass falls back to medium for anything unknown.
func ParseSizeClass(label string) SizeClass {
	s := SizeClass(normalizeLabel(label))
	switch s {
	case SizeSmall, SizeMedium, SizeLarge:
		return s
	}
	return SizeMedium
}

// ParseBuildingType falls back to residential for anything unknown.
func ParseBuildingType(label string) BuildingType {
	b := BuildingType(normalizeLabel(label))
	switch b {
	case BuildingResidential, BuildingCommercial, BuildingHospitality:
		return b
	}
	return BuildingResidential
}

func normalizeLabel(label string) string {
	return strings.ToLower(strings.TrimSpace(label))
}

var roomDisplayNames = map[RoomType]string{
	RoomBedroom:   "Bedroom",
	RoomBathroom:  "Bathroom",
	RoomKitchen:   "Kitchen",
	RoomLiving:    "Living Room",
	RoomDining:    "Dining Room",
	RoomOffice:    "Office",
	RoomGarage:    "Garage",
	RoomBasement:  "Basement",
	RoomAttic:     "Attic",
	RoomUtility:   "Utility Room",
	RoomMeeting:   "Meeting Room",
	RoomReception: "Reception",
}

// RoomDisplayName returns the human label for a room type.
func RoomDisplayName(t RoomType) string {
	if name, ok := roomDisplayNames[t]; ok {
		return name
	}
	s := strings.TrimSpace(string(t))
	if s == "" {
		return "Room"
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + s[size:]
}
