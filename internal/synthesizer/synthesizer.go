// Package synthesizer lays out a RequirementSet as rooms, doors and windows.
//
// Rooms are packed left to right on a grid with a monotonic cursor, so
// footprints on the same floor never overlap. A usable visual layout
// replaces the packed one wholesale.
package synthesizer

import (
	"errors"
	"fmt"
	"math"

	"github.com/archifusion/api/internal/model"
)

const (
	MaxRowSpan  = 20.0
	Spacing     = 1.0
	RoomHeight  = 3.0
	DoorWidth   = 0.9
	DoorHeight  = 2.1
	WindowRatio = 0.4
	MaxWindow   = 2.0
	WindowH     = 1.2
)

// ErrUnusableLayout is returned by UsableLayout when detected rooms cannot
// be placed as-is.
var ErrUnusableLayout = errors.New("visual layout unusable")

// Footprint is a base width x length in metres.
type Footprint struct {
	Width  float64
	Length float64
}

var footprints = map[model.RoomType]Footprint{
	model.RoomLiving:    {5, 6},
	model.RoomBedroom:   {3.5, 4},
	model.RoomBathroom:  {2.5, 3},
	model.RoomKitchen:   {3, 4},
	model.RoomDining:    {4, 4},
	model.RoomOffice:    {3, 3.5},
	model.RoomGarage:    {6, 6},
	model.RoomBasement:  {6, 8},
	model.RoomAttic:     {4, 5},
	model.RoomUtility:   {2, 2.5},
	model.RoomMeeting:   {4, 5},
	model.RoomReception: {4, 4},
}

var defaultFootprint = Footprint{4, 4}

var sizeMultipliers = map[model.SizeClass]float64{
	model.SizeSmall:  0.7,
	model.SizeMedium: 1.0,
	model.SizeLarge:  1.4,
}

// FootprintFor returns the scaled footprint for a room type.
func FootprintFor(t model.RoomType, size model.SizeClass) Footprint {
	fp, ok := footprints[t]
	if !ok {
		fp = defaultFootprint
	}
	mult, ok := sizeMultipliers[size]
	if !ok {
		mult = 1.0
	}
	return Footprint{Width: round2(fp.Width * mult), Length: round2(fp.Length * mult)}
}

// Synthesize builds a model from req, preferring the visual layout when it
// is usable. The only error is a structural defect in the result.
func Synthesize(req *model.RequirementSet, visual *model.VisualAnalysis) (*model.ArchitecturalModel, error) {
	if req == nil {
		return nil, model.NewError(model.KindSynthesis, "synthesize", "nil requirement set")
	}

	style := req.Style
	if style == "" {
		style = model.StyleModern
	}
	if visual != nil {
		if s, ok := model.ParseStyle(string(visual.Style)); ok {
			style = s
		}
	}

	var rooms []model.Room
	floors := 1
	if layout, err := UsableLayout(visual); err == nil {
		rooms = layout
	} else {
		rooms, floors = pack(req)
	}

	m := &model.ArchitecturalModel{
		Rooms:      rooms,
		Windows:    []model.Window{},
		Doors:      []model.Door{},
		Style:      style,
		FloorCount: floors,
	}
	connect(m)
	addWindows(m)

	if err := m.Validate(); err != nil {
		return nil, model.WrapError(model.KindSynthesis, "synthesize", err)
	}
	return m, nil
}

// UsableLayout converts detected rooms into placed rooms. It returns
// ErrUnusableLayout when there is nothing to place, or when any box is
// degenerate or overlaps another.
func UsableLayout(visual *model.VisualAnalysis) ([]model.Room, error) {
	if visual == nil || len(visual.DetectedRooms) == 0 {
		return nil, fmt.Errorf("%w: no detected rooms", ErrUnusableLayout)
	}

	used := make(map[string]bool, len(visual.DetectedRooms))
	rooms := make([]model.Room, 0, len(visual.DetectedRooms))
	for _, d := range visual.DetectedRooms {
		box := d.BoundingBox
		if !finite(box.Width, box.Height, box.X, box.Y) || !(round2(box.Width) > 0) || !(round2(box.Height) > 0) {
			return nil, fmt.Errorf("%w: room %q has a degenerate bounding box", ErrUnusableLayout, d.Name)
		}
		t := d.Type
		if t == "" {
			t = model.ParseRoomType(d.Name)
		}
		name := d.Name
		if name == "" {
			name = model.RoomDisplayName(t)
		}
		name = model.UniqueName(name, used)
		rooms = append(rooms, model.Room{
			Name:        name,
			Type:        t,
			Width:       round2(box.Width),
			Length:      round2(box.Height),
			Height:      RoomHeight,
			X:           round2(box.X),
			Y:           0,
			Z:           round2(box.Y),
			ConnectedTo: []string{},
		})
	}

	for i := range rooms {
		for j := i + 1; j < len(rooms); j++ {
			if model.Overlaps(rooms[i], rooms[j]) {
				return nil, fmt.Errorf("%w: %q overlaps %q", ErrUnusableLayout, rooms[i].Name, rooms[j].Name)
			}
		}
	}
	return rooms, nil
}

// pack places rooms floor by floor. Rooms are split into even, ordered
// chunks per floor and each floor restarts the cursor.
func pack(req *model.RequirementSet) ([]model.Room, int) {
	n := len(req.Rooms)
	floors := req.FloorCount
	if floors < 1 {
		floors = 1
	}
	if floors > n && n > 0 {
		floors = n
	}
	perFloor := n
	if floors > 1 {
		perFloor = (n + floors - 1) / floors
	}

	used := make(map[string]bool, n)
	rooms := make([]model.Room, 0, n)
	usedFloors := 1
	for start, floor := 0, 0; start < n; start, floor = start+perFloor, floor+1 {
		end := start + perFloor
		if end > n {
			end = n
		}
		usedFloors = floor + 1

		var x, z, maxRowDepth float64
		y := float64(floor) * RoomHeight
		for _, r := range req.Rooms[start:end] {
			fp := FootprintFor(r.Type, req.SizeClass)
			if x > 0 && x+fp.Width > MaxRowSpan {
				x = 0
				z = round2(z + maxRowDepth + Spacing)
				maxRowDepth = 0
			}
			name := r.Name
			if name == "" {
				name = model.RoomDisplayName(r.Type)
			}
			rooms = append(rooms, model.Room{
				Name:        model.UniqueName(name, used),
				Type:        r.Type,
				Width:       fp.Width,
				Length:      fp.Length,
				Height:      RoomHeight,
				X:           x,
				Y:           y,
				Z:           z,
				ConnectedTo: []string{},
			})
			x = round2(x + fp.Width + Spacing)
			if fp.Length > maxRowDepth {
				maxRowDepth = fp.Length
			}
		}
	}
	return rooms, usedFloors
}

// connect links each room to its predecessor with one door.
func connect(m *model.ArchitecturalModel) {
	for i := 1; i < len(m.Rooms); i++ {
		prev, cur := &m.Rooms[i-1], &m.Rooms[i]
		prev.ConnectedTo = append(prev.ConnectedTo, cur.Name)
		cur.ConnectedTo = append(cur.ConnectedTo, prev.Name)
		m.Doors = append(m.Doors, model.Door{
			From:   prev.Name,
			To:     cur.Name,
			Width:  DoorWidth,
			Height: DoorHeight,
		})
	}
}

func addWindows(m *model.ArchitecturalModel) {
	for _, r := range m.Rooms {
		if r.Type == model.RoomBathroom || r.Type == model.RoomUtility {
			continue
		}
		m.Windows = append(m.Windows, model.Window{
			Room:     r.Name,
			Wall:     model.WallSouth,
			Width:    round2(math.Min(WindowRatio*r.Width, MaxWindow)),
			Height:   WindowH,
			Position: 0.5,
		})
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
