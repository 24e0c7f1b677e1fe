// Package analyzer turns free text into a RequirementSet with keyword
// matching. It never fails and performs no I/O, so it backs every fallback.
package analyzer

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/archifusion/api/internal/model"
)

const (
	maxRoomsPerFamily = 20
	maxFloors         = 10
)

var numberWords = map[string]int{
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
}

const countPattern = `(?:(\d+|one|two|three|four|five|six|seven|eight|nine|ten)[\s-]+)?`

type roomFamily struct {
	room    model.RoomType
	pattern *regexp.Regexp
}

func family(room model.RoomType, keywords string) roomFamily {
	return roomFamily{
		room:    room,
		pattern: regexp.MustCompile(`\b` + countPattern + `(?:` + keywords + `)\b`),
	}
}

// Scan order is significant: it is the order rooms appear in the result.
var roomFamilies = []roomFamily{
	family(model.RoomBedroom, `bedrooms?|beds?`),
	family(model.RoomBathroom, `bathrooms?|baths?|washrooms?|restrooms?|toilets?`),
	family(model.RoomKitchen, `kitchens?|kitchenettes?`),
	family(model.RoomLiving, `living rooms?|living areas?|living|lounges?|family rooms?`),
	family(model.RoomDining, `dining rooms?|dining areas?|dining`),
	family(model.RoomOffice, `offices?|study|studies|workspaces?`),
	family(model.RoomGarage, `garages?|carports?`),
	family(model.RoomBasement, `basements?|cellars?`),
	family(model.RoomAttic, `attics?|lofts?`),
	family(model.RoomUtility, `utility rooms?|utility|laundry rooms?|laundry`),
	family(model.RoomMeeting, `meeting rooms?|meeting|conference rooms?|conference`),
	family(model.RoomReception, `receptions?|lobby|lobbies`),
}

var (
	commercialPattern  = regexp.MustCompile(`\b(office|offices|commercial|retail|store|shop|business|warehouse|coworking)\b`)
	hospitalityPattern = regexp.MustCompile(`\b(hotel|restaurant|cafe|resort|motel|inn|hostel)\b`)
	residentialPattern = regexp.MustCompile(`\b(houses?|homes?|apartments?|flats?|villas?|cottages?|bungalows?|townhouses?)\b`)

	largePattern = regexp.MustCompile(`\b(large|spacious|luxury|luxurious|big|huge|grand)\b`)
	smallPattern = regexp.MustCompile(`\b(small|compact|tiny|cozy|cosy|modest)\b`)

	modernPattern      = regexp.MustCompile(`\b(modern|contemporary|minimalist|minimal)\b`)
	traditionalPattern = regexp.MustCompile(`\b(traditional|classic|colonial|rustic|victorian)\b`)
	industrialPattern  = regexp.MustCompile(`\b(industrial|lofts?)\b`)

	floorPattern = regexp.MustCompile(`\b(\d+|one|two|three|four|five|six|seven|eight|nine|ten)[\s-]*(?:story|stories|storey|storeys|floor|floors|level|levels)\b`)
)

// DefaultRooms is the room set assumed for a building type when the text
// does not name its essentials.
func DefaultRooms(bt model.BuildingType) []model.RoomType {
	switch bt {
	case model.BuildingCommercial:
		return []model.RoomType{model.RoomOffice, model.RoomMeeting, model.RoomReception}
	case model.BuildingHospitality:
		return []model.RoomType{model.RoomReception, model.RoomDining, model.RoomKitchen, model.RoomBathroom}
	default:
		return []model.RoomType{model.RoomLiving, model.RoomKitchen, model.RoomBedroom, model.RoomBathroom}
	}
}

// Analyze parses text into a RequirementSet.
func Analyze(text string) *model.RequirementSet {
	lower := strings.ToLower(text)

	buildingType := DetectBuildingType(lower)
	rooms := extractRooms(lower)
	rooms = withDefaults(rooms, buildingType)

	return &model.RequirementSet{
		BuildingType: buildingType,
		Rooms:        rooms,
		Style:        DetectStyle(lower),
		SizeClass:    DetectSizeClass(lower),
		FloorCount:   DetectFloorCount(lower),
		Source:       model.SourceHeuristic,
	}
}

// DetectBuildingType checks commercial before hospitality and defaults to
// residential. In a text naming a dwelling, "office" is a room, not a
// commercial building.
func DetectBuildingType(lower string) model.BuildingType {
	commercial := commercialPattern.FindAllString(lower, -1)
	if len(commercial) > 0 && !(residentialPattern.MatchString(lower) && onlyOfficeRooms(commercial)) {
		return model.BuildingCommercial
	}
	if hospitalityPattern.MatchString(lower) {
		return model.BuildingHospitality
	}
	return model.BuildingResidential
}

func onlyOfficeRooms(words []string) bool {
	for _, w := range words {
		if w != "office" && w != "offices" {
			return false
		}
	}
	return true
}

func DetectSizeClass(lower string) model.SizeClass {
	switch {
	case largePattern.MatchString(lower):
		return model.SizeLarge
	case smallPattern.MatchString(lower):
		return model.SizeSmall
	default:
		return model.SizeMedium
	}
}

func DetectStyle(lower string) model.Style {
	switch {
	case modernPattern.MatchString(lower):
		return model.StyleModern
	case traditionalPattern.MatchString(lower):
		return model.StyleTraditional
	case industrialPattern.MatchString(lower):
		return model.StyleIndustrial
	default:
		return model.StyleModern
	}
}

func DetectFloorCount(lower string) int {
	m := floorPattern.FindStringSubmatch(lower)
	if m == nil {
		return 1
	}
	n := parseCount(m[1])
	if n < 1 {
		return 1
	}
	if n > maxFloors {
		return maxFloors
	}
	return n
}

func extractRooms(lower string) []model.RoomRequirement {
	var rooms []model.RoomRequirement
	for _, f := range roomFamilies {
		matches := f.pattern.FindAllStringSubmatch(lower, -1)
		if len(matches) == 0 {
			continue
		}
		count := 1
		for _, m := range matches {
			if m[1] != "" {
				count = parseCount(m[1])
				break
			}
		}
		if count < 1 {
			continue
		}
		if count > maxRoomsPerFamily {
			count = maxRoomsPerFamily
		}
		rooms = append(rooms, NamedRooms(f.room, count)...)
	}
	return rooms
}

// withDefaults appends the building type's essential rooms that the text
// did not mention. An empty extraction yields the full default set.
func withDefaults(rooms []model.RoomRequirement, bt model.BuildingType) []model.RoomRequirement {
	present := make(map[model.RoomType]bool, len(rooms))
	for _, r := range rooms {
		present[r.Type] = true
	}
	for _, t := range DefaultRooms(bt) {
		if !present[t] {
			rooms = append(rooms, model.RoomRequirement{Type: t, Name: model.RoomDisplayName(t)})
		}
	}
	return rooms
}

// NamedRooms returns count rooms of one type, numbered when count > 1.
func NamedRooms(t model.RoomType, count int) []model.RoomRequirement {
	base := model.RoomDisplayName(t)
	if count == 1 {
		return []model.RoomRequirement{{Type: t, Name: base}}
	}
	out := make([]model.RoomRequirement, 0, count)
	for i := 1; i <= count; i++ {
		out = append(out, model.RoomRequirement{Type: t, Name: fmt.Sprintf("%s %d", base, i)})
	}
	return out
}

func parseCount(s string) int {
	if n, ok := numberWords[s]; ok {
		return n
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 1
	}
	return n
}
