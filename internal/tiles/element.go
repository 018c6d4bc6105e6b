package tiles

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownElement = errors.New("unknown element type")
	ErrMalformedTile  = errors.New("malformed tile")
)

// Element is the effective type of a segment after water disambiguation.
type Element uint8

const (
	ElementAgriculture Element = iota + 1
	ElementForest
	ElementVillage
	ElementRiver
	ElementLake
	ElementTrain
)

var elementByName = map[string]Element{
	GroupAgriculture: ElementAgriculture,
	GroupForest:      ElementForest,
	GroupVillage:     ElementVillage,
	"River":          ElementRiver,
	"Lake":           ElementLake,
	GroupTrain:       ElementTrain,
}

var elementCodes = [...]byte{
	ElementAgriculture: 'A',
	ElementForest:      'F',
	ElementVillage:     'V',
	ElementRiver:       'R',
	ElementLake:        'L',
	ElementTrain:       'T',
}

var elementNames = [...]string{
	ElementAgriculture: "Agriculture",
	ElementForest:      "Forest",
	ElementVillage:     "Village",
	ElementRiver:       "River",
	ElementLake:        "Lake",
	ElementTrain:       "Train",
}

// Edge symbols that do not come from an element.
const (
	SymbolGeneric = 'G'
	SymbolStation = 'S'
)

// ElementFor resolves a segment group type. Water becomes Lake when the
// segment is hybrid and River otherwise; every other name must be in the
// table.
func ElementFor(groupType string, hybrid bool) (Element, error) {
	name := groupType
	if groupType == GroupWater {
		if hybrid {
			name = "Lake"
		} else {
			name = "River"
		}
	}
	el, ok := elementByName[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownElement, groupType)
	}
	return el, nil
}

// Code returns the edge symbol for e, or 0 for an invalid element.
func (e Element) Code() byte {
	if int(e) >= len(elementCodes) {
		return 0
	}
	return elementCodes[e]
}

func (e Element) String() string {
	if e == 0 || int(e) >= len(elementNames) {
		return fmt.Sprintf("Element(%d)", uint8(e))
	}
	return elementNames[e]
}
