package composer

import "github.com/akashsateesha/Clickless-IKEA/internal/constraint"

// Chip is a quick reply. Value is sent back verbatim as the next utterance.
type Chip struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// ChipGroup is the set of chips answering one missing dimension.
type ChipGroup struct {
	Dimension constraint.Dimension `json:"dimension"`
	Question  string               `json:"question"`
	Chips     []Chip               `json:"chips"`
}

var chipCatalog = map[constraint.Dimension]ChipGroup{
	constraint.DimType: {
		Dimension: constraint.DimType,
		Question:  "What type are you looking for?",
		Chips: []Chip{
			{"Office chair", "office chair"},
			{"Dining chair", "dining chair"},
			{"Armchair", "armchair"},
			{"Outdoor chair", "outdoor chair"},
		},
	},
	constraint.DimPrice: {
		Dimension: constraint.DimPrice,
		Question:  "What's your budget?",
		Chips: []Chip{
			{"Under $100", "under $100"},
			{"$100-$200", "$100 to $200"},
			{"$200-$300", "$200 to $300"},
			{"$300+", "over $300"},
		},
	},
	constraint.DimColor: {
		Dimension: constraint.DimColor,
		Question:  "Any color preferences?",
		Chips: []Chip{
			{"Black", "black"},
			{"White", "white"},
			{"Gray", "gray"},
			{"Brown", "brown"},
			{"Any color", "any color"},
		},
	},
}

// ChipsFor returns one chip group per missing dimension, in the given order.
func ChipsFor(missing []constraint.Dimension) []ChipGroup {
	out := make([]ChipGroup, 0, len(missing))
	for _, d := range missing {
		g, ok := chipCatalog[d]
		if !ok {
			continue
		}
		g.Chips = append([]Chip(nil), g.Chips...)
		out = append(out, g)
	}
	return out
}
