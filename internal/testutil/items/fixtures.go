package items

// Entry describes one fixture item.
type Entry struct {
	ID       string
	Category string
	Values   []string
}

// Fixture is a predefined set of items.
type Fixture interface {
	Name() string
	Items() []Entry
}

type fixture struct {
	name  string
	items []Entry
}

func (f *fixture) Name() string   { return f.name }
func (f *fixture) Items() []Entry { return f.items }

var (
	// FixtureMixed covers items with several, one and no identifiers across two categories.
	FixtureMixed = &fixture{
		name: "Mixed",
		items: []Entry{
			{ID: "Screens/receipt.png", Category: "Screens", Values: []string{"ABC-1234", "XYZ-9876"}},
			{ID: "Screens/blank.png", Category: "Screens"},
			{ID: "Camera/label.jpg", Category: "Camera", Values: []string{"QRS-5555"}},
		},
	}

	// FixtureEmpty holds only items without identifiers.
	FixtureEmpty = &fixture{
		name: "Empty",
		items: []Entry{
			{ID: "a.png", Category: "Unknown"},
			{ID: "b.png", Category: "Unknown"},
		},
	}
)
