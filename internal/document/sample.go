package document

import "github.com/mapwright/mapwright/internal/geom"

var (
	TemplateLand  = EntityReference{Name: "Land", VersionID: 1, IsBuiltIn: true}
	TemplateWater = EntityReference{Name: "Water", VersionID: 1, IsBuiltIn: true}
	TemplateCity  = EntityReference{Name: "City", VersionID: 1, IsBuiltIn: true}

	ToolSelect  = EntityReference{Name: "Select", VersionID: 1, IsBuiltIn: true}
	ToolCombine = EntityReference{Name: "Combine", VersionID: 1, IsBuiltIn: true}
)

// NewSampleMap builds the starter map shown for a new session: an island
// with a lake hole, a round bay and a city marker.
func NewSampleMap() *Map {
	m := NewMap("Untitled", "Terrain")

	island := RectPath(100, 100, 400, 300)
	island.ClipPaths = append(island.ClipPaths, RectPath(180, 160, 60, 40))

	bay := circlePath(geom.Pt(600, 250), 60)
	city := RectPath(300, 220, 20, 20)

	islandItem := NewMapItem(TemplateLand, island)
	islandItem.CaptionText = "Isle of Examples"
	islandItem.IsCaptionVisible = true

	bayItem := NewMapItem(TemplateWater, bay)
	bayItem.ZGroup = 1

	cityItem := NewMapItem(TemplateCity, city)
	cityItem.ZGroup = 2
	cityItem.CaptionText = "Port"
	cityItem.IsCaptionVisible = true

	terrain := m.Layers[0]
	terrain.MapItemGroups = []*MapItemGroup{
		NewMapItemGroup(islandItem),
		NewMapItemGroup(bayItem),
	}
	m.Layers = append(m.Layers, &Layer{
		Name:          "Settlements",
		MapItemGroups: []*MapItemGroup{NewMapItemGroup(cityItem)},
	})

	for _, ref := range []EntityReference{TemplateLand, TemplateWater, TemplateCity} {
		m.MapItemTemplateRefs = append(m.MapItemTemplateRefs, ref)
		m.MapItemTemplates = append(m.MapItemTemplates, MapItemTemplate{Ref: ref, Data: []byte(`{}`)})
	}
	m.ToolRefs = []EntityReference{ToolSelect, ToolCombine}
	m.Tools = []Tool{{Ref: ToolSelect, Data: []byte(`{}`)}, {Ref: ToolCombine, Data: []byte(`{}`)}}
	m.ToolPalette = ToolPalette{Groups: [][]EntityReference{{ToolSelect}, {ToolCombine}}}
	return m
}

// circlePath draws a circle as two half-circle arcs starting at its
// leftmost point.
func circlePath(center geom.Point, r float64) *Path {
	half := func(dir float64) Transit {
		return ArcTransit(geom.Arc{
			End:       geom.Pt(2*r*dir, 0),
			Center:    geom.Pt(r*dir, 0),
			Radii:     geom.Pt(r, r),
			SweepFlag: true,
		})
	}
	start := center.Sub(geom.Pt(r, 0))
	return NewPath(start, half(1), half(-1))
}
