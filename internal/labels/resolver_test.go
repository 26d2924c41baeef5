package labels

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTable() *Table {
	return NewTable(
		[]Category{
			{Label: "feature_dev", Name: "Feature Development"},
			{Label: "tech_debt", Name: "Tech Debt", Description: "Paying down debt"},
			{Label: ""},
		},
		[]Space{
			{
				Name:     "Platform",
				Projects: []string{"PLAT", "OPS"},
				Categories: []Category{
					{Label: "toil"},
					{Label: "reliability", Name: "Reliability"},
				},
			},
			{
				Name:     "Empty",
				Projects: []string{"EMPTY"},
			},
		},
	)
}

func TestCategoriesFor(t *testing.T) {
	table := testTable()

	testCases := []struct {
		name     string
		project  string
		expected []string
	}{
		{name: "Project without space uses global set", project: "WEB", expected: []string{"feature_dev", "tech_debt"}},
		{name: "Project in space uses override", project: "PLAT", expected: []string{"toil", "reliability"}},
		{name: "Second project of same space", project: "OPS", expected: []string{"toil", "reliability"}},
		{name: "Space without categories falls back to global", project: "EMPTY", expected: []string{"feature_dev", "tech_debt"}},
		{name: "Unknown project falls back to global", project: "", expected: []string{"feature_dev", "tech_debt"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, table.LabelsFor(tc.project))
		})
	}
}

func TestSet(t *testing.T) {
	set := testTable().Set("PLAT")
	assert.Len(t, set, 2)
	assert.Contains(t, set, "toil")
	assert.NotContains(t, set, "feature_dev")
}

func TestLabelsForProjects(t *testing.T) {
	table := testTable()

	assert.Equal(t,
		[]string{"feature_dev", "reliability", "tech_debt", "toil"},
		table.LabelsForProjects([]string{"WEB", "PLAT"}))

	assert.Equal(t,
		[]string{"feature_dev", "tech_debt"},
		table.LabelsForProjects(nil))

	empty := NewTable(nil, nil)
	assert.Empty(t, empty.LabelsForProjects([]string{"WEB"}))
}

func TestMetadata(t *testing.T) {
	table := testTable()

	c, ok := table.Lookup("toil")
	require.True(t, ok)
	assert.Equal(t, "toil", c.Name, "name defaults to the label")
	assert.Equal(t, "Platform", c.Group)

	c, ok = table.Lookup("tech_debt")
	require.True(t, ok)
	assert.Equal(t, "Tech Debt", c.Name)
	assert.Equal(t, "Paying down debt", c.Description)
	assert.Equal(t, GlobalGroup, c.Group)

	_, ok = table.Lookup("missing")
	assert.False(t, ok)

	meta := table.Metadata()
	delete(meta, "toil")
	_, ok = table.Lookup("toil")
	assert.True(t, ok, "Metadata must return a copy")
}

func TestSpaceOf(t *testing.T) {
	table := testTable()

	space, ok := table.SpaceOf("OPS")
	assert.True(t, ok)
	assert.Equal(t, "Platform", space)

	_, ok = table.SpaceOf("WEB")
	assert.False(t, ok)
}
