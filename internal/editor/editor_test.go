// internal/editor/editor_test.go
package editor

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Corphon/DocDeck/internal/models"
)

func slideDefaults() models.SectionList {
	return models.SectionList{
		{ID: 1, Title: "Introduction"},
		{ID: 2, Title: "Key Points"},
		{ID: 3, Title: "Details"},
		{ID: 4, Title: "Conclusion"},
	}
}

func validationKind(t *testing.T, err error) ValidationKind {
	t.Helper()
	var vErr *ValidationError
	require.True(t, errors.As(err, &vErr), "期望 ValidationError，实际: %v", err)
	return vErr.Kind
}

func ids(list models.SectionList) []int {
	out := make([]int, 0, len(list))
	for _, s := range list {
		out = append(out, s.ID)
	}
	return out
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		topic    string
		sections models.SectionList
		wantKind ValidationKind // 空表示期望成功
	}{
		{"合法数据", "AI", models.SectionList{{ID: 1, Title: "Intro"}}, ""},
		{"空主题优先于空列表", "", models.SectionList{}, EmptyTopic},
		{"空白主题", "   \t", models.SectionList{{ID: 1, Title: "Intro"}}, EmptyTopic},
		{"空主题优先于空标题", "", models.SectionList{{ID: 1, Title: ""}}, EmptyTopic},
		{"空标题", "AI", models.SectionList{{ID: 1, Title: ""}}, EmptyTitle},
		{"空白标题", "AI", models.SectionList{{ID: 1, Title: "ok"}, {ID: 2, Title: "  "}}, EmptyTitle},
		{"无章节", "AI", models.SectionList{}, NoSections},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New()
			m.Initialize(tt.sections)
			m.SetTopic(tt.topic)

			err := m.Validate()
			if tt.wantKind == "" {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, tt.wantKind, validationKind(t, err))
		})
	}
}

func TestValidateReportsOffendingSection(t *testing.T) {
	m := New()
	m.Initialize(models.SectionList{{ID: 1, Title: "a"}, {ID: 7, Title: ""}, {ID: 9, Title: ""}})
	m.SetTopic("AI")

	var vErr *ValidationError
	require.ErrorAs(t, m.Validate(), &vErr)
	assert.Equal(t, EmptyTitle, vErr.Kind)
	assert.Equal(t, 7, vErr.SectionID)
}

func TestValidateAcceptsAnyNonBlankInput(t *testing.T) {
	topics := []string{"AI", " Market Trends ", "x", "量子计算"}
	titles := []string{"Intro", "  a", "第一章", "Q&A"}

	for _, topic := range topics {
		for n := 1; n <= len(titles); n++ {
			m := New()
			list := models.SectionList{}
			for i := 0; i < n; i++ {
				list = append(list, models.Section{ID: i + 1, Title: titles[i]})
			}
			m.Initialize(list)
			m.SetTopic(topic)
			assert.NoError(t, m.Validate(), "topic=%q n=%d", topic, n)
		}
	}
}

func TestLoadKeepsDefaultsWhenIncomingListEmpty(t *testing.T) {
	m := New()
	m.Initialize(slideDefaults())

	m.Load("Market Trends", models.SectionList{})

	assert.Equal(t, "Market Trends", m.Topic())
	assert.Equal(t, slideDefaults(), m.Sections())

	m.Load("Other", nil)
	assert.Equal(t, slideDefaults(), m.Sections())
}

func TestLoadReplacesListWholesale(t *testing.T) {
	m := New()
	m.Initialize(slideDefaults())

	m.Load("AI", models.SectionList{{ID: 5, Title: "X"}})

	assert.Equal(t, models.SectionList{{ID: 5, Title: "X"}}, m.Sections())
}

func TestLoadEmptyTopicClearsTopic(t *testing.T) {
	m := New()
	m.Initialize(slideDefaults())
	m.SetTopic("previous")

	existing := models.SectionList{{ID: 1, Title: "Intro", Content: "body"}}
	m.Load("", existing)

	assert.Equal(t, "", m.Topic())
	assert.Equal(t, existing, m.Sections())
}

func TestLoadCopiesInput(t *testing.T) {
	m := New()
	in := models.SectionList{{ID: 1, Title: "Intro"}}
	m.Load("AI", in)

	in[0].Title = "mutated"
	assert.Equal(t, "Intro", m.Sections()[0].Title)
}

func TestSerializeAfterValidate(t *testing.T) {
	fixed := time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC)
	m := New(WithClock(func() time.Time { return fixed }))
	m.Load("Market Trends", models.SectionList{{ID: 1, Title: "Intro", Content: ""}})

	require.NoError(t, m.Validate())
	got := m.Serialize()

	assert.Equal(t, models.ProjectUpdate{
		Topic:        "Market Trends",
		Sections:     models.SectionList{{ID: 1, Title: "Intro", Content: ""}},
		Status:       models.StatusConfigured,
		LastModified: fixed,
	}, got)
}

func TestSerializeUsesRecentTimestamp(t *testing.T) {
	m := New()
	m.Load("AI", models.SectionList{{ID: 1, Title: "Intro"}})

	before := time.Now()
	got := m.Serialize()

	assert.WithinDuration(t, before, got.LastModified, time.Second)
}

func TestSerializeWithoutValidateReflectsCurrentData(t *testing.T) {
	m := New()
	got := m.Serialize()

	assert.Equal(t, "", got.Topic)
	assert.Empty(t, got.Sections)
	assert.Equal(t, models.StatusConfigured, got.Status)
}

func TestSerializeIsPure(t *testing.T) {
	m := New()
	m.Load("AI", models.SectionList{{ID: 1, Title: "Intro"}})

	got := m.Serialize()
	got.Sections[0].Title = "changed"

	assert.Equal(t, "Intro", m.Sections()[0].Title)
}

func TestReorderThenSerializePreservesOrder(t *testing.T) {
	m := New()
	m.Initialize(slideDefaults())
	m.SetTopic("AI")

	m.Reorder([]int{4, 2, 1, 3})

	assert.Equal(t, []int{4, 2, 1, 3}, ids(m.Serialize().Sections))
}

func TestReorderIgnoresUnknownAndDuplicates(t *testing.T) {
	m := New()
	m.Initialize(slideDefaults())

	m.Reorder([]int{3, 99, 3, 1})

	assert.Equal(t, []int{3, 1, 2, 4}, ids(m.Sections()))
}

func TestAddAssignsFreshIDs(t *testing.T) {
	m := New()
	m.Initialize(slideDefaults())

	a := m.Add(models.Section{ID: 1, Title: "Dup"})
	b := m.Add(models.Section{Title: "Another"})

	assert.Equal(t, 5, a.ID)
	assert.Equal(t, 6, b.ID)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6}, ids(m.Sections()))
}

func TestAddDoesNotReuseRemovedIDs(t *testing.T) {
	m := New()
	m.Initialize(slideDefaults())

	require.True(t, m.Remove(4))
	added := m.Add(models.Section{Title: "New"})

	assert.Equal(t, 5, added.ID)
}

func TestAddAfterLoadStartsAboveLoadedIDs(t *testing.T) {
	m := New()
	m.Initialize(slideDefaults())
	m.Load("AI", models.SectionList{{ID: 10, Title: "X"}})

	assert.Equal(t, 11, m.Add(models.Section{Title: "Y"}).ID)
}

func TestLoadRenumbersDuplicateIDs(t *testing.T) {
	m := New()
	m.Load("AI", models.SectionList{{ID: 1, Title: "A"}, {ID: 1, Title: "B"}, {ID: 2, Title: "C"}})

	assert.Equal(t, models.SectionList{
		{ID: 1, Title: "A"},
		{ID: 3, Title: "B"},
		{ID: 2, Title: "C"},
	}, m.Sections())

	m.Reorder([]int{2, 1})
	assert.Equal(t, []string{"C", "A", "B"}, titles(m.Sections()))
	assert.Len(t, m.Serialize().Sections, 3)

	assert.Equal(t, 4, m.Add(models.Section{Title: "D"}).ID)
}

func TestLoadDuplicateWithBlankTitleIsFixable(t *testing.T) {
	m := New()
	m.Load("AI", models.SectionList{{ID: 1, Title: "A"}, {ID: 1, Title: ""}})

	sections := m.Sections()
	require.Len(t, sections, 2)
	require.NotEqual(t, sections[0].ID, sections[1].ID)

	assert.Equal(t, EmptyTitle, validationKind(t, m.Validate()))

	require.True(t, m.UpdateTitle(sections[1].ID, "fixed"))
	assert.NoError(t, m.Validate())
	assert.Equal(t, []string{"A", "fixed"}, titles(m.Sections()))
}

func TestInitializeRenumbersNonPositiveIDs(t *testing.T) {
	m := New()
	m.Initialize(models.SectionList{{ID: 0, Title: "A"}, {ID: -2, Title: "B"}, {ID: 1, Title: "C"}})

	ids := make([]int, 0, 3)
	for _, s := range m.Sections() {
		assert.Positive(t, s.ID)
		ids = append(ids, s.ID)
	}
	assert.ElementsMatch(t, []int{1, 2, 3}, ids)
	assert.Equal(t, []string{"A", "B", "C"}, titles(m.Sections()))
}

func titles(list models.SectionList) []string {
	out := make([]string, 0, len(list))
	for _, s := range list {
		out = append(out, s.Title)
	}
	return out
}

func TestRemove(t *testing.T) {
	m := New()
	m.Initialize(slideDefaults())

	assert.True(t, m.Remove(2))
	assert.False(t, m.Remove(2))
	assert.Equal(t, []int{1, 3, 4}, ids(m.Sections()))
}

func TestMove(t *testing.T) {
	tests := []struct {
		name  string
		id    int
		index int
		want  []int
		ok    bool
	}{
		{"向后移动", 1, 2, []int{2, 3, 1, 4}, true},
		{"向前移动", 4, 0, []int{4, 1, 2, 3}, true},
		{"原地不动", 2, 1, []int{1, 2, 3, 4}, true},
		{"越界截断到末尾", 1, 42, []int{2, 3, 4, 1}, true},
		{"负数截断到开头", 3, -5, []int{3, 1, 2, 4}, true},
		{"未知ID", 99, 0, []int{1, 2, 3, 4}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New()
			m.Initialize(slideDefaults())
			assert.Equal(t, tt.ok, m.Move(tt.id, tt.index))
			assert.Equal(t, tt.want, ids(m.Sections()))
		})
	}
}

func TestUpdateTitleAndContent(t *testing.T) {
	m := New()
	m.Initialize(slideDefaults())

	assert.True(t, m.UpdateTitle(3, "Deep Dive"))
	assert.True(t, m.UpdateContent(3, "• point"))
	assert.False(t, m.UpdateTitle(42, "nope"))
	assert.False(t, m.UpdateContent(42, "nope"))

	s := m.Sections()[2]
	assert.Equal(t, models.Section{ID: 3, Title: "Deep Dive", Content: "• point"}, s)
}

func TestValidationErrorMessages(t *testing.T) {
	for _, kind := range []ValidationKind{EmptyTopic, EmptyTitle, NoSections} {
		err := &ValidationError{Kind: kind}
		assert.NotEmpty(t, err.Error(), string(kind))
	}
}
