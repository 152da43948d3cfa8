package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func newTestResolver(sets [][]string, directory map[string]string) *VisibilityResolver {
	return NewVisibilityResolver(sets, directory, zap.NewNop())
}

func TestNormalizeContact(t *testing.T) {
	assert.Equal(t, "a@x.com", NormalizeContact("  A@X.COM  "))
	assert.Equal(t, "a@x.com", NormalizeContact("a@x.com"))
	assert.Equal(t, "", NormalizeContact("   "))
}

func TestSameScope_ExactMatchAfterNormalization(t *testing.T) {
	r := newTestResolver(nil, nil)

	assert.True(t, r.SameScope("a@x.com", " A@X.COM "))
	assert.False(t, r.SameScope("a@x.com", "b@x.com"))
	// Пустые контакты никогда не co-visible, даже друг с другом
	assert.False(t, r.SameScope("", ""))
	assert.False(t, r.SameScope("   ", "a@x.com"))
}

func TestSameScope_EquivalenceSets(t *testing.T) {
	r := newTestResolver([][]string{
		{"alice@corp.com", "a.liddell@corp.com"},
		{"bob@corp.com", "rob@corp.com", "bobby@corp.com"},
	}, nil)

	assert.True(t, r.SameScope("alice@corp.com", "A.Liddell@corp.com"))
	assert.True(t, r.SameScope("rob@corp.com", "bobby@corp.com"))
	// Разные группы не склеиваются
	assert.False(t, r.SameScope("alice@corp.com", "bob@corp.com"))
	// Контакт вне групп сравнивается только по точному совпадению
	assert.False(t, r.SameScope("carol@corp.com", "alice@corp.com"))
	assert.True(t, r.SameScope("carol@corp.com", "CAROL@corp.com"))
}

func TestSameScope_SingleMemberGroupIgnored(t *testing.T) {
	r := newTestResolver([][]string{{"solo@corp.com"}}, nil)
	assert.True(t, r.SameScope("solo@corp.com", "solo@corp.com"))
	assert.False(t, r.SameScope("solo@corp.com", "other@corp.com"))
}

func TestSameScopeByID(t *testing.T) {
	r := newTestResolver(
		[][]string{{"alice@corp.com", "a.liddell@corp.com"}},
		map[string]string{
			"P1": "Alice@Corp.com",
			"P2": "a.liddell@corp.com",
			"P3": "bob@corp.com",
		},
	)

	// Один и тот же профиль всегда co-visible сам с собой
	assert.True(t, r.SameScopeByID("P1", "P1"))
	assert.True(t, r.SameScopeByID("unknown", "unknown"))

	// Через справочник и набор эквивалентности
	assert.True(t, r.SameScopeByID("P1", "P2"))
	assert.False(t, r.SameScopeByID("P1", "P3"))

	// Профиль вне справочника не co-visible ни с кем, кроме себя
	assert.False(t, r.SameScopeByID("P1", "unknown"))
	assert.False(t, r.SameScopeByID("", "P1"))
}

func TestResolve(t *testing.T) {
	r := newTestResolver([][]string{{"a@x.com", "alias@x.com"}}, nil)

	requester := Profile{ID: "P1", Contact: "a@x.com"}
	candidates := []Profile{
		{ID: "P1", Contact: "a@x.com"},
		{ID: "P2", Contact: "alias@x.com"},
		{ID: "P3", Contact: "b@x.com"},
		{ID: "P4", Contact: "A@X.COM"},
	}

	visible := r.Resolve(requester, candidates)
	ids := make([]string, 0, len(visible))
	for _, p := range visible {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []string{"P1", "P2", "P4"}, ids)
}

func TestResolve_EmptyRequesterContactSeesOnlySelf(t *testing.T) {
	r := newTestResolver(nil, nil)

	requester := Profile{ID: "P1", Contact: ""}
	candidates := []Profile{
		{ID: "P1", Contact: ""},
		{ID: "P2", Contact: ""},
	}

	visible := r.Resolve(requester, candidates)
	assert.Len(t, visible, 1)
	assert.Equal(t, "P1", visible[0].ID)
}

func TestParseEquivalenceSets(t *testing.T) {
	sets := ParseEquivalenceSets("a@x.com, b@x.com ; c@y.com,d@y.com ;; ")
	assert.Equal(t, [][]string{
		{"a@x.com", "b@x.com"},
		{"c@y.com", "d@y.com"},
	}, sets)

	assert.Nil(t, ParseEquivalenceSets("   "))
	assert.Nil(t, ParseEquivalenceSets(""))
}

func TestParseProfileContacts(t *testing.T) {
	directory := ParseProfileContacts("P1=a@x.com, P2 = b@x.com ,broken,=c@x.com,P3=")
	assert.Equal(t, map[string]string{
		"P1": "a@x.com",
		"P2": "b@x.com",
	}, directory)
}
