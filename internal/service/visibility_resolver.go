package service

import (
	"strings"

	"go.uber.org/zap"
)

// Profile - минимальное представление профиля для разрешения видимости:
// непрозрачный ID и контактный идентификатор (обычно email).
type Profile struct {
	ID      string
	Contact string
}

// VisibilityResolver решает, какие профили co-visible: два профиля входят
// в одну область видимости, если их нормализованные контактные
// идентификаторы совпадают либо оба состоят в одном настроенном наборе
// эквивалентности. Чистая функция над конфигурацией, без состояния.
type VisibilityResolver struct {
	// aliasGroups отображает нормализованный контакт в ключ его группы.
	aliasGroups map[string]string
	// directory отображает profile ID в контактный идентификатор.
	directory map[string]string
	logger    *zap.Logger
}

// NewVisibilityResolver создает резолвер из наборов эквивалентности.
// directory может быть nil - тогда SameScopeByID сравнивает только сами ID.
func NewVisibilityResolver(equivalenceSets [][]string, directory map[string]string, logger *zap.Logger) *VisibilityResolver {
	aliasGroups := make(map[string]string)
	for _, set := range equivalenceSets {
		if len(set) < 2 {
			continue // Группа из одного участника ничего не склеивает
		}
		groupKey := NormalizeContact(set[0])
		for _, member := range set {
			normalized := NormalizeContact(member)
			if normalized == "" {
				continue
			}
			aliasGroups[normalized] = groupKey
		}
	}

	normalizedDirectory := make(map[string]string, len(directory))
	for profileID, contact := range directory {
		normalizedDirectory[profileID] = NormalizeContact(contact)
	}

	return &VisibilityResolver{
		aliasGroups: aliasGroups,
		directory:   normalizedDirectory,
		logger:      logger.Named("VisibilityResolver"),
	}
}

// NormalizeContact нормализует контактный идентификатор: обрезает пробелы
// и приводит к нижнему регистру. Сравнение видимости идет только по
// нормализованной форме, никогда по сырой строке.
func NormalizeContact(contact string) string {
	return strings.ToLower(strings.TrimSpace(contact))
}

// ScopeKey возвращает ключ области видимости для контакта: ключ его группы
// эквивалентности, либо сам нормализованный контакт.
func (r *VisibilityResolver) ScopeKey(contact string) string {
	normalized := NormalizeContact(contact)
	if group, ok := r.aliasGroups[normalized]; ok {
		return group
	}
	return normalized
}

// SameScope reports whether two contact identifiers are co-visible.
func (r *VisibilityResolver) SameScope(a, b string) bool {
	keyA := r.ScopeKey(a)
	if keyA == "" {
		return false
	}
	return keyA == r.ScopeKey(b)
}

// SameScopeByID reports whether two profile IDs are co-visible. Профили с
// одинаковым ID всегда co-visible; дальше сравниваются контакты из
// справочника, если они там есть.
func (r *VisibilityResolver) SameScopeByID(profileA, profileB string) bool {
	if profileA == "" || profileB == "" {
		return false
	}
	if profileA == profileB {
		return true
	}
	contactA, okA := r.directory[profileA]
	contactB, okB := r.directory[profileB]
	if !okA || !okB {
		return false
	}
	return r.SameScope(contactA, contactB)
}

// Resolve возвращает подмножество candidates, co-visible с requester.
func (r *VisibilityResolver) Resolve(requester Profile, candidates []Profile) []Profile {
	requesterKey := r.ScopeKey(requester.Contact)
	visible := make([]Profile, 0, len(candidates))
	for _, candidate := range candidates {
		if candidate.ID == requester.ID {
			visible = append(visible, candidate)
			continue
		}
		if requesterKey != "" && r.ScopeKey(candidate.Contact) == requesterKey {
			visible = append(visible, candidate)
		}
	}
	r.logger.Debug("Visibility resolved",
		zap.String("requesterID", requester.ID),
		zap.Int("candidates", len(candidates)),
		zap.Int("visible", len(visible)))
	return visible
}

// ParseEquivalenceSets разбирает строку конфига вида
// "a@x.com,b@x.com;c@y.com,d@y.com" в наборы эквивалентности.
func ParseEquivalenceSets(raw string) [][]string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	groups := make([][]string, 0)
	for _, groupRaw := range strings.Split(raw, ";") {
		members := make([]string, 0)
		for _, member := range strings.Split(groupRaw, ",") {
			if trimmed := strings.TrimSpace(member); trimmed != "" {
				members = append(members, trimmed)
			}
		}
		if len(members) > 0 {
			groups = append(groups, members)
		}
	}
	return groups
}

// ParseProfileContacts разбирает строку конфига вида "P1=a@x.com,P2=b@x.com"
// в справочник profile ID -> контакт.
func ParseProfileContacts(raw string) map[string]string {
	directory := make(map[string]string)
	for _, pairRaw := range strings.Split(raw, ",") {
		pair := strings.SplitN(pairRaw, "=", 2)
		if len(pair) != 2 {
			continue
		}
		profileID := strings.TrimSpace(pair[0])
		contact := strings.TrimSpace(pair[1])
		if profileID != "" && contact != "" {
			directory[profileID] = contact
		}
	}
	return directory
}
