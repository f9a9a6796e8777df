package models

import "strings"

// TaxonomySubcategory is one subcategory with its known topics.
type TaxonomySubcategory struct {
	Name   string   `json:"name" yaml:"name"`
	Topics []string `json:"topics,omitempty" yaml:"topics,omitempty"`
}

// TaxonomyCategory is one category with its subcategories.
type TaxonomyCategory struct {
	Name          string                `json:"name" yaml:"name"`
	Subcategories []TaxonomySubcategory `json:"subcategories,omitempty" yaml:"subcategories,omitempty"`
}

// Taxonomy is the enumerated label hierarchy a classification must match:
// category > subcategory > topic. Category names are Title Case, subcategory
// and topic names are lowercase.
type Taxonomy struct {
	Categories []TaxonomyCategory `json:"categories" yaml:"categories"`
}

// HasCategory reports whether the category label exists.
func (t *Taxonomy) HasCategory(category string) bool {
	for _, c := range t.Categories {
		if strings.EqualFold(c.Name, category) {
			return true
		}
	}
	return false
}

// HasSubcategory reports whether category > subcategory exists.
func (t *Taxonomy) HasSubcategory(category, subcategory string) bool {
	for _, c := range t.Categories {
		if !strings.EqualFold(c.Name, category) {
			continue
		}
		for _, s := range c.Subcategories {
			if strings.EqualFold(s.Name, subcategory) {
				return true
			}
		}
	}
	return false
}

// HasTopic reports whether category > subcategory > topic exists.
func (t *Taxonomy) HasTopic(category, subcategory, topic string) bool {
	for _, c := range t.Categories {
		if !strings.EqualFold(c.Name, category) {
			continue
		}
		for _, s := range c.Subcategories {
			if !strings.EqualFold(s.Name, subcategory) {
				continue
			}
			for _, tp := range s.Topics {
				if strings.EqualFold(tp, topic) {
					return true
				}
			}
		}
	}
	return false
}

// Merge adds the category > subcategory > topic path, creating any missing
// levels. Returns which levels were newly added. Merging an existing path is
// a no-op.
func (t *Taxonomy) Merge(category, subcategory, topic string) (catAdded, subAdded, topicAdded bool) {
	var cat *TaxonomyCategory
	for i := range t.Categories {
		if strings.EqualFold(t.Categories[i].Name, category) {
			cat = &t.Categories[i]
			break
		}
	}
	if cat == nil {
		t.Categories = append(t.Categories, TaxonomyCategory{Name: category})
		cat = &t.Categories[len(t.Categories)-1]
		catAdded = true
	}

	if subcategory == "" {
		return catAdded, false, false
	}
	var sub *TaxonomySubcategory
	for i := range cat.Subcategories {
		if strings.EqualFold(cat.Subcategories[i].Name, subcategory) {
			sub = &cat.Subcategories[i]
			break
		}
	}
	if sub == nil {
		cat.Subcategories = append(cat.Subcategories, TaxonomySubcategory{Name: subcategory})
		sub = &cat.Subcategories[len(cat.Subcategories)-1]
		subAdded = true
	}

	if topic == "" {
		return catAdded, subAdded, false
	}
	for _, tp := range sub.Topics {
		if strings.EqualFold(tp, topic) {
			return catAdded, subAdded, false
		}
	}
	sub.Topics = append(sub.Topics, topic)
	return catAdded, subAdded, true
}
