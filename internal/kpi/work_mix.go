package kpi

import (
	"context"

	"github.com/danielolaszy/cadence/internal/labels"
	"github.com/danielolaszy/cadence/pkg/models"
)

func (c *calculator) workMix(ctx context.Context) (*WorkMix, error) {
	issues, err := c.scopedIssues(ctx)
	if err != nil {
		return nil, err
	}

	cutoff := c.cutoff(c.windowDays())
	counts := make(map[string]int)
	total := 0

	for _, issue := range issues {
		if !isType(issue, "Epic", "Story", "Task") || issue.Created.Before(cutoff) {
			continue
		}
		total++
		counts[c.category(issue)]++
	}

	rec := EmptyWorkMix()
	rec.TotalIssues = total
	for category, n := range counts {
		rec.Distribution[category] = c.workMixEntry(category, n, total)
	}
	return rec, nil
}

// category classifies an issue into exactly one work category.
func (c *calculator) category(issue models.Issue) string {
	if c.labels == nil {
		return UnlabeledCategory
	}

	if c.settings.WorkMix.CategoryOrder == OrderConfigured {
		held := make(map[string]struct{}, len(issue.Labels))
		for _, l := range issue.Labels {
			held[l] = struct{}{}
		}
		for _, l := range c.labels.LabelsFor(issue.Project) {
			if _, ok := held[l]; ok {
				return l
			}
		}
		return UnlabeledCategory
	}

	recognized := c.labels.Set(issue.Project)
	for _, l := range issue.Labels {
		if _, ok := recognized[l]; ok {
			return l
		}
	}
	return UnlabeledCategory
}

func (c *calculator) workMixEntry(category string, count, total int) WorkMixEntry {
	return WorkMixEntry{
		Count:      count,
		Percentage: percentage(count, total),
		Name:       categoryName(c.labels, category),
		Group:      categoryGroup(c.labels, category),
	}
}

func categoryName(table *labels.Table, category string) string {
	if category == UnlabeledCategory {
		return "Unlabeled"
	}
	if table != nil {
		if c, ok := table.Lookup(category); ok {
			return c.Name
		}
	}
	return category
}

func categoryGroup(table *labels.Table, category string) string {
	if table != nil {
		if c, ok := table.Lookup(category); ok {
			return c.Group
		}
	}
	return ""
}
