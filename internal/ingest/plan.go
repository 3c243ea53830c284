package ingest

import (
	"sort"

	"sayit/api/internal/cache"
	"sayit/api/internal/store"
)

type PlanInput struct {
	Filename     string
	DisplayName  string
	Old          []store.Section
	OldRelations []string
	// Final is the relinked section list that should exist after the write.
	Final []store.Section
	// SpeakerNames maps each slug in Final to the name it was written with.
	SpeakerNames map[string]string
	// TopLevel marks inserted IDs taken from the global sequence.
	TopLevel map[int64]bool
}

// Plan is the write batch for one reconcile call plus what it changes.
type Plan struct {
	DisplayName string
	Batch       store.Batch
	Inserted    int
	Updated     int
	Deleted     int
	DeletedIDs  []int64
	Speakers    []string
	// PruneCandidates are speakers this speech stopped referencing. The batch
	// removes those that no other speech references either.
	PruneCandidates []string
	Invalidate      []string
}

// BuildPlan classifies every section as insert, update or delete and
// rebuilds the speech's speaker relations.
//
// Operation order inside the batch: upsert speech, ensure speakers, delete,
// update, insert, remove relations, add relations, prune speakers. Pruning
// comes last so it sees the final state of sections and relations.
func BuildPlan(in PlanInput) Plan {
	oldByID := make(map[int64]store.Section, len(in.Old))
	oldSpeakers := map[string]struct{}{}
	for _, s := range in.Old {
		oldByID[s.ID] = s
		if s.Speaker != "" {
			oldSpeakers[s.Speaker] = struct{}{}
		}
	}
	finalIDs := make(map[int64]struct{}, len(in.Final))
	finalSpeakers := map[string]struct{}{}
	for _, s := range in.Final {
		finalIDs[s.ID] = struct{}{}
		if s.Speaker != "" {
			finalSpeakers[s.Speaker] = struct{}{}
		}
	}

	plan := Plan{DisplayName: in.DisplayName}
	var deletes, updates, inserts store.Batch
	var changed []int64
	for _, s := range in.Old {
		if _, ok := finalIDs[s.ID]; ok {
			continue
		}
		deletes = append(deletes, store.DeleteSection{ID: s.ID})
		plan.DeletedIDs = append(plan.DeletedIDs, s.ID)
		changed = append(changed, s.ID)
	}
	for _, s := range in.Final {
		s.Filename = in.Filename
		if prev, ok := oldByID[s.ID]; ok {
			updates = append(updates, store.UpdateSection{Section: s})
			if !sameRow(prev, s) {
				changed = append(changed, s.ID)
			}
			continue
		}
		inserts = append(inserts, store.InsertSection{Section: s, TopLevel: in.TopLevel[s.ID]})
		changed = append(changed, s.ID)
	}
	plan.Deleted = len(deletes)
	plan.Updated = len(updates)
	plan.Inserted = len(inserts)

	oldRelations := map[string]struct{}{}
	for _, slug := range in.OldRelations {
		oldRelations[slug] = struct{}{}
	}
	plan.Speakers = sortedSet(finalSpeakers)

	var removes, adds, prunes store.Batch
	for _, slug := range sortedSet(oldRelations) {
		if _, keep := finalSpeakers[slug]; !keep {
			removes = append(removes, store.RemoveRelation{Filename: in.Filename, Speaker: slug})
		}
	}
	for _, slug := range plan.Speakers {
		if _, exists := oldRelations[slug]; !exists {
			adds = append(adds, store.AddRelation{Filename: in.Filename, Speaker: slug})
		}
	}
	candidates := map[string]struct{}{}
	for slug := range oldRelations {
		candidates[slug] = struct{}{}
	}
	for slug := range oldSpeakers {
		candidates[slug] = struct{}{}
	}
	for slug := range finalSpeakers {
		delete(candidates, slug)
	}
	plan.PruneCandidates = sortedSet(candidates)
	for _, slug := range plan.PruneCandidates {
		prunes = append(prunes, store.PruneSpeaker{Slug: slug})
	}

	plan.Batch = append(plan.Batch, store.UpsertSpeech{Filename: in.Filename, DisplayName: in.DisplayName})
	for _, slug := range plan.Speakers {
		name := in.SpeakerNames[slug]
		if name == "" {
			name = slug
		}
		plan.Batch = append(plan.Batch, store.EnsureSpeaker{Slug: slug, Name: name})
	}
	plan.Batch = append(plan.Batch, deletes...)
	plan.Batch = append(plan.Batch, updates...)
	plan.Batch = append(plan.Batch, inserts...)
	plan.Batch = append(plan.Batch, removes...)
	plan.Batch = append(plan.Batch, adds...)
	plan.Batch = append(plan.Batch, prunes...)

	plan.Invalidate = invalidationKeys(in.Filename, plan, changed)
	return plan
}

func invalidationKeys(filename string, plan Plan, changed []int64) []string {
	keys := []string{
		cache.SpeechKey(filename),
		cache.KeySpeechIndex,
		cache.KeySpeakerIndex,
	}
	touched := map[string]struct{}{}
	for _, slug := range plan.Speakers {
		touched[slug] = struct{}{}
	}
	for _, slug := range plan.PruneCandidates {
		touched[slug] = struct{}{}
	}
	for _, slug := range sortedSet(touched) {
		keys = append(keys, cache.SpeakerKey(slug))
	}
	sort.Slice(changed, func(i, j int) bool { return changed[i] < changed[j] })
	for _, id := range changed {
		keys = append(keys, cache.SectionKey(id))
	}
	return keys
}

func sameRow(a, b store.Section) bool {
	return a.Speaker == b.Speaker &&
		a.Content == b.Content &&
		equalLink(a.Previous, b.Previous) &&
		equalLink(a.Next, b.Next)
}

func equalLink(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func sortedSet(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for key := range set {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}
