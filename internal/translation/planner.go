package translation

import (
	"fmt"
	"strings"

	"horse.fit/transync/internal/db"
	"horse.fit/transync/internal/gengo"
)

const jobTypeText = "text"

type planOptions struct {
	QuoteOnly    bool
	AutoApprove  bool
	UsePreferred bool
	CallbackURL  string
	Languages    languageMap
}

// submissionPlan is the outbound batch for one job plus the duplicate groups
// found while building it. Duplicates maps a canonical item key to the keys
// that share its source text and were left out of the batch.
type submissionPlan struct {
	JobID      int64
	Batch      *gengo.Batch
	Duplicates map[string][]string
	Skipped    int
}

func (p submissionPlan) duplicatesOf(key ItemKey) []string {
	return p.Duplicates[key.String()]
}

// planSubmission walks the job's data items in order and builds the batch.
// Items flagged as not translatable are skipped. Outside quote mode an item
// whose source text equals an earlier emitted item's text joins that item's
// duplicate group instead of being sent.
func planSubmission(job *db.Job, opts planOptions) (submissionPlan, error) {
	if job == nil {
		return submissionPlan{}, fmt.Errorf("job is nil")
	}

	plan := submissionPlan{
		JobID:      job.JobID,
		Batch:      gengo.NewBatch(),
		Duplicates: map[string][]string{},
	}

	sourceLang := opts.Languages.remote(job.SourceLang)
	targetLang := opts.Languages.remote(job.TargetLang)
	comment := strings.TrimSpace(job.Comment)

	canonicalBySource := map[string]ItemKey{}
	position := 0

	for _, item := range job.Items {
		for _, data := range item.DataItems {
			if !data.Translatable() {
				plan.Skipped++
				continue
			}
			if err := ValidatePath(data.Path); err != nil {
				return submissionPlan{}, fmt.Errorf("job item %d: %w", item.JobItemID, err)
			}

			key := ItemKey{JobItemID: item.JobItemID, Path: data.Path}
			if !opts.QuoteOnly {
				if canonical, seen := canonicalBySource[data.SourceText]; seen {
					canonicalKey := canonical.String()
					plan.Duplicates[canonicalKey] = append(plan.Duplicates[canonicalKey], key.String())
					continue
				}
				canonicalBySource[data.SourceText] = key
			}

			token := Token{JobID: job.JobID, Item: key}.String()
			plan.Batch.Add(token, gengo.JobRequest{
				Type:         jobTypeText,
				Slug:         dataItemLabel(item, data),
				BodySrc:      data.SourceText,
				LcSrc:        sourceLang,
				LcTgt:        targetLang,
				Tier:         job.Tier,
				CallbackURL:  opts.CallbackURL,
				CustomData:   token,
				Position:     position,
				AutoApprove:  boolInt(opts.AutoApprove),
				UsePreferred: boolInt(opts.UsePreferred),
				Comment:      comment,
			})
			position++
		}
	}

	return plan, nil
}

func dataItemLabel(item db.JobItem, data db.DataItem) string {
	if label := strings.TrimSpace(data.Label); label != "" {
		return label
	}
	if label := strings.TrimSpace(item.Label); label != "" {
		return label + " / " + data.Path
	}
	return data.Path
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
