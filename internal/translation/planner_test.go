package translation

import (
	"reflect"
	"strconv"
	"testing"

	"horse.fit/transync/internal/db"
)

func TestPlanSubmissionDeduplicatesSourceText(t *testing.T) {
	t.Parallel()

	job := newTextJob(7, 1, "Hello", "World", "Hello")
	plan, err := planSubmission(job, planOptions{Languages: newLanguageMap(nil)})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}

	if plan.Batch.Len() != 2 {
		t.Fatalf("unexpected batch size: got %d want 2", plan.Batch.Len())
	}
	wantKeys := []string{"7][1][p0", "7][1][p1"}
	if got := plan.Batch.Keys(); !reflect.DeepEqual(got, wantKeys) {
		t.Fatalf("unexpected batch keys: got %v want %v", got, wantKeys)
	}
	wantGroups := map[string][]string{"1][p0": {"1][p2"}}
	if !reflect.DeepEqual(plan.Duplicates, wantGroups) {
		t.Fatalf("unexpected duplicate groups: got %v want %v", plan.Duplicates, wantGroups)
	}

	for idx, key := range plan.Batch.Keys() {
		req, _ := plan.Batch.Get(key)
		if req.Position != idx {
			t.Fatalf("unexpected position for %s: got %d want %d", key, req.Position, idx)
		}
		if req.CustomData != key {
			t.Fatalf("unexpected custom data: got %q want %q", req.CustomData, key)
		}
	}
}

func TestPlanSubmissionRequestFields(t *testing.T) {
	t.Parallel()

	job := newTextJob(3, 9, "Hello")
	job.SourceLang = "zh-hans"
	job.TargetLang = "en"
	job.Tier = "pro"
	job.Comment = "  keep it short  "
	job.Items[0].DataItems[0].Label = "Title"

	plan, err := planSubmission(job, planOptions{
		AutoApprove: true,
		CallbackURL: "https://example.test/cb",
		Languages:   newLanguageMap(map[string]string{"zh-hans": "zh"}),
	})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}

	req, ok := plan.Batch.Get("3][9][p0")
	if !ok {
		t.Fatalf("expected batch entry for token")
	}
	if req.Type != "text" || req.Slug != "Title" || req.BodySrc != "Hello" {
		t.Fatalf("unexpected request body fields: %+v", req)
	}
	if req.LcSrc != "zh" || req.LcTgt != "en" || req.Tier != "pro" {
		t.Fatalf("unexpected language fields: %+v", req)
	}
	if req.AutoApprove != 1 || req.UsePreferred != 0 {
		t.Fatalf("unexpected flags: auto_approve=%d use_preferred=%d", req.AutoApprove, req.UsePreferred)
	}
	if req.CallbackURL != "https://example.test/cb" || req.Comment != "keep it short" {
		t.Fatalf("unexpected callback/comment: %+v", req)
	}
}

func TestPlanSubmissionSkipsUntranslatable(t *testing.T) {
	t.Parallel()

	job := newTextJob(7, 1, "Hello", "World")
	skip := false
	job.Items[0].DataItems[0].Translate = &skip

	plan, err := planSubmission(job, planOptions{})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if plan.Batch.Len() != 1 || plan.Skipped != 1 {
		t.Fatalf("unexpected plan: size=%d skipped=%d", plan.Batch.Len(), plan.Skipped)
	}
	req, _ := plan.Batch.Get("7][1][p1")
	if req.Position != 0 {
		t.Fatalf("unexpected position: got %d want 0", req.Position)
	}
}

func TestPlanSubmissionEmptyTextsDeduplicate(t *testing.T) {
	t.Parallel()

	job := newTextJob(7, 1, "", "x", "")
	plan, err := planSubmission(job, planOptions{})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if plan.Batch.Len() != 2 {
		t.Fatalf("unexpected batch size: got %d want 2", plan.Batch.Len())
	}
	if got := plan.Duplicates["1][p0"]; !reflect.DeepEqual(got, []string{"1][p2"}) {
		t.Fatalf("unexpected empty-text group: %v", got)
	}
}

func TestPlanSubmissionQuoteOnlyKeepsDuplicates(t *testing.T) {
	t.Parallel()

	job := newTextJob(7, 1, "Hello", "World", "Hello")
	plan, err := planSubmission(job, planOptions{QuoteOnly: true})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if plan.Batch.Len() != 3 {
		t.Fatalf("unexpected batch size: got %d want 3", plan.Batch.Len())
	}
	if len(plan.Duplicates) != 0 {
		t.Fatalf("expected no duplicate groups in quote mode, got %v", plan.Duplicates)
	}
}

func TestPlanSubmissionDuplicatesAcrossItems(t *testing.T) {
	t.Parallel()

	job := newTextJob(7, 1, "Hello")
	job.Items = append(job.Items, db.JobItem{
		JobItemID: 2,
		DataItems: []db.DataItem{{JobItemID: 2, Path: "body", SourceText: "Hello"}},
	})

	plan, err := planSubmission(job, planOptions{})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if got := plan.Duplicates["1][p0"]; !reflect.DeepEqual(got, []string{"2][body"}) {
		t.Fatalf("unexpected cross-item group: %v", got)
	}
}

func TestPlanSubmissionRejectsDelimiterInPath(t *testing.T) {
	t.Parallel()

	job := newTextJob(7, 1, "Hello")
	job.Items[0].DataItems[0].Path = "a][b"
	if _, err := planSubmission(job, planOptions{}); err == nil {
		t.Fatalf("expected error for path containing the token delimiter")
	}
}

func TestPlanSubmissionGroupInvariants(t *testing.T) {
	t.Parallel()

	texts := make([]string, 0, 40)
	for i := 0; i < 40; i++ {
		texts = append(texts, "text-"+strconv.Itoa((i*7)%11))
	}
	job := newTextJob(5, 4, texts...)
	skip := false
	job.Items[0].DataItems[3].Translate = &skip
	job.Items[0].DataItems[17].Translate = &skip

	plan, err := planSubmission(job, planOptions{})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}

	translatable := 0
	distinct := map[string]struct{}{}
	for _, data := range job.Items[0].DataItems {
		if !data.Translatable() {
			continue
		}
		translatable++
		distinct[data.SourceText] = struct{}{}
	}
	grouped := 0
	for _, keys := range plan.Duplicates {
		grouped += len(keys)
	}
	if plan.Batch.Len() != translatable-grouped || plan.Batch.Len() != len(distinct) {
		t.Fatalf("unexpected batch size: got %d translatable %d grouped %d distinct %d",
			plan.Batch.Len(), translatable, grouped, len(distinct))
	}

	seen := map[string]string{}
	for canonical, keys := range plan.Duplicates {
		for _, key := range keys {
			if key == canonical {
				t.Fatalf("canonical key %s listed in its own group", canonical)
			}
			if owner, exists := seen[key]; exists {
				t.Fatalf("key %s in groups %s and %s", key, owner, canonical)
			}
			if _, isCanonical := plan.Duplicates[key]; isCanonical {
				t.Fatalf("duplicate key %s is also a canonical key", key)
			}
			seen[key] = canonical
		}
	}
}
