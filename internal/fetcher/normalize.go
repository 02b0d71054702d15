package fetcher

import (
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/funding-cli/internal/model"
	"github.com/sells-group/funding-cli/internal/pipeline"
	"github.com/sells-group/funding-cli/pkg/searchapi"
)

// Extra field names written by Normalize.
const (
	FieldTitle           = "title"
	FieldCallTitle       = "call_title"
	FieldCallIdentifier  = "call_identifier"
	FieldURL             = "url"
	FieldLanguage        = "language"
	FieldTypeOfAction    = "type_of_action"
	FieldStatus          = "status"
	FieldStartDate       = "start_date"
	FieldDeadlineDate    = "deadline_date"
	FieldDeadlineModel   = "deadline_model"
	FieldExpectedOutcome = "expected_outcome"
	FieldScope           = "scope"
	FieldBudget          = "budget"
	FieldTags            = "tags"
	FieldKeywords        = "keywords"
	FieldRaw             = "raw"
)

// Normalize turns the chosen search result for ref into an enriched record.
// The topic identifier, cluster and year come from ref, falling back to the
// identifier pattern; everything else comes from the result. Empty values
// are left out.
func Normalize(ref model.TopicRef, r searchapi.Result, includeRaw bool) (model.CallRecord, error) {
	rec := model.CallRecord{
		ID:                     ref.ID,
		Cluster:                ref.Cluster,
		Year:                   ref.Year,
		DestinationDescription: strings.TrimSpace(r.MetaFirst("destinationDescription")),
	}
	if rec.Cluster == 0 || rec.Year == 0 {
		if c, y, ok := pipeline.ParseTopicIdentifier(ref.ID); ok {
			if rec.Cluster == 0 {
				rec.Cluster = c
			}
			if rec.Year == 0 {
				rec.Year = y
			}
		}
	}

	sections, err := DescriptionSections(r.MetaFirst("descriptionByte"))
	if err != nil {
		return rec, err
	}

	title := firstNonEmpty(r.MetaFirst("title"), r.Title, r.Summary)
	strs := []struct {
		key, val string
	}{
		{FieldTitle, title},
		{FieldCallTitle, r.MetaFirst("callTitle")},
		{FieldCallIdentifier, r.MetaFirst("callIdentifier")},
		{FieldURL, firstNonEmpty(r.URL, r.MetaFirst("url"))},
		{FieldLanguage, r.Language},
		{FieldTypeOfAction, r.MetaFirst("typesOfAction")},
		{FieldStatus, r.MetaFirst("status")},
		{FieldStartDate, r.MetaFirst("startDate")},
		{FieldDeadlineDate, r.MetaFirst("deadlineDate")},
		{FieldDeadlineModel, r.MetaFirst("deadlineModel")},
		{FieldExpectedOutcome, sections[SectionExpectedOutcome]},
		{FieldScope, sections[SectionScope]},
	}
	for _, f := range strs {
		if v := strings.TrimSpace(f.val); v != "" {
			if err := rec.SetExtra(f.key, v); err != nil {
				return rec, err
			}
		}
	}

	if budget := MatchBudget(r.MetaFirst("budgetOverview"), ref.ID); budget != nil {
		if err := rec.SetExtra(FieldBudget, budget); err != nil {
			return rec, err
		}
	}
	for key, meta := range map[string]string{FieldTags: "tags", FieldKeywords: "keywords"} {
		if vals := r.Meta(meta); len(vals) > 0 {
			if err := rec.SetExtra(key, vals); err != nil {
				return rec, err
			}
		}
	}
	if includeRaw && len(r.Raw) > 0 {
		if err := rec.SetExtra(FieldRaw, r.Raw); err != nil {
			return rec, eris.Wrapf(err, "fetch: keep raw result for %s", ref.ID)
		}
	}
	return rec, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
