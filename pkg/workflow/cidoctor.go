package workflow

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	goslack "github.com/slack-go/slack"

	"github.com/nightwatchhq/nightwatch/pkg/github"
)

// diagnosis is the verdict a known failure pattern maps to.
type diagnosis struct {
	summary    string
	category   string
	confidence float64
	fix        string
	transient  bool
}

type knownPattern struct {
	re   *regexp.Regexp
	diag diagnosis
}

// knownPatterns match common CI failure signatures. Order matters: the
// first match wins.
var knownPatterns = []knownPattern{
	{
		re: regexp.MustCompile(`(?i)ETIMEDOUT|ECONNREFUSED|network timeout`),
		diag: diagnosis{
			summary:    "Network timeout or connection refused",
			category:   "infrastructure",
			confidence: 0.95,
			fix:        "Retry the workflow — likely a transient network issue",
			transient:  true,
		},
	},
	{
		re: regexp.MustCompile(`(?i)rate limit|API rate limit exceeded|403.*rate`),
		diag: diagnosis{
			summary:    "API rate limit exceeded",
			category:   "rate_limit",
			confidence: 0.95,
			fix:        "Wait and retry, or add rate limiting/caching",
			transient:  true,
		},
	},
	{
		re: regexp.MustCompile(`(?i)No space left on device|disk full|ENOSPC`),
		diag: diagnosis{
			summary:    "Disk space exhausted on runner",
			category:   "resource_limit",
			confidence: 0.95,
			fix:        "Clean up disk space or use a larger runner",
		},
	},
	{
		re: regexp.MustCompile(`(?i)Out of memory|OOMKilled|MemoryError`),
		diag: diagnosis{
			summary:    "Out of memory on runner",
			category:   "resource_limit",
			confidence: 0.90,
			fix:        "Optimize memory usage or use a larger runner",
		},
	},
}

// CIDoctorWorkflow diagnoses failed GitHub Actions runs against known
// failure signatures and proposes a fix comment for confident matches.
type CIDoctorWorkflow struct {
	Base
	gh *github.Client
}

// NewCIDoctorWorkflow creates the CI doctor over the given GitHub client.
func NewCIDoctorWorkflow(gh *github.Client) *CIDoctorWorkflow {
	return &CIDoctorWorkflow{
		Base: NewBase("ci_doctor",
			"Diagnose failed CI runs and suggest fixes",
			OutputAddComment, OutputAddLabel, OutputSendSlack),
		gh: gh,
	}
}

func (w *CIDoctorWorkflow) Fetch(ctx context.Context) ([]Item, error) {
	runs, err := w.gh.ListFailedRuns(ctx, 10)
	if err != nil {
		return nil, fmt.Errorf("list failed runs: %w", err)
	}

	items := make([]Item, 0, len(runs))
	for _, run := range runs {
		sha := run.HeadSHA
		if len(sha) > 8 {
			sha = sha[:8]
		}
		item := Item{
			ID:      strconv.FormatInt(run.ID, 10),
			Title:   fmt.Sprintf("%s #%d", run.Name, run.RunNumber),
			RawData: run,
			Metadata: map[string]string{
				"branch":     run.HeadBranch,
				"sha":        sha,
				"created_at": run.CreatedAt,
				"url":        run.HTMLURL,
			},
		}
		// Failed step names stand in for job logs, which need a
		// separate download token.
		if summary, err := w.gh.RunJobSummary(ctx, run.ID); err == nil {
			item.Metadata["log_text"] = summary
		} else {
			w.logger.Warn("Could not fetch job summary", "run_id", run.ID, "error", err)
		}
		items = append(items, item)
	}
	return items, nil
}

// Filter keeps at most five runs, main/master branches first.
func (w *CIDoctorWorkflow) Filter(items []Item) []Item {
	sorted := make([]Item, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		mi := mainBranch(sorted[i].Metadata["branch"])
		mj := mainBranch(sorted[j].Metadata["branch"])
		if mi != mj {
			return mi
		}
		ni, _ := strconv.ParseInt(sorted[i].ID, 10, 64)
		nj, _ := strconv.ParseInt(sorted[j].ID, 10, 64)
		return ni > nj
	})
	if len(sorted) > 5 {
		sorted = sorted[:5]
	}
	return sorted
}

func (w *CIDoctorWorkflow) Analyze(_ context.Context, items []Item) []Analysis {
	var analyses []Analysis
	for _, item := range items {
		logText := item.Metadata["log_text"] + "\n" + item.Title
		diag, matched := diagnose(logText)
		if !matched {
			analyses = append(analyses, Analysis{
				Item:    item,
				Summary: "Requires deeper analysis",
				Details: map[string]string{"category": "unknown"},
			})
			continue
		}
		analyses = append(analyses, Analysis{
			Item:    item,
			Summary: diag.summary,
			Details: map[string]string{
				"category":      diag.category,
				"suggested_fix": diag.fix,
			},
			Transient:  diag.transient,
			Confidence: diag.confidence,
		})
	}
	return analyses
}

func (w *CIDoctorWorkflow) Act(_ context.Context, analyses []Analysis, dryRun bool) []Action {
	var actions []Action
	for _, a := range analyses {
		if a.Confidence <= 0.5 || !w.CheckSafeOutput(OutputAddComment) {
			continue
		}
		actions = append(actions, Action{
			Type:   OutputAddComment,
			Target: a.Item.Title,
			Details: map[string]string{
				"comment": diagnosisComment(a),
				"url":     a.Item.Metadata["url"],
			},
			Success: !dryRun,
		})
	}
	return actions
}

func (w *CIDoctorWorkflow) ReportSection(result Result) []goslack.Block {
	if len(result.Analyses) == 0 {
		return nil
	}
	blocks := []goslack.Block{
		section(fmt.Sprintf("*CI Doctor* — %d failures diagnosed", len(result.Analyses))),
	}
	shown := result.Analyses
	if len(shown) > 5 {
		shown = shown[:5]
	}
	for _, a := range shown {
		emoji := "🔴"
		if a.Transient {
			emoji = "✅"
		}
		blocks = append(blocks, section(fmt.Sprintf("%s %s: %s (%.0f%%)",
			emoji, a.Item.Title, a.Summary, a.Confidence*100)))
	}
	return blocks
}

func diagnose(logText string) (diagnosis, bool) {
	for _, p := range knownPatterns {
		if p.re.MatchString(logText) {
			return p.diag, true
		}
	}
	return diagnosis{}, false
}

func diagnosisComment(a Analysis) string {
	transient := "No"
	if a.Transient {
		transient = "Yes"
	}
	var b strings.Builder
	b.WriteString("## 🔍 NightWatch CI Diagnosis\n\n")
	b.WriteString("| | |\n|---|---|\n")
	fmt.Fprintf(&b, "| Root Cause | %s |\n", a.Summary)
	fmt.Fprintf(&b, "| Category | %s |\n", a.Details["category"])
	fmt.Fprintf(&b, "| Confidence | %.0f%% |\n", a.Confidence*100)
	fmt.Fprintf(&b, "| Suggested Fix | %s |\n", a.Details["suggested_fix"])
	fmt.Fprintf(&b, "| Transient | %s |\n", transient)
	return b.String()
}

func mainBranch(name string) bool {
	return name == "main" || name == "master"
}
