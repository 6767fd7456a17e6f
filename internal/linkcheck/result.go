package linkcheck

import (
	"fmt"
	"math"
	"net/http"
	"time"
)

// HealthScore returns the rounded percentage of links that are not broken.
func HealthScore(total, broken int) int {
	if total <= 0 {
		return 100
	}
	if broken < 0 {
		broken = 0
	}
	if broken > total {
		broken = total
	}
	return int(math.Round(100 * float64(total-broken) / float64(total)))
}

// BuildResult aggregates the checked links of one page into a Result.
func BuildResult(jobID, targetURL string, pages int, checked []CheckedLink, elapsed time.Duration) Result {
	broken := make([]CheckedLink, 0)
	for _, link := range checked {
		if link.Broken() {
			broken = append(broken, link)
		}
	}
	score := HealthScore(len(checked), len(broken))
	return Result{
		AnalysisID: jobID,
		TargetURL:  targetURL,
		Summary: Summary{
			TotalPages:     pages,
			TotalLinks:     len(checked),
			BrokenLinks:    len(broken),
			HealthScore:    score,
			AnalysisTimeMs: elapsed.Milliseconds(),
		},
		BrokenLinks:     broken,
		Recommendations: Recommendations(broken, score),
	}
}

// Recommendations produces remediation hints in a fixed order.
func Recommendations(broken []CheckedLink, score int) []string {
	if len(broken) == 0 {
		return []string{"No broken links found. Keep monitoring your site regularly."}
	}

	var internal, external, images, missing, serverErr, unreachable int
	for _, link := range broken {
		if link.Classification == Internal {
			internal++
		} else {
			external++
		}
		if link.Kind == KindImage {
			images++
		}
		switch {
		case link.StatusCode == http.StatusNotFound || link.StatusCode == http.StatusGone:
			missing++
		case link.StatusCode >= http.StatusInternalServerError:
			serverErr++
		case link.StatusCode == 0:
			unreachable++
		}
	}

	var out []string
	if internal > 0 {
		out = append(out, fmt.Sprintf("Fix %d broken internal link(s); these are fully under your control.", internal))
	}
	if external > 0 {
		out = append(out, fmt.Sprintf("Update or remove %d broken external link(s).", external))
	}
	if images > 0 {
		out = append(out, fmt.Sprintf("Replace %d missing image(s).", images))
	}
	if missing > 0 {
		out = append(out, "Set up 301 redirects for moved pages that now return 404 or 410.")
	}
	if serverErr > 0 {
		out = append(out, "Some targets returned server errors; re-check them later as the failures may be temporary.")
	}
	if unreachable > 0 {
		out = append(out, "Some links timed out or could not be reached; verify the hosts and URLs.")
	}
	if score < 80 {
		out = append(out, "Health score is below 80; prioritise fixing broken links to protect SEO and user experience.")
	}
	return out
}
