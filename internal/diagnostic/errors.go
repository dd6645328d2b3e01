package diagnostic

import (
	"fmt"
	"strings"

	"github.com/bgdnvk/shopfloor/internal/expectation"
)

// fail turns resp into an error response. Sections explain what is missing
// and, when a verdict was already computed, restate it so the caller keeps
// the deterministic judgment.
func fail(resp *Response, code string, err error) *Response {
	md := &resp.Metadata
	md.Error = true
	md.ErrorCode = code
	md.ErrorMessage = err.Error()

	target := md.EquipmentID
	if md.Scope != "" {
		target = md.Scope + " " + md.EquipmentID
	}

	switch code {
	case CodeEquipmentNotFound:
		resp.Sections = Sections{
			WhatIsHappening:    fmt.Sprintf("No diagnostic could be produced: %s was not found in the current plant snapshot.", target),
			WhyThisIsHappening: "The requested equipment id does not match any line or station reported by the runtime. Error: " + md.ErrorMessage,
			WhatToDoNow:        "Check the equipment id and scope (line or station) and retry.",
			WhatToCheckNext:    "List the lines and stations in the runtime snapshot to confirm the expected id.",
		}
	case CodeModelUnavailable:
		resp.Sections = Sections{
			WhatIsHappening:    fmt.Sprintf("The language model is unavailable, so no narrative explanation was generated for %s. %s", target, verdictSummary(md)),
			WhyThisIsHappening: "The model call failed: " + md.ErrorMessage + ". Expectation checks do not depend on the model and were completed.",
			WhatToDoNow:        nextStepsFor(md),
			WhatToCheckNext:    "Check the model provider configuration and connectivity, then retry for a full explanation.",
		}
	case CodeUnknownProfile:
		resp.Sections = Sections{
			WhatIsHappening:    "No diagnostic could be produced because the requested domain profile is not configured.",
			WhyThisIsHappening: md.ErrorMessage,
			WhatToDoNow:        "Use one of the configured profiles or omit the profile to use the active one.",
			WhatToCheckNext:    "Review the profiles configuration file.",
		}
	case CodeCancelled:
		resp.Sections = Sections{
			WhatIsHappening:    fmt.Sprintf("The diagnostic request for %s was cancelled or timed out before completion.", target),
			WhyThisIsHappening: md.ErrorMessage,
			WhatToDoNow:        "Retry the request.",
			WhatToCheckNext:    "If this repeats, check the latency of the runtime, knowledge index and model endpoints.",
		}
	default:
		resp.Sections = Sections{
			WhatIsHappening:    fmt.Sprintf("No diagnostic could be produced for %s because runtime data is unavailable.", target),
			WhyThisIsHappening: "The runtime snapshot or semantic signals could not be fetched. Error: " + md.ErrorMessage,
			WhatToDoNow:        "Verify that the runtime service is reachable and retry.",
			WhatToCheckNext:    "Check runtime service health and network connectivity from this host.",
		}
	}
	return resp
}

func verdictSummary(md *Metadata) string {
	if len(md.ExpectationViolations) == 0 && len(md.BlockingConditions) == 0 && len(md.ExpectationWarnings) == 0 {
		return fmt.Sprintf("Expectation verdict: severity %s, no violations.", md.Severity)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Expectation verdict: severity %s.", md.Severity)
	if len(md.ExpectationViolations) > 0 {
		fmt.Fprintf(&b, " Violations: %s.", strings.Join(md.ExpectationViolations, ", "))
	}
	if len(md.BlockingConditions) > 0 {
		fmt.Fprintf(&b, " Blocking: %s.", strings.Join(md.BlockingConditions, ", "))
	}
	if len(md.ExpectationWarnings) > 0 {
		fmt.Fprintf(&b, " Warnings: %s.", strings.Join(md.ExpectationWarnings, ", "))
	}
	return b.String()
}

func nextStepsFor(md *Metadata) string {
	if md.Severity == expectation.SeverityCritical {
		return "Blocking conditions are present: obtain human confirmation before continuing production."
	}
	return "Follow the standard procedure for this equipment until an explanation is available."
}
