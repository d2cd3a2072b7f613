package agent

import (
	"fmt"
	"strings"
)

// RoleProfile is the static configuration for one specialized agent role.
type RoleProfile struct {
	Role         string
	Name         string
	Instruction  string
	Capabilities []string
	Tools        []string
}

// Agent role identifiers. Adding a role means adding a profile here; the
// planner catalog is derived from the same table.
const (
	RoleCareerCoach     = "career_coach"
	RoleResumeOptimizer = "resume_optimizer"
	RoleJobMatcher      = "job_matcher"
	RoleResearch        = "research"
	RoleWriting         = "writing"
	RoleInterviewPrep   = "interview_prep"
)

// roleOrder fixes the catalog ordering sent to the planner.
var roleOrder = []string{
	RoleCareerCoach,
	RoleResumeOptimizer,
	RoleJobMatcher,
	RoleResearch,
	RoleWriting,
	RoleInterviewPrep,
}

var roleProfiles = map[string]RoleProfile{
	RoleCareerCoach: {
		Role: RoleCareerCoach,
		Name: "Career Coach",
		Instruction: "You are an experienced career coach. Give practical, specific " +
			"guidance on career strategy, growth plans, and positioning. Be direct and " +
			"actionable rather than generic.",
		Capabilities: []string{"career strategy", "goal setting", "skill gap analysis"},
		Tools:        []string{"current_date", "list_workflow_runs"},
	},
	RoleResumeOptimizer: {
		Role: RoleResumeOptimizer,
		Name: "Resume Optimizer",
		Instruction: "You optimize resumes for applicant tracking systems and human " +
			"reviewers. Tighten wording, quantify impact, and align content with the " +
			"target role's keywords.",
		Capabilities: []string{"resume review", "ATS keyword alignment", "impact phrasing"},
		Tools:        []string{"extract_keywords", "match_keywords"},
	},
	RoleJobMatcher: {
		Role: RoleJobMatcher,
		Name: "Job Matcher",
		Instruction: "You evaluate fit between a candidate and job postings. Compare " +
			"requirements against the candidate's background and report matches, gaps, " +
			"and a fit assessment.",
		Capabilities: []string{"job fit scoring", "requirement analysis"},
		Tools:        []string{"extract_keywords", "match_keywords"},
	},
	RoleResearch: {
		Role: RoleResearch,
		Name: "Research Agent",
		Instruction: "You research companies, roles, industries, and market conditions. " +
			"Summarize findings concisely and flag anything uncertain instead of guessing.",
		Capabilities: []string{"company research", "market analysis", "salary benchmarks"},
		Tools:        []string{"current_date"},
	},
	RoleWriting: {
		Role: RoleWriting,
		Name: "Writing Agent",
		Instruction: "You draft professional career documents: cover letters, outreach " +
			"messages, summaries, and bullet points. Match the requested tone and keep " +
			"the output ready to use.",
		Capabilities: []string{"cover letters", "professional summaries", "outreach drafts"},
		Tools:        []string{"extract_keywords"},
	},
	RoleInterviewPrep: {
		Role: RoleInterviewPrep,
		Name: "Interview Prep Agent",
		Instruction: "You prepare candidates for interviews. Produce likely questions, " +
			"strong sample answers grounded in the candidate's experience, and topics " +
			"to study.",
		Capabilities: []string{"mock questions", "answer coaching", "topic prep"},
		Tools:        []string{"current_date"},
	},
}

// Roles returns the role identifiers in catalog order.
func Roles() []string {
	out := make([]string, len(roleOrder))
	copy(out, roleOrder)
	return out
}

// Profile returns the profile for a role.
func Profile(role string) (RoleProfile, bool) {
	p, ok := roleProfiles[role]
	return p, ok
}

// Catalog renders the role table for the planner prompt: one line per role
// with its capabilities.
func Catalog() string {
	var b strings.Builder
	for _, role := range roleOrder {
		p := roleProfiles[role]
		fmt.Fprintf(&b, "- %s (%s): %s\n", p.Role, p.Name, strings.Join(p.Capabilities, ", "))
	}
	return b.String()
}
