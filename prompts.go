package issueflow

import (
	"fmt"

	"github.com/aretw0/issueflow/pkg/domain"
)

const researchPromptFormat = `You are a Senior Software Engineer investigating a GitHub Issue.

Issue Title: %s
Issue Description: %s

Your goal is to "walk" the repository to locate the relevant files and understand the bug.
You have tools to:
1. List directories (%s)
2. Read file contents (%s)
3. Search code (%s)

Start by exploring the repository structure or searching for keywords from the issue.
Read the code of files you suspect are involved.
Once you have read the code and understand the problem, call '%s'.

DO NOT guess file paths. List directories to see what exists.`

// ResearchPrompt is the instruction turn that opens the research conversation.
func ResearchPrompt(issue domain.Issue) string {
	return fmt.Sprintf(researchPromptFormat, issue.Title, issue.Body,
		domain.ActionListFiles, domain.ActionReadFile, domain.ActionSearchCode, domain.ActionFinishResearch)
}
