package gemini

import (
	"fmt"
	"strings"

	"github.com/aretw0/issueflow/pkg/domain"
	"github.com/aretw0/issueflow/pkg/ports"
	"google.golang.org/genai"
)

var researchTools = []*genai.FunctionDeclaration{
	{
		Name:        domain.ActionListFiles,
		Description: "List files and directories in a specific path. Use '.' for root.",
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"path": {Type: genai.TypeString, Description: "The directory path (e.g. 'src/components' or '.')"},
			},
			Required: []string{"path"},
		},
	},
	{
		Name:        domain.ActionReadFile,
		Description: "Read the full content of a specific file. Use this to examine code.",
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"path": {Type: genai.TypeString, Description: "The file path to read"},
			},
			Required: []string{"path"},
		},
	},
	{
		Name:        domain.ActionSearchCode,
		Description: "Search for a specific code snippet, function name, or keyword across the repository.",
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"query": {Type: genai.TypeString, Description: "The search query"},
			},
			Required: []string{"query"},
		},
	},
	{
		Name: domain.ActionFinishResearch,
		Description: "Call this tool when you have gathered enough information to understand the issue and plan a fix. " +
			"Do NOT call this if you haven't read the relevant code files yet.",
		Parameters: &genai.Schema{Type: genai.TypeObject, Properties: map[string]*genai.Schema{}},
	},
}

var planSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"analysis": {Type: genai.TypeString},
		"steps":    {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
	},
}

var fixSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"newContent":  {Type: genai.TypeString},
		"explanation": {Type: genai.TypeString},
	},
}

func planPrompt(title, body string, files []ports.FileContent) string {
	var ctx strings.Builder
	for i, f := range files {
		if i > 0 {
			ctx.WriteString("\n")
		}
		fmt.Fprintf(&ctx, "--- %s ---\n%s\n", f.Path, f.Content)
	}
	return fmt.Sprintf(`You are a Senior Software Engineer.

Issue: %s
%s

Code Context:
%s

Task:
1. Analyze the bug/feature request. Briefly explain the root cause or requirement.
2. Create a specific, step-by-step implementation plan to fix it.

CRITICAL CONSTRAINTS:
- FOCUS ONLY on the issue described.
- DO NOT plan for refactoring, code style improvements, or modernizing code unless explicitly requested in the issue.
- Keep the scope minimal to resolve the issue.
`, title, body, ctx.String())
}

func fixPrompt(issueBody, analysis, path, content string) string {
	return fmt.Sprintf("You are a coding agent.\n\n"+
		"Task: Implement the fix for the issue described below, strictly following the provided plan.\n"+
		"Target File: %s\n\n"+
		"Issue: %s\n"+
		"Plan: %s\n\n"+
		"Current File Content:\n```\n%s\n```\n\n"+
		"CONSTRAINTS:\n"+
		"- Return the FULL new content of the file.\n"+
		"- Do NOT remove existing comments or code unless they are part of the bug.\n"+
		"- Do NOT change code style (indentation, quotes, etc.) unless necessary.\n"+
		"- STRICTLY adhere to the plan. Do not \"fix\" other things you see in the file.\n\n"+
		"Return the new content and a brief explanation of changes.\n",
		path, issueBody, analysis, content)
}
