package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/sourpie/gitknow/internal/port"
)

// SummaryPlaceholder is stored in place of a file summary the model could not produce.
const SummaryPlaceholder = "Summary unavailable (rate limited)."

const diffSystemPrompt = `You are an expert programmer, and you are trying to summarize a git diff.
Reminders about the git diff format:
For every file, there are a few metadata lines, like (for example):
` + "```" + `
diff --git a/lib/index.js b/lib/index.js
index aadf691..bfef603 100644
--- a/lib/index.js
+++ b/lib/index.js
` + "```" + `
This means that ` + "`lib/index.js`" + ` was modified in this commit. Note that this is only an example.
Then there is a specifier of the lines that were modified.
A line starting with ` + "`+`" + ` means it was added.
A line that starting with ` + "`-`" + ` means that line was deleted.
A line that starts with neither ` + "`+`" + ` nor ` + "`-`" + ` is code given for context and better understanding.
It is not part of the diff.
[...]
EXAMPLE SUMMARY COMMENTS:
` + "```" + `
* Raised the amount of returned recordings from ` + "`10`" + ` to ` + "`100`" + ` [packages/server/recordings_api.ts], [packages/server/constants.ts]
* Fixed a typo in the github action name [.github/workflows/gpt-commit-summarizer.yml]
* Moved the ` + "`octokit`" + ` initialization to a separate file [src/octokit.ts], [src/index.ts]
* Added an OpenAI API for completions [packages/utils/apis/openai.ts]
* Lowered numeric tolerance for test files
` + "```" + `
Most commits will have less comments than this examples list.
The last comment does not include the file names,
because there were more than two relevant files in the hypothetical commit.
Only include file names if there are two or less files that were modified.
Do not include parts of the example in your summary.
It is given only as an example of appropriate comments.`

const codeSystemPrompt = "You are an intelligent senior software engineer who specializes in onboarding junior software engineers onto projects."

// Summarizer turns source files and commit diffs into short natural-language summaries.
type Summarizer struct {
	chat     port.ChatModel
	maxInput int
}

// NewSummarizer creates a summarizer. maxInput caps how many characters of
// a file are sent to the model; zero or less means 10000.
func NewSummarizer(chat port.ChatModel, maxInput int) *Summarizer {
	if maxInput <= 0 {
		maxInput = 10000
	}
	return &Summarizer{chat: chat, maxInput: maxInput}
}

// SummarizeCode asks for an onboarding summary of one file in at most 100 words.
func (s *Summarizer) SummarizeCode(ctx context.Context, path, code string) (string, error) {
	summary, err := s.chat.Chat(ctx, codeSystemPrompt, codePrompt(path, truncate(code, s.maxInput)))
	if err != nil {
		return "", fmt.Errorf("summarize %s: %w", path, err)
	}
	return strings.TrimSpace(summary), nil
}

// SummarizeDiff returns bullet-point comments describing a commit diff.
func (s *Summarizer) SummarizeDiff(ctx context.Context, diff string) (string, error) {
	summary, err := s.chat.Chat(ctx, diffSystemPrompt, "Please summarise the following diff file: \n\n"+diff)
	if err != nil {
		return "", fmt.Errorf("summarize diff: %w", err)
	}
	return strings.TrimSpace(summary), nil
}

func codePrompt(path, code string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are onboarding a junior software engineer and explaining to them the purpose of the %s file.\n", path)
	b.WriteString("Here is the code:\n---\n")
	b.WriteString(code)
	b.WriteString("\n---\n")
	b.WriteString("Give a summary no more than 100 words of the code above")
	return b.String()
}

// truncate keeps the first n runes of s.
func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
