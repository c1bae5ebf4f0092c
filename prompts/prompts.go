package prompts

import _ "embed"

// Embedded prompt files

//go:embed answer_system.txt
var answerSystem string

//go:embed research_agent.txt
var researchAgent string

//go:embed suggest_questions.txt
var suggestQuestions string

//go:embed title_generator.txt
var titleGenerator string

func AnswerSystem() string     { return answerSystem }
func ResearchAgent() string    { return researchAgent }
func SuggestQuestions() string { return suggestQuestions }
func TitleGenerator() string   { return titleGenerator }
