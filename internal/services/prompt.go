package services

import "fmt"

// System prompts constraining each stage's output shape.
const (
	cvEvaluationSystemPrompt = `You are an expert technical recruiter specializing in backend engineering and AI/ML roles.
Your task is to evaluate candidate CVs objectively and provide structured feedback.
You must respond ONLY with valid JSON format, no additional text or markdown.`

	projectEvaluationSystemPrompt = `You are an expert technical evaluator specializing in backend systems, AI/LLM integration, and RAG implementations.
Your task is to evaluate project implementations objectively against requirements and best practices.
You must respond ONLY with valid JSON format, no additional text or markdown.`

	summarySystemPrompt = `You are an expert hiring manager providing final recommendations on candidates.
Be concise, balanced, and actionable in your summary.`
)

type PromptBuilder struct{}

func NewPromptBuilder() *PromptBuilder {
	return &PromptBuilder{}
}

// BuildCVEvaluationPrompt embeds the retrieved context, the raw CV text and
// the four weighted scoring criteria.
func (pb *PromptBuilder) BuildCVEvaluationPrompt(cvText, jobTitle, context string) string {
	return fmt.Sprintf(`%s

# CANDIDATE CV TO EVALUATE:
%s

# EVALUATION TASK:
Evaluate this CV for the position of "%s" based on the job requirements and rubric provided above.

Score each parameter on a scale of 1-5:
1. Technical Skills Match (Weight: 40%%)
2. Experience Level (Weight: 25%%)
3. Relevant Achievements (Weight: 20%%)
4. Cultural/Collaboration Fit (Weight: 15%%)

Calculate the weighted average and convert to a match_rate (0-1 scale by multiplying by 0.2).

Respond with ONLY valid JSON in this exact format:
{
    "technical_skills_match": <score 1-5>,
    "experience_level": <score 1-5>,
    "relevant_achievements": <score 1-5>,
    "cultural_fit": <score 1-5>,
    "match_rate": <decimal 0-1>,
    "feedback": "<2-3 sentences explaining strengths and gaps>"
}

DO NOT include any text outside the JSON object.`, context, cvText, jobTitle)
}

// BuildProjectEvaluationPrompt embeds the retrieved context, the project
// report text and the five weighted scoring criteria.
func (pb *PromptBuilder) BuildProjectEvaluationPrompt(projectText, context string) string {
	return fmt.Sprintf(`%s

# PROJECT REPORT TO EVALUATE:
%s

# EVALUATION TASK:
Evaluate this project report based on the case study requirements and rubric provided above.

Score each parameter on a scale of 1-5:
1. Correctness (Prompt & Chaining) (Weight: 30%%)
2. Code Quality & Structure (Weight: 25%%)
3. Resilience & Error Handling (Weight: 20%%)
4. Documentation & Explanation (Weight: 15%%)
5. Creativity / Bonus (Weight: 10%%)

Calculate the weighted average for the overall score (1-5 scale).

Respond with ONLY valid JSON in this exact format:
{
    "correctness": <score 1-5>,
    "code_quality": <score 1-5>,
    "resilience": <score 1-5>,
    "documentation": <score 1-5>,
    "creativity": <score 1-5>,
    "overall_score": <decimal 1-5>,
    "feedback": "<2-3 sentences explaining what was done well and what needs improvement>"
}

DO NOT include any text outside the JSON object.`, context, projectText)
}

// BuildSummaryPrompt requests a free-text 3-5 sentence recommendation from
// both prior results. No structured output.
func (pb *PromptBuilder) BuildSummaryPrompt(cvMatchRate float64, cvFeedback string, projectScore float64, projectFeedback, jobTitle string) string {
	return fmt.Sprintf(`Based on the following evaluation results, provide a concise overall summary (3-5 sentences) about the candidate's fit for the %s position.

CV Evaluation:
- Match Rate: %.2f
- Feedback: %s

Project Evaluation:
- Score: %.2f/5
- Feedback: %s

Provide a balanced summary that:
1. Highlights the candidate's key strengths
2. Identifies any gaps or areas for improvement
3. Provides a clear recommendation

Respond with ONLY the summary text, no JSON or additional formatting.`,
		jobTitle, cvMatchRate, cvFeedback, projectScore, projectFeedback)
}
